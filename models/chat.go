package models

// ChatSummary is one entry in the ordered chat list. The server includes
// last-activity fields in its chat listing; the client keeps them current
// locally between fetches.
type ChatSummary struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	IsGroup         bool   `json:"is_group,omitempty"`
	LastMessageTime Time   `json:"last_msg_time"`
	LastMessageText string `json:"last_msg_text,omitempty"`
	UnreadCount     int    `json:"unread_count"`
}

// User identifies the authenticated account the client acts as.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email,omitempty"`
}
