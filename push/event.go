// Package push maintains the websocket connection to the messenger server
// and delivers server-initiated events: new messages, file posts, and
// reaction updates.
package push

import (
	"github.com/post-kserks/messenger-client/models"
)

// Event type values sent by the server. Older server builds emitted the
// new_ prefixed names; both spellings are accepted.
const (
	EventMessage    = "message"
	EventNewMessage = "new_message"
	EventFile       = "file"
	EventNewFile    = "new_file"
	EventReaction   = "reaction"
)

// Event is one push frame from the server. Message and file events carry
// the full message fields; reaction events carry the message id and the
// authoritative reaction set for it.
type Event struct {
	Type string `json:"type"`

	ID         models.MessageID  `json:"id"`
	ChatID     int               `json:"chat_id"`
	SenderID   int               `json:"sender_id"`
	SenderName string            `json:"username"`
	Text       string            `json:"text"`
	FileURL    string            `json:"file_url"`
	FileName   string            `json:"file_name"`
	SentAt     models.Time       `json:"sent_at"`
	Reactions  []models.Reaction `json:"reactions"`

	IsEncrypted        bool   `json:"is_encrypted"`
	EncryptedData      string `json:"encrypted_data"`
	Nonce              string `json:"nonce"`
	EphemeralPublicKey string `json:"ephemeral_public_key"`

	// Reaction events reference the target message here.
	MessageID models.MessageID `json:"message_id"`
	Emoji     string           `json:"emoji"`
	UserID    int              `json:"user_id"`
}

// IsMessage reports whether the event announces a new text message.
func (e *Event) IsMessage() bool {
	return e.Type == EventMessage || e.Type == EventNewMessage
}

// IsFile reports whether the event announces a new file post.
func (e *Event) IsFile() bool {
	return e.Type == EventFile || e.Type == EventNewFile
}

// IsReaction reports whether the event updates a message's reactions.
func (e *Event) IsReaction() bool {
	return e.Type == EventReaction
}

// Message converts a message or file event into the model form.
func (e *Event) Message() models.Message {
	kind := models.KindText
	if e.IsFile() {
		kind = models.KindFile
	}
	return models.Message{
		ID:                 e.ID,
		ChatID:             e.ChatID,
		SenderID:           e.SenderID,
		SenderName:         e.SenderName,
		Kind:               kind,
		Text:               e.Text,
		FileURL:            e.FileURL,
		FileName:           e.FileName,
		IsEncrypted:        e.IsEncrypted,
		EncryptedData:      e.EncryptedData,
		Nonce:              e.Nonce,
		EphemeralPublicKey: e.EphemeralPublicKey,
		SentAt:             e.SentAt,
		Reactions:          e.Reactions,
		DeliveryState:      models.DeliveryConfirmed,
	}
}
