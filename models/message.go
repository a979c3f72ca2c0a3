package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Delivery states for timeline entries.
const (
	DeliveryOptimistic = "optimistic"
	DeliveryConfirmed  = "confirmed"
	DeliveryFailed     = "failed"
)

// Message kinds.
const (
	KindText = "text"
	KindFile = "file"
)

// ProvisionalIDPrefix marks locally generated message ids awaiting a
// server-assigned replacement.
const ProvisionalIDPrefix = "temp_"

// MessageID is a message identifier. The server assigns numeric ids; the
// client assigns string provisional ids for optimistic entries, so the type
// accepts both on the wire.
type MessageID string

// NewProvisionalID returns a fresh time-based provisional message id.
func NewProvisionalID(now time.Time) MessageID {
	return MessageID(fmt.Sprintf("%s%d_%s", ProvisionalIDPrefix, now.UnixMilli(), uuid.NewString()[:8]))
}

// IsProvisional reports whether the id was generated locally.
func (id MessageID) IsProvisional() bool {
	return strings.HasPrefix(string(id), ProvisionalIDPrefix)
}

// UnmarshalJSON accepts both a JSON number and a JSON string.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "null" {
		*id = ""
		return nil
	}
	*id = MessageID(raw)
	return nil
}

// MarshalJSON emits server-assigned ids as numbers and provisional ids as
// strings, matching what the server expects back.
func (id MessageID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return []byte(`"` + string(id) + `"`), nil
}

// Reaction is one user's emoji reaction on a message.
type Reaction struct {
	UserID int    `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Message is one chat timeline entry. Encrypted entries keep their
// ciphertext fields after decryption; only Text is rewritten.
type Message struct {
	ID                 MessageID  `json:"id"`
	ChatID             int        `json:"chat_id"`
	SenderID           int        `json:"sender_id"`
	SenderName         string     `json:"username,omitempty"`
	Kind               string     `json:"type,omitempty"`
	Text               string     `json:"text,omitempty"`
	FileURL            string     `json:"file_url,omitempty"`
	FileName           string     `json:"file_name,omitempty"`
	IsEncrypted        bool       `json:"is_encrypted,omitempty"`
	EncryptedData      string     `json:"encrypted_data,omitempty"`
	Nonce              string     `json:"nonce,omitempty"`
	EphemeralPublicKey string     `json:"ephemeral_public_key,omitempty"`
	SentAt             Time       `json:"sent_at"`
	Reactions          []Reaction `json:"reactions,omitempty"`
	DeliveryState      string     `json:"-"`
}

// Preview returns the text used for chat-list previews.
func (m Message) Preview() string {
	if m.Kind == KindFile && m.FileName != "" {
		return m.FileName
	}
	return m.Text
}
