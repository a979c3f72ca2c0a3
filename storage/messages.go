package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/post-kserks/messenger-client/models"
)

// ReplaceChatMessages swaps one chat's cached timeline for a fresh snapshot.
// Message text is stored decrypted; the database file lives under the user's
// 0700 data directory.
func (s *Store) ReplaceChatMessages(chatID int, messages []models.Message) error {
	if chatID == 0 {
		return errors.New("chat id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin timeline replace: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("clear timeline for chat %d: %w", chatID, err)
	}

	for _, msg := range messages {
		reactions, err := json.Marshal(msg.Reactions)
		if err != nil {
			return fmt.Errorf("marshal reactions for message %s: %w", msg.ID, err)
		}
		state := msg.DeliveryState
		if state == "" {
			state = models.DeliveryConfirmed
		}
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO messages (
				message_id, chat_id, sender_id, sender_name, kind, text,
				file_url, file_name, is_encrypted, sent_at, delivery_state, reactions
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(msg.ID),
			chatID,
			msg.SenderID,
			msg.SenderName,
			kindOrText(msg.Kind),
			msg.Text,
			msg.FileURL,
			msg.FileName,
			boolInt(msg.IsEncrypted),
			msg.SentAt.UnixMilli(),
			state,
			string(reactions),
		)
		if err != nil {
			return fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit timeline replace: %w", err)
	}
	return nil
}

// GetChatMessages returns one chat's cached timeline in ascending send order.
func (s *Store) GetChatMessages(chatID int) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT message_id, sender_id, sender_name, kind, text,
			file_url, file_name, is_encrypted, sent_at, delivery_state, reactions
		FROM messages
		WHERE chat_id = ?
		ORDER BY sent_at ASC, message_id`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("get timeline for chat %d: %w", chatID, err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg         models.Message
			id          string
			isEncrypted int
			sentAt      int64
			reactions   string
		)
		err := rows.Scan(&id, &msg.SenderID, &msg.SenderName, &msg.Kind, &msg.Text,
			&msg.FileURL, &msg.FileName, &isEncrypted, &sentAt, &msg.DeliveryState, &reactions)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.ID = models.MessageID(id)
		msg.ChatID = chatID
		msg.IsEncrypted = isEncrypted != 0
		msg.SentAt = models.Time{Time: time.UnixMilli(sentAt).UTC()}
		if err := json.Unmarshal([]byte(reactions), &msg.Reactions); err != nil {
			return nil, fmt.Errorf("unmarshal reactions for message %s: %w", id, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}

// DeleteChatMessages drops one chat's cached timeline.
func (s *Store) DeleteChatMessages(chatID int) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete timeline for chat %d: %w", chatID, err)
	}
	return nil
}

func kindOrText(kind string) string {
	if kind == "" {
		return models.KindText
	}
	return kind
}
