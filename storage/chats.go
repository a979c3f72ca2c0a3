package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/post-kserks/messenger-client/models"
)

// UpsertChat inserts or replaces one chat listing row.
func (s *Store) UpsertChat(chat models.ChatSummary) error {
	if chat.ID == 0 {
		return errors.New("chat id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO chats (chat_id, name, is_group, last_msg_time, last_msg_text, unread_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			name          = excluded.name,
			is_group      = excluded.is_group,
			last_msg_time = excluded.last_msg_time,
			last_msg_text = excluded.last_msg_text,
			unread_count  = excluded.unread_count`,
		chat.ID,
		chat.Name,
		boolInt(chat.IsGroup),
		nullUnixMilli(chat.LastMessageTime),
		chat.LastMessageText,
		chat.UnreadCount,
	)
	if err != nil {
		return fmt.Errorf("upsert chat %d: %w", chat.ID, err)
	}
	return nil
}

// ReplaceChats atomically replaces the whole chat listing.
func (s *Store) ReplaceChats(chats []models.ChatSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin chat replace: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(`DELETE FROM chats`); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	for _, chat := range chats {
		_, err := tx.Exec(
			`INSERT INTO chats (chat_id, name, is_group, last_msg_time, last_msg_text, unread_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			chat.ID,
			chat.Name,
			boolInt(chat.IsGroup),
			nullUnixMilli(chat.LastMessageTime),
			chat.LastMessageText,
			chat.UnreadCount,
		)
		if err != nil {
			return fmt.Errorf("insert chat %d: %w", chat.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chat replace: %w", err)
	}
	return nil
}

// ListChats returns cached chats ordered by most recent activity first.
// Chats with no activity sort last.
func (s *Store) ListChats() ([]models.ChatSummary, error) {
	rows, err := s.db.Query(
		`SELECT chat_id, name, is_group, last_msg_time, last_msg_text, unread_count
		FROM chats
		ORDER BY last_msg_time IS NULL, last_msg_time DESC, chat_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.ChatSummary, 0)
	for rows.Next() {
		var (
			chat    models.ChatSummary
			isGroup int
			lastAt  sql.NullInt64
		)
		if err := rows.Scan(&chat.ID, &chat.Name, &isGroup, &lastAt, &chat.LastMessageText, &chat.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		chat.IsGroup = isGroup != 0
		if lastAt.Valid {
			chat.LastMessageTime = models.Time{Time: time.UnixMilli(lastAt.Int64).UTC()}
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat rows: %w", err)
	}
	return chats, nil
}

// ResetUnread zeroes the unread counter for one chat.
func (s *Store) ResetUnread(chatID int) error {
	if _, err := s.db.Exec(`UPDATE chats SET unread_count = 0 WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("reset unread for chat %d: %w", chatID, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullUnixMilli(t models.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
