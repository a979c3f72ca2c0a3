package timeline

import (
	"testing"
	"time"

	"github.com/post-kserks/messenger-client/models"
)

func TestIndexSortedDescendingWithIdleChatsLast(t *testing.T) {
	now := time.Now()
	index := NewIndex([]models.ChatSummary{
		{ID: 1, Name: "empty one"},
		{ID: 2, Name: "older", LastMessageTime: models.NewTime(now.Add(-time.Hour))},
		{ID: 3, Name: "newest", LastMessageTime: models.NewTime(now)},
		{ID: 4, Name: "empty two"},
	})

	chats := index.Chats()
	wantOrder := []int{3, 2, 1, 4}
	for i, want := range wantOrder {
		if chats[i].ID != want {
			t.Fatalf("position %d: expected chat %d, got %d", i, want, chats[i].ID)
		}
	}
}

func TestUpsertActivityReordersAndCountsUnread(t *testing.T) {
	now := time.Now()
	index := NewIndex([]models.ChatSummary{
		{ID: 1, Name: "a", LastMessageTime: models.NewTime(now.Add(-time.Hour))},
		{ID: 2, Name: "b", LastMessageTime: models.NewTime(now)},
	})

	index.UpsertActivity(1, now.Add(time.Minute), "hi", true)

	chats := index.Chats()
	if chats[0].ID != 1 {
		t.Fatalf("expected chat 1 promoted to front, got %d", chats[0].ID)
	}
	if chats[0].LastMessageText != "hi" {
		t.Fatalf("expected preview %q, got %q", "hi", chats[0].LastMessageText)
	}
	if chats[0].UnreadCount != 1 {
		t.Fatalf("expected unread 1, got %d", chats[0].UnreadCount)
	}

	// Activity in the open chat keeps unread untouched.
	index.UpsertActivity(1, now.Add(2*time.Minute), "again", false)
	chat, _ := index.Get(1)
	if chat.UnreadCount != 1 {
		t.Fatalf("expected unread unchanged, got %d", chat.UnreadCount)
	}

	index.ResetUnread(1)
	chat, _ = index.Get(1)
	if chat.UnreadCount != 0 {
		t.Fatalf("expected unread reset, got %d", chat.UnreadCount)
	}
}

func TestUpsertActivityInsertsUnknownChat(t *testing.T) {
	now := time.Now()
	index := NewIndex(nil)

	index.UpsertActivity(9, now, "first contact", true)
	chat, ok := index.Get(9)
	if !ok {
		t.Fatalf("expected chat 9 inserted")
	}
	if chat.UnreadCount != 1 || chat.LastMessageText != "first contact" {
		t.Fatalf("unexpected inserted summary: %+v", chat)
	}
}

func TestSortIsStableForTies(t *testing.T) {
	ts := models.NewTime(time.Unix(1700000000, 0))
	index := NewIndex([]models.ChatSummary{
		{ID: 1, Name: "first", LastMessageTime: ts},
		{ID: 2, Name: "second", LastMessageTime: ts},
		{ID: 3, Name: "third", LastMessageTime: ts},
	})

	chats := index.Chats()
	for i, want := range []int{1, 2, 3} {
		if chats[i].ID != want {
			t.Fatalf("tie order not preserved: position %d got chat %d", i, chats[i].ID)
		}
	}
}
