package storage

import (
	"testing"

	"github.com/post-kserks/messenger-client/models"
)

func TestUpsertChatInsertAndUpdate(t *testing.T) {
	store := newTestStore(t)

	mustUpsertChat(t, store, models.ChatSummary{
		ID: 1, Name: "general", IsGroup: true,
		LastMessageTime: at(t, "2025-04-01T10:00:00Z"),
		LastMessageText: "hello", UnreadCount: 2,
	})

	chats, err := store.ListChats()
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(chats))
	}
	if chats[0].Name != "general" || chats[0].UnreadCount != 2 || !chats[0].IsGroup {
		t.Errorf("unexpected chat: %+v", chats[0])
	}

	mustUpsertChat(t, store, models.ChatSummary{
		ID: 1, Name: "general", IsGroup: true,
		LastMessageTime: at(t, "2025-04-01T11:00:00Z"),
		LastMessageText: "newer", UnreadCount: 0,
	})

	chats, err = store.ListChats()
	if err != nil {
		t.Fatalf("list chats after update: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("expected upsert to keep 1 chat, got %d", len(chats))
	}
	if chats[0].LastMessageText != "newer" || chats[0].UnreadCount != 0 {
		t.Errorf("expected updated row, got %+v", chats[0])
	}
}

func TestListChatsOrdersByActivity(t *testing.T) {
	store := newTestStore(t)

	mustUpsertChat(t, store, models.ChatSummary{ID: 1, Name: "old", LastMessageTime: at(t, "2025-04-01T09:00:00Z")})
	mustUpsertChat(t, store, models.ChatSummary{ID: 2, Name: "idle"})
	mustUpsertChat(t, store, models.ChatSummary{ID: 3, Name: "recent", LastMessageTime: at(t, "2025-04-01T12:00:00Z")})

	chats, err := store.ListChats()
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 3 {
		t.Fatalf("expected 3 chats, got %d", len(chats))
	}
	if chats[0].Name != "recent" || chats[1].Name != "old" || chats[2].Name != "idle" {
		t.Errorf("unexpected order: %s, %s, %s", chats[0].Name, chats[1].Name, chats[2].Name)
	}
	if !chats[2].LastMessageTime.IsZero() {
		t.Error("expected idle chat to round-trip a zero time")
	}
}

func TestReplaceChats(t *testing.T) {
	store := newTestStore(t)

	mustUpsertChat(t, store, models.ChatSummary{ID: 1, Name: "stale"})

	err := store.ReplaceChats([]models.ChatSummary{
		{ID: 2, Name: "fresh", LastMessageTime: at(t, "2025-04-01T10:00:00Z")},
		{ID: 3, Name: "also fresh"},
	})
	if err != nil {
		t.Fatalf("replace chats: %v", err)
	}

	chats, err := store.ListChats()
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected stale chat gone, got %d chats", len(chats))
	}
	for _, chat := range chats {
		if chat.ID == 1 {
			t.Error("stale chat survived replace")
		}
	}
}

func TestResetUnread(t *testing.T) {
	store := newTestStore(t)

	mustUpsertChat(t, store, models.ChatSummary{ID: 1, Name: "general", UnreadCount: 5})

	if err := store.ResetUnread(1); err != nil {
		t.Fatalf("reset unread: %v", err)
	}

	chats, err := store.ListChats()
	if err != nil {
		t.Fatalf("list chats: %v", err)
	}
	if chats[0].UnreadCount != 0 {
		t.Errorf("expected unread 0, got %d", chats[0].UnreadCount)
	}
}

func TestUpsertChatRequiresID(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpsertChat(models.ChatSummary{Name: "nameless"}); err == nil {
		t.Fatal("expected error for chat without id")
	}
}
