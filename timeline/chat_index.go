package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/post-kserks/messenger-client/models"
)

// ChatIndex keeps the chat list in render order: newest activity first,
// ties and zero-activity chats in their original relative order. Render
// order is semantically load-bearing, so the sequence is re-sorted after
// every mutation.
type ChatIndex struct {
	mu    sync.Mutex
	chats []models.ChatSummary
}

// NewIndex creates an index over an initial chat listing.
func NewIndex(chats []models.ChatSummary) *ChatIndex {
	index := &ChatIndex{}
	index.Replace(chats)
	return index
}

// Replace swaps in a fresh chat listing.
func (x *ChatIndex) Replace(chats []models.ChatSummary) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.chats = make([]models.ChatSummary, len(chats))
	copy(x.chats, chats)
	x.sortByActivity()
}

// Chats returns a copy of the ordered chat list.
func (x *ChatIndex) Chats() []models.ChatSummary {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]models.ChatSummary, len(x.chats))
	copy(out, x.chats)
	return out
}

// Get returns the summary for a chat id.
func (x *ChatIndex) Get(chatID int) (models.ChatSummary, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, chat := range x.chats {
		if chat.ID == chatID {
			return chat, true
		}
	}
	return models.ChatSummary{}, false
}

// UpsertActivity records new activity on a chat: last-message preview and
// timestamp, plus an unread increment for chats that are not open. A chat id
// not yet in the index gets a new entry; the next full listing fetch fills
// in its name.
func (x *ChatIndex) UpsertActivity(chatID int, at time.Time, preview string, incrementUnread bool) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for i := range x.chats {
		if x.chats[i].ID != chatID {
			continue
		}
		x.chats[i].LastMessageTime = models.NewTime(at)
		x.chats[i].LastMessageText = preview
		if incrementUnread {
			x.chats[i].UnreadCount++
		}
		x.sortByActivity()
		return
	}

	chat := models.ChatSummary{
		ID:              chatID,
		LastMessageTime: models.NewTime(at),
		LastMessageText: preview,
	}
	if incrementUnread {
		chat.UnreadCount = 1
	}
	x.chats = append(x.chats, chat)
	x.sortByActivity()
}

// ResetUnread zeroes the unread counter for a chat, typically on open.
func (x *ChatIndex) ResetUnread(chatID int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for i := range x.chats {
		if x.chats[i].ID == chatID {
			x.chats[i].UnreadCount = 0
			x.sortByActivity()
			return
		}
	}
}

// sortByActivity re-sorts the listing. Caller holds x.mu.
func (x *ChatIndex) sortByActivity() {
	sort.SliceStable(x.chats, func(i, j int) bool {
		return x.chats[i].LastMessageTime.After(x.chats[j].LastMessageTime.Time)
	})
}
