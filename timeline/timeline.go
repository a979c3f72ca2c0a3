// Package timeline holds the per-chat message store and the ordered chat
// index. Both guard their state internally and are safe for concurrent use
// by the session controller's background sends and push handling.
package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/post-kserks/messenger-client/models"
)

// ReconcileWindow bounds how far apart an optimistic entry and its server
// echo may be stamped and still be treated as the same message. The server
// returns no client-correlatable request id, so matching is heuristic: same
// sender, identical text, timestamps within this window. Tests rely on these
// exact rules.
const ReconcileWindow = 10 * time.Second

// Timeline is one chat's ordered, deduplicated message sequence.
type Timeline struct {
	mu   sync.Mutex
	msgs []models.Message
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{}
}

// Replace swaps in a full history snapshot, normalizing delivery state.
func (t *Timeline) Replace(msgs []models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.msgs = make([]models.Message, len(msgs))
	copy(t.msgs, msgs)
	for i := range t.msgs {
		if t.msgs[i].DeliveryState == "" {
			t.msgs[i].DeliveryState = models.DeliveryConfirmed
		}
	}
	t.sortBySentAt()
}

// Messages returns a copy of the timeline sorted ascending by sent time.
func (t *Timeline) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// Get returns the entry with the given id.
func (t *Timeline) Get(id models.MessageID) (models.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range t.msgs {
		if msg.ID == id {
			return msg, true
		}
	}
	return models.Message{}, false
}

// AppendOptimistic inserts a locally created entry awaiting server
// confirmation. The entry must carry a provisional id.
func (t *Timeline) AppendOptimistic(msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg.DeliveryState = models.DeliveryOptimistic
	t.msgs = append(t.msgs, msg)
	t.sortBySentAt()
}

// ReconcileIncoming applies a server-confirmed message. A pending optimistic
// entry from the same sender with identical text stamped within
// ReconcileWindow is replaced in place; otherwise the message is appended.
// A re-delivered message with a known server id updates the existing entry
// instead of duplicating it. Reports whether an existing entry was replaced.
func (t *Timeline) ReconcileIncoming(msg models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg.DeliveryState = models.DeliveryConfirmed

	if msg.ID != "" && !msg.ID.IsProvisional() {
		for i := range t.msgs {
			if t.msgs[i].ID == msg.ID {
				t.msgs[i] = msg
				return true
			}
		}
	}

	for i := range t.msgs {
		candidate := t.msgs[i]
		if candidate.DeliveryState != models.DeliveryOptimistic {
			continue
		}
		if candidate.SenderID != msg.SenderID || candidate.Text != msg.Text {
			continue
		}
		if !withinReconcileWindow(candidate.SentAt.Time, msg.SentAt.Time) {
			continue
		}
		t.msgs[i] = msg
		return true
	}

	t.msgs = append(t.msgs, msg)
	t.sortBySentAt()
	return false
}

// MarkFailed flags a pending optimistic entry as failed. It is a no-op if
// the entry is already failed or was reconciled in the meantime.
func (t *Timeline) MarkFailed(provisionalID models.MessageID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.msgs {
		if t.msgs[i].ID != provisionalID {
			continue
		}
		switch t.msgs[i].DeliveryState {
		case models.DeliveryOptimistic, models.DeliveryFailed:
			t.msgs[i].DeliveryState = models.DeliveryFailed
			return true
		default:
			return false
		}
	}
	return false
}

// ApplyReaction sets a user's reaction on a message. A user holds at most
// one reaction per message; an empty emoji clears it.
func (t *Timeline) ApplyReaction(messageID models.MessageID, userID int, emoji string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.msgs {
		if t.msgs[i].ID != messageID {
			continue
		}

		// Build a fresh slice: the old backing array may be shared with
		// snapshots handed out by Messages.
		kept := make([]models.Reaction, 0, len(t.msgs[i].Reactions)+1)
		for _, reaction := range t.msgs[i].Reactions {
			if reaction.UserID != userID {
				kept = append(kept, reaction)
			}
		}
		if emoji != "" {
			kept = append(kept, models.Reaction{UserID: userID, Emoji: emoji})
		}
		t.msgs[i].Reactions = kept
		return true
	}
	return false
}

// SetReactions replaces a message's reaction set with the server's
// authoritative list.
func (t *Timeline) SetReactions(messageID models.MessageID, reactions []models.Reaction) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.msgs {
		if t.msgs[i].ID != messageID {
			continue
		}
		t.msgs[i].Reactions = append([]models.Reaction(nil), reactions...)
		return true
	}
	return false
}

// sortBySentAt re-sorts entries ascending. Caller holds t.mu.
func (t *Timeline) sortBySentAt() {
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].SentAt.Before(t.msgs[j].SentAt.Time)
	})
}

func withinReconcileWindow(a, b time.Time) bool {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return d <= ReconcileWindow
}
