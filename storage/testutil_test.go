package storage

import (
	"testing"
	"time"

	"github.com/post-kserks/messenger-client/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func at(t *testing.T, value string) models.Time {
	t.Helper()

	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return models.Time{Time: parsed}
}

func mustUpsertChat(t *testing.T, store *Store, chat models.ChatSummary) {
	t.Helper()

	if err := store.UpsertChat(chat); err != nil {
		t.Fatalf("upsert chat %d: %v", chat.ID, err)
	}
}
