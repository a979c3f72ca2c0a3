package crypto

import (
	"context"
	"errors"
	"testing"

	"github.com/post-kserks/messenger-client/models"
)

type fakeDirectory struct {
	participantKeys map[int][]models.ParticipantKey
	userKeys        map[int]string
	participantHits int
	userHits        int
	published       map[int]string
}

func (d *fakeDirectory) FetchParticipantKeys(_ context.Context, chatID int) ([]models.ParticipantKey, error) {
	d.participantHits++
	keys, ok := d.participantKeys[chatID]
	if !ok {
		return nil, errors.New("unknown chat")
	}
	return keys, nil
}

func (d *fakeDirectory) FetchPublicKey(_ context.Context, userID int) (string, error) {
	d.userHits++
	key, ok := d.userKeys[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return key, nil
}

func (d *fakeDirectory) PublishPublicKey(_ context.Context, userID int, publicKey string) error {
	if d.published == nil {
		d.published = make(map[int]string)
	}
	d.published[userID] = publicKey
	return nil
}

func TestParticipantKeysCachedUntilRefresh(t *testing.T) {
	dir := &fakeDirectory{
		participantKeys: map[int][]models.ParticipantKey{
			5: {{UserID: 1, PublicKey: "a"}, {UserID: 2, PublicKey: "b"}},
		},
	}
	store := NewKeyStore(dir)

	first, err := store.ParticipantKeys(context.Background(), 5)
	if err != nil {
		t.Fatalf("ParticipantKeys failed: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(first))
	}

	if _, err := store.ParticipantKeys(context.Background(), 5); err != nil {
		t.Fatalf("cached ParticipantKeys failed: %v", err)
	}
	if dir.participantHits != 1 {
		t.Fatalf("expected one directory fetch, got %d", dir.participantHits)
	}

	dir.participantKeys[5] = append(dir.participantKeys[5], models.ParticipantKey{UserID: 3, PublicKey: "c"})
	refreshed, err := store.RefreshParticipantKeys(context.Background(), 5)
	if err != nil {
		t.Fatalf("RefreshParticipantKeys failed: %v", err)
	}
	if len(refreshed) != 3 {
		t.Fatalf("expected refresh to observe membership change, got %d keys", len(refreshed))
	}
	if dir.participantHits != 2 {
		t.Fatalf("expected second directory fetch, got %d", dir.participantHits)
	}
}

func TestEncryptForChatRequiresCacheAndIdentity(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity failed: %v", err)
	}
	recipient, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity failed: %v", err)
	}

	dir := &fakeDirectory{
		participantKeys: map[int][]models.ParticipantKey{
			9: {
				{UserID: 1, PublicKey: identity.PublicKeyBase64()},
				{UserID: 2, PublicKey: recipient.PublicKeyBase64()},
			},
		},
	}
	store := NewKeyStore(dir)

	if _, err := store.EncryptForChat("hi", 9, 1); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity before SetIdentity, got %v", err)
	}

	store.SetIdentity(identity)
	if _, err := store.EncryptForChat("hi", 9, 1); !errors.Is(err, ErrNoParticipantKeys) {
		t.Fatalf("expected ErrNoParticipantKeys before fetch, got %v", err)
	}

	if _, err := store.ParticipantKeys(context.Background(), 9); err != nil {
		t.Fatalf("ParticipantKeys failed: %v", err)
	}
	envelopes, err := store.EncryptForChat("hi", 9, 1)
	if err != nil {
		t.Fatalf("EncryptForChat failed: %v", err)
	}
	if len(envelopes) != 1 || envelopes[0].UserID != 2 {
		t.Fatalf("expected a single envelope for user 2, got %+v", envelopes)
	}
}

func TestSenderPublicKeyCached(t *testing.T) {
	dir := &fakeDirectory{userKeys: map[int]string{4: "key4"}}
	store := NewKeyStore(dir)

	for i := 0; i < 3; i++ {
		key, err := store.SenderPublicKey(context.Background(), 4)
		if err != nil {
			t.Fatalf("SenderPublicKey failed: %v", err)
		}
		if key != "key4" {
			t.Fatalf("unexpected key %q", key)
		}
	}
	if dir.userHits != 1 {
		t.Fatalf("expected one directory fetch, got %d", dir.userHits)
	}
}

func TestPublishIdentity(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity failed: %v", err)
	}

	dir := &fakeDirectory{}
	store := NewKeyStore(dir)

	if err := store.PublishIdentity(context.Background(), 8); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}

	store.SetIdentity(identity)
	if err := store.PublishIdentity(context.Background(), 8); err != nil {
		t.Fatalf("PublishIdentity failed: %v", err)
	}
	if dir.published[8] != identity.PublicKeyBase64() {
		t.Fatalf("published key does not match identity")
	}
}
