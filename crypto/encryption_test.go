package crypto

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/post-kserks/messenger-client/models"
)

func testParticipants(t *testing.T, ids ...int) ([]models.ParticipantKey, map[int]*Identity) {
	t.Helper()

	identities := make(map[int]*Identity, len(ids))
	participants := make([]models.ParticipantKey, 0, len(ids))
	for _, id := range ids {
		identity, err := GenerateIdentity()
		if err != nil {
			t.Fatalf("GenerateIdentity failed: %v", err)
		}
		identities[id] = identity
		participants = append(participants, models.ParticipantKey{
			UserID:    id,
			PublicKey: identity.PublicKeyBase64(),
		})
	}

	return participants, identities
}

func TestEncryptForParticipantsRoundTrip(t *testing.T) {
	const senderID = 1
	participants, identities := testParticipants(t, 1, 2, 3)

	envelopes, err := EncryptForParticipants("привет, мир", senderID, participants)
	if err != nil {
		t.Fatalf("EncryptForParticipants failed: %v", err)
	}
	if len(envelopes) != 2 {
		t.Fatalf("expected one envelope per non-sender participant, got %d", len(envelopes))
	}

	for _, envelope := range envelopes {
		if envelope.UserID == senderID {
			t.Fatalf("sender received an envelope")
		}
		plaintext, err := OpenEnvelope(identities[envelope.UserID], envelope)
		if err != nil {
			t.Fatalf("OpenEnvelope for user %d failed: %v", envelope.UserID, err)
		}
		if plaintext != "привет, мир" {
			t.Fatalf("unexpected plaintext %q", plaintext)
		}
	}
}

func TestEncryptForParticipantsFreshMaterialPerCall(t *testing.T) {
	participants, _ := testParticipants(t, 1, 2)

	first, err := EncryptForParticipants("same text", 1, participants)
	if err != nil {
		t.Fatalf("first encrypt failed: %v", err)
	}
	second, err := EncryptForParticipants("same text", 1, participants)
	if err != nil {
		t.Fatalf("second encrypt failed: %v", err)
	}

	if first[0].EncryptedData == second[0].EncryptedData {
		t.Fatalf("expected distinct ciphertexts for identical plaintext")
	}
	if first[0].EphemeralPublicKey == second[0].EphemeralPublicKey {
		t.Fatalf("expected distinct ephemeral keys for identical plaintext")
	}
	if first[0].Nonce == second[0].Nonce {
		t.Fatalf("expected distinct nonces for identical plaintext")
	}
}

func TestEncryptForParticipantsNoRecipients(t *testing.T) {
	participants, _ := testParticipants(t, 7)

	if _, err := EncryptForParticipants("hello", 7, participants); !errors.Is(err, ErrNoParticipantKeys) {
		t.Fatalf("expected ErrNoParticipantKeys, got %v", err)
	}
	if _, err := EncryptForParticipants("hello", 7, nil); !errors.Is(err, ErrNoParticipantKeys) {
		t.Fatalf("expected ErrNoParticipantKeys for empty list, got %v", err)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	participants, identities := testParticipants(t, 1, 2)

	envelopes, err := EncryptForParticipants("untouched", 1, participants)
	if err != nil {
		t.Fatalf("EncryptForParticipants failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(envelopes[0].EncryptedData)
	if err != nil {
		t.Fatalf("decode ciphertext: %v", err)
	}
	raw[0] ^= 0x01
	envelopes[0].EncryptedData = base64.StdEncoding.EncodeToString(raw)

	if _, err := OpenEnvelope(identities[2], envelopes[0]); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptWithoutIdentity(t *testing.T) {
	participants, _ := testParticipants(t, 1, 2)

	envelopes, err := EncryptForParticipants("hello", 1, participants)
	if err != nil {
		t.Fatalf("EncryptForParticipants failed: %v", err)
	}

	if _, err := OpenEnvelope(nil, envelopes[0]); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestDecryptWithWrongIdentity(t *testing.T) {
	participants, _ := testParticipants(t, 1, 2)

	envelopes, err := EncryptForParticipants("secret", 1, participants)
	if err != nil {
		t.Fatalf("EncryptForParticipants failed: %v", err)
	}

	other, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity failed: %v", err)
	}
	if _, err := OpenEnvelope(other, envelopes[0]); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed for wrong identity, got %v", err)
	}
}
