package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/post-kserks/messenger-client/models"
)

var (
	// ErrNoParticipantKeys indicates no recipient keys are cached for a chat.
	ErrNoParticipantKeys = errors.New("crypto: no participant keys for chat")
	// ErrDecryptionFailed indicates ciphertext authentication failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
	// ErrMissingIdentity indicates the local key pair is not loaded.
	ErrMissingIdentity = errors.New("crypto: local identity not loaded")
)

// EncryptedPlaceholder is rendered in place of a message body that could not
// be decrypted. Failure to decrypt never blocks the rest of the timeline.
const EncryptedPlaceholder = "[encrypted message]"

// EncryptForParticipants seals plaintext once per participant other than the
// sender. Every envelope gets its own ephemeral key pair and nonce, so no two
// envelopes share key material even for identical plaintext.
func EncryptForParticipants(plaintext string, senderID int, participants []models.ParticipantKey) ([]models.Envelope, error) {
	envelopes := make([]models.Envelope, 0, len(participants))

	for _, participant := range participants {
		if participant.UserID == senderID {
			continue
		}

		recipientKey, err := decodePublicKey(participant.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", participant.UserID, err)
		}

		ephemeralPublic, ephemeralPrivate, err := box.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral keypair: %w", err)
		}

		var nonce [NonceSize]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return nil, fmt.Errorf("generate nonce: %w", err)
		}

		sealed := box.Seal(nil, []byte(plaintext), &nonce, recipientKey, ephemeralPrivate)
		envelopes = append(envelopes, models.Envelope{
			UserID:             participant.UserID,
			EncryptedData:      base64.StdEncoding.EncodeToString(sealed),
			Nonce:              base64.StdEncoding.EncodeToString(nonce[:]),
			EphemeralPublicKey: base64.StdEncoding.EncodeToString(ephemeralPublic[:]),
		})
	}

	if len(envelopes) == 0 {
		return nil, ErrNoParticipantKeys
	}

	return envelopes, nil
}

// Decrypt opens base64 ciphertext with the local private key and the peer
// public key the ciphertext was sealed against: the envelope's ephemeral key
// for fanned-out messages, or the sender's long-term key otherwise.
func Decrypt(identity *Identity, encryptedData, nonce, peerPublicKey string) (string, error) {
	if identity == nil || identity.PrivateKey == nil {
		return "", ErrMissingIdentity
	}

	peerKey, err := decodePublicKey(peerPublicKey)
	if err != nil {
		return "", err
	}

	nonceBytes, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonceBytes) != NonceSize {
		return "", fmt.Errorf("invalid nonce length: got %d want %d", len(nonceBytes), NonceSize)
	}
	var nonceArr [NonceSize]byte
	copy(nonceArr[:], nonceBytes)

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	plaintext, ok := box.Open(nil, ciphertext, &nonceArr, peerKey, identity.PrivateKey)
	if !ok {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// OpenEnvelope decrypts one recipient envelope with the local identity.
func OpenEnvelope(identity *Identity, envelope models.Envelope) (string, error) {
	return Decrypt(identity, envelope.EncryptedData, envelope.Nonce, envelope.EphemeralPublicKey)
}

func decodePublicKey(encoded string) (*[PublicKeySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != PublicKeySize {
		return nil, fmt.Errorf("invalid public key length: got %d want %d", len(raw), PublicKeySize)
	}

	var key [PublicKeySize]byte
	copy(key[:], raw)
	return &key, nil
}
