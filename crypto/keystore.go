package crypto

import (
	"context"
	"fmt"
	"sync"

	"github.com/post-kserks/messenger-client/models"
)

// Directory resolves public keys through the external key directory.
type Directory interface {
	FetchParticipantKeys(ctx context.Context, chatID int) ([]models.ParticipantKey, error)
	FetchPublicKey(ctx context.Context, userID int) (string, error)
	PublishPublicKey(ctx context.Context, userID int, publicKey string) error
}

// KeyStore holds the local identity and a session-scoped cache of participant
// public keys per chat. Cached entries are never invalidated automatically;
// RefreshParticipantKeys must be called to observe membership or key changes.
type KeyStore struct {
	mu        sync.Mutex
	identity  *Identity
	directory Directory
	chats     map[int][]models.ParticipantKey
	users     map[int]string
}

// NewKeyStore creates an empty key store backed by the given directory.
func NewKeyStore(directory Directory) *KeyStore {
	return &KeyStore{
		directory: directory,
		chats:     make(map[int][]models.ParticipantKey),
		users:     make(map[int]string),
	}
}

// SetIdentity installs the local key pair.
func (s *KeyStore) SetIdentity(identity *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
}

// Identity returns the local key pair, or nil when none is loaded.
func (s *KeyStore) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// PublishIdentity uploads the local public key to the directory so other
// participants encrypt against the pair this client can actually open.
func (s *KeyStore) PublishIdentity(ctx context.Context, userID int) error {
	identity := s.Identity()
	if identity == nil {
		return ErrMissingIdentity
	}
	if err := s.directory.PublishPublicKey(ctx, userID, identity.PublicKeyBase64()); err != nil {
		return fmt.Errorf("publish public key: %w", err)
	}
	return nil
}

// ParticipantKeys returns the cached keys for a chat, fetching them on first
// use.
func (s *KeyStore) ParticipantKeys(ctx context.Context, chatID int) ([]models.ParticipantKey, error) {
	s.mu.Lock()
	cached, ok := s.chats[chatID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}
	return s.RefreshParticipantKeys(ctx, chatID)
}

// RefreshParticipantKeys re-fetches and replaces the cached keys for a chat.
func (s *KeyStore) RefreshParticipantKeys(ctx context.Context, chatID int) ([]models.ParticipantKey, error) {
	keys, err := s.directory.FetchParticipantKeys(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("fetch participant keys for chat %d: %w", chatID, err)
	}

	s.mu.Lock()
	s.chats[chatID] = keys
	s.mu.Unlock()
	return keys, nil
}

// CachedParticipantKeys returns the cached keys for a chat without fetching.
func (s *KeyStore) CachedParticipantKeys(chatID int) ([]models.ParticipantKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.chats[chatID]
	return keys, ok
}

// EncryptForChat seals plaintext for every cached participant of the chat
// except the sender. It fails with ErrNoParticipantKeys when nothing is
// cached; the caller decides whether to degrade to a plaintext send.
func (s *KeyStore) EncryptForChat(plaintext string, chatID, senderID int) ([]models.Envelope, error) {
	s.mu.Lock()
	identity := s.identity
	keys, ok := s.chats[chatID]
	s.mu.Unlock()

	if identity == nil {
		return nil, ErrMissingIdentity
	}
	if !ok || len(keys) == 0 {
		return nil, ErrNoParticipantKeys
	}

	return EncryptForParticipants(plaintext, senderID, keys)
}

// SenderPublicKey resolves and caches a single user's long-term public key.
func (s *KeyStore) SenderPublicKey(ctx context.Context, userID int) (string, error) {
	s.mu.Lock()
	cached, ok := s.users[userID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	key, err := s.directory.FetchPublicKey(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetch public key for user %d: %w", userID, err)
	}

	s.mu.Lock()
	s.users[userID] = key
	s.mu.Unlock()
	return key, nil
}
