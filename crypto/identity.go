package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const (
	// PublicKeySize is the Curve25519 public key length in bytes.
	PublicKeySize = 32
	// PrivateKeySize is the Curve25519 private key length in bytes.
	PrivateKeySize = 32
	// NonceSize is the NaCl box nonce length in bytes.
	NonceSize = 24
)

const (
	boxPrivatePEMType = "CURVE25519 PRIVATE KEY"
	boxPublicPEMType  = "CURVE25519 PUBLIC KEY"
)

// Identity is the local NaCl box key pair used to open inbound envelopes.
type Identity struct {
	PublicKey  *[PublicKeySize]byte
	PrivateKey *[PrivateKeySize]byte
}

// GenerateIdentity creates a fresh box key pair.
func GenerateIdentity() (*Identity, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate box keypair: %w", err)
	}
	return &Identity{PublicKey: publicKey, PrivateKey: privateKey}, nil
}

// EnsureIdentity loads the identity key pair from disk, generating and
// persisting it on first run. Reusing the stored pair keeps previously sent
// ciphertext decryptable across logins.
func EnsureIdentity(privatePath, publicPath string) (*Identity, error) {
	identity, err := LoadIdentity(privatePath)
	if err == nil {
		storedPublic, pubErr := loadBoxPublicKey(publicPath)
		if pubErr != nil || *storedPublic != *identity.PublicKey {
			if err := saveBoxPublicKey(publicPath, identity.PublicKey); err != nil {
				return nil, err
			}
		}
		return identity, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	identity, err = GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := SaveIdentity(privatePath, publicPath, identity); err != nil {
		return nil, err
	}

	return identity, nil
}

// LoadIdentity reads the private key PEM and derives the public key.
func LoadIdentity(privatePath string) (*Identity, error) {
	raw, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("read box private key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode box private PEM: no PEM block")
	}
	if block.Type != boxPrivatePEMType {
		return nil, fmt.Errorf("decode box private PEM: unexpected type %q", block.Type)
	}
	if len(block.Bytes) != PrivateKeySize {
		return nil, fmt.Errorf("decode box private PEM: invalid key size %d", len(block.Bytes))
	}

	var privateKey [PrivateKeySize]byte
	copy(privateKey[:], block.Bytes)

	publicKey, err := publicKeyFromPrivate(&privateKey)
	if err != nil {
		return nil, err
	}

	return &Identity{PublicKey: publicKey, PrivateKey: &privateKey}, nil
}

// SaveIdentity writes the key pair PEM files, the private one with 0600.
func SaveIdentity(privatePath, publicPath string, identity *Identity) error {
	if identity == nil || identity.PrivateKey == nil || identity.PublicKey == nil {
		return ErrMissingIdentity
	}

	block := &pem.Block{
		Type:  boxPrivatePEMType,
		Bytes: identity.PrivateKey[:],
	}
	if err := os.WriteFile(privatePath, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write box private key: %w", err)
	}

	return saveBoxPublicKey(publicPath, identity.PublicKey)
}

// PublicKeyBase64 returns the public key in the wire encoding.
func (id *Identity) PublicKeyBase64() string {
	if id == nil || id.PublicKey == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(id.PublicKey[:])
}

// Fingerprint returns the truncated SHA-256 hex fingerprint of the public key.
func (id *Identity) Fingerprint() string {
	if id == nil || id.PublicKey == nil {
		return ""
	}
	sum := sha256.Sum256(id.PublicKey[:])
	return hex.EncodeToString(sum[:16])
}

func loadBoxPublicKey(path string) (*[PublicKeySize]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read box public key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("decode box public PEM: no PEM block")
	}
	if block.Type != boxPublicPEMType {
		return nil, fmt.Errorf("decode box public PEM: unexpected type %q", block.Type)
	}
	if len(block.Bytes) != PublicKeySize {
		return nil, fmt.Errorf("decode box public PEM: invalid key size %d", len(block.Bytes))
	}

	var publicKey [PublicKeySize]byte
	copy(publicKey[:], block.Bytes)
	return &publicKey, nil
}

func saveBoxPublicKey(path string, publicKey *[PublicKeySize]byte) error {
	block := &pem.Block{
		Type:  boxPublicPEMType,
		Bytes: publicKey[:],
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o644); err != nil {
		return fmt.Errorf("write box public key: %w", err)
	}
	return nil
}

func publicKeyFromPrivate(privateKey *[PrivateKeySize]byte) (*[PublicKeySize]byte, error) {
	raw, err := curve25519.X25519(privateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive box public key: %w", err)
	}

	var publicKey [PublicKeySize]byte
	copy(publicKey[:], raw)
	return &publicKey, nil
}
