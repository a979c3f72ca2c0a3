package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/post-kserks/messenger-client/models"
)

func TestEnsureIdentityGeneratesAndReloads(t *testing.T) {
	dir := t.TempDir()
	privatePath := filepath.Join(dir, "box_private.pem")
	publicPath := filepath.Join(dir, "box_public.pem")

	first, err := EnsureIdentity(privatePath, publicPath)
	if err != nil {
		t.Fatalf("first EnsureIdentity failed: %v", err)
	}
	if first.PublicKeyBase64() == "" {
		t.Fatalf("expected non-empty public key")
	}

	info, err := os.Stat(privatePath)
	if err != nil {
		t.Fatalf("private key file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected private key mode 0600, got %o", perm)
	}

	second, err := EnsureIdentity(privatePath, publicPath)
	if err != nil {
		t.Fatalf("second EnsureIdentity failed: %v", err)
	}
	if second.PublicKeyBase64() != first.PublicKeyBase64() {
		t.Fatalf("expected stable identity across loads, got %q then %q",
			first.PublicKeyBase64(), second.PublicKeyBase64())
	}
}

func TestEnsureIdentityRewritesMismatchedPublicKey(t *testing.T) {
	dir := t.TempDir()
	privatePath := filepath.Join(dir, "box_private.pem")
	publicPath := filepath.Join(dir, "box_public.pem")

	original, err := EnsureIdentity(privatePath, publicPath)
	if err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}

	// Corrupt the stored public key; a reload must restore it from the
	// private key.
	if err := os.WriteFile(publicPath, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupt public key file: %v", err)
	}

	reloaded, err := EnsureIdentity(privatePath, publicPath)
	if err != nil {
		t.Fatalf("EnsureIdentity after corruption failed: %v", err)
	}
	if reloaded.PublicKeyBase64() != original.PublicKeyBase64() {
		t.Fatalf("expected identity unchanged after public key repair")
	}

	restored, err := loadBoxPublicKey(publicPath)
	if err != nil {
		t.Fatalf("restored public key unreadable: %v", err)
	}
	if *restored != *original.PublicKey {
		t.Fatalf("restored public key does not match private key")
	}
}

func TestIdentityRoundTripAfterReload(t *testing.T) {
	dir := t.TempDir()
	privatePath := filepath.Join(dir, "box_private.pem")
	publicPath := filepath.Join(dir, "box_public.pem")

	identity, err := EnsureIdentity(privatePath, publicPath)
	if err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}

	// Encrypt against the persisted identity, reload it, then decrypt.
	envelopes, err := EncryptForParticipants("durable", 1, []models.ParticipantKey{{UserID: 2, PublicKey: identity.PublicKeyBase64()}})
	if err != nil {
		t.Fatalf("EncryptForParticipants failed: %v", err)
	}

	reloaded, err := LoadIdentity(privatePath)
	if err != nil {
		t.Fatalf("LoadIdentity failed: %v", err)
	}
	plaintext, err := OpenEnvelope(reloaded, envelopes[0])
	if err != nil {
		t.Fatalf("OpenEnvelope failed: %v", err)
	}
	if plaintext != "durable" {
		t.Fatalf("unexpected plaintext %q", plaintext)
	}
}

func TestFingerprintStableAndShort(t *testing.T) {
	identity, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity failed: %v", err)
	}

	fp := identity.Fingerprint()
	if len(fp) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(fp))
	}
	if identity.Fingerprint() != fp {
		t.Fatalf("expected deterministic fingerprint")
	}
}
