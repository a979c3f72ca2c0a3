package models

// Envelope is one recipient-specific ciphertext package derived from a
// single plaintext message. Binary fields are base64 encoded on the wire.
type Envelope struct {
	UserID             int    `json:"user_id"`
	EncryptedData      string `json:"encrypted_data"`
	Nonce              string `json:"nonce"`
	EphemeralPublicKey string `json:"ephemeral_public_key"`
}

// ParticipantKey maps a chat member to their current public key.
type ParticipantKey struct {
	UserID    int    `json:"user_id"`
	PublicKey string `json:"public_key"`
	Username  string `json:"username,omitempty"`
}
