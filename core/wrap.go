package core

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// WrappedModel is the TA's policy-wrapped global model envelope,
// standing in for pairing-based CP-ABE per this module's explicit
// non-goal ("Actual pairing-based CP-ABE... is modeled abstractly"):
// a single symmetric key is derived once per round and sealed with
// ChaCha20-Poly1305; eligibility is enforced at the PolicyExpr layer
// before the key is ever handed out, not by the ciphertext itself.
type WrappedModel struct {
	Round      RoundId `json:"round"`
	Nonce      []byte  `json:"nonce"`
	Ciphertext []byte  `json:"ciphertext"`
}

// WrapGlobalModel encrypts an encoded global model under key (32 bytes)
// for distribution (spec §4.5 "wraps the weights under an access
// policy"). The caller is responsible for handing key only to
// facilities the policy admits.
func WrapGlobalModel(round RoundId, key []byte, plaintext []byte) (WrappedModel, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return WrappedModel{}, fmt.Errorf("wrap global model: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return WrappedModel{}, fmt.Errorf("wrap global model: nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, roundAAD(round))
	return WrappedModel{Round: round, Nonce: nonce, Ciphertext: ct}, nil
}

// UnwrapGlobalModel decrypts a WrappedModel with key, returning the
// encoded global model bytes. A facility without the round's key
// cannot open the envelope, whatever its network access.
func UnwrapGlobalModel(w WrappedModel, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("unwrap global model: %w", err)
	}
	pt, err := aead.Open(nil, w.Nonce, w.Ciphertext, roundAAD(w.Round))
	if err != nil {
		return nil, fmt.Errorf("unwrap global model: %w", ErrIntegrityFailure)
	}
	return pt, nil
}

// GenerateRoundKey derives a fresh random 32-byte key for wrapping one
// round's global model.
func GenerateRoundKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate round key: %w", err)
	}
	return key, nil
}

func roundAAD(round RoundId) []byte {
	return []byte(fmt.Sprintf("round:%d", round))
}
