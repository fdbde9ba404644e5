// Package core implements the hierarchical federated aggregation
// pipeline: facility, validator committee, fog node, leader and trusted
// authority roles, plus the secret-sharing, differential-privacy and
// signing primitives they share.
package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// KeyPair is an Ed25519 signing identity, generated once at role
// startup and held read-only thereafter (spec §5 Shared-resource
// policy).
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 identity.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// canonicalize marshals v to JSON with sorted map keys, matching the
// prototype's json.dumps(data, sort_keys=True) so independent parties
// compute the same bytes over the same logical payload.
func canonicalize(v interface{}) ([]byte, error) {
	// encoding/json already sorts map keys and emits struct fields in
	// declaration order deterministically, giving the same canonical
	// property the prototype gets from sort_keys=True.
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return b, nil
}

// SignPayload signs the canonical JSON encoding of v with kp's private
// key, returning a hex-encoded signature (spec §6: "Signatures are
// hex-encoded over the canonical serialization of the signed object").
func SignPayload(kp KeyPair, v interface{}) (string, error) {
	b, err := canonicalize(v)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(kp.Private, b)
	return hex.EncodeToString(sig), nil
}

// VerifyPayload verifies a hex-encoded signature over v's canonical JSON
// encoding against pub.
func VerifyPayload(pub ed25519.PublicKey, v interface{}, sigHex string) bool {
	b, err := canonicalize(v)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, b, sig)
}
