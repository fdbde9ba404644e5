package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SharePayloadKind discriminates the tagged variant described in spec §9
// ("Dynamic-typed share payloads"): the prototype mixes dict keys
// (data_fragment, is_real_sss, base64 vs bytes) for what is really one of
// two shapes. Validators refuse unknown variants.
type SharePayloadKind string

const (
	// PayloadShamirReal carries one evaluation point per secret byte,
	// recoverable via (k,n) Lagrange interpolation.
	PayloadShamirReal SharePayloadKind = "shamir_real"
	// PayloadPlain carries the raw bytes directly with no splitting.
	// Nothing in this module produces it; validators accept it as a
	// known kind and fog nodes skip it at reconstruction.
	PayloadPlain SharePayloadKind = "plain"
)

// SharePayload is the tagged variant of data a Share carries. Values
// holds GF(257) field elements (0..256) for PayloadShamirReal, or raw
// byte values (0..255) widened into the same slice for PayloadPlain;
// either way the element width must exceed a byte so a real Shamir
// evaluation of exactly 256 survives the wire unchanged.
type SharePayload struct {
	Kind   SharePayloadKind `json:"kind"`
	X      int              `json:"x,omitempty"`
	Values []uint16         `json:"values"`
}

// Share is one facility's signed (k,n) secret share, addressed to a
// single fog node by ShareID (spec §3 Share).
type Share struct {
	ShareID      int          `json:"share_id"`
	FacilityID   int          `json:"facility_id"`
	Round        RoundId      `json:"round"`
	Threshold    int          `json:"threshold"`
	Total        int          `json:"total"`
	Payload      SharePayload `json:"payload"`
	ShareUID     string       `json:"share_uid"`
	Signature    string       `json:"signature"`
	IssuerPub    string       `json:"issuer_pubkey"`
	CommitteeSig string       `json:"committee_signature,omitempty"`
}

// ComputeShareUID derives a deterministic identifier so independent
// validators vote on identical identifiers (spec §3:
// "share_uid = H(facility_id ∥ share_id ∥ round ∥ payload)").
func ComputeShareUID(facilityID, shareID int, round RoundId, payload SharePayload) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("share uid: %w", err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%d|", facilityID, shareID, round)
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}
