package core

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// FacilityPoWChallenge builds the data string facilities, validators,
// and the TA all hash against for registration PoW (spec §4.1
// "Registration": "H(nonce ∥ facility_id ∥ pubkey)"). The nonce is
// folded in by SolvePoW/VerifyPoW; this is the "facility_id ∥ pubkey"
// half shared by every party that checks the proof.
func FacilityPoWChallenge(facilityID int, pub ed25519.PublicKey) string {
	return fmt.Sprintf("%d|%x", facilityID, []byte(pub))
}

// PoWSolution is the nonce/hash pair a facility submits to prove it
// spent the configured work to register (spec §4.1 "Registration").
type PoWSolution struct {
	Nonce uint64 `json:"nonce"`
	Hash  string `json:"hash"`
}

// powTarget returns 2^(256-difficulty), the threshold a solution's hash
// must fall below.
func powTarget(difficulty uint) *big.Int {
	target := new(big.Int).Lsh(big.NewInt(1), 256-difficulty)
	return target
}

func powChallengeInput(nonce uint64, data string) []byte {
	return []byte(fmt.Sprintf("%d||%s", nonce, data))
}

// SolvePoW searches for a nonce such that H(nonce || data) < 2^(256-d),
// mirroring ProductionProofOfWork.solve_challenge / solve_proof_of_work.
// progress, if non-nil, is invoked every reportEvery attempts so a
// long-running solve can surface liveness the way the prototype logs
// every 10,000 attempts.
func SolvePoW(ctx context.Context, data string, difficulty uint, reportEvery uint64, progress func(attempts uint64)) (PoWSolution, error) {
	target := powTarget(difficulty)
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return PoWSolution{}, fmt.Errorf("pow: %w", ctx.Err())
		default:
		}
		sum := sha256.Sum256(powChallengeInput(nonce, data))
		hashVal := new(big.Int).SetBytes(sum[:])
		if hashVal.Cmp(target) < 0 {
			return PoWSolution{Nonce: nonce, Hash: fmt.Sprintf("%x", sum)}, nil
		}
		if progress != nil && reportEvery > 0 && nonce%reportEvery == 0 && nonce > 0 {
			progress(nonce)
		}
	}
}

// VerifyPoW recomputes H(nonce || data) and checks it both matches sol's
// claimed hash and meets the difficulty target.
func VerifyPoW(data string, sol PoWSolution, difficulty uint) bool {
	sum := sha256.Sum256(powChallengeInput(sol.Nonce, data))
	computed := fmt.Sprintf("%x", sum)
	if computed != sol.Hash {
		return false
	}
	hashVal := new(big.Int).SetBytes(sum[:])
	return hashVal.Cmp(powTarget(difficulty)) < 0
}
