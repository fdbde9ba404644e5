package core

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/saicha124/hierfed/pkg/utils"
)

// LocalTrainer is the opaque per-facility training step (spec §1/§4.1:
// "Invoke LocalTrainer.fit(local_data, epochs, batch_size) — opaque").
// Implementations own the dataset and model framework; this package
// never inspects either.
type LocalTrainer interface {
	Fit(current WeightVector, epochs, batchSize int) (WeightVector, error)
}

// LocalTrainerFunc adapts a function to LocalTrainer.
type LocalTrainerFunc func(current WeightVector, epochs, batchSize int) (WeightVector, error)

// Fit implements LocalTrainer.
func (f LocalTrainerFunc) Fit(current WeightVector, epochs, batchSize int) (WeightVector, error) {
	return f(current, epochs, batchSize)
}

// FacilityState is one facility's per-round state machine (spec §4.1).
type FacilityState struct {
	FacilityID int
	Keys       KeyPair
	Trainer    LocalTrainer
	Privacy    PrivacyParams
	ShamirK    int
	ShamirN    int
	Epochs     int
	BatchSize  int

	Client        *http.Client
	Retry         RetryConfig
	ValidatorURLs []string // index i is validator i's base URL

	Rounds        RoundCounter
	mu            sync.Mutex
	current       WeightVector
	uploadBytes   uint64
	downloadBytes uint64

	attributeKey string
}

// NewFacilityState constructs a facility with deterministically seeded
// initial weights (spec §4.1 step 1: "else use initial weights
// (deterministically seeded, identical across facilities)").
func NewFacilityState(facilityID int, keys KeyPair, trainer LocalTrainer, privacy PrivacyParams, shamirK, shamirN int, layerShapes []int) *FacilityState {
	return &FacilityState{
		FacilityID: facilityID,
		Keys:       keys,
		Trainer:    trainer,
		Privacy:    privacy,
		ShamirK:    shamirK,
		ShamirN:    shamirN,
		Epochs:     1,
		BatchSize:  32,
		Client:     &http.Client{},
		Retry:      RetryConfig{MaxAttempts: 5, BaseDelay: 0},
		current:    seedInitialWeights(layerShapes),
	}
}

// seedInitialWeights produces identical all-zero weights across every
// facility, standing in for a shared fixed random seed: any
// deterministic function of layerShapes alone satisfies spec §4.1's
// "identical across facilities" requirement.
func seedInitialWeights(layerShapes []int) WeightVector {
	layers := make([][]float64, len(layerShapes))
	for i, n := range layerShapes {
		layers[i] = make([]float64, n)
	}
	return WeightVector{Layers: layers}
}

// UploadBytes returns the cumulative bytes sent to validators so far.
func (f *FacilityState) UploadBytes() uint64 { return atomic.LoadUint64(&f.uploadBytes) }

// DownloadBytes returns the cumulative bytes received from the TA so far.
func (f *FacilityState) DownloadBytes() uint64 { return atomic.LoadUint64(&f.downloadBytes) }

// buildShare computes the issuer-signed share destined for validator i.
func (f *FacilityState) buildShare(round RoundId, shareID int, x int, ys []uint16) (Share, error) {
	payload := SharePayload{Kind: PayloadShamirReal, X: x, Values: ys}
	shareUID, err := ComputeShareUID(f.FacilityID, shareID, round, payload)
	if err != nil {
		return Share{}, err
	}
	sh := Share{
		ShareID:    shareID,
		FacilityID: f.FacilityID,
		Round:      round,
		Threshold:  f.ShamirK,
		Total:      f.ShamirN,
		Payload:    payload,
		ShareUID:   shareUID,
		IssuerPub:  fmt.Sprintf("%x", []byte(f.Keys.Public)),
	}
	sig, err := SignPayload(f.Keys, sh)
	if err != nil {
		return Share{}, err
	}
	sh.Signature = sig
	return sh, nil
}

// StartRound runs one full facility round: install global weights (if
// any), train, clip+noise, serialize, split, sign and POST one share
// per validator (spec §4.1 "Algorithm per round").
func (f *FacilityState) StartRound(ctx context.Context, round RoundId, previousGlobal *WeightVector, postShare func(ctx context.Context, validatorIdx int, sh Share) error) error {
	if err := f.Rounds.Check(round); err != nil {
		return err
	}
	roundCtx, err := f.Rounds.Begin(ctx, round, 0)
	if err != nil {
		return err
	}
	if roundCtx == nil {
		roundCtx = ctx
	}

	f.mu.Lock()
	if previousGlobal != nil {
		f.current = previousGlobal.Clone()
	}
	base := f.current
	f.mu.Unlock()

	trained, err := f.Trainer.Fit(base, f.Epochs, f.BatchSize)
	if err != nil {
		return utils.Wrap(err, "local training")
	}

	noised, err := ApplyDifferentialPrivacy(trained, f.Privacy)
	if err != nil {
		return utils.Wrap(err, "apply differential privacy")
	}

	encoded, err := EncodeWeightVector(noised)
	if err != nil {
		return utils.Wrap(err, "serialize weights")
	}

	shares, err := ShamirSplit(encoded, f.ShamirK, f.ShamirN)
	if err != nil {
		return utils.Wrap(err, "split weights")
	}

	var lastErr error
	for i, share := range shares {
		shareID := i + 1
		sh, err := f.buildShare(round, shareID, share.X, share.Ys)
		if err != nil {
			lastErr = err
			continue
		}
		validatorIdx := (shareID - 1) % len(f.ValidatorURLs)
		if postShare != nil {
			if err := postShare(roundCtx, validatorIdx, sh); err != nil {
				log.WithFields(log.Fields{
					"facility_id": f.FacilityID,
					"share_id":    shareID,
					"validator":   validatorIdx,
				}).Warnf("share delivery failed: %v", err)
				lastErr = err
				continue
			}
		}
		atomic.AddUint64(&f.uploadBytes, uint64(len(sh.Payload.Values)))
	}

	f.mu.Lock()
	f.current = noised
	f.mu.Unlock()

	f.Rounds.Advance(round)
	log.WithFields(log.Fields{"facility_id": f.FacilityID, "round": round}).Info("round complete")
	// A failed POST to one validator does not halt the round (spec
	// §4.1 Failure semantics); lastErr is surfaced for observability
	// only.
	_ = lastErr
	return nil
}

// ReceiveGlobal decrypts and installs a new wrapped global model (spec
// §4.1 contract: ReceiveGlobal(wrapped_model)).
func (f *FacilityState) ReceiveGlobal(round RoundId, wrapped WrappedModel, key []byte) error {
	if err := f.Rounds.Check(round); err != nil {
		return err
	}
	plaintext, err := UnwrapGlobalModel(wrapped, key)
	if err != nil {
		return err
	}
	w, err := DecodeWeightVector(plaintext)
	if err != nil {
		return utils.Wrap(err, "decode global model")
	}
	atomic.AddUint64(&f.downloadBytes, uint64(len(plaintext)))
	f.mu.Lock()
	f.current = w
	f.mu.Unlock()
	return nil
}

// RegistrationChallenge returns the PoW challenge input for this
// facility (spec §4.1 "Registration": H(nonce ∥ facility_id ∥ pubkey)).
func (f *FacilityState) RegistrationChallenge() string {
	return FacilityPoWChallenge(f.FacilityID, f.Keys.Public)
}

// RegistrationPublicKeyHex hex-encodes the facility's public key for
// inclusion in a registration request.
func (f *FacilityState) RegistrationPublicKeyHex() string {
	return fmt.Sprintf("%x", []byte(f.Keys.Public))
}

// PublicKey returns the facility's Ed25519 public key.
func (f *FacilityState) PublicKey() ed25519.PublicKey { return f.Keys.Public }

// SetAttributeKey stores the attribute key issued by the TA on
// successful registration (spec §4.1: "Accept returned attribute key").
func (f *FacilityState) SetAttributeKey(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attributeKey = key
}

// AttributeKey returns the attribute key issued by the TA, if any.
func (f *FacilityState) AttributeKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attributeKey
}
