package core

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
)

// PrivacyParams bundles the analytic Gaussian mechanism's inputs (spec
// §4.1 step 3): clip norm C, privacy budget (epsilon, delta).
type PrivacyParams struct {
	Epsilon  float64
	Delta    float64
	ClipNorm float64
}

// GaussianSigma returns the noise multiplier for (epsilon,delta)-DP under
// the analytic Gaussian mechanism: σ = √(2·ln(1.25/δ))·C/ε.
func GaussianSigma(p PrivacyParams) (float64, error) {
	if p.Epsilon <= 0 || p.Delta <= 0 || p.Delta >= 1 {
		return 0, fmt.Errorf("dp: invalid privacy params epsilon=%v delta=%v", p.Epsilon, p.Delta)
	}
	return math.Sqrt(2*math.Log(1.25/p.Delta)) * p.ClipNorm / p.Epsilon, nil
}

// ApplyDifferentialPrivacy clips each layer to p.ClipNorm then adds
// Gaussian noise with the calibrated sigma, mirroring
// add_differential_privacy in the reference prototype.
func ApplyDifferentialPrivacy(w WeightVector, p PrivacyParams) (WeightVector, error) {
	sigma, err := GaussianSigma(p)
	if err != nil {
		return WeightVector{}, err
	}
	clipped := w.ClipL2(p.ClipNorm)
	for i, layer := range clipped.Layers {
		for j := range layer {
			noise, err := sampleGaussian(0, sigma)
			if err != nil {
				return WeightVector{}, err
			}
			clipped.Layers[i][j] += noise
		}
	}
	return clipped, nil
}

// sampleGaussian draws one N(mean, sigma^2) sample using the Box-Muller
// transform seeded from crypto/rand, so noise calibration cannot be
// predicted or replayed by an observer of the process's PRNG state.
func sampleGaussian(mean, sigma float64) (float64, error) {
	u1, err := randUnitFloat()
	if err != nil {
		return 0, err
	}
	u2, err := randUnitFloat()
	if err != nil {
		return 0, err
	}
	// avoid log(0)
	if u1 < 1e-300 {
		u1 = 1e-300
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + sigma*z, nil
}

// randUnitFloat returns a uniform float64 in [0,1) derived from 8
// cryptographically random bytes.
func randUnitFloat() (float64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("dp: rng: %w", err)
	}
	v := binary.BigEndian.Uint64(buf[:]) >> 11 // 53 significant bits
	return float64(v) / float64(1<<53), nil
}
