package core

// Byte-wise (k,n) Shamir secret sharing over GF(257). Ported from the
// reference prototype's ShamirSecretSharing (polynomial interpolation,
// prime=257 so every byte value 0..255 is a valid field element). Each
// share carries one evaluation point per secret byte, all sharing the
// same x-coordinate (the share's 1-based index).

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const shamirPrime = 257

// ShamirShare is one participant's (threshold,n) share of a byte string:
// the evaluation y_i = f(x) for every byte-position polynomial f, all at
// the same x. Ys holds field elements of GF(shamirPrime) = 0..256, one
// value wider than a byte, so it cannot be a []byte: the field's top
// element (256) is a valid, reachable evaluation result and must not be
// truncated into it.
type ShamirShare struct {
	X  int      `json:"x"`
	Ys []uint16 `json:"ys"`
}

// ShamirSplit splits secret into n shares recoverable from any k of them.
func ShamirSplit(secret []byte, k, n int) ([]ShamirShare, error) {
	if k < 1 || n < 1 || k > n {
		return nil, fmt.Errorf("shamir: invalid threshold k=%d n=%d", k, n)
	}
	shares := make([]ShamirShare, n)
	for i := 0; i < n; i++ {
		shares[i] = ShamirShare{X: i + 1, Ys: make([]uint16, len(secret))}
	}
	coeffs := make([]int, k)
	for byteIdx, b := range secret {
		coeffs[0] = int(b)
		for d := 1; d < k; d++ {
			r, err := rand.Int(rand.Reader, big.NewInt(shamirPrime))
			if err != nil {
				return nil, fmt.Errorf("shamir: rng: %w", err)
			}
			coeffs[d] = int(r.Int64())
		}
		for i := 0; i < n; i++ {
			x := i + 1
			shares[i].Ys[byteIdx] = uint16(polyEval(coeffs, x))
		}
	}
	return shares, nil
}

// polyEval evaluates a polynomial (constant term first) at x mod shamirPrime
// using Horner's method, mirroring _polynomial_eval in the Python prototype.
func polyEval(coeffs []int, x int) int {
	result := 0
	for d := len(coeffs) - 1; d >= 0; d-- {
		result = mod(result*x+coeffs[d], shamirPrime)
	}
	return result
}

func mod(a, m int) int {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// modInverse computes the modular multiplicative inverse of a mod m via the
// extended Euclidean algorithm, mirroring _mod_inverse.
func modInverse(a, m int) (int, error) {
	g, x, _ := extendedGCD(mod(a, m), m)
	if g != 1 {
		return 0, fmt.Errorf("shamir: modular inverse does not exist for %d mod %d", a, m)
	}
	return mod(x, m), nil
}

func extendedGCD(a, b int) (gcd, x, y int) {
	if a == 0 {
		return b, 0, 1
	}
	g, x1, y1 := extendedGCD(b%a, a)
	return g, y1 - (b/a)*x1, x1
}

// ShamirReconstruct recovers the original secret from at least k shares via
// Lagrange interpolation at x=0, mirroring reconstruct_secret.
func ShamirReconstruct(shares []ShamirShare, k int) ([]byte, error) {
	if len(shares) < k {
		return nil, fmt.Errorf("shamir: need at least %d shares, got %d", k, len(shares))
	}
	subset := shares[:k]
	n := len(subset[0].Ys)
	for _, s := range subset {
		if len(s.Ys) != n {
			return nil, fmt.Errorf("shamir: mismatched share lengths")
		}
	}
	secret := make([]byte, n)
	for byteIdx := 0; byteIdx < n; byteIdx++ {
		pts := make([][2]int, len(subset))
		for i, s := range subset {
			pts[i] = [2]int{s.X, int(s.Ys[byteIdx])}
		}
		// y is the reconstructed constant term, which is always an
		// original secret byte (0..255): the 257th field element is
		// only ever an intermediate share value, never a coefficient.
		y, err := lagrangeInterpolateZero(pts)
		if err != nil {
			return nil, err
		}
		secret[byteIdx] = byte(y)
	}
	return secret, nil
}

// lagrangeInterpolateZero evaluates the unique degree-(len(pts)-1) polynomial
// through pts at x=0, mirroring _lagrange_interpolation(shares, x=0).
func lagrangeInterpolateZero(pts [][2]int) (int, error) {
	result := 0
	for i, pi := range pts {
		numerator, denominator := 1, 1
		for j, pj := range pts {
			if i == j {
				continue
			}
			numerator = mod(numerator*(0-pj[0]), shamirPrime)
			denominator = mod(denominator*(pi[0]-pj[0]), shamirPrime)
		}
		denomInv, err := modInverse(denominator, shamirPrime)
		if err != nil {
			return 0, err
		}
		basis := mod(numerator*denomInv, shamirPrime)
		result = mod(result+pi[1]*basis, shamirPrime)
	}
	return result, nil
}
