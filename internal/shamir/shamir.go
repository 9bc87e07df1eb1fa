// Package shamir implements a (2,5) Shamir secret sharing scheme: a
// 32-byte secret is split into five 32-byte
// shares at x-coordinates {1,2,3,4,5} (the four cards plus the
// device), any two of which reconstruct the secret, any one of which
// reveals nothing.
package shamir

import (
	"crypto/rand"
	"fmt"
)

// SecretSize is the fixed width, in bytes, of both the secret and
// every share.
const SecretSize = 32

// Threshold is the minimum number of shares required to reconstruct
//.
const Threshold = 2

// ShareCount is the total number of shares produced by Split: n = 5,
// four cards plus the device.
const ShareCount = 5

// Share is one (x, y) pair of the split: X is the polynomial
// x-coordinate (1..4 for cards, 5 for the device) and Y is the
// corresponding 32-byte share value.
type Share struct {
	X byte
	Y [SecretSize]byte
}

// ErrUnderdetermined is returned by Reconstruct when fewer than
// Threshold shares are supplied.
var ErrUnderdetermined = fmt.Errorf("shamir: at least %d shares are required to reconstruct", Threshold)

// Split divides secret into ShareCount shares at x-coordinates
// 1..ShareCount such that any Threshold of them reconstruct secret and
// any single one reveals nothing about it. Each byte of the secret is
// split independently using a degree-(Threshold-1) polynomial over
// GF(2^8) whose constant term is that byte and whose higher
// coefficients are drawn fresh from crypto/rand.
func Split(secret [SecretSize]byte) ([ShareCount]Share, error) {
	var shares [ShareCount]Share
	for i := 0; i < ShareCount; i++ {
		shares[i].X = byte(i + 1)
	}

	coeffs := make([]byte, Threshold-1)
	for byteIdx := 0; byteIdx < SecretSize; byteIdx++ {
		if _, err := rand.Read(coeffs); err != nil {
			return shares, fmt.Errorf("shamir: reading randomness: %w", err)
		}

		for s := 0; s < ShareCount; s++ {
			x := shares[s].X
			shares[s].Y[byteIdx] = evalPoly(secret[byteIdx], coeffs, x)
		}
	}
	return shares, nil
}

// evalPoly evaluates, at point x, the polynomial whose constant term
// is c0 and whose higher-degree coefficients are coeffs (lowest degree
// first), using Horner's method in GF(2^8).
func evalPoly(c0 byte, coeffs []byte, x byte) byte {
	// Horner's method starting from the highest-degree coefficient.
	result := byte(0)
	if len(coeffs) > 0 {
		result = coeffs[len(coeffs)-1]
		for i := len(coeffs) - 2; i >= 0; i-- {
			result = gfAdd(gfMul(result, x), coeffs[i])
		}
		result = gfAdd(gfMul(result, x), c0)
	} else {
		result = c0
	}
	return result
}

// Reconstruct recovers the original secret from at least Threshold
// shares using Lagrange interpolation at x=0, performed independently
// per byte. Shares must have distinct X values; duplicates are
// ignored after the first occurrence. Fewer than Threshold distinct
// shares yields ErrUnderdetermined.
func Reconstruct(shares []Share) ([SecretSize]byte, error) {
	var secret [SecretSize]byte

	dedup := make(map[byte]Share)
	for _, s := range shares {
		if _, seen := dedup[s.X]; !seen {
			dedup[s.X] = s
		}
	}
	if len(dedup) < Threshold {
		return secret, ErrUnderdetermined
	}

	unique := make([]Share, 0, len(dedup))
	for _, s := range dedup {
		unique = append(unique, s)
	}

	for byteIdx := 0; byteIdx < SecretSize; byteIdx++ {
		secret[byteIdx] = lagrangeAtZero(unique, byteIdx)
	}
	return secret, nil
}

// lagrangeAtZero evaluates, at x=0, the unique degree-(len(pts)-1)
// interpolating polynomial through the given points' byteIdx'th
// y-coordinate.
func lagrangeAtZero(pts []Share, byteIdx int) byte {
	var result byte
	for i, pi := range pts {
		term := pi.Y[byteIdx]
		for j, pj := range pts {
			if i == j {
				continue
			}
			// basis_i(0) factor: (0 - x_j) / (x_i - x_j), and since
			// we're in GF(2^8), subtraction is XOR (same as addition).
			num := pj.X
			den := gfAdd(pi.X, pj.X)
			term = gfMul(term, gfDiv(num, den))
		}
		result = gfAdd(result, term)
	}
	return result
}
