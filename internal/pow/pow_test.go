package pow_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/pow"
)

func TestSolveFindsValidNonce(t *testing.T) {
	var cardNonce [pow.Size]byte
	copy(cardNonce[:], "0123456789abcdef")

	// A generous target (all 0xFF) so the search terminates quickly
	// regardless of which nonce is found first.
	var target [pow.Size]byte
	for i := range target {
		target[i] = 0xFF
	}

	nonce, err := pow.Solve(nil, cardNonce, target)
	require.NoError(t, err)

	digest := sha256.Sum256(append(append([]byte{}, cardNonce[:]...), nonce[:]...))
	require.LessOrEqual(t, compareBytes(digest[:pow.Size], target[:]), 0)
}

func TestSolveIsDeterministic(t *testing.T) {
	var cardNonce [pow.Size]byte
	copy(cardNonce[:], "fedcba9876543210")
	var target [pow.Size]byte
	target[0] = 0x7F
	for i := 1; i < pow.Size; i++ {
		target[i] = 0xFF
	}

	a, err := pow.Solve(nil, cardNonce, target)
	require.NoError(t, err)
	b, err := pow.Solve(nil, cardNonce, target)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestSolveAbortsOnP0(t *testing.T) {
	bus := eventbus.New()
	bus.PostP0(eventbus.P0Event{Kind: eventbus.P0Abort})

	var cardNonce, target [pow.Size]byte
	// A vanishingly small but non-zero target forces the search to keep
	// going until it observes the pending abort.
	target[pow.Size-1] = 0x01
	_, err := pow.Solve(bus, cardNonce, target)
	require.Error(t, err)
}

func TestSolveRejectsAllZeroTarget(t *testing.T) {
	var cardNonce, target [pow.Size]byte
	_, err := pow.Solve(nil, cardNonce, target)
	require.Error(t, err)

	kind, ok := corestatus.KindOf(err)
	require.True(t, ok)
	require.Equal(t, corestatus.KindWalletInvariant, kind)
}

func compareBytes(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
