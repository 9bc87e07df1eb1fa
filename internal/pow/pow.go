// Package pow implements the card-unlock proof-of-work: find the
// smallest little-endian 16-byte nonce such that
// SHA256(card_nonce || nonce) is lexicographically at or under a
// 16-byte target the card supplies, polling the event bus between
// attempts so a P0 can abort the search.
package pow

import (
	"crypto/sha256"
	"math/big"

	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/eventbus"
)

// Size is the fixed width, in bytes, of card_nonce, target, and the
// solution nonce.
const Size = 16

// pollInterval bounds how many hashes run between event-bus polls, so
// the search stays interruptible without paying a bus-read cost per
// hash.
const pollInterval = 4096

// Solve searches little-endian nonces starting at zero and returns the
// first one whose digest is <= target. bus is polled for a P0 event
// every pollInterval iterations; a P0 aborts the search and returns a
// KindP0Abort error, discarding the partial work.
func Solve(bus *eventbus.Bus, cardNonce, target [Size]byte) ([Size]byte, error) {
	if target == ([Size]byte{}) {
		return [Size]byte{}, corestatus.New(corestatus.KindWalletInvariant,
			"pow: target must not be all-zero, no digest can satisfy it")
	}

	targetBig := new(big.Int).SetBytes(target[:])

	var nonce [Size]byte
	preimage := make([]byte, 0, 2*Size)

	for {
		for i := 0; i < pollInterval; i++ {
			preimage = preimage[:0]
			preimage = append(preimage, cardNonce[:]...)
			preimage = append(preimage, nonce[:]...)
			digest := sha256.Sum256(preimage)

			// Only the first Size bytes of the digest are compared
			// against the target: the check is over a 16-byte target,
			// not the full 32-byte SHA-256 output.
			if new(big.Int).SetBytes(digest[:Size]).Cmp(targetBig) <= 0 {
				return nonce, nil
			}

			if !incrementLE(&nonce) {
				return nonce, corestatus.New(corestatus.KindWalletInvariant,
					"pow: nonce space exhausted without a solution")
			}
		}

		if ev, ok := pollAbort(bus); ok {
			return [Size]byte{}, corestatus.New(corestatus.KindP0Abort,
				"pow: aborted by "+ev.Kind.String())
		}
	}
}

// pollAbort does a non-blocking check for a pending P0 event without
// consuming UI/USB/NFC traffic, so the search only reacts to abort
// conditions and never starves other classes of their own events.
func pollAbort(bus *eventbus.Bus) (eventbus.P0Event, bool) {
	if bus == nil {
		return eventbus.P0Event{}, false
	}
	return bus.PeekP0()
}

// incrementLE adds one to nonce treated as a little-endian integer,
// reporting false on overflow (the 2^128 nonce space is exhausted).
func incrementLE(nonce *[Size]byte) bool {
	for i := 0; i < Size; i++ {
		nonce[i]++
		if nonce[i] != 0 {
			return true
		}
	}
	return false
}
