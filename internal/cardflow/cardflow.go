// Package cardflow implements the multi-card flows built on top of
// internal/cardops: create-wallet (write + read-back across all
// four cards, with rollback on mismatch), reconstruct (threshold read
// with card exclusion), verify-shares (Shamir recheck against the
// stored wallet-id), and pair (skip-already-paired iteration).
package cardflow

import (
	"bytes"
	"context"

	"github.com/x1vault/core/internal/cardops"
	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/envelope"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/shamir"
)

// allCardsMask accepts any of the four cards.
const allCardsMask = 0b1111

func cardMaskBit(cardNumber uint8) uint8 {
	return 1 << (cardNumber - 1)
}

func envelopeEqual(a, b envelope.Envelope) bool {
	return a.Nonce == b.Nonce && a.Tag == b.Tag &&
		bytes.Equal(a.Ciphertext[:], b.Ciphertext[:])
}

// CreateWallet writes one Shamir share to each of cards 1..4, reads
// each back, and bytewise-compares. On the first mismatch the flow
// aborts: it erases the device share from store and marks the header
// INVALID, then returns the error.
func CreateWallet(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	store *flashstore.Store,
	slotIndex int,
	walletID [32]byte,
	key [32]byte,
	nonceSeed [8]byte,
	shares [shamir.ShareCount]shamir.Share,
) error {
	for x := uint8(1); x <= 4; x++ {
		share := shares[x-1]
		nonce := envelope.DeriveNonce(nonceSeed, share.X)
		env := envelope.Seal(key, nonce, share.Y)

		cfg := cardops.Config{AcceptableCards: cardMaskBit(x)}

		if _, err := cardops.WriteShare(ctx, bus, transport, x, cfg, walletID, env, keystore); err != nil {
			return rollback(store, slotIndex, err)
		}

		readBack, _, err := cardops.FetchShare(ctx, bus, transport, x, cfg, walletID, keystore)
		if err != nil {
			return rollback(store, slotIndex, err)
		}
		if !envelopeEqual(env, readBack) {
			return rollback(store, slotIndex, corestatus.New(corestatus.KindShareCorrupt,
				"cardflow: read-back share does not match what was written"))
		}
	}
	return nil
}

func rollback(store *flashstore.Store, slotIndex int, cause error) error {
	_ = store.SetDeviceShare(slotIndex, flashstore.DeviceShareBlob{})
	_ = store.SetState(slotIndex, flashstore.StateInvalid)
	return cause
}

// Reconstruct reads shamir.Threshold shares from distinct cards chosen
// from acceptableCards, removing each card from the acceptable set
// once it has been read so the same card is never reused, and sets
// SkipCardRemoval on the final read so the caller can proceed
// immediately after the last tap. Every fetched envelope's nonce seed
// is checked against the first before any share is decrypted or fed to
// shamir.Reconstruct: the seed is the same across every share of one
// wallet (envelope.DeriveNonce), so a mismatch means the cards tapped
// don't all belong to the same wallet.
func Reconstruct(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	acceptableCards uint8,
	walletID [32]byte,
	key [32]byte,
) ([shamir.SecretSize]byte, error) {
	type fetchedShare struct {
		cardNumber uint8
		env        envelope.Envelope
	}
	var fetched []fetchedShare

	available := 0
	for n := uint8(1); n <= 4; n++ {
		if acceptableCards&cardMaskBit(n) != 0 {
			available++
		}
	}
	if available < shamir.Threshold {
		return [shamir.SecretSize]byte{}, corestatus.New(corestatus.KindWalletInvariant,
			"cardflow: not enough acceptable cards to reach threshold")
	}

	for i := 0; i < shamir.Threshold; i++ {
		cardNumber := lowestAcceptable(acceptableCards)
		if cardNumber == 0 {
			return [shamir.SecretSize]byte{}, corestatus.New(corestatus.KindWalletInvariant,
				"cardflow: not enough acceptable cards to reach threshold")
		}

		cfg := cardops.Config{
			AcceptableCards: acceptableCards,
			SkipCardRemoval: i == shamir.Threshold-1,
		}

		env, _, err := cardops.FetchShare(ctx, bus, transport, cardNumber, cfg, walletID, keystore)
		if err != nil {
			return [shamir.SecretSize]byte{}, err
		}

		fetched = append(fetched, fetchedShare{cardNumber: cardNumber, env: env})
		acceptableCards &^= cardMaskBit(cardNumber)
	}

	seed := fetched[0].env.Nonce[:8]
	for _, f := range fetched[1:] {
		if !bytes.Equal(f.env.Nonce[:8], seed) {
			return [shamir.SecretSize]byte{}, corestatus.New(corestatus.KindShareCorrupt,
				"cardflow: fetched shares carry mismatched nonce seeds, not all from the same wallet")
		}
	}

	var shares []shamir.Share
	for _, f := range fetched {
		plaintext, err := envelope.Open(key, f.env)
		if err != nil {
			return [shamir.SecretSize]byte{}, err
		}
		shares = append(shares, shamir.Share{X: f.cardNumber, Y: plaintext})
	}

	return shamir.Reconstruct(shares)
}

func lowestAcceptable(mask uint8) uint8 {
	for n := uint8(1); n <= 4; n++ {
		if mask&cardMaskBit(n) != 0 {
			return n
		}
	}
	return 0
}

// VerifyShares reads shares from all four cards plus the device's own
// share, reconstructs the secret via any one 2-combination, recomputes
// the wallet-id from the resulting mnemonic, and marks the wallet
// VALID or INVALID in store depending on whether it matches the stored
// id.
func VerifyShares(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	store *flashstore.Store,
	slotIndex int,
	walletID [32]byte,
	key [32]byte,
	deviceShare shamir.Share,
	mnemonicFromSecret func([shamir.SecretSize]byte) (string, error),
) error {
	shares := []shamir.Share{deviceShare}

	for x := uint8(1); x <= 4; x++ {
		cfg := cardops.Config{AcceptableCards: cardMaskBit(x)}
		env, _, err := cardops.FetchShare(ctx, bus, transport, x, cfg, walletID, keystore)
		if err != nil {
			_ = store.SetState(slotIndex, flashstore.StateInvalid)
			return err
		}
		plaintext, err := envelope.Open(key, env)
		if err != nil {
			_ = store.SetState(slotIndex, flashstore.StateInvalid)
			return err
		}
		shares = append(shares, shamir.Share{X: x, Y: plaintext})
	}

	secret, err := shamir.Reconstruct(shares[:shamir.Threshold])
	if err != nil {
		_ = store.SetState(slotIndex, flashstore.StateInvalid)
		return err
	}

	mnemonic, err := mnemonicFromSecret(secret)
	if err != nil {
		_ = store.SetState(slotIndex, flashstore.StateInvalid)
		return err
	}

	if envelope.WalletID(mnemonic) != walletID {
		_ = store.SetState(slotIndex, flashstore.StateInvalid)
		return corestatus.New(corestatus.KindWalletInvariant,
			"cardflow: reconstructed wallet-id does not match stored id")
	}

	return store.SetState(slotIndex, flashstore.StateValid)
}

// PairResult is the outcome of pairing one card during a Pair flow.
type PairResult struct {
	CardNumber uint8
	Skipped    bool
	Err        error
}

// CardPairer supplies the card's pairing public key and family-ID for
// one card number; already-paired cards are skipped without invoking
// it.
type CardPairer interface {
	FamilyID(cardNumber uint8) ([4]byte, []byte, error)
}

// Pair iterates cards 1..4 in order, skipping any card number already
// recorded in keystore, and pairs the rest. CardsPaired counts
// successful pairings performed during this call.
func Pair(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	pairer CardPairer,
) (cardsPaired int, results []PairResult) {
	for x := uint8(1); x <= 4; x++ {
		if _, already := keystore.Get(x); already {
			results = append(results, PairResult{CardNumber: x, Skipped: true})
			continue
		}
		familyID, pub, err := pairer.FamilyID(x)
		if err != nil {
			results = append(results, PairResult{CardNumber: x, Err: err})
			continue
		}

		cfg := cardops.Config{AcceptableCards: allCardsMask, ExpectedFamilyID: familyID}
		_, err = cardops.Pair(ctx, bus, transport, x, cfg, pub, keystore)
		if err != nil {
			results = append(results, PairResult{CardNumber: x, Err: err})
			continue
		}
		cardsPaired++
		results = append(results, PairResult{CardNumber: x})
	}
	return cardsPaired, results
}
