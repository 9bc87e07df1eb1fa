// Package walletflow implements the end-to-end wallet lifecycle as
// explicit state machines: create, restore-from-seed,
// verify, delete, sync, unlock, and verify-pin. Each flow is a single
// synchronous call — the interactive per-state waiting (collecting a
// name, a PIN, a confirmation tap) is the menu/engine layer's job
// (internal/menu, internal/engine); this package is the hands the
// engine reaches for once an input has actually been collected, the same way
// fundingManager's reservation handlers are one synchronous call per
// message even though the wider funding negotiation spans many.
package walletflow

import (
	"context"
	"crypto/rand"
	"crypto/sha256"

	"github.com/tyler-smith/go-bip39"

	"github.com/x1vault/core/internal/cardflow"
	"github.com/x1vault/core/internal/cardops"
	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/envelope"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/pow"
	"github.com/x1vault/core/internal/shamir"
)

const allCardsMask = 0b1111

const maxNameBytes = 15

// Stage is the terminal (or, for a partially-run flow, last-reached)
// point of a wallet flow.
type Stage int

const (
	StageDone Stage = iota
	StageDoneWithErrors
	StageNeedAllCards
	StageDuplicateName
	StageDuplicateWalletID
	StageInvalidMnemonic
)

// entropyBytes maps a BIP-39 word count to its entropy width.
func entropyBytes(wordCount int) int {
	switch wordCount {
	case 12:
		return 16
	case 18:
		return 24
	case 24:
		return 32
	default:
		return 32
	}
}

func keyFor(pinSet bool, pin []byte) [32]byte {
	if !pinSet {
		return envelope.NoPIN
	}
	return envelope.DeriveKey(pin)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// splitSecret packs entropy, zero-padded to 32 bytes, into the buffer
// Split/Reconstruct operate on; EntropyLen in the stored header records
// how many leading bytes are real.
func splitSecret(entropy []byte) [32]byte {
	var secret [32]byte
	copy(secret[:], entropy)
	return secret
}

func mnemonicFromSecret(entropyLen uint8) func([shamir.SecretSize]byte) (string, error) {
	return func(secret [shamir.SecretSize]byte) (string, error) {
		m, err := bip39.NewMnemonic(secret[:entropyLen])
		if err != nil {
			return "", corestatus.Wrap(corestatus.KindWalletInvariant, err)
		}
		return m, nil
	}
}

// CreateWalletRequest carries every input the interactive states of
// create-new-wallet collect before SEED_GENERATE can run.
type CreateWalletRequest struct {
	Name              string
	PINSet            bool
	PIN               []byte
	PassphraseEnabled bool
	WordCount         int // 12, 18, or 24
	CardsPairedCount  int // precondition: must be 4
}

// CreateWalletResult reports where the flow ended and, on success, the
// mnemonic the device showed the user — the caller must display it
// once and then zero it.
type CreateWalletResult struct {
	Stage     Stage
	SlotIndex int
	WalletID  [32]byte
	Mnemonic  string
}

// CreateWallet runs NAME_INPUT through VERIFY_SHARES: validates the
// name, draws fresh BIP-39 entropy, splits it five ways, writes the
// device share to flash, writes+verifies the four card shares, and
// reports VALID or INVALID depending on whether the verify-shares
// readback matches.
func CreateWallet(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	store *flashstore.Store,
	req CreateWalletRequest,
) (CreateWalletResult, error) {
	if req.CardsPairedCount < 4 {
		return CreateWalletResult{Stage: StageNeedAllCards}, nil
	}
	if len(req.Name) > maxNameBytes {
		return CreateWalletResult{Stage: StageDuplicateName},
			corestatus.New(corestatus.KindWalletInvariant, "walletflow: wallet name exceeds 15 bytes")
	}
	if _, _, found := store.GetByName(req.Name); found {
		return CreateWalletResult{Stage: StageDuplicateName}, nil
	}

	entropyLen := entropyBytes(req.WordCount)
	entropy, err := bip39.NewEntropy(entropyLen * 8)
	if err != nil {
		return CreateWalletResult{}, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}
	defer zero(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return CreateWalletResult{}, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}

	walletID := envelope.WalletID(mnemonic)
	key := keyFor(req.PINSet, req.PIN)
	secret := splitSecret(entropy)

	shares, err := shamir.Split(secret)
	if err != nil {
		return CreateWalletResult{}, err
	}

	var nonceSeed [8]byte
	if _, err := rand.Read(nonceSeed[:]); err != nil {
		return CreateWalletResult{}, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}

	deviceShare := shares[4]
	deviceNonce := envelope.DeriveNonce(nonceSeed, deviceShare.X)
	deviceEnv := envelope.Seal(key, deviceNonce, deviceShare.Y)

	idx, err := store.AddWallet(flashstore.WalletHeader{
		WalletID:   walletID,
		Name:       req.Name,
		State:      flashstore.StateUnverifiedValid,
		EntropyLen: uint8(entropyLen),
	}, flashstore.DeviceShareBlob{Envelope: deviceEnv})
	if err != nil {
		return CreateWalletResult{}, err
	}

	var cardShares [shamir.ShareCount]shamir.Share
	copy(cardShares[:], shares[:])

	if err := cardflow.CreateWallet(ctx, bus, transport, keystore, store, idx, walletID, key, nonceSeed, cardShares); err != nil {
		return CreateWalletResult{Stage: StageDoneWithErrors, SlotIndex: idx, WalletID: walletID}, err
	}
	_ = store.SetCardsStates(idx, allCardsMask)

	err = cardflow.VerifyShares(ctx, bus, transport, keystore, store, idx, walletID, key, deviceShare,
		mnemonicFromSecret(uint8(entropyLen)))
	if err != nil {
		return CreateWalletResult{Stage: StageDoneWithErrors, SlotIndex: idx, WalletID: walletID}, err
	}

	return CreateWalletResult{Stage: StageDone, SlotIndex: idx, WalletID: walletID, Mnemonic: mnemonic}, nil
}

// RestoreFromSeedRequest is CreateWalletRequest with the generated
// mnemonic replaced by one the user typed in.
type RestoreFromSeedRequest struct {
	Name              string
	PINSet            bool
	PIN               []byte
	PassphraseEnabled bool
	Mnemonic          string
	CardsPairedCount  int
}

// RestoreFromSeed validates the typed mnemonic's BIP-39 checksum and
// that its wallet-id isn't already registered, then runs the same
// split/write/verify sequence CreateWallet does, differing only in
// the seed-acquisition step.
func RestoreFromSeed(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	store *flashstore.Store,
	req RestoreFromSeedRequest,
) (CreateWalletResult, error) {
	if req.CardsPairedCount < 4 {
		return CreateWalletResult{Stage: StageNeedAllCards}, nil
	}
	if !bip39.IsMnemonicValid(req.Mnemonic) {
		return CreateWalletResult{Stage: StageInvalidMnemonic},
			corestatus.New(corestatus.KindWalletInvariant, "walletflow: mnemonic fails BIP-39 checksum")
	}

	walletID := envelope.WalletID(req.Mnemonic)
	if _, _, found := store.GetByID(walletID); found {
		return CreateWalletResult{Stage: StageDuplicateWalletID}, nil
	}
	if len(req.Name) > maxNameBytes {
		return CreateWalletResult{Stage: StageDuplicateName},
			corestatus.New(corestatus.KindWalletInvariant, "walletflow: wallet name exceeds 15 bytes")
	}
	if _, _, found := store.GetByName(req.Name); found {
		return CreateWalletResult{Stage: StageDuplicateName}, nil
	}

	entropy, err := bip39.EntropyFromMnemonic(req.Mnemonic)
	if err != nil {
		return CreateWalletResult{}, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}
	defer zero(entropy)

	key := keyFor(req.PINSet, req.PIN)
	secret := splitSecret(entropy)

	shares, err := shamir.Split(secret)
	if err != nil {
		return CreateWalletResult{}, err
	}

	var nonceSeed [8]byte
	if _, err := rand.Read(nonceSeed[:]); err != nil {
		return CreateWalletResult{}, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}

	deviceShare := shares[4]
	deviceEnv := envelope.Seal(key, envelope.DeriveNonce(nonceSeed, deviceShare.X), deviceShare.Y)

	idx, err := store.AddWallet(flashstore.WalletHeader{
		WalletID:   walletID,
		Name:       req.Name,
		State:      flashstore.StateUnverifiedValid,
		EntropyLen: uint8(len(entropy)),
	}, flashstore.DeviceShareBlob{Envelope: deviceEnv})
	if err != nil {
		return CreateWalletResult{}, err
	}

	var cardShares [shamir.ShareCount]shamir.Share
	copy(cardShares[:], shares[:])

	if err := cardflow.CreateWallet(ctx, bus, transport, keystore, store, idx, walletID, key, nonceSeed, cardShares); err != nil {
		return CreateWalletResult{Stage: StageDoneWithErrors, SlotIndex: idx, WalletID: walletID}, err
	}
	_ = store.SetCardsStates(idx, allCardsMask)

	err = cardflow.VerifyShares(ctx, bus, transport, keystore, store, idx, walletID, key, deviceShare,
		mnemonicFromSecret(uint8(len(entropy))))
	if err != nil {
		return CreateWalletResult{Stage: StageDoneWithErrors, SlotIndex: idx, WalletID: walletID}, err
	}

	return CreateWalletResult{Stage: StageDone, SlotIndex: idx, WalletID: walletID}, nil
}

// VerifyWallet re-runs the verify-shares phase against an existing
// UNVERIFIED_VALID header, using its stored wallet-id rather than
// recomputing one.
func VerifyWallet(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	store *flashstore.Store,
	slotIndex int,
	key [32]byte,
) error {
	header, ok := store.GetBySlot(slotIndex)
	if !ok {
		return corestatus.New(corestatus.KindWalletInvariant, "walletflow: no wallet at that slot")
	}

	blob, ok := store.GetShare(slotIndex)
	if !ok {
		return corestatus.New(corestatus.KindWalletInvariant, "walletflow: no device share at that slot")
	}
	plaintext, err := envelope.Open(key, blob.Envelope)
	if err != nil {
		return err
	}
	deviceShare := shamir.Share{X: 5, Y: plaintext}

	return cardflow.VerifyShares(ctx, bus, transport, keystore, store, slotIndex, header.WalletID, key, deviceShare,
		mnemonicFromSecret(header.EntropyLen))
}

// DeleteWallet taps each of the four cards to erase that card's share
// (tolerating a card that never had one), then erases the device share
// and header. A wallet in INVALID or partial states may also be
// deleted this way.
func DeleteWallet(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	store *flashstore.Store,
	slotIndex int,
) error {
	header, ok := store.GetBySlot(slotIndex)
	if !ok {
		return corestatus.New(corestatus.KindWalletInvariant, "walletflow: no wallet at that slot")
	}

	for x := uint8(1); x <= 4; x++ {
		cfg := cardops.Config{AcceptableCards: 1 << (x - 1)}
		if _, err := cardops.DeleteShare(ctx, bus, transport, x, cfg, header.WalletID, keystore); err != nil {
			return err
		}
	}

	return store.RemoveWallet(slotIndex)
}

// SyncResult reports one wallet sync-wallets discovered on the tapped
// card.
type SyncResult struct {
	WalletID        [32]byte
	Name            string
	Inserted        bool
	ReconstructedOK bool
	Skipped         bool // locked on the card; device-share regen skipped
}

// SyncWallets reads the tapped card's wallet list, inserts any header
// flash doesn't already have (state VALID_WITHOUT_DEVICE_SHARE,
// cards_states = 0b1111), then regenerates the device share of every
// header still in that state via a threshold-2 reconstruct — skipping
// wallets the card itself reports locked.
func SyncWallets(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	store *flashstore.Store,
	cardNumber uint8,
	keyForWallet func(walletID [32]byte) [32]byte,
) ([]SyncResult, error) {
	cfg := cardops.Config{AcceptableCards: 1 << (cardNumber - 1)}
	entries, _, err := cardops.FetchWalletList(ctx, bus, transport, cardNumber, cfg, keystore)
	if err != nil {
		return nil, err
	}

	var results []SyncResult
	for _, e := range entries {
		res := SyncResult{WalletID: e.ID, Name: e.Name}

		if _, _, found := store.GetByID(e.ID); !found {
			if _, err := store.AddWallet(flashstore.WalletHeader{
				WalletID:    e.ID,
				Name:        e.Name,
				State:       flashstore.StateValidWithoutDeviceShare,
				Locked:      e.Locked,
				CardsStates: allCardsMask,
			}, flashstore.DeviceShareBlob{}); err != nil {
				results = append(results, res)
				continue
			}
			res.Inserted = true
		}

		if e.Locked {
			res.Skipped = true
			results = append(results, res)
			continue
		}
		if h, _, found := store.GetByID(e.ID); !found || h.State != flashstore.StateValidWithoutDeviceShare {
			results = append(results, res)
			continue
		}

		key := keyForWallet(e.ID)
		secret, err := cardflow.Reconstruct(ctx, bus, transport, keystore, allCardsMask, e.ID, key)
		if err != nil {
			results = append(results, res)
			continue
		}

		if _, idx, found := store.GetByID(e.ID); found {
			var nonceSeed [8]byte
			if _, err := rand.Read(nonceSeed[:]); err != nil {
				results = append(results, res)
				zero(secret[:])
				continue
			}
			nonce := envelope.DeriveNonce(nonceSeed, 5)
			env := envelope.Seal(key, nonce, secret)
			if err := store.SetDeviceShare(idx, flashstore.DeviceShareBlob{Envelope: env}); err == nil {
				_ = store.SetState(idx, flashstore.StateValid)
				res.ReconstructedOK = true
			}
		}
		zero(secret[:])

		results = append(results, res)
	}

	return results, nil
}

// WalletUnlockRequest carries the PIN once collected, the card that
// holds the wallet locked, and the wallet name WalletUnlock fetches a
// fresh challenge by on every round.
type WalletUnlockRequest struct {
	WalletID    [32]byte
	PIN         []byte
	LockedByCard uint8
	WalletName  string
}

const maxUnlockRounds = 3

// WalletUnlock runs the solve-PoW-then-unlock loop: fetch the card's
// {target, card_nonce} challenge, solve the
// proof-of-work inline, submit the PIN hash and solution, and retry
// with a fresh challenge if the card reports the wallet is still
// locked (each round consumes one of the card's retry attempts).
func WalletUnlock(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	store *flashstore.Store,
	slotIndex int,
	req WalletUnlockRequest,
) error {
	cfg := cardops.Config{AcceptableCards: 1 << (req.LockedByCard - 1)}
	pinHash := sha256.Sum256(req.PIN)

	for round := 0; round < maxUnlockRounds; round++ {
		challenge, _, err := cardops.FetchChallenge(ctx, bus, transport, req.LockedByCard, cfg, req.WalletName, keystore)
		if err != nil {
			return err
		}

		solution, err := pow.Solve(bus, challenge.CardNonce, challenge.Target)
		if err != nil {
			return err
		}

		_, err = cardops.UnlockWallet(ctx, bus, transport, req.LockedByCard, cfg, req.WalletID, pinHash, solution, keystore)
		if err == nil {
			return store.SetLocked(slotIndex, false)
		}

		kind, ok := corestatus.KindOf(err)
		if !ok || kind != corestatus.KindCardLockedWallet {
			return err
		}
	}

	return corestatus.New(corestatus.KindCardLockedWallet,
		"walletflow: wallet still locked after maximum unlock rounds")
}

// VerifyPIN proves a candidate PIN is correct by reconstructing the
// secret (threshold 2) from two card shares under the PIN-derived key,
// then zeroes the reconstructed secret before returning. The device
// share is not read. Used to gate seed reconstruction by transaction
// flows.
func VerifyPIN(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	walletID [32]byte,
	pin []byte,
) ([32]byte, error) {
	key := keyFor(len(pin) > 0, pin)

	secret, err := cardflow.Reconstruct(ctx, bus, transport, keystore, allCardsMask, walletID, key)
	defer zero(secret[:])
	if err != nil {
		return [32]byte{}, err
	}

	return sha256.Sum256(pin), nil
}

// ViewSeed reconstructs the full secret from two card shares under the
// PIN-derived key (a wrong PIN fails the reconstruct) and rebuilds the
// mnemonic string for on-screen display. The caller
// must zero the returned string's backing bytes after showing it.
func ViewSeed(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	keystore cardsession.KeyStore,
	walletID [32]byte,
	pin []byte,
	entropyLen uint8,
) (string, error) {
	key := keyFor(len(pin) > 0, pin)

	secret, err := cardflow.Reconstruct(ctx, bus, transport, keystore, allCardsMask, walletID, key)
	if err != nil {
		return "", err
	}
	defer zero(secret[:])

	return bip39.NewMnemonic(secret[:entropyLen])
}
