// Package cardops implements the eight high-level card operations on
// top of one cardsession.Session, each wrapped in the shared
// REMOVED/WRONG_CARD retry policy.
package cardops

import (
	"context"
	stderrors "errors"

	"github.com/x1vault/core/internal/cardproto"
	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/envelope"
	"github.com/x1vault/core/internal/eventbus"
)

// Instruction bytes for the eight card operations. The card protocol
// wire framing itself lives one layer down; these values are this
// layer's own applet
// command set, the same way card_operations.h only declares operation
// names and leaves their APDU encoding to the card applet.
const (
	insPair            = 0x01
	insWriteShare      = 0x02
	insFetchShare      = 0x03
	insFetchWalletList = 0x04
	insFetchChallenge  = 0x05
	insUnlockWallet    = 0x06
	insHealthCheck     = 0x07
	insDeleteShare     = 0x08
)

// MaxRetries bounds the REMOVED/WRONG_CARD retap loop.
const MaxRetries = 5

// Config is the common per-operation configuration every card op takes.
type Config struct {
	AcceptableCards  uint8 // 4-bit mask, bit (n-1) for card n
	ExpectedFamilyID [4]byte
	SkipCardRemoval  bool
	UIHeading        string
	UIMessage        string
}

// Accepts reports whether cardNumber (1..4) is permitted by cfg's mask.
func (cfg Config) Accepts(cardNumber uint8) bool {
	if cardNumber < 1 || cardNumber > 4 {
		return false
	}
	return cfg.AcceptableCards&(1<<(cardNumber-1)) != 0
}

// Result is the common per-operation response envelope: {tapped_card,
// status, pairing_error, recovery_mode}.
type Result struct {
	TappedCard   uint8
	PairingError bool
	RecoveryMode bool
}

// WalletListEntry is one row of fetch_wallet_list's payload.
type WalletListEntry struct {
	Name   string
	ID     [32]byte
	Locked bool
}

// runWithRetry opens a session against cardNumber, validates it
// against cfg's acceptable mask, resumes the card's paired secret from
// keystore if one is on record, runs body, and closes the session.
// REMOVED/WRONG_CARD failures are retried, for at most MaxRetries
// attempts in total; any
// other card-layer error or a pending P0 aborts the op immediately.
func runWithRetry(
	ctx context.Context,
	bus *eventbus.Bus,
	transport cardsession.Transport,
	cardNumber uint8,
	cfg Config,
	keystore cardsession.KeyStore,
	body func(*cardsession.Session) (Result, error),
) (Result, error) {
	var lastErr error

	for attempt := 0; attempt < MaxRetries; attempt++ {
		if bus != nil {
			if ev, ok := bus.PeekP0(); ok {
				return Result{}, corestatus.New(corestatus.KindP0Abort,
					"cardops: aborted by "+ev.Kind.String())
			}
		}

		if !cfg.Accepts(cardNumber) {
			lastErr = corestatus.New(corestatus.KindCardWrong,
				"cardops: tapped card not in acceptable set")
			continue
		}

		sess, err := cardsession.Open(ctx, transport, cardNumber)
		if err != nil {
			if corestatus.Retryable(err) {
				lastErr = err
				continue
			}
			return Result{}, err
		}

		if keystore != nil {
			if rec, ok := keystore.Get(cardNumber); ok {
				var zeroFamilyID [4]byte
				if cfg.ExpectedFamilyID != zeroFamilyID && cfg.ExpectedFamilyID != rec.FamilyID {
					_ = sess.Close(ctx)
					lastErr = corestatus.New(corestatus.KindCardWrong,
						"cardops: tapped card's family-id does not match its paired record")
					continue
				}
				if err := sess.Resume(rec.FamilyID, rec.Secret); err != nil {
					_ = sess.Close(ctx)
					return Result{}, err
				}
			}
		}

		res, err := body(sess)
		res.TappedCard = cardNumber

		if !cfg.SkipCardRemoval {
			_ = sess.Close(ctx)
		}

		if err == nil {
			return res, nil
		}
		if corestatus.Retryable(err) {
			lastErr = err
			continue
		}
		return res, err
	}

	return Result{}, lastErr
}

// Pair runs the pair APDU against cardNumber and stores the resulting
// shared secret, together with familyID, under cardNumber.
func Pair(ctx context.Context, bus *eventbus.Bus, transport cardsession.Transport,
	cardNumber uint8, cfg Config, cardPubCompressed []byte, keystore cardsession.KeyStore) (Result, error) {

	return runWithRetry(ctx, bus, transport, cardNumber, cfg, keystore, func(sess *cardsession.Session) (Result, error) {
		_, err := sess.Pair(ctx, cfg.ExpectedFamilyID, cardPubCompressed, keystore)
		if err != nil {
			return Result{PairingError: true}, err
		}
		_, err = sess.ExchangeAPDU(ctx, cardproto.Command{INS: insPair})
		return Result{}, err
	})
}

// WriteShare stores one envelope-encrypted share for walletID on
// cardNumber.
func WriteShare(ctx context.Context, bus *eventbus.Bus, transport cardsession.Transport,
	cardNumber uint8, cfg Config, walletID [32]byte, env envelope.Envelope, keystore cardsession.KeyStore) (Result, error) {

	return runWithRetry(ctx, bus, transport, cardNumber, cfg, keystore, func(sess *cardsession.Session) (Result, error) {
		data := make([]byte, 0, 32+12+32+4)
		data = append(data, walletID[:]...)
		data = append(data, env.Nonce[:]...)
		data = append(data, env.Ciphertext[:]...)
		data = append(data, env.Tag[:]...)
		_, err := sess.ExchangeAPDU(ctx, cardproto.Command{INS: insWriteShare, Data: data})
		return Result{}, err
	})
}

// FetchShare reads back the share for walletID, used by the reconstruct
// and verify-shares flows.
func FetchShare(ctx context.Context, bus *eventbus.Bus, transport cardsession.Transport,
	cardNumber uint8, cfg Config, walletID [32]byte, keystore cardsession.KeyStore) (envelope.Envelope, Result, error) {

	var env envelope.Envelope
	res, err := runWithRetry(ctx, bus, transport, cardNumber, cfg, keystore, func(sess *cardsession.Session) (Result, error) {
		resp, err := sess.ExchangeAPDU(ctx, cardproto.Command{INS: insFetchShare, Data: walletID[:]})
		if err != nil {
			return Result{}, err
		}
		if len(resp.Data) != 12+32+4 {
			return Result{}, corestatus.New(corestatus.KindCardTransport,
				"cardops: malformed fetch_share payload")
		}
		copy(env.Nonce[:], resp.Data[0:12])
		copy(env.Ciphertext[:], resp.Data[12:44])
		copy(env.Tag[:], resp.Data[44:48])
		return Result{}, nil
	})
	return env, res, err
}

// FetchWalletList reads every wallet a card knows about.
func FetchWalletList(ctx context.Context, bus *eventbus.Bus, transport cardsession.Transport,
	cardNumber uint8, cfg Config, keystore cardsession.KeyStore) ([]WalletListEntry, Result, error) {

	var entries []WalletListEntry
	res, err := runWithRetry(ctx, bus, transport, cardNumber, cfg, keystore, func(sess *cardsession.Session) (Result, error) {
		resp, err := sess.ExchangeAPDU(ctx, cardproto.Command{INS: insFetchWalletList})
		if err != nil {
			return Result{}, err
		}
		entries = decodeWalletList(resp.Data)
		return Result{}, nil
	})
	return entries, res, err
}

func decodeWalletList(data []byte) []WalletListEntry {
	var entries []WalletListEntry
	for len(data) >= 34 {
		var e WalletListEntry
		copy(e.ID[:], data[:32])
		e.Locked = data[32] != 0
		nameLen := int(data[33])
		data = data[34:]
		if len(data) < nameLen {
			break
		}
		e.Name = string(data[:nameLen])
		data = data[nameLen:]
		entries = append(entries, e)
	}
	return entries
}

// Challenge is the PoW puzzle a locked wallet's card hands back:
// target and card_nonce, both 16 bytes.
type Challenge struct {
	Target    [16]byte
	CardNonce [16]byte
}

// FetchChallenge reads the PoW challenge for a locked wallet by name.
func FetchChallenge(ctx context.Context, bus *eventbus.Bus, transport cardsession.Transport,
	cardNumber uint8, cfg Config, walletName string, keystore cardsession.KeyStore) (Challenge, Result, error) {

	var challenge Challenge
	res, err := runWithRetry(ctx, bus, transport, cardNumber, cfg, keystore, func(sess *cardsession.Session) (Result, error) {
		resp, err := sess.ExchangeAPDU(ctx, cardproto.Command{
			INS: insFetchChallenge, Data: []byte(walletName),
		})
		if err != nil {
			return Result{}, err
		}
		if len(resp.Data) != 32 {
			return Result{}, corestatus.New(corestatus.KindCardTransport,
				"cardops: malformed fetch_challenge payload")
		}
		copy(challenge.Target[:], resp.Data[:16])
		copy(challenge.CardNonce[:], resp.Data[16:])
		return Result{}, nil
	})
	return challenge, res, err
}

// UnlockWallet submits the PoW solution nonce and PIN hash; on a PIN
// mismatch the card reports 0x63CX, surfaced here as
// corestatus.KindCardWrongPIN with AttemptsLeft set.
func UnlockWallet(ctx context.Context, bus *eventbus.Bus, transport cardsession.Transport,
	cardNumber uint8, cfg Config, walletID [32]byte, pinHash [32]byte, solutionNonce [16]byte,
	keystore cardsession.KeyStore) (Result, error) {

	return runWithRetry(ctx, bus, transport, cardNumber, cfg, keystore, func(sess *cardsession.Session) (Result, error) {
		data := make([]byte, 0, 32+32+16)
		data = append(data, walletID[:]...)
		data = append(data, pinHash[:]...)
		data = append(data, solutionNonce[:]...)

		_, err := sess.ExchangeAPDU(ctx, cardproto.Command{INS: insUnlockWallet, Data: data})
		if err != nil {
			var ce *corestatus.Error
			if stderrors.As(err, &ce) && ce.Kind == corestatus.KindCardSWStatus {
				sw := cardproto.StatusWord(ce.SWStatus)
				if left, wrongPIN := cardproto.IsWrongPIN(sw); wrongPIN {
					return Result{}, corestatus.WrongPIN(left)
				}
				if sw == cardproto.SWWalletLocked {
					return Result{}, corestatus.LockedBy(cardNumber)
				}
			}
			return Result{}, err
		}
		return Result{}, nil
	})
}

// DeleteShare erases walletID's share on cardNumber. A card that never
// held this wallet reports SWWalletNotFound, which delete-wallet treats
// as success rather than failure, not as a reason to abort the delete.
func DeleteShare(ctx context.Context, bus *eventbus.Bus, transport cardsession.Transport,
	cardNumber uint8, cfg Config, walletID [32]byte, keystore cardsession.KeyStore) (Result, error) {

	return runWithRetry(ctx, bus, transport, cardNumber, cfg, keystore, func(sess *cardsession.Session) (Result, error) {
		_, err := sess.ExchangeAPDU(ctx, cardproto.Command{INS: insDeleteShare, Data: walletID[:]})
		if err != nil {
			var ce *corestatus.Error
			if stderrors.As(err, &ce) && ce.Kind == corestatus.KindCardSWStatus &&
				cardproto.StatusWord(ce.SWStatus) == cardproto.SWWalletNotFound {
				return Result{}, nil
			}
			return Result{}, err
		}
		return Result{}, nil
	})
}

// HealthCheck touches every wallet slot on the card without decrypting
// any share, confirming the card is readable and responsive.
func HealthCheck(ctx context.Context, bus *eventbus.Bus, transport cardsession.Transport,
	cardNumber uint8, cfg Config, keystore cardsession.KeyStore) (Result, error) {

	return runWithRetry(ctx, bus, transport, cardNumber, cfg, keystore, func(sess *cardsession.Session) (Result, error) {
		_, err := sess.ExchangeAPDU(ctx, cardproto.Command{INS: insHealthCheck})
		return Result{}, err
	})
}
