// Package corestatus defines the shared error taxonomy and
// the core/app flow status counters the host polls to know where in a
// flow the device currently is.
package corestatus

import (
	stderrors "errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Kind enumerates the closed set of error families a flow, card
// operation, or flash access can surface.
type Kind int

const (
	// KindOK is not itself an error; it is the zero Kind and is only
	// meaningful as the "no error" sentinel when constructing
	// CoreStatus snapshots.
	KindOK Kind = iota
	KindP0Timeout
	KindP0Abort
	KindUserRejection
	KindCardRemoved
	KindCardWrong
	KindCardSWStatus
	KindCardTransport
	KindCardLockedWallet
	KindCardWrongPIN
	KindFlashFull
	KindFlashDuplicateName
	KindFlashDuplicateID
	KindShareCorrupt
	KindWalletInvariant
	KindUnknownApp
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindP0Timeout:
		return "P0_TIMEOUT"
	case KindP0Abort:
		return "P0_ABORT"
	case KindUserRejection:
		return "USER_REJECTION"
	case KindCardRemoved:
		return "CARD_REMOVED"
	case KindCardWrong:
		return "CARD_WRONG"
	case KindCardSWStatus:
		return "CARD_SW_STATUS"
	case KindCardTransport:
		return "CARD_TRANSPORT"
	case KindCardLockedWallet:
		return "CARD_LOCKED_WALLET"
	case KindCardWrongPIN:
		return "CARD_WRONG_PIN"
	case KindFlashFull:
		return "FLASH_FULL"
	case KindFlashDuplicateName:
		return "FLASH_DUPLICATE_NAME"
	case KindFlashDuplicateID:
		return "FLASH_DUPLICATE_ID"
	case KindShareCorrupt:
		return "SHARE_CORRUPT"
	case KindWalletInvariant:
		return "WALLET_INVARIANT"
	case KindUnknownApp:
		return "UNKNOWN_APP"
	default:
		return "UNKNOWN_KIND"
	}
}

// Error is the concrete error type returned across the core. It wraps
// go-errors/errors so every Error carries a stack trace from the point
// it was created, the same convention routing/ann_validation.go uses
// for its sentinel errors.
type Error struct {
	Kind Kind

	// SWStatus carries the card status word for KindCardSWStatus.
	SWStatus uint16

	// AttemptsLeft carries the PIN retry counter for KindCardWrongPIN.
	AttemptsLeft int

	// CardLocked carries the card number (1..4) that imposed a lock
	// for KindCardLockedWallet.
	CardLocked uint8

	cause *goerrors.Error
}

// New builds an Error of the given kind with a plain message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, cause: goerrors.New(msg)}
}

// Wrap builds an Error of the given kind around an existing error,
// preserving it in the error chain for Unwrap/Is.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: goerrors.Wrap(err, 0)}
}

// SWStatusErr builds a KindCardSWStatus error carrying the raw status
// word reported by a card.
func SWStatusErr(sw uint16) *Error {
	return &Error{
		Kind:     KindCardSWStatus,
		SWStatus: sw,
		cause:    goerrors.New(fmt.Sprintf("card status word 0x%04X", sw)),
	}
}

// WrongPIN builds a KindCardWrongPIN error carrying the attempts
// remaining after the failed verification.
func WrongPIN(attemptsLeft int) *Error {
	return &Error{
		Kind:         KindCardWrongPIN,
		AttemptsLeft: attemptsLeft,
		cause: goerrors.New(fmt.Sprintf(
			"wrong PIN, %d attempt(s) left", attemptsLeft,
		)),
	}
}

// LockedBy builds a KindCardLockedWallet error naming the card that
// imposed the lock.
func LockedBy(cardNumber uint8) *Error {
	return &Error{
		Kind:       KindCardLockedWallet,
		CardLocked: cardNumber,
		cause: goerrors.New(fmt.Sprintf(
			"wallet locked by card %d", cardNumber,
		)),
	}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.cause.Error())
	}
	return e.Kind.String()
}

// Unwrap exposes the underlying go-errors/errors cause so errors.Is/As
// keep working across the chain.
func (e *Error) Unwrap() error {
	if e.cause == nil {
		return nil
	}
	return e.cause.Err
}

// Is reports whether target is an *Error of the same Kind, so callers
// can write `errors.Is(err, corestatus.New(corestatus.KindFlashFull, ""))`
// or, more idiomatically, compare via KindOf.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error,
// reporting false otherwise.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if stderrors.As(err, &ce) {
		return ce.Kind, true
	}
	return KindOK, false
}

// Retryable reports whether err belongs to the locally-recovered
// family that can be retried without unwinding the flow: card-removed
// and wrong-card during a single tap prompt.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindCardRemoved || kind == KindCardWrong
}

// Fatal reports whether err belongs to the family that must unwind all
// the way to the menu with an error screen.
func Fatal(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case KindShareCorrupt, KindWalletInvariant, KindP0Abort, KindP0Timeout:
		return true
	case KindCardSWStatus:
		return true
	default:
		return false
	}
}
