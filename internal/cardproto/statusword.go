package cardproto

// StatusWord is a card's 2-byte ISO7816-style application status word:
// 0x9000 success, 0x63CX wrong-PIN with X attempts remaining, 0x6983
// wallet-locked, 0x6A82 wallet-not-found.
type StatusWord uint16

const (
	SWSuccess         StatusWord = 0x9000
	SWWalletLocked    StatusWord = 0x6983
	SWWalletNotFound  StatusWord = 0x6A82
	// SWConditionsNotSatisfied and SWFileNotFound are standard
	// ISO7816 application errors the card can also surface outside
	// the specific statuses named above (e.g. an unexpected applet
	// selection); card_return_codes.h's CARD_OPERATION_ABORT_OPERATION
	// covers this same catch-all at the firmware layer.
	SWConditionsNotSatisfied StatusWord = 0x6A83
	SWFileNotFound           StatusWord = 0x6D00
)

// IsWrongPIN reports whether sw is the 0x63CX family and, if so,
// returns the attempts-remaining nibble X.
func IsWrongPIN(sw StatusWord) (attemptsLeft int, ok bool) {
	if sw&0xFFF0 != 0x63C0 {
		return 0, false
	}
	return int(sw & 0x000F), true
}

// Success reports whether sw is the success word.
func (sw StatusWord) Success() bool {
	return sw == SWSuccess
}
