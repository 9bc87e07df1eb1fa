// Package eventbus multiplexes the four event classes — P0
// (timeout/abort), UI, USB, NFC — into a single blocking Wait call
// that returns exactly one event. It is the only
// suspension point visible to flow code: every other
// function in the core runs to completion between events.
package eventbus

import "fmt"

// Class identifies which of the four event families an Event belongs
// to. It doubles as a bitmask value so a Mask can be built with a
// simple bitwise OR.
type Class uint8

const (
	ClassP0 Class = 1 << iota
	ClassUI
	ClassUSB
	ClassNFC
)

func (c Class) String() string {
	switch c {
	case ClassP0:
		return "P0"
	case ClassUI:
		return "UI"
	case ClassUSB:
		return "USB"
	case ClassNFC:
		return "NFC"
	default:
		return "UNKNOWN"
	}
}

// Mask selects which classes a call to Wait should consider. P0 is
// special-cased: it preempts regardless of Mask unless the bus has
// been told to suppress it via SetAbortDisabled.
type Mask uint8

// MaskAll subscribes to every class.
const MaskAll Mask = Mask(ClassP0 | ClassUI | ClassUSB | ClassNFC)

// Has reports whether m includes class c.
func (m Mask) Has(c Class) bool {
	return Mask(c)&m != 0
}

// With returns m with class c added.
func (m Mask) With(c Class) Mask {
	return m | Mask(c)
}

// Event is implemented by each concrete event payload type. Dispatch
// uses a type switch against this interface rather than a
// function-pointer table: tagged-variant matching over indirection.
type Event interface {
	Class() Class
}

// P0Kind enumerates the two ways a P0 event can fire.
type P0Kind uint8

const (
	P0Timeout P0Kind = iota
	P0Abort
)

func (k P0Kind) String() string {
	if k == P0Abort {
		return "ABORT"
	}
	return "TIMEOUT"
}

// P0Event is the inactivity-timeout / host-abort event. It is returned
// regardless of the caller's Mask unless abort has been disabled for
// the duration of an in-flight card APDU.
type P0Event struct {
	Kind P0Kind
}

func (P0Event) Class() Class { return ClassP0 }

// UIKind enumerates the UI gestures the host can send.
type UIKind uint8

const (
	UIConfirm UIKind = iota
	UIReject
	UIListChoice
	UITextInput
	UISkip
)

// UIEvent carries one user-interface gesture. Choice is meaningful
// only for UIListChoice; Text only for UITextInput.
type UIEvent struct {
	Kind   UIKind
	Choice uint16
	Text   string
}

func (UIEvent) Class() Class { return ClassUI }

func (e UIEvent) String() string {
	switch e.Kind {
	case UIListChoice:
		return fmt.Sprintf("UI(list_choice=%d)", e.Choice)
	case UITextInput:
		return fmt.Sprintf("UI(text_input=%q)", e.Text)
	default:
		return fmt.Sprintf("UI(%d)", e.Kind)
	}
}

// USBEvent is a framed command received from the host: a 16-bit
// command tag plus an opaque payload.
type USBEvent struct {
	CommandTag uint16
	Payload    []byte
}

func (USBEvent) Class() Class { return ClassUSB }

// NFCKind enumerates the two NFC field transitions the core reacts
// to.
type NFCKind uint8

const (
	NFCDetected NFCKind = iota
	NFCRemoved
)

// NFCEvent signals a card entering or leaving the field.
type NFCEvent struct {
	Kind NFCKind
}

func (NFCEvent) Class() Class { return ClassNFC }
