package cardsession

import "fmt"

// TransportErrorKind distinguishes the two user-recoverable transport
// conditions, card removed and wrong card tapped, from a generic
// low-level failure.
type TransportErrorKind int

const (
	TransportGeneric TransportErrorKind = iota
	TransportCardRemoved
	TransportWrongCard
)

// TransportError is the sentinel a Transport implementation returns to
// signal REMOVED or WRONG_CARD so cardsession can classify it without
// string-matching.
type TransportError struct {
	Kind TransportErrorKind
	Msg  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cardsession transport: %s", e.Msg)
}

// NewTransportError constructs a TransportError of the given kind.
func NewTransportError(kind TransportErrorKind, msg string) *TransportError {
	return &TransportError{Kind: kind, Msg: msg}
}
