// Package cardsession implements the per-tap session lifecycle: select
// a specific card number, pair or reuse a
// stored shared secret, exchange APDUs encrypted under that secret
// until deselect.
package cardsession

import (
	"context"
	"encoding/binary"
	stderrors "errors"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/x1vault/core/internal/cardproto"
	"github.com/x1vault/core/internal/corestatus"
)

// Transport is the NFC collaborator: select a card by number,
// exchange one raw framed APDU, and deselect. internal/hostsim
// provides a websocket-backed implementation for tests; production
// firmware backs this with the real NFC driver.
type Transport interface {
	Select(ctx context.Context, cardNumber uint8) error
	Exchange(ctx context.Context, frame []byte) ([]byte, error)
	Deselect(ctx context.Context) error
}

// PairingRecord is one card slot's pairing state: the family-ID the
// card reported at pairing time alongside the ECDH-derived secret, the
// {card_number, paired, shared_secret, family_id} record the device's
// secure region keeps per card.
type PairingRecord struct {
	FamilyID [4]byte
	Secret   [32]byte
}

// KeyStore persists one PairingRecord per card number (1..4), stored
// in the device keystore so subsequent sessions against that card slot
// can reuse the secret instead of re-running ECDH.
type KeyStore interface {
	Get(cardNumber uint8) (PairingRecord, bool)
	Put(cardNumber uint8, rec PairingRecord)
	// Clear erases every paired record, used by factory reset. The
	// hardware write-protection key lives outside this interface
	// entirely and is never touched by it.
	Clear()
}

// MemKeyStore is an in-process KeyStore. The device keystore backing
// this in production lives in the same secure flash region as device
// shares; modeling persistence is out of scope here since pairing
// state is re-derivable by re-pairing and there's no need for a
// keystore wire format the way the wallet registry has one.
type MemKeyStore struct {
	records map[uint8]PairingRecord
}

// NewMemKeyStore returns an empty keystore.
func NewMemKeyStore() *MemKeyStore {
	return &MemKeyStore{records: make(map[uint8]PairingRecord)}
}

func (m *MemKeyStore) Get(cardNumber uint8) (PairingRecord, bool) {
	r, ok := m.records[cardNumber]
	return r, ok
}

func (m *MemKeyStore) Put(cardNumber uint8, rec PairingRecord) {
	m.records[cardNumber] = rec
}

func (m *MemKeyStore) Clear() {
	m.records = make(map[uint8]PairingRecord)
}

// Session is open against exactly one card number, from Open to
// Close.
type Session struct {
	transport  Transport
	cardNumber uint8
	familyID   [4]byte
	aead       interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	counter uint64
}

// Open selects cardNumber on transport. The caller must follow with
// either Pair (first tap) or Resume (every subsequent tap, using the
// KeyStore's record for this card number) before ExchangeAPDU will
// encrypt anything; until one of those runs, ExchangeAPDU sends and
// receives in the clear.
func Open(ctx context.Context, transport Transport, cardNumber uint8) (*Session, error) {
	if err := transport.Select(ctx, cardNumber); err != nil {
		return nil, classifyTransportError(err)
	}
	return &Session{transport: transport, cardNumber: cardNumber}, nil
}

// Pair derives a fresh shared secret via ECDH with the card, records
// it with familyID in keystore under the session's card number for
// future sessions, and returns the
// device's freshly generated ephemeral public key so the caller can
// carry it to the card in the pair APDU (the card performs the
// matching ECDH on its own side against this key).
func (s *Session) Pair(ctx context.Context, familyID [4]byte, cardPubCompressed []byte, keystore KeyStore) ([]byte, error) {
	eph, err := GenerateEphemeral()
	if err != nil {
		return nil, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}
	secret, err := eph.SharedSecret(cardPubCompressed)
	if err != nil {
		return nil, corestatus.Wrap(corestatus.KindCardTransport, err)
	}

	aead, err := chacha20poly1305.New(secret[:])
	if err != nil {
		return nil, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}

	s.familyID = familyID
	s.aead = aead
	keystore.Put(s.cardNumber, PairingRecord{FamilyID: familyID, Secret: secret})
	return eph.PublicKey(), nil
}

// Resume re-establishes the encrypted channel using a previously
// paired secret instead of running ECDH again.
func (s *Session) Resume(familyID [4]byte, secret [32]byte) error {
	aead, err := chacha20poly1305.New(secret[:])
	if err != nil {
		return corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}
	s.familyID = familyID
	s.aead = aead
	return nil
}

// ExchangeAPDU encrypts cmd under the session key, sends it, and
// decrypts the card's response. It classifies transport-level failure
// into one of: REMOVED, WRONG_CARD, SW_STATUS, TRANSPORT. A non-success
// status word is itself returned
// as a KindCardSWStatus error so callers can branch on cardproto's
// vocabulary (0x6983 locked, 0x6A82 not-found, 0x63CX wrong-PIN) via
// corestatus.KindOf.
func (s *Session) ExchangeAPDU(ctx context.Context, cmd cardproto.Command) (cardproto.Response, error) {
	plaintext := cmd.Encode()

	var nonce [12]byte
	binary.BigEndian.PutUint64(nonce[4:], s.counter)
	s.counter++

	var frame []byte
	if s.aead != nil {
		frame = s.aead.Seal(nil, nonce[:], plaintext, nil)
	} else {
		frame = plaintext
	}

	respFrame, err := s.transport.Exchange(ctx, frame)
	if err != nil {
		return cardproto.Response{}, classifyTransportError(err)
	}

	var respPlain []byte
	if s.aead != nil {
		respPlain, err = s.aead.Open(nil, nonce[:], respFrame, nil)
		if err != nil {
			return cardproto.Response{}, corestatus.New(corestatus.KindCardTransport,
				"cardsession: response authentication failed")
		}
	} else {
		respPlain = respFrame
	}

	resp, _, err := cardproto.DecodeResponse(respPlain)
	if err != nil {
		return cardproto.Response{}, corestatus.Wrap(corestatus.KindCardTransport, err)
	}
	if !resp.SW.Success() {
		return resp, &corestatus.Error{Kind: corestatus.KindCardSWStatus, SWStatus: uint16(resp.SW)}
	}
	return resp, nil
}

// Close deselects the card, ending the session's lifetime.
func (s *Session) Close(ctx context.Context) error {
	return s.transport.Deselect(ctx)
}

// classifyTransportError maps the small set of sentinel conditions a
// Transport implementation reports into the card failure taxonomy.
// Transports communicate REMOVED/WRONG_CARD via the TransportError
// type; anything else is a raw TRANSPORT failure.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if stderrors.As(err, &te) {
		switch te.Kind {
		case TransportCardRemoved:
			return corestatus.New(corestatus.KindCardRemoved, te.Error())
		case TransportWrongCard:
			return corestatus.New(corestatus.KindCardWrong, te.Error())
		}
	}
	return corestatus.Wrap(corestatus.KindCardTransport, err)
}
