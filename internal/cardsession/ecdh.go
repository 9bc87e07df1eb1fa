package cardsession

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v3"
)

// EphemeralKeyPair is one side's pairing key, generated fresh for
// every pairing attempt.
type EphemeralKeyPair struct {
	priv *secp256k1.PrivateKey
}

// GenerateEphemeral produces a fresh secp256k1 keypair for one
// pairing handshake.
func GenerateEphemeral() (*EphemeralKeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &EphemeralKeyPair{priv: priv}, nil
}

// PublicKey returns the compressed public key to hand to the card.
func (k *EphemeralKeyPair) PublicKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// SharedSecret performs ECDH against the card's compressed public key
// and returns SHA256(x-coordinate) as the 32-byte session key, the
// same digest-the-shared-point convention used across the pack's
// secp256k1-based signing code (ann_validation.go parses the same
// compressed point format with secp256k1.ParsePubKey).
func (k *EphemeralKeyPair) SharedSecret(cardPubCompressed []byte) ([32]byte, error) {
	var sessionKey [32]byte

	cardPub, err := secp256k1.ParsePubKey(cardPubCompressed)
	if err != nil {
		return sessionKey, err
	}

	var cardPoint, result secp256k1.JacobianPoint
	cardPub.AsJacobian(&cardPoint)

	var scalar secp256k1.ModNScalar
	scalar.SetByteSlice(k.priv.Serialize())

	secp256k1.ScalarMultNonConst(&scalar, &cardPoint, &result)
	result.ToAffine()

	xBytes := result.X.Bytes()
	sessionKey = sha256.Sum256(xBytes[:])
	return sessionKey, nil
}
