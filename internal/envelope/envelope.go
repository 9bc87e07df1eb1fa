// Package envelope implements the on-card and on-flash share envelope
// format: a 32-byte ciphertext, a 12-byte nonce, and a 4-byte
// truncated authentication tag, encrypted under a key derived
// from the wallet's PIN (or a zero key when the wallet has none), plus
// the wallet-ID and wallet-key/beneficiary-key derivations that other
// components build on top of a reconstructed secret.
package envelope

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/hdkeychain/v3"
	"github.com/x1vault/core/internal/corestatus"
)

// Envelope is the wire/flash representation of one encrypted share.
type Envelope struct {
	Nonce      [nonceSize]byte
	Ciphertext [32]byte
	Tag        [TagSize]byte
}

// NoPIN is the all-zero key used when a wallet has no PIN set: shares
// are then encrypted under an all-zero key.
var NoPIN [32]byte

// DeriveKey computes the share-envelope key from a PIN: the double
// SHA-256 of the PIN bytes, matching the glossary's PIN-hash
// definition (single_hash(pin) = SHA256(pin), key = SHA256(single_hash(pin))).
// Wallets with no PIN use NoPIN instead of calling this.
func DeriveKey(pin []byte) [32]byte {
	single := sha256.Sum256(pin)
	return sha256.Sum256(single[:])
}

// DeriveNonce builds the 12-byte AEAD nonce for one share: an 8-byte
// seed shared by every share of the same wallet, followed by a 4-byte
// big-endian encoding of the share's x-coordinate. Two shares that
// decrypt with matching seeds but came from different wallets will
// never happen; two shares from the SAME wallet always share a seed,
// so a seed mismatch across presented shares is proof they were never
// split together and reconstruction must refuse them: the mixed-wallet
// edge case.
func DeriveNonce(seed [8]byte, x byte) [nonceSize]byte {
	var nonce [nonceSize]byte
	copy(nonce[:8], seed[:])
	binary.BigEndian.PutUint32(nonce[8:], uint32(x))
	return nonce
}

// Seal encrypts a 32-byte share value under key/nonce.
func Seal(key [32]byte, nonce [nonceSize]byte, plaintext [32]byte) Envelope {
	ciphertext, tag, err := sealTruncated(key, nonce, plaintext[:])
	if err != nil {
		// Only NewUnauthenticatedCipher's key/nonce length checks can
		// fail here, and key/nonce are always fixed-size arrays.
		panic(err)
	}
	var env Envelope
	env.Nonce = nonce
	copy(env.Ciphertext[:], ciphertext)
	env.Tag = tag
	return env
}

// Open decrypts env under key, returning a KindShareCorrupt error if
// the stored tag doesn't match.
func Open(key [32]byte, env Envelope) ([32]byte, error) {
	var out [32]byte
	plaintext, ok, err := openTruncated(key, env.Nonce, env.Ciphertext[:], env.Tag)
	if err != nil {
		return out, err
	}
	if !ok {
		return out, corestatus.New(corestatus.KindShareCorrupt, "envelope: authentication tag mismatch")
	}
	copy(out[:], plaintext)
	return out, nil
}

// WalletID derives the wallet's 32-byte identifier from its mnemonic
// string by hashing the mnemonic text directly.
func WalletID(mnemonic string) [32]byte {
	return sha256.Sum256([]byte(mnemonic))
}

var hdNet = chaincfg.MainNetParams()

// walletPurpose, walletKeyIndex and beneficiaryIndex make up two
// hardened derivation paths off the wallet's BIP-32 master: m/190'/1' for the
// wallet's own signing key and m/190'/2' for the beneficiary key
// handed to an inheritance/backup recipient. 190' is not a registered
// SLIP-44 coin type; it is reserved here as this wallet's own
// namespace, same as spec's glossary calls it out as a fixed derivation
// constant rather than a coin identifier.
const (
	walletPurpose    = hdkeychain.HardenedKeyStart + 190
	walletKeyIndex   = hdkeychain.HardenedKeyStart + 1
	beneficiaryIndex = hdkeychain.HardenedKeyStart + 2
)

// WalletKey derives the wallet's signing key (path m/190'/1') from the
// reconstructed 32-byte secret, used as a BIP-32 master seed.
func WalletKey(secret [32]byte) ([32]byte, error) {
	return deriveHardened(secret, walletKeyIndex)
}

// BeneficiaryKey derives the beneficiary key (path m/190'/2') from the
// reconstructed 32-byte secret.
func BeneficiaryKey(secret [32]byte) ([32]byte, error) {
	return deriveHardened(secret, beneficiaryIndex)
}

func deriveHardened(seed [32]byte, leafIndex uint32) ([32]byte, error) {
	var out [32]byte

	master, err := hdkeychain.NewMaster(seed[:], hdNet)
	if err != nil {
		return out, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}
	purposeKey, err := master.Child(walletPurpose)
	if err != nil {
		return out, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}
	leafKey, err := purposeKey.Child(leafIndex)
	if err != nil {
		return out, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}

	priv, err := leafKey.SerializedPrivKey()
	if err != nil {
		return out, corestatus.Wrap(corestatus.KindWalletInvariant, err)
	}
	copy(out[:], priv)
	return out, nil
}
