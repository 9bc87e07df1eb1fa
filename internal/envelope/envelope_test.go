package envelope_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/envelope"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := envelope.DeriveKey([]byte("123456"))
	nonce := envelope.DeriveNonce([8]byte{1, 2, 3, 4, 5, 6, 7, 8}, 1)

	var secret [32]byte
	copy(secret[:], "this is a 32 byte secret value!")

	env := envelope.Seal(key, nonce, secret)
	got, err := envelope.Open(key, env)
	require.NoError(t, err)
	require.Equal(t, secret, got)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key := envelope.DeriveKey([]byte("123456"))
	wrongKey := envelope.DeriveKey([]byte("654321"))
	nonce := envelope.DeriveNonce([8]byte{9, 9, 9, 9, 9, 9, 9, 9}, 3)

	var secret [32]byte
	copy(secret[:], "another thirty-two byte secret!")

	env := envelope.Seal(key, nonce, secret)
	_, err := envelope.Open(wrongKey, env)
	require.Error(t, err)

	kind, ok := corestatus.KindOf(err)
	require.True(t, ok)
	require.Equal(t, corestatus.KindShareCorrupt, kind)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := envelope.DeriveKey([]byte("123456"))
	nonce := envelope.DeriveNonce([8]byte{1, 1, 1, 1, 1, 1, 1, 1}, 2)

	var secret [32]byte
	copy(secret[:], "yet another 32 byte secret here")

	env := envelope.Seal(key, nonce, secret)
	env.Ciphertext[0] ^= 0xFF

	_, err := envelope.Open(key, env)
	require.Error(t, err)
}

func TestNoPINIsZeroKey(t *testing.T) {
	require.Equal(t, [32]byte{}, envelope.NoPIN)
}

func TestDeriveNonceEncodesX(t *testing.T) {
	seed := [8]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22}
	n1 := envelope.DeriveNonce(seed, 1)
	n2 := envelope.DeriveNonce(seed, 2)

	require.Equal(t, n1[:8], n2[:8], "shares from the same wallet share a nonce seed")
	require.NotEqual(t, n1[8:], n2[8:], "distinct x-coordinates must not collide")
}

func TestWalletIDIsDeterministic(t *testing.T) {
	a := envelope.WalletID("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about")
	b := envelope.WalletID("abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about")
	require.Equal(t, a, b)

	c := envelope.WalletID("legal winner thank year wave sausage worth useful legal winner thank yellow")
	require.NotEqual(t, a, c)
}

func TestWalletKeyAndBeneficiaryKeyDiffer(t *testing.T) {
	var secret [32]byte
	copy(secret[:], "deterministic thirty-two byte s")

	wk, err := envelope.WalletKey(secret)
	require.NoError(t, err)
	bk, err := envelope.BeneficiaryKey(secret)
	require.NoError(t, err)

	require.NotEqual(t, wk, bk)

	wk2, err := envelope.WalletKey(secret)
	require.NoError(t, err)
	require.Equal(t, wk, wk2, "derivation must be deterministic")
}
