package cardflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x1vault/core/internal/cardflow"
	"github.com/x1vault/core/internal/cardops"
	"github.com/x1vault/core/internal/cardproto"
	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/envelope"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/shamir"
)

// Instruction bytes, mirrored from internal/cardops since that package
// keeps them unexported.
const (
	insWriteShare = 0x02
	insFetchShare = 0x03
)

// cardRegistry is a fake four-card deck that stores one raw envelope
// per (cardNumber, walletID) pair and replies to write_share/fetch_share;
// anything else reports success with no payload.
type cardRegistry struct {
	selected uint8
	shares   map[uint8]map[[32]byte][]byte
	corrupt  uint8 // cardNumber whose next fetch_share reply gets flipped
}

func newCardRegistry() *cardRegistry {
	return &cardRegistry{shares: make(map[uint8]map[[32]byte][]byte)}
}

func (c *cardRegistry) Select(ctx context.Context, cardNumber uint8) error {
	c.selected = cardNumber
	return nil
}

func (c *cardRegistry) Deselect(ctx context.Context) error { return nil }

func (c *cardRegistry) Exchange(ctx context.Context, frame []byte) ([]byte, error) {
	cmd, _, err := cardproto.DecodeCommand(frame)
	if err != nil {
		return nil, err
	}

	switch cmd.INS {
	case insWriteShare:
		var walletID [32]byte
		copy(walletID[:], cmd.Data[:32])
		if c.shares[c.selected] == nil {
			c.shares[c.selected] = make(map[[32]byte][]byte)
		}
		c.shares[c.selected][walletID] = append([]byte(nil), cmd.Data[32:]...)
		return cardproto.Response{SW: cardproto.SWSuccess}.Encode(), nil

	case insFetchShare:
		var walletID [32]byte
		copy(walletID[:], cmd.Data[:32])
		data := append([]byte(nil), c.shares[c.selected][walletID]...)
		if c.selected == c.corrupt {
			data[0] ^= 0xFF
		}
		return cardproto.Response{Data: data, SW: cardproto.SWSuccess}.Encode(), nil

	default:
		return cardproto.Response{SW: cardproto.SWSuccess}.Encode(), nil
	}
}

func allFour() [shamir.ShareCount]shamir.Share {
	var secret [32]byte
	secret[0] = 0x42
	shares, err := shamir.Split(secret)
	if err != nil {
		panic(err)
	}
	return shares
}

func newStoreWithSlot(t *testing.T, walletID [32]byte) (*flashstore.Store, int) {
	t.Helper()
	store, err := flashstore.Open()
	require.NoError(t, err)
	idx, err := store.AddWallet(flashstore.WalletHeader{
		WalletID: walletID,
		Name:     "test",
		State:    flashstore.StateUnverifiedValid,
	}, flashstore.DeviceShareBlob{})
	require.NoError(t, err)
	return store, idx
}

func TestCreateWalletWritesAndVerifiesAllFourCards(t *testing.T) {
	reg := newCardRegistry()
	shares := allFour()
	var walletID [32]byte
	walletID[0] = 0x01
	key := envelope.NoPIN
	var nonceSeed [8]byte

	store, idx := newStoreWithSlot(t, walletID)

	err := cardflow.CreateWallet(context.Background(), nil, reg, nil, store, idx, walletID, key, nonceSeed, shares)
	require.NoError(t, err)

	for x := uint8(1); x <= 4; x++ {
		require.Contains(t, reg.shares[x], walletID)
	}

	header, _, ok := store.GetByID(walletID)
	require.True(t, ok)
	require.NotEqual(t, flashstore.StateInvalid, header.State)
}

func TestCreateWalletRollsBackOnReadbackMismatch(t *testing.T) {
	reg := newCardRegistry()
	reg.corrupt = 3
	shares := allFour()
	var walletID [32]byte
	walletID[0] = 0x02
	key := envelope.NoPIN
	var nonceSeed [8]byte

	store, idx := newStoreWithSlot(t, walletID)

	err := cardflow.CreateWallet(context.Background(), nil, reg, nil, store, idx, walletID, key, nonceSeed, shares)
	require.Error(t, err)

	kind, ok := corestatus.KindOf(err)
	require.True(t, ok)
	require.Equal(t, corestatus.KindShareCorrupt, kind)

	header, _, ok := store.GetByID(walletID)
	require.True(t, ok)
	require.Equal(t, flashstore.StateInvalid, header.State)
}

func TestReconstructRecoversSecretExcludingUsedCards(t *testing.T) {
	reg := newCardRegistry()
	var secret [32]byte
	secret[0] = 0x99
	shares, err := shamir.Split(secret)
	require.NoError(t, err)

	var walletID [32]byte
	walletID[0] = 0x03
	key := envelope.NoPIN
	nonceSeed := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	for x := uint8(1); x <= 4; x++ {
		share := shares[x-1]
		nonce := envelope.DeriveNonce(nonceSeed, share.X)
		env := envelope.Seal(key, nonce, share.Y)

		data := make([]byte, 0, 32+48)
		data = append(data, walletID[:]...)
		data = append(data, env.Nonce[:]...)
		data = append(data, env.Ciphertext[:]...)
		data = append(data, env.Tag[:]...)

		_, err := cardops.WriteShare(context.Background(), nil, reg, x, cardops.Config{AcceptableCards: 0b1111}, walletID, env, nil)
		require.NoError(t, err)
	}

	got, err := cardflow.Reconstruct(context.Background(), nil, reg, nil, 0b1111, walletID, key)
	require.NoError(t, err)
	require.Equal(t, secret, got)
}

func TestReconstructFailsWhenMaskHasFewerThanThresholdCards(t *testing.T) {
	reg := newCardRegistry()
	var walletID [32]byte

	_, err := cardflow.Reconstruct(context.Background(), nil, reg, nil, 0b0001, walletID, envelope.NoPIN)
	require.Error(t, err)

	kind, ok := corestatus.KindOf(err)
	require.True(t, ok)
	require.Equal(t, corestatus.KindWalletInvariant, kind)
}

func TestReconstructRejectsMismatchedNonceSeeds(t *testing.T) {
	reg := newCardRegistry()
	var secret [32]byte
	secret[0] = 0x11
	shares, err := shamir.Split(secret)
	require.NoError(t, err)

	var walletID [32]byte
	walletID[0] = 0x04
	key := envelope.NoPIN

	seedA := [8]byte{1, 1, 1, 1, 1, 1, 1, 1}
	seedB := [8]byte{2, 2, 2, 2, 2, 2, 2, 2}

	for x := uint8(1); x <= 4; x++ {
		share := shares[x-1]
		seed := seedA
		if x == 2 {
			seed = seedB
		}
		nonce := envelope.DeriveNonce(seed, share.X)
		env := envelope.Seal(key, nonce, share.Y)
		_, err := cardops.WriteShare(context.Background(), nil, reg, x, cardops.Config{AcceptableCards: 0b1111}, walletID, env, nil)
		require.NoError(t, err)
	}

	_, err = cardflow.Reconstruct(context.Background(), nil, reg, nil, 0b1111, walletID, key)
	require.Error(t, err)

	kind, ok := corestatus.KindOf(err)
	require.True(t, ok)
	require.Equal(t, corestatus.KindShareCorrupt, kind)
}

func TestVerifySharesMarksValidWhenWalletIDMatches(t *testing.T) {
	reg := newCardRegistry()
	var secret [32]byte
	secret[0] = 0x55
	shares, err := shamir.Split(secret)
	require.NoError(t, err)

	const mnemonic = "test mnemonic phrase"
	walletID := envelope.WalletID(mnemonic)
	key := envelope.NoPIN
	nonceSeed := [8]byte{9, 9, 9, 9, 9, 9, 9, 9}

	for x := uint8(1); x <= 4; x++ {
		share := shares[x-1]
		nonce := envelope.DeriveNonce(nonceSeed, share.X)
		env := envelope.Seal(key, nonce, share.Y)
		_, err := cardops.WriteShare(context.Background(), nil, reg, x, cardops.Config{AcceptableCards: 0b1111}, walletID, env, nil)
		require.NoError(t, err)
	}

	deviceShare := shares[4]

	store, idx := newStoreWithSlot(t, walletID)

	err = cardflow.VerifyShares(context.Background(), nil, reg, nil, store, idx, walletID, key, deviceShare,
		func([shamir.SecretSize]byte) (string, error) { return mnemonic, nil })
	require.NoError(t, err)

	header, _, ok := store.GetByID(walletID)
	require.True(t, ok)
	require.Equal(t, flashstore.StateValid, header.State)
}

func TestVerifySharesMarksInvalidOnWalletIDMismatch(t *testing.T) {
	reg := newCardRegistry()
	var secret [32]byte
	secret[0] = 0x77
	shares, err := shamir.Split(secret)
	require.NoError(t, err)

	var walletID [32]byte
	walletID[0] = 0xEE
	key := envelope.NoPIN
	nonceSeed := [8]byte{1, 1, 1, 1, 1, 1, 1, 1}

	for x := uint8(1); x <= 4; x++ {
		share := shares[x-1]
		nonce := envelope.DeriveNonce(nonceSeed, share.X)
		env := envelope.Seal(key, nonce, share.Y)
		_, err := cardops.WriteShare(context.Background(), nil, reg, x, cardops.Config{AcceptableCards: 0b1111}, walletID, env, nil)
		require.NoError(t, err)
	}

	store, idx := newStoreWithSlot(t, walletID)

	err = cardflow.VerifyShares(context.Background(), nil, reg, nil, store, idx, walletID, key, shares[4],
		func([shamir.SecretSize]byte) (string, error) { return "the wrong mnemonic entirely", nil })
	require.Error(t, err)

	header, _, ok := store.GetByID(walletID)
	require.True(t, ok)
	require.Equal(t, flashstore.StateInvalid, header.State)
}

type staticPairer struct {
	familyIDs map[uint8][4]byte
	pubKeys   map[uint8][]byte
}

func (p staticPairer) FamilyID(cardNumber uint8) ([4]byte, []byte, error) {
	return p.familyIDs[cardNumber], p.pubKeys[cardNumber], nil
}

func TestPairSkipsAlreadyPairedCards(t *testing.T) {
	reg := newCardRegistry()
	ks := cardsession.NewMemKeyStore()

	eph, err := cardsession.GenerateEphemeral()
	require.NoError(t, err)

	pairer := staticPairer{
		familyIDs: map[uint8][4]byte{1: {1}, 2: {2}, 3: {3}, 4: {4}},
		pubKeys: map[uint8][]byte{
			1: eph.PublicKey(), 2: eph.PublicKey(), 3: eph.PublicKey(), 4: eph.PublicKey(),
		},
	}

	// Card 2 is already paired; Pair must skip it without calling
	// cardops.Pair against it.
	ks.Put(2, cardsession.PairingRecord{FamilyID: [4]byte{2}, Secret: [32]byte{0xAA}})

	count, results := cardflow.Pair(context.Background(), nil, reg, ks, pairer)
	require.Equal(t, 3, count)
	require.Len(t, results, 4)
	require.True(t, results[1].Skipped)
	require.Equal(t, uint8(2), results[1].CardNumber)
}
