package cardops_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x1vault/core/internal/cardops"
	"github.com/x1vault/core/internal/cardproto"
	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/envelope"
)

// scriptedTransport answers Exchange with a queued sequence of raw
// response frames, and can be told to fail Select a fixed number of
// times first (simulating REMOVED/WRONG_CARD retaps).
type scriptedTransport struct {
	selectFailures int
	selectErr      error
	responses      [][]byte
	i              int
}

func (t *scriptedTransport) Select(ctx context.Context, cardNumber uint8) error {
	if t.selectFailures > 0 {
		t.selectFailures--
		return t.selectErr
	}
	return nil
}

func (t *scriptedTransport) Exchange(ctx context.Context, frame []byte) ([]byte, error) {
	if t.i >= len(t.responses) {
		return cardproto.Response{SW: cardproto.SWSuccess}.Encode(), nil
	}
	resp := t.responses[t.i]
	t.i++
	return resp, nil
}

func (t *scriptedTransport) Deselect(ctx context.Context) error { return nil }

func allCards() cardops.Config {
	return cardops.Config{AcceptableCards: 0b1111}
}

func TestWriteShareSucceeds(t *testing.T) {
	tr := &scriptedTransport{}
	var walletID [32]byte
	walletID[0] = 0xAB

	res, err := cardops.WriteShare(context.Background(), nil, tr, 1, allCards(), walletID, envelope.Envelope{}, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(1), res.TappedCard)
}

func TestHealthCheckRetriesOnRemovedThenSucceeds(t *testing.T) {
	tr := &scriptedTransport{
		selectFailures: 2,
		selectErr:      cardsession.NewTransportError(cardsession.TransportCardRemoved, "removed"),
	}

	res, err := cardops.HealthCheck(context.Background(), nil, tr, 1, allCards(), nil)
	require.NoError(t, err)
	require.Equal(t, uint8(1), res.TappedCard)
}

func TestHealthCheckExhaustsRetries(t *testing.T) {
	tr := &scriptedTransport{
		selectFailures: cardops.MaxRetries,
		selectErr:      cardsession.NewTransportError(cardsession.TransportCardRemoved, "removed"),
	}

	_, err := cardops.HealthCheck(context.Background(), nil, tr, 1, allCards(), nil)
	require.Error(t, err)
	kind, ok := corestatus.KindOf(err)
	require.True(t, ok)
	require.Equal(t, corestatus.KindCardRemoved, kind)
}

func TestFetchShareRoundTrips(t *testing.T) {
	env := envelope.Seal(envelope.NoPIN, envelope.DeriveNonce([8]byte{1, 2, 3, 4, 5, 6, 7, 8}, 1), [32]byte{9, 9, 9})

	data := make([]byte, 0, 48)
	data = append(data, env.Nonce[:]...)
	data = append(data, env.Ciphertext[:]...)
	data = append(data, env.Tag[:]...)

	tr := &scriptedTransport{
		responses: [][]byte{cardproto.Response{Data: data, SW: cardproto.SWSuccess}.Encode()},
	}

	var walletID [32]byte
	got, res, err := cardops.FetchShare(context.Background(), nil, tr, 2, allCards(), walletID, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(2), res.TappedCard)
	require.Equal(t, env, got)
}

func TestUnlockWalletWrongPIN(t *testing.T) {
	frame := cardproto.Response{SW: 0x63C2}.Encode()
	tr := &scriptedTransport{responses: [][]byte{frame}}

	var walletID, pinHash [32]byte
	var nonce [16]byte
	_, err := cardops.UnlockWallet(context.Background(), nil, tr, 1, allCards(), walletID, pinHash, nonce, nil)
	require.Error(t, err)

	kind, ok := corestatus.KindOf(err)
	require.True(t, ok)
	require.Equal(t, corestatus.KindCardWrongPIN, kind)

	var ce *corestatus.Error
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 2, ce.AttemptsLeft)
}

func TestWrongCardIsRejectedByMask(t *testing.T) {
	tr := &scriptedTransport{}
	cfg := cardops.Config{AcceptableCards: 0b0001} // only card 1 acceptable

	_, err := cardops.HealthCheck(context.Background(), nil, tr, 3, cfg, nil)
	require.Error(t, err)
	kind, ok := corestatus.KindOf(err)
	require.True(t, ok)
	require.Equal(t, corestatus.KindCardWrong, kind)
}
