package cardproto_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x1vault/core/internal/cardproto"
)

func TestCommandRoundTrip(t *testing.T) {
	cmd := cardproto.Command{CLA: 0x80, INS: 0x01, P1: 0x02, P2: 0x03, Data: []byte("payload")}
	frame := cmd.Encode()

	got, n, err := cardproto.DecodeCommand(frame)
	require.NoError(t, err)
	require.Equal(t, len(frame), n)
	require.Equal(t, cmd, got)
}

func TestCommandRoundTripEmptyData(t *testing.T) {
	cmd := cardproto.Command{CLA: 0x00, INS: 0x00, P1: 0x00, P2: 0x00}
	frame := cmd.Encode()

	got, _, err := cardproto.DecodeCommand(frame)
	require.NoError(t, err)
	require.Empty(t, got.Data)
}

func TestResponseRoundTrip(t *testing.T) {
	resp := cardproto.Response{Data: []byte{1, 2, 3}, SW: cardproto.SWSuccess}
	frame := resp.Encode()

	got, n, err := cardproto.DecodeResponse(frame)
	require.NoError(t, err)
	require.Equal(t, len(frame), n)
	require.Equal(t, resp, got)
}

func TestDecodeCommandTruncated(t *testing.T) {
	_, _, err := cardproto.DecodeCommand([]byte{0, 0, 0, 10})
	require.Error(t, err)
}

func TestIsWrongPIN(t *testing.T) {
	attempts, ok := cardproto.IsWrongPIN(0x63C3)
	require.True(t, ok)
	require.Equal(t, 3, attempts)

	_, ok = cardproto.IsWrongPIN(cardproto.SWSuccess)
	require.False(t, ok)
}

func TestStatusWordConstants(t *testing.T) {
	require.True(t, cardproto.SWSuccess.Success())
	require.False(t, cardproto.SWWalletLocked.Success())
	require.Equal(t, cardproto.StatusWord(0x6983), cardproto.SWWalletLocked)
	require.Equal(t, cardproto.StatusWord(0x6A82), cardproto.SWWalletNotFound)
}
