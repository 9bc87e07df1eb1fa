package hostsim_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/hostsim"
)

var errHandlerFailure = errors.New("simulated handler failure")

func TestSelectExchangeDeselectRoundTrip(t *testing.T) {
	srv, err := hostsim.NewServer()
	require.NoError(t, err)
	defer srv.Close()

	srv.Handle(1, func(frame []byte) ([]byte, error) {
		out := append([]byte{0xAA}, frame...)
		return out, nil
	})

	c, err := hostsim.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Select(context.Background(), 1))

	resp, err := c.Exchange(context.Background(), []byte{0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0x01, 0x02}, resp)

	require.NoError(t, c.Deselect(context.Background()))
}

func TestExchangeWithoutSelectIsClassifiedAsCardRemoved(t *testing.T) {
	srv, err := hostsim.NewServer()
	require.NoError(t, err)
	defer srv.Close()

	c, err := hostsim.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Exchange(context.Background(), []byte{0x01})
	require.Error(t, err)

	var te *cardsession.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, cardsession.TransportCardRemoved, te.Kind)
}

func TestExchangeAgainstUnregisteredCardIsCardRemoved(t *testing.T) {
	srv, err := hostsim.NewServer()
	require.NoError(t, err)
	defer srv.Close()

	c, err := hostsim.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Select(context.Background(), 2))
	_, err = c.Exchange(context.Background(), []byte{0x01})
	require.Error(t, err)

	var te *cardsession.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, cardsession.TransportCardRemoved, te.Kind)
}

func TestSelectBadCardNumberIsGenericTransportError(t *testing.T) {
	srv, err := hostsim.NewServer()
	require.NoError(t, err)
	defer srv.Close()

	c, err := hostsim.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	err = c.Select(context.Background(), 9)
	require.Error(t, err)

	var te *cardsession.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, cardsession.TransportGeneric, te.Kind)
}

func TestHandlerErrorSurfacesAsGenericTransportError(t *testing.T) {
	srv, err := hostsim.NewServer()
	require.NoError(t, err)
	defer srv.Close()

	srv.Handle(3, func(frame []byte) ([]byte, error) {
		return nil, errHandlerFailure
	})

	c, err := hostsim.Dial(srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Select(context.Background(), 3))
	_, err = c.Exchange(context.Background(), []byte{0x01})
	require.Error(t, err)

	var te *cardsession.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, cardsession.TransportGeneric, te.Kind)
}
