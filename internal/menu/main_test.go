package menu_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/menu"
)

func addWallet(t *testing.T, deps menu.Deps, name string) flashstore.WalletHeader {
	t.Helper()
	var h flashstore.WalletHeader
	copy(h.WalletID[:], name)
	h.Name = name
	h.State = flashstore.StateValid
	h.CardsStates = 0b1111
	_, err := deps.Store.AddWallet(h, flashstore.DeviceShareBlob{})
	require.NoError(t, err)
	return h
}

func TestMainMenuStepEntriesListsWalletsThenCreateThenSettings(t *testing.T) {
	deps := newDeps(t)
	addWallet(t, deps, "alpha")
	s := menu.NewMainMenuStep(deps)

	entries := s.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, menu.EntryWallet, entries[0].Kind)
	require.Equal(t, "alpha", entries[0].Label)
	require.Equal(t, menu.EntryCreateWallet, entries[1].Kind)
	require.Equal(t, menu.EntrySettings, entries[2].Kind)
}

func TestMainMenuStepHidesCreateWalletOnceFull(t *testing.T) {
	deps := newDeps(t)
	for i := 0; i < flashstore.MaxWallets; i++ {
		addWallet(t, deps, string(rune('a'+i)))
	}
	s := menu.NewMainMenuStep(deps)

	entries := s.Entries()
	require.Len(t, entries, flashstore.MaxWallets+1)
	for _, e := range entries[:flashstore.MaxWallets] {
		require.Equal(t, menu.EntryWallet, e.Kind)
	}
	require.Equal(t, menu.EntrySettings, entries[flashstore.MaxWallets].Kind)
}

func TestMainMenuStepSelectingWalletPushesWalletMenu(t *testing.T) {
	deps := newDeps(t)
	addWallet(t, deps, "alpha")
	s := menu.NewMainMenuStep(deps)

	tr := s.HandleEvent(context.Background(), eventbus.UIEvent{Kind: eventbus.UIListChoice, Choice: 0})
	require.Equal(t, engine.ActionPush, tr.Action)
	require.IsType(t, &menu.WalletMenuStep{}, tr.Step)
}

func TestMainMenuStepCreateAndSettingsChoicesPush(t *testing.T) {
	deps := newDeps(t)
	s := menu.NewMainMenuStep(deps)

	tr := s.HandleEvent(context.Background(), eventbus.UIEvent{Kind: eventbus.UIListChoice, Choice: 0xFFFE})
	require.Equal(t, engine.ActionPush, tr.Action)
	require.IsType(t, &menu.CreateWalletStep{}, tr.Step)

	tr = s.HandleEvent(context.Background(), eventbus.UIEvent{Kind: eventbus.UIListChoice, Choice: 0xFFFF})
	require.Equal(t, engine.ActionPush, tr.Action)
	require.IsType(t, &menu.SettingsMenuStep{}, tr.Step)
}

func TestMainMenuStepIgnoresNonListChoiceAndP0Aborts(t *testing.T) {
	deps := newDeps(t)
	s := menu.NewMainMenuStep(deps)

	tr := s.HandleEvent(context.Background(), eventbus.UIEvent{Kind: eventbus.UIReject})
	require.Equal(t, engine.ActionNone, tr.Action)

	tr = s.HandleEvent(context.Background(), eventbus.P0Event{Kind: eventbus.P0Abort})
	require.Equal(t, engine.ActionAbort, tr.Action)
}
