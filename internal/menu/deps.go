// Package menu implements the on-screen menu tree as engine.Step
// values: the restricted-app gate, the onboarding welcome screen, the
// main menu, the per-wallet submenu, and the settings menu. Each step
// renders by exposing read-only state for a display layer to poll
// (Screen/Entries) rather than drawing anything itself; all it owns is
// dispatch from UI/USB events into internal/walletflow and
// internal/settings calls.
package menu

import (
	"github.com/x1vault/core/internal/cardsession"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/onboarding"
	"github.com/x1vault/core/internal/settings"
)

// Deps bundles every collaborator the menu steps dispatch into. One
// Deps is shared by every step in a running engine.
type Deps struct {
	Bus       *eventbus.Bus
	Transport cardsession.Transport
	Store     *flashstore.Store
	KeyStore  cardsession.KeyStore
	Tracker   *onboarding.Tracker
	Settings  *settings.Settings
	Gate      *Gate
	// CardsPairedCount reports how many of the four cards are
	// currently paired; wallet creation needs all four.
	CardsPairedCount func() int
}
