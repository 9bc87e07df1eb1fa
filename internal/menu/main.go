package menu

import (
	"context"
	"time"

	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/flashstore"
)

// choiceCreateWallet and choiceSettings are the fixed Choice values
// the trailing two main-menu rows use, after however many wallet rows
// are currently listed.
const (
	choiceCreateWallet uint16 = 0xFFFE
	choiceSettings     uint16 = 0xFFFF
)

// MainMenuStep lists installed wallets, then CREATE_WALLET (hidden
// once four wallets exist), then SETTINGS.
type MainMenuStep struct {
	deps Deps
}

// NewMainMenuStep returns the main menu step.
func NewMainMenuStep(deps Deps) *MainMenuStep {
	return &MainMenuStep{deps: deps}
}

// Entries renders the current main-menu rows, recomputed from flash
// on every call.
func (s *MainMenuStep) Entries() []MenuEntry {
	headers := s.deps.Store.List()

	entries := make([]MenuEntry, 0, len(headers)+2)
	for i, h := range headers {
		_, slot, _ := s.deps.Store.GetByID(h.WalletID)
		entries = append(entries, MenuEntry{
			Choice: uint16(i), Kind: EntryWallet, Label: h.Name, SlotIndex: slot,
		})
	}
	if len(headers) < flashstore.MaxWallets {
		entries = append(entries, MenuEntry{Choice: choiceCreateWallet, Kind: EntryCreateWallet, Label: "Create wallet"})
	}
	entries = append(entries, MenuEntry{Choice: choiceSettings, Kind: EntrySettings, Label: "Settings"})
	return entries
}

func (s *MainMenuStep) Init(ctx context.Context) engine.Transition {
	return engine.Stay()
}

func (s *MainMenuStep) Mask() eventbus.Mask {
	return eventbus.Mask(eventbus.ClassUI)
}

func (s *MainMenuStep) Timeout() time.Duration {
	return eventbus.DefaultStepTimeout
}

func (s *MainMenuStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	if _, ok := ev.(eventbus.P0Event); ok {
		return engine.Abort()
	}
	ui, ok := ev.(eventbus.UIEvent)
	if !ok || ui.Kind != eventbus.UIListChoice {
		return engine.Stay()
	}

	switch ui.Choice {
	case choiceCreateWallet:
		return engine.Push(NewCreateWalletStep(s.deps))
	case choiceSettings:
		return engine.Push(NewSettingsMenuStep(s.deps))
	default:
		for _, e := range s.Entries() {
			if e.Kind == EntryWallet && e.Choice == ui.Choice {
				return engine.Push(NewWalletMenuStep(s.deps, e.SlotIndex))
			}
		}
		return engine.Stay()
	}
}
