package menu

import (
	"context"
	"time"

	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/envelope"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/walletflow"
)

// Choice values for the VALID-state submenu.
const (
	choiceViewSeed uint16 = iota
	choiceDeleteWallet
)

// Prompt names the single yes/no confirmation WalletMenuStep wants
// outside of the VALID-state view-seed/delete submenu.
type Prompt int

const (
	PromptNone Prompt = iota
	// PromptUnlock is shown when the wallet's header is locked,
	// regardless of its State.
	PromptUnlock
	// PromptDeleteIncomplete covers both a wallet missing a card share
	// (cards_states != 0b1111) and State == StateInvalid: both only
	// offer deletion.
	PromptDeleteIncomplete
	// PromptVerify offers to re-run verify-shares against an
	// UnverifiedValid header.
	PromptVerify
	// PromptSync offers to regenerate the device share for a header
	// sync-wallets inserted without one.
	PromptSync
)

type walletAction int

const (
	actionNone walletAction = iota
	actionUnlock
	actionVerify
	actionSync
	actionViewSeed
	actionDelete
)

// pinRequired reports whether action needs a PIN collected before it can
// run.
func (a walletAction) pinRequired() bool {
	switch a {
	case actionUnlock, actionVerify, actionSync, actionViewSeed:
		return true
	default:
		return false
	}
}

// WalletMenuStep is entered when a wallet row is selected from the main
// menu. What it shows is entirely a function of the wallet's current
// header state, re-read fresh on every call rather than cached, since a
// concurrent card tap or sync pass can change it out from under a
// running step.
type WalletMenuStep struct {
	deps      Deps
	slotIndex int
	pending   walletAction
	// shownSeed holds the mnemonic from the most recent successful
	// actionViewSeed run, for a display layer to read and then clear.
	shownSeed string
}

// ShownSeed returns the mnemonic displayed by the last successful
// view-seed action, or "" if none has run yet. The caller is
// responsible for clearing the returned string's backing memory once
// it's done being shown.
func (s *WalletMenuStep) ShownSeed() string {
	return s.shownSeed
}

// NewWalletMenuStep returns the per-wallet submenu step for slotIndex.
func NewWalletMenuStep(deps Deps, slotIndex int) *WalletMenuStep {
	return &WalletMenuStep{deps: deps, slotIndex: slotIndex}
}

func (s *WalletMenuStep) header() (flashstore.WalletHeader, bool) {
	return s.deps.Store.GetBySlot(s.slotIndex)
}

// Prompt reports which single confirmation this step currently wants,
// or PromptNone if the VALID-state submenu (Entries) applies instead.
func (s *WalletMenuStep) Prompt() Prompt {
	h, ok := s.header()
	if !ok {
		return PromptNone
	}
	if h.Locked {
		return PromptUnlock
	}
	if h.CardsStates != 0b1111 || h.State == flashstore.StateInvalid {
		return PromptDeleteIncomplete
	}
	switch h.State {
	case flashstore.StateUnverifiedValid:
		return PromptVerify
	case flashstore.StateValidWithoutDeviceShare:
		return PromptSync
	default:
		return PromptNone
	}
}

// Entries renders the view-seed/delete submenu, valid only when Prompt
// returns PromptNone.
func (s *WalletMenuStep) Entries() []MenuEntry {
	return []MenuEntry{
		{Choice: choiceViewSeed, Kind: EntryAction, Label: "View seed"},
		{Choice: choiceDeleteWallet, Kind: EntryDestructive, Label: "Delete wallet"},
	}
}

func (s *WalletMenuStep) Init(ctx context.Context) engine.Transition {
	return engine.Stay()
}

func (s *WalletMenuStep) Mask() eventbus.Mask {
	return eventbus.Mask(eventbus.ClassUI)
}

func (s *WalletMenuStep) Timeout() time.Duration {
	return eventbus.DefaultStepTimeout
}

func (s *WalletMenuStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	if _, ok := ev.(eventbus.P0Event); ok {
		return engine.Abort()
	}
	ui, ok := ev.(eventbus.UIEvent)
	if !ok {
		return engine.Stay()
	}

	if s.pending != actionNone {
		return s.resume(ctx, ui)
	}

	if ui.Kind == eventbus.UIReject {
		return engine.Pop()
	}

	switch s.Prompt() {
	case PromptUnlock:
		return s.begin(ui, actionUnlock)
	case PromptDeleteIncomplete:
		return s.begin(ui, actionDelete)
	case PromptVerify:
		return s.begin(ui, actionVerify)
	case PromptSync:
		return s.begin(ui, actionSync)
	default:
		if ui.Kind != eventbus.UIListChoice {
			return engine.Stay()
		}
		switch ui.Choice {
		case choiceViewSeed:
			return s.begin(ui, actionViewSeed)
		case choiceDeleteWallet:
			return s.begin(ui, actionDelete)
		}
		return engine.Stay()
	}
}

// begin records action as pending. A PIN-free action (delete) runs
// immediately; everything else waits for the next event to carry the PIN.
func (s *WalletMenuStep) begin(ui eventbus.UIEvent, action walletAction) engine.Transition {
	if action != actionDelete && ui.Kind != eventbus.UIConfirm {
		return engine.Stay()
	}
	s.pending = action
	if !action.pinRequired() {
		return s.run(context.Background(), nil)
	}
	return engine.Stay()
}

// resume is reached once an action is pending: for a PIN-requiring
// action the next event must be the PIN text (or a skip for no PIN).
func (s *WalletMenuStep) resume(ctx context.Context, ui eventbus.UIEvent) engine.Transition {
	action := s.pending
	if !action.pinRequired() {
		s.pending = actionNone
		return engine.Stay()
	}

	var pin []byte
	switch ui.Kind {
	case eventbus.UITextInput:
		pin = []byte(ui.Text)
	case eventbus.UISkip:
		pin = nil
	default:
		return engine.Stay()
	}

	t := s.run(ctx, pin)
	s.pending = actionNone
	return t
}

// lockedByCard picks the first card slot still reporting a live share,
// used as the best-effort guess at which card currently has the wallet
// locked; the header doesn't record which specific card rejected a PIN.
func lockedByCard(h flashstore.WalletHeader) uint8 {
	for x := uint8(1); x <= 4; x++ {
		if h.CardsStates&(1<<(x-1)) != 0 {
			return x
		}
	}
	return 1
}

func (s *WalletMenuStep) run(ctx context.Context, pin []byte) engine.Transition {
	h, ok := s.header()
	if !ok {
		return engine.Pop()
	}
	key := envelope.NoPIN
	if len(pin) > 0 {
		key = envelope.DeriveKey(pin)
	}

	switch s.pending {
	case actionUnlock:
		_ = walletflow.WalletUnlock(ctx, s.deps.Bus, s.deps.Transport, s.deps.KeyStore, s.deps.Store, s.slotIndex,
			walletflow.WalletUnlockRequest{
				WalletID:     h.WalletID,
				PIN:          pin,
				LockedByCard: lockedByCard(h),
				WalletName:   h.Name,
			})
		return engine.Stay()

	case actionVerify:
		_ = walletflow.VerifyWallet(ctx, s.deps.Bus, s.deps.Transport, s.deps.KeyStore, s.deps.Store, s.slotIndex, key)
		return engine.Stay()

	case actionSync:
		// Sync discovers wallets unrelated to the one currently open,
		// whose PIN this step knows nothing about; SyncWallets only ever
		// reconstructs entries the card itself reports unlocked, so the
		// key for every one of them is NoPIN, never this wallet's key.
		_, _ = walletflow.SyncWallets(ctx, s.deps.Bus, s.deps.Transport, s.deps.KeyStore, s.deps.Store, lockedByCard(h),
			func([32]byte) [32]byte { return envelope.NoPIN })
		return engine.Stay()

	case actionViewSeed:
		seed, err := walletflow.ViewSeed(ctx, s.deps.Bus, s.deps.Transport, s.deps.KeyStore, h.WalletID, pin, h.EntropyLen)
		if err != nil {
			return engine.Stay()
		}
		s.shownSeed = seed
		return engine.Stay()

	case actionDelete:
		if err := walletflow.DeleteWallet(ctx, s.deps.Bus, s.deps.Transport, s.deps.KeyStore, s.deps.Store, s.slotIndex); err != nil {
			return engine.Stay()
		}
		return engine.Pop()
	}
	return engine.Stay()
}
