package menu

import (
	"context"
	"time"

	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/settings"
)

// Choice values for the settings menu's toggle rows and its two
// destructive entries.
const (
	choiceToggleLogExport uint16 = iota
	choiceTogglePassphrase
	choiceToggleRawCalldata
	choiceToggleDisplayRotation
	choiceClearData
	choiceFactoryReset
)

// SettingsMenuStep renders the toggle entries plus the two destructive
// operations, each of which requires an explicit confirm before it
// runs.
type SettingsMenuStep struct {
	deps Deps

	// pendingDestructive is the confirm-gated choice waiting on a
	// second, explicit confirmation, or 0 (choiceToggleLogExport) when
	// nothing is pending — checked via pendingSet instead of relying on
	// the zero value, since choiceToggleLogExport is itself a valid
	// choice.
	pendingDestructive uint16
	pendingSet         bool
}

// NewSettingsMenuStep returns the settings menu step.
func NewSettingsMenuStep(deps Deps) *SettingsMenuStep {
	return &SettingsMenuStep{deps: deps}
}

// Entries renders the current settings rows, including each toggle's
// live On state.
func (s *SettingsMenuStep) Entries() []MenuEntry {
	return []MenuEntry{
		{Choice: choiceToggleLogExport, Kind: EntryToggle, Label: "Log export", On: s.deps.Settings.Get(settings.FlagLogExport)},
		{Choice: choiceTogglePassphrase, Kind: EntryToggle, Label: "Passphrase", On: s.deps.Settings.Get(settings.FlagPassphrase)},
		{Choice: choiceToggleRawCalldata, Kind: EntryToggle, Label: "Raw calldata", On: s.deps.Settings.Get(settings.FlagRawCalldata)},
		{Choice: choiceToggleDisplayRotation, Kind: EntryToggle, Label: "Display rotation", On: s.deps.Settings.Get(settings.FlagDisplayRotation)},
		{Choice: choiceClearData, Kind: EntryDestructive, Label: "Clear data"},
		{Choice: choiceFactoryReset, Kind: EntryDestructive, Label: "Factory reset"},
	}
}

func (s *SettingsMenuStep) Init(ctx context.Context) engine.Transition {
	return engine.Stay()
}

func (s *SettingsMenuStep) Mask() eventbus.Mask {
	return eventbus.Mask(eventbus.ClassUI)
}

func (s *SettingsMenuStep) Timeout() time.Duration {
	return eventbus.DefaultStepTimeout
}

func (s *SettingsMenuStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	if _, ok := ev.(eventbus.P0Event); ok {
		return engine.Abort()
	}
	ui, ok := ev.(eventbus.UIEvent)
	if !ok {
		return engine.Stay()
	}

	if s.pendingSet {
		choice := s.pendingDestructive
		s.pendingSet = false
		if ui.Kind != eventbus.UIConfirm {
			return engine.Stay()
		}
		return s.runDestructive(choice)
	}

	if ui.Kind == eventbus.UIReject {
		return engine.Pop()
	}
	if ui.Kind != eventbus.UIListChoice {
		return engine.Stay()
	}

	switch ui.Choice {
	case choiceToggleLogExport:
		_ = s.deps.Settings.Toggle(settings.FlagLogExport)
	case choiceTogglePassphrase:
		_ = s.deps.Settings.Toggle(settings.FlagPassphrase)
	case choiceToggleRawCalldata:
		_ = s.deps.Settings.Toggle(settings.FlagRawCalldata)
	case choiceToggleDisplayRotation:
		_ = s.deps.Settings.Toggle(settings.FlagDisplayRotation)
	case choiceClearData, choiceFactoryReset:
		s.pendingDestructive = ui.Choice
		s.pendingSet = true
	}
	return engine.Stay()
}

// runDestructive performs the confirmed operation. FactoryReset's
// underlying store wipe already resets the onboarding step to Virgin,
// so no separate Tracker.Reset call is needed here.
func (s *SettingsMenuStep) runDestructive(choice uint16) engine.Transition {
	switch choice {
	case choiceClearData:
		_ = s.deps.Settings.ClearData()
	case choiceFactoryReset:
		_ = settings.FactoryReset(s.deps.Store, s.deps.KeyStore)
		s.deps.Gate.SetAuthenticated(false)
	}
	return engine.Abort()
}
