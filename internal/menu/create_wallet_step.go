package menu

import (
	"context"
	"time"

	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/walletflow"
)

// Choice values for the new-vs-restore mode prompt and the word-count
// prompt CreateWalletStep drives through in sequence.
const (
	choiceModeNew uint16 = iota
	choiceModeRestore

	choiceWords12 uint16 = iota + 10
	choiceWords18
	choiceWords24
)

// createStage is one collection screen of the create/restore flow, run
// through in order; each stage advances to the next on the UI event it
// expects and ignores anything else.
type createStage int

const (
	stageMode createStage = iota
	stageName
	stagePINConfirm
	stagePINText
	stagePassphraseConfirm
	stageWordsOrMnemonic
	stageDone
)

// CreateWalletStep collects every input NAME_INPUT through
// WORD_COUNT_CHOICE (or the restore equivalent) one screen at a time,
// then runs the actual flow synchronously once every input is in hand.
type CreateWalletStep struct {
	deps Deps

	stage   createStage
	restore bool

	name              string
	pinSet            bool
	pin               []byte
	passphraseEnabled bool

	// result holds the outcome of the flow once run, for a display
	// layer to read (e.g. to show the mnemonic once) before this step
	// pops.
	result walletflow.CreateWalletResult
}

// NewCreateWalletStep returns the wallet creation/restore collection
// step.
func NewCreateWalletStep(deps Deps) *CreateWalletStep {
	return &CreateWalletStep{deps: deps}
}

// Stage reports which collection screen is currently showing, for a
// display layer to pick the right prompt/keyboard.
func (s *CreateWalletStep) Stage() createStage { return s.stage }

// Result reports the outcome of the flow once it has run; zero value
// until stage reaches stageDone.
func (s *CreateWalletStep) Result() walletflow.CreateWalletResult { return s.result }

func (s *CreateWalletStep) Init(ctx context.Context) engine.Transition {
	return engine.Stay()
}

func (s *CreateWalletStep) Mask() eventbus.Mask {
	return eventbus.Mask(eventbus.ClassUI)
}

func (s *CreateWalletStep) Timeout() time.Duration {
	return eventbus.DefaultStepTimeout
}

func (s *CreateWalletStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	if _, ok := ev.(eventbus.P0Event); ok {
		return engine.Abort()
	}
	ui, ok := ev.(eventbus.UIEvent)
	if !ok {
		return engine.Stay()
	}
	if ui.Kind == eventbus.UIReject && s.stage != stageDone {
		return engine.Pop()
	}

	switch s.stage {
	case stageMode:
		if ui.Kind != eventbus.UIListChoice {
			return engine.Stay()
		}
		s.restore = ui.Choice == choiceModeRestore
		s.stage = stageName

	case stageName:
		if ui.Kind != eventbus.UITextInput {
			return engine.Stay()
		}
		s.name = ui.Text
		s.stage = stagePINConfirm

	case stagePINConfirm:
		switch ui.Kind {
		case eventbus.UIConfirm:
			s.pinSet = true
			s.stage = stagePINText
		case eventbus.UISkip:
			s.pinSet = false
			s.stage = stagePassphraseConfirm
		default:
			return engine.Stay()
		}

	case stagePINText:
		if ui.Kind != eventbus.UITextInput {
			return engine.Stay()
		}
		s.pin = []byte(ui.Text)
		s.stage = stagePassphraseConfirm

	case stagePassphraseConfirm:
		switch ui.Kind {
		case eventbus.UIConfirm:
			s.passphraseEnabled = true
		case eventbus.UISkip:
			s.passphraseEnabled = false
		default:
			return engine.Stay()
		}
		s.stage = stageWordsOrMnemonic

	case stageWordsOrMnemonic:
		if s.restore {
			if ui.Kind != eventbus.UITextInput {
				return engine.Stay()
			}
			return s.runRestore(ctx, ui.Text)
		}
		if ui.Kind != eventbus.UIListChoice {
			return engine.Stay()
		}
		return s.runCreate(ctx, wordCountFor(ui.Choice))

	default:
		return engine.Stay()
	}
	return engine.Stay()
}

func wordCountFor(choice uint16) int {
	switch choice {
	case choiceWords18:
		return 18
	case choiceWords24:
		return 24
	default:
		return 12
	}
}

func (s *CreateWalletStep) runCreate(ctx context.Context, wordCount int) engine.Transition {
	res, _ := walletflow.CreateWallet(ctx, s.deps.Bus, s.deps.Transport, s.deps.KeyStore, s.deps.Store,
		walletflow.CreateWalletRequest{
			Name:              s.name,
			PINSet:            s.pinSet,
			PIN:               s.pin,
			PassphraseEnabled: s.passphraseEnabled,
			WordCount:         wordCount,
			CardsPairedCount:  s.deps.CardsPairedCount(),
		})
	s.result = res
	s.stage = stageDone
	return engine.Stay()
}

func (s *CreateWalletStep) runRestore(ctx context.Context, mnemonic string) engine.Transition {
	res, _ := walletflow.RestoreFromSeed(ctx, s.deps.Bus, s.deps.Transport, s.deps.KeyStore, s.deps.Store,
		walletflow.RestoreFromSeedRequest{
			Name:              s.name,
			PINSet:            s.pinSet,
			PIN:               s.pin,
			PassphraseEnabled: s.passphraseEnabled,
			Mnemonic:          mnemonic,
			CardsPairedCount:  s.deps.CardsPairedCount(),
		})
	s.result = res
	s.stage = stageDone
	return engine.Stay()
}
