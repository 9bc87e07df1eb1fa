// Package onboarding tracks the device's one-way welcome progression:
// a single persisted milestone that only ever advances, gating the
// main menu behind an explicit "onboarding complete" state.
package onboarding

import (
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/flashstore"
)

// Step is one onboarding milestone.
type Step uint8

const (
	// Virgin is the sentinel a never-written flash cell reads back as
	// (an unwritten cell reads all-ones, 0xFF). It ranks below every
	// other step for Advance's monotonicity check.
	Virgin Step = Step(flashstore.OnboardingVirgin)
	// DeviceAuth marks that a host has completed the initial USB
	// device-authentication handshake.
	DeviceAuth Step = 0
	// JoystickTraining marks that the joystick calibration screen has
	// been completed.
	JoystickTraining Step = 1
	// CardCheckup marks that the four-card pairing checkup has run.
	CardCheckup Step = 2
	// CardAuth marks that card authentication has completed.
	CardAuth Step = 3
	// Complete marks onboarding finished; the restricted-app gate
	// opens once this is reached.
	Complete Step = 4
)

// rank orders steps for the monotonicity check: Virgin sorts before
// every real step regardless of its numeric (0xFF) value.
func rank(s Step) int {
	if s == Virgin {
		return -1
	}
	return int(s)
}

// Tracker persists the onboarding milestone in flashstore.
type Tracker struct {
	store *flashstore.Store
}

// NewTracker returns a Tracker backed by store.
func NewTracker(store *flashstore.Store) *Tracker {
	return &Tracker{store: store}
}

// Current returns the last-reached milestone, or Virgin on a
// factory-fresh device.
func (t *Tracker) Current() Step {
	return Step(t.store.OnboardingStep())
}

// Complete reports whether onboarding has fully finished.
func (t *Tracker) Complete() bool {
	return t.Current() == Complete
}

// Advance records step as the new milestone, but only if it is allowed
// from whatever is already persisted: a regression is silently ignored,
// and any forward jump of more than one step is rejected, except that
// Complete may always be set directly (in-field provisioning skips the
// rest of the flow). Once Current is Complete, Advance is a no-op.
func (t *Tracker) Advance(step Step) error {
	current := t.Current()
	if current == Complete {
		return nil
	}
	if rank(step) <= rank(current) {
		return nil
	}
	if step != Complete && rank(step) > rank(current)+1 {
		return corestatus.New(corestatus.KindWalletInvariant,
			"onboarding: cannot advance more than one step at a time")
	}
	log.Debugf("onboarding: advancing to step %d", step)
	return t.store.SetOnboardingStep(uint8(step))
}

// Reset returns the tracker to Virgin, used by factory reset.
func (t *Tracker) Reset() error {
	return t.store.SetOnboardingStep(uint8(Virgin))
}
