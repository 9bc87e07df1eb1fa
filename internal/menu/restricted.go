package menu

import (
	"context"
	"time"

	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/hostproto"
)

// RestrictedAppStep is entered instead of the main menu whenever the
// device isn't both host-authenticated and fully onboarded. It shows a
// static screen and waits for whichever of those two conditions is
// still missing to clear, at which point it replaces itself with the
// onboarding screen or the main menu as appropriate.
type RestrictedAppStep struct {
	deps Deps
}

// NewRestrictedAppStep returns the restricted-app gate step.
func NewRestrictedAppStep(deps Deps) *RestrictedAppStep {
	return &RestrictedAppStep{deps: deps}
}

func (s *RestrictedAppStep) passed() bool {
	return s.deps.Gate.Authenticated() && s.deps.Tracker.Complete()
}

func (s *RestrictedAppStep) next() engine.Transition {
	if s.passed() {
		return engine.Replace(NewMainMenuStep(s.deps))
	}
	if !s.deps.Tracker.Complete() {
		return engine.Replace(NewOnboardingStep(s.deps))
	}
	return engine.Stay()
}

func (s *RestrictedAppStep) Init(ctx context.Context) engine.Transition {
	return s.next()
}

func (s *RestrictedAppStep) Mask() eventbus.Mask {
	return eventbus.Mask(eventbus.ClassUSB).With(eventbus.ClassUI)
}

func (s *RestrictedAppStep) Timeout() time.Duration {
	return eventbus.DefaultStepTimeout
}

func (s *RestrictedAppStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	if _, ok := ev.(eventbus.P0Event); ok {
		return engine.Abort()
	}
	if usb, ok := ev.(eventbus.USBEvent); ok {
		if hostproto.CommandTag(usb.CommandTag) != hostproto.StartDeviceAuthentication {
			// Any other command while restricted is ignored and leaves
			// the gate exactly where it is; no unknown-app status is
			// sent back to the host.
			return engine.Stay()
		}
		s.deps.Gate.SetAuthenticated(true)
	}
	return s.next()
}
