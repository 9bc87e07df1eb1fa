package menu

import (
	"context"
	"time"

	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/eventbus"
	"github.com/x1vault/core/internal/hostproto"
	"github.com/x1vault/core/internal/onboarding"
)

// Screen names the static content this step should currently be
// rendering; a display layer polls OnboardingStep.Screen to know which
// one to draw.
type Screen int

const (
	// ScreenWelcomeSlideshow plays until the first UI gesture dismisses
	// it.
	ScreenWelcomeSlideshow Screen = iota
	// ScreenConnectToHost is the static fallback shown once the
	// slideshow has been dismissed but the host handshake hasn't
	// completed yet.
	ScreenConnectToHost
)

// OnboardingStep renders the welcome slideshow exactly once, then a
// static "connect to host" screen until the USB handshake completes
// onboarding. Whether the slideshow has been shown is ephemeral state
// scoped to this step, not part of the persisted milestone: the
// original firmware tracks it the same way, as a context flag
// separate from the onboarding step enum.
type OnboardingStep struct {
	deps Deps

	slideshowShown bool
}

// NewOnboardingStep returns the onboarding screen step.
func NewOnboardingStep(deps Deps) *OnboardingStep {
	return &OnboardingStep{deps: deps}
}

// Screen reports which static screen is currently appropriate.
func (s *OnboardingStep) Screen() Screen {
	if !s.slideshowShown {
		return ScreenWelcomeSlideshow
	}
	return ScreenConnectToHost
}

func (s *OnboardingStep) Init(ctx context.Context) engine.Transition {
	return engine.Stay()
}

func (s *OnboardingStep) Mask() eventbus.Mask {
	return eventbus.Mask(eventbus.ClassUSB).With(eventbus.ClassUI)
}

func (s *OnboardingStep) Timeout() time.Duration {
	return eventbus.DefaultStepTimeout
}

// HandleEvent dismisses the slideshow on any UI gesture and delegates
// USB frames to the onboarding host interface, which is what actually
// advances the milestone.
func (s *OnboardingStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	switch e := ev.(type) {
	case eventbus.P0Event:
		return engine.Abort()

	case eventbus.UIEvent:
		s.slideshowShown = true
		return engine.Stay()

	case eventbus.USBEvent:
		switch hostproto.CommandTag(e.CommandTag) {
		case hostproto.StartDeviceAuthentication:
			s.deps.Gate.SetAuthenticated(true)
			_ = s.deps.Tracker.Advance(onboarding.DeviceAuth)
		case hostproto.ReadyStatePacket:
			_ = s.deps.Tracker.Advance(onboarding.Complete)
		default:
			return engine.Stay()
		}

		if s.deps.Gate.Authenticated() && s.deps.Tracker.Complete() {
			return engine.Replace(NewMainMenuStep(s.deps))
		}
		return engine.Stay()
	}
	return engine.Stay()
}
