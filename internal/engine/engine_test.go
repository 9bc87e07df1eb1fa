package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/x1vault/core/internal/engine"
	"github.com/x1vault/core/internal/eventbus"
)

// countingStep pops itself the Nth time it sees a UI event, recording
// every event it was handed.
type countingStep struct {
	name     string
	popAfter int
	seen     *[]string
}

func (s *countingStep) Init(ctx context.Context) engine.Transition {
	*s.seen = append(*s.seen, s.name+":init")
	return engine.Stay()
}

func (s *countingStep) Mask() eventbus.Mask    { return eventbus.MaskAll }
func (s *countingStep) Timeout() time.Duration { return time.Second }

func (s *countingStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	*s.seen = append(*s.seen, s.name+":event")
	s.popAfter--
	if s.popAfter <= 0 {
		return engine.Pop()
	}
	return engine.Stay()
}

func TestRunDrivesASingleStepToPop(t *testing.T) {
	bus := eventbus.New()
	var seen []string
	root := &countingStep{name: "root", popAfter: 1, seen: &seen}

	e := engine.New(bus, nil)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), root) }()

	bus.PostUI(eventbus.UIEvent{Kind: eventbus.UIConfirm})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not return")
	}

	require.Equal(t, []string{"root:init", "root:event"}, seen)
	require.Equal(t, 0, e.Depth())
}

// pushingStep pushes child on its first event, then pops on its
// second.
type pushingStep struct {
	child    engine.Step
	pushed   bool
	seen     *[]string
	name     string
}

func (s *pushingStep) Init(ctx context.Context) engine.Transition {
	*s.seen = append(*s.seen, s.name+":init")
	return engine.Stay()
}
func (s *pushingStep) Mask() eventbus.Mask    { return eventbus.MaskAll }
func (s *pushingStep) Timeout() time.Duration { return time.Second }
func (s *pushingStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	*s.seen = append(*s.seen, s.name+":event")
	if !s.pushed {
		s.pushed = true
		return engine.Push(s.child)
	}
	return engine.Pop()
}

func TestRunPushesAChildStepThenResumesTheParent(t *testing.T) {
	bus := eventbus.New()
	var seen []string

	child := &countingStep{name: "child", popAfter: 1, seen: &seen}
	root := &pushingStep{child: child, seen: &seen, name: "root"}

	e := engine.New(bus, nil)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), root) }()

	bus.PostUI(eventbus.UIEvent{Kind: eventbus.UIConfirm}) // root pushes child
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 2, e.Depth())

	bus.PostUI(eventbus.UIEvent{Kind: eventbus.UIConfirm}) // child pops
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, e.Depth())

	bus.PostUI(eventbus.UIEvent{Kind: eventbus.UIConfirm}) // root pops

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not return")
	}

	require.Equal(t, []string{"root:init", "root:event", "child:init", "child:event", "root:event"}, seen)
}

// abortingStep always unwinds the whole stack on a P0 event.
type abortingStep struct{}

func (abortingStep) Init(ctx context.Context) engine.Transition { return engine.Stay() }
func (abortingStep) Mask() eventbus.Mask                        { return eventbus.MaskAll }
func (abortingStep) Timeout() time.Duration                     { return time.Second }
func (abortingStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	if _, ok := ev.(eventbus.P0Event); ok {
		return engine.Abort()
	}
	return engine.Stay()
}

func TestRunUnwindsTheWholeStackOnP0Abort(t *testing.T) {
	bus := eventbus.New()

	inner := abortingStep{}
	outer := &pushingStep{child: inner, seen: &[]string{}, name: "outer"}

	e := engine.New(bus, nil)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), outer) }()

	bus.PostUI(eventbus.UIEvent{Kind: eventbus.UIConfirm}) // outer pushes inner
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 2, e.Depth())

	bus.PostP0(eventbus.P0Event{Kind: eventbus.P0Abort})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not return")
	}
	require.Equal(t, 0, e.Depth())
}

// quickTimeoutStep aborts on any P0 event (timeout or host abort) and
// declares a short per-step budget, used to exercise Bus.Wait's
// synthesized timeout path without a slow test.
type quickTimeoutStep struct{}

func (quickTimeoutStep) Init(ctx context.Context) engine.Transition { return engine.Stay() }
func (quickTimeoutStep) Mask() eventbus.Mask                        { return eventbus.MaskAll }
func (quickTimeoutStep) Timeout() time.Duration                     { return 20 * time.Millisecond }
func (quickTimeoutStep) HandleEvent(ctx context.Context, ev eventbus.Event) engine.Transition {
	if _, ok := ev.(eventbus.P0Event); ok {
		return engine.Abort()
	}
	return engine.Stay()
}

func TestRunTimesOutAndDeliversASyntheticP0(t *testing.T) {
	bus := eventbus.New()

	e := engine.New(bus, nil)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), quickTimeoutStep{}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not return")
	}
	require.Equal(t, 0, e.Depth())
}
