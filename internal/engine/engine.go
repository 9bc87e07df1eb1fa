// Package engine implements a cooperative step-stack driver: a
// fixed-depth stack of steps, each declaring the event classes it
// cares about and a timeout, dispatched one event at a time via
// Bus.Wait. Unlike a function-pointer step table linked by raw
// pointers between step descriptors and event configs, steps here are
// value-typed records satisfying the Step interface and events are
// matched with a type switch: tagged-variant dispatch over function
// pointers.
package engine

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/x1vault/core/internal/arraylist"
	"github.com/x1vault/core/internal/corestatus"
	"github.com/x1vault/core/internal/eventbus"
)

// MaxDepth bounds the step stack: a fixed-capacity stack of at most 10
// step entries.
const MaxDepth = 10

// Action tells Run what to do with the stack after a step's
// HandleEvent returns.
type Action int

const (
	// ActionNone leaves the stack untouched; the current step keeps
	// running.
	ActionNone Action = iota
	// ActionPush enters Transition.Step as a new top-of-stack entry.
	ActionPush
	// ActionReplace swaps the current top-of-stack entry for
	// Transition.Step without growing the stack.
	ActionReplace
	// ActionPop removes the current top-of-stack entry, resuming
	// whatever is beneath it (or ending the run if the stack is now
	// empty).
	ActionPop
	// ActionAbort unwinds the entire stack at once, the response to a
	// P0 event most steps give: treat it as an immediate unwind.
	ActionAbort
)

// Transition is a step's verdict after handling one event.
type Transition struct {
	Action Action
	Step   Step
}

// Stay is the no-op transition.
func Stay() Transition { return Transition{Action: ActionNone} }

// Push enters next as a new top-of-stack entry.
func Push(next Step) Transition { return Transition{Action: ActionPush, Step: next} }

// Replace swaps the current step for next.
func Replace(next Step) Transition { return Transition{Action: ActionReplace, Step: next} }

// Pop removes the current step.
func Pop() Transition { return Transition{Action: ActionPop} }

// Abort unwinds the whole stack.
func Abort() Transition { return Transition{Action: ActionAbort} }

// Step is one entry in the engine's step stack: an event mask, a
// per-step timeout, a one-shot Init called the moment the step becomes
// current, and a HandleEvent callback dispatched with exactly one
// event at a time.
type Step interface {
	// Init runs once, the instant this step is pushed or replaces
	// another step. It may itself return a Transition to redirect
	// before any event is even waited for (e.g. a menu step that finds
	// nothing to show and pops immediately).
	Init(ctx context.Context) Transition
	Mask() eventbus.Mask
	Timeout() time.Duration
	HandleEvent(ctx context.Context, ev eventbus.Event) Transition
}

// ErrStackFull is returned by push/replace when the stack is already
// at MaxDepth.
var ErrStackFull = corestatus.New(corestatus.KindWalletInvariant, "engine: step stack full")

// stack is the fixed-capacity step stack, built on top of the bounded
// array-list rather than reimplementing bounded storage a second time.
// The engine does not own step storage beyond
// holding these references; steps themselves are either static
// singletons (menus) or flow-local values, matching the original's
// ownership note. arraylist.List's cursor is kept pinned to the last
// element at all times, which is exactly "top of stack".
type stack struct {
	list *arraylist.List[Step]
}

func newStack() stack {
	return stack{list: arraylist.New[Step](MaxDepth)}
}

func (s *stack) empty() bool { return s.list.Len() == 0 }

func (s *stack) n() int { return s.list.Len() }

func (s *stack) top() Step {
	step, err := s.list.GetCurrent()
	if err != nil {
		return nil
	}
	return step
}

// moveCursorToEnd re-syncs the list's cursor to the last element after
// an Insert, which never moves the cursor on its own.
func (s *stack) moveCursorToEnd() {
	for {
		if err := s.list.IterateNext(); err != nil {
			return
		}
	}
}

func (s *stack) push(step Step) error {
	if err := s.list.Insert(step); err != nil {
		if stderrors.Is(err, arraylist.ErrFull) {
			return ErrStackFull
		}
		return err
	}
	s.moveCursorToEnd()
	return nil
}

func (s *stack) replace(step Step) error {
	if s.empty() {
		return s.push(step)
	}
	s.list.DeleteCurrent()
	return s.push(step)
}

func (s *stack) pop() {
	_ = s.list.DeleteCurrent()
}

func (s *stack) abort() {
	for !s.empty() {
		s.pop()
	}
}

// Engine runs the step stack to completion: a single-threaded,
// cooperative driver with Bus.Wait as its only suspension point.
// There is exactly one Engine per device; it guarantees at most
// one wallet flow runs at a time simply by never doing anything else
// concurrently.
type Engine struct {
	bus     *eventbus.Bus
	tracker *corestatus.Tracker
	stack   stack
}

// New returns an Engine driven by bus, reporting step transitions
// through tracker (may be nil if core-status polling isn't wired up,
// e.g. in a unit test).
func New(bus *eventbus.Bus, tracker *corestatus.Tracker) *Engine {
	return &Engine{bus: bus, tracker: tracker, stack: newStack()}
}

func (e *Engine) advance() {
	if e.tracker != nil {
		e.tracker.AdvanceCoreFlow()
	}
}

// apply performs the stack mutation a Transition calls for, running
// Init on any step that becomes current as a result, and chains
// through further zero-event transitions Init itself returns.
func (e *Engine) apply(ctx context.Context, t Transition) error {
	for {
		switch t.Action {
		case ActionNone:
			return nil
		case ActionPush:
			if err := e.stack.push(t.Step); err != nil {
				return err
			}
			log.Debugf("engine: pushed step, depth=%d", e.stack.n())
			e.advance()
		case ActionReplace:
			if err := e.stack.replace(t.Step); err != nil {
				return err
			}
			log.Debugf("engine: replaced step, depth=%d", e.stack.n())
			e.advance()
		case ActionPop:
			e.stack.pop()
			log.Debugf("engine: popped step, depth=%d", e.stack.n())
			e.advance()
			return nil
		case ActionAbort:
			e.stack.abort()
			log.Debugf("engine: aborted, stack unwound")
			e.advance()
			return nil
		default:
			return nil
		}

		if e.stack.empty() {
			return nil
		}
		t = e.stack.top().Init(ctx)
	}
}

// Run pushes root and drives the stack to empty, one event at a time.
// It returns when the stack empties (normal completion) or a push
// fails because the stack is already at MaxDepth.
func (e *Engine) Run(ctx context.Context, root Step) error {
	if err := e.apply(ctx, Push(root)); err != nil {
		return err
	}

	for !e.stack.empty() {
		current := e.stack.top()

		ev := e.bus.Wait(current.Mask(), current.Timeout())
		t := current.HandleEvent(ctx, ev)
		if err := e.apply(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Depth reports the current stack depth, mostly useful for tests.
func (e *Engine) Depth() int { return e.stack.n() }
