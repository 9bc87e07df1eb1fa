package corestatus

import "sync/atomic"

// UserVisibleState is the coarse state surfaced to the host over the
// USB protocol.
type UserVisibleState uint8

const (
	StateIdle UserVisibleState = iota
	StateWaitForCard
	StateWaitUserInput
	StateBusy
)

func (s UserVisibleState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitForCard:
		return "WAIT_FOR_CARD"
	case StateWaitUserInput:
		return "WAIT_USER_INPUT"
	case StateBusy:
		return "BUSY"
	default:
		return "UNKNOWN_STATE"
	}
}

// Tracker holds the pair of counters the host polls to learn where in
// a flow the device currently is, plus the
// coarser UserVisibleState. CoreFlowStatus increments every time the
// engine pushes/pops a step; AppFlowStatus increments every time a
// wallet flow advances its internal state. Both are monotonic for the
// lifetime of the process and wrap around uint32.
type Tracker struct {
	coreFlowStatus uint32
	appFlowStatus  uint32
	state          uint32
}

// NewTracker returns a Tracker in the idle state with both counters
// zeroed.
func NewTracker() *Tracker {
	return &Tracker{}
}

// AdvanceCoreFlow increments the core-flow-status counter, returning
// its new value. Called by the flow engine on every step transition.
func (t *Tracker) AdvanceCoreFlow() uint32 {
	return atomic.AddUint32(&t.coreFlowStatus, 1)
}

// AdvanceAppFlow increments the app-flow-status counter, returning its
// new value. Called by a wallet flow on every internal state
// transition.
func (t *Tracker) AdvanceAppFlow() uint32 {
	return atomic.AddUint32(&t.appFlowStatus, 1)
}

// SetState updates the coarse user-visible state.
func (t *Tracker) SetState(s UserVisibleState) {
	atomic.StoreUint32(&t.state, uint32(s))
}

// Snapshot is an immutable read of the Tracker at one instant, safe to
// hand to a host-polling goroutine.
type Snapshot struct {
	CoreFlowStatus uint32
	AppFlowStatus  uint32
	State          UserVisibleState
}

// Snapshot returns the current values of all three fields atomically
// with respect to each other's individual updates, not as a single
// transaction: a lock-free counter style.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		CoreFlowStatus: atomic.LoadUint32(&t.coreFlowStatus),
		AppFlowStatus:  atomic.LoadUint32(&t.appFlowStatus),
		State:          UserVisibleState(atomic.LoadUint32(&t.state)),
	}
}

// ErrorFrame is the {tag, code} pair sent to the host on a fatal or
// surfaced error.
type ErrorFrame struct {
	Tag  string
	Code Kind
}

// Tag maps a Kind to the family name the host-facing error frame uses.
func (k Kind) Tag() string {
	switch k {
	case KindCardRemoved, KindCardWrong, KindCardSWStatus, KindCardTransport,
		KindCardLockedWallet, KindCardWrongPIN:
		return "CARD_ERROR"
	case KindUserRejection:
		return "USER_REJECTION"
	case KindFlashDuplicateID, KindFlashDuplicateName:
		return "WALLET_NOT_FOUND"
	case KindFlashFull:
		return "FLASH_FULL"
	case KindP0Timeout, KindP0Abort:
		return "ABORT_OPERATION"
	case KindShareCorrupt, KindWalletInvariant:
		return "WALLET_INVARIANT"
	case KindUnknownApp:
		return "UNKNOWN_APP"
	default:
		return "UNKNOWN"
	}
}

// NewErrorFrame builds the host-facing frame for err, or returns false
// if err does not carry a recognizable Kind.
func NewErrorFrame(err error) (ErrorFrame, bool) {
	kind, ok := KindOf(err)
	if !ok {
		return ErrorFrame{}, false
	}
	return ErrorFrame{Tag: kind.Tag(), Code: kind}, true
}
