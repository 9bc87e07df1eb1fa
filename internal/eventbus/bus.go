package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultStepTimeout is the default per-step inactivity budget: 15
// minutes.
const DefaultStepTimeout = 15 * time.Minute

// queueDepth bounds each class's lock-free-from-the-ISR's-point-of-view
// ring buffer. The real interrupt handlers fill hardware ring buffers
// that Wait drains; a generously sized Go channel stands in for that
// here.
const queueDepth = 32

// Bus multiplexes the four event classes into a single blocking Wait.
// The zero value is not usable; construct with New.
type Bus struct {
	p0  chan P0Event
	ui  chan UIEvent
	usb chan USBEvent
	nfc chan NFCEvent

	// wake is signalled (best-effort, non-blocking) after every Post so
	// a blocked Wait call re-polls the priority-ordered queues.
	wake chan struct{}

	abortDisabled int32 // atomic bool

	mu         sync.Mutex
	deferredP0 *P0Event
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		p0:   make(chan P0Event, queueDepth),
		ui:   make(chan UIEvent, queueDepth),
		usb:  make(chan USBEvent, queueDepth),
		nfc:  make(chan NFCEvent, queueDepth),
		wake: make(chan struct{}, 1),
	}
}

func (b *Bus) nudge() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// PostP0 enqueues a P0 event. If abort has been disabled (an APDU
// exchange is in flight), the event is held back and re-raised the
// next time Wait is called after SetAbortDisabled(false): a deferred
// P0 is re-raised, not dropped. Only one P0 slot exists while
// suppressed: whichever P0 condition is observed first is the one
// re-raised.
func (b *Bus) PostP0(e P0Event) {
	if atomic.LoadInt32(&b.abortDisabled) != 0 {
		b.mu.Lock()
		if b.deferredP0 == nil {
			b.deferredP0 = &e
		}
		b.mu.Unlock()
		return
	}
	select {
	case b.p0 <- e:
	default:
	}
	b.nudge()
}

// PostUI enqueues a UI event.
func (b *Bus) PostUI(e UIEvent) {
	select {
	case b.ui <- e:
	default:
	}
	b.nudge()
}

// PostUSB enqueues a USB frame event.
func (b *Bus) PostUSB(e USBEvent) {
	select {
	case b.usb <- e:
	default:
	}
	b.nudge()
}

// PostNFC enqueues an NFC field-transition event.
func (b *Bus) PostNFC(e NFCEvent) {
	select {
	case b.nfc <- e:
	default:
	}
	b.nudge()
}

// SetAbortDisabled toggles P0 suppression for the duration of an
// in-flight card APDU exchange. Disabling does not discard
// an already-queued P0; it only changes how future PostP0 calls are
// handled. Re-enabling (false) does not itself deliver the deferred
// event — the next Wait call does, per the interface contract.
func (b *Bus) SetAbortDisabled(disabled bool) {
	if disabled {
		atomic.StoreInt32(&b.abortDisabled, 1)
	} else {
		atomic.StoreInt32(&b.abortDisabled, 0)
	}
}

// AbortDisabled reports the current suppression state.
func (b *Bus) AbortDisabled() bool {
	return atomic.LoadInt32(&b.abortDisabled) != 0
}

// PeekP0 performs a single non-blocking check for a ready P0 event
// (deferred or freshly posted) without touching UI/USB/NFC traffic.
// Long-running interruptible work (the proof-of-work search, for
// instance) polls this between units of work instead of calling Wait,
// since Wait's timeout/UI-priority machinery isn't relevant mid-loop.
func (b *Bus) PeekP0() (P0Event, bool) {
	b.mu.Lock()
	if b.deferredP0 != nil && !b.AbortDisabled() {
		ev := *b.deferredP0
		b.deferredP0 = nil
		b.mu.Unlock()
		return ev, true
	}
	b.mu.Unlock()

	if b.AbortDisabled() {
		return P0Event{}, false
	}
	select {
	case ev := <-b.p0:
		return ev, true
	default:
		return P0Event{}, false
	}
}

// tryDequeue performs one non-blocking priority-ordered poll: deferred
// P0, then live P0 (unless suppressed), then UI/USB/NFC restricted to
// mask, in that precedence order.
func (b *Bus) tryDequeue(mask Mask) (Event, bool) {
	b.mu.Lock()
	if b.deferredP0 != nil && !b.AbortDisabled() {
		ev := *b.deferredP0
		b.deferredP0 = nil
		b.mu.Unlock()
		return ev, true
	}
	b.mu.Unlock()

	if !b.AbortDisabled() {
		select {
		case ev := <-b.p0:
			return ev, true
		default:
		}
	}

	if mask.Has(ClassUI) {
		select {
		case ev := <-b.ui:
			return ev, true
		default:
		}
	}
	if mask.Has(ClassUSB) {
		select {
		case ev := <-b.usb:
			return ev, true
		default:
		}
	}
	if mask.Has(ClassNFC) {
		select {
		case ev := <-b.nfc:
			return ev, true
		default:
		}
	}
	return nil, false
}

// Wait blocks until one event intersecting mask is ready and returns
// exactly that one event. A P0 event is returned irrespective of mask
// unless abort has been disabled, in which case it is held until a
// later Wait call after re-enabling. If timeout elapses with nothing
// ready, a synthesized P0Event{Kind: P0Timeout} is returned — itself
// subject to the same suppression/deferral rule.
func (b *Bus) Wait(mask Mask, timeout time.Duration) Event {
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		timeoutCh = timer.C
		defer timer.Stop()
	}

	for {
		if ev, ok := b.tryDequeue(mask); ok {
			return ev
		}

		select {
		case <-b.wake:
			continue
		case <-timeoutCh:
			to := P0Event{Kind: P0Timeout}
			if b.AbortDisabled() {
				b.mu.Lock()
				if b.deferredP0 == nil {
					b.deferredP0 = &to
				}
				b.mu.Unlock()
				if timer != nil {
					timer.Reset(timeout)
				}
				continue
			}
			return to
		}
	}
}
