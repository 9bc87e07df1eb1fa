package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/x1vault/core/internal/eventbus"
)

func TestWaitReturnsPostedEvent(t *testing.T) {
	b := eventbus.New()
	b.PostUI(eventbus.UIEvent{Kind: eventbus.UIConfirm})

	ev := b.Wait(eventbus.MaskAll, time.Second)
	ui, ok := ev.(eventbus.UIEvent)
	require.True(t, ok)
	require.Equal(t, eventbus.UIConfirm, ui.Kind)
}

func TestWaitRespectsMask(t *testing.T) {
	b := eventbus.New()
	b.PostNFC(eventbus.NFCEvent{Kind: eventbus.NFCDetected})

	done := make(chan eventbus.Event, 1)
	go func() {
		done <- b.Wait(eventbus.Mask(eventbus.ClassUI), 100*time.Millisecond)
	}()

	ev := <-done
	p0, ok := ev.(eventbus.P0Event)
	require.True(t, ok, "NFC event should not satisfy a UI-only mask; expected timeout")
	require.Equal(t, eventbus.P0Timeout, p0.Kind)
}

func TestP0PreemptsRegardlessOfMask(t *testing.T) {
	b := eventbus.New()
	b.PostNFC(eventbus.NFCEvent{Kind: eventbus.NFCDetected})
	b.PostP0(eventbus.P0Event{Kind: eventbus.P0Abort})

	ev := b.Wait(eventbus.Mask(eventbus.ClassNFC), time.Second)
	p0, ok := ev.(eventbus.P0Event)
	require.True(t, ok)
	require.Equal(t, eventbus.P0Abort, p0.Kind)
}

func TestPriorityOrderingUIBeforeUSBBeforeNFC(t *testing.T) {
	b := eventbus.New()
	b.PostNFC(eventbus.NFCEvent{Kind: eventbus.NFCDetected})
	b.PostUSB(eventbus.USBEvent{CommandTag: 1})
	b.PostUI(eventbus.UIEvent{Kind: eventbus.UISkip})

	ev := b.Wait(eventbus.MaskAll, time.Second)
	_, ok := ev.(eventbus.UIEvent)
	require.True(t, ok, "UI must win over USB and NFC when all are ready")
}

func TestAbortDisabledDefersP0(t *testing.T) {
	b := eventbus.New()
	b.SetAbortDisabled(true)
	b.PostP0(eventbus.P0Event{Kind: eventbus.P0Abort})
	// Posted while suppressed: a non-P0 class is unaffected and queues
	// normally alongside the deferred P0.
	b.PostNFC(eventbus.NFCEvent{Kind: eventbus.NFCDetected})

	b.SetAbortDisabled(false)
	ev := b.Wait(eventbus.MaskAll, time.Second)
	p0, ok := ev.(eventbus.P0Event)
	require.True(t, ok, "the deferred abort must be re-raised ahead of the queued NFC event")
	require.Equal(t, eventbus.P0Abort, p0.Kind)
}

func TestWaitTimesOutWhenNothingReady(t *testing.T) {
	b := eventbus.New()
	start := time.Now()
	ev := b.Wait(eventbus.MaskAll, 30*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	p0, ok := ev.(eventbus.P0Event)
	require.True(t, ok)
	require.Equal(t, eventbus.P0Timeout, p0.Kind)
}
