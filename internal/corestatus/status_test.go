package corestatus_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x1vault/core/internal/corestatus"
)

func TestTrackerCounters(t *testing.T) {
	tr := corestatus.NewTracker()
	snap := tr.Snapshot()
	require.Equal(t, uint32(0), snap.CoreFlowStatus)
	require.Equal(t, corestatus.StateIdle, snap.State)

	tr.AdvanceCoreFlow()
	tr.AdvanceCoreFlow()
	tr.AdvanceAppFlow()
	tr.SetState(corestatus.StateBusy)

	snap = tr.Snapshot()
	require.Equal(t, uint32(2), snap.CoreFlowStatus)
	require.Equal(t, uint32(1), snap.AppFlowStatus)
	require.Equal(t, corestatus.StateBusy, snap.State)
}

func TestErrorFrame(t *testing.T) {
	err := corestatus.WrongPIN(2)
	frame, ok := corestatus.NewErrorFrame(err)
	require.True(t, ok)
	require.Equal(t, "CARD_ERROR", frame.Tag)
	require.Equal(t, corestatus.KindCardWrongPIN, frame.Code)

	_, ok = corestatus.NewErrorFrame(nil)
	require.False(t, ok)
}

func TestRetryableAndFatal(t *testing.T) {
	require.True(t, corestatus.Retryable(corestatus.New(corestatus.KindCardRemoved, "removed")))
	require.False(t, corestatus.Retryable(corestatus.New(corestatus.KindShareCorrupt, "corrupt")))

	require.True(t, corestatus.Fatal(corestatus.New(corestatus.KindShareCorrupt, "corrupt")))
	require.True(t, corestatus.Fatal(corestatus.New(corestatus.KindWalletInvariant, "bad")))
	require.False(t, corestatus.Fatal(corestatus.New(corestatus.KindUserRejection, "no")))
}

func TestKindOfUnwrapsChain(t *testing.T) {
	inner := corestatus.New(corestatus.KindCardTransport, "transport failure")
	wrapped := corestatus.Wrap(corestatus.KindCardTransport, inner)

	kind, ok := corestatus.KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, corestatus.KindCardTransport, kind)
}
