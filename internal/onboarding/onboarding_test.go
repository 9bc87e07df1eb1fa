package onboarding_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x1vault/core/internal/flashstore"
	"github.com/x1vault/core/internal/onboarding"
)

func newTracker(t *testing.T) *onboarding.Tracker {
	t.Helper()
	store, err := flashstore.Open()
	require.NoError(t, err)
	return onboarding.NewTracker(store)
}

func TestFreshDeviceStartsVirgin(t *testing.T) {
	tr := newTracker(t)
	require.Equal(t, onboarding.Virgin, tr.Current())
	require.False(t, tr.Complete())
}

func TestAdvanceIsMonotonic(t *testing.T) {
	tr := newTracker(t)

	require.NoError(t, tr.Advance(onboarding.DeviceAuth))
	require.Equal(t, onboarding.DeviceAuth, tr.Current())

	// Regressing to an earlier step (or back to Virgin) is a no-op.
	require.NoError(t, tr.Advance(onboarding.Virgin))
	require.Equal(t, onboarding.DeviceAuth, tr.Current())

	require.NoError(t, tr.Advance(onboarding.JoystickTraining))
	require.NoError(t, tr.Advance(onboarding.CardCheckup))
	require.NoError(t, tr.Advance(onboarding.CardAuth))
	require.Equal(t, onboarding.CardAuth, tr.Current())

	require.NoError(t, tr.Advance(onboarding.Complete))
	require.True(t, tr.Complete())
}

func TestAdvanceRejectsMultiStepJump(t *testing.T) {
	tr := newTracker(t)

	err := tr.Advance(onboarding.CardCheckup)
	require.Error(t, err)
	require.Equal(t, onboarding.Virgin, tr.Current())
}

func TestAdvanceAllowsCompleteDirectly(t *testing.T) {
	tr := newTracker(t)

	require.NoError(t, tr.Advance(onboarding.Complete))
	require.True(t, tr.Complete())
}

func TestAdvanceIsNoOpOnceComplete(t *testing.T) {
	tr := newTracker(t)
	require.NoError(t, tr.Advance(onboarding.Complete))

	require.NoError(t, tr.Advance(onboarding.DeviceAuth))
	require.True(t, tr.Complete())
}

func TestResetReturnsToVirgin(t *testing.T) {
	tr := newTracker(t)
	require.NoError(t, tr.Advance(onboarding.Complete))
	require.True(t, tr.Complete())

	require.NoError(t, tr.Reset())
	require.Equal(t, onboarding.Virgin, tr.Current())
}
