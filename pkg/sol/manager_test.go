package sol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RejectsSecondSession(t *testing.T) {
	m := NewManager(testOptions)
	ctx := context.Background()

	first, err := m.Start(ctx, newFakeChannel(), newFakeSurface(), false)
	require.NoError(t, err)
	defer first.Stop()

	second, err := m.Start(ctx, newFakeChannel(), newFakeSurface(), false)
	assert.ErrorIs(t, err, ErrSessionActive)
	assert.Nil(t, second)
	assert.True(t, first.Active(), "the running session is untouched")
	assert.Same(t, first, m.Current())
}

func TestManager_TakeOver(t *testing.T) {
	m := NewManager(testOptions)
	ctx := context.Background()

	firstCh := newFakeChannel()
	first, err := m.Start(ctx, firstCh, newFakeSurface(), false)
	require.NoError(t, err)

	second, err := m.Start(ctx, newFakeChannel(), newFakeSurface(), true)
	require.NoError(t, err)
	defer second.Stop()

	assert.Equal(t, StateIdle, first.State(), "the previous session is fully closed first")
	assert.Equal(t, ReasonTakenOver, first.Termination().Reason)
	assert.False(t, first.Active())
	assert.True(t, second.Active())
	assert.Same(t, second, m.Current())

	<-first.Released()
	assert.Equal(t, 1, firstCh.closes())
}

func TestManager_StartAfterSessionEnded(t *testing.T) {
	m := NewManager(testOptions)
	ctx := context.Background()

	first, err := m.Start(ctx, newFakeChannel(received{code: CodeNoActiveSerialSession}), newFakeSurface(), false)
	require.NoError(t, err)
	waitEnded(t, first)
	assert.Nil(t, m.Current())

	second, err := m.Start(ctx, newFakeChannel(), newFakeSurface(), false)
	require.NoError(t, err)
	defer second.Stop()
	assert.True(t, second.Active())
}

func TestManager_Stop(t *testing.T) {
	m := NewManager(testOptions)
	assert.False(t, m.Stop())

	s, err := m.Start(context.Background(), newFakeChannel(), newFakeSurface(), false)
	require.NoError(t, err)
	assert.True(t, m.Stop())
	assert.Equal(t, ReasonOperator, waitEnded(t, s).Reason)
}

func TestManager_OpenFailureLeavesNoSession(t *testing.T) {
	m := NewManager(testOptions)
	ch := newFakeChannel()
	ch.openErr = &OpenError{Target: "blade 1", Code: CodeFailure}

	_, err := m.Start(context.Background(), ch, newFakeSurface(), false)
	assert.ErrorIs(t, err, ErrOpenFailed)
	assert.Nil(t, m.Current())
}
