package round

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual_market/internal/core"
	"virtual_market/pkg/apperrors"
	"virtual_market/pkg/logging"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newController(t *testing.T, duration time.Duration) *Controller {
	t.Helper()
	return NewController(duration, logging.NewNop(), nil)
}

func TestStart_FromIdle(t *testing.T) {
	c := newController(t, 30*time.Minute)

	snap := c.Start(base)
	assert.Equal(t, core.RoundRunning, snap.Status)
	assert.Equal(t, base.Add(30*time.Minute), snap.Deadline)
	assert.Equal(t, 30*time.Minute, snap.Remaining)
}

func TestStart_WhileRunningIsNoOp(t *testing.T) {
	c := newController(t, 30*time.Minute)
	c.Start(base)

	// A second start must not extend the deadline.
	snap := c.Start(base.Add(5 * time.Minute))
	assert.Equal(t, core.RoundRunning, snap.Status)
	assert.Equal(t, base.Add(30*time.Minute), snap.Deadline)
}

func TestStart_FromEndedBeginsFreshRound(t *testing.T) {
	c := newController(t, 30*time.Minute)
	c.Start(base)

	later := base.Add(45 * time.Minute)
	require.Equal(t, core.RoundEnded, c.Snapshot(later).Status)

	snap := c.Start(later)
	assert.Equal(t, core.RoundRunning, snap.Status)
	assert.Equal(t, later.Add(30*time.Minute), snap.Deadline)
}

func TestPauseResume_PreservesRemaining(t *testing.T) {
	c := newController(t, 30*time.Minute)
	c.Start(base)

	snap, err := c.Pause(base.Add(10 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, core.RoundPaused, snap.Status)
	assert.Equal(t, 20*time.Minute, snap.Remaining)

	// Time passing while paused does not consume the round.
	resumeAt := base.Add(2 * time.Hour)
	snap, err = c.Resume(resumeAt)
	require.NoError(t, err)
	assert.Equal(t, core.RoundRunning, snap.Status)
	assert.Equal(t, resumeAt.Add(20*time.Minute), snap.Deadline)
}

func TestPauseResume_Idempotent(t *testing.T) {
	c := newController(t, 30*time.Minute)
	c.Start(base)

	_, err := c.Pause(base.Add(time.Minute))
	require.NoError(t, err)
	snap, err := c.Pause(base.Add(2 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, core.RoundPaused, snap.Status)
	assert.Equal(t, 29*time.Minute, snap.Remaining)

	_, err = c.Resume(base.Add(3 * time.Minute))
	require.NoError(t, err)
	snap, err = c.Resume(base.Add(4 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, core.RoundRunning, snap.Status)
}

func TestInvalidTransitions(t *testing.T) {
	c := newController(t, 30*time.Minute)

	_, err := c.Pause(base)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	_, err = c.Resume(base)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	c.Start(base)
	ended := base.Add(time.Hour)
	_, err = c.Pause(ended)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	_, err = c.Resume(ended)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestReset_FromAnyState(t *testing.T) {
	c := newController(t, 30*time.Minute)

	assert.Equal(t, core.RoundIdle, c.Reset(base).Status)

	c.Start(base)
	assert.Equal(t, core.RoundIdle, c.Reset(base.Add(time.Minute)).Status)

	c.Start(base)
	_, err := c.Pause(base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, core.RoundIdle, c.Reset(base.Add(2*time.Minute)).Status)
}

func TestIsTradingOpen(t *testing.T) {
	c := newController(t, 30*time.Minute)

	assert.False(t, c.IsTradingOpen(base))

	c.Start(base)
	assert.True(t, c.IsTradingOpen(base.Add(time.Minute)))
	assert.False(t, c.IsTradingOpen(base.Add(30*time.Minute)))
	assert.False(t, c.IsTradingOpen(base.Add(time.Hour)))

	c.Start(base)
	_, err := c.Pause(base.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, c.IsTradingOpen(base.Add(2*time.Minute)))
}

func TestSnapshot_LazyEndTransition(t *testing.T) {
	c := newController(t, 30*time.Minute)
	c.Start(base)

	snap := c.Snapshot(base.Add(30 * time.Minute))
	assert.Equal(t, core.RoundEnded, snap.Status)
	assert.True(t, snap.Deadline.IsZero())
	assert.Zero(t, snap.Remaining)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) RoundEvent(event string, _ core.RoundSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestLifecycleEventsPublished(t *testing.T) {
	n := &recordingNotifier{}
	c := NewController(30*time.Minute, logging.NewNop(), n)

	c.Start(base)
	_, err := c.Pause(base.Add(time.Minute))
	require.NoError(t, err)
	_, err = c.Resume(base.Add(2 * time.Minute))
	require.NoError(t, err)
	c.Reset(base.Add(3 * time.Minute))

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, []string{"started", "paused", "resumed", "reset"}, n.events)
}
