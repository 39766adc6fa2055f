// Package round owns the round lifecycle state machine
package round

import (
	"sync"
	"time"

	"virtual_market/internal/core"
	"virtual_market/pkg/apperrors"
	"virtual_market/pkg/telemetry"
)

// Notifier receives round lifecycle transitions. Implemented by the alert manager.
type Notifier interface {
	RoundEvent(event string, snap core.RoundSnapshot)
}

// Controller is the singleton round state machine. It is the only writer of
// round state; the executor and simulator read it on every operation.
type Controller struct {
	mu        sync.Mutex
	status    core.RoundStatus
	deadline  time.Time
	remaining time.Duration
	duration  time.Duration

	logger   core.ILogger
	notifier Notifier
}

// NewController creates a controller in the IDLE state
func NewController(duration time.Duration, logger core.ILogger, notifier Notifier) *Controller {
	return &Controller{
		status:   core.RoundIdle,
		duration: duration,
		logger:   logger.WithField("component", "round_controller"),
		notifier: notifier,
	}
}

// advance applies the time-driven RUNNING -> ENDED transition.
// Callers must hold c.mu.
func (c *Controller) advance(now time.Time) {
	if c.status == core.RoundRunning && !now.Before(c.deadline) {
		c.status = core.RoundEnded
		c.logger.Info("Round ended", "deadline", c.deadline)
		c.publish("ended")
	}
}

// Start begins a round, or restarts one from ENDED. RUNNING and PAUSED are no-ops.
func (c *Controller) Start(now time.Time) core.RoundSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance(now)

	switch c.status {
	case core.RoundIdle, core.RoundEnded:
		c.status = core.RoundRunning
		c.deadline = now.Add(c.duration)
		c.logger.Info("Round started", "deadline", c.deadline, "duration", c.duration)
		c.publish("started")
	}
	return c.snapshotLocked(now)
}

// Pause suspends a RUNNING round, capturing the remaining time.
func (c *Controller) Pause(now time.Time) (core.RoundSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance(now)

	switch c.status {
	case core.RoundRunning:
		c.remaining = c.deadline.Sub(now)
		c.status = core.RoundPaused
		c.logger.Info("Round paused", "remaining", c.remaining)
		c.publish("paused")
	case core.RoundPaused:
		// no-op
	default:
		return c.snapshotLocked(now), apperrors.ErrInvalidTransition
	}
	return c.snapshotLocked(now), nil
}

// Resume continues a PAUSED round with its captured remaining time.
func (c *Controller) Resume(now time.Time) (core.RoundSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance(now)

	switch c.status {
	case core.RoundPaused:
		c.deadline = now.Add(c.remaining)
		c.status = core.RoundRunning
		c.logger.Info("Round resumed", "deadline", c.deadline)
		c.publish("resumed")
	case core.RoundRunning:
		// no-op
	default:
		return c.snapshotLocked(now), apperrors.ErrInvalidTransition
	}
	return c.snapshotLocked(now), nil
}

// Reset returns the machine to IDLE from any state.
func (c *Controller) Reset(now time.Time) core.RoundSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != core.RoundIdle {
		c.status = core.RoundIdle
		c.deadline = time.Time{}
		c.remaining = 0
		c.logger.Info("Round reset")
		c.publish("reset")
	}
	return c.snapshotLocked(now)
}

// Snapshot returns the current state, applying the deadline transition first.
func (c *Controller) Snapshot(now time.Time) core.RoundSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance(now)
	return c.snapshotLocked(now)
}

// IsTradingOpen reports whether trades are currently accepted.
func (c *Controller) IsTradingOpen(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance(now)
	return c.status == core.RoundRunning && now.Before(c.deadline)
}

func (c *Controller) snapshotLocked(now time.Time) core.RoundSnapshot {
	snap := core.RoundSnapshot{Status: c.status}
	switch c.status {
	case core.RoundRunning:
		snap.Deadline = c.deadline
		snap.Remaining = c.deadline.Sub(now)
	case core.RoundPaused:
		snap.Remaining = c.remaining
	}
	telemetry.GetGlobalMetrics().SetRoundStatus(statusCode(c.status))
	return snap
}

func (c *Controller) publish(event string) {
	if c.notifier != nil {
		snap := core.RoundSnapshot{Status: c.status, Deadline: c.deadline, Remaining: c.remaining}
		c.notifier.RoundEvent(event, snap)
	}
}

func statusCode(s core.RoundStatus) int64 {
	switch s {
	case core.RoundRunning:
		return 1
	case core.RoundPaused:
		return 2
	case core.RoundEnded:
		return 3
	default:
		return 0
	}
}
