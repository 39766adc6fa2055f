// Package alert delivers round lifecycle notifications to organizer channels
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"virtual_market/internal/core"
)

type Level string

const (
	Info    Level = "INFO"
	Warning Level = "WARNING"
	Error   Level = "ERROR"
)

type Payload struct {
	Level     Level
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

// Manager fans alerts out to all registered channels. Delivery is
// asynchronous so it never blocks the round controller.
type Manager struct {
	channels []Channel
	logger   core.ILogger
	mu       sync.RWMutex
}

func NewManager(logger core.ILogger) *Manager {
	return &Manager{
		channels: make([]Channel, 0),
		logger:   logger.WithField("component", "alert_manager"),
	}
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("Added alert channel", "name", ch.Name())
}

func (m *Manager) Alert(ctx context.Context, title, message string, level Level, fields map[string]string) {
	payload := Payload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.channels {
		go func(c Channel) {
			timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			if err := c.Send(timeoutCtx, payload); err != nil {
				m.logger.Error("Failed to send alert", "channel", c.Name(), "error", err)
			}
		}(ch)
	}
}

// RoundEvent implements round.Notifier
func (m *Manager) RoundEvent(event string, snap core.RoundSnapshot) {
	fields := map[string]string{
		"status": string(snap.Status),
	}
	if snap.Status == core.RoundRunning {
		fields["deadline"] = snap.Deadline.Format(time.RFC3339)
	}
	if snap.Status == core.RoundPaused {
		fields["remaining"] = snap.Remaining.String()
	}
	m.Alert(context.Background(),
		fmt.Sprintf("Round %s", event),
		fmt.Sprintf("The trading round has been %s.", event),
		Info, fields)
}
