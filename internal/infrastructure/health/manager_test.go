package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"virtual_market/pkg/logging"
)

func TestManager_AllHealthy(t *testing.T) {
	m := NewManager(logging.NewNop())
	m.Register("store", func() error { return nil })
	m.Register("simulator", func() error { return nil })

	assert.True(t, m.IsHealthy())
	status := m.GetStatus()
	assert.Equal(t, "Healthy", status["store"])
	assert.Equal(t, "Healthy", status["simulator"])
}

func TestManager_ReportsUnhealthyComponent(t *testing.T) {
	m := NewManager(logging.NewNop())
	m.Register("store", func() error { return nil })
	m.Register("simulator", func() error { return errors.New("stalled") })

	assert.False(t, m.IsHealthy())
	status := m.GetStatus()
	assert.Equal(t, "Healthy", status["store"])
	assert.Equal(t, "Unhealthy: stalled", status["simulator"])
}

func TestManager_NoChecks(t *testing.T) {
	m := NewManager(logging.NewNop())
	assert.True(t, m.IsHealthy())
	assert.Empty(t, m.GetStatus())
}
