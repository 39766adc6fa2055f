package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtual_market/internal/core"
	"virtual_market/pkg/logging"
)

type fakeChannel struct {
	mu       sync.Mutex
	payloads []Payload
	done     chan struct{}
}

func newFakeChannel(expected int) *fakeChannel {
	return &fakeChannel{done: make(chan struct{}, expected)}
}

func (f *fakeChannel) Send(_ context.Context, p Payload) error {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeChannel) Name() string { return "fake" }

func (f *fakeChannel) wait(t *testing.T, n int) []Payload {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.done:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for alert %d", i+1)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Payload, len(f.payloads))
	copy(out, f.payloads)
	return out
}

func TestAlert_FansOutToAllChannels(t *testing.T) {
	m := NewManager(logging.NewNop())
	ch1 := newFakeChannel(1)
	ch2 := newFakeChannel(1)
	m.AddChannel(ch1)
	m.AddChannel(ch2)

	m.Alert(context.Background(), "Title", "Message", Warning, map[string]string{"k": "v"})

	for _, ch := range []*fakeChannel{ch1, ch2} {
		payloads := ch.wait(t, 1)
		require.Len(t, payloads, 1)
		assert.Equal(t, "Title", payloads[0].Title)
		assert.Equal(t, Warning, payloads[0].Level)
		assert.Equal(t, "v", payloads[0].Fields["k"])
	}
}

func TestAlert_NoChannelsIsNoOp(t *testing.T) {
	m := NewManager(logging.NewNop())
	m.Alert(context.Background(), "Title", "Message", Info, nil)
}

func TestRoundEvent_BuildsFields(t *testing.T) {
	m := NewManager(logging.NewNop())
	ch := newFakeChannel(2)
	m.AddChannel(ch)

	deadline := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	m.RoundEvent("started", core.RoundSnapshot{Status: core.RoundRunning, Deadline: deadline})
	ch.wait(t, 1)
	m.RoundEvent("paused", core.RoundSnapshot{Status: core.RoundPaused, Remaining: 20 * time.Minute})

	payloads := ch.wait(t, 1)
	require.Len(t, payloads, 2)

	assert.Equal(t, "Round started", payloads[0].Title)
	assert.Equal(t, string(core.RoundRunning), payloads[0].Fields["status"])
	assert.Equal(t, deadline.Format(time.RFC3339), payloads[0].Fields["deadline"])

	assert.Equal(t, "Round paused", payloads[1].Title)
	assert.Equal(t, "20m0s", payloads[1].Fields["remaining"])
}
