package idle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type atomicSource struct {
	idle atomic.Int64
}

func (a *atomicSource) IdleSeconds() (int, error) { return int(a.idle.Load()), nil }

type recordingPrompter struct {
	mu     sync.Mutex
	reqs   []PromptRequest
	choice Choice
}

func (p *recordingPrompter) PromptIdle(_ context.Context, req PromptRequest) (Choice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	return p.choice, nil
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestMonitorSnapshotAdvancesWithClock(t *testing.T) {
	source := &atomicSource{}
	sink := &recorderSink{}
	m := NewMonitor(Config{
		Source:           source,
		Sink:             sink,
		ThresholdSeconds: 300,
		Interval:         5 * time.Millisecond,
		DetectionEnabled: true,
	})
	m.Start()
	defer m.Stop(context.Background())

	first := m.Snapshot()
	require.NotNil(t, first)
	assert.False(t, first.Idle)

	time.Sleep(20 * time.Millisecond)
	second := m.Snapshot()
	require.NotNil(t, second)
	assert.True(t, second.End.After(first.End), "in-flight end tracks wall clock")
	assert.True(t, second.Start.Equal(first.Start))
}

func TestMonitorIdleTransitionThroughLoop(t *testing.T) {
	source := &atomicSource{}
	sink := &recorderSink{}
	m := NewMonitor(Config{
		Source:           source,
		Sink:             sink,
		ThresholdSeconds: 60,
		Interval:         5 * time.Millisecond,
		DetectionEnabled: true,
	})
	m.Start()
	defer m.Stop(context.Background())

	source.idle.Store(120)
	eventually(t, func() bool {
		seg := m.Snapshot()
		return seg != nil && seg.Idle
	}, "monitor never transitioned to idle")

	source.idle.Store(0)
	eventually(t, func() bool {
		seg := m.Snapshot()
		return seg != nil && !seg.Idle
	}, "monitor never transitioned back to active")

	eventually(t, func() bool {
		for _, p := range sink.all() {
			if p.Idle {
				return true
			}
		}
		return false
	}, "idle period never persisted")
}

func TestMonitorPromptOutcomeRoundTrip(t *testing.T) {
	source := &atomicSource{}
	sink := &recorderSink{}
	prompter := &recordingPrompter{choice: DiscardAndRestart}

	var outcomes []Outcome
	var outcomeMu sync.Mutex

	m := NewMonitor(Config{
		Source:   source,
		Sink:     sink,
		Prompter: prompter,
		OnOutcome: func(o Outcome) {
			outcomeMu.Lock()
			outcomes = append(outcomes, o)
			outcomeMu.Unlock()
		},
		ThresholdSeconds: 60,
		Interval:         5 * time.Millisecond,
		DetectionEnabled: true,
		TimerRunning:     true,
	})
	m.Start()
	defer m.Stop(context.Background())

	source.idle.Store(120)
	eventually(t, func() bool {
		seg := m.Snapshot()
		return seg != nil && seg.Idle
	}, "monitor never became idle")

	source.idle.Store(0)
	eventually(t, func() bool {
		outcomeMu.Lock()
		defer outcomeMu.Unlock()
		return len(outcomes) == 1
	}, "outcome never delivered")

	outcomeMu.Lock()
	assert.Equal(t, DiscardAndRestart, outcomes[0].Choice)
	outcomeMu.Unlock()

	for _, p := range sink.all() {
		assert.False(t, p.Idle, "discarded idle interval must not persist")
	}
}

func TestMonitorHeadlessKeepsIdleTime(t *testing.T) {
	source := &atomicSource{}
	sink := &recorderSink{}

	var outcomes []Outcome
	var outcomeMu sync.Mutex

	// No Prompter: a running timer must still resolve to Keep, not crash.
	m := NewMonitor(Config{
		Source: source,
		Sink:   sink,
		OnOutcome: func(o Outcome) {
			outcomeMu.Lock()
			outcomes = append(outcomes, o)
			outcomeMu.Unlock()
		},
		ThresholdSeconds: 60,
		Interval:         5 * time.Millisecond,
		DetectionEnabled: true,
		TimerRunning:     true,
	})
	m.Start()
	defer m.Stop(context.Background())

	source.idle.Store(120)
	eventually(t, func() bool {
		seg := m.Snapshot()
		return seg != nil && seg.Idle
	}, "monitor never became idle")

	source.idle.Store(0)
	eventually(t, func() bool {
		for _, p := range sink.all() {
			if p.Idle {
				return true
			}
		}
		return false
	}, "idle period never persisted without a prompter")

	outcomeMu.Lock()
	defer outcomeMu.Unlock()
	require.Len(t, outcomes, 1)
	assert.Equal(t, Keep, outcomes[0].Choice)
}

func TestMonitorDisableFlushesAndStops(t *testing.T) {
	source := &atomicSource{}
	sink := &recorderSink{}
	m := NewMonitor(Config{
		Source:           source,
		Sink:             sink,
		ThresholdSeconds: 300,
		Interval:         5 * time.Millisecond,
		DetectionEnabled: true,
	})
	m.Start()
	defer m.Stop(context.Background())

	time.Sleep(20 * time.Millisecond)
	m.SetDetectionEnabled(false)

	eventually(t, func() bool { return len(sink.all()) == 1 }, "flush never persisted the open segment")
	assert.False(t, sink.all()[0].Idle)
	assert.Nil(t, m.Snapshot(), "no in-flight segment while disabled")

	// Re-enabling re-samples and opens a fresh segment.
	m.SetDetectionEnabled(true)
	eventually(t, func() bool { return m.Snapshot() != nil }, "re-enable never reopened a segment")
}

func TestMonitorStopIsBounded(t *testing.T) {
	source := &atomicSource{}
	m := NewMonitor(Config{
		Source:           source,
		Sink:             &recorderSink{},
		Interval:         5 * time.Millisecond,
		DetectionEnabled: true,
	})
	m.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))

	// Calls after stop are no-ops, not deadlocks.
	m.SetTimerRunning(true)
	m.SetThresholdMinutes(10)
	assert.Nil(t, m.Snapshot())
}
