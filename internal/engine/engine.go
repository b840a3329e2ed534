// Package engine wires the probe, the idle monitor, the window tracker and the
// persistence layer together and applies settings changes to the running
// pieces.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hourglass-app/hourglass/internal/idle"
	"github.com/hourglass-app/hourglass/internal/models"
	"github.com/hourglass-app/hourglass/internal/settings"
	"github.com/hourglass-app/hourglass/internal/store"
	"github.com/hourglass-app/hourglass/internal/tracker"
	"github.com/hourglass-app/hourglass/pkg/probe"
)

// Config assembles an Engine. Probe may be nil when the OS capability is
// unavailable; the engine then runs without idle detection or window tracking.
type Config struct {
	Writer   *store.AsyncWriter
	Settings *settings.Service
	Probe    probe.Probe

	// ProbeError is the reason Probe is nil, surfaced in Status.
	ProbeError error

	// Prompter surfaces idle disposition prompts. Nil means headless.
	Prompter idle.Prompter

	// OnOutcome is forwarded to the idle monitor.
	OnOutcome func(idle.Outcome)

	// TickInterval is the idle sampling cadence. Defaults to 1 second.
	TickInterval time.Duration

	// FlushGrace bounds the shutdown flush. Defaults to 3 seconds.
	FlushGrace time.Duration
}

// Status is the runtime state snapshot served by the API and CLI.
type Status struct {
	ProbeAvailable          bool           `json:"probeAvailable"`
	ProbeError              string         `json:"probeError,omitempty"`
	IdleDetectionEnabled    bool           `json:"idleDetectionEnabled"`
	ActivityTrackingEnabled bool           `json:"activityTrackingEnabled"`
	TrackerRunning          bool           `json:"trackerRunning"`
	TimerRunning            bool           `json:"timerRunning"`
	CurrentPeriod           *CurrentPeriod `json:"currentPeriod,omitempty"`
}

// CurrentPeriod is the in-flight segment with its end pinned to now.
type CurrentPeriod struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	IsIdle bool   `json:"isIdle"`
}

// Engine owns the lifecycle of the monitoring components.
type Engine struct {
	settings   *settings.Service
	writer     *store.AsyncWriter
	probe      probe.Probe
	probeErr   error
	flushGrace time.Duration

	monitor *idle.Monitor
	tracker *tracker.Tracker

	mu           sync.Mutex
	current      settings.App
	timerRunning bool
	started      bool
}

// periodSink adapts closed idle segments onto the async writer.
type periodSink struct {
	writer *store.AsyncWriter
}

func (s periodSink) SavePeriod(start, end time.Time, isIdle bool) {
	s.writer.EnqueuePeriod(&models.ActivityPeriod{
		Start:  models.FormatUTC(start),
		End:    models.FormatUTC(end),
		IsIdle: isIdle,
	})
}

// activitySink adapts closed dwell records onto the async writer.
type activitySink struct {
	writer *store.AsyncWriter
}

func (s activitySink) SaveWindowActivity(activity *models.WindowActivity) {
	s.writer.EnqueueWindowActivity(activity)
}

const defaultFlushGrace = 3 * time.Second

func New(cfg Config) *Engine {
	if cfg.FlushGrace <= 0 {
		cfg.FlushGrace = defaultFlushGrace
	}

	e := &Engine{
		settings:   cfg.Settings,
		writer:     cfg.Writer,
		probe:      cfg.Probe,
		probeErr:   cfg.ProbeError,
		flushGrace: cfg.FlushGrace,
		current:    cfg.Settings.Load(),
	}

	if e.probe != nil {
		e.monitor = idle.NewMonitor(idle.Config{
			Source:           e.probe,
			Sink:             periodSink{writer: e.writer},
			Prompter:         cfg.Prompter,
			OnOutcome:        cfg.OnOutcome,
			ThresholdSeconds: e.current.IdleThresholdMinutes * 60,
			Interval:         cfg.TickInterval,
			DetectionEnabled: e.current.IdleDetectionEnabled,
		})
		e.tracker = tracker.New(e.probe, activitySink{writer: e.writer}, nil)
	}

	return e
}

// Start launches the components enabled by the stored settings.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	e.started = true

	if e.probe == nil {
		log.Printf("Monitoring disabled, probe unavailable: %v", e.probeErr)
		return nil
	}

	e.monitor.Start()
	log.Printf("Idle monitoring started (threshold: %d min, detection: %v)",
		e.current.IdleThresholdMinutes, e.current.IdleDetectionEnabled)

	if e.current.ActivityTrackingEnabled {
		if err := e.tracker.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Settings returns the current settings snapshot.
func (e *Engine) Settings() settings.App {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// UpdateSettings persists patch and applies each changed field to the running
// components immediately.
func (e *Engine) UpdateSettings(patch settings.Patch) (settings.App, error) {
	applied, err := e.settings.Apply(patch)
	if err != nil {
		return applied, err
	}

	e.mu.Lock()
	previous := e.current
	e.current = applied
	started := e.started
	e.mu.Unlock()

	if e.monitor != nil {
		if applied.IdleThresholdMinutes != previous.IdleThresholdMinutes {
			e.monitor.SetThresholdMinutes(applied.IdleThresholdMinutes)
		}
		if applied.IdleDetectionEnabled != previous.IdleDetectionEnabled {
			e.monitor.SetDetectionEnabled(applied.IdleDetectionEnabled)
		}
	}

	if e.tracker != nil && started && applied.ActivityTrackingEnabled != previous.ActivityTrackingEnabled {
		if applied.ActivityTrackingEnabled {
			if err := e.tracker.Start(); err != nil {
				log.Printf("Failed to start window tracking: %v", err)
			}
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), e.flushGrace)
			defer cancel()
			if err := e.tracker.Stop(ctx); err != nil {
				log.Printf("Window tracking stop exceeded grace window: %v", err)
			}
		}
	}

	return applied, nil
}

// SetTimerRunning tells the idle monitor whether a user timer is active, which
// decides between automatic idle persistence and the disposition prompt.
func (e *Engine) SetTimerRunning(running bool) {
	e.mu.Lock()
	e.timerRunning = running
	e.mu.Unlock()
	if e.monitor != nil {
		e.monitor.SetTimerRunning(running)
	}
}

// Snapshot exposes the in-flight idle segment, nil when detection is off or
// the probe is unavailable.
func (e *Engine) Snapshot() *idle.Segment {
	if e.monitor == nil {
		return nil
	}
	return e.monitor.Snapshot()
}

// Status reports the runtime state for the status endpoint and CLI.
func (e *Engine) Status() Status {
	e.mu.Lock()
	current := e.current
	timerRunning := e.timerRunning
	e.mu.Unlock()

	status := Status{
		ProbeAvailable:          e.probe != nil,
		IdleDetectionEnabled:    current.IdleDetectionEnabled,
		ActivityTrackingEnabled: current.ActivityTrackingEnabled,
		TimerRunning:            timerRunning,
	}
	if e.probeErr != nil {
		status.ProbeError = e.probeErr.Error()
	}
	if e.tracker != nil {
		status.TrackerRunning = e.tracker.Running()
	}
	if seg := e.Snapshot(); seg != nil {
		status.CurrentPeriod = &CurrentPeriod{
			Start:  models.FormatUTC(seg.Start),
			End:    models.FormatUTC(seg.End),
			IsIdle: seg.Idle,
		}
	}
	return status
}

// Shutdown flushes both monitors concurrently within the grace window, then
// drains the async writer. A component exceeding the grace window is abandoned.
func (e *Engine) Shutdown(ctx context.Context) error {
	graceCtx, cancel := context.WithTimeout(ctx, e.flushGrace)
	defer cancel()

	var wg sync.WaitGroup
	if e.monitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.monitor.Stop(graceCtx); err != nil {
				log.Printf("Idle monitor flush abandoned: %v", err)
			}
		}()
	}
	if e.tracker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.tracker.Stop(graceCtx); err != nil {
				log.Printf("Window tracker flush abandoned: %v", err)
			}
		}()
	}
	wg.Wait()

	if err := e.writer.Close(graceCtx); err != nil {
		return err
	}

	if e.probe != nil {
		if err := e.probe.Close(); err != nil {
			log.Printf("Probe close failed: %v", err)
		}
	}
	return nil
}
