package idle

import (
	"context"
	"log"
	"sync"
	"time"
)

// Config wires a Monitor. Source and Sink are required; the rest default.
type Config struct {
	Source Source
	Sink   Sink

	// Clock defaults to the system clock.
	Clock Clock

	// Prompter surfaces the idle disposition dialog. Nil means headless:
	// finished idle periods persist automatically.
	Prompter Prompter

	// OnOutcome is invoked after a prompted idle interval resolves.
	OnOutcome func(Outcome)

	// ThresholdSeconds is the idle threshold. Defaults to 300 (5 minutes).
	ThresholdSeconds int

	// Interval is the sampling cadence. Defaults to 1 second.
	Interval time.Duration

	// DetectionEnabled is the initial enabled state.
	DetectionEnabled bool

	// TimerRunning is the initial timer state.
	TimerRunning bool
}

// Monitor runs the segmentation state machine on its own goroutine. External
// callers (settings updates, the query facade, shutdown) communicate through
// closures executed on that goroutine, so there is exactly one writer of
// in-flight state and no locks.
type Monitor struct {
	mach      machine
	clock     Clock
	prompter  Prompter
	onOutcome func(Outcome)
	interval  time.Duration

	cmds chan func()
	quit chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.ThresholdSeconds <= 0 {
		cfg.ThresholdSeconds = 300
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	return &Monitor{
		mach: machine{
			source:       cfg.Source,
			sink:         cfg.Sink,
			threshold:    cfg.ThresholdSeconds,
			enabled:      cfg.DetectionEnabled,
			timerRunning: cfg.TimerRunning,
		},
		clock:     cfg.Clock,
		prompter:  cfg.Prompter,
		onOutcome: cfg.OnOutcome,
		interval:  cfg.Interval,
		cmds:      make(chan func()),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sampling loop. Safe to call once.
func (m *Monitor) Start() {
	m.startOnce.Do(func() { go m.run() })
}

func (m *Monitor) run() {
	defer close(m.done)

	if m.mach.enabled {
		m.mach.begin(m.clock.Now())
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return
		case fn := <-m.cmds:
			fn()
		case <-ticker.C:
			if req := m.mach.tick(m.clock.Now()); req != nil {
				go m.promptAndResolve(*req)
			}
		}
	}
}

// promptAndResolve runs off the monitor goroutine: the prompt can take as long
// as the user does. The decision is applied back on the monitor goroutine.
// Without a prompter the interval resolves to Keep immediately.
func (m *Monitor) promptAndResolve(req PromptRequest) {
	choice := Keep
	if m.prompter != nil {
		var err error
		choice, err = m.prompter.PromptIdle(context.Background(), req)
		if err != nil {
			log.Printf("Idle disposition prompt failed, keeping idle time: %v", err)
			choice = Keep
		}
	}

	m.do(func() { m.mach.resolve(choice, req) })

	if m.onOutcome != nil {
		m.onOutcome(Outcome{Choice: choice, IdleStart: req.IdleStart, IdleEnd: req.IdleEnd})
	}
}

// do executes fn on the monitor goroutine, or drops it if the loop has exited.
func (m *Monitor) do(fn func()) {
	select {
	case m.cmds <- fn:
	case <-m.done:
	}
}

// Snapshot returns the in-flight segment with End pinned to the current
// instant, or nil when nothing is open.
func (m *Monitor) Snapshot() *Segment {
	reply := make(chan *Segment, 1)
	m.do(func() { reply <- m.mach.snapshot(m.clock.Now()) })
	select {
	case seg := <-reply:
		return seg
	case <-m.done:
		return nil
	}
}

// SetThresholdMinutes updates the idle threshold with immediate effect.
func (m *Monitor) SetThresholdMinutes(minutes int) {
	if minutes <= 0 {
		log.Printf("Ignoring invalid idle threshold: %d minutes", minutes)
		return
	}
	m.do(func() { m.mach.threshold = minutes * 60 })
}

// SetDetectionEnabled toggles sampling. Disabling flushes the open segment as
// a best-effort close at now; re-enabling re-samples and may backdate.
func (m *Monitor) SetDetectionEnabled(enabled bool) {
	m.do(func() {
		if m.mach.enabled == enabled {
			return
		}
		m.mach.enabled = enabled
		if enabled {
			m.mach.begin(m.clock.Now())
		} else {
			m.mach.flush(m.clock.Now())
		}
	})
}

// SetTimerRunning records whether a timer is running, which decides between
// automatic persistence and the disposition prompt on Idle->Active.
func (m *Monitor) SetTimerRunning(running bool) {
	m.do(func() { m.mach.timerRunning = running })
}

// Stop flushes the in-flight segment and terminates the loop, bounded by ctx.
func (m *Monitor) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.do(func() {
			if m.mach.enabled {
				m.mach.flush(m.clock.Now())
			}
			close(m.quit)
		})
	})

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
