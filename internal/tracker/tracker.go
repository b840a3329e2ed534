// Package tracker accumulates per-window focus dwell from the OS focus-change
// subscription and emits closed window activity records. Like the idle
// monitor, a single goroutine owns all in-flight state.
package tracker

import (
	"context"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/hourglass-app/hourglass/internal/models"
	"github.com/hourglass-app/hourglass/pkg/probe"
)

// Source is the focus slice of the OS probe.
type Source interface {
	FocusedWindow() (*probe.WindowInfo, error)
	Subscribe(cb func(probe.WindowInfo)) error
	Unsubscribe()
}

// Sink receives closed dwell records. Must not block.
type Sink interface {
	SaveWindowActivity(activity *models.WindowActivity)
}

// Clock abstracts wall-clock reads for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Tracker consumes focus-change events and closes one dwell record per
// window change. A change within the same second of the previous one yields
// no record; that is de-bounce, not an error.
type Tracker struct {
	source Source
	sink   Sink
	clock  Clock

	last     *probe.WindowInfo
	segStart time.Time

	cmds chan func()
	quit chan struct{}
	done chan struct{}

	mu       sync.Mutex
	running  bool
	disabled bool // probe failed; tracker degraded itself
}

func New(source Source, sink Sink, clock Clock) *Tracker {
	if clock == nil {
		clock = systemClock{}
	}
	return &Tracker{
		source: source,
		sink:   sink,
		clock:  clock,
	}
}

// Start queries the current focus synchronously and subscribes to changes.
// A probe failure disables the tracker instead of failing the engine: the
// idle monitor keeps running without window attribution.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}
	if t.source == nil {
		t.disabled = true
		log.Printf("Window tracking disabled: no focus probe available")
		return nil
	}

	t.cmds = make(chan func())
	t.quit = make(chan struct{})
	t.done = make(chan struct{})
	t.last = nil
	t.segStart = time.Time{}

	if info, err := t.source.FocusedWindow(); err != nil {
		// Might be a transient miss; the first subscription event recovers.
		log.Printf("Failed to get initial focused window: %v", err)
	} else if info != nil {
		t.last = info
		t.segStart = t.clock.Now()
		log.Printf("Initial window: %s - %s", info.AppName, info.Title)
	}

	err := t.source.Subscribe(func(info probe.WindowInfo) {
		t.do(func() { t.handleChange(info, t.clock.Now()) })
	})
	if err != nil {
		t.disabled = true
		t.last = nil
		t.segStart = time.Time{}
		log.Printf("Window tracking disabled: focus subscription failed: %v", err)
		return nil
	}

	t.running = true
	go t.run()
	log.Println("Window tracking started")
	return nil
}

func (t *Tracker) run() {
	defer close(t.done)
	for {
		select {
		case <-t.quit:
			return
		case fn := <-t.cmds:
			fn()
		}
	}
}

// do serializes fn onto the tracker goroutine; events arriving after stop are
// dropped.
func (t *Tracker) do(fn func()) {
	select {
	case t.cmds <- fn:
	case <-t.done:
	}
}

// handleChange runs on the tracker goroutine. A new window is any change in
// the (window id, title, app) triple, so browser tab switches count.
func (t *Tracker) handleChange(info probe.WindowInfo, now time.Time) {
	if t.last == nil {
		t.last = &info
		t.segStart = now
		return
	}

	same := t.last.WindowID == info.WindowID &&
		t.last.Title == info.Title &&
		t.last.AppName == info.AppName
	if same {
		return
	}

	t.closeSegment(t.last, t.segStart, now)
	t.last = &info
	t.segStart = now
}

// closeSegment emits the dwell record for the window that just lost focus.
func (t *Tracker) closeSegment(info *probe.WindowInfo, start, end time.Time) {
	duration := int64(end.Sub(start).Seconds())
	if duration <= 0 {
		return
	}

	activity := &models.WindowActivity{
		Timestamp:       models.FormatUTC(start),
		DurationSeconds: duration,
		AppName:         appName(info),
		WindowTitle:     windowTitle(info),
		URL:             SanitizeURL(info.URL),
	}
	if info.PID > 0 {
		pid := info.PID
		activity.ProcessID = &pid
	}

	t.sink.SaveWindowActivity(activity)
	log.Printf("Window activity: %s - %s (%ds)", activity.AppName, activity.WindowTitle, duration)
}

func appName(info *probe.WindowInfo) string {
	if info.AppName != "" {
		return info.AppName
	}
	if info.ProcessName != "" {
		return info.ProcessName
	}
	return "Unknown"
}

func windowTitle(info *probe.WindowInfo) string {
	if info.Title != "" {
		return info.Title
	}
	return "Untitled"
}

// SanitizeURL strips the query string and fragment, keeping only
// scheme://host/path. Anything unparseable becomes nil rather than risking
// sensitive text in the database.
func SanitizeURL(raw string) *string {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	clean := u.Scheme + "://" + u.Host + u.Path
	return &clean
}

// Running reports whether the tracker is consuming focus events.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Disabled reports whether the tracker shut itself off after a probe failure.
func (t *Tracker) Disabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disabled
}

// Stop flushes the open dwell segment and unsubscribes, bounded by ctx.
func (t *Tracker) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.mu.Unlock()

	t.source.Unsubscribe()

	t.do(func() {
		if t.last != nil && !t.segStart.IsZero() {
			t.closeSegment(t.last, t.segStart, t.clock.Now())
		}
		t.last = nil
		t.segStart = time.Time{}
		close(t.quit)
	})

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
