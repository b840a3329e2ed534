package idle

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// machine is the segmentation state machine proper. It is purely synchronous:
// ticks come in, closed periods go to the sink, and a prompt request comes
// back when one is needed. The Monitor goroutine is its only caller.
type machine struct {
	source Source
	sink   Sink

	threshold    int // seconds
	enabled      bool
	timerRunning bool

	isIdle      bool
	idleStart   time.Time
	activeStart time.Time
	awaiting    bool // a disposition prompt is pending; suppress further ones
}

// begin samples the current idle state and opens the first in-flight segment.
// If the system is already past the threshold the idle start is backdated by
// the reported idle seconds: the idle stretch began before monitoring did.
func (m *machine) begin(now time.Time) {
	m.isIdle = false
	m.idleStart, m.activeStart = time.Time{}, time.Time{}

	idleSecs, err := m.source.IdleSeconds()
	if err != nil {
		log.Printf("Idle probe failed at start, assuming active: %v", err)
		m.activeStart = now
		return
	}

	if idleSecs >= m.threshold {
		m.isIdle = true
		m.idleStart = now.Add(-time.Duration(idleSecs) * time.Second)
		log.Printf("System already idle at monitoring start, idle since %s", m.idleStart.UTC().Format(time.RFC3339))
	} else {
		m.activeStart = now
	}
}

// tick evaluates one idle-seconds sample. The returned request is non-nil when
// an Idle->Active transition needs a user disposition. A failed sample skips
// the tick; the next one retries naturally.
func (m *machine) tick(now time.Time) *PromptRequest {
	if !m.enabled {
		return nil
	}

	idleSecs, err := m.source.IdleSeconds()
	if err != nil {
		log.Printf("Idle probe failed, skipping tick: %v", err)
		return nil
	}

	if idleSecs >= m.threshold {
		if !m.isIdle {
			m.becomeIdle(now, idleSecs)
		}
		return nil
	}

	if m.isIdle {
		return m.becomeActive(now)
	}
	return nil
}

// becomeIdle closes the active segment at now-idleSecs and opens the idle one
// at the same instant. The boundary is clamped so it never precedes the active
// start; a segment clamped to zero length is skipped, not persisted.
func (m *machine) becomeIdle(now time.Time, idleSecs int) {
	boundary := now.Add(-time.Duration(idleSecs) * time.Second)

	if !m.activeStart.IsZero() {
		if boundary.Before(m.activeStart) {
			boundary = m.activeStart
		}
		if boundary.After(m.activeStart) {
			m.sink.SavePeriod(m.activeStart, boundary, false)
		}
	}

	m.isIdle = true
	m.idleStart = boundary
	m.activeStart = time.Time{}
	log.Printf("System became idle, idle since %s", boundary.UTC().Format(time.RFC3339))
}

// becomeActive closes the idle segment at now. The new active segment opens
// immediately regardless of how (or whether) the idle interval is disposed:
// live tracking never stalls waiting on user input.
func (m *machine) becomeActive(now time.Time) *PromptRequest {
	idleStart, idleEnd := m.idleStart, now

	m.isIdle = false
	m.idleStart = time.Time{}
	m.activeStart = now

	log.Printf("System became active, idle duration %ds", int(idleEnd.Sub(idleStart).Seconds()))

	if !m.timerRunning {
		m.persistIdle(idleStart, idleEnd)
		return nil
	}
	if m.awaiting {
		// At most one pending decision; an idle interval ending while a
		// prompt is open is dropped rather than stacking dialogs.
		return nil
	}

	m.awaiting = true
	return &PromptRequest{
		ID:              uuid.NewString(),
		IdleStart:       idleStart,
		IdleEnd:         idleEnd,
		DurationSeconds: int(idleEnd.Sub(idleStart).Seconds()),
	}
}

// resolve applies a disposition decision and clears the suppression flag.
func (m *machine) resolve(choice Choice, req PromptRequest) {
	m.awaiting = false
	if choice == Keep {
		m.persistIdle(req.IdleStart, req.IdleEnd)
		return
	}
	log.Printf("Idle time %s to %s discarded (%s)",
		req.IdleStart.UTC().Format(time.RFC3339), req.IdleEnd.UTC().Format(time.RFC3339), choice)
}

// flush persists whatever segment is open as a best-effort close at now and
// clears all in-flight state. Used when detection is disabled and at shutdown.
func (m *machine) flush(now time.Time) {
	if m.isIdle && !m.idleStart.IsZero() {
		m.persistIdle(m.idleStart, now)
	} else if !m.activeStart.IsZero() && now.After(m.activeStart) {
		m.sink.SavePeriod(m.activeStart, now, false)
	}

	m.isIdle = false
	m.idleStart, m.activeStart = time.Time{}, time.Time{}
	m.awaiting = false
}

func (m *machine) persistIdle(start, end time.Time) {
	if end.After(start) {
		m.sink.SavePeriod(start, end, true)
	}
}

// snapshot returns the open segment with end pinned to now, or nil when
// nothing is in flight.
func (m *machine) snapshot(now time.Time) *Segment {
	if m.isIdle && !m.idleStart.IsZero() {
		return &Segment{Start: m.idleStart, End: now, Idle: true}
	}
	if !m.isIdle && !m.activeStart.IsZero() {
		return &Segment{Start: m.activeStart, End: now, Idle: false}
	}
	return nil
}
