// Package idle turns the once-per-second stream of system idle-time samples
// into closed Active/Idle periods. All mutable state is owned by a single
// goroutine; everything else talks to it through commands.
package idle

import (
	"context"
	"encoding/json"
	"time"
)

// Source is the OS idle-time capability, satisfied by probe implementations.
type Source interface {
	IdleSeconds() (int, error)
}

// Sink receives closed periods. Implementations must not block; persistence
// failures are the sink's problem and never reach the state machine.
type Sink interface {
	SavePeriod(start, end time.Time, idle bool)
}

// Clock abstracts wall-clock reads so transitions are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Segment is an in-flight, not-yet-persisted period.
type Segment struct {
	Start time.Time
	End   time.Time
	Idle  bool
}

// Choice is the user's disposition for a completed idle interval.
type Choice int

const (
	// Keep persists the idle period.
	Keep Choice = iota
	// Discard drops the idle period.
	Discard
	// DiscardAndRestart drops the idle period; the UI restarts its timer.
	DiscardAndRestart
)

func (c Choice) String() string {
	switch c {
	case Keep:
		return "keep"
	case Discard:
		return "discard"
	case DiscardAndRestart:
		return "discard_and_restart"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the choice by its wire name so outcome events are
// readable by UI clients.
func (c Choice) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// PromptRequest asks the user what to do with a finished idle interval.
type PromptRequest struct {
	ID              string    `json:"id"`
	IdleStart       time.Time `json:"idleStart"`
	IdleEnd         time.Time `json:"idleEnd"`
	DurationSeconds int       `json:"durationSeconds"`
}

// Prompter surfaces a disposition prompt to the user. It may block for a long
// time; the monitor never waits on it from its own goroutine. An error means
// the prompt could not be delivered and the engine falls back to Keep.
type Prompter interface {
	PromptIdle(ctx context.Context, req PromptRequest) (Choice, error)
}

// Outcome reports how a prompted idle interval was resolved.
type Outcome struct {
	Choice    Choice    `json:"choice"`
	IdleStart time.Time `json:"idleStartTime"`
	IdleEnd   time.Time `json:"idleEndTime"`
}
