// Package query is the read surface over the period store. It validates
// caller-supplied ranges before touching the database and splices the live
// in-flight segment into closed-period results.
package query

import (
	"time"

	"github.com/hourglass-app/hourglass/internal/idle"
	"github.com/hourglass-app/hourglass/internal/models"

	"github.com/pkg/errors"
)

// topWindowsPerPeriod bounds the enrichment payload per period.
const topWindowsPerPeriod = 5

// ErrInvalidRange marks a malformed or inverted query range. The API layer
// maps it to a 400.
var ErrInvalidRange = errors.New("invalid query range")

// Store is the slice of the repository the facade reads from.
type Store interface {
	PeriodsInRange(startISO, endISO string) ([]*models.ActivityPeriod, error)
	WindowActivitiesInRange(startISO, endISO string) ([]*models.WindowActivity, error)
	WindowActivityStats(startISO, endISO string, limit int) ([]models.WindowActivityStat, error)
	DeleteAllPeriods() error
	DeleteAllWindowActivities() error
}

// Live exposes the in-flight segment of the idle monitor. Nil snapshots mean
// detection is off or the monitor is stopped.
type Live interface {
	Snapshot() *idle.Segment
}

// Period is a closed or in-flight activity period as returned to callers.
// In-flight periods carry no ID and report their end as the query instant.
type Period struct {
	ID         uint                        `json:"id,omitempty"`
	Start      string                      `json:"start"`
	End        string                      `json:"end"`
	IsIdle     bool                        `json:"isIdle"`
	InProgress bool                        `json:"inProgress,omitempty"`
	TopWindows []models.WindowActivityStat `json:"topWindows,omitempty"`
}

// Facade answers range queries and purge requests.
type Facade struct {
	store Store
	live  Live
}

func NewFacade(store Store, live Live) *Facade {
	return &Facade{store: store, live: live}
}

// validateRange parses both bounds and checks ordering. Runs before any
// database access.
func validateRange(startISO, endISO string) (time.Time, time.Time, error) {
	start, err := models.ParseUTC(startISO)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(ErrInvalidRange, "start %q", startISO)
	}
	end, err := models.ParseUTC(endISO)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(ErrInvalidRange, "end %q", endISO)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, errors.Wrapf(ErrInvalidRange, "start %q after end %q", startISO, endISO)
	}
	return start, end, nil
}

// ActivityPeriods returns closed periods inside the range plus the in-flight
// segment when it overlaps, ordered by start. With includeWindows each period
// carries its top window activities by dwell.
func (f *Facade) ActivityPeriods(startISO, endISO string, includeWindows bool) ([]Period, error) {
	start, end, err := validateRange(startISO, endISO)
	if err != nil {
		return nil, err
	}

	// Stored timestamps always carry millisecond precision; re-format the
	// parsed bounds so second-precision input compares correctly.
	stored, err := f.store.PeriodsInRange(models.FormatUTC(start), models.FormatUTC(end))
	if err != nil {
		return nil, err
	}

	periods := make([]Period, 0, len(stored)+1)
	for _, p := range stored {
		periods = append(periods, Period{
			ID:     p.ID,
			Start:  p.Start,
			End:    p.End,
			IsIdle: p.IsIdle,
		})
	}

	if live := f.liveOverlapping(start, end); live != nil {
		periods = append(periods, *live)
	}

	if includeWindows {
		for i := range periods {
			stats, err := f.store.WindowActivityStats(periods[i].Start, periods[i].End, topWindowsPerPeriod)
			if err != nil {
				return nil, err
			}
			periods[i].TopWindows = stats
		}
	}

	return periods, nil
}

// liveOverlapping converts the in-flight segment into a Period when it
// overlaps [start, end). End is pinned to the query instant by the snapshot.
func (f *Facade) liveOverlapping(start, end time.Time) *Period {
	if f.live == nil {
		return nil
	}
	seg := f.live.Snapshot()
	if seg == nil {
		return nil
	}
	if !seg.End.After(start) || !seg.Start.Before(end) {
		return nil
	}
	if !seg.Start.Before(seg.End) {
		return nil
	}
	return &Period{
		Start:      models.FormatUTC(seg.Start),
		End:        models.FormatUTC(seg.End),
		IsIdle:     seg.Idle,
		InProgress: true,
	}
}

// WindowActivities returns the raw dwell records inside the range.
func (f *Facade) WindowActivities(startISO, endISO string) ([]*models.WindowActivity, error) {
	start, end, err := validateRange(startISO, endISO)
	if err != nil {
		return nil, err
	}
	return f.store.WindowActivitiesInRange(models.FormatUTC(start), models.FormatUTC(end))
}

// WindowActivityStats returns summed dwell per (app, url, title) inside the
// range, descending. limit <= 0 returns all rows.
func (f *Facade) WindowActivityStats(startISO, endISO string, limit int) ([]models.WindowActivityStat, error) {
	start, end, err := validateRange(startISO, endISO)
	if err != nil {
		return nil, err
	}
	return f.store.WindowActivityStats(models.FormatUTC(start), models.FormatUTC(end), limit)
}

// DeleteAllActivityPeriods purges every stored period.
func (f *Facade) DeleteAllActivityPeriods() error {
	return f.store.DeleteAllPeriods()
}

// DeleteAllWindowActivities purges every stored dwell record.
func (f *Facade) DeleteAllWindowActivities() error {
	return f.store.DeleteAllWindowActivities()
}
