package models

import (
	"time"

	"github.com/pkg/errors"
)

// WindowActivity is one continuous focus dwell on a single window. A focus
// change always closes exactly one record before the next one opens.
type WindowActivity struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Timestamp       string    `gorm:"not null;index" json:"timestamp"` // dwell start, ISO 8601 UTC
	DurationSeconds int64     `gorm:"not null" json:"durationSeconds"`
	AppName         string    `gorm:"not null;index" json:"appName"`
	WindowTitle     string    `gorm:"not null" json:"windowTitle"`
	URL             *string   `json:"url"`
	ProcessID       *int32    `json:"processId"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"-"`
}

// Validate checks a record before insertion. Zero-duration dwells are expected
// upstream and must be dropped before they get here.
func (a *WindowActivity) Validate() error {
	if _, err := ParseUTC(a.Timestamp); err != nil {
		return errors.Wrap(err, "timestamp")
	}
	if a.DurationSeconds < 1 {
		return errors.Errorf("duration must be at least 1 second, got %d", a.DurationSeconds)
	}
	if a.AppName == "" {
		return errors.New("app name must not be empty")
	}
	if a.WindowTitle == "" {
		return errors.New("window title must not be empty")
	}
	return nil
}

// WindowActivityStat is an aggregation row: total dwell per distinct
// (app, url, title) triple within a queried range.
type WindowActivityStat struct {
	AppName      string  `json:"appName"`
	URL          *string `json:"url"`
	WindowTitle  string  `json:"windowTitle"`
	TotalSeconds int64   `json:"totalSeconds"`
}
