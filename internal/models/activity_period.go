package models

import (
	"time"

	"github.com/pkg/errors"
)

// ActivityPeriod is a closed interval of user state: active at the machine or
// idle. Rows are immutable once written; they are only ever bulk-purged.
type ActivityPeriod struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Start     string    `gorm:"not null;index" json:"start"` // ISO 8601 UTC
	End       string    `gorm:"not null;index" json:"end"`   // ISO 8601 UTC
	IsIdle    bool      `gorm:"not null;default:false" json:"isIdle"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
}

// Validate checks a period before insertion: both bounds must be strict UTC
// timestamps and the interval must have positive length.
func (p *ActivityPeriod) Validate() error {
	start, err := ParseUTC(p.Start)
	if err != nil {
		return errors.Wrap(err, "start")
	}
	end, err := ParseUTC(p.End)
	if err != nil {
		return errors.Wrap(err, "end")
	}
	if !start.Before(end) {
		return errors.Errorf("start must be before end (start=%s end=%s)", p.Start, p.End)
	}
	return nil
}
