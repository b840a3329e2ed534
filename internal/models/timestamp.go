package models

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Timestamps are stored as ISO 8601 UTC strings with millisecond precision and a
// trailing 'Z'. Storing text keeps range filters string-comparable in SQLite.
const utcLayout = "2006-01-02T15:04:05.000Z"

// ErrInvalidTimestamp marks a timestamp that is not strict ISO 8601 UTC.
var ErrInvalidTimestamp = errors.New("invalid UTC timestamp")

// FormatUTC renders t in the canonical stored form.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(utcLayout)
}

// IsValidUTCTimestamp reports whether s is a parseable ISO 8601 timestamp in UTC.
// Both "2024-01-01T00:00:00Z" and the millisecond form are accepted; anything
// without the 'T' separator or 'Z' suffix is not.
func IsValidUTCTimestamp(s string) bool {
	_, err := ParseUTC(s)
	return err == nil
}

// ParseUTC parses a stored or caller-supplied timestamp, enforcing UTC form.
func ParseUTC(s string) (time.Time, error) {
	if s == "" || !strings.Contains(s, "T") || !strings.HasSuffix(s, "Z") {
		return time.Time{}, errors.Wrapf(ErrInvalidTimestamp, "%q", s)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrInvalidTimestamp, "%q", s)
	}
	return t.UTC(), nil
}
