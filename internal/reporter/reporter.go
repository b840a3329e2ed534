// Package reporter turns stored periods and window dwell into day/week/month
// summaries for the CLI and the HTTP API.
package reporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hourglass-app/hourglass/internal/models"

	"github.com/pkg/errors"
)

// ErrInvalidPeriod marks an unrecognized report period type. The API layer
// maps it to a 400; store failures stay server-side errors.
var ErrInvalidPeriod = errors.New("invalid period type")

// Store is the read slice the reporter needs.
type Store interface {
	PeriodsInRange(startISO, endISO string) ([]*models.ActivityPeriod, error)
	WindowActivityStats(startISO, endISO string, limit int) ([]models.WindowActivityStat, error)
}

// ReportPeriod is the resolved time range of a report.
type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"`
}

// AppSummary is total dwell for one application within the report period.
type AppSummary struct {
	AppName      string  `json:"appName"`
	TotalSeconds int64   `json:"totalSeconds"`
	TotalMinutes float64 `json:"totalMinutes"`
	TotalHours   float64 `json:"totalHours"`
	Percentage   float64 `json:"percentage"`
}

// Report is the full summary: active vs idle split plus per-app dwell.
type Report struct {
	Period        ReportPeriod `json:"period"`
	ActiveSeconds int64        `json:"activeSeconds"`
	IdleSeconds   int64        `json:"idleSeconds"`
	ActiveHours   float64      `json:"activeHours"`
	IdleHours     float64      `json:"idleHours"`
	Apps          []AppSummary `json:"apps"`
	GeneratedAt   time.Time    `json:"generatedAt"`
}

// Reporter handles report generation
type Reporter struct {
	store Store
	now   func() time.Time
}

// New creates a new reporter
func New(store Store) *Reporter {
	return &Reporter{store: store, now: time.Now}
}

// GenerateReport generates a report for the specified period
func (r *Reporter) GenerateReport(periodType string) (*Report, error) {
	period, err := r.getPeriod(periodType)
	if err != nil {
		return nil, err
	}

	startISO := models.FormatUTC(period.Start)
	endISO := models.FormatUTC(period.End)

	periods, err := r.store.PeriodsInRange(startISO, endISO)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load activity periods")
	}

	var activeSeconds, idleSeconds int64
	for _, p := range periods {
		start, err := models.ParseUTC(p.Start)
		if err != nil {
			continue
		}
		end, err := models.ParseUTC(p.End)
		if err != nil {
			continue
		}
		seconds := int64(end.Sub(start).Seconds())
		if p.IsIdle {
			idleSeconds += seconds
		} else {
			activeSeconds += seconds
		}
	}

	stats, err := r.store.WindowActivityStats(startISO, endISO, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load window activity stats")
	}

	report := &Report{
		Period:        *period,
		ActiveSeconds: activeSeconds,
		IdleSeconds:   idleSeconds,
		ActiveHours:   float64(activeSeconds) / 3600.0,
		IdleHours:     float64(idleSeconds) / 3600.0,
		Apps:          summarizeApps(stats),
		GeneratedAt:   r.now(),
	}

	return report, nil
}

// summarizeApps collapses (app, url, title) stat rows into per-app totals,
// ordered by dwell descending.
func summarizeApps(stats []models.WindowActivityStat) []AppSummary {
	totals := make(map[string]int64)
	var grandTotal int64
	for _, s := range stats {
		totals[s.AppName] += s.TotalSeconds
		grandTotal += s.TotalSeconds
	}

	apps := make([]AppSummary, 0, len(totals))
	for name, seconds := range totals {
		app := AppSummary{
			AppName:      name,
			TotalSeconds: seconds,
			TotalMinutes: float64(seconds) / 60.0,
			TotalHours:   float64(seconds) / 3600.0,
		}
		if grandTotal > 0 {
			app.Percentage = (float64(seconds) / float64(grandTotal)) * 100.0
		}
		apps = append(apps, app)
	}

	sort.Slice(apps, func(i, j int) bool {
		if apps[i].TotalSeconds != apps[j].TotalSeconds {
			return apps[i].TotalSeconds > apps[j].TotalSeconds
		}
		return apps[i].AppName < apps[j].AppName
	})

	return apps
}

// getPeriod calculates the time range for the report
func (r *Reporter) getPeriod(periodType string) (*ReportPeriod, error) {
	now := r.now()
	var start, end time.Time

	switch periodType {
	case "day", "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.Add(24 * time.Hour)

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	default:
		return nil, errors.Wrapf(ErrInvalidPeriod, "%s (valid: day, week, month)", periodType)
	}

	return &ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *Report) string {
	output := fmt.Sprintf("Activity Report - %s\n", report.Period.Type)
	output += fmt.Sprintf("Period: %s to %s\n",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))
	output += fmt.Sprintf("Active Time: %.2fh\n", report.ActiveHours)
	output += fmt.Sprintf("Idle Time:   %.2fh\n\n", report.IdleHours)

	if len(report.Apps) == 0 {
		output += "No window activity recorded for this period.\n"
		return output
	}

	output += fmt.Sprintf("%-30s %10s %10s %10s\n", "Application", "Hours", "Minutes", "Percent")
	output += fmt.Sprintf("%s\n", "--------------------------------------------------------------------------------")

	for _, app := range report.Apps {
		output += fmt.Sprintf("%-30s %10.2f %10.0f %9.1f%%\n",
			truncate(app.AppName, 30),
			app.TotalHours,
			app.TotalMinutes,
			app.Percentage)
	}

	return output
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON")
	}
	return string(data), nil
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
