// Package settings persists user-tunable tracking settings in the database
// key-value table and falls back to documented defaults when the store is
// unreadable, so the engine can always start.
package settings

import (
	"log"
	"strconv"

	"github.com/hourglass-app/hourglass/internal/store"
)

// App is the full settings snapshot handed to the engine at startup.
type App struct {
	WidgetActivated         bool `json:"widgetActivated"`
	TrayTimerActivated      bool `json:"trayTimerActivated"`
	IdleDetectionEnabled    bool `json:"idleDetectionEnabled"`
	IdleThresholdMinutes    int  `json:"idleThresholdMinutes"`
	ActivityTrackingEnabled bool `json:"activityTrackingEnabled"`
}

// Defaults returns the documented fallback settings. Activity tracking is off
// by default for privacy.
func Defaults() App {
	return App{
		WidgetActivated:         true,
		TrayTimerActivated:      true,
		IdleDetectionEnabled:    true,
		IdleThresholdMinutes:    5,
		ActivityTrackingEnabled: false,
	}
}

const (
	keyWidgetActivated         = "widget_activated"
	keyTrayTimerActivated      = "tray_timer_activated"
	keyIdleDetectionEnabled    = "idle_detection_enabled"
	keyIdleThresholdMinutes    = "idle_threshold_minutes"
	keyActivityTrackingEnabled = "activity_tracking_enabled"
)

// Patch updates a subset of settings; nil fields are left untouched.
type Patch struct {
	WidgetActivated         *bool `json:"widgetActivated"`
	TrayTimerActivated      *bool `json:"trayTimerActivated"`
	IdleDetectionEnabled    *bool `json:"idleDetectionEnabled"`
	IdleThresholdMinutes    *int  `json:"idleThresholdMinutes"`
	ActivityTrackingEnabled *bool `json:"activityTrackingEnabled"`
}

type Service struct {
	repo *store.Repository
}

func NewService(repo *store.Repository) *Service {
	return &Service{repo: repo}
}

// Load reads the settings snapshot. Read failures degrade to defaults rather
// than blocking startup.
func (s *Service) Load() App {
	app := Defaults()
	app.WidgetActivated = s.boolSetting(keyWidgetActivated, app.WidgetActivated)
	app.TrayTimerActivated = s.boolSetting(keyTrayTimerActivated, app.TrayTimerActivated)
	app.IdleDetectionEnabled = s.boolSetting(keyIdleDetectionEnabled, app.IdleDetectionEnabled)
	app.IdleThresholdMinutes = s.intSetting(keyIdleThresholdMinutes, app.IdleThresholdMinutes)
	app.ActivityTrackingEnabled = s.boolSetting(keyActivityTrackingEnabled, app.ActivityTrackingEnabled)
	return app
}

// Apply persists the non-nil fields of patch and returns the resulting
// snapshot. Last write wins.
func (s *Service) Apply(patch Patch) (App, error) {
	if patch.WidgetActivated != nil {
		if err := s.repo.SetSetting(keyWidgetActivated, strconv.FormatBool(*patch.WidgetActivated)); err != nil {
			return s.Load(), err
		}
	}
	if patch.TrayTimerActivated != nil {
		if err := s.repo.SetSetting(keyTrayTimerActivated, strconv.FormatBool(*patch.TrayTimerActivated)); err != nil {
			return s.Load(), err
		}
	}
	if patch.IdleDetectionEnabled != nil {
		if err := s.repo.SetSetting(keyIdleDetectionEnabled, strconv.FormatBool(*patch.IdleDetectionEnabled)); err != nil {
			return s.Load(), err
		}
	}
	if patch.IdleThresholdMinutes != nil {
		if err := s.repo.SetSetting(keyIdleThresholdMinutes, strconv.Itoa(*patch.IdleThresholdMinutes)); err != nil {
			return s.Load(), err
		}
	}
	if patch.ActivityTrackingEnabled != nil {
		if err := s.repo.SetSetting(keyActivityTrackingEnabled, strconv.FormatBool(*patch.ActivityTrackingEnabled)); err != nil {
			return s.Load(), err
		}
	}
	return s.Load(), nil
}

func (s *Service) boolSetting(key string, fallback bool) bool {
	raw, found, err := s.repo.GetSetting(key)
	if err != nil {
		log.Printf("Failed to read setting %s, using default: %v", key, err)
		return fallback
	}
	if !found {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Invalid boolean for setting %s: %q", key, raw)
		return fallback
	}
	return value
}

func (s *Service) intSetting(key string, fallback int) int {
	raw, found, err := s.repo.GetSetting(key)
	if err != nil {
		log.Printf("Failed to read setting %s, using default: %v", key, err)
		return fallback
	}
	if !found {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		log.Printf("Invalid value for setting %s: %q", key, raw)
		return fallback
	}
	return value
}
