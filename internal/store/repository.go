package store

import (
	"github.com/hourglass-app/hourglass/internal/models"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// Repository handles all database operations for periods, window activities
// and settings. Every insert is validated before it touches the database, so
// invalid input is never partially written.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// InsertPeriod validates and inserts a closed activity period.
func (r *Repository) InsertPeriod(period *models.ActivityPeriod) error {
	if err := period.Validate(); err != nil {
		return errors.Wrap(err, "invalid activity period")
	}
	result := r.db.Create(period)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert activity period")
	}
	return nil
}

// PeriodsInRange returns closed periods whose bounds fall inside
// [startISO, endISO], inclusive on the stored fields, ordered by start.
func (r *Repository) PeriodsInRange(startISO, endISO string) ([]*models.ActivityPeriod, error) {
	var periods []*models.ActivityPeriod
	result := r.db.Where("start >= ? AND `end` <= ?", startISO, endISO).
		Order("start ASC").
		Find(&periods)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query activity periods")
	}
	return periods, nil
}

// DeleteAllPeriods removes every activity period. User-initiated privacy reset.
func (r *Repository) DeleteAllPeriods() error {
	result := r.db.Exec("DELETE FROM activity_periods")
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete activity periods")
	}
	return nil
}

// InsertWindowActivity validates and inserts a closed window dwell record.
func (r *Repository) InsertWindowActivity(activity *models.WindowActivity) error {
	if err := activity.Validate(); err != nil {
		return errors.Wrap(err, "invalid window activity")
	}
	result := r.db.Create(activity)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert window activity")
	}
	return nil
}

// WindowActivitiesInRange returns raw dwell records whose start timestamp falls
// inside [startISO, endISO], ordered ascending.
func (r *Repository) WindowActivitiesInRange(startISO, endISO string) ([]*models.WindowActivity, error) {
	var activities []*models.WindowActivity
	result := r.db.Where("timestamp >= ? AND timestamp <= ?", startISO, endISO).
		Order("timestamp ASC").
		Find(&activities)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query window activities")
	}
	return activities, nil
}

// WindowActivityStats returns summed dwell per (app, url, title) triple within
// the range, ordered by total descending. limit <= 0 means no limit.
func (r *Repository) WindowActivityStats(startISO, endISO string, limit int) ([]models.WindowActivityStat, error) {
	var stats []models.WindowActivityStat
	query := r.db.Model(&models.WindowActivity{}).
		Select("app_name, url, window_title, SUM(duration_seconds) as total_seconds").
		Where("timestamp >= ? AND timestamp <= ?", startISO, endISO).
		Group("app_name, url, window_title").
		Order("total_seconds DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Scan(&stats); result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query window activity stats")
	}
	return stats, nil
}

// DeleteAllWindowActivities removes every window dwell record.
func (r *Repository) DeleteAllWindowActivities() error {
	result := r.db.Exec("DELETE FROM window_activities")
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete window activities")
	}
	return nil
}

// GetSetting retrieves a setting value. The second return is false when the
// key has never been written.
func (r *Repository) GetSetting(key string) (string, bool, error) {
	var setting models.Setting
	result := r.db.Where("key = ?", key).First(&setting)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(result.Error, "failed to get setting %q", key)
	}
	return setting.Value, true, nil
}

// SetSetting writes a setting value, inserting or overwriting. Last write wins.
func (r *Repository) SetSetting(key, value string) error {
	var setting models.Setting
	result := r.db.Where("key = ?", key).First(&setting)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return errors.Wrapf(result.Error, "failed to read setting %q", key)
		}
		setting = models.Setting{Key: key, Value: value}
		if result := r.db.Create(&setting); result.Error != nil {
			return errors.Wrapf(result.Error, "failed to insert setting %q", key)
		}
		return nil
	}

	setting.Value = value
	if result := r.db.Save(&setting); result.Error != nil {
		return errors.Wrapf(result.Error, "failed to update setting %q", key)
	}
	return nil
}
