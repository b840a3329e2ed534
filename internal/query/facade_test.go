package query

import (
	"testing"
	"time"

	"github.com/hourglass-app/hourglass/internal/idle"
	"github.com/hourglass-app/hourglass/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	periods    []*models.ActivityPeriod
	activities []*models.WindowActivity
	stats      []models.WindowActivityStat

	periodCalls  int
	periodRanges [][2]string
	statCalls    int
	statRanges   [][2]string
	deletedBoth  bool
	deletedPer   bool
	queryErr     error
	deletePerErr error
}

func (s *fakeStore) PeriodsInRange(startISO, endISO string) ([]*models.ActivityPeriod, error) {
	s.periodCalls++
	s.periodRanges = append(s.periodRanges, [2]string{startISO, endISO})
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.periods, nil
}

func (s *fakeStore) WindowActivitiesInRange(startISO, endISO string) ([]*models.WindowActivity, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.activities, nil
}

func (s *fakeStore) WindowActivityStats(startISO, endISO string, limit int) ([]models.WindowActivityStat, error) {
	s.statCalls++
	s.statRanges = append(s.statRanges, [2]string{startISO, endISO})
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if limit > 0 && limit < len(s.stats) {
		return s.stats[:limit], nil
	}
	return s.stats, nil
}

func (s *fakeStore) DeleteAllPeriods() error {
	if s.deletePerErr != nil {
		return s.deletePerErr
	}
	s.deletedPer = true
	return nil
}

func (s *fakeStore) DeleteAllWindowActivities() error {
	s.deletedBoth = true
	return nil
}

type fakeLive struct {
	seg *idle.Segment
}

func (l *fakeLive) Snapshot() *idle.Segment { return l.seg }

var (
	rangeStart = "2024-06-01T08:00:00.000Z"
	rangeEnd   = "2024-06-01T18:00:00.000Z"
)

func storedPeriod(id uint, start, end string, isIdle bool) *models.ActivityPeriod {
	return &models.ActivityPeriod{ID: id, Start: start, End: end, IsIdle: isIdle}
}

func TestInvalidRangeRejectedBeforeDBAccess(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
	}{
		{name: "garbage start", start: "not-a-date", end: rangeEnd},
		{name: "garbage end", start: rangeStart, end: "2024-06-01"},
		{name: "missing zone", start: "2024-06-01T08:00:00", end: rangeEnd},
		{name: "local offset", start: "2024-06-01T08:00:00+02:00", end: rangeEnd},
		{name: "inverted", start: rangeEnd, end: rangeStart},
		{name: "empty", start: "", end: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			f := NewFacade(store, nil)

			_, err := f.ActivityPeriods(tc.start, tc.end, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRange))
			assert.Zero(t, store.periodCalls, "database must not be touched")

			_, err = f.WindowActivities(tc.start, tc.end)
			assert.True(t, errors.Is(err, ErrInvalidRange))

			_, err = f.WindowActivityStats(tc.start, tc.end, 0)
			assert.True(t, errors.Is(err, ErrInvalidRange))
		})
	}
}

func TestEqualBoundsAreAValidRange(t *testing.T) {
	store := &fakeStore{}
	f := NewFacade(store, nil)

	periods, err := f.ActivityPeriods(rangeStart, rangeStart, false)
	require.NoError(t, err)
	assert.Empty(t, periods)
	assert.Equal(t, 1, store.periodCalls)
}

func TestBoundsNormalizedToStoredPrecision(t *testing.T) {
	// Stored timestamps always carry milliseconds; second-precision bounds
	// must be re-formatted before they reach the store, or lexical
	// comparison excludes rows sitting exactly on the boundary.
	store := &fakeStore{}
	f := NewFacade(store, nil)

	_, err := f.ActivityPeriods("2024-06-01T08:00:00Z", "2024-06-01T18:00:00Z", false)
	require.NoError(t, err)
	require.Len(t, store.periodRanges, 1)
	assert.Equal(t, [2]string{rangeStart, rangeEnd}, store.periodRanges[0])

	_, err = f.WindowActivityStats("2024-06-01T08:00:00Z", "2024-06-01T18:00:00Z", 0)
	require.NoError(t, err)
	require.Len(t, store.statRanges, 1)
	assert.Equal(t, [2]string{rangeStart, rangeEnd}, store.statRanges[0])
}

func TestActivityPeriodsReturnsStoredRows(t *testing.T) {
	store := &fakeStore{periods: []*models.ActivityPeriod{
		storedPeriod(1, "2024-06-01T09:00:00.000Z", "2024-06-01T10:00:00.000Z", false),
		storedPeriod(2, "2024-06-01T10:00:00.000Z", "2024-06-01T10:30:00.000Z", true),
	}}
	f := NewFacade(store, nil)

	periods, err := f.ActivityPeriods(rangeStart, rangeEnd, false)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, uint(1), periods[0].ID)
	assert.False(t, periods[0].IsIdle)
	assert.True(t, periods[1].IsIdle)
	assert.False(t, periods[0].InProgress)
	assert.Nil(t, periods[0].TopWindows)
}

func TestInFlightSegmentSplicedIn(t *testing.T) {
	segStart := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)
	segEnd := time.Date(2024, 6, 1, 17, 45, 0, 0, time.UTC)
	live := &fakeLive{seg: &idle.Segment{Start: segStart, End: segEnd}}
	store := &fakeStore{periods: []*models.ActivityPeriod{
		storedPeriod(1, "2024-06-01T09:00:00.000Z", "2024-06-01T17:00:00.000Z", false),
	}}
	f := NewFacade(store, live)

	periods, err := f.ActivityPeriods(rangeStart, rangeEnd, false)
	require.NoError(t, err)
	require.Len(t, periods, 2)

	inFlight := periods[1]
	assert.True(t, inFlight.InProgress)
	assert.Zero(t, inFlight.ID)
	assert.Equal(t, models.FormatUTC(segStart), inFlight.Start)
	assert.Equal(t, models.FormatUTC(segEnd), inFlight.End)
}

func TestInFlightSegmentOutsideRangeIgnored(t *testing.T) {
	// Segment entirely after the queried range.
	segStart := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)
	live := &fakeLive{seg: &idle.Segment{Start: segStart, End: segStart.Add(time.Hour)}}
	f := NewFacade(&fakeStore{}, live)

	periods, err := f.ActivityPeriods(rangeStart, rangeEnd, false)
	require.NoError(t, err)
	assert.Empty(t, periods)
}

func TestNilSnapshotMeansNoInFlightPeriod(t *testing.T) {
	f := NewFacade(&fakeStore{}, &fakeLive{seg: nil})

	periods, err := f.ActivityPeriods(rangeStart, rangeEnd, false)
	require.NoError(t, err)
	assert.Empty(t, periods)
}

func TestIncludeWindowsEnrichesEachPeriod(t *testing.T) {
	url := "https://example.com/docs"
	store := &fakeStore{
		periods: []*models.ActivityPeriod{
			storedPeriod(1, "2024-06-01T09:00:00.000Z", "2024-06-01T10:00:00.000Z", false),
			storedPeriod(2, "2024-06-01T10:00:00.000Z", "2024-06-01T11:00:00.000Z", false),
		},
		stats: []models.WindowActivityStat{
			{AppName: "editor", WindowTitle: "main.go", TotalSeconds: 1800},
			{AppName: "browser", URL: &url, WindowTitle: "docs", TotalSeconds: 900},
		},
	}
	f := NewFacade(store, nil)

	periods, err := f.ActivityPeriods(rangeStart, rangeEnd, true)
	require.NoError(t, err)
	require.Len(t, periods, 2)

	assert.Equal(t, 2, store.statCalls, "one stats query per period")
	assert.Equal(t, [2]string{periods[0].Start, periods[0].End}, store.statRanges[0])
	require.Len(t, periods[0].TopWindows, 2)
	assert.Equal(t, "editor", periods[0].TopWindows[0].AppName)
}

func TestWindowActivitiesPassThrough(t *testing.T) {
	store := &fakeStore{activities: []*models.WindowActivity{
		{Timestamp: "2024-06-01T09:00:00.000Z", DurationSeconds: 12, AppName: "A", WindowTitle: "x"},
	}}
	f := NewFacade(store, nil)

	activities, err := f.WindowActivities(rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "A", activities[0].AppName)
}

func TestDeleteAllPurges(t *testing.T) {
	store := &fakeStore{}
	f := NewFacade(store, nil)

	require.NoError(t, f.DeleteAllActivityPeriods())
	require.NoError(t, f.DeleteAllWindowActivities())
	assert.True(t, store.deletedPer)
	assert.True(t, store.deletedBoth)
}

func TestStoreErrorsPropagate(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("disk gone")}
	f := NewFacade(store, nil)

	_, err := f.ActivityPeriods(rangeStart, rangeEnd, false)
	assert.Error(t, err)

	store2 := &fakeStore{deletePerErr: errors.New("locked")}
	assert.Error(t, NewFacade(store2, nil).DeleteAllActivityPeriods())
}
