package engine

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hourglass-app/hourglass/internal/settings"
	"github.com/hourglass-app/hourglass/internal/store"
	"github.com/hourglass-app/hourglass/pkg/probe"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	idleSeconds atomic.Int64
	window      probe.WindowInfo
	closed      atomic.Bool
}

func (f *fakeProbe) IdleSeconds() (int, error) { return int(f.idleSeconds.Load()), nil }

func (f *fakeProbe) FocusedWindow() (*probe.WindowInfo, error) {
	w := f.window
	return &w, nil
}

func (f *fakeProbe) Subscribe(cb func(probe.WindowInfo)) error { return nil }
func (f *fakeProbe) Unsubscribe()                              {}

func (f *fakeProbe) Close() error {
	f.closed.Store(true)
	return nil
}

func newTestDB(t *testing.T) (*store.Repository, *store.AsyncWriter) {
	t.Helper()
	db, err := store.Connect(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { _ = db.Close() })

	repo := store.NewRepository(db)
	return repo, store.NewAsyncWriter(repo, 16)
}

func newTestEngine(t *testing.T, p probe.Probe, probeErr error) (*Engine, *store.Repository) {
	t.Helper()
	repo, writer := newTestDB(t)
	e := New(Config{
		Writer:       writer,
		Settings:     settings.NewService(repo),
		Probe:        p,
		ProbeError:   probeErr,
		TickInterval: 5 * time.Millisecond,
		FlushGrace:   time.Second,
	})
	return e, repo
}

func TestEngineWithoutProbeRunsDegraded(t *testing.T) {
	e, _ := newTestEngine(t, nil, errors.New("no display"))

	require.NoError(t, e.Start())
	status := e.Status()
	assert.False(t, status.ProbeAvailable)
	assert.Equal(t, "no display", status.ProbeError)
	assert.Nil(t, status.CurrentPeriod)
	assert.Nil(t, e.Snapshot())

	require.NoError(t, e.Shutdown(context.Background()))
}

func TestEngineStartReflectsStoredSettings(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProbe{}, nil)

	require.NoError(t, e.Start())
	defer e.Shutdown(context.Background())

	status := e.Status()
	assert.True(t, status.ProbeAvailable)
	assert.True(t, status.IdleDetectionEnabled, "detection defaults on")
	assert.False(t, status.ActivityTrackingEnabled, "tracking defaults off")
	assert.False(t, status.TrackerRunning)
	assert.Equal(t, 5, e.Settings().IdleThresholdMinutes)
}

func TestUpdateSettingsTogglesTracker(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProbe{}, nil)
	require.NoError(t, e.Start())
	defer e.Shutdown(context.Background())

	on := true
	applied, err := e.UpdateSettings(settings.Patch{ActivityTrackingEnabled: &on})
	require.NoError(t, err)
	assert.True(t, applied.ActivityTrackingEnabled)
	assert.True(t, e.Status().TrackerRunning)

	off := false
	_, err = e.UpdateSettings(settings.Patch{ActivityTrackingEnabled: &off})
	require.NoError(t, err)
	assert.False(t, e.Status().TrackerRunning)
}

func TestUpdateSettingsPersists(t *testing.T) {
	e, repo := newTestEngine(t, &fakeProbe{}, nil)
	require.NoError(t, e.Start())
	defer e.Shutdown(context.Background())

	minutes := 10
	off := false
	_, err := e.UpdateSettings(settings.Patch{
		IdleThresholdMinutes: &minutes,
		IdleDetectionEnabled: &off,
	})
	require.NoError(t, err)

	// A fresh service over the same store sees the persisted values.
	reloaded := settings.NewService(repo).Load()
	assert.Equal(t, 10, reloaded.IdleThresholdMinutes)
	assert.False(t, reloaded.IdleDetectionEnabled)
}

func TestTimerStateReflectedInStatus(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProbe{}, nil)
	require.NoError(t, e.Start())
	defer e.Shutdown(context.Background())

	assert.False(t, e.Status().TimerRunning)
	e.SetTimerRunning(true)
	assert.True(t, e.Status().TimerRunning)
}

func TestShutdownFlushesOpenPeriod(t *testing.T) {
	p := &fakeProbe{}
	e, repo := newTestEngine(t, p, nil)
	require.NoError(t, e.Start())

	// Let the active segment accumulate a little wall-clock length.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, e.Shutdown(context.Background()))
	assert.True(t, p.closed.Load(), "probe released on shutdown")

	periods, err := repo.PeriodsInRange("2000-01-01T00:00:00.000Z", "2100-01-01T00:00:00.000Z")
	require.NoError(t, err)
	require.NotEmpty(t, periods, "open segment persisted on shutdown")
	assert.False(t, periods[0].IsIdle)
}

func TestStatusCarriesCurrentPeriod(t *testing.T) {
	e, _ := newTestEngine(t, &fakeProbe{}, nil)
	require.NoError(t, e.Start())
	defer e.Shutdown(context.Background())

	deadline := time.Now().Add(time.Second)
	var status Status
	for time.Now().Before(deadline) {
		status = e.Status()
		if status.CurrentPeriod != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotNil(t, status.CurrentPeriod)
	assert.False(t, status.CurrentPeriod.IsIdle)
}
