package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/zimshelf/zim-library/internal/settings"
	settingsmocks "github.com/zimshelf/zim-library/internal/settings/mocks"
	pkgsync "github.com/zimshelf/zim-library/internal/sync"
)

func TestIsSyncDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	old := now.Add(-25 * time.Hour)
	exact := now.Add(-24 * time.Hour)

	tests := []struct {
		name     string
		lastSync *time.Time
		interval time.Duration
		wantDue  bool
		wantNext time.Time
	}{
		{name: "never synced", lastSync: nil, interval: 24 * time.Hour, wantDue: true, wantNext: now},
		{name: "recent", lastSync: &recent, interval: 24 * time.Hour, wantDue: false, wantNext: recent.Add(24 * time.Hour)},
		{name: "elapsed", lastSync: &old, interval: 24 * time.Hour, wantDue: true, wantNext: old.Add(24 * time.Hour)},
		{name: "exactly elapsed", lastSync: &exact, interval: 24 * time.Hour, wantDue: true, wantNext: now},
		{name: "zero interval uses default", lastSync: &recent, interval: 0, wantDue: false, wantNext: recent.Add(DefaultSyncInterval)},
		{name: "short interval", lastSync: &recent, interval: 30 * time.Minute, wantDue: true, wantNext: recent.Add(30 * time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			due, next := isSyncDue(tt.lastSync, tt.interval, now)
			assert.Equal(t, tt.wantDue, due)
			assert.True(t, tt.wantNext.Equal(next), "next %s, want %s", next, tt.wantNext)
		})
	}
}

func TestCalculatePollingInterval(t *testing.T) {
	t.Parallel()

	for range 100 {
		interval := calculatePollingInterval()
		assert.GreaterOrEqual(t, interval, basePollingInterval-pollingJitter)
		assert.Less(t, interval, basePollingInterval+pollingJitter)
	}
}

func TestParseLocale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{raw: "de_DE.UTF-8", want: "de", wantOK: true},
		{raw: "pt_BR@euro", want: "pt", wantOK: true},
		{raw: "fr", want: "fr", wantOK: true},
		{raw: "C", wantOK: false},
		{raw: "POSIX", wantOK: false},
		{raw: "", wantOK: false},
		{raw: "!!", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			tag, ok := parseLocale(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, baseLanguage(tag))
			}
		})
	}
}

func TestDetectLocale(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "es_ES.UTF-8")
	assert.Equal(t, "es", baseLanguage(DetectLocale()))

	t.Setenv("LANG", "C")
	assert.Equal(t, "en", baseLanguage(DetectLocale()))
}

func TestScheduler_CheckAndSubmit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.manager.EXPECT().PerformSync(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, opts pkgsync.Options) (*pkgsync.Result, *pkgsync.Error) {
			assert.True(t, opts.PreserveExisting, "background syncs preserve existing packages")
			return success(true), nil
		}).Times(1)

	sched := newScheduler(f.coord, f.settings, 24*time.Hour)

	// never synced: due
	require.True(t, sched.checkAndSubmit(context.Background()))
	latest, ok := f.coord.Latest()
	if ok {
		// still in flight: the next check does not submit another job
		assert.False(t, sched.checkAndSubmit(context.Background()))
		assert.True(t, latest.PreserveExisting)
	}

	require.Eventually(t, func() bool {
		_, inFlight := f.coord.Latest()
		return !inFlight
	}, waitTimeout, 5*time.Millisecond)

	// just synced: not due
	assert.False(t, sched.checkAndSubmit(context.Background()))

	// a day later: due again, but the stopped coordinator refuses the job
	sched.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	require.NoError(t, f.coord.Stop(context.Background()))
	assert.False(t, sched.checkAndSubmit(context.Background()))
}

func TestScheduler_SettingsError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	settingsStore := settingsmocks.NewMockStore(ctrl)
	settingsStore.EXPECT().Load(gomock.Any()).Return(nil, assert.AnError)

	sched := newScheduler(&stubSubmitter{}, settingsStore, time.Hour)
	assert.False(t, sched.checkAndSubmit(context.Background()))
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	settingsStore, err := settings.NewFileStore(filepath.Join(dir, settings.FileName))
	require.NoError(t, err)
	stamp := time.Now()
	require.NoError(t, settingsStore.Update(context.Background(), func(s *settings.Settings) error {
		s.LastSyncTimestamp = &stamp
		return nil
	}))

	stub := &stubSubmitter{}
	sched := newScheduler(stub, settingsStore, time.Hour)

	errCh := make(chan error, 1)
	go func() { errCh <- sched.Start(context.Background()) }()

	require.Eventually(t, func() bool { return stub.latestCalls.Load() > 0 }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, sched.Stop())
	require.NoError(t, <-errCh)
	assert.Zero(t, stub.submits.Load())
}
