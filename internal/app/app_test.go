package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/smokyabdulrahman/ezan-vakti/internal/alarm"
	"github.com/smokyabdulrahman/ezan-vakti/internal/config"
	"github.com/smokyabdulrahman/ezan-vakti/internal/geo"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
	"github.com/smokyabdulrahman/ezan-vakti/internal/resolve"
	"github.com/smokyabdulrahman/ezan-vakti/internal/settings"
	"github.com/smokyabdulrahman/ezan-vakti/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func day(ogle string) prayer.Times {
	return prayer.Times{
		prayer.Imsak:  "06:18",
		prayer.Gunes:  "07:42",
		prayer.Ogle:   ogle,
		prayer.Ikindi: "16:15",
		prayer.Aksam:  "18:45",
		prayer.Yatsi:  "20:04",
	}
}

type fakeAuthority struct {
	mu     sync.Mutex
	cities []string
	err    error
}

func (f *fakeAuthority) FetchYear(_ context.Context, city string) (prayer.Days, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cities = append(f.cities, city)
	if f.err != nil {
		return nil, f.err
	}
	return prayer.Days{
		"13.02.2026": day("13:19"),
		"14.02.2026": day("13:20"),
	}, nil
}

func (f *fakeAuthority) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cities...)
}

// recordingHost keeps registrations in memory and can deliver events.
type recordingHost struct {
	mu     sync.Mutex
	regs   map[int64]alarm.Registration
	events chan alarm.HostEvent
}

func newRecordingHost() *recordingHost {
	return &recordingHost{regs: map[int64]alarm.Registration{}, events: make(chan alarm.HostEvent, 4)}
}

func (h *recordingHost) Schedule(_ context.Context, r alarm.Registration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.regs[r.ID] = r
	return nil
}

func (h *recordingHost) CancelAll(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.regs = map[int64]alarm.Registration{}
	return nil
}

func (h *recordingHost) Pending(context.Context) ([]alarm.Registration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]alarm.Registration, 0, len(h.regs))
	for _, r := range h.regs {
		out = append(out, r)
	}
	return out, nil
}

func (h *recordingHost) Events() <-chan alarm.HostEvent { return h.events }

func (h *recordingHost) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.regs)
}

type failingPosition struct{}

func (failingPosition) CurrentPosition(context.Context, geo.PositionOptions) (geo.Position, error) {
	return geo.Position{}, geo.ErrLocationUnavailable
}

type fixture struct {
	app       *App
	store     store.Store
	authority *fakeAuthority
	host      *recordingHost
}

func newFixture(t *testing.T, at time.Time) *fixture {
	t.Helper()
	f := &fixture{
		store:     store.NewMemory(),
		authority: &fakeAuthority{},
		host:      newRecordingHost(),
	}
	f.app = NewWithDeps(Deps{
		Store:     f.store,
		Authority: f.authority,
		Host:      f.host,
		Position:  failingPosition{},
		Clock:     func() time.Time { return at },
	})
	f.app.Load(context.Background())
	return f
}

var morning = time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

func TestRefresh_ResolvesAndSchedules(t *testing.T) {
	f := newFixture(t, morning)

	res, err := f.app.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resolve.Primary, res.Tier)
	assert.Equal(t, "İstanbul", res.Data.City, "failed position falls back to the default coordinates")
	assert.Equal(t, 10, f.host.count())

	latest, ok := f.app.Latest()
	require.True(t, ok)
	assert.Equal(t, res, latest)

	next, err := f.app.Next()
	require.NoError(t, err)
	assert.Equal(t, prayer.Ogle, next.Key)
	assert.Equal(t, 199, next.MinutesRemaining)
}

func TestRefresh_SecondCallServedFromCache(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()

	_, err := f.app.Refresh(ctx)
	require.NoError(t, err)
	res, err := f.app.Refresh(ctx)
	require.NoError(t, err)

	assert.Equal(t, resolve.Cached, res.Tier)
	assert.Len(t, f.authority.calls(), 1)
	assert.Equal(t, 10, f.host.count(), "rescheduling replaces the alarms")
}

func TestRefresh_NoData(t *testing.T) {
	f := newFixture(t, morning)
	f.authority.err = errors.New("down")

	_, err := f.app.Refresh(context.Background())
	assert.ErrorIs(t, err, resolve.ErrNoDataAvailable)

	_, err = f.app.Next()
	assert.ErrorIs(t, err, ErrNotResolved)
}

// ---------------------------------------------------------------------------
// Location and settings
// ---------------------------------------------------------------------------

func TestChangeLocation_Manual(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()

	_, err := f.app.Refresh(ctx)
	require.NoError(t, err)

	res, err := f.app.ChangeLocation(ctx, settings.LocationManual, "ankara")
	require.NoError(t, err)
	assert.Equal(t, "Ankara", res.Data.City)
	assert.Equal(t, resolve.Primary, res.Tier, "cache was dropped")
	assert.Equal(t, []string{"İstanbul", "Ankara"}, f.authority.calls())

	raw, ok, err := f.store.Get(ctx, settings.StoreKey)
	require.NoError(t, err)
	require.True(t, ok)
	var saved settings.Settings
	require.NoError(t, json.Unmarshal([]byte(raw), &saved))
	assert.Equal(t, settings.LocationManual, saved.LocationMode)
	require.NotNil(t, saved.ManualLocation)
	assert.Equal(t, "Ankara", saved.ManualLocation.City)

	req := f.app.Request(ctx)
	assert.Equal(t, "Ankara", req.CityOverride)

	res, err = f.app.ChangeLocation(ctx, settings.LocationAuto, "")
	require.NoError(t, err)
	assert.Equal(t, "İstanbul", res.Data.City)
	assert.Nil(t, f.app.Settings().ManualLocation)
}

func TestChangeLocation_Invalid(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()

	_, err := f.app.ChangeLocation(ctx, settings.LocationManual, "Atlantis")
	assert.Error(t, err)
	_, err = f.app.ChangeLocation(ctx, "gps", "")
	assert.Error(t, err)
	assert.Empty(t, f.authority.calls())
}

func TestUpdateSettings_DisablingNotificationsClearsAlarms(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()

	_, err := f.app.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, f.host.count())

	_, err = f.app.UpdateSettings(ctx, func(s *settings.Settings) error {
		return s.Set("notifications", "false")
	})
	require.NoError(t, err)
	assert.Zero(t, f.host.count())

	_, err = f.app.UpdateSettings(ctx, func(s *settings.Settings) error {
		return s.Set("notifications", "true")
	})
	require.NoError(t, err)
	assert.Equal(t, 10, f.host.count())
}

func TestUpdateSettings_InvalidLeavesAlarms(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()
	_, err := f.app.Refresh(ctx)
	require.NoError(t, err)

	_, err = f.app.UpdateSettings(ctx, func(s *settings.Settings) error {
		return s.Set("volume", "7")
	})
	require.Error(t, err)
	assert.Equal(t, 10, f.host.count())
	assert.Equal(t, 0.8, f.app.Settings().Volume)
}

func TestReplaceSettings_KeepsLocation(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()
	_, err := f.app.ChangeLocation(ctx, settings.LocationManual, "Konya")
	require.NoError(t, err)

	incoming := settings.Defaults()
	incoming.Volume = 0.3
	got, err := f.app.ReplaceSettings(ctx, incoming)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got.Volume)
	assert.Equal(t, settings.LocationManual, got.LocationMode)
	assert.Equal(t, "Konya", got.ManualLocation.City)
}

func TestResetSettings(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()
	_, err := f.app.UpdateSettings(ctx, func(s *settings.Settings) error { return s.Set("volume", "0.1") })
	require.NoError(t, err)

	require.NoError(t, f.app.ResetSettings(ctx))
	assert.Equal(t, settings.Defaults(), f.app.Settings())
	_, ok, _ := f.store.Get(ctx, settings.StoreKey)
	assert.False(t, ok)
}

func TestResetSettings_KeepsManualLocation(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()
	_, err := f.app.ChangeLocation(ctx, settings.LocationManual, "Konya")
	require.NoError(t, err)
	_, err = f.app.UpdateSettings(ctx, func(s *settings.Settings) error { return s.Set("volume", "0.1") })
	require.NoError(t, err)

	require.NoError(t, f.app.ResetSettings(ctx))
	got := f.app.Settings()
	assert.Equal(t, 0.8, got.Volume)
	assert.Equal(t, settings.LocationManual, got.LocationMode)
	require.NotNil(t, got.ManualLocation)
	assert.Equal(t, "Konya", got.ManualLocation.City)
	assert.Equal(t, 10, f.host.count(), "alarms rescheduled after reset")

	// The cached Konya table still matches the location in use.
	f.authority.err = errors.New("down")
	res, err := f.app.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, resolve.Cached, res.Tier)
	assert.Equal(t, "Konya", res.Data.City)
	assert.Equal(t, "Konya", f.app.Request(ctx).CityOverride)

	// A fresh process sees the same location.
	loaded, err := settings.NewManager(f.store, 0, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.LocationManual, loaded.LocationMode)
}

type noRemoveStore struct{ store.Store }

func (noRemoveStore) Remove(context.Context, string) error { return errors.New("read-only") }

func TestResetSettings_PersistFailureStillReschedules(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()
	_, err := f.app.Refresh(ctx)
	require.NoError(t, err)
	_, err = f.app.UpdateSettings(ctx, func(s *settings.Settings) error { return s.Set("notifications", "false") })
	require.NoError(t, err)
	require.Zero(t, f.host.count())

	f.app.settings = settings.NewManager(noRemoveStore{f.store}, 0, nil)
	f.app.settings.Load(ctx)
	err = f.app.ResetSettings(ctx)
	assert.ErrorIs(t, err, settings.ErrPersistenceWrite)
	assert.True(t, f.app.Settings().NotificationsEnabled)
	assert.Equal(t, 10, f.host.count())
}

func TestReloadSettings(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()
	_, err := f.app.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, f.host.count())

	changed, err := f.app.ReloadSettings(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	// Another process disables notifications.
	other := settings.NewManager(f.store, 0, nil)
	_, err = other.Update(ctx, func(s *settings.Settings) error { return s.Set("notifications", "false") })
	require.NoError(t, err)

	changed, err = f.app.ReloadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, f.app.Settings().NotificationsEnabled)
	assert.Zero(t, f.host.count())

	// And then picks a manual city.
	_, err = other.Update(ctx, func(s *settings.Settings) error {
		s.NotificationsEnabled = true
		return s.Set("manual_city", "Ankara")
	})
	require.NoError(t, err)
	_, err = other.Update(ctx, func(s *settings.Settings) error { return s.Set("location_mode", "manual") })
	require.NoError(t, err)

	changed, err = f.app.ReloadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	res, ok := f.app.Latest()
	require.True(t, ok)
	assert.Equal(t, "Ankara", res.Data.City)
	assert.Equal(t, 10, f.host.count())
}

// ---------------------------------------------------------------------------
// Alarms
// ---------------------------------------------------------------------------

func TestTick_FiresOnceAtPrayerTime(t *testing.T) {
	f := newFixture(t, time.Date(2026, 2, 13, 13, 18, 30, 0, time.UTC))
	ctx := context.Background()

	ev, fired := f.app.Tick(ctx)
	require.True(t, fired, "first tick resolves and fires")
	assert.Equal(t, "ogle", ev.Prayer)

	require.True(t, f.app.StopAlarm())
	_, fired = f.app.Tick(ctx)
	assert.False(t, fired)
	assert.Equal(t, "idle", f.app.AlarmState().State)
}

func TestHandleLaunch(t *testing.T) {
	f := newFixture(t, morning)

	ev, ok := f.app.HandleLaunch("aksam")
	require.True(t, ok)
	assert.Equal(t, "Akşam", ev.Name)
	assert.Equal(t, "host", ev.Path)
	f.app.StopAlarm()

	ev, ok = f.app.HandleLaunch(alarm.TestPrayer)
	require.True(t, ok)
	assert.True(t, ev.TestMode)
	f.app.StopAlarm()

	_, ok = f.app.HandleLaunch("")
	assert.False(t, ok)
}

func TestScheduleTestAndPending(t *testing.T) {
	f := newFixture(t, morning)
	ctx := context.Background()

	r, err := f.app.ScheduleTest(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, morning.Add(time.Minute), r.FireAt)

	pending, err := f.app.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, alarm.TestPrayer, pending[0].Payload.Prayer)
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_PollFiresAndRingStops(t *testing.T) {
	f := newFixture(t, time.Date(2026, 2, 13, 13, 18, 30, 0, time.UTC))
	events, unsubscribe := f.app.Bus().Subscribe(4)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.app.Run(ctx, RunOptions{TickInterval: 5 * time.Millisecond, RingDuration: 20 * time.Millisecond})
	}()

	select {
	case ev := <-events:
		assert.Equal(t, "ogle", ev.Prayer)
		assert.Equal(t, "poll", ev.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("no alarm fired")
	}

	assert.Eventually(t, func() bool { return f.app.AlarmState().State == "idle" },
		3*time.Second, 5*time.Millisecond, "ring duration returns the guard to idle")

	cancel()
	require.NoError(t, <-done)

	select {
	case ev := <-events:
		t.Fatalf("alarm fired twice: %+v", ev)
	default:
	}
}

func TestRun_HostEvents(t *testing.T) {
	f := newFixture(t, morning)
	events, unsubscribe := f.app.Bus().Subscribe(4)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.app.Run(ctx, RunOptions{TickInterval: time.Hour, RingDuration: -1})
	}()

	f.host.events <- alarm.HostEvent{Payload: alarm.Payload{Prayer: "yatsi", AutoTrigger: true, DirectLaunch: true}}

	select {
	case ev := <-events:
		assert.Equal(t, "yatsi", ev.Prayer)
		assert.Equal(t, "host", ev.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("host event not handled")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "firing", f.app.AlarmState().State, "negative ring duration keeps ringing")
}

func TestRun_LaunchPrayer(t *testing.T) {
	f := newFixture(t, morning)
	events, unsubscribe := f.app.Bus().Subscribe(4)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.app.Run(ctx, RunOptions{TickInterval: time.Hour, RingDuration: 20 * time.Millisecond, LaunchPrayer: "aksam"})
	}()

	select {
	case ev := <-events:
		assert.Equal(t, "aksam", ev.Prayer)
		assert.Equal(t, "Akşam", ev.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("launch prayer not shown")
	}

	assert.Eventually(t, func() bool {
		return f.app.AlarmState().State == "idle"
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_ReloadsStoredSettings(t *testing.T) {
	f := newFixture(t, morning)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.app.Run(ctx, RunOptions{TickInterval: time.Hour, RingDuration: -1, ReloadInterval: 5 * time.Millisecond})
	}()

	require.Eventually(t, func() bool { return f.host.count() == 10 }, 3*time.Second, 5*time.Millisecond)

	_, err := settings.NewManager(f.store, 0, nil).Update(context.Background(), func(s *settings.Settings) error {
		return s.Set("notifications", "false")
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return !f.app.Settings().NotificationsEnabled && f.host.count() == 0
	}, 3*time.Second, 5*time.Millisecond, "stored change reaches the running daemon")

	cancel()
	require.NoError(t, <-done)
}

// ---------------------------------------------------------------------------
// Wiring
// ---------------------------------------------------------------------------

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	for _, backend := range []string{store.BackendMemory, store.BackendFile, store.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := &config.Config{StoreBackend: backend, DataDir: t.TempDir()}
			s, err := OpenStore(ctx, cfg)
			require.NoError(t, err)
			defer s.Close()

			require.NoError(t, s.Set(ctx, "k", "v"))
			v, ok, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v", v)
		})
	}

	_, err := OpenStore(ctx, &config.Config{StoreBackend: "tape"})
	assert.Error(t, err)
}

func TestNew_FromConfig(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"STORE_BACKEND": "memory",
		"GEO_MODE":      "static",
	})
	require.NoError(t, err)

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	req := a.Request(context.Background())
	assert.Equal(t, settings.DefaultCoords.Latitude, req.Lat)
	assert.Empty(t, req.CityOverride)
}
