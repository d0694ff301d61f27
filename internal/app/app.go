// Package app wires the resolution pipeline, user settings and alarms into
// one runtime used by the CLI commands and the daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/alarm"
	"github.com/smokyabdulrahman/ezan-vakti/internal/cache"
	"github.com/smokyabdulrahman/ezan-vakti/internal/geo"
	"github.com/smokyabdulrahman/ezan-vakti/internal/observability"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
	"github.com/smokyabdulrahman/ezan-vakti/internal/resolve"
	"github.com/smokyabdulrahman/ezan-vakti/internal/settings"
	"github.com/smokyabdulrahman/ezan-vakti/internal/store"
)

// ErrNotResolved means no prayer data has been resolved yet.
var ErrNotResolved = errors.New("prayer times not resolved yet")

// refreshRetry spaces out retries of a failed day-rollover refresh.
const refreshRetry = time.Minute

// Deps are the collaborators of an App. Store and Host are required.
type Deps struct {
	Store     store.Store
	Authority resolve.Authority
	Mirrors   resolve.Mirrors
	Host      alarm.Host
	// Fallback receives registrations the host refuses. May be nil.
	Fallback alarm.Notifier

	Position geo.Provider
	// PositionOptions defaults to geo.DefaultPositionOptions.
	PositionOptions *geo.PositionOptions

	Gazetteer        *geo.Gazetteer
	DefaultCity      string
	SettingsMaxBytes int
	Clock            func() time.Time
	Logger           *zerolog.Logger
}

// App is the running application.
type App struct {
	logger    *zerolog.Logger
	now       func() time.Time
	store     store.Store
	cache     *cache.Cache
	pipeline  *resolve.Pipeline
	settings  *settings.Manager
	position  geo.Provider
	posOpts   geo.PositionOptions
	gazetteer *geo.Gazetteer
	host      alarm.Host
	scheduler *alarm.Scheduler
	guard     *alarm.Guard
	bus       *alarm.Bus

	refreshMu   sync.Mutex
	mu          sync.RWMutex
	latest      *resolve.Result
	lastAttempt time.Time
}

// NewWithDeps assembles an App from explicit collaborators.
func NewWithDeps(d Deps) *App {
	logger := d.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	gazetteer := d.Gazetteer
	if gazetteer == nil {
		gazetteer = geo.DefaultGazetteer()
	}
	position := d.Position
	if position == nil {
		position = geo.StaticProvider{Position: geo.Position{
			Latitude:  settings.DefaultCoords.Latitude,
			Longitude: settings.DefaultCoords.Longitude,
		}}
	}

	posOpts := geo.DefaultPositionOptions
	if d.PositionOptions != nil {
		posOpts = *d.PositionOptions
	}

	c := cache.New(d.Store, logger)
	bus := alarm.NewBus()

	a := &App{
		logger:    logger,
		now:       now,
		store:     d.Store,
		cache:     c,
		settings:  settings.NewManager(d.Store, d.SettingsMaxBytes, logger),
		position:  position,
		posOpts:   posOpts,
		gazetteer: gazetteer,
		host:      d.Host,
		bus:       bus,
	}

	a.pipeline = resolve.New(c, d.Authority, d.Mirrors,
		resolve.WithClock(now),
		resolve.WithDefaultCity(d.DefaultCity),
		resolve.WithGazetteer(gazetteer),
		resolve.WithLogger(logger),
	)
	a.scheduler = alarm.NewScheduler(d.Host, d.Fallback, c,
		alarm.WithSchedulerClock(now),
		alarm.WithSchedulerLogger(logger),
	)
	a.guard = alarm.NewGuard(bus,
		alarm.WithGuardClock(now),
		alarm.WithGuardLogger(logger),
	)
	return a
}

// Load reads the persisted user settings. Store failures are logged and
// the defaults stay in effect.
func (a *App) Load(ctx context.Context) settings.Settings {
	s, err := a.settings.Load(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("using default settings")
	}
	return s
}

// Settings returns the current user settings.
func (a *App) Settings() settings.Settings {
	return a.settings.Current()
}

// Bus returns the alarm event bus.
func (a *App) Bus() *alarm.Bus {
	return a.bus
}

// Gazetteer returns the city list in use.
func (a *App) Gazetteer() *geo.Gazetteer {
	return a.gazetteer
}

// Request builds the resolution input from the location settings. In auto
// mode a failed position lookup falls back to the default coordinates.
func (a *App) Request(ctx context.Context) resolve.Request {
	s := a.settings.Current()
	if s.LocationMode == settings.LocationManual && s.ManualLocation != nil {
		return resolve.Request{
			Lat:          s.ManualLocation.Coords.Latitude,
			Lng:          s.ManualLocation.Coords.Longitude,
			CityOverride: s.ManualLocation.City,
		}
	}

	pos, err := a.position.CurrentPosition(ctx, a.posOpts)
	if err != nil {
		a.logger.Warn().Err(err).Msg("position unavailable, using default coordinates")
		return resolve.Request{Lat: settings.DefaultCoords.Latitude, Lng: settings.DefaultCoords.Longitude}
	}
	return resolve.Request{Lat: pos.Latitude, Lng: pos.Longitude}
}

// Resolve resolves today's data and keeps it as the latest result without
// touching alarms.
func (a *App) Resolve(ctx context.Context) (resolve.Result, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()
	return a.resolveLocked(ctx)
}

func (a *App) resolveLocked(ctx context.Context) (resolve.Result, error) {
	req := a.Request(ctx)

	a.mu.Lock()
	a.lastAttempt = a.now()
	a.mu.Unlock()

	res, err := a.pipeline.Resolve(ctx, req)
	if err != nil {
		return res, err
	}

	a.mu.Lock()
	a.latest = &res
	a.mu.Unlock()
	return res, nil
}

// Refresh resolves today's data and reschedules alarms from it. A
// scheduling failure is logged; the resolved result is still returned.
func (a *App) Refresh(ctx context.Context) (resolve.Result, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	res, err := a.resolveLocked(ctx)
	if err != nil {
		return res, err
	}
	if _, err := a.scheduler.Schedule(ctx, a.settings.Current()); err != nil {
		a.logger.Error().Err(err).Msg("alarm scheduling incomplete")
	}
	return res, nil
}

// Latest returns the most recent resolution.
func (a *App) Latest() (resolve.Result, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return resolve.Result{}, false
	}
	return *a.latest, true
}

// Next returns the upcoming prayer of the latest data.
func (a *App) Next() (prayer.NextInfo, error) {
	res, ok := a.Latest()
	if !ok {
		return prayer.NextInfo{}, ErrNotResolved
	}
	return prayer.Next(res.Data.Times, a.now())
}

// UpdateSettings applies fn and reschedules alarms. A persistence error
// (errors.Is settings.ErrPersistenceWrite) still leaves the new settings
// active and alarms rescheduled.
func (a *App) UpdateSettings(ctx context.Context, fn func(*settings.Settings) error) (settings.Settings, error) {
	s, err := a.settings.Update(ctx, fn)
	if err != nil && !errors.Is(err, settings.ErrPersistenceWrite) {
		return s, err
	}
	if _, serr := a.scheduler.Schedule(ctx, s); serr != nil {
		a.logger.Error().Err(serr).Msg("alarm scheduling incomplete")
	}
	return s, err
}

// ReplaceSettings swaps in s wholesale. The location fields are kept;
// ChangeLocation owns them.
func (a *App) ReplaceSettings(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	return a.UpdateSettings(ctx, func(cur *settings.Settings) error {
		mode, manual := cur.LocationMode, cur.ManualLocation
		*cur = s.Clone()
		cur.LocationMode, cur.ManualLocation = mode, manual
		return nil
	})
}

// ResetSettings restores the default settings and reschedules alarms. The
// location is kept, so the cached yearly data stays valid. A persistence
// error still leaves the defaults active and alarms rescheduled.
func (a *App) ResetSettings(ctx context.Context) error {
	s, err := a.settings.Reset(ctx)
	if _, serr := a.scheduler.Schedule(ctx, s); serr != nil {
		a.logger.Error().Err(serr).Msg("alarm scheduling incomplete")
	}
	return err
}

// ReloadSettings applies settings another process wrote to the store. A
// changed location resolves again, which also reschedules; any other change
// only reschedules. It reports whether the stored settings changed.
func (a *App) ReloadSettings(ctx context.Context) (bool, error) {
	prev := a.settings.Current()
	s, changed, err := a.settings.Reload(ctx)
	if err != nil || !changed {
		return false, err
	}
	a.logger.Info().Str("location_mode", string(s.LocationMode)).Msg("settings changed in the store")

	if !sameLocation(prev, s) {
		_, err := a.Refresh(ctx)
		return true, err
	}
	if _, err := a.scheduler.Schedule(ctx, s); err != nil {
		a.logger.Error().Err(err).Msg("alarm scheduling incomplete")
	}
	return true, nil
}

func sameLocation(a, b settings.Settings) bool {
	if a.LocationMode != b.LocationMode {
		return false
	}
	if a.ManualLocation == nil || b.ManualLocation == nil {
		return a.ManualLocation == b.ManualLocation
	}
	return *a.ManualLocation == *b.ManualLocation
}

// ChangeLocation switches the location mode, drops the yearly cache and
// resolves again. For manual mode cityName must be a gazetteer city.
func (a *App) ChangeLocation(ctx context.Context, mode settings.LocationMode, cityName string) (resolve.Result, error) {
	var manual *settings.ManualLocation
	switch mode {
	case settings.LocationAuto:
	case settings.LocationManual:
		city, ok := a.gazetteer.Lookup(cityName)
		if !ok {
			return resolve.Result{}, fmt.Errorf("unknown city %q", cityName)
		}
		manual = &settings.ManualLocation{
			City:   city.Name,
			Coords: settings.Coordinates{Latitude: city.Lat, Longitude: city.Lng},
		}
	default:
		return resolve.Result{}, fmt.Errorf("invalid location mode %q: must be auto or manual", mode)
	}

	if err := a.cache.Invalidate(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("yearly cache not removed")
	}

	_, perr := a.settings.Update(ctx, func(s *settings.Settings) error {
		s.LocationMode = mode
		s.ManualLocation = manual
		return nil
	})
	if perr != nil && !errors.Is(perr, settings.ErrPersistenceWrite) {
		return resolve.Result{}, perr
	}

	res, err := a.Refresh(ctx)
	return res, errors.Join(perr, err)
}

// Schedule re-registers every alarm with the current settings.
func (a *App) Schedule(ctx context.Context) ([]alarm.Registration, error) {
	return a.scheduler.Schedule(ctx, a.settings.Current())
}

// ScheduleTest registers a test alarm delay from now.
func (a *App) ScheduleTest(ctx context.Context, delay time.Duration) (alarm.Registration, error) {
	return a.scheduler.ScheduleTest(ctx, delay)
}

// Pending lists registered alarms.
func (a *App) Pending(ctx context.Context) ([]alarm.Registration, error) {
	return a.scheduler.Pending(ctx)
}

// Tick runs one guard step. When the date has moved past the latest
// result it refreshes first, at most once per refreshRetry.
func (a *App) Tick(ctx context.Context) (alarm.AlarmFired, bool) {
	now := a.now()
	res, ok := a.Latest()

	a.mu.RLock()
	due := now.Sub(a.lastAttempt) >= refreshRetry
	a.mu.RUnlock()

	if (!ok || res.Data.Date != prayer.DateKey(now)) && due {
		fresh, err := a.Refresh(ctx)
		if err != nil {
			a.logger.Warn().Err(err).Msg("day rollover refresh failed")
		} else {
			res, ok = fresh, true
		}
	}
	if !ok {
		return alarm.AlarmFired{}, false
	}
	return a.guard.Tick(res.Data.Times, a.settings.Current())
}

// HandleHostEvent shows the alarm for a payload delivered by the host.
func (a *App) HandleHostEvent(ev alarm.HostEvent) (alarm.AlarmFired, bool) {
	offset := 0
	if k, err := prayer.ParseKey(ev.Payload.Prayer); err == nil {
		offset = a.settings.Current().Offset(k)
	}
	return a.guard.HostEvent(ev.Payload, offset)
}

// HandleLaunch recovers an alarm the process was started for, as a host
// delivery of prayerKey.
func (a *App) HandleLaunch(prayerKey string) (alarm.AlarmFired, bool) {
	return a.HandleHostEvent(alarm.HostEvent{
		Payload: alarm.Payload{
			Prayer:       prayerKey,
			AutoTrigger:  true,
			DirectLaunch: true,
			TestMode:     prayerKey == alarm.TestPrayer,
		},
		At: a.now(),
	})
}

// StopAlarm dismisses the active alarm.
func (a *App) StopAlarm() bool {
	stopped := a.guard.Stop()
	if stopped {
		a.logger.Info().Msg("alarm stopped")
	}
	return stopped
}

// AlarmState returns the guard state.
func (a *App) AlarmState() alarm.Snapshot {
	return a.guard.Snapshot()
}

// Close releases the host and the store.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.host.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// logEvent writes a fired alarm to the log.
func (a *App) logEvent(ev alarm.AlarmFired) {
	a.logger.Info().
		Str(observability.FieldPrayer, ev.Prayer).
		Str("name", ev.Name).
		Str("path", ev.Path).
		Bool("test", ev.TestMode).
		Msg("alarm")
}
