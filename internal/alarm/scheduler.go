package alarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/cache"
	"github.com/smokyabdulrahman/ezan-vakti/internal/observability"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
	"github.com/smokyabdulrahman/ezan-vakti/internal/settings"
)

// DaySource reads the persisted yearly table.
type DaySource interface {
	Load(ctx context.Context) (*cache.Yearly, error)
}

// Scheduler regenerates the full set of alarms for today and tomorrow.
// Cancel and re-register are separate host calls; a crash between them
// leaves no alarms until the next scheduling pass.
type Scheduler struct {
	host     Host
	fallback Notifier
	days     DaySource
	now      func() time.Time
	logger   *zerolog.Logger
}

// SchedulerOption customises a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the wall clock.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScheduler creates a Scheduler. fallback may be nil.
func NewScheduler(host Host, fallback Notifier, days DaySource, opts ...SchedulerOption) *Scheduler {
	nop := zerolog.Nop()
	s := &Scheduler{host: host, fallback: fallback, days: days, now: time.Now, logger: &nop}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Plan computes the registrations for today and tomorrow without touching
// the host. Only fire times strictly after now are included.
func (s *Scheduler) Plan(y *cache.Yearly, set settings.Settings) []Registration {
	if y == nil {
		return nil
	}
	now := s.now()
	var regs []Registration
	for _, day := range []time.Time{now, now.AddDate(0, 0, 1)} {
		times, ok := y.Days[prayer.DateKey(day)]
		if !ok {
			continue
		}
		for idx, key := range prayer.Keys {
			at, err := prayer.At(times[key], day)
			if err != nil {
				s.logger.Warn().Err(err).Str(observability.FieldPrayer, string(key)).Msg("skipping unparsable time")
				continue
			}
			fireAt := at.Add(-time.Duration(set.Offset(key)) * time.Minute)
			if !fireAt.After(now) {
				continue
			}
			regs = append(regs, Registration{
				ID:     registrationID(fireAt, idx),
				FireAt: fireAt,
				Title:  Title,
				Body:   prayerBody(key),
				Payload: Payload{
					Prayer:       string(key),
					AutoTrigger:  true,
					DirectLaunch: true,
				},
			})
		}
	}
	return regs
}

// Schedule cancels every pending alarm and, when notifications are
// enabled, registers the planned set. A registration the host refuses is
// retried as a plain notification.
func (s *Scheduler) Schedule(ctx context.Context, set settings.Settings) ([]Registration, error) {
	if err := s.host.CancelAll(ctx); err != nil {
		return nil, fmt.Errorf("%w: cancelling pending alarms: %w", ErrRegistration, err)
	}
	observability.AlarmRegistrations.Set(0)

	if !set.NotificationsEnabled {
		s.logger.Info().Msg("notifications disabled, no alarms scheduled")
		return nil, nil
	}

	y, err := s.days.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading prayer times for scheduling: %w", err)
	}

	var (
		registered []Registration
		errs       []error
	)
	for _, r := range s.Plan(y, set) {
		if err := s.register(ctx, r); err != nil {
			errs = append(errs, err)
			continue
		}
		registered = append(registered, r)
	}

	observability.AlarmRegistrations.Set(float64(len(registered)))
	s.logger.Info().Int("count", len(registered)).Msg("alarms scheduled")
	return registered, errors.Join(errs...)
}

// ScheduleTest registers a one-off test alarm delay from now, leaving
// other alarms in place.
func (s *Scheduler) ScheduleTest(ctx context.Context, delay time.Duration) (Registration, error) {
	if delay <= 0 {
		delay = DefaultTestDelay
	}
	fireAt := s.now().Add(delay).Truncate(time.Second)
	r := Registration{
		ID:     fireAt.Unix(),
		FireAt: fireAt,
		Title:  TestTitle,
		Body:   fmt.Sprintf("%s sonra test alarmı", delay),
		Payload: Payload{
			Prayer:       TestPrayer,
			AutoTrigger:  true,
			DirectLaunch: true,
			TestMode:     true,
		},
	}
	if err := s.register(ctx, r); err != nil {
		return Registration{}, err
	}
	return r, nil
}

// Pending lists the host's registrations ordered by fire time.
func (s *Scheduler) Pending(ctx context.Context) ([]Registration, error) {
	regs, err := s.host.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing pending alarms: %w", err)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].FireAt.Before(regs[j].FireAt) })
	return regs, nil
}

func (s *Scheduler) register(ctx context.Context, r Registration) error {
	err := s.host.Schedule(ctx, r)
	if err == nil {
		s.logger.Debug().Str(observability.FieldPrayer, r.Payload.Prayer).
			Time(observability.FieldFireAt, r.FireAt).Msg("alarm registered")
		return nil
	}

	observability.AlarmRegistrationFailures.Inc()
	s.logger.Warn().Err(err).Str(observability.FieldPrayer, r.Payload.Prayer).
		Time(observability.FieldFireAt, r.FireAt).Msg("direct alarm refused, falling back to notification")

	if s.fallback == nil {
		return fmt.Errorf("%w: %s at %s: %w", ErrRegistration, r.Payload.Prayer, r.FireAt.Format(time.RFC3339), err)
	}
	if ferr := s.fallback.Notify(ctx, r); ferr != nil {
		return fmt.Errorf("%w: %s at %s: %w", ErrRegistration, r.Payload.Prayer, r.FireAt.Format(time.RFC3339), errors.Join(err, ferr))
	}
	return nil
}
