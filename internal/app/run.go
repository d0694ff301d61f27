package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smokyabdulrahman/ezan-vakti/internal/alarm"
)

const (
	// DefaultTickInterval is the guard poll period.
	DefaultTickInterval = time.Second
	// DefaultRingDuration is how long an alarm rings before returning to Idle.
	DefaultRingDuration = time.Minute
	// DefaultReloadInterval is how often the stored settings are re-read.
	DefaultReloadInterval = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// RunOptions configures the daemon loop.
type RunOptions struct {
	TickInterval time.Duration
	// RingDuration stops a firing alarm automatically. Zero uses
	// DefaultRingDuration; negative leaves it ringing until StopAlarm.
	RingDuration time.Duration
	// ReloadInterval re-reads settings written by other processes. Zero
	// uses DefaultReloadInterval; negative disables it.
	ReloadInterval time.Duration
	// Handler is served on Listener, or on Addr when Listener is nil.
	// Nil disables the HTTP API.
	Handler  http.Handler
	Addr     string
	Listener net.Listener
	// LaunchPrayer is the prayer key the process was started for by an
	// alarm delivery, if any.
	LaunchPrayer string
}

// Run resolves, schedules and then polls the guard, handles host events and
// serves the HTTP API until ctx is cancelled. A failed initial resolution
// is retried by the poll loop.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.RingDuration == 0 {
		opts.RingDuration = DefaultRingDuration
	}
	if opts.ReloadInterval == 0 {
		opts.ReloadInterval = DefaultReloadInterval
	}

	if _, err := a.Refresh(ctx); err != nil {
		a.logger.Error().Err(err).Msg("initial resolution failed")
	}

	events, unsubscribe := a.bus.Subscribe(16)
	defer unsubscribe()

	if opts.LaunchPrayer != "" {
		a.HandleLaunch(opts.LaunchPrayer)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.Tick(gctx)
			}
		}
	})

	if opts.ReloadInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(opts.ReloadInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if _, err := a.ReloadSettings(gctx); err != nil {
						a.logger.Warn().Err(err).Msg("settings reload failed")
					}
				}
			}
		})
	}

	if src, ok := a.host.(alarm.EventSource); ok {
		g.Go(func() error {
			return a.hostEvents(gctx, src.Events())
		})
	}

	g.Go(func() error {
		return a.ring(gctx, events, opts.RingDuration)
	})

	if opts.Handler != nil {
		g.Go(func() error {
			return a.serve(gctx, opts)
		})
	}

	a.logger.Info().Dur("tick", opts.TickInterval).Msg("daemon running")
	return g.Wait()
}

func (a *App) hostEvents(ctx context.Context, ch <-chan alarm.HostEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			a.HandleHostEvent(ev)
		}
	}
}

// ring logs every fired alarm and stops it after d.
func (a *App) ring(ctx context.Context, events <-chan alarm.AlarmFired, d time.Duration) error {
	var (
		timer  *time.Timer
		expiry <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.logEvent(ev)
			if d < 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(d)
			expiry = timer.C
		case <-expiry:
			expiry = nil
			a.StopAlarm()
		}
	}
}

func (a *App) serve(ctx context.Context, opts RunOptions) error {
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           opts.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if opts.Listener != nil {
			err = srv.Serve(opts.Listener)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	a.logger.Info().Str("addr", opts.Addr).Msg("HTTP API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP API: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP API shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}
