package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/ezan-vakti/internal/app"
	"github.com/smokyabdulrahman/ezan-vakti/internal/display"
	"github.com/smokyabdulrahman/ezan-vakti/internal/httpapi"
)

var (
	flagRingDuration time.Duration
	flagTick         time.Duration
	flagReload       time.Duration
	flagAddr         string
	flagNoHTTP       bool
	flagLaunchPrayer string
	flagAllowOrigins []string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the alarm daemon",
		Long:  "Keep prayer times current, ring an alarm at each prayer and serve the HTTP API until interrupted.",
		Args:  cobra.NoArgs,
		RunE:  runDaemon,
	}

	f := cmd.Flags()
	f.DurationVar(&flagRingDuration, "ring-duration", app.DefaultRingDuration, "How long an alarm rings before stopping; negative rings until stopped")
	f.DurationVar(&flagTick, "tick", app.DefaultTickInterval, "Alarm poll interval")
	f.DurationVar(&flagReload, "reload", app.DefaultReloadInterval, "How often settings changed by other commands are picked up; negative disables")
	f.StringVar(&flagAddr, "addr", "", "HTTP API listen address (overrides HTTP_ADDR)")
	f.BoolVar(&flagNoHTTP, "no-http", false, "Do not serve the HTTP API")
	f.StringVar(&flagLaunchPrayer, "launch-prayer", "", "Show the alarm for this prayer key on start, as delivered by the alarm host")
	f.StringSliceVar(&flagAllowOrigins, "allow-origin", nil, "CORS origin allowed to call the HTTP API (repeatable; default any)")

	return cmd
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	opts := app.RunOptions{
		TickInterval:   flagTick,
		RingDuration:   flagRingDuration,
		ReloadInterval: flagReload,
		LaunchPrayer:   flagLaunchPrayer,
	}
	if !flagNoHTTP {
		opts.Addr = loadedConfig.HTTPAddr
		if flagWasSet(cmd.Flags(), cmd.Root().PersistentFlags(), "addr") {
			opts.Addr = flagAddr
		}
		opts.Handler = httpapi.NewRouter(a, httpapi.Options{
			AllowOrigins: flagAllowOrigins,
			Logger:       &logger,
		})
	}

	events, unsubscribe := a.Bus().Subscribe(16)
	defer unsubscribe()
	go func() {
		for ev := range events {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", ev.At.Format("15:04:05"), display.Accent("🔔 "+ev.Name))
		}
	}()

	return a.Run(ctx, opts)
}
