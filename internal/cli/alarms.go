package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/ezan-vakti/internal/alarm"
	"github.com/smokyabdulrahman/ezan-vakti/internal/display"
)

var flagTestDelay time.Duration

func newAlarmsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alarms",
		Short: "Schedule and list prayer alarms",
		Long: "Resolve today's times, register the alarms for today and tomorrow with the alarm host and list them.\n" +
			"With the local alarm host the alarms live in the daemon; this lists what `run` holds at HTTP_ADDR.",
		Args: cobra.NoArgs,
		RunE: runAlarms,
	}

	test := &cobra.Command{
		Use:   "test",
		Short: "Register a test alarm",
		Long:  "Register a test alarm. With the local alarm host it is registered with the daemon at HTTP_ADDR.",
		Args:  cobra.NoArgs,
		RunE:  runAlarmsTest,
	}
	test.Flags().DurationVar(&flagTestDelay, "delay", alarm.DefaultTestDelay, "How far ahead the test alarm fires")
	cmd.AddCommand(test)

	return cmd
}

func runAlarms(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var regs []alarm.Registration
	if usesDaemon(loadedConfig) {
		var err error
		if regs, err = newDaemonClient(loadedConfig.HTTPAddr).Pending(ctx); err != nil {
			return err
		}
	} else {
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closeApp(a)

		if _, err := a.Refresh(ctx); err != nil {
			return err
		}
		if regs, err = a.Pending(ctx); err != nil {
			return err
		}
	}

	if FlagJSON {
		return writeJSON(cmd.OutOrStdout(), regs)
	}
	if len(regs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No alarms scheduled.")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), renderRegistrations(regs))
	return nil
}

func runAlarmsTest(cmd *cobra.Command, args []string) error {
	if flagTestDelay < 0 {
		return fmt.Errorf("invalid --delay %s: must not be negative", flagTestDelay)
	}
	ctx := cmd.Context()

	var reg alarm.Registration
	if usesDaemon(loadedConfig) {
		var err error
		if reg, err = newDaemonClient(loadedConfig.HTTPAddr).ScheduleTest(ctx, flagTestDelay); err != nil {
			return err
		}
	} else {
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer closeApp(a)

		if reg, err = a.ScheduleTest(ctx, flagTestDelay); err != nil {
			return err
		}
	}

	if FlagJSON {
		return writeJSON(cmd.OutOrStdout(), reg)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Test alarm %d at %s\n", reg.ID, reg.FireAt.Format("15:04:05"))
	return nil
}

func renderRegistrations(regs []alarm.Registration) string {
	tbl := display.NewTable([]string{"ID", "Zaman", "Vakit", "Başlık"})
	for _, r := range regs {
		tbl.AddRow([]string{
			fmt.Sprintf("%d", r.ID),
			r.FireAt.Format("02.01 15:04"),
			r.Payload.DisplayName(),
			r.Title,
		})
	}
	return tbl.Render()
}
