package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/ezan-vakti/internal/display"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
	"github.com/smokyabdulrahman/ezan-vakti/internal/resolve"
	"github.com/smokyabdulrahman/ezan-vakti/internal/settings"
)

func runToday(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	res, err := a.Resolve(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	if FlagJSON {
		return printTodayJSON(cmd.OutOrStdout(), res, now)
	}

	s := a.Settings()
	fmt.Fprint(cmd.OutOrStdout(), display.RenderSchedule(display.Schedule{
		Data:          res.Data,
		Tier:          res.Label(),
		Offsets:       s.PrayerReminders,
		AlarmsEnabled: s.NotificationsEnabled,
		Now:           now,
	}))
	return nil
}

// todayJSON is the JSON output structure for the root command.
type todayJSON struct {
	prayer.Data
	Tier string           `json:"tier"`
	Next *prayer.NextInfo `json:"next,omitempty"`
}

func printTodayJSON(w io.Writer, res resolve.Result, now time.Time) error {
	out := todayJSON{Data: res.Data, Tier: res.Label()}
	if next, err := prayer.Next(res.Data.Times, now); err == nil {
		out.Next = &next
	}
	return writeJSON(w, out)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// locationLabel describes the configured location for humans.
func locationLabel(s settings.Settings) string {
	if s.LocationMode == settings.LocationManual && s.ManualLocation != nil {
		return "manual (" + s.ManualLocation.City + ")"
	}
	return "auto"
}
