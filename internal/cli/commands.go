package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/ezan-vakti/internal/display"
	"github.com/smokyabdulrahman/ezan-vakti/internal/geo"
	"github.com/smokyabdulrahman/ezan-vakti/internal/resolve"
	"github.com/smokyabdulrahman/ezan-vakti/internal/settings"
	"github.com/smokyabdulrahman/ezan-vakti/internal/store"
)

func newCitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cities [filter]",
		Short: "List known cities",
		Long:  "List the cities prayer times can be resolved for. The filter ignores case and Turkish diacritics.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			cities := geo.DefaultGazetteer().Filter(query)

			if FlagJSON {
				return writeJSON(cmd.OutOrStdout(), cities)
			}
			if len(cities) == 0 {
				return fmt.Errorf("no city matches %q", query)
			}
			tbl := display.NewTable([]string{"Şehir", "ID", "Enlem", "Boylam"})
			for _, c := range cities {
				tbl.AddRow([]string{c.Name, c.AdministrativeID, fmt.Sprintf("%.4f", c.Lat), fmt.Sprintf("%.4f", c.Lng)})
			}
			fmt.Fprint(cmd.OutOrStdout(), tbl.Render())
			return nil
		},
	}
}

func newLocationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Show or change the location mode",
		Long:  "Show the location mode, or switch between automatic detection and a manually chosen city.\nSwitching drops the cached year and resolves again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			fmt.Fprintln(cmd.OutOrStdout(), locationLabel(a.Settings()))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "auto",
		Short: "Detect the city from the device position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeLocation(cmd, settings.LocationAuto, "")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "manual <city>",
		Short: "Use a fixed city",
		Long:  "Use a fixed city. See `ezan-vakti cities` for the accepted names.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeLocation(cmd, settings.LocationManual, args[0])
		},
	})

	return cmd
}

func changeLocation(cmd *cobra.Command, mode settings.LocationMode, city string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	res, err := a.ChangeLocation(ctx, mode, city)
	if err := warnPersistence(cmd, err); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Location: %s, showing %s (%s)\n", locationLabel(a.Settings()), res.Data.City, res.Label())
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or modify settings",
		Long:  "Display the current settings, or use subcommands to modify them.\nWhen run without subcommands, shows every setting.",
		RunE:  runConfigShow,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a setting",
		Long: fmt.Sprintf("Set a setting. Valid keys: %s\n\nExamples:\n  ezan-vakti config set sound_type beep\n  ezan-vakti config set reminder_aksam 10\n  ezan-vakti config set manual_city Ankara\n  ezan-vakti config set location_mode manual",
			strings.Join(settings.ValidKeys, ", ")),
		Args: cobra.ExactArgs(2),
		RunE: runConfigSet,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigGet,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sound <file>",
		Short: "Use an audio file as the alarm sound",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigSound,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset settings to defaults",
		RunE:  runConfigReset,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print where settings are stored",
		RunE:  runConfigPath,
	})

	return cmd
}

// runConfigShow displays the current settings.
func runConfigShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	s := a.Settings()
	if FlagJSON {
		return writeJSON(cmd.OutOrStdout(), s)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "  Settings (%s)\n\n", storeLocation())
	for _, key := range settings.ValidKeys {
		val, _ := s.Get(key)
		if val == "" {
			val = "(not set)"
		}
		fmt.Fprintf(w, "  %-16s %s\n", key, val)
	}
	if s.CustomSoundName != "" {
		fmt.Fprintf(w, "  %-16s %s\n", "custom_sound", s.CustomSoundName)
	}
	return nil
}

// runConfigSet sets a key. Changes to the effective location go through
// ChangeLocation so the cached year is dropped.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	cur := a.Settings()
	next := cur.Clone()
	if err := next.Set(key, value); err != nil {
		return err
	}

	if next.LocationMode != cur.LocationMode || next.CityOverride() != cur.CityOverride() {
		city := ""
		if next.ManualLocation != nil {
			city = next.ManualLocation.City
		}
		_, err = a.ChangeLocation(ctx, next.LocationMode, city)
	} else {
		_, err = a.UpdateSettings(ctx, func(s *settings.Settings) error {
			return s.Set(key, value)
		})
	}
	if err := warnPersistence(cmd, err); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	s := a.Settings()
	val, err := s.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), val)
	return nil
}

func runConfigSound(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading sound: %w", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	s, err := a.UpdateSettings(ctx, func(s *settings.Settings) error {
		return s.SetCustomSound(args[0], data)
	})
	if err := warnPersistence(cmd, err); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Alarm sound set to %s\n", s.CustomSoundName)
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := warnPersistence(cmd, a.ResetSettings(ctx)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Settings reset to defaults. Location kept; use `location` to change it.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), storeLocation())
	return nil
}

// storeLocation describes where the configured backend keeps its data.
func storeLocation() string {
	cfg := loadedConfig
	switch cfg.StoreBackend {
	case store.BackendMemory:
		return "memory"
	case store.BackendRedis:
		return "redis://" + cfg.RedisAddr + "/" + cfg.RedisPrefix
	case store.BackendSQLite:
		path, err := cfg.ResolvedSQLitePath()
		if err != nil {
			return "sqlite"
		}
		return path
	default:
		dir, err := cfg.ResolvedDataDir()
		if err != nil {
			return "file"
		}
		return dir
	}
}

// warnPersistence downgrades a failed write to a warning: the change is
// active for this run but was not saved.
func warnPersistence(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, settings.ErrPersistenceWrite) && !errors.Is(err, resolve.ErrNoDataAvailable) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		return nil
	}
	return err
}
