package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
)

// Schedule is one day of prayer times prepared for rendering.
type Schedule struct {
	Data prayer.Data
	// Tier names the resolution tier, e.g. "authority" or "mirror_2".
	Tier string
	// Offsets are reminder minutes per prayer. Missing keys mean zero.
	Offsets map[prayer.Key]int
	// AlarmsEnabled hides the alarm column when false.
	AlarmsEnabled bool
	Now           time.Time
}

// RenderSchedule renders the header, the day's table and the next-prayer
// line. Passed prayers are dimmed and the next one is highlighted.
func RenderSchedule(s Schedule) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString("  " + Bold("Ezan Vakti") + "\n\n")
	sb.WriteString(fmt.Sprintf("  %s  %s\n", s.Data.City, s.Data.Date))
	source := s.Data.Source
	if s.Tier != "" {
		source += " [" + s.Tier + "]"
	}
	sb.WriteString("  " + Dim(source) + "\n")
	if s.Data.IsOffline {
		sb.WriteString("  " + Yellow("Çevrimdışı: önbellekteki en yakın gün gösteriliyor") + "\n")
	}
	sb.WriteString("\n")

	headers := []string{"Vakit", "Saat"}
	if s.AlarmsEnabled {
		headers = append(headers, "Alarm")
	}
	tbl := NewTable(headers)

	nextKey, tomorrow := prayer.CalculateNext(s.Data.Times, s.Now)
	for i, k := range prayer.Keys {
		raw := s.Data.Times[k]
		row := []string{k.Name(), raw}
		if s.AlarmsEnabled {
			row = append(row, alarmCell(raw, s.Offsets[k]))
		}
		tbl.AddRow(row)

		switch {
		case !tomorrow && k == nextKey:
			tbl.SetHighlightRow(i)
		case tomorrow || passed(raw, s.Now):
			tbl.SetDimRow(i)
		}
	}
	sb.WriteString(tbl.Render())
	sb.WriteString("\n")

	if next, err := prayer.Next(s.Data.Times, s.Now); err == nil {
		sb.WriteString("  " + NextLine(next) + "\n\n")
	}
	return sb.String()
}

// NextLine renders the upcoming prayer with its countdown.
func NextLine(next prayer.NextInfo) string {
	remaining := prayer.FormatRemaining(time.Duration(next.MinutesRemaining) * time.Minute)
	line := fmt.Sprintf("Sonraki: %s %s", next.Name, next.Time)
	if next.IsTomorrow {
		line += " (yarın)"
	}
	return Accent(line) + "  " + Dim(remaining+" kaldı")
}

func alarmCell(raw string, offset int) string {
	at, err := prayer.AlarmTime(raw, offset)
	if err != nil {
		return "-"
	}
	if offset == 0 {
		return at
	}
	return fmt.Sprintf("%s (-%d dk)", at, offset)
}

func passed(raw string, now time.Time) bool {
	m, err := prayer.MinuteOfDay(raw)
	if err != nil {
		return false
	}
	return m <= now.Hour()*60+now.Minute()
}
