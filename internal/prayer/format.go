package prayer

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Format constants for display modes.
const (
	FormatTimeRemaining      = "time-remaining"
	FormatNextPrayerTime     = "next-prayer-time"
	FormatNameAndTime        = "name-and-time"
	FormatNameAndRemaining   = "name-and-remaining"
	FormatShortNameAndTime   = "short-name-and-time"
	FormatShortNameAndRemain = "short-name-and-remaining"
	FormatFull               = "full"
)

// FormatData is the data passed to custom Go templates.
type FormatData struct {
	Key        string // Prayer key, e.g. "ikindi"
	Name       string // Display name, e.g. "İkindi"
	ShortName  string // Abbreviated name, e.g. "İk"
	Time       string // Prayer time as HH:MM
	Remaining  string // Time remaining, e.g. "2h 15m"
	Hours      int    // Whole hours remaining
	Minutes    int    // Remaining minutes after hours
	IsTomorrow bool
}

// FormatOutput formats the next prayer for display according to mode.
//
// If mode contains "{{", it is treated as a custom Go template string.
// Available template fields: .Key, .Name, .ShortName, .Time, .Remaining,
// .Hours, .Minutes, .IsTomorrow
//
// Example: "{{.Name}} in {{.Remaining}}" -> "İkindi in 2h 15m"
func FormatOutput(next NextInfo, mode string) string {
	d := time.Duration(next.MinutesRemaining) * time.Minute
	remaining := FormatRemaining(d)
	short := ShortNames[next.Key]

	if strings.Contains(mode, "{{") {
		return formatCustom(mode, FormatData{
			Key:        string(next.Key),
			Name:       next.Name,
			ShortName:  short,
			Time:       next.Time,
			Remaining:  remaining,
			Hours:      int(d.Hours()),
			Minutes:    int(d.Minutes()) % 60,
			IsTomorrow: next.IsTomorrow,
		})
	}

	switch mode {
	case FormatTimeRemaining:
		return remaining
	case FormatNextPrayerTime:
		return next.Time
	case FormatNameAndTime:
		return fmt.Sprintf("%s %s", next.Name, next.Time)
	case FormatNameAndRemaining:
		return fmt.Sprintf("%s %s", next.Name, remaining)
	case FormatShortNameAndTime:
		return fmt.Sprintf("%s %s", short, next.Time)
	case FormatShortNameAndRemain:
		return fmt.Sprintf("%s %s", short, remaining)
	case FormatFull:
		return fmt.Sprintf("%s %s (%s)", next.Name, next.Time, remaining)
	default:
		return fmt.Sprintf("%s %s", next.Name, next.Time)
	}
}

// formatCustom executes a user-provided Go template string against the FormatData.
func formatCustom(tmpl string, data FormatData) string {
	t, err := template.New("custom").Parse(tmpl)
	if err != nil {
		return fmt.Sprintf("template-err: %v", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Sprintf("template-err: %v", err)
	}

	return buf.String()
}
