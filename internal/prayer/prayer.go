// Package prayer holds the prayer-time data model and the pure calculations
// built on it: next-prayer lookup, minutes remaining and time formatting.
package prayer

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Key identifies one of the six daily prayer times.
type Key string

const (
	Imsak  Key = "imsak"
	Gunes  Key = "gunes"
	Ogle   Key = "ogle"
	Ikindi Key = "ikindi"
	Aksam  Key = "aksam"
	Yatsi  Key = "yatsi"
)

// Keys lists every prayer key in chronological order within a day.
var Keys = []Key{Imsak, Gunes, Ogle, Ikindi, Aksam, Yatsi}

// DisplayNames maps prayer keys to their Turkish display names.
var DisplayNames = map[Key]string{
	Imsak:  "İmsak",
	Gunes:  "Güneş",
	Ogle:   "Öğle",
	Ikindi: "İkindi",
	Aksam:  "Akşam",
	Yatsi:  "Yatsı",
}

// ShortNames maps prayer keys to compact labels for status lines.
var ShortNames = map[Key]string{
	Imsak:  "İm",
	Gunes:  "G",
	Ogle:   "Ö",
	Ikindi: "İk",
	Aksam:  "A",
	Yatsi:  "Y",
}

// DateLayout is the DD.MM.YYYY layout used for cache keys and PrayerData.Date.
const DateLayout = "02.01.2006"

// ParseKey validates a raw prayer key.
func ParseKey(raw string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := DisplayNames[k]; !ok {
		return "", fmt.Errorf("unknown prayer key %q", raw)
	}
	return k, nil
}

// Name returns the display name for the key, or the raw key when unknown.
func (k Key) Name() string {
	if n, ok := DisplayNames[k]; ok {
		return n
	}
	return string(k)
}

// Times maps each prayer key to a wall-clock "HH:MM" string.
type Times map[Key]string

// Validate checks that all six keys are present and parse as HH:MM.
func (t Times) Validate() error {
	for _, k := range Keys {
		raw, ok := t[k]
		if !ok || raw == "" {
			return fmt.Errorf("missing time for %s", k)
		}
		if _, err := MinuteOfDay(raw); err != nil {
			return fmt.Errorf("time for %s: %w", k, err)
		}
	}
	return nil
}

// Days maps DD.MM.YYYY date keys to that day's times.
type Days map[string]Times

// Data is a resolved prayer-time record for a single day.
type Data struct {
	Date      string `json:"date"` // DD.MM.YYYY
	Times     Times  `json:"times"`
	City      string `json:"city"`
	IsOffline bool   `json:"isOffline"`
	Source    string `json:"source"`
}

// NextInfo describes the upcoming prayer relative to a wall-clock instant.
type NextInfo struct {
	Key              Key    `json:"key"`
	Name             string `json:"name"`
	Time             string `json:"time"`
	MinutesRemaining int    `json:"minutesRemaining"`
	IsTomorrow       bool   `json:"isTomorrow"`
}

// DateKey formats t as a DD.MM.YYYY cache key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateKey parses a DD.MM.YYYY key as midnight in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(key), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// CalculateNext returns the first prayer whose minute-of-day is strictly
// after now's minute-of-day. When every prayer has passed it returns Imsak
// with isTomorrow set. Missing or malformed entries are skipped.
func CalculateNext(times Times, now time.Time) (Key, bool) {
	current := now.Hour()*60 + now.Minute()
	for _, k := range Keys {
		raw, ok := times[k]
		if !ok {
			continue
		}
		m, err := MinuteOfDay(raw)
		if err != nil {
			continue
		}
		if m > current {
			return k, false
		}
	}
	return Imsak, true
}

// MinutesUntil returns the whole minutes (floored) from now until timeStr
// today, or tomorrow when isTomorrow is set.
func MinutesUntil(timeStr string, isTomorrow bool, now time.Time) (int, error) {
	target, err := At(timeStr, now)
	if err != nil {
		return 0, err
	}
	if isTomorrow {
		target = target.AddDate(0, 0, 1)
	}
	return int(math.Floor(target.Sub(now).Minutes())), nil
}

// Next combines CalculateNext and MinutesUntil into a NextInfo.
func Next(times Times, now time.Time) (NextInfo, error) {
	key, tomorrow := CalculateNext(times, now)
	timeStr, ok := times[key]
	if !ok {
		return NextInfo{}, fmt.Errorf("no time for %s", key)
	}
	remaining, err := MinutesUntil(timeStr, tomorrow, now)
	if err != nil {
		return NextInfo{}, fmt.Errorf("next prayer %s: %w", key, err)
	}
	return NextInfo{
		Key:              key,
		Name:             key.Name(),
		Time:             timeStr,
		MinutesRemaining: remaining,
		IsTomorrow:       tomorrow,
	}, nil
}

// At builds the instant for an "HH:MM" string on day's date, in day's location.
func At(raw string, day time.Time) (time.Time, error) {
	hour, min, err := parseClock(raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, day.Location()), nil
}

// MinuteOfDay converts "HH:MM" into minutes since midnight.
func MinuteOfDay(raw string) (int, error) {
	hour, min, err := parseClock(raw)
	if err != nil {
		return 0, err
	}
	return hour*60 + min, nil
}

// FormatRemaining formats a duration as "Xh Ym" or "Ym" if less than an hour.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		return "0m"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// AlarmTime renders the wall-clock time at which an alarm with the given
// reminder offset fires, wrapping across midnight.
func AlarmTime(timeStr string, offsetMinutes int) (string, error) {
	m, err := MinuteOfDay(timeStr)
	if err != nil {
		return "", err
	}
	m = ((m-offsetMinutes)%(24*60) + 24*60) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", m/60, m%60), nil
}

// parseClock parses a time string like "05:17" or "05:17 (+03)".
func parseClock(raw string) (int, int, error) {
	// Some sources append a zone label after a space.
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, " "); idx != -1 {
		s = s[:idx]
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format: %q", raw)
	}

	var hour, min int
	if _, err := fmt.Sscanf(parts[0], "%d", &hour); err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q: %w", raw, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &min); err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q: %w", raw, err)
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("time out of range: %q", raw)
	}

	return hour, min, nil
}
