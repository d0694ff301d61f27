// Package settings holds the user's application settings: alarm sound,
// reminders, notifications and location mode.
//
// Settings are stored as JSON in the key-value store under
// "ezan_app_settings". Older documents are migrated on read.
package settings

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/smokyabdulrahman/ezan-vakti/internal/geo"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
)

// SoundType selects the alarm sound.
type SoundType string

const (
	SoundEzan   SoundType = "ezan"
	SoundBeep   SoundType = "beep"
	SoundCustom SoundType = "custom"
)

// LocationMode selects how the city is chosen.
type LocationMode string

const (
	LocationAuto   LocationMode = "auto"
	LocationManual LocationMode = "manual"
)

// MaxReminder is the largest reminder offset in minutes.
const MaxReminder = 60

// DefaultCoords is used when no position is available (İstanbul).
var DefaultCoords = Coordinates{Latitude: 41.0082, Longitude: 28.9784}

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ManualLocation is a user-chosen city.
type ManualLocation struct {
	City   string      `json:"city"`
	Coords Coordinates `json:"coords"`
}

// Settings is the persisted settings document.
type Settings struct {
	SoundType            SoundType          `json:"soundType"`
	CustomSoundSource    string             `json:"customSoundSource,omitempty"` // data URI
	CustomSoundName      string             `json:"customSoundName,omitempty"`
	VibrationEnabled     bool               `json:"vibrationEnabled"`
	NotificationsEnabled bool               `json:"notificationsEnabled"`
	PrayerReminders      map[prayer.Key]int `json:"prayerReminders"`
	Volume               float64            `json:"volume"`
	LocationMode         LocationMode       `json:"locationMode"`
	ManualLocation       *ManualLocation    `json:"manualLocation,omitempty"`
}

// Defaults returns the settings of a fresh install.
func Defaults() Settings {
	reminders := make(map[prayer.Key]int, len(prayer.Keys))
	for _, k := range prayer.Keys {
		reminders[k] = 0
	}
	return Settings{
		SoundType:            SoundEzan,
		VibrationEnabled:     true,
		NotificationsEnabled: true,
		PrayerReminders:      reminders,
		Volume:               0.8,
		LocationMode:         LocationAuto,
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.PrayerReminders = make(map[prayer.Key]int, len(s.PrayerReminders))
	for k, v := range s.PrayerReminders {
		out.PrayerReminders[k] = v
	}
	if s.ManualLocation != nil {
		ml := *s.ManualLocation
		out.ManualLocation = &ml
	}
	return out
}

// Offset returns the reminder offset in minutes for key, 0 when unset.
func (s Settings) Offset(key prayer.Key) int {
	return s.PrayerReminders[key]
}

// CityOverride returns the manual city when in manual mode.
func (s Settings) CityOverride() string {
	if s.LocationMode == LocationManual && s.ManualLocation != nil {
		return s.ManualLocation.City
	}
	return ""
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	switch s.SoundType {
	case SoundEzan, SoundBeep, SoundCustom:
	default:
		return fmt.Errorf("invalid soundType %q", s.SoundType)
	}
	if s.Volume < 0 || s.Volume > 1 {
		return fmt.Errorf("invalid volume %v: must be between 0 and 1", s.Volume)
	}
	switch s.LocationMode {
	case LocationAuto:
	case LocationManual:
		if s.ManualLocation == nil || s.ManualLocation.City == "" {
			return fmt.Errorf("manual location mode requires a city")
		}
	default:
		return fmt.Errorf("invalid locationMode %q", s.LocationMode)
	}
	for k, v := range s.PrayerReminders {
		if _, err := prayer.ParseKey(string(k)); err != nil {
			return fmt.Errorf("invalid reminder: %w", err)
		}
		if v < 0 || v > MaxReminder {
			return fmt.Errorf("invalid reminder for %s: %d must be between 0 and %d", k, v, MaxReminder)
		}
	}
	return nil
}

// legacyFields are keys from older settings documents.
type legacyFields struct {
	UseEzanSound *bool `json:"useEzanSound"`
}

// Decode parses a stored document, layering it over Defaults and migrating
// legacy fields. Unparsable input yields Defaults and the parse error.
func Decode(raw []byte) (Settings, error) {
	s := Defaults()
	if err := json.Unmarshal(raw, &s); err != nil {
		return Defaults(), fmt.Errorf("invalid settings document: %w", err)
	}

	var legacy legacyFields
	if err := json.Unmarshal(raw, &legacy); err == nil && legacy.UseEzanSound != nil {
		if *legacy.UseEzanSound {
			s.SoundType = SoundEzan
		} else {
			s.SoundType = SoundBeep
		}
	}

	if s.PrayerReminders == nil {
		s.PrayerReminders = Defaults().PrayerReminders
	}
	for _, k := range prayer.Keys {
		if _, ok := s.PrayerReminders[k]; !ok {
			s.PrayerReminders[k] = 0
		}
	}
	if s.LocationMode == "" {
		s.LocationMode = LocationAuto
	}
	if s.SoundType == "" {
		s.SoundType = SoundEzan
	}
	return s, nil
}

// reminderPrefix prefixes per-prayer reminder keys, e.g. "reminder_ogle".
const reminderPrefix = "reminder_"

// ValidKeys lists all keys that can be set via `config set`.
var ValidKeys = func() []string {
	keys := []string{
		"sound_type",
		"vibration",
		"notifications",
		"volume",
		"location_mode",
		"manual_city",
	}
	for _, k := range prayer.Keys {
		keys = append(keys, reminderPrefix+string(k))
	}
	return keys
}()

// Set sets a key to the given value.
// It validates the key name and parses the value into the correct type.
func (s *Settings) Set(key, value string) error {
	if strings.HasPrefix(key, reminderPrefix) {
		k, err := prayer.ParseKey(strings.TrimPrefix(key, reminderPrefix))
		if err != nil {
			return fmt.Errorf("unknown settings key %q", key)
		}
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: must be an integer", key, value)
		}
		if v < 0 || v > MaxReminder {
			return fmt.Errorf("invalid %s %q: must be between 0 and %d", key, value, MaxReminder)
		}
		if s.PrayerReminders == nil {
			s.PrayerReminders = map[prayer.Key]int{}
		}
		s.PrayerReminders[k] = v
		return nil
	}

	switch key {
	case "sound_type":
		st := SoundType(value)
		switch st {
		case SoundEzan, SoundBeep:
		case SoundCustom:
			if s.CustomSoundSource == "" {
				return fmt.Errorf("sound_type custom requires a custom sound; use `config sound <file>`")
			}
		default:
			return fmt.Errorf("invalid sound_type %q: must be ezan, beep or custom", value)
		}
		s.SoundType = st
	case "vibration", "notifications":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: must be true or false", key, value)
		}
		if key == "vibration" {
			s.VibrationEnabled = v
		} else {
			s.NotificationsEnabled = v
		}
	case "volume":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid volume %q: must be a number", value)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("invalid volume %q: must be between 0 and 1", value)
		}
		s.Volume = v
	case "location_mode":
		switch LocationMode(value) {
		case LocationAuto:
			s.LocationMode = LocationAuto
		case LocationManual:
			if s.ManualLocation == nil {
				return fmt.Errorf("location_mode manual requires manual_city to be set first")
			}
			s.LocationMode = LocationManual
		default:
			return fmt.Errorf("invalid location_mode %q: must be auto or manual", value)
		}
	case "manual_city":
		c, ok := geo.DefaultGazetteer().Lookup(value)
		if !ok {
			return fmt.Errorf("unknown city %q; see `ezan-vakti cities`", value)
		}
		s.ManualLocation = &ManualLocation{
			City:   c.Name,
			Coords: Coordinates{Latitude: c.Lat, Longitude: c.Lng},
		}
	default:
		return fmt.Errorf("unknown settings key %q; valid keys: %s", key, strings.Join(ValidKeys, ", "))
	}
	return nil
}

// Get returns the string value of a key.
func (s *Settings) Get(key string) (string, error) {
	if strings.HasPrefix(key, reminderPrefix) {
		k, err := prayer.ParseKey(strings.TrimPrefix(key, reminderPrefix))
		if err != nil {
			return "", fmt.Errorf("unknown settings key %q", key)
		}
		return strconv.Itoa(s.PrayerReminders[k]), nil
	}

	switch key {
	case "sound_type":
		return string(s.SoundType), nil
	case "vibration":
		return strconv.FormatBool(s.VibrationEnabled), nil
	case "notifications":
		return strconv.FormatBool(s.NotificationsEnabled), nil
	case "volume":
		return strconv.FormatFloat(s.Volume, 'f', -1, 64), nil
	case "location_mode":
		return string(s.LocationMode), nil
	case "manual_city":
		if s.ManualLocation == nil {
			return "", nil
		}
		return s.ManualLocation.City, nil
	default:
		return "", fmt.Errorf("unknown settings key %q", key)
	}
}

// audioTypes covers formats the system mime table often lacks.
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
}

// SetCustomSound stores an audio file as a data URI and selects it.
func (s *Settings) SetCustomSound(name string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("custom sound %q is empty", name)
	}
	ext := strings.ToLower(filepath.Ext(name))
	mt, ok := audioTypes[ext]
	if !ok {
		mt = mime.TypeByExtension(ext)
	}
	if !strings.HasPrefix(mt, "audio/") {
		return fmt.Errorf("custom sound %q is not a recognised audio file", name)
	}
	s.CustomSoundSource = "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(data)
	s.CustomSoundName = filepath.Base(name)
	s.SoundType = SoundCustom
	return nil
}
