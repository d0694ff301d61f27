package prayer

import (
	"testing"
	"time"
)

func sampleTimes() Times {
	return Times{
		Imsak:  "05:00",
		Gunes:  "06:30",
		Ogle:   "12:30",
		Ikindi: "15:45",
		Aksam:  "18:20",
		Yatsi:  "19:50",
	}
}

func at(hour, min, sec int) time.Time {
	return time.Date(2026, 3, 14, hour, min, sec, 0, time.UTC)
}

// ---------------------------------------------------------------------------
// parseClock / MinuteOfDay
// ---------------------------------------------------------------------------

func TestMinuteOfDay(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"simple HH:MM", "15:02", 15*60 + 2, false},
		{"midnight", "00:00", 0, false},
		{"with zone suffix", "05:17 (+03)", 5*60 + 17, false},
		{"surrounding spaces", "  05:17  ", 5*60 + 17, false},
		{"invalid format", "bad", 0, true},
		{"empty string", "", 0, true},
		{"missing minute", "15:", 0, true},
		{"non-numeric", "ab:cd", 0, true},
		{"hour out of range", "24:00", 0, true},
		{"minute out of range", "12:60", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MinuteOfDay(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("MinuteOfDay(%q) expected error, got nil", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("MinuteOfDay(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("MinuteOfDay(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAt_KeepsDateAndLocation(t *testing.T) {
	loc := time.FixedZone("TRT", 3*60*60)
	day := time.Date(2026, 6, 15, 22, 10, 0, 0, loc)

	got, err := At("12:30", day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Location() != loc {
		t.Errorf("expected location %v, got %v", loc, got.Location())
	}
	if got.Day() != 15 || got.Hour() != 12 || got.Minute() != 30 {
		t.Errorf("At = %v, want 2026-06-15 12:30", got)
	}
}

// ---------------------------------------------------------------------------
// Times.Validate / ParseKey / DateKey
// ---------------------------------------------------------------------------

func TestTimesValidate(t *testing.T) {
	if err := sampleTimes().Validate(); err != nil {
		t.Fatalf("valid times rejected: %v", err)
	}

	missing := sampleTimes()
	delete(missing, Aksam)
	if err := missing.Validate(); err == nil {
		t.Error("expected error for missing aksam")
	}

	bad := sampleTimes()
	bad[Ogle] = "noon"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for malformed ogle")
	}
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey(" Ogle ")
	if err != nil || k != Ogle {
		t.Errorf("ParseKey(Ogle) = %q, %v", k, err)
	}
	if _, err := ParseKey("tahajjud"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestDateKeyRoundTrip(t *testing.T) {
	day := time.Date(2026, 2, 5, 17, 0, 0, 0, time.UTC)
	key := DateKey(day)
	if key != "05.02.2026" {
		t.Fatalf("DateKey = %q, want 05.02.2026", key)
	}
	parsed, err := ParseDateKey(key, time.UTC)
	if err != nil {
		t.Fatalf("ParseDateKey: %v", err)
	}
	if !parsed.Equal(time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ParseDateKey = %v", parsed)
	}
	if _, err := ParseDateKey("2026-02-05", time.UTC); err == nil {
		t.Error("expected error for ISO layout")
	}
}

// ---------------------------------------------------------------------------
// CalculateNext / MinutesUntil / Next
// ---------------------------------------------------------------------------

func TestNext_Examples(t *testing.T) {
	tests := []struct {
		name         string
		now          time.Time
		wantKey      Key
		wantTomorrow bool
		wantMinutes  int
	}{
		{"noon goes to ogle", at(12, 0, 0), Ogle, false, 30},
		{"after yatsi rolls to imsak", at(20, 30, 0), Imsak, true, 8*60 + 30},
		{"before imsak", at(3, 0, 0), Imsak, false, 120},
		{"exactly at ogle moves on", at(12, 30, 0), Ikindi, false, 195},
		{"seconds floor the remaining", at(12, 0, 30), Ogle, false, 29},
		{"last minute of day", at(23, 59, 59), Imsak, true, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(sampleTimes(), tt.now)
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			if got.Key != tt.wantKey || got.IsTomorrow != tt.wantTomorrow {
				t.Errorf("Next = %s tomorrow=%v, want %s tomorrow=%v",
					got.Key, got.IsTomorrow, tt.wantKey, tt.wantTomorrow)
			}
			if got.MinutesRemaining != tt.wantMinutes {
				t.Errorf("MinutesRemaining = %d, want %d", got.MinutesRemaining, tt.wantMinutes)
			}
			if got.Name != DisplayNames[tt.wantKey] {
				t.Errorf("Name = %q", got.Name)
			}
		})
	}
}

func TestCalculateNext_SkipsMalformedEntries(t *testing.T) {
	times := sampleTimes()
	times[Ogle] = "??"
	key, tomorrow := CalculateNext(times, at(12, 0, 0))
	if key != Ikindi || tomorrow {
		t.Errorf("CalculateNext = %s/%v, want ikindi/false", key, tomorrow)
	}
}

func TestCalculateNext_EmptyTimes(t *testing.T) {
	key, tomorrow := CalculateNext(Times{}, at(12, 0, 0))
	if key != Imsak || !tomorrow {
		t.Errorf("CalculateNext(empty) = %s/%v, want imsak/true", key, tomorrow)
	}
}

// Every instant of a day yields a future key and a non-negative remaining.
func TestNext_PropertyOverWholeDay(t *testing.T) {
	times := sampleTimes()
	for minute := 0; minute < 24*60; minute++ {
		for _, sec := range []int{0, 59} {
			now := at(minute/60, minute%60, sec)
			key, tomorrow := CalculateNext(times, now)
			m, _ := MinuteOfDay(times[key])
			if tomorrow {
				if key != Imsak {
					t.Fatalf("%v: tomorrow key = %s, want imsak", now, key)
				}
			} else if m <= minute {
				t.Fatalf("%v: next %s at %d not after %d", now, key, m, minute)
			}
			remaining, err := MinutesUntil(times[key], tomorrow, now)
			if err != nil {
				t.Fatalf("MinutesUntil: %v", err)
			}
			if remaining < 0 {
				t.Fatalf("%v: remaining %d < 0", now, remaining)
			}
		}
	}
}

func TestMinutesUntil_Invalid(t *testing.T) {
	if _, err := MinutesUntil("x", false, at(1, 0, 0)); err == nil {
		t.Error("expected error for invalid time")
	}
}

// ---------------------------------------------------------------------------
// FormatRemaining / AlarmTime
// ---------------------------------------------------------------------------

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"hours and minutes", 2*time.Hour + 15*time.Minute, "2h 15m"},
		{"only minutes", 45 * time.Minute, "45m"},
		{"exactly one hour", 1 * time.Hour, "1h 0m"},
		{"zero", 0, "0m"},
		{"negative", -30 * time.Minute, "0m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatRemaining(tt.duration)
			if got != tt.want {
				t.Errorf("FormatRemaining(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestAlarmTime(t *testing.T) {
	tests := []struct {
		time   string
		offset int
		want   string
	}{
		{"12:30", 0, "12:30"},
		{"12:30", 10, "12:20"},
		{"12:05", 10, "11:55"},
		{"00:05", 10, "23:55"},
		{"05:00", 60, "04:00"},
	}
	for _, tt := range tests {
		got, err := AlarmTime(tt.time, tt.offset)
		if err != nil {
			t.Fatalf("AlarmTime(%q, %d): %v", tt.time, tt.offset, err)
		}
		if got != tt.want {
			t.Errorf("AlarmTime(%q, %d) = %q, want %q", tt.time, tt.offset, got, tt.want)
		}
	}
}

func TestShortNames_AllKeys(t *testing.T) {
	for _, k := range Keys {
		if _, ok := ShortNames[k]; !ok {
			t.Errorf("ShortNames missing entry for %q", k)
		}
		if _, ok := DisplayNames[k]; !ok {
			t.Errorf("DisplayNames missing entry for %q", k)
		}
	}
}
