package display

import (
	"strings"
	"testing"
	"time"

	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
)

func TestNewTable(t *testing.T) {
	tbl := NewTable([]string{"Name", "Value"})
	if tbl == nil {
		t.Fatal("NewTable returned nil")
	}
	if tbl.highlightRow != -1 {
		t.Errorf("highlightRow = %d, want -1", tbl.highlightRow)
	}
}

func TestTable_EmptyHeaders(t *testing.T) {
	tbl := NewTable([]string{})
	if got := tbl.Render(); got != "" {
		t.Errorf("Render() with empty headers = %q, want empty", got)
	}
}

func TestTable_BasicRender(t *testing.T) {
	SetEnabled(false)

	tbl := NewTable([]string{"Vakit", "Saat"})
	tbl.AddRow([]string{"İmsak", "06:18"})
	tbl.AddRow([]string{"Güneş", "07:42"})

	got := tbl.Render()

	for _, want := range []string{"Vakit", "Saat", "─", "İmsak", "06:18", "Güneş", "07:42"} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q in:\n%s", want, got)
		}
	}
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 4 {
		t.Errorf("expected 4 lines, got %d:\n%s", len(lines), got)
	}
}

func TestTable_RuneWidths(t *testing.T) {
	SetEnabled(false)

	tbl := NewTable([]string{"A", "B"})
	tbl.AddRow([]string{"Öğle", "x"})
	tbl.AddRow([]string{"Oglx", "y"})

	lines := strings.Split(strings.TrimRight(tbl.Render(), "\n"), "\n")
	// Both rows must place the second column at the same rune offset.
	first := []rune(lines[2])
	second := []rune(lines[3])
	if len(first) != len(second) {
		t.Errorf("row widths differ: %q (%d) vs %q (%d)", lines[2], len(first), lines[3], len(second))
	}
}

func TestTable_HighlightAndDim(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)

	tbl := NewTable([]string{"Vakit", "Saat"})
	tbl.AddRow([]string{"İmsak", "06:18"})
	tbl.AddRow([]string{"Güneş", "07:42"})
	tbl.SetDimRow(0)
	tbl.SetHighlightRow(1)

	lines := strings.Split(tbl.Render(), "\n")
	if len(lines) < 4 {
		t.Fatalf("expected at least 4 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[2], dim) {
		t.Errorf("dimmed row missing dim code: %q", lines[2])
	}
	if !strings.Contains(lines[3], cyan) {
		t.Errorf("highlighted row missing accent code: %q", lines[3])
	}
}

func TestFormatRow(t *testing.T) {
	tests := []struct {
		name   string
		cells  []string
		widths []int
		want   string
	}{
		{"ascii", []string{"abc", "de"}, []int{5, 4}, "abc    de  "},
		{"missing cells", []string{"a"}, []int{3, 5}, "a         "},
		{"turkish", []string{"Öğle", "x"}, []int{6, 1}, "Öğle    x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatRow(tt.cells, tt.widths); got != tt.want {
				t.Errorf("formatRow = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// RenderSchedule
// ---------------------------------------------------------------------------

func sampleData() prayer.Data {
	return prayer.Data{
		Date: "13.02.2026",
		City: "İstanbul",
		Times: prayer.Times{
			prayer.Imsak:  "06:18",
			prayer.Gunes:  "07:42",
			prayer.Ogle:   "13:19",
			prayer.Ikindi: "16:15",
			prayer.Aksam:  "18:45",
			prayer.Yatsi:  "20:04",
		},
		Source: "Diyanet İşleri Başkanlığı (Resmi)",
	}
}

func TestRenderSchedule(t *testing.T) {
	SetEnabled(false)

	got := RenderSchedule(Schedule{
		Data:          sampleData(),
		Tier:          "authority",
		Offsets:       map[prayer.Key]int{prayer.Aksam: 10},
		AlarmsEnabled: true,
		Now:           time.Date(2026, 2, 13, 14, 0, 0, 0, time.UTC),
	})

	for _, want := range []string{
		"İstanbul  13.02.2026",
		"Diyanet İşleri Başkanlığı (Resmi) [authority]",
		"Alarm",
		"18:35 (-10 dk)",
		"Sonraki: İkindi 16:15",
		"2h 15m kaldı",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderSchedule missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Çevrimdışı") {
		t.Error("online data should not show the offline note")
	}
}

func TestRenderSchedule_OfflineTomorrow(t *testing.T) {
	SetEnabled(false)

	d := sampleData()
	d.IsOffline = true
	got := RenderSchedule(Schedule{
		Data: d,
		Now:  time.Date(2026, 2, 13, 21, 0, 0, 0, time.UTC),
	})

	if !strings.Contains(got, "Çevrimdışı") {
		t.Errorf("missing offline note in:\n%s", got)
	}
	if strings.Contains(got, "Alarm") {
		t.Error("alarm column shown while alarms are disabled")
	}
	if !strings.Contains(got, "Sonraki: İmsak 06:18 (yarın)") {
		t.Errorf("missing tomorrow line in:\n%s", got)
	}
}

func TestAlarmCell(t *testing.T) {
	tests := []struct {
		raw    string
		offset int
		want   string
	}{
		{"13:19", 0, "13:19"},
		{"00:05", 10, "23:55 (-10 dk)"},
		{"bad", 5, "-"},
	}
	for _, tt := range tests {
		if got := alarmCell(tt.raw, tt.offset); got != tt.want {
			t.Errorf("alarmCell(%q, %d) = %q, want %q", tt.raw, tt.offset, got, tt.want)
		}
	}
}
