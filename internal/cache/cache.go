// Package cache persists the yearly prayer-time table and the district id
// mapping in the key-value store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
	"github.com/smokyabdulrahman/ezan-vakti/internal/store"
)

const (
	yearlyKey   = "ezan_diyanet_v60"
	districtKey = "ezan_district_cache"

	// DefaultSource labels cached data saved without a source.
	DefaultSource = "Diyanet İşleri Başkanlığı (Önbellek)"
)

// Yearly is the persisted, city-scoped table of daily times.
type Yearly struct {
	City   string      `json:"city"`
	Days   prayer.Days `json:"days"`
	Source string      `json:"source,omitempty"`
}

// SourceLabel returns the stored source or DefaultSource.
func (y *Yearly) SourceLabel() string {
	if y.Source == "" {
		return DefaultSource
	}
	return y.Source
}

// Today returns the times stored for now's date.
func (y *Yearly) Today(now time.Time) (prayer.Times, bool) {
	t, ok := y.Days[prayer.DateKey(now)]
	return t, ok
}

// Nearest returns the earliest stored day on or after now's date, or the
// latest stored day when every day is in the past. Keys that do not parse
// as DD.MM.YYYY are ignored.
func (y *Yearly) Nearest(now time.Time) (string, prayer.Times, bool) {
	type dated struct {
		key string
		at  time.Time
	}
	var days []dated
	for k := range y.Days {
		at, err := prayer.ParseDateKey(k, now.Location())
		if err != nil {
			continue
		}
		days = append(days, dated{key: k, at: at})
	}
	if len(days) == 0 {
		return "", nil, false
	}
	sort.Slice(days, func(i, j int) bool { return days[i].at.Before(days[j].at) })

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, d := range days {
		if !d.at.Before(today) {
			return d.key, y.Days[d.key], true
		}
	}
	last := days[len(days)-1]
	return last.key, y.Days[last.key], true
}

// Cache stores the single Yearly table of the device.
type Cache struct {
	store  store.Store
	logger *zerolog.Logger
}

// New creates a Cache over s.
func New(s store.Store, logger *zerolog.Logger) *Cache {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Cache{store: s, logger: logger}
}

// Load reads the cached table. Returns nil if the cache is missing or
// cannot be decoded; only store failures are errors.
func (c *Cache) Load(ctx context.Context) (*Yearly, error) {
	raw, ok, err := c.store.Get(ctx, yearlyKey)
	if err != nil {
		return nil, fmt.Errorf("reading prayer cache: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var y Yearly
	if err := json.Unmarshal([]byte(raw), &y); err != nil {
		c.logger.Warn().Err(err).Msg("ignoring corrupt prayer cache")
		return nil, nil
	}
	if len(y.Days) == 0 {
		return nil, nil
	}
	return &y, nil
}

// Save overwrites the cached table.
func (c *Cache) Save(ctx context.Context, y *Yearly) error {
	data, err := json.Marshal(y)
	if err != nil {
		return fmt.Errorf("failed to marshal prayer cache: %w", err)
	}
	if err := c.store.Set(ctx, yearlyKey, string(data)); err != nil {
		return fmt.Errorf("failed to write prayer cache: %w", err)
	}
	return nil
}

// Invalidate removes the cached table.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.store.Remove(ctx, yearlyKey); err != nil {
		return fmt.Errorf("failed to remove prayer cache: %w", err)
	}
	return nil
}

// Districts maps city administrative ids to authority district ids. Entries
// are only ever added.
type Districts struct {
	store store.Store
	mu    sync.Mutex
}

// NewDistricts creates a Districts cache over s.
func NewDistricts(s store.Store) *Districts {
	return &Districts{store: s}
}

func (d *Districts) load(ctx context.Context) (map[string]string, error) {
	raw, ok, err := d.store.Get(ctx, districtKey)
	if err != nil {
		return nil, fmt.Errorf("reading district cache: %w", err)
	}
	m := map[string]string{}
	if !ok {
		return m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		// A corrupt mapping is rebuilt from scratch.
		return map[string]string{}, nil
	}
	return m, nil
}

// Get returns the district id cached for administrativeID.
func (d *Districts) Get(ctx context.Context, administrativeID string) (string, bool, error) {
	m, err := d.load(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := m[administrativeID]
	return id, ok, nil
}

// Put records a mapping, keeping every existing entry.
func (d *Districts) Put(ctx context.Context, administrativeID, districtID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := d.load(ctx)
	if err != nil {
		return err
	}
	m[administrativeID] = districtID

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal district cache: %w", err)
	}
	if err := d.store.Set(ctx, districtKey, string(data)); err != nil {
		return fmt.Errorf("failed to write district cache: %w", err)
	}
	return nil
}
