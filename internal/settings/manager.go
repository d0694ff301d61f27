package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/store"
)

// StoreKey is the key the settings document is stored under.
const StoreKey = "ezan_app_settings"

// DefaultMaxSize bounds the stored document, like a browser storage quota.
const DefaultMaxSize = 5 << 20

var (
	// ErrPersistenceWrite means settings were applied in memory but not saved.
	ErrPersistenceWrite = errors.New("settings could not be saved")
	// ErrCustomSoundTooLarge is ErrPersistenceWrite caused by a custom sound.
	ErrCustomSoundTooLarge = fmt.Errorf("%w: custom sound too large", ErrPersistenceWrite)
)

// Manager owns the current settings and persists every change.
type Manager struct {
	store   store.Store
	maxSize int
	logger  *zerolog.Logger

	mu      sync.RWMutex
	current Settings
	// seen is the stored document as last read or written here.
	seen string
}

// NewManager creates a Manager holding Defaults until Load is called.
// maxSize <= 0 selects DefaultMaxSize.
func NewManager(s store.Store, maxSize int, logger *zerolog.Logger) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Manager{store: s, maxSize: maxSize, logger: logger, current: Defaults()}
}

// Load reads and migrates the stored settings. A missing or unparsable
// document yields Defaults; only store failures are returned.
func (m *Manager) Load(ctx context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok, err := m.store.Get(ctx, StoreKey)
	if err != nil {
		return m.current.Clone(), fmt.Errorf("reading settings: %w", err)
	}
	m.apply(raw, ok)
	return m.current.Clone(), nil
}

// Reload re-reads the stored document and applies it when it differs from
// the one this Manager last read or wrote, reporting whether it did.
// Settings kept in memory after a failed write survive until the stored
// document changes.
func (m *Manager) Reload(ctx context.Context) (Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok, err := m.store.Get(ctx, StoreKey)
	if err != nil {
		return m.current.Clone(), false, fmt.Errorf("reading settings: %w", err)
	}
	if raw == m.seen {
		return m.current.Clone(), false, nil
	}
	m.apply(raw, ok)
	return m.current.Clone(), true, nil
}

// apply decodes raw into the current settings. Callers hold mu.
func (m *Manager) apply(raw string, ok bool) {
	s := Defaults()
	if ok {
		decoded, err := Decode([]byte(raw))
		if err != nil {
			m.logger.Warn().Err(err).Msg("stored settings unreadable, using defaults")
		}
		s = decoded
	} else {
		raw = ""
	}
	m.current = s
	m.seen = raw
}

// Current returns a copy of the in-memory settings.
func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Update applies fn to a copy of the current settings, validates it, keeps
// it in memory and persists it. If persisting fails the new settings stay
// in effect and the error wraps ErrPersistenceWrite, or
// ErrCustomSoundTooLarge when a custom sound is selected.
func (m *Manager) Update(ctx context.Context, fn func(*Settings) error) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.Clone()
	if err := fn(&next); err != nil {
		return m.current.Clone(), err
	}
	if err := next.Validate(); err != nil {
		return m.current.Clone(), err
	}

	m.current = next
	if err := m.persist(ctx, next); err != nil {
		m.logger.Error().Err(err).Msg("settings kept in memory only")
		return next.Clone(), err
	}
	return next.Clone(), nil
}

// Replace swaps in s wholesale, with the same persistence rules as Update.
func (m *Manager) Replace(ctx context.Context, s Settings) (Settings, error) {
	return m.Update(ctx, func(cur *Settings) error {
		*cur = s.Clone()
		return nil
	})
}

// Reset restores Defaults but keeps the location fields, which only a
// location change may touch. With the default location the stored document
// is removed, otherwise the reset document is written. A store failure
// wraps ErrPersistenceWrite and the reset settings stay in effect.
func (m *Manager) Reset(ctx context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.current.Clone()
	next := Defaults()
	next.LocationMode, next.ManualLocation = kept.LocationMode, kept.ManualLocation
	m.current = next

	if next.LocationMode == LocationAuto && next.ManualLocation == nil {
		if err := m.store.Remove(ctx, StoreKey); err != nil {
			return next.Clone(), fmt.Errorf("%w: failed to delete settings: %w", ErrPersistenceWrite, err)
		}
		m.seen = ""
		return next.Clone(), nil
	}
	if err := m.persist(ctx, next); err != nil {
		m.logger.Error().Err(err).Msg("settings kept in memory only")
		return next.Clone(), err
	}
	return next.Clone(), nil
}

func (m *Manager) persist(ctx context.Context, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceWrite, err)
	}

	cause := ErrPersistenceWrite
	if s.SoundType == SoundCustom {
		cause = ErrCustomSoundTooLarge
	}

	if len(data) > m.maxSize {
		return fmt.Errorf("%w: document is %d bytes, limit %d", cause, len(data), m.maxSize)
	}
	if err := m.store.Set(ctx, StoreKey, string(data)); err != nil {
		return fmt.Errorf("%w: %w", cause, err)
	}
	m.seen = string(data)
	return nil
}
