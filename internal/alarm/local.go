package alarm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/observability"
)

// LocalHost is an in-process Host backed by timers. Fired registrations
// are delivered on Events. It also implements Notifier; plain
// notifications are logged when due and delivered the same way.
type LocalHost struct {
	logger *zerolog.Logger

	mu      sync.Mutex
	pending map[int64]*localEntry
	events  chan HostEvent
	closed  bool
}

type localEntry struct {
	reg    Registration
	timer  *time.Timer
	notify bool
}

// NewLocalHost creates a LocalHost whose event channel holds buffer events.
func NewLocalHost(buffer int, logger *zerolog.Logger) *LocalHost {
	if buffer < 1 {
		buffer = 16
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LocalHost{
		logger:  logger,
		pending: make(map[int64]*localEntry),
		events:  make(chan HostEvent, buffer),
	}
}

// Schedule registers r, replacing any registration with the same id.
func (h *LocalHost) Schedule(_ context.Context, r Registration) error {
	return h.add(r, false)
}

// Notify registers r as a plain notification.
func (h *LocalHost) Notify(_ context.Context, r Registration) error {
	return h.add(r, true)
}

func (h *LocalHost) add(r Registration, notify bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrRegistration
	}

	if old, ok := h.pending[r.ID]; ok {
		old.timer.Stop()
	}
	entry := &localEntry{reg: r, notify: notify}
	entry.timer = time.AfterFunc(time.Until(r.FireAt), func() { h.deliver(r.ID, entry) })
	h.pending[r.ID] = entry
	return nil
}

func (h *LocalHost) deliver(id int64, entry *localEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A replaced or cancelled entry must not fire.
	if cur, ok := h.pending[id]; !ok || cur != entry || h.closed {
		return
	}
	delete(h.pending, id)

	if entry.notify {
		h.logger.Info().Str(observability.FieldPrayer, entry.reg.Payload.Prayer).
			Str("title", entry.reg.Title).Str("body", entry.reg.Body).Msg("notification")
	}

	select {
	case h.events <- HostEvent{Payload: entry.reg.Payload, At: time.Now()}:
	default:
		h.logger.Warn().Str(observability.FieldPrayer, entry.reg.Payload.Prayer).Msg("host event dropped, consumer too slow")
	}
}

// CancelAll stops every pending registration.
func (h *LocalHost) CancelAll(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, e := range h.pending {
		e.timer.Stop()
		delete(h.pending, id)
	}
	return nil
}

// Pending returns the registrations that have not fired.
func (h *LocalHost) Pending(_ context.Context) ([]Registration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Registration, 0, len(h.pending))
	for _, e := range h.pending {
		out = append(out, e.reg)
	}
	return out, nil
}

// Events returns the channel of fired registrations.
func (h *LocalHost) Events() <-chan HostEvent {
	return h.events
}

// Close cancels everything and closes the event channel.
func (h *LocalHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for id, e := range h.pending {
		e.timer.Stop()
		delete(h.pending, id)
	}
	h.closed = true
	close(h.events)
	return nil
}
