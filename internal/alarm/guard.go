package alarm

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/observability"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
	"github.com/smokyabdulrahman/ezan-vakti/internal/settings"
)

// State is the trigger guard state.
type State int

const (
	Idle State = iota
	Firing
)

func (s State) String() string {
	if s == Firing {
		return "firing"
	}
	return "idle"
}

// Identity names one firing: the same prayer on the same day with the same
// reminder offset fires at most once from the poll loop.
type Identity struct {
	Date   string     `json:"date"`
	Prayer prayer.Key `json:"prayer"`
	Offset int        `json:"offset"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s-%s-%d", i.Date, i.Prayer, i.Offset)
}

// Guard decides when the alarm is shown. It is Idle until the next prayer
// is within its reminder offset or the host delivers an alarm, then Firing
// until Stop.
type Guard struct {
	bus    *Bus
	now    func() time.Time
	logger *zerolog.Logger

	mu        sync.Mutex
	state     State
	lastFired *Identity
	active    *AlarmFired
}

// GuardOption customises a Guard.
type GuardOption func(*Guard)

// WithGuardClock overrides the wall clock.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// WithGuardLogger sets the logger.
func WithGuardLogger(l *zerolog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard creates an Idle guard publishing to bus.
func NewGuard(bus *Bus, opts ...GuardOption) *Guard {
	nop := zerolog.Nop()
	g := &Guard{bus: bus, now: time.Now, logger: &nop}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Tick runs one poll step against today's times. It is a no-op while
// Firing or when notifications are off.
func (g *Guard) Tick(times prayer.Times, set settings.Settings) (AlarmFired, bool) {
	if len(times) == 0 || !set.NotificationsEnabled {
		return AlarmFired{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Firing {
		return AlarmFired{}, false
	}

	now := g.now()
	next, err := prayer.Next(times, now)
	if err != nil {
		g.logger.Debug().Err(err).Msg("guard tick skipped")
		return AlarmFired{}, false
	}

	offset := set.Offset(next.Key)
	if next.MinutesRemaining > offset {
		return AlarmFired{}, false
	}

	id := Identity{Date: prayer.DateKey(now), Prayer: next.Key, Offset: offset}
	if g.lastFired != nil && *g.lastFired == id {
		return AlarmFired{}, false
	}

	g.lastFired = &id
	return g.fire(Payload{Prayer: string(next.Key)}, observability.PathPoll, now), true
}

// HostEvent shows the alarm for a host-delivered payload without the
// de-duplication check. Payloads failing Accepted are ignored, and so is a
// delivery for the prayer that is already ringing. A real prayer records
// its identity so the poll loop does not ring it again.
func (g *Guard) HostEvent(p Payload, offset int) (AlarmFired, bool) {
	if !p.Accepted() {
		g.logger.Debug().Str(observability.FieldPrayer, p.Prayer).Msg("host event rejected")
		return AlarmFired{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Firing && g.active != nil && !p.TestMode && g.active.Prayer == p.Prayer {
		g.logger.Debug().Str(observability.FieldPrayer, p.Prayer).Msg("host event for the ringing alarm")
		return *g.active, false
	}

	now := g.now()
	if k, err := prayer.ParseKey(p.Prayer); err == nil && !p.TestMode {
		g.lastFired = &Identity{Date: prayer.DateKey(now), Prayer: k, Offset: offset}
	}
	return g.fire(p, observability.PathHost, now), true
}

// fire moves to Firing and publishes. Callers hold g.mu.
func (g *Guard) fire(p Payload, path string, now time.Time) AlarmFired {
	ev := AlarmFired{
		ID:       uuid.NewString(),
		Prayer:   p.Prayer,
		Name:     p.DisplayName(),
		Path:     path,
		TestMode: p.TestMode,
		At:       now,
	}
	g.state = Firing
	g.active = &ev

	observability.AlarmFiredTotal.WithLabelValues(path).Inc()
	logEv := g.logger.Info().Str(observability.FieldPrayer, p.Prayer).Str("path", path)
	if g.lastFired != nil {
		logEv = logEv.Str(observability.FieldIdentity, g.lastFired.String())
	}
	logEv.Msg("alarm firing")

	if g.bus != nil {
		g.bus.Publish(ev)
	}
	return ev
}

// Stop returns to Idle. The last fired identity is kept.
func (g *Guard) Stop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Firing {
		return false
	}
	g.state = Idle
	g.active = nil
	return true
}

// Snapshot is a point-in-time view of the guard.
type Snapshot struct {
	State     string      `json:"state"`
	Active    *AlarmFired `json:"active,omitempty"`
	LastFired *Identity   `json:"lastFired,omitempty"`
}

// Snapshot returns the current state.
func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Snapshot{State: g.state.String()}
	if g.active != nil {
		a := *g.active
		s.Active = &a
	}
	if g.lastFired != nil {
		l := *g.lastFired
		s.LastFired = &l
	}
	return s
}

// State returns Idle or Firing.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
