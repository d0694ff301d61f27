package alarm

import (
	"sync"
	"time"
)

// AlarmFired is published each time the alarm is shown.
type AlarmFired struct {
	ID       string    `json:"id"`
	Prayer   string    `json:"prayer"`
	Name     string    `json:"name"`
	Path     string    `json:"path"` // poll or host
	TestMode bool      `json:"testMode"`
	At       time.Time `json:"at"`
}

// Bus fans AlarmFired events out to subscribers. Slow subscribers miss
// events rather than block the publisher.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan AlarmFired
	nextID int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan AlarmFired)}
}

// Subscribe returns a channel of events and a function that closes it.
func (b *Bus) Subscribe(buffer int) (<-chan AlarmFired, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan AlarmFired, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with room in its buffer and
// returns how many received it.
func (b *Bus) Publish(ev AlarmFired) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}
