// Package alarm schedules prayer alarms with a host capability, guards
// against firing the same alarm twice and fans fired alarms out to
// subscribers.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
)

// ErrRegistration means neither the direct alarm nor the plain
// notification fallback could be registered.
var ErrRegistration = errors.New("alarm registration failed")

const (
	// Title is the notification title of prayer alarms.
	Title = "Ezan Vakti"
	// TestTitle is the notification title of test alarms.
	TestTitle = "Test Alarmı"
	// TestPrayer is the prayer value carried by test alarms.
	TestPrayer = "test_ogle"
	// DefaultTestDelay is how far ahead a test alarm fires by default.
	DefaultTestDelay = time.Minute
)

// Payload travels with a registration and comes back when it fires.
type Payload struct {
	Prayer       string `json:"prayer"`
	AutoTrigger  bool   `json:"autoTrigger"`
	DirectLaunch bool   `json:"directLaunch"`
	TestMode     bool   `json:"testMode"`
}

// Accepted reports whether a delivered payload should show the alarm:
// test alarms always do, others need a prayer plus both launch flags.
func (p Payload) Accepted() bool {
	if p.TestMode {
		return true
	}
	return p.Prayer != "" && p.AutoTrigger && p.DirectLaunch
}

// DisplayName returns the Turkish name of the payload's prayer, or the raw
// value for test and unknown prayers.
func (p Payload) DisplayName() string {
	return prayer.Key(p.Prayer).Name()
}

// Registration is one alarm handed to the host.
type Registration struct {
	ID      int64     `json:"id"`
	FireAt  time.Time `json:"fireAt"`
	Title   string    `json:"title"`
	Body    string    `json:"body"`
	Payload Payload   `json:"payload"`
}

// Host is the platform alarm capability.
type Host interface {
	Schedule(ctx context.Context, r Registration) error
	CancelAll(ctx context.Context) error
	Pending(ctx context.Context) ([]Registration, error)
}

// Notifier registers a plain notification. It is the fallback when the
// host refuses a direct alarm.
type Notifier interface {
	Notify(ctx context.Context, r Registration) error
}

// HostEvent is an alarm delivered back by the host.
type HostEvent struct {
	Payload Payload
	At      time.Time
}

// EventSource is a host that delivers fired alarms.
type EventSource interface {
	Events() <-chan HostEvent
}

// registrationID derives a stable id from the fire time and the prayer's
// position within the day.
func registrationID(fireAt time.Time, idx int) int64 {
	return fireAt.Unix() + int64(idx)
}

func prayerBody(key prayer.Key) string {
	return fmt.Sprintf("%s vakti geldi", key.Name())
}
