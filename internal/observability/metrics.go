// Package observability holds the process-wide prometheus collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for AlarmFiredTotal.
const (
	PathPoll = "poll"
	PathHost = "host"
)

var (
	ResolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ezan_resolution_total",
		Help: "Prayer-time resolutions by the tier that answered",
	}, []string{"tier"})

	SourceFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ezan_source_fetch_duration_seconds",
		Help:    "Duration of authority and mirror requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	AlarmRegistrations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ezan_alarm_registrations",
		Help: "Alarms registered with the host by the last scheduling pass",
	})

	AlarmFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ezan_alarm_fired_total",
		Help: "Alarm firings by delivery path",
	}, []string{"path"})

	AlarmRegistrationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ezan_alarm_registration_failures_total",
		Help: "Direct alarm registrations that fell back to a plain notification",
	})
)

// Log field names shared across packages.
const (
	FieldCity     = "city"
	FieldTier     = "tier"
	FieldSource   = "source"
	FieldURL      = "url"
	FieldPrayer   = "prayer"
	FieldFireAt   = "fire_at"
	FieldIdentity = "identity"
)
