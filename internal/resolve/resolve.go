// Package resolve turns a location into a day's prayer times by trying the
// cache, the authority, the mirrors and finally any stale cache, in order.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/api"
	"github.com/smokyabdulrahman/ezan-vakti/internal/cache"
	"github.com/smokyabdulrahman/ezan-vakti/internal/geo"
	"github.com/smokyabdulrahman/ezan-vakti/internal/observability"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
)

// ErrNoDataAvailable means every tier failed and nothing was cached.
var ErrNoDataAvailable = errors.New("no prayer data available")

// OfflineSuffix is appended to the source of stale cache results.
const OfflineSuffix = " (Offline Mode)"

// DefaultCity is used when neither an override nor the gazetteer yields one.
const DefaultCity = "İstanbul"

// Tier tags which strategy produced a result.
type Tier int

const (
	Failed Tier = iota
	Cached
	Primary
	Mirror
	Stale
)

func (t Tier) String() string {
	switch t {
	case Cached:
		return "cached"
	case Primary:
		return "primary"
	case Mirror:
		return "mirror"
	case Stale:
		return "stale"
	default:
		return "failed"
	}
}

// Result is a resolved day tagged with its tier. MirrorIndex is the
// zero-based mirror position and is only meaningful for the Mirror tier.
type Result struct {
	Data        prayer.Data
	Tier        Tier
	MirrorIndex int
}

// Label returns the tier name, with the 1-based mirror number for mirrors.
func (r Result) Label() string {
	if r.Tier == Mirror {
		return fmt.Sprintf("mirror_%d", r.MirrorIndex+1)
	}
	return r.Tier.String()
}

// Authority fetches a year of days for a city.
type Authority interface {
	FetchYear(ctx context.Context, city string) (prayer.Days, error)
}

// Mirrors fetches days for a city from the i-th mirror.
type Mirrors interface {
	Len() int
	Fetch(ctx context.Context, i int, city string) (prayer.Days, error)
}

// Request is a resolution input. CityOverride, when set, skips the
// coordinates entirely.
type Request struct {
	Lat, Lng     float64
	CityOverride string
}

// Pipeline resolves prayer data. It performs network calls one at a time
// and stops at the first tier that answers.
type Pipeline struct {
	cache       *cache.Cache
	authority   Authority
	mirrors     Mirrors
	gazetteer   *geo.Gazetteer
	defaultCity string
	now         func() time.Time
	logger      *zerolog.Logger
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithDefaultCity overrides DefaultCity.
func WithDefaultCity(city string) Option {
	return func(p *Pipeline) {
		if city != "" {
			p.defaultCity = city
		}
	}
}

// WithGazetteer overrides the embedded gazetteer.
func WithGazetteer(g *geo.Gazetteer) Option {
	return func(p *Pipeline) { p.gazetteer = g }
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a Pipeline. authority and mirrors may be nil to skip a tier.
func New(c *cache.Cache, authority Authority, mirrors Mirrors, opts ...Option) *Pipeline {
	nop := zerolog.Nop()
	p := &Pipeline{
		cache:       c,
		authority:   authority,
		mirrors:     mirrors,
		gazetteer:   geo.DefaultGazetteer(),
		defaultCity: DefaultCity,
		now:         time.Now,
		logger:      &nop,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// City picks the city for req: the override, else the nearest gazetteer
// city, else the default city.
func (p *Pipeline) City(req Request) string {
	if req.CityOverride != "" {
		return req.CityOverride
	}
	if c, ok := p.gazetteer.Nearest(req.Lat, req.Lng); ok {
		return c.Name
	}
	return p.defaultCity
}

// strategy is one tier of the pipeline. ok=false passes to the next tier.
type strategy struct {
	name string
	run  func(ctx context.Context, city string, now time.Time) (Result, bool)
}

func (p *Pipeline) strategies() []strategy {
	list := []strategy{{name: "cache", run: p.fromFreshCache}}
	if p.authority != nil {
		list = append(list, strategy{name: "authority", run: p.fromAuthority})
	}
	if p.mirrors != nil {
		for i := 0; i < p.mirrors.Len(); i++ {
			i := i // per-iteration copy (go.mod targets go 1.21)
			list = append(list, strategy{
				name: fmt.Sprintf("mirror_%d", i+1),
				run: func(ctx context.Context, city string, now time.Time) (Result, bool) {
					return p.fromMirror(ctx, i, city, now)
				},
			})
		}
	}
	return append(list, strategy{name: "stale", run: p.fromStaleCache})
}

// Resolve returns today's data for req or ErrNoDataAvailable. It never
// returns partial data.
func (p *Pipeline) Resolve(ctx context.Context, req Request) (Result, error) {
	city := p.City(req)
	now := p.now()

	for _, s := range p.strategies() {
		res, ok := s.run(ctx, city, now)
		if !ok {
			continue
		}
		observability.ResolutionTotal.WithLabelValues(res.Tier.String()).Inc()
		p.logger.Info().
			Str(observability.FieldCity, res.Data.City).
			Str(observability.FieldTier, res.Label()).
			Str(observability.FieldSource, res.Data.Source).
			Msg("prayer times resolved")
		return res, nil
	}

	observability.ResolutionTotal.WithLabelValues(Failed.String()).Inc()
	p.logger.Error().Str(observability.FieldCity, city).Msg("every prayer time source failed")
	return Result{Tier: Failed}, fmt.Errorf("%w for %s", ErrNoDataAvailable, city)
}

func (p *Pipeline) fromFreshCache(ctx context.Context, city string, now time.Time) (Result, bool) {
	y := p.loadCache(ctx)
	if y == nil || y.City != city {
		return Result{}, false
	}
	times, ok := y.Today(now)
	if !ok {
		return Result{}, false
	}
	return Result{
		Tier: Cached,
		Data: prayer.Data{
			Date:      prayer.DateKey(now),
			Times:     times,
			City:      y.City,
			IsOffline: true,
			Source:    y.SourceLabel(),
		},
	}, true
}

func (p *Pipeline) fromAuthority(ctx context.Context, city string, now time.Time) (Result, bool) {
	days, err := p.authority.FetchYear(ctx, city)
	if err != nil {
		p.logger.Warn().Err(err).Str(observability.FieldCity, city).Msg("authority failed, trying mirrors")
		return Result{}, false
	}
	return p.persistAndPick(ctx, city, days, api.AuthoritySource, now, Primary, 0)
}

func (p *Pipeline) fromMirror(ctx context.Context, i int, city string, now time.Time) (Result, bool) {
	days, err := p.mirrors.Fetch(ctx, i, city)
	if err != nil {
		p.logger.Warn().Err(err).Str(observability.FieldCity, city).Int("mirror", i+1).Msg("mirror failed")
		return Result{}, false
	}
	return p.persistAndPick(ctx, city, days, api.MirrorSource, now, Mirror, i)
}

// persistAndPick overwrites the cache with days and returns today's entry
// if present. A failed write is logged and does not discard the data.
func (p *Pipeline) persistAndPick(ctx context.Context, city string, days prayer.Days, source string, now time.Time, tier Tier, mirrorIdx int) (Result, bool) {
	if err := p.cache.Save(ctx, &cache.Yearly{City: city, Days: days, Source: source}); err != nil {
		p.logger.Warn().Err(err).Str(observability.FieldCity, city).Msg("could not persist prayer times")
	}

	times, ok := days[prayer.DateKey(now)]
	if !ok {
		p.logger.Warn().Str(observability.FieldCity, city).Str(observability.FieldSource, source).
			Msg("source has no entry for today")
		return Result{}, false
	}
	return Result{
		Tier:        tier,
		MirrorIndex: mirrorIdx,
		Data: prayer.Data{
			Date:   prayer.DateKey(now),
			Times:  times,
			City:   city,
			Source: source,
		},
	}, true
}

func (p *Pipeline) fromStaleCache(ctx context.Context, city string, now time.Time) (Result, bool) {
	y := p.loadCache(ctx)
	if y == nil {
		return Result{}, false
	}
	_, times, ok := y.Nearest(now)
	if !ok {
		return Result{}, false
	}
	name := y.City
	if name == "" {
		name = city
	}
	return Result{
		Tier: Stale,
		Data: prayer.Data{
			Date:      prayer.DateKey(now),
			Times:     times,
			City:      name,
			IsOffline: true,
			Source:    y.SourceLabel() + OfflineSuffix,
		},
	}, true
}

func (p *Pipeline) loadCache(ctx context.Context) *cache.Yearly {
	y, err := p.cache.Load(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("prayer cache unreadable")
		return nil
	}
	return y
}
