package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/smokyabdulrahman/ezan-vakti/internal/geo"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
)

// DefaultMirrorURLs lists the community mirrors in priority order.
var DefaultMirrorURLs = []string{
	"https://vakit.vercel.app/api/timesFromCity",
	"https://ezanvaktitapi.vercel.app/api/timesFromCity",
	"https://namaz-vakitleri.vercel.app/api/timesFromCity",
}

// Mirrors fetches prayer times by city slug from an ordered list of mirrors.
type Mirrors struct {
	// URLs are tried in order by the caller. Exported for testing.
	URLs []string

	t *transport
}

// NewMirrors creates a mirror client over urls, or DefaultMirrorURLs when empty.
func NewMirrors(opts Options, urls []string) *Mirrors {
	if len(urls) == 0 {
		urls = DefaultMirrorURLs
	}
	cp := make([]string, len(urls))
	copy(cp, urls)
	return &Mirrors{URLs: cp, t: newTransport(opts)}
}

// Len returns the number of configured mirrors.
func (m *Mirrors) Len() int {
	return len(m.URLs)
}

// Fetch asks mirror i for cityName's days. A non-array or empty payload is
// an error, so callers can move on to the next mirror.
func (m *Mirrors) Fetch(ctx context.Context, i int, cityName string) (prayer.Days, error) {
	if i < 0 || i >= len(m.URLs) {
		return nil, fmt.Errorf("%w: no mirror at index %d", ErrMirrorUnreachable, i)
	}

	reqURL, err := mirrorURL(m.URLs[i], cityName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMirrorUnreachable, err)
	}

	var raw []mirrorDay
	if err := m.t.getJSON(ctx, fmt.Sprintf("mirror_%d", i+1), reqURL, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMirrorUnreachable, err)
	}

	days := make(prayer.Days, len(raw))
	for _, d := range raw {
		key, ok := normalizeDateKey(d.Date)
		if !ok {
			continue
		}
		times := d.times()
		if err := times.Validate(); err != nil {
			continue
		}
		days[key] = times
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrMirrorUnreachable, ErrEmptyResponse)
	}
	return days, nil
}

func mirrorURL(base, cityName string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid mirror URL %q: %w", base, err)
	}
	q := u.Query()
	q.Set("city", geo.Slug(cityName))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
