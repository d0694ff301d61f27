package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ErrLocationUnavailable is returned when no position could be obtained.
var ErrLocationUnavailable = errors.New("location unavailable")

// Position holds geographic coordinates in degrees.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// PositionOptions mirrors the knobs of a platform location request.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
}

// DefaultPositionOptions matches the app's request: low accuracy, 15s
// timeout and positions up to 10 minutes old accepted.
var DefaultPositionOptions = PositionOptions{
	HighAccuracy: false,
	Timeout:      15 * time.Second,
	MaxAge:       10 * time.Minute,
}

// Provider yields the device's current coordinates.
type Provider interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// StaticProvider always returns the same position.
type StaticProvider struct {
	Position Position
}

// CurrentPosition implements Provider.
func (p StaticProvider) CurrentPosition(ctx context.Context, _ PositionOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	return p.Position, nil
}

// ipAPIResponse maps the response from ip-api.com.
type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// geoAPIURL is the geolocation API endpoint. It is a variable (not a constant)
// so that tests can override it with an httptest server URL.
var geoAPIURL = "http://ip-api.com/json/?fields=status,message,lat,lon"

// IPProvider determines the position from the public IP address. Results are
// reused while younger than the requested MaxAge.
type IPProvider struct {
	client *http.Client

	mu     sync.Mutex
	last   Position
	lastAt time.Time
	now    func() time.Time
}

// NewIPProvider creates an IPProvider using client, or a default client.
func NewIPProvider(client *http.Client) *IPProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &IPProvider{client: client, now: time.Now}
}

// CurrentPosition implements Provider. Every failure wraps ErrLocationUnavailable.
func (p *IPProvider) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	p.mu.Lock()
	if !p.lastAt.IsZero() && opts.MaxAge > 0 && p.now().Sub(p.lastAt) <= opts.MaxAge {
		pos := p.last
		p.mu.Unlock()
		return pos, nil
	}
	p.mu.Unlock()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	pos, err := p.detect(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}

	p.mu.Lock()
	p.last = pos
	p.lastAt = p.now()
	p.mu.Unlock()
	return pos, nil
}

func (p *IPProvider) detect(ctx context.Context) (Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, geoAPIURL, nil)
	if err != nil {
		return Position{}, fmt.Errorf("building geolocation request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Position{}, fmt.Errorf("geolocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Position{}, fmt.Errorf("geolocation API returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Position{}, fmt.Errorf("failed to decode geolocation response: %w", err)
	}

	if result.Status != "success" {
		return Position{}, fmt.Errorf("geolocation failed: %s", result.Message)
	}

	return Position{Latitude: result.Lat, Longitude: result.Lon}, nil
}
