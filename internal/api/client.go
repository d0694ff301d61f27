// Package api talks to the prayer-time sources: the Diyanet authority and
// its community mirrors.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/smokyabdulrahman/ezan-vakti/internal/observability"
)

var (
	// ErrAuthorityUnreachable wraps every authority failure.
	ErrAuthorityUnreachable = errors.New("authority unreachable")
	// ErrMirrorUnreachable wraps every mirror failure.
	ErrMirrorUnreachable = errors.New("mirror unreachable")
	// ErrCityUnknown means the city has no administrative id.
	ErrCityUnknown = errors.New("city unknown")
	// ErrEmptyResponse means a source answered with no usable days.
	ErrEmptyResponse = errors.New("empty response")
)

// Source labels attached to resolved data.
const (
	AuthoritySource = "Diyanet İşleri Başkanlığı (Resmi)"
	MirrorSource    = "Diyanet Uyumlu (Proxy)"
)

const defaultTimeout = 10 * time.Second

// Options configures the HTTP plumbing shared by the source clients.
type Options struct {
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
	Timeout    time.Duration
	// RequestsPerSecond caps outgoing requests. Zero or less means no limit.
	RequestsPerSecond float64
	Logger            *zerolog.Logger
}

// transport performs rate-limited JSON GETs. No request is retried.
type transport struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

func newTransport(opts Options) *transport {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &transport{
		httpClient: hc,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// getJSON fetches reqURL and decodes the body into out. source labels the
// duration metric.
func (t *transport) getJSON(ctx context.Context, source, reqURL string, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	defer func() {
		observability.SourceFetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode API response: %w", err)
	}

	t.logger.Debug().Str(observability.FieldSource, source).Str(observability.FieldURL, reqURL).
		Dur("elapsed", time.Since(start)).Msg("source responded")
	return nil
}
