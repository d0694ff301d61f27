// Package httpapi exposes prayer times, settings and alarm state over HTTP
// for a UI.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/alarm"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
	"github.com/smokyabdulrahman/ezan-vakti/internal/resolve"
	"github.com/smokyabdulrahman/ezan-vakti/internal/settings"
)

// Service is what the API needs from the running application.
type Service interface {
	Latest() (resolve.Result, bool)
	Refresh(ctx context.Context) (resolve.Result, error)
	Next() (prayer.NextInfo, error)
	Settings() settings.Settings
	ReplaceSettings(ctx context.Context, s settings.Settings) (settings.Settings, error)
	ChangeLocation(ctx context.Context, mode settings.LocationMode, city string) (resolve.Result, error)
	Pending(ctx context.Context) ([]alarm.Registration, error)
	ScheduleTest(ctx context.Context, delay time.Duration) (alarm.Registration, error)
	StopAlarm() bool
	AlarmState() alarm.Snapshot
	Bus() *alarm.Bus
}

// Error is a handler failure rendered as {"error": Message}.
type Error struct {
	Code    int
	Message string
}

// HandlerFunc returns the response body or an Error.
type HandlerFunc func(c *gin.Context) (any, *Error)

// ResolveEndpoint renders h's result as JSON with status 200.
func ResolveEndpoint(h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, apiErr := h(c)
		if apiErr != nil {
			c.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// Options configures the router.
type Options struct {
	// AllowOrigins for CORS; empty allows every origin.
	AllowOrigins []string
	Logger       *zerolog.Logger
}

// NewRouter builds the gin engine serving svc.
func NewRouter(svc Service, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowOrigins
	}
	r.Use(cors.New(corsCfg))

	h := &handlers{svc: svc, logger: logger}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/prayer", ResolveEndpoint(h.getPrayer))
	v1.GET("/next", ResolveEndpoint(h.getNext))
	v1.GET("/settings", ResolveEndpoint(h.getSettings))
	v1.PUT("/settings", ResolveEndpoint(h.putSettings))
	v1.POST("/location", ResolveEndpoint(h.postLocation))
	v1.GET("/alarms", ResolveEndpoint(h.getAlarms))
	v1.POST("/alarm/stop", ResolveEndpoint(h.stopAlarm))
	v1.POST("/alarm/test", ResolveEndpoint(h.testAlarm))
	v1.GET("/alarm/state", ResolveEndpoint(h.alarmState))
	v1.GET("/events", h.events)

	return r
}

func requestLogger(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}

// resolveError maps a resolution failure to a status code.
func resolveError(err error) *Error {
	if errors.Is(err, resolve.ErrNoDataAvailable) {
		return &Error{Code: http.StatusServiceUnavailable, Message: err.Error()}
	}
	return &Error{Code: http.StatusInternalServerError, Message: err.Error()}
}
