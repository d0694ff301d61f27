package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/alarm"
	"github.com/smokyabdulrahman/ezan-vakti/internal/prayer"
	"github.com/smokyabdulrahman/ezan-vakti/internal/resolve"
	"github.com/smokyabdulrahman/ezan-vakti/internal/settings"
)

type handlers struct {
	svc    Service
	logger *zerolog.Logger
}

// PrayerResponse is a resolved day with the tier that produced it.
type PrayerResponse struct {
	prayer.Data
	Tier string `json:"tier"`
}

func newPrayerResponse(res resolve.Result) PrayerResponse {
	return PrayerResponse{Data: res.Data, Tier: res.Label()}
}

// SettingsResponse carries the settings in effect and, when they could not
// be saved, a warning.
type SettingsResponse struct {
	Settings settings.Settings `json:"settings"`
	Warning  string            `json:"warning,omitempty"`
}

// LocationRequest is the body of POST /v1/location.
type LocationRequest struct {
	Mode settings.LocationMode `json:"mode" binding:"required"`
	City string                `json:"city"`
}

// TestAlarmRequest is the optional body of POST /v1/alarm/test.
type TestAlarmRequest struct {
	DelaySeconds int `json:"delaySeconds"`
}

// GET /v1/prayer[?refresh=true]
func (h *handlers) getPrayer(c *gin.Context) (any, *Error) {
	if c.Query("refresh") == "true" {
		res, err := h.svc.Refresh(c.Request.Context())
		if err != nil {
			return nil, resolveError(err)
		}
		return newPrayerResponse(res), nil
	}

	res, ok := h.svc.Latest()
	if !ok {
		return nil, &Error{Code: http.StatusServiceUnavailable, Message: "prayer times not resolved yet"}
	}
	return newPrayerResponse(res), nil
}

// GET /v1/next
func (h *handlers) getNext(c *gin.Context) (any, *Error) {
	next, err := h.svc.Next()
	if err != nil {
		return nil, &Error{Code: http.StatusServiceUnavailable, Message: err.Error()}
	}
	return next, nil
}

// GET /v1/settings
func (h *handlers) getSettings(c *gin.Context) (any, *Error) {
	return SettingsResponse{Settings: h.svc.Settings()}, nil
}

// PUT /v1/settings
func (h *handlers) putSettings(c *gin.Context) (any, *Error) {
	var body settings.Settings
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}

	s, err := h.svc.ReplaceSettings(c.Request.Context(), body)
	if errors.Is(err, settings.ErrPersistenceWrite) {
		h.logger.Warn().Err(err).Msg("settings applied but not saved")
		return SettingsResponse{Settings: s, Warning: err.Error()}, nil
	}
	if err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}
	return SettingsResponse{Settings: s}, nil
}

// POST /v1/location
func (h *handlers) postLocation(c *gin.Context) (any, *Error) {
	var body LocationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}
	if body.Mode != settings.LocationAuto && body.Mode != settings.LocationManual {
		return nil, &Error{Code: http.StatusBadRequest, Message: "mode must be auto or manual"}
	}
	if body.Mode == settings.LocationManual && body.City == "" {
		return nil, &Error{Code: http.StatusBadRequest, Message: "city is required in manual mode"}
	}

	res, err := h.svc.ChangeLocation(c.Request.Context(), body.Mode, body.City)
	switch {
	case err == nil, errors.Is(err, settings.ErrPersistenceWrite) && res.Tier != resolve.Failed:
		return newPrayerResponse(res), nil
	case errors.Is(err, resolve.ErrNoDataAvailable):
		return nil, resolveError(err)
	default:
		return nil, &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}
}

// GET /v1/alarms
func (h *handlers) getAlarms(c *gin.Context) (any, *Error) {
	regs, err := h.svc.Pending(c.Request.Context())
	if err != nil {
		return nil, &Error{Code: http.StatusInternalServerError, Message: err.Error()}
	}
	if regs == nil {
		regs = []alarm.Registration{}
	}
	return regs, nil
}

// POST /v1/alarm/stop
func (h *handlers) stopAlarm(c *gin.Context) (any, *Error) {
	return gin.H{"stopped": h.svc.StopAlarm()}, nil
}

// POST /v1/alarm/test
func (h *handlers) testAlarm(c *gin.Context) (any, *Error) {
	var body TestAlarmRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}
	if body.DelaySeconds < 0 {
		return nil, &Error{Code: http.StatusBadRequest, Message: "delaySeconds must not be negative"}
	}

	r, err := h.svc.ScheduleTest(c.Request.Context(), time.Duration(body.DelaySeconds)*time.Second)
	if err != nil {
		return nil, &Error{Code: http.StatusBadGateway, Message: err.Error()}
	}
	return r, nil
}

// GET /v1/alarm/state
func (h *handlers) alarmState(c *gin.Context) (any, *Error) {
	return h.svc.AlarmState(), nil
}

// GET /v1/events streams fired alarms as server-sent events.
func (h *handlers) events(c *gin.Context) {
	events, unsubscribe := h.svc.Bus().Subscribe(8)
	defer unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("alarm", ev)
			return true
		}
	})
}
