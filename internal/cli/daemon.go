package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/smokyabdulrahman/ezan-vakti/internal/alarm"
	"github.com/smokyabdulrahman/ezan-vakti/internal/config"
	"github.com/smokyabdulrahman/ezan-vakti/internal/httpapi"
)

// ErrNoDaemon means the local alarm host lives in a daemon that is not
// reachable. One-shot commands cannot hold local alarms themselves.
var ErrNoDaemon = errors.New("no running daemon")

const daemonTimeout = 5 * time.Second

// usesDaemon reports whether alarm commands must go through the daemon.
func usesDaemon(cfg *config.Config) bool {
	return cfg != nil && cfg.AlarmHost == config.AlarmHostLocal
}

// daemonClient calls the HTTP API of a running `run` process.
type daemonClient struct {
	base string
	http *http.Client
}

func newDaemonClient(addr string) *daemonClient {
	host, port, err := net.SplitHostPort(addr)
	if err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	return &daemonClient{
		base: "http://" + addr,
		http: &http.Client{Timeout: daemonTimeout},
	}
}

// Pending lists the alarms the daemon holds.
func (d *daemonClient) Pending(ctx context.Context) ([]alarm.Registration, error) {
	var regs []alarm.Registration
	if err := d.do(ctx, http.MethodGet, "/v1/alarms", nil, &regs); err != nil {
		return nil, err
	}
	return regs, nil
}

// ScheduleTest asks the daemon to register a test alarm delay from now.
func (d *daemonClient) ScheduleTest(ctx context.Context, delay time.Duration) (alarm.Registration, error) {
	var reg alarm.Registration
	body := httpapi.TestAlarmRequest{DelaySeconds: int(delay / time.Second)}
	if err := d.do(ctx, http.MethodPost, "/v1/alarm/test", body, &reg); err != nil {
		return alarm.Registration{}, err
	}
	return reg, nil
}

func (d *daemonClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.base+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s (start it with `ezan-vakti run`): %w", ErrNoDaemon, d.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode daemon response: %w", err)
	}
	return nil
}
