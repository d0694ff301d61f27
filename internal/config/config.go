// Package config loads process configuration from the environment.
//
// A .env file in the working directory is read first when present. User
// settings (sound, reminders, location) are not here; they live in the
// store, see package settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/smokyabdulrahman/ezan-vakti/internal/store"
)

const (
	dirName        = "ezan-vakti"
	sqliteFileName = "ezan.db"
)

// Alarm hosts.
const (
	AlarmHostLocal = "local"
	AlarmHostMQTT  = "mqtt"
)

// Position providers.
const (
	GeoIP     = "ip"
	GeoStatic = "static"
)

// Config holds the process configuration.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"file"`
	// DataDir defaults to Dir() when empty.
	DataDir string `env:"DATA_DIR"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisUsername string `env:"REDIS_USERNAME"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"ezan:"`

	// SQLitePath defaults to ezan.db under the data directory.
	SQLitePath string `env:"SQLITE_PATH"`

	AuthorityBaseURL string `env:"AUTHORITY_BASE_URL" envDefault:"https://ezanvakti.emushaf.net"`
	// MirrorURLs in priority order; empty means the built-in list.
	MirrorURLs  []string      `env:"MIRROR_URLS" envSeparator:","`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	HTTPRPS     float64       `env:"HTTP_RPS" envDefault:"2"`

	DefaultCity      string `env:"DEFAULT_CITY" envDefault:"İstanbul"`
	SettingsMaxBytes int    `env:"SETTINGS_MAX_BYTES" envDefault:"5242880"`

	AlarmHost       string `env:"ALARM_HOST" envDefault:"local"`
	MQTTBroker      string `env:"MQTT_BROKER" envDefault:"tcp://localhost:1883"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"ezan-vakti"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"ezan/default"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8080"`

	GeoMode    string        `env:"GEO_MODE" envDefault:"ip"`
	GeoTimeout time.Duration `env:"GEO_TIMEOUT" envDefault:"15s"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	return parse(env.Options{})
}

// LoadFrom parses configuration from environ only, ignoring the process
// environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case store.BackendFile, store.BackendMemory, store.BackendRedis, store.BackendSQLite:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be file, memory, redis or sqlite", c.StoreBackend)
	}
	switch c.AlarmHost {
	case AlarmHostLocal, AlarmHostMQTT:
	default:
		return fmt.Errorf("invalid ALARM_HOST %q: must be local or mqtt", c.AlarmHost)
	}
	switch c.GeoMode {
	case GeoIP, GeoStatic:
	default:
		return fmt.Errorf("invalid GEO_MODE %q: must be ip or static", c.GeoMode)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("invalid REDIS_DB %d: must not be negative", c.RedisDB)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid HTTP_TIMEOUT %s: must be positive", c.HTTPTimeout)
	}
	if c.SettingsMaxBytes <= 0 {
		return fmt.Errorf("invalid SETTINGS_MAX_BYTES %d: must be positive", c.SettingsMaxBytes)
	}
	return nil
}

// Dir returns the default data directory.
// It respects $XDG_CONFIG_HOME if set, otherwise uses ~/.config/.
func Dir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, dirName), nil
}

// ResolvedDataDir returns DataDir, or Dir() when unset.
func (c *Config) ResolvedDataDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	return Dir()
}

// ResolvedSQLitePath returns SQLitePath, or ezan.db in the data directory.
func (c *Config) ResolvedSQLitePath() (string, error) {
	if c.SQLitePath != "" {
		return c.SQLitePath, nil
	}
	dir, err := c.ResolvedDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sqliteFileName), nil
}
