package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/ezan-vakti/internal/alarm"
	"github.com/smokyabdulrahman/ezan-vakti/internal/api"
	"github.com/smokyabdulrahman/ezan-vakti/internal/cache"
	"github.com/smokyabdulrahman/ezan-vakti/internal/config"
	"github.com/smokyabdulrahman/ezan-vakti/internal/geo"
	"github.com/smokyabdulrahman/ezan-vakti/internal/settings"
	"github.com/smokyabdulrahman/ezan-vakti/internal/store"
)

// New builds an App from process configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	s, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	host, fallback, err := openHost(cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	httpOpts := api.Options{
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.HTTPRPS,
		Logger:            logger,
	}
	authority := api.NewAuthority(httpOpts, nil, cache.NewDistricts(s))
	authority.BaseURL = cfg.AuthorityBaseURL

	posOpts := geo.DefaultPositionOptions
	posOpts.Timeout = cfg.GeoTimeout

	a := NewWithDeps(Deps{
		Store:            s,
		Authority:        authority,
		Mirrors:          api.NewMirrors(httpOpts, cfg.MirrorURLs),
		Host:             host,
		Fallback:         fallback,
		Position:         openPosition(cfg),
		PositionOptions:  &posOpts,
		DefaultCity:      cfg.DefaultCity,
		SettingsMaxBytes: cfg.SettingsMaxBytes,
		Logger:           logger,
	})
	return a, nil
}

// OpenStore opens the configured blob store backend.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case store.BackendMemory:
		return store.NewMemory(), nil
	case store.BackendFile:
		dir, err := cfg.ResolvedDataDir()
		if err != nil {
			return nil, err
		}
		return store.NewFile(dir)
	case store.BackendRedis:
		return store.NewRedis(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case store.BackendSQLite:
		path, err := cfg.ResolvedSQLitePath()
		if err != nil {
			return nil, err
		}
		return store.NewSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openHost(cfg *config.Config, logger *zerolog.Logger) (alarm.Host, alarm.Notifier, error) {
	switch cfg.AlarmHost {
	case config.AlarmHostMQTT:
		h, err := alarm.DialMQTT(alarm.MQTTOptions{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return h, h, nil
	default:
		h := alarm.NewLocalHost(16, logger)
		return h, h, nil
	}
}

func openPosition(cfg *config.Config) geo.Provider {
	if cfg.GeoMode == config.GeoStatic {
		return geo.StaticProvider{Position: geo.Position{
			Latitude:  settings.DefaultCoords.Latitude,
			Longitude: settings.DefaultCoords.Longitude,
		}}
	}
	return geo.NewIPProvider(&http.Client{Timeout: cfg.GeoTimeout})
}
