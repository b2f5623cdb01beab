// Package config loads the terminal-side INI configuration.
package config

import (
	"github.com/pkg/errors"
	gcfg "gopkg.in/gcfg.v1"
)

// Config mirrors the sections of the posclient INI file.
type Config struct {
	Server struct {
		URL            string
		TimeoutSeconds int
	}
	Auth struct {
		VenueID string
		Pin     string
		Token   string
	}
	Queue struct {
		Path string
	}
	Sync struct {
		IntervalSeconds int
	}
}

// Load reads and validates the config file at path. Missing optional knobs
// get defaults; a missing server URL or venue is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := gcfg.ReadFileInto(cfg, path); err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if cfg.Server.URL == "" {
		return nil, errors.New("server.url is required")
	}
	if cfg.Auth.VenueID == "" {
		return nil, errors.New("auth.venueid is required")
	}
	if cfg.Server.TimeoutSeconds <= 0 {
		cfg.Server.TimeoutSeconds = 10
	}
	if cfg.Queue.Path == "" {
		cfg.Queue.Path = "./posclient.db"
	}
	if cfg.Sync.IntervalSeconds <= 0 {
		cfg.Sync.IntervalSeconds = 30
	}
	return cfg, nil
}
