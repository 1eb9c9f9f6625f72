package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/krishseta/game-recommender/internal/validation"
)

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
	"error": true, "fatal": true, "panic": true, "disabled": true,
}

// Validate checks field ranges and the relations between fields.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, verr.Error())
	}
	if err := c.validateRanking(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateRanking() error {
	r := c.Ranking
	if r.DefaultTopN > r.MaxTopN {
		return fmt.Errorf("%w: ranking.default_top_n (%d) exceeds ranking.max_top_n (%d)",
			ErrInvalidConfig, r.DefaultTopN, r.MaxTopN)
	}
	if r.CacheTTL < 0 {
		return fmt.Errorf("%w: ranking.cache_ttl cannot be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateServer() error {
	s := c.Server
	if s.RateLimit > 0 && s.RateWindow <= 0 {
		return fmt.Errorf("%w: server.rate_window must be positive when rate_limit is set", ErrInvalidConfig)
	}
	if s.WatchInterval < 0 {
		return fmt.Errorf("%w: server.watch_interval cannot be negative", ErrInvalidConfig)
	}
	if s.RequestTimeout < 0 {
		return fmt.Errorf("%w: server.request_timeout cannot be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: logging.level %q is not a log level", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
