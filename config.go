package topicroute

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// UnmatchedRoutePolicy decides the fate of messages whose topic matches no
// route.
type UnmatchedRoutePolicy string

const (
	// AcceptUnmatched forwards messages on unknown topics.
	AcceptUnmatched UnmatchedRoutePolicy = "accept"

	// RejectUnmatched drops messages on unknown topics.
	RejectUnmatched UnmatchedRoutePolicy = "reject"
)

// Config is the file form of the router options.
//
//	unmatched_route_policy: reject
//	payload_codec: json
//	log_level: debug
type Config struct {
	UnmatchedRoutePolicy UnmatchedRoutePolicy `yaml:"unmatched_route_policy"`
	PayloadCodec         string               `yaml:"payload_codec"`
	LogLevel             string               `yaml:"log_level"`
}

// DefaultConfig returns the configuration New uses when given no options.
func DefaultConfig() Config {
	return Config{
		UnmatchedRoutePolicy: AcceptUnmatched,
		PayloadCodec:         "json",
		LogLevel:             "info",
	}
}

// LoadConfig reads a YAML configuration file. Missing keys keep their
// defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every field holds a recognized value.
func (c Config) Validate() error {
	switch c.UnmatchedRoutePolicy {
	case AcceptUnmatched, RejectUnmatched:
	default:
		return fmt.Errorf("%w: unmatched_route_policy must be %q or %q, got %q",
			ErrInvalidConfig, AcceptUnmatched, RejectUnmatched, c.UnmatchedRoutePolicy)
	}
	if _, err := CodecByName(c.PayloadCodec); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
	}
	return level, nil
}

// Options converts the configuration to router options. Call Validate (or
// load through ParseConfig) first; invalid values fall back to defaults.
func (c Config) Options() []Option {
	opts := []Option{WithUnmatchedRoutePolicy(c.UnmatchedRoutePolicy)}
	if codec, err := CodecByName(c.PayloadCodec); err == nil {
		opts = append(opts, WithCodec(codec))
	}
	return opts
}
