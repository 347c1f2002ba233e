// Package config loads netviz settings from YAML, TOML or JSON files.
//
// Files are first decoded into a generic map by the codec matching their
// extension, then decoded onto Default() with mapstructure and checked with
// validator struct tags. Keys absent from the file keep their defaults.
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aretw0/netviz/pkg/domain"
	playground "github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	LogLevel         string            `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Store            StoreConfig       `mapstructure:"store"`
	Lock             LockConfig        `mapstructure:"lock"`
	Layout           LayoutConfig      `mapstructure:"layout"`
	EdgeColors       map[string]string `mapstructure:"edge_colors"`
	DefaultEdgeColor string            `mapstructure:"default_edge_color" validate:"required"`
	HTTP             HTTPConfig        `mapstructure:"http"`
	Metrics          MetricsConfig     `mapstructure:"metrics"`
	GraphFile        string            `mapstructure:"graph_file"`
	GraphDir         string            `mapstructure:"graph_dir"`
	Seed             string            `mapstructure:"seed"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory badger sqlite redis"`
	// Path and DSN locate the badger and sqlite data. Empty means in-memory.
	Path  string      `mapstructure:"path"`
	DSN   string      `mapstructure:"dsn"`
	Redis RedisConfig `mapstructure:"redis"`

	// Redact lists regular expressions; predicate data keys matching one are
	// masked before they are written.
	Redact     []string         `mapstructure:"redact"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
}

// EncryptionConfig seals predicate data at rest. Keys are base64-encoded
// 32-byte AES keys; an empty Key disables encryption.
type EncryptionConfig struct {
	Key          string   `mapstructure:"key" validate:"omitempty,base64"`
	FallbackKeys []string `mapstructure:"fallback_keys" validate:"dive,base64"`
}

// Keys decodes the configured keys. A nil active key means encryption is off.
func (e EncryptionConfig) Keys() (active []byte, fallback [][]byte, err error) {
	if e.Key == "" {
		return nil, nil, nil
	}
	if active, err = base64.StdEncoding.DecodeString(e.Key); err != nil {
		return nil, nil, fmt.Errorf("%w: encryption key: %v", domain.ErrValidation, err)
	}
	for i, k := range e.FallbackKeys {
		b, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: fallback key %d: %v", domain.ErrValidation, i, err)
		}
		fallback = append(fallback, b)
	}
	return active, fallback, nil
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0,lte=15"`
	Prefix   string `mapstructure:"prefix"`
}

// LockConfig enables the redis distributed lock on top of the in-process one.
type LockConfig struct {
	Distributed bool          `mapstructure:"distributed"`
	TTL         time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

type LayoutConfig struct {
	Options      domain.LayoutOptions `mapstructure:",squash"`
	TickInterval time.Duration        `mapstructure:"tick_interval" validate:"gt=0"`
	MaxTicks     int                  `mapstructure:"max_ticks" validate:"gt=0"`
	Threshold    float64              `mapstructure:"threshold" validate:"gt=0"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// MetricsConfig toggles the prometheus endpoint at /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var validate = playground.New()

// Default returns the stock configuration: in-memory store, 900x600 flow layout,
// black edges.
func Default() Config {
	return Config{
		LogLevel: "info",
		Store: StoreConfig{
			Backend: BackendMemory,
			Path:    ".netviz/triplets",
			DSN:     ".netviz/triplets.db",
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "netviz:"},
		},
		Lock: LockConfig{TTL: 30 * time.Second},
		Layout: LayoutConfig{
			Options:      domain.DefaultLayoutOptions(),
			TickInterval: 16 * time.Millisecond,
			MaxTicks:     300,
			Threshold:    0.5,
		},
		EdgeColors:       map[string]string{},
		DefaultEdgeColor: "black",
		HTTP:             HTTPConfig{Addr: ":8080"},
		Metrics:          MetricsConfig{Enabled: true},
		GraphDir:         ".netviz/graphs",
	}
}

// Load reads path and overlays it on Default(). A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	raw, err := decodeRaw(filepath.Ext(path), data)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if err := Decode(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func decodeRaw(ext string, data []byte) (map[string]any, error) {
	raw := map[string]any{}
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, err
		}
	default:
		// Default to YAML
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// Decode overlays a generic map on cfg. Scalars are weakly typed and durations
// accept strings such as "250ms".
func Decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// Validate applies field rules and the layout option checks.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return c.Layout.Options.Validate()
}
