// Package config loads the server's startup configuration: a YAML file
// on disk, overridable by flags registered on the serve command, in the
// same load-then-override layering the teacher project uses for its own
// config file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// minSeedLength is the shortest seed accepted at startup; a shorter seed
// is a Fatal configuration error per the wire contract.
const minSeedLength = 10

// Listen configures the HTTP front-end's bind address.
type Listen struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Store configures the SQLite-backed persistence repository.
type Store struct {
	Path string `yaml:"path"`
}

// Map configures the deterministic mine oracle.
type Map struct {
	Seed string `yaml:"seed"`
}

// Log configures process-wide structured logging.
type Log struct {
	Level string `yaml:"level"`
}

// Telemetry configures the OpenTelemetry exporter.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Config is the full startup configuration surface.
type Config struct {
	Listen    Listen    `yaml:"listen"`
	Store     Store     `yaml:"store"`
	Map       Map       `yaml:"map"`
	Log       Log       `yaml:"log"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Default returns the configuration used when no file is present and no
// flags override it.
func Default() Config {
	return Config{
		Listen: Listen{Host: "0.0.0.0", Port: 8080},
		Store:  Store{Path: "./data/mines.db"},
		Map:    Map{Seed: "change-me-please-10chars"},
		Log:    Log{Level: "info"},
	}
}

// Load reads and parses a YAML config file, starting from Default() so
// any field the file omits keeps its default. A missing file is not an
// error — the defaults are returned unmodified.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants the server depends on before it starts
// listening. A failure here is a Fatal startup error.
func (c Config) Validate() error {
	if len(c.Map.Seed) < minSeedLength {
		return fmt.Errorf("config: map.seed must be at least %d characters, got %d", minSeedLength, len(c.Map.Seed))
	}
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port %d out of range", c.Listen.Port)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path must not be empty")
	}
	return nil
}
