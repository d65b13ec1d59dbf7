// Package config loads the dblens service configuration from a YAML file.
// Values of the form ${VAR} are expanded from the environment, which is
// first populated from a .env file when one exists.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/dblens/internal/database"
	"github.com/koustreak/dblens/internal/errs"
	"github.com/koustreak/dblens/internal/filestore"
	"github.com/koustreak/dblens/internal/logger"
	"github.com/koustreak/dblens/internal/monitoring"
)

// Config is the root of the configuration file.
type Config struct {
	Server      ServerConfig          `yaml:"server"`
	Log         logger.Config         `yaml:"log"`
	Defaults    database.Options      `yaml:"defaults"`
	Monitoring  monitoring.Options    `yaml:"monitoring"`
	Connections []database.Descriptor `yaml:"connections"`

	// Archive enables snapshot archiving when set.
	Archive *filestore.Config `yaml:"archive"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns a config that serves the demo backend on :8080.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: logger.Config{
			Level:      "info",
			Format:     "json",
			TimeFormat: "rfc3339",
		},
		Defaults: database.Options{
			QueryTimeout: 30 * time.Second,
		},
		Monitoring: monitoring.DefaultOptions(),
		Connections: []database.Descriptor{{
			ID:       "demo",
			Name:     "Demo database",
			Type:     database.TypeDemo,
			Database: "shop",
			IsDemo:   true,
		}},
	}
}

// envFiles are tried in order; the first one found wins.
func envFiles(configPath string) []string {
	files := []string{".env"}
	if configPath != "" {
		files = append(files, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	return files
}

func loadEnv(configPath string) error {
	for _, path := range envFiles(configPath) {
		err := godotenv.Load(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults. Variables already set in the environment take
// precedence over the .env file.
func Load(path string) (*Config, error) {
	if err := loadEnv(path); err != nil {
		return nil, err
	}

	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(raw, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse expands environment references in raw and decodes it onto cfg.
// A connections list in raw replaces the default one.
func Parse(raw []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(raw))

	var probe struct {
		Connections yaml.Node `yaml:"connections"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &probe); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if !probe.Connections.IsZero() {
		cfg.Connections = nil
	}

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

var logLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errs.Invalid("server.addr", "is required")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return errs.Invalid("server", "timeouts must not be negative")
	}
	if !logLevels[c.Log.Level] {
		return errs.Invalid("log.level", "must be one of debug, info, warn, error, fatal")
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "console" {
		return errs.Invalid("log.format", "must be json or console")
	}
	if c.Defaults.QueryTimeout < 0 {
		return errs.Invalid("defaults.query_timeout", "must not be negative")
	}

	seen := make(map[string]bool, len(c.Connections))
	for i, d := range c.Connections {
		field := fmt.Sprintf("connections[%d]", i)
		if d.ID == "" {
			return errs.Invalid(field+".id", "is required")
		}
		if seen[d.ID] {
			return errs.Invalid(field+".id", fmt.Sprintf("duplicate id %q", d.ID))
		}
		seen[d.ID] = true
		if !d.Type.Known() {
			return errs.Invalid(field+".type", fmt.Sprintf("unknown type %q", d.Type))
		}
	}

	if c.Archive != nil {
		if err := c.Archive.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Connection returns the descriptor with the given id.
func (c *Config) Connection(id string) (database.Descriptor, bool) {
	for _, d := range c.Connections {
		if d.ID == id {
			return d, true
		}
	}
	return database.Descriptor{}, false
}
