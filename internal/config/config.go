package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// Config holds all atomspace configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Limits   LimitsConfig   `toml:"limits"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	JSON  bool   `toml:"json"`
	Level string `toml:"level"` // debug, info, warn, error
}

type LimitsConfig struct {
	DefaultPage int `toml:"default_page"`
	MaxPage     int `toml:"max_page"`
	MaxPublic   int `toml:"max_public"`
	ExportCap   int `toml:"export_cap"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Log: LogConfig{
			Level: "info",
		},
		Limits: LimitsConfig{
			DefaultPage: 100,
			MaxPage:     1000,
			MaxPublic:   100,
			ExportCap:   100000,
		},
	}
}

// DefaultPath returns ~/.atomspace/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "get home dir")
	}
	return filepath.Join(home, ".atomspace", "config.toml"), nil
}

// Load reads path over the defaults and then applies environment
// overrides. A missing file is not an error. An empty path means
// DefaultPath().
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	} else if !os.IsNotExist(err) {
		return cfg, errors.Wrapf(err, "stat config %s", path)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides settings from ATOMSPACE_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("ATOMSPACE_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("ATOMSPACE_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("ATOMSPACE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "ATOMSPACE_PORT=%q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ATOMSPACE_LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "ATOMSPACE_LOG_JSON=%q", v)
		}
		c.Log.JSON = b
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
