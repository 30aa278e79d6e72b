// Package config holds the settings shared by the tessera commands. Values
// come from flags, TESSERA_ prefixed environment variables and an optional
// TOML file, in that priority order.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dot5enko/tessera/connector"
	"github.com/dot5enko/tessera/coordinator"
)

const EnvPrefix = "TESSERA"

var ErrInvalidLogLevel = errors.New("invalid log level")

type Config struct {
	Table     string `toml:"table"`
	Transport string `toml:"transport"`
	Endpoint  string `toml:"endpoint"`
	Database  string `toml:"database"`
	Timeout   string `toml:"timeout"`

	Listen string `toml:"listen"`

	Workers   int  `toml:"workers"`
	QueueSize int  `toml:"queue-size"`
	Cache     bool `toml:"cache"`
	CacheSize int  `toml:"cache-size"`

	LogLevel string `toml:"log-level"`
}

func NewConfig() *Config {
	return &Config{
		Table:     "cells",
		Transport: string(connector.Embedded),
		Endpoint:  "ws://localhost:3000/",
		Timeout:   "30s",
		Listen:    ":3000",
		Workers:   1,
		QueueSize: 64,
		Cache:     true,
		CacheSize: 256,
		LogLevel:  "info",
	}
}

// Flags registers one flag per setting, defaulting to the current values.
func (c *Config) Flags(flags *pflag.FlagSet) {
	flags.StringVar(&c.Table, "table", c.Table, "Table the views read.")
	flags.StringVarP(&c.Transport, "transport", "t", c.Transport, "Query backend: embedded, memory or remote.")
	flags.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "Query server address for the remote transport.")
	flags.StringVar(&c.Database, "database", c.Database, "SQLite database file, in memory when empty.")
	flags.StringVar(&c.Timeout, "timeout", c.Timeout, "Remote request timeout.")
	flags.StringVar(&c.Listen, "listen", c.Listen, "Address the query server listens on.")
	flags.IntVar(&c.Workers, "workers", c.Workers, "Query executors. One keeps submission order.")
	flags.IntVar(&c.QueueSize, "queue-size", c.QueueSize, "Pending query queue length.")
	flags.BoolVar(&c.Cache, "cache", c.Cache, "Cache query results.")
	flags.IntVar(&c.CacheSize, "cache-size", c.CacheSize, "Cached result limit.")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error.")
}

// Apply reads the environment and the file named by the config flag into
// every flag not set on the command line.
func Apply(v *viper.Viper, flags *pflag.FlagSet) error {

	if bindErr := v.BindPFlags(flags); bindErr != nil {
		return bindErr
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	known := map[string]bool{}
	flags.VisitAll(func(f *pflag.Flag) {
		known[f.Name] = true
	})

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if readErr := v.ReadInConfig(); readErr != nil {
			return fmt.Errorf("error reading configuration file '%s': %w", file, readErr)
		}

		for _, key := range v.AllKeys() {
			if !known[key] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}

		// setting a slice flag appends, so slices are replaced wholesale
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			if values := v.GetStringSlice(f.Name); len(values) > 0 {
				flagErr = sv.Replace(values)
			}
			return
		}

		flagErr = f.Value.Set(v.GetString(f.Name))
	})

	return flagErr
}

func (c *Config) Validate() error {
	if _, parseErr := connector.ParseTransport(c.Transport); parseErr != nil {
		return parseErr
	}
	if _, levelErr := c.Level(); levelErr != nil {
		return levelErr
	}
	if _, durationErr := c.RequestTimeout(); durationErr != nil {
		return durationErr
	}
	if c.Table == "" {
		return errors.New("table must not be empty")
	}
	return nil
}

func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: `%s`", ErrInvalidLogLevel, c.LogLevel)
	}
}

func (c *Config) RequestTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, parseErr := time.ParseDuration(c.Timeout)
	if parseErr != nil {
		return 0, pkgerrors.Wrap(parseErr, "invalid timeout")
	}
	return d, nil
}

// Logger builds a text logger at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := c.Level()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (c *Config) ConnectorOptions(logger *slog.Logger) (connector.Options, error) {

	transport, parseErr := connector.ParseTransport(c.Transport)
	if parseErr != nil {
		return connector.Options{}, parseErr
	}
	timeout, timeoutErr := c.RequestTimeout()
	if timeoutErr != nil {
		return connector.Options{}, timeoutErr
	}

	return connector.Options{
		Transport: transport,
		Path:      c.Database,
		Endpoint:  c.Endpoint,
		Timeout:   timeout,
		Logger:    logger,
	}, nil
}

func (c *Config) CoordinatorConfig(logger *slog.Logger, reg prometheus.Registerer) coordinator.Config {
	return coordinator.Config{
		Workers:    c.Workers,
		QueueSize:  c.QueueSize,
		Cache:      c.Cache,
		CacheSize:  c.CacheSize,
		Logger:     logger,
		Registerer: reg,
	}
}

// TOML renders the configuration as a config file.
func (c *Config) TOML() ([]byte, error) {
	out, marshalErr := toml.Marshal(*c)
	if marshalErr != nil {
		return nil, pkgerrors.Wrap(marshalErr, "marshalling config")
	}
	return out, nil
}
