// Package connector opens the query backends a coordinator can run against.
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dot5enko/tessera/connector/memory"
	"github.com/dot5enko/tessera/connector/remote"
	"github.com/dot5enko/tessera/connector/sqlite"
	"github.com/dot5enko/tessera/coordinator"
	"github.com/dot5enko/tessera/result"
)

var (
	ErrUnknownTransport = errors.New("unknown transport")
	ErrNotLoadable      = errors.New("connector does not accept tables")
	ErrNoEndpoint       = errors.New("remote transport needs an endpoint")
)

type Transport string

const (
	// Embedded runs SQLite in process.
	Embedded Transport = "embedded"
	// Memory runs the columnar engine in process, without SQL support.
	Memory Transport = "memory"
	// Remote talks to a query server over HTTP.
	Remote Transport = "remote"
)

// ParseTransport accepts the transport names and their aliases. Browser era
// names map onto the closest backend: wasm is in process, socket and rest
// are remote.
func ParseTransport(name string) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "embedded", "wasm", "sqlite", "":
		return Embedded, nil
	case "memory":
		return Memory, nil
	case "remote", "socket", "rest", "http":
		return Remote, nil
	default:
		return "", fmt.Errorf("%w: `%s`", ErrUnknownTransport, name)
	}
}

type Options struct {
	Transport Transport

	// Path is the SQLite database file, empty for an in-memory database.
	Path     string
	Endpoint string
	Timeout  time.Duration

	Logger *slog.Logger
}

func Open(opts Options) (coordinator.Connector, error) {

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Transport {
	case Embedded, "":
		conn, openErr := sqlite.Open(opts.Path, logger)
		if openErr != nil {
			return nil, openErr
		}
		return conn, nil
	case Memory:
		return memory.New(logger), nil
	case Remote:
		if opts.Endpoint == "" {
			return nil, ErrNoEndpoint
		}
		conn, openErr := remote.New(opts.Endpoint, remote.Options{Timeout: opts.Timeout, Logger: logger})
		if openErr != nil {
			return nil, openErr
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("%w: `%s`", ErrUnknownTransport, opts.Transport)
	}
}

// Load stores data as table name on a connector that keeps local tables.
func Load(ctx context.Context, conn coordinator.Connector, name string, data *result.Table) error {
	switch c := conn.(type) {
	case *sqlite.Connector:
		return c.Load(ctx, name, data)
	case *memory.Engine:
		return c.Load(name, data)
	default:
		return fmt.Errorf("%w: %T", ErrNotLoadable, conn)
	}
}
