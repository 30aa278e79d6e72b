package client

import (
	"errors"
	"fmt"
)

var (
	ErrNoBuilder = errors.New("client needs a query builder")

	// ErrConfigMismatch is reported when the coordinator switched datasets
	// after the client was created.
	ErrConfigMismatch = errors.New("client configuration does not match the active dataset")

	ErrShapeChanged = errors.New("query shape changed on a filter stable client")
)

// BuildError wraps failures that happen before a query is sent.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("unable to build query: %s", e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// TransportError wraps failures reported by the coordinator or its connector.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("query failed: %s", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
