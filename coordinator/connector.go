package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

// Connector is a query backend: an embedded engine, an in-process columnar
// store or a remote server.
type Connector interface {
	Query(ctx context.Context, q *query.Query) (*result.Table, error)
	Exec(ctx context.Context, stmt string) error
	Describe(ctx context.Context, table string) (schema.Schema, error)
	Close() error
}

// Client is anything the coordinator can detach when the data source changes.
type Client interface {
	ID() uuid.UUID
	Destroy()
}
