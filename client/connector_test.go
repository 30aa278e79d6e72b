package client

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

type failingConnector struct {
	healthy atomic.Bool
}

func (f *failingConnector) Query(ctx context.Context, q *query.Query) (*result.Table, error) {
	if !f.healthy.Load() {
		return nil, errors.New("connection refused")
	}
	return result.NewTable(result.NewStringColumn("sql", []string{q.SQL()}, nil))
}

func (f *failingConnector) Exec(ctx context.Context, stmt string) error { return nil }

func (f *failingConnector) Describe(ctx context.Context, table string) (schema.Schema, error) {
	return schema.Schema{Name: table}, nil
}

func (f *failingConnector) Close() error { return nil }
