package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

var ErrTableNotFound = errors.New("table not found")

const memoryPath = ":memory:"

type StatementStats struct {
	Prepared int64
	Reused   int64
}

// Connector runs queries on an embedded sqlite database. Queries marked
// Stable keep a prepared statement per shape, since only their arguments
// change between selections.
type Connector struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	stmtsLock sync.Mutex
	stmts     map[string]*sql.Stmt

	prepared atomic.Int64
	reused   atomic.Int64
}

// Open opens the database at path; an empty path opens a private in-memory database.
func Open(path string, logger *slog.Logger) (*Connector, error) {

	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = memoryPath
	}

	db, openErr := sql.Open("sqlite", path)
	if openErr != nil {
		return nil, errors.Wrap(openErr, "open sqlite")
	}

	// every connection to :memory: is a separate database
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if pingErr := db.Ping(); pingErr != nil {
		db.Close()
		return nil, errors.Wrapf(pingErr, "open sqlite at %s", path)
	}

	logger.Info("sqlite opened", "path", path)

	return &Connector{
		db:     db,
		path:   path,
		logger: logger,
		stmts:  make(map[string]*sql.Stmt),
	}, nil
}

func (c *Connector) statement(ctx context.Context, text string) (*sql.Stmt, error) {

	c.stmtsLock.Lock()
	defer c.stmtsLock.Unlock()

	if stmt, ok := c.stmts[text]; ok {
		c.reused.Add(1)
		return stmt, nil
	}

	stmt, prepareErr := c.db.PrepareContext(ctx, text)
	if prepareErr != nil {
		return nil, errors.Wrap(prepareErr, "prepare")
	}
	c.stmts[text] = stmt
	c.prepared.Add(1)

	return stmt, nil
}

func (c *Connector) Query(ctx context.Context, q *query.Query) (*result.Table, error) {

	text, args := q.SQLArgs()

	var (
		rows    *sql.Rows
		execErr error
	)

	if q.Stable {
		stmt, stmtErr := c.statement(ctx, text)
		if stmtErr != nil {
			return nil, stmtErr
		}
		rows, execErr = stmt.QueryContext(ctx, args...)
	} else {
		rows, execErr = c.db.QueryContext(ctx, text, args...)
	}

	if execErr != nil {
		return nil, errors.Wrapf(execErr, "sqlite query `%s`", text)
	}
	defer rows.Close()

	return collect(rows)
}

// QuerySQL runs raw SQL text, as received by the query server.
func (c *Connector) QuerySQL(ctx context.Context, text string) (*result.Table, error) {

	rows, execErr := c.db.QueryContext(ctx, text)
	if execErr != nil {
		return nil, errors.Wrapf(execErr, "sqlite query `%s`", text)
	}
	defer rows.Close()

	return collect(rows)
}

func collect(rows *sql.Rows) (*result.Table, error) {

	names, colsErr := rows.Columns()
	if colsErr != nil {
		return nil, errors.Wrap(colsErr, "read columns")
	}

	builder := result.NewBuilder(names...)

	if types, typesErr := rows.ColumnTypes(); typesErr == nil {
		for idx, it := range types {
			if typ := schema.ParseFieldType(it.DatabaseTypeName()); typ != schema.UnknownFieldType {
				builder.Hint(idx, typ)
			}
		}
	}

	for rows.Next() {
		values := make([]any, len(names))
		dest := make([]any, len(names))
		for idx := range values {
			dest[idx] = &values[idx]
		}

		if scanErr := rows.Scan(dest...); scanErr != nil {
			return nil, errors.Wrap(scanErr, "scan row")
		}
		if appendErr := builder.Append(values); appendErr != nil {
			return nil, appendErr
		}
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, errors.Wrap(rowsErr, "iterate rows")
	}

	return builder.Build()
}

func (c *Connector) Exec(ctx context.Context, stmt string) error {
	if _, execErr := c.db.ExecContext(ctx, stmt); execErr != nil {
		return errors.Wrap(execErr, "sqlite exec")
	}
	return nil
}

func (c *Connector) Describe(ctx context.Context, table string) (schema.Schema, error) {

	rows, queryErr := c.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?) ORDER BY cid", table)
	if queryErr != nil {
		return schema.Schema{}, errors.Wrapf(queryErr, "describe %s", table)
	}
	defer rows.Close()

	result := schema.Schema{Name: table}

	for rows.Next() {
		var name, declared string
		if scanErr := rows.Scan(&name, &declared); scanErr != nil {
			return schema.Schema{}, errors.Wrap(scanErr, "scan column info")
		}
		result.Columns = append(result.Columns, schema.SchemaColumn{Name: name, Type: schema.ParseFieldType(declared)})
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return schema.Schema{}, errors.Wrap(rowsErr, "iterate column info")
	}

	if len(result.Columns) == 0 {
		return schema.Schema{}, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	return result, nil
}

func declaredType(t schema.FieldType) string {
	switch t {
	case schema.Int64FieldType:
		return "INTEGER"
	case schema.Float64FieldType:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Load creates (or replaces) table name and inserts every row of data in one transaction.
func (c *Connector) Load(ctx context.Context, name string, data *result.Table) error {

	columns := data.Columns()

	defs := make([]string, len(columns))
	names := make([]string, len(columns))
	marks := make([]string, len(columns))
	for idx, col := range columns {
		names[idx] = query.QuoteIdentifier(col.Name())
		defs[idx] = names[idx] + " " + declaredType(col.Type())
		marks[idx] = "?"
	}

	tx, txErr := c.db.BeginTx(ctx, nil)
	if txErr != nil {
		return errors.Wrap(txErr, "begin tx")
	}

	ddl := []string{
		"DROP TABLE IF EXISTS " + query.QuoteIdentifier(name),
		fmt.Sprintf("CREATE TABLE %s (%s)", query.QuoteIdentifier(name), strings.Join(defs, ", ")),
	}
	for _, it := range ddl {
		if _, execErr := tx.ExecContext(ctx, it); execErr != nil {
			_ = tx.Rollback()
			return errors.Wrapf(execErr, "load %s", name)
		}
	}

	insert, prepareErr := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		query.QuoteIdentifier(name), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if prepareErr != nil {
		_ = tx.Rollback()
		return errors.Wrap(prepareErr, "prepare insert")
	}
	defer insert.Close()

	values := make([]any, len(columns))
	for row := 0; row < data.NumRows(); row++ {
		for idx, col := range columns {
			values[idx] = col.Value(row)
		}
		if _, execErr := insert.ExecContext(ctx, values...); execErr != nil {
			_ = tx.Rollback()
			return errors.Wrapf(execErr, "insert row %d", row)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return errors.Wrap(commitErr, "commit load")
	}

	c.logger.Info("table loaded", "table", name, "rows", data.NumRows())

	return nil
}

func (c *Connector) Stats() StatementStats {
	return StatementStats{Prepared: c.prepared.Load(), Reused: c.reused.Load()}
}

func (c *Connector) Close() error {

	c.stmtsLock.Lock()
	for text, stmt := range c.stmts {
		if closeErr := stmt.Close(); closeErr != nil {
			c.logger.Warn("unable to close statement", "sql", text, "err", closeErr)
		}
	}
	c.stmts = make(map[string]*sql.Stmt)
	c.stmtsLock.Unlock()

	return c.db.Close()
}
