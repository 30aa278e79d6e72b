package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dot5enko/tessera/query"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

var ErrServer = errors.New("query server error")

type Options struct {
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Connector forwards queries as SQL text to a query server and decodes its
// lz4 compressed columnar responses.
type Connector struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func New(endpoint string, opts Options) (*Connector, error) {

	parsed, parseErr := url.Parse(endpoint)
	if parseErr != nil {
		return nil, errors.Wrapf(parseErr, "invalid endpoint %q", endpoint)
	}

	// websocket style endpoints map onto plain http
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Connector{
		endpoint: strings.TrimSuffix(parsed.String(), "/"),
		client:   client,
		logger:   logger,
	}, nil
}

func (c *Connector) Endpoint() string {
	return c.endpoint
}

func (c *Connector) do(ctx context.Context, method, path string, body any) (*http.Response, error) {

	var reader io.Reader
	if body != nil {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return nil, marshalErr
		}
		reader = bytes.NewReader(payload)
	}

	req, reqErr := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if reqErr != nil {
		return nil, errors.Wrap(reqErr, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, doErr := c.client.Do(req)
	if doErr != nil {
		return nil, errors.Wrapf(doErr, "%s %s", method, path)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		var failure ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&failure); decodeErr != nil || failure.Error == "" {
			failure.Error = resp.Status
		}
		return nil, fmt.Errorf("%w: %s %s: %s", ErrServer, method, path, failure.Error)
	}

	return resp, nil
}

func (c *Connector) Query(ctx context.Context, q *query.Query) (*result.Table, error) {
	return c.QuerySQL(ctx, q.SQL())
}

func (c *Connector) QuerySQL(ctx context.Context, text string) (*result.Table, error) {

	resp, reqErr := c.do(ctx, http.MethodPost, PathQuery, StatementRequest{SQL: text})
	if reqErr != nil {
		return nil, reqErr
	}
	defer resp.Body.Close()

	table, decodeErr := result.Decode(resp.Body)
	if decodeErr != nil {
		return nil, errors.Wrap(decodeErr, "decode response")
	}

	c.logger.Debug("remote query", "endpoint", c.endpoint, "rows", table.NumRows())

	return table, nil
}

func (c *Connector) Exec(ctx context.Context, stmt string) error {

	resp, reqErr := c.do(ctx, http.MethodPost, PathExec, StatementRequest{SQL: stmt})
	if reqErr != nil {
		return reqErr
	}
	resp.Body.Close()

	return nil
}

func (c *Connector) Describe(ctx context.Context, table string) (schema.Schema, error) {

	path := strings.Replace(PathDescribe, "{table}", url.PathEscape(table), 1)

	resp, reqErr := c.do(ctx, http.MethodGet, path, nil)
	if reqErr != nil {
		return schema.Schema{}, reqErr
	}
	defer resp.Body.Close()

	var result schema.Schema
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil {
		return schema.Schema{}, errors.Wrap(decodeErr, "decode schema")
	}
	return result, nil
}

func (c *Connector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
