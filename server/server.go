package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dot5enko/tessera/connector/remote"
	"github.com/dot5enko/tessera/result"
	"github.com/dot5enko/tessera/schema"
)

const maxRequestBytes = 1 << 20

var ErrEmptyStatement = errors.New("empty statement")

// Backend executes SQL text. The sqlite connector is one.
type Backend interface {
	QuerySQL(ctx context.Context, text string) (*result.Table, error)
	Exec(ctx context.Context, stmt string) error
	Describe(ctx context.Context, table string) (schema.Schema, error)
}

type Options struct {
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server exposes a Backend to remote connectors.
type Server struct {
	backend Backend
	logger  *slog.Logger
	router  *mux.Router

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func New(backend Backend, opts Options) *Server {

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		backend: backend,
		logger:  logger,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tessera",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests handled, by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tessera",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Request handling time, by route.",
		}, []string{"route"}),
	}

	if opts.Registerer != nil {
		opts.Registerer.MustRegister(s.requests, s.duration)
	}

	s.router = s.newRouter(opts.Gatherer)

	return s
}

func (s *Server) newRouter(gatherer prometheus.Gatherer) *mux.Router {

	router := mux.NewRouter()
	router.Use(s.collectStats)

	router.HandleFunc(remote.PathQuery, s.handlePostQuery).Methods("POST").Name("PostQuery")
	router.HandleFunc(remote.PathExec, s.handlePostExec).Methods("POST").Name("PostExec")
	router.HandleFunc(remote.PathDescribe, s.handleGetDescribe).Methods("GET").Name("GetDescribe")
	router.HandleFunc(remote.PathHealth, s.handleGetHealth).Methods("GET").Name("GetHealth")

	if gatherer != nil {
		router.Handle(remote.PathMetrics, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Name("Metrics")
	} else {
		router.Handle(remote.PathMetrics, promhttp.Handler()).Name("Metrics")
	}

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("query server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("query server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) collectStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unknown"
		if current := mux.CurrentRoute(r); current != nil && current.GetName() != "" {
			route = current.GetName()
		}

		s.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.duration.WithLabelValues(route).Observe(time.Since(t).Seconds())
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if encodeErr := json.NewEncoder(w).Encode(remote.ErrorResponse{Error: err.Error()}); encodeErr != nil {
		s.logger.Warn("failed to encode error response", "err", encodeErr)
	}
}

func (s *Server) readStatement(w http.ResponseWriter, r *http.Request) (string, bool) {

	var req remote.StatementRequest

	if decodeErr := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); decodeErr != nil {
		s.writeError(w, http.StatusBadRequest, decodeErr)
		return "", false
	}
	if req.SQL == "" {
		s.writeError(w, http.StatusBadRequest, ErrEmptyStatement)
		return "", false
	}
	return req.SQL, true
}

func (s *Server) handlePostQuery(w http.ResponseWriter, r *http.Request) {

	text, ok := s.readStatement(w, r)
	if !ok {
		return
	}

	table, queryErr := s.backend.QuerySQL(r.Context(), text)
	if queryErr != nil {
		s.logger.Warn("query failed", "sql", text, "err", queryErr)
		s.writeError(w, http.StatusInternalServerError, queryErr)
		return
	}

	var buf bytes.Buffer
	if encodeErr := result.Encode(&buf, table); encodeErr != nil {
		s.writeError(w, http.StatusInternalServerError, encodeErr)
		return
	}

	w.Header().Set("Content-Type", remote.ContentTypeResult)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, writeErr := w.Write(buf.Bytes()); writeErr != nil {
		s.logger.Debug("client went away", "err", writeErr)
	}
}

func (s *Server) handlePostExec(w http.ResponseWriter, r *http.Request) {

	text, ok := s.readStatement(w, r)
	if !ok {
		return
	}

	if execErr := s.backend.Exec(r.Context(), text); execErr != nil {
		s.writeError(w, http.StatusInternalServerError, execErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte("{}\n"))
}

func (s *Server) handleGetDescribe(w http.ResponseWriter, r *http.Request) {

	table := mux.Vars(r)["table"]

	result, describeErr := s.backend.Describe(r.Context(), table)
	if describeErr != nil {
		s.writeError(w, http.StatusNotFound, describeErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if encodeErr := json.NewEncoder(w).Encode(result); encodeErr != nil {
		s.logger.Warn("failed to encode schema", "err", encodeErr)
	}
}

func (s *Server) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}` + "\n"))
}
