// Package http exposes a catalog.Catalog over a small REST API modeled on
// the Iceberg REST catalog routes.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/featurebasedb/lakeingest/catalog"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/tracing"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const MetricRequests = "catalog_http_requests_total"

var counterRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lakeingest",
		Name:      MetricRequests,
		Help:      "Catalog HTTP requests by route and status code.",
	},
	[]string{"route", "code"},
)

func init() {
	prometheus.MustRegister(counterRequests)
}

// CreateNamespaceRequest is the body of POST /v1/namespaces.
type CreateNamespaceRequest struct {
	Namespace  string            `json:"namespace"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ListNamespacesResponse is the body returned by GET /v1/namespaces.
type ListNamespacesResponse struct {
	Namespaces []string `json:"namespaces"`
}

// CreateTableRequest is the body of POST /v1/namespaces/{ns}/tables.
type CreateTableRequest struct {
	Name     string         `json:"name"`
	Schema   catalog.Schema `json:"schema"`
	Location string         `json:"location"`
}

// ListTablesResponse is the body returned by GET /v1/namespaces/{ns}/tables.
type ListTablesResponse struct {
	Identifiers []catalog.TableIdent `json:"identifiers"`
}

// AppendFilesRequest is the body of
// POST /v1/namespaces/{ns}/tables/{table}/append.
type AppendFilesRequest struct {
	BaseSnapshotID int64              `json:"base-snapshot-id"`
	Files          []catalog.DataFile `json:"files"`
}

// Handler returns the REST handler for c.
func Handler(c catalog.Catalog, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.NopLogger
	}
	svr := &server{
		catalog: c,
		logger:  log,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", svr.getHealth).Methods("GET").Name("GetHealth")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET").Name("GetMetrics")

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/namespaces", svr.getNamespaces).Methods("GET").Name("GetNamespaces")
	v1.HandleFunc("/namespaces", svr.postNamespace).Methods("POST").Name("PostNamespace")
	v1.HandleFunc("/namespaces/{namespace}/tables", svr.getTables).Methods("GET").Name("GetTables")
	v1.HandleFunc("/namespaces/{namespace}/tables", svr.postTable).Methods("POST").Name("PostTable")
	v1.HandleFunc("/namespaces/{namespace}/tables/{table}", svr.getTable).Methods("GET").Name("GetTable")
	v1.HandleFunc("/namespaces/{namespace}/tables/{table}/append", svr.postAppend).Methods("POST").Name("PostAppend")

	router.Use(svr.extractTracing)
	router.Use(svr.countRequests)

	var h http.Handler = router
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(panicLogger{log}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

type server struct {
	catalog catalog.Catalog
	logger  logger.Logger
}

// panicLogger adapts logger.Logger to handlers.RecoveryHandlerLogger.
type panicLogger struct {
	logger logger.Logger
}

func (p panicLogger) Println(v ...interface{}) {
	p.logger.Errorf("catalog handler panic: %s", fmt.Sprint(v...))
}

func (s *server) extractTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span, ctx := tracing.GlobalTracer.ExtractHTTPHeaders(r)
		defer span.Finish()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil && cur.GetName() != "" {
			route = cur.GetName()
		}
		counterRequests.WithLabelValues(route, fmt.Sprint(sw.code)).Inc()
		s.logger.Debugf("%s %s %d %v", r.Method, r.URL.Path, sw.code, time.Since(t))
	})
}

// statusOf maps a coded catalog error to the HTTP status it is served with.
func statusOf(err error) int {
	switch errors.CodeOf(err) {
	case catalog.ErrTableNotFound, catalog.ErrNamespaceNotFound:
		return http.StatusNotFound
	case catalog.ErrNamespaceExists, catalog.ErrTableExists, catalog.ErrCommitConflict:
		return http.StatusConflict
	case catalog.ErrInvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		s.logger.Errorf("catalog request failed: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintln(w, errors.MarshalJSON(err))
}

func (s *server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("encoding response: %v", err)
	}
}

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return catalog.NewErrInvalidArgument("decoding request body: " + err.Error())
	}
	return nil
}

// GET /health
func (s *server) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// GET /v1/namespaces
func (s *server) getNamespaces(w http.ResponseWriter, r *http.Request) {
	nss, err := s.catalog.ListNamespaces(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, ListNamespacesResponse{Namespaces: nss})
}

// POST /v1/namespaces
func (s *server) postNamespace(w http.ResponseWriter, r *http.Request) {
	req := CreateNamespaceRequest{}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.catalog.CreateNamespace(r.Context(), req.Namespace, req.Properties); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, req)
}

// GET /v1/namespaces/{namespace}/tables
func (s *server) getTables(w http.ResponseWriter, r *http.Request) {
	ns := mux.Vars(r)["namespace"]

	idents, err := s.catalog.ListTables(r.Context(), ns)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, ListTablesResponse{Identifiers: idents})
}

// POST /v1/namespaces/{namespace}/tables
func (s *server) postTable(w http.ResponseWriter, r *http.Request) {
	ns := mux.Vars(r)["namespace"]

	req := CreateTableRequest{}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	tbl, err := s.catalog.CreateTable(r.Context(), catalog.NewTableIdent(ns, req.Name), req.Schema, req.Location)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, tbl)
}

// GET /v1/namespaces/{namespace}/tables/{table}
func (s *server) getTable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	tbl, err := s.catalog.LoadTable(r.Context(), catalog.NewTableIdent(vars["namespace"], vars["table"]))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, tbl)
}

// POST /v1/namespaces/{namespace}/tables/{table}/append
func (s *server) postAppend(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	req := AppendFilesRequest{}
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	snap, err := s.catalog.AppendFiles(r.Context(), catalog.NewTableIdent(vars["namespace"], vars["table"]), req.BaseSnapshotID, req.Files)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, snap)
}
