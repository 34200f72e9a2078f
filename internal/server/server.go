// Package server exposes registered udf functions over HTTP.
// Endpoints: GET /healthz, GET /metrics, GET /functions, GET|POST /functions/{name}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p2p-org/polkadot-profit-transformer/internal/udf"
)

const (
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
)

var (
	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "udf_invocations_total", Help: "Function invocations by result"},
		[]string{"function", "result"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(invocationsTotal, httpRequestsTotal, httpRequestDuration)
}

// Server serves one registry.
type Server struct {
	reg     *udf.Registry
	log     *slog.Logger
	maxBody int64
}

func New(reg *udf.Registry, log *slog.Logger, maxBodyBytes int64) *Server {
	return &Server{reg: reg, log: log, maxBody: maxBodyBytes}
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(instrument, s.requestID)
	r.HandleFunc("/healthz", handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/functions", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/functions/{name}", s.handleDescribe).Methods(http.MethodGet)
	r.HandleFunc("/functions/{name}", s.handleInvoke).Methods(http.MethodPost)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}))(r)
}

// ListenAndServe runs until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	s.log.Info("starting", "addr", addr)

	select {
	case err := <-errc:
		if err == nil {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}
	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.List())
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	d, err := s.reg.Lookup(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// InvokeRequest is the body of POST /functions/{name}. A missing or null
// argument is passed to the function as NULL.
type InvokeRequest struct {
	Args map[string]*string `json:"args"`
}

// InvokeResponse carries a three-valued result; Result is null for unknown.
type InvokeResponse struct {
	Function string `json:"function"`
	Result   *bool  `json:"result"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	d, err := s.reg.Lookup(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req InvokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		s.log.Warn("invalid body", "function", d.Name, "err", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	args, err := bindArgs(d, req.Args)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.reg.Invoke(d.Name, args)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, udf.ErrArity) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	invocationsTotal.WithLabelValues(d.Name, udf.FormatResult(res)).Inc()
	resp := InvokeResponse{Function: d.Name}
	if res.Valid {
		resp.Result = &res.Bool
	}
	writeJSON(w, http.StatusOK, resp)
}

// bindArgs orders named arguments by the descriptor's parameter list.
func bindArgs(d udf.Descriptor, named map[string]*string) ([]pgtype.Text, error) {
	known := make(map[string]bool, len(d.Params))
	for _, p := range d.Params {
		known[p] = true
	}
	for name := range named {
		if !known[name] {
			return nil, fmt.Errorf("unknown argument %q for %s", name, d.Name)
		}
	}
	args := make([]pgtype.Text, len(d.Params))
	for i, p := range d.Params {
		if v := named[p]; v != nil {
			args[i] = udf.Text(*v)
		}
	}
	return args, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response", "err", err)
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// requestID tags each request with an X-Request-ID, reusing the caller's.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		s.log.Debug("request", "id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// instrument records Prometheus metrics labeled by route template so that
// function names in the path do not multiply series.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		ww := &responseWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)
		httpRequestsTotal.WithLabelValues(r.Method, path, statusLabel(ww.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter captures status code for Prometheus labeling.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}

type recoveryLogger struct {
	log *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("panic in handler", "err", fmt.Sprint(v...))
}
