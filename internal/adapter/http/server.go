package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/observability"
)

// Service is the set of request flows exposed over HTTP.
// It is implemented by pipeline.Pipeline.
type Service interface {
	MapID(ctx context.Context, state string) (string, error)
	LayerMapID(ctx context.Context, state, layer string) (string, error)
	PointQuery(ctx context.Context, state string, at domain.Coordinate) (domain.PointValues, error)
	Center(ctx context.Context, state string) (domain.Coordinate, error)
}

// Server exposes the index API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	svc        Service
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the /api, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, svc Service, ready sharedobs.ReadinessChecker, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Terminal evaluations are bounded by ENGINE_TIMEOUT.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		svc:     svc,
		metrics: metrics,
		logger:  logger,
	}

	mux.HandleFunc("GET /api/mapid", s.handleMapID)
	mux.HandleFunc("GET /api/center", s.handleCenter)
	mux.HandleFunc("GET /api/layers/{layer}/mapid", s.handleLayerMapID)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleMapID returns the index map id as text, or the point record as JSON
// when lat and lng are given.
func (s *Server) handleMapID(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	if state == "" {
		s.fail(w, "mapid", badRequest("missing state parameter"))
		return
	}

	if q.Has("lat") || q.Has("lng") {
		at, err := parseCoordinate(q.Get("lat"), q.Get("lng"))
		if err != nil {
			s.fail(w, "point", err)
			return
		}
		values, err := s.svc.PointQuery(r.Context(), state, at)
		if err != nil {
			s.fail(w, "point", err)
			return
		}
		s.metrics.Requests.WithLabelValues("point", "success").Inc()
		writeJSON(w, http.StatusOK, values)
		return
	}

	id, err := s.svc.MapID(r.Context(), state)
	if err != nil {
		s.fail(w, "mapid", err)
		return
	}
	s.metrics.Requests.WithLabelValues("mapid", "success").Inc()
	writeText(w, id)
}

func (s *Server) handleLayerMapID(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		s.fail(w, "layer", badRequest("missing state parameter"))
		return
	}
	id, err := s.svc.LayerMapID(r.Context(), state, r.PathValue("layer"))
	if err != nil {
		s.fail(w, "layer", err)
		return
	}
	s.metrics.Requests.WithLabelValues("layer", "success").Inc()
	writeText(w, id)
}

func (s *Server) handleCenter(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		s.fail(w, "center", badRequest("missing state parameter"))
		return
	}
	c, err := s.svc.Center(r.Context(), state)
	if err != nil {
		s.fail(w, "center", err)
		return
	}
	s.metrics.Requests.WithLabelValues("center", "success").Inc()
	writeJSON(w, http.StatusOK, c)
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func parseCoordinate(lat, lng string) (domain.Coordinate, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || la < -90 || la > 90 {
		return domain.Coordinate{}, badRequest("invalid lat %q", lat)
	}
	ln, err := strconv.ParseFloat(lng, 64)
	if err != nil || ln < -180 || ln > 180 {
		return domain.Coordinate{}, badRequest("invalid lng %q", lng)
	}
	return domain.Coordinate{Lat: la, Lng: ln}, nil
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	var reqErr *requestError
	var fault *domain.EvaluationFault
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRegionNotFound), errors.Is(err, domain.ErrLayerNotFound):
		return http.StatusNotFound
	case errors.As(err, &fault), errors.Is(err, domain.ErrUpstreamAuth):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, endpoint string, err error) {
	status := statusFor(err)
	s.metrics.Requests.WithLabelValues(endpoint, "error").Inc()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "endpoint", endpoint, "status", status, "error", err)
	} else {
		s.logger.Debug("request rejected", "endpoint", endpoint, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
