package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/domain"
	"github.com/couchcryptid/aqi-fusion/internal/lookup"
	"github.com/couchcryptid/aqi-fusion/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultAirWeight is the air-quality share, in percent, when a request omits air_weight.
const defaultAirWeight = 50

// Server exposes health, readiness, metrics and tract query endpoints.
type Server struct {
	httpServer *http.Server
	data       *lookup.Holder
	metrics    *observability.Metrics
	logger     *slog.Logger

	cacheMu  sync.Mutex
	cache    *lruCache[lookup.Result]
	cacheFor *lookup.Service
}

// NewServer creates an HTTP server. Query routes answer 503 until data holds a Service.
func NewServer(addr string, ready sharedobs.ReadinessChecker, data *lookup.Holder, cacheSize int, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		data:    data,
		metrics: metrics,
		logger:  logger,
		cache:   newLRUCache[lookup.Result](cacheSize),
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/tracts", s.withService(s.handleTracts))
	mux.HandleFunc("GET /v1/tracts/{geoid}", s.withService(s.handleTract))
	mux.HandleFunc("GET /v1/risk", s.withService(s.handleRisk))
	mux.HandleFunc("GET /v1/lookup", s.withService(s.handleLookup))

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

type serviceHandler func(w http.ResponseWriter, r *http.Request, svc *lookup.Service)

func (s *Server) withService(h serviceHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := s.data.Current()
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("tract data not loaded yet"))
			return
		}
		h(w, r, svc)
	}
}

type tractsResponse struct {
	Networks []domain.Network  `json:"networks"`
	Tracts   []domain.TractAQI `json:"tracts"`
}

func (s *Server) handleTracts(w http.ResponseWriter, _ *http.Request, svc *lookup.Service) {
	sharedobs.WriteJSON(w, http.StatusOK, tractsResponse{Networks: svc.Networks(), Tracts: svc.Tracts()})
}

func (s *Server) handleTract(w http.ResponseWriter, r *http.Request, svc *lookup.Service) {
	t, err := svc.Tract(r.PathValue("geoid"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, t)
}

type riskResponse struct {
	AirWeight float64            `json:"air_weight"`
	Presets   []int              `json:"presets"`
	Tracts    []domain.TractRisk `json:"tracts"`
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request, svc *lookup.Service) {
	pct, err := airWeightParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	risks, err := svc.Risk(pct / 100)
	if err != nil {
		if errors.Is(err, domain.ErrNoData) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, riskResponse{AirWeight: pct, Presets: domain.AirWeightPresets, Tracts: risks})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request, svc *lookup.Service) {
	lat, errLat := floatParam(r, "lat")
	lon, errLon := floatParam(r, "lon")
	if err := errors.Join(errLat, errLon); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pct, err := airWeightParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	key := fmt.Sprintf("%.6f,%.6f|%g", lat, lon, pct)
	if res, ok := s.cached(svc, key); ok {
		s.metrics.LookupCache.WithLabelValues("hit").Inc()
		sharedobs.WriteJSON(w, http.StatusOK, res)
		return
	}
	s.metrics.LookupCache.WithLabelValues("miss").Inc()

	res, err := svc.Lookup(lat, lon, pct/100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.store(svc, key, res)
	sharedobs.WriteJSON(w, http.StatusOK, res)
}

// cached looks up key, dropping the cache first if the data set changed.
func (s *Server) cached(svc *lookup.Service, key string) (lookup.Result, bool) {
	s.cacheMu.Lock()
	if s.cacheFor != svc {
		s.cache.purge()
		s.cacheFor = svc
	}
	s.cacheMu.Unlock()
	return s.cache.get(key)
}

func (s *Server) store(svc *lookup.Service, key string, res lookup.Result) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheFor == svc {
		s.cache.put(key, res)
	}
}

func floatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

// airWeightParam reads air_weight as a percentage in [0, 100].
func airWeightParam(r *http.Request) (float64, error) {
	if r.URL.Query().Get("air_weight") == "" {
		return defaultAirWeight, nil
	}
	v, err := floatParam(r, "air_weight")
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("air_weight %v outside [0, 100]", v)
	}
	return v, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
