// Package httpapi exposes the compilation engine over HTTP: a synchronous
// compile endpoint, a server-sent-events streaming variant, a bounded
// batch endpoint, an async/queued endpoint backed by the durable workflow
// engine, health and aggregated-metrics endpoints, and a bidirectional
// WebSocket compile session.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vitaliisemenov/adblock-compiler/internal/analytics"
	"github.com/vitaliisemenov/adblock-compiler/internal/coalescer"
	"github.com/vitaliisemenov/adblock-compiler/internal/ratelimit"
	"github.com/vitaliisemenov/adblock-compiler/internal/resultcache"
	"github.com/vitaliisemenov/adblock-compiler/internal/snapshot"
	"github.com/vitaliisemenov/adblock-compiler/internal/workflow"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"

	"github.com/vitaliisemenov/adblock-compiler/internal/pipeline"
)

// Version is the service version reported by the health endpoint.
const Version = "1.0.0"

// Server wires the compilation engine's components to HTTP handlers.
type Server struct {
	pipeline    *pipeline.Engine
	cache       *resultcache.Cache
	coalescer   *coalescer.Coalescer
	coordinator *workflow.Coordinator
	engine      *workflow.Engine
	tracker     *snapshot.Tracker
	limiter     *ratelimit.Limiter
	analytics   *analytics.Emitter
	logger      *slog.Logger
	registry    *metrics.MetricsRegistry
	httpMetrics *metrics.HTTPMetrics
	metricsEP   *metrics.MetricsEndpointHandler
	window      *requestWindow
	startedAt   time.Time

	sessions *sessionRegistry
}

// Config bundles the collaborators a Server needs. Every field except
// Pipeline is optional; a nil collaborator disables the feature it backs
// (no Limiter means no rate limiting, no Coordinator means the async
// endpoint responds 503, and so on).
type Config struct {
	Pipeline    *pipeline.Engine
	Cache       *resultcache.Cache
	Coalescer   *coalescer.Coalescer
	Coordinator *workflow.Coordinator
	Engine      *workflow.Engine
	Tracker     *snapshot.Tracker
	Limiter     *ratelimit.Limiter
	Analytics   *analytics.Emitter
	Logger      *slog.Logger
	Registry    *metrics.MetricsRegistry
}

// NewServer constructs a Server from cfg.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpMetrics := metrics.NewHTTPMetrics()

	s := &Server{
		pipeline:    cfg.Pipeline,
		cache:       cfg.Cache,
		coalescer:   cfg.Coalescer,
		coordinator: cfg.Coordinator,
		engine:      cfg.Engine,
		tracker:     cfg.Tracker,
		limiter:     cfg.Limiter,
		analytics:   cfg.Analytics,
		logger:      logger,
		registry:    cfg.Registry,
		httpMetrics: httpMetrics,
		window:      newRequestWindow(30*time.Minute, time.Minute),
		startedAt:   time.Now(),
		sessions:    newSessionRegistry(),
	}

	if cfg.Registry != nil {
		ep, err := metrics.NewMetricsEndpointHandler(metrics.DefaultEndpointConfig(), cfg.Registry)
		if err != nil {
			logger.Warn("failed to build /metrics scrape endpoint, continuing without it", "error", err)
		} else {
			ep.SetLogger(&slogMetricsLogger{logger: logger})
			if err := ep.RegisterHTTPMetrics(httpMetrics); err != nil {
				logger.Warn("failed to register HTTP metrics on /metrics endpoint", "error", err)
			}
			s.metricsEP = ep
		}
	}

	return s
}

// slogMetricsLogger adapts *slog.Logger to the metrics.Logger interface the
// scrape endpoint's error handler logs through.
type slogMetricsLogger struct {
	logger *slog.Logger
}

func (l *slogMetricsLogger) Debug(msg string, args ...interface{}) { l.logger.Debug(msg, args...) }
func (l *slogMetricsLogger) Info(msg string, args ...interface{})  { l.logger.Info(msg, args...) }
func (l *slogMetricsLogger) Warn(msg string, args ...interface{})  { l.logger.Warn(msg, args...) }
func (l *slogMetricsLogger) Error(msg string, args ...interface{}) { l.logger.Error(msg, args...) }

// Router builds the complete routed handler, middleware stack included.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/compile", s.handleCompile).Methods(http.MethodPost)
	r.HandleFunc("/compile/stream", s.handleCompileStream).Methods(http.MethodPost)
	r.HandleFunc("/compile/batch", s.handleCompileBatch).Methods(http.MethodPost)
	r.HandleFunc("/compile/async", s.handleCompileAsync).Methods(http.MethodPost)
	r.HandleFunc("/queue/results/{requestId}", s.handleQueueResult).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics/summary", s.handleMetricsSummary).Methods(http.MethodGet)
	if s.metricsEP != nil {
		r.Handle("/metrics", s.metricsEP).Methods(http.MethodGet)
	}
	r.HandleFunc("/ws/compile", s.handleSession)

	return s.buildMiddlewareStack()(r)
}
