package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kasku/internal/config"
	"kasku/internal/log"
	"kasku/internal/middleware/ratelimit"
	"kasku/internal/middleware/security"
	"kasku/internal/middleware/trace"
	"kasku/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the JSON API surface over the chart service.
type Server struct {
	http.Server

	charts *services.ChartService
	store  Pinger
	logger *log.Logger

	limiter      *ratelimit.Limiter
	ipExtractor  *security.ClientIPExtractor
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a
// ready-to-run server.
func NewServer(cfg *config.Config, charts *services.ChartService, store Pinger, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.ComponentHTTP, log.Config{})
	}

	s := &Server{
		charts: charts,
		store:  store,
		logger: logger,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RequestsPerMinute,
		}),
		ipExtractor: security.NewClientIPExtractor(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /charts", s.handleListCharts)
	mux.HandleFunc("PUT /charts/{id}", s.handleSaveChart)
	mux.HandleFunc("GET /charts/{id}/data", s.handleChartData)
	mux.HandleFunc("POST /charts/preview", s.handleChartPreview)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	handler := security.Headers(security.DefaultHeadersConfig())(
		trace.Middleware(
			log.Middleware(logger)(
				s.limiter.Middleware(s.ipExtractor.ExtractClientIP)(
					s.withAccessLog(mux)))))

	s.Server = http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// withAccessLog logs one line per completed request.
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.InfoContext(r.Context(), "HTTP request completed",
			log.FieldRequestID, trace.FromRequest(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rec.status,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, s.ipExtractor.ExtractClientIP(r))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Shutdown stops the listener and the rate limiter janitor.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
