package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/reporting"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/ridwatch/internal/clock"
	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

// Service is the read and control surface the API exposes.
type Service interface {
	Sightings() []domain.Sighting
	RecentDetections(limit int) []domain.Detection
	Defense() domain.DefenseSnapshot
	ResetDefense() error
}

// Options configures a Server.
type Options struct {
	Addr           string
	Site           string
	AllowedOrigins []string
	Clock          clock.Clock
	// Store, when set, serves ?source=store queries from persisted history.
	Store ports.Store
}

// Server handles the HTTP API and websocket push.
type Server struct {
	Addr     string
	Service  Service
	Store    ports.Store
	Hub      *Hub
	Exporter *reporting.PDFExporter

	site         string
	clock        clock.Clock
	resetLimiter *middleware.RateLimiter
	srv          *http.Server
}

// NewServer creates a web server over svc.
func NewServer(svc Service, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Server{
		Addr:         opts.Addr,
		Service:      svc,
		Store:        opts.Store,
		Hub:          NewHub(opts.AllowedOrigins),
		Exporter:     reporting.NewPDFExporter(),
		site:         opts.Site,
		clock:        opts.Clock,
		resetLimiter: middleware.NewRateLimiter(10, time.Minute, opts.Clock),
	}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(SetupRoutes(s), "ridwatch-server")
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("web server shutting down")
		s.Hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("web server shutdown error", "error", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.resetLimiter.Cleanup()
			}
		}
	}()

	slog.Info("web server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
