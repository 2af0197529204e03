// Package dashboard serves the positioning, volatility and table extraction pages.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"positioning-lab/internal/domain"
	"positioning-lab/internal/extraction"
	"positioning-lab/internal/metrics"
	"positioning-lab/internal/observability"
	"positioning-lab/internal/reporting"
	"positioning-lab/internal/storage"
)

const defaultMaxUploadBytes = 20 << 20

// ReportSource builds the current alert report.
type ReportSource interface {
	Generate(ctx context.Context) (*reporting.Report, error)
}

// SeriesSource computes engine output for one instrument.
type SeriesSource interface {
	Series(ctx context.Context, instrumentID string) ([]domain.PositionRecord, error)
}

// Commentator produces AI commentary.
type Commentator interface {
	VolatilityAnalysis(ctx context.Context, run domain.VolatilityRun) (string, error)
	PositioningCommentary(ctx context.Context, instrument string, records []domain.PositionRecord) (string, error)
}

// TableExtractor runs image table extraction.
type TableExtractor interface {
	Extract(ctx context.Context, model string, files []extraction.Upload) ([]domain.ExtractionResult, error)
	Models() []string
	DefaultModel() string
	ResolveModel(model string) (string, error)
}

var _ TableExtractor = (*extraction.Extractor)(nil)

// Config holds server settings.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	Location       *time.Location // zone for "last fetched" stamps
	Engine         metrics.Config // window and thresholds shown on charts
}

// Deps are the services behind the handlers. Commentary and Extractor may be nil.
type Deps struct {
	Reports    ReportSource
	Series     SeriesSource
	Volatility storage.VolatilityStore
	Commentary Commentator
	Extractor  TableExtractor
	Batches    *extraction.BatchStore
	Jobs       []Job // scheduled collectors reported on /health
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg        Config
	deps       Deps
	router     *mux.Router
	httpServer *http.Server
	views      *views
	log        zerolog.Logger

	// jobCtx outlives requests so manual runs are only cancelled on shutdown.
	jobCtx   context.Context
	stopJobs context.CancelFunc
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config, deps Deps, log zerolog.Logger) (*Server, error) {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if deps.Batches == nil {
		deps.Batches = extraction.NewBatchStore(time.Hour)
	}

	v, err := loadViews()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: mux.NewRouter(),
		views:  v,
		log:    log.With().Str("component", "dashboard").Logger(),
	}
	s.jobCtx, s.stopJobs = context.WithCancel(context.Background())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	s.router.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/jobs/{name}/run", s.handleJobRun).Methods(http.MethodPost)

	// COT positioning
	s.router.HandleFunc("/cot", s.handleCOTPage).Methods(http.MethodGet)
	s.router.HandleFunc("/api/cot/latest", s.handleCOTLatest).Methods(http.MethodGet)
	s.router.HandleFunc("/api/cot/series", s.handleCOTSeries).Methods(http.MethodGet)
	s.router.HandleFunc("/api/cot/commentary", s.handleCOTCommentary).Methods(http.MethodPost)

	// BTC volatility
	s.router.HandleFunc("/btc", s.handleBTCPage).Methods(http.MethodGet)
	s.router.HandleFunc("/api/btc/smile", s.handleBTCSmile).Methods(http.MethodGet)
	s.router.HandleFunc("/api/btc/analysis", s.handleBTCAnalysis).Methods(http.MethodPost)

	// Table extraction
	s.router.HandleFunc("/extract", s.handleExtractForm).Methods(http.MethodGet)
	s.router.HandleFunc("/extract", s.handleExtractRun).Methods(http.MethodPost)
	s.router.HandleFunc("/extract/{batch}/all.zip", s.handleExtractBundle).Methods(http.MethodGet)
	s.router.HandleFunc("/extract/{batch}/{file:.+\\.csv}", s.handleExtractFile).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.stopJobs()
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("dashboard listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dashboard: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("dashboard shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard: shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "The requested page does not exist")
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "home.html", homeView{
		Title:             "Application Launcher",
		ExtractionEnabled: s.deps.Extractor != nil,
	})
}
