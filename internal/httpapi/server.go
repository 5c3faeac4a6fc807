// Package httpapi serves a read-only JSON view of the queue, the publish
// budget, the scheduler config and the latest run reports.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/globaltime"
	"github.com/Fzero1925/ai-discovery-sub000/internal/ledger"
	"github.com/Fzero1925/ai-discovery-sub000/internal/publish"
	"github.com/Fzero1925/ai-discovery-sub000/internal/report"
	"github.com/Fzero1925/ai-discovery-sub000/internal/schedule"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Files locates the durable state the API reads.
type Files struct {
	QueueFile           string
	StateFile           string
	SchedulerConfigFile string
	ReportsDir          string
}

// RunLister is the ledger query behind /runs.
type RunLister interface {
	RecentRuns(ctx context.Context, kind string, limit int) ([]ledger.RunRecord, error)
}

type Server struct {
	files  Files
	runs   RunLister
	logger zerolog.Logger
	opts   Options
	now    func() time.Time
}

// NewServer builds the API. runs may be nil when no ledger is configured.
func NewServer(files Files, runs RunLister, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8091
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		files:  files,
		runs:   runs,
		logger: logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			AllowedOrigins:  origins,
		},
		now: globaltime.Now,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// Handler returns the routed echo instance.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.opts.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Debug()
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/queue", s.handleQueue)
	api.GET("/state", s.handleState)
	api.GET("/scheduler", s.handleScheduler)
	api.GET("/reports/latest", s.handleLatestReport)
	api.GET("/runs", s.handleRuns)
	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server is not initialized")
	}
	e := s.Handler()

	httpServer := &http.Server{
		Addr:         s.Addr(),
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", s.Addr()).Msg("pubgate status api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("pubgate status api stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "pubgate",
		"time":    s.now().UTC(),
		"ledger":  s.runs != nil,
	})
}

func (s *Server) snapshot() (publish.Snapshot, schedule.Config, error) {
	cfg, err := schedule.LoadConfig(s.files.SchedulerConfigFile)
	if err != nil {
		return publish.Snapshot{}, schedule.Config{}, err
	}
	snap, err := publish.Inspect(cfg, s.files.QueueFile, s.files.StateFile, s.now())
	if err != nil {
		return publish.Snapshot{}, schedule.Config{}, err
	}
	return snap, cfg, nil
}

func (s *Server) handleQueue(c echo.Context) error {
	snap, _, err := s.snapshot()
	if err != nil {
		s.logger.Error().Err(err).Msg("inspect queue failed")
		return internalError(c, "Failed to load queue")
	}

	dueOnly := strings.EqualFold(strings.TrimSpace(c.QueryParam("due")), "true")
	items := snap.Queue
	if dueOnly {
		items = make([]publish.QueueEntry, 0, snap.Due)
		for _, entry := range snap.Queue {
			if entry.Due {
				items = append(items, entry)
			}
		}
	}
	return success(c, map[string]any{
		"items":     items,
		"total":     snap.QueueLength,
		"due":       snap.Due,
		"anomalies": snap.Anomalies,
	})
}

func (s *Server) handleState(c echo.Context) error {
	snap, _, err := s.snapshot()
	if err != nil {
		s.logger.Error().Err(err).Msg("inspect publish state failed")
		return internalError(c, "Failed to load publish state")
	}
	return success(c, map[string]any{
		"bucket":             snap.Bucket,
		"hourly_cap":         snap.HourlyCap,
		"released_this_hour": snap.ReleasedThisHour,
		"budget":             snap.Budget,
		"buckets":            snap.State,
	})
}

func (s *Server) handleScheduler(c echo.Context) error {
	snap, cfg, err := s.snapshot()
	if err != nil {
		s.logger.Error().Err(err).Msg("load scheduler config failed")
		return internalError(c, "Failed to load scheduler config")
	}
	return success(c, map[string]any{
		"config":            cfg,
		"now":               snap.Now,
		"active":            snap.Active,
		"paused":            snap.Paused,
		"regime":            snap.Regime,
		"next_active_start": snap.NextActiveStart,
	})
}

func (s *Server) handleLatestReport(c echo.Context) error {
	kind, err := report.ParseKind(c.QueryParam("kind"))
	if err != nil {
		return failValidation(c, map[string]string{"kind": "must be admission or publish"})
	}
	latest, found, err := report.LoadLatest(s.files.ReportsDir, kind)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("load latest report failed")
		return internalError(c, "Failed to load report")
	}
	if !found {
		return failNotFound(c, fmt.Sprintf("No %s report yet", kind))
	}
	return success(c, latest)
}

func (s *Server) handleRuns(c echo.Context) error {
	if s.runs == nil {
		return failUnavailable(c, "Run ledger is not configured")
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultRunLimit, 1, maxRunLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	kind := strings.TrimSpace(c.QueryParam("kind"))
	if kind != "" {
		parsed, err := report.ParseKind(kind)
		if err != nil {
			return failValidation(c, map[string]string{"kind": "must be admission or publish"})
		}
		kind = string(parsed)
	}
	runs, err := s.runs.RecentRuns(c.Request().Context(), kind, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query recent runs failed")
		return internalError(c, "Failed to load runs")
	}
	items := make([]runView, 0, len(runs))
	for _, run := range runs {
		items = append(items, newRunView(run))
	}
	return success(c, map[string]any{
		"items": items,
	})
}

type runView struct {
	RunID      string          `json:"run_id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Counts     json.RawMessage `json:"counts"`
	Failure    *string         `json:"failure,omitempty"`
}

func newRunView(r ledger.RunRecord) runView {
	counts := r.Counts
	if len(counts) == 0 {
		counts = json.RawMessage("{}")
	}
	return runView{
		RunID:      r.RunID,
		Kind:       r.Kind,
		Status:     r.Status,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Counts:     counts,
		Failure:    r.Failure,
	}
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
