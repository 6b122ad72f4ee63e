package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/david/radar-licitacoes/internal/apperr"
	"github.com/david/radar-licitacoes/internal/comex"
	"github.com/david/radar-licitacoes/internal/config"
	"github.com/david/radar-licitacoes/internal/db"
	"github.com/david/radar-licitacoes/internal/models"
	"github.com/david/radar-licitacoes/internal/pncp"
	"github.com/david/radar-licitacoes/internal/scan"
)

// RunRecorder persists scan run metadata. *db.RunStore implements it.
type RunRecorder interface {
	StartRun(ctx context.Context, run models.ScanRun) error
	FinishRun(ctx context.Context, run models.ScanRun) error
	ListRuns(ctx context.Context, filter db.RunFilter) ([]models.ScanRun, error)
}

type Server struct {
	Cfg   *config.Config
	PNCP  *pncp.Client
	Comex *comex.Client
	// Runs is nil when no database is configured.
	Runs   RunRecorder
	Logger zerolog.Logger
	Echo   *echo.Echo

	scans *callerScans
	now   func() time.Time

	// Background job tracking
	jobMu sync.Mutex
	jobs  map[string]*backgroundJob
}

func NewServer(cfg *config.Config, runs RunRecorder, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	allowedOrigins := cfg.Server.AllowOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, clientIDHeader},
	}))

	s := &Server{
		Cfg:    cfg,
		PNCP:   pncp.NewClient(cfg.PNCP.BaseURL, cfg.PNCP.Fetch.Upstream("PNCP")),
		Comex:  comex.NewClient(cfg.Comex.BaseURLs, cfg.Comex.Fetch.Upstream("ComexStat")),
		Runs:   runs,
		Logger: logger,
		Echo:   e,
		scans:  newCallerScans(),
		now:    time.Now,
		jobs:   make(map[string]*backgroundJob),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")

	api.GET("/fornecedores", s.handleFornecedores)
	api.GET("/fornecedores/scan", s.handleFornecedoresPage)
	api.GET("/fornecedores/stream", s.handleFornecedoresStream)

	api.GET("/marcas", s.handleMarcas)
	api.GET("/marcas/stream", s.handleMarcasStream)

	api.GET("/licitacoes", s.handleLicitacoes)

	api.GET("/comex", s.handleComex)
	api.GET("/comex/ping", s.handleComexPing)

	// Background scans
	api.POST("/scans", s.handleStartScan)
	api.GET("/scans/:id", s.handleScanStatus)
	api.DELETE("/scans/:id", s.handleCancelScan)

	api.GET("/runs", s.handleListRuns)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// Shutdown stops accepting requests and cancels every background scan.
func (s *Server) Shutdown(ctx context.Context) error {
	s.jobMu.Lock()
	for _, job := range s.jobs {
		if job.Status == jobRunning {
			job.Cancel()
		}
	}
	s.jobMu.Unlock()
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// requestLogger attaches a request-scoped zerolog logger to the request
// context and logs one line per request.
func requestLogger(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()
			logger := base.With().
				Str("request_id", uuid.NewString()[:8]).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info().
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("caller", callerID(c)).
				Msg("request")
			return nil
		}
	}
}

// fail answers {ok:false,error} with the status mapped from err.
func (s *Server) fail(c echo.Context, err error) error {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("request failed")
	}
	return c.JSON(status, map[string]interface{}{"ok": false, "error": err.Error()})
}

// queryInt parses an integer query parameter, falling back to def when it is
// missing or invalid and clamping it into [min, max].
func queryInt(c echo.Context, name string, def, min, max int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.QueryParam(name)))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// queryDate parses an optional yyyy-mm-dd (or yyyyMMdd) parameter.
func queryDate(c echo.Context, name string, def time.Time) (time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	t, err := scan.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.Validation(name, "%s: %v", name, err)
	}
	return t, nil
}

func (s *Server) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Server) pageDelay() time.Duration {
	return time.Duration(s.Cfg.Scan.PageDelayMS) * time.Millisecond
}

func (s *Server) modalidade(c echo.Context) string {
	if m := strings.TrimSpace(c.QueryParam("codigoModalidadeContratacao")); m != "" {
		return m
	}
	if m := strings.TrimSpace(c.QueryParam("modalidade")); m != "" {
		return m
	}
	return s.Cfg.PNCP.DefaultModalidade
}

// scanStatus reports the terminal status for a scan that produced res and err.
func scanStatus(res *scan.Result, err error) string {
	switch {
	case res != nil:
		return string(res.Status)
	case errors.Is(err, apperr.ErrCanceled), errors.Is(err, context.Canceled):
		return string(scan.StatusCanceled)
	default:
		return string(scan.StatusFailed)
	}
}
