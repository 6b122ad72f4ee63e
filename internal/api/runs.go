package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/david/radar-licitacoes/internal/db"
	"github.com/david/radar-licitacoes/internal/models"
	"github.com/david/radar-licitacoes/internal/scan"
)

// startRun records the start of a scan. Recording failures are logged and
// never fail the scan.
func (s *Server) startRun(ctx context.Context, kind, term, caller string, params map[string]interface{}) *models.ScanRun {
	run := &models.ScanRun{
		ID:        uuid.New(),
		Kind:      kind,
		Term:      term,
		Caller:    caller,
		Status:    "running",
		Params:    params,
		StartedAt: s.now().UTC(),
	}
	if s.Runs == nil {
		return run
	}
	if err := s.Runs.StartRun(context.WithoutCancel(ctx), *run); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("run_id", run.ID.String()).Msg("failed to record scan start")
	}
	return run
}

// finishRun stores the outcome of run. It runs detached from ctx so canceled
// scans are still recorded.
func (s *Server) finishRun(ctx context.Context, run *models.ScanRun, res *scan.Result, scanErr error) {
	run.Status = scanStatus(res, scanErr)
	if res != nil {
		run.Windows = res.Windows
		run.PagesScanned = res.ScannedPages
		run.RecordsScanned = res.ScannedRecords
		run.Matched = res.Matched
		run.Found = res.Found
	}
	if scanErr != nil {
		msg := scanErr.Error()
		run.Error = &msg
	}
	ended := s.now().UTC()
	run.CompletedAt = &ended

	if s.Runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Runs.FinishRun(ctx, *run); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("run_id", run.ID.String()).Msg("failed to record scan result")
	}
}

func (s *Server) handleListRuns(c echo.Context) error {
	if s.Runs == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"ok":    false,
			"error": "scan run log is disabled (DATABASE_URL not set)",
		})
	}

	runs, err := s.Runs.ListRuns(c.Request().Context(), db.RunFilter{
		Kind:   strings.TrimSpace(c.QueryParam("kind")),
		Status: strings.TrimSpace(c.QueryParam("status")),
		Caller: strings.TrimSpace(c.QueryParam("caller")),
		Limit:  queryInt(c, "limit", 20, 1, 200),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "runs": runs})
}
