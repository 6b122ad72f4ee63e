package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/david/radar-licitacoes/internal/models"
	"github.com/david/radar-licitacoes/internal/scan"
)

const (
	jobRunning        = "running"
	defaultJobTimeout = 30 * time.Minute
	// finished jobs stay pollable this long
	jobRetention = time.Hour
)

type backgroundJob struct {
	ID           string
	Caller       string
	Term         string
	Status       string // running, completed, canceled, failed
	StartedAt    time.Time
	EndedAt      time.Time
	Progress     *scan.Progress
	Fornecedores []models.Fornecedor
	Error        string
	Cancel       context.CancelFunc
}

// handleStartScan starts a supplier ranking detached from the request and
// returns its id for polling.
func (s *Server) handleStartScan(c echo.Context) error {
	q, err := s.parseFornecedoresQuery(c)
	if err != nil {
		return s.fail(c, err)
	}
	opts := s.fornecedoresOptions(q)
	opts.SnapshotTop = q.Top
	if err := opts.Validate(); err != nil {
		return s.fail(c, err)
	}

	timeout := time.Duration(s.Cfg.Scan.JobTimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}

	// context.WithoutCancel detaches from the HTTP lifecycle but keeps the
	// request logger.
	jobCtx, cancelTimeout := context.WithTimeout(context.WithoutCancel(c.Request().Context()), timeout)
	caller := callerID(c)
	scanCtx, release := s.scans.Begin(jobCtx, jobKey(caller))

	run := s.startRun(scanCtx, models.KindFornecedores, q.Term, caller, q.params())
	job := &backgroundJob{
		ID:           run.ID.String(),
		Caller:       caller,
		Term:         q.Term,
		Status:       jobRunning,
		StartedAt:    run.StartedAt,
		Fornecedores: []models.Fornecedor{},
		Cancel:       release,
	}

	s.jobMu.Lock()
	s.pruneJobsLocked(s.now())
	s.jobs[job.ID] = job
	s.jobMu.Unlock()

	go func() {
		defer cancelTimeout()
		defer release()
		s.runJob(scanCtx, job, run, opts)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"ok":     true,
		"id":     job.ID,
		"status": jobRunning,
		"poll":   "/api/v1/scans/" + job.ID,
	})
}

func (s *Server) runJob(ctx context.Context, job *backgroundJob, run *models.ScanRun, opts scan.Options) {
	var last scan.Event
	for ev := range s.contractScanner(opts.Term, "").Stream(ctx, opts) {
		switch {
		case ev.Type == scan.EventProgress:
			s.jobMu.Lock()
			job.Progress = ev.Progress
			s.jobMu.Unlock()
		case ev.Terminal():
			last = ev
		}
	}

	s.finishRun(ctx, run, last.Result, last.Err)

	s.jobMu.Lock()
	job.Status = run.Status
	job.EndedAt = s.now()
	if last.Result != nil {
		job.Fornecedores = toFornecedores(last.Result.Top)
	}
	if last.Err != nil {
		job.Error = last.Err.Error()
	}
	s.jobMu.Unlock()

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID).
		Str("status", run.Status).
		Int("found", run.Found).
		Msg("background scan finished")
}

// pruneJobsLocked drops finished jobs older than jobRetention. jobMu must be held.
func (s *Server) pruneJobsLocked(now time.Time) {
	for id, job := range s.jobs {
		if job.Status != jobRunning && now.Sub(job.EndedAt) > jobRetention {
			delete(s.jobs, id)
		}
	}
}

func (s *Server) handleScanStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job, ok := s.jobs[queried]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"ok": false, "error": "job not found"})
	}

	resp := map[string]interface{}{
		"ok":         true,
		"id":         job.ID,
		"status":     job.Status,
		"termo":      job.Term,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).Round(time.Millisecond).String()
	}
	if p := job.Progress; p != nil {
		resp["progress"] = map[string]interface{}{
			"window":            p.Window,
			"windows":           p.Windows,
			"page":              p.Page,
			"totalPaginas":      p.TotalPages,
			"scannedPages":      p.ScannedPages,
			"scannedContracts":  p.ScannedRecords,
			"matched":           p.Matched,
			"totalFornecedores": p.Found,
		}
	}
	switch {
	case job.Status != jobRunning:
		resp["fornecedores"] = job.Fornecedores
	case job.Progress != nil:
		resp["fornecedores"] = toFornecedores(job.Progress.Top)
	default:
		resp["fornecedores"] = []models.Fornecedor{}
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCancelScan(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	job, ok := s.jobs[queried]
	var status string
	if ok {
		status = job.Status
	}
	s.jobMu.Unlock()

	if !ok {
		return c.JSON(http.StatusNotFound, map[string]interface{}{"ok": false, "error": "job not found"})
	}
	if status != jobRunning {
		return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "id": job.ID, "status": status})
	}

	job.Cancel()
	return c.JSON(http.StatusAccepted, map[string]interface{}{"ok": true, "id": job.ID, "status": "canceling"})
}
