package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/radar-licitacoes/internal/models"
)

type jobBody struct {
	OK           bool
	ID           string
	Status       string
	Poll         string
	Error        string
	Progress     map[string]any
	Fornecedores []models.Fornecedor
}

func pollJob(t *testing.T, s *Server, id string, until func(jobBody) bool) jobBody {
	t.Helper()
	var last jobBody
	require.Eventually(t, func() bool {
		rec := do(s, http.MethodGet, "/api/v1/scans/"+id)
		if rec.Code != http.StatusOK {
			return false
		}
		var b jobBody
		if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
			return false
		}
		last = b
		return until(b)
	}, 5*time.Second, 10*time.Millisecond)
	return last
}

func TestBackgroundScan(t *testing.T) {
	runs := &memRuns{}
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, contractsPage)
	}, runs)

	rec := do(s, http.MethodPost, "/api/v1/scans?termo=autoclave&dataIni=2025-01-01&dataFim=2025-06-30")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var started jobBody
	decode(t, rec, &started)
	assert.Equal(t, "running", started.Status)
	assert.Equal(t, "/api/v1/scans/"+started.ID, started.Poll)

	final := pollJob(t, s, started.ID, func(b jobBody) bool { return b.Status != "running" })
	assert.Equal(t, "completed", final.Status)
	require.Len(t, final.Fornecedores, 1)
	assert.Equal(t, "Cirúrgica Brasil", final.Fornecedores[0].Nome)
	assert.Equal(t, 3.0, final.Progress["scannedContracts"])

	require.Eventually(t, func() bool { return len(runs.Finished()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, started.ID, runs.Finished()[0].ID.String())

	rec = do(s, http.MethodDelete, "/api/v1/scans/"+started.ID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
}

func TestBackgroundScan_Cancel(t *testing.T) {
	entered := make(chan struct{}, 1)
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}, nil)

	rec := do(s, http.MethodPost, "/api/v1/scans?termo=autoclave")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started jobBody
	decode(t, rec, &started)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("background scan never reached the upstream")
	}

	rec = do(s, http.MethodDelete, "/api/v1/scans/"+started.ID)
	require.Equal(t, http.StatusAccepted, rec.Code)

	final := pollJob(t, s, started.ID, func(b jobBody) bool { return b.Status != "running" })
	assert.Equal(t, "canceled", final.Status)
	assert.Empty(t, final.Error)
	assert.NotNil(t, final.Fornecedores)
}

func TestBackgroundScan_Errors(t *testing.T) {
	s := newTestServer(t, http.NotFound, nil)

	rec := do(s, http.MethodPost, "/api/v1/scans?termo=ab")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/scans/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodDelete, "/api/v1/scans/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPruneJobs(t *testing.T) {
	s := newTestServer(t, http.NotFound, nil)
	now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	s.jobs["old"] = &backgroundJob{ID: "old", Status: "completed", EndedAt: now.Add(-2 * time.Hour)}
	s.jobs["recent"] = &backgroundJob{ID: "recent", Status: "failed", EndedAt: now.Add(-time.Minute)}
	s.jobs["live"] = &backgroundJob{ID: "live", Status: jobRunning}

	s.pruneJobsLocked(now)
	assert.NotContains(t, s.jobs, "old")
	assert.Contains(t, s.jobs, "recent")
	assert.Contains(t, s.jobs, "live")
}

func TestBackgroundScan_SurvivesInteractiveSearch(t *testing.T) {
	entered := make(chan struct{}, 1)
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tamanhoPagina") != "10" {
			fmt.Fprint(w, contractsPage)
			return
		}
		select {
		case entered <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}, nil)

	rec := do(s, http.MethodPost, "/api/v1/scans?termo=autoclave&pageSize=10", "X-Client-ID", "ana")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started jobBody
	decode(t, rec, &started)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("background scan never reached the upstream")
	}

	rec = do(s, http.MethodGet, "/api/v1/fornecedores?termo=autoclave", "X-Client-ID", "ana")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(s, http.MethodGet, "/api/v1/scans/"+started.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var b jobBody
	decode(t, rec, &b)
	assert.Equal(t, "running", b.Status)

	rec = do(s, http.MethodDelete, "/api/v1/scans/"+started.ID)
	require.Equal(t, http.StatusAccepted, rec.Code)
	final := pollJob(t, s, started.ID, func(b jobBody) bool { return b.Status != "running" })
	assert.Equal(t, "canceled", final.Status)
}
