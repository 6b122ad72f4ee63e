package api

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/david/radar-licitacoes/internal/apperr"
	"github.com/david/radar-licitacoes/internal/models"
	"github.com/david/radar-licitacoes/internal/pncp"
	"github.com/david/radar-licitacoes/internal/scan"
)

// fornecedoresQuery holds the clamped inputs of a supplier ranking.
type fornecedoresQuery struct {
	Term     string
	Start    time.Time
	End      time.Time
	PageSize int
	MaxPages int
	Top      int
}

func (s *Server) parseFornecedoresQuery(c echo.Context) (fornecedoresQuery, error) {
	q := fornecedoresQuery{
		Term:     strings.TrimSpace(c.QueryParam("termo")),
		PageSize: queryInt(c, "pageSize", 200, 10, 500),
		MaxPages: queryInt(c, "maxPages", scan.DefaultMaxPages, 1, 200),
		Top:      queryInt(c, "top", 30, 5, 200),
	}

	today := s.today()
	var err error
	if q.End, err = queryDate(c, "dataFim", today); err != nil {
		return q, err
	}
	if q.Start, err = queryDate(c, "dataIni", q.End.AddDate(0, 0, -365)); err != nil {
		return q, err
	}
	if q.Start.After(q.End) {
		q.Start, q.End = q.End, q.Start
	}
	return q, nil
}

func (s *Server) fornecedoresOptions(q fornecedoresQuery) scan.Options {
	return scan.Options{
		Term:        q.Term,
		Start:       q.Start,
		End:         q.End,
		MaxSpanDays: s.Cfg.Scan.MaxSpanDays,
		PageSize:    q.PageSize,
		MaxPages:    q.MaxPages,
		Delay:       s.pageDelay(),
		Top:         q.Top,
	}
}

func (q fornecedoresQuery) params() map[string]interface{} {
	return map[string]interface{}{
		"dataIni":  scan.FormatISO(q.Start),
		"dataFim":  scan.FormatISO(q.End),
		"pageSize": q.PageSize,
		"maxPages": q.MaxPages,
		"top":      q.Top,
	}
}

func (s *Server) contractScanner(term, region string) *scan.Scanner {
	return &scan.Scanner{
		Fetcher: pncp.ContractsFetcher{Client: s.PNCP},
		Matcher: scan.ContractMatcher{Term: term, Region: region},
	}
}

func (s *Server) handleFornecedores(c echo.Context) error {
	q, err := s.parseFornecedoresQuery(c)
	if err != nil {
		return s.fail(c, err)
	}
	if q.Term == "" {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":               true,
			"termo":            "",
			"fornecedores":     []models.Fornecedor{},
			"scannedPages":     0,
			"scannedContracts": 0,
		})
	}

	opts := s.fornecedoresOptions(q)
	if err := opts.Validate(); err != nil {
		return s.fail(c, err)
	}

	caller := callerID(c)
	ctx, release := s.scans.Begin(c.Request().Context(), caller)
	defer release()

	run := s.startRun(ctx, models.KindFornecedores, q.Term, caller, q.params())
	res, err := s.contractScanner(q.Term, "").Run(ctx, opts)
	s.finishRun(ctx, run, res, err)
	if err != nil {
		return s.fail(c, err)
	}

	fornecedores := toFornecedores(res.Top)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":                true,
		"status":            res.Status,
		"termo":             q.Term,
		"dataIni":           scan.FormatISO(q.Start),
		"dataFim":           scan.FormatISO(q.End),
		"windows":           res.Windows,
		"scannedPages":      res.ScannedPages,
		"scannedContracts":  res.ScannedRecords,
		"found":             res.Found,
		"totalFornecedores": len(fornecedores),
		"fornecedores":      fornecedores,
	})
}

// handleFornecedoresPage aggregates the matches of a single contracts page so
// clients can drive the pagination themselves.
func (s *Server) handleFornecedoresPage(c echo.Context) error {
	term := strings.TrimSpace(c.QueryParam("termo"))
	if term == "" {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"ok":               true,
			"items":            []models.Fornecedor{},
			"scannedContracts": 0,
			"totalPaginas":     0,
		})
	}

	start, err := queryDate(c, "dataInicial", time.Time{})
	if err != nil {
		return s.fail(c, err)
	}
	end, err := queryDate(c, "dataFinal", time.Time{})
	if err != nil {
		return s.fail(c, err)
	}
	if start.IsZero() || end.IsZero() {
		return s.fail(c, apperr.Validation("data", "dataInicial/dataFinal são obrigatórios (YYYYMMDD)"))
	}
	if start.After(end) {
		start, end = end, start
	}

	pagina := queryInt(c, "pagina", 1, 1, 9999)
	size := queryInt(c, "tamanhoPagina", 200, 10, 500)
	uf := strings.ToUpper(strings.TrimSpace(c.QueryParam("ufOrg")))

	page, err := pncp.ContractsFetcher{Client: s.PNCP}.FetchPage(c.Request().Context(), scan.Window{Start: start, End: end}, pagina, size)
	if err != nil {
		return s.fail(c, err)
	}

	matcher := scan.ContractMatcher{Term: term, Region: uf}
	agg := scan.NewAggregator()
	for _, raw := range page.Records {
		if m, ok := matcher.Match(raw); ok {
			agg.Merge([]scan.MatchedRecord{m})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":               true,
		"totalPaginas":     page.TotalPages,
		"scannedContracts": len(page.Records),
		"items":            toFornecedores(agg.TopN(0)),
	})
}

// fornecedoresEvent is one NDJSON line of the supplier stream.
type fornecedoresEvent struct {
	Type              string              `json:"type"`
	Status            string              `json:"status,omitempty"`
	Message           string              `json:"message,omitempty"`
	Window            int                 `json:"window,omitempty"`
	Windows           int                 `json:"windows"`
	Page              int                 `json:"page,omitempty"`
	TotalPages        int                 `json:"totalPaginas,omitempty"`
	ScannedPages      int                 `json:"scannedPages"`
	ScannedContracts  int                 `json:"scannedContracts"`
	Matched           int                 `json:"matched"`
	TotalFornecedores int                 `json:"totalFornecedores"`
	Fornecedores      []models.Fornecedor `json:"fornecedores"`
}

func (s *Server) handleFornecedoresStream(c echo.Context) error {
	q, err := s.parseFornecedoresQuery(c)
	if err != nil {
		return s.fail(c, err)
	}
	opts := s.fornecedoresOptions(q)
	opts.SnapshotTop = q.Top
	if err := opts.Validate(); err != nil {
		return s.fail(c, err)
	}

	caller := callerID(c)
	ctx, release := s.scans.Begin(c.Request().Context(), caller)
	defer release()

	run := s.startRun(ctx, models.KindFornecedores, q.Term, caller, q.params())
	w := newNDJSONWriter(c)
	last := pump(s.contractScanner(q.Term, "").Stream(ctx, opts), w, release, encodeFornecedoresEvent)
	s.finishRun(ctx, run, last.Result, last.Err)
	return nil
}

func encodeFornecedoresEvent(ev scan.Event) any {
	switch ev.Type {
	case scan.EventProgress:
		p := ev.Progress
		return fornecedoresEvent{
			Type:              string(scan.EventProgress),
			Window:            p.Window,
			Windows:           p.Windows,
			Page:              p.Page,
			TotalPages:        p.TotalPages,
			ScannedPages:      p.ScannedPages,
			ScannedContracts:  p.ScannedRecords,
			Matched:           p.Matched,
			TotalFornecedores: p.Found,
			Fornecedores:      toFornecedores(p.Top),
		}
	case scan.EventDone, scan.EventError:
		out := fornecedoresEvent{Type: string(ev.Type), Fornecedores: []models.Fornecedor{}}
		if ev.Err != nil {
			out.Message = ev.Err.Error()
		}
		if r := ev.Result; r != nil {
			out.Status = string(r.Status)
			out.Windows = r.Windows
			out.ScannedPages = r.ScannedPages
			out.ScannedContracts = r.ScannedRecords
			out.Matched = r.Matched
			out.TotalFornecedores = r.Found
			out.Fornecedores = toFornecedores(r.Top)
		}
		return out
	}
	return nil
}

func toFornecedores(top []scan.ScoredEntry) []models.Fornecedor {
	out := make([]models.Fornecedor, 0, len(top))
	for _, e := range top {
		out = append(out, toFornecedor(e))
	}
	return out
}

func toFornecedor(e scan.ScoredEntry) models.Fornecedor {
	exemplos := e.Samples
	if exemplos == nil {
		exemplos = []string{}
	}
	return models.Fornecedor{
		NI:               e.Key.ID,
		Nome:             e.Key.Name,
		Score:            e.Score,
		Ocorrencias:      e.Occurrences,
		ValorTotal:       math.Round(e.TotalValue*100) / 100,
		UFs:              e.SortedRegions(),
		UltimaPublicacao: e.LastSeen,
		Exemplos:         exemplos,
	}
}
