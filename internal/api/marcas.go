package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/david/radar-licitacoes/internal/apperr"
	"github.com/david/radar-licitacoes/internal/models"
	"github.com/david/radar-licitacoes/internal/pncp"
	"github.com/david/radar-licitacoes/internal/scan"
)

// handleMarcas returns one page of publications with their documents.
func (s *Server) handleMarcas(c echo.Context) error {
	term := strings.TrimSpace(c.QueryParam("termo"))
	start, err := queryDate(c, "dataInicial", time.Time{})
	if err != nil {
		return s.fail(c, err)
	}
	end, err := queryDate(c, "dataFinal", time.Time{})
	if err != nil {
		return s.fail(c, err)
	}
	if term == "" || start.IsZero() || end.IsZero() {
		return s.fail(c, apperr.Validation("termo", "Parâmetros obrigatórios: termo, dataInicial, dataFinal"))
	}

	p := pncp.EditaisParams{
		Term:       term,
		Start:      start,
		End:        end,
		Modalidade: s.modalidade(c),
		UF:         strings.ToUpper(strings.TrimSpace(c.QueryParam("uf"))),
		Page:       queryInt(c, "pagina", 1, 1, 99999),
		PageSize:   queryInt(c, "tamanhoPagina", 20, 1, 50),
	}
	itens, err := s.PNCP.SearchEditais(c.Request().Context(), p)
	if err != nil {
		return s.fail(c, err)
	}

	var uf interface{}
	if p.UF != "" {
		uf = p.UF
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok": true,
		"request": map[string]interface{}{
			"termo":                       p.Term,
			"dataInicial":                 scan.FormatPNCP(p.Start),
			"dataFinal":                   scan.FormatPNCP(p.End),
			"codigoModalidadeContratacao": p.Modalidade,
			"pagina":                      p.Page,
			"tamanhoPagina":               p.PageSize,
			"uf":                          uf,
		},
		"totalRecebido": len(itens),
		"itens":         itens,
	})
}

// marcasEvent is one NDJSON line of the notice stream.
type marcasEvent struct {
	Type         string             `json:"type"`
	Status       string             `json:"status,omitempty"`
	Message      string             `json:"message,omitempty"`
	Page         int                `json:"page,omitempty"`
	Window       int                `json:"window,omitempty"`
	ScannedPages int                `json:"scannedPages"`
	ScannedItems int                `json:"scannedItems"`
	Found        int                `json:"found"`
	Item         *models.EditalItem `json:"item,omitempty"`
}

// handleMarcasStream streams publications whose content mentions the term and
// that link to a purchase process, until target items are found.
func (s *Server) handleMarcasStream(c echo.Context) error {
	term := strings.TrimSpace(c.QueryParam("termo"))
	rawStart := strings.TrimSpace(c.QueryParam("dataInicial"))
	rawEnd := strings.TrimSpace(c.QueryParam("dataFinal"))
	if rawStart == "" || rawEnd == "" {
		return s.fail(c, apperr.Validation("data", "Informe dataInicial e dataFinal (yyyy-mm-dd)."))
	}
	start, errStart := scan.ParseDate(rawStart)
	end, errEnd := scan.ParseDate(rawEnd)
	if errStart != nil || errEnd != nil {
		return s.fail(c, apperr.Validation("data", "Datas inválidas. Use yyyy-mm-dd (ex: 2025-10-01)."))
	}

	uf := strings.ToUpper(strings.TrimSpace(c.QueryParam("uf")))
	modalidade := strings.TrimSpace(c.QueryParam("codigoModalidadeContratacao"))
	onlyPortal := c.QueryParam("onlyPortalCompras") == "1"

	opts := scan.Options{
		Term:        term,
		Start:       start,
		End:         end,
		MaxSpanDays: s.Cfg.Scan.MaxSpanDays,
		PageSize:    queryInt(c, "tamanhoPagina", 50, 1, 50),
		MaxPages:    queryInt(c, "maxPages", 30, 1, 200),
		Delay:       s.pageDelay(),
		Target:      queryInt(c, "target", 30, 1, 500),
		EmitItems:   true,
	}
	if err := opts.Validate(); err != nil {
		return s.fail(c, err)
	}

	scanner := &scan.Scanner{
		Fetcher: pncp.PublicationsFetcher{Client: s.PNCP, Modalidade: modalidade, UF: uf},
		Matcher: scan.NoticeMatcher{Term: term, OnlyPortalCompras: onlyPortal},
	}

	caller := callerID(c)
	ctx, release := s.scans.Begin(c.Request().Context(), caller)
	defer release()

	run := s.startRun(ctx, models.KindMarcas, term, caller, map[string]interface{}{
		"dataInicial":                 scan.FormatISO(start),
		"dataFinal":                   scan.FormatISO(end),
		"uf":                          uf,
		"codigoModalidadeContratacao": modalidade,
		"onlyPortalCompras":           onlyPortal,
		"maxPages":                    opts.MaxPages,
		"tamanhoPagina":               opts.PageSize,
		"target":                      opts.Target,
	})
	w := newNDJSONWriter(c)
	last := pump(scanner.Stream(ctx, opts), w, release, encodeMarcasEvent)
	s.finishRun(ctx, run, last.Result, last.Err)
	return nil
}

func encodeMarcasEvent(ev scan.Event) any {
	switch ev.Type {
	case scan.EventProgress:
		p := ev.Progress
		return marcasEvent{
			Type:         string(scan.EventProgress),
			Page:         p.Page,
			Window:       p.Window,
			ScannedPages: p.ScannedPages,
			ScannedItems: p.ScannedRecords,
			Found:        p.Found,
		}
	case scan.EventItem:
		item := toEditalItem(*ev.Item)
		return marcasEvent{Type: string(scan.EventItem), Item: &item}
	case scan.EventDone, scan.EventError:
		out := marcasEvent{Type: string(ev.Type)}
		if ev.Err != nil {
			out.Message = ev.Err.Error()
		}
		if r := ev.Result; r != nil {
			out.Status = string(r.Status)
			out.ScannedPages = r.ScannedPages
			out.ScannedItems = r.ScannedRecords
			out.Found = r.Found
		}
		return out
	}
	return nil
}

func toEditalItem(m scan.MatchedRecord) models.EditalItem {
	item := models.EditalItem{
		Orgao:       m.Name,
		Objeto:      m.Text,
		ProcessoURL: m.URL,
		Fonte:       m.Source,
	}
	if m.Date != "" {
		date := m.Date
		item.DataPublicacao = &date
	}
	return item
}
