package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/david/radar-licitacoes/internal/comex"
	"github.com/david/radar-licitacoes/internal/pncp"
)

func (s *Server) handleLicitacoes(c echo.Context) error {
	today := s.today()
	end, err := queryDate(c, "dataFim", today)
	if err != nil {
		return s.fail(c, err)
	}
	start, err := queryDate(c, "dataIni", end.AddDate(0, 0, -90))
	if err != nil {
		return s.fail(c, err)
	}

	p := pncp.SearchParams{
		Query:      strings.TrimSpace(c.QueryParam("q")),
		UF:         strings.ToUpper(strings.TrimSpace(c.QueryParam("uf"))),
		Modalidade: s.modalidade(c),
		Start:      start,
		End:        end,
		Page:       queryInt(c, "page", 1, 1, 99999),
		PageSize:   queryInt(c, "pageSize", 50, 10, 50),
	}
	items, err := s.PNCP.SearchLicitacoes(c.Request().Context(), p, s.Cfg.Scan.MaxSpanDays)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":       true,
		"page":     p.Page,
		"pageSize": p.PageSize,
		"total":    len(items),
		"items":    items,
	})
}

// comexResponse flattens the summary next to the ok flag.
type comexResponse struct {
	OK bool `json:"ok"`
	*comex.Summary
}

func (s *Server) handleComex(c echo.Context) error {
	summary, err := s.Comex.Summary(c.Request().Context(), comex.SummaryParams{
		NCM:        c.QueryParam("ncm"),
		YearStart:  queryYear(c, "yearStart"),
		YearEnd:    queryYear(c, "yearEnd"),
		MonthStart: c.QueryParam("monthStart"),
		MonthEnd:   c.QueryParam("monthEnd"),
		Top:        queryInt(c, "top", 10, 5, 50),
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, comexResponse{OK: true, Summary: summary})
}

// queryYear returns 0 (latest available year) when the parameter is missing
// or invalid.
func queryYear(c echo.Context, name string) int {
	y, err := strconv.Atoi(strings.TrimSpace(c.QueryParam(name)))
	if err != nil || y < 0 {
		return 0
	}
	return y
}

func (s *Server) handleComexPing(c echo.Context) error {
	status, body, err := s.Comex.Ping(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true, "status": status, "body": body})
}
