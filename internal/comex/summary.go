package comex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/david/radar-licitacoes/internal/apperr"
)

// Detail groups a /general query.
type Detail string

const (
	DetailUF   Detail = "noUf"
	DetailPais Detail = "noPaispt"
)

type filterItem struct {
	ID string `json:"id"`
}

type filterValue struct {
	Item    []string `json:"item"`
	IDInput string   `json:"idInput"`
}

type detailItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Filter is the JSON document /general expects in its filter parameter.
type Filter struct {
	YearStart       string        `json:"yearStart"`
	YearEnd         string        `json:"yearEnd"`
	TypeForm        int           `json:"typeForm"`  // 1 export, 2 import
	TypeOrder       int           `json:"typeOrder"` // 1 values, 2 detail
	FilterList      []filterItem  `json:"filterList"`
	FilterArray     []filterValue `json:"filterArray"`
	DetailDatabase  []detailItem  `json:"detailDatabase"`
	MonthDetail     bool          `json:"monthDetail"`
	MetricFOB       bool          `json:"metricFOB"`
	MetricKG        bool          `json:"metricKG"`
	MetricStatistic bool          `json:"metricStatistic"`
	MonthStart      string        `json:"monthStart"`
	MonthEnd        string        `json:"monthEnd"`
	FormQueue       string        `json:"formQueue"`
	LangDefault     string        `json:"langDefault"`
}

// Period is an inclusive year and month range.
type Period struct {
	YearStart  int    `json:"yearStart"`
	YearEnd    int    `json:"yearEnd"`
	MonthStart string `json:"monthStart"`
	MonthEnd   string `json:"monthEnd"`
}

// BuildFilter builds an import query for ncm over p, detailed by details.
func BuildFilter(p Period, ncm string, details ...Detail) Filter {
	f := Filter{
		YearStart:   strconv.Itoa(p.YearStart),
		YearEnd:     strconv.Itoa(p.YearEnd),
		TypeForm:    2,
		TypeOrder:   1,
		FilterList:  []filterItem{{ID: "noNcmpt"}},
		FilterArray: []filterValue{{Item: []string{ncm}, IDInput: "noNcmpt"}},
		MetricFOB:   true,
		MetricKG:    true,
		MonthStart:  p.MonthStart,
		MonthEnd:    p.MonthEnd,
		FormQueue:   "general",
		LangDefault: "pt",
	}
	for _, d := range details {
		f.DetailDatabase = append(f.DetailDatabase, detailItem{ID: string(d)})
	}
	return f
}

// PickRows finds the row list in a /general answer: data, result, or the
// first element of a top-level array of arrays.
func PickRows(resp any) []map[string]any {
	switch t := resp.(type) {
	case map[string]any:
		for _, k := range []string{"data", "result"} {
			if list, ok := t[k].([]any); ok {
				return objects(list)
			}
		}
		// some deployments nest the list one level deeper
		if inner, ok := t["data"].(map[string]any); ok {
			if list, ok := inner["list"].([]any); ok {
				return objects(list)
			}
		}
	case []any:
		if len(t) > 0 {
			if list, ok := t[0].([]any); ok {
				return objects(list)
			}
		}
	}
	return nil
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, it := range list {
		if obj, ok := it.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// Group is the total of the rows sharing one key.
type Group struct {
	Key  string  `json:"key"`
	FOB  float64 `json:"fob"`
	KG   float64 `json:"kg"`
	Rows int     `json:"n"`
}

// GroupAndTop sums FOB and KG per value of key and returns the top groups by
// FOB. Rows without the key are grouped under "—".
func GroupAndTop(rows []map[string]any, key string, top int) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, r := range rows {
		k := "—"
		if v, ok := r[key]; ok && v != nil {
			k = fmt.Sprint(v)
		}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].FOB += firstNumber(r, "vlFob", "vlfob", "valorFOB", "fob")
		groups[i].KG += firstNumber(r, "kgLiquido", "kgLiq", "kg", "peso")
		groups[i].Rows++
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].FOB > groups[j].FOB })
	if top > 0 && len(groups) > top {
		groups = groups[:top]
	}
	return groups
}

func firstNumber(r map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		var f float64
		switch t := v.(type) {
		case float64:
			f = t
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return 0
			}
			f = parsed
		default:
			return 0
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	return 0
}

// SummaryParams are the raw inputs of an import summary.
type SummaryParams struct {
	NCM        string
	YearStart  int // 0 = latest year
	YearEnd    int
	MonthStart string
	MonthEnd   string
	Top        int
}

// Summary is the import profile of one NCM.
type Summary struct {
	NCM            string    `json:"ncm"`
	Period         Period    `json:"periodo"`
	YearsAvailable YearRange `json:"yearsAvailable"`
	Total          Totals    `json:"total"`
	TopUF          []Group   `json:"topUF"`
	TopPais        []Group   `json:"topPais"`
	Notes          []string  `json:"notes"`
}

type Totals struct {
	FOB float64 `json:"fob"`
	KG  float64 `json:"kg"`
}

var notes = []string{
	"Comex Stat é agregado: não lista empresas importadoras (nome/CNPJ).",
	"Use Top UF + Top País como 'hotspots' para prospecção fora do Comex.",
}

// NormalizeNCM keeps the digits of s and requires exactly eight.
func NormalizeNCM(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() != 8 {
		return "", apperr.Validation("ncm", "Informe um NCM com 8 dígitos (ex: 90189099).")
	}
	return b.String(), nil
}

// ResolvePeriod clamps years into the available range, orders them and
// defaults invalid months to the full year.
func ResolvePeriod(p SummaryParams, years YearRange) Period {
	clampYear := func(y int) int {
		if y == 0 || y > years.Max {
			return years.Max
		}
		if y < years.Min {
			return years.Min
		}
		return y
	}
	start, end := clampYear(p.YearStart), clampYear(p.YearEnd)
	if start > end {
		start, end = end, start
	}
	return Period{
		YearStart:  start,
		YearEnd:    end,
		MonthStart: month(p.MonthStart, "01"),
		MonthEnd:   month(p.MonthEnd, "12"),
	}
}

func month(s, def string) string {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 12 {
		return def
	}
	return fmt.Sprintf("%02d", n)
}

// Summary runs the by-UF and by-country queries in parallel and ranks both.
// Totals are the sum of the country ranking.
func (c *Client) Summary(ctx context.Context, p SummaryParams) (*Summary, error) {
	ncm, err := NormalizeNCM(p.NCM)
	if err != nil {
		return nil, err
	}

	years := c.Years(ctx)
	period := ResolvePeriod(p, years)

	var rowsUF, rowsPais []map[string]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := c.General(gctx, BuildFilter(period, ncm, DetailUF))
		if err != nil {
			return fmt.Errorf("ComexStat by UF: %w", err)
		}
		rowsUF = PickRows(resp)
		return nil
	})
	g.Go(func() error {
		resp, err := c.General(gctx, BuildFilter(period, ncm, DetailPais))
		if err != nil {
			return fmt.Errorf("ComexStat by country: %w", err)
		}
		rowsPais = PickRows(resp)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &Summary{
		NCM:            ncm,
		Period:         period,
		YearsAvailable: years,
		TopUF:          GroupAndTop(rowsUF, string(DetailUF), p.Top),
		TopPais:        GroupAndTop(rowsPais, string(DetailPais), p.Top),
		Notes:          notes,
	}
	for _, grp := range s.TopPais {
		s.Total.FOB += grp.FOB
		s.Total.KG += grp.KG
	}
	if s.TopUF == nil {
		s.TopUF = []Group{}
	}
	if s.TopPais == nil {
		s.TopPais = []Group{}
	}
	return s, nil
}
