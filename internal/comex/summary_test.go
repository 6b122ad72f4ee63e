package comex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/radar-licitacoes/internal/apperr"
	"github.com/david/radar-licitacoes/internal/upstream"
)

func TestBuildFilter(t *testing.T) {
	f := BuildFilter(Period{YearStart: 2022, YearEnd: 2024, MonthStart: "01", MonthEnd: "06"}, "90189099", DetailUF)

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "2022", doc["yearStart"])
	assert.Equal(t, "2024", doc["yearEnd"])
	assert.Equal(t, 2.0, doc["typeForm"])
	assert.Equal(t, 1.0, doc["typeOrder"])
	assert.Equal(t, "06", doc["monthEnd"])
	assert.Equal(t, []any{map[string]any{"id": "noNcmpt"}}, doc["filterList"])
	assert.Equal(t, []any{map[string]any{"item": []any{"90189099"}, "idInput": "noNcmpt"}}, doc["filterArray"])
	assert.Equal(t, []any{map[string]any{"id": "noUf", "text": ""}}, doc["detailDatabase"])
	assert.Equal(t, true, doc["metricFOB"])
	assert.Equal(t, false, doc["monthDetail"])
}

func TestPickRows(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"data array", `{"data":[{"a":1},{"a":2}],"success":true}`, 2},
		{"result array", `{"result":[{"a":1}]}`, 1},
		{"nested list", `{"data":{"list":[{"a":1},{"a":2},{"a":3}]}}`, 3},
		{"array of arrays", `[[{"a":1}],[]]`, 1},
		{"skips non-objects", `{"data":[{"a":1},"x",null]}`, 1},
		{"unknown", `{"message":"ok"}`, 0},
		{"scalar", `42`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v any
			require.NoError(t, json.Unmarshal([]byte(tt.doc), &v))
			assert.Len(t, PickRows(v), tt.want)
		})
	}
}

func TestGroupAndTop(t *testing.T) {
	rows := []map[string]any{
		{"noUf": "São Paulo", "vlFob": 100.0, "kgLiquido": 10.0},
		{"noUf": "Mato Grosso", "vlfob": "300", "kgLiq": 5.0},
		{"noUf": "São Paulo", "valorFOB": 250.0, "peso": "2"},
		{"vlFob": 1.0},
		{"noUf": "Goiás", "vlFob": "n/d"},
	}

	groups := GroupAndTop(rows, "noUf", 3)
	require.Len(t, groups, 3)
	assert.Equal(t, Group{Key: "São Paulo", FOB: 350, KG: 12, Rows: 2}, groups[0])
	assert.Equal(t, Group{Key: "Mato Grosso", FOB: 300, KG: 5, Rows: 1}, groups[1])
	assert.Equal(t, "—", groups[2].Key)

	assert.Len(t, GroupAndTop(rows, "noUf", 0), 4)
	assert.Empty(t, GroupAndTop(nil, "noUf", 5))
}

func TestNormalizeNCM(t *testing.T) {
	ncm, err := NormalizeNCM("9018.90-99")
	require.NoError(t, err)
	assert.Equal(t, "90189099", ncm)

	_, err = NormalizeNCM("9018")
	var verr *apperr.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestResolvePeriod(t *testing.T) {
	years := YearRange{Min: 1997, Max: 2024}

	tests := []struct {
		name string
		in   SummaryParams
		want Period
	}{
		{"defaults", SummaryParams{}, Period{2024, 2024, "01", "12"}},
		{"future clamped", SummaryParams{YearStart: 2020, YearEnd: 2030}, Period{2020, 2024, "01", "12"}},
		{"too old clamped", SummaryParams{YearStart: 1980, YearEnd: 1999}, Period{1997, 1999, "01", "12"}},
		{"reversed", SummaryParams{YearStart: 2023, YearEnd: 2021, MonthStart: "3", MonthEnd: "09"}, Period{2021, 2023, "03", "09"}},
		{"invalid months", SummaryParams{YearStart: 2022, YearEnd: 2022, MonthStart: "13", MonthEnd: "x"}, Period{2022, 2022, "01", "12"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePeriod(tt.in, years))
		})
	}
}

func newComex(t *testing.T, handler http.HandlerFunc, extraBases ...string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(append(extraBases, srv.URL), upstream.Config{TimeoutSeconds: 5})
	c.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestSummary(t *testing.T) {
	var generalCalls atomic.Int32
	c := newComex(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/general/dates/years":
			fmt.Fprint(w, `{"data":{"min":"1997","max":"2024"}}`)
		case "/general":
			generalCalls.Add(1)
			var f Filter
			assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("filter")), &f))
			assert.Equal(t, "2023", f.YearStart)
			assert.Equal(t, "2024", f.YearEnd)
			if len(f.DetailDatabase) == 1 && f.DetailDatabase[0].ID == "noUf" {
				fmt.Fprint(w, `{"data":[{"noUf":"São Paulo","vlFob":"1000","kgLiquido":"10"},{"noUf":"Paraná","vlFob":500,"kgLiquido":4}]}`)
				return
			}
			fmt.Fprint(w, `{"data":[{"noPaispt":"China","vlFob":900,"kgLiquido":9},{"noPaispt":"Alemanha","vlFob":600,"kgLiquido":5}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	s, err := c.Summary(context.Background(), SummaryParams{NCM: "90189099", YearStart: 2024, YearEnd: 2023, Top: 5})
	require.NoError(t, err)

	assert.Equal(t, int32(2), generalCalls.Load())
	assert.Equal(t, YearRange{Min: 1997, Max: 2024}, s.YearsAvailable)
	assert.Equal(t, Period{2023, 2024, "01", "12"}, s.Period)
	require.Len(t, s.TopUF, 2)
	assert.Equal(t, "São Paulo", s.TopUF[0].Key)
	require.Len(t, s.TopPais, 2)
	assert.Equal(t, "China", s.TopPais[0].Key)
	assert.Equal(t, Totals{FOB: 1500, KG: 14}, s.Total)
	assert.Len(t, s.Notes, 2)
}

func TestSummary_FallsBackAcrossBases(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer dead.Close()

	c := newComex(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/general/dates/years" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	}, dead.URL)

	s, err := c.Summary(context.Background(), SummaryParams{NCM: "90189099", Top: 10})
	require.NoError(t, err)
	assert.Equal(t, YearRange{Min: 1997, Max: 2024}, s.YearsAvailable)
	assert.Empty(t, s.TopUF)
	assert.NotNil(t, s.TopPais)
}

func TestSummary_AllBasesFail(t *testing.T) {
	c := newComex(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html><body><h1>502 Bad Gateway</h1></body></html>")
	})

	_, err := c.Summary(context.Background(), SummaryParams{NCM: "90189099"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, apperr.HTTPStatus(err))
	assert.Contains(t, err.Error(), "502 Bad Gateway")
}

func TestSummary_InvalidNCM(t *testing.T) {
	c := NewClient(nil, upstream.Config{})
	_, err := c.Summary(context.Background(), SummaryParams{NCM: "123"})
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
}

func TestPing(t *testing.T) {
	c := newComex(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"min":1997,"max":2024}}`)
	})

	status, body, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "1997")

	c = newComex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "fora do ar")
	})
	status, body, err = c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "fora do ar", body)
}
