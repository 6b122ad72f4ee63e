// Package pncp talks to the PNCP consulta API: contracts and publication
// listings, paged and bounded to 365-day date ranges.
package pncp

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/david/radar-licitacoes/internal/scan"
	"github.com/david/radar-licitacoes/internal/upstream"
)

const (
	DefaultBaseURL = "https://pncp.gov.br/api/consulta"

	contractsPath    = "/v1/contratos"
	publicationsPath = "/v1/contratacoes/publicacao"
)

// Client issues PNCP listing requests.
type Client struct {
	BaseURL string
	fetcher *upstream.Fetcher
}

func NewClient(baseURL string, cfg upstream.Config) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.Service == "" {
		cfg.Service = "PNCP"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		fetcher: upstream.NewFetcher(cfg),
	}
}

type pageResponse struct {
	Data         json.RawMessage `json:"data"`
	TotalPaginas any             `json:"totalPaginas"`
}

// Page fetches one listing page. A 204 or empty body is an empty page; a
// data field that is not an array yields no records, and array elements
// that are not objects are skipped.
func (c *Client) Page(ctx context.Context, path string, q url.Values) (scan.Page, error) {
	var resp pageResponse
	ok, err := c.fetcher.GetJSON(ctx, c.BaseURL+path+"?"+q.Encode(), &resp)
	if err != nil || !ok {
		return scan.Page{}, err
	}
	return scan.Page{Records: decodeRecords(resp.Data), TotalPages: totalPages(resp.TotalPaginas)}, nil
}

// decodeRecords keeps the object elements of a JSON array.
func decodeRecords(data json.RawMessage) []scan.RawRecord {
	var elems []json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &elems) != nil {
		return nil
	}
	records := make([]scan.RawRecord, 0, len(elems))
	for _, elem := range elems {
		var r scan.RawRecord
		if err := json.Unmarshal(elem, &r); err != nil || r == nil {
			continue
		}
		records = append(records, r)
	}
	return records
}

// totalPages reads totalPaginas as a number or numeric string. Anything
// else counts as not reported.
func totalPages(v any) int {
	n, ok := scan.RawRecord{"totalPaginas": v}.Number("totalPaginas")
	if !ok || n < 1 {
		return 0
	}
	return int(n)
}

func windowQuery(w scan.Window, page, size int) url.Values {
	q := url.Values{}
	q.Set("dataInicial", scan.FormatPNCP(w.Start))
	q.Set("dataFinal", scan.FormatPNCP(w.End))
	q.Set("pagina", strconv.Itoa(page))
	q.Set("tamanhoPagina", strconv.Itoa(size))
	return q
}

// ContractsFetcher pages through /v1/contratos.
type ContractsFetcher struct {
	Client *Client
}

func (f ContractsFetcher) FetchPage(ctx context.Context, w scan.Window, page, size int) (scan.Page, error) {
	return f.Client.Page(ctx, contractsPath, windowQuery(w, page, size))
}

// PublicationsFetcher pages through /v1/contratacoes/publicacao.
type PublicationsFetcher struct {
	Client     *Client
	Modalidade string
	UF         string
	// Keyword is sent as palavraChave; empty leaves the filter to the matcher.
	Keyword string
}

func (f PublicationsFetcher) FetchPage(ctx context.Context, w scan.Window, page, size int) (scan.Page, error) {
	q := windowQuery(w, page, size)
	if f.Modalidade != "" {
		q.Set("codigoModalidadeContratacao", f.Modalidade)
	}
	if f.UF != "" {
		q.Set("uf", strings.ToUpper(f.UF))
	}
	if f.Keyword != "" {
		q.Set("palavraChave", f.Keyword)
	}
	return f.Client.Page(ctx, publicationsPath, q)
}
