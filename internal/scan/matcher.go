package scan

import (
	"bytes"
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/david/radar-licitacoes/internal/textutil"
)

const (
	portalComprasHost = "portaldecompraspublicas.com.br"

	unknownAgency = "Órgão não informado"
	unknownObject = "Objeto não informado"
)

// MatchedRecord is the normalized projection of a RawRecord that passed the
// term filter.
type MatchedRecord struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Text   string  `json:"text"`
	Amount float64 `json:"amount"`
	Region string  `json:"region,omitempty"`
	Date   string  `json:"date,omitempty"`
	URL    string  `json:"url,omitempty"`
	Source string  `json:"source,omitempty"`
}

// Key is the identity of an aggregate entry.
type Key struct {
	ID   string
	Name string
}

func (m MatchedRecord) Key() Key {
	return Key{ID: m.ID, Name: m.Name}
}

// Matcher projects a raw record and reports whether it matches. Malformed
// records are rejected, never panicked on.
type Matcher interface {
	Match(raw RawRecord) (MatchedRecord, bool)
}

// ContractMatcher matches PNCP contracts (/v1/contratos) whose object
// description contains Term and groups them by supplier.
type ContractMatcher struct {
	Term string
	// Region, when set, keeps only contracts of that buying agency UF.
	Region string
}

func (m ContractMatcher) Match(raw RawRecord) (MatchedRecord, bool) {
	region := strings.ToUpper(raw.String("unidadeOrgao.ufSigla"))
	if m.Region != "" && !strings.EqualFold(m.Region, region) {
		return MatchedRecord{}, false
	}

	text := textutil.Sanitize(raw.String("objetoContrato"))
	if text == "" || !textutil.ContainsFolded(text, m.Term) {
		return MatchedRecord{}, false
	}

	id := raw.String("niFornecedor")
	name := textutil.Sanitize(raw.String("nomeRazaoSocialFornecedor"))
	if id == "" || name == "" {
		return MatchedRecord{}, false
	}

	return MatchedRecord{
		ID:     id,
		Name:   name,
		Text:   text,
		Amount: raw.FirstNumber("valorGlobal", "valorInicial"),
		Region: region,
		Date:   raw.String("dataPublicacaoPncp"),
	}, true
}

// NoticeMatcher matches PNCP publications against the whole record and keeps
// only those carrying a link to the purchase process.
type NoticeMatcher struct {
	Term              string
	OnlyPortalCompras bool
}

func (m NoticeMatcher) Match(raw RawRecord) (MatchedRecord, bool) {
	if !textutil.ContainsFolded(recordBlob(raw), m.Term) {
		return MatchedRecord{}, false
	}

	processURL := PickProcessURL(raw)
	if processURL == "" {
		return MatchedRecord{}, false
	}
	host := hostOf(processURL)
	if m.OnlyPortalCompras && !strings.Contains(host, portalComprasHost) {
		return MatchedRecord{}, false
	}

	name := textutil.Sanitize(raw.FirstString("orgaoEntidade.razaoSocial", "orgaoEntidade.nome", "orgao.nome"))
	if name == "" {
		name = unknownAgency
	}
	text := textutil.Sanitize(raw.FirstString("objetoCompra", "objeto", "descricao"))
	if text == "" {
		text = unknownObject
	}
	id := raw.String("numeroControlePNCP")
	if id == "" {
		id = processURL
	}

	return MatchedRecord{
		ID:     id,
		Name:   name,
		Text:   text,
		Amount: raw.FirstNumber("valorTotalEstimado", "valorTotalHomologado"),
		Region: strings.ToUpper(raw.String("unidadeOrgao.ufSigla")),
		Date:   raw.FirstString("dataPublicacao", "dataPublicacaoPncp", "data"),
		URL:    processURL,
		Source: host,
	}, true
}

func recordBlob(raw RawRecord) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(raw)); err != nil {
		return ""
	}
	return buf.String()
}

var httpURL = regexp.MustCompile(`(?i)^https?://\S+`)

// PickProcessURL returns the most useful purchase process link found
// anywhere in raw: a Portal de Compras Públicas link first, then
// compras.gov.br or serpro.gov.br, then the first link. Object keys are
// visited in sorted order.
func PickProcessURL(raw RawRecord) string {
	urls := collectURLs(map[string]any(raw), nil)

	for _, u := range urls {
		if strings.Contains(hostOf(u), portalComprasHost) {
			return u
		}
	}
	for _, u := range urls {
		h := hostOf(u)
		if strings.Contains(h, "compras.gov.br") || strings.Contains(h, "serpro.gov.br") {
			return u
		}
	}
	if len(urls) > 0 {
		return urls[0]
	}
	return ""
}

func collectURLs(v any, out []string) []string {
	switch t := v.(type) {
	case string:
		if httpURL.MatchString(t) {
			out = append(out, t)
		}
	case []any:
		for _, it := range t {
			out = collectURLs(it, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = collectURLs(t[k], out)
		}
	case RawRecord:
		out = collectURLs(map[string]any(t), out)
	}
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
