package scan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contract(ni, nome, objeto, uf string, valor any) RawRecord {
	r := RawRecord{
		"niFornecedor":              ni,
		"nomeRazaoSocialFornecedor": nome,
		"objetoContrato":            objeto,
		"dataPublicacaoPncp":        "2025-03-01T10:00:00",
		"unidadeOrgao":              map[string]any{"ufSigla": uf},
	}
	if valor != nil {
		r["valorGlobal"] = valor
	}
	return r
}

func TestContractMatcher_DiacriticInsensitive(t *testing.T) {
	tests := []struct {
		name   string
		term   string
		objeto string
		want   bool
	}{
		{"accented text, plain term", "estetoscopio", "Aquisição de ESTETOSCÓPIO adulto", true},
		{"plain text, accented term", "Estetoscópio", "aquisicao de estetoscopio", true},
		{"cedilla", "aquisicao", "AQUISIÇÃO de material", true},
		{"no match", "autoclave", "Aquisição de estetoscópio", false},
		{"empty object", "autoclave", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ContractMatcher{Term: tt.term}.Match(contract("123", "ACME LTDA", tt.objeto, "SP", 10.0))
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestContractMatcher_Extraction(t *testing.T) {
	raw := contract(" 123 ", "ACME <b>LTDA</b>", "Autoclave   horizontal", "mt", nil)
	raw["valorInicial"] = "1500.5"

	m, ok := ContractMatcher{Term: "autoclave"}.Match(raw)
	require.True(t, ok)
	assert.Equal(t, "123", m.ID)
	assert.Equal(t, "ACME LTDA", m.Name)
	assert.Equal(t, "Autoclave horizontal", m.Text)
	assert.Equal(t, 1500.5, m.Amount)
	assert.Equal(t, "MT", m.Region)
	assert.Equal(t, "2025-03-01T10:00:00", m.Date)
}

func TestContractMatcher_Malformed(t *testing.T) {
	m := ContractMatcher{Term: "autoclave"}

	tests := []struct {
		name string
		raw  RawRecord
		want bool
	}{
		{"missing supplier id", contract("", "ACME", "autoclave", "SP", 1.0), false},
		{"missing supplier name", contract("1", "  ", "autoclave", "SP", 1.0), false},
		{"object of wrong type", RawRecord{"niFornecedor": "1", "nomeRazaoSocialFornecedor": "A", "objetoContrato": []any{"autoclave"}}, false},
		{"empty record", RawRecord{}, false},
		{"agency not an object", RawRecord{"niFornecedor": "1", "nomeRazaoSocialFornecedor": "A", "objetoContrato": "autoclave", "unidadeOrgao": "SP"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ok bool
			assert.NotPanics(t, func() { _, ok = m.Match(tt.raw) })
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestContractMatcher_NonNumericAmountIsZero(t *testing.T) {
	m, ok := ContractMatcher{Term: "autoclave"}.Match(contract("1", "A", "autoclave", "SP", "n/d"))
	require.True(t, ok)
	assert.Zero(t, m.Amount)
}

func TestContractMatcher_RegionFilter(t *testing.T) {
	m := ContractMatcher{Term: "autoclave", Region: "mt"}

	_, ok := m.Match(contract("1", "A", "autoclave", "SP", 1.0))
	assert.False(t, ok)

	_, ok = m.Match(contract("1", "A", "autoclave", "MT", 1.0))
	assert.True(t, ok)
}

func notice(t *testing.T, doc string) RawRecord {
	t.Helper()
	var r RawRecord
	require.NoError(t, json.Unmarshal([]byte(doc), &r))
	return r
}

func TestNoticeMatcher_PicksPortalComprasURL(t *testing.T) {
	raw := notice(t, `{
		"numeroControlePNCP": "00394460000141-1-000123/2025",
		"objetoCompra": "Registro de preços para aquisição de luvas cirúrgicas",
		"orgaoEntidade": {"razaoSocial": "Prefeitura de Cuiabá"},
		"unidadeOrgao": {"ufSigla": "MT"},
		"dataPublicacaoPncp": "2025-04-02T08:00:00",
		"linkSistemaOrigem": "https://cnetmobile.estaleiro.serpro.gov.br/comprasnet-web/public/compras/123",
		"documentos": [{"url": "https://www.portaldecompraspublicas.com.br/processos/mt/456"}]
	}`)

	m, ok := NoticeMatcher{Term: "luvas cirurgicas"}.Match(raw)
	require.True(t, ok)
	assert.Equal(t, "https://www.portaldecompraspublicas.com.br/processos/mt/456", m.URL)
	assert.Equal(t, "www.portaldecompraspublicas.com.br", m.Source)
	assert.Equal(t, "Prefeitura de Cuiabá", m.Name)
	assert.Equal(t, "00394460000141-1-000123/2025", m.ID)
	assert.Equal(t, "2025-04-02T08:00:00", m.Date)
	assert.Equal(t, "MT", m.Region)
}

func TestNoticeMatcher_OnlyPortalCompras(t *testing.T) {
	raw := notice(t, `{
		"objetoCompra": "Aquisição de luvas",
		"linkSistemaOrigem": "https://cnetmobile.estaleiro.serpro.gov.br/compras/1"
	}`)

	m, ok := NoticeMatcher{Term: "luvas"}.Match(raw)
	require.True(t, ok)
	assert.Equal(t, "Órgão não informado", m.Name)
	assert.Equal(t, m.URL, m.ID)

	_, ok = NoticeMatcher{Term: "luvas", OnlyPortalCompras: true}.Match(raw)
	assert.False(t, ok)
}

func TestNoticeMatcher_MatchesAnyField(t *testing.T) {
	raw := notice(t, `{
		"objetoCompra": "Material hospitalar",
		"informacaoComplementar": "Inclui ESTETOSCÓPIOS e esfigmomanômetros",
		"linkSistemaOrigem": "https://example.org/p/1"
	}`)
	_, ok := NoticeMatcher{Term: "estetoscopio"}.Match(raw)
	assert.True(t, ok)
}

func TestNoticeMatcher_RequiresURL(t *testing.T) {
	raw := notice(t, `{"objetoCompra": "Aquisição de luvas"}`)
	_, ok := NoticeMatcher{Term: "luvas"}.Match(raw)
	assert.False(t, ok)
}

func TestPickProcessURL_Priority(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"compras.gov.br over other hosts",
			`{"a": "https://example.org/x", "b": "https://www.compras.gov.br/edital"}`,
			"https://www.compras.gov.br/edital",
		},
		{
			"first url in key order",
			`{"z": "https://z.example.org", "a": "https://a.example.org"}`,
			"https://a.example.org",
		},
		{
			"ignores non-urls",
			`{"a": "ftp://files.example.org", "b": "not a url"}`,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickProcessURL(notice(t, tt.doc)))
		})
	}
}

func TestRawRecord_Accessors(t *testing.T) {
	raw := notice(t, `{"a": {"b": {"c": " x "}}, "n": 12.5, "s": "7", "bad": "abc", "nil": null}`)

	assert.Equal(t, "x", raw.String("a.b.c"))
	assert.Equal(t, "", raw.String("a.b.missing"))
	assert.Equal(t, "", raw.String("a.b.c.d"))
	assert.Equal(t, "12.5", raw.String("n"))

	f, ok := raw.Number("s")
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	_, ok = raw.Number("bad")
	assert.False(t, ok)
	_, ok = raw.Lookup("nil")
	assert.False(t, ok)

	assert.Equal(t, 12.5, raw.FirstNumber("bad", "missing", "n"))
	assert.Equal(t, "x", raw.FirstString("nil", "a.b.c"))
}
