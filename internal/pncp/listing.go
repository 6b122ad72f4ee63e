package pncp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/david/radar-licitacoes/internal/models"
	"github.com/david/radar-licitacoes/internal/scan"
	"github.com/david/radar-licitacoes/internal/textutil"
)

// SearchParams filter a publications listing.
type SearchParams struct {
	Query      string
	UF         string
	Modalidade string
	Start      time.Time
	End        time.Time
	Page       int
	PageSize   int
}

// SearchLicitacoes requests the same page number in every 365-day window of
// the range and merges the results, dropping repeated identifiers.
func (c *Client) SearchLicitacoes(ctx context.Context, p SearchParams, maxSpanDays int) ([]models.Licitacao, error) {
	f := PublicationsFetcher{Client: c, Modalidade: p.Modalidade, UF: p.UF, Keyword: strings.TrimSpace(p.Query)}
	windows := scan.SplitWindows(p.Start, p.End, maxSpanDays)

	all := []models.Licitacao{}
	seen := make(map[string]struct{})
	for _, w := range windows {
		page, err := f.FetchPage(ctx, w, p.Page, p.PageSize)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", w, err)
		}
		for _, raw := range page.Records {
			lic := ToLicitacao(raw)
			if _, dup := seen[lic.ID]; dup {
				continue
			}
			seen[lic.ID] = struct{}{}
			all = append(all, lic)
		}
	}

	zerolog.Ctx(ctx).Debug().
		Int("windows", len(windows)).
		Int("items", len(all)).
		Msg("licitacoes listed")
	return all, nil
}

// ToLicitacao maps a raw publication to the listing shape.
func ToLicitacao(raw scan.RawRecord) models.Licitacao {
	id := raw.String("numeroControlePNCP")
	if id == "" {
		id = fmt.Sprintf("%s_%s_%s",
			orDefault(raw.String("orgaoEntidade.cnpj"), "semcnpj"),
			orDefault(raw.String("anoCompra"), "0"),
			orDefault(raw.String("sequencialCompra"), "0"))
	}

	return models.Licitacao{
		ID:                id,
		Titulo:            orDefault(textutil.Sanitize(raw.FirstString("objetoCompra", "objeto", "titulo")), "Sem título"),
		Orgao:             textutil.Sanitize(raw.String("orgaoEntidade.razaoSocial")),
		UF:                raw.FirstString("unidadeOrgao.ufSigla", "orgaoEntidade.uf"),
		Municipio:         raw.FirstString("unidadeOrgao.municipioNome", "orgaoEntidade.municipio"),
		Modalidade:        raw.String("modalidadeNome"),
		ValorEstimado:     raw.FirstNumber("valorTotalEstimado"),
		DataPublicacao:    raw.FirstString("dataPublicacaoPncp", "dataInclusao"),
		PrazoEncerramento: raw.String("dataEncerramentoProposta"),
		URL:               raw.FirstString("linkSistemaOrigem", "linkProcessoEletronico"),
		Fonte:             "PNCP",
	}
}

// EditaisParams select one page of publications for the marcas search.
type EditaisParams struct {
	Term       string
	Start      time.Time
	End        time.Time
	Modalidade string
	UF         string
	Page       int
	PageSize   int
}

// SearchEditais fetches one publications page filtered by keyword and maps
// the attached documents.
func (c *Client) SearchEditais(ctx context.Context, p EditaisParams) ([]models.Edital, error) {
	f := PublicationsFetcher{Client: c, Modalidade: p.Modalidade, UF: p.UF, Keyword: p.Term}
	page, err := f.FetchPage(ctx, scan.Window{Start: p.Start, End: p.End}, p.Page, p.PageSize)
	if err != nil {
		return nil, err
	}

	out := make([]models.Edital, 0, len(page.Records))
	for _, raw := range page.Records {
		out = append(out, ToEdital(raw))
	}
	return out, nil
}

// ToEdital maps a raw publication and its documentos list.
func ToEdital(raw scan.RawRecord) models.Edital {
	e := models.Edital{
		Orgao:      orDefault(textutil.Sanitize(raw.String("orgaoEntidade.razaoSocial")), "--"),
		Objeto:     orDefault(textutil.Sanitize(raw.String("objetoCompra")), "--"),
		Documentos: []models.Documento{},
	}
	if d := raw.FirstString("dataPublicacaoPncp", "dataPublicacao"); d != "" {
		e.DataPublicacao = &d
	}

	docs, _ := raw.Lookup("documentos")
	list, _ := docs.([]any)
	for _, it := range list {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		doc := scan.RawRecord(obj)
		e.Documentos = append(e.Documentos, models.Documento{
			Nome: orDefault(doc.FirstString("titulo", "nome", "descricao"), "Documento"),
			Tipo: doc.FirstString("tipoDocumento", "tipo"),
			URL:  doc.FirstString("url", "link"),
		})
	}
	return e
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
