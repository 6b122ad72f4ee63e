package models

// Licitacao is one PNCP publication as listed by /api/v1/licitacoes.
type Licitacao struct {
	ID                string  `json:"id"`
	Titulo            string  `json:"titulo"`
	Orgao             string  `json:"orgao,omitempty"`
	UF                string  `json:"uf,omitempty"`
	Municipio         string  `json:"municipio,omitempty"`
	Modalidade        string  `json:"modalidade,omitempty"`
	ValorEstimado     float64 `json:"valorEstimado,omitempty"`
	DataPublicacao    string  `json:"dataPublicacao,omitempty"`
	PrazoEncerramento string  `json:"prazoEncerramento,omitempty"`
	URL               string  `json:"url,omitempty"`
	Fonte             string  `json:"fonte"`
}

// Documento is an attachment listed on a publication.
type Documento struct {
	Nome string `json:"nome"`
	Tipo string `json:"tipo"`
	URL  string `json:"url"`
}

// Edital is a publication as returned by the single-page marcas search.
type Edital struct {
	Orgao          string      `json:"orgao"`
	Objeto         string      `json:"objeto"`
	DataPublicacao *string     `json:"dataPublicacao"`
	Documentos     []Documento `json:"documentos"`
}

// EditalItem is one streamed marcas match.
type EditalItem struct {
	Orgao          string  `json:"orgao"`
	Objeto         string  `json:"objeto"`
	DataPublicacao *string `json:"dataPublicacao"`
	ProcessoURL    string  `json:"processoUrl"`
	Fonte          string  `json:"fonte"`
}

// Fornecedor is one ranked supplier.
type Fornecedor struct {
	NI               string   `json:"ni"`
	Nome             string   `json:"nome"`
	Score            float64  `json:"score,omitempty"`
	Ocorrencias      int      `json:"ocorrencias"`
	ValorTotal       float64  `json:"valorTotal"`
	UFs              []string `json:"ufs"`
	UltimaPublicacao string   `json:"ultimaPublicacao,omitempty"`
	Exemplos         []string `json:"exemplos"`
}
