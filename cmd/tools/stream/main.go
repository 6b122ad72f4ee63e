package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/david/radar-licitacoes/internal/models"
)

type options struct {
	baseURL    string
	kind       string
	term       string
	from       string
	to         string
	uf         string
	onlyPortal bool
	target     int
	clientID   string
	timeout    time.Duration
}

// event is the union of the marcas and fornecedores stream lines.
type event struct {
	Type              string              `json:"type"`
	Status            string              `json:"status"`
	Message           string              `json:"message"`
	Page              int                 `json:"page"`
	Window            int                 `json:"window"`
	Windows           int                 `json:"windows"`
	ScannedPages      int                 `json:"scannedPages"`
	ScannedItems      int                 `json:"scannedItems"`
	ScannedContracts  int                 `json:"scannedContracts"`
	Found             int                 `json:"found"`
	TotalFornecedores int                 `json:"totalFornecedores"`
	Item              *models.EditalItem  `json:"item"`
	Fornecedores      []models.Fornecedor `json:"fornecedores"`
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "stream --termo TERM",
		Short: "Follow a marcas or fornecedores NDJSON stream and print what it finds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := rootCmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "http://localhost:8081", "API base URL")
	f.StringVar(&opts.kind, "kind", "marcas", "stream to follow: marcas or fornecedores")
	f.StringVarP(&opts.term, "termo", "t", "", "search term")
	f.StringVar(&opts.from, "from", "", "first day, yyyy-mm-dd")
	f.StringVar(&opts.to, "to", "", "last day, yyyy-mm-dd")
	f.StringVar(&opts.uf, "uf", "", "UF filter (marcas)")
	f.BoolVar(&opts.onlyPortal, "only-portal", false, "keep only Portal de Compras Públicas links (marcas)")
	f.IntVar(&opts.target, "target", 30, "stop after this many items (marcas)")
	f.StringVar(&opts.clientID, "client-id", "stream-cli", "X-Client-ID sent to the server")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall timeout")
	_ = rootCmd.MarkFlagRequired("termo")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(parent context.Context, opts options) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	reqURL, err := buildURL(opts)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Client-ID", opts.clientID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			return fmt.Errorf("http %d: %s", resp.StatusCode, payload.Error)
		}
		return fmt.Errorf("http %d", resp.StatusCode)
	}

	var items []models.EditalItem
	last, err := consume(resp.Body, func(ev event) {
		switch ev.Type {
		case "progress":
			logger.Info().
				Int("window", ev.Window).
				Int("page", ev.Page).
				Int("pages", ev.ScannedPages).
				Int("found", max(ev.Found, ev.TotalFornecedores)).
				Msg("progress")
		case "item":
			if ev.Item != nil {
				items = append(items, *ev.Item)
				logger.Info().Str("orgao", ev.Item.Orgao).Str("url", ev.Item.ProcessoURL).Msg("item")
			}
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	switch last.Type {
	case "error":
		return fmt.Errorf("stream failed: %s", last.Message)
	case "":
		logger.Warn().Msg("stream ended without a done event")
	}

	if opts.kind == "fornecedores" {
		printFornecedores(last.Fornecedores)
	} else {
		printItems(items)
	}
	return nil
}

// consume decodes one event per line and returns the last one.
func consume(r io.Reader, fn func(event)) (event, error) {
	var last event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return last, fmt.Errorf("bad stream line %q: %w", line, err)
		}
		fn(ev)
		last = ev
	}
	return last, sc.Err()
}

func buildURL(opts options) (string, error) {
	var path string
	q := url.Values{}
	q.Set("termo", opts.term)

	switch opts.kind {
	case "marcas":
		path = "/api/v1/marcas/stream"
		q.Set("dataInicial", opts.from)
		q.Set("dataFinal", opts.to)
		q.Set("target", strconv.Itoa(opts.target))
		if opts.uf != "" {
			q.Set("uf", opts.uf)
		}
		if opts.onlyPortal {
			q.Set("onlyPortalCompras", "1")
		}
	case "fornecedores":
		path = "/api/v1/fornecedores/stream"
		if opts.from != "" {
			q.Set("dataIni", opts.from)
		}
		if opts.to != "" {
			q.Set("dataFim", opts.to)
		}
	default:
		return "", fmt.Errorf("unknown kind %q (use marcas or fornecedores)", opts.kind)
	}

	u, err := url.Parse(strings.TrimRight(opts.baseURL, "/") + path)
	if err != nil {
		return "", err
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func printItems(items []models.EditalItem) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Órgão", "Objeto", "Publicação", "Fonte", "Processo"})
	for i, it := range items {
		pub := ""
		if it.DataPublicacao != nil {
			pub = *it.DataPublicacao
		}
		t.AppendRow(table.Row{i + 1, text.Trim(it.Orgao, 30), text.Trim(it.Objeto, 50), pub, it.Fonte, it.ProcessoURL})
	}
	t.Render()
}

func printFornecedores(list []models.Fornecedor) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Score", "NI", "Fornecedor", "Ocorr.", "Valor total", "UFs"})
	for i, f := range list {
		t.AppendRow(table.Row{i + 1, f.Score, f.NI, text.Trim(f.Nome, 40), f.Ocorrencias, fmt.Sprintf("%.2f", f.ValorTotal), strings.Join(f.UFs, ",")})
	}
	t.Render()
}
