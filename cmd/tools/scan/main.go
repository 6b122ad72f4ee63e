package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/david/radar-licitacoes/internal/config"
	"github.com/david/radar-licitacoes/internal/pncp"
	"github.com/david/radar-licitacoes/internal/scan"
)

type options struct {
	term     string
	from     string
	to       string
	uf       string
	pageSize int
	maxPages int
	top      int
}

func main() {
	v := config.NewViper()
	var opts options

	rootCmd := &cobra.Command{
		Use:   "scan --termo TERM",
		Short: "Rank PNCP suppliers for a term and print the result as a table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.EnvFrom(v), opts)
		},
	}
	f := rootCmd.Flags()
	f.StringVarP(&opts.term, "termo", "t", "", "search term (at least 3 characters)")
	f.StringVar(&opts.from, "from", "", "first day, yyyy-mm-dd (default: 365 days ago)")
	f.StringVar(&opts.to, "to", "", "last day, yyyy-mm-dd (default: today)")
	f.StringVar(&opts.uf, "uf", "", "keep only contracts of this buying agency UF")
	f.IntVar(&opts.pageSize, "page-size", 200, "PNCP page size (10..500)")
	f.IntVar(&opts.maxPages, "max-pages", scan.DefaultMaxPages, "pages per 365-day window")
	f.IntVar(&opts.top, "top", 30, "rows to print")
	f.String("config", "", "endpoints YAML file (CONFIG_PATH)")
	_ = v.BindPFlag("config_path", f.Lookup("config"))
	_ = rootCmd.MarkFlagRequired("termo")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, env config.Env, opts options) error {
	if env.LogFormat == "json" {
		env.LogFormat = "console"
	}
	logger := env.NewLogger(os.Stderr)
	ctx = logger.WithContext(ctx)

	cfg, err := config.Resolve(env)
	if err != nil {
		return err
	}

	end := time.Now().UTC()
	if opts.to != "" {
		if end, err = scan.ParseDate(opts.to); err != nil {
			return err
		}
	}
	start := end.AddDate(0, 0, -365)
	if opts.from != "" {
		if start, err = scan.ParseDate(opts.from); err != nil {
			return err
		}
	}

	client := pncp.NewClient(cfg.PNCP.BaseURL, cfg.PNCP.Fetch.Upstream("PNCP"))
	scanner := &scan.Scanner{
		Fetcher: pncp.ContractsFetcher{Client: client},
		Matcher: scan.ContractMatcher{Term: opts.term, Region: strings.ToUpper(opts.uf)},
	}

	began := time.Now()
	res, err := scanner.Run(ctx, scan.Options{
		Term:        opts.term,
		Start:       start,
		End:         end,
		MaxSpanDays: cfg.Scan.MaxSpanDays,
		PageSize:    opts.pageSize,
		MaxPages:    opts.maxPages,
		Delay:       time.Duration(cfg.Scan.PageDelayMS) * time.Millisecond,
		Top:         opts.top,
	})
	if res == nil {
		return err
	}

	printRanking(res, time.Since(began))
	return err
}

func printRanking(res *scan.Result, took time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Score", "NI", "Fornecedor", "Ocorr.", "Valor total", "UFs", "Última publicação"})

	for i, e := range res.Top {
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.1f", e.Score),
			e.Key.ID,
			text.Trim(e.Key.Name, 40),
			e.Occurrences,
			fmt.Sprintf("%.2f", e.TotalValue),
			strings.Join(e.SortedRegions(), ","),
			e.LastSeen,
		})
	}
	t.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d found / %d matched", res.Found, res.Matched), "", "",
		fmt.Sprintf("%d pages", res.ScannedPages), fmt.Sprintf("%s in %s", res.Status, took.Round(time.Millisecond))})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()
}
