package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/radar-licitacoes/internal/config"
	"github.com/david/radar-licitacoes/internal/db"
)

func main() {
	v := config.NewViper()
	var filter db.RunFilter

	rootCmd := &cobra.Command{
		Use:   "check_runs",
		Short: "Print the most recent scan runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.EnvFrom(v), filter)
		},
	}
	f := rootCmd.Flags()
	f.StringVar(&filter.Kind, "kind", "", "fornecedores or marcas")
	f.StringVar(&filter.Status, "status", "", "running, completed, canceled or failed")
	f.StringVar(&filter.Caller, "caller", "", "caller id or IP")
	f.IntVar(&filter.Limit, "limit", 10, "rows to show")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, env config.Env, filter db.RunFilter) error {
	if env.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	pool, err := db.Connect(ctx, env.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	runs, err := db.NewRunStore(pool).ListRuns(ctx, filter)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Kind", "Term", "Caller", "Status", "Pages", "Records", "Found", "Duration", "Started At", "Error"})

	for _, r := range runs {
		duration := "Running..."
		if r.CompletedAt != nil {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}
		t.AppendRow(table.Row{r.Kind, r.Term, r.Caller, r.Status, r.PagesScanned, r.RecordsScanned, r.Found, duration, r.StartedAt.Format("2006-01-02 15:04:05"), errMsg})
	}
	t.Render()
	return nil
}
