package scan

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/david/radar-licitacoes/internal/apperr"
)

// MinTermLen is the shortest search term accepted, in runes.
const MinTermLen = 3

// Status is the terminal state of a scan.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// Options describe one logical search. Handlers clamp the numeric fields
// before building Options.
type Options struct {
	Term        string
	Start       time.Time
	End         time.Time
	MaxSpanDays int
	PageSize    int
	MaxPages    int // per window
	Delay       time.Duration

	// Top is the size of the final ranking, 0 for all entries.
	Top int
	// Target stops the scan once that many distinct records were found.
	Target int
	// SnapshotTop attaches a live ranking of that size to progress events.
	SnapshotTop int
	// EmitItems streams one item event per newly found record.
	EmitItems bool
}

// Validate rejects options no upstream call should be made for.
func (o Options) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(o.Term)) < MinTermLen {
		return apperr.Validation("termo", "Informe termo com pelo menos %d caracteres.", MinTermLen)
	}
	if o.Start.IsZero() || o.End.IsZero() {
		return apperr.Validation("data", "Informe dataInicial e dataFinal (yyyy-mm-dd).")
	}
	return nil
}

// Result is the outcome of a scan, partial when Status is not completed.
type Result struct {
	Status         Status
	Windows        int
	ScannedPages   int
	ScannedRecords int
	Matched        int
	Found          int
	Top            []ScoredEntry
}

// Scanner drives window splitting, page walking, matching and aggregation
// for one upstream listing.
type Scanner struct {
	Fetcher PageFetcher
	Matcher Matcher
}

// Run scans to completion, cancellation or target and returns the final
// ranking. A canceled scan is not an error. On upstream failure the partial
// result is returned alongside the error.
func (s *Scanner) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.scan(ctx, opts, nil)
}

// sink receives progress and item events. Returning an error aborts the scan.
type sink func(Event) error

func (s *Scanner) scan(ctx context.Context, opts Options, emit sink) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	windows := SplitWindows(opts.Start, opts.End, opts.MaxSpanDays)
	walker := Walker{PageSize: opts.PageSize, MaxPages: opts.MaxPages, Delay: opts.Delay}
	agg := NewAggregator()
	res := &Result{Status: StatusCompleted, Windows: len(windows)}
	term := strings.TrimSpace(opts.Term)

	logger.Info().
		Str("term", term).
		Int("windows", len(windows)).
		Int("page_size", opts.PageSize).
		Int("max_pages", opts.MaxPages).
		Msg("scan started")

	var err error
	targetHit := false
	for i, w := range windows {
		err = walker.Walk(ctx, w, s.Fetcher, func(b Batch) error {
			res.ScannedPages++
			res.ScannedRecords += len(b.Records)

			for _, raw := range b.Records {
				m, ok := s.Matcher.Match(raw)
				if !ok {
					continue
				}
				res.Matched++
				if !agg.add(m) {
					continue
				}
				res.Found = agg.Len()
				if emit != nil && opts.EmitItems {
					item := m
					if err := emit(Event{Type: EventItem, Item: &item}); err != nil {
						return err
					}
				}
				if opts.Target > 0 && res.Found >= opts.Target {
					targetHit = true
					break
				}
			}

			if emit != nil {
				p := &Progress{
					Window:         i + 1,
					Windows:        len(windows),
					Page:           b.Page,
					TotalPages:     b.TotalPages,
					ScannedPages:   res.ScannedPages,
					ScannedRecords: res.ScannedRecords,
					Matched:        res.Matched,
					Found:          res.Found,
				}
				if opts.SnapshotTop > 0 {
					p.Top = agg.Snapshot(opts.SnapshotTop)
				}
				if err := emit(Event{Type: EventProgress, Progress: p}); err != nil {
					return err
				}
			}

			if targetHit {
				return ErrStop
			}
			return nil
		})
		if err != nil || targetHit {
			break
		}
	}

	res.Top = agg.TopN(opts.Top)

	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrCanceled), errors.Is(err, context.Canceled):
		res.Status = StatusCanceled
		err = nil
	default:
		res.Status = StatusFailed
	}

	logger.Info().
		Str("term", term).
		Str("status", string(res.Status)).
		Int("pages", res.ScannedPages).
		Int("records", res.ScannedRecords).
		Int("found", res.Found).
		Bool("target_reached", targetHit).
		Msg("scan finished")

	return res, err
}
