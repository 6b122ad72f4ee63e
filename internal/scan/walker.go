package scan

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/david/radar-licitacoes/internal/apperr"
)

// DefaultMaxPages bounds a walk when the caller leaves MaxPages unset.
// Upstream pagination metadata alone is never trusted to end a walk.
const DefaultMaxPages = 8

// ErrStop ends a walk early without error when returned from a batch callback.
var ErrStop = errors.New("stop walk")

// Page is one upstream listing page.
type Page struct {
	Records []RawRecord
	// TotalPages is the page count reported by the upstream, 0 when absent.
	TotalPages int
}

// PageFetcher performs one page request. Implementations own the HTTP call,
// its timeout and any retry policy.
type PageFetcher interface {
	FetchPage(ctx context.Context, w Window, page, size int) (Page, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, w Window, page, size int) (Page, error)

func (f PageFetcherFunc) FetchPage(ctx context.Context, w Window, page, size int) (Page, error) {
	return f(ctx, w, page, size)
}

// Batch is what the walker hands to its caller after each page.
type Batch struct {
	Window     Window
	Page       int
	TotalPages int
	Records    []RawRecord
}

// Walker pages sequentially through one window.
type Walker struct {
	PageSize int
	MaxPages int
	// Delay is slept between pages. Zero disables it.
	Delay time.Duration
}

// Walk fetches pages 1, 2, ... of w and passes each to fn. It stops when the
// upstream reports the last page, a page comes back empty, or MaxPages is
// reached. The context is checked before every fetch; a canceled walk
// returns apperr.ErrCanceled. Fetch errors end the walk and are returned
// unchanged.
func (wk Walker) Walk(ctx context.Context, w Window, fetcher PageFetcher, fn func(Batch) error) error {
	maxPages := wk.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	logger := zerolog.Ctx(ctx)

	for page := 1; ; page++ {
		if page > 1 && wk.Delay > 0 {
			sleep(ctx, wk.Delay)
		}
		if ctx.Err() != nil {
			return apperr.ErrCanceled
		}

		p, err := fetcher.FetchPage(ctx, w, page, wk.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				return apperr.ErrCanceled
			}
			return err
		}

		logger.Debug().
			Str("window", w.String()).
			Int("page", page).
			Int("total_pages", p.TotalPages).
			Int("records", len(p.Records)).
			Msg("page fetched")

		if err := fn(Batch{Window: w, Page: page, TotalPages: p.TotalPages, Records: p.Records}); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}

		if p.TotalPages > 0 && page >= p.TotalPages {
			return nil
		}
		if len(p.Records) == 0 {
			return nil
		}
		if page >= maxPages {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
