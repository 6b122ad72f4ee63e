package scan

import (
	"context"

	"github.com/david/radar-licitacoes/internal/apperr"
)

// EventType tags a stream event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventItem     EventType = "item"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Progress is the scan state after one page.
type Progress struct {
	Window         int
	Windows        int
	Page           int
	TotalPages     int
	ScannedPages   int
	ScannedRecords int
	Matched        int
	Found          int
	// Top is the live ranking, set when Options.SnapshotTop > 0.
	Top []ScoredEntry
}

// Event is one element of a scan stream. The field matching Type is set:
// Progress, Item, Err (error, with the partial Result) or Result (done).
type Event struct {
	Type     EventType
	Progress *Progress
	Item     *MatchedRecord
	Err      error
	Result   *Result
}

// Terminal reports whether e is the last event of its stream.
func (e Event) Terminal() bool {
	return e.Type == EventError || e.Type == EventDone
}

// Stream runs the scan in a background goroutine and returns its events:
// progress after every page, an item per newly found record when
// Options.EmitItems is set, then one error or done event. The channel is
// closed after the terminal event; consumers must drain it until then.
//
// Canceling ctx stops the scan before its next fetch and ends the stream
// with a done event whose Result.Status is StatusCanceled.
func (s *Scanner) Stream(ctx context.Context, opts Options) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		if err := opts.Validate(); err != nil {
			events <- Event{Type: EventError, Err: err}
			return
		}

		res, err := s.scan(ctx, opts, func(e Event) error {
			select {
			case events <- e:
				return nil
			case <-ctx.Done():
				return apperr.ErrCanceled
			}
		})
		if err != nil {
			events <- Event{Type: EventError, Err: err, Result: res}
			return
		}
		events <- Event{Type: EventDone, Result: res}
	}()

	return events
}
