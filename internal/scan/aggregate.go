package scan

import (
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/david/radar-licitacoes/internal/textutil"
)

const (
	maxSamples = 3
	sampleLen  = 140
)

// Entry accumulates every matched record of one Key.
type Entry struct {
	Key         Key
	Occurrences int
	TotalValue  float64
	Regions     map[string]struct{}
	LastSeen    string
	Samples     []string
}

// SortedRegions returns the region set in alphabetical order.
func (e *Entry) SortedRegions() []string {
	out := make([]string, 0, len(e.Regions))
	for r := range e.Regions {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// ScoredEntry is an Entry with its score at snapshot time.
type ScoredEntry struct {
	*Entry
	Score float64
}

// Aggregator folds matched records into entries keyed by Key. It keeps
// insertion order so rankings are stable across snapshots. Not safe for
// concurrent use; one scan owns one Aggregator.
type Aggregator struct {
	entries map[Key]*Entry
	order   []Key
}

func NewAggregator() *Aggregator {
	return &Aggregator{entries: make(map[Key]*Entry)}
}

// Len returns the number of distinct keys seen so far.
func (a *Aggregator) Len() int {
	return len(a.order)
}

// Get returns the entry for k, if any.
func (a *Aggregator) Get(k Key) (*Entry, bool) {
	e, ok := a.entries[k]
	return e, ok
}

// Merge folds records in.
func (a *Aggregator) Merge(records []MatchedRecord) {
	for _, r := range records {
		a.add(r)
	}
}

// add folds one record and reports whether it created a new entry.
func (a *Aggregator) add(r MatchedRecord) bool {
	k := r.Key()
	e, ok := a.entries[k]
	if !ok {
		e = &Entry{Key: k, Regions: make(map[string]struct{})}
		a.entries[k] = e
		a.order = append(a.order, k)
	}

	e.Occurrences++
	if r.Amount > 0 {
		e.TotalValue += r.Amount
	}
	if r.Region != "" {
		e.Regions[r.Region] = struct{}{}
	}
	if laterDate(r.Date, e.LastSeen) {
		e.LastSeen = r.Date
	}
	if len(e.Samples) < maxSamples && r.Text != "" {
		sample := textutil.Truncate(r.Text, sampleLen)
		if !slices.Contains(e.Samples, sample) {
			e.Samples = append(e.Samples, sample)
		}
	}
	return !ok
}

// Score ranks an entry: occurrences dominate, total value counts
// logarithmically and each distinct region adds a little. Rounded to one
// decimal place.
func Score(e *Entry) float64 {
	s := float64(e.Occurrences)*10 + math.Log10(1+e.TotalValue)*5 + float64(len(e.Regions))*2
	return math.Round(s*10) / 10
}

// TopN scores every entry and returns the n best, highest first. Equal
// scores keep insertion order. n <= 0 returns all entries.
func (a *Aggregator) TopN(n int) []ScoredEntry {
	scored := make([]ScoredEntry, 0, len(a.order))
	for _, k := range a.order {
		e := a.entries[k]
		scored = append(scored, ScoredEntry{Entry: e, Score: Score(e)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if n > 0 && len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

// Snapshot is TopN over copies of the entries. The copies stay valid while
// the aggregator keeps changing.
func (a *Aggregator) Snapshot(n int) []ScoredEntry {
	top := a.TopN(n)
	for i := range top {
		top[i].Entry = top[i].Entry.clone()
	}
	return top
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Regions = make(map[string]struct{}, len(e.Regions))
	for r := range e.Regions {
		c.Regions[r] = struct{}{}
	}
	c.Samples = append([]string(nil), e.Samples...)
	return &c
}

var dateLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// laterDate reports whether candidate is after current. Dates are compared
// as times when both parse and as strings otherwise.
func laterDate(candidate, current string) bool {
	if candidate == "" {
		return false
	}
	if current == "" {
		return true
	}
	c, okC := parseAnyDate(candidate)
	p, okP := parseAnyDate(current)
	if okC && okP {
		return c.After(p)
	}
	return candidate > current
}

func parseAnyDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
