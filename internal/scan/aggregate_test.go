package scan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, name, text, region, date string, amount float64) MatchedRecord {
	return MatchedRecord{ID: id, Name: name, Text: text, Region: region, Date: date, Amount: amount}
}

func sampleRecords() []MatchedRecord {
	return []MatchedRecord{
		rec("1", "ACME", "autoclave 21L", "SP", "2025-01-10T09:00:00", 1000),
		rec("2", "BETA", "autoclave 12L", "MT", "2025-02-01T09:00:00", 50),
		rec("1", "ACME", "autoclave 21L", "RJ", "2025-03-05T09:00:00", 2000),
		rec("1", "ACME SA", "autoclave", "SP", "2025-01-01T09:00:00", 10),
		rec("1", "ACME", "manutenção de autoclave", "SP", "2024-12-31T09:00:00", 0),
		rec("2", "BETA", "autoclave vertical", "MT", "", 75.5),
	}
}

func TestAggregator_Merge(t *testing.T) {
	a := NewAggregator()
	a.Merge(sampleRecords())

	require.Equal(t, 3, a.Len())

	e, ok := a.Get(Key{ID: "1", Name: "ACME"})
	require.True(t, ok)
	assert.Equal(t, 3, e.Occurrences)
	assert.Equal(t, 3000.0, e.TotalValue)
	assert.Equal(t, []string{"RJ", "SP"}, e.SortedRegions())
	assert.Equal(t, "2025-03-05T09:00:00", e.LastSeen)
	assert.Equal(t, []string{"autoclave 21L", "manutenção de autoclave"}, e.Samples)

	// same identifier, different display name is a separate entry
	_, ok = a.Get(Key{ID: "1", Name: "ACME SA"})
	assert.True(t, ok)

	beta, _ := a.Get(Key{ID: "2", Name: "BETA"})
	assert.Equal(t, "2025-02-01T09:00:00", beta.LastSeen)
	assert.Equal(t, 125.5, beta.TotalValue)
}

func TestAggregator_SamplesCappedAndTruncated(t *testing.T) {
	a := NewAggregator()
	long := strings.Repeat("é", 200)
	a.Merge([]MatchedRecord{
		rec("1", "A", long, "", "", 0),
		rec("1", "A", "dois", "", "", 0),
		rec("1", "A", "três", "", "", 0),
		rec("1", "A", "quatro", "", "", 0),
	})

	e, _ := a.Get(Key{ID: "1", Name: "A"})
	require.Len(t, e.Samples, 3)
	assert.Equal(t, 140, len([]rune(e.Samples[0])))
	assert.Equal(t, []string{"dois", "três"}, e.Samples[1:])
}

func TestAggregator_MergeIsPartitionIndependent(t *testing.T) {
	records := sampleRecords()

	whole := NewAggregator()
	whole.Merge(records)

	for split := 0; split <= len(records); split++ {
		parts := NewAggregator()
		parts.Merge(records[:split])
		parts.Merge(records[split:])

		assert.Equal(t, whole.TopN(0), parts.TopN(0), "split at %d", split)
	}

	oneByOne := NewAggregator()
	for _, r := range records {
		oneByOne.Merge([]MatchedRecord{r})
	}
	assert.Equal(t, whole.TopN(0), oneByOne.TopN(0))
}

func TestScore(t *testing.T) {
	e := &Entry{Occurrences: 2, TotalValue: 999, Regions: map[string]struct{}{"SP": {}, "MT": {}}}
	assert.Equal(t, 39.0, Score(e))

	e = &Entry{Occurrences: 1, TotalValue: 1234.56, Regions: map[string]struct{}{}}
	assert.Equal(t, 25.5, Score(e))
}

func TestScore_Monotonic(t *testing.T) {
	base := func() *Entry {
		return &Entry{Occurrences: 3, TotalValue: 5000, Regions: map[string]struct{}{"SP": {}}}
	}

	tests := []struct {
		name string
		grow func(e *Entry)
	}{
		{"more occurrences", func(e *Entry) { e.Occurrences++ }},
		{"more value", func(e *Entry) { e.TotalValue += 10000 }},
		{"more regions", func(e *Entry) { e.Regions["RJ"] = struct{}{} }},
		{"tiny value", func(e *Entry) { e.TotalValue += 0.01 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := Score(base())
			e := base()
			tt.grow(e)
			assert.GreaterOrEqual(t, Score(e), before)
		})
	}
}

func TestTopN(t *testing.T) {
	a := NewAggregator()
	a.Merge([]MatchedRecord{
		rec("1", "one", "x", "", "", 0),
		rec("2", "two", "x", "", "", 0),
		rec("3", "three", "x", "", "", 0),
		rec("3", "three", "y", "", "", 0),
		rec("4", "four", "x", "", "", 0),
	})

	top := a.TopN(3)
	require.Len(t, top, 3)
	assert.Equal(t, "three", top[0].Key.Name)
	// ties keep insertion order
	assert.Equal(t, "one", top[1].Key.Name)
	assert.Equal(t, "two", top[2].Key.Name)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Score, top[i].Score)
	}

	assert.Len(t, a.TopN(0), 4)
	assert.Len(t, a.TopN(-1), 4)
	assert.Len(t, a.TopN(100), 4)

	// repeated snapshots are identical
	assert.Equal(t, a.TopN(3), a.TopN(3))
}

func TestSnapshot_Detached(t *testing.T) {
	a := NewAggregator()
	a.Merge([]MatchedRecord{rec("1", "ACME", "autoclave", "SP", "2025-01-10", 100)})

	snap := a.Snapshot(5)
	a.Merge([]MatchedRecord{rec("1", "ACME", "autoclave 2", "RJ", "2025-02-10", 100)})

	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].Occurrences)
	assert.Equal(t, []string{"SP"}, snap[0].SortedRegions())
	assert.Len(t, snap[0].Samples, 1)

	live, _ := a.Get(Key{ID: "1", Name: "ACME"})
	assert.Equal(t, 2, live.Occurrences)
}

func TestLaterDate(t *testing.T) {
	tests := []struct {
		candidate, current string
		want               bool
	}{
		{"2025-01-02", "", true},
		{"", "2025-01-02", false},
		{"2025-01-02T00:00:00", "2025-01-01T23:59:59", true},
		{"2025-01-01", "2025-01-01T10:00:00", false},
		{"2025-01-02T00:00:00Z", "2025-01-01", true},
		{"zzz", "aaa", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, laterDate(tt.candidate, tt.current), "%s vs %s", tt.candidate, tt.current)
	}
}
