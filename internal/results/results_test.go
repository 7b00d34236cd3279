package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
)

func rec(total int64, numbers ...int) Record {
	return Record{Numbers: numbers, Pairs: total, Total: total}
}

func TestAggregator_RanksByTotalThenCombination(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Add(
		rec(500, 2, 3, 4, 5, 6, 7),
		rec(600, 1, 2, 3, 4, 5, 9),
		rec(500, 1, 2, 3, 4, 5, 6),
		rec(700, 9, 10, 11, 12, 13, 14),
	))

	got := a.Records()
	require.Len(t, got, 4)
	assert.Equal(t, int64(700), got[0].Total)
	assert.Equal(t, int64(600), got[1].Total)
	assert.Equal(t, combo.Combination{1, 2, 3, 4, 5, 6}, got[2].Numbers, "tie broken by combination order")
	assert.Equal(t, combo.Combination{2, 3, 4, 5, 6, 7}, got[3].Numbers)
}

func TestAggregator_OrderIndependentOfInsertion(t *testing.T) {
	records := []Record{
		rec(10, 1, 2, 3, 4, 5, 6),
		rec(10, 1, 2, 3, 4, 5, 7),
		rec(12, 1, 2, 3, 4, 6, 7),
		rec(9, 1, 2, 3, 5, 6, 7),
	}
	forward := NewAggregator()
	require.NoError(t, forward.Add(records...))

	backward := NewAggregator()
	for i := len(records) - 1; i >= 0; i-- {
		require.NoError(t, backward.Add(records[i]))
	}
	assert.Equal(t, forward.Records(), backward.Records())
}

func TestAggregator_RejectsDuplicates(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Add(rec(10, 1, 2, 3, 4, 5, 6)))

	err := a.Add(rec(11, 1, 2, 3, 4, 5, 7), rec(10, 1, 2, 3, 4, 5, 6))
	require.Error(t, err)
	assert.True(t, IsDuplicateError(err))
	assert.Contains(t, err.Error(), "01-02-03-04-05-06")
	assert.Equal(t, 2, a.Len(), "records before the duplicate are kept")
}

func TestAggregator_Since(t *testing.T) {
	a := NewAggregator()
	require.NoError(t, a.Add(rec(1, 1, 2, 3, 4), rec(2, 1, 2, 3, 5)))
	assert.Len(t, a.Since(0), 2)
	assert.Len(t, a.Since(1), 1)
	assert.Nil(t, a.Since(2))

	require.NoError(t, a.Add(rec(3, 1, 2, 3, 6)))
	since := a.Since(2)
	require.Len(t, since, 1)
	assert.Equal(t, int64(3), since[0].Total)
}

func TestNewRecord(t *testing.T) {
	c := combo.Combination{1, 2, 3, 4, 5, 6}
	r := NewRecord(c, affinity.Result{Pairs: 460, Triples: 80, Quads: 12, Stage: affinity.StageFull, Omega: true})
	assert.Equal(t, int64(552), r.Total)

	c[0] = 99
	assert.Equal(t, 1, r.Numbers[0], "record must not alias iterator buffers")
}

func TestTop(t *testing.T) {
	ranked := []Record{rec(3, 1, 2, 3, 4), rec(2, 1, 2, 3, 5), rec(1, 1, 2, 3, 6)}
	assert.Len(t, Top(ranked, 2), 2)
	assert.Len(t, Top(ranked, 10), 3)
	assert.Len(t, Top(ranked, -1), 3)
}

func TestSummarize(t *testing.T) {
	records := []Record{
		{Numbers: combo.Combination{1, 2, 3, 4, 5, 6}, Pairs: 460, Triples: 80, Quads: 10, Total: 550},
		{Numbers: combo.Combination{3, 8, 12, 20, 30, 39}, Pairs: 500, Triples: 90, Quads: 20, Total: 610},
	}
	s := Summarize(records)
	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 480.0, s.MeanPairs, 1e-9)
	assert.InDelta(t, 85.0, s.MeanTriples, 1e-9)
	assert.InDelta(t, 15.0, s.MeanQuads, 1e-9)
	assert.InDelta(t, 580.0, s.MeanTotal, 1e-9)
	assert.Equal(t, int64(610), s.MaxTotal)
	assert.Equal(t, int64(550), s.MinTotal)
	assert.InDelta(t, (21.0+112.0)/2, s.MeanSum, 1e-9)
	assert.InDelta(t, (5.0+36.0)/2, s.MeanSpread, 1e-9)

	assert.Equal(t, Summary{}, Summarize(nil))
}
