package freq

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omega/internal/combo"
)

var smallSpace = combo.Space{Min: 1, Max: 10, K: 6}

func sampleTables() Tables {
	return Tables{
		Pairs: map[[2]int]int64{
			{1, 2}:  5,
			{9, 3}:  7, // unsorted key
			{1, 10}: 2,
		},
		Triples: map[[3]int]int64{
			{4, 2, 1}: 3,
			{8, 9, 10}: 1,
		},
		Quads: map[[4]int]int64{
			{1, 2, 3, 4}: 9,
			{10, 7, 4, 1}: 4,
		},
	}
}

func TestBuild_LookupsAreOrderIndependent(t *testing.T) {
	idx, err := Build(smallSpace, sampleTables())
	require.NoError(t, err)

	assert.Equal(t, int64(5), idx.Pair(1, 2))
	assert.Equal(t, int64(5), idx.Pair(2, 1))
	assert.Equal(t, int64(7), idx.Pair(3, 9))
	assert.Equal(t, int64(7), idx.Pair(9, 3))
	assert.Equal(t, int64(2), idx.Pair(10, 1))

	assert.Equal(t, int64(3), idx.Triple(1, 2, 4))
	assert.Equal(t, int64(3), idx.Triple(4, 1, 2))
	assert.Equal(t, int64(1), idx.Triple(10, 9, 8))

	assert.Equal(t, int64(9), idx.Quad(4, 3, 2, 1))
	assert.Equal(t, int64(4), idx.Quad(1, 4, 7, 10))
	assert.Equal(t, int64(4), idx.Quad(7, 10, 1, 4))
}

func TestBuild_UnseenKeysAreZero(t *testing.T) {
	idx, err := Build(smallSpace, sampleTables())
	require.NoError(t, err)

	assert.Zero(t, idx.Pair(5, 6))
	assert.Zero(t, idx.Triple(1, 2, 3))
	assert.Zero(t, idx.Quad(2, 3, 4, 5))

	// Out of range or degenerate tuples also read as zero.
	assert.Zero(t, idx.Pair(0, 1))
	assert.Zero(t, idx.Pair(1, 11))
	assert.Zero(t, idx.Pair(2, 2))
	assert.Zero(t, idx.Triple(1, 1, 2))
	assert.Zero(t, idx.Quad(1, 2, 3, 99))
}

func TestBuild_EveryTupleHasItsOwnSlot(t *testing.T) {
	space := combo.Space{Min: 3, Max: 12, K: 6}
	tables := Tables{Pairs: map[[2]int]int64{}, Triples: map[[3]int]int64{}, Quads: map[[4]int]int64{}}
	var n int64
	for a := 3; a <= 12; a++ {
		for b := a + 1; b <= 12; b++ {
			n++
			tables.Pairs[[2]int{a, b}] = n
			for c := b + 1; c <= 12; c++ {
				n++
				tables.Triples[[3]int{a, b, c}] = n
				for d := c + 1; d <= 12; d++ {
					n++
					tables.Quads[[4]int{a, b, c, d}] = n
				}
			}
		}
	}
	idx, err := Build(space, tables)
	require.NoError(t, err)

	for k, v := range tables.Pairs {
		assert.Equal(t, v, idx.Pair(k[1], k[0]))
	}
	for k, v := range tables.Triples {
		assert.Equal(t, v, idx.Triple(k[2], k[0], k[1]))
	}
	for k, v := range tables.Quads {
		assert.Equal(t, v, idx.Quad(k[3], k[1], k[2], k[0]))
	}
}

func TestBuild_Stats(t *testing.T) {
	idx, err := Build(smallSpace, sampleTables())
	require.NoError(t, err)

	st := idx.Stats()
	assert.Equal(t, ArityStats{Entries: 3, Sum: 14}, st.Pairs)
	assert.Equal(t, ArityStats{Entries: 2, Sum: 4}, st.Triples)
	assert.Equal(t, ArityStats{Entries: 2, Sum: 13}, st.Quads)
	assert.Equal(t, 1, idx.Min())
	assert.Equal(t, 10, idx.Max())
}

func TestBuild_DuplicateNormalizedKeysAreSummed(t *testing.T) {
	tables := Tables{Pairs: map[[2]int]int64{{1, 2}: 3, {2, 1}: 4}}
	idx, err := Build(smallSpace, tables)
	require.NoError(t, err)
	assert.Equal(t, int64(7), idx.Pair(1, 2))
}

func TestBuild_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name   string
		tables Tables
	}{
		{"negative count", Tables{Pairs: map[[2]int]int64{{1, 2}: -1}}},
		{"out of range", Tables{Triples: map[[3]int]int64{{1, 2, 11}: 1}}},
		{"below range", Tables{Quads: map[[4]int]int64{{0, 1, 2, 3}: 1}}},
		{"repeated number", Tables{Pairs: map[[2]int]int64{{4, 4}: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(smallSpace, tt.tables)
			require.Error(t, err)
			assert.True(t, IsTableError(err))
		})
	}

	_, err := Build(combo.Space{Min: 1, Max: 3, K: 2}, Tables{})
	assert.Error(t, err, "range too narrow for quadruples")
}

func TestDigest(t *testing.T) {
	a, err := Build(smallSpace, sampleTables())
	require.NoError(t, err)
	b, err := Build(smallSpace, sampleTables())
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), b.Digest())
	assert.Len(t, a.Digest(), 64)

	changed := sampleTables()
	changed.Pairs[[2]int{1, 2}] = 6
	c, err := Build(smallSpace, changed)
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestIndex_ConcurrentReads(t *testing.T) {
	idx, err := Build(smallSpace, sampleTables())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if idx.Pair(2, 1) != 5 || idx.Quad(1, 2, 3, 4) != 9 {
					t.Error("unexpected lookup result")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestFile_RoundTrip(t *testing.T) {
	data, err := Encode(sampleTables())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tables.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	loaded, err := LoadFile(path)
	require.NoError(t, err)

	a, err := Build(smallSpace, sampleTables())
	require.NoError(t, err)
	b, err := Build(smallSpace, loaded)
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestParseFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"pairs": [`},
		{"no pairs", `{"pairs": [], "triples": [], "quads": []}`},
		{"pair with three numbers", `{"pairs": [{"numbers": [1, 2, 3], "count": 1}]}`},
		{"negative count", `{"pairs": [{"numbers": [1, 2], "count": -4}]}`},
		{"short quad", `{"pairs": [{"numbers": [1, 2], "count": 1}], "quads": [{"numbers": [1, 2, 3], "count": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tt.json))
			assert.Error(t, err)
		})
	}

	f, err := ParseFile([]byte(`{"pairs": [{"numbers": [2, 1], "count": 3}, {"numbers": [1, 2], "count": 1}]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(4), f.Tables().Pairs[[2]int{1, 2}]+f.Tables().Pairs[[2]int{2, 1}])
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
