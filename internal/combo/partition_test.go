package combo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartition_RemainderGoesToLastRange(t *testing.T) {
	ranges := Partition(20, 3)
	require.Len(t, ranges, 3)
	assert.Equal(t, []WorkRange{
		{Unit: 0, Start: 0, End: 6},
		{Unit: 1, Start: 6, End: 12},
		{Unit: 2, Start: 12, End: 20},
	}, ranges)
	require.NoError(t, VerifyPartition(20, ranges))
}

func TestPartition_CoversExactlyOnce(t *testing.T) {
	cases := []struct {
		total uint64
		p     int
	}{
		{20, 3},
		{3262623, 16},
		{3262623, 64},
		{100, 100},
		{7, 1},
		{1, 8},
	}
	for _, tc := range cases {
		ranges := Partition(tc.total, tc.p)
		require.NoError(t, VerifyPartition(tc.total, ranges), "total=%d p=%d", tc.total, tc.p)

		var sum uint64
		for i, r := range ranges {
			assert.Equal(t, i, r.Unit)
			assert.Greater(t, r.Len(), uint64(0))
			sum += r.Len()
		}
		assert.Equal(t, tc.total, sum)
	}
}

func TestPartition_ClampsPartsToTotal(t *testing.T) {
	ranges := Partition(3, 10)
	assert.Len(t, ranges, 3)
	assert.Nil(t, Partition(0, 4))
	assert.Nil(t, Partition(10, 0))
}

func TestVerifyPartition_DetectsGapsAndOverlaps(t *testing.T) {
	tests := []struct {
		name   string
		ranges []WorkRange
		kind   PartitionErrorKind
	}{
		{
			name:   "gap",
			ranges: []WorkRange{{Start: 0, End: 5}, {Start: 6, End: 10}},
			kind:   PartitionGap,
		},
		{
			name:   "overlap",
			ranges: []WorkRange{{Start: 0, End: 6}, {Start: 5, End: 10}},
			kind:   PartitionOverlap,
		},
		{
			name:   "short",
			ranges: []WorkRange{{Start: 0, End: 9}},
			kind:   PartitionShort,
		},
		{
			name:   "empty range",
			ranges: []WorkRange{{Start: 0, End: 10}, {Start: 10, End: 10}},
			kind:   PartitionEmpty,
		},
		{
			name:   "overrun",
			ranges: []WorkRange{{Start: 0, End: 11}},
			kind:   PartitionOverrun,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPartition(10, tt.ranges)
			require.Error(t, err)
			assert.True(t, IsPartitionError(err))

			var pe *PartitionError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
		})
	}
}

func TestVerifyPartition_OrderIndependent(t *testing.T) {
	ranges := []WorkRange{{Unit: 2, Start: 12, End: 20}, {Unit: 0, Start: 0, End: 6}, {Unit: 1, Start: 6, End: 12}}
	assert.NoError(t, VerifyPartition(20, ranges))
}
