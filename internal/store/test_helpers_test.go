package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/results"
	"github.com/roach88/omega/internal/testutil"
)

// createTestStore creates a new file-backed store with a manual clock.
func createTestStore(t *testing.T) (*Store, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(time.Time{})
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithNow(clock.Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// createTestRun creates a run over the default space with minimal fields.
func createTestRun(id, fingerprint string) Run {
	space := combo.DefaultSpace()
	return Run{
		ID:          id,
		Fingerprint: fingerprint,
		Space:       space,
		Thresholds:  affinity.DefaultThresholds(),
		IndexDigest: "digest-" + fingerprint,
		Units:       8,
		Total:       space.Total(),
		Completed:   roaring.New(),
	}
}

func createTestRecord(total int64, numbers ...int) results.Record {
	return results.Record{
		Numbers: combo.Combination(numbers),
		Pairs:   total - 20,
		Triples: 15,
		Quads:   5,
		Total:   total,
	}
}
