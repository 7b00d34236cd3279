package testutil

import (
	"os"
	"testing"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
	"github.com/roach88/omega/internal/freq"
)

// SmallSpace is 6 numbers out of 1..12: 924 combinations, small enough to
// enumerate exhaustively in tests.
func SmallSpace() combo.Space {
	return combo.Space{Min: 1, Max: 12, K: 6}
}

// SyntheticThresholds pairs with SyntheticTables over SmallSpace: 47 of the
// 924 combinations qualify, with several ties on total affinity.
func SyntheticThresholds() affinity.Thresholds {
	return affinity.Thresholds{Pairs: 85, Triples: 40, Quads: 15}
}

// SyntheticPair, SyntheticTriple and SyntheticQuad are the arithmetic
// frequencies behind SyntheticTables. Arguments are in ascending order.
func SyntheticPair(a, b int) int64 {
	return int64((a*7 + b*13) % 11)
}

func SyntheticTriple(a, b, c int) int64 {
	return int64((a*b + c) % 5)
}

func SyntheticQuad(a, b, c, d int) int64 {
	return int64((a + b*c + d) % 3)
}

// SyntheticTables fills every tuple of space with deterministic counts.
func SyntheticTables(space combo.Space) freq.Tables {
	t := freq.Tables{
		Pairs:   make(map[[2]int]int64),
		Triples: make(map[[3]int]int64),
		Quads:   make(map[[4]int]int64),
	}
	for a := space.Min; a <= space.Max; a++ {
		for b := a + 1; b <= space.Max; b++ {
			if v := SyntheticPair(a, b); v > 0 {
				t.Pairs[[2]int{a, b}] = v
			}
			for c := b + 1; c <= space.Max; c++ {
				if v := SyntheticTriple(a, b, c); v > 0 {
					t.Triples[[3]int{a, b, c}] = v
				}
				for d := c + 1; d <= space.Max; d++ {
					if v := SyntheticQuad(a, b, c, d); v > 0 {
						t.Quads[[4]int{a, b, c, d}] = v
					}
				}
			}
		}
	}
	return t
}

// UniformTables gives every tuple of each arity the same count, so every
// combination of a k=6 space scores 15*pair, 20*triple and 15*quad.
func UniformTables(space combo.Space, pair, triple, quad int64) freq.Tables {
	t := freq.Tables{
		Pairs:   make(map[[2]int]int64),
		Triples: make(map[[3]int]int64),
		Quads:   make(map[[4]int]int64),
	}
	for a := space.Min; a <= space.Max; a++ {
		for b := a + 1; b <= space.Max; b++ {
			t.Pairs[[2]int{a, b}] = pair
			for c := b + 1; c <= space.Max; c++ {
				t.Triples[[3]int{a, b, c}] = triple
				for d := c + 1; d <= space.Max; d++ {
					t.Quads[[4]int{a, b, c, d}] = quad
				}
			}
		}
	}
	return t
}

// SyntheticIndex builds the index for SyntheticTables(space).
func SyntheticIndex(t testing.TB, space combo.Space) *freq.Index {
	t.Helper()
	idx, err := freq.Build(space, SyntheticTables(space))
	if err != nil {
		t.Fatalf("freq.Build() failed: %v", err)
	}
	return idx
}

// WriteSyntheticTables writes SyntheticTables(space) as a JSON tables file.
func WriteSyntheticTables(t testing.TB, path string, space combo.Space) {
	t.Helper()
	data, err := freq.Encode(SyntheticTables(space))
	if err != nil {
		t.Fatalf("freq.Encode() failed: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write tables: %v", err)
	}
}
