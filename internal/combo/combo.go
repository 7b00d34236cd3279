package combo

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxN is the largest range width supported. C(64, 32) still fits in a uint64.
const MaxN = 64

// pascal[n][k] = C(n, k) for 0 <= k <= n <= MaxN.
var pascal = buildPascal()

func buildPascal() [MaxN + 1][MaxN + 1]uint64 {
	var t [MaxN + 1][MaxN + 1]uint64
	for n := 0; n <= MaxN; n++ {
		t[n][0] = 1
		for k := 1; k <= n; k++ {
			t[n][k] = t[n-1][k-1] + t[n-1][k]
		}
	}
	return t
}

// Count returns C(n, k). Out-of-range arguments yield 0.
func Count(n, k int) uint64 {
	if n < 0 || k < 0 || k > n || n > MaxN {
		return 0
	}
	return pascal[n][k]
}

// Space describes the search space: all K-subsets of [Min, Max].
type Space struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
	K   int `json:"k" yaml:"k"`
}

// DefaultSpace is the Melate Retro space, 6 numbers out of 1..39.
func DefaultSpace() Space {
	return Space{Min: 1, Max: 39, K: 6}
}

// N returns the number of values in [Min, Max].
func (s Space) N() int {
	if s.Max < s.Min {
		return 0
	}
	return s.Max - s.Min + 1
}

// Valid reports whether the space contains at least one combination.
func (s Space) Valid() bool {
	n := s.N()
	return s.K >= 1 && n >= s.K && n <= MaxN
}

// Total returns the number of combinations in the space, 0 if invalid.
func (s Space) Total() uint64 {
	if !s.Valid() {
		return 0
	}
	return Count(s.N(), s.K)
}

func (s Space) String() string {
	return fmt.Sprintf("C([%d..%d], %d)", s.Min, s.Max, s.K)
}

// Combination is a strictly increasing sequence of distinct integers.
// Treat it as immutable once handed out; use Clone to keep a copy of an
// Iterator's buffer.
type Combination []int

// Clone returns a copy that does not share storage with c.
func (c Combination) Clone() Combination {
	out := make(Combination, len(c))
	copy(out, c)
	return out
}

// Compare orders combinations lexicographically.
func (c Combination) Compare(o Combination) int {
	n := min(len(c), len(o))
	for i := 0; i < n; i++ {
		switch {
		case c[i] < o[i]:
			return -1
		case c[i] > o[i]:
			return 1
		}
	}
	switch {
	case len(c) < len(o):
		return -1
	case len(c) > len(o):
		return 1
	}
	return 0
}

// Equal reports whether both combinations hold the same values.
func (c Combination) Equal(o Combination) bool {
	return c.Compare(o) == 0
}

// Less reports whether c sorts before o.
func (c Combination) Less(o Combination) bool {
	return c.Compare(o) < 0
}

// String renders the combination as zero-padded numbers joined by dashes,
// e.g. "01-07-12-23-30-39". The form sorts lexicographically as text for
// values below 100 and is used as the dedup and storage key.
func (c Combination) String() string {
	var b strings.Builder
	for i, v := range c {
		if i > 0 {
			b.WriteByte('-')
		}
		fmt.Fprintf(&b, "%02d", v)
	}
	return b.String()
}

// ParseCombination parses the String form back into a Combination.
func ParseCombination(s string) (Combination, error) {
	if s == "" {
		return nil, fmt.Errorf("parse combination: empty string")
	}
	parts := strings.Split(s, "-")
	out := make(Combination, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse combination %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

// Check verifies that c belongs to space: right length, strictly increasing,
// every value inside [Min, Max].
func (c Combination) Check(space Space) error {
	if len(c) != space.K {
		return fmt.Errorf("combination %v: length %d, want %d", []int(c), len(c), space.K)
	}
	for i, v := range c {
		if v < space.Min || v > space.Max {
			return fmt.Errorf("combination %v: value %d outside [%d, %d]", []int(c), v, space.Min, space.Max)
		}
		if i > 0 && v <= c[i-1] {
			return fmt.Errorf("combination %v: not strictly increasing at position %d", []int(c), i)
		}
	}
	return nil
}
