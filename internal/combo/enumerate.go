package combo

import "fmt"

// Nth returns the i-th combination of space in lexicographic order.
// ok is false when i is outside [0, space.Total()).
func Nth(space Space, i uint64) (Combination, bool) {
	if i >= space.Total() {
		return nil, false
	}
	c := make(Combination, space.K)
	nthInto(space, i, c)
	return c, true
}

// nthInto decodes index i into dst. The caller guarantees i < Total.
//
// For position j the block of combinations that start with value x has
// C(Max-x, K-j-1) members; skip whole blocks until i falls inside one.
func nthInto(space Space, i uint64, dst Combination) {
	x := space.Min
	for j := 0; j < space.K; j++ {
		rest := space.K - j - 1
		for {
			block := Count(space.Max-x, rest)
			if i < block {
				break
			}
			i -= block
			x++
		}
		dst[j] = x
		x++
	}
}

// Rank returns the lexicographic index of c within space. It is the inverse
// of Nth.
func Rank(space Space, c Combination) (uint64, error) {
	if err := c.Check(space); err != nil {
		return 0, fmt.Errorf("rank: %w", err)
	}
	var idx uint64
	x := space.Min
	for j, v := range c {
		rest := space.K - j - 1
		for ; x < v; x++ {
			idx += Count(space.Max-x, rest)
		}
		x = v + 1
	}
	return idx, nil
}

// Enumerate returns every combination of space in order. Intended for small
// spaces; the full search uses Iterator over WorkRanges instead.
func Enumerate(space Space) []Combination {
	total := space.Total()
	if total == 0 {
		return nil
	}
	out := make([]Combination, 0, total)
	it := NewIterator(space, 0, total)
	for it.Next() {
		out = append(out, it.Combination().Clone())
	}
	return out
}

// Iterator walks the half-open index range [start, end) of a space.
//
// The combination returned by Combination is an internal buffer that is
// overwritten by the next call to Next.
//
// Not safe for concurrent use; each worker owns its own Iterator.
type Iterator struct {
	space   Space
	cur     Combination
	pos     uint64
	end     uint64
	started bool
}

// NewIterator creates an iterator over [start, end). end is clamped to the
// space total; an empty or invalid range yields no combinations.
func NewIterator(space Space, start, end uint64) *Iterator {
	total := space.Total()
	if end > total {
		end = total
	}
	return &Iterator{
		space: space,
		cur:   make(Combination, max(space.K, 0)),
		pos:   start,
		end:   end,
	}
}

// Next advances to the next combination and reports whether one exists.
func (it *Iterator) Next() bool {
	if !it.started {
		if it.pos >= it.end {
			return false
		}
		nthInto(it.space, it.pos, it.cur)
		it.started = true
		return true
	}
	if it.pos+1 >= it.end {
		it.pos = it.end
		return false
	}
	it.pos++
	it.advance()
	return true
}

// advance applies the lexicographic successor rule: bump the rightmost value
// that still has room, then reset everything to its right to the smallest
// increasing tail.
func (it *Iterator) advance() {
	k := it.space.K
	c := it.cur
	j := k - 1
	for j >= 0 && c[j] == it.space.Max-(k-1-j) {
		j--
	}
	if j < 0 {
		return
	}
	c[j]++
	for l := j + 1; l < k; l++ {
		c[l] = c[l-1] + 1
	}
}

// Combination returns the current combination.
func (it *Iterator) Combination() Combination {
	return it.cur
}

// Index returns the lexicographic index of the current combination.
func (it *Iterator) Index() uint64 {
	return it.pos
}
