package freq

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/sugawarayuuta/sonnet"
)

var fileValidate = validator.New()

type pairEntry struct {
	Numbers []int `json:"numbers" validate:"len=2"`
	Count   int64 `json:"count" validate:"gte=0"`
}

type tripleEntry struct {
	Numbers []int `json:"numbers" validate:"len=3"`
	Count   int64 `json:"count" validate:"gte=0"`
}

type quadEntry struct {
	Numbers []int `json:"numbers" validate:"len=4"`
	Count   int64 `json:"count" validate:"gte=0"`
}

// File is the on-disk JSON form of the frequency tables:
//
//	{
//	  "pairs":   [{"numbers": [1, 2], "count": 17}, ...],
//	  "triples": [{"numbers": [1, 2, 3], "count": 4}, ...],
//	  "quads":   [{"numbers": [1, 2, 3, 4], "count": 1}, ...]
//	}
type File struct {
	Pairs   []pairEntry   `json:"pairs" validate:"required,min=1,dive"`
	Triples []tripleEntry `json:"triples" validate:"dive"`
	Quads   []quadEntry   `json:"quads" validate:"dive"`
}

// Tables converts the file entries into lookup maps. Entries naming the same
// tuple are summed.
func (f *File) Tables() Tables {
	t := Tables{
		Pairs:   make(map[[2]int]int64, len(f.Pairs)),
		Triples: make(map[[3]int]int64, len(f.Triples)),
		Quads:   make(map[[4]int]int64, len(f.Quads)),
	}
	for _, e := range f.Pairs {
		t.Pairs[[2]int{e.Numbers[0], e.Numbers[1]}] += e.Count
	}
	for _, e := range f.Triples {
		t.Triples[[3]int{e.Numbers[0], e.Numbers[1], e.Numbers[2]}] += e.Count
	}
	for _, e := range f.Quads {
		t.Quads[[4]int{e.Numbers[0], e.Numbers[1], e.Numbers[2], e.Numbers[3]}] += e.Count
	}
	return t
}

// ParseFile decodes and validates a JSON frequency file.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := sonnet.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frequency file: %w", err)
	}
	if err := fileValidate.Struct(&f); err != nil {
		return nil, fmt.Errorf("validate frequency file: %w", err)
	}
	return &f, nil
}

// LoadFile reads a JSON frequency file from disk.
func LoadFile(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read frequency file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return Tables{}, fmt.Errorf("%s: %w", path, err)
	}
	return f.Tables(), nil
}

// Encode renders tables in the File JSON form with deterministic ordering.
func Encode(t Tables) ([]byte, error) {
	f := File{
		Pairs:   make([]pairEntry, 0, len(t.Pairs)),
		Triples: make([]tripleEntry, 0, len(t.Triples)),
		Quads:   make([]quadEntry, 0, len(t.Quads)),
	}
	for _, k := range sortedKeys(t.Pairs) {
		f.Pairs = append(f.Pairs, pairEntry{Numbers: []int{k[0], k[1]}, Count: t.Pairs[k]})
	}
	for _, k := range sortedKeys(t.Triples) {
		f.Triples = append(f.Triples, tripleEntry{Numbers: []int{k[0], k[1], k[2]}, Count: t.Triples[k]})
	}
	for _, k := range sortedKeys(t.Quads) {
		f.Quads = append(f.Quads, quadEntry{Numbers: []int{k[0], k[1], k[2], k[3]}, Count: t.Quads[k]})
	}
	data, err := sonnet.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("encode frequency file: %w", err)
	}
	return data, nil
}

func sortedKeys[K [2]int | [3]int | [4]int](m map[K]int64) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		for p := 0; p < len(a); p++ {
			if a[p] != b[p] {
				return a[p] < b[p]
			}
		}
		return false
	})
	return keys
}
