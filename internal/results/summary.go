package results

// Summary describes a record set the way the statistics sheet of the Omega
// report does.
type Summary struct {
	Count       int     `json:"count"`
	MeanPairs   float64 `json:"mean_pairs"`
	MeanTriples float64 `json:"mean_triples"`
	MeanQuads   float64 `json:"mean_quads"`
	MeanTotal   float64 `json:"mean_total"`
	MaxTotal    int64   `json:"max_total"`
	MinTotal    int64   `json:"min_total"`
	MeanSum     float64 `json:"mean_sum"`    // mean of the numbers' sum
	MeanSpread  float64 `json:"mean_spread"` // mean of (largest - smallest)
}

// Summarize computes statistics over records. An empty set yields a zero Summary.
func Summarize(records []Record) Summary {
	s := Summary{Count: len(records)}
	if len(records) == 0 {
		return s
	}
	var pairs, triples, quads, total, sum, spread int64
	s.MaxTotal = records[0].Total
	s.MinTotal = records[0].Total
	for _, r := range records {
		pairs += r.Pairs
		triples += r.Triples
		quads += r.Quads
		total += r.Total
		s.MaxTotal = max(s.MaxTotal, r.Total)
		s.MinTotal = min(s.MinTotal, r.Total)
		if n := len(r.Numbers); n > 0 {
			for _, v := range r.Numbers {
				sum += int64(v)
			}
			spread += int64(r.Numbers[n-1] - r.Numbers[0])
		}
	}
	n := float64(len(records))
	s.MeanPairs = float64(pairs) / n
	s.MeanTriples = float64(triples) / n
	s.MeanQuads = float64(quads) / n
	s.MeanTotal = float64(total) / n
	s.MeanSum = float64(sum) / n
	s.MeanSpread = float64(spread) / n
	return s
}
