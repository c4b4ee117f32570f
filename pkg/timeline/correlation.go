package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SignificanceLevel is the p-value below which a correlation is called significant
const SignificanceLevel = 0.05

// ErrInsufficientData means a correlation is undefined for the joined series
var ErrInsufficientData = errors.New("insufficient data for correlation")

// HourlyMean is one (date, hour) bucket of an aggregated series
type HourlyMean struct {
	Date string  `json:"date"`
	Hour int     `json:"hour"`
	Mean float64 `json:"mean"`
}

// CorrelationResult is a Spearman rank correlation over joined hourly means
type CorrelationResult struct {
	Coefficient float64 `json:"coefficient"`
	PValue      float64 `json:"p_value"`
	Pairs       int     `json:"pairs"`
}

// Positive reports whether the series move together
func (r CorrelationResult) Positive() bool {
	return r.Coefficient >= 0
}

// Significant reports whether the p-value is under SignificanceLevel
func (r CorrelationResult) Significant() bool {
	return r.PValue < SignificanceLevel
}

// HourlyMeans collapses an aggregated dataset to one mean per bucket, in
// first-seen order. Buckets without a mean are left out.
func HourlyMeans(agg AggregatedDataset) []HourlyMean {
	seen := make(map[bucket]bool)
	var means []HourlyMean
	for _, r := range agg.Rows {
		k := bucket{date: r.Date, hour: r.Hour}
		if r.Mean == nil || seen[k] {
			continue
		}
		seen[k] = true
		means = append(means, HourlyMean{Date: r.Date, Hour: r.Hour, Mean: *r.Mean})
	}
	return means
}

// Correlate inner-joins the hourly means of two aggregated series on
// (date, hour) and computes their Spearman rank correlation.
func Correlate(a, b AggregatedDataset) (CorrelationResult, error) {
	right := make(map[bucket]float64)
	for _, m := range HourlyMeans(b) {
		right[bucket{date: m.Date, hour: m.Hour}] = m.Mean
	}

	left := HourlyMeans(a)
	sort.SliceStable(left, func(i, j int) bool {
		if left[i].Date != left[j].Date {
			return left[i].Date < left[j].Date
		}
		return left[i].Hour < left[j].Hour
	})

	var xs, ys []float64
	for _, m := range left {
		if v, ok := right[bucket{date: m.Date, hour: m.Hour}]; ok {
			xs = append(xs, m.Mean)
			ys = append(ys, v)
		}
	}

	rho, p, err := Spearman(xs, ys)
	if err != nil {
		return CorrelationResult{Pairs: len(xs)}, fmt.Errorf("correlate %s with %s: %w", a.Name, b.Name, err)
	}
	return CorrelationResult{Coefficient: rho, PValue: p, Pairs: len(xs)}, nil
}

// Spearman returns the rank correlation of two equal-length samples and its
// two-sided p-value from Student's t distribution with n-2 degrees of freedom.
func Spearman(xs, ys []float64) (float64, float64, error) {
	if len(xs) != len(ys) {
		return 0, 0, fmt.Errorf("sample lengths differ: %d and %d", len(xs), len(ys))
	}
	n := len(xs)
	if n < 3 {
		return 0, 0, fmt.Errorf("%w: %d pairs", ErrInsufficientData, n)
	}

	rho := stat.Correlation(ranks(xs), ranks(ys), nil)
	if math.IsNaN(rho) {
		return 0, 0, fmt.Errorf("%w: constant series", ErrInsufficientData)
	}

	df := float64(n - 2)
	if math.Abs(rho) >= 1 {
		return rho, 0, nil
	}
	t := rho * math.Sqrt(df/((1-rho)*(1+rho)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return rho, 2 * dist.CDF(-math.Abs(t)), nil
}

// ranks assigns 1-based ranks, averaging the ranks of tied values
func ranks(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return values[idx[i]] < values[idx[j]]
	})

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && values[idx[j]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			out[idx[k]] = avg
		}
		i = j
	}
	return out
}
