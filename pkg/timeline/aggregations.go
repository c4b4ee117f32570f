package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"gonum.org/v1/gonum/stat"
)

// bucket is the (date, hour) grouping key of hourly aggregation
type bucket struct {
	date string
	hour int
}

// MeanColumnName derives the injected mean column for a value field,
// e.g. "heartRate" becomes "meanHeartRate".
func MeanColumnName(valueField string) string {
	r, size := utf8.DecodeRuneInString(valueField)
	if r == utf8.RuneError {
		return "mean"
	}
	return "mean" + string(unicode.ToUpper(r)) + valueField[size:]
}

// numericValue coerces a field to a number. Missing, non-numeric and NaN
// values report false and are left out of every statistic.
func numericValue(row ShapedRow, field string) (float64, bool) {
	raw, ok := row.Get(field)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// AggregateHourly buckets rows by date and hour of timeField, averages
// valueField per bucket and joins the mean back onto every row. The output
// has exactly one row per input row, in input order.
func AggregateHourly(rows []FlatRow, timeField, valueField string) (AggregatedDataset, error) {
	out := AggregatedDataset{
		TimeField:  timeField,
		ValueField: valueField,
		MeanColumn: MeanColumnName(valueField),
		Rows:       make([]AggregatedRow, len(rows)),
	}

	sums := make(map[bucket]float64)
	counts := make(map[bucket]int)

	for i, r := range rows {
		clock, _ := r.Row.Get(timeField)
		hour, err := ParseHour(clock)
		if err != nil {
			return AggregatedDataset{}, fmt.Errorf("row %d (%s) field %s: %w", i, r.Date, timeField, err)
		}
		out.Rows[i] = AggregatedRow{Date: r.Date, Row: r.Row, Hour: hour}

		if v, ok := numericValue(r.Row, valueField); ok {
			k := bucket{date: r.Date, hour: hour}
			sums[k] += v
			counts[k]++
		}
	}

	for i := range out.Rows {
		k := bucket{date: out.Rows[i].Date, hour: out.Rows[i].Hour}
		if n := counts[k]; n > 0 {
			mean := sums[k] / float64(n)
			out.Rows[i].Mean = &mean
		}
	}

	return out, nil
}

// StdDev is the dataset-wide sample standard deviation of valueField.
// It reports false when fewer than two numeric values exist.
func StdDev(rows []FlatRow, valueField string) (float64, bool) {
	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := numericValue(r.Row, valueField); ok {
			values = append(values, v)
		}
	}
	if len(values) < 2 {
		return 0, false
	}
	return stat.StdDev(values, nil), true
}

// AggregateDataset runs hourly aggregation for a category dataset using the
// columns named in agg, broadcasting the standard deviation when
// agg.IncludeStdDev is set.
func AggregateDataset(ds Dataset, agg AggregationSpec) (AggregatedDataset, error) {
	rows := ds.Flatten()
	out, err := AggregateHourly(rows, agg.TimeField, agg.ValueField)
	if err != nil {
		return AggregatedDataset{}, fmt.Errorf("aggregate %s: %w", ds.Name, err)
	}
	out.Name = ds.Name
	out.OutputName = agg.OutputName
	if agg.MeanColumn != "" {
		out.MeanColumn = agg.MeanColumn
	}

	if agg.IncludeStdDev {
		out.HasStdDev = true
		if sd, ok := StdDev(rows, agg.ValueField); ok {
			for i := range out.Rows {
				v := sd
				out.Rows[i].StdDev = &v
			}
		}
	}
	return out, nil
}
