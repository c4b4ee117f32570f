package timeline

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// heartRateRecord builds a point-in-time heart rate sample
func heartRateRecord(stamp, value string) RawRecord {
	return RawRecord{
		"type":         HeartRateType,
		"sourceName":   "Sam’s Apple Watch",
		"unit":         "count/min",
		"creationDate": stamp,
		"startDate":    stamp,
		"endDate":      stamp,
		"value":        value,
	}
}

// intervalRecord builds an interval sample created at its end
func intervalRecord(typ, start, end, value, source string) RawRecord {
	return RawRecord{
		"type":         typ,
		"sourceName":   source,
		"unit":         "count",
		"creationDate": end,
		"startDate":    start,
		"endDate":      end,
		"value":        value,
	}
}

func mustRegistry(t *testing.T, year string) *Registry {
	t.Helper()
	r, err := DefaultRegistry(year)
	require.NoError(t, err)
	return r
}

func mustSpec(t *testing.T, r *Registry, name string) CategorySpec {
	t.Helper()
	spec, err := r.Lookup(name)
	require.NoError(t, err)
	return spec
}

func TestExtractHeartRate(t *testing.T) {
	records := []RawRecord{
		heartRateRecord("2023-05-01 10:15:30 -0700", "72"),
		heartRateRecord("2023-05-01 10:45:00 -0700", "80"),
		heartRateRecord("2023-05-02 08:00:00 -0700", "65"),
	}

	spec := mustSpec(t, mustRegistry(t, "2023"), HeartRateOutput)
	ds, report := NewExtractor(discardLogger()).Extract(records, spec)

	assert.Equal(t, HeartRateOutput, ds.Name)
	assert.Equal(t, []string{"2023-05-01", "2023-05-02"}, ds.Dates())

	rows, ok := ds.Rows("2023-05-01")
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, ShapedRow{Str("heartRate", "72"), Str("time", "10:15:30")}, rows[0])

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 3, report.Kept)
	assert.Equal(t, 2, report.Dates)
	assert.Empty(t, report.Malformed)
}

func TestExtractFiltersTypeAndYear(t *testing.T) {
	records := []RawRecord{
		heartRateRecord("2022-12-31 23:59:59 -0700", "70"),
		heartRateRecord("2023-01-01 00:00:01 -0700", "71"),
		intervalRecord(StepCountType, "2023-01-01 09:00:00 -0700", "2023-01-01 09:05:00 -0700", "120", "iPhone"),
		heartRateRecord("2024-01-01 00:00:01 -0700", "72"),
	}

	spec := mustSpec(t, mustRegistry(t, "2023"), HeartRateOutput)
	ds, report := NewExtractor(discardLogger()).Extract(records, spec)

	assert.Equal(t, []string{"2023-01-01"}, ds.Dates())
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, 1, report.Kept)

	for _, row := range ds.Flatten() {
		assert.Equal(t, "2023", row.Date[:4])
	}
}

func TestExtractKeepsFirstSeenDateOrder(t *testing.T) {
	records := []RawRecord{
		heartRateRecord("2023-05-03 10:00:00 -0700", "70"),
		heartRateRecord("2023-05-01 10:00:00 -0700", "71"),
		heartRateRecord("2023-05-03 11:00:00 -0700", "72"),
		heartRateRecord("2023-05-02 10:00:00 -0700", "73"),
	}

	spec := mustSpec(t, mustRegistry(t, "2023"), HeartRateOutput)
	ds, _ := NewExtractor(discardLogger()).Extract(records, spec)

	assert.Equal(t, []string{"2023-05-03", "2023-05-01", "2023-05-02"}, ds.Dates())
	rows, _ := ds.Rows("2023-05-03")
	require.Len(t, rows, 2)
	v, _ := rows[1].Get("heartRate")
	assert.Equal(t, "72", v)
}

func TestExtractStepsAcrossMidnight(t *testing.T) {
	records := []RawRecord{
		intervalRecord(StepCountType, "2023-05-01 23:55:00 -0700", "2023-05-02 00:05:00 -0700", "40", "iPhone 14"),
	}

	spec := mustSpec(t, mustRegistry(t, "2023"), StepsOutput)
	ds, _ := NewExtractor(discardLogger()).Extract(records, spec)

	rows, ok := ds.Rows("2023-05-02")
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, ShapedRow{
		Str("startTime", "23:55:00"),
		Str("endTime", "00:05:00"),
		Str("totalTime", "-1 day, 0:10:00"),
		Str("steps", "40"),
		Str("source", "iPhone"),
	}, rows[0])
}

func TestExtractSkipsMalformedRecords(t *testing.T) {
	bad := heartRateRecord("2023-05-01 10:00:00 -0700", "75")
	bad["startDate"] = "2023-05-01"

	records := []RawRecord{
		heartRateRecord("2023-05-01 09:00:00 -0700", "70"),
		bad,
		{"type": StepCountType, "creationDate": "garbage"},
		heartRateRecord("2023-05-01 11:00:00 -0700", "80"),
	}

	spec := mustSpec(t, mustRegistry(t, "2023"), HeartRateOutput)
	ds, report := NewExtractor(discardLogger()).Extract(records, spec)

	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, 2, report.Kept)
	require.Len(t, report.Malformed, 1, "only records of the extracted category are reported")
	assert.Equal(t, 1, report.Malformed[0].Index)
	assert.Equal(t, "startDate", report.Malformed[0].Attribute)
}

func TestExtractAudioExposureOptionalFields(t *testing.T) {
	rec := intervalRecord(HeadphoneAudioExposureType, "2023-05-01 10:00:00 -0700", "2023-05-01 10:30:00 -0700", "68", "Sam’s iPhone")
	delete(rec, "unit")

	withDevice := intervalRecord(HeadphoneAudioExposureType, "2023-05-01 11:00:00 -0700", "2023-05-01 11:10:00 -0700", "70", "Sam’s iPhone")
	withDevice["unit"] = "dBASPL"
	withDevice["device"] = "<<HKDevice: 0x1>, name:AirPods Pro, manufacturer:Apple Inc.>"

	spec := mustSpec(t, mustRegistry(t, "2023"), HeadphoneAudioExposureOutput)
	ds, _ := NewExtractor(discardLogger()).Extract([]RawRecord{rec, withDevice}, spec)

	rows, _ := ds.Rows("2023-05-01")
	require.Len(t, rows, 2)

	_, ok := rows[0].Get("unit")
	assert.False(t, ok)
	_, ok = rows[0].Get("device")
	assert.False(t, ok)
	assert.Equal(t, spec.Fields(), rows[0].Names())

	device, ok := rows[1].Get("device")
	assert.True(t, ok)
	assert.Equal(t, "AirPods Pro", device)
	unit, _ := rows[1].Get("unit")
	assert.Equal(t, "dBASPL", unit)
}

func TestExtractEmptyStream(t *testing.T) {
	spec := mustSpec(t, mustRegistry(t, "2023"), SpO2Output)
	ds, report := NewExtractor(nil).Extract(nil, spec)

	assert.Equal(t, 0, ds.Len())
	assert.Empty(t, ds.Dates())
	assert.Equal(t, 0, report.Kept)
}

func TestExtractThenSelectWindowShortReference(t *testing.T) {
	records := []RawRecord{
		heartRateRecord("2023-05-01 08:00:00 +0800", "60"),
		heartRateRecord("2022-05-01 08:00:00 +0800", "61"),
		heartRateRecord("2023-05-01 09:00:00 +0800", "62"),
		heartRateRecord("2023-05-02 08:00:00 +0800", "63"),
		heartRateRecord("2023-05-02 09:00:00 +0800", "64"),
	}

	spec := mustSpec(t, mustRegistry(t, "2023"), HeartRateOutput)
	ds, _ := NewExtractor(discardLogger()).Extract(records, spec)
	require.Equal(t, []string{"2023-05-01", "2023-05-02"}, ds.Dates())

	w := SelectWindow(ds, 3)
	assert.Equal(t, []string{"2023-05-01", "2023-05-02"}, w.Dates)
}
