package hcl

import (
	"github.com/stretchr/testify/assert"

	"github.com/leowmjw/go-health-timeline/pkg/temporal"
	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

// TestingT is the part of *testing.T the assertion helpers use
type TestingT interface {
	assert.TestingT
	Helper()
}

// AssertRequestsEqual compares two PipelineRequest objects for equality in tests.
// Nil and empty lists are treated alike.
func AssertRequestsEqual(t TestingT, expected, actual *temporal.PipelineRequest) {
	t.Helper()
	assert.Equal(t, expected.ExportID, actual.ExportID)
	assert.Equal(t, expected.Year, actual.Year)
	AssertPlansEqual(t, expected.Plan, actual.Plan)
}

// AssertPlansEqual compares two plans field by field. List order is part of
// the plan: it fixes extraction, alignment and report order.
func AssertPlansEqual(t TestingT, expected, actual timeline.Plan) {
	t.Helper()
	assertSameList(t, expected.Categories, actual.Categories, "categories")
	assert.Equal(t, expected.Reference, actual.Reference)
	assert.Equal(t, expected.WindowDays, actual.WindowDays)
	assertSameList(t, expected.WindowDates, actual.WindowDates, "window dates")
	assertSameList(t, expected.Align, actual.Align, "align")

	assert.Equal(t, len(expected.Correlate), len(actual.Correlate))
	for i := 0; i < len(expected.Correlate) && i < len(actual.Correlate); i++ {
		assert.Equal(t, expected.Correlate[i], actual.Correlate[i])
	}
}

func assertSameList(t TestingT, expected, actual []string, field string) {
	t.Helper()
	if len(expected) == 0 && len(actual) == 0 {
		return
	}
	assert.Equal(t, expected, actual, field)
}
