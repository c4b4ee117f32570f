package hcl

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

func TestParsePipelineConfig(t *testing.T) {
	hclContent := `
export_id = "export.xml"
year      = "2023"

window {
  reference = category.heart_rate
  align     = [category.steps, category.spo2]
}

correlate "steps_vs_heart_rate" {
  a = category.steps
  b = category.heart_rate
}
`
	request, err := ParsePipelineConfig(hclContent)
	require.NoError(t, err)

	assert.Equal(t, "export.xml", request.ExportID)
	assert.Equal(t, "2023", request.Year)
	assert.Empty(t, request.Plan.Categories)
	assert.Equal(t, timeline.HeartRateOutput, request.Plan.Reference)
	assert.Equal(t, 0, request.Plan.WindowDays)
	assert.Equal(t, []string{timeline.StepsOutput, timeline.SpO2Output}, request.Plan.Align)
	require.Len(t, request.Plan.Correlate, 1)
	assert.Equal(t, timeline.CorrelationPair{
		Name: "steps_vs_heart_rate",
		A:    timeline.StepsOutput,
		B:    timeline.HeartRateOutput,
	}, request.Plan.Correlate[0])
}

func TestParsePipelineConfigExtractOnly(t *testing.T) {
	request, err := ParsePipelineConfig(`
export_id  = "export.xml"
year       = "2022"
categories = ["time_in_daylight_data"]
`)
	require.NoError(t, err)
	assert.Equal(t, []string{timeline.TimeInDaylightOutput}, request.Plan.Categories)
	assert.Empty(t, request.Plan.Reference)
}

func TestEveryRegisteredCategoryHasVariable(t *testing.T) {
	for _, name := range timeline.DefaultOutputNames() {
		short := strings.TrimSuffix(name, "_data")
		t.Run(short, func(t *testing.T) {
			request, err := ParsePipelineConfig(fmt.Sprintf("export_id = \"export.xml\"\nyear = \"2023\"\ncategories = [category.%s]\n", short))
			require.NoError(t, err)
			assert.Equal(t, []string{name}, request.Plan.Categories)
		})
	}
}

func TestParsePipelineConfigErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "syntax",
			content: `export_id = `,
			errText: "failed to parse HCL",
		},
		{
			name:    "missing year",
			content: `export_id = "export.xml"`,
			errText: "failed to decode HCL body",
		},
		{
			name:    "bad year",
			content: "export_id = \"export.xml\"\nyear = \"23\"",
			errText: "target year must be four digits",
		},
		{
			name:    "unknown category",
			content: "export_id = \"export.xml\"\nyear = \"2023\"\ncategories = [\"sleep_data\"]",
			errText: "unknown category",
		},
		{
			name: "bad date",
			content: `
export_id = "export.xml"
year      = "2023"
window {
  reference = "heart_rate_data"
  dates     = [date("2023-13-01")]
}`,
			errText: "invalid date",
		},
		{
			name: "correlate without aggregation",
			content: `
export_id = "export.xml"
year      = "2023"
window {
  reference = "heart_rate_data"
  align     = ["time_in_daylight_data"]
}
correlate "daylight" {
  a = "time_in_daylight_data"
  b = "heart_rate_data"
}`,
			errText: "category is not aggregated",
		},
		{
			name:    "unknown category variable",
			content: "export_id = \"export.xml\"\nyear = \"2023\"\ncategories = [category.sleep]",
			errText: "failed to decode HCL body",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePipelineConfig(tc.content)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errText)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		body        string
		expected    string
	}{
		{"hcl header", "application/vnd.hcl", `{"looks": "like json"}`, ContentTypeHCL},
		{"hcl header with charset", "text/x-hcl; charset=utf-8", "", ContentTypeHCL},
		{"json header", "application/json", `year = "2023"`, ContentTypeJSON},
		{"json body", "", `{"export_id": "export.xml"}`, ContentTypeJSON},
		{"hcl body", "text/plain", "export_id = \"export.xml\"\nyear = \"2023\"", ContentTypeHCL},
		{"empty body", "", "", ContentTypeJSON},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/exports/x/pipeline", bytes.NewBufferString(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}

			got, err := DetectContentType(req)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)

			// The body must still be readable after detection
			buf := new(bytes.Buffer)
			_, err = buf.ReadFrom(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.body, buf.String())
		})
	}
}

func TestIsHCLBasedOnExtension(t *testing.T) {
	assert.True(t, IsHCLBasedOnExtension("pipeline.hcl"))
	assert.True(t, IsHCLBasedOnExtension("nightly.pipeline"))
	assert.False(t, IsHCLBasedOnExtension("pipeline.json"))
}
