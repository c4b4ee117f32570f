package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkMocks "go.temporal.io/sdk/mocks"

	"github.com/leowmjw/go-health-timeline/internal/config"
	"github.com/leowmjw/go-health-timeline/pkg/temporal"
	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

const exportXML = `<?xml version="1.0" encoding="UTF-8"?>
<HealthData locale="en_US">
 <Record type="HKQuantityTypeIdentifierHeartRate" sourceName="Watch" creationDate="2023-05-01 08:01:00 +0800" startDate="2023-05-01 08:00:00 +0800" endDate="2023-05-01 08:00:00 +0800" value="60"/>
 <Record type="HKQuantityTypeIdentifierHeartRate" sourceName="Watch" creationDate="2023-05-01 09:01:00 +0800" startDate="2023-05-01 09:00:00 +0800" endDate="2023-05-01 09:00:00 +0800" value="70"/>
 <Record type="HKQuantityTypeIdentifierHeartRate" sourceName="Watch" creationDate="2023-05-02 10:01:00 +0800" startDate="2023-05-02 10:00:00 +0800" endDate="2023-05-02 10:00:00 +0800" value="90"/>
 <Record type="HKQuantityTypeIdentifierStepCount" sourceName="Phone" creationDate="2023-05-01 08:20:00 +0800" startDate="2023-05-01 08:00:00 +0800" endDate="2023-05-01 08:10:00 +0800" value="100"/>
 <Record type="HKQuantityTypeIdentifierStepCount" sourceName="Phone" creationDate="2023-05-01 09:20:00 +0800" startDate="2023-05-01 09:00:00 +0800" endDate="2023-05-01 09:10:00 +0800" value="200"/>
 <Record type="HKQuantityTypeIdentifierStepCount" sourceName="Phone" creationDate="2023-05-02 10:20:00 +0800" startDate="2023-05-02 10:00:00 +0800" endDate="2023-05-02 10:10:00 +0800" value="300"/>
 <Record type="HKCategoryTypeIdentifierSleepAnalysis" sourceName="Phone" startDate="2023-05-01 23:00:00 +0800" endDate="2023-05-02 07:00:00 +0800" value="HKCategoryValueSleepAnalysisInBed"/>
</HealthData>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.xml")
	require.NoError(t, os.WriteFile(path, []byte(exportXML), 0644))
	return path
}

func TestParseFlags(t *testing.T) {
	cfg := config.Config{OutputDir: "output", TemporalAddr: "localhost:7233", Namespace: "default", TaskQueue: "health-pipeline", LogLevel: "info"}

	opts, err := parseFlags([]string{"-export", "export.xml", "-year", "2023"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, modeLocal, opts.mode)
	assert.Equal(t, "output", opts.outputDir)
	assert.Equal(t, "health-pipeline", opts.taskQueue)

	_, err = parseFlags([]string{"-mode", "replay"}, cfg)
	assert.Error(t, err)

	_, err = parseFlags([]string{"-mode", "submit"}, cfg)
	assert.EqualError(t, err, "submit mode requires -config")
}

func TestLoadRequest(t *testing.T) {
	request, err := loadRequest(options{exportPath: "export.xml", year: "2023"})
	require.NoError(t, err)
	assert.Equal(t, timeline.HeartRateOutput, request.Plan.Reference)
	require.Len(t, request.Plan.Correlate, 1)

	_, err = loadRequest(options{exportPath: "export.xml"})
	assert.Error(t, err)

	_, err = loadRequest(options{exportPath: "export.xml", year: "202"})
	assert.Error(t, err)

	request, err = loadRequest(options{configPath: "../../pkg/hcl/testdata/default_pipeline.hcl", exportPath: "/tmp/mine.xml"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/mine.xml", request.ExportID)
}

func TestRunLocal(t *testing.T) {
	exportPath := writeExport(t)
	outDir := t.TempDir()

	var out bytes.Buffer
	err := run(context.Background(), options{
		mode:       modeLocal,
		exportPath: exportPath,
		year:       "2023",
		outputDir:  outDir,
	}, &out, quietLogger())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(outDir, "json", "heart_rate_data.json"))
	assert.FileExists(t, filepath.Join(outDir, "csv", "three_days_steps_data.csv"))
	assert.FileExists(t, filepath.Join(outDir, "descriptive_statistics", "mean_heart_rate_three_days.csv"))

	text := out.String()
	assert.Contains(t, text, "Window: 2023-05-01, 2023-05-02")
	assert.Contains(t, text, "Correlation steps_vs_heart_rate")
	assert.Contains(t, text, "The correlation is positive.")
}

func TestListTypes(t *testing.T) {
	exportPath := writeExport(t)
	target := filepath.Join(t.TempDir(), "dataTypes.txt")

	require.NoError(t, run(context.Background(), options{exportPath: exportPath, listTypes: target}, io.Discard, quietLogger()))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "HeartRate, StepCount, SleepAnalysis", string(content))

	assert.Error(t, listTypes("", target, quietLogger()))
}

func TestListTypesFromConfig(t *testing.T) {
	exportPath := writeExport(t)
	configPath := filepath.Join(t.TempDir(), "pipeline.hcl")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf("export_id = %q\nyear = \"2023\"\n", exportPath)), 0644))
	target := filepath.Join(t.TempDir(), "dataTypes.txt")

	require.NoError(t, run(context.Background(), options{configPath: configPath, listTypes: target}, io.Discard, quietLogger()))

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "HeartRate, StepCount, SleepAnalysis", string(content))
}

func TestSubmit(t *testing.T) {
	request := &temporal.PipelineRequest{ExportID: "export.xml", Year: "2023", Plan: timeline.DefaultPlan()}

	workflowRun := new(sdkMocks.WorkflowRun)
	workflowRun.On("Get", mock.Anything, mock.AnythingOfType("*temporal.PipelineResult")).
		Run(func(args mock.Arguments) {
			result := args[1].(*temporal.PipelineResult)
			result.ExportID = "export.xml"
			result.Window = timeline.NewDateWindow("2023-05-01")
		}).
		Return(nil)

	mockClient := new(sdkMocks.Client)
	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, *request).
		Return(workflowRun, nil).Once()

	result, err := submit(context.Background(), mockClient, "health-pipeline", request, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-05-01"}, result.Window.Dates)
	mockClient.AssertExpectations(t)

	failing := new(sdkMocks.Client)
	failing.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("unavailable")).Once()
	_, err = submit(context.Background(), failing, "health-pipeline", request, quietLogger())
	assert.ErrorContains(t, err, "failed to execute pipeline workflow")
}

func TestDisplayReport(t *testing.T) {
	report := &timeline.Report{
		Extractions: []timeline.ExtractReport{{Category: timeline.StepsOutput, Kept: 3, Dates: 2}},
		Correlations: []timeline.CorrelationReport{
			{Name: "undefined", A: timeline.StepsOutput, B: timeline.HeartRateOutput, Error: "insufficient data"},
			{
				Name:   "weak",
				A:      timeline.SpO2Output,
				B:      timeline.HeartRateOutput,
				Result: &timeline.CorrelationResult{Coefficient: -0.2, PValue: 0.6, Pairs: 5},
			},
		},
	}

	var out bytes.Buffer
	require.NoError(t, displayReport(&out, report, false))
	text := out.String()
	assert.Contains(t, text, "steps_data: 3 records over 2 dates")
	assert.Contains(t, text, "undefined: insufficient data")
	assert.Contains(t, text, "The correlation is negative.")
	assert.Contains(t, text, "The correlation is not statistically significant.")

	out.Reset()
	require.NoError(t, displayReport(&out, report, true))
	assert.Contains(t, out.String(), `"correlations"`)
}
