package temporal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

const (
	// Workflow IDs
	PipelineWorkflowIDPrefix = "pipeline-"

	// Task queue shared by the server worker and the submit client
	DefaultTaskQueue = "health-pipeline"

	// Activity names
	SnapshotExportActivityName  = "snapshot-export"
	ExtractCategoryActivityName = "extract-category"
	AggregateActivityName       = "aggregate-category"
	CorrelateActivityName       = "correlate-pair"
)

// GeneratePipelineWorkflowID creates a unique workflow ID for a pipeline run
func GeneratePipelineWorkflowID(exportID string) string {
	return PipelineWorkflowIDPrefix + exportID + "-" + uuid.NewString()
}

// PipelineWorkflow pins one generation of the export, extracts every category
// of a plan from it, aligns the reference and its aligned categories on a
// common date window, aggregates them by hour and runs the configured
// correlations. Full datasets stay inside the activities; only windowed rows
// come back to the workflow.
func PipelineWorkflow(ctx workflow.Context, request PipelineRequest) (*PipelineResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting pipeline workflow", "exportID", request.ExportID, "year", request.Year)

	registry, err := timeline.DefaultRegistry(request.Year)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), invalidRequestErrorType, err)
	}
	resolved, err := request.Plan.Resolve(registry)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), invalidRequestErrorType, err)
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	result := &PipelineResult{
		ExportID: request.ExportID,
		Year:     request.Year,
		Report:   timeline.Report{Window: timeline.DateWindow{Dates: []string{}}},
	}

	// Step 1: pin the export generation every extraction reads
	var generation int64
	if err := workflow.ExecuteActivity(ctx, SnapshotExportActivityName, request.ExportID).Get(ctx, &generation); err != nil {
		return nil, fmt.Errorf("failed to snapshot export %s: %w", request.ExportID, err)
	}

	aligned := make(map[string]bool, len(resolved.Aligned))
	for _, spec := range resolved.Aligned {
		aligned[spec.OutputName] = true
	}

	extract := func(category string, window *timeline.DateWindow, selectWindow bool) workflow.Future {
		return workflow.ExecuteActivity(ctx, ExtractCategoryActivityName, ExtractRequest{
			ExportID:     request.ExportID,
			Generation:   generation,
			Year:         request.Year,
			Category:     category,
			SelectWindow: selectWindow,
			WindowDays:   resolved.Days,
			Window:       window,
		})
	}

	// Step 2: extract the reference and every unaligned category in parallel.
	// The reference extraction picks the window, unless the plan overrides it.
	extractFutures := make(map[string]workflow.Future, len(resolved.Extract))
	for _, spec := range resolved.Extract {
		switch {
		case spec.OutputName == resolved.Reference:
			extractFutures[spec.OutputName] = extract(spec.OutputName, resolved.Override, true)
		case !aligned[spec.OutputName]:
			extractFutures[spec.OutputName] = extract(spec.OutputName, nil, false)
		}
	}

	extracted := make(map[string]ExtractResult, len(resolved.Extract))
	get := func(category string) error {
		if _, done := extracted[category]; done {
			return nil
		}
		var res ExtractResult
		if err := extractFutures[category].Get(ctx, &res); err != nil {
			return fmt.Errorf("failed to extract %s: %w", category, err)
		}
		extracted[category] = res
		return nil
	}

	// Step 3: extract the aligned categories against the reference window
	if resolved.Reference != "" {
		if err := get(resolved.Reference); err != nil {
			return nil, err
		}
		if w := extracted[resolved.Reference].Window; w != nil {
			result.Window = *w
		}
		logger.Info("Selected date window", "reference", resolved.Reference, "dates", result.Window.Dates)

		window := result.Window
		for _, spec := range resolved.Aligned {
			if spec.OutputName != resolved.Reference {
				extractFutures[spec.OutputName] = extract(spec.OutputName, &window, false)
			}
		}
	}

	for _, spec := range resolved.Extract {
		if err := get(spec.OutputName); err != nil {
			return nil, err
		}
		result.Extractions = append(result.Extractions, extracted[spec.OutputName].Report)
	}

	if resolved.Reference == "" {
		logger.Info("Pipeline completed without alignment", "categories", len(result.Extractions))
		return result, nil
	}

	// Step 4: write and aggregate every aligned category
	aggregateFutures := make([]workflow.Future, len(resolved.Aligned))
	for i, spec := range resolved.Aligned {
		windowed := timeline.Dataset{Name: spec.OutputName, Days: []timeline.DayRows{}}
		if ds := extracted[spec.OutputName].Windowed; ds != nil {
			windowed = *ds
		}
		aggregateFutures[i] = workflow.ExecuteActivity(ctx, AggregateActivityName, AggregateRequest{
			Year:     request.Year,
			Category: spec.OutputName,
			Windowed: windowed,
		})
	}

	aggregated := make(map[string]timeline.AggregatedDataset)
	for i, future := range aggregateFutures {
		var agg AggregateResult
		if err := future.Get(ctx, &agg); err != nil {
			return nil, fmt.Errorf("failed to aggregate %s: %w", resolved.Aligned[i].OutputName, err)
		}
		if agg.Aggregated == nil {
			continue
		}
		aggregated[resolved.Aligned[i].OutputName] = *agg.Aggregated
		result.Aggregations = append(result.Aggregations, *agg.Summary)
	}

	// Step 5: correlations
	correlateFutures := make([]workflow.Future, len(resolved.Correlate))
	for i, pair := range resolved.Correlate {
		correlateFutures[i] = workflow.ExecuteActivity(ctx, CorrelateActivityName, CorrelateRequest{
			Pair: pair,
			A:    aggregated[pair.A],
			B:    aggregated[pair.B],
		})
	}
	for i, future := range correlateFutures {
		var report timeline.CorrelationReport
		if err := future.Get(ctx, &report); err != nil {
			return nil, fmt.Errorf("failed to correlate %s: %w", resolved.Correlate[i].Name, err)
		}
		result.Correlations = append(result.Correlations, report)
	}

	logger.Info("Pipeline completed",
		"categories", len(result.Extractions),
		"windowDays", result.Window.Len(),
		"aggregations", len(result.Aggregations),
		"correlations", len(result.Correlations))
	return result, nil
}
