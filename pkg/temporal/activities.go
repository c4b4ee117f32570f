package temporal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/leowmjw/go-health-timeline/pkg/export"
	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

// ErrExportNotFound means no records were ever stored under an export ID
var ErrExportNotFound = errors.New("export not found")

// Error types reported to workflows as non-retryable application errors
const (
	invalidRequestErrorType  = "InvalidRequest"
	exportNotFoundErrorType  = "ExportNotFound"
	snapshotChangedErrorType = "SnapshotChanged"
)

// RecordStore serves the records of an export. Snapshot pins a generation and
// LoadRecords returns exactly that generation, so parallel extractions of one
// run agree even while the export is being written to.
type RecordStore interface {
	Snapshot(ctx context.Context, exportID string) (int64, error)
	LoadRecords(ctx context.Context, exportID string, generation int64) ([]timeline.RawRecord, error)
}

// RecordWriter accepts records for an export
type RecordWriter interface {
	AppendRecords(ctx context.Context, exportID string, records []timeline.RawRecord) error
}

// Registrar is the part of a worker, or of a test environment, that
// workflows and activities are registered with.
type Registrar interface {
	RegisterWorkflow(w interface{})
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Activities interface defines all the activities used by PipelineWorkflow
type Activities interface {
	SnapshotExportActivity(ctx context.Context, exportID string) (int64, error)
	ExtractCategoryActivity(ctx context.Context, req ExtractRequest) (*ExtractResult, error)
	AggregateActivity(ctx context.Context, req AggregateRequest) (*AggregateResult, error)
	CorrelateActivity(ctx context.Context, req CorrelateRequest) (*timeline.CorrelationReport, error)
}

// ActivitiesImpl implements the Activities interface
type ActivitiesImpl struct {
	logger    *slog.Logger
	store     RecordStore
	sink      timeline.Sink
	extractor *timeline.Extractor
}

// NewActivitiesImpl creates a new activities implementation
func NewActivitiesImpl(logger *slog.Logger, store RecordStore, sink timeline.Sink) *ActivitiesImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivitiesImpl{
		logger:    logger,
		store:     store,
		sink:      sink,
		extractor: timeline.NewExtractor(logger),
	}
}

// Register adds the pipeline workflow and its activities to a worker
func (a *ActivitiesImpl) Register(r Registrar) {
	r.RegisterWorkflow(PipelineWorkflow)
	r.RegisterActivityWithOptions(a.SnapshotExportActivity, activity.RegisterOptions{Name: SnapshotExportActivityName})
	r.RegisterActivityWithOptions(a.ExtractCategoryActivity, activity.RegisterOptions{Name: ExtractCategoryActivityName})
	r.RegisterActivityWithOptions(a.AggregateActivity, activity.RegisterOptions{Name: AggregateActivityName})
	r.RegisterActivityWithOptions(a.CorrelateActivity, activity.RegisterOptions{Name: CorrelateActivityName})
}

func (a *ActivitiesImpl) lookup(year, category string) (timeline.CategorySpec, error) {
	registry, err := timeline.DefaultRegistry(year)
	if err != nil {
		return timeline.CategorySpec{}, temporal.NewNonRetryableApplicationError(err.Error(), invalidRequestErrorType, err)
	}
	spec, err := registry.Lookup(category)
	if err != nil {
		return timeline.CategorySpec{}, temporal.NewNonRetryableApplicationError(err.Error(), invalidRequestErrorType, err)
	}
	return spec, nil
}

// storeError marks store failures that a retry cannot fix as non-retryable
func storeError(err error, action string) error {
	switch {
	case errors.Is(err, ErrExportNotFound), errors.Is(err, fs.ErrNotExist):
		return temporal.NewNonRetryableApplicationError(err.Error(), exportNotFoundErrorType, err)
	case errors.Is(err, export.ErrInvalidExportID):
		return temporal.NewNonRetryableApplicationError(err.Error(), invalidRequestErrorType, err)
	case errors.Is(err, export.ErrSnapshotChanged):
		return temporal.NewNonRetryableApplicationError(err.Error(), snapshotChangedErrorType, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// SnapshotExportActivity pins the export generation a pipeline run reads
func (a *ActivitiesImpl) SnapshotExportActivity(ctx context.Context, exportID string) (int64, error) {
	generation, err := a.store.Snapshot(ctx, exportID)
	if err != nil {
		a.logger.Error("Failed to snapshot export", "exportID", exportID, "error", err)
		return 0, storeError(err, "snapshot export")
	}
	a.logger.Info("Pinned export generation", "exportID", exportID, "generation", generation)
	return generation, nil
}

// ExtractCategoryActivity extracts one category from a pinned export
// generation and writes the full dataset to the sink. Only the windowed rows
// are returned.
func (a *ActivitiesImpl) ExtractCategoryActivity(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	a.logger.Info("Extracting category", "exportID", req.ExportID, "generation", req.Generation, "category", req.Category, "year", req.Year)

	spec, err := a.lookup(req.Year, req.Category)
	if err != nil {
		return nil, err
	}

	records, err := a.store.LoadRecords(ctx, req.ExportID, req.Generation)
	if err != nil {
		a.logger.Error("Failed to load records", "exportID", req.ExportID, "error", err)
		return nil, storeError(err, "load records")
	}

	ds, report := a.extractor.Extract(records, spec)
	if err := a.sink.WriteDataset(ctx, ds); err != nil {
		a.logger.Error("Failed to write dataset", "category", req.Category, "error", err)
		return nil, fmt.Errorf("failed to write dataset: %w", err)
	}

	result := &ExtractResult{Report: report}

	var window timeline.DateWindow
	switch {
	case req.Window != nil:
		window = *req.Window
	case req.SelectWindow:
		window = timeline.SelectWindow(ds, req.WindowDays)
	default:
		return result, nil
	}

	windowed := timeline.ApplyWindow(ds, window)
	result.Window = &window
	result.Windowed = &windowed
	return result, nil
}

// AggregateActivity writes a windowed dataset and, when the category has an
// aggregation spec, aggregates it by hour and writes the statistics.
func (a *ActivitiesImpl) AggregateActivity(ctx context.Context, req AggregateRequest) (*AggregateResult, error) {
	a.logger.Info("Aggregating category", "category", req.Category, "dates", req.Windowed.Dates(), "rows", req.Windowed.Len())

	spec, err := a.lookup(req.Year, req.Category)
	if err != nil {
		return nil, err
	}

	if err := a.sink.WriteWindowed(ctx, req.Windowed); err != nil {
		return nil, fmt.Errorf("failed to write windowed dataset: %w", err)
	}
	if spec.Aggregation == nil {
		return &AggregateResult{}, nil
	}

	agg, err := timeline.AggregateDataset(req.Windowed, *spec.Aggregation)
	if err != nil {
		// Bad input does not get better on retry.
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), invalidRequestErrorType, err)
	}
	if err := a.sink.WriteAggregated(ctx, agg); err != nil {
		return nil, fmt.Errorf("failed to write aggregated dataset: %w", err)
	}

	summary := timeline.Summarize(agg)
	return &AggregateResult{Aggregated: &agg, Summary: &summary}, nil
}

// CorrelateActivity computes one configured correlation. An undefined
// correlation is part of the report, not an activity failure.
func (a *ActivitiesImpl) CorrelateActivity(ctx context.Context, req CorrelateRequest) (*timeline.CorrelationReport, error) {
	report := timeline.CorrelatePair(req.Pair, req.A, req.B)
	if report.Error != "" {
		a.logger.Warn("Correlation undefined", "name", req.Pair.Name, "error", report.Error)
	} else {
		a.logger.Info("Correlation computed",
			"name", req.Pair.Name,
			"coefficient", report.Result.Coefficient,
			"pValue", report.Result.PValue,
			"significant", report.Significant)
	}
	return &report, nil
}
