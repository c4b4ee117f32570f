package temporal

import (
	"errors"

	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

// PipelineRequest asks for one pipeline run over a stored export
type PipelineRequest struct {
	ExportID string        `json:"export_id"`
	Year     string        `json:"year"`
	Plan     timeline.Plan `json:"plan"`
}

// Validate checks the request against the default registry for its year
func (r PipelineRequest) Validate() error {
	if r.ExportID == "" {
		return errors.New("export_id is required")
	}
	registry, err := timeline.DefaultRegistry(r.Year)
	if err != nil {
		return err
	}
	_, err = r.Plan.Resolve(registry)
	return err
}

// PipelineResult is the outcome of a pipeline workflow
type PipelineResult struct {
	ExportID string `json:"export_id"`
	Year     string `json:"year"`
	timeline.Report
}

// ExtractRequest runs one category extraction against a pinned generation of
// an export. The full dataset only goes to the sink. A reference extraction
// sets SelectWindow and an aligned one passes Window; both get back just the
// windowed rows.
type ExtractRequest struct {
	ExportID     string               `json:"export_id"`
	Generation   int64                `json:"generation"`
	Year         string               `json:"year"`
	Category     string               `json:"category"`
	SelectWindow bool                 `json:"select_window,omitempty"`
	WindowDays   int                  `json:"window_days,omitempty"`
	Window       *timeline.DateWindow `json:"window,omitempty"`
}

// ExtractResult is the report of one extraction. Window and Windowed are set
// when the request asked for a window.
type ExtractResult struct {
	Report   timeline.ExtractReport `json:"report"`
	Window   *timeline.DateWindow   `json:"window,omitempty"`
	Windowed *timeline.Dataset      `json:"windowed,omitempty"`
}

// AggregateRequest carries a windowed dataset to be written and aggregated
type AggregateRequest struct {
	Year     string           `json:"year"`
	Category string           `json:"category"`
	Windowed timeline.Dataset `json:"windowed"`
}

// AggregateResult is empty for categories without an aggregation spec
type AggregateResult struct {
	Aggregated *timeline.AggregatedDataset   `json:"aggregated,omitempty"`
	Summary    *timeline.AggregationSummary `json:"summary,omitempty"`
}

// CorrelateRequest pairs two aggregated series
type CorrelateRequest struct {
	Pair timeline.CorrelationPair   `json:"pair"`
	A    timeline.AggregatedDataset `json:"a"`
	B    timeline.AggregatedDataset `json:"b"`
}
