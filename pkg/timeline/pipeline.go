package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotAggregated means a correlation names a category without hourly means
var ErrNotAggregated = errors.New("category is not aggregated")

// CorrelationPair names two aggregated categories to correlate
type CorrelationPair struct {
	Name string `json:"name"`
	A    string `json:"a"`
	B    string `json:"b"`
}

// Plan selects what a pipeline run extracts, aligns, aggregates and correlates
type Plan struct {
	// Categories to extract by output name; empty means every registered one.
	Categories []string `json:"categories,omitempty"`
	// Reference anchors the date window; empty skips alignment and aggregation.
	Reference   string            `json:"reference,omitempty"`
	WindowDays  int               `json:"window_days,omitempty"`
	WindowDates []string          `json:"window_dates,omitempty"`
	Align       []string          `json:"align,omitempty"`
	Correlate   []CorrelationPair `json:"correlate,omitempty"`
}

// DefaultPlan extracts every category and aligns steps, SpO2 and gait length
// onto the first three heart rate days.
func DefaultPlan() Plan {
	return Plan{
		Reference:  HeartRateOutput,
		WindowDays: DefaultWindowDays,
		Align:      []string{StepsOutput, SpO2Output, GaitLengthOutput},
	}
}

// ResolvedPlan is a plan checked against a registry
type ResolvedPlan struct {
	Extract   []CategorySpec
	Aligned   []CategorySpec
	Override  *DateWindow
	Days      int
	Reference string
	Correlate []CorrelationPair
}

// Resolve checks every name in the plan against the registry. Aligned
// categories always start with the reference and are extracted even when not
// listed under Categories.
func (p Plan) Resolve(r *Registry) (ResolvedPlan, error) {
	res := ResolvedPlan{Days: p.WindowDays, Reference: p.Reference, Correlate: p.Correlate}

	names := p.Categories
	if len(names) == 0 {
		names = r.OutputNames()
	}

	included := make(map[string]bool)
	add := func(name string) error {
		if included[name] {
			return nil
		}
		spec, err := r.Lookup(name)
		if err != nil {
			return err
		}
		included[name] = true
		res.Extract = append(res.Extract, spec)
		return nil
	}

	for _, name := range names {
		if err := add(name); err != nil {
			return ResolvedPlan{}, err
		}
	}

	if p.Reference != "" {
		aligned := make(map[string]bool)
		for _, name := range append([]string{p.Reference}, p.Align...) {
			if aligned[name] {
				continue
			}
			if err := add(name); err != nil {
				return ResolvedPlan{}, err
			}
			spec, _ := r.Lookup(name)
			aligned[name] = true
			res.Aligned = append(res.Aligned, spec)
		}
	} else if len(p.Align) > 0 {
		return ResolvedPlan{}, errors.New("align requires a reference category")
	}

	if len(p.WindowDates) > 0 {
		w := NewDateWindow(p.WindowDates...)
		res.Override = &w
	}

	for _, pair := range p.Correlate {
		for _, name := range []string{pair.A, pair.B} {
			spec, err := r.Lookup(name)
			if err != nil {
				return ResolvedPlan{}, fmt.Errorf("correlation %s: %w", pair.Name, err)
			}
			if spec.Aggregation == nil || !containsSpec(res.Aligned, name) {
				return ResolvedPlan{}, fmt.Errorf("correlation %s: %w: %s", pair.Name, ErrNotAggregated, name)
			}
		}
	}

	return res, nil
}

// Window returns the override window, or the first dates of the reference
func (rp ResolvedPlan) Window(reference Dataset) DateWindow {
	if rp.Override != nil {
		return *rp.Override
	}
	return SelectWindow(reference, rp.Days)
}

func containsSpec(specs []CategorySpec, outputName string) bool {
	for _, s := range specs {
		if s.OutputName == outputName {
			return true
		}
	}
	return false
}

// Sink receives every dataset the pipeline produces
type Sink interface {
	WriteDataset(ctx context.Context, ds Dataset) error
	WriteWindowed(ctx context.Context, ds Dataset) error
	WriteAggregated(ctx context.Context, agg AggregatedDataset) error
}

// AggregationSummary describes one aggregated output
type AggregationSummary struct {
	Category   string   `json:"category"`
	OutputName string   `json:"output_name"`
	Rows       int      `json:"rows"`
	Buckets    int      `json:"buckets"`
	MeanColumn string   `json:"mean_column"`
	StdDev     *float64 `json:"std_dev,omitempty"`
}

// Summarize builds the summary of an aggregated dataset
func Summarize(agg AggregatedDataset) AggregationSummary {
	s := AggregationSummary{
		Category:   agg.Name,
		OutputName: agg.OutputName,
		Rows:       len(agg.Rows),
		Buckets:    len(HourlyMeans(agg)),
		MeanColumn: agg.MeanColumn,
	}
	if len(agg.Rows) > 0 {
		s.StdDev = agg.Rows[0].StdDev
	}
	return s
}

// CorrelationReport is the outcome of one configured correlation
type CorrelationReport struct {
	Name        string             `json:"name"`
	A           string             `json:"a"`
	B           string             `json:"b"`
	Result      *CorrelationResult `json:"result,omitempty"`
	Positive    bool               `json:"positive,omitempty"`
	Significant bool               `json:"significant,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// CorrelatePair correlates two aggregated series. Undefined correlations are
// reported in the result rather than returned as errors.
func CorrelatePair(pair CorrelationPair, a, b AggregatedDataset) CorrelationReport {
	report := CorrelationReport{Name: pair.Name, A: pair.A, B: pair.B}
	res, err := Correlate(a, b)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Result = &res
	report.Positive = res.Positive()
	report.Significant = res.Significant()
	return report
}

// Report is the result of a pipeline run
type Report struct {
	Extractions  []ExtractReport      `json:"extractions"`
	Window       DateWindow           `json:"window"`
	Aggregations []AggregationSummary `json:"aggregations,omitempty"`
	Correlations []CorrelationReport  `json:"correlations,omitempty"`
}

// Pipeline runs extraction, alignment, aggregation and correlation in process
type Pipeline struct {
	logger    *slog.Logger
	registry  *Registry
	extractor *Extractor
	sink      Sink
}

// NewPipeline wires a pipeline to a registry and a sink
func NewPipeline(logger *slog.Logger, registry *Registry, sink Sink) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:    logger,
		registry:  registry,
		extractor: NewExtractor(logger),
		sink:      sink,
	}
}

// Run executes a plan over a fully materialized record stream
func (p *Pipeline) Run(ctx context.Context, records []RawRecord, plan Plan) (*Report, error) {
	resolved, err := plan.Resolve(p.registry)
	if err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	report := &Report{Window: DateWindow{Dates: []string{}}}
	datasets := make(map[string]Dataset, len(resolved.Extract))

	for _, spec := range resolved.Extract {
		ds, extractReport := p.extractor.Extract(records, spec)
		report.Extractions = append(report.Extractions, extractReport)
		datasets[spec.OutputName] = ds
		if err := p.sink.WriteDataset(ctx, ds); err != nil {
			return nil, fmt.Errorf("write %s: %w", spec.OutputName, err)
		}
	}

	if resolved.Reference == "" {
		return report, nil
	}

	report.Window = resolved.Window(datasets[resolved.Reference])
	p.logger.Info("Selected date window", "reference", resolved.Reference, "dates", report.Window.Dates)

	aggregated := make(map[string]AggregatedDataset)
	for _, spec := range resolved.Aligned {
		windowed := ApplyWindow(datasets[spec.OutputName], report.Window)
		if err := p.sink.WriteWindowed(ctx, windowed); err != nil {
			return nil, fmt.Errorf("write windowed %s: %w", spec.OutputName, err)
		}
		if spec.Aggregation == nil {
			continue
		}
		agg, err := AggregateDataset(windowed, *spec.Aggregation)
		if err != nil {
			return nil, err
		}
		if err := p.sink.WriteAggregated(ctx, agg); err != nil {
			return nil, fmt.Errorf("write aggregated %s: %w", spec.OutputName, err)
		}
		aggregated[spec.OutputName] = agg
		report.Aggregations = append(report.Aggregations, Summarize(agg))
	}

	for _, pair := range resolved.Correlate {
		c := CorrelatePair(pair, aggregated[pair.A], aggregated[pair.B])
		if c.Error != "" {
			p.logger.Warn("Correlation undefined", "name", pair.Name, "error", c.Error)
		}
		report.Correlations = append(report.Correlations, c)
	}

	return report, nil
}
