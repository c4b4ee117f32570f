package timeline

import (
	"errors"
	"fmt"
)

// HealthKit category identifiers handled by the default registry
const (
	HeartRateType                  = "HKQuantityTypeIdentifierHeartRate"
	RestingHeartRateType           = "HKQuantityTypeIdentifierRestingHeartRate"
	HeartRateVariabilityType       = "HKQuantityTypeIdentifierHeartRateVariabilitySDNN"
	StepCountType                  = "HKQuantityTypeIdentifierStepCount"
	WalkingStepLengthType          = "HKQuantityTypeIdentifierWalkingStepLength"
	EnvironmentalAudioExposureType = "HKQuantityTypeIdentifierEnvironmentalAudioExposure"
	HeadphoneAudioExposureType     = "HKQuantityTypeIdentifierHeadphoneAudioExposure"
	TimeInDaylightType             = "HKQuantityTypeIdentifierTimeInDaylight"
	OxygenSaturationType           = "HKQuantityTypeIdentifierOxygenSaturation"
)

// Output names, the stable identifiers downstream consumers ask for
const (
	HeartRateOutput                  = "heart_rate_data"
	RestingHeartRateOutput           = "resting_heart_rate_data"
	HeartRateVariabilityOutput       = "heart_rate_variability_data"
	StepsOutput                      = "steps_data"
	GaitLengthOutput                 = "gait_length_data"
	EnvironmentalAudioExposureOutput = "environmental_audio_exposure_data"
	HeadphoneAudioExposureOutput     = "headphone_audio_exposure_data"
	TimeInDaylightOutput             = "time_in_daylight_data"
	SpO2Output                       = "spo2_data"
)

var (
	ErrInvalidYear         = errors.New("target year must be four digits")
	ErrDuplicateOutputName = errors.New("duplicate output name")
	ErrUnknownCategory     = errors.New("unknown category")
)

// FieldSelector shapes the derived fields of a kept record into an output row
type FieldSelector interface {
	Select(d DerivedFields) ShapedRow
}

// SelectorFunc adapts a plain function to FieldSelector
type SelectorFunc func(d DerivedFields) ShapedRow

func (f SelectorFunc) Select(d DerivedFields) ShapedRow {
	return f(d)
}

// AggregationSpec names the columns hourly aggregation works on for a category
type AggregationSpec struct {
	TimeField     string `json:"time_field"`
	ValueField    string `json:"value_field"`
	MeanColumn    string `json:"mean_column"`
	IncludeStdDev bool   `json:"include_std_dev,omitempty"`
	OutputName    string `json:"output_name"`
}

// CategorySpec describes how one physiological category is extracted
type CategorySpec struct {
	Identifier  string
	TargetYear  string
	Selector    FieldSelector
	OutputName  string
	Aggregation *AggregationSpec
}

// Fields lists the column names the selector produces
func (s CategorySpec) Fields() []string {
	return s.Selector.Select(DerivedFields{}).Names()
}

// Registry is an immutable table of category specs keyed by output name
type Registry struct {
	specs    []CategorySpec
	byOutput map[string]int
}

// NewRegistry validates and indexes specs. Every spec needs a four digit year
// and an output name no other spec uses.
func NewRegistry(specs ...CategorySpec) (*Registry, error) {
	r := &Registry{
		specs:    make([]CategorySpec, 0, len(specs)),
		byOutput: make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		if !ValidYear(spec.TargetYear) {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidYear, spec.TargetYear, spec.OutputName)
		}
		if spec.Selector == nil {
			return nil, fmt.Errorf("category %s has no field selector", spec.OutputName)
		}
		if _, exists := r.byOutput[spec.OutputName]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOutputName, spec.OutputName)
		}
		r.byOutput[spec.OutputName] = len(r.specs)
		r.specs = append(r.specs, spec)
	}
	return r, nil
}

// Lookup returns the category registered under an output name
func (r *Registry) Lookup(outputName string) (CategorySpec, error) {
	i, ok := r.byOutput[outputName]
	if !ok {
		return CategorySpec{}, fmt.Errorf("%w: %s", ErrUnknownCategory, outputName)
	}
	return r.specs[i], nil
}

// Specs returns the registered specs in registration order
func (r *Registry) Specs() []CategorySpec {
	out := make([]CategorySpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// OutputNames returns the registered output names in registration order
func (r *Registry) OutputNames() []string {
	names := make([]string, len(r.specs))
	for i, s := range r.specs {
		names[i] = s.OutputName
	}
	return names
}

// ValidYear reports whether year is a YYYY string
func ValidYear(year string) bool {
	if len(year) != 4 {
		return false
	}
	for _, c := range year {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// DefaultOutputNames returns the output names of the default registry in
// registration order. The names do not depend on the target year.
func DefaultOutputNames() []string {
	registry, err := DefaultRegistry("0000")
	if err != nil {
		return nil
	}
	return registry.OutputNames()
}

// DefaultRegistry returns the nine supported categories for a target year
func DefaultRegistry(year string) (*Registry, error) {
	return NewRegistry(
		CategorySpec{
			Identifier: HeartRateType,
			TargetYear: year,
			Selector:   SelectorFunc(selectHeartRate),
			OutputName: HeartRateOutput,
			Aggregation: &AggregationSpec{
				TimeField:     "time",
				ValueField:    "heartRate",
				MeanColumn:    "meanHeartRate",
				IncludeStdDev: true,
				OutputName:    "mean_heart_rate_three_days",
			},
		},
		CategorySpec{
			Identifier: RestingHeartRateType,
			TargetYear: year,
			Selector:   SelectorFunc(selectRestingHeartRate),
			OutputName: RestingHeartRateOutput,
		},
		CategorySpec{
			Identifier: HeartRateVariabilityType,
			TargetYear: year,
			Selector:   SelectorFunc(selectHeartRateVariability),
			OutputName: HeartRateVariabilityOutput,
		},
		CategorySpec{
			Identifier: StepCountType,
			TargetYear: year,
			Selector:   SelectorFunc(selectSteps),
			OutputName: StepsOutput,
			Aggregation: &AggregationSpec{
				TimeField:  "startTime",
				ValueField: "steps",
				MeanColumn: "meanSteps",
				OutputName: "mean_steps_three_days",
			},
		},
		CategorySpec{
			Identifier: WalkingStepLengthType,
			TargetYear: year,
			Selector:   SelectorFunc(selectGaitLength),
			OutputName: GaitLengthOutput,
			Aggregation: &AggregationSpec{
				TimeField:  "startTime",
				ValueField: "gaitLength",
				MeanColumn: "meanGaitLength",
				OutputName: "mean_gait_length_three_days",
			},
		},
		CategorySpec{
			Identifier: EnvironmentalAudioExposureType,
			TargetYear: year,
			Selector:   SelectorFunc(selectEnvironmentalAudio),
			OutputName: EnvironmentalAudioExposureOutput,
		},
		CategorySpec{
			Identifier: HeadphoneAudioExposureType,
			TargetYear: year,
			Selector:   SelectorFunc(selectHeadphoneAudio),
			OutputName: HeadphoneAudioExposureOutput,
		},
		CategorySpec{
			Identifier: TimeInDaylightType,
			TargetYear: year,
			Selector:   SelectorFunc(selectTimeInDaylight),
			OutputName: TimeInDaylightOutput,
		},
		CategorySpec{
			Identifier: OxygenSaturationType,
			TargetYear: year,
			Selector:   SelectorFunc(selectSpO2),
			OutputName: SpO2Output,
			Aggregation: &AggregationSpec{
				TimeField:  "startTime",
				ValueField: "SpO2",
				MeanColumn: "meanSpo2",
				OutputName: "mean_spo2_three_days",
			},
		},
	)
}

// Per-category selectors

func selectHeartRate(d DerivedFields) ShapedRow {
	return ShapedRow{
		Str("heartRate", d.Value),
		Str("time", d.CreationTime),
	}
}

func selectRestingHeartRate(d DerivedFields) ShapedRow {
	return ShapedRow{
		Str("heartRate", d.Value),
		Str("time", d.CreationTime),
	}
}

func selectHeartRateVariability(d DerivedFields) ShapedRow {
	return ShapedRow{
		Str("heartRateVariability", d.Value),
		Str("time", d.CreationTime),
	}
}

func intervalFields(d DerivedFields) ShapedRow {
	return ShapedRow{
		Str("startTime", d.StartTime),
		Str("endTime", d.EndTime),
		Str("totalTime", d.TotalTime()),
	}
}

func selectSteps(d DerivedFields) ShapedRow {
	return append(intervalFields(d),
		Str("steps", d.Value),
		Str("source", string(d.Source)),
	)
}

func selectGaitLength(d DerivedFields) ShapedRow {
	return append(intervalFields(d),
		Str("gaitLength", d.Value),
		Str("unit", d.Unit),
		Str("source", string(d.Source)),
	)
}

// Audio exposure rows report the raw unit attribute, so a missing unit stays absent.
func selectEnvironmentalAudio(d DerivedFields) ShapedRow {
	return append(intervalFields(d),
		Str("environmentalAudioExposure", d.Value),
		Opt("unit", d.Unit, d.HasUnit),
		Opt("device", d.Device, d.HasDevice),
	)
}

func selectHeadphoneAudio(d DerivedFields) ShapedRow {
	return append(intervalFields(d),
		Str("headphoneAudioExposure", d.Value),
		Opt("unit", d.Unit, d.HasUnit),
		Opt("device", d.Device, d.HasDevice),
	)
}

func selectTimeInDaylight(d DerivedFields) ShapedRow {
	return append(intervalFields(d),
		Str("timeInDayLightValue", d.Value),
		Str("unit", d.Unit),
	)
}

func selectSpO2(d DerivedFields) ShapedRow {
	return append(intervalFields(d),
		Str("SpO2", d.Value),
		Str("source", string(d.Source)),
		Str("unit", d.Unit),
	)
}
