package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := DefaultRegistry("2023")
	require.NoError(t, err)

	assert.Equal(t, []string{
		HeartRateOutput,
		RestingHeartRateOutput,
		HeartRateVariabilityOutput,
		StepsOutput,
		GaitLengthOutput,
		EnvironmentalAudioExposureOutput,
		HeadphoneAudioExposureOutput,
		TimeInDaylightOutput,
		SpO2Output,
	}, r.OutputNames())

	for _, spec := range r.Specs() {
		assert.Equal(t, "2023", spec.TargetYear)
	}
}

func TestDefaultOutputNames(t *testing.T) {
	r, err := DefaultRegistry("2023")
	require.NoError(t, err)
	assert.Equal(t, r.OutputNames(), DefaultOutputNames())
}

func TestRegistryFields(t *testing.T) {
	r := mustRegistry(t, "2023")

	tests := []struct {
		output string
		fields []string
	}{
		{HeartRateOutput, []string{"heartRate", "time"}},
		{HeartRateVariabilityOutput, []string{"heartRateVariability", "time"}},
		{StepsOutput, []string{"startTime", "endTime", "totalTime", "steps", "source"}},
		{GaitLengthOutput, []string{"startTime", "endTime", "totalTime", "gaitLength", "unit", "source"}},
		{EnvironmentalAudioExposureOutput, []string{"startTime", "endTime", "totalTime", "environmentalAudioExposure", "unit", "device"}},
		{TimeInDaylightOutput, []string{"startTime", "endTime", "totalTime", "timeInDayLightValue", "unit"}},
		{SpO2Output, []string{"startTime", "endTime", "totalTime", "SpO2", "source", "unit"}},
	}

	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			assert.Equal(t, tt.fields, mustSpec(t, r, tt.output).Fields())
		})
	}
}

func TestRegistryAggregations(t *testing.T) {
	r := mustRegistry(t, "2023")

	hr := mustSpec(t, r, HeartRateOutput)
	require.NotNil(t, hr.Aggregation)
	assert.True(t, hr.Aggregation.IncludeStdDev)
	assert.Equal(t, "meanHeartRate", hr.Aggregation.MeanColumn)

	spo2 := mustSpec(t, r, SpO2Output)
	require.NotNil(t, spo2.Aggregation)
	assert.False(t, spo2.Aggregation.IncludeStdDev)
	assert.Equal(t, "meanSpo2", spo2.Aggregation.MeanColumn)

	assert.Nil(t, mustSpec(t, r, TimeInDaylightOutput).Aggregation)
}

func TestNewRegistryValidation(t *testing.T) {
	sel := SelectorFunc(selectHeartRate)

	_, err := NewRegistry(CategorySpec{Identifier: HeartRateType, TargetYear: "23", Selector: sel, OutputName: "a"})
	assert.ErrorIs(t, err, ErrInvalidYear)

	_, err = NewRegistry(
		CategorySpec{Identifier: HeartRateType, TargetYear: "2023", Selector: sel, OutputName: "a"},
		CategorySpec{Identifier: RestingHeartRateType, TargetYear: "2023", Selector: sel, OutputName: "a"},
	)
	assert.ErrorIs(t, err, ErrDuplicateOutputName)

	_, err = NewRegistry(CategorySpec{Identifier: HeartRateType, TargetYear: "2023", OutputName: "a"})
	assert.Error(t, err)

	_, err = DefaultRegistry("20x3")
	assert.ErrorIs(t, err, ErrInvalidYear)
}

func TestRegistryLookupUnknown(t *testing.T) {
	_, err := mustRegistry(t, "2023").Lookup("sleep_data")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestValidYear(t *testing.T) {
	assert.True(t, ValidYear("2023"))
	assert.False(t, ValidYear(""))
	assert.False(t, ValidYear("023"))
	assert.False(t, ValidYear("20233"))
	assert.False(t, ValidYear("２０２３"))
}
