package timeline

import (
	"strings"
)

const (
	deviceNameMarker = "name:"

	quantityTypePrefix = "HKQuantityTypeIdentifier"
	categoryTypePrefix = "HKCategoryTypeIdentifier"
)

// ClassifySource maps a sourceName onto the device family that recorded it
func ClassifySource(sourceName string) Source {
	switch {
	case strings.Contains(sourceName, "iPhone"):
		return SourceIPhone
	case strings.Contains(sourceName, "Watch"):
		return SourceWatch
	default:
		return SourceOther
	}
}

// ParseDevice extracts the device name from the semi-structured device attribute,
// e.g. "<<HKDevice: 0x28>, name:Apple Watch, manufacturer:Apple Inc.>" yields "Apple Watch".
// The name runs to the next comma, or to the end when there is none.
func ParseDevice(raw string) (string, bool) {
	i := strings.Index(raw, deviceNameMarker)
	if i < 0 {
		return "", false
	}
	rest := raw[i+len(deviceNameMarker):]
	if j := strings.Index(rest, ","); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), true
}

// Derive computes the derived fields of a record. A missing or unparsable
// timestamp attribute is returned as a *TimestampError.
func Derive(rec RawRecord) (DerivedFields, error) {
	created, err := parseRecordTimestamp(rec, "creationDate")
	if err != nil {
		return DerivedFields{}, err
	}
	start, err := parseRecordTimestamp(rec, "startDate")
	if err != nil {
		return DerivedFields{}, err
	}
	end, err := parseRecordTimestamp(rec, "endDate")
	if err != nil {
		return DerivedFields{}, err
	}

	// Both clocks come out of the same layout, so this cannot fail.
	duration, _ := ClockDuration(start.Clock, end.Clock)

	d := DerivedFields{
		Value:        rec["value"],
		CreationDate: created.Date,
		CreationTime: created.Clock,
		StartDate:    start.Date,
		StartTime:    start.Clock,
		EndDate:      end.Date,
		EndTime:      end.Clock,
		Duration:     duration,
		Elapsed:      end.Time.Sub(start.Time),
		Source:       ClassifySource(rec["sourceName"]),
	}
	if raw, ok := rec.Attr("device"); ok {
		d.Device, d.HasDevice = ParseDevice(raw)
	}
	d.Unit, d.HasUnit = rec.Attr("unit")
	return d, nil
}

// DataTypes lists the distinct category identifiers of a record stream in
// first-seen order, with the HealthKit type prefixes stripped.
func DataTypes(records []RawRecord) []string {
	seen := make(map[string]bool)
	var types []string
	for _, rec := range records {
		t := rec.Type()
		switch {
		case strings.Contains(t, quantityTypePrefix):
			t = strings.Replace(t, quantityTypePrefix, "", 1)
		case strings.Contains(t, categoryTypePrefix):
			t = strings.Replace(t, categoryTypePrefix, "", 1)
		default:
			continue
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}
