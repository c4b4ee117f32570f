package timeline

import (
	"errors"
	"log/slog"
)

// MalformedRecord identifies a record skipped during extraction
type MalformedRecord struct {
	Index     int    `json:"index"`
	Attribute string `json:"attribute"`
	Cause     string `json:"cause"`
}

// ExtractReport summarizes one extraction pass
type ExtractReport struct {
	Category  string            `json:"category"`
	Scanned   int               `json:"scanned"`
	Kept      int               `json:"kept"`
	Dates     int               `json:"dates"`
	Malformed []MalformedRecord `json:"malformed,omitempty"`
}

// Extractor turns a record stream into per-category datasets
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor; a nil logger falls back to slog.Default
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract keeps the records of spec's category created in spec's target year,
// shapes them with the category's selector and groups them by creation date.
// Records of the category with a malformed timestamp are skipped and reported.
func (e *Extractor) Extract(records []RawRecord, spec CategorySpec) (Dataset, ExtractReport) {
	b := newDatasetBuilder(spec.OutputName)
	report := ExtractReport{Category: spec.OutputName, Scanned: len(records)}

	for i, rec := range records {
		if rec.Type() != spec.Identifier {
			continue
		}

		derived, err := Derive(rec)
		if err != nil {
			skipped := MalformedRecord{Index: i, Cause: err.Error()}
			var tsErr *TimestampError
			if errors.As(err, &tsErr) {
				skipped.Attribute = tsErr.Attribute
			}
			report.Malformed = append(report.Malformed, skipped)
			e.logger.Warn("Skipping malformed record",
				"category", spec.OutputName,
				"index", i,
				"attribute", skipped.Attribute,
				"error", err)
			continue
		}

		if derived.CreationDate[:4] != spec.TargetYear {
			continue
		}

		b.add(derived.CreationDate, spec.Selector.Select(derived))
		report.Kept++
	}

	ds := b.build()
	report.Dates = len(ds.Days)

	e.logger.Info("Extracted category",
		"category", spec.OutputName,
		"scanned", report.Scanned,
		"kept", report.Kept,
		"dates", report.Dates,
		"malformed", len(report.Malformed))

	return ds, report
}
