// Package export reads Apple Health exports and writes pipeline outputs to disk.
package export

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

const recordElement = "Record"

// ScanRecords streams every <Record> element of an export and hands its
// attributes to fn. Nested elements such as <MetadataEntry> are ignored.
func ScanRecords(r io.Reader, fn func(timeline.RawRecord) error) error {
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to decode export: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != recordElement {
			continue
		}

		rec := make(timeline.RawRecord, len(start.Attr))
		for _, a := range start.Attr {
			rec[a.Name.Local] = a.Value
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// ReadRecords materializes every record of an export
func ReadRecords(r io.Reader) ([]timeline.RawRecord, error) {
	var records []timeline.RawRecord
	err := ScanRecords(r, func(rec timeline.RawRecord) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReadFile reads the records of an export.xml on disk
func ReadFile(path string) ([]timeline.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
