package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

// Output directories under a FileSink root
const (
	JSONDir       = "json"
	CSVDir        = "csv"
	StatisticsDir = "descriptive_statistics"

	windowedPrefix = "three_days_"
)

// FileSink writes every pipeline output under a root directory
type FileSink struct {
	root   string
	logger *slog.Logger
}

// NewFileSink creates a sink rooted at dir
func NewFileSink(dir string, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{root: dir, logger: logger}
}

// WriteDataset writes the date-keyed JSON document and the flattened CSV table
func (s *FileSink) WriteDataset(_ context.Context, ds timeline.Dataset) error {
	doc, err := MarshalDataset(ds)
	if err != nil {
		return err
	}
	jsonPath := filepath.Join(s.root, JSONDir, ds.Name+".json")
	if err := writeFile(jsonPath, doc); err != nil {
		return err
	}
	s.logger.Info("Wrote dataset", "category", ds.Name, "path", jsonPath, "rows", ds.Len())

	return s.writeCSV(filepath.Join(s.root, CSVDir, ds.Name+".csv"), datasetTable(ds))
}

// WriteWindowed writes the flattened rows left after alignment
func (s *FileSink) WriteWindowed(_ context.Context, ds timeline.Dataset) error {
	return s.writeCSV(filepath.Join(s.root, CSVDir, windowedPrefix+ds.Name+".csv"), datasetTable(ds))
}

// WriteAggregated writes the descriptive statistics table of one category
func (s *FileSink) WriteAggregated(_ context.Context, agg timeline.AggregatedDataset) error {
	name := agg.OutputName
	if name == "" {
		name = "mean_" + agg.Name
	}
	return s.writeCSV(filepath.Join(s.root, StatisticsDir, name+".csv"), aggregatedTable(agg))
}

func (s *FileSink) writeCSV(path string, table [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(table); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := writeFile(path, buf.Bytes()); err != nil {
		return err
	}
	s.logger.Info("Wrote CSV file", "path", path, "record_count", len(table)-1)
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// MarshalDataset renders a dataset as a JSON object keyed by date. Keys keep
// dataset order and every row is an object in field order; absent fields are null.
func MarshalDataset(ds timeline.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, day := range ds.Days {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(day.Date)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(":[")
		for j, row := range day.Rows {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeRowObject(&buf, row); err != nil {
				return nil, fmt.Errorf("dataset %s date %s: %w", ds.Name, day.Date, err)
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeRowObject(buf *bytes.Buffer, row timeline.ShapedRow) error {
	buf.WriteByte('{')
	for i, f := range row {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if f.Absent {
			buf.WriteString("null")
			continue
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return nil
}

func cells(row timeline.ShapedRow) []string {
	out := make([]string, len(row))
	for i, f := range row {
		if !f.Absent {
			out[i] = f.Value
		}
	}
	return out
}

// datasetTable takes its header from the first row; every row of a category
// has the same shape.
func datasetTable(ds timeline.Dataset) [][]string {
	flat := ds.Flatten()
	var fields []string
	if len(flat) > 0 {
		fields = flat[0].Row.Names()
	}
	table := make([][]string, 0, len(flat)+1)
	table = append(table, append([]string{"date"}, fields...))
	for _, r := range flat {
		table = append(table, append([]string{r.Date}, cells(r.Row)...))
	}
	return table
}

func aggregatedTable(agg timeline.AggregatedDataset) [][]string {
	var fields []string
	if len(agg.Rows) > 0 {
		fields = agg.Rows[0].Row.Names()
	}
	head := append([]string{"date"}, fields...)
	head = append(head, "hour", agg.MeanColumn)
	if agg.HasStdDev {
		head = append(head, "SD")
	}

	table := make([][]string, 0, len(agg.Rows)+1)
	table = append(table, head)
	for _, r := range agg.Rows {
		line := append([]string{r.Date}, cells(r.Row)...)
		line = append(line, strconv.Itoa(r.Hour), formatFloat(r.Mean))
		if agg.HasStdDev {
			line = append(line, formatFloat(r.StdDev))
		}
		table = append(table, line)
	}
	return table
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// MemorySink keeps every output in memory
type MemorySink struct {
	mu         sync.RWMutex
	datasets   map[string]timeline.Dataset
	windowed   map[string]timeline.Dataset
	aggregated map[string]timeline.AggregatedDataset
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		datasets:   make(map[string]timeline.Dataset),
		windowed:   make(map[string]timeline.Dataset),
		aggregated: make(map[string]timeline.AggregatedDataset),
	}
}

func (m *MemorySink) WriteDataset(_ context.Context, ds timeline.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[ds.Name] = ds
	return nil
}

func (m *MemorySink) WriteWindowed(_ context.Context, ds timeline.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windowed[ds.Name] = ds
	return nil
}

func (m *MemorySink) WriteAggregated(_ context.Context, agg timeline.AggregatedDataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregated[agg.Name] = agg
	return nil
}

// Dataset returns the full dataset written for a category
func (m *MemorySink) Dataset(name string) (timeline.Dataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.datasets[name]
	return ds, ok
}

// Windowed returns the aligned dataset written for a category
func (m *MemorySink) Windowed(name string) (timeline.Dataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.windowed[name]
	return ds, ok
}

// Aggregated returns the aggregated dataset written for a category
func (m *MemorySink) Aggregated(name string) (timeline.AggregatedDataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg, ok := m.aggregated[name]
	return agg, ok
}
