package timeline

import (
	"time"
)

// RawRecord is a single <Record> of a health export: a flat bag of attributes
// such as type, creationDate, startDate, endDate, value, unit, sourceName and device.
type RawRecord map[string]string

// Type returns the category identifier of the record
func (r RawRecord) Type() string {
	return r["type"]
}

// Attr returns an attribute and whether it was present
func (r RawRecord) Attr(name string) (string, bool) {
	v, ok := r[name]
	return v, ok
}

// Source classifies the device family that produced a record
type Source string

const (
	SourceIPhone Source = "iPhone"
	SourceWatch  Source = "Watch"
	SourceOther  Source = "Other"
)

// DerivedFields are computed per record at extraction time and handed to a
// FieldSelector. They are never stored on their own.
type DerivedFields struct {
	Value        string
	CreationDate string // YYYY-MM-DD
	CreationTime string // HH:MM:SS
	StartDate    string
	StartTime    string
	EndDate      string
	EndTime      string

	// Duration is end time-of-day minus start time-of-day, as if both were
	// on the same day. A measurement crossing midnight comes out negative.
	Duration time.Duration
	// Elapsed is the real time between start and end.
	Elapsed time.Duration

	Source    Source
	Device    string
	HasDevice bool
	Unit      string
	HasUnit   bool
}

// TotalTime renders Duration the way the exported tables always have
func (d DerivedFields) TotalTime() string {
	return FormatClockDuration(d.Duration)
}

// Field is one named column of a shaped row
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Absent bool   `json:"absent,omitempty"`
}

// Str builds a present field
func Str(name, value string) Field {
	return Field{Name: name, Value: value}
}

// Opt builds a field that is absent when ok is false
func Opt(name, value string, ok bool) Field {
	if !ok {
		return Field{Name: name, Absent: true}
	}
	return Field{Name: name, Value: value}
}

// ShapedRow is the category-specific output record. Field order is significant.
type ShapedRow []Field

// Get returns the value of a named field; absent fields report false
func (r ShapedRow) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			if f.Absent {
				return "", false
			}
			return f.Value, true
		}
	}
	return "", false
}

// Names returns the field names in order
func (r ShapedRow) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// DayRows holds every shaped row recorded on one calendar date
type DayRows struct {
	Date string      `json:"date"`
	Rows []ShapedRow `json:"rows"`
}

// Dataset maps calendar dates to rows. Days keep the order in which each date
// was first seen in the record stream.
type Dataset struct {
	Name string    `json:"name"`
	Days []DayRows `json:"days"`
}

// Dates returns the date keys in insertion order
func (ds Dataset) Dates() []string {
	dates := make([]string, len(ds.Days))
	for i, d := range ds.Days {
		dates[i] = d.Date
	}
	return dates
}

// Rows returns the rows recorded on a date
func (ds Dataset) Rows(date string) ([]ShapedRow, bool) {
	for _, d := range ds.Days {
		if d.Date == date {
			return d.Rows, true
		}
	}
	return nil, false
}

// Len returns the total number of rows across all dates
func (ds Dataset) Len() int {
	n := 0
	for _, d := range ds.Days {
		n += len(d.Rows)
	}
	return n
}

// FlatRow is one observation of a flattened dataset
type FlatRow struct {
	Date string    `json:"date"`
	Row  ShapedRow `json:"row"`
}

// Flatten returns one row per observation, preserving dataset order
func (ds Dataset) Flatten() []FlatRow {
	flat := make([]FlatRow, 0, ds.Len())
	for _, d := range ds.Days {
		for _, row := range d.Rows {
			flat = append(flat, FlatRow{Date: d.Date, Row: row})
		}
	}
	return flat
}

// datasetBuilder appends rows while keeping first-seen date order
type datasetBuilder struct {
	ds    Dataset
	index map[string]int
}

func newDatasetBuilder(name string) *datasetBuilder {
	return &datasetBuilder{
		ds:    Dataset{Name: name, Days: []DayRows{}},
		index: make(map[string]int),
	}
}

func (b *datasetBuilder) add(date string, row ShapedRow) {
	i, ok := b.index[date]
	if !ok {
		i = len(b.ds.Days)
		b.index[date] = i
		b.ds.Days = append(b.ds.Days, DayRows{Date: date})
	}
	b.ds.Days[i].Rows = append(b.ds.Days[i].Rows, row)
}

func (b *datasetBuilder) build() Dataset {
	return b.ds
}

// AggregatedRow is a flattened row carrying its hour bucket and bucket mean
type AggregatedRow struct {
	Date   string    `json:"date"`
	Row    ShapedRow `json:"row"`
	Hour   int       `json:"hour"`
	Mean   *float64  `json:"mean,omitempty"`
	StdDev *float64  `json:"std_dev,omitempty"`
}

// AggregatedDataset is the terminal output of hourly aggregation
type AggregatedDataset struct {
	Name       string          `json:"name"`
	OutputName string          `json:"output_name,omitempty"`
	TimeField  string          `json:"time_field"`
	ValueField string          `json:"value_field"`
	MeanColumn string          `json:"mean_column"`
	HasStdDev  bool            `json:"has_std_dev,omitempty"`
	Rows       []AggregatedRow `json:"rows"`
}
