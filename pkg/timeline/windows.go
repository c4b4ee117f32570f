package timeline

const (
	// DefaultWindowDays is the number of days analyzed when no size is given
	DefaultWindowDays = 3

	// headerArtifact is the column name a tabular round trip can leak into a date list
	headerArtifact = "date"
)

// DateWindow is an ordered set of calendar dates used to align categories
type DateWindow struct {
	Dates []string `json:"dates"`
}

// NewDateWindow builds a window from explicit dates, e.g. a window computed by
// another run. Duplicates collapse and the "date" header artifact is dropped.
func NewDateWindow(dates ...string) DateWindow {
	w := DateWindow{Dates: []string{}}
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		if d == headerArtifact || d == "" || seen[d] {
			continue
		}
		seen[d] = true
		w.Dates = append(w.Dates, d)
	}
	return w
}

// Len returns the number of dates in the window
func (w DateWindow) Len() int {
	return len(w.Dates)
}

// Contains reports whether date is part of the window
func (w DateWindow) Contains(date string) bool {
	for _, d := range w.Dates {
		if d == date {
			return true
		}
	}
	return false
}

// FirstDates returns the first size distinct dates of an ordered date list.
// A size of zero or less selects DefaultWindowDays.
func FirstDates(dates []string, size int) DateWindow {
	if size <= 0 {
		size = DefaultWindowDays
	}
	w := DateWindow{Dates: []string{}}
	seen := make(map[string]bool, size)
	for _, d := range dates {
		if len(w.Dates) >= size {
			break
		}
		if d == headerArtifact || seen[d] {
			continue
		}
		seen[d] = true
		w.Dates = append(w.Dates, d)
	}
	return w
}

// SelectWindow picks the first size distinct dates of the reference dataset in
// row order. Fewer dates are returned when the dataset does not have enough.
func SelectWindow(reference Dataset, size int) DateWindow {
	dates := make([]string, 0, len(reference.Days))
	for _, d := range reference.Days {
		if len(d.Rows) == 0 {
			continue
		}
		dates = append(dates, d.Date)
	}
	return FirstDates(dates, size)
}

// ApplyWindow returns a new dataset holding only the dates in the window.
// Dataset order and row order within a date are preserved.
func ApplyWindow(ds Dataset, w DateWindow) Dataset {
	out := Dataset{Name: ds.Name, Days: []DayRows{}}
	for _, d := range ds.Days {
		if !w.Contains(d.Date) {
			continue
		}
		rows := make([]ShapedRow, len(d.Rows))
		copy(rows, d.Rows)
		out.Days = append(out.Days, DayRows{Date: d.Date, Rows: rows})
	}
	return out
}
