package timeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// RecordTimestampLayout is the layout of creationDate, startDate and endDate
	RecordTimestampLayout = "2006-01-02 15:04:05 -0700"
	DateLayout            = "2006-01-02"
	ClockLayout           = "15:04:05"
)

var (
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrMalformedTime      = errors.New("malformed time of day")
)

// TimestampError reports which attribute of a record could not be parsed
type TimestampError struct {
	Attribute string
	Raw       string
	Err       error
}

func (e *TimestampError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s missing", ErrMalformedTimestamp, e.Attribute)
	}
	return fmt.Sprintf("%s: %s %q: %v", ErrMalformedTimestamp, e.Attribute, e.Raw, e.Err)
}

func (e *TimestampError) Is(target error) bool {
	return target == ErrMalformedTimestamp
}

func (e *TimestampError) Unwrap() error {
	return e.Err
}

// Timestamp is a parsed record timestamp. Date and Clock are the wall-clock
// values written in the export, not converted to any other zone.
type Timestamp struct {
	Time  time.Time
	Date  string
	Clock string
}

// ParseTimestamp parses one of the record timestamp attributes
func ParseTimestamp(raw string) (Timestamp, error) {
	t, err := time.Parse(RecordTimestampLayout, strings.TrimSpace(raw))
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{
		Time:  t,
		Date:  t.Format(DateLayout),
		Clock: t.Format(ClockLayout),
	}, nil
}

func parseRecordTimestamp(rec RawRecord, attr string) (Timestamp, error) {
	raw, ok := rec.Attr(attr)
	if !ok || raw == "" {
		return Timestamp{}, &TimestampError{Attribute: attr}
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		return Timestamp{}, &TimestampError{Attribute: attr, Raw: raw, Err: err}
	}
	return ts, nil
}

// ClockDuration subtracts two times of day as if they fell on the same day
func ClockDuration(start, end string) (time.Duration, error) {
	s, err := time.Parse(ClockLayout, start)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, start)
	}
	e, err := time.Parse(ClockLayout, end)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, end)
	}
	return e.Sub(s), nil
}

// ParseHour returns the hour of an HH:MM:SS value
func ParseHour(clock string) (int, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(clock))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, clock)
	}
	return t.Hour(), nil
}

// FormatClockDuration renders a duration as "H:MM:SS". Negative values borrow
// whole days, so -5m renders as "-1 day, 23:55:00".
func FormatClockDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	days := secs / 86400
	rem := secs % 86400
	if rem < 0 {
		rem += 86400
		days--
	}
	clock := fmt.Sprintf("%d:%02d:%02d", rem/3600, (rem%3600)/60, rem%60)
	switch {
	case days == 0:
		return clock
	case days == 1 || days == -1:
		return fmt.Sprintf("%d day, %s", days, clock)
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}
