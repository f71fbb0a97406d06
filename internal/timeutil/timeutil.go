// Package timeutil implements C1: parsing heterogeneous message timestamps
// and formatting date/time ranges for rendering and reports.
package timeutil

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
)

const msEpochThreshold = int64(1e12)

// ToDatetime accepts an integer epoch (seconds, or milliseconds if the value
// exceeds 10^12), an ISO-8601 string, or "YYYY-MM-DD HH:MM:SS", and returns a
// UTC time. It never panics; unparseable input returns ok=false.
func ToDatetime(value any) (t time.Time, ok bool) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), true
	case int:
		return fromEpochSeconds(int64(v)), true
	case int32:
		return fromEpochSeconds(int64(v)), true
	case int64:
		return fromEpochSeconds(v), true
	case float64:
		return fromEpochSeconds(int64(v)), true
	case string:
		return fromString(v)
	default:
		return time.Time{}, false
	}
}

func fromEpochSeconds(v int64) time.Time {
	if v > msEpochThreshold {
		v /= 1000
	}
	return time.Unix(v, 0).UTC()
}

func fromString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromEpochSeconds(n), true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), true
	}
	if t, err := dateparse.ParseAny(s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// ExtractTimes converts each record's create_time-ish value via ToDatetime,
// drops values that fail to parse, and returns the survivors sorted
// ascending.
func ExtractTimes(values []any) []time.Time {
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		if t, ok := ToDatetime(v); ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// FormatTime renders a timestamp as "HH:MM:SS".
func FormatTime(ts time.Time) string {
	return ts.UTC().Format("15:04:05")
}

// BuildTimeRange renders a human-readable "HH:MM:SS–HH:MM:SS" span from a
// start and end time. Equal times collapse to a single "HH:MM:SS".
func BuildTimeRange(start, end time.Time) string {
	if start.Equal(end) {
		return FormatTime(start)
	}
	return fmt.Sprintf("%s–%s", FormatTime(start), FormatTime(end))
}

// BuildDateRange renders a human-readable "YYYY-MM-DD HH:MM:SS to YYYY-MM-DD
// HH:MM:SS" span, used where the start/end may cross a day boundary.
func BuildDateRange(start, end time.Time) string {
	const layout = "2006-01-02 15:04:05"
	if start.Equal(end) {
		return start.UTC().Format(layout)
	}
	return fmt.Sprintf("%s to %s", start.UTC().Format(layout), end.UTC().Format(layout))
}
