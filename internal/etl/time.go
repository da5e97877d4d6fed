package etl

import (
	"time"

	"github.com/mking01/spark-data-lakes/pkg/star"
)

// FromMillis converts a raw log timestamp (epoch milliseconds) to UTC.
// All calendar derivations in the pipeline go through this one function,
// so a boundary date lands in the same partition everywhere.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// TimeParts is the calendar decomposition of a start time.
type TimeParts struct {
	Hour    int32
	Day     int32
	Week    int32
	Month   int32
	Year    int32
	Weekday string
}

// PartsOf decomposes t. Week is the ISO 8601 week number; Weekday is the
// full English day name.
func PartsOf(t time.Time) TimeParts {
	_, week := t.ISOWeek()
	return TimeParts{
		Hour:    int32(t.Hour()),
		Day:     int32(t.Day()),
		Week:    int32(week),
		Month:   int32(t.Month()),
		Year:    int32(t.Year()),
		Weekday: t.Weekday().String(),
	}
}

// TimeRowFromMillis builds a time-dimension row for a raw timestamp.
func TimeRowFromMillis(ms int64) star.TimeRow {
	parts := PartsOf(FromMillis(ms))
	return star.TimeRow{
		StartTime: ms,
		Hour:      parts.Hour,
		Day:       parts.Day,
		Week:      parts.Week,
		Month:     parts.Month,
		Year:      parts.Year,
		Weekday:   parts.Weekday,
	}
}
