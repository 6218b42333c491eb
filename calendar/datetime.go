package calendar

import "time"

// TimeKind distinguishes the three states of a model date-time.
type TimeKind int

const (
	// TimeAbsent means the date-time is not set.
	TimeAbsent TimeKind = iota
	// TimeClock is a wall-clock reading with no zone attached. It renders
	// as the same local time wherever it is displayed.
	TimeClock
	// TimeZoned is an instant carrying a fixed zone.
	TimeZoned
)

// DateTime is the tri-state date-time used across the calendar model:
// absent, clock time (no zone) or zoned. The zero value is absent.
type DateTime struct {
	Time time.Time
	Kind TimeKind
}

// Zoned wraps an instant with its zone.
func Zoned(t time.Time) DateTime {
	return DateTime{Time: t, Kind: TimeZoned}
}

// Clock builds a clock-time from the wall-clock components of t. The
// location of t is discarded.
func Clock(t time.Time) DateTime {
	y, m, d := t.Date()
	return DateTime{
		Time: time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, time.UTC),
		Kind: TimeClock,
	}
}

// Date builds a clock-time at midnight of the given civil date, the
// representation used for all-day values.
func Date(year int, month time.Month, day int) DateTime {
	return DateTime{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Kind: TimeClock}
}

func (dt DateTime) IsValid() bool {
	return dt.Kind != TimeAbsent
}

// IsClockTime reports whether the value is a floating wall-clock reading.
func (dt DateTime) IsClockTime() bool {
	return dt.Kind == TimeClock
}

// Equal compares two date-times. Zoned values compare as instants, clock
// times compare by wall-clock components. Values of different kinds are
// never equal, except that two absent values are.
func (dt DateTime) Equal(other DateTime) bool {
	if dt.Kind != other.Kind {
		return false
	}
	if dt.Kind == TimeAbsent {
		return true
	}
	if dt.Kind == TimeClock {
		return dt.wallSeconds() == other.wallSeconds()
	}
	return dt.Time.Equal(other.Time)
}

// Before orders two valid date-times, treating clock times as if their
// components were UTC.
func (dt DateTime) Before(other DateTime) bool {
	return dt.comparable().Before(other.comparable())
}

func (dt DateTime) comparable() time.Time {
	if dt.Kind == TimeClock {
		return time.Unix(dt.wallSeconds(), 0).UTC()
	}
	return dt.Time
}

// wallSeconds is the number of seconds since the origin as if the
// wall-clock components were UTC.
func (dt DateTime) wallSeconds() int64 {
	y, m, d := dt.Time.Date()
	return time.Date(y, m, d, dt.Time.Hour(), dt.Time.Minute(), dt.Time.Second(), 0, time.UTC).Unix()
}

// WithTimeAtMidnight clears the time-of-day, keeping kind and date.
func (dt DateTime) WithTimeAtMidnight() DateTime {
	if !dt.IsValid() {
		return dt
	}
	y, m, d := dt.Time.Date()
	return DateTime{Time: time.Date(y, m, d, 0, 0, 0, 0, dt.Time.Location()), Kind: dt.Kind}
}

// AddDays returns the date-time shifted by the given number of days.
func (dt DateTime) AddDays(days int) DateTime {
	if !dt.IsValid() {
		return dt
	}
	return DateTime{Time: dt.Time.AddDate(0, 0, days), Kind: dt.Kind}
}

// IsMidnight reports whether the time-of-day is exactly 00:00:00.
func (dt DateTime) IsMidnight() bool {
	return dt.Time.Hour() == 0 && dt.Time.Minute() == 0 && dt.Time.Second() == 0
}
