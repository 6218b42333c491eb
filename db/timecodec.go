package db

import (
	"time"

	"github.com/dcaliste/mkcal/calendar"
)

// floatingDate is the sentinel zone tag of all-day pure dates. It is part
// of the on-disk format.
const floatingDate = "FloatingDate"

// invalidLatLon is the sentinel stored in the geo columns when an
// incidence has no location. Part of the on-disk format.
const invalidLatLon = -1000.0

// Date-times are persisted as two 64-bit integers plus a zone tag:
// dateUtc is seconds from 1970-01-01T00:00:00Z for values with a fixed
// zone, dateLocal preserves the wall-clock reading by counting seconds as
// if the local components were UTC. Clock times store local/local/"",
// all-day dates local/local/"FloatingDate", zoned values utc/local/zone.

// toOriginTime converts an instant to seconds from the origin.
func toOriginTime(t time.Time) int64 {
	return t.Unix()
}

// toLocalOriginTime converts the wall-clock components of t to seconds
// from the origin as if they were UTC.
func toLocalOriginTime(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, time.UTC).Unix()
}

// fromOriginTime converts seconds from the origin to a UTC date-time.
func fromOriginTime(secs int64) calendar.DateTime {
	return calendar.Zoned(time.Unix(secs, 0).UTC())
}

// fromLocalOriginTime converts seconds from the origin to a clock time.
func fromLocalOriginTime(secs int64) calendar.DateTime {
	return calendar.Clock(time.Unix(secs, 0).UTC())
}

// fromOriginTimeZone converts seconds from the origin to a date-time in
// the named zone. The boolean result is false when the zone cannot be
// resolved.
func fromOriginTimeZone(secs int64, zone string) (calendar.DateTime, bool) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return calendar.DateTime{}, false
	}
	return calendar.Zoned(time.Unix(secs, 0).In(loc)), true
}

// encodeDateTime flattens a date-time into its persisted triple.
func encodeDateTime(dt calendar.DateTime, allDay bool) (dateUtc, dateLocal int64, tz string) {
	if !dt.IsValid() {
		return 0, 0, ""
	}
	if allDay {
		day := dt.WithTimeAtMidnight()
		local := toLocalOriginTime(day.Time)
		return local, local, floatingDate
	}
	if dt.IsClockTime() {
		local := toLocalOriginTime(dt.Time)
		return local, local, ""
	}
	return toOriginTime(dt.Time), toLocalOriginTime(dt.Time), dt.Time.Location().String()
}

// decodeDateTime rebuilds a date-time from its persisted triple. isDate
// reports whether the value should be read as an all-day date: true for
// floating dates, and heuristically for clock times at exactly midnight
// since legacy rows stored all-day dates that way.
func decodeDateTime(dateUtc, dateLocal int64, tz string) (dt calendar.DateTime, isDate bool) {
	switch tz {
	case "":
		if dateUtc == 0 && dateLocal == 0 {
			return calendar.DateTime{}, false
		}
		dt = fromLocalOriginTime(dateLocal)
		return dt, dt.IsMidnight()
	case floatingDate:
		dt = fromLocalOriginTime(dateLocal).WithTimeAtMidnight()
		return dt, true
	default:
		if zoned, ok := fromOriginTimeZone(dateUtc, tz); ok {
			return zoned, false
		}
		// Zone is specified but cannot be resolved; fall back to the
		// preserved wall-clock reading.
		return fromLocalOriginTime(dateLocal), false
	}
}

// originSecs is the stored integer identifying a recurrence instant:
// clock times use the wall-clock reading, zoned values the instant.
func originSecs(dt calendar.DateTime) int64 {
	if !dt.IsValid() {
		return 0
	}
	if dt.IsClockTime() {
		return toLocalOriginTime(dt.Time)
	}
	return toOriginTime(dt.Time)
}
