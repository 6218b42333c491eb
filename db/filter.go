package db

import "github.com/dcaliste/mkcal/calendar"

// FilterKind enumerates the closed taxonomy of load filters. Each kind
// maps to exactly one prepared select.
type FilterKind int

const (
	FilterKindNone FilterKind = iota
	FilterKindNotebook
	FilterKindIncidence
	FilterKindSeries
	FilterKindDatetimeRange
	FilterKindNoDate
	FilterKindSortedByDatetime
	FilterKindJournal
	FilterKindTodo
	FilterKindRecursive
	FilterKindGeoLocation
	FilterKindAttendee
)

// Filter selects which incidences a load returns. Build values with the
// constructors below; the zero value loads everything.
type Filter struct {
	kind FilterKind

	notebookUID  string
	uid          string
	recurrenceID calendar.DateTime
	email        string

	start calendar.DateTime
	end   calendar.DateTime

	useDate   bool
	before    bool
	completed bool

	latitude, longitude           float64
	deltaLatitude, deltaLongitude float64
}

func (f Filter) Kind() FilterKind { return f.kind }

// FilterAll matches every live incidence.
func FilterAll() Filter {
	return Filter{kind: FilterKindNone}
}

// FilterNotebook matches the live incidences of one notebook.
func FilterNotebook(notebookUID string) Filter {
	return Filter{kind: FilterKindNotebook, notebookUID: notebookUID}
}

// FilterIncidence matches a single incidence by uid and recurrence id.
// An absent recurrence id selects the parent of the series.
func FilterIncidence(uid string, recurrenceID calendar.DateTime) Filter {
	return Filter{kind: FilterKindIncidence, uid: uid, recurrenceID: recurrenceID}
}

// FilterSeries matches a whole series: the parent and all its
// recurrence-id overrides.
func FilterSeries(uid string) Filter {
	return Filter{kind: FilterKindSeries, uid: uid}
}

// FilterRange matches incidences whose effective time range overlaps
// [start, end]. Either bound may be absent for a half-open range.
// Recurring incidences always match and are expanded in memory by the
// caller.
func FilterRange(start, end calendar.DateTime) Filter {
	return Filter{kind: FilterKindDatetimeRange, start: start, end: end}
}

// FilterNoDate matches incidences with neither start nor end.
func FilterNoDate() Filter {
	return Filter{kind: FilterKindNoDate}
}

// FilterSorted is the sorted smart listing: with before, anchors at or
// before *last in descending order (by date when useDate, by creation
// time otherwise); without before, future incidences ascending from
// *last by their start-or-due anchor.
func FilterSorted(useDate, before bool) Filter {
	return Filter{kind: FilterKindSortedByDatetime, useDate: useDate, before: before}
}

// FilterJournal matches journals; sorted listings order them by start
// date descending.
func FilterJournal() Filter {
	return Filter{kind: FilterKindJournal, useDate: true}
}

// FilterTodo matches todos: uncompleted ones in plain loads, completed
// ones in sorted listings anchored by due date (useDate) or creation
// time.
func FilterTodo(completed, useDate bool) Filter {
	return Filter{kind: FilterKindTodo, completed: completed, useDate: useDate}
}

// FilterRecursive matches incidences carrying a recurrence or exception
// rule, or being overrides of one. Incidences recurring only through
// extra dates are not matched.
func FilterRecursive() Filter {
	return Filter{kind: FilterKindRecursive}
}

// FilterGeo matches incidences with a location inside the box
// [lat±dLat, lon±dLon]. A box with dLat >= 180 and dLon >= 360 covers
// the whole globe and degenerates to "has any location".
func FilterGeo(latitude, longitude, deltaLatitude, deltaLongitude float64) Filter {
	return Filter{
		kind:           FilterKindGeoLocation,
		latitude:       latitude,
		longitude:      longitude,
		deltaLatitude:  deltaLatitude,
		deltaLongitude: deltaLongitude,
	}
}

// FilterAnyGeo matches every incidence that has a location.
func FilterAnyGeo() Filter {
	return Filter{kind: FilterKindGeoLocation, deltaLatitude: 180.0, deltaLongitude: 360.0}
}

// FilterAttendee matches incidences having attendees, restricted to one
// email when given; sorted listings order by creation time.
func FilterAttendee(email string) Filter {
	return Filter{kind: FilterKindAttendee, email: email}
}
