package db

import (
	"fmt"
	"math"
	"time"

	"github.com/dcaliste/mkcal/calendar"
)

// LoadIncidences runs an unsorted filtered load and returns the matching
// live incidences grouped by notebook. Recurring incidences always match
// a range filter; expanding them over the range is the caller's business
// (see calendar.ExpandOccurrences).
func (s *Storage) LoadIncidences(filter Filter) (Collection, error) {
	if s.db == nil {
		return nil, fmt.Errorf("storage %s is not open", s.databaseName)
	}

	query, args, err := selectForFilter(filter)
	if err != nil {
		return nil, err
	}

	collection, _, err := s.runComponentQuery(query, args, -1, nil, false, false, false)
	if err != nil {
		s.setFinished(true, "error loading incidences")
		return nil, err
	}

	s.eachObserver(func(o Observer) { o.IncidencesLoaded(collection) })
	s.setFinished(false, "load completed")
	return collection, nil
}

func selectForFilter(filter Filter) (string, []interface{}, error) {
	switch filter.kind {
	case FilterKindNone:
		return selectComponentsAll, nil, nil

	case FilterKindNotebook:
		if filter.notebookUID == "" {
			return "", nil, fmt.Errorf("notebook filter needs a notebook uid")
		}
		return selectComponentsByNotebook, []interface{}{filter.notebookUID}, nil

	case FilterKindIncidence:
		if filter.uid == "" {
			return "", nil, fmt.Errorf("incidence filter needs a uid")
		}
		return selectComponentsByUIDAndRecurID,
			[]interface{}{filter.uid, originSecs(filter.recurrenceID)}, nil

	case FilterKindSeries:
		if filter.uid == "" {
			return "", nil, fmt.Errorf("series filter needs a uid")
		}
		return selectComponentsByUID, []interface{}{filter.uid}, nil

	case FilterKindDatetimeRange:
		start, end := filter.start, filter.end
		switch {
		case start.IsValid() && end.IsValid():
			secsStart := originSecs(start)
			secsEnd := originSecs(end)
			return selectComponentsByDateBoth,
				[]interface{}{secsEnd, secsStart}, nil
		case start.IsValid():
			secs := originSecs(start)
			return selectComponentsByDateStart, []interface{}{secs}, nil
		case end.IsValid():
			secs := originSecs(end)
			return selectComponentsByDateEnd, []interface{}{secs}, nil
		default:
			return selectComponentsAll, nil, nil
		}

	case FilterKindNoDate:
		return selectComponentsByPlain, nil, nil

	case FilterKindTodo:
		return selectComponentsByUncompletedTodos, nil, nil

	case FilterKindJournal:
		return selectComponentsByJournal, nil, nil

	case FilterKindRecursive:
		return selectComponentsByRecursive, nil, nil

	case FilterKindGeoLocation:
		if filter.deltaLatitude >= 180.0 && filter.deltaLongitude >= 360.0 {
			// The box covers everything: degenerate to "has geo".
			return selectComponentsByGeo, nil, nil
		}
		return selectComponentsByGeoArea, []interface{}{
			filter.latitude - filter.deltaLatitude,
			filter.longitude - filter.deltaLongitude,
			filter.latitude + filter.deltaLatitude,
			filter.longitude + filter.deltaLongitude,
		}, nil

	case FilterKindAttendee:
		return selectComponentsByAttendee, nil, nil

	default:
		return "", nil, fmt.Errorf("unsupported filter kind %d", filter.kind)
	}
}

// LoadSortedIncidences runs a sorted windowed listing. Rows come out in
// descending anchor order (ascending for future listings). A page is cut
// at the first anchor change once limit rows are gathered, so a batch of
// rows sharing the same anchor is never split across pages and a page
// can hold more than limit rows. On return *last is the anchor to thread
// into the next call.
func (s *Storage) LoadSortedIncidences(filter Filter, limit int, last *calendar.DateTime) (Collection, int, error) {
	if s.db == nil {
		return nil, -1, fmt.Errorf("storage %s is not open", s.databaseName)
	}

	secsStart := int64(math.MaxInt64)
	if last != nil && last.IsValid() {
		secsStart = originSecs(*last)
	}

	var query string
	var useDate, ignoreEnd bool
	args := []interface{}{secsStart}

	switch filter.kind {
	case FilterKindSortedByDatetime:
		if filter.before {
			if filter.useDate {
				query = selectComponentsByDateSmart
			} else {
				query = selectComponentsByCreatedSmart
			}
			useDate = filter.useDate
		} else {
			// Future listing: ascending on the start-or-due anchor,
			// event ends ignored.
			if last == nil || !last.IsValid() {
				secsStart = 0
				args[0] = secsStart
			}
			query = selectComponentsByFutureDateSmart
			useDate = true
			ignoreEnd = true
		}

	case FilterKindJournal:
		query = selectComponentsByJournalDate
		useDate = true

	case FilterKindTodo:
		if filter.useDate {
			query = selectComponentsByCompletedTodosDate
		} else {
			query = selectComponentsByCompletedTodosCtime
		}
		useDate = filter.useDate

	case FilterKindGeoLocation:
		if filter.useDate {
			query = selectComponentsByGeoAndDate
		} else {
			query = selectComponentsByGeoAndCreated
		}
		useDate = filter.useDate

	case FilterKindAttendee:
		if filter.email == "" {
			query = selectComponentsByAttendeeAndCreated
		} else {
			query = selectComponentsByAttendeeEmailAndCreated
			args = []interface{}{filter.email, secsStart}
		}

	default:
		return nil, -1, fmt.Errorf("unsupported sorted filter kind %d", filter.kind)
	}

	ascending := filter.kind == FilterKindSortedByDatetime && !filter.before
	collection, count, err := s.runComponentQuery(query, args, limit, last, useDate, ignoreEnd, ascending)
	if err != nil {
		s.setFinished(true, "error loading incidences")
		return nil, -1, err
	}

	s.eachObserver(func(o Observer) { o.IncidencesLoaded(collection) })
	s.setFinished(false, "load completed")
	return collection, count, nil
}

// runComponentQuery executes a Components select under the process lock
// and materializes the rows, applying the equal-anchor pagination window
// when a limit is given.
func (s *Storage) runComponentQuery(query string, args []interface{}, limit int,
	last *calendar.DateTime, useDate, ignoreEnd, ascending bool) (Collection, int, error) {

	if err := s.sem.acquire(); err != nil {
		logWarnf("cannot lock %s: %v", s.databaseName, err)
		return nil, -1, err
	}
	defer s.releaseQuietly()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, -1, err
	}
	components, err := scanComponents(rows)
	if err != nil {
		return nil, -1, err
	}

	// The pagination window only needs the anchors, which live in the
	// main row; children are loaded after the cut. Rows sharing an
	// anchor always land on the same page: the cut happens when the
	// anchor changes with the limit already reached, and *last becomes
	// the excluded batch's anchor so the next page resumes exactly
	// there.
	var previous, date calendar.DateTime
	count := 0
	truncated := false
	selected := components[:0]
	for _, c := range components {
		inc := decodeComponent(c)
		if inc == nil {
			logWarnf("component %d has unknown type %q", c.rowid, c.typ)
			continue
		}
		date = sortAnchor(inc, useDate, ignoreEnd)
		if !previous.Equal(date) {
			if !previous.IsValid() || limit <= 0 || count < limit {
				previous = date
			} else {
				truncated = true
				break
			}
		}
		selected = append(selected, c)
		count++
	}
	if last != nil {
		switch {
		case truncated:
			*last = date
		case count > 0:
			// The listing is exhausted: step one second past the final
			// anchor so the next page comes out empty.
			step := -time.Second
			if ascending {
				step = time.Second
			}
			*last = calendar.DateTime{Time: previous.Time.Add(step), Kind: previous.Kind}
		default:
			*last = calendar.DateTime{}
		}
	}

	collection := make(Collection)
	for _, c := range selected {
		inc, notebookUID, err := s.format.decodeRow(s.db, c)
		if err != nil {
			logWarnf("cannot decode component %d: %v", c.rowid, err)
			continue
		}
		if s.validateNotebooks && !s.hasNotebook(notebookUID) {
			logWarnf("dropping incidence %s of unknown notebook %s", inc.UID, notebookUID)
			continue
		}
		collection.Add(notebookUID, inc)
	}

	return collection, count, nil
}

// sortAnchor picks the pagination anchor of a row: the effective end
// when dates are requested (but never an event end in future listings),
// then the start, then the creation time.
func sortAnchor(inc *calendar.Incidence, useDate, ignoreEnd bool) calendar.DateTime {
	if useDate {
		if end := inc.EndDateTime(); end.IsValid() && (!ignoreEnd || inc.Type != calendar.TypeEvent) {
			return end
		}
		if inc.DtStart.IsValid() {
			return inc.DtStart
		}
	}
	return inc.Created
}

// selectIncidences is the shared row loop of the flat sync listings.
func (s *Storage) selectIncidences(query string, args ...interface{}) ([]*calendar.Incidence, error) {
	if s.db == nil {
		return nil, fmt.Errorf("storage %s is not open", s.databaseName)
	}
	if err := s.sem.acquire(); err != nil {
		logWarnf("cannot lock %s: %v", s.databaseName, err)
		return nil, err
	}
	defer s.releaseQuietly()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	components, err := scanComponents(rows)
	if err != nil {
		return nil, err
	}

	var list []*calendar.Incidence
	for _, c := range components {
		inc, _, err := s.format.decodeRow(s.db, c)
		if err != nil {
			logWarnf("cannot decode component %d: %v", c.rowid, err)
			continue
		}
		list = append(list, inc)
	}
	return list, nil
}

// InsertedIncidences lists incidences created at or after the given
// instant, optionally restricted to one notebook.
func (s *Storage) InsertedIncidences(after calendar.DateTime, notebookUID string) ([]*calendar.Incidence, error) {
	if !after.IsValid() {
		return nil, fmt.Errorf("inserted incidences need a lower bound")
	}
	secs := originSecs(after)
	if notebookUID != "" {
		return s.selectIncidences(selectComponentsByCreatedAndNotebook, secs, notebookUID)
	}
	return s.selectIncidences(selectComponentsByCreated, secs)
}

// ModifiedIncidences lists incidences modified at or after the given
// instant but created before it, optionally restricted to one notebook.
func (s *Storage) ModifiedIncidences(after calendar.DateTime, notebookUID string) ([]*calendar.Incidence, error) {
	if !after.IsValid() {
		return nil, fmt.Errorf("modified incidences need a lower bound")
	}
	secs := originSecs(after)
	if notebookUID != "" {
		return s.selectIncidences(selectComponentsByLastModifiedAndNotebook, secs, secs, notebookUID)
	}
	return s.selectIncidences(selectComponentsByLastModified, secs, secs)
}

// DeletedIncidences lists the tombstones, optionally after an instant
// and optionally restricted to one notebook.
func (s *Storage) DeletedIncidences(after calendar.DateTime, notebookUID string) ([]*calendar.Incidence, error) {
	if notebookUID != "" {
		if after.IsValid() {
			secs := originSecs(after)
			return s.selectIncidences(selectComponentsByDeletedAndNotebook, secs, secs, notebookUID)
		}
		return s.selectIncidences(selectComponentsAllDeletedByNotebook, notebookUID)
	}
	if after.IsValid() {
		secs := originSecs(after)
		return s.selectIncidences(selectComponentsByDeleted, secs, secs)
	}
	return s.selectIncidences(selectComponentsAllDeleted)
}

// AllIncidences lists every live incidence, optionally restricted to one
// notebook.
func (s *Storage) AllIncidences(notebookUID string) ([]*calendar.Incidence, error) {
	if notebookUID != "" {
		return s.selectIncidences(selectComponentsByNotebook, notebookUID)
	}
	return s.selectIncidences(selectComponentsAll)
}

// DuplicateIncidences lists incidences sharing start and summary with
// the given one, optionally restricted to one notebook.
func (s *Storage) DuplicateIncidences(inc *calendar.Incidence, notebookUID string) ([]*calendar.Incidence, error) {
	if inc == nil {
		return nil, fmt.Errorf("duplicate incidences need a reference incidence")
	}
	secs := originSecs(inc.DtStart)
	if notebookUID != "" {
		return s.selectIncidences(selectComponentsByDuplicateAndNotebook, secs, inc.Summary, notebookUID)
	}
	return s.selectIncidences(selectComponentsByDuplicate, secs, inc.Summary)
}
