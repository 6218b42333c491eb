package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dcaliste/mkcal/calendar"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	s := NewStorage(path, time.UTC, true)
	if err := s.Open(); err != nil {
		t.Fatalf("cannot open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addTestNotebook(t *testing.T, s *Storage, uid, name string) *calendar.Notebook {
	t.Helper()
	nb := &calendar.Notebook{UID: uid, Name: name, Flags: calendar.NotebookVisible}
	if err := s.AddNotebook(nb); err != nil {
		t.Fatalf("cannot add notebook %s: %v", uid, err)
	}
	return nb
}

func storeOne(t *testing.T, s *Storage, notebookUID string, inc *calendar.Incidence) {
	t.Helper()
	additions := make(Collection)
	additions.Add(notebookUID, inc)
	if err := s.StoreIncidences(additions, nil, nil, MarkDeleted); err != nil {
		t.Fatalf("cannot store incidence %s: %v", inc.UID, err)
	}
}

func loadOne(t *testing.T, s *Storage, uid string) *calendar.Incidence {
	t.Helper()
	collection, err := s.LoadIncidences(FilterIncidence(uid, calendar.DateTime{}))
	if err != nil {
		t.Fatalf("cannot load incidence %s: %v", uid, err)
	}
	list := collection.Flatten()
	if len(list) != 1 {
		t.Fatalf("expected exactly one incidence for %s, got %d", uid, len(list))
	}
	return list[0]
}

func TestEventRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E1",
		Summary: "standup",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		DtEnd:   calendar.Zoned(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
	}
	storeOne(t, s, "NB1", event)

	loaded := loadOne(t, s, "E1")
	if loaded.Type != calendar.TypeEvent {
		t.Fatalf("type: got %s", loaded.Type)
	}
	if !loaded.DtStart.Time.Equal(event.DtStart.Time) {
		t.Fatalf("dtStart: got %v, want %v", loaded.DtStart.Time, event.DtStart.Time)
	}
	if !loaded.DtEnd.Time.Equal(event.DtEnd.Time) {
		t.Fatalf("dtEnd: got %v, want %v", loaded.DtEnd.Time, event.DtEnd.Time)
	}
	if loaded.Summary != "standup" {
		t.Fatalf("summary: got %q", loaded.Summary)
	}
	if !loaded.Created.IsValid() || !loaded.LastModified.IsValid() {
		t.Fatalf("created and lastModified must be filled in by the engine")
	}
}

func TestAllDayEventEndNormalization(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E2",
		AllDay:  true,
		DtStart: calendar.Date(2024, 5, 1),
		DtEnd:   calendar.Date(2024, 5, 1),
	}
	storeOne(t, s, "NB1", event)

	// On disk the end carries one extra day and the floating tag.
	var endLocal int64
	var endTz string
	err := s.db.QueryRow("select DateEndDueLocal, EndDueTimeZone from Components where UID='E2'").
		Scan(&endLocal, &endTz)
	if err != nil {
		t.Fatalf("cannot inspect row: %v", err)
	}
	if endTz != floatingDate {
		t.Fatalf("stored end zone tag: got %q, want %q", endTz, floatingDate)
	}
	wantDisk := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC).Unix()
	if endLocal != wantDisk {
		t.Fatalf("stored end: got %d, want %d (next day)", endLocal, wantDisk)
	}

	loaded := loadOne(t, s, "E2")
	if !loaded.AllDay {
		t.Fatalf("allDay lost in round trip")
	}
	end := loaded.EndDateTime()
	y, m, d := end.Time.Date()
	if y != 2024 || m != time.May || d != 1 {
		t.Fatalf("effective end: got %04d-%02d-%02d, want 2024-05-01", y, m, d)
	}
}

func TestRecurringEventRuleRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E3",
		DtStart: calendar.Zoned(time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)),
	}
	event.Recurrence.RRules = append(event.Recurrence.RRules, &calendar.RecurrenceRule{
		Frequency: calendar.FreqWeekly,
		Count:     10,
		Interval:  1,
		ByDays: []calendar.WeekDayPos{
			{Day: 1}, // Monday
			{Day: 3}, // Wednesday
		},
	})
	storeOne(t, s, "NB1", event)

	loaded := loadOne(t, s, "E3")
	if len(loaded.Recurrence.RRules) != 1 {
		t.Fatalf("expected one rrule, got %d", len(loaded.Recurrence.RRules))
	}
	rule := loaded.Recurrence.RRules[0]
	if rule.Frequency != calendar.FreqWeekly {
		t.Fatalf("frequency: got %d", rule.Frequency)
	}
	if rule.Count != 10 {
		t.Fatalf("count: got %d, want 10", rule.Count)
	}
	if rule.Until.IsValid() {
		t.Fatalf("until must be invalid when a count is stored")
	}
	if len(rule.ByDays) != 2 || rule.ByDays[0].Day != 1 || rule.ByDays[1].Day != 3 {
		t.Fatalf("byDays: got %v, want [MO WE]", rule.ByDays)
	}
}

func TestMarkDeleteAndPurge(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E1",
		Created: calendar.Zoned(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	storeOne(t, s, "NB1", event)

	deletions := make(Collection)
	deletions.Add("NB1", event)
	if err := s.StoreIncidences(nil, nil, deletions, MarkDeleted); err != nil {
		t.Fatalf("cannot mark-delete: %v", err)
	}

	deleted, err := s.DeletedIncidences(calendar.DateTime{}, "")
	if err != nil {
		t.Fatalf("deletedIncidences: %v", err)
	}
	if len(deleted) != 1 || deleted[0].UID != "E1" {
		t.Fatalf("tombstone not visible: %v", deleted)
	}

	// Bounded listing: deleted after a cursor that lies between creation
	// and deletion.
	cursor := calendar.Zoned(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	deleted, err = s.DeletedIncidences(cursor, "")
	if err != nil {
		t.Fatalf("deletedIncidences(after): %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("bounded tombstone listing: got %d, want 1", len(deleted))
	}

	all, err := s.AllIncidences("")
	if err != nil {
		t.Fatalf("allIncidences: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("live listing must not contain the tombstone")
	}

	if !s.IncidenceDeletedDate(event).IsValid() {
		t.Fatalf("incidenceDeletedDate must report the deletion instant")
	}

	if err := s.PurgeDeletedIncidences([]*calendar.Incidence{event}); err != nil {
		t.Fatalf("purge: %v", err)
	}
	deleted, err = s.DeletedIncidences(calendar.DateTime{}, "")
	if err != nil {
		t.Fatalf("deletedIncidences after purge: %v", err)
	}
	if len(deleted) != 0 {
		t.Fatalf("tombstone must be gone after purge")
	}
}

func TestTombstoneCollapseOnInsert(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E1",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	storeOne(t, s, "NB1", event)

	deletions := make(Collection)
	deletions.Add("NB1", event)
	if err := s.StoreIncidences(nil, nil, deletions, MarkDeleted); err != nil {
		t.Fatalf("cannot mark-delete: %v", err)
	}

	// Re-inserting the same natural key collapses the tombstone.
	again := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E1",
		DtStart: calendar.Zoned(time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)),
	}
	storeOne(t, s, "NB1", again)

	deleted, err := s.DeletedIncidences(calendar.DateTime{}, "")
	if err != nil {
		t.Fatalf("deletedIncidences: %v", err)
	}
	if len(deleted) != 0 {
		t.Fatalf("tombstone survived re-insertion")
	}
	var count int
	if err := s.db.QueryRow("select count(*) from Components where UID='E1'").Scan(&count); err != nil {
		t.Fatalf("cannot count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row for E1, got %d", count)
	}
}

func TestUpdateIsIdempotentOnRows(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E1",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		Alarms: []*calendar.Alarm{
			{Action: calendar.AlarmDisplay, Enabled: true, HasStartOffset: true, StartOffsetSecs: -300, Description: "ping"},
		},
		Attendees: []calendar.Attendee{
			{Person: calendar.Person{Name: "Alice", Email: "alice@example.org"}},
		},
	}
	storeOne(t, s, "NB1", event)

	modifications := make(Collection)
	modifications.Add("NB1", event)
	if err := s.StoreIncidences(nil, modifications, nil, MarkDeleted); err != nil {
		t.Fatalf("cannot update: %v", err)
	}

	counts := map[string]int{}
	for _, table := range []string{"Components", "Alarm", "Attendee"} {
		var n int
		if err := s.db.QueryRow("select count(*) from " + table).Scan(&n); err != nil {
			t.Fatalf("cannot count %s: %v", table, err)
		}
		counts[table] = n
	}
	if counts["Components"] != 1 {
		t.Fatalf("Components rows: got %d, want 1", counts["Components"])
	}
	if counts["Alarm"] != 1 {
		t.Fatalf("Alarm rows: got %d, want 1", counts["Alarm"])
	}
	if counts["Attendee"] != 1 {
		t.Fatalf("Attendee rows: got %d, want 1", counts["Attendee"])
	}
}

func TestTransactionIDMonotonicity(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	before, err := selectTransactionID(s.db)
	if err != nil {
		t.Fatalf("cannot read transaction id: %v", err)
	}

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E1",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	storeOne(t, s, "NB1", event)

	after, err := selectTransactionID(s.db)
	if err != nil {
		t.Fatalf("cannot read transaction id: %v", err)
	}
	if after <= before {
		t.Fatalf("transaction id must strictly increase: %d -> %d", before, after)
	}
}

func TestNotebookCascade(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")
	nb2 := addTestNotebook(t, s, "NB2", "Second")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E9",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	storeOne(t, s, "NB2", event)

	tomb := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E10",
		DtStart: calendar.Zoned(time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)),
	}
	storeOne(t, s, "NB2", tomb)
	deletions := make(Collection)
	deletions.Add("NB2", tomb)
	if err := s.StoreIncidences(nil, nil, deletions, MarkDeleted); err != nil {
		t.Fatalf("cannot mark-delete: %v", err)
	}

	if err := s.DeleteNotebook(nb2); err != nil {
		t.Fatalf("cannot delete notebook: %v", err)
	}

	all, err := s.AllIncidences("NB2")
	if err != nil {
		t.Fatalf("allIncidences: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("live incidences of a deleted notebook must be gone")
	}
	deleted, err := s.DeletedIncidences(calendar.DateTime{}, "NB2")
	if err != nil {
		t.Fatalf("deletedIncidences: %v", err)
	}
	if len(deleted) != 0 {
		t.Fatalf("tombstones of a deleted notebook must be gone")
	}
	var n int
	if err := s.db.QueryRow("select count(*) from Components where Notebook='NB2'").Scan(&n); err != nil {
		t.Fatalf("cannot count rows: %v", err)
	}
	if n != 0 {
		t.Fatalf("no row may reference NB2, got %d", n)
	}
	if s.Notebook("NB1") == nil {
		t.Fatalf("other notebooks must be untouched")
	}
}

func TestDefaultNotebookIsUnique(t *testing.T) {
	s := newTestStorage(t)
	nb1 := addTestNotebook(t, s, "NB1", "First")
	nb2 := addTestNotebook(t, s, "NB2", "Second")

	if err := s.SetDefaultNotebook(nb1); err != nil {
		t.Fatalf("cannot set default: %v", err)
	}
	if err := s.SetDefaultNotebook(nb2); err != nil {
		t.Fatalf("cannot move default: %v", err)
	}

	var n int
	err := s.db.QueryRow("select count(*) from Calendars where Flags & ? <> 0", calendar.NotebookDefault).Scan(&n)
	if err != nil {
		t.Fatalf("cannot count default rows: %v", err)
	}
	if n != 1 {
		t.Fatalf("exactly one notebook may carry the default flag, got %d", n)
	}
	def := s.DefaultNotebook()
	if def == nil || def.UID != "NB2" {
		t.Fatalf("default notebook: got %v", def)
	}
}

func TestValidateNotebooksDropsUnknown(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	event := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "EX",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	additions := make(Collection)
	additions.Add("NO_SUCH_NOTEBOOK", event)
	if err := s.StoreIncidences(additions, nil, nil, MarkDeleted); err != nil {
		t.Fatalf("dropping is silent, not an error: %v", err)
	}

	all, err := s.AllIncidences("")
	if err != nil {
		t.Fatalf("allIncidences: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("incidence of an unknown notebook must be dropped")
	}
}

func TestCounts(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	additions := make(Collection)
	additions.Add("NB1", &calendar.Incidence{Type: calendar.TypeEvent, UID: "E1",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))})
	additions.Add("NB1", &calendar.Incidence{Type: calendar.TypeTodo, UID: "T1"})
	additions.Add("NB1", &calendar.Incidence{Type: calendar.TypeJournal, UID: "J1",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))})
	if err := s.StoreIncidences(additions, nil, nil, MarkDeleted); err != nil {
		t.Fatalf("store: %v", err)
	}

	events, err := s.EventCount()
	if err != nil {
		t.Fatalf("eventCount: %v", err)
	}
	todos, err := s.TodoCount()
	if err != nil {
		t.Fatalf("todoCount: %v", err)
	}
	journals, err := s.JournalCount()
	if err != nil {
		t.Fatalf("journalCount: %v", err)
	}
	if events != 1 || todos != 1 || journals != 1 {
		t.Fatalf("counts: got %d/%d/%d, want 1/1/1", events, todos, journals)
	}
}

func TestInsertedAndModifiedListings(t *testing.T) {
	s := newTestStorage(t)
	addTestNotebook(t, s, "NB1", "First")

	created := calendar.Zoned(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	event := &calendar.Incidence{
		Type:         calendar.TypeEvent,
		UID:          "E1",
		Created:      created,
		LastModified: created,
		DtStart:      calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	storeOne(t, s, "NB1", event)

	inserted, err := s.InsertedIncidences(calendar.Zoned(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)), "NB1")
	if err != nil {
		t.Fatalf("insertedIncidences: %v", err)
	}
	if len(inserted) != 1 {
		t.Fatalf("inserted listing: got %d, want 1", len(inserted))
	}

	// Modify after a cursor that follows creation.
	event.LastModified = calendar.Zoned(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	modifications := make(Collection)
	modifications.Add("NB1", event)
	if err := s.StoreIncidences(nil, modifications, nil, MarkDeleted); err != nil {
		t.Fatalf("update: %v", err)
	}

	cursor := calendar.Zoned(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	modified, err := s.ModifiedIncidences(cursor, "NB1")
	if err != nil {
		t.Fatalf("modifiedIncidences: %v", err)
	}
	if len(modified) != 1 || modified[0].UID != "E1" {
		t.Fatalf("modified listing: got %v", modified)
	}

	// An incidence created after the cursor counts as inserted, not
	// modified.
	insertedAfter, err := s.ModifiedIncidences(calendar.Zoned(time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)), "NB1")
	if err != nil {
		t.Fatalf("modifiedIncidences: %v", err)
	}
	if len(insertedAfter) != 0 {
		t.Fatalf("rows created after the cursor must not show as modified")
	}
}
