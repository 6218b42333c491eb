package db

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dcaliste/mkcal/calendar"
)

// dbOperation selects what a codec call does with a row.
type dbOperation int

const (
	opInsert dbOperation = iota
	opUpdate
	opMarkDeleted
	opDelete
)

// Rdate row types. Part of the on-disk format.
const (
	rdateTypeDate       = 1
	rdateTypeExDate     = 2
	rdateTypeDateTime   = 3
	rdateTypeExDateTime = 4
)

// querier is satisfied by both *sql.DB and *sql.Tx so the codec can run
// inside or outside an explicit transaction.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// format maps calendar objects to and from their relational rows. The
// two calendar-property statements are cached for the lifetime of the
// session; everything else goes through the database/sql statement cache.
type format struct {
	db *sql.DB

	selectCalProps *sql.Stmt
	insertCalProps *sql.Stmt
}

func newFormat(db *sql.DB) *format {
	return &format{db: db}
}

func (f *format) close() {
	if f.selectCalProps != nil {
		f.selectCalProps.Close()
		f.selectCalProps = nil
	}
	if f.insertCalProps != nil {
		f.insertCalProps.Close()
		f.insertCalProps = nil
	}
}

// selectRowID resolves the Components rowid of a live incidence by its
// natural key. Returns 0 when not found.
func (f *format) selectRowID(q querier, uid string, recurrenceID calendar.DateTime) (int64, error) {
	var rowid int64
	err := q.QueryRow(selectRowIDByUIDAndRecurID, uid, originSecs(recurrenceID)).Scan(&rowid)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rowid, nil
}

// modifyComponents writes one incidence to the Components table and its
// child tables. Updates use the delete-then-insert strategy for every
// child table.
func (f *format) modifyComponents(q querier, inc *calendar.Incidence, notebookUID string, op dbOperation) error {
	var rowid int64
	var err error

	if op == opUpdate || op == opMarkDeleted || op == opDelete {
		rowid, err = f.selectRowID(q, inc.UID, inc.RecurrenceID)
		if err != nil {
			return err
		}
		if rowid == 0 {
			return fmt.Errorf("no component row for incidence %s", inc.UID)
		}
	}

	switch op {
	case opDelete:
		if _, err := q.Exec(deleteComponents, rowid); err != nil {
			return err
		}
		return f.deleteChildren(q, rowid)

	case opMarkDeleted:
		now := toOriginTime(time.Now().UTC())
		_, err := q.Exec(updateComponentsAsDeleted, now, rowid)
		return err
	}

	args, err := componentArgs(inc, notebookUID)
	if err != nil {
		return err
	}

	if op == opInsert {
		res, err := q.Exec(insertComponents, args...)
		if err != nil {
			return err
		}
		rowid, err = res.LastInsertId()
		if err != nil {
			return err
		}
	} else {
		args = append(args, rowid)
		if _, err := q.Exec(updateComponents, args...); err != nil {
			return err
		}
	}

	if err := f.modifyCustomproperties(q, inc, rowid, op); err != nil {
		logWarnf("failed to modify customproperties for incidence %s: %v", inc.UID, err)
	}
	if err := f.modifyAttendees(q, inc, rowid, op); err != nil {
		logWarnf("failed to modify attendees for incidence %s: %v", inc.UID, err)
	}
	if err := f.modifyAlarms(q, inc, rowid, op); err != nil {
		logWarnf("failed to modify alarms for incidence %s: %v", inc.UID, err)
	}
	if err := f.modifyRecursives(q, inc, rowid, op); err != nil {
		logWarnf("failed to modify recursives for incidence %s: %v", inc.UID, err)
	}
	if err := f.modifyRdates(q, inc, rowid, op); err != nil {
		logWarnf("failed to modify rdates for incidence %s: %v", inc.UID, err)
	}
	if err := f.modifyAttachments(q, inc, rowid, op); err != nil {
		logWarnf("failed to modify attachments for incidence %s: %v", inc.UID, err)
	}

	return nil
}

// componentArgs binds every persisted column of an incidence, in the
// column order of the Components table.
func componentArgs(inc *calendar.Incidence, notebookUID string) ([]interface{}, error) {
	switch inc.Type {
	case calendar.TypeEvent, calendar.TypeTodo, calendar.TypeJournal, calendar.TypeFreeBusy:
	default:
		return nil, fmt.Errorf("unknown incidence type %q", inc.Type)
	}

	args := make([]interface{}, 0, 41)
	args = append(args, notebookUID, string(inc.Type), inc.Summary,
		strings.Join(inc.Categories, ","))

	appendDateTime := func(dt calendar.DateTime, allDay bool) {
		u, l, tz := encodeDateTime(dt, allDay)
		args = append(args, u, l, tz)
	}

	switch inc.Type {
	case calendar.TypeTodo:
		appendDateTime(inc.DtStart, inc.AllDay)
		args = append(args, boolInt(inc.HasDueDate))
		if inc.HasDueDate {
			appendDateTime(inc.DtDue, inc.AllDay)
		} else {
			appendDateTime(calendar.DateTime{}, inc.AllDay)
		}
	default:
		appendDateTime(inc.DtStart, inc.AllDay)
		args = append(args, 0) // HasDueDate
		effectiveDtEnd := calendar.DateTime{}
		if inc.Type == calendar.TypeEvent && inc.DtEnd.IsValid() {
			// One day is added to all-day ends for backward
			// compatibility with existing rows; subtracted on read.
			if inc.AllDay {
				effectiveDtEnd = inc.DtEnd.AddDays(1)
			} else {
				effectiveDtEnd = inc.DtEnd
			}
		}
		appendDateTime(effectiveDtEnd, inc.AllDay)
	}

	if inc.Type != calendar.TypeJournal {
		args = append(args, inc.DurationSecs)
	} else {
		args = append(args, 0)
	}

	args = append(args, int(inc.Secrecy))

	if inc.Type != calendar.TypeJournal {
		args = append(args, inc.Location)
	} else {
		args = append(args, "")
	}

	args = append(args, inc.Description, int(inc.Status))

	if inc.Type != calendar.TypeJournal && inc.HasGeo {
		args = append(args, inc.Latitude, inc.Longitude)
	} else {
		args = append(args, invalidLatLon, invalidLatLon)
	}

	if inc.Type != calendar.TypeJournal {
		args = append(args, inc.Priority, strings.Join(inc.Resources, " "))
	} else {
		args = append(args, 0, "")
	}

	created := inc.Created
	if !created.IsValid() {
		created = calendar.Zoned(time.Now().UTC())
	}
	args = append(args, originSecs(created))

	args = append(args, toOriginTime(time.Now().UTC())) // datestamp

	args = append(args, originSecs(inc.LastModified))

	args = append(args, inc.Revision,
		strings.Join(inc.Comments, " "),
		"", // attachments are in their own table now
		strings.Join(inc.Contacts, " "),
		0) // invitation status, unused

	// Never save a recurrence id as floating date: its time-of-day takes
	// part in date-time comparisons and must survive a round trip.
	{
		u, l, tz := encodeDateTime(inc.RecurrenceID, false)
		args = append(args, u, l, tz)
	}

	args = append(args, inc.RelatedTo, inc.URL, inc.UID)

	if inc.Type == calendar.TypeEvent {
		args = append(args, int(inc.Transparency))
	} else {
		args = append(args, 0)
	}

	args = append(args, boolInt(inc.LocalOnly))

	percent := 0
	completed := calendar.DateTime{}
	if inc.Type == calendar.TypeTodo {
		percent = inc.PercentComplete
		if inc.IsCompleted() {
			completed = inc.Completed
			if !completed.IsValid() {
				// Old producers leave completed todos without a
				// completion date. Set one now.
				completed = calendar.Zoned(time.Now().UTC())
			}
		}
	}
	args = append(args, percent)
	{
		u, l, tz := encodeDateTime(completed, inc.AllDay)
		args = append(args, u, l, tz)
	}

	args = append(args, inc.Color) // extra1

	return args, nil
}

func (f *format) deleteChildren(q querier, rowid int64) error {
	var firstErr error
	for _, stmt := range []string{
		deleteCustomproperties,
		deleteAlarm,
		deleteAttendee,
		deleteRecursive,
		deleteRdates,
		deleteAttachments,
	} {
		if _, err := q.Exec(stmt, rowid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// purgeDeletedComponents removes every soft-deleted twin of the given
// natural key, with all its child rows.
func (f *format) purgeDeletedComponents(q querier, uid string, recurrenceID calendar.DateTime) error {
	rows, err := q.Query(selectComponentsByUIDRecurIDAndDeleted, uid, originSecs(recurrenceID))
	if err != nil {
		return err
	}
	var rowids []int64
	for rows.Next() {
		var rowid, dateDeleted int64
		if err := rows.Scan(&rowid, &dateDeleted); err != nil {
			rows.Close()
			return err
		}
		rowids = append(rowids, rowid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, rowid := range rowids {
		if _, err := q.Exec(deleteComponents, rowid); err != nil {
			return err
		}
		if err := f.deleteChildren(q, rowid); err != nil {
			logWarnf("failed to delete child rows of component %d: %v", rowid, err)
		}
	}
	return nil
}

func (f *format) modifyCustomproperties(q querier, inc *calendar.Incidence, rowid int64, op dbOperation) error {
	if op == opUpdate {
		if _, err := q.Exec(deleteCustomproperties, rowid); err != nil {
			return err
		}
	}
	for name, prop := range inc.CustomProperties {
		if _, err := q.Exec(insertCustomproperties, rowid, name, prop.Value, prop.Parameters); err != nil {
			return err
		}
	}
	return nil
}

func (f *format) modifyAttendees(q querier, inc *calendar.Incidence, rowid int64, op dbOperation) error {
	if op == opUpdate {
		if _, err := q.Exec(deleteAttendee, rowid); err != nil {
			return err
		}
	}
	// Attendee rows need a unique, non-empty email per incidence, and the
	// organizer is forced into the attendee list.
	organizerEmail := ""
	if !inc.Organizer.IsEmpty() {
		organizerEmail = inc.Organizer.Email
		if _, err := q.Exec(insertAttendee, rowid, inc.Organizer.Email, inc.Organizer.Name,
			1, int(calendar.RoleChair), int(calendar.PartStatAccepted), 0, "", ""); err != nil {
			return err
		}
	}
	for _, att := range inc.Attendees {
		if att.Email == "" {
			logWarnf("attendee of incidence %s has no email address", inc.UID)
			continue
		}
		if att.Email == organizerEmail {
			continue
		}
		if _, err := q.Exec(insertAttendee, rowid, att.Email, att.Name, 0,
			int(att.Role), int(att.Status), boolInt(att.RSVP),
			att.DelegatedTo, att.DelegatedFrom); err != nil {
			return err
		}
	}
	return nil
}

func (f *format) modifyAlarms(q querier, inc *calendar.Incidence, rowid int64, op dbOperation) error {
	if op == opUpdate {
		if _, err := q.Exec(deleteAlarm, rowid); err != nil {
			return err
		}
	}
	for _, alarm := range inc.Alarms {
		repeat, snooze := 0, 0
		if alarm.Repeat != 0 {
			repeat = alarm.Repeat
			snooze = alarm.SnoozeSecs
		}

		var offset int
		var relation string
		var trigUtc, trigLocal int64
		var trigTz string
		switch {
		case alarm.HasStartOffset:
			offset = alarm.StartOffsetSecs
			relation = "startTriggerRelation"
		case alarm.HasEndOffset:
			offset = alarm.EndOffsetSecs
			relation = "endTriggerRelation"
		default:
			trigUtc, trigLocal, trigTz = encodeDateTime(alarm.Time, false)
		}

		properties := ""
		if len(alarm.CustomProperties) > 0 {
			var list []string
			for k, v := range alarm.CustomProperties {
				list = append(list, k, v)
			}
			properties = strings.Join(list, "\r\n")
		}

		if _, err := q.Exec(insertAlarm, rowid, int(alarm.Action), repeat, snooze,
			offset, relation, trigUtc, trigLocal, trigTz,
			alarm.Description, alarm.Attachment, alarm.Summary,
			strings.Join(alarm.Addresses, " "), properties,
			boolInt(alarm.Enabled)); err != nil {
			return err
		}
	}
	return nil
}

func (f *format) modifyRecursives(q querier, inc *calendar.Incidence, rowid int64, op dbOperation) error {
	if op == opUpdate {
		if _, err := q.Exec(deleteRecursive, rowid); err != nil {
			return err
		}
	}
	for _, rule := range inc.Recurrence.RRules {
		if err := f.insertRecursive(q, rowid, rule, 1, inc.AllDay); err != nil {
			return err
		}
	}
	for _, rule := range inc.Recurrence.ExRules {
		if err := f.insertRecursive(q, rowid, rule, 2, inc.AllDay); err != nil {
			return err
		}
	}
	return nil
}

func (f *format) insertRecursive(q querier, rowid int64, rule *calendar.RecurrenceRule, ruleType int, allDay bool) error {
	untilUtc, untilLocal, untilTz := encodeDateTime(rule.Until, allDay)

	byDays := make([]string, 0, len(rule.ByDays))
	byDayPoss := make([]string, 0, len(rule.ByDays))
	for _, wd := range rule.ByDays {
		byDays = append(byDays, strconv.Itoa(wd.Day))
		byDayPoss = append(byDayPoss, strconv.Itoa(wd.Pos))
	}

	_, err := q.Exec(insertRecursive, rowid, ruleType, int(rule.Frequency),
		untilUtc, untilLocal, untilTz,
		rule.Count, rule.Interval,
		joinInts(rule.BySeconds), joinInts(rule.ByMinutes), joinInts(rule.ByHours),
		strings.Join(byDays, " "), strings.Join(byDayPoss, " "),
		joinInts(rule.ByMonthDays), joinInts(rule.ByYearDays),
		joinInts(rule.ByWeekNumbers), joinInts(rule.ByMonths), joinInts(rule.BySetPos),
		rule.WeekStart)
	return err
}

func (f *format) modifyRdates(q querier, inc *calendar.Incidence, rowid int64, op dbOperation) error {
	if op == opUpdate {
		if _, err := q.Exec(deleteRdates, rowid); err != nil {
			return err
		}
	}
	insert := func(typ int, dt calendar.DateTime, allDay bool) error {
		u, l, tz := encodeDateTime(dt, allDay)
		_, err := q.Exec(insertRdates, rowid, typ, u, l, tz)
		return err
	}
	for _, d := range inc.Recurrence.RDates {
		if err := insert(rdateTypeDate, calendar.Clock(d), true); err != nil {
			return err
		}
	}
	for _, d := range inc.Recurrence.ExDates {
		if err := insert(rdateTypeExDate, calendar.Clock(d), true); err != nil {
			return err
		}
	}
	// All-day series report their extra occurrences as clock-time
	// midnights; store those as floating dates so the reading matches in
	// every zone.
	for _, dt := range inc.Recurrence.RDateTimes {
		allDay := inc.AllDay && dt.IsClockTime() && dt.IsMidnight()
		if err := insert(rdateTypeDateTime, dt, allDay); err != nil {
			return err
		}
	}
	for _, dt := range inc.Recurrence.ExDateTimes {
		allDay := inc.AllDay && dt.IsClockTime() && dt.IsMidnight()
		if err := insert(rdateTypeExDateTime, dt, allDay); err != nil {
			return err
		}
	}
	return nil
}

func (f *format) modifyAttachments(q querier, inc *calendar.Incidence, rowid int64, op dbOperation) error {
	if op == opUpdate {
		if _, err := q.Exec(deleteAttachments, rowid); err != nil {
			return err
		}
	}
	for _, att := range inc.Attachments {
		var data interface{}
		var uri interface{}
		switch {
		case att.IsBinary():
			data = att.Data
			uri = nil
		case att.IsURI():
			data = nil
			uri = att.URI
		default:
			continue
		}
		if _, err := q.Exec(insertAttachments, rowid, data, uri, att.MimeType,
			boolInt(att.ShowInline), att.Label, boolInt(att.Local)); err != nil {
			return err
		}
	}
	return nil
}

// componentRow mirrors one Components row.
type componentRow struct {
	rowid    int64
	notebook string
	typ      string
	summary  sql.NullString
	category sql.NullString

	dateStart      int64
	dateStartLocal int64
	startTimeZone  sql.NullString

	hasDueDate      int
	dateEndDue      int64
	dateEndDueLocal int64
	endDueTimeZone  sql.NullString

	duration       int
	classification int
	location       sql.NullString
	description    sql.NullString
	status         int
	geoLatitude    float64
	geoLongitude   float64
	priority       int
	resources      sql.NullString

	dateCreated      int64
	dateStamp        int64
	dateLastModified int64
	sequence         int
	comments         sql.NullString
	attachments      sql.NullString
	contact          sql.NullString
	invitationStatus int

	recurID         int64
	recurIDLocal    int64
	recurIDTimeZone sql.NullString

	relatedTo sql.NullString
	url       sql.NullString
	uid       string

	transparency int
	localOnly    int
	percent      int

	dateCompleted      int64
	dateCompletedLocal int64
	completedTimeZone  sql.NullString

	dateDeleted int64
	extra1      sql.NullString
	extra2      sql.NullString
	extra3      sql.NullInt64
}

func scanComponent(rows *sql.Rows) (*componentRow, error) {
	var c componentRow
	err := rows.Scan(&c.rowid, &c.notebook, &c.typ, &c.summary, &c.category,
		&c.dateStart, &c.dateStartLocal, &c.startTimeZone,
		&c.hasDueDate, &c.dateEndDue, &c.dateEndDueLocal, &c.endDueTimeZone,
		&c.duration, &c.classification, &c.location, &c.description, &c.status,
		&c.geoLatitude, &c.geoLongitude, &c.priority, &c.resources,
		&c.dateCreated, &c.dateStamp, &c.dateLastModified, &c.sequence,
		&c.comments, &c.attachments, &c.contact, &c.invitationStatus,
		&c.recurID, &c.recurIDLocal, &c.recurIDTimeZone,
		&c.relatedTo, &c.url, &c.uid,
		&c.transparency, &c.localOnly, &c.percent,
		&c.dateCompleted, &c.dateCompletedLocal, &c.completedTimeZone,
		&c.dateDeleted, &c.extra1, &c.extra2, &c.extra3)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// scanComponents drains a `select * from Components` result set. Child
// tables are queried afterwards, never while the cursor is open, so a
// single-connection pool cannot deadlock on itself.
func scanComponents(rows *sql.Rows) ([]*componentRow, error) {
	defer rows.Close()
	var out []*componentRow
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// decodeRow turns one scanned Components row into an incidence, loading
// its child tables. The notebook uid of the row is returned alongside.
func (f *format) decodeRow(q querier, c *componentRow) (*calendar.Incidence, string, error) {
	inc := decodeComponent(c)
	if inc == nil {
		return nil, "", fmt.Errorf("component %d has unknown type %q", c.rowid, c.typ)
	}

	if err := f.selectCustomproperties(q, inc, c.rowid); err != nil {
		logWarnf("failed to get customproperties for incidence %s: %v", inc.UID, err)
	}
	if err := f.selectAttendees(q, inc, c.rowid); err != nil {
		logWarnf("failed to get attendees for incidence %s: %v", inc.UID, err)
	}
	if err := f.selectAlarms(q, inc, c.rowid); err != nil {
		logWarnf("failed to get alarms for incidence %s: %v", inc.UID, err)
	}
	if err := f.selectRecursives(q, inc, c.rowid); err != nil {
		logWarnf("failed to get recursives for incidence %s: %v", inc.UID, err)
	}
	if err := f.selectRdates(q, inc, c.rowid); err != nil {
		logWarnf("failed to get rdates for incidence %s: %v", inc.UID, err)
	}
	if err := f.selectAttachments(q, inc, c.rowid); err != nil {
		logWarnf("failed to get attachments for incidence %s: %v", inc.UID, err)
	}

	// Tolerate the legacy attachment storage: a space-separated URI list
	// in the component row, used only when the dedicated table is empty.
	if att := c.attachments.String; att != "" && len(inc.Attachments) == 0 {
		for _, uri := range strings.Fields(att) {
			inc.Attachments = append(inc.Attachments, calendar.Attachment{URI: uri})
		}
	}

	return inc, c.notebook, nil
}

func decodeComponent(c *componentRow) *calendar.Incidence {
	var inc *calendar.Incidence

	start, startIsDate := decodeDateTime(c.dateStart, c.dateStartLocal, c.startTimeZone.String)

	switch calendar.IncidenceType(c.typ) {
	case calendar.TypeEvent, calendar.TypeFreeBusy:
		inc = &calendar.Incidence{Type: calendar.IncidenceType(c.typ)}
		if start.IsValid() {
			inc.DtStart = start
		} else {
			// A start date-time is mandatory in RFC 5545 for events.
			inc.DtStart = fromOriginTime(0)
		}
		end, endIsDate := decodeDateTime(c.dateEndDue, c.dateEndDueLocal, c.endDueTimeZone.String)
		if startIsDate && (!end.IsValid() || endIsDate) {
			inc.AllDay = true
			// Stored all-day ends carry one extra day.
			if end.IsValid() {
				end = end.AddDays(-1)
				if end.Equal(start) {
					end = calendar.DateTime{}
				}
			}
		}
		if end.IsValid() {
			inc.DtEnd = end
		}

	case calendar.TypeTodo:
		inc = &calendar.Incidence{Type: calendar.TypeTodo}
		if start.IsValid() {
			inc.DtStart = start
		}
		hasDueDate := c.hasDueDate != 0
		due, dueIsDate := decodeDateTime(c.dateEndDue, c.dateEndDueLocal, c.endDueTimeZone.String)
		if due.IsValid() {
			if start.IsValid() && due.Equal(start) && !hasDueDate {
				due = calendar.DateTime{}
			} else {
				inc.DtDue = due
				inc.HasDueDate = true
			}
		}
		if startIsDate && (!due.IsValid() || (dueIsDate && start.Before(due))) {
			inc.AllDay = true
		}

	case calendar.TypeJournal:
		inc = &calendar.Incidence{Type: calendar.TypeJournal}
		inc.DtStart = start
		inc.AllDay = startIsDate

	default:
		return nil
	}

	inc.Summary = c.summary.String
	if c.duration != 0 {
		inc.DurationSecs = c.duration
	}
	inc.Secrecy = calendar.Secrecy(c.classification)
	inc.Location = c.location.String
	inc.Description = c.description.String
	inc.Status = calendar.Status(c.status)

	if c.geoLatitude >= invalidLatLon+1.0 && c.geoLongitude >= invalidLatLon+1.0 {
		inc.HasGeo = true
		inc.Latitude = c.geoLatitude
		inc.Longitude = c.geoLongitude
	}

	inc.Priority = c.priority
	if c.resources.String != "" {
		inc.Resources = strings.Split(c.resources.String, " ")
	}

	inc.Created = fromOriginTime(c.dateCreated)
	inc.LastModified = fromOriginTime(c.dateLastModified)
	inc.Revision = c.sequence

	if c.comments.String != "" {
		inc.Comments = strings.Split(c.comments.String, " ")
	}
	if c.contact.String != "" {
		inc.Contacts = strings.Split(c.contact.String, " ")
	}
	if c.category.String != "" {
		inc.Categories = strings.Split(c.category.String, ",")
	}

	rid, _ := decodeDateTime(c.recurID, c.recurIDLocal, c.recurIDTimeZone.String)
	inc.RecurrenceID = rid

	inc.RelatedTo = c.relatedTo.String
	inc.URL = c.url.String
	inc.UID = c.uid

	if inc.Type == calendar.TypeEvent {
		inc.Transparency = calendar.Transparency(c.transparency)
	}
	inc.LocalOnly = c.localOnly != 0

	if inc.Type == calendar.TypeTodo {
		inc.PercentComplete = c.percent
		completed, _ := decodeDateTime(c.dateCompleted, c.dateCompletedLocal, c.completedTimeZone.String)
		if completed.IsValid() {
			inc.Completed = completed
		}
	}

	inc.Color = c.extra1.String

	return inc
}

func (f *format) selectCustomproperties(q querier, inc *calendar.Incidence, rowid int64) error {
	rows, err := q.Query(selectCustompropertiesByID, rowid)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		var value, parameters sql.NullString
		if err := rows.Scan(&id, &name, &value, &parameters); err != nil {
			return err
		}
		inc.SetCustomProperty(name, value.String, parameters.String)
	}
	return rows.Err()
}

func (f *format) selectAttendees(q querier, inc *calendar.Incidence, rowid int64) error {
	rows, err := q.Query(selectAttendeeByID, rowid)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var email, name, delegatedTo, delegatedFrom sql.NullString
		var isOrganizer, role, partStat, rsvp int
		if err := rows.Scan(&id, &email, &name, &isOrganizer, &role, &partStat,
			&rsvp, &delegatedTo, &delegatedFrom); err != nil {
			return err
		}
		if isOrganizer != 0 {
			inc.Organizer = calendar.Person{Name: name.String, Email: email.String}
		}
		inc.Attendees = append(inc.Attendees, calendar.Attendee{
			Person:        calendar.Person{Name: name.String, Email: email.String},
			Role:          calendar.AttendeeRole(role),
			Status:        calendar.PartStat(partStat),
			RSVP:          rsvp != 0,
			DelegatedTo:   delegatedTo.String,
			DelegatedFrom: delegatedFrom.String,
		})
	}
	return rows.Err()
}

func (f *format) selectAlarms(q querier, inc *calendar.Incidence, rowid int64) error {
	rows, err := q.Query(selectAlarmByID, rowid)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var action, repeat, snooze, offset, enabled int
		var relation, trigTz, description, attachment, summary, addresses, properties sql.NullString
		var trigUtc, trigLocal int64
		if err := rows.Scan(&id, &action, &repeat, &snooze, &offset, &relation,
			&trigUtc, &trigLocal, &trigTz, &description, &attachment, &summary,
			&addresses, &properties, &enabled); err != nil {
			return err
		}

		alarm := &calendar.Alarm{
			Action:      calendar.AlarmAction(action),
			Enabled:     enabled != 0,
			Description: description.String,
			Attachment:  attachment.String,
			Summary:     summary.String,
		}
		if repeat > 0 {
			alarm.Repeat = repeat
			alarm.SnoozeSecs = snooze
		}

		trigger, _ := decodeDateTime(trigUtc, trigLocal, trigTz.String)
		if trigger.IsValid() {
			alarm.Time = trigger
		} else if strings.Contains(relation.String, "startTriggerRelation") {
			alarm.HasStartOffset = true
			alarm.StartOffsetSecs = offset
		} else if strings.Contains(relation.String, "endTriggerRelation") {
			alarm.HasEndOffset = true
			alarm.EndOffsetSecs = offset
		}

		if addresses.String != "" {
			alarm.Addresses = strings.Split(addresses.String, " ")
		}

		if properties.String != "" {
			alarm.CustomProperties = make(map[string]string)
			list := strings.Split(properties.String, "\r\n")
			for i := 0; i+1 < len(list); i += 2 {
				alarm.CustomProperties[list[i]] = list[i+1]
			}
		}

		inc.Alarms = append(inc.Alarms, alarm)
	}
	return rows.Err()
}

func (f *format) selectRecursives(q querier, inc *calendar.Incidence, rowid int64) error {
	rows, err := q.Query(selectRecursiveByID, rowid)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var ruleType, frequency, count, interval, weekStart int
		var untilUtc, untilLocal int64
		var untilTz, bySecond, byMinute, byHour, byDay, byDayPos sql.NullString
		var byMonthDay, byYearDay, byWeekNum, byMonth, bySetPos sql.NullString
		if err := rows.Scan(&id, &ruleType, &frequency,
			&untilUtc, &untilLocal, &untilTz,
			&count, &interval, &bySecond, &byMinute, &byHour, &byDay, &byDayPos,
			&byMonthDay, &byYearDay, &byWeekNum, &byMonth, &bySetPos,
			&weekStart); err != nil {
			return err
		}

		rule := &calendar.RecurrenceRule{
			Frequency: calendar.RecurrenceFrequency(frequency),
			Interval:  interval,
			WeekStart: weekStart,
		}

		until, _ := decodeDateTime(untilUtc, untilLocal, untilTz.String)
		rule.Until = until
		if count == 0 && !until.IsValid() {
			// Recurring infinitely with no end date.
			count = -1
		} else if count > 0 {
			// A provided count wins over any stored end date.
			rule.Until = calendar.DateTime{}
		}
		rule.Count = count

		rule.BySeconds = splitInts(bySecond.String)
		rule.ByMinutes = splitInts(byMinute.String)
		rule.ByHours = splitInts(byHour.String)
		rule.ByMonthDays = splitInts(byMonthDay.String)
		rule.ByYearDays = splitInts(byYearDay.String)
		rule.ByWeekNumbers = splitInts(byWeekNum.String)
		rule.ByMonths = splitInts(byMonth.String)
		rule.BySetPos = splitInts(bySetPos.String)

		days := splitInts(byDay.String)
		poss := splitInts(byDayPos.String)
		for i, day := range days {
			pos := 0
			if i < len(poss) {
				pos = poss[i]
			}
			rule.ByDays = append(rule.ByDays, calendar.WeekDayPos{Day: day, Pos: pos})
		}

		if ruleType == 1 {
			inc.Recurrence.RRules = append(inc.Recurrence.RRules, rule)
		} else {
			inc.Recurrence.ExRules = append(inc.Recurrence.ExRules, rule)
		}
	}
	return rows.Err()
}

func (f *format) selectRdates(q querier, inc *calendar.Incidence, rowid int64) error {
	rows, err := q.Query(selectRdatesByID, rowid)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var typ int
		var dateUtc, dateLocal int64
		var tz sql.NullString
		if err := rows.Scan(&id, &typ, &dateUtc, &dateLocal, &tz); err != nil {
			return err
		}
		dt, _ := decodeDateTime(dateUtc, dateLocal, tz.String)
		if !dt.IsValid() {
			continue
		}
		switch typ {
		case rdateTypeDate:
			y, m, d := dt.Time.Date()
			inc.Recurrence.AddRDate(y, m, d)
		case rdateTypeExDate:
			y, m, d := dt.Time.Date()
			inc.Recurrence.AddExDate(y, m, d)
		case rdateTypeDateTime:
			inc.Recurrence.RDateTimes = append(inc.Recurrence.RDateTimes, dt)
		case rdateTypeExDateTime:
			inc.Recurrence.ExDateTimes = append(inc.Recurrence.ExDateTimes, dt)
		}
	}
	return rows.Err()
}

func (f *format) selectAttachments(q querier, inc *calendar.Incidence, rowid int64) error {
	rows, err := q.Query(selectAttachmentsByID, rowid)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var data []byte
		var uri, mimeType, label sql.NullString
		var showInline, local int
		if err := rows.Scan(&id, &data, &uri, &mimeType, &showInline, &label, &local); err != nil {
			return err
		}
		att := calendar.Attachment{
			Data:       append([]byte(nil), data...),
			URI:        uri.String,
			MimeType:   mimeType.String,
			ShowInline: showInline != 0,
			Label:      label.String,
			Local:      local != 0,
		}
		if att.IsBinary() {
			att.URI = ""
		}
		if att.IsEmpty() {
			logWarnf("empty attachment for incidence %s", inc.UID)
			continue
		}
		inc.Attachments = append(inc.Attachments, att)
	}
	return rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinInts(list []int) string {
	parts := make([]string, len(list))
	for i, v := range list {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}

func splitInts(s string) []int {
	if s == "" {
		return nil
	}
	fields := strings.Fields(s)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
