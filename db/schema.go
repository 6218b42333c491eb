package db

// Schema and statement catalog for the calendar database. The column
// layout of Components is part of the on-disk format shared with other
// readers of the same file; extra1 carries the per-incidence color,
// extra2 and extra3 are reserved.

const (
	createMetadata = "CREATE TABLE IF NOT EXISTS Metadata(transactionId INTEGER)"

	createTimezones = "CREATE TABLE IF NOT EXISTS Timezones(TzId INTEGER PRIMARY KEY, ICalData TEXT)"

	createCalendars = "CREATE TABLE IF NOT EXISTS Calendars(CalendarId TEXT PRIMARY KEY, Name TEXT, Description TEXT, Color INTEGER, Flags INTEGER, syncDate INTEGER, pluginName TEXT, account TEXT, attachmentSize INTEGER, modifiedDate INTEGER, sharedWith TEXT, syncProfile TEXT, createdDate INTEGER, extra1 STRING, extra2 STRING)"

	createComponents = "CREATE TABLE IF NOT EXISTS Components(ComponentId INTEGER PRIMARY KEY AUTOINCREMENT, Notebook TEXT, Type TEXT, Summary TEXT, Category TEXT, DateStart INTEGER, DateStartLocal INTEGER, StartTimeZone TEXT, HasDueDate INTEGER, DateEndDue INTEGER, DateEndDueLocal INTEGER, EndDueTimeZone TEXT, Duration INTEGER, Classification INTEGER, Location TEXT, Description TEXT, Status INTEGER, GeoLatitude REAL, GeoLongitude REAL, Priority INTEGER, Resources TEXT, DateCreated INTEGER, DateStamp INTEGER, DateLastModified INTEGER, Sequence INTEGER, Comments TEXT, Attachments TEXT, Contact TEXT, InvitationStatus INTEGER, RecurId INTEGER, RecurIdLocal INTEGER, RecurIdTimeZone TEXT, RelatedTo TEXT, URL TEXT, UID TEXT, Transparency INTEGER, LocalOnly INTEGER, Percent INTEGER, DateCompleted INTEGER, DateCompletedLocal INTEGER, CompletedTimeZone TEXT, DateDeleted INTEGER, extra1 STRING, extra2 STRING, extra3 INTEGER)"

	createRdates = "CREATE TABLE IF NOT EXISTS Rdates(ComponentId INTEGER, Type INTEGER, Date INTEGER, DateLocal INTEGER, TimeZone TEXT)"

	createCustomproperties = "CREATE TABLE IF NOT EXISTS Customproperties(ComponentId INTEGER, Name TEXT, Value TEXT, Parameters TEXT)"

	createRecursive = "CREATE TABLE IF NOT EXISTS Recursive(ComponentId INTEGER, RuleType INTEGER, Frequency INTEGER, Until INTEGER, UntilLocal INTEGER, untilTimeZone TEXT, Count INTEGER, Interval INTEGER, BySecond TEXT, ByMinute TEXT, ByHour TEXT, ByDay TEXT, ByDayPos TEXT, ByMonthDay TEXT, ByYearDay TEXT, ByWeekNum TEXT, ByMonth TEXT, BySetPos TEXT, WeekStart INTEGER)"

	createAlarm = "CREATE TABLE IF NOT EXISTS Alarm(ComponentId INTEGER, Action INTEGER, Repeat INTEGER, Duration INTEGER, Offset INTEGER, Relation TEXT, DateTrigger INTEGER, DateTriggerLocal INTEGER, triggerTimeZone TEXT, Description TEXT, Attachment TEXT, Summary TEXT, Address TEXT, CustomProperties TEXT, isEnabled INTEGER)"

	createAttendee = "CREATE TABLE IF NOT EXISTS Attendee(ComponentId INTEGER, Email TEXT, Name TEXT, IsOrganizer INTEGER, Role INTEGER, PartStat INTEGER, Rsvp INTEGER, DelegatedTo TEXT, DelegatedFrom TEXT)"

	createAttachments = "CREATE TABLE IF NOT EXISTS Attachments(ComponentId INTEGER, Data BLOB, Uri TEXT, MimeType TEXT, ShowInLine INTEGER, Label TEXT, Local INTEGER)"

	createCalendarproperties = "CREATE TABLE IF NOT EXISTS Calendarproperties(CalendarId REFERENCES Calendars(CalendarId) ON DELETE CASCADE, Name TEXT NOT NULL, Value TEXT, UNIQUE (CalendarId, Name))"
)

const (
	indexCalendar           = "CREATE INDEX IF NOT EXISTS IDX_CALENDAR on Calendars(CalendarId)"
	indexComponent          = "CREATE INDEX IF NOT EXISTS IDX_COMPONENT on Components(ComponentId, Notebook, DateStart, DateEndDue, DateDeleted)"
	indexComponentUID       = "CREATE UNIQUE INDEX IF NOT EXISTS IDX_COMPONENT_UID on Components(UID, RecurId, DateDeleted)"
	indexComponentNotebook  = "CREATE INDEX IF NOT EXISTS IDX_COMPONENT_NOTEBOOK on Components(Notebook)"
	indexRdates             = "CREATE INDEX IF NOT EXISTS IDX_RDATES on Rdates(ComponentId)"
	indexCustomproperties   = "CREATE INDEX IF NOT EXISTS IDX_CUSTOMPROPERTIES on Customproperties(ComponentId)"
	indexRecursive          = "CREATE INDEX IF NOT EXISTS IDX_RECURSIVE on Recursive(ComponentId)"
	indexAlarm              = "CREATE INDEX IF NOT EXISTS IDX_ALARM on Alarm(ComponentId)"
	indexAttendee           = "CREATE UNIQUE INDEX IF NOT EXISTS IDX_ATTENDEE on Attendee(ComponentId, Email)"
	indexAttachments        = "CREATE INDEX IF NOT EXISTS IDX_ATTACHMENTS on Attachments(ComponentId)"
	indexCalendarproperties = "CREATE INDEX IF NOT EXISTS IDX_CALENDARPROPERTIES on Calendarproperties(CalendarId)"
)

// createStatements are applied in order on open.
var createStatements = []string{
	createMetadata,
	createTimezones,
	// Create the global empty timezone entry.
	insertTimezones,
	createCalendars,
	createComponents,
	createRdates,
	createCustomproperties,
	createRecursive,
	createAlarm,
	createAttendee,
	createAttachments,
	createCalendarproperties,
	indexCalendar,
	indexComponent,
	indexComponentUID,
	indexComponentNotebook,
	indexRdates,
	indexCustomproperties,
	indexRecursive,
	indexAlarm,
	indexAttendee,
	indexAttachments,
	indexCalendarproperties,
	"PRAGMA foreign_keys = ON",
}

const (
	insertTimezones = "insert into Timezones select 1, '' where not exists (select TzId from Timezones where TzId=1)"

	insertCalendars = "insert into Calendars values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '')"

	insertComponents = "insert into Components values (NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, '', 0)"

	insertCustomproperties = "insert into Customproperties values (?, ?, ?, ?)"

	insertCalendarproperties = "insert into Calendarproperties values (?, ?, ?)"

	insertRdates = "insert into Rdates values (?, ?, ?, ?, ?)"

	insertRecursive = "insert into Recursive values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	insertAlarm = "insert into Alarm values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	insertAttendee = "insert into Attendee values (?, ?, ?, ?, ?, ?, ?, ?, ?)"

	insertAttachments = "insert into Attachments values (?, ?, ?, ?, ?, ?, ?)"
)

const (
	updateTimezones = "update Timezones set ICalData=? where TzId=1"

	updateCalendars = "update Calendars set Name=?, Description=?, Color=?, Flags=?, syncDate=?, pluginName=?, account=?, attachmentSize=?, modifiedDate=?, sharedWith=?, syncProfile=?, createdDate=? where CalendarId=?"

	updateComponents = "update Components set Notebook=?, Type=?, Summary=?, Category=?, DateStart=?, DateStartLocal=?, StartTimeZone=?, HasDueDate=?, DateEndDue=?, DateEndDueLocal=?, EndDueTimeZone=?, Duration=?, Classification=?, Location=?, Description=?, Status=?, GeoLatitude=?, GeoLongitude=?, Priority=?, Resources=?, DateCreated=?, DateStamp=?, DateLastModified=?, Sequence=?, Comments=?, Attachments=?, Contact=?, InvitationStatus=?, RecurId=?, RecurIdLocal=?, RecurIdTimeZone=?, RelatedTo=?, URL=?, UID=?, Transparency=?, LocalOnly=?, Percent=?, DateCompleted=?, DateCompletedLocal=?, CompletedTimeZone=?, extra1=? where ComponentId=?"

	updateComponentsAsDeleted = "update Components set DateDeleted=? where ComponentId=?"
)

const (
	deleteCalendars          = "delete from Calendars where CalendarId=?"
	deleteComponents         = "delete from Components where ComponentId=?"
	deleteRdates             = "delete from Rdates where ComponentId=?"
	deleteCustomproperties   = "delete from Customproperties where ComponentId=?"
	deleteCalendarproperties = "delete from Calendarproperties where CalendarId=?"
	deleteRecursive          = "delete from Recursive where ComponentId=?"
	deleteAlarm              = "delete from Alarm where ComponentId=?"
	deleteAttendee           = "delete from Attendee where ComponentId=?"
	deleteAttachments        = "delete from Attachments where ComponentId=?"
)

const (
	selectMetadata  = "select transactionId from Metadata"
	updateMetadata  = "update Metadata set transactionId=?"
	insertMetadata  = "insert into Metadata values (?)"
	selectTimezones = "select * from Timezones where TzId=1"

	selectCalendarsAll = "select * from Calendars order by Name"

	selectComponentsAll                   = "select * from Components where DateDeleted=0"
	selectComponentsByNotebook            = "select * from Components where Notebook=? and DateDeleted=0"
	selectComponentsAllDeleted            = "select * from Components where DateDeleted<>0"
	selectComponentsAllDeletedByNotebook  = "select * from Components where Notebook=? and DateDeleted<>0"
	selectComponentsByGeo                 = "select * from Components where GeoLatitude>=-999.0 and GeoLongitude>=-999.0 and DateDeleted=0"
	selectComponentsByGeoArea             = "select * from Components where GeoLatitude>=? and GeoLongitude>=? and GeoLatitude<=? and GeoLongitude<=? and GeoLatitude>=-999.0 and GeoLongitude>=-999.0 and DateDeleted=0"
	selectComponentsByJournal             = "select * from Components where Type='Journal' and DateDeleted=0"
	selectComponentsByJournalDate         = "select * from Components where Type='Journal' and DateDeleted=0 and DateStart<=? order by DateStart desc, DateCreated desc"
	selectComponentsByPlain               = "select * from Components where DateStart=0 and DateEndDue=0 and DateDeleted=0"
	selectComponentsByRecursive           = "select * from Components where ((ComponentId in (select DISTINCT ComponentId from Recursive)) or (RecurId!=0)) and DateDeleted=0"
	selectComponentsByAttendee            = "select * from Components where ComponentId in (select DISTINCT ComponentId from Attendee) and DateDeleted=0"
	selectComponentsByDateBoth            = "select * from Components where ((DateStart<=? and max(DateEndDue, DateStart)>=?) or ComponentId in (select DISTINCT ComponentId from Recursive) or ComponentId in (select DISTINCT ComponentId from Rdates where Type in (1, 3))) and DateDeleted=0"
	selectComponentsByDateStart           = "select * from Components where (max(DateEndDue, DateStart)>=? or ComponentId in (select DISTINCT ComponentId from Recursive) or ComponentId in (select DISTINCT ComponentId from Rdates where Type in (1, 3))) and DateDeleted=0"
	selectComponentsByDateEnd             = "select * from Components where (DateStart<=? or ComponentId in (select DISTINCT ComponentId from Recursive) or ComponentId in (select DISTINCT ComponentId from Rdates where Type in (1, 3))) and DateDeleted=0"
	selectComponentsByUIDAndRecurID       = "select * from Components where UID=? and RecurId=? and DateDeleted=0"
	selectComponentsByUID                 = "select * from Components where UID=? and DateDeleted=0"
	selectRowIDByUIDAndRecurID            = "select ComponentId from Components where UID=? and RecurId=? and DateDeleted=0"
	selectComponentsByUncompletedTodos    = "select * from Components where Type='Todo' and DateCompleted=0 and DateDeleted=0"
	selectComponentsByCompletedTodosDate  = "select * from Components where Type='Todo' and DateCompleted<>0 and DateEndDue<>0 and DateEndDue<=? and DateDeleted=0 order by DateEndDue desc, DateCreated desc"
	selectComponentsByCompletedTodosCtime = "select * from Components where Type='Todo' and DateCompleted<>0 and DateEndDue=0 and DateCreated<=? and DateDeleted=0 order by DateCreated desc"
	selectComponentsByDateSmart           = "select * from Components where DateEndDue<>0 and DateEndDue<=? and DateDeleted=0 order by DateEndDue desc, DateCreated desc"
	selectComponentsByCreatedSmart        = "select * from Components where DateEndDue=0 and DateCreated<=? and DateDeleted=0 order by DateCreated desc"

	futureDateSmartField = " (case Type when 'Todo' then DateEndDue else DateStart end) "

	selectComponentsByFutureDateSmart = "select * from Components where" +
		futureDateSmartField + ">=? and DateDeleted=0 order by" +
		futureDateSmartField + "asc, DateCreated asc"

	selectComponentsByGeoAndDate    = "select * from Components where GeoLatitude>=-999.0 and GeoLongitude>=-999.0 and DateEndDue<>0 and DateEndDue<=? and DateDeleted=0 order by DateEndDue desc, DateCreated desc"
	selectComponentsByGeoAndCreated = "select * from Components where GeoLatitude>=-999.0 and GeoLongitude>=-999.0 and DateEndDue=0 and DateCreated<=? and DateDeleted=0 order by DateCreated desc"

	selectComponentsByAttendeeEmailAndCreated = "select * from Components where ComponentId in (select distinct ComponentId from Attendee where Email=?) and DateCreated<=? and DateDeleted=0 order by DateCreated desc"
	selectComponentsByAttendeeAndCreated      = "select * from Components where ComponentId in (select distinct ComponentId from Attendee) and DateCreated<=? and DateDeleted=0 order by DateCreated desc"

	selectRdatesByID           = "select * from Rdates where ComponentId=?"
	selectCustompropertiesByID = "select * from Customproperties where ComponentId=?"
	selectRecursiveByID        = "select * from Recursive where ComponentId=?"
	selectAlarmByID            = "select * from Alarm where ComponentId=?"
	selectAttendeeByID         = "select * from Attendee where ComponentId=?"
	selectAttachmentsByID      = "select * from Attachments where ComponentId=?"

	selectCalendarpropertiesByID = "select * from Calendarproperties where CalendarId=?"

	selectComponentsByDuplicate            = "select * from Components where DateStart=? and Summary=? and DateDeleted=0"
	selectComponentsByDuplicateAndNotebook = "select * from Components where DateStart=? and Summary=? and Notebook=? and DateDeleted=0"

	selectComponentsByCreated                 = "select * from Components where DateCreated>=? and DateDeleted=0"
	selectComponentsByCreatedAndNotebook      = "select * from Components where DateCreated>=? and Notebook=? and DateDeleted=0"
	selectComponentsByLastModified            = "select * from Components where DateLastModified>=? and DateCreated<? and DateDeleted=0"
	selectComponentsByLastModifiedAndNotebook = "select * from Components where DateLastModified>=? and DateCreated<? and Notebook=? and DateDeleted=0"
	selectComponentsByDeleted                 = "select * from Components where DateDeleted>=? and DateCreated<?"
	selectComponentsByDeletedAndNotebook      = "select * from Components where DateDeleted>=? and DateCreated<? and Notebook=?"

	selectComponentsByUIDRecurIDAndDeleted = "select ComponentId, DateDeleted from Components where UID=? and RecurId=? and DateDeleted<>0"

	selectAttendeeAndCount = "select Email, Name, count(Email) from Attendee where Email<>'' group by Email order by count(Email) desc"

	selectEventCount   = "select count(*) from Components where Type='Event' and DateDeleted=0"
	selectTodoCount    = "select count(*) from Components where Type='Todo' and DateDeleted=0"
	selectJournalCount = "select count(*) from Components where Type='Journal' and DateDeleted=0"
)
