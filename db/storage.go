package db

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dcaliste/mkcal/calendar"
	"github.com/dcaliste/mkcal/cnf"
)

// DeleteAction selects what storing a deletion does with the rows.
type DeleteAction int

const (
	// MarkDeleted keeps tombstones visible to sync consumers.
	MarkDeleted DeleteAction = iota
	// PurgeDeleted removes the rows and their children at once.
	PurgeDeleted
)

// Storage is a synchronous calendar storage session over one SQLite
// database file. A session is single-goroutine; wrap it in a
// ThreadedStorage to drive it concurrently.
type Storage struct {
	databaseName      string
	timeZone          *time.Location
	validateNotebooks bool

	db     *sql.DB
	format *format
	sem    *processMutex

	watcher     *fsnotify.Watcher
	watcherDone chan struct{}

	stateMu            sync.Mutex
	savedTransactionID int

	obsMu     sync.Mutex
	observers []Observer

	nbMu               sync.Mutex
	notebooks          map[string]*calendar.Notebook
	defaultNotebookUID string
}

// NewStorage creates a session on the given database file. A nil
// timeZone falls back to the zone stored in the database, then to the
// system zone. With validateNotebooks, incidences whose notebook does
// not exist are silently dropped on load and save.
func NewStorage(databaseName string, timeZone *time.Location, validateNotebooks bool) *Storage {
	return &Storage{
		databaseName:      databaseName,
		timeZone:          timeZone,
		validateNotebooks: validateNotebooks,
		sem:               newProcessMutex(databaseName),
		notebooks:         make(map[string]*calendar.Notebook),
	}
}

// NewStorageFromConfig builds a session from the application
// configuration.
func NewStorageFromConfig(ac cnf.AppConfig) (*Storage, error) {
	var loc *time.Location
	if ac.TimeZone != "" {
		l, err := time.LoadLocation(ac.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("invalid configured timezone %q: %w", ac.TimeZone, err)
		}
		loc = l
	}
	return NewStorage(ac.DBPath, loc, ac.ValidateNotebooks), nil
}

// DatabaseName returns the path of the database file.
func (s *Storage) DatabaseName() string {
	return s.databaseName
}

// TimeZone returns the session time zone.
func (s *Storage) TimeZone() *time.Location {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.timeZone
}

func (s *Storage) setTimeZone(loc *time.Location) {
	s.stateMu.Lock()
	s.timeZone = loc
	s.stateMu.Unlock()
}

func (s *Storage) savedTID() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.savedTransactionID
}

func (s *Storage) setSavedTID(id int) {
	s.stateMu.Lock()
	s.savedTransactionID = id
	s.stateMu.Unlock()
}

// RegisterObserver adds an observer. Registering twice is a no-op.
func (s *Storage) RegisterObserver(obs Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for _, o := range s.observers {
		if o == obs {
			return
		}
	}
	s.observers = append(s.observers, obs)
}

// UnregisterObserver removes an observer.
func (s *Storage) UnregisterObserver(obs Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for i, o := range s.observers {
		if o == obs {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Storage) eachObserver(fn func(Observer)) {
	s.obsMu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.Unlock()
	for _, o := range observers {
		fn(o)
	}
}

func (s *Storage) setFinished(hadError bool, message string) {
	s.eachObserver(func(o Observer) { o.Finished(hadError, message) })
}

// Open opens or creates the database, applies the schema, loads the
// stored time zone and the notebooks, and starts watching for external
// changes.
func (s *Storage) Open() error {
	if s.db != nil {
		return fmt.Errorf("storage %s already open", s.databaseName)
	}

	if err := s.sem.acquire(); err != nil {
		logWarnf("cannot lock %s: %v", s.databaseName, err)
		return err
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=1500&_foreign_keys=true&_txlock=immediate",
		s.databaseName)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		s.releaseQuietly()
		return fmt.Errorf("cannot open database %s: %w", s.databaseName, err)
	}
	// A single connection keeps the busy handler and the transaction
	// bracket on the same SQLite handle.
	db.SetMaxOpenConns(1)

	for _, stmt := range createStatements {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			s.releaseQuietly()
			return fmt.Errorf("cannot apply schema on %s: %w", s.databaseName, err)
		}
	}

	s.db = db
	s.format = newFormat(db)

	if id, err := selectTransactionID(db); err == nil {
		s.setSavedTID(id)
	} else {
		logWarnf("cannot read transaction id of %s: %v", s.databaseName, err)
	}

	if err := ensureChangedFile(s.databaseName); err != nil {
		logWarnf("cannot open changed file for %s: %v", s.databaseName, err)
		s.closeHandle()
		s.releaseQuietly()
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(changedFilePath(s.databaseName))
	}
	if err != nil {
		logWarnf("cannot watch changed file for %s: %v", s.databaseName, err)
		s.closeHandle()
		s.releaseQuietly()
		return err
	}
	s.watcher = watcher
	s.watcherDone = make(chan struct{})
	go s.watchChanges()

	s.releaseQuietly()

	if loc, err := loadTimezones(s.db); err != nil {
		logWarnf("cannot load timezones from database: %v", err)
		s.Close()
		return err
	} else if s.TimeZone() == nil {
		if loc != nil {
			s.setTimeZone(loc)
		} else {
			s.setTimeZone(time.Local)
		}
	}

	notebooks, err := s.reloadNotebooks()
	if err != nil {
		logWarnf("cannot load notebooks from database: %v", err)
		s.Close()
		return err
	}

	logDebugf("database %s opened", s.databaseName)
	s.eachObserver(func(o Observer) { o.StorageOpened(notebooks) })
	return nil
}

// Close stops the change watcher, finalizes the cached statements and
// closes the handle. Closing a closed session is a no-op.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		<-s.watcherDone
		s.watcher = nil
	}
	s.closeHandle()
	s.eachObserver(func(o Observer) { o.StorageClosed() })
	return nil
}

func (s *Storage) closeHandle() {
	if s.format != nil {
		s.format.close()
		s.format = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}

func (s *Storage) releaseQuietly() {
	if err := s.sem.release(); err != nil {
		logWarnf("cannot release lock %s: %v", s.databaseName, err)
	}
}

// watchChanges reacts to peers truncating the change-ping file.
func (s *Storage) watchChanges() {
	defer close(s.watcherDone)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) != 0 {
				s.fileChanged()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logWarnf("change watcher error on %s: %v", s.databaseName, err)
		}
	}
}

func (s *Storage) fileChanged() {
	if s.db == nil {
		return
	}
	if err := s.sem.acquire(); err != nil {
		logWarnf("cannot lock %s: %v", s.databaseName, err)
		return
	}
	transactionID, err := selectTransactionID(s.db)
	if err != nil {
		// Force a reload on error.
		transactionID = s.savedTID() - 1
	}
	s.releaseQuietly()

	if transactionID == s.savedTID() {
		// Spurious ping: our own commit, or no actual change.
		return
	}
	s.setSavedTID(transactionID)

	if loc, err := loadTimezones(s.db); err != nil {
		logWarnf("loading timezones failed: %v", err)
	} else if loc != nil {
		s.setTimeZone(loc)
	}

	notebooks, err := s.reloadNotebooks()
	if err != nil {
		logWarnf("reloading notebooks failed: %v", err)
	}
	logDebugf("%s has been modified", s.databaseName)
	s.eachObserver(func(o Observer) { o.StorageModified(notebooks) })
}

// reloadNotebooks refreshes the in-memory notebook table from the
// database, under the cross-process lock.
func (s *Storage) reloadNotebooks() ([]*calendar.Notebook, error) {
	if err := s.sem.acquire(); err != nil {
		return nil, err
	}
	notebooks, err := s.format.selectCalendars(s.db)
	s.releaseQuietly()
	if err != nil {
		return nil, err
	}

	s.nbMu.Lock()
	s.notebooks = make(map[string]*calendar.Notebook, len(notebooks))
	s.defaultNotebookUID = ""
	for _, nb := range notebooks {
		s.notebooks[nb.UID] = nb
		if nb.IsDefault() {
			s.defaultNotebookUID = nb.UID
		}
		logDebugf("loaded notebook %s %s from database", nb.UID, nb.Name)
	}
	s.nbMu.Unlock()

	return notebooks, nil
}

// Notebooks lists the loaded notebooks.
func (s *Storage) Notebooks() []*calendar.Notebook {
	s.nbMu.Lock()
	defer s.nbMu.Unlock()
	out := make([]*calendar.Notebook, 0, len(s.notebooks))
	for _, nb := range s.notebooks {
		out = append(out, nb)
	}
	return out
}

// Notebook returns a loaded notebook by uid, or nil.
func (s *Storage) Notebook(uid string) *calendar.Notebook {
	s.nbMu.Lock()
	defer s.nbMu.Unlock()
	return s.notebooks[uid]
}

// DefaultNotebook returns the notebook carrying the default flag, or
// nil.
func (s *Storage) DefaultNotebook() *calendar.Notebook {
	s.nbMu.Lock()
	defer s.nbMu.Unlock()
	if s.defaultNotebookUID == "" {
		return nil
	}
	return s.notebooks[s.defaultNotebookUID]
}

func (s *Storage) hasNotebook(uid string) bool {
	s.nbMu.Lock()
	defer s.nbMu.Unlock()
	_, ok := s.notebooks[uid]
	return ok
}

// AddNotebook persists a new notebook.
func (s *Storage) AddNotebook(nb *calendar.Notebook) error {
	return s.modifyNotebook(nb, opInsert)
}

// UpdateNotebook persists changes of an existing notebook.
func (s *Storage) UpdateNotebook(nb *calendar.Notebook) error {
	return s.modifyNotebook(nb, opUpdate)
}

// DeleteNotebook removes a notebook with every incidence it owns,
// tombstones included.
func (s *Storage) DeleteNotebook(nb *calendar.Notebook) error {
	return s.modifyNotebook(nb, opDelete)
}

// SetDefaultNotebook makes nb the single default notebook of the
// storage.
func (s *Storage) SetDefaultNotebook(nb *calendar.Notebook) error {
	s.nbMu.Lock()
	previousUID := s.defaultNotebookUID
	var previous *calendar.Notebook
	if previousUID != "" && previousUID != nb.UID {
		previous = s.notebooks[previousUID]
	}
	s.nbMu.Unlock()

	if previous != nil {
		previous.SetDefault(false)
		if err := s.modifyNotebook(previous, opUpdate); err != nil {
			return err
		}
	}

	nb.SetDefault(true)
	op := opUpdate
	if !s.hasNotebook(nb.UID) {
		op = opInsert
	}
	return s.modifyNotebook(nb, op)
}

func (s *Storage) modifyNotebook(nb *calendar.Notebook, op dbOperation) error {
	if s.db == nil {
		return fmt.Errorf("storage %s is not open", s.databaseName)
	}

	// Gather what the notebook owns before removing it, so no orphaned
	// incidences stay behind.
	var deleted, all []*calendar.Incidence
	if op == opDelete {
		var err error
		deleted, err = s.DeletedIncidences(calendar.DateTime{}, nb.UID)
		if err != nil {
			logWarnf("cannot list deleted incidences of notebook %s: %v", nb.UID, err)
		}
		all, err = s.AllIncidences(nb.UID)
		if err != nil {
			logWarnf("cannot list incidences of notebook %s: %v", nb.UID, err)
		}
	}

	if err := s.sem.acquire(); err != nil {
		logWarnf("cannot lock %s: %v", s.databaseName, err)
		return err
	}

	err := s.format.modifyCalendars(s.db, nb, op, nb.IsDefault())

	if err == nil && len(deleted) > 0 {
		logDebugf("purging %d incidences of notebook %s", len(deleted), nb.Name)
		if purgeErr := s.purgeDeletedLocked(deleted); purgeErr != nil {
			logWarnf("error when purging deleted incidences from notebook %s: %v", nb.UID, purgeErr)
		}
	}
	if err == nil && len(all) > 0 {
		logDebugf("deleting %d incidences of notebook %s", len(all), nb.Name)
		deletions := make(Collection)
		for _, inc := range all {
			deletions.Add(nb.UID, inc)
		}
		if delErr := s.saveIncidences(deletions, opDelete); delErr != nil {
			logWarnf("error when deleting incidences from notebook %s: %v", nb.UID, delErr)
		}
	}

	if err == nil {
		// Leave the incremented transaction id unsaved so the change is
		// seen as external and triggers a local reload.
		if _, incErr := incrementTransactionID(s.db); incErr != nil {
			logWarnf("cannot increment transaction id: %v", incErr)
		}
		s.setSavedTID(-1)
	}

	s.releaseQuietly()

	if err != nil {
		return err
	}

	s.nbMu.Lock()
	switch op {
	case opDelete:
		delete(s.notebooks, nb.UID)
		if s.defaultNotebookUID == nb.UID {
			s.defaultNotebookUID = ""
		}
	default:
		s.notebooks[nb.UID] = nb
		if nb.IsDefault() {
			s.defaultNotebookUID = nb.UID
		} else if s.defaultNotebookUID == nb.UID {
			s.defaultNotebookUID = ""
		}
	}
	s.nbMu.Unlock()

	pingChanged(s.databaseName)
	return nil
}

// StoreIncidences is the transactional save pipeline: additions are
// inserted (collapsing any soft-deleted twin), modifications updated,
// deletions marked or purged according to deleteAction. The save is best
// effort: failing rows are skipped with a warning, there is no rollback,
// and an error is returned when any row failed.
func (s *Storage) StoreIncidences(additions, modifications, deletions Collection, deleteAction DeleteAction) error {
	if s.db == nil {
		return fmt.Errorf("storage %s is not open", s.databaseName)
	}

	if err := s.sem.acquire(); err != nil {
		logWarnf("cannot lock %s: %v", s.databaseName, err)
		return err
	}

	timeZone := s.TimeZone()
	if err := saveTimezones(s.db, timeZone); err != nil {
		logWarnf("saving timezones failed: %v", err)
	}

	var firstErr error
	if len(additions) > 0 {
		if err := s.saveIncidences(additions, opInsert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if len(modifications) > 0 {
		if err := s.saveIncidences(modifications, opUpdate); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if len(deletions) > 0 {
		op := opMarkDeleted
		if deleteAction == PurgeDeleted {
			op = opDelete
		}
		if err := s.saveIncidences(deletions, op); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	changed := timeZone != nil || len(additions) > 0 || len(modifications) > 0 || len(deletions) > 0
	if changed {
		if id, err := incrementTransactionID(s.db); err == nil {
			s.setSavedTID(id)
		} else {
			logWarnf("cannot increment transaction id: %v", err)
		}
	}

	s.releaseQuietly()

	if changed {
		// Wake up peers, then local observers.
		pingChanged(s.databaseName)
		s.eachObserver(func(o Observer) {
			o.StorageUpdated(additions, modifications, deletions)
		})
	}

	if firstErr != nil {
		s.setFinished(true, "errors saving incidences")
		return firstErr
	}
	s.setFinished(false, "save completed")
	return nil
}

// saveIncidences runs one database operation over a collection inside a
// single transaction bracket. The caller holds the cross-process lock.
func (s *Storage) saveIncidences(list Collection, op dbOperation) error {
	operation := map[dbOperation]string{
		opInsert:      "inserting",
		opUpdate:      "updating",
		opMarkDeleted: "deleting",
		opDelete:      "purging",
	}[op]

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	errors := 0
	for notebookUID, incidences := range list {
		if s.validateNotebooks && !s.hasNotebook(notebookUID) {
			logWarnf("skipping incidences of unknown notebook %s", notebookUID)
			continue
		}
		for _, inc := range incidences {
			// lastModified is a public iCalendar field, so arbitrary
			// values are kept; only a missing one is filled in.
			if !inc.LastModified.IsValid() {
				inc.LastModified = calendar.Zoned(time.Now().UTC())
			}
			if op == opInsert && !inc.Created.IsValid() {
				inc.Created = calendar.Zoned(time.Now().UTC())
			}
			logDebugf("%s incidence %s notebook %s", operation, inc.UID, notebookUID)
			if err := s.format.modifyComponents(tx, inc, notebookUID, op); err != nil {
				logWarnf("%s incidence %s failed: %v", operation, inc.UID, err)
				errors++
			} else if op == opInsert {
				// Don't leave tombstones with the same UID/recurrence id.
				if err := s.format.purgeDeletedComponents(tx, inc.UID, inc.RecurrenceID); err != nil {
					logWarnf("cannot purge deleted components on insertion: %v", err)
					errors++
				}
			}
		}
	}

	// Best effort by contract: commit whatever succeeded.
	if err := tx.Commit(); err != nil {
		return err
	}
	if errors > 0 {
		return fmt.Errorf("%d rows failed while %s incidences", errors, operation)
	}
	return nil
}

// PurgeDeletedIncidences removes the tombstones matching the natural
// keys of the given incidences. Rows that are not soft-deleted are left
// untouched.
func (s *Storage) PurgeDeletedIncidences(list []*calendar.Incidence) error {
	if s.db == nil {
		return fmt.Errorf("storage %s is not open", s.databaseName)
	}
	if err := s.sem.acquire(); err != nil {
		logWarnf("cannot lock %s: %v", s.databaseName, err)
		return err
	}
	err := s.purgeDeletedLocked(list)
	s.releaseQuietly()
	return err
}

func (s *Storage) purgeDeletedLocked(list []*calendar.Incidence) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	errors := 0
	for _, inc := range list {
		if err := s.format.purgeDeletedComponents(tx, inc.UID, inc.RecurrenceID); err != nil {
			logWarnf("cannot purge incidence %s: %v", inc.UID, err)
			errors++
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if errors > 0 {
		return fmt.Errorf("%d incidences failed to purge", errors)
	}
	return nil
}

// IncidenceDeletedDate returns the deletion instant of a soft-deleted
// incidence, or an absent date-time.
func (s *Storage) IncidenceDeletedDate(inc *calendar.Incidence) calendar.DateTime {
	if s.db == nil {
		return calendar.DateTime{}
	}
	if err := s.sem.acquire(); err != nil {
		logWarnf("cannot lock %s: %v", s.databaseName, err)
		return calendar.DateTime{}
	}
	defer s.releaseQuietly()

	var rowid, date int64
	err := s.db.QueryRow(selectComponentsByUIDRecurIDAndDeleted,
		inc.UID, originSecs(inc.RecurrenceID)).Scan(&rowid, &date)
	if err != nil {
		return calendar.DateTime{}
	}
	return fromOriginTime(date)
}

func (s *Storage) selectCount(query string) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("storage %s is not open", s.databaseName)
	}
	if err := s.sem.acquire(); err != nil {
		return 0, err
	}
	defer s.releaseQuietly()
	var count int
	if err := s.db.QueryRow(query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// EventCount counts the live events.
func (s *Storage) EventCount() (int, error) {
	return s.selectCount(selectEventCount)
}

// TodoCount counts the live todos.
func (s *Storage) TodoCount() (int, error) {
	return s.selectCount(selectTodoCount)
}

// JournalCount counts the live journals.
func (s *Storage) JournalCount() (int, error) {
	return s.selectCount(selectJournalCount)
}

// Cancel is a best-effort cancellation signal; the SQLite backend has no
// mid-statement interruption and ignores it.
func (s *Storage) Cancel() bool {
	return true
}

// LoadContacts lists the distinct attendee persons of the storage,
// most frequent first.
func (s *Storage) LoadContacts() ([]calendar.Person, error) {
	if s.db == nil {
		return nil, fmt.Errorf("storage %s is not open", s.databaseName)
	}
	if err := s.sem.acquire(); err != nil {
		return nil, err
	}
	defer s.releaseQuietly()

	rows, err := s.db.Query(selectAttendeeAndCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []calendar.Person
	for rows.Next() {
		var email, name sql.NullString
		var count int
		if err := rows.Scan(&email, &name, &count); err != nil {
			return list, err
		}
		list = append(list, calendar.Person{Name: name.String, Email: email.String})
	}
	return list, rows.Err()
}
