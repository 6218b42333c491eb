package db

import (
	"sync"
	"time"

	"github.com/dcaliste/mkcal/calendar"
)

// ThreadedStorage wraps a Storage in a dedicated worker goroutine.
// Every public method enqueues a command and returns immediately;
// arguments crossing the boundary are deep-cloned because the calendar
// value objects cannot be shared across goroutines. Results surface
// through the observer callbacks, which are delivered one at a time
// through a serializing dispatcher: the worker blocks until an observer
// delivery has been handed over, except for the closed notification
// which is posted without waiting.
type ThreadedStorage struct {
	backend *Storage

	commands chan func()
	events   chan func()

	workerDone     chan struct{}
	dispatcherDone chan struct{}

	mu     sync.Mutex
	closed bool

	obsMu     sync.Mutex
	observers []Observer
}

// NewThreadedStorage starts the worker for a backend session on the
// given database file. The backend is owned by the worker; never touch
// it directly.
func NewThreadedStorage(databaseName string, timeZone *time.Location, validateNotebooks bool) *ThreadedStorage {
	return newThreadedStorage(NewStorage(databaseName, timeZone, validateNotebooks))
}

func newThreadedStorage(backend *Storage) *ThreadedStorage {
	t := &ThreadedStorage{
		backend:        backend,
		commands:       make(chan func(), 16),
		events:         make(chan func()),
		workerDone:     make(chan struct{}),
		dispatcherDone: make(chan struct{}),
	}
	backend.RegisterObserver((*threadedRelay)(t))

	go t.worker()
	go t.dispatcher()
	return t
}

func (t *ThreadedStorage) worker() {
	defer close(t.workerDone)
	for cmd := range t.commands {
		cmd()
	}
}

func (t *ThreadedStorage) dispatcher() {
	defer close(t.dispatcherDone)
	for ev := range t.events {
		ev()
	}
}

// enqueue posts a command for the worker. Returns false once the façade
// is shut down.
func (t *ThreadedStorage) enqueue(cmd func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.commands <- cmd
	return true
}

// RegisterObserver adds an observer; callbacks arrive on the dispatcher
// goroutine, serially.
func (t *ThreadedStorage) RegisterObserver(obs Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for _, o := range t.observers {
		if o == obs {
			return
		}
	}
	t.observers = append(t.observers, obs)
}

// UnregisterObserver removes an observer.
func (t *ThreadedStorage) UnregisterObserver(obs Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, o := range t.observers {
		if o == obs {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *ThreadedStorage) eachObserver(fn func(Observer)) {
	t.obsMu.Lock()
	observers := append([]Observer(nil), t.observers...)
	t.obsMu.Unlock()
	for _, o := range observers {
		fn(o)
	}
}

// deliver hands an observer notification to the dispatcher, blocking the
// worker until the hand-over so deliveries stay ordered and serial.
func (t *ThreadedStorage) deliver(fn func()) {
	select {
	case t.events <- fn:
	case <-t.dispatcherDone:
	}
}

// Open asynchronously opens the backend.
func (t *ThreadedStorage) Open() bool {
	return t.enqueue(func() {
		if err := t.backend.Open(); err != nil {
			logWarnf("async open failed: %v", err)
		}
	})
}

// Close asynchronously closes the backend, then stops the worker and
// the dispatcher once the queue has drained.
func (t *ThreadedStorage) Close() bool {
	ok := t.enqueue(func() {
		if err := t.backend.Close(); err != nil {
			logWarnf("async close failed: %v", err)
		}
	})
	if !ok {
		return false
	}

	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.commands)
		go func() {
			<-t.workerDone
			close(t.events)
		}()
	}
	t.mu.Unlock()
	return true
}

// LoadIncidences asynchronously runs a filtered load; results arrive in
// IncidencesLoaded.
func (t *ThreadedStorage) LoadIncidences(filter Filter) bool {
	return t.enqueue(func() {
		if _, err := t.backend.LoadIncidences(filter); err != nil {
			logWarnf("async load failed: %v", err)
		}
	})
}

// LoadSortedIncidences asynchronously runs a sorted windowed listing;
// results arrive in IncidencesLoaded. The pagination anchor cannot be
// returned through the asynchronous boundary and is left untouched.
func (t *ThreadedStorage) LoadSortedIncidences(filter Filter, limit int) bool {
	return t.enqueue(func() {
		if _, _, err := t.backend.LoadSortedIncidences(filter, limit, nil); err != nil {
			logWarnf("async sorted load failed: %v", err)
		}
	})
}

// StoreIncidences asynchronously saves clones of the given collections;
// the outcome arrives in Finished and Updated.
func (t *ThreadedStorage) StoreIncidences(additions, modifications, deletions Collection, deleteAction DeleteAction) bool {
	adds := additions.Clone()
	mods := modifications.Clone()
	dels := deletions.Clone()
	return t.enqueue(func() {
		if err := t.backend.StoreIncidences(adds, mods, dels, deleteAction); err != nil {
			logWarnf("async store failed: %v", err)
		}
	})
}

// PurgeDeletedIncidences asynchronously hard-deletes tombstones.
func (t *ThreadedStorage) PurgeDeletedIncidences(list []*calendar.Incidence) bool {
	clones := make([]*calendar.Incidence, len(list))
	for i, inc := range list {
		clones[i] = inc.Clone()
	}
	return t.enqueue(func() {
		if err := t.backend.PurgeDeletedIncidences(clones); err != nil {
			logWarnf("async purge failed: %v", err)
		}
	})
}

// AddNotebook asynchronously persists a new notebook.
func (t *ThreadedStorage) AddNotebook(nb *calendar.Notebook) bool {
	clone := nb.Clone()
	return t.enqueue(func() {
		if err := t.backend.AddNotebook(clone); err != nil {
			logWarnf("async notebook insert failed: %v", err)
		}
	})
}

// UpdateNotebook asynchronously persists notebook changes.
func (t *ThreadedStorage) UpdateNotebook(nb *calendar.Notebook) bool {
	clone := nb.Clone()
	return t.enqueue(func() {
		if err := t.backend.UpdateNotebook(clone); err != nil {
			logWarnf("async notebook update failed: %v", err)
		}
	})
}

// DeleteNotebook asynchronously removes a notebook and everything it
// owns.
func (t *ThreadedStorage) DeleteNotebook(nb *calendar.Notebook) bool {
	clone := nb.Clone()
	return t.enqueue(func() {
		if err := t.backend.DeleteNotebook(clone); err != nil {
			logWarnf("async notebook delete failed: %v", err)
		}
	})
}

// Cancel is best effort; the backend ignores it.
func (t *ThreadedStorage) Cancel() bool {
	return true
}

// threadedRelay is the backend-side observer: it runs on the worker
// goroutine and re-dispatches every callback with cloned payloads.
type threadedRelay ThreadedStorage

func (r *threadedRelay) t() *ThreadedStorage { return (*ThreadedStorage)(r) }

func (r *threadedRelay) StorageOpened(notebooks []*calendar.Notebook) {
	clones := cloneNotebooks(notebooks)
	r.t().deliver(func() {
		r.t().eachObserver(func(o Observer) { o.StorageOpened(clones) })
	})
}

func (r *threadedRelay) StorageClosed() {
	// Non-blocking: the worker may already be tearing down.
	t := r.t()
	go func() {
		defer func() { recover() }()
		select {
		case t.events <- func() {
			t.eachObserver(func(o Observer) { o.StorageClosed() })
		}:
		case <-t.dispatcherDone:
		}
	}()
}

func (r *threadedRelay) StorageModified(notebooks []*calendar.Notebook) {
	clones := cloneNotebooks(notebooks)
	r.t().deliver(func() {
		r.t().eachObserver(func(o Observer) { o.StorageModified(clones) })
	})
}

func (r *threadedRelay) StorageUpdated(additions, modifications, deletions Collection) {
	adds := additions.Clone()
	mods := modifications.Clone()
	dels := deletions.Clone()
	r.t().deliver(func() {
		r.t().eachObserver(func(o Observer) { o.StorageUpdated(adds, mods, dels) })
	})
}

func (r *threadedRelay) IncidencesLoaded(incidences Collection) {
	clones := incidences.Clone()
	r.t().deliver(func() {
		r.t().eachObserver(func(o Observer) { o.IncidencesLoaded(clones) })
	})
}

func (r *threadedRelay) Finished(hadError bool, message string) {
	r.t().deliver(func() {
		r.t().eachObserver(func(o Observer) { o.Finished(hadError, message) })
	})
}

func cloneNotebooks(notebooks []*calendar.Notebook) []*calendar.Notebook {
	clones := make([]*calendar.Notebook, len(notebooks))
	for i, nb := range notebooks {
		clones[i] = nb.Clone()
	}
	return clones
}
