package db

import "github.com/dcaliste/mkcal/calendar"

// Collection groups incidences by the uid of the notebook owning them.
type Collection map[string][]*calendar.Incidence

// Add appends an incidence under its notebook.
func (c Collection) Add(notebookUID string, inc *calendar.Incidence) {
	c[notebookUID] = append(c[notebookUID], inc)
}

// Flatten returns every incidence of the collection.
func (c Collection) Flatten() []*calendar.Incidence {
	var out []*calendar.Incidence
	for _, list := range c {
		out = append(out, list...)
	}
	return out
}

// Count of incidences over all notebooks.
func (c Collection) Count() int {
	n := 0
	for _, list := range c {
		n += len(list)
	}
	return n
}

// Clone deep-copies the collection, cloning every incidence.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for uid, list := range c {
		cloned := make([]*calendar.Incidence, len(list))
		for i, inc := range list {
			cloned[i] = inc.Clone()
		}
		out[uid] = cloned
	}
	return out
}

// Observer receives storage life-cycle callbacks. The synchronous
// session invokes observers on the calling goroutine, except
// StorageModified, which arrives on the session's change-watcher
// goroutine; the threaded façade re-dispatches them through its own
// serialized delivery.
type Observer interface {
	// StorageOpened reports the notebooks found when the session opened.
	StorageOpened(notebooks []*calendar.Notebook)
	// StorageClosed reports the end of the session.
	StorageClosed()
	// StorageModified reports an external change to the database; loaded
	// state is stale and should be re-read.
	StorageModified(notebooks []*calendar.Notebook)
	// StorageUpdated reports a successful local mutation.
	StorageUpdated(additions, modifications, deletions Collection)
	// IncidencesLoaded reports the result of a load operation.
	IncidencesLoaded(incidences Collection)
	// Finished closes every operation with its outcome.
	Finished(hadError bool, message string)
}

// NoopObserver implements Observer doing nothing; embed it to observe a
// subset of the callbacks.
type NoopObserver struct{}

func (NoopObserver) StorageOpened([]*calendar.Notebook)   {}
func (NoopObserver) StorageClosed()                       {}
func (NoopObserver) StorageModified([]*calendar.Notebook) {}
func (NoopObserver) StorageUpdated(_, _, _ Collection)    {}
func (NoopObserver) IncidencesLoaded(Collection)          {}
func (NoopObserver) Finished(bool, string)                {}
