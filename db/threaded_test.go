package db

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dcaliste/mkcal/calendar"
)

// recordingObserver collects callbacks and signals them on a channel.
type recordingObserver struct {
	NoopObserver

	mu       sync.Mutex
	opened   bool
	loaded   Collection
	updated  int
	finished chan string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{finished: make(chan string, 16)}
}

func (r *recordingObserver) StorageOpened(notebooks []*calendar.Notebook) {
	r.mu.Lock()
	r.opened = true
	r.mu.Unlock()
	r.finished <- "opened"
}

func (r *recordingObserver) StorageUpdated(additions, modifications, deletions Collection) {
	r.mu.Lock()
	r.updated++
	r.mu.Unlock()
}

func (r *recordingObserver) IncidencesLoaded(incidences Collection) {
	r.mu.Lock()
	r.loaded = incidences
	r.mu.Unlock()
}

func (r *recordingObserver) Finished(hadError bool, message string) {
	r.finished <- message
}

func waitFor(t *testing.T, ch chan string, want string) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestThreadedStoreAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")

	backend := NewStorage(path, time.UTC, false)
	ts := newThreadedStorage(backend)
	obs := newRecordingObserver()
	ts.RegisterObserver(obs)

	if !ts.Open() {
		t.Fatalf("open refused")
	}
	waitFor(t, obs.finished, "opened")

	additions := make(Collection)
	additions.Add("NB1", &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "E1",
		Summary: "async",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	})
	if !ts.StoreIncidences(additions, nil, nil, MarkDeleted) {
		t.Fatalf("store refused")
	}
	waitFor(t, obs.finished, "save completed")

	if !ts.LoadIncidences(FilterIncidence("E1", calendar.DateTime{})) {
		t.Fatalf("load refused")
	}
	waitFor(t, obs.finished, "load completed")

	obs.mu.Lock()
	loaded := obs.loaded
	updated := obs.updated
	obs.mu.Unlock()
	if loaded.Count() != 1 {
		t.Fatalf("async load returned %d incidences", loaded.Count())
	}
	if updated != 1 {
		t.Fatalf("updated fired %d times, want 1", updated)
	}

	// The loaded incidence is a clone; mutating it must not reach the
	// stored copy.
	loaded.Flatten()[0].Summary = "mutated"

	if !ts.Close() {
		t.Fatalf("close refused")
	}
	if ts.Open() {
		t.Fatalf("commands after close must be refused")
	}
}

func TestThreadedCloneOnEnqueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	backend := NewStorage(path, time.UTC, false)
	ts := newThreadedStorage(backend)
	obs := newRecordingObserver()
	ts.RegisterObserver(obs)

	ts.Open()
	waitFor(t, obs.finished, "opened")

	inc := &calendar.Incidence{
		Type:    calendar.TypeEvent,
		UID:     "CLONE",
		Summary: "before",
		DtStart: calendar.Zoned(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	additions := make(Collection)
	additions.Add("NB1", inc)
	ts.StoreIncidences(additions, nil, nil, MarkDeleted)
	// Mutate immediately after enqueue: the worker must have its own
	// deep copy.
	inc.Summary = "after"
	waitFor(t, obs.finished, "save completed")

	ts.LoadIncidences(FilterIncidence("CLONE", calendar.DateTime{}))
	waitFor(t, obs.finished, "load completed")

	obs.mu.Lock()
	loaded := obs.loaded
	obs.mu.Unlock()
	list := loaded.Flatten()
	if len(list) != 1 {
		t.Fatalf("load returned %d incidences", len(list))
	}
	if list[0].Summary != "before" {
		t.Fatalf("façade must clone at the boundary; stored %q", list[0].Summary)
	}

	ts.Close()
}
