package db

import (
	"fmt"
	"os"
	"sync"
	"syscall"
)

// changedSuffix is appended to the database path to form the
// change-ping file watched by peer processes.
const changedSuffix = ".changed"

// lockSuffix is appended to the database path to form the file backing
// the cross-process mutex.
const lockSuffix = ".lock"

// processMutex serializes database access across every process using the
// same file, through an exclusive advisory lock on a sibling lock file.
type processMutex struct {
	path string

	// mu serializes the goroutines of this process on the same lock,
	// mirroring what the flock does between processes.
	mu   sync.Mutex
	file *os.File
}

func newProcessMutex(databaseName string) *processMutex {
	return &processMutex{path: databaseName + lockSuffix}
}

// acquire blocks until the cross-process lock is held.
func (m *processMutex) acquire() error {
	m.mu.Lock()
	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("cannot open lock file %s: %w", m.path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		m.mu.Unlock()
		return fmt.Errorf("cannot lock %s: %w", m.path, err)
	}
	m.file = f
	return nil
}

// release drops the cross-process lock.
func (m *processMutex) release() error {
	if m.file == nil {
		return fmt.Errorf("lock %s not held", m.path)
	}
	err := syscall.Flock(int(m.file.Fd()), syscall.LOCK_UN)
	m.file.Close()
	m.file = nil
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cannot unlock %s: %w", m.path, err)
	}
	return nil
}

// changedFilePath is the sibling wake-up file of a database.
func changedFilePath(databaseName string) string {
	return databaseName + changedSuffix
}

// ensureChangedFile creates the change-ping file when missing.
func ensureChangedFile(databaseName string) error {
	f, err := os.OpenFile(changedFilePath(databaseName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// pingChanged truncates the change-ping file to zero length so that any
// watcher in another process observes a modification.
func pingChanged(databaseName string) {
	path := changedFilePath(databaseName)
	if err := os.Truncate(path, 0); err != nil {
		logWarnf("cannot touch change file %s: %v", path, err)
	}
}
