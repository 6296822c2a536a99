package utils

import (
	"sync"
)

// TableLock guards a table that is read by many goroutines and rewritten by few. A disabled lock
// never blocks, for arenas that are synchronized by their caller.
//
// Read and Write return the matching release, so callers can write defer lock.Read()().
type TableLock struct {
	mutex    sync.RWMutex
	disabled bool
}

func NewTableLock(enabled bool) *TableLock {
	return &TableLock{disabled: !enabled}
}

func (l *TableLock) Read() (release func()) {
	if l.disabled {
		return noRelease
	}

	l.mutex.RLock()
	return l.mutex.RUnlock
}

func (l *TableLock) Write() (release func()) {
	if l.disabled {
		return noRelease
	}

	l.mutex.Lock()
	return l.mutex.Unlock
}

// SlotLock serializes every operation on one table entry
type SlotLock struct {
	mutex    sync.Mutex
	disabled bool
}

func NewSlotLock(enabled bool) *SlotLock {
	return &SlotLock{disabled: !enabled}
}

func (l *SlotLock) Hold() (release func()) {
	if l.disabled {
		return noRelease
	}

	l.mutex.Lock()
	return l.mutex.Unlock
}

func noRelease() {}
