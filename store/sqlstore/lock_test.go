package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock_PostgresDoesNotSerialize(t *testing.T) {
	// GIVEN: A Postgres store whose mutex is already held
	// WHEN: Taking the store locks
	// THEN: Neither blocks

	s := &Store{driver: DriverPostgres}
	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.lock()()
		s.rlock()()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("postgres store blocked on its mutex")
	}
}

func TestLock_SQLiteSerializes(t *testing.T) {
	// GIVEN: A SQLite store whose write lock is held
	// WHEN: A reader takes the read lock
	// THEN: It waits until the writer releases

	s := &Store{driver: DriverSQLite}
	unlock := s.lock()

	acquired := make(chan struct{})
	go func() {
		s.rlock()()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("read lock acquired while write lock held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("read lock never acquired")
	}
	assert.True(t, s.mu.TryLock())
	s.mu.Unlock()
}
