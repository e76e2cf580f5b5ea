package persistence

import "database/sql"

// Persistence bundles the run and event stores so callers can depend on a
// single value.
type Persistence struct {
	Runs   RunStore
	Events EventStore
}

// NewInMemory returns a Persistence backed by in-memory stores.
func NewInMemory() Persistence {
	return Persistence{
		Runs:   NewInMemoryRunStore(),
		Events: NewInMemoryEventStore(),
	}
}

// NewSQLite returns a Persistence whose stores share db. The caller is
// responsible for importing a SQLite driver such as modernc.org/sqlite.
func NewSQLite(db *sql.DB) (Persistence, error) {
	runs, err := NewSQLiteRunStore(db)
	if err != nil {
		return Persistence{}, err
	}
	events, err := NewSQLiteEventStore(db)
	if err != nil {
		return Persistence{}, err
	}
	return Persistence{Runs: runs, Events: events}, nil
}
