package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// SQLiteEventStore stores scenario events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS scenario_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scenario_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			feature_name TEXT NOT NULL DEFAULT '',
			scenario_name TEXT NOT NULL DEFAULT '',
			step INTEGER NOT NULL DEFAULT -1,
			kind TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_scenario_events_scenario_id ON scenario_events(scenario_id, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.ScenarioEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scenario_events (scenario_id, at, type, feature_name, scenario_name, step, kind, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ScenarioID,
		at.UnixNano(),
		string(ev.Type),
		ev.FeatureName,
		ev.ScenarioName,
		ev.Step,
		ev.Kind,
		ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, scenarioID string) ([]api.ScenarioEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario_id, at, type, feature_name, scenario_name, step, kind, detail
		FROM scenario_events
		WHERE scenario_id = ?
		ORDER BY id ASC`, scenarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.ScenarioEvent
	for rows.Next() {
		var (
			ev  api.ScenarioEvent
			atN int64
			typ string
		)
		if err := rows.Scan(&ev.ScenarioID, &atN, &typ, &ev.FeatureName, &ev.ScenarioName, &ev.Step, &ev.Kind, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, atN)
		ev.Type = api.EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}
