package persistence

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"strings"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the schema in db and returns a store.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS scenario_runs (
			id TEXT PRIMARY KEY,
			feature_name TEXT NOT NULL,
			scenario_name TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			steps BLOB,
			cleanups BLOB,
			final_value BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_scenario_runs_finished ON scenario_runs(finished_at DESC);
	`)
	return err
}

// stepsBlob carries step records through gob.
type stepsBlob struct {
	Records []api.StepRecord
}

func encodeSteps(records []api.StepRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stepsBlob{Records: records}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSteps(data []byte) ([]api.StepRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var blob stepsBlob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&blob); err != nil {
		return nil, err
	}
	return blob.Records, nil
}

func (s *SQLiteRunStore) SaveRun(ctx context.Context, rec api.RunRecord) error {
	steps, err := encodeSteps(rec.Steps)
	if err != nil {
		return err
	}
	cleanups, err := encodeSteps(rec.Cleanups)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scenario_runs (id, feature_name, scenario_name, tags, status, error, started_at, finished_at, steps, cleanups, final_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.FeatureName,
		rec.ScenarioName,
		strings.Join(rec.Tags, ","),
		string(rec.Status),
		rec.Error,
		rec.StartedAt.UnixNano(),
		rec.FinishedAt.UnixNano(),
		steps,
		cleanups,
		rec.FinalValue,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateRun
	}
	return err
}

const runColumns = `id, feature_name, scenario_name, tags, status, error, started_at, finished_at, steps, cleanups, final_value`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (api.RunRecord, error) {
	var (
		rec                 api.RunRecord
		tags, status        string
		started, finished   int64
		steps, cleanups, fv []byte
	)
	if err := row.Scan(&rec.ID, &rec.FeatureName, &rec.ScenarioName, &tags, &status, &rec.Error,
		&started, &finished, &steps, &cleanups, &fv); err != nil {
		return api.RunRecord{}, err
	}

	if tags != "" {
		rec.Tags = strings.Split(tags, ",")
	}
	rec.Status = api.RunStatus(status)
	rec.StartedAt = time.Unix(0, started)
	rec.FinishedAt = time.Unix(0, finished)
	rec.FinalValue = fv

	var err error
	if rec.Steps, err = decodeSteps(steps); err != nil {
		return api.RunRecord{}, err
	}
	if rec.Cleanups, err = decodeSteps(cleanups); err != nil {
		return api.RunRecord{}, err
	}
	return rec, nil
}

func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (api.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM scenario_runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.RunRecord{}, ErrRunNotFound
		}
		return api.RunRecord{}, err
	}
	return rec, nil
}

func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter api.RunFilter) ([]api.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM scenario_runs`
	var args []any
	var clauses []string

	if filter.FeatureName != "" {
		clauses = append(clauses, "feature_name = ?")
		args = append(args, filter.FeatureName)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY finished_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
