package stepflow

import (
	"database/sql"

	"github.com/petrijr/stepflow/internal/persistence"
)

// NewSQLiteSuite constructs a Suite whose run archive and event log live in
// db. Any Runs or Events already set in cfg are replaced.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:stepflow.db?_pragma=journal_mode(WAL)")
//	suite, err := stepflow.NewSQLiteSuite(db, stepflow.SuiteConfig{Workers: 4})
//	res, err := suite.Run(ctx, scenarios...)
//	runs, err := suite.History().ListRuns(ctx, stepflow.RunFilter{})
func NewSQLiteSuite(db *sql.DB, cfg SuiteConfig) (*Suite, error) {
	p, err := persistence.NewSQLite(db)
	if err != nil {
		return nil, err
	}
	cfg.Runs = p.Runs
	cfg.Events = p.Events
	return NewSuite(cfg), nil
}
