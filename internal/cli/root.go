package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

// ErrScenariosFailed is returned by the run command when at least one
// scenario failed. The report has already been written at that point.
var ErrScenariosFailed = errors.New("scenarios failed")

// NewRootCmd creates the stepflow root command with every subcommand
// registered. A nil logger means slog.Default().
func NewRootCmd(logger *slog.Logger) *cobra.Command {
	if logger == nil {
		logger = slog.Default()
	}
	root := &cobra.Command{
		Use:           "stepflow",
		Short:         "stepflow - run Given/When/Then scenarios from feature files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		NewRunCmd(logger),
		NewHistoryCmd(),
	)
	return root
}

// openHistory opens the SQLite archive at path. With mustExist set a
// missing file is an error instead of a new empty database.
func openHistory(path string, mustExist bool) (*sql.DB, error) {
	if mustExist {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("history %s: %w", path, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// Workers share one connection so concurrent archiving never hits
	// SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return db, nil
}
