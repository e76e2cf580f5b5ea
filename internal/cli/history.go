package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/stepflow/internal/persistence"
	"github.com/petrijr/stepflow/pkg/api"
)

const defaultHistoryFile = "stepflow.db"

// NewHistoryCmd creates the history subcommand. Without a subcommand it
// lists archived runs.
func NewHistoryCmd() *cobra.Command {
	var dbPath string
	var jsonMode bool
	var featureName string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived scenario runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := api.RunFilter{FeatureName: featureName, Limit: limit}
			if status != "" {
				s, err := parseRunStatus(status)
				if err != nil {
					return err
				}
				filter.Status = s
			}

			store, closeFn, err := openRunStore(dbPath)
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := store.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}

			headers := []string{"ID", "FEATURE", "SCENARIO", "STATUS", "STEPS", "DURATION", "FINISHED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID,
					r.FeatureName,
					r.ScenarioName,
					string(r.Status),
					strconv.Itoa(len(r.Steps)),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Microsecond).String(),
					r.FinishedAt.Format(time.RFC3339),
				}
			}
			out := &output{jsonMode: jsonMode, w: cmd.OutOrStdout()}
			return out.print(headers, rows, runs)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&dbPath, "db", defaultHistoryFile, "SQLite history file")
	pf.BoolVar(&jsonMode, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&featureName, "feature", "", "Filter by feature name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (passed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs, 0 for all")

	cmd.AddCommand(newHistoryShowCmd(&dbPath, &jsonMode))
	return cmd
}

func newHistoryShowCmd(dbPath *string, jsonMode *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one archived run with its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openRunStore(*dbPath)
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}

			if !*jsonMode {
				fmt.Fprintf(cmd.OutOrStdout(), "%s / %s  %s\n", rec.FeatureName, rec.ScenarioName, rec.Status)
				if rec.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", rec.Error)
				}
			}
			headers := []string{"#", "STEP", "STATUS", "DURATION", "ERROR"}
			var rows [][]string
			for i, s := range rec.Steps {
				rows = append(rows, stepRow(strconv.Itoa(i+1), s))
			}
			for i, s := range rec.Cleanups {
				rows = append(rows, stepRow("c"+strconv.Itoa(i+1), s))
			}
			out := &output{jsonMode: *jsonMode, w: cmd.OutOrStdout()}
			return out.print(headers, rows, rec)
		},
	}
}

func stepRow(n string, s api.StepRecord) []string {
	return []string{n, s.Kind + " " + s.Title, s.Status, s.Elapsed.String(), s.Error}
}

func parseRunStatus(s string) (api.RunStatus, error) {
	switch api.RunStatus(strings.ToUpper(s)) {
	case api.RunPassed:
		return api.RunPassed, nil
	case api.RunFailed:
		return api.RunFailed, nil
	}
	return "", fmt.Errorf("unknown status %q (want passed or failed)", s)
}

func openRunStore(path string) (persistence.RunStore, func(), error) {
	db, err := openHistory(path, true)
	if err != nil {
		return nil, nil, err
	}
	store, err := persistence.NewSQLiteRunStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}
