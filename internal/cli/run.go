package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/petrijr/stepflow"
	"github.com/petrijr/stepflow/pkg/api"
	"github.com/petrijr/stepflow/pkg/feature"
	"github.com/petrijr/stepflow/pkg/metrics"
	"github.com/petrijr/stepflow/pkg/report"
)

type runFlags struct {
	format          string
	noColor         bool
	continueOnError bool
	haltOnAssertion bool
	markSkipped     bool
	stepTimeout     time.Duration
	tags            []string
	workers         int
	history         string
	metricsFile     string
}

// NewRunCmd creates the run subcommand.
func NewRunCmd(logger *slog.Logger) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run scenarios from .feature and .yaml files",
		Long: "Run every scenario found in the given files and directories.\n" +
			"Directories are searched recursively for .feature, .yaml and .yml files.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := api.DefaultOptions()
			flags := cmd.Flags()
			if flags.Changed("continue-on-error") {
				opts.ContinueOnError = f.continueOnError
			}
			if flags.Changed("halt-on-assertion") {
				opts.HaltOnFailedAssertion = f.haltOnAssertion
			}
			if flags.Changed("mark-skipped") {
				opts.MarkRemainingAsSkippedOnFailure = f.markSkipped
			}
			opts.StepTimeout = f.stepTimeout
			return runScenarios(cmd, logger, args, opts, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.format, "format", "f", "text", "Report format: text, json, markdown, html")
	flags.BoolVar(&f.noColor, "no-color", false, "Disable colors in the text report")
	flags.BoolVar(&f.continueOnError, "continue-on-error", false, "Keep running steps after an ordinary failure")
	flags.BoolVar(&f.haltOnAssertion, "halt-on-assertion", true, "Stop on a failed assertion even with --continue-on-error")
	flags.BoolVar(&f.markSkipped, "mark-skipped", true, "Record the steps left after an early stop as skipped")
	flags.DurationVar(&f.stepTimeout, "step-timeout", 0, "Per-step timeout, 0 for none")
	flags.StringSliceVarP(&f.tags, "tags", "t", nil, "Run scenarios with any of these tags; prefix with ~ to exclude")
	flags.IntVarP(&f.workers, "workers", "w", 1, "Scenarios run concurrently")
	flags.StringVar(&f.history, "history", "", "Archive runs into this SQLite file")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")

	return cmd
}

func runScenarios(cmd *cobra.Command, logger *slog.Logger, paths []string, opts api.Options, f runFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reporter, err := report.New(f.format)
	if err != nil {
		return err
	}
	if t, ok := reporter.(*report.Text); ok && f.noColor {
		t.Color = false
	}

	features, err := feature.LoadPaths(paths)
	if err != nil {
		return err
	}

	cfg := stepflow.SuiteConfig{Workers: f.workers, Logger: logger}
	var suite *stepflow.Suite
	if f.history != "" {
		db, err := openHistory(f.history, false)
		if err != nil {
			return err
		}
		defer db.Close()
		if suite, err = stepflow.NewSQLiteSuite(db, cfg); err != nil {
			return fmt.Errorf("history %s: %w", f.history, err)
		}
	} else {
		suite = stepflow.NewSuite(cfg)
	}

	observers := []api.Observer{suite.Observer()}
	var reg *prometheus.Registry
	if f.metricsFile != "" {
		reg = prometheus.NewRegistry()
		observers = append(observers, metrics.MustNewObserver(reg))
	}

	exec := feature.NewExecutor(nil,
		feature.WithOptions(opts),
		feature.WithObserver(api.NewCompositeObserver(observers...)),
		feature.WithLogger(logger),
		feature.WithTagFilter(f.tags...),
	)

	var runners []api.ScenarioRunner
	for _, feat := range features {
		rs, err := exec.Runners(feat)
		if err != nil {
			return err
		}
		runners = append(runners, rs...)
	}
	logger.Debug("scenarios_loaded",
		slog.Int("features", len(features)),
		slog.Int("scenarios", len(runners)),
		slog.String("options", opts.String()),
	)

	res, runErr := suite.Run(ctx, runners...)

	finished := make([]*api.ScenarioContext, 0, len(res.Scenarios))
	for i, sc := range res.Scenarios {
		if sc == nil {
			if res.Errors[i] != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", runners[i].Name(), res.Errors[i])
			}
			continue
		}
		finished = append(finished, sc)
	}
	if err := reporter.Report(cmd.OutOrStdout(), finished); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if reg != nil {
		if err := prometheus.WriteToTextfile(f.metricsFile, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if !res.Passed() {
		return fmt.Errorf("%w: %d of %d", ErrScenariosFailed, res.FailedCount(), len(runners))
	}
	return nil
}
