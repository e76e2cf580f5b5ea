// Command stepflow runs Given/When/Then scenarios described in .feature
// and .yaml files.
//
// Usage:
//
//	stepflow run [--format text|json|markdown|html] [--workers N] [--history FILE] paths...
//	stepflow history [--db FILE] [--feature NAME] [--status passed|failed]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/petrijr/stepflow/internal/cli"
	"github.com/petrijr/stepflow/internal/telemetry"
)

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	logger := telemetry.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(logger)
	root.Version = version
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, cli.ErrScenariosFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
