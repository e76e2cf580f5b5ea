// Package cli implements the stepflow command line.
//
// Commands:
//
//	stepflow run [paths...]   run .feature and .yaml scenario files
//	stepflow history          list archived runs
//	stepflow history show ID  show one archived run with its steps
//
// Reports go to stdout, logs go to stderr. The run command exits non-zero
// when any scenario fails.
package cli
