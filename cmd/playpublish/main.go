// cmd/playpublish/main.go
//
// This is the entry point for the playpublish CLI.
//
// Commands:
//   publish   run one release transaction from a publish config
//   commit    validate and commit an edit a previous run left open
//   check     run the local pre-flight checks only (no network)
//   session   show or discard persisted edit records
//   history   show the run history
//
// Exit codes: 0 on success, 1 when a release did not commit, 2 on
// usage errors.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks bad invocations.
type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// exitError carries a non-zero exit status for an already reported
// failure.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type command struct {
	name    string
	summary string
	run     func(args []string, stdout, stderr io.Writer) error
}

var commands = []command{
	{"publish", "run a release transaction", runPublish},
	{"commit", "validate and commit an open edit", runCommit},
	{"check", "run local pre-flight checks", runCheck},
	{"session", "show or discard persisted edits", runSession},
	{"history", "show recent runs", runHistory},
}

func main() {
	os.Exit(dispatch(os.Args[1:], os.Stdout, os.Stderr))
}

func dispatch(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return 0
	}
	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		return exitCode(cmd.run(args[1:], stdout, stderr), stderr)
	}
	fmt.Fprintf(stderr, "error: unknown command %q\n\n", args[0])
	printUsage(stderr)
	return exitUsage
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	var exit exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	var usage usageError
	if errors.As(err, &usage) {
		return exitUsage
	}
	return exitFailure
}

func printUsage(w io.Writer) {
	var b strings.Builder
	b.WriteString("playpublish drives app-store releases through a single edit transaction.\n\n")
	b.WriteString("Usage: playpublish <command> [flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %-9s %s\n", cmd.name, cmd.summary)
	}
	b.WriteString("\nRun at most one publish per release target at a time: the track update\n")
	b.WriteString("is an unguarded read-modify-write on the platform.\n")
	fmt.Fprint(w, b.String())
}

// newFlagSet builds a subcommand flag set writing its help to stderr.
func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("playpublish "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usagef("%v", err)
	}
	if fs.NArg() > 0 {
		return usagef("unexpected argument: %s", fs.Arg(0))
	}
	return nil
}
