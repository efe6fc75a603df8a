package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/logbook"
	"github.com/kingrea/playpublish/internal/pipeline"
	"github.com/kingrea/playpublish/internal/session"
	"github.com/kingrea/playpublish/internal/tui"
)

func runPublish(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("publish", stderr)
	configPath := fs.StringP("config", "c", "", "publish configuration file (YAML, JSON or JSONC)")
	artifact := fs.String("artifact", "", "override the artifact path (.aab or .apk)")
	track := fs.String("track", "", "override the release track (internal, alpha, beta, production)")
	dryRun := fs.Bool("dry-run", false, "open the edit and report what would happen without changing it")
	confirm := fs.Bool("confirm", false, "ask before committing the validated edit")
	projectDir := fs.String("project", "", "project directory holding .playpublish (defaults to cwd)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *configPath == "" {
		return usagef("--config is required")
	}
	if *confirm && !term.IsTerminal(int(os.Stdin.Fd())) {
		return usagef("--confirm needs an interactive terminal")
	}

	e, err := openEnv(*projectDir, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	loaded, err := config.LoadPublish(*configPath)
	if err != nil {
		return err
	}
	cfg, err := loaded.Apply(config.Overrides{ArtifactPath: *artifact, Track: *track}, e.cfg.DefaultLocale())
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(e.log.Logger),
		pipeline.WithImplicitTargetCreation(e.cfg.AllowImplicitTargetCreation()),
		pipeline.WithMaxParallelUploads(e.cfg.MaxParallelUploads()),
	}
	if *confirm {
		opts = append(opts, pipeline.WithConfirm(tui.Confirm(os.Stdin, stdout)))
	}
	orch, err := pipeline.New(e.client, e.sessions, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	e.log.Info("publish started", "target", cfg.ReleaseTargetID, "config", cfg.Path, "track", cfg.Distribution.Track, "dry_run", *dryRun)
	report, _ := orch.Run(ctx, cfg, pipeline.RunOptions{DryRun: *dryRun})
	fmt.Fprintln(stdout, tui.RenderReport(report))
	record(e.history, report)
	if !report.Succeeded() {
		return exitError{code: exitFailure}
	}
	return nil
}

func runCommit(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("commit", stderr)
	target := fs.StringP("target", "t", "", "release target (package name)")
	projectDir := fs.String("project", "", "project directory holding .playpublish (defaults to cwd)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *target == "" {
		return usagef("--target is required")
	}
	e, err := openEnv(*projectDir, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	orch, err := pipeline.New(e.client, e.sessions, pipeline.WithLogger(e.log.Logger))
	if err != nil {
		return err
	}
	report, _ := orch.Finalize(context.Background(), *target)
	fmt.Fprintln(stdout, tui.RenderReport(report))
	record(e.history, report)
	if !report.Committed() {
		return exitError{code: exitFailure}
	}
	return nil
}

// runCheck loads the configuration and runs pre-flight checks. It never
// talks to the publishing API.
func runCheck(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("check", stderr)
	configPath := fs.StringP("config", "c", "", "publish configuration file")
	artifact := fs.String("artifact", "", "override the artifact path")
	track := fs.String("track", "", "override the release track")
	locale := fs.String("locale", "en-US", "listing locale when the config names none")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *configPath == "" {
		return usagef("--config is required")
	}
	loaded, err := config.LoadPublish(*configPath)
	if err != nil {
		return err
	}
	cfg, err := loaded.Apply(config.Overrides{ArtifactPath: *artifact, Track: *track}, *locale)
	if err != nil {
		return err
	}
	if err := pipeline.Preflight(cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: configuration is valid (track %s, locale %s)\n", cfg.ReleaseTargetID, cfg.Distribution.Track, cfg.Listing.Locale)
	return nil
}

func runSession(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return usagef("session needs a subcommand: show or discard")
	}
	sub := args[0]
	fs := newFlagSet("session "+sub, stderr)
	target := fs.StringP("target", "t", "", "release target (package name)")
	projectDir := fs.String("project", "", "project directory holding .playpublish (defaults to cwd)")
	if err := parse(fs, args[1:]); err != nil {
		return err
	}
	switch sub {
	case "show", "discard":
	default:
		return usagef("unknown session subcommand %q", sub)
	}
	if sub == "discard" && *target == "" {
		return usagef("--target is required")
	}

	e, err := openEnv(*projectDir, stderr)
	if err != nil {
		return err
	}
	defer e.Close()

	if sub == "discard" {
		if err := e.sessions.Discard(context.Background(), *target); err != nil {
			return err
		}
		_ = e.history.Warn(*target, "edit discarded by operator")
		fmt.Fprintf(stdout, "%s: recorded edit discarded\n", *target)
		return nil
	}

	var records []session.Record
	if *target != "" {
		rec, _, err := e.sessions.Current(*target)
		switch {
		case errors.Is(err, session.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			records = append(records, rec)
		}
	} else {
		records, err = e.sessions.List()
		if err != nil {
			return err
		}
	}
	now := e.sessions.Now()
	fmt.Fprintln(stdout, tui.RenderSessions(records, func(r session.Record) bool { return !session.Expired(r, now) }))
	return nil
}

func runHistory(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("history", stderr)
	target := fs.StringP("target", "t", "", "only show runs for this release target")
	limit := fs.IntP("lines", "n", 20, "number of entries to show")
	projectDir := fs.String("project", "", "project directory holding .playpublish (defaults to cwd)")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := config.NewConfig(defaultDir(*projectDir))
	if err != nil {
		return err
	}
	book, err := logbook.New(filepath.Join(cfg.LogsDir(), logbook.FileName))
	if err != nil {
		return err
	}
	lines, total := book.Tail(*target, *limit)
	if total == 0 {
		fmt.Fprintln(stdout, "no runs recorded")
		return nil
	}
	for _, line := range lines {
		fmt.Fprintln(stdout, line)
	}
	if total > len(lines) {
		fmt.Fprintf(stdout, "(%d of %d entries)\n", len(lines), total)
	}
	return nil
}

func defaultDir(dir string) string {
	if dir == "" {
		return "."
	}
	return dir
}

// record appends the run outcome to the history file.
func record(book *logbook.Logbook, r pipeline.Report) {
	target := r.Target
	if target == "" {
		target = "-"
	}
	var err error
	switch {
	case r.Err != nil && r.State == pipeline.StateAborted:
		err = book.Error(target, "aborted after %s: %v", r.FailedIn, r.Err)
	case r.Err != nil:
		err = book.Warn(target, "stopped in %s with edit %s: %v", r.State, r.EditID, r.Err)
	case r.DryRun:
		err = book.Info(target, "dry run: %d planned step(s) for edit %s", len(r.Plan), r.EditID)
	case len(r.Warnings) > 0:
		err = book.Warn(target, "committed version code %d with %d warning(s)", r.VersionCode, len(r.Warnings))
	default:
		err = book.Info(target, "committed version code %d", r.VersionCode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: history not written: %v\n", err)
	}
}
