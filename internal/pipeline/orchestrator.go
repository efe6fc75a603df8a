// Package pipeline sequences the publishing stages into one release
// transaction and decides between commit and abort.
//
// A run moves through an explicit state machine:
//
//	idle -> session-ready -> uploaded -> metadata-set -> graphics-set
//	     -> distribution-set -> validated -> committed
//
// and ends in aborted on any fatal failure. The persisted session record
// is left in place on every outcome except a successful commit, so the
// next run resumes the same edit. A commit is never retried.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/session"
	"github.com/kingrea/playpublish/internal/stage"
	"github.com/kingrea/playpublish/internal/stages/distribution"
	"github.com/kingrea/playpublish/internal/stages/graphics"
	"github.com/kingrea/playpublish/internal/stages/listing"
	"github.com/kingrea/playpublish/internal/stages/upload"
)

// API is the publishing API surface every stage shares.
type API interface {
	upload.Uploader
	listing.API
	graphics.API
	distribution.API
}

// Sessions is the edit lifecycle the orchestrator drives.
type Sessions interface {
	upload.Sessions
	Validate(ctx context.Context, target, editID string) error
	Commit(ctx context.Context, target, editID string) error
	Current(target string) (session.Record, bool, error)
}

// ConfirmFunc is asked between validate and commit. Returning false
// leaves the edit validated and uncommitted.
type ConfirmFunc func(ctx context.Context, report Report) (bool, error)

// Orchestrator runs release transactions.
type Orchestrator struct {
	api         API
	sessions    Sessions
	logger      *slog.Logger
	allowCreate bool
	maxParallel int
	confirm     ConfirmFunc
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithImplicitTargetCreation controls whether the first upload may
// register an app the platform does not know. Enabled by default.
func WithImplicitTargetCreation(allow bool) Option {
	return func(o *Orchestrator) {
		o.allowCreate = allow
	}
}

// WithMaxParallelUploads bounds concurrent screenshot uploads.
func WithMaxParallelUploads(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithConfirm installs a commit confirmation hook.
func WithConfirm(confirm ConfirmFunc) Option {
	return func(o *Orchestrator) {
		o.confirm = confirm
	}
}

// New builds an orchestrator around an explicitly constructed client and
// session manager.
func New(api API, sessions Sessions, opts ...Option) (*Orchestrator, error) {
	if api == nil {
		return nil, fmt.Errorf("pipeline: api client is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("pipeline: session manager is required")
	}
	o := &Orchestrator{
		api:         api,
		sessions:    sessions,
		logger:      slog.Default(),
		allowCreate: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.logger = o.logger.With("component", "pipeline")
	return o, nil
}

// RunOptions tune a single run.
type RunOptions struct {
	// DryRun stops after the session is ready and reports the plan.
	DryRun bool
}

type step struct {
	stage stage.Stage
	next  State
}

func (o *Orchestrator) steps(cfg config.Publish) []step {
	return []step{
		{upload.New(o.api, o.sessions, upload.Options{
			ArtifactPath:                cfg.ArtifactPath,
			AllowImplicitTargetCreation: o.allowCreate,
		}), StateUploaded},
		{listing.New(o.api, cfg.Listing, cfg.Compliance), StateMetadataSet},
		{graphics.New(o.api, graphics.Options{
			ScreenshotsDir: cfg.Graphics.ScreenshotsDir,
			Icon:           cfg.Graphics.Icon,
			FeatureGraphic: cfg.Graphics.FeatureGraphic,
			Locale:         cfg.Listing.Locale,
			MaxParallel:    o.maxParallel,
		}), StateGraphicsSet},
		{distribution.New(o.api, cfg.Distribution), StateDistributionSet},
	}
}

// openSession resumes or opens the edit for run.Target. A dry run leaves an
// expired record alone, since resuming would delete its edit upstream, and
// returns the expired edit ID instead.
func (o *Orchestrator) openSession(ctx context.Context, run *stage.Run, dryRun bool) (string, error) {
	if dryRun {
		if rec, live, err := o.sessions.Current(run.Target); err == nil && !live {
			run.EditID = "(new)"
			return rec.EditID, nil
		}
	}
	rec, err := o.sessions.ResumeOrOpen(ctx, run.Target)
	switch {
	case err == nil:
		run.EditID = rec.EditID
		if rec.Artifact != nil {
			run.Uploaded = &stage.Artifact{Digest: rec.Artifact.Digest, VersionCode: rec.Artifact.VersionCode}
		}
	case fault.Is(err, fault.TargetNotProvisioned):
		run.Deferred = true
		run.Log().Info("target not provisioned; session deferred to upload")
	default:
		return "", err
	}
	return "", nil
}

// Run executes one release of cfg, which must already carry its
// overrides. The returned report is always populated; err is non-nil
// whenever the run did not reach its goal.
func (o *Orchestrator) Run(ctx context.Context, cfg config.Publish, opts RunOptions) (Report, error) {
	r := &runner{
		o:      o,
		m:      newMachine(),
		report: Report{Target: cfg.ReleaseTargetID, DryRun: opts.DryRun},
		log:    o.logger.With("target", cfg.ReleaseTargetID),
	}
	r.report.State = r.m.state

	if err := Preflight(cfg); err != nil {
		return r.fail(err)
	}

	run := &stage.Run{Target: cfg.ReleaseTargetID, Logger: r.log}
	expired, err := o.openSession(ctx, run, opts.DryRun)
	if err != nil {
		return r.fail(err)
	}
	r.advance(StateSessionReady, run)

	if opts.DryRun {
		plan, err := o.plan(cfg, run)
		if err != nil {
			return r.fail(err)
		}
		if expired != "" {
			plan = append([]string{fmt.Sprintf("replace expired edit %s with a new edit", expired)}, plan...)
		}
		r.report.Plan = plan
		r.log.Info("dry run complete", "steps", len(plan))
		return r.report, nil
	}

	for _, s := range o.steps(cfg) {
		info := s.stage.Info()
		res, err := s.stage.Run(ctx, run)
		r.report.addStage(info, res)
		for _, w := range res.Warnings {
			r.log.Warn("stage degraded", "stage", info.ID, "kind", w.Kind, "detail", w.Message)
		}
		if err != nil {
			return r.fail(classify(info.ID, err))
		}
		r.log.Info("stage finished", "stage", info.ID, "status", res.Status, "message", res.Message)
		r.advance(s.next, run)
	}
	return r.finish(ctx)
}

// Finalize validates and commits an edit a previous run left behind,
// typically after a rejected commit.
func (o *Orchestrator) Finalize(ctx context.Context, target string) (Report, error) {
	r := &runner{
		o:      o,
		m:      &machine{state: StateDistributionSet},
		report: Report{Target: target},
		log:    o.logger.With("target", target),
	}
	r.report.State = r.m.state

	rec, live, err := o.sessions.Current(target)
	switch {
	case errors.Is(err, session.ErrRecordNotFound):
		return r.fail(fault.New(fault.ConfigInvalid, "no open edit is recorded for %s", target).
			InStage("commit").
			WithHint("run `playpublish publish` to start a release"))
	case err != nil:
		return r.fail(err)
	case !live:
		return r.fail(fault.New(fault.RequestFailed, "edit %s expired", rec.EditID).
			InStage("commit").
			WithHint("run `playpublish publish` to open a fresh edit"))
	}
	r.report.EditID = rec.EditID
	if rec.Artifact != nil {
		r.report.VersionCode = rec.Artifact.VersionCode
	}
	return r.finish(ctx)
}

// classify makes sure a stage failure names its stage.
func classify(stageID string, err error) error {
	if fe, ok := fault.As(err); ok {
		fe.InStage(stageID)
		return err
	}
	return stage.RequestError(stageID, err)
}

type runner struct {
	o      *Orchestrator
	m      *machine
	report Report
	log    *slog.Logger
}

func (r *runner) advance(to State, run *stage.Run) {
	r.m.advance(to)
	r.report.State = r.m.state
	r.report.EditID = run.EditID
	r.report.VersionCode = run.VersionCode
	r.log.Debug("state", "state", to, "edit_id", run.EditID)
}

func (r *runner) fail(err error) (Report, error) {
	r.m.abort()
	r.report.State = r.m.state
	r.report.FailedIn = r.m.last
	r.report.Err = err
	r.log.Error("release aborted", "failed_in", r.m.last, "error", err, "next_action", r.report.NextAction())
	return r.report, err
}

// finish validates and commits. A rejected or declined commit keeps the
// machine in validated with the record intact.
func (r *runner) finish(ctx context.Context) (Report, error) {
	target, editID := r.report.Target, r.report.EditID
	if err := r.o.sessions.Validate(ctx, target, editID); err != nil {
		return r.fail(err)
	}
	r.m.advance(StateValidated)
	r.report.State = r.m.state
	r.log.Info("edit validated", "edit_id", editID)

	if r.o.confirm != nil {
		ok, err := r.o.confirm(ctx, r.report)
		if err == nil && !ok {
			err = ErrCommitDeclined
		}
		if err != nil {
			r.report.Err = err
			r.log.Warn("commit not confirmed", "edit_id", editID, "error", err)
			return r.report, err
		}
	}

	err := r.o.sessions.Commit(ctx, target, editID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrRecordCleanup):
		r.report.Warnings = append(r.report.Warnings, fault.Warning{Kind: fault.CommitRejected, Stage: "commit", Message: err.Error()})
		r.log.Warn("edit committed but record remains", "error", err)
	default:
		r.report.Err = err
		r.log.Error("commit failed; edit left validated", "edit_id", editID, "error", err, "next_action", r.report.NextAction())
		return r.report, err
	}
	r.m.advance(StateCommitted)
	r.report.State = r.m.state
	r.log.Info("release committed", "edit_id", editID, "version_code", r.report.VersionCode)
	return r.report, nil
}
