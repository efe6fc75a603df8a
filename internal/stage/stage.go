// Package stage defines the contract every publishing stage implements and
// the typed results the orchestrator folds into its report.
package stage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kingrea/playpublish/internal/fault"
)

// Info describes a stage's identity.
type Info struct {
	ID   string
	Name string
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("stage: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("stage: name is required for %s", i.ID)
	}
	return nil
}

// Status enumerates stage outcomes.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusWarning   Status = "warning"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Result captures the outcome of a stage execution. It is never persisted.
type Result struct {
	Status   Status
	Message  string
	Warnings []fault.Warning
}

// Warn records a downgraded failure and marks the result as a warning.
func (r *Result) Warn(kind fault.Kind, stageID string, err error) {
	r.Warnings = append(r.Warnings, fault.Warning{Kind: kind, Stage: stageID, Message: err.Error()})
	if r.Status == "" || r.Status == StatusCompleted {
		r.Status = StatusWarning
	}
}

// Finish sets the final status when the stage did not already degrade it.
func (r *Result) Finish(message string) Result {
	if r.Status == "" {
		r.Status = StatusCompleted
	}
	r.Message = message
	return *r
}

// Skipped builds a result for a stage with nothing to do.
func Skipped(message string) Result {
	return Result{Status: StatusSkipped, Message: message}
}

// Artifact is a binary already uploaded into the current edit.
type Artifact struct {
	Digest      string
	VersionCode int64
}

// Run carries the state threaded from one stage to the next.
type Run struct {
	Target string
	EditID string
	// VersionCode is assigned by the upload stage.
	VersionCode int64
	// Deferred is set when opening the session reported an unprovisioned
	// target; the upload stage creates the target and opens it afterwards.
	Deferred bool
	// Uploaded is the artifact recorded for a resumed edit, if any.
	Uploaded *Artifact
	// Superseded is the version code an earlier run uploaded into this
	// edit before a different artifact replaced it; 0 when none.
	Superseded int64
	Logger     *slog.Logger
}

// Log returns the run logger, falling back to the default logger.
func (r *Run) Log() *slog.Logger {
	if r == nil || r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Stage is implemented by every publishing step. A returned error is
// fatal for the run; degraded outcomes travel as Result warnings.
type Stage interface {
	Info() Info
	Run(ctx context.Context, run *Run) (Result, error)
}
