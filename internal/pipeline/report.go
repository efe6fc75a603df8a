package pipeline

import (
	"errors"

	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/stage"
)

// ErrCommitDeclined is returned when the commit confirmation was refused.
// The edit stays validated and its record stays in place.
var ErrCommitDeclined = errors.New("pipeline: commit declined")

// StageReport is the outcome of one stage.
type StageReport struct {
	ID     string
	Name   string
	Result stage.Result
}

// Report summarizes a run.
type Report struct {
	Target      string
	EditID      string
	VersionCode int64
	State       State
	// FailedIn is the state the run was in when it aborted.
	FailedIn State
	DryRun   bool
	// Plan lists what a dry run would have done.
	Plan     []string
	Stages   []StageReport
	Warnings []fault.Warning
	Err      error
}

// Committed reports whether the release was published.
func (r Report) Committed() bool {
	return r.State == StateCommitted
}

// Succeeded reports whether the run reached the state it aimed for.
func (r Report) Succeeded() bool {
	if r.DryRun {
		return r.Err == nil && r.State != StateAborted
	}
	return r.Committed()
}

// NextAction names the manual step that follows a failure.
func (r Report) NextAction() string {
	if r.Err == nil {
		return ""
	}
	if errors.Is(r.Err, ErrCommitDeclined) {
		return "run `playpublish commit` when ready to publish"
	}
	if fe, ok := fault.As(r.Err); ok {
		return fe.NextAction()
	}
	return "inspect the log and re-run to resume the open edit"
}

func (r *Report) addStage(info stage.Info, res stage.Result) {
	r.Stages = append(r.Stages, StageReport{ID: info.ID, Name: info.Name, Result: res})
	r.Warnings = append(r.Warnings, res.Warnings...)
}
