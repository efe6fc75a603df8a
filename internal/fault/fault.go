// Package fault defines the error taxonomy shared by every publishing stage.
//
// Each failure carries a Kind that fixes its Severity. Stages return
// *Error values; the orchestrator inspects the kind to decide whether to
// continue, warn, or abort, and prints the Hint so the operator knows the
// next manual action.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a publishing failure.
type Kind string

const (
	ConfigInvalid          Kind = "config-invalid"
	TargetNotProvisioned   Kind = "target-not-provisioned"
	InvalidArtifact        Kind = "invalid-artifact"
	UploadFailed           Kind = "upload-failed"
	MetadataInvalid        Kind = "metadata-invalid"
	ClassificationRejected Kind = "classification-rejected"
	GraphicsUploadFailed   Kind = "graphics-upload-failed"
	DistributionPartial    Kind = "distribution-partial"
	ValidationRejected     Kind = "validation-rejected"
	CommitRejected         Kind = "commit-rejected"
	InvalidTrack           Kind = "invalid-track"
	RequestFailed          Kind = "request-failed"
)

// Severity is the tier a failure belongs to.
type Severity string

const (
	// SeverityFatal aborts the run.
	SeverityFatal Severity = "fatal"
	// SeverityRetryOnce allows exactly one alternate attempt before the
	// failure is downgraded to a warning.
	SeverityRetryOnce Severity = "retry-once"
	// SeverityWarning is logged and the pipeline continues.
	SeverityWarning Severity = "warning"
	// SeverityRecoverable is handled by a later transition (the upload
	// stage picks up an unprovisioned target).
	SeverityRecoverable Severity = "recoverable"
)

// Severity reports the tier for the kind.
func (k Kind) Severity() Severity {
	switch k {
	case ClassificationRejected:
		return SeverityRetryOnce
	case DistributionPartial:
		return SeverityWarning
	case TargetNotProvisioned:
		return SeverityRecoverable
	default:
		return SeverityFatal
	}
}

var defaultHints = map[Kind]string{
	ConfigInvalid:          "fix the publish configuration and re-run",
	TargetNotProvisioned:   "upload a first binary (implicit creation) or create the app in the store console, then re-run",
	InvalidArtifact:        "rebuild the package with a new version code and re-run",
	UploadFailed:           "re-run to resume the open edit",
	MetadataInvalid:        "shorten or fix the named listing field and re-run",
	ClassificationRejected: "complete the content rating questionnaire in the store console",
	GraphicsUploadFailed:   "check the image files and re-run to resume the open edit",
	DistributionPartial:    "review country availability in the store console",
	ValidationRejected:     "fix the reported problems, then run `playpublish commit` or re-run",
	CommitRejected:         "run `playpublish commit` to validate and retry the commit manually",
	InvalidTrack:           "use one of internal, alpha, beta, production",
	RequestFailed:          "check credentials and access grants, then re-run to resume the open edit",
}

// Error is a classified publishing failure.
type Error struct {
	Kind  Kind
	Stage string
	Field string
	// Diagnostic is the platform's payload, kept verbatim.
	Diagnostic string
	Hint       string
	Err        error
}

// New builds an Error with a formatted cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// InStage records the stage the failure happened in.
func (e *Error) InStage(stage string) *Error {
	if e != nil && e.Stage == "" {
		e.Stage = stage
	}
	return e
}

// WithField names the offending configuration field.
func (e *Error) WithField(field string) *Error {
	if e != nil {
		e.Field = field
	}
	return e
}

// WithDiagnostic attaches the platform's payload.
func (e *Error) WithDiagnostic(diag string) *Error {
	if e != nil {
		e.Diagnostic = diag
	}
	return e
}

// WithHint overrides the default next action.
func (e *Error) WithHint(hint string) *Error {
	if e != nil {
		e.Hint = hint
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Stage != "" {
		fmt.Fprintf(&b, " in %s", e.Stage)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s)", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NextAction returns the hint, falling back to the kind's default.
func (e *Error) NextAction() string {
	if e == nil {
		return ""
	}
	if e.Hint != "" {
		return e.Hint
	}
	return defaultHints[e.Kind]
}

// Severity reports the failure tier.
func (e *Error) Severity() Severity {
	return e.Kind.Severity()
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	fe, ok := As(err)
	return ok && fe.Kind == kind
}

// KindOf returns the kind of err, or "" when err is unclassified.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return ""
}

// IsFatal reports whether err should abort the run. Unclassified errors
// are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	fe, ok := As(err)
	if !ok {
		return true
	}
	return fe.Severity() == SeverityFatal
}

// Warning is a downgraded failure recorded on a stage result.
type Warning struct {
	Kind    Kind
	Stage   string
	Message string
}

func (w Warning) String() string {
	if w.Stage == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s: %s: %s", w.Stage, w.Kind, w.Message)
}
