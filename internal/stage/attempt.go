package stage

import "context"

// Outcome reports which branch of an Attempt settled.
type Outcome string

const (
	// OutcomePrimary means the primary request succeeded.
	OutcomePrimary Outcome = "primary"
	// OutcomeAlternate means the primary was rejected and the alternate
	// succeeded.
	OutcomeAlternate Outcome = "alternate"
	// OutcomeWarning means both shapes were rejected; the caller records a
	// warning and continues.
	OutcomeWarning Outcome = "warning"
	// OutcomeFatal means a failure that no alternate may paper over.
	OutcomeFatal Outcome = "fatal"
)

// Step is one request shape.
type Step func(ctx context.Context) error

// Attempt runs primary and, when its failure satisfies retryable, the
// alternate exactly once. A nil alternate goes straight to a warning.
// Failures that are not retryable are fatal at either step.
func Attempt(ctx context.Context, primary, alternate Step, retryable func(error) bool) (Outcome, error) {
	err := primary(ctx)
	if err == nil {
		return OutcomePrimary, nil
	}
	if !retryable(err) {
		return OutcomeFatal, err
	}
	if alternate == nil {
		return OutcomeWarning, err
	}
	if err := ctx.Err(); err != nil {
		return OutcomeFatal, err
	}
	err = alternate(ctx)
	switch {
	case err == nil:
		return OutcomeAlternate, nil
	case retryable(err):
		return OutcomeWarning, err
	default:
		return OutcomeFatal, err
	}
}
