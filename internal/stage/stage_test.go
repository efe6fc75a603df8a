package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/kingrea/playpublish/internal/fault"
)

var (
	errRejected = errors.New("rejected")
	errAuth     = errors.New("forbidden")
)

func isRejected(err error) bool { return errors.Is(err, errRejected) }

func step(err error, calls *int) Step {
	return func(context.Context) error {
		*calls++
		return err
	}
}

func TestAttemptOutcomes(t *testing.T) {
	cases := []struct {
		name         string
		primary      error
		alternate    error
		noAlternate  bool
		want         Outcome
		wantAltCalls int
	}{
		{name: "primary succeeds", want: OutcomePrimary},
		{name: "alternate succeeds", primary: errRejected, want: OutcomeAlternate, wantAltCalls: 1},
		{name: "both rejected", primary: errRejected, alternate: errRejected, want: OutcomeWarning, wantAltCalls: 1},
		{name: "primary fatal", primary: errAuth, want: OutcomeFatal},
		{name: "alternate fatal", primary: errRejected, alternate: errAuth, want: OutcomeFatal, wantAltCalls: 1},
		{name: "no alternate", primary: errRejected, noAlternate: true, want: OutcomeWarning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var primaryCalls, altCalls int
			var alternate Step
			if !tc.noAlternate {
				alternate = step(tc.alternate, &altCalls)
			}
			got, err := Attempt(context.Background(), step(tc.primary, &primaryCalls), alternate, isRejected)
			if got != tc.want {
				t.Fatalf("expected %s got %s (err %v)", tc.want, got, err)
			}
			if (got == OutcomePrimary || got == OutcomeAlternate) != (err == nil) {
				t.Fatalf("unexpected error %v for outcome %s", err, got)
			}
			if primaryCalls != 1 || altCalls != tc.wantAltCalls {
				t.Fatalf("calls primary=%d alternate=%d", primaryCalls, altCalls)
			}
		})
	}
}

func TestAttemptStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var altCalls int
	primary := func(context.Context) error {
		cancel()
		return errRejected
	}
	got, err := Attempt(ctx, primary, step(nil, &altCalls), isRejected)
	if got != OutcomeFatal || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to be fatal, got %s %v", got, err)
	}
	if altCalls != 0 {
		t.Fatalf("alternate must not run after cancellation")
	}
}

func TestResultWarnDegradesStatus(t *testing.T) {
	var res Result
	res.Warn(fault.DistributionPartial, "distribution", errors.New("countries rejected"))
	final := res.Finish("done")
	if final.Status != StatusWarning || len(final.Warnings) != 1 {
		t.Fatalf("unexpected result %+v", final)
	}
	if final.Warnings[0].Kind != fault.DistributionPartial || final.Warnings[0].Stage != "distribution" {
		t.Fatalf("unexpected warning %+v", final.Warnings[0])
	}

	var clean Result
	if got := clean.Finish("ok"); got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestInfoValidate(t *testing.T) {
	if err := (Info{}).Validate(); err == nil {
		t.Fatalf("expected id error")
	}
	if err := (Info{ID: "upload"}).Validate(); err == nil {
		t.Fatalf("expected name error")
	}
	if err := (Info{ID: "upload", Name: "Binary upload"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
