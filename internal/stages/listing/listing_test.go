package listing

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore/playstoretest"
	"github.com/kingrea/playpublish/internal/stage"
)

const target = "com.example.app"

func validListing() config.Listing {
	return config.Listing{
		Locale:           "en-US",
		Title:            "Example",
		ShortDescription: "An example app",
		FullDescription:  "A longer description of the example app.",
		Category:         "PRODUCTIVITY",
		PolicyURL:        "https://example.com/privacy",
		ContactEmail:     "dev@example.com",
	}
}

func TestCheckFieldLimits(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Listing)
		field  string
	}{
		{name: "title too long", mutate: func(l *config.Listing) { l.Title = strings.Repeat("a", MaxTitle+1) }, field: "listing.title"},
		{name: "short description too long", mutate: func(l *config.Listing) { l.ShortDescription = strings.Repeat("b", MaxShortDescription+1) }, field: "listing.shortDescription"},
		{name: "full description too long", mutate: func(l *config.Listing) { l.FullDescription = strings.Repeat("c", MaxFullDescription+1) }, field: "listing.fullDescription"},
		{name: "empty title", mutate: func(l *config.Listing) { l.Title = "  " }, field: "listing.title"},
		{name: "relative policy url", mutate: func(l *config.Listing) { l.PolicyURL = "/privacy" }, field: "listing.policyUrl"},
		{name: "non http policy url", mutate: func(l *config.Listing) { l.PolicyURL = "ftp://example.com/privacy" }, field: "listing.policyUrl"},
		{name: "bad contact website", mutate: func(l *config.Listing) { l.ContactWebsite = "example.com" }, field: "listing.contactWebsite"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := validListing()
			tc.mutate(&l)
			fe, ok := fault.As(Check(l))
			if !ok || fe.Kind != fault.MetadataInvalid || fe.Field != tc.field {
				t.Fatalf("expected MetadataInvalid on %s, got %+v", tc.field, fe)
			}
		})
	}
}

func TestCheckCountsCharactersNotBytes(t *testing.T) {
	l := validListing()
	l.Title = strings.Repeat("é", MaxTitle)
	if err := Check(l); err != nil {
		t.Fatalf("50 multi-byte characters must pass: %v", err)
	}
}

func TestCheckComplianceAgeBand(t *testing.T) {
	if err := CheckCompliance(config.Compliance{TargetAgeBand: "13-17"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckCompliance(config.Compliance{TargetAgeBand: "teens"}); !fault.Is(err, fault.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

type harness struct {
	srv *playstoretest.Server
	run *stage.Run
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := playstoretest.NewServer(t)
	srv.AddApp(target)
	edit, err := srv.NewClient(t).InsertEdit(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{srv: srv, run: &stage.Run{Target: target, EditID: edit.ID}}
}

func (h *harness) runStage(t *testing.T, compliance config.Compliance) (stage.Result, error) {
	t.Helper()
	return New(h.srv.NewClient(t), validListing(), compliance).Run(context.Background(), h.run)
}

func TestRunWritesListingDetailsAndRating(t *testing.T) {
	h := newHarness(t)
	res, err := h.runStage(t, config.Compliance{
		Violence:     true,
		DataHandling: &config.DataHandling{EncryptedInTransit: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != stage.StatusCompleted || len(res.Warnings) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	draft, _ := h.srv.Draft(h.run.EditID)
	if draft.Listings["en-US"].Title != "Example" {
		t.Fatalf("listing not written: %+v", draft.Listings)
	}
	if draft.Details.Category != "PRODUCTIVITY" || draft.Details.PrivacyPolicyURL != "https://example.com/privacy" {
		t.Fatalf("details not written: %+v", draft.Details)
	}
	var rating questionnaireRequest
	if err := json.Unmarshal(draft.ContentRating, &rating); err != nil || !rating.Questionnaire.Violence {
		t.Fatalf("rating not sent in primary shape: %s", draft.ContentRating)
	}
	app, _ := h.srv.App(target)
	if app.DataSafety == nil || !app.DataSafety.EncryptedInTransit {
		t.Fatalf("data safety not sent: %+v", app.DataSafety)
	}
}

func TestRunFallsBackToLegacyRatingOnce(t *testing.T) {
	h := newHarness(t)
	h.srv.Fail(playstoretest.RouteContentRating, 400, "unknown field questionnaire", 1)
	res, err := h.runStage(t, config.Compliance{Gambling: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != stage.StatusCompleted {
		t.Fatalf("legacy success should not warn: %+v", res)
	}
	if got := h.srv.Calls(playstoretest.RouteContentRating); got != 2 {
		t.Fatalf("expected two rating attempts, got %d", got)
	}
	draft, _ := h.srv.Draft(h.run.EditID)
	var legacy ratingsRequest
	if err := json.Unmarshal(draft.ContentRating, &legacy); err != nil || len(legacy.Ratings) == 0 {
		t.Fatalf("expected legacy shape, got %s", draft.ContentRating)
	}
	if legacy.Ratings[0].Category != "GAMBLING" || legacy.Ratings[0].Answer != "YES" {
		t.Fatalf("unexpected legacy answer %+v", legacy.Ratings[0])
	}
}

func TestRunDowngradesRepeatedRatingRejection(t *testing.T) {
	h := newHarness(t)
	h.srv.Fail(playstoretest.RouteContentRating, 422, "questionnaire incomplete", -1)
	res, err := h.runStage(t, config.Compliance{})
	if err != nil {
		t.Fatalf("classification rejection must not abort: %v", err)
	}
	if res.Status != stage.StatusWarning || len(res.Warnings) != 1 || res.Warnings[0].Kind != fault.ClassificationRejected {
		t.Fatalf("expected one ClassificationRejected warning, got %+v", res)
	}
	if got := h.srv.Calls(playstoretest.RouteContentRating); got != 2 {
		t.Fatalf("expected exactly one alternate attempt, got %d", got)
	}
}

func TestRunDowngradesRatingServerError(t *testing.T) {
	h := newHarness(t)
	h.srv.Fail(playstoretest.RouteContentRating, 500, "backend error", 1)
	res, err := h.runStage(t, config.Compliance{})
	if err != nil {
		t.Fatalf("rating server error must not abort: %v", err)
	}
	if res.Status != stage.StatusWarning || len(res.Warnings) != 1 || res.Warnings[0].Kind != fault.ClassificationRejected {
		t.Fatalf("expected one ClassificationRejected warning, got %+v", res)
	}
	if got := h.srv.Calls(playstoretest.RouteContentRating); got != 1 {
		t.Fatalf("server error should not try the legacy shape, got %d calls", got)
	}
}

func TestRunAuthFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.srv.Fail(playstoretest.RouteContentRating, 403, "caller lacks permission", 1)
	_, err := h.runStage(t, config.Compliance{})
	if !fault.IsFatal(err) || !fault.Is(err, fault.RequestFailed) {
		t.Fatalf("expected fatal RequestFailed, got %v", err)
	}
	if got := h.srv.Calls(playstoretest.RouteContentRating); got != 1 {
		t.Fatalf("auth failure must not trigger the alternate shape, got %d calls", got)
	}
}

func TestRunDowngradesSecondaryFailures(t *testing.T) {
	h := newHarness(t)
	h.srv.Fail(playstoretest.RouteDetails, 400, "category unknown", 1)
	h.srv.Fail(playstoretest.RouteDataSafety, 500, "backend error", 1)
	res, err := h.runStage(t, config.Compliance{DataHandling: &config.DataHandling{}})
	if err != nil {
		t.Fatalf("secondary failures must not abort: %v", err)
	}
	if res.Status != stage.StatusWarning || len(res.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %+v", res)
	}
}

func TestRunListingRejectionIsFatal(t *testing.T) {
	h := newHarness(t)
	h.srv.Fail(playstoretest.RouteListing, 400, "title contains prohibited words", 1)
	_, err := h.runStage(t, config.Compliance{})
	fe, ok := fault.As(err)
	if !ok || fe.Kind != fault.MetadataInvalid || !strings.Contains(fe.Diagnostic, "prohibited") {
		t.Fatalf("expected MetadataInvalid with diagnostic, got %v", err)
	}
}

func TestRunChecksBeforeAnyRequest(t *testing.T) {
	h := newHarness(t)
	before := h.srv.TotalCalls()
	l := validListing()
	l.Title = strings.Repeat("x", MaxTitle+1)
	_, err := New(h.srv.NewClient(t), l, config.Compliance{}).Run(context.Background(), h.run)
	if !fault.Is(err, fault.MetadataInvalid) {
		t.Fatalf("expected MetadataInvalid, got %v", err)
	}
	if h.srv.TotalCalls() != before {
		t.Fatalf("no request may be made for an invalid listing")
	}
}
