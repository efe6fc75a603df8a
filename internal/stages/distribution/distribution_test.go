package distribution

import (
	"context"
	"testing"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore"
	"github.com/kingrea/playpublish/internal/playstore/playstoretest"
	"github.com/kingrea/playpublish/internal/stage"
)

const target = "com.example.app"

func TestPriceMicrosRoundsExactly(t *testing.T) {
	cases := map[string]string{
		"0":         "0",
		"1.99":      "1990000",
		"1.005":     "1005000",
		"0.99":      "990000",
		"12":        "12000000",
		"0.0000005": "1",
		"0.0000004": "0",
		"2.0000015": "2000002",
		"0.1":       "100000",
	}
	for price, want := range cases {
		got, err := PriceMicros(price)
		if err != nil {
			t.Fatalf("%s: %v", price, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s got %s", price, want, got)
		}
	}
	for _, bad := range []string{"", "abc", "-1", "1e3", "3/4", "1."} {
		if _, err := PriceMicros(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestPricingDefaults(t *testing.T) {
	free, ok, err := Pricing(config.Pricing{Free: true})
	if err != nil || !ok || free.PriceMicros != "0" || free.Currency != "USD" {
		t.Fatalf("unexpected free pricing %+v ok=%v err=%v", free, ok, err)
	}
	paid, ok, err := Pricing(config.Pricing{Price: "1.99"})
	if err != nil || !ok || paid.PriceMicros != "1990000" || paid.Currency != "USD" {
		t.Fatalf("unexpected paid pricing %+v ok=%v err=%v", paid, ok, err)
	}
	if _, ok, err := Pricing(config.Pricing{}); ok || err != nil {
		t.Fatalf("empty pricing should be left alone, got ok=%v err=%v", ok, err)
	}
	if err := CheckPricing(config.Pricing{Price: "1", Currency: "dollars"}); !fault.Is(err, fault.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid for bad currency, got %v", err)
	}
	if err := CheckPricing(config.Pricing{Free: true, Price: "1"}); !fault.Is(err, fault.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid for free with price, got %v", err)
	}
}

func TestCheckTrack(t *testing.T) {
	for _, track := range Tracks {
		if err := CheckTrack(track); err != nil {
			t.Fatalf("%s: %v", track, err)
		}
	}
	for _, track := range []string{"", "staging", "Production", "rollout"} {
		if err := CheckTrack(track); !fault.Is(err, fault.InvalidTrack) || !fault.IsFatal(err) {
			t.Fatalf("%q: expected fatal InvalidTrack, got %v", track, err)
		}
	}
}

type harness struct {
	srv    *playstoretest.Server
	client *playstore.Client
	run    *stage.Run
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := playstoretest.NewServer(t)
	srv.AddApp(target)
	client := srv.NewClient(t)
	edit, err := client.InsertEdit(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{srv: srv, client: client, run: &stage.Run{Target: target, EditID: edit.ID, VersionCode: 100}}
}

func TestRunBindsVersionToEmptyTrack(t *testing.T) {
	h := newHarness(t)
	res, err := New(h.client, config.Distribution{
		Track:        "internal",
		Pricing:      config.Pricing{Free: true},
		ReleaseNotes: map[string]string{"en-US": "First release", "de-DE": "Erste Version"},
	}).Run(context.Background(), h.run)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != stage.StatusCompleted {
		t.Fatalf("unexpected result %+v", res)
	}
	draft, _ := h.srv.Draft(h.run.EditID)
	track := draft.Tracks["internal"]
	if len(track.Releases) != 1 || track.Releases[0].VersionCodes[0] != "100" || track.Releases[0].Status != "completed" {
		t.Fatalf("unexpected track %+v", track)
	}
	notes := track.Releases[0].ReleaseNotes
	if len(notes) != 2 || notes[0].Language != "de-DE" {
		t.Fatalf("release notes not attached in locale order: %+v", notes)
	}
	if draft.Pricing == nil || draft.Pricing.PriceMicros != "0" || draft.Pricing.Currency != "USD" {
		t.Fatalf("unexpected pricing %+v", draft.Pricing)
	}
}

func TestRunKeepsExistingReleasesAndSkipsDuplicates(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.UpdateTrack(context.Background(), target, h.run.EditID, playstore.Track{
		Track:    "beta",
		Releases: []playstore.TrackRelease{{VersionCodes: []string{"42"}, Status: "completed"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	stg := New(h.client, config.Distribution{Track: "beta"})
	for i := 0; i < 2; i++ {
		if _, err := stg.Run(context.Background(), h.run); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	draft, _ := h.srv.Draft(h.run.EditID)
	releases := draft.Tracks["beta"].Releases
	if len(releases) != 2 || releases[0].VersionCodes[0] != "42" || releases[1].VersionCodes[0] != "100" {
		t.Fatalf("unexpected releases %+v", releases)
	}
	if h.srv.Calls(playstoretest.RoutePricing) != 0 {
		t.Fatalf("pricing must be left alone when unset")
	}
}

func TestRunReplacesSupersededRelease(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.UpdateTrack(context.Background(), target, h.run.EditID, playstore.Track{
		Track: "beta",
		Releases: []playstore.TrackRelease{
			{VersionCodes: []string{"42"}, Status: "completed"},
			{VersionCodes: []string{"99"}, Status: "completed"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	h.run.Superseded = 99
	if _, err := New(h.client, config.Distribution{Track: "beta"}).Run(context.Background(), h.run); err != nil {
		t.Fatalf("Run: %v", err)
	}
	draft, _ := h.srv.Draft(h.run.EditID)
	releases := draft.Tracks["beta"].Releases
	if len(releases) != 2 || releases[0].VersionCodes[0] != "42" || releases[1].VersionCodes[0] != "100" {
		t.Fatalf("superseded release should be replaced, got %+v", releases)
	}
}

func TestRunDowngradesCountryFailure(t *testing.T) {
	h := newHarness(t)
	h.srv.Fail(playstoretest.RouteCountries, 400, "country list rejected", 1)
	res, err := New(h.client, config.Distribution{Track: "production", Countries: []string{"us", "de"}}).Run(context.Background(), h.run)
	if err != nil {
		t.Fatalf("country failure must not abort: %v", err)
	}
	if res.Status != stage.StatusWarning || len(res.Warnings) != 1 || res.Warnings[0].Kind != fault.DistributionPartial {
		t.Fatalf("expected DistributionPartial warning, got %+v", res)
	}
}

func TestRunAppliesCountries(t *testing.T) {
	h := newHarness(t)
	if _, err := New(h.client, config.Distribution{Track: "alpha", Countries: []string{" us", "de"}}).Run(context.Background(), h.run); err != nil {
		t.Fatal(err)
	}
	draft, _ := h.srv.Draft(h.run.EditID)
	countries := draft.Countries["alpha"].Countries
	if len(countries) != 2 || countries[0].CountryCode != "US" {
		t.Fatalf("unexpected countries %+v", countries)
	}
}

func TestRunRejectsInvalidTrackBeforeAnyRequest(t *testing.T) {
	h := newHarness(t)
	before := h.srv.TotalCalls()
	_, err := New(h.client, config.Distribution{Track: "staging"}).Run(context.Background(), h.run)
	if !fault.Is(err, fault.InvalidTrack) {
		t.Fatalf("expected InvalidTrack, got %v", err)
	}
	if h.srv.TotalCalls() != before {
		t.Fatalf("no request may be made for an invalid track")
	}
}

func TestRunTrackUpdateFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.srv.Fail(playstoretest.RouteUpdateTrack, 500, "backend error", 1)
	_, err := New(h.client, config.Distribution{Track: "internal"}).Run(context.Background(), h.run)
	if !fault.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}
