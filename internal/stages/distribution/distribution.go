// Package distribution sets the price, binds the uploaded version code to
// a release track and restricts country availability.
//
// The track update is a read-modify-write of the whole release list with
// no platform-side concurrency token. Callers must run at most one publish
// per release target at a time; two concurrent runs can lose a release.
package distribution

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore"
	"github.com/kingrea/playpublish/internal/stage"
)

const stageID = "distribution"

// Tracks are the release channels a version can be bound to.
var Tracks = []string{"internal", "alpha", "beta", "production"}

// CheckTrack rejects any track outside Tracks.
func CheckTrack(track string) error {
	for _, t := range Tracks {
		if track == t {
			return nil
		}
	}
	return fault.New(fault.InvalidTrack, "track %q must be one of %s", track, strings.Join(Tracks, ", ")).
		InStage(stageID).
		WithField("distribution.track")
}

// API is the slice of the publishing API the stage needs.
type API interface {
	UpdatePricing(ctx context.Context, pkg, editID string, pricing playstore.Pricing) error
	GetTrack(ctx context.Context, pkg, editID, track string) (playstore.Track, error)
	UpdateTrack(ctx context.Context, pkg, editID string, track playstore.Track) (playstore.Track, error)
	UpdateCountryAvailability(ctx context.Context, pkg, editID, track string, availability playstore.CountryAvailability) error
}

// Stage applies distribution settings.
type Stage struct {
	api API
	cfg config.Distribution
}

// New builds the stage. cfg.Track must already be resolved.
func New(api API, cfg config.Distribution) *Stage {
	return &Stage{api: api, cfg: cfg}
}

// Info implements stage.Stage.
func (s *Stage) Info() stage.Info {
	return stage.Info{ID: stageID, Name: "Distribution"}
}

// Run implements stage.Stage.
func (s *Stage) Run(ctx context.Context, run *stage.Run) (stage.Result, error) {
	if err := CheckTrack(s.cfg.Track); err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}
	if run.VersionCode <= 0 {
		return stage.Result{Status: stage.StatusFailed}, fault.New(fault.UploadFailed, "no version code to release").InStage(stageID)
	}
	pricing, setPrice, err := Pricing(s.cfg.Pricing)
	if err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}
	log := run.Log().With("stage", stageID)

	if setPrice {
		if err := s.api.UpdatePricing(ctx, run.Target, run.EditID, pricing); err != nil {
			return stage.Result{Status: stage.StatusFailed}, stage.RequestError(stageID, err)
		}
		log.Info("price set", "price_micros", pricing.PriceMicros, "currency", pricing.Currency)
	}

	added, err := s.bindRelease(ctx, run)
	if err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}
	log.Info("track updated", "track", s.cfg.Track, "version_code", run.VersionCode, "added", added)

	var res stage.Result
	if len(s.cfg.Countries) > 0 {
		if err := s.countries(ctx, run); err != nil {
			if !stage.Degradable(err) {
				return stage.Result{Status: stage.StatusFailed}, stage.RequestError(stageID, err)
			}
			res.Warn(fault.DistributionPartial, stageID, fmt.Errorf("country availability not applied: %w", err))
			log.Warn("country availability not applied", "error", err)
		}
	}
	return res.Finish(fmt.Sprintf("version code %d on %s", run.VersionCode, s.cfg.Track)), nil
}

// bindRelease appends a completed release for the run's version code
// unless one already carries it. A version code this edit received from an
// artifact the run replaced is taken off the track first.
func (s *Stage) bindRelease(ctx context.Context, run *stage.Run) (bool, error) {
	track, err := s.api.GetTrack(ctx, run.Target, run.EditID, s.cfg.Track)
	switch {
	case err == nil:
	case playstore.IsNotFound(err):
		track = playstore.Track{}
	default:
		return false, stage.RequestError(stageID, err)
	}
	track.Track = s.cfg.Track

	code := strconv.FormatInt(run.VersionCode, 10)
	dropped := false
	if run.Superseded > 0 {
		track, dropped = dropVersion(track, strconv.FormatInt(run.Superseded, 10))
		if dropped {
			run.Log().Info("superseded release removed from track", "stage", stageID, "version_code", run.Superseded)
		}
	}
	switch {
	case !hasVersion(track, code):
		track.Releases = append(track.Releases, playstore.TrackRelease{
			VersionCodes: []string{code},
			Status:       playstore.ReleaseStatusCompleted,
			ReleaseNotes: releaseNotes(s.cfg.ReleaseNotes),
		})
	case !dropped:
		return false, nil
	}
	if _, err := s.api.UpdateTrack(ctx, run.Target, run.EditID, track); err != nil {
		return false, stage.RequestError(stageID, err)
	}
	return true, nil
}

// dropVersion removes code from every release of track; releases left
// without version codes are removed.
func dropVersion(track playstore.Track, code string) (playstore.Track, bool) {
	dropped := false
	releases := track.Releases[:0:0]
	for _, r := range track.Releases {
		codes := r.VersionCodes[:0:0]
		for _, v := range r.VersionCodes {
			if v == code {
				dropped = true
				continue
			}
			codes = append(codes, v)
		}
		if len(codes) == 0 {
			continue
		}
		r.VersionCodes = codes
		releases = append(releases, r)
	}
	track.Releases = releases
	return track, dropped
}

func (s *Stage) countries(ctx context.Context, run *stage.Run) error {
	availability := playstore.CountryAvailability{}
	for _, c := range s.cfg.Countries {
		availability.Countries = append(availability.Countries, playstore.Country{CountryCode: strings.ToUpper(strings.TrimSpace(c))})
	}
	return s.api.UpdateCountryAvailability(ctx, run.Target, run.EditID, s.cfg.Track, availability)
}

func hasVersion(track playstore.Track, code string) bool {
	for _, r := range track.Releases {
		for _, v := range r.VersionCodes {
			if v == code {
				return true
			}
		}
	}
	return false
}

func releaseNotes(notes map[string]string) []playstore.LocalizedText {
	if len(notes) == 0 {
		return nil
	}
	locales := make([]string, 0, len(notes))
	for locale := range notes {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	out := make([]playstore.LocalizedText, 0, len(locales))
	for _, locale := range locales {
		out = append(out, playstore.LocalizedText{Language: locale, Text: notes[locale]})
	}
	return out
}
