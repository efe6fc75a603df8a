// Package listing writes the store listing, content rating answers and
// data-handling disclosure into the open edit.
//
// Only the listing text itself is mandatory. App details, the content
// rating and the data-safety disclosure are best effort: a rejection
// becomes a warning because each can be corrected in the store console
// after publishing. Authentication failures stay fatal.
package listing

import (
	"context"
	"fmt"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore"
	"github.com/kingrea/playpublish/internal/stage"
)

const stageID = "listing"

// API is the slice of the publishing API the stage needs.
type API interface {
	UpdateListing(ctx context.Context, pkg, editID, locale string, listing playstore.Listing) (playstore.Listing, error)
	PatchDetails(ctx context.Context, pkg, editID string, details playstore.AppDetails) error
	UpdateContentRating(ctx context.Context, pkg, editID string, rating any) error
	UpdateDataSafety(ctx context.Context, pkg string, disclosure playstore.DataSafety) error
}

// Stage writes listing and compliance data.
type Stage struct {
	api        API
	listing    config.Listing
	compliance config.Compliance
}

// New builds the stage. listing.Locale must already be resolved.
func New(api API, listing config.Listing, compliance config.Compliance) *Stage {
	return &Stage{api: api, listing: listing, compliance: compliance}
}

// Info implements stage.Stage.
func (s *Stage) Info() stage.Info {
	return stage.Info{ID: stageID, Name: "Listing & compliance"}
}

// Run implements stage.Stage.
func (s *Stage) Run(ctx context.Context, run *stage.Run) (stage.Result, error) {
	if err := Check(s.listing); err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}
	log := run.Log().With("stage", stageID)

	_, err := s.api.UpdateListing(ctx, run.Target, run.EditID, s.listing.Locale, playstore.Listing{
		Title:            s.listing.Title,
		ShortDescription: s.listing.ShortDescription,
		FullDescription:  s.listing.FullDescription,
		Video:            s.listing.Video,
	})
	if err != nil {
		if playstore.IsRejected(err) {
			return stage.Result{Status: stage.StatusFailed}, fault.Wrap(fault.MetadataInvalid, err).
				InStage(stageID).
				WithDiagnostic(playstore.Diagnostic(err))
		}
		return stage.Result{Status: stage.StatusFailed}, stage.RequestError(stageID, err)
	}
	log.Info("listing written", "locale", s.listing.Locale)

	var res stage.Result
	if err := s.details(ctx, run, &res); err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}
	if err := s.rating(ctx, run, &res); err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}
	if err := s.dataSafety(ctx, run, &res); err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}
	for _, w := range res.Warnings {
		log.Warn("listing degraded", "kind", w.Kind, "detail", w.Message)
	}
	return res.Finish(fmt.Sprintf("listing for %s written", s.listing.Locale)), nil
}

func (s *Stage) details(ctx context.Context, run *stage.Run, res *stage.Result) error {
	err := s.api.PatchDetails(ctx, run.Target, run.EditID, playstore.AppDetails{
		DefaultLanguage:  s.listing.Locale,
		ContactEmail:     s.listing.ContactEmail,
		ContactWebsite:   s.listing.ContactWebsite,
		Category:         s.listing.Category,
		PrivacyPolicyURL: s.listing.PolicyURL,
	})
	if err == nil {
		return nil
	}
	if !stage.Degradable(err) {
		return stage.RequestError(stageID, err)
	}
	res.Warn(fault.MetadataInvalid, stageID, fmt.Errorf("app details not updated: %w", err))
	return nil
}

func (s *Stage) rating(ctx context.Context, run *stage.Run, res *stage.Result) error {
	send := func(body any) stage.Step {
		return func(ctx context.Context) error {
			return s.api.UpdateContentRating(ctx, run.Target, run.EditID, body)
		}
	}
	outcome, err := stage.Attempt(ctx, send(primaryRating(s.compliance)), send(legacyRating(s.compliance)), playstore.IsRejected)
	switch outcome {
	case stage.OutcomePrimary:
	case stage.OutcomeAlternate:
		run.Log().Info("content rating accepted in legacy shape", "stage", stageID)
	case stage.OutcomeWarning:
		res.Warn(fault.ClassificationRejected, stageID, fmt.Errorf("content rating rejected in both shapes: %w", err))
	default:
		if ctx.Err() != nil || !stage.Degradable(err) {
			return stage.RequestError(stageID, err)
		}
		res.Warn(fault.ClassificationRejected, stageID, fmt.Errorf("content rating not accepted: %w", err))
	}
	return nil
}

func (s *Stage) dataSafety(ctx context.Context, run *stage.Run, res *stage.Result) error {
	d := s.compliance.DataHandling
	if d == nil {
		return nil
	}
	err := s.api.UpdateDataSafety(ctx, run.Target, playstore.DataSafety{
		CollectsPersonalData:     d.CollectsPersonalData,
		SharesPersonalData:       d.SharesPersonalData,
		EncryptedInTransit:       d.EncryptedInTransit,
		DeletionRequestSupported: d.DeletionRequestSupported,
	})
	if err == nil {
		return nil
	}
	if !stage.Degradable(err) {
		return stage.RequestError(stageID, err)
	}
	res.Warn(fault.ClassificationRejected, stageID, fmt.Errorf("data safety disclosure not accepted: %w", err))
	return nil
}
