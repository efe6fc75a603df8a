package pipeline

import (
	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/stages/distribution"
	"github.com/kingrea/playpublish/internal/stages/listing"
	"github.com/kingrea/playpublish/internal/stages/upload"
)

// Preflight runs every local check on an applied configuration. It never
// touches the network.
func Preflight(cfg config.Publish) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	checks := []func() error{
		func() error { return listing.Check(cfg.Listing) },
		func() error { return listing.CheckCompliance(cfg.Compliance) },
		func() error { return distribution.CheckTrack(cfg.Distribution.Track) },
		func() error { return distribution.CheckPricing(cfg.Distribution.Pricing) },
		func() error {
			_, err := upload.DetectKind(cfg.ArtifactPath)
			return err
		},
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}
