package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/stage"
	"github.com/kingrea/playpublish/internal/stages/distribution"
	"github.com/kingrea/playpublish/internal/stages/graphics"
	"github.com/kingrea/playpublish/internal/stages/upload"
)

// plan describes the mutating calls a real run would make. It reads local
// files only.
func (o *Orchestrator) plan(cfg config.Publish, run *stage.Run) ([]string, error) {
	kind, digest, err := upload.Inspect(cfg.ArtifactPath)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(cfg.ArtifactPath)
	var plan []string
	add := func(format string, args ...any) {
		plan = append(plan, fmt.Sprintf(format, args...))
	}

	switch {
	case run.Deferred && !o.allowCreate:
		return nil, fault.New(fault.TargetNotProvisioned, "%s does not exist and implicit creation is disabled", run.Target).
			InStage("upload")
	case run.Deferred:
		add("create %s by uploading %s (%s) outside an edit, then open an edit", run.Target, name, kind)
	case run.Uploaded != nil && run.Uploaded.Digest == digest:
		add("reuse version code %d already uploaded into edit %s", run.Uploaded.VersionCode, run.EditID)
	default:
		add("upload %s (%s, sha256 %s) into edit %s", name, kind, digest[:12], run.EditID)
	}

	add("write %s listing %q", cfg.Listing.Locale, cfg.Listing.Title)
	add("update app details (category %s, policy %s)", cfg.Listing.Category, cfg.Listing.PolicyURL)
	add("submit content rating answers")
	if cfg.Compliance.DataHandling != nil {
		add("submit data safety disclosure")
	}

	for _, single := range []struct {
		label string
		path  string
	}{
		{"icon", cfg.Graphics.Icon},
		{"feature graphic", cfg.Graphics.FeatureGraphic},
	} {
		if single.path == "" {
			continue
		}
		if _, err := os.Stat(single.path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		add("replace %s with %s", single.label, filepath.Base(single.path))
	}
	if cfg.Graphics.ScreenshotsDir != "" {
		sets, err := graphics.Discover(cfg.Graphics.ScreenshotsDir)
		if err != nil {
			return nil, fault.Wrap(fault.GraphicsUploadFailed, err).InStage("graphics").WithField("graphics.screenshotsDir")
		}
		for _, set := range sets {
			add("replace %s screenshots with %d image(s)", set.Class.Name, len(set.Files))
		}
	}

	pricing, setPrice, err := distribution.Pricing(cfg.Distribution.Pricing)
	if err != nil {
		return nil, err
	}
	if setPrice {
		add("set price to %s micros %s", pricing.PriceMicros, pricing.Currency)
	} else {
		add("leave price unchanged")
	}
	add("append a completed release to track %s", cfg.Distribution.Track)
	if len(cfg.Distribution.Countries) > 0 {
		add("restrict %s to %s", cfg.Distribution.Track, strings.Join(cfg.Distribution.Countries, ", "))
	}
	add("validate and commit the edit")
	return plan, nil
}
