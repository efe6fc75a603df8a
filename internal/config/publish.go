package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/playpublish/internal/fault"
)

// Publish is the declarative description of one release. It is loaded
// once per run and never mutated after Overrides are applied.
type Publish struct {
	ReleaseTargetID string       `yaml:"releaseTargetId"`
	ArtifactPath    string       `yaml:"artifactPath"`
	Listing         Listing      `yaml:"listing"`
	Graphics        Graphics     `yaml:"graphics"`
	Compliance      Compliance   `yaml:"compliance"`
	Distribution    Distribution `yaml:"distribution"`

	// Path is the file the configuration was read from.
	Path string `yaml:"-"`
}

// Listing holds the store listing text.
type Listing struct {
	Locale           string `yaml:"locale"`
	Title            string `yaml:"title"`
	ShortDescription string `yaml:"shortDescription"`
	FullDescription  string `yaml:"fullDescription"`
	Category         string `yaml:"category"`
	PolicyURL        string `yaml:"policyUrl"`
	ContactEmail     string `yaml:"contactEmail"`
	ContactWebsite   string `yaml:"contactWebsite"`
	Video            string `yaml:"video"`
}

// Graphics points at the listing images.
type Graphics struct {
	ScreenshotsDir string `yaml:"screenshotsDir"`
	Icon           string `yaml:"icon"`
	FeatureGraphic string `yaml:"featureGraphic"`
}

// Compliance holds the content-rating answers and data-handling
// disclosures.
type Compliance struct {
	Gambling          bool   `yaml:"gambling"`
	FinancialFeatures bool   `yaml:"financialFeatures"`
	HealthApp         bool   `yaml:"healthApp"`
	TargetAgeBand     string `yaml:"targetAgeBand"`
	Violence          bool   `yaml:"violence"`
	SexualContent     bool   `yaml:"sexualContent"`
	Drugs             bool   `yaml:"drugs"`
	Ads               bool   `yaml:"ads"`

	DataHandling *DataHandling `yaml:"dataHandling"`
}

// DataHandling is the data-safety disclosure.
type DataHandling struct {
	CollectsPersonalData     bool `yaml:"collectsPersonalData"`
	SharesPersonalData       bool `yaml:"sharesPersonalData"`
	EncryptedInTransit       bool `yaml:"encryptedInTransit"`
	DeletionRequestSupported bool `yaml:"deletionRequestSupported"`
}

// Distribution selects the track, price and availability.
type Distribution struct {
	Track        string            `yaml:"track"`
	Pricing      Pricing           `yaml:"pricing"`
	Countries    []string          `yaml:"countries"`
	ReleaseNotes map[string]string `yaml:"releaseNotes"`
}

// Pricing is either free or a decimal price in major units.
type Pricing struct {
	Free     bool   `yaml:"free"`
	Price    string `yaml:"price"`
	Currency string `yaml:"currency"`
}

// DefaultTrack is used when the configuration names none.
const DefaultTrack = "internal"

// Overrides are explicit caller adjustments applied before a run starts.
type Overrides struct {
	ArtifactPath string
	Track        string
}

// LoadPublish reads a publish configuration in YAML, JSON or JSONC.
// Relative paths resolve against the file's directory.
func LoadPublish(path string) (*Publish, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, fmt.Errorf("read %s: %w", path, err)).InStage("preflight")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err).InStage("preflight")
	}
	p, err := ParsePublish(data, filepath.Ext(path))
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, fmt.Errorf("parse %s: %w", path, err)).InStage("preflight")
	}
	p.Path = abs
	p.resolve(filepath.Dir(abs))
	return p, nil
}

// ParsePublish decodes a publish configuration. ext selects JSONC
// stripping for ".json" and ".jsonc"; unknown keys are rejected.
func ParsePublish(data []byte, ext string) (*Publish, error) {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	var p Publish
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	p.normalize()
	return &p, nil
}

func (p *Publish) normalize() {
	p.ReleaseTargetID = strings.TrimSpace(p.ReleaseTargetID)
	p.ArtifactPath = strings.TrimSpace(p.ArtifactPath)
	p.Listing.Locale = strings.TrimSpace(p.Listing.Locale)
	p.Listing.Category = strings.TrimSpace(p.Listing.Category)
	p.Listing.PolicyURL = strings.TrimSpace(p.Listing.PolicyURL)
	p.Distribution.Track = strings.ToLower(strings.TrimSpace(p.Distribution.Track))
	p.Distribution.Pricing.Price = strings.TrimSpace(p.Distribution.Pricing.Price)
	p.Distribution.Pricing.Currency = strings.ToUpper(strings.TrimSpace(p.Distribution.Pricing.Currency))
}

func (p *Publish) resolve(base string) {
	p.ArtifactPath = resolvePath(base, p.ArtifactPath)
	p.Graphics.ScreenshotsDir = resolvePath(base, p.Graphics.ScreenshotsDir)
	p.Graphics.Icon = resolvePath(base, p.Graphics.Icon)
	p.Graphics.FeatureGraphic = resolvePath(base, p.Graphics.FeatureGraphic)
}

// Apply returns a copy of p with the overrides and run defaults applied.
// Relative override paths resolve against the working directory.
func (p Publish) Apply(o Overrides, locale string) (Publish, error) {
	if o.ArtifactPath != "" {
		abs, err := filepath.Abs(o.ArtifactPath)
		if err != nil {
			return Publish{}, fault.Wrap(fault.ConfigInvalid, err).WithField("artifactPath")
		}
		p.ArtifactPath = abs
	}
	if o.Track != "" {
		p.Distribution.Track = strings.ToLower(strings.TrimSpace(o.Track))
	}
	if p.Distribution.Track == "" {
		p.Distribution.Track = DefaultTrack
	}
	if p.Listing.Locale == "" {
		p.Listing.Locale = locale
	}
	return p, nil
}

// Missing lists every required field that is empty.
func (p Publish) Missing() []string {
	required := []struct {
		name  string
		value string
	}{
		{"releaseTargetId", p.ReleaseTargetID},
		{"artifactPath", p.ArtifactPath},
		{"listing.title", p.Listing.Title},
		{"listing.shortDescription", p.Listing.ShortDescription},
		{"listing.fullDescription", p.Listing.FullDescription},
		{"listing.category", p.Listing.Category},
		{"listing.policyUrl", p.Listing.PolicyURL},
	}
	var missing []string
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// Validate fails with a single ConfigInvalid naming every missing field.
func (p Publish) Validate() error {
	missing := p.Missing()
	if len(missing) == 0 {
		return nil
	}
	errs := make([]error, 0, len(missing))
	for _, name := range missing {
		errs = append(errs, fmt.Errorf("%s is required", name))
	}
	return fault.Wrap(fault.ConfigInvalid, errors.Join(errs...)).
		InStage("preflight").
		WithField(strings.Join(missing, ", "))
}
