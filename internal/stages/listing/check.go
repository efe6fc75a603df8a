package listing

import (
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/fault"
)

// Field limits, counted in characters.
const (
	MaxTitle            = 50
	MaxShortDescription = 80
	MaxFullDescription  = 4000
)

// Check validates the listing text locally. It never touches the network.
func Check(l config.Listing) error {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"listing.title", l.Title, MaxTitle},
		{"listing.shortDescription", l.ShortDescription, MaxShortDescription},
		{"listing.fullDescription", l.FullDescription, MaxFullDescription},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return invalid(f.name, "%s must not be empty", f.name)
		}
		if n := utf8.RuneCountInString(f.value); n > f.max {
			return invalid(f.name, "%s is %d characters, limit is %d", f.name, n, f.max)
		}
	}
	if err := checkURL(l.PolicyURL); err != nil {
		return invalid("listing.policyUrl", "listing.policyUrl %q: %s", l.PolicyURL, err)
	}
	if l.ContactWebsite != "" {
		if err := checkURL(l.ContactWebsite); err != nil {
			return invalid("listing.contactWebsite", "listing.contactWebsite %q: %s", l.ContactWebsite, err)
		}
	}
	return nil
}

var ageBands = map[string]string{
	"":         "",
	"all":      "ALL_AGES",
	"under-13": "AGE_UNDER_13",
	"13-17":    "AGE_13_17",
	"18+":      "AGE_18_PLUS",
}

// CheckCompliance validates the compliance answers locally.
func CheckCompliance(c config.Compliance) error {
	if _, ok := ageBands[strings.ToLower(strings.TrimSpace(c.TargetAgeBand))]; !ok {
		return fault.New(fault.ConfigInvalid, "compliance.targetAgeBand %q must be one of all, under-13, 13-17, 18+", c.TargetAgeBand).
			InStage("preflight").
			WithField("compliance.targetAgeBand")
	}
	return nil
}

func checkURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errNotHTTP
	}
	if parsed.Host == "" {
		return errNoHost
	}
	return nil
}

var (
	errNotHTTP = errors.New("must be an absolute http(s) URL")
	errNoHost  = errors.New("has no host")
)

func invalid(field, format string, args ...any) error {
	return fault.New(fault.MetadataInvalid, format, args...).InStage(stageID).WithField(field)
}
