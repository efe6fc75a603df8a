package session

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Expiry is the lifetime of an edit on the publishing platform. A record
// at or past this age is never reused.
const Expiry = time.Hour

// ErrRecordNotFound is returned when no session is persisted for a target.
var ErrRecordNotFound = errors.New("session: record not found")

var targetPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*$`)

// ValidTarget reports whether target is a well-formed package name. Only
// such names are used as store keys.
func ValidTarget(target string) error {
	if !targetPattern.MatchString(target) {
		return fmt.Errorf("session: invalid release target %q", target)
	}
	return nil
}

// Record is the persisted handle of an open edit.
type Record struct {
	EditID        string    `json:"edit_id"`
	ReleaseTarget string    `json:"release_target"`
	CreatedAt     time.Time `json:"created_at"`
	// Artifact is set once a binary was uploaded into the edit.
	Artifact *ArtifactRecord `json:"artifact,omitempty"`

	// Resumed is true when the record came from the store rather than a
	// freshly opened edit. Not persisted.
	Resumed bool `json:"-"`
}

// ArtifactRecord remembers the binary uploaded into an edit.
type ArtifactRecord struct {
	Digest      string    `json:"digest"`
	VersionCode int64     `json:"version_code"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Validate checks the record's required fields.
func (r Record) Validate() error {
	var errs []error
	if strings.TrimSpace(r.EditID) == "" {
		errs = append(errs, errors.New("edit_id is required"))
	}
	if err := ValidTarget(r.ReleaseTarget); err != nil {
		errs = append(errs, err)
	}
	if r.CreatedAt.IsZero() {
		errs = append(errs, errors.New("created_at is required"))
	}
	if r.Artifact != nil {
		if r.Artifact.Digest == "" {
			errs = append(errs, errors.New("artifact.digest is required"))
		}
		if r.Artifact.VersionCode <= 0 {
			errs = append(errs, errors.New("artifact.version_code must be positive"))
		}
	}
	return errors.Join(errs...)
}

// Expired reports whether the record is at or beyond Expiry at now.
func Expired(r Record, now time.Time) bool {
	return !now.Before(r.CreatedAt.Add(Expiry))
}

// Age returns how long ago the edit was opened.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

// Store persists at most one record per release target.
type Store interface {
	Load(target string) (Record, error)
	Save(Record) error
	// Delete removes the record; deleting an absent record is not an error.
	Delete(target string) error
	List() ([]Record, error)
}
