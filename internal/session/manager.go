// Package session owns the lifecycle of release edits: opening, resuming,
// validating and committing them, and the persisted record that lets an
// interrupted run pick its edit up again.
//
// The record is written before any stage touches the edit and removed
// only after a successful commit. Every other outcome leaves it in place.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore"
)

// ErrRecordCleanup is returned by Commit when the edit was published but
// the local record could not be removed.
var ErrRecordCleanup = errors.New("session: edit committed but record cleanup failed")

// EditService is the slice of the publishing API the manager needs.
type EditService interface {
	InsertEdit(ctx context.Context, pkg string) (playstore.Edit, error)
	GetEdit(ctx context.Context, pkg, editID string) (playstore.Edit, error)
	DeleteEdit(ctx context.Context, pkg, editID string) error
	ValidateEdit(ctx context.Context, pkg, editID string) error
	CommitEdit(ctx context.Context, pkg, editID string) error
}

// Manager opens, resumes and finalizes edits.
type Manager struct {
	api    EditService
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes the manager.
type Option func(*Manager)

// WithClock injects a deterministic clock (tests).
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager wires a manager to the API client and the record store.
func NewManager(api EditService, store Store, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, fmt.Errorf("session: edit service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session: store is required")
	}
	m := &Manager{api: api, store: store, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.logger = m.logger.With("component", "session")
	return m, nil
}

// ResumeOrOpen returns the live record for target, opening and persisting
// a new edit when none exists, the stored one is expired, or the platform
// no longer knows it.
func (m *Manager) ResumeOrOpen(ctx context.Context, target string) (Record, error) {
	if err := ValidTarget(target); err != nil {
		return Record{}, fault.Wrap(fault.ConfigInvalid, err)
	}
	rec, err := m.store.Load(target)
	switch {
	case err == nil:
		reason, err := m.staleReason(ctx, rec)
		if err != nil {
			return Record{}, err
		}
		if reason == "" {
			m.logger.Info("resuming edit", "target", target, "edit_id", rec.EditID, "age", rec.Age(m.now()).Round(time.Second))
			rec.Resumed = true
			return rec, nil
		}
		m.logger.Info("discarding stale edit", "target", target, "edit_id", rec.EditID, "reason", reason)
		m.abandon(ctx, rec)
	case errors.Is(err, ErrRecordNotFound):
	default:
		return Record{}, fault.Wrap(fault.ConfigInvalid, err).
			InStage("session").
			WithHint("remove the damaged record with `playpublish session discard --target " + target + "`")
	}
	return m.open(ctx, target)
}

// staleReason explains why a stored record may not be reused, or returns
// "" when it is live. An unreachable API keeps the record untouched.
func (m *Manager) staleReason(ctx context.Context, rec Record) (string, error) {
	if Expired(rec, m.now()) {
		return "expired", nil
	}
	if _, err := m.api.GetEdit(ctx, rec.ReleaseTarget, rec.EditID); err != nil {
		if playstore.IsNotFound(err) {
			return "unknown upstream", nil
		}
		return "", fault.Wrap(fault.RequestFailed, fmt.Errorf("check edit %s: %w", rec.EditID, err)).InStage("session")
	}
	return "", nil
}

func (m *Manager) abandon(ctx context.Context, rec Record) {
	if err := m.api.DeleteEdit(ctx, rec.ReleaseTarget, rec.EditID); err != nil && !playstore.IsNotFound(err) {
		m.logger.Debug("delete stale edit", "edit_id", rec.EditID, "error", err)
	}
	if err := m.store.Delete(rec.ReleaseTarget); err != nil {
		m.logger.Warn("remove stale record", "target", rec.ReleaseTarget, "error", err)
	}
}

func (m *Manager) open(ctx context.Context, target string) (Record, error) {
	edit, err := m.api.InsertEdit(ctx, target)
	if err != nil {
		if playstore.IsNotFound(err) {
			return Record{}, fault.Wrap(fault.TargetNotProvisioned, err).
				InStage("session").
				WithDiagnostic(playstore.Diagnostic(err))
		}
		return Record{}, fault.Wrap(fault.RequestFailed, fmt.Errorf("open edit: %w", err)).InStage("session")
	}
	rec := Record{EditID: edit.ID, ReleaseTarget: target, CreatedAt: m.now().UTC()}
	if err := m.store.Save(rec); err != nil {
		// An untracked edit must not be used; drop it upstream.
		_ = m.api.DeleteEdit(ctx, target, edit.ID)
		return Record{}, err
	}
	m.logger.Info("opened edit", "target", target, "edit_id", edit.ID)
	return rec, nil
}

// RecordUpload remembers the binary uploaded into the target's edit.
func (m *Manager) RecordUpload(target, digest string, versionCode int64) error {
	rec, err := m.store.Load(target)
	if err != nil {
		return err
	}
	rec.Artifact = &ArtifactRecord{Digest: digest, VersionCode: versionCode, UploadedAt: m.now().UTC()}
	return m.store.Save(rec)
}

// Validate asks the platform to check the edit.
func (m *Manager) Validate(ctx context.Context, target, editID string) error {
	err := m.api.ValidateEdit(ctx, target, editID)
	if err == nil {
		return nil
	}
	switch {
	case playstore.IsRejected(err):
		return fault.Wrap(fault.ValidationRejected, err).InStage("validate").WithDiagnostic(playstore.Diagnostic(err))
	case playstore.IsNotFound(err):
		return fault.Wrap(fault.RequestFailed, err).InStage("validate").
			WithHint("the edit expired upstream; re-run to open a fresh edit")
	default:
		return fault.Wrap(fault.RequestFailed, err).InStage("validate")
	}
}

// Commit publishes the edit and clears the record. It never retries.
func (m *Manager) Commit(ctx context.Context, target, editID string) error {
	if err := m.api.CommitEdit(ctx, target, editID); err != nil {
		if playstore.IsRejected(err) {
			return fault.Wrap(fault.CommitRejected, err).InStage("commit").WithDiagnostic(playstore.Diagnostic(err))
		}
		return fault.Wrap(fault.CommitRejected, err).InStage("commit").
			WithHint("the commit outcome is unknown; check the store console before running `playpublish commit`")
	}
	m.logger.Info("committed edit", "target", target, "edit_id", editID)
	if err := m.store.Delete(target); err != nil {
		return fmt.Errorf("%w: %v", ErrRecordCleanup, err)
	}
	return nil
}

// Current returns the stored record and whether it is still within Expiry.
func (m *Manager) Current(target string) (Record, bool, error) {
	rec, err := m.store.Load(target)
	if err != nil {
		return Record{}, false, err
	}
	return rec, !Expired(rec, m.now()), nil
}

// Discard deletes the edit upstream (best effort) and forgets the record.
func (m *Manager) Discard(ctx context.Context, target string) error {
	rec, err := m.store.Load(target)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		// The edit ID is unknown, so only the local record can go.
		m.logger.Warn("discarding unreadable record", "target", target, "error", err)
		return m.store.Delete(target)
	}
	m.abandon(ctx, rec)
	return nil
}

// List returns every persisted record.
func (m *Manager) List() ([]Record, error) {
	return m.store.List()
}

// Now exposes the manager's clock.
func (m *Manager) Now() time.Time {
	return m.now()
}
