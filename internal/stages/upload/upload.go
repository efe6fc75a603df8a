// Package upload implements the binary upload stage.
//
// It is the only stage that may cause a release target to be created:
// when opening an edit reports an unprovisioned target and implicit
// creation is allowed, the binary is uploaded outside any edit (which
// registers the app) and the edit is opened exactly once more.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore"
	"github.com/kingrea/playpublish/internal/session"
	"github.com/kingrea/playpublish/internal/stage"
)

const stageID = "upload"

// Uploader is the slice of the publishing API the stage needs.
type Uploader interface {
	UploadBinary(ctx context.Context, pkg, editID string, kind playstore.BinaryKind, media io.Reader) (playstore.Binary, error)
}

// Sessions opens edits and remembers what was uploaded into them.
type Sessions interface {
	ResumeOrOpen(ctx context.Context, target string) (session.Record, error)
	RecordUpload(target, digest string, versionCode int64) error
}

// Options configures the stage.
type Options struct {
	ArtifactPath string
	// AllowImplicitTargetCreation permits the first upload to register a
	// target the platform does not know yet.
	AllowImplicitTargetCreation bool
}

// Stage uploads the release artifact.
type Stage struct {
	api      Uploader
	sessions Sessions
	opts     Options
}

// New builds the stage.
func New(api Uploader, sessions Sessions, opts Options) *Stage {
	return &Stage{api: api, sessions: sessions, opts: opts}
}

// Info implements stage.Stage.
func (s *Stage) Info() stage.Info {
	return stage.Info{ID: stageID, Name: "Binary upload"}
}

// DetectKind maps the artifact extension to its upload format.
func DetectKind(path string) (playstore.BinaryKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".aab":
		return playstore.BinaryBundle, nil
	case ".apk":
		return playstore.BinaryAPK, nil
	default:
		return "", fault.New(fault.InvalidArtifact, "artifact %s must be an .aab or .apk file", filepath.Base(path)).
			InStage(stageID).
			WithField("artifactPath")
	}
}

// Inspect checks the artifact is a readable, non-empty package and
// returns its format and SHA-256 digest.
func Inspect(path string) (playstore.BinaryKind, string, error) {
	kind, err := DetectKind(path)
	if err != nil {
		return "", "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", "", fault.Wrap(fault.InvalidArtifact, err).InStage(stageID).WithField("artifactPath")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", "", fault.Wrap(fault.InvalidArtifact, err).InStage(stageID).WithField("artifactPath")
	}
	if info.IsDir() || info.Size() == 0 {
		return "", "", fault.New(fault.InvalidArtifact, "artifact %s is empty or not a file", path).
			InStage(stageID).
			WithField("artifactPath")
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", "", fault.Wrap(fault.InvalidArtifact, err).InStage(stageID).WithField("artifactPath")
	}
	return kind, hex.EncodeToString(h.Sum(nil)), nil
}

// Run implements stage.Stage.
func (s *Stage) Run(ctx context.Context, run *stage.Run) (stage.Result, error) {
	log := run.Log().With("stage", stageID)
	kind, digest, err := Inspect(s.opts.ArtifactPath)
	if err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}

	if run.EditID == "" && !run.Deferred {
		if err := s.open(ctx, run); err != nil {
			if !fault.Is(err, fault.TargetNotProvisioned) {
				return stage.Result{Status: stage.StatusFailed}, err
			}
			run.Deferred = true
		}
	}

	if run.EditID != "" && run.Uploaded != nil && run.Uploaded.Digest == digest {
		run.VersionCode = run.Uploaded.VersionCode
		log.Info("artifact already uploaded into edit", "edit_id", run.EditID, "version_code", run.VersionCode)
		return stage.Result{
			Status:  stage.StatusSkipped,
			Message: fmt.Sprintf("reused version code %d", run.VersionCode),
		}, nil
	}

	if run.EditID == "" {
		return s.createTarget(ctx, run, kind, digest)
	}

	binary, err := s.send(ctx, run.Target, run.EditID, kind)
	if err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}
	run.VersionCode = binary.VersionCode
	log.Info("uploaded artifact", "edit_id", run.EditID, "kind", kind, "version_code", binary.VersionCode)

	var res stage.Result
	s.remember(run, digest, &res)
	return res.Finish(fmt.Sprintf("uploaded %s as version code %d", filepath.Base(s.opts.ArtifactPath), binary.VersionCode)), nil
}

// createTarget uploads outside an edit, which registers the target, and
// then opens the edit exactly once.
func (s *Stage) createTarget(ctx context.Context, run *stage.Run, kind playstore.BinaryKind, digest string) (stage.Result, error) {
	if !s.opts.AllowImplicitTargetCreation {
		return stage.Result{Status: stage.StatusFailed}, fault.New(fault.TargetNotProvisioned,
			"%s does not exist and implicit creation is disabled", run.Target).
			InStage(stageID).
			WithHint("create the app in the store console or set publish.allow_implicit_target_creation")
	}
	log := run.Log().With("stage", stageID)
	log.Info("target not provisioned; uploading first binary to create it", "target", run.Target)
	binary, err := s.send(ctx, run.Target, "", kind)
	if err != nil {
		return stage.Result{Status: stage.StatusFailed}, err
	}
	run.VersionCode = binary.VersionCode
	if err := s.open(ctx, run); err != nil {
		kind := fault.KindOf(err)
		if kind == "" {
			kind = fault.RequestFailed
		}
		return stage.Result{Status: stage.StatusFailed}, fault.Wrap(kind, err).
			InStage(stageID).
			WithHint(fmt.Sprintf("the target now exists with version code %d; re-run to open an edit", binary.VersionCode))
	}
	run.Deferred = false

	var res stage.Result
	s.remember(run, digest, &res)
	return res.Finish(fmt.Sprintf("created %s with version code %d", run.Target, binary.VersionCode)), nil
}

func (s *Stage) open(ctx context.Context, run *stage.Run) error {
	rec, err := s.sessions.ResumeOrOpen(ctx, run.Target)
	if err != nil {
		return err
	}
	run.EditID = rec.EditID
	if rec.Artifact != nil {
		run.Uploaded = &stage.Artifact{Digest: rec.Artifact.Digest, VersionCode: rec.Artifact.VersionCode}
	}
	return nil
}

func (s *Stage) send(ctx context.Context, target, editID string, kind playstore.BinaryKind) (playstore.Binary, error) {
	f, err := os.Open(s.opts.ArtifactPath)
	if err != nil {
		return playstore.Binary{}, fault.Wrap(fault.InvalidArtifact, err).InStage(stageID).WithField("artifactPath")
	}
	defer f.Close()

	binary, err := s.api.UploadBinary(ctx, target, editID, kind, f)
	switch {
	case err == nil:
	case playstore.IsRejected(err):
		return playstore.Binary{}, fault.Wrap(fault.InvalidArtifact, err).
			InStage(stageID).
			WithDiagnostic(playstore.Diagnostic(err))
	default:
		return playstore.Binary{}, fault.Wrap(fault.UploadFailed, err).InStage(stageID)
	}
	if binary.VersionCode <= 0 {
		return playstore.Binary{}, fault.New(fault.UploadFailed, "upload response carried no version code").InStage(stageID)
	}
	return binary, nil
}

// remember stores the digest so a resumed run skips the upload. A store
// failure only costs that shortcut.
func (s *Stage) remember(run *stage.Run, digest string, res *stage.Result) {
	if prev := run.Uploaded; prev != nil && prev.VersionCode != run.VersionCode {
		run.Superseded = prev.VersionCode
	}
	run.Uploaded = &stage.Artifact{Digest: digest, VersionCode: run.VersionCode}
	if err := s.sessions.RecordUpload(run.Target, digest, run.VersionCode); err != nil {
		res.Warn(fault.UploadFailed, stageID, fmt.Errorf("record upload: %w", err))
	}
}
