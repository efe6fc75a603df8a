// Package graphics uploads the icon, feature graphic and per-device-class
// screenshot sets into the open edit.
//
// Each image type is cleared before its images are uploaded, so a resumed
// run never leaves duplicates behind. A partial screenshot set is not an
// acceptable published state; any failed image fails the stage.
package graphics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore"
	"github.com/kingrea/playpublish/internal/stage"
)

const (
	stageID            = "graphics"
	defaultParallelism = 4
)

// API is the slice of the publishing API the stage needs.
type API interface {
	DeleteAllImages(ctx context.Context, pkg, editID, locale string, imageType playstore.ImageType) error
	UploadImage(ctx context.Context, pkg, editID, locale string, imageType playstore.ImageType, contentType string, media io.Reader) (playstore.Image, error)
}

// Options configures the stage.
type Options struct {
	ScreenshotsDir string
	Icon           string
	FeatureGraphic string
	Locale         string
	// MaxParallel bounds concurrent uploads within a device class.
	MaxParallel int
}

// Stage uploads listing graphics.
type Stage struct {
	api  API
	opts Options
}

// New builds the stage.
func New(api API, opts Options) *Stage {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = defaultParallelism
	}
	return &Stage{api: api, opts: opts}
}

// Info implements stage.Stage.
func (s *Stage) Info() stage.Info {
	return stage.Info{ID: stageID, Name: "Graphics"}
}

// Run implements stage.Stage.
func (s *Stage) Run(ctx context.Context, run *stage.Run) (stage.Result, error) {
	log := run.Log().With("stage", stageID)
	var summary []string

	for _, single := range []struct {
		path  string
		image playstore.ImageType
	}{
		{s.opts.Icon, playstore.ImageIcon},
		{s.opts.FeatureGraphic, playstore.ImageFeatureGraphic},
	} {
		if single.path == "" {
			continue
		}
		if _, err := os.Stat(single.path); errors.Is(err, fs.ErrNotExist) {
			log.Debug("graphic not found; skipping", "image_type", single.image, "path", single.path)
			continue
		}
		if err := s.replace(ctx, run, single.image, []string{single.path}); err != nil {
			return stage.Result{Status: stage.StatusFailed}, err
		}
		summary = append(summary, string(single.image))
	}

	if s.opts.ScreenshotsDir != "" {
		sets, err := Discover(s.opts.ScreenshotsDir)
		if err != nil {
			return stage.Result{Status: stage.StatusFailed}, fault.Wrap(fault.GraphicsUploadFailed, err).
				InStage(stageID).
				WithField("graphics.screenshotsDir")
		}
		for _, set := range sets {
			if err := s.replace(ctx, run, set.Class.Image, set.Files); err != nil {
				return stage.Result{Status: stage.StatusFailed}, err
			}
			log.Info("screenshots uploaded", "class", set.Class.Name, "count", len(set.Files))
			summary = append(summary, fmt.Sprintf("%s %d", set.Class.Name, len(set.Files)))
		}
	}

	if len(summary) == 0 {
		return stage.Skipped("no graphics configured"), nil
	}
	return stage.Result{Status: stage.StatusCompleted, Message: "uploaded " + strings.Join(summary, ", ")}, nil
}

// replace clears imageType and uploads files concurrently. After the first
// failure, uploads not yet started are skipped and in-flight results are
// ignored.
func (s *Stage) replace(ctx context.Context, run *stage.Run, imageType playstore.ImageType, files []string) error {
	if err := s.api.DeleteAllImages(ctx, run.Target, run.EditID, s.opts.Locale, imageType); err != nil && !playstore.IsNotFound(err) {
		return s.failure(imageType, "", err)
	}
	var (
		g      errgroup.Group
		failed atomic.Bool
	)
	g.SetLimit(s.opts.MaxParallel)
	for _, path := range files {
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			if err := s.upload(ctx, run, imageType, path); err != nil {
				failed.Store(true)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Stage) upload(ctx context.Context, run *stage.Run, imageType playstore.ImageType, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return s.failure(imageType, path, err)
	}
	defer f.Close()
	if _, err := s.api.UploadImage(ctx, run.Target, run.EditID, s.opts.Locale, imageType, ContentType(path), f); err != nil {
		return s.failure(imageType, path, err)
	}
	return nil
}

func (s *Stage) failure(imageType playstore.ImageType, path string, err error) error {
	cause := fmt.Errorf("%s: %w", imageType, err)
	if path != "" {
		cause = fmt.Errorf("%s %s: %w", imageType, filepath.Base(path), err)
	}
	fe := fault.Wrap(fault.GraphicsUploadFailed, cause).InStage(stageID).WithDiagnostic(playstore.Diagnostic(err))
	if playstore.IsAuth(err) {
		fe = fe.WithHint("the access token was refused; re-grant publisher access, then re-run")
	}
	return fe
}
