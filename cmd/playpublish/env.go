package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/kingrea/playpublish/internal/config"
	"github.com/kingrea/playpublish/internal/logbook"
	"github.com/kingrea/playpublish/internal/logging"
	"github.com/kingrea/playpublish/internal/playstore"
	"github.com/kingrea/playpublish/internal/session"
)

// env is everything a command needs, built once per invocation.
type env struct {
	cfg      *config.Config
	log      *logging.Logger
	history  *logbook.Logbook
	client   *playstore.Client
	store    session.Store
	sessions *session.Manager
	closers  []io.Closer
}

func openEnv(projectDir string, stderr io.Writer) (*env, error) {
	projectDir = defaultDir(projectDir)
	if err := config.InitDir(projectDir); err != nil {
		return nil, fmt.Errorf("init %s: %w", config.ProjectDirName, err)
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg}

	logger, err := logging.New(cfg.LogsDir(), logging.Options{
		Level:  cfg.Project.Logging.Level,
		Format: cfg.Project.Logging.Format,
		Stderr: stderr,
	})
	if err != nil {
		return nil, err
	}
	e.log = logger
	e.closers = append(e.closers, logger)

	history, err := logbook.New(filepath.Join(cfg.LogsDir(), logbook.FileName))
	if err != nil {
		e.Close()
		return nil, err
	}
	e.history = history

	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		e.Close()
		return nil, err
	}
	clientCfg.Logger = logger.Logger
	e.client, err = playstore.NewClient(clientCfg)
	if err != nil {
		e.Close()
		return nil, err
	}

	switch cfg.SessionBackend() {
	case config.BackendSQLite:
		store, err := session.OpenSQLiteStore(cfg.SessionsDBPath())
		if err != nil {
			e.Close()
			return nil, err
		}
		e.store = store
		e.closers = append(e.closers, store)
	default:
		store, err := session.NewFileStore(cfg.SessionsDir())
		if err != nil {
			e.Close()
			return nil, err
		}
		e.store = store
	}

	e.sessions, err = session.NewManager(e.client, e.store, session.WithLogger(logger.Logger))
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Close releases files and databases in reverse order.
func (e *env) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}
