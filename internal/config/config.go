// internal/config/config.go
//
// This package handles configuration and the .playpublish directory
// structure. Every project that publishes with playpublish gets a
// .playpublish/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/playpublish/internal/playstore"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".playpublish"

	BackendFile   = "file"
	BackendSQLite = "sqlite"

	defaultTokenEnv           = "PLAYPUBLISH_ACCESS_TOKEN"
	defaultLocale             = "en-US"
	defaultMaxParallelUploads = 4

	envAPIURL      = "PLAYPUBLISH_API_URL"
	envUploadURL   = "PLAYPUBLISH_UPLOAD_URL"
	envAccessToken = "PLAYPUBLISH_ACCESS_TOKEN"
)

const defaultProjectConfigYAML = `# playpublish project configuration
version: 1

api:
  # Leave empty for the public publishing endpoint.
  base_url: ""
  upload_url: ""
  # The access token is issued by your identity tooling; playpublish only reads it.
  token_env: PLAYPUBLISH_ACCESS_TOKEN
  # token_file: secrets/publisher.token

session:
  # file keeps one JSON record per app under state/sessions; sqlite uses state/sessions.db.
  backend: file

publish:
  # The first binary upload registers an app that does not exist yet.
  allow_implicit_target_creation: true
  default_locale: en-US
  max_parallel_uploads: 4

logging:
  level: info
  # text, json, or auto (text on a terminal)
  format: auto
`

// APIConfig locates the publishing API and its credential.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	UploadURL string `yaml:"upload_url"`
	TokenEnv  string `yaml:"token_env"`
	TokenFile string `yaml:"token_file,omitempty"`
}

// SessionConfig selects the session record backend.
type SessionConfig struct {
	Backend string `yaml:"backend"`
}

// PublishDefaults holds run-wide publishing behaviour.
type PublishDefaults struct {
	AllowImplicitTargetCreation *bool  `yaml:"allow_implicit_target_creation"`
	DefaultLocale               string `yaml:"default_locale"`
	MaxParallelUploads          int    `yaml:"max_parallel_uploads"`
}

// LoggingConfig controls the run logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ProjectConfig models .playpublish/config.yaml.
type ProjectConfig struct {
	Version int             `yaml:"version"`
	API     APIConfig       `yaml:"api"`
	Session SessionConfig   `yaml:"session"`
	Publish PublishDefaults `yaml:"publish"`
	Logging LoggingConfig   `yaml:"logging"`
}

// Config holds the runtime configuration for playpublish.
type Config struct {
	// ProjectDir is the directory the operator ran `playpublish` from
	ProjectDir string

	// StateRoot is ProjectDir/.playpublish
	StateRoot string

	Project ProjectConfig
}

// InitDir creates the .playpublish directory structure in the given project
// directory.
//
// Structure created:
// .playpublish/
// ├── config.yaml
// ├── logs/            <- run logs
// └── state/
//
//	└── sessions/    <- one record per release target
func InitDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state", "sessions"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig loads the project configuration rooted at projectDir and
// applies environment overrides.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir: abs,
		StateRoot:  filepath.Join(abs, ProjectDirName),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	cfg.Project.applyEnv(os.Getenv)
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateRoot, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.StateRoot, "state")
}

// SessionsDir returns the directory used by the file session backend
func (c *Config) SessionsDir() string {
	return filepath.Join(c.StateDir(), "sessions")
}

// SessionsDBPath returns the database used by the sqlite session backend
func (c *Config) SessionsDBPath() string {
	return filepath.Join(c.StateDir(), "sessions.db")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateRoot, "config.yaml")
}

// SessionBackend returns the configured session backend.
func (c *Config) SessionBackend() string {
	return c.Project.Session.Backend
}

// AllowImplicitTargetCreation reports whether the first upload may register
// a missing app.
func (c *Config) AllowImplicitTargetCreation() bool {
	flag := c.Project.Publish.AllowImplicitTargetCreation
	return flag == nil || *flag
}

// DefaultLocale returns the listing locale used when the publish config
// names none.
func (c *Config) DefaultLocale() string {
	return c.Project.Publish.DefaultLocale
}

// MaxParallelUploads bounds concurrent image uploads.
func (c *Config) MaxParallelUploads() int {
	return c.Project.Publish.MaxParallelUploads
}

// ClientConfig builds the publishing API client configuration. An access
// token in the environment wins over the configured token source.
func (c *Config) ClientConfig() (playstore.Config, error) {
	api := c.Project.API
	out := playstore.Config{BaseURL: api.BaseURL, UploadURL: api.UploadURL}
	switch {
	case strings.TrimSpace(os.Getenv(envAccessToken)) != "":
		out.Tokens = playstore.EnvToken(envAccessToken)
	case api.TokenFile != "":
		out.Tokens = playstore.FileToken(api.TokenFile)
	case api.TokenEnv != "":
		out.Tokens = playstore.EnvToken(api.TokenEnv)
	default:
		return playstore.Config{}, fmt.Errorf("config: api.token_env or api.token_file is required")
	}
	return out, nil
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.API.TokenEnv == "" && pc.API.TokenFile == "" {
		pc.API.TokenEnv = defaultTokenEnv
	}
	if pc.Session.Backend == "" {
		pc.Session.Backend = BackendFile
	}
	if pc.Publish.DefaultLocale == "" {
		pc.Publish.DefaultLocale = defaultLocale
	}
	if pc.Publish.MaxParallelUploads == 0 {
		pc.Publish.MaxParallelUploads = defaultMaxParallelUploads
	}
	if pc.Logging.Level == "" {
		pc.Logging.Level = "info"
	}
	if pc.Logging.Format == "" {
		pc.Logging.Format = "auto"
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.API.BaseURL = strings.TrimSpace(pc.API.BaseURL)
	pc.API.UploadURL = strings.TrimSpace(pc.API.UploadURL)
	pc.API.TokenEnv = strings.TrimSpace(pc.API.TokenEnv)
	pc.API.TokenFile = resolvePath(base, pc.API.TokenFile)
	pc.Session.Backend = normalizeKeyword(pc.Session.Backend)
	pc.Publish.DefaultLocale = strings.TrimSpace(pc.Publish.DefaultLocale)
	pc.Logging.Level = normalizeKeyword(pc.Logging.Level)
	pc.Logging.Format = normalizeKeyword(pc.Logging.Format)
}

func (pc *ProjectConfig) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(envAPIURL)); v != "" {
		pc.API.BaseURL = v
	}
	if v := strings.TrimSpace(getenv(envUploadURL)); v != "" {
		pc.API.UploadURL = v
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	switch pc.Session.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("session.backend must be 'file' or 'sqlite'")
	}
	if pc.Publish.MaxParallelUploads < 1 {
		return fmt.Errorf("publish.max_parallel_uploads must be >= 1")
	}
	switch pc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch pc.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of auto, text, json")
	}
	return nil
}

func normalizeKeyword(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
