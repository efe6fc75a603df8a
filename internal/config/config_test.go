package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.SessionBackend() != BackendFile {
		t.Fatalf("expected file backend, got %q", c.SessionBackend())
	}
	if !c.AllowImplicitTargetCreation() {
		t.Fatalf("implicit target creation should default to true")
	}
	if c.DefaultLocale() != "en-US" || c.MaxParallelUploads() != 4 {
		t.Fatalf("unexpected publish defaults: %+v", c.Project.Publish)
	}
}

func TestInitDirWritesCommentedDefaults(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitDir(projectDir); err != nil {
		t.Fatalf("InitDir: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(projectDir, ProjectDirName, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "allow_implicit_target_creation: true") {
		t.Fatalf("default config missing capability flag:\n%s", data)
	}
	if _, err := os.Stat(filepath.Join(projectDir, ProjectDirName, "state", "sessions")); err != nil {
		t.Fatalf("sessions dir not created: %v", err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("default config must load: %v", err)
	}
	if c.Project.API.TokenEnv != "PLAYPUBLISH_ACCESS_TOKEN" {
		t.Fatalf("unexpected token env %q", c.Project.API.TokenEnv)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	t.Setenv("PLAYPUBLISH_ACCESS_TOKEN", "")
	projectDir := t.TempDir()
	stateRoot := filepath.Join(projectDir, ProjectDirName)
	if err := os.MkdirAll(stateRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
api:
  base_url: https://publisher.example.com
  token_file: secrets/token
session:
  backend: SQLite
publish:
  allow_implicit_target_creation: false
  max_parallel_uploads: 2
logging:
  level: debug
  format: json
`)
	if err := os.WriteFile(filepath.Join(stateRoot, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if c.SessionBackend() != BackendSQLite {
		t.Fatalf("expected sqlite backend, got %q", c.SessionBackend())
	}
	if c.AllowImplicitTargetCreation() {
		t.Fatalf("expected implicit creation to be disabled")
	}
	if !strings.HasPrefix(c.Project.API.TokenFile, c.ProjectDir) {
		t.Fatalf("expected token file to be resolved, got %s", c.Project.API.TokenFile)
	}
	cc, err := c.ClientConfig()
	if err != nil {
		t.Fatalf("ClientConfig: %v", err)
	}
	if _, ok := cc.Tokens.(playstore.FileToken); !ok {
		t.Fatalf("expected file token source, got %T", cc.Tokens)
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	projectDir := t.TempDir()
	stateRoot := filepath.Join(projectDir, ProjectDirName)
	if err := os.MkdirAll(stateRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stateRoot, "config.yaml"), []byte("session:\n  backend: redis\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfig(projectDir); err == nil {
		t.Fatalf("expected validation error but got none")
	}
}

func TestEnvironmentOverridesEndpointAndToken(t *testing.T) {
	t.Setenv("PLAYPUBLISH_API_URL", "http://127.0.0.1:9000")
	t.Setenv("PLAYPUBLISH_ACCESS_TOKEN", "secret")
	c, err := NewConfig(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cc, err := c.ClientConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cc.BaseURL != "http://127.0.0.1:9000" {
		t.Fatalf("expected env base url, got %q", cc.BaseURL)
	}
	if cc.Tokens != playstore.EnvToken("PLAYPUBLISH_ACCESS_TOKEN") {
		t.Fatalf("expected env token source, got %#v", cc.Tokens)
	}
}

func TestLoadPublishJSONCWithRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "publish.jsonc")
	body := `{
  // comments and trailing commas are allowed
  "releaseTargetId": "com.example.app",
  "artifactPath": "build/app.aab",
  "listing": {
    "title": "Example",
    "shortDescription": "Short",
    "fullDescription": "Full",
    "category": "PRODUCTIVITY",
    "policyUrl": "https://example.com/privacy",
  },
  "graphics": {"screenshotsDir": "shots"},
  "distribution": {"pricing": {"price": 1.005}},
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPublish(path)
	if err != nil {
		t.Fatalf("LoadPublish: %v", err)
	}
	if p.ArtifactPath != filepath.Join(dir, "build", "app.aab") {
		t.Fatalf("artifact path not resolved: %s", p.ArtifactPath)
	}
	if p.Graphics.ScreenshotsDir != filepath.Join(dir, "shots") {
		t.Fatalf("screenshots dir not resolved: %s", p.Graphics.ScreenshotsDir)
	}
	if p.Distribution.Pricing.Price != "1.005" {
		t.Fatalf("price must keep its literal text, got %q", p.Distribution.Pricing.Price)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
}

func TestLoadPublishRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publish.yaml")
	if err := os.WriteFile(path, []byte("releaseTargetId: com.example.app\nlisting:\n  titel: typo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPublish(path); !fault.Is(err, fault.ConfigInvalid) {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
}

func TestValidateEnumeratesEveryMissingField(t *testing.T) {
	p, err := ParsePublish([]byte("releaseTargetId: com.example.app\nlisting:\n  title: Example\n"), ".yaml")
	if err != nil {
		t.Fatal(err)
	}
	err = p.Validate()
	fe, ok := fault.As(err)
	if !ok || fe.Kind != fault.ConfigInvalid {
		t.Fatalf("expected ConfigInvalid, got %v", err)
	}
	for _, field := range []string{"artifactPath", "listing.shortDescription", "listing.fullDescription", "listing.category", "listing.policyUrl"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("missing field %s not reported in %v", field, err)
		}
	}
	if strings.Contains(fe.Field, "listing.title") {
		t.Fatalf("present field reported as missing: %s", fe.Field)
	}
}

func TestApplyOverridesAndDefaults(t *testing.T) {
	p := Publish{ArtifactPath: "/builds/old.aab"}
	out, err := p.Apply(Overrides{ArtifactPath: "/builds/new.apk", Track: " Beta "}, "de-DE")
	if err != nil {
		t.Fatal(err)
	}
	if out.ArtifactPath != "/builds/new.apk" || out.Distribution.Track != "beta" || out.Listing.Locale != "de-DE" {
		t.Fatalf("unexpected overrides result: %+v", out)
	}
	if p.ArtifactPath != "/builds/old.aab" {
		t.Fatalf("Apply must not mutate the loaded config")
	}
	defaults, _ := Publish{}.Apply(Overrides{}, "en-US")
	if defaults.Distribution.Track != DefaultTrack {
		t.Fatalf("expected default track, got %q", defaults.Distribution.Track)
	}
}
