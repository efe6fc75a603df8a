package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/playpublish/internal/playstore/playstoretest"
)

const publishYAML = `releaseTargetId: com.example.notes
artifactPath: build/app-release.aab
listing:
  title: Notes
  shortDescription: Fast notes
  fullDescription: Take notes quickly and sync them everywhere.
  category: PRODUCTIVITY
  policyUrl: https://example.com/privacy
graphics:
  screenshotsDir: screenshots
distribution:
  track: internal
  pricing:
    free: true
`

func writeProject(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()
	files := map[string]string{
		"publish.yaml":                publishYAML,
		"build/app-release.aab":       "bundle-bytes",
		"screenshots/phone/01.png":    "png-1",
		"screenshots/phone/02.png":    "png-2",
		"screenshots/phone/notes.txt": "ignored",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, filepath.Join(dir, "publish.yaml")
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := dispatch(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func pointAt(t *testing.T, srv *playstoretest.Server) {
	t.Helper()
	t.Setenv("PLAYPUBLISH_API_URL", srv.URL)
	t.Setenv("PLAYPUBLISH_UPLOAD_URL", "")
	t.Setenv("PLAYPUBLISH_ACCESS_TOKEN", srv.Token)
}

func TestDispatchUsageErrors(t *testing.T) {
	if code, _, stderr := run(t); code != exitUsage || !strings.Contains(stderr, "Commands:") {
		t.Fatalf("bare invocation: code %d stderr %q", code, stderr)
	}
	if code, _, _ := run(t, "launch"); code != exitUsage {
		t.Fatalf("unknown command: expected %d got %d", exitUsage, code)
	}
	if code, _, stderr := run(t, "publish"); code != exitUsage || !strings.Contains(stderr, "--config is required") {
		t.Fatalf("publish without config: code %d stderr %q", code, stderr)
	}
	if code, _, _ := run(t, "session", "purge"); code != exitUsage {
		t.Fatalf("unknown session subcommand: code %d", code)
	}
	if code, _, _ := run(t, "help"); code != 0 {
		t.Fatalf("help should exit 0, got %d", code)
	}
}

func TestCheckValidatesWithoutNetwork(t *testing.T) {
	_, configPath := writeProject(t)
	code, stdout, stderr := run(t, "check", "--config", configPath)
	if code != 0 {
		t.Fatalf("check failed: %d %s", code, stderr)
	}
	if !strings.Contains(stdout, "com.example.notes: configuration is valid") {
		t.Fatalf("unexpected output %q", stdout)
	}

	code, _, stderr = run(t, "check", "--config", configPath, "--track", "nightly")
	if code != exitFailure || !strings.Contains(stderr, "invalid-track") {
		t.Fatalf("expected invalid track failure, got %d %q", code, stderr)
	}
}

func TestPublishCommitsAgainstFakeAPI(t *testing.T) {
	srv := playstoretest.NewServer(t)
	srv.AddApp("com.example.notes")
	pointAt(t, srv)
	dir, configPath := writeProject(t)

	code, stdout, stderr := run(t, "publish", "--config", configPath, "--project", dir)
	if code != 0 {
		t.Fatalf("publish failed: %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "committed") {
		t.Fatalf("expected committed report, got:\n%s", stdout)
	}
	app, _ := srv.App("com.example.notes")
	if app.Commits != 1 {
		t.Fatalf("expected one commit, got %d", app.Commits)
	}
	if _, err := os.Stat(filepath.Join(dir, ".playpublish", "state", "sessions", "com.example.notes.json")); !os.IsNotExist(err) {
		t.Fatalf("session record should be cleared after commit: %v", err)
	}

	code, stdout, _ = run(t, "history", "--project", dir)
	if code != 0 || !strings.Contains(stdout, "committed version code") {
		t.Fatalf("history missing commit: %d %q", code, stdout)
	}
}

func TestPublishFailureExitsNonZeroAndKeepsSession(t *testing.T) {
	srv := playstoretest.NewServer(t)
	srv.AddApp("com.example.notes")
	srv.Fail(playstoretest.RouteValidateEdit, 400, "Version code already used.", 1)
	pointAt(t, srv)
	dir, configPath := writeProject(t)

	code, stdout, _ := run(t, "publish", "--config", configPath, "--project", dir)
	if code != exitFailure {
		t.Fatalf("expected exit %d, got %d\n%s", exitFailure, code, stdout)
	}
	if !strings.Contains(stdout, "validation-rejected") {
		t.Fatalf("report should name the failure:\n%s", stdout)
	}

	code, stdout, _ = run(t, "session", "show", "--project", dir)
	if code != 0 || !strings.Contains(stdout, "com.example.notes") {
		t.Fatalf("session show should list the open edit: %d %q", code, stdout)
	}

	code, _, _ = run(t, "session", "discard", "--target", "com.example.notes", "--project", dir)
	if code != 0 {
		t.Fatalf("discard failed: %d", code)
	}
	if srv.OpenEdits() != 0 {
		t.Fatalf("discard should delete the edit upstream")
	}
	code, stdout, _ = run(t, "session", "show", "--project", dir)
	if code != 0 || !strings.Contains(stdout, "No open edits") {
		t.Fatalf("expected no open edits after discard: %q", stdout)
	}
}

func TestDryRunReportsPlan(t *testing.T) {
	srv := playstoretest.NewServer(t)
	srv.AddApp("com.example.notes")
	pointAt(t, srv)
	dir, configPath := writeProject(t)

	code, stdout, stderr := run(t, "publish", "--config", configPath, "--project", dir, "--dry-run", "--track", "beta")
	if code != 0 {
		t.Fatalf("dry run failed: %d %s", code, stderr)
	}
	if !strings.Contains(stdout, "append a completed release to track beta") {
		t.Fatalf("plan should reflect the track override:\n%s", stdout)
	}
	if srv.Calls(playstoretest.RouteUploadBinary) != 0 || srv.Calls(playstoretest.RouteCommitEdit) != 0 {
		t.Fatalf("dry run must not upload or commit")
	}
}
