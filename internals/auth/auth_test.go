package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Oudwins/taskforge/internals/conf"
	"github.com/Oudwins/taskforge/internals/env"
	"github.com/Oudwins/taskforge/internals/errs"
)

func withTempDataDir(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	config, err := conf.Load(dataDir)
	if err != nil {
		t.Fatalf("conf.Load: %v", err)
	}
	conf.SetConfig(config)
	t.Cleanup(func() { conf.SetConfig(nil) })
	return dataDir
}

func writeRaw(t *testing.T, data string) {
	t.Helper()
	path, err := Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestReadGitHubAuthMissingFile(t *testing.T) {
	withTempDataDir(t)

	gh, ok, err := ReadGitHubAuth()
	if err != nil || ok || gh != nil {
		t.Fatalf("expected nothing stored, got %+v ok=%v err=%v", gh, ok, err)
	}
}

func TestReadGitHubAuthMalformedJSON(t *testing.T) {
	withTempDataDir(t)
	writeRaw(t, "{invalid")

	_, _, err := ReadGitHubAuth()
	if !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestReadGitHubAuthBlankToken(t *testing.T) {
	withTempDataDir(t)
	writeRaw(t, `{"github":{"access_token":"   "}}`)

	if _, ok, err := ReadGitHubAuth(); err != nil || ok {
		t.Fatalf("expected ok=false, got ok=%v err=%v", ok, err)
	}
}

func TestWriteGitHubAuthRoundTrip(t *testing.T) {
	withTempDataDir(t)

	want := GitHubAuth{AccessToken: " token ", TokenType: "bearer", Scope: "repo", UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	if err := WriteGitHubAuth(want); err != nil {
		t.Fatalf("WriteGitHubAuth: %v", err)
	}

	got, ok, err := ReadGitHubAuth()
	if err != nil || !ok {
		t.Fatalf("ReadGitHubAuth: ok=%v err=%v", ok, err)
	}
	if got.AccessToken != "token" || got.TokenType != "bearer" || got.Scope != "repo" {
		t.Fatalf("unexpected auth: %+v", got)
	}

	path, _ := Path()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp file to be gone, got %v", err)
	}
}

func TestWriteGitHubAuthRejectsEmptyToken(t *testing.T) {
	withTempDataDir(t)

	if err := WriteGitHubAuth(GitHubAuth{AccessToken: "  "}); !errors.Is(err, errs.InvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDeleteGitHubAuth(t *testing.T) {
	withTempDataDir(t)

	if err := DeleteGitHubAuth(); err != nil {
		t.Fatalf("delete with nothing stored: %v", err)
	}
	if err := WriteGitHubAuth(GitHubAuth{AccessToken: "token"}); err != nil {
		t.Fatalf("WriteGitHubAuth: %v", err)
	}
	if err := DeleteGitHubAuth(); err != nil {
		t.Fatalf("DeleteGitHubAuth: %v", err)
	}
	if _, ok, _ := ReadGitHubAuth(); ok {
		t.Fatalf("expected token to be gone")
	}
}

func TestPathExpandsHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	conf.SetConfig(&conf.Config{Server: conf.ServerConfig{DataDir: "~/forge-test"}})
	t.Cleanup(func() { conf.SetConfig(nil) })

	path, err := Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if expected := filepath.Join(tmp, "forge-test", "auth.json"); path != expected {
		t.Fatalf("expected %q, got %q", expected, path)
	}
}

func TestGitHubTokenSource(t *testing.T) {
	withTempDataDir(t)
	t.Cleanup(env.Reset)

	t.Setenv("GITHUB_TOKEN", "")
	env.Reset()
	if token, source, err := GitHubToken(); err != nil || token != "" || source != SourceNone {
		t.Fatalf("expected no token, got %q %q err=%v", token, source, err)
	}

	if err := WriteGitHubAuth(GitHubAuth{AccessToken: "stored-token"}); err != nil {
		t.Fatalf("WriteGitHubAuth: %v", err)
	}
	if token, source, err := GitHubToken(); err != nil || token != "stored-token" || source != SourceFile {
		t.Fatalf("expected stored token, got %q %q err=%v", token, source, err)
	}

	t.Setenv("GITHUB_TOKEN", "env-token")
	env.Reset()
	if token, err := ResolveGitHubToken(); err != nil || token != "env-token" {
		t.Fatalf("expected env token, got %q err=%v", token, err)
	}
}
