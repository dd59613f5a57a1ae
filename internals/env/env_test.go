package env

import (
	"os"
	"testing"
)

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestEnvDefaults(t *testing.T) {
	for _, key := range []string{"FORGE_PORT", "GITHUB_TOKEN", "FORGE_DATA_DIR", "FORGE_LOG_LEVEL", "FORGE_WEBHOOK_POLL_INTERVAL"} {
		unsetenv(t, key)
	}
	Reset()
	t.Cleanup(Reset)

	got := Get()
	if got.PORT != 57890 {
		t.Fatalf("expected default port 57890, got %d", got.PORT)
	}
	if got.LISTEN_ADDR != "localhost:57890" {
		t.Fatalf("expected listen addr localhost:57890, got %s", got.LISTEN_ADDR)
	}
	if got.BASE_URL != "http://localhost:57890" {
		t.Fatalf("expected base url http://localhost:57890, got %s", got.BASE_URL)
	}
	if got.GITHUB_TOKEN != "" {
		t.Fatalf("expected empty github token, got %q", got.GITHUB_TOKEN)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FORGE_PORT", "1234")
	t.Setenv("FORGE_DATA_DIR", "/tmp/forge-data")
	t.Setenv("FORGE_LOG_LEVEL", "warn")
	Reset()
	t.Cleanup(Reset)

	got := Get()
	if got.PORT != 1234 {
		t.Fatalf("expected port 1234, got %d", got.PORT)
	}
	if got.BASE_URL != "http://localhost:1234" {
		t.Fatalf("expected base url http://localhost:1234, got %s", got.BASE_URL)
	}
	if got.DATA_DIR != "/tmp/forge-data" || got.LOG_LEVEL != "warn" {
		t.Fatalf("unexpected env: %+v", got)
	}
}
