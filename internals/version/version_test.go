package version

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersionPrefixesSemVer(t *testing.T) {
	orig := SemVer
	t.Cleanup(func() { SemVer = orig })

	SemVer = "1.2.3"
	if got := Version(); !strings.HasPrefix(got, "1.2.3") {
		t.Fatalf("expected version to start with 1.2.3, got %q", got)
	}

	SemVer = "  "
	if got := Version(); !strings.HasPrefix(got, "0.0.0-dev") {
		t.Fatalf("expected dev fallback, got %q", got)
	}
}

func TestIdentityIsStable(t *testing.T) {
	if Identity() != Identity() {
		t.Fatalf("expected identity to be memoised")
	}
}

func TestBuildString(t *testing.T) {
	cases := []struct {
		build Build
		want  string
	}{
		{Build{}, "unknown"},
		{Build{Sum: "abc"}, "abc"},
		{Build{Revision: "r1"}, "r1"},
		{Build{Revision: "r1", Modified: true}, "r1-dirty"},
		{Build{Revision: "r1", Modified: true, Sum: "abc"}, "r1-dirty+abc"},
		{Build{Modified: true, Sum: "abc"}, "abc"},
	}
	for _, tc := range cases {
		if got := tc.build.String(); got != tc.want {
			t.Fatalf("%+v: expected %q, got %q", tc.build, tc.want, got)
		}
	}
}

func TestVersionOfOwnExecutableMatchesVersion(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Skipf("no executable path: %v", err)
	}
	if got, want := VersionOf(exe), Version(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if readBuild().Sum != "" && VersionOf(filepath.Join(t.TempDir(), "missing")) == Version() {
		t.Fatalf("expected a missing binary to change the identity")
	}
}
