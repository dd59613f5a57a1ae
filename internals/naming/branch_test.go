package naming

import (
	"strings"
	"testing"
)

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"Fix auth bug", "fix-auth-bug"},
		{"Fix: crash on /sessions", "fix-crash-on-sessions"},
		{"already-kebab", "already-kebab"},
		{"multi   space", "multi-space"},
		{"punctuation!!!", "punctuation"},
		{"line1\nline2", "line1"},
		{"---Leading and trailing---", "leading-and-trailing"},
		{"non-ascii: café", "non-ascii-cafe"},
	}

	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Fatalf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugIsCapped(t *testing.T) {
	t.Parallel()

	got := Slug(strings.Repeat("abcdefghi ", 10))
	if len(got) > MaxSlugLength {
		t.Fatalf("expected slug capped at %d, got %d (%q)", MaxSlugLength, len(got), got)
	}
	if strings.HasSuffix(got, "-") {
		t.Fatalf("expected no trailing dash, got %q", got)
	}
}

func TestBranchName(t *testing.T) {
	t.Parallel()

	if got := BranchName("0190a1b2", "Fix auth bug"); got != "vk-0190a1b2-fix-auth-bug" {
		t.Fatalf("unexpected branch %q", got)
	}
	if got := BranchName("0190a1b2", "!!!"); got != "vk-0190a1b2" {
		t.Fatalf("unexpected branch for empty slug %q", got)
	}
	if BranchName("a", "Same title") == BranchName("b", "Same title") {
		t.Fatalf("expected distinct branches for distinct workspaces")
	}
}
