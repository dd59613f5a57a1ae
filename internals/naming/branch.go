package naming

import "strings"

const (
	BranchPrefix  = "vk"
	MaxSlugLength = 40
)

// Slug turns arbitrary text into a branch-safe fragment.
// Output uses only [a-z0-9-], never starts or ends with '-' and is capped at
// MaxSlugLength bytes. Non-ASCII characters are treated as separators.
func Slug(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	prevDash := false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		isAZ := r >= 'a' && r <= 'z'
		is09 := r >= '0' && r <= '9'
		if isAZ || is09 {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if prevDash {
			continue
		}
		b.WriteByte('-')
		prevDash = true
	}

	out := strings.Trim(b.String(), "-")
	if len(out) > MaxSlugLength {
		out = strings.TrimRight(out[:MaxSlugLength], "-")
	}
	return out
}

// BranchName is reproducible from (workspace id, task title). The workspace
// id makes it unique; the slug only helps humans.
func BranchName(workspaceID string, taskTitle string) string {
	slug := Slug(taskTitle)
	if slug == "" {
		return BranchPrefix + "-" + workspaceID
	}
	return BranchPrefix + "-" + workspaceID + "-" + slug
}

// ContainerName derives the container name for a workspace.
func ContainerName(workspaceID string) string {
	return "forge-ws-" + workspaceID
}
