package cliutil

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Oudwins/taskforge/internals/store"
)

func testPrinter(asJSON bool) (*Printer, *bytes.Buffer) {
	var buf bytes.Buffer
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewPrinter(&buf, asJSON)
	p.Now = func() time.Time { return now }
	return p, &buf
}

func TestTasksTable(t *testing.T) {
	p, buf := testPrinter(false)
	alice := "alice"
	updated := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := p.Tasks([]store.Task{
		{ID: "t1", Title: "Fix login", Status: store.TaskStatusTodo, UpdatedAt: updated},
		{ID: "t2-long-id", Title: "Ship", Status: store.TaskStatusDone, Assignee: &alice, UpdatedAt: updated},
	})
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", buf.String())
	}
	if !strings.Contains(lines[1], "Fix login") || !strings.Contains(lines[2], "alice") {
		t.Fatalf("unexpected rows %q", lines)
	}
	if !strings.Contains(lines[1], "2 hours ago") {
		t.Fatalf("expected relative time, got %q", lines[1])
	}
	if strings.Index(lines[1], "todo") != strings.Index(lines[2], "done") {
		t.Fatalf("expected aligned status column:\n%s", buf.String())
	}
}

func TestEmptyTable(t *testing.T) {
	p, buf := testPrinter(false)
	if err := p.Webhooks(nil); err != nil {
		t.Fatalf("Webhooks: %v", err)
	}
	if !strings.Contains(buf.String(), "(none)") {
		t.Fatalf("expected placeholder, got %q", buf.String())
	}
}

func TestJSONMode(t *testing.T) {
	p, buf := testPrinter(true)
	if err := p.Task(&store.Task{ID: "t1", Title: "Fix", Status: store.TaskStatusInReview}); err != nil {
		t.Fatalf("Task: %v", err)
	}
	var decoded store.Task
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if decoded.Status != store.TaskStatusInReview {
		t.Fatalf("unexpected task %+v", decoded)
	}
}

func TestMergesTable(t *testing.T) {
	p, buf := testPrinter(false)
	err := p.Merges([]store.MergeRecord{
		{RepoID: "r1", TargetBranch: "main", Merge: &store.DirectMerge{CommitHash: "abc123"}},
		{RepoID: "r2", TargetBranch: "main", Merge: &store.PRMerge{Number: 9, Status: store.PRStatusOpen}},
	})
	if err != nil {
		t.Fatalf("Merges: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "abc123") || !strings.Contains(out, "#9") {
		t.Fatalf("unexpected output %q", out)
	}
}
