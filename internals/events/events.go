// Package events names the externally visible state changes and the sink
// that producers hand them to. A sink writes through the caller's
// transaction, so an event exists if and only if its mutation committed.
package events

import (
	"context"
	"sync"

	"github.com/Oudwins/taskforge/internals/store"
)

const (
	TaskCreated              = "task_created"
	TaskUpdated              = "task_updated"
	TaskCompleted            = "task_completed"
	TaskDeleted              = "task_deleted"
	WorkspaceStarted         = "workspace_started"
	WorkspaceProvisioned     = "workspace_provisioned"
	WorkspaceProvisionFailed = "workspace_provision_failed"
	PRCreated                = "pr_created"
	PRStatusChanged          = "pr_status_changed"
)

var All = []string{
	TaskCreated,
	TaskUpdated,
	TaskCompleted,
	TaskDeleted,
	WorkspaceStarted,
	WorkspaceProvisioned,
	WorkspaceProvisionFailed,
	PRCreated,
	PRStatusChanged,
}

func Known(event string) bool {
	for _, e := range All {
		if e == event {
			return true
		}
	}
	return false
}

// Sink records event for every subscriber of projectID using q. It must not
// perform network IO.
type Sink interface {
	Enqueue(ctx context.Context, q *store.Queries, projectID string, event string, data any) error
}

type discard struct{}

func (discard) Enqueue(context.Context, *store.Queries, string, string, any) error { return nil }

// Discard drops every event.
var Discard Sink = discard{}

// Recorder keeps events in memory. Tests only.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

type Recorded struct {
	ProjectID string
	Event     string
	Data      any
}

func (r *Recorder) Enqueue(_ context.Context, _ *store.Queries, projectID string, event string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{ProjectID: projectID, Event: event, Data: data})
	return nil
}

func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Event
	}
	return names
}
