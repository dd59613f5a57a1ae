// Package remote talks to the VCS hosting provider: opening pull requests and
// reading their current state.
package remote

import (
	"context"
	"errors"
	"time"
)

// ErrAuthRequired is returned when no provider token is configured.
var ErrAuthRequired = errors.New("github authentication required")

// PR states as reported by the provider, folded to the values the merge
// record stores.
const (
	StateOpen    = "open"
	StateClosed  = "closed"
	StateMerged  = "merged"
	StateUnknown = "unknown"
)

type CreatePRParams struct {
	RemoteURL string
	Head      string
	Base      string
	Title     string
	Body      string
	Draft     bool
}

type PullRequest struct {
	Number      int64
	URL         string
	State       string
	MergedAt    *time.Time
	MergeCommit *string
}

// Provider is the narrow surface the reconciliation code needs.
type Provider interface {
	CreatePR(ctx context.Context, params CreatePRParams) (*PullRequest, error)
	GetPR(ctx context.Context, remoteURL string, number int64) (*PullRequest, error)
}
