// Package tracker is the issue store adapter: a thin capability interface
// over the issue tracker backing the autotester, plus its GitHub REST
// implementation, a retry decorator, and an in-memory implementation for
// tests and dry runs.
package tracker

import (
	"context"
	"errors"

	"github.com/autotester/autotester/internal/identity"
)

// Issue states stamped on tracked issues as "state:" labels.
const (
	StateFailing             = "failing"
	StatePassingPendingClose = "passing-pending-close"
	StateDisassociated       = "disassociated"
)

// Sentinel errors for store failure classification. Implementations wrap
// these so callers can branch with errors.Is.
var (
	// ErrTransient marks network and rate-limit failures that are safe to
	// retry with backoff.
	ErrTransient = errors.New("transient tracker error")

	// ErrFatal marks auth and permission failures. These are process-wide,
	// so the whole reconciliation pass aborts.
	ErrFatal = errors.New("fatal tracker error")
)

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsFatal reports whether err should abort the current pass.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// TrackedIssue is one open issue managed by the autotester. State and the
// identity key live in the labels; failure/pass dates live in the body text.
type TrackedIssue struct {
	Number int
	Title  string
	Labels []string
	Body   string
}

// Key recovers the identity key from the issue labels.
func (i TrackedIssue) Key() (identity.Key, error) {
	return identity.FromLabels(i.Labels)
}

// State returns the issue's state label value, or "" for issues created
// before state labels existed.
func (i TrackedIssue) State() string {
	return identity.StateFromLabels(i.Labels)
}

// Store is the capability interface the reconciliation engine depends on.
// All mutations must be idempotent under retry.
type Store interface {
	// ListOpen returns all open issues bearing the marker label, with
	// pagination handled transparently.
	ListOpen(ctx context.Context, marker string) ([]TrackedIssue, error)

	// Create opens a new issue. Implementations re-check for an existing
	// open issue with the same identity key first, so a retried create
	// after a transient failure cannot produce a duplicate.
	Create(ctx context.Context, key identity.Key, title string, labels []string, body string) (TrackedIssue, error)

	// Update replaces the labels and body of an open issue. Updating an
	// issue that was closed out from under us is not an error.
	Update(ctx context.Context, issue TrackedIssue, labels []string, body string) (TrackedIssue, error)

	// Close closes an issue, leaving a closing comment when one is given.
	Close(ctx context.Context, issue TrackedIssue, comment string) error

	// Reopen reopens a closed issue.
	Reopen(ctx context.Context, issue TrackedIssue) error
}
