package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/autotester/autotester/internal/identity"
)

// Retry decorates a Store with bounded retries on transient errors. Fatal
// errors pass through untouched. The backoff doubles after each failed
// attempt and waiting respects context cancellation.
//
// Retrying a create is safe because Create re-checks for an existing open
// issue with the same key first: if the original attempt committed on the
// tracker before the response was lost, the retry finds the issue and
// reports success instead of opening a duplicate.
type Retry struct {
	store    Store
	attempts int
	backoff  time.Duration
}

// NewRetry wraps a store with up to attempts tries per operation, starting
// at the given backoff between tries.
func NewRetry(store Store, attempts int, backoff time.Duration) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	return &Retry{
		store:    store,
		attempts: attempts,
		backoff:  backoff,
	}
}

func (r *Retry) ListOpen(ctx context.Context, marker string) ([]TrackedIssue, error) {
	var issues []TrackedIssue
	err := r.retry(ctx, func() error {
		var err error
		issues, err = r.store.ListOpen(ctx, marker)
		return err
	})
	return issues, err
}

func (r *Retry) Create(ctx context.Context, key identity.Key, title string, labels []string, body string) (TrackedIssue, error) {
	var issue TrackedIssue
	err := r.retry(ctx, func() error {
		var err error
		issue, err = r.store.Create(ctx, key, title, labels, body)
		return err
	})
	return issue, err
}

func (r *Retry) Update(ctx context.Context, issue TrackedIssue, labels []string, body string) (TrackedIssue, error) {
	var updated TrackedIssue
	err := r.retry(ctx, func() error {
		var err error
		updated, err = r.store.Update(ctx, issue, labels, body)
		return err
	})
	return updated, err
}

func (r *Retry) Close(ctx context.Context, issue TrackedIssue, comment string) error {
	return r.retry(ctx, func() error {
		return r.store.Close(ctx, issue, comment)
	})
}

func (r *Retry) Reopen(ctx context.Context, issue TrackedIssue) error {
	return r.retry(ctx, func() error {
		return r.store.Reopen(ctx, issue)
	})
}

// retry runs op until it succeeds, fails non-transiently, runs out of
// attempts, or the context is cancelled.
func (r *Retry) retry(ctx context.Context, op func() error) error {
	delay := r.backoff
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("gave up after %d attempts: %w", r.attempts, lastErr)
}
