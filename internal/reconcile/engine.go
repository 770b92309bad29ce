// Package reconcile implements the result-to-issue reconciliation engine:
// given the current test outcomes for one service, it computes and applies
// the mutations that make the issue tracker reflect reality, exactly once
// per pairing per pass.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/autotester/autotester/internal/catalog"
	"github.com/autotester/autotester/internal/identity"
	"github.com/autotester/autotester/internal/outcome"
	"github.com/autotester/autotester/internal/tracker"
)

// ErrIdentityCollision reports two distinct pairings resolving to the same
// identity key, observed as more than one open issue carrying that key.
// With immutable concept IDs this should be impossible; seeing it means a
// data-integrity problem to investigate, so the pass aborts rather than
// resolving it silently.
var ErrIdentityCollision = errors.New("identity collision")

// Action is the mutation applied for one pairing.
type Action string

const (
	ActionNone   Action = "none"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionClose  Action = "close"
)

// ClosePolicy controls when issues are actually closed rather than just
// transitioned. Closing is normally an operator call, so both knobs default
// to conservative values in config.
type ClosePolicy struct {
	// PassingAfter closes a passing-pending-close issue once the most
	// recent failure is at least this old. Zero keeps passing issues open
	// for an operator to assess.
	PassingAfter time.Duration

	// Disassociated closes issues whose collection left the association
	// set, after stamping the disassociated state.
	Disassociated bool
}

// PairingResult records what happened to one pairing during a pass.
type PairingResult struct {
	Key         identity.Key
	Collection  catalog.Collection
	Status      outcome.Status
	Action      Action
	IssueNumber int
	Err         error
}

// Summary is the outcome of one reconciliation pass.
type Summary struct {
	Service   catalog.Service
	StartedAt time.Time
	Results   []PairingResult
	Created   int
	Updated   int
	Closed    int
	Unchanged int
	Failed    int
}

// Ok reports whether every pairing reconciled cleanly.
func (s Summary) Ok() bool {
	return s.Failed == 0
}

// Engine applies the reconciliation decision table through an issue store.
type Engine struct {
	store  tracker.Store
	marker string
	policy ClosePolicy
	now    func() time.Time
}

// NewEngine creates an engine over the given store. marker is the label
// identifying autotester-managed issues.
func NewEngine(store tracker.Store, marker string, policy ClosePolicy) *Engine {
	return &Engine{
		store:  store,
		marker: marker,
		policy: policy,
		now:    time.Now,
	}
}

// Reconcile runs one pass for the service. Per-pairing failures are isolated
// and recorded in the summary; a fatal store error aborts the pass and is
// returned alongside the partial summary.
func (e *Engine) Reconcile(ctx context.Context, service catalog.Service, associated []catalog.Collection, run outcome.RunOutcomes) (Summary, error) {
	summary := Summary{Service: service, StartedAt: e.now()}

	tracked, err := e.store.ListOpen(ctx, e.marker)
	if err != nil {
		return summary, fmt.Errorf("failed to list open issues: %w", err)
	}

	issueByKey, err := indexByKey(tracked, service.ConceptID)
	if err != nil {
		return summary, err
	}

	input := outcome.Collect(service, associated, run, tracked)

	for _, pairing := range input.Pairings {
		existing := issueByKey[pairing.Key]
		result := e.reconcilePairing(ctx, service, pairing, existing)
		summary.add(result)

		if result.Err != nil {
			log.Printf("Pairing %s: %s failed: %v", pairing.Key, result.Action, result.Err)
			if tracker.IsFatal(result.Err) {
				// Credentials and permissions are process wide, so the
				// remaining pairings would fail the same way.
				return summary, result.Err
			}
			continue
		}
		if result.Action != ActionNone {
			log.Printf("Pairing %s: %s (issue #%d)", pairing.Key, result.Action, result.IssueNumber)
		}
	}

	return summary, nil
}

func (s *Summary) add(result PairingResult) {
	s.Results = append(s.Results, result)
	switch {
	case result.Err != nil:
		s.Failed++
	case result.Action == ActionCreate:
		s.Created++
	case result.Action == ActionUpdate:
		s.Updated++
	case result.Action == ActionClose:
		s.Closed++
	default:
		s.Unchanged++
	}
}

// indexByKey maps open issues for this service by identity key. Two open
// issues with the same key violate the at-most-one invariant the engine
// exists to enforce; that is a data-integrity problem to investigate, not
// one to resolve silently.
func indexByKey(tracked []tracker.TrackedIssue, serviceConceptID string) (map[identity.Key]*tracker.TrackedIssue, error) {
	issueByKey := make(map[identity.Key]*tracker.TrackedIssue)
	for i := range tracked {
		issue := &tracked[i]
		key, err := issue.Key()
		if err != nil {
			continue
		}
		if key.ServiceConceptID() != serviceConceptID {
			continue
		}
		if duplicate, ok := issueByKey[key]; ok {
			return nil, fmt.Errorf("%w: issues #%d and #%d are both open for key %s",
				ErrIdentityCollision, duplicate.Number, issue.Number, key)
		}
		issueByKey[key] = issue
	}
	return issueByKey, nil
}

// reconcilePairing applies the decision table for one pairing.
func (e *Engine) reconcilePairing(ctx context.Context, service catalog.Service, pairing outcome.Pairing, existing *tracker.TrackedIssue) PairingResult {
	result := PairingResult{
		Key:        pairing.Key,
		Collection: pairing.Collection,
		Status:     pairing.Status,
		Action:     ActionNone,
	}

	if existing == nil {
		// Only a fresh failure warrants opening an issue. Passing and
		// untested pairings with no history need nothing.
		if pairing.Status != outcome.StatusTested || pairing.Outcome.Passed {
			return result
		}

		labels := identity.ReplaceStateLabel(
			identity.Labels(e.marker, service, pairing.Collection), tracker.StateFailing)
		body := NewBody(pairing.Outcome.Error, pairing.Outcome.ReproductionURL, pairing.Outcome.ObservedAt)
		issue, err := e.store.Create(ctx, pairing.Key, identity.Title(service, pairing.Collection), labels, body)
		if err != nil {
			result.Err = err
			return result
		}
		result.Action = ActionCreate
		result.IssueNumber = issue.Number
		return result
	}

	result.IssueNumber = existing.Number

	switch pairing.Status {
	case outcome.StatusDisassociated:
		return e.reconcileDisassociated(ctx, result, existing)

	case outcome.StatusNotTested:
		// No new evidence; leaving the issue untouched avoids flapping on
		// transient test-runner failures.
		return result

	case outcome.StatusTested:
		if pairing.Outcome.Passed {
			return e.reconcilePass(ctx, service, pairing, result, existing)
		}
		return e.reconcileFailure(ctx, service, pairing, result, existing)
	}

	return result
}

// reconcileFailure refreshes an open issue for a pairing that failed again.
// The presentation labels are rebuilt from current metadata so renames show
// up, while the identity labels (and so the key) never change.
func (e *Engine) reconcileFailure(ctx context.Context, service catalog.Service, pairing outcome.Pairing, result PairingResult, existing *tracker.TrackedIssue) PairingResult {
	labels := identity.ReplaceStateLabel(
		identity.Labels(e.marker, service, pairing.Collection), tracker.StateFailing)
	body := RefreshFailure(existing.Body, pairing.Outcome.ObservedAt)

	return e.applyUpdate(ctx, result, existing, labels, body)
}

// reconcilePass transitions a tracked failure toward closure after a pass.
func (e *Engine) reconcilePass(ctx context.Context, service catalog.Service, pairing outcome.Pairing, result PairingResult, existing *tracker.TrackedIssue) PairingResult {
	labels := identity.ReplaceStateLabel(
		identity.Labels(e.marker, service, pairing.Collection), tracker.StatePassingPendingClose)
	body := StampSuccess(existing.Body, pairing.Outcome.ObservedAt)

	result = e.applyUpdate(ctx, result, existing, labels, body)
	if result.Err != nil {
		return result
	}

	if e.shouldCloseAsPassing(body) {
		comment := fmt.Sprintf("Tests have been passing since %s; closing.", LastSuccessDate(body))
		if err := e.store.Close(ctx, *existing, comment); err != nil {
			result.Err = err
			return result
		}
		result.Action = ActionClose
	}

	return result
}

// reconcileDisassociated stamps the disassociated state on an issue whose
// collection left the association set, closing it when policy says so.
func (e *Engine) reconcileDisassociated(ctx context.Context, result PairingResult, existing *tracker.TrackedIssue) PairingResult {
	labels := identity.ReplaceStateLabel(existing.Labels, tracker.StateDisassociated)
	body := StampDisassociated(existing.Body, e.now())

	result = e.applyUpdate(ctx, result, existing, labels, body)
	if result.Err != nil || !e.policy.Disassociated {
		return result
	}

	comment := "Collection is no longer associated with this service; closing."
	if err := e.store.Close(ctx, *existing, comment); err != nil {
		result.Err = err
		return result
	}
	result.Action = ActionClose
	return result
}

// applyUpdate pushes new labels and body to the tracker, skipping the call
// entirely when nothing would change. The skip is what makes back-to-back
// passes with identical outcomes mutation-free.
func (e *Engine) applyUpdate(ctx context.Context, result PairingResult, existing *tracker.TrackedIssue, labels []string, body string) PairingResult {
	if body == existing.Body && sameLabels(labels, existing.Labels) {
		return result
	}

	updated, err := e.store.Update(ctx, *existing, labels, body)
	if err != nil {
		result.Err = err
		return result
	}
	existing.Labels = updated.Labels
	existing.Body = updated.Body
	result.Action = ActionUpdate
	return result
}

// shouldCloseAsPassing applies the configured closing policy to a body that
// has just been stamped with a success.
func (e *Engine) shouldCloseAsPassing(body string) bool {
	if e.policy.PassingAfter <= 0 {
		return false
	}
	lastFailure := LastFailureDate(body)
	if lastFailure == "" {
		return false
	}
	failedAt, err := time.Parse("2006-01-02", lastFailure)
	if err != nil {
		return false
	}
	return e.now().Sub(failedAt) >= e.policy.PassingAfter
}

// sameLabels compares label sets ignoring order.
func sameLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, label := range a {
		counts[label]++
	}
	for _, label := range b {
		counts[label]--
		if counts[label] < 0 {
			return false
		}
	}
	return true
}
