package outcome

import (
	"sort"

	"github.com/autotester/autotester/internal/catalog"
	"github.com/autotester/autotester/internal/identity"
	"github.com/autotester/autotester/internal/tracker"
)

// Status classifies one pairing for the current run.
type Status string

const (
	// StatusTested means the run produced an outcome for the pairing.
	StatusTested Status = "tested"

	// StatusNotTested means the collection is associated but the run
	// produced no outcome for it.
	StatusNotTested Status = "not-tested"

	// StatusDisassociated means an open issue tracks the pairing but the
	// collection is no longer in the service's association set.
	StatusDisassociated Status = "disassociated"
)

// Pairing is one (service, collection) combination under consideration.
type Pairing struct {
	Key        identity.Key
	Collection catalog.Collection
	Status     Status
	Outcome    *TestOutcome // set only when Status is StatusTested
}

// ReconciliationInput is everything the engine needs for one pass: every
// associated pairing plus disassociated pairings recovered from open issues,
// in deterministic key order.
type ReconciliationInput struct {
	Service  catalog.Service
	Pairings []Pairing
}

// Collect assembles the reconciliation input for one service. associated is
// the authoritative membership set from discovery; run holds what the test
// execution actually produced; tracked is the current set of open issues
// bearing the marker label (all services, filtered here).
func Collect(service catalog.Service, associated []catalog.Collection, run RunOutcomes, tracked []tracker.TrackedIssue) ReconciliationInput {
	input := ReconciliationInput{Service: service}
	seen := make(map[identity.Key]string, len(associated))

	for _, collection := range associated {
		key := identity.DeriveKey(service, collection)
		if _, ok := seen[key]; ok {
			// Duplicate discovery entry; keep the first.
			continue
		}
		seen[key] = collection.ConceptID

		pairing := Pairing{
			Key:        key,
			Collection: collection,
			Status:     StatusNotTested,
		}
		if result, tested := run.OutcomeFor(collection.ConceptID); tested {
			pairing.Status = StatusTested
			pairing.Outcome = &result
		}
		input.Pairings = append(input.Pairings, pairing)
	}

	// Open issues for this service whose collection left the association
	// set become disassociated pairings. Collection metadata is recovered
	// from the issue itself since discovery no longer mentions it.
	for _, issue := range tracked {
		key, err := issue.Key()
		if err != nil {
			// Not an autotester-managed issue shape; leave it alone.
			continue
		}
		if key.ServiceConceptID() != service.ConceptID {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = key.CollectionConceptID()
		input.Pairings = append(input.Pairings, Pairing{
			Key:        key,
			Collection: identity.CollectionFromIssue(issue.Title, issue.Labels),
			Status:     StatusDisassociated,
		})
	}

	// Deterministic order keeps logs and test assertions stable.
	sort.Slice(input.Pairings, func(i, j int) bool {
		return input.Pairings[i].Key < input.Pairings[j].Key
	})

	return input
}
