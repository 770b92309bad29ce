package outcome

import (
	"testing"
	"time"

	"github.com/autotester/autotester/internal/catalog"
	"github.com/autotester/autotester/internal/identity"
	"github.com/autotester/autotester/internal/tracker"
)

var (
	collectorService = catalog.Service{Name: "regridder", ConceptID: "S1"}
	collectionA      = catalog.Collection{ShortName: "A", Version: "1", ConceptID: "C-A"}
	collectionB      = catalog.Collection{ShortName: "B", Version: "2", ConceptID: "C-B"}
)

func failingRun(conceptIDs ...string) RunOutcomes {
	run := RunOutcomes{
		Executed:   true,
		Failures:   make(map[string]FailureRecord),
		ObservedAt: time.Now(),
	}
	for _, id := range conceptIDs {
		run.Failures[id] = FailureRecord{ConceptID: id, Error: "boom"}
	}
	return run
}

func trackedIssue(service catalog.Service, collection catalog.Collection) tracker.TrackedIssue {
	labels := identity.ReplaceStateLabel(
		identity.Labels("autotester", service, collection), tracker.StateFailing)
	return tracker.TrackedIssue{
		Number: 1,
		Title:  identity.Title(service, collection),
		Labels: labels,
		Body:   "",
	}
}

func TestCollect_Statuses(t *testing.T) {
	associated := []catalog.Collection{collectionA, collectionB}

	input := Collect(collectorService, associated, failingRun("C-A"), nil)
	if len(input.Pairings) != 2 {
		t.Fatalf("expected 2 pairings, got %d", len(input.Pairings))
	}

	// Sorted by key: S1/C-A before S1/C-B.
	a, b := input.Pairings[0], input.Pairings[1]
	if a.Key != "S1/C-A" || b.Key != "S1/C-B" {
		t.Fatalf("unexpected order: %s, %s", a.Key, b.Key)
	}
	if a.Status != StatusTested || a.Outcome == nil || a.Outcome.Passed {
		t.Errorf("expected A to be a tested failure, got %+v", a)
	}
	if b.Status != StatusTested || b.Outcome == nil || !b.Outcome.Passed {
		t.Errorf("expected B to be a tested pass, got %+v", b)
	}
}

func TestCollect_NotTested(t *testing.T) {
	run := RunOutcomes{Executed: false}
	input := Collect(collectorService, []catalog.Collection{collectionA}, run, nil)
	if input.Pairings[0].Status != StatusNotTested {
		t.Errorf("expected not-tested, got %s", input.Pairings[0].Status)
	}
	if input.Pairings[0].Outcome != nil {
		t.Error("not-tested pairing should carry no outcome")
	}
}

func TestCollect_Disassociated(t *testing.T) {
	// B has an open issue but is no longer associated.
	tracked := []tracker.TrackedIssue{trackedIssue(collectorService, collectionB)}

	input := Collect(collectorService, []catalog.Collection{collectionA}, failingRun(), tracked)
	if len(input.Pairings) != 2 {
		t.Fatalf("expected 2 pairings, got %d", len(input.Pairings))
	}

	b := input.Pairings[1]
	if b.Key != "S1/C-B" || b.Status != StatusDisassociated {
		t.Errorf("expected disassociated pairing for B, got %+v", b)
	}
	if b.Collection.ShortName != "B" || b.Collection.Version != "2" {
		t.Errorf("expected collection metadata recovered from issue, got %+v", b.Collection)
	}
}

func TestCollect_IgnoresOtherServices(t *testing.T) {
	otherService := catalog.Service{Name: "subsetter", ConceptID: "S2"}
	tracked := []tracker.TrackedIssue{trackedIssue(otherService, collectionB)}

	input := Collect(collectorService, []catalog.Collection{collectionA}, failingRun(), tracked)
	if len(input.Pairings) != 1 {
		t.Errorf("expected another service's issue to be ignored, got %d pairings", len(input.Pairings))
	}
}

func TestCollect_DuplicateDiscoveryEntries(t *testing.T) {
	duplicate := catalog.Collection{ShortName: "dup", Version: "1", ConceptID: "C-A"}

	input := Collect(collectorService, []catalog.Collection{collectionA, duplicate}, failingRun(), nil)
	if len(input.Pairings) != 1 {
		t.Errorf("expected duplicate entry to collapse, got %d pairings", len(input.Pairings))
	}
	if input.Pairings[0].Collection.ShortName != "A" {
		t.Errorf("expected first entry to win, got %+v", input.Pairings[0].Collection)
	}
}

func TestCollect_TrackedIssueAlsoAssociated(t *testing.T) {
	tracked := []tracker.TrackedIssue{trackedIssue(collectorService, collectionA)}

	input := Collect(collectorService, []catalog.Collection{collectionA}, failingRun("C-A"), tracked)
	if len(input.Pairings) != 1 {
		t.Fatalf("expected a single pairing, got %d", len(input.Pairings))
	}
	if input.Pairings[0].Status != StatusTested {
		t.Errorf("association set wins over issue-derived status, got %s", input.Pairings[0].Status)
	}
}
