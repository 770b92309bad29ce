// Package outcome parses the per-run test output artifact and assembles the
// reconciliation input for one service: the status of every collection in
// the association set plus any tracked issue whose collection has been
// disassociated.
package outcome

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// TestOutcome is the result of running the test suite for one pairing.
type TestOutcome struct {
	Passed          bool
	Error           string
	ReproductionURL string
	ObservedAt      time.Time
}

// FailureRecord is one entry of the test output artifact, written by the
// external test-execution collaborator for every failed collection.
type FailureRecord struct {
	ShortName string `json:"short_name"`
	Version   string `json:"version"`
	ConceptID string `json:"concept_id"`
	Error     string `json:"error"`
	URL       string `json:"url"`
}

// RunOutcomes holds what the current test run actually produced. Collections
// absent from the tested set are excluded from reconciliation rather than
// treated as passing or failing, so a partially executed run cannot produce
// false signals.
type RunOutcomes struct {
	// Executed is false when no artifact exists for this run, meaning the
	// test run never produced results and every collection is untested.
	Executed bool

	// TestedIDs is the set of collection concept IDs the run actually
	// tested. A nil set (legacy artifact format) means every associated
	// collection counts as tested.
	TestedIDs map[string]bool

	// Failures maps collection concept IDs to their failure records.
	Failures map[string]FailureRecord

	// ObservedAt is the timestamp of this run.
	ObservedAt time.Time
}

// artifactFile is the structured artifact format. The artifact may also be a
// bare JSON array of failure records (the legacy format, which carries no
// tested list).
type artifactFile struct {
	Tested   []string        `json:"tested"`
	Failures []FailureRecord `json:"failures"`
}

// LoadRunOutcomes reads the test output artifact for one service. A missing
// file yields an unexecuted run, never an error: the nightly workflow skips
// writing the artifact entirely when test execution itself fails.
func LoadRunOutcomes(path string, observedAt time.Time) (RunOutcomes, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return RunOutcomes{Executed: false, ObservedAt: observedAt}, nil
	}
	if err != nil {
		return RunOutcomes{}, fmt.Errorf("failed to read test output: %w", err)
	}

	run := RunOutcomes{
		Executed:   true,
		Failures:   make(map[string]FailureRecord),
		ObservedAt: observedAt,
	}

	var failures []FailureRecord

	// Try the structured format first, fall back to the legacy bare array.
	var structured artifactFile
	if err := json.Unmarshal(data, &structured); err == nil {
		failures = structured.Failures
		if structured.Tested != nil {
			run.TestedIDs = make(map[string]bool, len(structured.Tested))
			for _, id := range structured.Tested {
				run.TestedIDs[id] = true
			}
		}
	} else {
		if err := json.Unmarshal(data, &failures); err != nil {
			return RunOutcomes{}, fmt.Errorf("failed to parse test output %s: %w", path, err)
		}
	}

	for _, failure := range failures {
		if failure.ConceptID == "" {
			return RunOutcomes{}, fmt.Errorf("test output %s: failure record for %s %s has no concept_id",
				path, failure.ShortName, failure.Version)
		}
		run.Failures[failure.ConceptID] = failure
		if run.TestedIDs != nil {
			// A recorded failure implies the collection was tested even
			// if the tested list omitted it.
			run.TestedIDs[failure.ConceptID] = true
		}
	}

	return run, nil
}

// OutcomeFor returns the outcome for a collection concept ID and whether the
// collection was tested this run at all.
func (r RunOutcomes) OutcomeFor(conceptID string) (TestOutcome, bool) {
	if !r.Executed {
		return TestOutcome{}, false
	}
	if r.TestedIDs != nil && !r.TestedIDs[conceptID] {
		return TestOutcome{}, false
	}

	if failure, ok := r.Failures[conceptID]; ok {
		return TestOutcome{
			Passed:          false,
			Error:           failure.Error,
			ReproductionURL: failure.URL,
			ObservedAt:      r.ObservedAt,
		}, true
	}

	// Present in the association set, tested, and not in the failure list:
	// the pairing passed.
	return TestOutcome{Passed: true, ObservedAt: r.ObservedAt}, true
}
