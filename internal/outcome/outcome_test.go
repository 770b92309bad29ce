package outcome

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var testObservedAt = time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test_output.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write artifact: %v", err)
	}
	return path
}

func TestLoadRunOutcomes_LegacyFormat(t *testing.T) {
	path := writeArtifact(t, `[
		{"short_name": "ATL03", "version": "006", "concept_id": "C200-PROV",
		 "error": "request timed out", "url": "https://example.com/jobs/1"}
	]`)

	run, err := LoadRunOutcomes(path, testObservedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run.Executed {
		t.Error("expected run to be marked executed")
	}
	if run.TestedIDs != nil {
		t.Error("legacy format should carry no tested list")
	}

	result, tested := run.OutcomeFor("C200-PROV")
	if !tested {
		t.Fatal("expected C200-PROV to be tested")
	}
	if result.Passed {
		t.Error("expected C200-PROV to fail")
	}
	if result.Error != "request timed out" {
		t.Errorf("unexpected error text: %q", result.Error)
	}
	if result.ReproductionURL != "https://example.com/jobs/1" {
		t.Errorf("unexpected reproduction URL: %q", result.ReproductionURL)
	}

	// Absent from the failure list means the collection passed.
	result, tested = run.OutcomeFor("C201-PROV")
	if !tested || !result.Passed {
		t.Errorf("expected C201-PROV to pass, got tested=%v passed=%v", tested, result.Passed)
	}
}

func TestLoadRunOutcomes_StructuredFormat(t *testing.T) {
	path := writeArtifact(t, `{
		"tested": ["C200-PROV"],
		"failures": [
			{"short_name": "ATL03", "version": "006", "concept_id": "C200-PROV", "error": "bad output"}
		]
	}`)

	run, err := LoadRunOutcomes(path, testObservedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, tested := run.OutcomeFor("C200-PROV"); !tested {
		t.Error("expected C200-PROV to be tested")
	}

	// Not in the tested list: excluded from reconciliation, not passing.
	if _, tested := run.OutcomeFor("C201-PROV"); tested {
		t.Error("expected C201-PROV to be untested")
	}
}

func TestLoadRunOutcomes_FailureImpliesTested(t *testing.T) {
	path := writeArtifact(t, `{
		"tested": [],
		"failures": [
			{"short_name": "ATL03", "version": "006", "concept_id": "C200-PROV", "error": "boom"}
		]
	}`)

	run, err := LoadRunOutcomes(path, testObservedAt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, tested := run.OutcomeFor("C200-PROV")
	if !tested || result.Passed {
		t.Errorf("expected recorded failure to count as tested, got tested=%v passed=%v", tested, result.Passed)
	}
}

func TestLoadRunOutcomes_MissingFile(t *testing.T) {
	run, err := LoadRunOutcomes(filepath.Join(t.TempDir(), "absent.json"), testObservedAt)
	if err != nil {
		t.Fatalf("missing artifact should not error: %v", err)
	}
	if run.Executed {
		t.Error("expected run to be marked not executed")
	}
	if _, tested := run.OutcomeFor("C200-PROV"); tested {
		t.Error("nothing is tested when the run never executed")
	}
}

func TestLoadRunOutcomes_MissingConceptID(t *testing.T) {
	path := writeArtifact(t, `[{"short_name": "ATL03", "version": "006", "error": "boom"}]`)
	if _, err := LoadRunOutcomes(path, testObservedAt); err == nil {
		t.Error("expected error for failure record without concept_id")
	}
}

func TestLoadRunOutcomes_Garbage(t *testing.T) {
	path := writeArtifact(t, `not json`)
	if _, err := LoadRunOutcomes(path, testObservedAt); err == nil {
		t.Error("expected error for malformed artifact")
	}
}
