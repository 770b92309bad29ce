package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestLoadDiscovery(t *testing.T) {
	path := writeFile(t, "discovery.json", `[
		{
			"name": "harmony-regridder",
			"concept_id": "S100-PROV",
			"collections": [
				{"short_name": "ATL03", "version": "006", "concept_id": "C200-PROV"},
				{"short_name": "ATL08", "version": "006", "concept_id": "C201-PROV"}
			]
		}
	]`)

	services, err := LoadDiscovery(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(services) != 1 {
		t.Fatalf("expected 1 service, got %d", len(services))
	}
	if services[0].ConceptID != "S100-PROV" {
		t.Errorf("unexpected service concept ID: %s", services[0].ConceptID)
	}
	if len(services[0].Collections) != 2 {
		t.Errorf("expected 2 collections, got %d", len(services[0].Collections))
	}
	if services[0].Collections[1].ShortName != "ATL08" {
		t.Errorf("unexpected collection: %+v", services[0].Collections[1])
	}
}

func TestLoadDiscovery_MissingConceptID(t *testing.T) {
	path := writeFile(t, "discovery.json", `[{"name": "no-id", "collections": []}]`)
	if _, err := LoadDiscovery(path); err == nil {
		t.Error("expected error for service without concept_id")
	}
}

func TestLoadDiscovery_MissingFile(t *testing.T) {
	if _, err := LoadDiscovery(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing discovery file")
	}
}

func TestFindService(t *testing.T) {
	services := []Service{
		{Name: "a", ConceptID: "S1"},
		{Name: "b", ConceptID: "S2"},
	}

	svc, ok := FindService(services, "S2")
	if !ok || svc.Name != "b" {
		t.Errorf("expected service b, got %+v (found=%v)", svc, ok)
	}

	if _, ok := FindService(services, "S3"); ok {
		t.Error("expected S3 to be absent")
	}
}

func TestLoadServiceMapping(t *testing.T) {
	path := writeFile(t, "services.yml", `
production:
  S100-PROV: tests/regridder
uat:
  S100-UAT: tests/regridder
  S200-UAT: tests/subsetter
`)

	mapping, err := LoadServiceMapping(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir := mapping.TestDirectory("production", "S100-PROV"); dir != "tests/regridder" {
		t.Errorf("unexpected production directory: %q", dir)
	}
	if dir := mapping.TestDirectory("uat", "S200-UAT"); dir != "tests/subsetter" {
		t.Errorf("unexpected uat directory: %q", dir)
	}
	if dir := mapping.TestDirectory("production", "S999-PROV"); dir != "" {
		t.Errorf("expected empty directory for unmapped service, got %q", dir)
	}
	if dir := mapping.TestDirectory("uat", "S100-PROV"); dir != "" {
		t.Errorf("expected production entry to be invisible in uat, got %q", dir)
	}
}
