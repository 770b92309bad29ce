package history

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autotester/autotester/internal/catalog"
	"github.com/autotester/autotester/internal/outcome"
	"github.com/autotester/autotester/internal/reconcile"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&Run{}, &PairingRecord{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return NewStore(db)
}

func sampleSummary(startedAt time.Time) reconcile.Summary {
	return reconcile.Summary{
		Service:   catalog.Service{Name: "regridder", ConceptID: "S1"},
		StartedAt: startedAt,
		Created:   1,
		Failed:    1,
		Results: []reconcile.PairingResult{
			{
				Key:         "S1/C-A",
				Collection:  catalog.Collection{ShortName: "A", Version: "v1", ConceptID: "C-A"},
				Status:      outcome.StatusTested,
				Action:      reconcile.ActionCreate,
				IssueNumber: 4,
			},
			{
				Key:        "S1/C-B",
				Collection: catalog.Collection{ShortName: "B", Version: "v2", ConceptID: "C-B"},
				Status:     outcome.StatusTested,
				Action:     reconcile.ActionNone,
				Err:        errors.New("connection reset"),
			},
		},
	}
}

func TestRecordPass(t *testing.T) {
	store := setupTestStore(t)
	startedAt := time.Date(2026, 8, 25, 2, 0, 0, 0, time.UTC)

	run, err := store.RecordPass("production", sampleSummary(startedAt), startedAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.UUID == "" {
		t.Error("expected a run UUID")
	}
	if run.Status != RunStatusFailed {
		t.Errorf("a run with failed pairings must record as failed, got %s", run.Status)
	}
	if run.CreatedIssues != 1 || run.FailedPairings != 1 {
		t.Errorf("unexpected counters: %+v", run)
	}
	if run.Environment != "production" {
		t.Errorf("unexpected environment: %s", run.Environment)
	}

	var records []PairingRecord
	if err := store.db.Where("run_id = ?", run.ID).Find(&records).Error; err != nil {
		t.Fatalf("failed to load pairing records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 pairing records, got %d", len(records))
	}
	if records[0].IdentityKey != "S1/C-A" || records[0].IssueNumber != 4 {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[1].Error != "connection reset" {
		t.Errorf("expected the pairing error to persist, got %q", records[1].Error)
	}
}

func TestRecentRuns(t *testing.T) {
	store := setupTestStore(t)
	base := time.Date(2026, 8, 20, 2, 0, 0, 0, time.UTC)

	for day := 0; day < 3; day++ {
		summary := sampleSummary(base.Add(time.Duration(day) * 24 * time.Hour))
		if _, err := store.RecordPass("uat", summary, summary.StartedAt.Add(time.Minute)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	runs, err := store.RecentRuns("S1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Errorf("expected newest run first, got %v then %v", runs[0].StartedAt, runs[1].StartedAt)
	}

	if other, _ := store.RecentRuns("S2", 10); len(other) != 0 {
		t.Errorf("expected no runs for another service, got %d", len(other))
	}
}

func TestPairingHistory(t *testing.T) {
	store := setupTestStore(t)
	base := time.Date(2026, 8, 20, 2, 0, 0, 0, time.UTC)

	for day := 0; day < 2; day++ {
		summary := sampleSummary(base.Add(time.Duration(day) * 24 * time.Hour))
		if _, err := store.RecordPass("uat", summary, summary.StartedAt.Add(time.Minute)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	records, err := store.PairingHistory("S1/C-A", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, record := range records {
		if record.IdentityKey != "S1/C-A" {
			t.Errorf("unexpected key in history: %s", record.IdentityKey)
		}
	}
	if records[0].ID <= records[1].ID {
		t.Errorf("expected newest record first, got IDs %d then %d", records[0].ID, records[1].ID)
	}
}
