package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/autotester/autotester/internal/reconcile"
)

// Store records reconciliation runs in a relational database.
type Store struct {
	db *gorm.DB
}

// Connect opens the history database and runs migrations. A postgres:// or
// postgresql:// DSN selects the postgres driver (shared central history);
// anything else is treated as a sqlite file path (local CI artifact).
func Connect(dsn string) (*Store, error) {
	dialector := sqlite.Open(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	if err := db.AutoMigrate(&Run{}, &PairingRecord{}); err != nil {
		return nil, fmt.Errorf("failed to run history migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an already open database. Used by tests.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RecordPass persists one reconciliation pass with its per-pairing details.
func (s *Store) RecordPass(environment string, summary reconcile.Summary, finishedAt time.Time) (*Run, error) {
	status := RunStatusOK
	if !summary.Ok() {
		status = RunStatusFailed
	}

	run := &Run{
		UUID:             uuid.NewString(),
		ServiceConceptID: summary.Service.ConceptID,
		ServiceName:      summary.Service.Name,
		Environment:      environment,
		Status:           status,
		CreatedIssues:    summary.Created,
		UpdatedIssues:    summary.Updated,
		ClosedIssues:     summary.Closed,
		Unchanged:        summary.Unchanged,
		FailedPairings:   summary.Failed,
		StartedAt:        summary.StartedAt,
		FinishedAt:       finishedAt,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}

		for _, result := range summary.Results {
			record := &PairingRecord{
				RunID:               run.ID,
				IdentityKey:         string(result.Key),
				CollectionConceptID: result.Collection.ConceptID,
				ShortName:           result.Collection.ShortName,
				Version:             result.Collection.Version,
				Status:              string(result.Status),
				Action:              string(result.Action),
				IssueNumber:         result.IssueNumber,
			}
			if result.Err != nil {
				record.Error = result.Err.Error()
			}
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	return run, nil
}

// RecentRuns returns the most recent runs for a service, newest first.
func (s *Store) RecentRuns(serviceConceptID string, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.Where("service_concept_id = ?", serviceConceptID).
		Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// PairingHistory returns the recorded results for one identity key, newest
// first. The engine never deletes tracking history; this is where it
// accumulates.
func (s *Store) PairingHistory(key string, limit int) ([]PairingRecord, error) {
	var records []PairingRecord
	err := s.db.Where("identity_key = ?", key).
		Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
