// Package history persists an audit record of every reconciliation pass.
// Tracking state itself lives in the issue tracker; this store only keeps
// the run log that the nightly workflow and operators consult afterwards.
package history

import "time"

// RunStatus is the overall result of one reconciliation pass.
type RunStatus string

const (
	RunStatusOK     RunStatus = "ok"
	RunStatusFailed RunStatus = "failed"
)

// Run is one reconciliation pass for one service.
type Run struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UUID             string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	ServiceConceptID string    `gorm:"index;size:128;not null" json:"service_concept_id"`
	ServiceName      string    `gorm:"size:255" json:"service_name"`
	Environment      string    `gorm:"size:32" json:"environment"`
	Status           RunStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedIssues    int       `json:"created_issues"`
	UpdatedIssues    int       `json:"updated_issues"`
	ClosedIssues     int       `json:"closed_issues"`
	Unchanged        int       `json:"unchanged"`
	FailedPairings   int       `json:"failed_pairings"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	CreatedAt        time.Time `json:"created_at"`

	Pairings []PairingRecord `gorm:"foreignKey:RunID" json:"pairings,omitempty"`
}

func (Run) TableName() string {
	return "runs"
}

// PairingRecord is the per-pairing detail of a run.
type PairingRecord struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	RunID               uint      `gorm:"not null;index" json:"run_id"`
	IdentityKey         string    `gorm:"index;size:255;not null" json:"identity_key"`
	CollectionConceptID string    `gorm:"size:128" json:"collection_concept_id"`
	ShortName           string    `gorm:"size:255" json:"short_name"`
	Version             string    `gorm:"size:64" json:"version"`
	Status              string    `gorm:"size:32" json:"status"`
	Action              string    `gorm:"size:16" json:"action"`
	IssueNumber         int       `json:"issue_number"`
	Error               string    `gorm:"type:text" json:"error"`
	CreatedAt           time.Time `json:"created_at"`
}

func (PairingRecord) TableName() string {
	return "pairing_records"
}
