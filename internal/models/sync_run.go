package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunKindSyncPage = "sync_page"
	RunKindSyncAll  = "sync_all"
	RunKindImport   = "import"
	RunKindReminder = "reminder"
)

// SyncRun records the outcome of one sync, import or reminder invocation.
type SyncRun struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	RunID      string         `gorm:"uniqueIndex;size:36;not null" json:"runId"`
	Kind       string         `gorm:"size:20;not null;index" json:"kind"`
	Success    bool           `gorm:"not null" json:"success"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	Stats      datatypes.JSON `gorm:"not null" json:"stats"`
	StartedAt  time.Time      `gorm:"not null;index" json:"startedAt"`
	FinishedAt time.Time      `gorm:"not null" json:"finishedAt"`
}
