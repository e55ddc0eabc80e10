// internal/models/scheduled_job.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledJob is a persisted delayed action for one ticket. At most one job
// of each kind exists per ticket.
type ScheduledJob struct {
	BaseModel
	TicketID  uuid.UUID  `json:"ticket_id" gorm:"type:uuid;not null;uniqueIndex:idx_scheduled_jobs_ticket_kind,priority:1"`
	Kind      JobKind    `json:"kind" gorm:"type:varchar(30);not null;uniqueIndex:idx_scheduled_jobs_ticket_kind,priority:2"`
	DueAt     time.Time  `json:"due_at" gorm:"not null;index"`
	Status    JobStatus  `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Attempts  int        `json:"attempts" gorm:"not null;default:0"`
	LastError string     `json:"last_error,omitempty" gorm:"type:text"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}
