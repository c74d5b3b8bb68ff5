package file

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle status of a file.
//
// The state machine is finite and acyclic:
// pending → processing → {completed | failed}, and any non-deleted state
// → deleted (terminal). failed is distinct from deleted so a failed
// conversion can be retried against the same stored input.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeleted    Status = "deleted"
)

// IsValid checks if the status is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}

// IsTerminal checks if the status is terminal.
func (s Status) IsTerminal() bool {
	return s == StatusDeleted
}

// liveStatuses are the non-deleted states, all of which may transition
// to deleted.
var liveStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// File represents an uploaded file and its derived output.
type File struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID     uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Status      Status    `json:"status" gorm:"not null;index"`
	Name        string    `json:"name" gorm:"not null"`
	StoragePath string    `json:"storage_path" gorm:"not null"`
	OutputPath  *string   `json:"output_path,omitempty"`
	OutputName  *string   `json:"output_name,omitempty"`
	FailReason  *string   `json:"fail_reason,omitempty"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"size_bytes" gorm:"not null;default:0"`
	// ExpiresAt is fixed at creation and never extended; callers needing a
	// longer TTL create a new file record on reprocessing.
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (File) TableName() string {
	return "files"
}

// IsExpired checks if the file's TTL has elapsed. An expired file that is
// not yet deleted is a pending reap, an expected transient the reaper
// resolves asynchronously.
func (f *File) IsExpired(now time.Time) bool {
	return now.After(f.ExpiresAt)
}
