package models

import "time"

// ModuleStatus represents the publication state of a learning module.
type ModuleStatus string

const (
	ModuleStatusDraft     ModuleStatus = "DRAFT"
	ModuleStatusPublished ModuleStatus = "PUBLISHED"
	ModuleStatusArchived  ModuleStatus = "ARCHIVED"
)

// Module represents a self-paced learning module students enroll into.
// EnrollmentCount is a derived counter maintained alongside enrollment writes.
type Module struct {
	ID              string       `db:"id" json:"id"`
	Title           string       `db:"title" json:"title"`
	Description     string       `db:"description" json:"description"`
	Status          ModuleStatus `db:"status" json:"status"`
	EnrollmentCount int          `db:"enrollment_count" json:"enrollment_count"`
	CreatedBy       string       `db:"created_by" json:"created_by"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// ModuleFilter defines filter criteria for listing modules.
type ModuleFilter struct {
	Status    ModuleStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
