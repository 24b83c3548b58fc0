package models

import "time"

// Activity actions recorded in the activity log.
const (
	ActivityModuleEnroll   = "MODULE_ENROLL"
	ActivityModuleUnenroll = "MODULE_UNENROLL"
	ActivityModuleToggle   = "MODULE_ENROLLMENT_TOGGLE"
	ActivityLogin          = "LOGIN"
	ActivityGraduation     = "GRADUATION"
)

// ActivityLog is a write-only audit record of an administrative action.
type ActivityLog struct {
	ID        string    `db:"id" json:"id"`
	ActorID   *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	Entity    string    `db:"entity" json:"entity"`
	EntityID  *string   `db:"entity_id" json:"entity_id,omitempty"`
	Detail    string    `db:"detail" json:"detail"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ActivityFilter provides filters for listing activity logs.
type ActivityFilter struct {
	ActorID  string
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}
