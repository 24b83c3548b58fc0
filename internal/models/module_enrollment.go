package models

import "time"

// ModuleEnrollment binds a student to a published module.
type ModuleEnrollment struct {
	ID          string     `db:"id" json:"id"`
	ModuleID    string     `db:"module_id" json:"module_id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	EnrolledBy  string     `db:"enrolled_by" json:"enrolled_by"`
	Progress    float64    `db:"progress" json:"progress"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	EnrolledAt  time.Time  `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// ModuleEnrollmentDetail enriches ModuleEnrollment with joined info.
type ModuleEnrollmentDetail struct {
	ModuleEnrollment
	StudentName string `db:"student_name" json:"student_name"`
	ModuleTitle string `db:"module_title" json:"module_title"`
}

// ModuleEnrollmentFilter provides filters for listing module enrollments.
type ModuleEnrollmentFilter struct {
	ModuleID  string
	StudentID string
	IsActive  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ModuleBulkEnrollResult reports the outcome of bulk module enrollment.
type ModuleBulkEnrollResult struct {
	Enrolled int `json:"enrolled"`
	Skipped  int `json:"skipped"`
}

// EnrollmentStats aggregates a module's enrollment figures.
type EnrollmentStats struct {
	TotalEnrollments  int     `json:"total_enrollments"`
	ActiveEnrollments int     `json:"active_enrollments"`
	CompletedCount    int     `json:"completed_count"`
	AvgProgress       float64 `json:"avg_progress"`
	CompletionRate    float64 `json:"completion_rate"`
}

// LessonProgress records a student's completion state for a single lesson.
// Presence of any row blocks unenrollment from the module.
type LessonProgress struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	LessonID     string    `db:"lesson_id" json:"lesson_id"`
	Completed    bool      `db:"completed" json:"completed"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
