package models

import "time"

// ClassEnrollment captures a student's membership in one class within one batch.
// is_active is a visibility flag orthogonal to the completion state;
// is_passed and final_grade are only meaningful once is_completed is true.
type ClassEnrollment struct {
	ID          string     `db:"id" json:"id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	ClassID     string     `db:"class_id" json:"class_id"`
	BatchID     string     `db:"batch_id" json:"batch_id"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	IsCompleted bool       `db:"is_completed" json:"is_completed"`
	IsPassed    *bool      `db:"is_passed" json:"is_passed,omitempty"`
	FinalGrade  *string    `db:"final_grade" json:"final_grade,omitempty"`
	FinalMarks  *float64   `db:"final_marks" json:"final_marks,omitempty"`
	TotalMarks  *float64   `db:"total_marks" json:"total_marks,omitempty"`
	Attendance  *float64   `db:"attendance" json:"attendance,omitempty"`
	EnrolledBy  string     `db:"enrolled_by" json:"enrolled_by"`
	EnrolledAt  time.Time  `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// ClassEnrollmentDetail enriches ClassEnrollment with joined summaries.
type ClassEnrollmentDetail struct {
	ClassEnrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	ClassName    string `db:"class_name" json:"class_name"`
	BatchName    string `db:"batch_name" json:"batch_name"`
}

// ClassEnrollmentFilter provides filters for listing class enrollments.
type ClassEnrollmentFilter struct {
	StudentID   string
	ClassID     string
	BatchID     string
	IsActive    *bool
	IsCompleted *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// BulkEnrollResult reports the outcome of a bulk class enrollment.
type BulkEnrollResult struct {
	Enrolled int    `json:"enrolled"`
	Skipped  int    `json:"skipped"`
	Message  string `json:"message,omitempty"`
}
