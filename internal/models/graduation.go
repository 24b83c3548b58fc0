package models

import "time"

// OverallGrade is the letter grade derived from the overall percentage.
type OverallGrade string

const (
	GradeAPlus OverallGrade = "A_PLUS"
	GradeA     OverallGrade = "A"
	GradeBPlus OverallGrade = "B_PLUS"
	GradeB     OverallGrade = "B"
	GradeCPlus OverallGrade = "C_PLUS"
	GradeC     OverallGrade = "C"
	GradeD     OverallGrade = "D"
	GradeF     OverallGrade = "F"
)

// Graduation is a student's completion record for a batch.
type Graduation struct {
	ID                string       `db:"id" json:"id"`
	BatchID           string       `db:"batch_id" json:"batch_id"`
	StudentID         string       `db:"student_id" json:"student_id"`
	GraduationDate    time.Time    `db:"graduation_date" json:"graduation_date"`
	OverallGrade      OverallGrade `db:"overall_grade" json:"overall_grade"`
	OverallPercentage float64      `db:"overall_percentage" json:"overall_percentage"`
	CGPA              float64      `db:"cgpa" json:"cgpa"`
	CertificateNo     string       `db:"certificate_no" json:"certificate_no"`
	CertificateURL    *string      `db:"certificate_url" json:"certificate_url,omitempty"`
	IsAwarded         bool         `db:"is_awarded" json:"is_awarded"`
	AwardedAt         *time.Time   `db:"awarded_at" json:"awarded_at,omitempty"`
	CreatedBy         string       `db:"created_by" json:"created_by"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// GraduationDetail enriches Graduation with joined summaries.
type GraduationDetail struct {
	Graduation
	StudentName string `db:"student_name" json:"student_name"`
	BatchName   string `db:"batch_name" json:"batch_name"`
}

// GraduationFilter provides filters for listing graduations.
type GraduationFilter struct {
	BatchID   string
	StudentID string
	IsAwarded *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// AcademicPerformance is derived from a student's completed class enrollments.
type AcademicPerformance struct {
	Percentage float64      `json:"percentage"`
	CGPA       float64      `json:"cgpa"`
	Grade      OverallGrade `json:"grade"`
}

// GraduateBatchResult reports per-batch graduation progress.
type GraduateBatchResult struct {
	Graduated int      `json:"graduated"`
	Skipped   int      `json:"skipped"`
	Failed    []string `json:"failed,omitempty"`
}

// GradeCount is one bucket of the grade distribution.
type GradeCount struct {
	Grade OverallGrade `db:"overall_grade" json:"grade"`
	Count int          `db:"count" json:"count"`
}

// GraduationStatistics aggregates graduation figures, optionally per batch.
type GraduationStatistics struct {
	Total             int          `json:"total"`
	Awarded           int          `json:"awarded"`
	AveragePercentage float64      `json:"average_percentage"`
	GradeDistribution []GradeCount `json:"grade_distribution"`
}
