package models

import "time"

// BatchStatus represents the lifecycle state of a batch.
type BatchStatus string

// Batch statuses move forward only: PLANNING -> ACTIVE -> COMPLETED -> GRADUATED.
const (
	BatchStatusPlanning  BatchStatus = "PLANNING"
	BatchStatusActive    BatchStatus = "ACTIVE"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusGraduated BatchStatus = "GRADUATED"
)

// Rank returns the position of the status in the lifecycle, -1 for unknown.
func (s BatchStatus) Rank() int {
	switch s {
	case BatchStatusPlanning:
		return 0
	case BatchStatusActive:
		return 1
	case BatchStatusCompleted:
		return 2
	case BatchStatusGraduated:
		return 3
	}
	return -1
}

// Batch represents a student cohort.
type Batch struct {
	ID             string      `db:"id" json:"id"`
	Name           string      `db:"name" json:"name"`
	Status         BatchStatus `db:"status" json:"status"`
	StartYear      int         `db:"start_year" json:"start_year"`
	EndYear        int         `db:"end_year" json:"end_year"`
	CertificateSeq int         `db:"certificate_seq" json:"-"`
	GraduatedAt    *time.Time  `db:"graduated_at" json:"graduated_at,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassBatch links a class into a batch with a promotion order.
type ClassBatch struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	Sequence  int       `db:"sequence" json:"sequence"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BatchFilter defines filter criteria for listing batches.
type BatchFilter struct {
	Status    BatchStatus
	Year      int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
