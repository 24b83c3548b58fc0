package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openlms/lms-api/internal/models"
)

const classEnrollmentColumns = `id, student_id, class_id, batch_id, is_active, is_completed, is_passed, final_grade, final_marks, total_marks, attendance, enrolled_by, enrolled_at, completed_at`

// ClassEnrollmentRepository handles persistence of class enrollments.
type ClassEnrollmentRepository struct {
	db *sqlx.DB
}

// NewClassEnrollmentRepository constructs the repository.
func NewClassEnrollmentRepository(db *sqlx.DB) *ClassEnrollmentRepository {
	return &ClassEnrollmentRepository{db: db}
}

// List returns class enrollments filtered by the provided criteria.
func (r *ClassEnrollmentRepository) List(ctx context.Context, filter models.ClassEnrollmentFilter) ([]models.ClassEnrollmentDetail, int, error) {
	base := `FROM class_enrollments e
LEFT JOIN users s ON s.id = e.student_id
LEFT JOIN classes c ON c.id = e.class_id
LEFT JOIN batches b ON b.id = e.batch_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("e.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("e.is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}
	if filter.IsCompleted != nil {
		conditions = append(conditions, fmt.Sprintf("e.is_completed = $%d", len(args)+1))
		args = append(args, *filter.IsCompleted)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.batch_id, e.is_active, e.is_completed, e.is_passed,
        e.final_grade, e.final_marks, e.total_marks, e.attendance, e.enrolled_by, e.enrolled_at, e.completed_at,
        s.full_name AS student_name, s.email AS student_email, c.name AS class_name, b.name AS batch_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.ClassEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count class enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns a class enrollment by its ID.
func (r *ClassEnrollmentRepository) FindByID(ctx context.Context, id string) (*models.ClassEnrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_enrollments WHERE id = $1`, classEnrollmentColumns)
	var enrollment models.ClassEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns a class enrollment with joined summaries.
func (r *ClassEnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassEnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.batch_id, e.is_active, e.is_completed, e.is_passed,
        e.final_grade, e.final_marks, e.total_marks, e.attendance, e.enrolled_by, e.enrolled_at, e.completed_at,
        s.full_name AS student_name, s.email AS student_email, c.name AS class_name, b.name AS batch_name
        FROM class_enrollments e
        LEFT JOIN users s ON s.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id
        LEFT JOIN batches b ON b.id = e.batch_id
        WHERE e.id = $1`
	var detail models.ClassEnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists checks whether an enrollment exists for (student, class, batch).
func (r *ClassEnrollmentRepository) Exists(ctx context.Context, studentID, classID, batchID string) (bool, error) {
	const query = `SELECT 1 FROM class_enrollments WHERE student_id = $1 AND class_id = $2 AND batch_id = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, classID, batchID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class enrollment: %w", err)
	}
	return true, nil
}

// EnrolledStudentIDs returns the subset of studentIDs already enrolled in (class, batch).
func (r *ClassEnrollmentRepository) EnrolledStudentIDs(ctx context.Context, classID, batchID string, studentIDs []string) (map[string]bool, error) {
	enrolled := make(map[string]bool, len(studentIDs))
	if len(studentIDs) == 0 {
		return enrolled, nil
	}
	placeholders := make([]string, len(studentIDs))
	args := make([]interface{}, 0, len(studentIDs)+2)
	args = append(args, classID, batchID)
	for i, id := range studentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT student_id FROM class_enrollments WHERE class_id = $1 AND batch_id = $2 AND student_id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("check enrolled students: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		enrolled[id] = true
	}
	return enrolled, nil
}

// Create persists a new class enrollment record.
func (r *ClassEnrollmentRepository) Create(ctx context.Context, enrollment *models.ClassEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_enrollments (id, student_id, class_id, batch_id, is_active, is_completed, is_passed, final_grade, final_marks, total_marks, attendance, enrolled_by, enrolled_at, completed_at)
        VALUES (:id, :student_id, :class_id, :batch_id, :is_active, :is_completed, :is_passed, :final_grade, :final_marks, :total_marks, :attendance, :enrolled_by, :enrolled_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create class enrollment: %w", err)
	}
	return nil
}

// BulkCreate inserts all enrollments within one transaction.
func (r *ClassEnrollmentRepository) BulkCreate(ctx context.Context, enrollments []models.ClassEnrollment) error {
	if len(enrollments) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const query = `INSERT INTO class_enrollments (id, student_id, class_id, batch_id, is_active, is_completed, is_passed, final_grade, final_marks, total_marks, attendance, enrolled_by, enrolled_at, completed_at)
        VALUES (:id, :student_id, :class_id, :batch_id, :is_active, :is_completed, :is_passed, :final_grade, :final_marks, :total_marks, :attendance, :enrolled_by, :enrolled_at, :completed_at)`
	now := time.Now().UTC()
	for i := range enrollments {
		if enrollments[i].ID == "" {
			enrollments[i].ID = uuid.NewString()
		}
		if enrollments[i].EnrolledAt.IsZero() {
			enrollments[i].EnrolledAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, enrollments[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("bulk create class enrollment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk enrollment: %w", err)
	}
	return nil
}

// Update writes the mutable fields of a class enrollment.
func (r *ClassEnrollmentRepository) Update(ctx context.Context, enrollment *models.ClassEnrollment) error {
	const query = `UPDATE class_enrollments SET is_active = :is_active, is_completed = :is_completed, is_passed = :is_passed,
        final_grade = :final_grade, final_marks = :final_marks, total_marks = :total_marks, attendance = :attendance,
        completed_at = :completed_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update class enrollment: %w", err)
	}
	return nil
}

// Delete removes a class enrollment row.
func (r *ClassEnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM class_enrollments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete class enrollment: %w", err)
	}
	return nil
}

// ListCompletedByStudentBatch returns completed enrollments for academic derivation.
func (r *ClassEnrollmentRepository) ListCompletedByStudentBatch(ctx context.Context, studentID, batchID string) ([]models.ClassEnrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_enrollments WHERE student_id = $1 AND batch_id = $2 AND is_completed`, classEnrollmentColumns)
	var enrollments []models.ClassEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, batchID); err != nil {
		return nil, fmt.Errorf("list completed enrollments: %w", err)
	}
	return enrollments, nil
}

// ActiveStudentIDsByClass returns the student ids actively enrolled in a class.
func (r *ClassEnrollmentRepository) ActiveStudentIDsByClass(ctx context.Context, classID string) ([]string, error) {
	const query = `SELECT student_id FROM class_enrollments WHERE class_id = $1 AND is_active`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, classID); err != nil {
		return nil, fmt.Errorf("class roster: %w", err)
	}
	return ids, nil
}
