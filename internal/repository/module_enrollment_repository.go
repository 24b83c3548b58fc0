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

const moduleEnrollmentColumns = `id, module_id, student_id, enrolled_by, progress, is_active, enrolled_at, completed_at`

// ModuleEnrollmentRepository handles persistence of module enrollments.
// Mutations that touch the enrollment row, the module counter and the
// activity log are executed in a single transaction.
type ModuleEnrollmentRepository struct {
	db *sqlx.DB
}

// NewModuleEnrollmentRepository constructs the repository.
func NewModuleEnrollmentRepository(db *sqlx.DB) *ModuleEnrollmentRepository {
	return &ModuleEnrollmentRepository{db: db}
}

// FindByID returns a module enrollment by its ID.
func (r *ModuleEnrollmentRepository) FindByID(ctx context.Context, id string) (*models.ModuleEnrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM module_enrollments WHERE id = $1`, moduleEnrollmentColumns)
	var enrollment models.ModuleEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists checks whether an enrollment exists for (student, module).
func (r *ModuleEnrollmentRepository) Exists(ctx context.Context, studentID, moduleID string) (bool, error) {
	const query = `SELECT 1 FROM module_enrollments WHERE student_id = $1 AND module_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, moduleID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check module enrollment: %w", err)
	}
	return true, nil
}

// EnrolledStudentIDs returns the subset of studentIDs already enrolled in the module.
func (r *ModuleEnrollmentRepository) EnrolledStudentIDs(ctx context.Context, moduleID string, studentIDs []string) (map[string]bool, error) {
	enrolled := make(map[string]bool, len(studentIDs))
	if len(studentIDs) == 0 {
		return enrolled, nil
	}
	placeholders := make([]string, len(studentIDs))
	args := make([]interface{}, 0, len(studentIDs)+1)
	args = append(args, moduleID)
	for i, id := range studentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT student_id FROM module_enrollments WHERE module_id = $1 AND student_id IN (%s)`, strings.Join(placeholders, ","))
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

// List returns module enrollments filtered by the provided criteria.
func (r *ModuleEnrollmentRepository) List(ctx context.Context, filter models.ModuleEnrollmentFilter) ([]models.ModuleEnrollmentDetail, int, error) {
	base := `FROM module_enrollments e
LEFT JOIN users s ON s.id = e.student_id
LEFT JOIN modules m ON m.id = e.module_id`
	var conditions []string
	var args []interface{}

	if filter.ModuleID != "" {
		conditions = append(conditions, fmt.Sprintf("e.module_id = $%d", len(args)+1))
		args = append(args, filter.ModuleID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("e.is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT e.id, e.module_id, e.student_id, e.enrolled_by, e.progress, e.is_active, e.enrolled_at, e.completed_at,
        s.full_name AS student_name, m.title AS module_title
        %s ORDER BY e.enrolled_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var enrollments []models.ModuleEnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list module enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count module enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListByModule returns every enrollment of a module for in-memory aggregation.
func (r *ModuleEnrollmentRepository) ListByModule(ctx context.Context, moduleID string) ([]models.ModuleEnrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM module_enrollments WHERE module_id = $1`, moduleEnrollmentColumns)
	var enrollments []models.ModuleEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, moduleID); err != nil {
		return nil, fmt.Errorf("list module enrollments: %w", err)
	}
	return enrollments, nil
}

// CountLessonProgress returns the number of lesson progress rows for an enrollment.
func (r *ModuleEnrollmentRepository) CountLessonProgress(ctx context.Context, enrollmentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM lesson_progress WHERE enrollment_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, enrollmentID); err != nil {
		return 0, fmt.Errorf("count lesson progress: %w", err)
	}
	return count, nil
}

const moduleEnrollmentInsert = `INSERT INTO module_enrollments (id, module_id, student_id, enrolled_by, progress, is_active, enrolled_at, completed_at)
        VALUES (:id, :module_id, :student_id, :enrolled_by, :progress, :is_active, :enrolled_at, :completed_at)`

// CreateWithActivity inserts the enrollment, increments the module counter and
// appends the activity row atomically.
func (r *ModuleEnrollmentRepository) CreateWithActivity(ctx context.Context, enrollment *models.ModuleEnrollment, activity *models.ActivityLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if _, err := tx.NamedExecContext(ctx, moduleEnrollmentInsert, enrollment); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create module enrollment: %w", err)
	}
	if err := incrementModuleCounter(ctx, tx, enrollment.ModuleID, 1); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := insertActivity(ctx, tx, activity); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit module enrollment: %w", err)
	}
	return nil
}

// BulkCreateWithActivity inserts all enrollments, bumps the counter by the
// inserted count and appends one activity row per student, atomically.
func (r *ModuleEnrollmentRepository) BulkCreateWithActivity(ctx context.Context, enrollments []models.ModuleEnrollment, activities []models.ActivityLog) error {
	if len(enrollments) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range enrollments {
		if enrollments[i].ID == "" {
			enrollments[i].ID = uuid.NewString()
		}
		if enrollments[i].EnrolledAt.IsZero() {
			enrollments[i].EnrolledAt = now
		}
		if _, err := tx.NamedExecContext(ctx, moduleEnrollmentInsert, enrollments[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("bulk create module enrollment: %w", err)
		}
	}
	if err := incrementModuleCounter(ctx, tx, enrollments[0].ModuleID, len(enrollments)); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	for i := range activities {
		if err := insertActivity(ctx, tx, &activities[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk module enrollment: %w", err)
	}
	return nil
}

// DeleteWithActivity removes the enrollment, decrements the counter and logs
// the removal atomically.
func (r *ModuleEnrollmentRepository) DeleteWithActivity(ctx context.Context, enrollmentID, moduleID string, activity *models.ActivityLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM module_enrollments WHERE id = $1`, enrollmentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete module enrollment: %w", err)
	}
	if err := incrementModuleCounter(ctx, tx, moduleID, -1); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := insertActivity(ctx, tx, activity); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit module unenrollment: %w", err)
	}
	return nil
}

// SetActiveWithActivity flips is_active and logs the change atomically.
func (r *ModuleEnrollmentRepository) SetActiveWithActivity(ctx context.Context, enrollmentID string, active bool, activity *models.ActivityLog) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE module_enrollments SET is_active = $2 WHERE id = $1`, enrollmentID, active); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("toggle module enrollment: %w", err)
	}
	if err := insertActivity(ctx, tx, activity); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment toggle: %w", err)
	}
	return nil
}

func incrementModuleCounter(ctx context.Context, tx *sqlx.Tx, moduleID string, delta int) error {
	const query = `UPDATE modules SET enrollment_count = enrollment_count + $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, moduleID, delta, time.Now().UTC()); err != nil {
		return fmt.Errorf("update module enrollment count: %w", err)
	}
	return nil
}
