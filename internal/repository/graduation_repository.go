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

const graduationColumns = `id, batch_id, student_id, graduation_date, overall_grade, overall_percentage, cgpa, certificate_no, certificate_url, is_awarded, awarded_at, created_by, created_at, updated_at`

// GraduationRepository handles persistence of graduation records.
type GraduationRepository struct {
	db *sqlx.DB
}

// NewGraduationRepository constructs the repository.
func NewGraduationRepository(db *sqlx.DB) *GraduationRepository {
	return &GraduationRepository{db: db}
}

// FindByID returns a graduation by its ID.
func (r *GraduationRepository) FindByID(ctx context.Context, id string) (*models.Graduation, error) {
	query := fmt.Sprintf(`SELECT %s FROM graduations WHERE id = $1`, graduationColumns)
	var graduation models.Graduation
	if err := r.db.GetContext(ctx, &graduation, query, id); err != nil {
		return nil, err
	}
	return &graduation, nil
}

// FindByBatchStudent returns the graduation for (batch, student) when present.
func (r *GraduationRepository) FindByBatchStudent(ctx context.Context, batchID, studentID string) (*models.Graduation, error) {
	query := fmt.Sprintf(`SELECT %s FROM graduations WHERE batch_id = $1 AND student_id = $2 LIMIT 1`, graduationColumns)
	var graduation models.Graduation
	if err := r.db.GetContext(ctx, &graduation, query, batchID, studentID); err != nil {
		return nil, err
	}
	return &graduation, nil
}

// GraduatedStudentIDs returns the subset of studentIDs already graduated in the batch.
func (r *GraduationRepository) GraduatedStudentIDs(ctx context.Context, batchID string, studentIDs []string) (map[string]bool, error) {
	graduated := make(map[string]bool, len(studentIDs))
	if len(studentIDs) == 0 {
		return graduated, nil
	}
	placeholders := make([]string, len(studentIDs))
	args := make([]interface{}, 0, len(studentIDs)+1)
	args = append(args, batchID)
	for i, id := range studentIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT student_id FROM graduations WHERE batch_id = $1 AND student_id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("check graduated students: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		graduated[id] = true
	}
	return graduated, nil
}

// ListByBatch returns every graduation of a batch in certificate order,
// with joined summaries. Used by the register exports.
func (r *GraduationRepository) ListByBatch(ctx context.Context, batchID string) ([]models.GraduationDetail, error) {
	const query = `SELECT g.id, g.batch_id, g.student_id, g.graduation_date, g.overall_grade, g.overall_percentage,
        g.cgpa, g.certificate_no, g.certificate_url, g.is_awarded, g.awarded_at, g.created_by, g.created_at, g.updated_at,
        s.full_name AS student_name, b.name AS batch_name
        FROM graduations g
        LEFT JOIN users s ON s.id = g.student_id
        LEFT JOIN batches b ON b.id = g.batch_id
        WHERE g.batch_id = $1 ORDER BY g.certificate_no`
	var graduations []models.GraduationDetail
	if err := r.db.SelectContext(ctx, &graduations, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch graduations: %w", err)
	}
	return graduations, nil
}

// List returns graduations filtered by the provided criteria.
func (r *GraduationRepository) List(ctx context.Context, filter models.GraduationFilter) ([]models.GraduationDetail, int, error) {
	base := `FROM graduations g
LEFT JOIN users s ON s.id = g.student_id
LEFT JOIN batches b ON b.id = g.batch_id`
	var conditions []string
	var args []interface{}

	if filter.BatchID != "" {
		conditions = append(conditions, fmt.Sprintf("g.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.IsAwarded != nil {
		conditions = append(conditions, fmt.Sprintf("g.is_awarded = $%d", len(args)+1))
		args = append(args, *filter.IsAwarded)
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

	query := fmt.Sprintf(`SELECT g.id, g.batch_id, g.student_id, g.graduation_date, g.overall_grade, g.overall_percentage,
        g.cgpa, g.certificate_no, g.certificate_url, g.is_awarded, g.awarded_at, g.created_by, g.created_at, g.updated_at,
        s.full_name AS student_name, b.name AS batch_name
        %s ORDER BY g.certificate_no LIMIT %d OFFSET %d`, base+clause, size, offset)

	var graduations []models.GraduationDetail
	if err := r.db.SelectContext(ctx, &graduations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list graduations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count graduations: %w", err)
	}
	return graduations, total, nil
}

// Create persists a new graduation record.
func (r *GraduationRepository) Create(ctx context.Context, graduation *models.Graduation) error {
	if graduation.ID == "" {
		graduation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if graduation.CreatedAt.IsZero() {
		graduation.CreatedAt = now
	}
	graduation.UpdatedAt = now
	const query = `INSERT INTO graduations (id, batch_id, student_id, graduation_date, overall_grade, overall_percentage, cgpa, certificate_no, certificate_url, is_awarded, awarded_at, created_by, created_at, updated_at)
        VALUES (:id, :batch_id, :student_id, :graduation_date, :overall_grade, :overall_percentage, :cgpa, :certificate_no, :certificate_url, :is_awarded, :awarded_at, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, graduation); err != nil {
		return fmt.Errorf("create graduation: %w", err)
	}
	return nil
}

// Update writes the mutable fields of a graduation.
func (r *GraduationRepository) Update(ctx context.Context, graduation *models.Graduation) error {
	graduation.UpdatedAt = time.Now().UTC()
	const query = `UPDATE graduations SET graduation_date = :graduation_date, overall_grade = :overall_grade,
        overall_percentage = :overall_percentage, cgpa = :cgpa, certificate_url = :certificate_url,
        is_awarded = :is_awarded, awarded_at = :awarded_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, graduation); err != nil {
		return fmt.Errorf("update graduation: %w", err)
	}
	return nil
}

// Delete removes a graduation row.
func (r *GraduationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM graduations WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete graduation: %w", err)
	}
	return nil
}

// Statistics aggregates counts, average percentage and grade distribution,
// optionally scoped to one batch.
func (r *GraduationRepository) Statistics(ctx context.Context, batchID string) (*models.GraduationStatistics, error) {
	where := ""
	var args []interface{}
	if batchID != "" {
		where = " WHERE batch_id = $1"
		args = append(args, batchID)
	}

	summaryQuery := fmt.Sprintf(`SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE is_awarded) AS awarded,
        COALESCE(AVG(overall_percentage), 0) AS average_percentage
        FROM graduations%s`, where)
	var summary struct {
		Total             int     `db:"total"`
		Awarded           int     `db:"awarded"`
		AveragePercentage float64 `db:"average_percentage"`
	}
	if err := r.db.GetContext(ctx, &summary, summaryQuery, args...); err != nil {
		return nil, fmt.Errorf("graduation summary: %w", err)
	}

	distQuery := fmt.Sprintf(`SELECT overall_grade, COUNT(*) AS count FROM graduations%s GROUP BY overall_grade ORDER BY overall_grade`, where)
	var distribution []models.GradeCount
	if err := r.db.SelectContext(ctx, &distribution, distQuery, args...); err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("grade distribution: %w", err)
		}
	}

	return &models.GraduationStatistics{
		Total:             summary.Total,
		Awarded:           summary.Awarded,
		AveragePercentage: summary.AveragePercentage,
		GradeDistribution: distribution,
	}, nil
}
