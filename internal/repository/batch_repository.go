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

// BatchRepository handles persistence of batches and class-batch links.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// FindByID returns a batch by its ID.
func (r *BatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	const query = `SELECT id, name, status, start_year, end_year, certificate_seq, graduated_at, created_at, updated_at FROM batches WHERE id = $1`
	var batch models.Batch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find batch by id: %w", err)
	}
	return &batch, nil
}

// List returns batches matching the filter with total count.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	base := `FROM batches WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("(start_year = $%d OR end_year = $%d)", len(args)+1, len(args)+1))
		args = append(args, filter.Year)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
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

	listQuery := fmt.Sprintf(`SELECT id, name, status, start_year, end_year, certificate_seq, graduated_at, created_at, updated_at %s ORDER BY start_year DESC, name LIMIT %d OFFSET %d`, base, size, offset)
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list batches: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count batches: %w", err)
	}
	return batches, total, nil
}

// Create persists a new batch.
func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusPlanning
	}
	now := time.Now().UTC()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = now
	}
	batch.UpdatedAt = now
	const query = `INSERT INTO batches (id, name, status, start_year, end_year, certificate_seq, created_at, updated_at)
        VALUES (:id, :name, :status, :start_year, :end_year, :certificate_seq, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// UpdateStatus sets the batch lifecycle status.
func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error {
	const query = `UPDATE batches SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	return nil
}

// MarkGraduated sets status GRADUATED and stamps graduated_at.
func (r *BatchRepository) MarkGraduated(ctx context.Context, id string, graduatedAt time.Time) error {
	const query = `UPDATE batches SET status = $2, graduated_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.BatchStatusGraduated, graduatedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark batch graduated: %w", err)
	}
	return nil
}

// NextCertificateSeq atomically increments and returns the batch certificate
// sequence. The increment-and-read happens in one statement so concurrent
// graduations never observe the same value.
func (r *BatchRepository) NextCertificateSeq(ctx context.Context, id string) (int, error) {
	const query = `UPDATE batches SET certificate_seq = certificate_seq + 1, updated_at = $2 WHERE id = $1 RETURNING certificate_seq`
	var seq int
	if err := r.db.GetContext(ctx, &seq, query, id, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("next certificate seq: %w", err)
	}
	return seq, nil
}

// LinkClass offers a class within a batch at the given promotion order.
func (r *BatchRepository) LinkClass(ctx context.Context, link *models.ClassBatch) error {
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_batches (id, class_id, batch_id, sequence, created_at)
        VALUES (:id, :class_id, :batch_id, :sequence, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		return fmt.Errorf("link class to batch: %w", err)
	}
	return nil
}

// LinkExists reports whether a class is offered within a batch.
func (r *BatchRepository) LinkExists(ctx context.Context, classID, batchID string) (bool, error) {
	const query = `SELECT 1 FROM class_batches WHERE class_id = $1 AND batch_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, batchID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class batch link: %w", err)
	}
	return true, nil
}

// ListLinks returns the classes offered in a batch ordered by promotion sequence.
func (r *BatchRepository) ListLinks(ctx context.Context, batchID string) ([]models.ClassBatch, error) {
	const query = `SELECT id, class_id, batch_id, sequence, created_at FROM class_batches WHERE batch_id = $1 ORDER BY sequence`
	var links []models.ClassBatch
	if err := r.db.SelectContext(ctx, &links, query, batchID); err != nil {
		return nil, fmt.Errorf("list class batch links: %w", err)
	}
	return links, nil
}
