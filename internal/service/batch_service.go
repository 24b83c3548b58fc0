package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
)

type batchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error)
	Create(ctx context.Context, batch *models.Batch) error
	UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error
	LinkClass(ctx context.Context, link *models.ClassBatch) error
	LinkExists(ctx context.Context, classID, batchID string) (bool, error)
	ListLinks(ctx context.Context, batchID string) ([]models.ClassBatch, error)
}

// CreateBatchRequest creates a cohort.
type CreateBatchRequest struct {
	Name      string `json:"name" validate:"required"`
	StartYear int    `json:"start_year" validate:"required,min=2000"`
	EndYear   int    `json:"end_year" validate:"required,gtefield=StartYear"`
}

// LinkClassRequest offers a class within a batch.
type LinkClassRequest struct {
	ClassID  string `json:"class_id" validate:"required"`
	Sequence int    `json:"sequence" validate:"min=0"`
}

// BatchService manages cohorts and their class topology. Status moves
// forward only: PLANNING, ACTIVE, COMPLETED, GRADUATED.
type BatchService struct {
	repo      batchRepository
	classes   enrollmentClassReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBatchService constructs BatchService.
func NewBatchService(repo batchRepository, classes enrollmentClassReader, validate *validator.Validate, logger *zap.Logger) *BatchService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchService{repo: repo, classes: classes, validator: validate, logger: logger}
}

// List returns batches with pagination metadata.
func (s *BatchService) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, *models.Pagination, error) {
	batches, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return batches, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single batch.
func (s *BatchService) Get(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}

// Create registers a cohort in PLANNING state.
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	batch := &models.Batch{
		Name:      req.Name,
		Status:    models.BatchStatusPlanning,
		StartYear: req.StartYear,
		EndYear:   req.EndYear,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	return batch, nil
}

// Transition moves the batch to the given status. Backward transitions and
// unknown statuses are rejected.
func (s *BatchService) Transition(ctx context.Context, id string, status models.BatchStatus) (*models.Batch, error) {
	if status.Rank() < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown batch status %q", status))
	}
	batch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if status.Rank() <= batch.Status.Rank() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("batch status %s cannot move back to %s", batch.Status, status))
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update batch status")
	}
	batch.Status = status
	return batch, nil
}

// LinkClass offers a class within the batch.
func (s *BatchService) LinkClass(ctx context.Context, batchID string, req LinkClassRequest) (*models.ClassBatch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid link payload")
	}
	if _, err := s.Get(ctx, batchID); err != nil {
		return nil, err
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	exists, err := s.repo.LinkExists(ctx, req.ClassID, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class batch link")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class is already offered in this batch")
	}
	link := &models.ClassBatch{ClassID: req.ClassID, BatchID: batchID, Sequence: req.Sequence}
	if err := s.repo.LinkClass(ctx, link); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link class to batch")
	}
	return link, nil
}

// ListLinks returns the classes offered in a batch, in promotion order.
func (s *BatchService) ListLinks(ctx context.Context, batchID string) ([]models.ClassBatch, error) {
	if _, err := s.Get(ctx, batchID); err != nil {
		return nil, err
	}
	links, err := s.repo.ListLinks(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batch classes")
	}
	return links, nil
}
