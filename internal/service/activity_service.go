package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
)

type activityListRepository interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, int, error)
}

// ActivityService exposes the read side of the audit trail.
type ActivityService struct {
	repo   activityListRepository
	logger *zap.Logger
}

// NewActivityService constructs ActivityService.
func NewActivityService(repo activityListRepository, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, logger: logger}
}

// List returns activity records with pagination metadata.
func (s *ActivityService) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, *models.Pagination, error) {
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return logs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
