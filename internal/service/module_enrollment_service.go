package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
)

type moduleEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.ModuleEnrollment, error)
	Exists(ctx context.Context, studentID, moduleID string) (bool, error)
	EnrolledStudentIDs(ctx context.Context, moduleID string, studentIDs []string) (map[string]bool, error)
	List(ctx context.Context, filter models.ModuleEnrollmentFilter) ([]models.ModuleEnrollmentDetail, int, error)
	ListByModule(ctx context.Context, moduleID string) ([]models.ModuleEnrollment, error)
	CountLessonProgress(ctx context.Context, enrollmentID string) (int, error)
	CreateWithActivity(ctx context.Context, enrollment *models.ModuleEnrollment, activity *models.ActivityLog) error
	BulkCreateWithActivity(ctx context.Context, enrollments []models.ModuleEnrollment, activities []models.ActivityLog) error
	DeleteWithActivity(ctx context.Context, enrollmentID, moduleID string, activity *models.ActivityLog) error
	SetActiveWithActivity(ctx context.Context, enrollmentID string, active bool, activity *models.ActivityLog) error
}

type moduleReader interface {
	FindByID(ctx context.Context, id string) (*models.Module, error)
}

type moduleUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindStudentsByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type classRosterReader interface {
	ActiveStudentIDsByClass(ctx context.Context, classID string) ([]string, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ModuleEnrollRequest enrolls a single student into a module.
type ModuleEnrollRequest struct {
	ModuleID   string `json:"module_id" validate:"required"`
	StudentID  string `json:"student_id" validate:"required"`
	EnrolledBy string `json:"-" validate:"required"`
}

// ModuleBulkEnrollRequest enrolls multiple students into a module.
type ModuleBulkEnrollRequest struct {
	ModuleID   string   `json:"module_id" validate:"required"`
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
	EnrolledBy string   `json:"-" validate:"required"`
}

// ModuleEnrollClassRequest enrolls an entire class roster into a module.
type ModuleEnrollClassRequest struct {
	ModuleID   string `json:"module_id" validate:"required"`
	ClassID    string `json:"class_id" validate:"required"`
	EnrolledBy string `json:"-" validate:"required"`
}

// ModuleEnrollmentService manages student membership in modules. The module's
// enrollment_count and the audit trail are written in the same transaction as
// the enrollment row, so the counter never drifts from the rows it counts.
type ModuleEnrollmentService struct {
	repo      moduleEnrollmentRepository
	modules   moduleReader
	users     moduleUserReader
	roster    classRosterReader
	cache     statsCache
	statsTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewModuleEnrollmentService constructs ModuleEnrollmentService.
func NewModuleEnrollmentService(repo moduleEnrollmentRepository, modules moduleReader, users moduleUserReader, roster classRosterReader, cache statsCache, statsTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *ModuleEnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if statsTTL <= 0 {
		statsTTL = 5 * time.Minute
	}
	return &ModuleEnrollmentService{repo: repo, modules: modules, users: users, roster: roster, cache: cache, statsTTL: statsTTL, validator: validate, logger: logger}
}

// List returns module enrollments with pagination metadata.
func (s *ModuleEnrollmentService) List(ctx context.Context, filter models.ModuleEnrollmentFilter) ([]models.ModuleEnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list module enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Enroll adds a student to a published module.
func (s *ModuleEnrollmentService) Enroll(ctx context.Context, req ModuleEnrollRequest) (*models.ModuleEnrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module enrollment payload")
	}
	if err := s.requireAdmin(ctx, req.EnrolledBy); err != nil {
		return nil, err
	}
	module, err := s.loadPublishedModule(ctx, req.ModuleID)
	if err != nil {
		return nil, err
	}
	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrInvalidRole, "user is not a student")
	}
	exists, err := s.repo.Exists(ctx, req.StudentID, req.ModuleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate module enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already enrolled in this module")
	}

	enrollment := &models.ModuleEnrollment{
		ModuleID:   req.ModuleID,
		StudentID:  req.StudentID,
		EnrolledBy: req.EnrolledBy,
		IsActive:   true,
		EnrolledAt: time.Now().UTC(),
	}
	activity := moduleActivity(req.EnrolledBy, models.ActivityModuleEnroll, req.ModuleID,
		fmt.Sprintf("enrolled student %s into module %s", req.StudentID, module.Title))
	if err := s.repo.CreateWithActivity(ctx, enrollment, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create module enrollment")
	}
	s.invalidateStats(ctx, req.ModuleID)
	return enrollment, nil
}

// BulkEnroll adds multiple students, skipping those already enrolled.
// Every requested id must resolve to an existing student.
func (s *ModuleEnrollmentService) BulkEnroll(ctx context.Context, req ModuleBulkEnrollRequest) (*models.ModuleBulkEnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk module enrollment payload")
	}
	if err := s.requireAdmin(ctx, req.EnrolledBy); err != nil {
		return nil, err
	}
	module, err := s.loadPublishedModule(ctx, req.ModuleID)
	if err != nil {
		return nil, err
	}
	students, err := s.users.FindStudentsByIDs(ctx, req.StudentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
	}
	if len(students) != len(req.StudentIDs) {
		return nil, appErrors.Clone(appErrors.ErrInvalidStudents, fmt.Sprintf("%d of %d student ids are invalid", len(req.StudentIDs)-len(students), len(req.StudentIDs)))
	}
	enrolled, err := s.repo.EnrolledStudentIDs(ctx, req.ModuleID, req.StudentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing module enrollments")
	}
	remaining := make([]string, 0, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		if !enrolled[id] {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == 0 {
		return &models.ModuleBulkEnrollResult{Skipped: len(req.StudentIDs)}, nil
	}

	now := time.Now().UTC()
	enrollments := make([]models.ModuleEnrollment, 0, len(remaining))
	activities := make([]models.ActivityLog, 0, len(remaining))
	for _, id := range remaining {
		enrollments = append(enrollments, models.ModuleEnrollment{
			ModuleID:   req.ModuleID,
			StudentID:  id,
			EnrolledBy: req.EnrolledBy,
			IsActive:   true,
			EnrolledAt: now,
		})
		activities = append(activities, *moduleActivity(req.EnrolledBy, models.ActivityModuleEnroll, req.ModuleID,
			fmt.Sprintf("enrolled student %s into module %s", id, module.Title)))
	}
	if err := s.repo.BulkCreateWithActivity(ctx, enrollments, activities); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create module enrollments")
	}
	s.invalidateStats(ctx, req.ModuleID)
	return &models.ModuleBulkEnrollResult{Enrolled: len(remaining), Skipped: len(req.StudentIDs) - len(remaining)}, nil
}

// EnrollClass enrolls the active roster of a class into a module.
func (s *ModuleEnrollmentService) EnrollClass(ctx context.Context, req ModuleEnrollClassRequest) (*models.ModuleBulkEnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class module enrollment payload")
	}
	studentIDs, err := s.roster.ActiveStudentIDsByClass(ctx, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	if len(studentIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoStudents, "class has no active students")
	}
	return s.BulkEnroll(ctx, ModuleBulkEnrollRequest{ModuleID: req.ModuleID, StudentIDs: studentIDs, EnrolledBy: req.EnrolledBy})
}

// Unenroll removes a module enrollment. Enrollments with recorded lesson
// progress are never removed.
func (s *ModuleEnrollmentService) Unenroll(ctx context.Context, enrollmentID, adminID, reason string) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "module enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module enrollment")
	}
	progress, err := s.repo.CountLessonProgress(ctx, enrollmentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check lesson progress")
	}
	if progress > 0 {
		return appErrors.Clone(appErrors.ErrHasProgress, "enrollment has lesson progress and cannot be removed")
	}
	detail := fmt.Sprintf("unenrolled student %s from module %s", enrollment.StudentID, enrollment.ModuleID)
	if reason != "" {
		detail = fmt.Sprintf("%s: %s", detail, reason)
	}
	activity := moduleActivity(adminID, models.ActivityModuleUnenroll, enrollment.ModuleID, detail)
	if err := s.repo.DeleteWithActivity(ctx, enrollmentID, enrollment.ModuleID, activity); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete module enrollment")
	}
	s.invalidateStats(ctx, enrollment.ModuleID)
	return nil
}

// ToggleStatus flips the is_active flag of an enrollment.
func (s *ModuleEnrollmentService) ToggleStatus(ctx context.Context, enrollmentID, adminID string) (*models.ModuleEnrollment, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module enrollment")
	}
	next := !enrollment.IsActive
	activity := moduleActivity(adminID, models.ActivityModuleToggle, enrollment.ModuleID,
		fmt.Sprintf("toggled enrollment %s active from %t to %t", enrollmentID, enrollment.IsActive, next))
	if err := s.repo.SetActiveWithActivity(ctx, enrollmentID, next, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle module enrollment")
	}
	enrollment.IsActive = next
	s.invalidateStats(ctx, enrollment.ModuleID)
	return enrollment, nil
}

// Stats aggregates enrollment figures for a module. Results are cached.
func (s *ModuleEnrollmentService) Stats(ctx context.Context, moduleID string) (*models.EnrollmentStats, error) {
	key := statsCacheKey(moduleID)
	if s.cache != nil {
		var cached models.EnrollmentStats
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}
	if _, err := s.modules.FindByID(ctx, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	enrollments, err := s.repo.ListByModule(ctx, moduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module enrollments")
	}

	stats := &models.EnrollmentStats{TotalEnrollments: len(enrollments)}
	if len(enrollments) > 0 {
		var progressSum float64
		for _, e := range enrollments {
			if e.IsActive {
				stats.ActiveEnrollments++
			}
			if e.Progress >= 100 {
				stats.CompletedCount++
			}
			progressSum += e.Progress
		}
		stats.AvgProgress = round2(progressSum / float64(len(enrollments)))
		stats.CompletionRate = round2(float64(stats.CompletedCount) / float64(len(enrollments)) * 100)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.statsTTL); err != nil {
			s.logger.Warn("failed to cache module stats", zap.String("module_id", moduleID), zap.Error(err))
		}
	}
	return stats, nil
}

func (s *ModuleEnrollmentService) requireAdmin(ctx context.Context, userID string) error {
	actor, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "acting user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load acting user")
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrUnauthorized, "admin privileges required")
	}
	return nil
}

func (s *ModuleEnrollmentService) loadPublishedModule(ctx context.Context, moduleID string) (*models.Module, error) {
	module, err := s.modules.FindByID(ctx, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load module")
	}
	if module.Status != models.ModuleStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotPublished, "module is not open for enrollment")
	}
	return module, nil
}

func (s *ModuleEnrollmentService) invalidateStats(ctx context.Context, moduleID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey(moduleID)); err != nil {
		s.logger.Warn("failed to invalidate module stats cache", zap.String("module_id", moduleID), zap.Error(err))
	}
}

func statsCacheKey(moduleID string) string {
	return "module:stats:" + moduleID
}

func moduleActivity(actorID, action, moduleID, detail string) *models.ActivityLog {
	actor := actorID
	entity := moduleID
	return &models.ActivityLog{
		ActorID:  &actor,
		Action:   action,
		Entity:   "module",
		EntityID: &entity,
		Detail:   detail,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
