package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
)

type classEnrollmentRepository interface {
	List(ctx context.Context, filter models.ClassEnrollmentFilter) ([]models.ClassEnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassEnrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassEnrollmentDetail, error)
	Exists(ctx context.Context, studentID, classID, batchID string) (bool, error)
	EnrolledStudentIDs(ctx context.Context, classID, batchID string, studentIDs []string) (map[string]bool, error)
	Create(ctx context.Context, enrollment *models.ClassEnrollment) error
	BulkCreate(ctx context.Context, enrollments []models.ClassEnrollment) error
	Update(ctx context.Context, enrollment *models.ClassEnrollment) error
	Delete(ctx context.Context, id string) error
}

type enrollmentUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindStudentsByIDs(ctx context.Context, ids []string) ([]models.User, error)
	ListActiveStudentsByBatch(ctx context.Context, batchID string) ([]models.User, error)
}

type enrollmentClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type enrollmentBatchReader interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	LinkExists(ctx context.Context, classID, batchID string) (bool, error)
}

// EnrollStudentRequest describes a single class enrollment.
type EnrollStudentRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	ClassID    string `json:"class_id" validate:"required"`
	BatchID    string `json:"batch_id" validate:"required"`
	EnrolledBy string `json:"-" validate:"required"`
}

// BulkEnrollRequest describes a multi-student class enrollment.
type BulkEnrollRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
	ClassID    string   `json:"class_id" validate:"required"`
	BatchID    string   `json:"batch_id" validate:"required"`
	EnrolledBy string   `json:"-" validate:"required"`
}

// AcademicData carries the academic outcome fields of an enrollment.
type AcademicData struct {
	IsPassed   *bool    `json:"is_passed,omitempty"`
	FinalGrade *string  `json:"final_grade,omitempty"`
	FinalMarks *float64 `json:"final_marks,omitempty"`
	TotalMarks *float64 `json:"total_marks,omitempty"`
	Attendance *float64 `json:"attendance,omitempty"`
}

// UpdateEnrollmentRequest applies a partial update to an enrollment.
// CompletedAt is never client-supplied; it is stamped on the
// false-to-true completion transition.
type UpdateEnrollmentRequest struct {
	IsActive    *bool `json:"is_active,omitempty"`
	IsCompleted *bool `json:"is_completed,omitempty"`
	AcademicData
}

// PromoteRequest moves a student to the next class of the same batch.
type PromoteRequest struct {
	NextClassID string `json:"next_class_id" validate:"required"`
	EnrolledBy  string `json:"-" validate:"required"`
}

// ClassEnrollmentService enforces the class enrollment state rules.
type ClassEnrollmentService struct {
	repo      classEnrollmentRepository
	users     enrollmentUserReader
	classes   enrollmentClassReader
	batches   enrollmentBatchReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassEnrollmentService constructs ClassEnrollmentService.
func NewClassEnrollmentService(repo classEnrollmentRepository, users enrollmentUserReader, classes enrollmentClassReader, batches enrollmentBatchReader, validate *validator.Validate, logger *zap.Logger) *ClassEnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassEnrollmentService{repo: repo, users: users, classes: classes, batches: batches, validator: validate, logger: logger}
}

// List returns class enrollments with pagination metadata.
func (s *ClassEnrollmentService) List(ctx context.Context, filter models.ClassEnrollmentFilter) ([]models.ClassEnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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

// Get returns one enrollment with joined summaries.
func (s *ClassEnrollmentService) Get(ctx context.Context, id string) (*models.ClassEnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Enroll registers a student into a class offered within a batch.
func (s *ClassEnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.ClassEnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
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
	if _, err := s.batches.FindByID(ctx, req.BatchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if student.BatchID == nil || *student.BatchID != req.BatchID {
		return nil, appErrors.Clone(appErrors.ErrBatchMismatch, "student does not belong to this batch")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	linked, err := s.batches.LinkExists(ctx, req.ClassID, req.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class batch link")
	}
	if !linked {
		return nil, appErrors.Clone(appErrors.ErrNotLinked, "class is not offered in this batch")
	}
	exists, err := s.repo.Exists(ctx, req.StudentID, req.ClassID, req.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already enrolled in this class")
	}
	enrollment := &models.ClassEnrollment{
		StudentID:  req.StudentID,
		ClassID:    req.ClassID,
		BatchID:    req.BatchID,
		IsActive:   true,
		EnrolledBy: req.EnrolledBy,
		EnrolledAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// BulkEnroll enrolls the valid, not-yet-enrolled subset of the given students.
// The result distinguishes "no valid students" from "all already enrolled".
func (s *ClassEnrollmentService) BulkEnroll(ctx context.Context, req BulkEnrollRequest) (*models.BulkEnrollResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk enrollment payload")
	}
	if _, err := s.batches.FindByID(ctx, req.BatchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	linked, err := s.batches.LinkExists(ctx, req.ClassID, req.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class batch link")
	}
	if !linked {
		return nil, appErrors.Clone(appErrors.ErrNotLinked, "class is not offered in this batch")
	}

	students, err := s.users.FindStudentsByIDs(ctx, req.StudentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
	}
	valid := make([]string, 0, len(students))
	for _, student := range students {
		if student.Active && student.BatchID != nil && *student.BatchID == req.BatchID {
			valid = append(valid, student.ID)
		}
	}
	if len(valid) == 0 {
		return &models.BulkEnrollResult{Skipped: len(req.StudentIDs), Message: "no valid students for this batch"}, nil
	}

	enrolled, err := s.repo.EnrolledStudentIDs(ctx, req.ClassID, req.BatchID, valid)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollments")
	}
	remaining := make([]string, 0, len(valid))
	for _, id := range valid {
		if !enrolled[id] {
			remaining = append(remaining, id)
		}
	}
	if len(remaining) == 0 {
		return &models.BulkEnrollResult{Skipped: len(req.StudentIDs), Message: "all students already enrolled"}, nil
	}

	now := time.Now().UTC()
	enrollments := make([]models.ClassEnrollment, 0, len(remaining))
	for _, id := range remaining {
		enrollments = append(enrollments, models.ClassEnrollment{
			StudentID:  id,
			ClassID:    req.ClassID,
			BatchID:    req.BatchID,
			IsActive:   true,
			EnrolledBy: req.EnrolledBy,
			EnrolledAt: now,
		})
	}
	if err := s.repo.BulkCreate(ctx, enrollments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollments")
	}
	return &models.BulkEnrollResult{Enrolled: len(remaining), Skipped: len(req.StudentIDs) - len(remaining)}, nil
}

// EnrollBatch enrolls every active student of a batch into a class.
func (s *ClassEnrollmentService) EnrollBatch(ctx context.Context, batchID, classID, enrolledBy string) (*models.BulkEnrollResult, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	students, err := s.users.ListActiveStudentsByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch students")
	}
	if len(students) == 0 {
		return &models.BulkEnrollResult{Message: "no valid students for this batch"}, nil
	}
	ids := make([]string, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	return s.BulkEnroll(ctx, BulkEnrollRequest{StudentIDs: ids, ClassID: classID, BatchID: batchID, EnrolledBy: enrolledBy})
}

// Update applies a partial update. A false-to-true completion transition
// stamps completed_at server-side; completion is never reversed.
func (s *ClassEnrollmentService) Update(ctx context.Context, id string, req UpdateEnrollmentRequest) (*models.ClassEnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if req.IsCompleted != nil {
		if !*req.IsCompleted && enrollment.IsCompleted {
			return nil, appErrors.Clone(appErrors.ErrValidation, "completed enrollment cannot be reopened")
		}
		if *req.IsCompleted && !enrollment.IsCompleted {
			now := time.Now().UTC()
			enrollment.CompletedAt = &now
		}
		enrollment.IsCompleted = *req.IsCompleted
	}
	if req.IsActive != nil {
		enrollment.IsActive = *req.IsActive
	}
	applyAcademicData(enrollment, req.AcademicData)

	if err := s.repo.Update(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// MarkCompleted completes an enrollment with the given academic outcome.
func (s *ClassEnrollmentService) MarkCompleted(ctx context.Context, id string, academic AcademicData) (*models.ClassEnrollmentDetail, error) {
	completed := true
	return s.Update(ctx, id, UpdateEnrollmentRequest{IsCompleted: &completed, AcademicData: academic})
}

// Unenroll removes a class enrollment. Academic outcome recorded on the row
// is discarded with it; unlike module enrollments there is no progress guard.
func (s *ClassEnrollmentService) Unenroll(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	return nil
}

// Promote completes the current enrollment if needed and enrolls the student
// into the next class of the same batch. An AlreadyEnrolled failure from the
// nested enrollment is terminal, not a retry signal.
func (s *ClassEnrollmentService) Promote(ctx context.Context, id string, req PromoteRequest) (*models.ClassEnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	linked, err := s.batches.LinkExists(ctx, req.NextClassID, enrollment.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class batch link")
	}
	if !linked {
		return nil, appErrors.Clone(appErrors.ErrNotLinked, "next class is not offered in this batch")
	}
	if !enrollment.IsCompleted {
		now := time.Now().UTC()
		enrollment.IsCompleted = true
		enrollment.CompletedAt = &now
		if err := s.repo.Update(ctx, enrollment); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete current enrollment")
		}
	}
	s.logger.Info("promoting student",
		zap.String("student_id", enrollment.StudentID),
		zap.String("from_class", enrollment.ClassID),
		zap.String("to_class", req.NextClassID),
	)
	return s.Enroll(ctx, EnrollStudentRequest{
		StudentID:  enrollment.StudentID,
		ClassID:    req.NextClassID,
		BatchID:    enrollment.BatchID,
		EnrolledBy: req.EnrolledBy,
	})
}

func applyAcademicData(enrollment *models.ClassEnrollment, academic AcademicData) {
	if academic.IsPassed != nil {
		enrollment.IsPassed = academic.IsPassed
	}
	if academic.FinalGrade != nil {
		enrollment.FinalGrade = academic.FinalGrade
	}
	if academic.FinalMarks != nil {
		enrollment.FinalMarks = academic.FinalMarks
	}
	if academic.TotalMarks != nil {
		enrollment.TotalMarks = academic.TotalMarks
	}
	if academic.Attendance != nil {
		enrollment.Attendance = academic.Attendance
	}
}
