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

type graduationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Graduation, error)
	FindByBatchStudent(ctx context.Context, batchID, studentID string) (*models.Graduation, error)
	GraduatedStudentIDs(ctx context.Context, batchID string, studentIDs []string) (map[string]bool, error)
	List(ctx context.Context, filter models.GraduationFilter) ([]models.GraduationDetail, int, error)
	Create(ctx context.Context, graduation *models.Graduation) error
	Update(ctx context.Context, graduation *models.Graduation) error
	Delete(ctx context.Context, id string) error
	Statistics(ctx context.Context, batchID string) (*models.GraduationStatistics, error)
}

type graduationBatchRepository interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
	MarkGraduated(ctx context.Context, id string, graduatedAt time.Time) error
	NextCertificateSeq(ctx context.Context, id string) (int, error)
}

type transcriptReader interface {
	ListCompletedByStudentBatch(ctx context.Context, studentID, batchID string) ([]models.ClassEnrollment, error)
}

type activityWriter interface {
	Create(ctx context.Context, log *models.ActivityLog) error
}

// GraduateStudentRequest graduates one student from a batch.
type GraduateStudentRequest struct {
	BatchID        string    `json:"batch_id" validate:"required"`
	StudentID      string    `json:"student_id" validate:"required"`
	GraduationDate time.Time `json:"graduation_date" validate:"required"`
	CreatedBy      string    `json:"-" validate:"required"`
}

// GraduateBatchRequest graduates a batch, optionally limited to given students.
type GraduateBatchRequest struct {
	BatchID        string    `json:"batch_id" validate:"required"`
	GraduationDate time.Time `json:"graduation_date" validate:"required"`
	StudentIDs     []string  `json:"student_ids,omitempty"`
	CreatedBy      string    `json:"-" validate:"required"`
}

// UpdateGraduationRequest applies a partial update to a graduation record.
type UpdateGraduationRequest struct {
	GraduationDate    *time.Time           `json:"graduation_date,omitempty"`
	OverallGrade      *models.OverallGrade `json:"overall_grade,omitempty"`
	OverallPercentage *float64             `json:"overall_percentage,omitempty"`
	CGPA              *float64             `json:"cgpa,omitempty"`
}

// GraduationService derives academic performance from completed class
// enrollments and issues batch-scoped certificate numbers.
type GraduationService struct {
	repo        graduationRepository
	batches     graduationBatchRepository
	users       enrollmentUserReader
	transcripts transcriptReader
	activity    activityWriter
	certPrefix  string
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGraduationService constructs GraduationService.
func NewGraduationService(repo graduationRepository, batches graduationBatchRepository, users enrollmentUserReader, transcripts transcriptReader, activity activityWriter, certPrefix string, validate *validator.Validate, logger *zap.Logger) *GraduationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if certPrefix == "" {
		certPrefix = "BATCH"
	}
	return &GraduationService{repo: repo, batches: batches, users: users, transcripts: transcripts, activity: activity, certPrefix: certPrefix, validator: validate, logger: logger}
}

// List returns graduation records with pagination metadata.
func (s *GraduationService) List(ctx context.Context, filter models.GraduationFilter) ([]models.GraduationDetail, *models.Pagination, error) {
	graduations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list graduations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return graduations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one graduation record.
func (s *GraduationService) Get(ctx context.Context, id string) (*models.Graduation, error) {
	graduation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "graduation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graduation")
	}
	return graduation, nil
}

// GraduateStudent graduates a single student from a batch that has finished.
func (s *GraduationService) GraduateStudent(ctx context.Context, req GraduateStudentRequest) (*models.Graduation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid graduation payload")
	}
	batch, err := s.loadFinishedBatch(ctx, req.BatchID)
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
	if student.BatchID == nil || *student.BatchID != req.BatchID {
		return nil, appErrors.Clone(appErrors.ErrBatchMismatch, "student does not belong to this batch")
	}
	if _, err := s.repo.FindByBatchStudent(ctx, req.BatchID, req.StudentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrAlreadyGraduated, "student already graduated from this batch")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check graduation")
	}

	graduation, err := s.createGraduation(ctx, batch, req.StudentID, req.GraduationDate, req.CreatedBy)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, req.CreatedBy, graduation.ID,
		fmt.Sprintf("graduated student %s from batch %s with certificate %s", req.StudentID, batch.Name, graduation.CertificateNo))
	return graduation, nil
}

// GraduateBatch graduates every target student of a finished batch and then
// marks the batch GRADUATED. Each student is written independently, so a
// partially failed run can simply be repeated; already graduated students are
// skipped on the rerun.
func (s *GraduationService) GraduateBatch(ctx context.Context, req GraduateBatchRequest) (*models.GraduateBatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch graduation payload")
	}
	batch, err := s.loadFinishedBatch(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	targets, err := s.resolveTargets(ctx, req.BatchID, req.StudentIDs)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoStudents, "no students to graduate in this batch")
	}
	graduated, err := s.repo.GraduatedStudentIDs(ctx, req.BatchID, targets)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check graduated students")
	}

	result := &models.GraduateBatchResult{}
	for _, studentID := range targets {
		if graduated[studentID] {
			result.Skipped++
			continue
		}
		if _, err := s.createGraduation(ctx, batch, studentID, req.GraduationDate, req.CreatedBy); err != nil {
			s.logger.Error("failed to graduate student",
				zap.String("batch_id", req.BatchID),
				zap.String("student_id", studentID),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, studentID)
			continue
		}
		result.Graduated++
	}

	if err := s.batches.MarkGraduated(ctx, req.BatchID, req.GraduationDate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark batch graduated")
	}
	s.logActivity(ctx, req.CreatedBy, req.BatchID,
		fmt.Sprintf("graduated batch %s: %d graduated, %d skipped, %d failed", batch.Name, result.Graduated, result.Skipped, len(result.Failed)))
	return result, nil
}

// Update applies a partial update to a graduation record.
func (s *GraduationService) Update(ctx context.Context, id string, req UpdateGraduationRequest) (*models.Graduation, error) {
	graduation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.GraduationDate != nil {
		graduation.GraduationDate = *req.GraduationDate
	}
	if req.OverallGrade != nil {
		graduation.OverallGrade = *req.OverallGrade
	}
	if req.OverallPercentage != nil {
		graduation.OverallPercentage = *req.OverallPercentage
	}
	if req.CGPA != nil {
		graduation.CGPA = *req.CGPA
	}
	if err := s.repo.Update(ctx, graduation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update graduation")
	}
	return graduation, nil
}

// AttachCertificate records the rendered certificate and marks it awarded.
func (s *GraduationService) AttachCertificate(ctx context.Context, id, url string) (*models.Graduation, error) {
	graduation, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	graduation.CertificateURL = &url
	graduation.IsAwarded = true
	graduation.AwardedAt = &now
	if err := s.repo.Update(ctx, graduation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach certificate")
	}
	return graduation, nil
}

// Revoke removes a graduation record. The batch status is left untouched.
func (s *GraduationService) Revoke(ctx context.Context, id, revokedBy string) error {
	graduation, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke graduation")
	}
	s.logActivity(ctx, revokedBy, id,
		fmt.Sprintf("revoked graduation of student %s, certificate %s", graduation.StudentID, graduation.CertificateNo))
	return nil
}

// Statistics aggregates graduation counts and the grade distribution.
func (s *GraduationService) Statistics(ctx context.Context, batchID string) (*models.GraduationStatistics, error) {
	stats, err := s.repo.Statistics(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute graduation statistics")
	}
	return stats, nil
}

// AcademicPerformance derives the overall outcome from the student's
// completed class enrollments in the batch.
func (s *GraduationService) AcademicPerformance(ctx context.Context, studentID, batchID string) (*models.AcademicPerformance, error) {
	enrollments, err := s.transcripts.ListCompletedByStudentBatch(ctx, studentID, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed enrollments")
	}
	var finalSum, totalSum float64
	for _, e := range enrollments {
		if e.FinalMarks != nil {
			finalSum += *e.FinalMarks
		}
		if e.TotalMarks != nil {
			totalSum += *e.TotalMarks
		}
	}
	percentage := 0.0
	if totalSum > 0 {
		percentage = finalSum / totalSum * 100
	}
	percentage = round2(percentage)
	return &models.AcademicPerformance{
		Percentage: percentage,
		CGPA:       round2(percentage / 10),
		Grade:      gradeFor(percentage),
	}, nil
}

func (s *GraduationService) createGraduation(ctx context.Context, batch *models.Batch, studentID string, date time.Time, createdBy string) (*models.Graduation, error) {
	performance, err := s.AcademicPerformance(ctx, studentID, batch.ID)
	if err != nil {
		return nil, err
	}
	seq, err := s.batches.NextCertificateSeq(ctx, batch.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate certificate number")
	}
	graduation := &models.Graduation{
		BatchID:           batch.ID,
		StudentID:         studentID,
		GraduationDate:    date,
		OverallGrade:      performance.Grade,
		OverallPercentage: performance.Percentage,
		CGPA:              performance.CGPA,
		CertificateNo:     fmt.Sprintf("%s-%d-%04d", s.certPrefix, batch.EndYear, seq),
		CreatedBy:         createdBy,
	}
	if err := s.repo.Create(ctx, graduation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create graduation")
	}
	return graduation, nil
}

func (s *GraduationService) loadFinishedBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if batch.Status.Rank() < models.BatchStatusCompleted.Rank() {
		return nil, appErrors.Clone(appErrors.ErrBatchNotReady, "batch has not completed its lifecycle")
	}
	return batch, nil
}

func (s *GraduationService) resolveTargets(ctx context.Context, batchID string, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		students, err := s.users.ListActiveStudentsByBatch(ctx, batchID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch students")
		}
		ids := make([]string, 0, len(students))
		for _, student := range students {
			ids = append(ids, student.ID)
		}
		return ids, nil
	}
	students, err := s.users.FindStudentsByIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
	}
	ids := make([]string, 0, len(students))
	for _, student := range students {
		if student.BatchID != nil && *student.BatchID == batchID {
			ids = append(ids, student.ID)
		}
	}
	return ids, nil
}

func (s *GraduationService) logActivity(ctx context.Context, actorID, entityID, detail string) {
	if s.activity == nil {
		return
	}
	actor := actorID
	entity := entityID
	log := &models.ActivityLog{
		ActorID:  &actor,
		Action:   models.ActivityGraduation,
		Entity:   "graduation",
		EntityID: &entity,
		Detail:   detail,
	}
	if err := s.activity.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record graduation activity", zap.Error(err))
	}
}

func gradeFor(percentage float64) models.OverallGrade {
	switch {
	case percentage >= 90:
		return models.GradeAPlus
	case percentage >= 80:
		return models.GradeA
	case percentage >= 70:
		return models.GradeBPlus
	case percentage >= 60:
		return models.GradeB
	case percentage >= 50:
		return models.GradeCPlus
	case percentage >= 40:
		return models.GradeC
	case percentage >= 33:
		return models.GradeD
	default:
		return models.GradeF
	}
}
