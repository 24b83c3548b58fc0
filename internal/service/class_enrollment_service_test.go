package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
)

type mockClassEnrollmentRepo struct {
	enrollments map[string]models.ClassEnrollment
	enrolledSet map[string]bool
	created     []models.ClassEnrollment
	bulkCreated []models.ClassEnrollment
	updated     *models.ClassEnrollment
	deleted     []string
	nextID      int
}

func (m *mockClassEnrollmentRepo) List(ctx context.Context, filter models.ClassEnrollmentFilter) ([]models.ClassEnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockClassEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.ClassEnrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.ClassEnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.ClassEnrollmentDetail{ClassEnrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassEnrollmentRepo) Exists(ctx context.Context, studentID, classID, batchID string) (bool, error) {
	return m.enrolledSet[studentID+classID+batchID], nil
}

func (m *mockClassEnrollmentRepo) EnrolledStudentIDs(ctx context.Context, classID, batchID string, studentIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	for _, id := range studentIDs {
		if m.enrolledSet[id+classID+batchID] {
			result[id] = true
		}
	}
	return result, nil
}

func (m *mockClassEnrollmentRepo) Create(ctx context.Context, enrollment *models.ClassEnrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.ClassEnrollment)
	}
	if enrollment.ID == "" {
		m.nextID++
		enrollment.ID = "enroll-" + string(rune('0'+m.nextID))
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = append(m.created, *enrollment)
	return nil
}

func (m *mockClassEnrollmentRepo) BulkCreate(ctx context.Context, enrollments []models.ClassEnrollment) error {
	m.bulkCreated = append(m.bulkCreated, enrollments...)
	return nil
}

func (m *mockClassEnrollmentRepo) Update(ctx context.Context, enrollment *models.ClassEnrollment) error {
	m.enrollments[enrollment.ID] = *enrollment
	m.updated = enrollment
	return nil
}

func (m *mockClassEnrollmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.enrollments, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockUserReader struct {
	users map[string]models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserReader) FindStudentsByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var list []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok && u.Role == models.RoleStudent {
			list = append(list, u)
		}
	}
	return list, nil
}

func (m *mockUserReader) ListActiveStudentsByBatch(ctx context.Context, batchID string) ([]models.User, error) {
	var list []models.User
	for _, u := range m.users {
		if u.Role == models.RoleStudent && u.Active && u.BatchID != nil && *u.BatchID == batchID {
			list = append(list, u)
		}
	}
	return list, nil
}

type mockClassReader struct{}

func (m *mockClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.Class{ID: id, Active: true}, nil
}

type mockBatchReader struct {
	batches map[string]models.Batch
	links   map[string]bool
}

func (m *mockBatchReader) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := m.batches[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchReader) LinkExists(ctx context.Context, classID, batchID string) (bool, error) {
	return m.links[classID+batchID], nil
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func float64Ptr(f float64) *float64 { return &f }

func newClassEnrollmentFixture() (*ClassEnrollmentService, *mockClassEnrollmentRepo) {
	repo := &mockClassEnrollmentRepo{}
	users := &mockUserReader{users: map[string]models.User{
		"s1":    {ID: "s1", Role: models.RoleStudent, Active: true, BatchID: strPtr("b1")},
		"s2":    {ID: "s2", Role: models.RoleStudent, Active: true, BatchID: strPtr("b1")},
		"s3":    {ID: "s3", Role: models.RoleStudent, Active: true, BatchID: strPtr("b2")},
		"admin": {ID: "admin", Role: models.RoleAdmin, Active: true},
	}}
	batches := &mockBatchReader{
		batches: map[string]models.Batch{"b1": {ID: "b1", Status: models.BatchStatusActive}, "b2": {ID: "b2", Status: models.BatchStatusActive}},
		links:   map[string]bool{"c1b1": true, "c2b1": true},
	}
	svc := NewClassEnrollmentService(repo, users, &mockClassReader{}, batches, validator.New(), zap.NewNop())
	return svc, repo
}

func TestClassEnrollmentServiceEnroll(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()

	detail, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", ClassID: "c1", BatchID: "b1", EnrolledBy: "admin"})
	require.NoError(t, err)
	assert.True(t, detail.IsActive)
	assert.False(t, detail.IsCompleted)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "admin", repo.created[0].EnrolledBy)
}

func TestClassEnrollmentServiceEnrollRejectsNonStudent(t *testing.T) {
	svc, _ := newClassEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "admin", ClassID: "c1", BatchID: "b1", EnrolledBy: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRole.Code, appErrors.FromError(err).Code)
}

func TestClassEnrollmentServiceEnrollRejectsBatchMismatch(t *testing.T) {
	svc, _ := newClassEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s3", ClassID: "c1", BatchID: "b1", EnrolledBy: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrBatchMismatch.Code, appErrors.FromError(err).Code)
}

func TestClassEnrollmentServiceEnrollRejectsUnlinkedClass(t *testing.T) {
	svc, _ := newClassEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", ClassID: "c9", BatchID: "b1", EnrolledBy: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotLinked.Code, appErrors.FromError(err).Code)
}

func TestClassEnrollmentServiceEnrollRejectsDuplicate(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()
	repo.enrolledSet = map[string]bool{"s1c1b1": true}

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{StudentID: "s1", ClassID: "c1", BatchID: "b1", EnrolledBy: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)
}

func TestClassEnrollmentServiceBulkEnrollSkipsEnrolled(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()
	repo.enrolledSet = map[string]bool{"s1c1b1": true}

	result, err := svc.BulkEnroll(context.Background(), BulkEnrollRequest{StudentIDs: []string{"s1", "s2"}, ClassID: "c1", BatchID: "b1", EnrolledBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Enrolled)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, repo.bulkCreated, 1)
	assert.Equal(t, "s2", repo.bulkCreated[0].StudentID)
}

func TestClassEnrollmentServiceBulkEnrollAllEnrolledIsIdempotent(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()
	repo.enrolledSet = map[string]bool{"s1c1b1": true, "s2c1b1": true}

	result, err := svc.BulkEnroll(context.Background(), BulkEnrollRequest{StudentIDs: []string{"s1", "s2"}, ClassID: "c1", BatchID: "b1", EnrolledBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Enrolled)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, "all students already enrolled", result.Message)
	assert.Empty(t, repo.bulkCreated)
}

func TestClassEnrollmentServiceBulkEnrollNoValidStudents(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()

	// s3 belongs to another batch, so nothing qualifies.
	result, err := svc.BulkEnroll(context.Background(), BulkEnrollRequest{StudentIDs: []string{"s3"}, ClassID: "c1", BatchID: "b1", EnrolledBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Enrolled)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "no valid students for this batch", result.Message)
	assert.Empty(t, repo.bulkCreated)
}

func TestClassEnrollmentServiceEnrollBatch(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()

	result, err := svc.EnrollBatch(context.Background(), "b1", "c1", "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Enrolled)
	assert.Len(t, repo.bulkCreated, 2)
}

func TestClassEnrollmentServiceEnrollBatchEmptyRoster(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()
	repo.enrolledSet = nil

	result, err := svc.EnrollBatch(context.Background(), "b2", "c1", "admin")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Enrolled)
	assert.Equal(t, "no valid students for this batch", result.Message)
}

func TestClassEnrollmentServiceUpdateStampsCompletion(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()
	repo.enrollments = map[string]models.ClassEnrollment{"e1": {ID: "e1", StudentID: "s1", ClassID: "c1", BatchID: "b1", IsActive: true}}

	detail, err := svc.Update(context.Background(), "e1", UpdateEnrollmentRequest{
		IsCompleted:  boolPtr(true),
		AcademicData: AcademicData{FinalMarks: float64Ptr(78), TotalMarks: float64Ptr(100), FinalGrade: strPtr("B_PLUS"), IsPassed: boolPtr(true)},
	})
	require.NoError(t, err)
	assert.True(t, detail.IsCompleted)
	require.NotNil(t, detail.CompletedAt)
	assert.Equal(t, 78.0, *detail.FinalMarks)
}

func TestClassEnrollmentServiceUpdateRejectsReopening(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()
	repo.enrollments = map[string]models.ClassEnrollment{"e1": {ID: "e1", StudentID: "s1", ClassID: "c1", BatchID: "b1", IsCompleted: true}}

	_, err := svc.Update(context.Background(), "e1", UpdateEnrollmentRequest{IsCompleted: boolPtr(false)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassEnrollmentServicePromote(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()
	repo.enrollments = map[string]models.ClassEnrollment{"e1": {ID: "e1", StudentID: "s1", ClassID: "c1", BatchID: "b1", IsActive: true}}

	detail, err := svc.Promote(context.Background(), "e1", PromoteRequest{NextClassID: "c2", EnrolledBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "c2", detail.ClassID)
	assert.Equal(t, "b1", detail.BatchID)

	// The origin enrollment is completed, not removed.
	origin := repo.enrollments["e1"]
	assert.True(t, origin.IsCompleted)
	assert.NotNil(t, origin.CompletedAt)
}

func TestClassEnrollmentServicePromoteRejectsUnlinkedTarget(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()
	repo.enrollments = map[string]models.ClassEnrollment{"e1": {ID: "e1", StudentID: "s1", ClassID: "c1", BatchID: "b1"}}

	_, err := svc.Promote(context.Background(), "e1", PromoteRequest{NextClassID: "c9", EnrolledBy: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotLinked.Code, appErrors.FromError(err).Code)
}

func TestClassEnrollmentServiceUnenroll(t *testing.T) {
	svc, repo := newClassEnrollmentFixture()
	repo.enrollments = map[string]models.ClassEnrollment{"e1": {ID: "e1", StudentID: "s1", ClassID: "c1", BatchID: "b1"}}

	require.NoError(t, svc.Unenroll(context.Background(), "e1"))
	assert.Contains(t, repo.deleted, "e1")

	err := svc.Unenroll(context.Background(), "e1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
