package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
)

type mockModuleEnrollmentRepo struct {
	enrollments map[string]models.ModuleEnrollment
	enrolledSet map[string]bool
	progress    map[string]int
	byModule    []models.ModuleEnrollment
	created     []models.ModuleEnrollment
	activities  []models.ActivityLog
	deleted     []string
	nextID      int
}

func (m *mockModuleEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.ModuleEnrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockModuleEnrollmentRepo) Exists(ctx context.Context, studentID, moduleID string) (bool, error) {
	return m.enrolledSet[studentID+moduleID], nil
}

func (m *mockModuleEnrollmentRepo) EnrolledStudentIDs(ctx context.Context, moduleID string, studentIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	for _, id := range studentIDs {
		if m.enrolledSet[id+moduleID] {
			result[id] = true
		}
	}
	return result, nil
}

func (m *mockModuleEnrollmentRepo) List(ctx context.Context, filter models.ModuleEnrollmentFilter) ([]models.ModuleEnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockModuleEnrollmentRepo) ListByModule(ctx context.Context, moduleID string) ([]models.ModuleEnrollment, error) {
	return m.byModule, nil
}

func (m *mockModuleEnrollmentRepo) CountLessonProgress(ctx context.Context, enrollmentID string) (int, error) {
	return m.progress[enrollmentID], nil
}

func (m *mockModuleEnrollmentRepo) CreateWithActivity(ctx context.Context, enrollment *models.ModuleEnrollment, activity *models.ActivityLog) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.ModuleEnrollment)
	}
	m.nextID++
	enrollment.ID = "me-" + string(rune('0'+m.nextID))
	m.enrollments[enrollment.ID] = *enrollment
	m.created = append(m.created, *enrollment)
	m.activities = append(m.activities, *activity)
	return nil
}

func (m *mockModuleEnrollmentRepo) BulkCreateWithActivity(ctx context.Context, enrollments []models.ModuleEnrollment, activities []models.ActivityLog) error {
	m.created = append(m.created, enrollments...)
	m.activities = append(m.activities, activities...)
	return nil
}

func (m *mockModuleEnrollmentRepo) DeleteWithActivity(ctx context.Context, enrollmentID, moduleID string, activity *models.ActivityLog) error {
	delete(m.enrollments, enrollmentID)
	m.deleted = append(m.deleted, enrollmentID)
	m.activities = append(m.activities, *activity)
	return nil
}

func (m *mockModuleEnrollmentRepo) SetActiveWithActivity(ctx context.Context, enrollmentID string, active bool, activity *models.ActivityLog) error {
	if e, ok := m.enrollments[enrollmentID]; ok {
		e.IsActive = active
		m.enrollments[enrollmentID] = e
	}
	m.activities = append(m.activities, *activity)
	return nil
}

type mockModuleReader struct {
	modules map[string]models.Module
}

func (m *mockModuleReader) FindByID(ctx context.Context, id string) (*models.Module, error) {
	if mod, ok := m.modules[id]; ok {
		return &mod, nil
	}
	return nil, sql.ErrNoRows
}

type mockRosterReader struct {
	roster map[string][]string
}

func (m *mockRosterReader) ActiveStudentIDsByClass(ctx context.Context, classID string) ([]string, error) {
	return m.roster[classID], nil
}

type mockStatsCache struct {
	store   map[string]*models.EnrollmentStats
	deleted []string
	sets    int
}

func (m *mockStatsCache) Get(ctx context.Context, key string, dest interface{}) error {
	if s, ok := m.store[key]; ok {
		*dest.(*models.EnrollmentStats) = *s
		return nil
	}
	return errors.New("cache miss")
}

func (m *mockStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string]*models.EnrollmentStats)
	}
	stats := value.(*models.EnrollmentStats)
	m.store[key] = stats
	m.sets++
	return nil
}

func (m *mockStatsCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.store, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func newModuleEnrollmentFixture() (*ModuleEnrollmentService, *mockModuleEnrollmentRepo, *mockStatsCache) {
	repo := &mockModuleEnrollmentRepo{}
	modules := &mockModuleReader{modules: map[string]models.Module{
		"m1": {ID: "m1", Title: "Algebra", Status: models.ModuleStatusPublished},
		"m2": {ID: "m2", Title: "Drafts", Status: models.ModuleStatusDraft},
	}}
	users := &mockUserReader{users: map[string]models.User{
		"s1":      {ID: "s1", Role: models.RoleStudent, Active: true, BatchID: strPtr("b1")},
		"s2":      {ID: "s2", Role: models.RoleStudent, Active: true, BatchID: strPtr("b1")},
		"admin":   {ID: "admin", Role: models.RoleAdmin, Active: true},
		"teacher": {ID: "teacher", Role: models.RoleTeacher, Active: true},
	}}
	roster := &mockRosterReader{roster: map[string][]string{"c1": {"s1", "s2"}}}
	cache := &mockStatsCache{}
	svc := NewModuleEnrollmentService(repo, modules, users, roster, cache, time.Minute, validator.New(), zap.NewNop())
	return svc, repo, cache
}

func TestModuleEnrollmentServiceEnroll(t *testing.T) {
	svc, repo, _ := newModuleEnrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), ModuleEnrollRequest{ModuleID: "m1", StudentID: "s1", EnrolledBy: "admin"})
	require.NoError(t, err)
	assert.True(t, enrollment.IsActive)
	require.Len(t, repo.activities, 1)
	assert.Equal(t, models.ActivityModuleEnroll, repo.activities[0].Action)
}

func TestModuleEnrollmentServiceEnrollRequiresAdmin(t *testing.T) {
	svc, _, _ := newModuleEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), ModuleEnrollRequest{ModuleID: "m1", StudentID: "s1", EnrolledBy: "teacher"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestModuleEnrollmentServiceEnrollRejectsUnpublished(t *testing.T) {
	svc, _, _ := newModuleEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), ModuleEnrollRequest{ModuleID: "m2", StudentID: "s1", EnrolledBy: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotPublished.Code, appErrors.FromError(err).Code)
}

func TestModuleEnrollmentServiceEnrollInvalidatesStats(t *testing.T) {
	svc, _, cache := newModuleEnrollmentFixture()
	cache.store = map[string]*models.EnrollmentStats{"module:stats:m1": {TotalEnrollments: 3}}

	_, err := svc.Enroll(context.Background(), ModuleEnrollRequest{ModuleID: "m1", StudentID: "s1", EnrolledBy: "admin"})
	require.NoError(t, err)
	assert.Contains(t, cache.deleted, "module:stats:m1")
}

func TestModuleEnrollmentServiceBulkEnrollRejectsUnknownStudents(t *testing.T) {
	svc, _, _ := newModuleEnrollmentFixture()

	_, err := svc.BulkEnroll(context.Background(), ModuleBulkEnrollRequest{ModuleID: "m1", StudentIDs: []string{"s1", "ghost"}, EnrolledBy: "admin"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidStudents.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "1 of 2")
}

func TestModuleEnrollmentServiceBulkEnrollSkipsEnrolled(t *testing.T) {
	svc, repo, _ := newModuleEnrollmentFixture()
	repo.enrolledSet = map[string]bool{"s1m1": true}

	result, err := svc.BulkEnroll(context.Background(), ModuleBulkEnrollRequest{ModuleID: "m1", StudentIDs: []string{"s1", "s2"}, EnrolledBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Enrolled)
	assert.Equal(t, 1, result.Skipped)
}

func TestModuleEnrollmentServiceEnrollClass(t *testing.T) {
	svc, repo, _ := newModuleEnrollmentFixture()

	result, err := svc.EnrollClass(context.Background(), ModuleEnrollClassRequest{ModuleID: "m1", ClassID: "c1", EnrolledBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Enrolled)
	assert.Len(t, repo.created, 2)
}

func TestModuleEnrollmentServiceEnrollClassEmptyRoster(t *testing.T) {
	svc, _, _ := newModuleEnrollmentFixture()

	_, err := svc.EnrollClass(context.Background(), ModuleEnrollClassRequest{ModuleID: "m1", ClassID: "empty", EnrolledBy: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoStudents.Code, appErrors.FromError(err).Code)
}

func TestModuleEnrollmentServiceUnenrollBlockedByProgress(t *testing.T) {
	svc, repo, _ := newModuleEnrollmentFixture()
	repo.enrollments = map[string]models.ModuleEnrollment{"me1": {ID: "me1", ModuleID: "m1", StudentID: "s1"}}
	repo.progress = map[string]int{"me1": 3}

	err := svc.Unenroll(context.Background(), "me1", "admin", "cleanup")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrHasProgress.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestModuleEnrollmentServiceUnenroll(t *testing.T) {
	svc, repo, _ := newModuleEnrollmentFixture()
	repo.enrollments = map[string]models.ModuleEnrollment{"me1": {ID: "me1", ModuleID: "m1", StudentID: "s1"}}

	require.NoError(t, svc.Unenroll(context.Background(), "me1", "admin", "duplicate record"))
	assert.Contains(t, repo.deleted, "me1")
	require.NotEmpty(t, repo.activities)
	assert.Contains(t, repo.activities[len(repo.activities)-1].Detail, "duplicate record")
}

func TestModuleEnrollmentServiceToggleStatus(t *testing.T) {
	svc, repo, _ := newModuleEnrollmentFixture()
	repo.enrollments = map[string]models.ModuleEnrollment{"me1": {ID: "me1", ModuleID: "m1", StudentID: "s1", IsActive: true}}

	enrollment, err := svc.ToggleStatus(context.Background(), "me1", "admin")
	require.NoError(t, err)
	assert.False(t, enrollment.IsActive)
	assert.False(t, repo.enrollments["me1"].IsActive)
}

func TestModuleEnrollmentServiceStats(t *testing.T) {
	svc, repo, cache := newModuleEnrollmentFixture()
	repo.byModule = []models.ModuleEnrollment{
		{ID: "a", IsActive: true, Progress: 100},
		{ID: "b", IsActive: true, Progress: 50},
		{ID: "c", IsActive: false, Progress: 25},
	}

	stats, err := svc.Stats(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEnrollments)
	assert.Equal(t, 2, stats.ActiveEnrollments)
	assert.Equal(t, 1, stats.CompletedCount)
	assert.InDelta(t, 58.33, stats.AvgProgress, 0.001)
	assert.InDelta(t, 33.33, stats.CompletionRate, 0.001)
	assert.Equal(t, 1, cache.sets)
}

func TestModuleEnrollmentServiceStatsZeroEnrollments(t *testing.T) {
	svc, _, _ := newModuleEnrollmentFixture()

	stats, err := svc.Stats(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEnrollments)
	assert.Zero(t, stats.AvgProgress)
	assert.Zero(t, stats.CompletionRate)
}

func TestModuleEnrollmentServiceStatsServedFromCache(t *testing.T) {
	svc, repo, cache := newModuleEnrollmentFixture()
	cache.store = map[string]*models.EnrollmentStats{"module:stats:m1": {TotalEnrollments: 7}}
	repo.byModule = nil

	stats, err := svc.Stats(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalEnrollments)
	assert.Zero(t, cache.sets)
}
