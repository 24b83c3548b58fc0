package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/openlms/lms-api/internal/models"
)

func testActivity() *models.ActivityLog {
	actor := "admin"
	entity := "m1"
	return &models.ActivityLog{ActorID: &actor, Action: models.ActivityModuleEnroll, Entity: "module", EntityID: &entity, Detail: "test"}
}

func TestModuleEnrollmentRepositoryCreateWithActivity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO module_enrollments")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE modules SET enrollment_count = enrollment_count + $2")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment := &models.ModuleEnrollment{ModuleID: "m1", StudentID: "s1", EnrolledBy: "admin", IsActive: true}
	require.NoError(t, repo.CreateWithActivity(context.Background(), enrollment, testActivity()))
	require.NotEmpty(t, enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleEnrollmentRepositoryCreateWithActivityRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO module_enrollments")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE modules SET enrollment_count = enrollment_count + $2")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	enrollment := &models.ModuleEnrollment{ModuleID: "m1", StudentID: "s1", EnrolledBy: "admin", IsActive: true}
	require.Error(t, repo.CreateWithActivity(context.Background(), enrollment, testActivity()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleEnrollmentRepositoryBulkCreateWithActivity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO module_enrollments")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO module_enrollments")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE modules SET enrollment_count = enrollment_count + $2")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollments := []models.ModuleEnrollment{
		{ModuleID: "m1", StudentID: "s1", EnrolledBy: "admin", IsActive: true},
		{ModuleID: "m1", StudentID: "s2", EnrolledBy: "admin", IsActive: true},
	}
	activities := []models.ActivityLog{*testActivity(), *testActivity()}
	require.NoError(t, repo.BulkCreateWithActivity(context.Background(), enrollments, activities))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleEnrollmentRepositoryDeleteWithActivity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM module_enrollments WHERE id = $1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE modules SET enrollment_count = enrollment_count + $2")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteWithActivity(context.Background(), "me1", "m1", testActivity()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestModuleEnrollmentRepositoryCountLessonProgress(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewModuleEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lesson_progress WHERE enrollment_id = $1")).
		WithArgs("me1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountLessonProgress(context.Background(), "me1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
