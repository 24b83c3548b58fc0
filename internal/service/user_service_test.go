package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
)

type mockUserStore struct {
	users   map[string]models.User
	byEmail map[string]string
	deleted []string
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if id, ok := m.byEmail[email]; ok {
		u := m.users[id]
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var list []models.User
	for _, u := range m.users {
		list = append(list, u)
	}
	return list, len(list), nil
}

func (m *mockUserStore) Create(ctx context.Context, user *models.User) error {
	user.ID = "generated"
	m.users[user.ID] = *user
	m.byEmail[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) Update(ctx context.Context, user *models.User) error {
	m.users[user.ID] = *user
	return nil
}

func (m *mockUserStore) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func newUserFixture() (*UserService, *mockUserStore) {
	store := &mockUserStore{
		users: map[string]models.User{
			"u1": {ID: "u1", Email: "admin@lms.test", Role: models.RoleAdmin, FullName: "Admin", Active: true},
			"s1": {ID: "s1", Email: "s1@lms.test", Role: models.RoleStudent, FullName: "Student One", Active: true},
		},
		byEmail: map[string]string{"admin@lms.test": "u1", "s1@lms.test": "s1"},
	}
	batches := &mockBatchReader{batches: map[string]models.Batch{
		"b1": {ID: "b1", Name: "Batch 2025", Status: models.BatchStatusActive},
	}}
	return NewUserService(store, batches, nil, zap.NewNop()), store
}

func TestUserServiceCreateStudent(t *testing.T) {
	svc, store := newUserFixture()

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "new@lms.test",
		Password: "correct-horse",
		FullName: "New Student",
		Role:     models.RoleStudent,
		BatchID:  strPtr("b1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "generated", user.ID)
	assert.True(t, user.Active)
	require.NotNil(t, user.BatchID)
	assert.Equal(t, "b1", *user.BatchID)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct-horse")))
	assert.Contains(t, store.byEmail, "new@lms.test")
}

func TestUserServiceCreateRejectsShortPassword(t *testing.T) {
	svc, _ := newUserFixture()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "new@lms.test",
		Password: "short",
		FullName: "New Student",
		Role:     models.RoleStudent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newUserFixture()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "s1@lms.test",
		Password: "correct-horse",
		FullName: "Someone Else",
		Role:     models.RoleStudent,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsBatchForTeacher(t *testing.T) {
	svc, _ := newUserFixture()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "teacher@lms.test",
		Password: "correct-horse",
		FullName: "Teacher",
		Role:     models.RoleTeacher,
		BatchID:  strPtr("b1"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "only students belong to a batch")
}

func TestUserServiceCreateRejectsUnknownBatch(t *testing.T) {
	svc, _ := newUserFixture()

	_, err := svc.Create(context.Background(), CreateUserRequest{
		Email:    "new@lms.test",
		Password: "correct-horse",
		FullName: "New Student",
		Role:     models.RoleStudent,
		BatchID:  strPtr("missing"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdate(t *testing.T) {
	svc, store := newUserFixture()

	user, err := svc.Update(context.Background(), "s1", UpdateUserRequest{
		FullName: strPtr("Student Renamed"),
		BatchID:  strPtr("b1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Student Renamed", user.FullName)
	require.NotNil(t, user.BatchID)
	assert.Equal(t, "b1", *user.BatchID)
	assert.WithinDuration(t, time.Now().UTC(), user.UpdatedAt, time.Second)
	assert.Equal(t, "Student Renamed", store.users["s1"].FullName)
}

func TestUserServiceUpdateNotFound(t *testing.T) {
	svc, _ := newUserFixture()

	_, err := svc.Update(context.Background(), "missing", UpdateUserRequest{FullName: strPtr("Nobody")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDeactivate(t *testing.T) {
	svc, store := newUserFixture()

	require.NoError(t, svc.Deactivate(context.Background(), "s1"))
	assert.Equal(t, []string{"s1"}, store.deleted)

	err := svc.Deactivate(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceListPaginationDefaults(t *testing.T) {
	svc, _ := newUserFixture()

	users, pagination, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
}
