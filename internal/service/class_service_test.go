package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
)

type mockClassRepo struct {
	classes map[string]models.Class
	updated []models.Class
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	var list []models.Class
	for _, c := range m.classes {
		list = append(list, c)
	}
	return list, len(list), nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	class.ID = "generated"
	m.classes[class.ID] = *class
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class) error {
	m.classes[class.ID] = *class
	m.updated = append(m.updated, *class)
	return nil
}

func (m *mockClassRepo) ActiveNameSectionExists(ctx context.Context, name, section, excludeID string) (bool, error) {
	for id, c := range m.classes {
		if id == excludeID {
			continue
		}
		if c.Active && c.Name == name && c.Section == section {
			return true, nil
		}
	}
	return false, nil
}

func newClassFixture() (*ClassService, *mockClassRepo) {
	repo := &mockClassRepo{classes: map[string]models.Class{
		"c1": {ID: "c1", Name: "Mathematics", Section: "A", Active: true},
		"c2": {ID: "c2", Name: "Mathematics", Section: "B", Active: false},
	}}
	return NewClassService(repo, nil, zap.NewNop()), repo
}

func TestClassServiceCreate(t *testing.T) {
	svc, repo := newClassFixture()

	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "Physics", Section: "A"})
	require.NoError(t, err)
	assert.Equal(t, "generated", class.ID)
	assert.True(t, class.Active)
	assert.Contains(t, repo.classes, "generated")
}

func TestClassServiceCreateRejectsActiveDuplicate(t *testing.T) {
	svc, _ := newClassFixture()

	_, err := svc.Create(context.Background(), CreateClassRequest{Name: "Mathematics", Section: "A"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestClassServiceCreateReusesDeactivatedPair(t *testing.T) {
	svc, _ := newClassFixture()

	// c2 holds Mathematics/B but is inactive, so the pair is free.
	class, err := svc.Create(context.Background(), CreateClassRequest{Name: "Mathematics", Section: "B"})
	require.NoError(t, err)
	assert.True(t, class.Active)
}

func TestClassServiceUpdateRename(t *testing.T) {
	svc, repo := newClassFixture()

	class, err := svc.Update(context.Background(), "c1", UpdateClassRequest{Section: strPtr("C")})
	require.NoError(t, err)
	assert.Equal(t, "C", class.Section)
	assert.Equal(t, "C", repo.classes["c1"].Section)
}

func TestClassServiceUpdateRejectsCollision(t *testing.T) {
	svc, repo := newClassFixture()
	repo.classes["c3"] = models.Class{ID: "c3", Name: "Mathematics", Section: "C", Active: true}

	_, err := svc.Update(context.Background(), "c1", UpdateClassRequest{Section: strPtr("C")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestClassServiceReactivateChecksUniqueness(t *testing.T) {
	svc, repo := newClassFixture()
	repo.classes["c3"] = models.Class{ID: "c3", Name: "Mathematics", Section: "B", Active: true}

	_, err := svc.Update(context.Background(), "c2", UpdateClassRequest{Active: boolPtr(true)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestClassServiceGetNotFound(t *testing.T) {
	svc, _ := newClassFixture()

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
