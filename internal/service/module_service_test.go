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

type mockModuleRepo struct {
	modules map[string]models.Module
}

func (m *mockModuleRepo) FindByID(ctx context.Context, id string) (*models.Module, error) {
	if mod, ok := m.modules[id]; ok {
		return &mod, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockModuleRepo) List(ctx context.Context, filter models.ModuleFilter) ([]models.Module, int, error) {
	var list []models.Module
	for _, mod := range m.modules {
		list = append(list, mod)
	}
	return list, len(list), nil
}

func (m *mockModuleRepo) Create(ctx context.Context, module *models.Module) error {
	module.ID = "generated"
	m.modules[module.ID] = *module
	return nil
}

func (m *mockModuleRepo) Update(ctx context.Context, module *models.Module) error {
	m.modules[module.ID] = *module
	return nil
}

func newModuleFixture() (*ModuleService, *mockModuleRepo) {
	repo := &mockModuleRepo{modules: map[string]models.Module{
		"m1": {ID: "m1", Title: "Algebra", Status: models.ModuleStatusDraft, CreatedBy: "admin"},
	}}
	return NewModuleService(repo, nil, zap.NewNop()), repo
}

func TestModuleServiceCreateStartsDraft(t *testing.T) {
	svc, repo := newModuleFixture()

	module, err := svc.Create(context.Background(), CreateModuleRequest{
		Title:     "Geometry",
		CreatedBy: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ModuleStatusDraft, module.Status)
	assert.Contains(t, repo.modules, "generated")
}

func TestModuleServiceCreateRequiresTitle(t *testing.T) {
	svc, _ := newModuleFixture()

	_, err := svc.Create(context.Background(), CreateModuleRequest{CreatedBy: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestModuleServicePublish(t *testing.T) {
	svc, repo := newModuleFixture()

	status := models.ModuleStatusPublished
	module, err := svc.Update(context.Background(), "m1", UpdateModuleRequest{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.ModuleStatusPublished, module.Status)
	assert.Equal(t, models.ModuleStatusPublished, repo.modules["m1"].Status)
}

func TestModuleServiceUpdateRejectsUnknownStatus(t *testing.T) {
	svc, _ := newModuleFixture()

	status := models.ModuleStatus("RETIRED")
	_, err := svc.Update(context.Background(), "m1", UpdateModuleRequest{Status: &status})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestModuleServiceGetNotFound(t *testing.T) {
	svc, _ := newModuleFixture()

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
