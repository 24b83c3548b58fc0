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

type mockBatchRepo struct {
	batches map[string]models.Batch
	links   map[string]bool
	linked  []models.ClassBatch
	status  map[string]models.BatchStatus
}

func (m *mockBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	if b, ok := m.batches[id]; ok {
		return &b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockBatchRepo) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	return nil, 0, nil
}

func (m *mockBatchRepo) Create(ctx context.Context, batch *models.Batch) error {
	if m.batches == nil {
		m.batches = make(map[string]models.Batch)
	}
	batch.ID = "new-batch"
	m.batches[batch.ID] = *batch
	return nil
}

func (m *mockBatchRepo) UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.BatchStatus)
	}
	m.status[id] = status
	if b, ok := m.batches[id]; ok {
		b.Status = status
		m.batches[id] = b
	}
	return nil
}

func (m *mockBatchRepo) LinkClass(ctx context.Context, link *models.ClassBatch) error {
	m.linked = append(m.linked, *link)
	return nil
}

func (m *mockBatchRepo) LinkExists(ctx context.Context, classID, batchID string) (bool, error) {
	return m.links[classID+batchID], nil
}

func (m *mockBatchRepo) ListLinks(ctx context.Context, batchID string) ([]models.ClassBatch, error) {
	return m.linked, nil
}

func newBatchFixture() (*BatchService, *mockBatchRepo) {
	repo := &mockBatchRepo{batches: map[string]models.Batch{
		"b1": {ID: "b1", Name: "Batch 2025", Status: models.BatchStatusPlanning, StartYear: 2023, EndYear: 2025},
		"b2": {ID: "b2", Name: "Batch 2024", Status: models.BatchStatusCompleted, StartYear: 2022, EndYear: 2024},
	}}
	svc := NewBatchService(repo, &mockClassReader{}, validator.New(), zap.NewNop())
	return svc, repo
}

func TestBatchServiceCreateStartsInPlanning(t *testing.T) {
	svc, _ := newBatchFixture()

	batch, err := svc.Create(context.Background(), CreateBatchRequest{Name: "Batch 2027", StartYear: 2025, EndYear: 2027})
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPlanning, batch.Status)
}

func TestBatchServiceCreateRejectsInvertedYears(t *testing.T) {
	svc, _ := newBatchFixture()

	_, err := svc.Create(context.Background(), CreateBatchRequest{Name: "Bad", StartYear: 2027, EndYear: 2025})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceTransitionForward(t *testing.T) {
	svc, repo := newBatchFixture()

	batch, err := svc.Transition(context.Background(), "b1", models.BatchStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusActive, batch.Status)
	assert.Equal(t, models.BatchStatusActive, repo.status["b1"])

	// Skipping a step forward is allowed.
	batch, err = svc.Transition(context.Background(), "b1", models.BatchStatusGraduated)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusGraduated, batch.Status)
}

func TestBatchServiceTransitionBackwardRejected(t *testing.T) {
	svc, _ := newBatchFixture()

	_, err := svc.Transition(context.Background(), "b2", models.BatchStatusActive)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// Same-status transition is also a conflict.
	_, err = svc.Transition(context.Background(), "b2", models.BatchStatusCompleted)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceTransitionUnknownStatus(t *testing.T) {
	svc, _ := newBatchFixture()

	_, err := svc.Transition(context.Background(), "b1", models.BatchStatus("FINISHED"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBatchServiceLinkClass(t *testing.T) {
	svc, repo := newBatchFixture()

	link, err := svc.LinkClass(context.Background(), "b1", LinkClassRequest{ClassID: "c1", Sequence: 1})
	require.NoError(t, err)
	assert.Equal(t, "b1", link.BatchID)
	require.Len(t, repo.linked, 1)
}

func TestBatchServiceLinkClassDuplicate(t *testing.T) {
	svc, repo := newBatchFixture()
	repo.links = map[string]bool{"c1b1": true}

	_, err := svc.LinkClass(context.Background(), "b1", LinkClassRequest{ClassID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
