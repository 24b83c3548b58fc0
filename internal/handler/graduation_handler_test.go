package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/lms-api/internal/middleware"
	"github.com/openlms/lms-api/internal/models"
	"github.com/openlms/lms-api/internal/service"
	appErrors "github.com/openlms/lms-api/pkg/errors"
)

type graduationServiceMock struct {
	listResp       []models.GraduationDetail
	listErr        error
	lastFilter     models.GraduationFilter
	graduateResp   *models.Graduation
	graduateErr    error
	lastGraduate   service.GraduateStudentRequest
	batchResp      *models.GraduateBatchResult
	batchErr       error
	lastBatch      service.GraduateBatchRequest
	statsResp      *models.GraduationStatistics
	revokeErr      error
	lastRevokedBy  string
	graduateCalled bool
	batchCalled    bool
}

func (m *graduationServiceMock) List(ctx context.Context, filter models.GraduationFilter) ([]models.GraduationDetail, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, m.listErr
}

func (m *graduationServiceMock) Get(ctx context.Context, id string) (*models.Graduation, error) {
	return m.graduateResp, m.graduateErr
}

func (m *graduationServiceMock) GraduateStudent(ctx context.Context, req service.GraduateStudentRequest) (*models.Graduation, error) {
	m.graduateCalled = true
	m.lastGraduate = req
	return m.graduateResp, m.graduateErr
}

func (m *graduationServiceMock) GraduateBatch(ctx context.Context, req service.GraduateBatchRequest) (*models.GraduateBatchResult, error) {
	m.batchCalled = true
	m.lastBatch = req
	return m.batchResp, m.batchErr
}

func (m *graduationServiceMock) Update(ctx context.Context, id string, req service.UpdateGraduationRequest) (*models.Graduation, error) {
	return m.graduateResp, m.graduateErr
}

func (m *graduationServiceMock) Revoke(ctx context.Context, id, revokedBy string) error {
	m.lastRevokedBy = revokedBy
	return m.revokeErr
}

func (m *graduationServiceMock) Statistics(ctx context.Context, batchID string) (*models.GraduationStatistics, error) {
	return m.statsResp, nil
}

func adminContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	return c, w
}

func TestGraduationHandlerList(t *testing.T) {
	mockSvc := &graduationServiceMock{
		listResp: []models.GraduationDetail{{StudentName: "Student One"}},
	}
	handler := NewGraduationHandler(mockSvc, nil)

	c, w := adminContext(t, http.MethodGet, "/graduations?batchId=b1&awarded=true", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b1", mockSvc.lastFilter.BatchID)
	require.NotNil(t, mockSvc.lastFilter.IsAwarded)
	assert.True(t, *mockSvc.lastFilter.IsAwarded)
}

func TestGraduationHandlerGraduateStudent(t *testing.T) {
	mockSvc := &graduationServiceMock{
		graduateResp: &models.Graduation{ID: "grad-1", CertificateNo: "BATCH-2025-0001"},
	}
	handler := NewGraduationHandler(mockSvc, service.NewMetricsService())

	payload, _ := json.Marshal(service.GraduateStudentRequest{
		BatchID:        "b1",
		StudentID:      "s1",
		GraduationDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	c, w := adminContext(t, http.MethodPost, "/graduations", payload)
	handler.GraduateStudent(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.graduateCalled)
	assert.Equal(t, "admin", mockSvc.lastGraduate.CreatedBy)
}

func TestGraduationHandlerGraduateStudentInvalidBody(t *testing.T) {
	handler := NewGraduationHandler(&graduationServiceMock{}, nil)

	c, w := adminContext(t, http.MethodPost, "/graduations", []byte(`{"batch_id":`))
	handler.GraduateStudent(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraduationHandlerGraduateStudentConflict(t *testing.T) {
	mockSvc := &graduationServiceMock{graduateErr: appErrors.ErrAlreadyGraduated}
	handler := NewGraduationHandler(mockSvc, nil)

	payload, _ := json.Marshal(service.GraduateStudentRequest{
		BatchID:        "b1",
		StudentID:      "s1",
		GraduationDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	c, w := adminContext(t, http.MethodPost, "/graduations", payload)
	handler.GraduateStudent(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestGraduationHandlerGraduateBatch(t *testing.T) {
	mockSvc := &graduationServiceMock{
		batchResp: &models.GraduateBatchResult{Graduated: 3},
	}
	handler := NewGraduationHandler(mockSvc, service.NewMetricsService())

	payload, _ := json.Marshal(service.GraduateBatchRequest{
		BatchID:        "b1",
		GraduationDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	c, w := adminContext(t, http.MethodPost, "/graduations/batch", payload)
	handler.GraduateBatch(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.batchCalled)
	assert.Equal(t, "admin", mockSvc.lastBatch.CreatedBy)
}

func TestGraduationHandlerGraduateBatchNotReady(t *testing.T) {
	mockSvc := &graduationServiceMock{batchErr: appErrors.ErrBatchNotReady}
	handler := NewGraduationHandler(mockSvc, nil)

	payload, _ := json.Marshal(service.GraduateBatchRequest{
		BatchID:        "b1",
		GraduationDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	})
	c, w := adminContext(t, http.MethodPost, "/graduations/batch", payload)
	handler.GraduateBatch(c)

	require.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestGraduationHandlerRevoke(t *testing.T) {
	mockSvc := &graduationServiceMock{}
	handler := NewGraduationHandler(mockSvc, nil)

	c, w := adminContext(t, http.MethodDelete, "/graduations/grad-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "grad-1"}}
	handler.Revoke(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "admin", mockSvc.lastRevokedBy)
}
