package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
	"github.com/openlms/lms-api/pkg/export"
	"github.com/openlms/lms-api/pkg/storage"
)

type mockCertificateGraduations struct {
	graduations map[string]models.Graduation
	register    []models.GraduationDetail
	updated     []models.Graduation
}

func (m *mockCertificateGraduations) FindByID(ctx context.Context, id string) (*models.Graduation, error) {
	if g, ok := m.graduations[id]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCertificateGraduations) ListByBatch(ctx context.Context, batchID string) ([]models.GraduationDetail, error) {
	return m.register, nil
}

func (m *mockCertificateGraduations) Update(ctx context.Context, graduation *models.Graduation) error {
	m.graduations[graduation.ID] = *graduation
	m.updated = append(m.updated, *graduation)
	return nil
}

type mockRenderer struct {
	rendered []export.Certificate
}

func (m *mockRenderer) Render(cert export.Certificate) ([]byte, error) {
	m.rendered = append(m.rendered, cert)
	return []byte("%PDF-1.4 stub"), nil
}

type mockTabularExporter struct {
	datasets []export.Dataset
}

func (m *mockTabularExporter) Render(data export.Dataset) ([]byte, error) {
	m.datasets = append(m.datasets, data)
	return []byte("csv"), nil
}

type mockWorkbookExporter struct {
	datasets []export.Dataset
	sheets   []string
}

func (m *mockWorkbookExporter) Render(data export.Dataset, sheet string) ([]byte, error) {
	m.datasets = append(m.datasets, data)
	m.sheets = append(m.sheets, sheet)
	return []byte("xlsx"), nil
}

type certificateFixture struct {
	svc         *CertificateService
	graduations *mockCertificateGraduations
	renderer    *mockRenderer
	csv         *mockTabularExporter
	excel       *mockWorkbookExporter
}

func newCertificateFixture(t *testing.T) *certificateFixture {
	t.Helper()
	graduations := &mockCertificateGraduations{
		graduations: map[string]models.Graduation{
			"grad-1": {
				ID:                "grad-1",
				BatchID:           "b1",
				StudentID:         "s1",
				GraduationDate:    time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
				OverallGrade:      models.GradeAPlus,
				OverallPercentage: 91.25,
				CGPA:              9.13,
				CertificateNo:     "BATCH-2025-0001",
			},
		},
		register: []models.GraduationDetail{
			{
				Graduation: models.Graduation{
					CertificateNo:     "BATCH-2025-0001",
					GraduationDate:    time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
					OverallGrade:      models.GradeAPlus,
					OverallPercentage: 91.25,
					CGPA:              9.13,
					IsAwarded:         true,
				},
				StudentName: "Student One",
				BatchName:   "Batch 2025",
			},
		},
	}
	batches := &mockGraduationBatchRepo{batches: map[string]models.Batch{
		"b1": {ID: "b1", Name: "Batch 2025", EndYear: 2025, Status: models.BatchStatusGraduated},
	}}
	users := &mockUserReader{users: map[string]models.User{
		"s1": {ID: "s1", FullName: "Student One", Role: models.RoleStudent, Active: true},
	}}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	renderer := &mockRenderer{}
	csv := &mockTabularExporter{}
	excel := &mockWorkbookExporter{}
	svc := NewCertificateService(
		graduations, batches, users, renderer, store,
		storage.NewSignedURLSigner("secret", time.Hour),
		csv, excel, "Open LMS Academy", zap.NewNop(),
	)
	return &certificateFixture{svc: svc, graduations: graduations, renderer: renderer, csv: csv, excel: excel}
}

func TestCertificateServiceRender(t *testing.T) {
	f := newCertificateFixture(t)

	graduation, err := f.svc.Render(context.Background(), "grad-1")
	require.NoError(t, err)
	assert.True(t, graduation.IsAwarded)
	require.NotNil(t, graduation.CertificateURL)
	assert.Equal(t, "2025/BATCH-2025-0001.pdf", *graduation.CertificateURL)
	require.NotNil(t, graduation.AwardedAt)
	assert.WithinDuration(t, time.Now().UTC(), *graduation.AwardedAt, time.Second)

	require.Len(t, f.renderer.rendered, 1)
	cert := f.renderer.rendered[0]
	assert.Equal(t, "Student One", cert.StudentName)
	assert.Equal(t, "Batch 2025", cert.BatchName)
	assert.Equal(t, "BATCH-2025-0001", cert.CertificateNo)
	assert.Equal(t, "A_PLUS", cert.Grade)
	assert.Equal(t, "15 June 2025", cert.Date)
	assert.Equal(t, "Open LMS Academy", cert.Institution)

	require.Len(t, f.graduations.updated, 1)
}

func TestCertificateServiceRenderNotFound(t *testing.T) {
	f := newCertificateFixture(t)

	_, err := f.svc.Render(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceSignedDownloadRoundtrip(t *testing.T) {
	f := newCertificateFixture(t)

	_, _, err := f.svc.SignedDownloadURL(context.Background(), "grad-1")
	require.Error(t, err, "certificate must be rendered before it can be signed")

	_, err = f.svc.Render(context.Background(), "grad-1")
	require.NoError(t, err)

	token, expiresAt, err := f.svc.SignedDownloadURL(context.Background(), "grad-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Second)

	file, err := f.svc.OpenByToken(token)
	require.NoError(t, err)
	defer file.Close()
	assert.True(t, strings.HasSuffix(file.Name(), "BATCH-2025-0001.pdf"))
}

func TestCertificateServiceOpenByTokenRejectsGarbage(t *testing.T) {
	f := newCertificateFixture(t)

	_, err := f.svc.OpenByToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestCertificateServiceRegisterCSV(t *testing.T) {
	f := newCertificateFixture(t)

	data, err := f.svc.RegisterCSV(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, []byte("csv"), data)

	require.Len(t, f.csv.datasets, 1)
	dataset := f.csv.datasets[0]
	assert.Equal(t, []string{"Certificate No", "Student", "Batch", "Graduation Date", "Grade", "Percentage", "CGPA", "Awarded"}, dataset.Headers)
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "BATCH-2025-0001", dataset.Rows[0]["Certificate No"])
	assert.Equal(t, "Student One", dataset.Rows[0]["Student"])
	assert.Equal(t, "2025-06-15", dataset.Rows[0]["Graduation Date"])
	assert.Equal(t, "91.25", dataset.Rows[0]["Percentage"])
	assert.Equal(t, "true", dataset.Rows[0]["Awarded"])
}

func TestCertificateServiceRegisterExcel(t *testing.T) {
	f := newCertificateFixture(t)

	data, err := f.svc.RegisterExcel(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, []byte("xlsx"), data)
	assert.Equal(t, []string{"Graduation Register"}, f.excel.sheets)
}

func TestCertificateServiceRegisterUnknownBatch(t *testing.T) {
	f := newCertificateFixture(t)

	_, err := f.svc.RegisterCSV(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
