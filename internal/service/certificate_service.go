package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/openlms/lms-api/internal/models"
	appErrors "github.com/openlms/lms-api/pkg/errors"
	"github.com/openlms/lms-api/pkg/export"
)

type certificateGraduationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Graduation, error)
	ListByBatch(ctx context.Context, batchID string) ([]models.GraduationDetail, error)
	Update(ctx context.Context, graduation *models.Graduation) error
}

type certificateRenderer interface {
	Render(cert export.Certificate) ([]byte, error)
}

type documentStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type urlSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string) (resourceID, relPath string, expiresAt time.Time, err error)
}

type tabularExporter interface {
	Render(data export.Dataset) ([]byte, error)
}

type workbookExporter interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
}

// CertificateService renders graduation certificates, stores them, and
// exposes signed downloads plus the batch graduation register.
type CertificateService struct {
	graduations certificateGraduationRepository
	batches     graduationBatchRepository
	users       enrollmentUserReader
	renderer    certificateRenderer
	store       documentStore
	signer      urlSigner
	csv         tabularExporter
	excel       workbookExporter
	institution string
	logger      *zap.Logger
}

// NewCertificateService constructs CertificateService.
func NewCertificateService(graduations certificateGraduationRepository, batches graduationBatchRepository, users enrollmentUserReader, renderer certificateRenderer, store documentStore, signer urlSigner, csv tabularExporter, excel workbookExporter, institution string, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		graduations: graduations,
		batches:     batches,
		users:       users,
		renderer:    renderer,
		store:       store,
		signer:      signer,
		csv:         csv,
		excel:       excel,
		institution: institution,
		logger:      logger,
	}
}

// Render produces the certificate document for a graduation, stores it and
// marks the graduation awarded.
func (s *CertificateService) Render(ctx context.Context, graduationID string) (*models.Graduation, error) {
	graduation, err := s.graduations.FindByID(ctx, graduationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "graduation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graduation")
	}
	student, err := s.users.FindByID(ctx, graduation.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	batch, err := s.batches.FindByID(ctx, graduation.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	document, err := s.renderer.Render(export.Certificate{
		StudentName:   student.FullName,
		BatchName:     batch.Name,
		CertificateNo: graduation.CertificateNo,
		Grade:         string(graduation.OverallGrade),
		Percentage:    graduation.OverallPercentage,
		CGPA:          graduation.CGPA,
		Date:          graduation.GraduationDate.Format("2 January 2006"),
		Institution:   s.institution,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}

	filename := fmt.Sprintf("%d/%s.pdf", batch.EndYear, graduation.CertificateNo)
	relPath, err := s.store.Save(filename, document)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}

	now := time.Now().UTC()
	graduation.CertificateURL = &relPath
	graduation.IsAwarded = true
	graduation.AwardedAt = &now
	if err := s.graduations.Update(ctx, graduation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark graduation awarded")
	}
	s.logger.Info("certificate rendered",
		zap.String("graduation_id", graduation.ID),
		zap.String("certificate_no", graduation.CertificateNo),
	)
	return graduation, nil
}

// SignedDownloadURL returns a signed token for fetching a rendered certificate.
func (s *CertificateService) SignedDownloadURL(ctx context.Context, graduationID string) (string, time.Time, error) {
	graduation, err := s.graduations.FindByID(ctx, graduationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "graduation not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graduation")
	}
	if graduation.CertificateURL == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "certificate has not been rendered")
	}
	token, expiresAt, err := s.signer.Generate(graduation.ID, *graduation.CertificateURL)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return token, expiresAt, nil
}

// OpenByToken validates a signed token and opens the referenced document.
func (s *CertificateService) OpenByToken(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate file not found")
	}
	return file, nil
}

// RegisterCSV exports the batch graduation register as CSV.
func (s *CertificateService) RegisterCSV(ctx context.Context, batchID string) ([]byte, error) {
	dataset, err := s.registerDataset(ctx, batchID)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(*dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render register csv")
	}
	return data, nil
}

// RegisterExcel exports the batch graduation register as a workbook.
func (s *CertificateService) RegisterExcel(ctx context.Context, batchID string) ([]byte, error) {
	dataset, err := s.registerDataset(ctx, batchID)
	if err != nil {
		return nil, err
	}
	data, err := s.excel.Render(*dataset, "Graduation Register")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render register workbook")
	}
	return data, nil
}

func (s *CertificateService) registerDataset(ctx context.Context, batchID string) (*export.Dataset, error) {
	if _, err := s.batches.FindByID(ctx, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "batch not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	graduations, err := s.graduations.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graduations")
	}
	dataset := &export.Dataset{
		Headers: []string{"Certificate No", "Student", "Batch", "Graduation Date", "Grade", "Percentage", "CGPA", "Awarded"},
		Rows:    make([]map[string]string, 0, len(graduations)),
	}
	for _, g := range graduations {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Certificate No":  g.CertificateNo,
			"Student":         g.StudentName,
			"Batch":           g.BatchName,
			"Graduation Date": g.GraduationDate.Format("2006-01-02"),
			"Grade":           string(g.OverallGrade),
			"Percentage":      fmt.Sprintf("%.2f", g.OverallPercentage),
			"CGPA":            fmt.Sprintf("%.2f", g.CGPA),
			"Awarded":         fmt.Sprintf("%t", g.IsAwarded),
		})
	}
	return dataset, nil
}
