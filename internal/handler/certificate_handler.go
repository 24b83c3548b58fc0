package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openlms/lms-api/internal/service"
	appErrors "github.com/openlms/lms-api/pkg/errors"
	"github.com/openlms/lms-api/pkg/response"
)

// CertificateHandler exposes certificate rendering, download and register export.
type CertificateHandler struct {
	certificates *service.CertificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// Render godoc
// @Summary Render the certificate document for a graduation
// @Tags Certificates
// @Produce json
// @Param id path string true "Graduation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /graduations/{id}/certificate [post]
func (h *CertificateHandler) Render(c *gin.Context) {
	graduation, err := h.certificates.Render(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, graduation, nil)
}

// SignedURL godoc
// @Summary Issue a signed download token for a certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Graduation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /graduations/{id}/certificate/url [get]
func (h *CertificateHandler) SignedURL(c *gin.Context) {
	token, expiresAt, err := h.certificates.SignedDownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"download_url": fmt.Sprintf("/api/v1/certificates/download?token=%s", token),
		"expires_at":   expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download a certificate using a signed token
// @Tags Certificates
// @Produce application/pdf
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /certificates/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	file, err := h.certificates.OpenByToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat certificate"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
}

// RegisterCSV godoc
// @Summary Export the batch graduation register as CSV
// @Tags Certificates
// @Produce text/csv
// @Param id path string true "Batch ID"
// @Success 200 {file} binary
// @Router /batches/{id}/graduation-register.csv [get]
func (h *CertificateHandler) RegisterCSV(c *gin.Context) {
	data, err := h.certificates.RegisterCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\"graduation-register.csv\"")
	c.Data(http.StatusOK, "text/csv", data)
}

// RegisterExcel godoc
// @Summary Export the batch graduation register as a workbook
// @Tags Certificates
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Batch ID"
// @Success 200 {file} binary
// @Router /batches/{id}/graduation-register.xlsx [get]
func (h *CertificateHandler) RegisterExcel(c *gin.Context) {
	data, err := h.certificates.RegisterExcel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\"graduation-register.xlsx\"")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
