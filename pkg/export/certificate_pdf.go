package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Certificate carries the fields rendered onto a graduation certificate.
type Certificate struct {
	StudentName   string
	BatchName     string
	CertificateNo string
	Grade         string
	Percentage    float64
	CGPA          float64
	Date          string
	Institution   string
}

// CertificatePDF renders graduation certificates.
type CertificatePDF struct{}

// NewCertificatePDF constructs a certificate renderer.
func NewCertificatePDF() *CertificatePDF {
	return &CertificatePDF{}
}

// Render creates a landscape A4 certificate document.
func (e *CertificatePDF) Render(cert Certificate) ([]byte, error) {
	if cert.StudentName == "" || cert.CertificateNo == "" {
		return nil, fmt.Errorf("certificate requires student name and number")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetDrawColor(60, 60, 60)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 277, 190, "D")

	if cert.Institution != "" {
		pdf.SetFont("Times", "B", 16)
		pdf.CellFormat(0, 12, cert.Institution, "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Times", "B", 28)
	pdf.CellFormat(0, 20, "Certificate of Graduation", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Times", "", 13)
	pdf.CellFormat(0, 8, "This is to certify that", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 22)
	pdf.CellFormat(0, 14, cert.StudentName, "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "", 13)
	pdf.CellFormat(0, 8, fmt.Sprintf("has successfully completed the programme of batch %s", cert.BatchName), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Times", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Overall grade %s with %.2f%% (CGPA %.2f)", cert.Grade, cert.Percentage, cert.CGPA), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Times", "I", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Certificate No. %s", cert.CertificateNo), "", 1, "C", false, 0, "")
	if cert.Date != "" {
		pdf.CellFormat(0, 7, fmt.Sprintf("Awarded on %s", cert.Date), "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
