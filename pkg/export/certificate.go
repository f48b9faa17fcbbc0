package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries the attended immersions of one student for
// the attendance certificate.
type CertificateData struct {
	StudentName    string
	HighSchool     string
	EstablishThumb string
	Lines          []CertificateLine
}

// CertificateLine is one attended slot.
type CertificateLine struct {
	Date      string
	StartTime string
	EndTime   string
	Label     string
	Campus    string
	Building  string
}

// CertificateExporter renders attendance certificates as PDF.
type CertificateExporter struct{}

// NewCertificateExporter constructs a certificate exporter.
func NewCertificateExporter() *CertificateExporter {
	return &CertificateExporter{}
}

// Render produces the certificate document.
func (e *CertificateExporter) Render(data CertificateData) ([]byte, error) {
	if data.StudentName == "" {
		return nil, fmt.Errorf("certificate requires a student name")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 12, "ATTESTATION DE PRESENCE", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 7, fmt.Sprintf("This certifies that %s (%s) attended the following immersion slots:",
		data.StudentName, data.HighSchool), "", "L", false)
	pdf.Ln(4)

	headers := []string{"Date", "Start", "End", "Slot", "Campus", "Building"}
	widths := []float64{25, 18, 18, 60, 30, 29}

	pdf.SetFont("Arial", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, line := range data.Lines {
		cells := []string{line.Date, line.StartTime, line.EndTime, line.Label, line.Campus, line.Building}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
