package receipt

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/therapyassist/therapy-api/internal/model"
)

const dateLayout = "2006-01-02 15:04 MST"

// Renderer draws payment receipts as single-page A4 PDFs.
type Renderer struct {
	practiceName string
}

func NewRenderer(practiceName string) *Renderer {
	return &Renderer{practiceName: practiceName}
}

// Filename is the attachment name used for a payment's receipt.
func Filename(p *model.Payment) string {
	return fmt.Sprintf("receipt-%s.pdf", p.ID.String()[:8])
}

func (r *Renderer) Render(p *model.Payment) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Payment receipt", true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(r.practiceName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, "Payment receipt", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	patientName := p.PatientID.String()
	if p.Patient != nil {
		patientName = p.Patient.Name
	}

	detail(pdf, "Receipt no.", p.ID.String())
	detail(pdf, "Date", p.PaymentDate.UTC().Format(dateLayout))
	detail(pdf, "Patient", tr(patientName))
	detail(pdf, "Method", string(p.Method))
	if p.Description != nil && *p.Description != "" {
		detail(pdf, "Description", tr(*p.Description))
	}
	pdf.Ln(6)

	if len(p.Appointments) > 0 {
		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(60, 8, "Session date", "1", 0, "", true, 0, "")
		pdf.CellFormat(60, 8, "Time", "1", 0, "", true, 0, "")
		pdf.CellFormat(0, 8, "Price", "1", 1, "R", true, 0, "")

		pdf.SetFont("Arial", "", 10)
		for _, a := range p.Appointments {
			pdf.CellFormat(60, 8, a.Date.String(), "1", 0, "", false, 0, "")
			pdf.CellFormat(60, 8, fmt.Sprintf("%s - %s", a.StartTime, a.EndTime), "1", 0, "", false, 0, "")
			pdf.CellFormat(0, 8, a.Price.StringFixed(model.MoneyScale), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(120, 10, "Amount paid", "1", 0, "", false, 0, "")
	pdf.CellFormat(0, 10, p.Amount.StringFixed(model.MoneyScale), "1", 1, "R", false, 0, "")

	pdf.Ln(12)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 6, "This receipt was generated electronically and is valid without a signature.", "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func detail(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(45, 8, label, "1", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, value, "1", 1, "", false, 0, "")
}
