package infra

// pdf.go — Z-report generation using go-pdf/fpdf.
// Produces a one-page summary of a closed drawer session:
//   - Opening balance and open/close timestamps
//   - Running totals (cash sales, refunds, manual in/out)
//   - Expected vs counted balance
//   - Discrepancy with classification and severity
//
// The output file is saved to storagePath/zreport_{session_id}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/model"

	"github.com/go-pdf/fpdf"
)

// GenerateZReportPDF renders the close report for a CLOSED session.
// storagePath is created if needed. Returns the absolute path of the file.
func GenerateZReportPDF(s *model.DrawerSession, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("zreport_%s.pdf", s.ID)
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 20

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(contentW, 8, "Drawer Session Z-Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Session %s", s.ID), "", 1, "C", false, 0, "")
	pdf.Ln(3)

	row := func(label, value string) {
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(contentW*0.55, 6, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.45, 6, value, "", 1, "R", false, 0, "")
	}

	row("Opened", s.OpenedAt.Format("02/01/2006 15:04"))
	if s.ClosedAt != nil {
		row("Closed", s.ClosedAt.Format("02/01/2006 15:04"))
	}
	pdf.Line(10, pdf.GetY(), pageW-10, pdf.GetY())
	pdf.Ln(2)

	row("Opening balance", "$"+s.OpeningBalance.StringFixed(2))
	row("Cash sales", "$"+s.CashSales.StringFixed(2))
	row("Cash refunds", "-$"+s.CashRefunds.StringFixed(2))
	row("Manual in", "$"+s.CashIn.StringFixed(2))
	row("Manual out", "-$"+s.CashOut.StringFixed(2))
	pdf.Line(10, pdf.GetY(), pageW-10, pdf.GetY())
	pdf.Ln(2)

	if s.ExpectedBalance != nil {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(contentW*0.55, 7, "Expected", "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.45, 7, "$"+s.ExpectedBalance.StringFixed(2), "", 1, "R", false, 0, "")
	}
	if s.ClosingBalance != nil {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(contentW*0.55, 7, "Counted", "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.45, 7, "$"+s.ClosingBalance.StringFixed(2), "", 1, "R", false, 0, "")
	}

	if s.Discrepancy != nil && s.Classification != nil {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 11)
		label := fmt.Sprintf("Discrepancy (%s)", *s.Classification)
		pdf.CellFormat(contentW*0.55, 8, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.45, 8, "$"+s.Discrepancy.StringFixed(2), "", 1, "R", false, 0, "")

		if s.Severity != nil {
			pdf.SetFont("Helvetica", "I", 8)
			pdf.CellFormat(contentW, 5, "severity: "+*s.Severity, "", 1, "L", false, 0, "")
		}
	}

	if s.Notes != nil && *s.Notes != "" {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "", 8)
		pdf.MultiCell(contentW, 4, "Notes: "+*s.Notes, "", "L", false)
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}

	return filePath, nil
}
