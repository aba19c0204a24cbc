package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

// Column widths in mm; they add up to the printable width of A4 with 14mm
// margins.
var pdfColumnWidths = []float64{34, 34, 30, 14, 26, 44}

const (
	pdfMargin     = 14.0
	pdfRowHeight  = 6.0
	pdfFontSize   = 9.0
	pdfTitleSize  = 16.0
	pdfTableStart = 30.0
)

// The core PDF fonts have no rupee glyph.
var pdfText = strings.NewReplacer("₹", "Rs. ")

// WritePDF renders t as an A4 document with a filled header row.
func WritePDF(w io.Writer, t Table) error {
	if len(t.Rows) == 0 {
		return ErrNothingToExport
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(t.Title, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	cell := func(s string) string { return tr(pdfText.Replace(s)) }

	header := func() {
		pdf.SetFont("Helvetica", "B", pdfFontSize)
		pdf.SetFillColor(40, 116, 240)
		pdf.SetTextColor(255, 255, 255)
		for i, h := range t.Header {
			if i >= len(pdfColumnWidths) {
				break
			}
			pdf.CellFormat(pdfColumnWidths[i], pdfRowHeight+1, cell(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", pdfFontSize)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", pdfTitleSize)
	pdf.Text(pdfMargin, 22, cell(t.Title))
	pdf.SetY(pdfTableStart)
	header()

	_, pageHeight := pdf.GetPageSize()
	for _, row := range t.Rows {
		if pdf.GetY()+pdfRowHeight > pageHeight-pdfMargin {
			pdf.AddPage()
			header()
		}
		for i, v := range row {
			if i >= len(pdfColumnWidths) {
				break
			}
			text := fitText(pdf, cell(v), pdfColumnWidths[i]-2)
			pdf.CellFormat(pdfColumnWidths[i], pdfRowHeight, text, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// fitText shortens s with a trailing ".." until it fits width.
func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"..") > width {
		s = s[:len(s)-1]
	}
	return s + ".."
}
