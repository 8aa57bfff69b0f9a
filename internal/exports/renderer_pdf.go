package exports

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
)

// PDFRenderer renders a report as an A4 portrait PDF.
type PDFRenderer struct{}

func (r *PDFRenderer) Format() string { return FormatPDF }

func (r *PDFRenderer) ContentType() string { return "application/pdf" }

func (r *PDFRenderer) Render(report reports.Report) ([]byte, error) {
	if len(report.Content) == 0 {
		return nil, fmt.Errorf("report %s has no content to render", report.ID)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("{nb}")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(108, 117, 125)
		pdf.SetX(15)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(33, 37, 41)
	pdf.MultiCell(0, 12, report.Title, "", "L", false)

	pdf.Ln(2)
	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(108, 117, 125)
	pdf.CellFormat(0, 8, fmt.Sprintf("%s | %s", workflowLabel(report.Workflow), strings.Join(report.Companies, ", ")), "", 0, "L", false, 0, "")
	pdf.Ln(12)

	for _, section := range report.Sections {
		text, ok := report.Content[section]
		if !ok {
			continue
		}
		pdf.SetFont("Arial", "B", 15)
		pdf.SetTextColor(33, 37, 41)
		pdf.CellFormat(0, 10, sectionLabel(section), "", 0, "L", false, 0, "")
		pdf.Ln(10)
		pdf.SetLineWidth(0.4)
		pdf.SetDrawColor(0, 102, 204)
		pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
		pdf.Ln(4)

		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(52, 58, 64)
		for _, paragraph := range strings.Split(text, "\n\n") {
			paragraph = strings.TrimSpace(paragraph)
			if paragraph == "" {
				continue
			}
			pdf.MultiCell(180, 5, paragraph, "", "L", false)
			pdf.Ln(3)
		}
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), nil
}

func workflowLabel(workflow string) string {
	switch workflow {
	case reports.WorkflowDueDiligence:
		return "Due Diligence"
	case reports.WorkflowCompetitiveLandscape:
		return "Competitive Landscape"
	default:
		return "Company Profile"
	}
}

func sectionLabel(section string) string {
	words := strings.Split(section, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		if word == "and" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
