package exports

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
)

// DOCXRenderer builds a minimal WordprocessingML package: the content types
// manifest, the package relationships, and word/document.xml.
type DOCXRenderer struct{}

func (r *DOCXRenderer) Format() string { return FormatDOCX }

func (r *DOCXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func (r *DOCXRenderer) Render(report reports.Report) ([]byte, error) {
	if len(report.Content) == 0 {
		return nil, fmt.Errorf("report %s has no content to render", report.ID)
	}

	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	writeHeading(&doc, report.Title, 32)
	writeParagraph(&doc, workflowLabel(report.Workflow)+" | "+strings.Join(report.Companies, ", "))

	for _, section := range report.Sections {
		text, ok := report.Content[section]
		if !ok {
			continue
		}
		writeHeading(&doc, sectionLabel(section), 26)
		for _, paragraph := range strings.Split(text, "\n\n") {
			paragraph = strings.TrimSpace(paragraph)
			if paragraph == "" {
				continue
			}
			writeParagraph(&doc, paragraph)
		}
	}

	doc.WriteString(`<w:sectPr/></w:body></w:document>`)

	var output bytes.Buffer
	writer := zip.NewWriter(&output)
	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
		{"word/document.xml", doc.String()},
	}
	for _, part := range parts {
		entry, err := writer.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", part.name, err)
		}
		if _, err := entry.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("write %s: %w", part.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close package: %w", err)
	}
	return output.Bytes(), nil
}

func writeHeading(doc *strings.Builder, text string, halfPoints int) {
	fmt.Fprintf(doc,
		`<w:p><w:r><w:rPr><w:b/><w:sz w:val="%d"/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		halfPoints, escapeXML(text))
}

func writeParagraph(doc *strings.Builder, text string) {
	fmt.Fprintf(doc,
		`<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		escapeXML(text))
}

func escapeXML(text string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(text))
	return buf.String()
}
