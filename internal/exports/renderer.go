package exports

import (
	"fmt"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
)

// Renderer turns a completed report into a downloadable artifact.
type Renderer interface {
	Format() string
	ContentType() string
	Render(report reports.Report) ([]byte, error)
}

// RendererSet maps formats to renderers.
type RendererSet map[string]Renderer

// NewRendererSet registers the default PDF and DOCX renderers.
func NewRendererSet() RendererSet {
	set := RendererSet{}
	for _, renderer := range []Renderer{&PDFRenderer{}, &DOCXRenderer{}} {
		set[renderer.Format()] = renderer
	}
	return set
}

// For returns the renderer for a format.
func (s RendererSet) For(format string) (Renderer, error) {
	renderer, ok := s[format]
	if !ok {
		return nil, fmt.Errorf("no renderer for format %q", format)
	}
	return renderer, nil
}
