package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"handout/internal/runspec"
)

const (
	pageMargin   = 15.0
	blockSpacing = 8.0
	textHeight   = 5.5
)

// WritePDF renders title and slides to path.
func WritePDF(path, title string, slides []runspec.Slide) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure pdf directory: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("handout", false)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pageMargin + 3)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 6, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.MultiCell(0, 10, tr(title), "", "C", false)
	pdf.Ln(6)

	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin
	bottom := pageH - pageMargin

	for i, slide := range slides {
		if slide.ImagePath != "" {
			opts := gofpdf.ImageOptions{ImageType: imageType(slide.ImagePath)}
			info := pdf.RegisterImageOptions(slide.ImagePath, opts)
			if err := pdf.Error(); err != nil {
				return fmt.Errorf("slide %d image: %w", i+1, err)
			}
			h := contentW
			if info.Width() > 0 {
				h = contentW * info.Height() / info.Width()
			}
			if pdf.GetY()+h > bottom {
				pdf.AddPage()
			}
			y := pdf.GetY()
			pdf.ImageOptions(slide.ImagePath, pageMargin, y, contentW, h, false, opts, 0, "")
			pdf.SetY(y + h + 3)
		}
		if text := strings.TrimSpace(slide.CaptionText); text != "" {
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, textHeight, tr(text), "", "L", false)
		}
		pdf.Ln(blockSpacing)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func imageType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "PNG"
	default:
		return "JPG"
	}
}

// PageCount reads the number of pages in a PDF.
func PageCount(path string) (int, error) {
	return api.PageCountFile(path)
}
