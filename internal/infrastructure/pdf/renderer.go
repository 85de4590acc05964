// Package pdf assembles print-quality storybook PDFs from renderable pages
// using the gofpdf document model.
package pdf

import (
	"bytes"
	"fmt"

	gofpdf "github.com/lvillar/gofpdf"

	"github.com/fablepress/fablepress-go/internal/domain/entities/book"
	"github.com/fablepress/fablepress-go/internal/domain/entities/layout"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
)

// Output formats.
const (
	FormatPrint = "print"
	FormatWeb   = "web"
)

// ColorNoteCMYKApproximation flags print output whose embedded rasters were
// not ICC-converted. CMYK ink values are used for text, but raster color
// space conversion is not performed; downstream print vendors must not be
// told otherwise.
const ColorNoteCMYKApproximation = "cmyk-rgb-approximation"

const (
	coverTitleSize    = 36
	coverSubtitleSize = 20
	coverInkName      = "CoverInk"
	fallbackLoadText  = "Image could not be loaded"
)

// Options controls a single render pass.
type Options struct {
	OutputFormat     string // FormatPrint or FormatWeb
	Append           bool   // add pages to ExistingDocument instead of starting fresh
	ExistingDocument []byte // required when Append is true
}

// Metadata describes the rendered artifact.
type Metadata struct {
	PageCount  int             `json:"pageCount"`
	FileSize   int64           `json:"fileSize"`
	Dimensions layout.PageSize `json:"dimensions"`
	ColorNote  string          `json:"colorNote,omitempty"`
	EmbedFails int             `json:"embedFails,omitempty"`
}

// Renderer assembles multi-page PDF documents.
type Renderer struct {
	logger *logging.ChanneledLogger
}

// NewRenderer creates a PDF renderer.
func NewRenderer(logger *logging.ChanneledLogger) *Renderer {
	return &Renderer{logger: logger}
}

// Render assembles a PDF from renderable pages and the layout's settings.
// Fresh runs open with a cover page; append runs import the existing document
// and never duplicate the cover.
func (r *Renderer) Render(doc *layout.Document, pages []book.RenderablePage, opts Options) ([]byte, Metadata, error) {
	settings := doc.Settings
	pageSize := gofpdf.SizeType{Wd: settings.PageSize.Width, Ht: settings.PageSize.Height}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(doc.Title, true)

	if opts.Append {
		if len(opts.ExistingDocument) == 0 {
			return nil, Metadata{}, fmt.Errorf("pdf: append requested without existing document")
		}
		imported, err := importExisting(pdf, opts.ExistingDocument)
		if err != nil {
			return nil, Metadata{}, err
		}
		r.logger.Render().Info("Imported existing document for append", "importedPages", imported)
	} else {
		r.renderCover(pdf, doc, pageSize)
	}

	embedFails := 0
	for _, page := range pages {
		pdf.AddPageFormat("P", pageSize)

		switch page.Type {
		case layout.PageImage:
			if err := r.renderImagePage(pdf, page, settings); err != nil {
				embedFails++
				r.logger.Render().Warn("Image embed failed, drawing fallback text",
					"pageIndex", page.Index, "error", err.Error())
				r.renderFallbackText(pdf, settings, fallbackLoadText)
			}
		default:
			r.renderTextPage(pdf, page, settings)
		}
	}

	if pdf.Err() {
		return nil, Metadata{}, fmt.Errorf("pdf: rendering document: %w", pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, Metadata{}, fmt.Errorf("pdf: writing document: %w", err)
	}

	meta := Metadata{
		PageCount:  pdf.PageCount(),
		FileSize:   int64(buf.Len()),
		Dimensions: settings.PageSize,
		EmbedFails: embedFails,
	}
	if opts.OutputFormat == FormatPrint && settings.ColorProfile == layout.ProfileCMYK {
		meta.ColorNote = ColorNoteCMYKApproximation
	}

	r.logger.Render().Info("Document rendered",
		"pageCount", meta.PageCount, "fileSize", meta.FileSize,
		"append", opts.Append, "embedFails", embedFails)

	return buf.Bytes(), meta, nil
}

// renderCover draws the title page: centered title, optional subtitle below,
// ink selected per the document's color profile. True CMYK ink is used when
// the profile is CMYK; it is not silently coerced to RGB.
func (r *Renderer) renderCover(pdf *gofpdf.Fpdf, doc *layout.Document, pageSize gofpdf.SizeType) {
	pdf.AddPageFormat("P", pageSize)

	if doc.Settings.ColorProfile == layout.ProfileCMYK {
		pdf.AddSpotColor(coverInkName, 0, 0, 0, 100)
		pdf.SetTextSpotColor(coverInkName, 100)
	} else {
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetFont("Helvetica", "B", coverTitleSize)
	titleWidth := pdf.GetStringWidth(doc.Title)
	titleY := pageSize.Ht * 0.45
	pdf.Text((pageSize.Wd-titleWidth)/2, titleY, doc.Title)

	if doc.Subtitle != "" {
		pdf.SetFont("Helvetica", "", coverSubtitleSize)
		subWidth := pdf.GetStringWidth(doc.Subtitle)
		pdf.Text((pageSize.Wd-subWidth)/2, titleY+coverTitleSize+10, doc.Subtitle)
	}
}

// renderTextPage word-wraps the content at the page's content width and
// vertically centers the block.
func (r *Renderer) renderTextPage(pdf *gofpdf.Fpdf, page book.RenderablePage, settings layout.Settings) {
	style := layout.DefaultTextStyle()
	if page.TextStyle != nil {
		style = *page.TextStyle
	}

	pdf.SetFont(coreFont(style.FontFamily), "", style.FontSize)
	if red, green, blue, err := parseHexColor(style.Color); err == nil {
		pdf.SetTextColor(red, green, blue)
	} else {
		pdf.SetTextColor(0, 0, 0)
	}

	pageW := settings.PageSize.Width
	pageH := settings.PageSize.Height
	contentWidth := pageW - style.Margin.Left - style.Margin.Right

	lines := WrapLines(page.Text, contentWidth, pdf.GetStringWidth)

	y := blockStartY(len(lines), style.FontSize, pageH, style.Margin)
	for _, line := range lines {
		x := lineX(style.Alignment, pdf.GetStringWidth(line), pageW, style.Margin)
		pdf.Text(x, y, line)
		y += style.FontSize + lineSpacing
	}
}

// renderImagePage embeds the page image scaled per the style's fit mode
// within the page area minus the fixed image margin. Cover overflow is
// cropped by a clip rect at paint time.
func (r *Renderer) renderImagePage(pdf *gofpdf.Fpdf, page book.RenderablePage, settings layout.Settings) error {
	style := layout.DefaultImageStyle()
	if page.ImageStyle != nil {
		style = *page.ImageStyle
	}

	src, srcW, srcH, err := loadSourceImage(page.ImagePath)
	if err != nil {
		return err
	}

	availW := settings.PageSize.Width - 2*imageMargin
	availH := settings.PageSize.Height - 2*imageMargin
	drawW, drawH := FitRect(srcW, srcH, availW, availH, style.Fit)

	encoded, err := encodeForEmbedding(src, page.ImagePath, drawW, drawH, settings.Resolution)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("page-image-%d", page.Index)
	imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(encoded))

	x := imageMargin + (availW-drawW)/2 + style.Position.X
	y := imageMargin + (availH-drawH)/2 + style.Position.Y

	clip := style.Fit == layout.FitCover && (drawW > availW || drawH > availH)
	if clip {
		pdf.ClipRect(imageMargin, imageMargin, availW, availH, false)
	}
	pdf.ImageOptions(name, x, y, drawW, drawH, false, imgOpts, 0, "")
	if clip {
		pdf.ClipEnd()
	}
	return nil
}

// renderFallbackText draws the centered gray substitute for a page whose
// image could not be embedded.
func (r *Renderer) renderFallbackText(pdf *gofpdf.Fpdf, settings layout.Settings, text string) {
	style := layout.DefaultTextStyle()
	pdf.SetFont("Helvetica", "", style.FontSize)
	pdf.SetTextColor(128, 128, 128)

	width := pdf.GetStringWidth(text)
	x := (settings.PageSize.Width - width) / 2
	y := settings.PageSize.Height / 2
	pdf.Text(x, y, text)
}
