// Package media provides WebP raster preview generation for storybook pages,
// independent of the print PDF pipeline.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/fablepress/fablepress-go/internal/domain/entities/book"
	"github.com/fablepress/fablepress-go/internal/domain/entities/layout"
	"github.com/fablepress/fablepress-go/internal/infrastructure/observability/logging"
)

// PageOptions controls per-page raster preview generation.
type PageOptions struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	BackgroundColor string `json:"backgroundColor"`
	Quality         int    `json:"quality"`
}

// BlurOptions controls the low-fidelity progressive-loading variant.
type BlurOptions struct {
	Radius  float64 `json:"radius"`
	Width   int     `json:"width"`
	Quality int     `json:"quality"`
}

// PreviewGenerator rasterizes page content to WebP buffers.
type PreviewGenerator struct {
	logger *logging.ChanneledLogger
}

// NewPreviewGenerator creates a raster preview generator.
func NewPreviewGenerator(logger *logging.ChanneledLogger) *PreviewGenerator {
	return &PreviewGenerator{logger: logger}
}

// GenerateFromPages draws each page onto an offscreen canvas and encodes it
// to WebP. A per-page failure never aborts the batch: the failed page's slot
// holds a plain background placeholder so preview counts always match page
// counts.
func (g *PreviewGenerator) GenerateFromPages(pages []book.RenderablePage, opts PageOptions) ([][]byte, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("media: preview dimensions must be positive, got %dx%d", opts.Width, opts.Height)
	}
	if opts.Quality <= 0 {
		opts.Quality = 80
	}

	background := parseBackground(opts.BackgroundColor)
	buffers := make([][]byte, len(pages))

	for i, page := range pages {
		canvas := newCanvas(opts.Width, opts.Height, background)

		var drawErr error
		switch page.Type {
		case layout.PageImage:
			drawErr = g.drawImagePage(canvas, page)
		default:
			g.drawTextPage(canvas, page)
		}
		if drawErr != nil {
			g.logger.Preview().Warn("Page preview draw failed, emitting placeholder",
				"pageIndex", page.Index, "error", drawErr.Error())
			canvas = newCanvas(opts.Width, opts.Height, background)
		}

		encoded, err := encodeWebP(canvas, opts.Quality)
		if err != nil {
			g.logger.Preview().Warn("Page preview encode failed, emitting placeholder",
				"pageIndex", page.Index, "error", err.Error())
			continue
		}
		buffers[i] = encoded
	}

	return buffers, nil
}

// Blur produces the heavily blurred, narrower, lower-quality variant of an
// encoded WebP preview for progressive-loading UX.
func (g *PreviewGenerator) Blur(encoded []byte, opts BlurOptions) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("media: decoding preview for blur: %w", err)
	}

	if opts.Radius <= 0 {
		opts.Radius = 10
	}
	if opts.Quality <= 0 {
		opts.Quality = 30
	}

	blurred := imaging.Blur(img, opts.Radius)
	if opts.Width > 0 {
		blurred = imaging.Resize(blurred, opts.Width, 0, imaging.Lanczos)
	}

	return encodeWebP(blurred, opts.Quality)
}

// drawImagePage composites the page image onto the canvas per its fit mode.
func (g *PreviewGenerator) drawImagePage(canvas *image.NRGBA, page book.RenderablePage) error {
	src, err := imaging.Open(page.ImagePath)
	if err != nil {
		return fmt.Errorf("media: opening page image: %w", err)
	}

	bounds := canvas.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	fit := layout.FitCover
	if page.ImageStyle != nil && page.ImageStyle.Fit != "" {
		fit = page.ImageStyle.Fit
	}

	var scaled image.Image
	switch fit {
	case layout.FitFill:
		scaled = imaging.Resize(src, w, h, imaging.Lanczos)
	case layout.FitContain:
		scaled = imaging.Fit(src, w, h, imaging.Lanczos)
	default: // cover
		scaled = imaging.Fill(src, w, h, imaging.Center, imaging.Lanczos)
	}

	result := imaging.PasteCenter(canvas, scaled)
	draw.Draw(canvas, bounds, result, bounds.Min, draw.Src)
	return nil
}

// drawTextPage renders wrapped, horizontally centered text with the block
// vertically centered on the canvas.
func (g *PreviewGenerator) drawTextPage(canvas *image.NRGBA, page book.RenderablePage) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}

	bounds := canvas.Bounds()
	margin := bounds.Dx() / 10
	maxWidth := fixed.I(bounds.Dx() - 2*margin)

	lines := wrapForFace(page.Text, maxWidth, drawer)
	lineHeight := face.Metrics().Height.Ceil() + 2
	blockHeight := len(lines) * lineHeight
	y := (bounds.Dy()-blockHeight)/2 + face.Metrics().Ascent.Ceil()

	for _, line := range lines {
		width := drawer.MeasureString(line)
		drawer.Dot = fixed.P((bounds.Dx()-width.Ceil())/2, y)
		drawer.DrawString(line)
		y += lineHeight
	}
}

// wrapForFace wraps text so no line's measured width exceeds maxWidth,
// never breaking inside a word.
func wrapForFace(text string, maxWidth fixed.Int26_6, drawer *font.Drawer) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if drawer.MeasureString(candidate) > maxWidth {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	return append(lines, current)
}

func newCanvas(w, h int, background color.Color) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	return canvas
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, fmt.Errorf("media: encoding webp: %w", err)
	}
	return buf.Bytes(), nil
}

// parseBackground converts "#RRGGBB" into a color, defaulting to white.
func parseBackground(hex string) color.Color {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) != 6 {
		return color.White
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.White
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}
}
