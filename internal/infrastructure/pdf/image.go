package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/fablepress/fablepress-go/internal/domain/entities/layout"
)

// imageMargin is the fixed border kept around embedded page images, in points.
const imageMargin = 20

// ImageEmbedError reports a per-page image embedding failure. The renderer
// recovers locally by drawing a fallback text page instead.
type ImageEmbedError struct {
	Path string
	Err  error
}

func (e *ImageEmbedError) Error() string {
	return fmt.Sprintf("pdf: embedding image %s: %v", e.Path, e.Err)
}

func (e *ImageEmbedError) Unwrap() error {
	return e.Err
}

// FitRect computes the drawn size of an image within an available area for
// the given fit mode. Cover results may exceed the available area in one
// dimension; the caller clips at paint time.
func FitRect(imgW, imgH, availW, availH float64, fit string) (w, h float64) {
	if imgW <= 0 || imgH <= 0 {
		return availW, availH
	}
	switch fit {
	case layout.FitFill:
		return availW, availH
	case layout.FitContain:
		scale := min(availW/imgW, availH/imgH)
		return imgW * scale, imgH * scale
	default: // cover
		scale := max(availW/imgW, availH/imgH)
		return imgW * scale, imgH * scale
	}
}

// loadSourceImage opens a page image and reports its pixel dimensions.
func loadSourceImage(path string) (image.Image, float64, float64, error) {
	src, err := imaging.Open(path)
	if err != nil {
		return nil, 0, 0, &ImageEmbedError{Path: path, Err: err}
	}
	bounds := src.Bounds()
	return src, float64(bounds.Dx()), float64(bounds.Dy()), nil
}

// encodeForEmbedding resizes a source image so the embedded raster matches
// the page resolution (target size in points scaled by resolution/72) and
// returns PNG bytes ready for embedding.
func encodeForEmbedding(src image.Image, path string, drawW, drawH, resolution float64) ([]byte, error) {
	scale := resolution / 72
	targetW := int(drawW * scale)
	targetH := int(drawH * scale)
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}

	resized := imaging.Resize(src, targetW, targetH, imaging.Lanczos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, resized); err != nil {
		return nil, &ImageEmbedError{Path: path, Err: err}
	}
	return buf.Bytes(), nil
}
