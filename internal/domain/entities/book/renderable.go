// Package book defines renderer-ready page content shared by the PDF
// renderer and the raster preview generator.
package book

import "github.com/fablepress/fablepress-go/internal/domain/entities/layout"

// RenderablePage is a resolved, ready-to-draw page: finalized text or a
// concrete image file, with style. Produced by the resolver, consumed exactly
// once by a renderer; never persisted.
type RenderablePage struct {
	Index int             // original position in the layout page sequence
	Type  layout.PageType // text or image

	// Text branch
	Text      string
	TextStyle *layout.TextStyle

	// Image branch
	ImagePath  string
	ImageStyle *layout.ImageStyle
}

// TextPage builds a renderable text page at the given layout index.
func TextPage(index int, text string, style layout.TextStyle) RenderablePage {
	return RenderablePage{
		Index:     index,
		Type:      layout.PageText,
		Text:      text,
		TextStyle: &style,
	}
}

// ImagePage builds a renderable image page at the given layout index.
func ImagePage(index int, imagePath string, style layout.ImageStyle) RenderablePage {
	return RenderablePage{
		Index:      index,
		Type:       layout.PageImage,
		ImagePath:  imagePath,
		ImageStyle: &style,
	}
}

// FallbackText is the substitute content for a page whose image generation
// failed. One bad page must not block the rest of the book.
const FallbackText = "Image generation failed"

// FallbackPage builds the plain centered paragraph substituted when image
// generation fails for a page.
func FallbackPage(index int) RenderablePage {
	style := layout.DefaultTextStyle()
	return TextPage(index, FallbackText, style)
}
