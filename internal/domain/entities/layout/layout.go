// Package layout defines the canonical storybook layout document and the
// parsing/upgrade rules that turn stored template JSON into it.
package layout

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidLayout indicates that stored JSON matches neither the canonical
// nor the legacy layout schema.
var ErrInvalidLayout = errors.New("layout: neither canonical nor legacy schema matched")

// Format identifies which schema a document was parsed from.
type Format string

const (
	FormatCanonical Format = "canonical"
	FormatLegacy    Format = "legacy"
)

// PageType discriminates the PageSpec union.
type PageType string

const (
	PageText  PageType = "text"
	PageImage PageType = "image"
)

// ColorProfile selects the color intent for rendered output.
type ColorProfile string

const (
	ProfileRGB  ColorProfile = "RGB"
	ProfileCMYK ColorProfile = "CMYK"
)

// Alignment values for text pages.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

// Fit values for image pages.
const (
	FitCover   = "cover"
	FitContain = "contain"
	FitFill    = "fill"
)

// Margin is a per-side page margin in points.
type Margin struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// TextStyle describes how a text page is typeset.
type TextStyle struct {
	FontSize   float64 `json:"fontSize"`
	FontFamily string  `json:"fontFamily"`
	Color      string  `json:"color"`
	Alignment  string  `json:"alignment"`
	Margin     Margin  `json:"margin"`
}

// Position is an offset within a page, in points.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is an optional target size; zero means unspecified.
type Size struct {
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// ImageStyle describes how an image page is placed.
type ImageStyle struct {
	Fit      string   `json:"fit"`
	Position Position `json:"position"`
	Size     Size     `json:"size"`
}

// PageSpec is one entry of the print-ordered page sequence. Exactly one of
// the two style branches applies, selected by Type.
type PageSpec struct {
	Type           PageType    `json:"type"`
	Content        string      `json:"content"`
	LinkToPrevious bool        `json:"linkToPrevious"`
	TextStyle      *TextStyle  `json:"textStyle,omitempty"`
	ImageStyle     *ImageStyle `json:"imageStyle,omitempty"`
}

// PageSize is the physical page size in points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Settings holds document-wide print parameters.
type Settings struct {
	PageSize     PageSize     `json:"pageSize"`
	Bleed        float64      `json:"bleed"`
	ColorProfile ColorProfile `json:"colorProfile"`
	Resolution   float64      `json:"resolution"`
}

// Document is the canonical, fully-defaulted layout. Immutable after parse;
// safe to share across concurrent resolver tasks.
type Document struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	Pages    []PageSpec `json:"pages"`
	Settings Settings `json:"settings"`
}

// DefaultTextStyle returns the style injected for legacy and partial pages.
func DefaultTextStyle() TextStyle {
	return TextStyle{
		FontSize:   18,
		FontFamily: "Helvetica",
		Color:      "#000000",
		Alignment:  AlignCenter,
		Margin:     Margin{Top: 50, Bottom: 50, Left: 50, Right: 50},
	}
}

// DefaultImageStyle returns the style injected for legacy and partial pages.
func DefaultImageStyle() ImageStyle {
	return ImageStyle{
		Fit:      FitCover,
		Position: Position{X: 0, Y: 0},
		Size:     Size{},
	}
}

// DefaultSettings returns A4 print settings at 300 DPI with CMYK intent.
func DefaultSettings() Settings {
	return Settings{
		PageSize:     PageSize{Width: 595.28, Height: 841.89},
		Bleed:        9,
		ColorProfile: ProfileCMYK,
		Resolution:   300,
	}
}

// DefaultDocument is the hardcoded minimal fallback used when stored JSON is
// unusable. Callers substitute it instead of failing the whole render.
func DefaultDocument() *Document {
	style := DefaultTextStyle()
	return &Document{
		Title: "My Storybook",
		Pages: []PageSpec{
			{Type: PageText, Content: "Once upon a time...", TextStyle: &style},
		},
		Settings: DefaultSettings(),
	}
}

// legacyPage is the pre-styling page shape: type, content, linkToPrevious only.
type legacyPage struct {
	Type           PageType `json:"type"`
	Content        string   `json:"content"`
	LinkToPrevious bool     `json:"linkToPrevious"`
}

// legacyDocument is the original stored format before settings were added.
type legacyDocument struct {
	Title string       `json:"title"`
	Pages []legacyPage `json:"pages"`
}

// rawDocument mirrors Document but keeps settings optional so canonical
// detection can distinguish it from the legacy shape.
type rawDocument struct {
	Title    string     `json:"title"`
	Subtitle string     `json:"subtitle"`
	Pages    []PageSpec `json:"pages"`
	Settings *Settings  `json:"settings"`
}

// Parse validates raw JSON against the canonical schema first and the legacy
// schema second, returning a fully-defaulted Document and the format that
// matched. It is a pure function with no side effects.
func Parse(raw []byte) (*Document, Format, error) {
	if doc, err := parseCanonical(raw); err == nil {
		return doc, FormatCanonical, nil
	}
	if doc, err := parseLegacy(raw); err == nil {
		return doc, FormatLegacy, nil
	}
	return nil, "", ErrInvalidLayout
}

func parseCanonical(raw []byte) (*Document, error) {
	var rd rawDocument
	if err := json.Unmarshal(raw, &rd); err != nil {
		return nil, fmt.Errorf("layout: canonical unmarshal: %w", err)
	}
	if rd.Settings == nil {
		return nil, fmt.Errorf("layout: canonical document requires settings")
	}
	if len(rd.Pages) == 0 {
		return nil, fmt.Errorf("layout: document has no pages")
	}

	doc := &Document{
		Title:    rd.Title,
		Subtitle: rd.Subtitle,
		Pages:    make([]PageSpec, len(rd.Pages)),
		Settings: applySettingsDefaults(*rd.Settings),
	}
	for i, page := range rd.Pages {
		normalized, err := normalizePage(page)
		if err != nil {
			return nil, fmt.Errorf("layout: page %d: %w", i, err)
		}
		doc.Pages[i] = normalized
	}
	return doc, nil
}

func parseLegacy(raw []byte) (*Document, error) {
	var ld legacyDocument
	if err := json.Unmarshal(raw, &ld); err != nil {
		return nil, fmt.Errorf("layout: legacy unmarshal: %w", err)
	}
	if len(ld.Pages) == 0 {
		return nil, fmt.Errorf("layout: legacy document has no pages")
	}

	doc := &Document{
		Title:    ld.Title,
		Pages:    make([]PageSpec, len(ld.Pages)),
		Settings: DefaultSettings(),
	}
	for i, page := range ld.Pages {
		upgraded := PageSpec{
			Type:           page.Type,
			Content:        page.Content,
			LinkToPrevious: page.LinkToPrevious,
		}
		switch page.Type {
		case PageText:
			style := DefaultTextStyle()
			upgraded.TextStyle = &style
		case PageImage:
			style := DefaultImageStyle()
			upgraded.ImageStyle = &style
		default:
			return nil, fmt.Errorf("layout: legacy page %d has unknown type %q", i, page.Type)
		}
		doc.Pages[i] = upgraded
	}
	return doc, nil
}

// normalizePage enforces the text-XOR-image invariant and fills absent style
// fields with documented defaults.
func normalizePage(page PageSpec) (PageSpec, error) {
	switch page.Type {
	case PageText:
		style := DefaultTextStyle()
		if page.TextStyle != nil {
			style = applyTextStyleDefaults(*page.TextStyle)
		}
		page.TextStyle = &style
		page.ImageStyle = nil
	case PageImage:
		style := DefaultImageStyle()
		if page.ImageStyle != nil {
			style = applyImageStyleDefaults(*page.ImageStyle)
		}
		page.ImageStyle = &style
		page.TextStyle = nil
	default:
		return PageSpec{}, fmt.Errorf("unknown page type %q", page.Type)
	}
	return page, nil
}

func applyTextStyleDefaults(style TextStyle) TextStyle {
	defaults := DefaultTextStyle()
	if style.FontSize <= 0 {
		style.FontSize = defaults.FontSize
	}
	if style.FontFamily == "" {
		style.FontFamily = defaults.FontFamily
	}
	if style.Color == "" {
		style.Color = defaults.Color
	}
	switch style.Alignment {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		style.Alignment = defaults.Alignment
	}
	if style.Margin == (Margin{}) {
		style.Margin = defaults.Margin
	}
	return style
}

func applyImageStyleDefaults(style ImageStyle) ImageStyle {
	switch style.Fit {
	case FitCover, FitContain, FitFill:
	default:
		style.Fit = FitCover
	}
	return style
}

func applySettingsDefaults(settings Settings) Settings {
	defaults := DefaultSettings()
	if settings.PageSize.Width <= 0 || settings.PageSize.Height <= 0 {
		settings.PageSize = defaults.PageSize
	}
	if settings.Bleed <= 0 {
		settings.Bleed = defaults.Bleed
	}
	switch settings.ColorProfile {
	case ProfileRGB, ProfileCMYK:
	default:
		settings.ColorProfile = defaults.ColorProfile
	}
	if settings.Resolution <= 0 {
		settings.Resolution = defaults.Resolution
	}
	return settings
}
