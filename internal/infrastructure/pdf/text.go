package pdf

import (
	"strings"

	"github.com/fablepress/fablepress-go/internal/domain/entities/layout"
)

// lineSpacing is added to the font size to produce the line height.
const lineSpacing = 4

// WrapLines splits text into lines whose measured width never exceeds
// maxWidth. A line is closed the instant appending the next word would exceed
// the available width; words are never broken, so a single word wider than
// maxWidth occupies its own line.
func WrapLines(text string, maxWidth float64, measure func(string) float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		candidate := current + " " + word
		if measure(candidate) > maxWidth {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	lines = append(lines, current)
	return lines
}

// lineX computes the horizontal start of a line for the given alignment.
func lineX(alignment string, lineWidth, pageWidth float64, margin layout.Margin) float64 {
	switch alignment {
	case layout.AlignLeft:
		return margin.Left
	case layout.AlignRight:
		return pageWidth - margin.Right - lineWidth
	default: // center
		return (pageWidth - lineWidth) / 2
	}
}

// blockStartY computes the baseline of the first line such that the full text
// block is vertically centered within the content height.
func blockStartY(lineCount int, fontSize, pageHeight float64, margin layout.Margin) float64 {
	lineHeight := fontSize + lineSpacing
	totalHeight := float64(lineCount) * lineHeight
	contentHeight := pageHeight - margin.Top - margin.Bottom
	top := margin.Top + (contentHeight-totalHeight)/2
	return top + fontSize
}

// coreFont maps a requested font family onto one of the built-in PDF core
// font families.
func coreFont(family string) string {
	switch strings.ToLower(strings.TrimSpace(family)) {
	case "times", "times new roman", "serif":
		return "Times"
	case "courier", "monospace":
		return "Courier"
	default:
		return "Helvetica"
	}
}
