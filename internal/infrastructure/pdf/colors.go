package pdf

import (
	"fmt"
	"strconv"
	"strings"
)

// parseHexColor converts "#RRGGBB" (or "RRGGBB") into 8-bit RGB components.
func parseHexColor(hex string) (r, g, b int, err error) {
	s := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("pdf: invalid hex color %q", hex)
	}
	rv, err := strconv.ParseUint(s[0:2], 16, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pdf: invalid hex color %q", hex)
	}
	gv, err := strconv.ParseUint(s[2:4], 16, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pdf: invalid hex color %q", hex)
	}
	bv, err := strconv.ParseUint(s[4:6], 16, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pdf: invalid hex color %q", hex)
	}
	return int(rv), int(gv), int(bv), nil
}
