package termrender

import (
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorSupport is the color depth the attached terminal understands.
type ColorSupport int

const (
	// ColorSupportNone suppresses all color codes (attributes still emit).
	ColorSupportNone ColorSupport = iota
	// ColorSupport16 emits the 16 basic ANSI color codes.
	ColorSupport16
	// ColorSupport256 emits 256-color indexed codes (38;5;n).
	ColorSupport256
	// ColorSupportTrueColor emits direct RGB codes (38;2;r;g;b).
	ColorSupportTrueColor
)

// namedColor pairs a basic ANSI color with its canonical RGB value.
type namedColor struct {
	name    string
	index   int // 0-15 ANSI palette slot
	r, g, b uint8
}

// The canonical RGB values match the standard 256-color palette's first 16
// entries so named colors and indexed colors agree in truecolor mode.
var namedColors = []namedColor{
	{"black", 0, 0, 0, 0},
	{"red", 1, 205, 49, 49},
	{"green", 2, 13, 188, 121},
	{"yellow", 3, 229, 229, 16},
	{"blue", 4, 36, 114, 200},
	{"magenta", 5, 188, 63, 188},
	{"cyan", 6, 17, 168, 205},
	{"white", 7, 229, 229, 229},
	{"brightblack", 8, 102, 102, 102},
	{"gray", 8, 102, 102, 102},
	{"grey", 8, 102, 102, 102},
	{"brightred", 9, 241, 76, 76},
	{"brightgreen", 10, 35, 209, 139},
	{"brightyellow", 11, 245, 245, 67},
	{"brightblue", 12, 59, 142, 234},
	{"brightmagenta", 13, 214, 112, 214},
	{"brightcyan", 14, 41, 184, 219},
	{"brightwhite", 15, 255, 255, 255},
}

func lookupNamed(s string) (namedColor, bool) {
	key := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(s, " ", ""), "-", ""))
	for _, nc := range namedColors {
		if nc.name == key {
			return nc, true
		}
	}
	return namedColor{}, false
}

// ParseColor resolves a color string in named, "#RGB"/"#RRGGBB", or
// "rgb(r,g,b)" form to an RGB triplet. ok is false for malformed input;
// callers degrade to "no color" rather than failing the frame.
func ParseColor(s string) (r, g, b uint8, ok bool) {
	if s == "" {
		return 0, 0, 0, false
	}
	if nc, found := lookupNamed(s); found {
		return nc.r, nc.g, nc.b, true
	}
	if strings.HasPrefix(s, "#") {
		// Tolerate an 8-digit form with a trailing alpha byte; alpha has no
		// meaning for terminal cell colors.
		if len(s) == 9 {
			s = s[:7]
		}
		c, err := colorful.Hex(s)
		if err != nil {
			return 0, 0, 0, false
		}
		cr, cg, cb := c.RGB255()
		return cr, cg, cb, true
	}
	return parseRGBFunc(s)
}

// parseRGBFunc parses the "rgb(r,g,b)" form. Channel values outside 0-255
// make the whole string malformed.
func parseRGBFunc(s string) (r, g, b uint8, ok bool) {
	t := strings.ToLower(strings.ReplaceAll(s, " ", ""))
	if !strings.HasPrefix(t, "rgb(") || !strings.HasSuffix(t, ")") {
		return 0, 0, 0, false
	}
	parts := strings.Split(t[4:len(t)-1], ",")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var vals [3]uint8
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, 0, 0, false
		}
		vals[i] = uint8(n)
	}
	return vals[0], vals[1], vals[2], true
}

// ansi256Index reduces an RGB triplet to the 6x6x6 color cube region of the
// 256-color palette (indexes 16-231), 6 levels per channel.
func ansi256Index(r, g, b uint8) int {
	scale := func(c uint8) int {
		return (int(c)*5 + 127) / 255
	}
	return 16 + 36*scale(r) + 6*scale(g) + scale(b)
}

// nearestBasicIndex finds the closest of the 8 basic colors by Euclidean RGB
// distance. Ties keep the first (lowest-index) match.
func nearestBasicIndex(r, g, b uint8) int {
	target := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	best := 0
	bestDist := -1.0
	for i := 0; i < 8; i++ {
		nc := namedColors[i]
		c := colorful.Color{R: float64(nc.r) / 255, G: float64(nc.g) / 255, B: float64(nc.b) / 255}
		d := target.DistanceRgb(c)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// colorCode returns the SGR parameter fragment for a color string under the
// given support mode, without a leading separator. fg selects the
// foreground/background code families. Empty string means "emit no code"
// (default color, malformed input, or ColorSupportNone).
func colorCode(s string, support ColorSupport, fg bool) string {
	if s == "" || support == ColorSupportNone {
		return ""
	}

	// Named colors have fixed codes in the 16/256 modes.
	if nc, found := lookupNamed(s); found {
		switch support {
		case ColorSupport16:
			return strconv.Itoa(basicSGR(nc.index, fg))
		case ColorSupport256:
			if fg {
				return "38;5;" + strconv.Itoa(nc.index)
			}
			return "48;5;" + strconv.Itoa(nc.index)
		case ColorSupportTrueColor:
			return directRGB(nc.r, nc.g, nc.b, fg)
		}
	}

	r, g, b, ok := ParseColor(s)
	if !ok {
		return ""
	}

	switch support {
	case ColorSupport16:
		return strconv.Itoa(basicSGR(nearestBasicIndex(r, g, b), fg))
	case ColorSupport256:
		if fg {
			return "38;5;" + strconv.Itoa(ansi256Index(r, g, b))
		}
		return "48;5;" + strconv.Itoa(ansi256Index(r, g, b))
	case ColorSupportTrueColor:
		return directRGB(r, g, b, fg)
	}
	return ""
}

// basicSGR maps a 0-15 palette slot to its SGR code (30-37/90-97 foreground,
// 40-47/100-107 background).
func basicSGR(index int, fg bool) int {
	if index < 8 {
		if fg {
			return 30 + index
		}
		return 40 + index
	}
	if fg {
		return 90 + index - 8
	}
	return 100 + index - 8
}

func directRGB(r, g, b uint8, fg bool) string {
	prefix := "48;2;"
	if fg {
		prefix = "38;2;"
	}
	return prefix + strconv.Itoa(int(r)) + ";" + strconv.Itoa(int(g)) + ";" + strconv.Itoa(int(b))
}
