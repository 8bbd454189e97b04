package termrender

import (
	"strconv"
	"strings"
)

// Sixel stream framing. A sixel character encodes 6 vertical pixels
// ('?' = none set through '~' = all set, bit 0 on top).
const (
	sixelIntroOpaque      = "\x1bP0;0;0q"
	sixelIntroTransparent = "\x1bP0;1;0q"
	sixelTerminator       = "\x1b\\"
	sixelBandHeight       = 6
)

// sixelRLEThreshold is the shortest run worth compressing: "!4x" is 3 bytes
// against 4 repeated characters.
const sixelRLEThreshold = 4

// SixelEncoder turns quantized pixels into a DCS sixel stream: color
// register definitions followed by one pass per color per 6-pixel band.
type SixelEncoder struct {
	useRLE bool
}

// SixelOption configures a SixelEncoder during construction.
type SixelOption func(*SixelEncoder)

// WithSixelRLE enables run-length compression of repeated band characters.
// Default is true.
func WithSixelRLE(enabled bool) SixelOption {
	return func(e *SixelEncoder) {
		e.useRLE = enabled
	}
}

// NewSixelEncoder creates a sixel encoder with the given options.
func NewSixelEncoder(opts ...SixelOption) *SixelEncoder {
	e := &SixelEncoder{useRLE: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode produces the sixel stream for a quantized image. Pixels indexed to
// the transparent slot are never painted by any color pass, so the
// background shows through.
func (e *SixelEncoder) Encode(p *PaletteResult, width, height int) (string, error) {
	if width <= 0 || height <= 0 {
		return "", ErrInvalidDimensions
	}
	if len(p.Indexed) < width*height {
		return "", ErrInvalidDimensions
	}

	var b strings.Builder
	if p.TransparentIndex >= 0 {
		b.WriteString(sixelIntroTransparent)
	} else {
		b.WriteString(sixelIntroOpaque)
	}

	// Raster attributes: 1:1 aspect, full image size.
	b.WriteString("\"1;1;" + strconv.Itoa(width) + ";" + strconv.Itoa(height))

	// Color registers, percent-scaled RGB.
	for i, c := range p.Colors {
		if i == p.TransparentIndex {
			continue
		}
		r, g, bl, _ := UnpackRGBA(c)
		b.WriteString("#" + strconv.Itoa(i) + ";2;" +
			strconv.Itoa(percent(r)) + ";" +
			strconv.Itoa(percent(g)) + ";" +
			strconv.Itoa(percent(bl)))
	}

	present := make([]bool, len(p.Colors))
	bits := make([]byte, width)

	for y0 := 0; y0 < height; y0 += sixelBandHeight {
		for i := range present {
			present[i] = false
		}
		bandRows := height - y0
		if bandRows > sixelBandHeight {
			bandRows = sixelBandHeight
		}
		for dy := 0; dy < bandRows; dy++ {
			row := (y0 + dy) * width
			for x := 0; x < width; x++ {
				present[p.Indexed[row+x]] = true
			}
		}

		for colorIdx := range p.Colors {
			if !present[colorIdx] || colorIdx == p.TransparentIndex {
				continue
			}

			lastSet := -1
			for x := 0; x < width; x++ {
				var pattern byte
				for dy := 0; dy < bandRows; dy++ {
					if p.Indexed[(y0+dy)*width+x] == uint8(colorIdx) {
						pattern |= 1 << dy
					}
				}
				bits[x] = pattern
				if pattern != 0 {
					lastSet = x
				}
			}
			if lastSet < 0 {
				continue
			}

			b.WriteString("#" + strconv.Itoa(colorIdx))
			e.writeBand(&b, bits[:lastSet+1])
			b.WriteByte('$') // carriage return within the band
		}
		b.WriteByte('-') // next band
	}

	b.WriteString(sixelTerminator)
	return b.String(), nil
}

// writeBand emits one color pass, optionally run-length compressed.
func (e *SixelEncoder) writeBand(b *strings.Builder, bits []byte) {
	if !e.useRLE {
		for _, pattern := range bits {
			b.WriteByte('?' + pattern)
		}
		return
	}

	for x := 0; x < len(bits); {
		run := 1
		for x+run < len(bits) && bits[x+run] == bits[x] {
			run++
		}
		ch := byte('?' + bits[x])
		if run >= sixelRLEThreshold {
			b.WriteString("!" + strconv.Itoa(run))
			b.WriteByte(ch)
		} else {
			for i := 0; i < run; i++ {
				b.WriteByte(ch)
			}
		}
		x += run
	}
}

// EncodeClear produces a background-colored patch covering the given pixel
// region, with the height rounded down to a whole number of bands. Used to
// erase stale graphics; a transparent patch cannot erase, so "blank" means
// a solid background fill.
func (e *SixelEncoder) EncodeClear(width, height int) string {
	height = (height / sixelBandHeight) * sixelBandHeight
	if width <= 0 || height <= 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(sixelIntroOpaque)
	b.WriteString("\"1;1;" + strconv.Itoa(width) + ";" + strconv.Itoa(height))
	b.WriteString("#0;2;0;0;0")
	for y0 := 0; y0 < height; y0 += sixelBandHeight {
		b.WriteString("#0")
		b.WriteString("!" + strconv.Itoa(width))
		b.WriteByte('~') // all six pixels set
		b.WriteByte('-')
	}
	b.WriteString(sixelTerminator)
	return b.String()
}

func percent(c uint8) int {
	return (int(c)*100 + 127) / 255
}
