package termrender

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"strconv"
	"strings"
)

// ITermEncoder turns raw RGBA pixels into an iTerm2 inline image escape:
// OSC 1337 carrying a base64-encoded PNG.
type ITermEncoder struct{}

// NewITermEncoder creates an iTerm2 inline image encoder.
func NewITermEncoder() *ITermEncoder {
	return &ITermEncoder{}
}

// Encode produces the escape that displays an RGBA image inline at the
// cursor. The pixel dimensions are declared explicitly so the terminal does
// not rescale.
func (e *ITermEncoder) Encode(pixels []byte, width, height int) (string, error) {
	if width <= 0 || height <= 0 || len(pixels) < width*height*4 {
		return "", ErrInvalidDimensions
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, pixels[:width*height*4])

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("\x1b]1337;File=inline=1;size=" + strconv.Itoa(pngBuf.Len()) +
		";width=" + strconv.Itoa(width) + "px" +
		";height=" + strconv.Itoa(height) + "px:")
	b.WriteString(base64.StdEncoding.EncodeToString(pngBuf.Bytes()))
	b.WriteByte('\a')
	return b.String(), nil
}
