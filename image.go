package termrender

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// PixelBuffer holds interleaved RGBA pixels, 4 bytes per pixel, row-major.
type PixelBuffer struct {
	Pix    []byte
	Width  int
	Height int
}

// NewPixelBuffer allocates a zeroed buffer of the given dimensions.
func NewPixelBuffer(width, height int) *PixelBuffer {
	return &PixelBuffer{
		Pix:    make([]byte, width*height*4),
		Width:  width,
		Height: height,
	}
}

// FromImage copies an image into a PixelBuffer, converting to RGBA.
func FromImage(img image.Image) *PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != w*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, xdraw.Src)
	}

	buf := NewPixelBuffer(w, h)
	copy(buf.Pix, rgba.Pix)
	return buf
}

// Validate reports whether the buffer's length matches its dimensions.
func (b *PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 || len(b.Pix) < b.Width*b.Height*4 {
		return ErrInvalidDimensions
	}
	return nil
}

// Scale resamples the buffer to the given dimensions with approximate
// bilinear interpolation. Returns the receiver unchanged when the
// dimensions already match.
func (b *PixelBuffer) Scale(width, height int) (*PixelBuffer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if width == b.Width && height == b.Height {
		return b, nil
	}

	src := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	copy(src.Pix, b.Pix[:b.Width*b.Height*4])
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	out := NewPixelBuffer(width, height)
	copy(out.Pix, dst.Pix)
	return out, nil
}
