package termrender

import (
	"strings"
	"testing"

	headlessterm "github.com/danielgatis/go-headless-term"
)

// decodeSixel strips the DCS framing from an encoded stream and runs it
// through a sixel decoder.
func decodeSixel(t *testing.T, stream string) *headlessterm.SixelImage {
	t.Helper()

	var params []int64
	switch {
	case strings.HasPrefix(stream, sixelIntroOpaque):
		params = []int64{0, 0, 0}
		stream = stream[len(sixelIntroOpaque):]
	case strings.HasPrefix(stream, sixelIntroTransparent):
		params = []int64{0, 1, 0}
		stream = stream[len(sixelIntroTransparent):]
	default:
		t.Fatalf("stream missing DCS intro: %q", stream)
	}
	if !strings.HasSuffix(stream, sixelTerminator) {
		t.Fatalf("stream missing terminator: %q", stream)
	}
	stream = stream[:len(stream)-len(sixelTerminator)]

	img, err := headlessterm.ParseSixel(params, []byte(stream))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return img
}

// pureColorFrame builds a 12x12 test image from three solid color stripes.
// Pure 0/255 channels survive the percent scaling of sixel registers.
func pureColorFrame() ([]byte, int, int) {
	const w, h = 12, 12
	stripes := [][3]uint8{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}}
	pixels := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		s := stripes[y*3/h]
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			pixels[i+0] = s[0]
			pixels[i+1] = s[1]
			pixels[i+2] = s[2]
			pixels[i+3] = 255
		}
	}
	return pixels, w, h
}

func TestSixelEncodeRoundTrip(t *testing.T) {
	pixels, w, h := pureColorFrame()

	q := NewQuantizer()
	palette := q.QuantizeMedianCut(pixels, 8)

	enc := NewSixelEncoder()
	stream, err := enc.Encode(palette, w, h)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	img := decodeSixel(t, stream)
	if int(img.Width) != w || int(img.Height) != h {
		t.Fatalf("expected %dx%d, got %dx%d", w, h, img.Width, img.Height)
	}

	for i := 0; i < w*h; i++ {
		for c := 0; c < 3; c++ {
			if img.Data[i*4+c] != pixels[i*4+c] {
				t.Fatalf("pixel %d channel %d: expected %d, got %d",
					i, c, pixels[i*4+c], img.Data[i*4+c])
			}
		}
	}
}

func TestSixelEncodeRLEEquivalence(t *testing.T) {
	pixels, w, h := pureColorFrame()

	q := NewQuantizer()
	palette := q.QuantizeMedianCut(pixels, 8)

	plain, err := NewSixelEncoder(WithSixelRLE(false)).Encode(palette, w, h)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	compressed, err := NewSixelEncoder().Encode(palette, w, h)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if len(compressed) >= len(plain) {
		t.Errorf("expected RLE to shrink solid stripes: %d vs %d", len(compressed), len(plain))
	}

	a := decodeSixel(t, plain)
	b := decodeSixel(t, compressed)
	if string(a.Data) != string(b.Data) {
		t.Errorf("RLE changed the decoded pixels")
	}
}

func TestSixelEncodeTransparent(t *testing.T) {
	const w, h = 6, 6
	pixels := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		// Left half transparent, right half red.
		if i%w < w/2 {
			continue
		}
		pixels[i*4+0] = 255
		pixels[i*4+3] = 255
	}

	q := NewQuantizer()
	palette := q.QuantizeMedianCut(pixels, 8)
	if palette.TransparentIndex != 0 {
		t.Fatalf("expected transparent slot, got %d", palette.TransparentIndex)
	}

	stream, err := NewSixelEncoder().Encode(palette, w, h)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.HasPrefix(stream, sixelIntroTransparent) {
		t.Fatalf("expected transparent background intro, got %q", stream[:8])
	}

	img := decodeSixel(t, stream)
	if !img.Transparent {
		t.Errorf("expected transparent flag on decoded image")
	}

	// Transparent pixels are never painted: the decoder leaves zero alpha.
	if img.Data[0*4+3] != 0 {
		t.Errorf("expected transparent pixel at (0, 0)")
	}
	last := (h-1)*w + (w - 1)
	if img.Data[last*4+0] != 255 || img.Data[last*4+3] != 255 {
		t.Errorf("expected opaque red at bottom-right")
	}
}

func TestSixelEncodeInvalid(t *testing.T) {
	enc := NewSixelEncoder()
	palette := &PaletteResult{TransparentIndex: -1}

	if _, err := enc.Encode(palette, 0, 4); err != ErrInvalidDimensions {
		t.Errorf("expected ErrInvalidDimensions, got %v", err)
	}
	if _, err := enc.Encode(palette, 4, 4); err != ErrInvalidDimensions {
		t.Errorf("expected ErrInvalidDimensions for short index buffer, got %v", err)
	}
}

func TestSixelEncodeClear(t *testing.T) {
	enc := NewSixelEncoder()

	stream := enc.EncodeClear(10, 14)
	if stream == "" {
		t.Fatalf("expected a clearing patch")
	}

	img := decodeSixel(t, stream)
	// Height rounds down to whole bands.
	if img.Width != 10 || img.Height != 12 {
		t.Fatalf("expected 10x12, got %dx%d", img.Width, img.Height)
	}
	for i := 0; i < 10*12; i++ {
		if img.Data[i*4+3] != 255 {
			t.Fatalf("pixel %d: expected opaque fill", i)
		}
		if img.Data[i*4+0] != 0 || img.Data[i*4+1] != 0 || img.Data[i*4+2] != 0 {
			t.Fatalf("pixel %d: expected background fill", i)
		}
	}
}

func TestSixelEncodeClearTooSmall(t *testing.T) {
	enc := NewSixelEncoder()
	if stream := enc.EncodeClear(10, 5); stream != "" {
		t.Errorf("expected no patch under one band, got %q", stream)
	}
}
