package termrender

import (
	"bytes"
	"testing"
)

func grayFrame(width, height int, v uint8) []byte {
	pixels := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		pixels[i*4+0] = v
		pixels[i*4+1] = v
		pixels[i*4+2] = v
		pixels[i*4+3] = 255
	}
	return pixels
}

func gradientFrame(width, height int) []byte {
	pixels := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := (y*width + x) * 4
			pixels[i+0] = uint8(x * 255 / (width - 1))
			pixels[i+1] = uint8(y * 255 / (height - 1))
			pixels[i+2] = 128
			pixels[i+3] = 255
		}
	}
	return pixels
}

func TestDitherInvalidDimensions(t *testing.T) {
	d := NewDitherer()

	if err := d.Dither(make([]byte, 16), 0, 2, DitherFloydSteinberg, 1); err != ErrInvalidDimensions {
		t.Errorf("expected ErrInvalidDimensions, got %v", err)
	}
	if err := d.Dither(make([]byte, 8), 2, 2, DitherFloydSteinberg, 1); err != ErrInvalidDimensions {
		t.Errorf("expected ErrInvalidDimensions for short buffer, got %v", err)
	}
}

func TestDitherOneBitValues(t *testing.T) {
	d := NewDitherer()
	pixels := gradientFrame(16, 16)

	if err := d.Dither(pixels, 16, 16, DitherFloydSteinberg, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 16*16; i++ {
		for c := 0; c < 3; c++ {
			v := pixels[i*4+c]
			if v != 0 && v != 255 {
				t.Fatalf("pixel %d channel %d: expected 0 or 255, got %d", i, c, v)
			}
		}
		if pixels[i*4+3] != 255 {
			t.Fatalf("pixel %d: alpha modified to %d", i, pixels[i*4+3])
		}
	}
}

func TestDitherPreservesAverage(t *testing.T) {
	d := NewDitherer()
	pixels := grayFrame(32, 32, 128)

	if err := d.Dither(pixels, 32, 32, DitherFloydSteinberg, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mid-gray at 1 bit should come out roughly half white.
	white := 0
	for i := 0; i < 32*32; i++ {
		if pixels[i*4] == 255 {
			white++
		}
	}
	if white < 32*32*3/10 || white > 32*32*7/10 {
		t.Errorf("expected roughly half the pixels white, got %d of %d", white, 32*32)
	}
}

func TestDitherDeterministic(t *testing.T) {
	algorithms := []DitherAlgorithm{
		DitherFloydSteinberg,
		DitherFloydSteinbergStable,
		DitherSierra,
		DitherSierraStable,
		DitherAtkinson,
		DitherAtkinsonStable,
		DitherOrdered,
		DitherBlueNoise,
	}

	for _, alg := range algorithms {
		a := gradientFrame(24, 24)
		b := gradientFrame(24, 24)

		// Separate instances: no shared state may leak into the output.
		if err := NewDitherer().Dither(a, 24, 24, alg, 2); err != nil {
			t.Fatalf("algorithm %d: %v", alg, err)
		}
		if err := NewDitherer().Dither(b, 24, 24, alg, 2); err != nil {
			t.Fatalf("algorithm %d: %v", alg, err)
		}
		if !bytes.Equal(a, b) {
			t.Errorf("algorithm %d: identical input produced different output", alg)
		}
	}
}

func TestDitherStableDiffersFromPlain(t *testing.T) {
	d := NewDitherer()

	plain := gradientFrame(24, 24)
	stable := gradientFrame(24, 24)

	if err := d.Dither(plain, 24, 24, DitherFloydSteinberg, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.Dither(stable, 24, 24, DitherFloydSteinbergStable, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if bytes.Equal(plain, stable) {
		t.Errorf("expected the positional threshold to change the pattern")
	}
}

func TestDitherOrderedEightBitIdentity(t *testing.T) {
	d := NewDitherer()

	pixels := gradientFrame(16, 16)
	original := append([]byte(nil), pixels...)

	// 8 bits means 256 levels: quantization is the identity and the
	// threshold bias rounds away.
	if err := d.Dither(pixels, 16, 16, DitherOrdered, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(pixels, original) {
		t.Errorf("expected 8-bit ordered dither to leave pixels unchanged")
	}
}

func TestDitherUnknownAlgorithm(t *testing.T) {
	d := NewDitherer()
	if err := d.Dither(grayFrame(2, 2, 10), 2, 2, DitherAlgorithm(99), 1); err == nil {
		t.Errorf("expected error for unknown algorithm")
	}
}
