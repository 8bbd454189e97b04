package termrender

import (
	"errors"
	"math"
	"sync"
)

// DitherAlgorithm selects how quantization error is distributed.
type DitherAlgorithm int

const (
	// DitherFloydSteinberg is the classic 4-neighbor error diffusion.
	DitherFloydSteinberg DitherAlgorithm = iota
	// DitherFloydSteinbergStable is the video variant: positional
	// thresholds and attenuated error keep unchanged input dithering
	// identically across frames.
	DitherFloydSteinbergStable
	// DitherSierra diffuses over a 10-neighbor kernel. Smoother gradients,
	// more work per pixel.
	DitherSierra
	// DitherSierraStable is the temporally stable Sierra variant.
	DitherSierraStable
	// DitherAtkinson diffuses only 3/4 of the error over 6 neighbors,
	// trading accuracy for contrast.
	DitherAtkinson
	// DitherAtkinsonStable is the temporally stable Atkinson variant.
	DitherAtkinsonStable
	// DitherOrdered thresholds against an 8x8 Bayer matrix. No error
	// propagation: fully parallelizable and temporally stable by
	// construction.
	DitherOrdered
	// DitherBlueNoise thresholds against a precomputed noise texture with
	// no structured pattern.
	DitherBlueNoise
)

// ErrInvalidDimensions reports a pixel buffer whose dimensions are
// non-positive or do not match its length.
var ErrInvalidDimensions = errors.New("termrender: invalid pixel dimensions")

// stableAttenuation reduces propagated error in the stable variants so a
// single-frame change cannot cascade across the image.
const stableAttenuation = 0.75

// bayer8 is the classic 8x8 Bayer threshold matrix (values 0-63).
var bayer8 = [8][8]int{
	{0, 32, 8, 40, 2, 34, 10, 42},
	{48, 16, 56, 24, 50, 18, 58, 26},
	{12, 44, 4, 36, 14, 46, 6, 38},
	{60, 28, 52, 20, 62, 30, 54, 22},
	{3, 35, 11, 43, 1, 33, 9, 41},
	{51, 19, 59, 27, 49, 17, 57, 25},
	{15, 47, 7, 39, 13, 45, 5, 37},
	{63, 31, 55, 23, 61, 29, 53, 21},
}

// diffusionTap is one target of an error-diffusion kernel.
type diffusionTap struct {
	dx, dy int
	weight int
}

// diffusionKernel is a named error-diffusion kernel with its divisor.
type diffusionKernel struct {
	taps    []diffusionTap
	divisor int
}

var (
	floydSteinbergKernel = diffusionKernel{
		taps:    []diffusionTap{{1, 0, 7}, {-1, 1, 3}, {0, 1, 5}, {1, 1, 1}},
		divisor: 16,
	}
	sierraKernel = diffusionKernel{
		taps: []diffusionTap{
			{1, 0, 5}, {2, 0, 3},
			{-2, 1, 2}, {-1, 1, 4}, {0, 1, 5}, {1, 1, 4}, {2, 1, 2},
			{-1, 2, 2}, {0, 2, 3}, {1, 2, 2},
		},
		divisor: 32,
	}
	// Atkinson deliberately diffuses only 6/8 of the error.
	atkinsonKernel = diffusionKernel{
		taps: []diffusionTap{
			{1, 0, 1}, {2, 0, 1},
			{-1, 1, 1}, {0, 1, 1}, {1, 1, 1},
			{0, 2, 1},
		},
		divisor: 8,
	}
)

const blueNoiseSize = 64

// Ditherer reduces interleaved RGBA pixels to a limited per-channel depth,
// mutating the buffer in place. The blue-noise texture is generated once per
// instance with a fixed procedure, so output is deterministic.
type Ditherer struct {
	mu        sync.Mutex
	blueNoise []uint8
}

// NewDitherer creates a ditherer.
func NewDitherer() *Ditherer {
	return &Ditherer{}
}

// Dither quantizes the buffer to the given per-channel bit depth (1, 4, or
// 8) using the selected algorithm. Alpha is left untouched. The buffer must
// hold width*height interleaved RGBA pixels.
func (d *Ditherer) Dither(pixels []byte, width, height int, algorithm DitherAlgorithm, bits int) error {
	if width <= 0 || height <= 0 || len(pixels) < width*height*4 {
		return ErrInvalidDimensions
	}
	levels := (1 << clampBits(bits)) - 1

	switch algorithm {
	case DitherFloydSteinberg:
		d.errorDiffuse(pixels, width, height, levels, floydSteinbergKernel, false)
	case DitherFloydSteinbergStable:
		d.errorDiffuse(pixels, width, height, levels, floydSteinbergKernel, true)
	case DitherSierra:
		d.errorDiffuse(pixels, width, height, levels, sierraKernel, false)
	case DitherSierraStable:
		d.errorDiffuse(pixels, width, height, levels, sierraKernel, true)
	case DitherAtkinson:
		d.errorDiffuse(pixels, width, height, levels, atkinsonKernel, false)
	case DitherAtkinsonStable:
		d.errorDiffuse(pixels, width, height, levels, atkinsonKernel, true)
	case DitherOrdered:
		d.ordered(pixels, width, height, levels)
	case DitherBlueNoise:
		d.blueNoiseDither(pixels, width, height, levels)
	default:
		return errors.New("termrender: unknown dither algorithm")
	}
	return nil
}

func clampBits(bits int) int {
	if bits < 1 {
		return 1
	}
	if bits > 8 {
		return 8
	}
	return bits
}

// quantizeChannel snaps a channel value to the nearest of levels+1 evenly
// spaced steps.
func quantizeChannel(v float64, levels int) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	step := math.Round(v / 255 * float64(levels))
	return uint8(math.Round(step * 255 / float64(levels)))
}

// errorDiffuse runs a classic error-diffusion pass. The stable variant
// biases each pixel's threshold by its Bayer cell and attenuates the
// propagated error, so unchanged input dithers identically frame to frame.
func (d *Ditherer) errorDiffuse(pixels []byte, width, height int, levels int, kernel diffusionKernel, stable bool) {
	divisor := float64(kernel.divisor)
	step := 255 / float64(levels)

	carry := make([]float64, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			base := (y*width + x) * 4
			for c := 0; c < 3; c++ {
				old := float64(pixels[base+c]) + carry[(y*width+x)*3+c]
				if stable {
					old += (float64(bayer8[y&7][x&7])/64 - 0.5) * step * 0.5
				}

				quantized := quantizeChannel(old, levels)
				pixels[base+c] = quantized

				err := old - float64(quantized)
				if stable {
					err *= stableAttenuation
				}
				for _, tap := range kernel.taps {
					tx, ty := x+tap.dx, y+tap.dy
					if tx < 0 || tx >= width || ty >= height {
						continue
					}
					carry[(ty*width+tx)*3+c] += err * float64(tap.weight) / divisor
				}
			}
		}
	}
}

// ordered thresholds every pixel against the Bayer matrix. No state is
// carried between pixels.
func (d *Ditherer) ordered(pixels []byte, width, height int, levels int) {
	step := 255 / float64(levels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bias := (float64(bayer8[y&7][x&7])/64 - 0.5) * step
			base := (y*width + x) * 4
			for c := 0; c < 3; c++ {
				pixels[base+c] = quantizeChannel(float64(pixels[base+c])+bias, levels)
			}
		}
	}
}

// blueNoiseDither thresholds against the noise texture. Like ordered
// dithering it carries no state, but the texture has no visible structure.
func (d *Ditherer) blueNoiseDither(pixels []byte, width, height int, levels int) {
	noise := d.noiseTexture()
	step := 255 / float64(levels)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			n := noise[(y&(blueNoiseSize-1))*blueNoiseSize+(x&(blueNoiseSize-1))]
			bias := (float64(n)/255 - 0.5) * step
			base := (y*width + x) * 4
			for c := 0; c < 3; c++ {
				pixels[base+c] = quantizeChannel(float64(pixels[base+c])+bias, levels)
			}
		}
	}
}

// noiseTexture lazily builds the 64x64 threshold texture using interleaved
// gradient noise, which is deterministic and spectrally close to blue noise
// without a precomputed asset.
func (d *Ditherer) noiseTexture() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.blueNoise != nil {
		return d.blueNoise
	}

	tex := make([]uint8, blueNoiseSize*blueNoiseSize)
	for y := 0; y < blueNoiseSize; y++ {
		for x := 0; x < blueNoiseSize; x++ {
			v := 52.9829189 * math.Mod(0.06711056*float64(x)+0.00583715*float64(y), 1)
			frac := v - math.Floor(v)
			tex[y*blueNoiseSize+x] = uint8(frac * 255)
		}
	}
	d.blueNoise = tex
	return tex
}
