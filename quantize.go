package termrender

import (
	"sort"
	"sync"
)

// AlphaThreshold is the alpha value below which a pixel counts as
// transparent for palette purposes.
const AlphaThreshold = 128

// lutChannelBits is the per-channel resolution of the color lookup table:
// 5 bits per channel, 32768 entries.
const lutChannelBits = 5

const lutSize = 1 << (3 * lutChannelBits)

// maxWeightedDistance normalizes weighted distances to [0, 1]:
// the weights 2+4+3 at maximum channel difference 255.
const maxWeightedDistance = float64((2 + 4 + 3) * 255 * 255)

// PaletteResult is the outcome of quantizing a pixel buffer.
type PaletteResult struct {
	// Colors is the palette in RGBA8888 packing (see PackRGBA).
	Colors []uint32

	// Indexed holds one palette index per pixel.
	Indexed []byte

	// TransparentIndex is the reserved transparent slot (always 0 when
	// present), or -1 if no transparency was detected.
	TransparentIndex int

	// MeanError is the sampled mean quantization error, normalized to
	// [0, 1]. Zero for exact palettes.
	MeanError float64

	// LUT maps 15-bit quantized RGB to the nearest palette index in O(1).
	// Derived from Colors; may be nil for exact palettes.
	LUT []uint8
}

// PackRGBA packs a color into the RGBA8888 layout used by palettes.
func PackRGBA(r, g, b, a uint8) uint32 {
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a)
}

// UnpackRGBA reverses PackRGBA.
func UnpackRGBA(c uint32) (r, g, b, a uint8) {
	return uint8(c >> 24), uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// weightedDistance is the squared channel distance weighted 2x red, 4x
// green, 3x blue. Green carries the most weight to match perceptual
// sensitivity.
func weightedDistance(r1, g1, b1, r2, g2, b2 uint8) int {
	dr := int(r1) - int(r2)
	dg := int(g1) - int(g2)
	db := int(b1) - int(b2)
	return 2*dr*dr + 4*dg*dg + 3*db*db
}

// nearestIndex scans the palette for the closest color by weighted distance.
// The transparent slot is never a candidate; ties keep the lowest index; an
// exact match short-circuits.
func nearestIndex(colors []uint32, transparentIndex int, r, g, b uint8) int {
	best := -1
	bestDist := 0
	for i, c := range colors {
		if i == transparentIndex {
			continue
		}
		cr, cg, cb, _ := UnpackRGBA(c)
		d := weightedDistance(r, g, b, cr, cg, cb)
		if d == 0 {
			return i
		}
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// BuildColorLUT precomputes the nearest palette index for every 15-bit RGB
// bucket, using the same weighted metric as the direct scan.
func BuildColorLUT(colors []uint32, transparentIndex int) []uint8 {
	lut := make([]uint8, lutSize)
	for r5 := 0; r5 < 32; r5++ {
		r8 := uint8(r5<<3 | r5>>2)
		for g5 := 0; g5 < 32; g5++ {
			g8 := uint8(g5<<3 | g5>>2)
			for b5 := 0; b5 < 32; b5++ {
				b8 := uint8(b5<<3 | b5>>2)
				idx := nearestIndex(colors, transparentIndex, r8, g8, b8)
				lut[r5<<10|g5<<5|b5] = uint8(idx)
			}
		}
	}
	return lut
}

// LookupColorLUT returns the palette index for an RGB value via the 15-bit
// lookup table.
func LookupColorLUT(lut []uint8, r, g, b uint8) uint8 {
	return lut[int(r>>3)<<10|int(g>>3)<<5|int(b>>3)]
}

// colorBox is transient median-cut state: a set of distinct colors plus the
// per-channel ranges.
type colorBox struct {
	colors []uint32
}

func (box *colorBox) channelRanges() (rRange, gRange, bRange int) {
	rMin, gMin, bMin := 255, 255, 255
	rMax, gMax, bMax := 0, 0, 0
	for _, c := range box.colors {
		r, g, b, _ := UnpackRGBA(c)
		if int(r) < rMin {
			rMin = int(r)
		}
		if int(r) > rMax {
			rMax = int(r)
		}
		if int(g) < gMin {
			gMin = int(g)
		}
		if int(g) > gMax {
			gMax = int(g)
		}
		if int(b) < bMin {
			bMin = int(b)
		}
		if int(b) > bMax {
			bMax = int(b)
		}
	}
	return rMax - rMin, gMax - gMin, bMax - bMin
}

// split divides the box at the median of its largest-range channel.
func (box *colorBox) split() (colorBox, colorBox) {
	rRange, gRange, bRange := box.channelRanges()

	var shift uint32
	switch {
	case rRange >= gRange && rRange >= bRange:
		shift = 24
	case gRange >= bRange:
		shift = 16
	default:
		shift = 8
	}

	sort.Slice(box.colors, func(i, j int) bool {
		return uint8(box.colors[i]>>shift) < uint8(box.colors[j]>>shift)
	})

	mid := len(box.colors) / 2
	return colorBox{colors: box.colors[:mid]}, colorBox{colors: box.colors[mid:]}
}

// mean is the per-channel arithmetic mean of the box's colors, rounded.
func (box *colorBox) mean() uint32 {
	var rSum, gSum, bSum int
	for _, c := range box.colors {
		r, g, b, _ := UnpackRGBA(c)
		rSum += int(r)
		gSum += int(g)
		bSum += int(b)
	}
	n := len(box.colors)
	if n == 0 {
		return PackRGBA(0, 0, 0, 255)
	}
	round := func(sum int) uint8 {
		return uint8((sum + n/2) / n)
	}
	return PackRGBA(round(rSum), round(gSum), round(bSum), 255)
}

// fixedPalette is a process-lifetime palette plus its shared LUT.
type fixedPalette struct {
	colors []uint32
	lut    []uint8
}

// Quantizer reduces truecolor pixel data to bounded palettes. It owns the
// fixed-palette tables and the keyframe cache; all state is lazily built and
// guarded so one instance can be shared.
type Quantizer struct {
	mu sync.Mutex

	fixed216 *fixedPalette
	fixed256 *fixedPalette

	cache *paletteCache
}

// QuantizerOption configures a Quantizer during construction.
type QuantizerOption func(*Quantizer)

// WithPaletteCacheCapacity bounds the keyframe/cached palette cache.
// Default is 32 entries.
func WithPaletteCacheCapacity(n int) QuantizerOption {
	return func(q *Quantizer) {
		if n > 0 {
			q.cache = newPaletteCache(n)
		}
	}
}

// NewQuantizer creates a quantizer with the given options.
func NewQuantizer(opts ...QuantizerOption) *Quantizer {
	q := &Quantizer{
		cache: newPaletteCache(32),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// QuantizeMedianCut reduces interleaved RGBA pixels to at most maxColors
// palette entries. If any pixel is transparent (alpha below AlphaThreshold),
// slot 0 is reserved for transparency and the remaining budget quantizes the
// opaque pixels. When the distinct opaque colors fit the budget the palette
// is exactly those colors and the error is zero.
func (q *Quantizer) QuantizeMedianCut(pixels []byte, maxColors int) *PaletteResult {
	if maxColors < 2 || len(pixels) < 4 {
		return &PaletteResult{TransparentIndex: -1}
	}

	pixelCount := len(pixels) / 4

	hasTransparent := false
	distinct := make(map[uint32]struct{})
	order := make([]uint32, 0, 256)
	for i := 0; i < pixelCount; i++ {
		if pixels[i*4+3] < AlphaThreshold {
			hasTransparent = true
			continue
		}
		c := PackRGBA(pixels[i*4], pixels[i*4+1], pixels[i*4+2], 255)
		if _, seen := distinct[c]; !seen {
			distinct[c] = struct{}{}
			order = append(order, c)
		}
	}

	transparentIndex := -1
	budget := maxColors
	var colors []uint32
	if hasTransparent {
		transparentIndex = 0
		budget--
		colors = append(colors, 0) // slot 0: fully transparent
	}

	if len(order) <= budget {
		return q.exactPalette(pixels, colors, order, transparentIndex)
	}

	boxes := []colorBox{{colors: order}}
	for len(boxes) < budget {
		// Split the box holding the most colors.
		widest := 0
		for i := 1; i < len(boxes); i++ {
			if len(boxes[i].colors) > len(boxes[widest].colors) {
				widest = i
			}
		}
		if len(boxes[widest].colors) <= 1 {
			break
		}
		a, b := boxes[widest].split()
		boxes[widest] = a
		boxes = append(boxes, b)
	}

	for i := range boxes {
		colors = append(colors, boxes[i].mean())
	}

	lut := BuildColorLUT(colors, transparentIndex)
	indexed := indexPixels(pixels, lut, transparentIndex)

	return &PaletteResult{
		Colors:           colors,
		Indexed:          indexed,
		TransparentIndex: transparentIndex,
		MeanError:        sampledMeanError(pixels, colors, indexed),
		LUT:              lut,
	}
}

// exactPalette builds the zero-error palette for images whose distinct
// colors fit the budget. Indexing uses an exact map so no LUT rounding can
// introduce error.
func (q *Quantizer) exactPalette(pixels []byte, colors, order []uint32, transparentIndex int) *PaletteResult {
	colors = append(colors, order...)

	colorToIndex := make(map[uint32]uint8, len(colors))
	for i, c := range colors {
		colorToIndex[c] = uint8(i)
	}

	pixelCount := len(pixels) / 4
	indexed := make([]byte, pixelCount)
	for i := 0; i < pixelCount; i++ {
		if transparentIndex == 0 && pixels[i*4+3] < AlphaThreshold {
			indexed[i] = 0
			continue
		}
		indexed[i] = colorToIndex[PackRGBA(pixels[i*4], pixels[i*4+1], pixels[i*4+2], 255)]
	}

	return &PaletteResult{
		Colors:           colors,
		Indexed:          indexed,
		TransparentIndex: transparentIndex,
		MeanError:        0,
		LUT:              BuildColorLUT(colors, transparentIndex),
	}
}

// indexPixels maps every pixel through the LUT; transparent pixels go to the
// reserved slot.
func indexPixels(pixels []byte, lut []uint8, transparentIndex int) []byte {
	pixelCount := len(pixels) / 4
	indexed := make([]byte, pixelCount)
	for i := 0; i < pixelCount; i++ {
		if transparentIndex == 0 && pixels[i*4+3] < AlphaThreshold {
			indexed[i] = 0
			continue
		}
		indexed[i] = LookupColorLUT(lut, pixels[i*4], pixels[i*4+1], pixels[i*4+2])
	}
	return indexed
}

// sampledMeanError measures the normalized quantization error over every
// 16th pixel.
func sampledMeanError(pixels []byte, colors []uint32, indexed []byte) float64 {
	pixelCount := len(pixels) / 4
	var sum float64
	var n int
	for i := 0; i < pixelCount; i += 16 {
		r, g, b, _ := UnpackRGBA(colors[indexed[i]])
		d := weightedDistance(pixels[i*4], pixels[i*4+1], pixels[i*4+2], r, g, b)
		sum += float64(d) / maxWeightedDistance
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// QuantizeFixed216 indexes pixels against the precomputed 6x6x6 web-safe
// cube. The palette and its LUT are built once per Quantizer and shared
// across calls.
func (q *Quantizer) QuantizeFixed216(pixels []byte) *PaletteResult {
	q.mu.Lock()
	if q.fixed216 == nil {
		colors := make([]uint32, 0, 216)
		for r := 0; r < 6; r++ {
			for g := 0; g < 6; g++ {
				for b := 0; b < 6; b++ {
					colors = append(colors, PackRGBA(uint8(r*51), uint8(g*51), uint8(b*51), 255))
				}
			}
		}
		q.fixed216 = &fixedPalette{colors: colors, lut: BuildColorLUT(colors, -1)}
	}
	fp := q.fixed216
	q.mu.Unlock()

	return fixedResult(pixels, fp)
}

// QuantizeFixed256 indexes pixels against the 216-color cube extended with
// 40 grayscale steps.
func (q *Quantizer) QuantizeFixed256(pixels []byte) *PaletteResult {
	q.mu.Lock()
	if q.fixed256 == nil {
		colors := make([]uint32, 0, 256)
		for r := 0; r < 6; r++ {
			for g := 0; g < 6; g++ {
				for b := 0; b < 6; b++ {
					colors = append(colors, PackRGBA(uint8(r*51), uint8(g*51), uint8(b*51), 255))
				}
			}
		}
		for i := 0; i < 40; i++ {
			gray := uint8((i*255 + 19) / 39)
			colors = append(colors, PackRGBA(gray, gray, gray, 255))
		}
		q.fixed256 = &fixedPalette{colors: colors, lut: BuildColorLUT(colors, -1)}
	}
	fp := q.fixed256
	q.mu.Unlock()

	return fixedResult(pixels, fp)
}

func fixedResult(pixels []byte, fp *fixedPalette) *PaletteResult {
	indexed := indexPixels(pixels, fp.lut, -1)
	return &PaletteResult{
		Colors:           fp.colors,
		Indexed:          indexed,
		TransparentIndex: -1,
		MeanError:        sampledMeanError(pixels, fp.colors, indexed),
		LUT:              fp.lut,
	}
}

// luma approximates perceived brightness (BT.601 weights, 0-255).
func luma(r, g, b uint8) int {
	return (299*int(r) + 587*int(g) + 114*int(b)) / 1000
}

// paletteMaxBrightness is the brightest palette entry, ignoring the
// transparent slot.
func paletteMaxBrightness(p *PaletteResult) int {
	max := 0
	for i, c := range p.Colors {
		if i == p.TransparentIndex {
			continue
		}
		r, g, b, _ := UnpackRGBA(c)
		if l := luma(r, g, b); l > max {
			max = l
		}
	}
	return max
}

// sampledMaxBrightness is the brightest opaque pixel, sampled every 8th.
func sampledMaxBrightness(pixels []byte) int {
	pixelCount := len(pixels) / 4
	max := 0
	for i := 0; i < pixelCount; i += 8 {
		if pixels[i*4+3] < AlphaThreshold {
			continue
		}
		if l := luma(pixels[i*4], pixels[i*4+1], pixels[i*4+2]); l > max {
			max = l
		}
	}
	return max
}
