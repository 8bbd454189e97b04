package termrender

// PaletteMode selects the caching policy for QuantizePalette.
type PaletteMode int

const (
	// PaletteModeFixed uses a precomputed 216/256-color palette with no
	// per-call quantization.
	PaletteModeFixed PaletteMode = iota
	// PaletteModeCached quantizes once per cache key and returns the stored
	// result verbatim afterwards. For static content.
	PaletteModeCached
	// PaletteModeKeyframe quantizes once per scene, re-indexes every frame
	// against the cached palette, and invalidates it when the content
	// drifts past tolerance.
	PaletteModeKeyframe
	// PaletteModeDynamic quantizes every frame with no cache interaction.
	PaletteModeDynamic
)

// Keyframe invalidation thresholds.
const (
	// keyframeMinColors guards against palettes learned from a blank or
	// still-loading frame.
	keyframeMinColors = 32
	// keyframeBrightnessSlack is how many luma units brighter a frame may
	// get before the cached palette is assumed unable to represent the new
	// highlights.
	keyframeBrightnessSlack = 50
	// keyframeErrorTolerance is the sampled normalized re-index error above
	// which the cached palette is discarded.
	keyframeErrorTolerance = 0.02
)

// paletteCache is a bounded cache with insertion-order eviction: the oldest
// key is dropped when capacity is exceeded.
type paletteCache struct {
	capacity int
	entries  map[string]*PaletteResult
	order    []string
}

func newPaletteCache(capacity int) *paletteCache {
	return &paletteCache{
		capacity: capacity,
		entries:  make(map[string]*PaletteResult),
	}
}

func (c *paletteCache) get(key string) (*PaletteResult, bool) {
	p, ok := c.entries[key]
	return p, ok
}

func (c *paletteCache) put(key string, p *PaletteResult) {
	if _, exists := c.entries[key]; !exists {
		for len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = p
}

func (c *paletteCache) remove(key string) {
	if _, exists := c.entries[key]; !exists {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *paletteCache) len() int {
	return len(c.entries)
}

// QuantizePalette quantizes pixels under the given mode. cacheKey identifies
// the content for the cached and keyframe modes (callers typically combine a
// content identity with the pixel dimensions, e.g. "logo.png:320x240").
func (q *Quantizer) QuantizePalette(pixels []byte, mode PaletteMode, maxColors int, cacheKey string) *PaletteResult {
	switch mode {
	case PaletteModeFixed:
		if maxColors > 216 {
			return q.QuantizeFixed256(pixels)
		}
		return q.QuantizeFixed216(pixels)

	case PaletteModeCached:
		q.mu.Lock()
		cached, ok := q.cache.get(cacheKey)
		q.mu.Unlock()
		if ok {
			return cached
		}
		result := q.QuantizeMedianCut(pixels, maxColors)
		q.mu.Lock()
		q.cache.put(cacheKey, result)
		q.mu.Unlock()
		return result

	case PaletteModeKeyframe:
		return q.quantizeKeyframe(pixels, maxColors, cacheKey)

	default: // PaletteModeDynamic
		return q.QuantizeMedianCut(pixels, maxColors)
	}
}

// quantizeKeyframe reuses a scene palette while it still represents the
// frame well, re-indexing each frame, and requantizes when it does not.
func (q *Quantizer) quantizeKeyframe(pixels []byte, maxColors int, cacheKey string) *PaletteResult {
	q.mu.Lock()
	cached, ok := q.cache.get(cacheKey)
	q.mu.Unlock()

	if ok {
		if reused := q.reuseKeyframe(pixels, cached, cacheKey); reused != nil {
			return reused
		}
	}

	fresh := q.QuantizeMedianCut(pixels, maxColors)
	if len(fresh.Colors) < keyframeMinColors {
		// Near-blank frame: a tiny learned palette would poison later
		// frames, so fall back to full fixed coverage and cache nothing.
		return q.QuantizeFixed256(pixels)
	}

	q.mu.Lock()
	q.cache.put(cacheKey, fresh)
	q.mu.Unlock()
	return fresh
}

// reuseKeyframe re-indexes the frame against a cached palette if the palette
// still qualifies. Returns nil (after evicting the entry) when the cache
// must be discarded.
func (q *Quantizer) reuseKeyframe(pixels []byte, cached *PaletteResult, cacheKey string) *PaletteResult {
	discard := func() *PaletteResult {
		q.mu.Lock()
		q.cache.remove(cacheKey)
		q.mu.Unlock()
		return nil
	}

	if len(cached.Colors) < keyframeMinColors {
		return discard()
	}
	if sampledMaxBrightness(pixels) > paletteMaxBrightness(cached)+keyframeBrightnessSlack {
		// The cached palette cannot represent the new highlights.
		return discard()
	}

	indexed := indexPixels(pixels, cached.LUT, cached.TransparentIndex)
	meanErr := sampledMeanError(pixels, cached.Colors, indexed)
	if meanErr >= keyframeErrorTolerance {
		return discard()
	}

	return &PaletteResult{
		Colors:           cached.Colors,
		Indexed:          indexed,
		TransparentIndex: cached.TransparentIndex,
		MeanError:        meanErr,
		LUT:              cached.LUT,
	}
}
