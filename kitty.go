package termrender

import (
	"encoding/base64"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// kittyChunkSize is the maximum base64 payload per APC escape. The protocol
// caps chunks at 4096 bytes.
const kittyChunkSize = 4096

// kittyCacheCapacity bounds the encoded-frame cache. Animations typically
// reuse far fewer distinct frames than this.
const kittyCacheCapacity = 64

type kittyCacheKey struct {
	hash   uint64
	width  int
	height int
	id     uint32
	format int
}

// Kitty pixel formats (the protocol's f= values).
const (
	kittyFormatRGBA = 32
	kittyFormatRGB  = 24
)

// KittyEncoder turns raw RGBA pixels into kitty graphics protocol APC
// escapes: base64 payload split into chunks chained with m=1/m=0. Encoded
// frames are cached by content hash so repeated frames cost one hash.
type KittyEncoder struct {
	mu       sync.Mutex
	useCache bool
	format   int
	cache    map[kittyCacheKey]string
	order    []kittyCacheKey
}

// KittyOption configures a KittyEncoder during construction.
type KittyOption func(*KittyEncoder)

// WithKittyCache enables caching of encoded frames keyed by pixel content.
// Default is true.
func WithKittyCache(enabled bool) KittyOption {
	return func(e *KittyEncoder) {
		e.useCache = enabled
	}
}

// WithKittyRGB transmits 24-bit RGB instead of RGBA, dropping the alpha
// channel. Smaller payloads for content known to be opaque.
func WithKittyRGB() KittyOption {
	return func(e *KittyEncoder) {
		e.format = kittyFormatRGB
	}
}

// NewKittyEncoder creates a kitty graphics encoder with the given options.
func NewKittyEncoder(opts ...KittyOption) *KittyEncoder {
	e := &KittyEncoder{
		useCache: true,
		format:   kittyFormatRGBA,
		cache:    make(map[kittyCacheKey]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode produces the escape stream that transmits and displays an RGBA
// image under the given id. Re-encoding the same pixels with the same id
// returns the cached stream.
func (e *KittyEncoder) Encode(pixels []byte, width, height int, id uint32) (string, error) {
	if width <= 0 || height <= 0 || len(pixels) < width*height*4 {
		return "", ErrInvalidDimensions
	}
	pixels = pixels[:width*height*4]

	var key kittyCacheKey
	if e.useCache {
		key = kittyCacheKey{
			hash:   xxhash.Sum64(pixels),
			width:  width,
			height: height,
			id:     id,
			format: e.format,
		}
		e.mu.Lock()
		cached, ok := e.cache[key]
		e.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	encoded := encodeKittyChunks(pixels, width, height, id, e.format)

	if e.useCache {
		e.mu.Lock()
		if _, exists := e.cache[key]; !exists {
			for len(e.order) >= kittyCacheCapacity {
				oldest := e.order[0]
				e.order = e.order[1:]
				delete(e.cache, oldest)
			}
			e.order = append(e.order, key)
		}
		e.cache[key] = encoded
		e.mu.Unlock()
	}
	return encoded, nil
}

// encodeKittyChunks builds the chunked APC stream. The first chunk carries
// the full control data (f= raw pixel format, a=T transmit-and-display, q=2
// no responses, C=1 keep the cursor in place); continuation chunks carry
// only the m flag.
func encodeKittyChunks(pixels []byte, width, height int, id uint32, format int) string {
	if format == kittyFormatRGB {
		rgb := make([]byte, 0, width*height*3)
		for i := 0; i+3 < len(pixels); i += 4 {
			rgb = append(rgb, pixels[i], pixels[i+1], pixels[i+2])
		}
		pixels = rgb
	}
	payload := base64.StdEncoding.EncodeToString(pixels)

	var b strings.Builder
	first := true
	for len(payload) > 0 {
		chunk := payload
		if len(chunk) > kittyChunkSize {
			chunk = chunk[:kittyChunkSize]
		}
		payload = payload[len(chunk):]

		b.WriteString("\x1b_G")
		if first {
			b.WriteString("a=T,f=" + strconv.Itoa(format) +
				",i=" + strconv.FormatUint(uint64(id), 10) +
				",s=" + strconv.Itoa(width) +
				",v=" + strconv.Itoa(height) +
				",q=2,C=1,")
			first = false
		}
		if len(payload) > 0 {
			b.WriteString("m=1")
		} else {
			b.WriteString("m=0")
		}
		b.WriteByte(';')
		b.WriteString(chunk)
		b.WriteString("\x1b\\")
	}
	return b.String()
}

// Delete produces the escape that removes the image with the given id from
// the screen and frees its data.
func (e *KittyEncoder) Delete(id uint32) string {
	return "\x1b_Ga=d,d=i,i=" + strconv.FormatUint(uint64(id), 10) + "\x1b\\"
}

// DeleteAll produces the escape that removes every kitty image.
func (e *KittyEncoder) DeleteAll() string {
	return "\x1b_Ga=d,d=a\x1b\\"
}
