package termrender

import (
	"strconv"
	"sync"
)

// Rect is a cell-coordinate region, origin top-left.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// SixelFrame is one image-bearing element's sixel output for a frame.
type SixelFrame struct {
	Data   string // encoded escape stream
	Bounds Rect   // cell region the image occupies

	// Pixel dimensions of the encoded image, needed to size a clearing
	// patch when the image goes away.
	PixelWidth  int
	PixelHeight int
}

// KittyFrame is one image-bearing element's kitty output for a frame.
type KittyFrame struct {
	Data   string
	ID     uint32
	Bounds Rect
}

// ITermFrame is one image-bearing element's iTerm2 output for a frame.
type ITermFrame struct {
	Data   string
	Bounds Rect
}

// GraphicsProvider is implemented by UI elements that produce inline
// graphics. Each method returns the element's current frame for that
// protocol, or false when it has none (not an image, or nothing to show).
type GraphicsProvider interface {
	SixelOutput() (*SixelFrame, bool)
	KittyOutput() (*KittyFrame, bool)
	ITermOutput() (*ITermFrame, bool)
}

// WriteFunc delivers encoded bytes to the terminal. Errors propagate out of
// the manager unchanged.
type WriteFunc func([]byte) error

// sixelRecord remembers a drawn sixel region so it can be cleared later.
type sixelRecord struct {
	bounds      Rect
	pixelWidth  int
	pixelHeight int
}

// itermRecord remembers what was last drawn at a position; iTerm2 has no
// delete command, so staleness is handled by overwriting in place and by
// not re-emitting unchanged content.
type itermRecord struct {
	bounds Rect
	data   string
}

// OverlayManager tracks inline graphics across frames and decides what to
// send, re-send, or clear. Sixel and kitty images sit outside the cell
// buffer's z-order, so they are re-sent every frame while present and must
// be actively erased when gone or when a modal element covers them.
type OverlayManager struct {
	mu sync.Mutex

	caps  Capabilities
	write WriteFunc

	sixel *SixelEncoder
	kitty *KittyEncoder

	prevSixel []sixelRecord
	prevKitty []uint32
	prevITerm []itermRecord

	scrolled bool
}

// OverlayOption configures an OverlayManager during construction.
type OverlayOption func(*OverlayManager)

// WithSixelEncoder sets the encoder used to build clearing patches.
func WithSixelEncoder(enc *SixelEncoder) OverlayOption {
	return func(m *OverlayManager) {
		m.sixel = enc
	}
}

// WithKittyEncoder sets the encoder used to build delete commands.
func WithKittyEncoder(enc *KittyEncoder) OverlayOption {
	return func(m *OverlayManager) {
		m.kitty = enc
	}
}

// NewOverlayManager creates a manager writing through write, gated by the
// detected capabilities.
func NewOverlayManager(caps Capabilities, write WriteFunc, opts ...OverlayOption) *OverlayManager {
	m := &OverlayManager{
		caps:  caps,
		write: write,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sixel == nil {
		m.sixel = NewSixelEncoder()
	}
	if m.kitty == nil {
		m.kitty = NewKittyEncoder()
	}
	return m
}

// MarkScrollHappened flags that the buffer scrolled this frame. On terminals
// with the scroll-clear quirk this forces a clear-and-redraw of visible
// sixel graphics; the flag resets on the next RenderOverlays either way.
func (m *OverlayManager) MarkScrollHappened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrolled = true
}

// RenderOverlays runs one frame of the overlay state machine: clears stale
// graphics, suppresses everything under a modal, and (re-)sends the current
// frames collected from providers.
func (m *OverlayManager) RenderOverlays(providers []GraphicsProvider, modalVisible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scrolled := m.scrolled
	m.scrolled = false

	if modalVisible {
		// Graphics draw over modal content, so hide everything.
		return m.clearAllLocked()
	}

	if m.caps.NeedsScrollClear && scrolled && len(m.prevSixel) > 0 {
		// Scrolling leaves sixel artifacts on this terminal; wipe the old
		// regions so the re-send below starts clean.
		if err := m.clearSixelLocked(); err != nil {
			return err
		}
	}

	var (
		sixels []*SixelFrame
		kittys []*KittyFrame
		iterms []*ITermFrame
	)
	for _, p := range providers {
		if m.caps.Sixel {
			if f, ok := p.SixelOutput(); ok {
				sixels = append(sixels, f)
			}
		}
		if m.caps.Kitty {
			if f, ok := p.KittyOutput(); ok {
				kittys = append(kittys, f)
			}
		}
		if m.caps.ITerm2 {
			if f, ok := p.ITermOutput(); ok {
				iterms = append(iterms, f)
			}
		}
	}

	if err := m.renderSixelLocked(sixels); err != nil {
		return err
	}
	if err := m.renderKittyLocked(kittys); err != nil {
		return err
	}
	return m.renderITermLocked(iterms)
}

// ClearAllGraphics erases every tracked image and returns the manager to
// idle. Called on teardown and before handing the terminal to another
// program.
func (m *OverlayManager) ClearAllGraphics() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearAllLocked()
}

func (m *OverlayManager) clearAllLocked() error {
	if err := m.clearSixelLocked(); err != nil {
		return err
	}
	if err := m.clearKittyLocked(); err != nil {
		return err
	}
	m.prevITerm = nil
	return nil
}

func (m *OverlayManager) clearSixelLocked() error {
	for _, rec := range m.prevSixel {
		patch := m.sixel.EncodeClear(rec.pixelWidth, rec.pixelHeight)
		if patch == "" {
			continue
		}
		if err := m.writeAt(rec.bounds, patch); err != nil {
			return err
		}
	}
	m.prevSixel = nil
	return nil
}

func (m *OverlayManager) clearKittyLocked() error {
	for _, id := range m.prevKitty {
		if err := m.write([]byte(m.kitty.Delete(id))); err != nil {
			return err
		}
	}
	m.prevKitty = nil
	return nil
}

// renderSixelLocked clears regions that vanished since the last frame and
// re-sends every current image. Cell redraw would otherwise paint over the
// still-present images, so they go out every frame even when unchanged.
func (m *OverlayManager) renderSixelLocked(frames []*SixelFrame) error {
	for _, rec := range m.prevSixel {
		if sixelFramesContain(frames, rec.bounds) {
			continue
		}
		patch := m.sixel.EncodeClear(rec.pixelWidth, rec.pixelHeight)
		if patch == "" {
			continue
		}
		if err := m.writeAt(rec.bounds, patch); err != nil {
			return err
		}
	}

	next := make([]sixelRecord, 0, len(frames))
	for _, f := range frames {
		if err := m.writeAt(f.Bounds, f.Data); err != nil {
			return err
		}
		next = append(next, sixelRecord{
			bounds:      f.Bounds,
			pixelWidth:  f.PixelWidth,
			pixelHeight: f.PixelHeight,
		})
	}
	m.prevSixel = next
	return nil
}

func (m *OverlayManager) renderKittyLocked(frames []*KittyFrame) error {
	for _, id := range m.prevKitty {
		if kittyFramesContain(frames, id) {
			continue
		}
		if err := m.write([]byte(m.kitty.Delete(id))); err != nil {
			return err
		}
	}

	next := make([]uint32, 0, len(frames))
	for _, f := range frames {
		if err := m.writeAt(f.Bounds, f.Data); err != nil {
			return err
		}
		next = append(next, f.ID)
	}
	m.prevKitty = next
	return nil
}

// renderITermLocked re-emits only changed frames: iTerm2 images live in the
// cell flow and overwrite in place, so an unchanged frame needs no write.
func (m *OverlayManager) renderITermLocked(frames []*ITermFrame) error {
	next := make([]itermRecord, 0, len(frames))
	for _, f := range frames {
		rec := itermRecord{bounds: f.Bounds, data: f.Data}
		if !m.itermUnchanged(rec) {
			if err := m.writeAt(f.Bounds, f.Data); err != nil {
				return err
			}
		}
		next = append(next, rec)
	}
	m.prevITerm = next
	return nil
}

func (m *OverlayManager) itermUnchanged(rec itermRecord) bool {
	for _, prev := range m.prevITerm {
		if prev.bounds == rec.bounds && prev.data == rec.data {
			return true
		}
	}
	return false
}

// writeAt positions the cursor at the region's top-left, writes the payload,
// and restores the cursor, all in one write.
func (m *OverlayManager) writeAt(bounds Rect, payload string) error {
	out := "\x1b[s" + // save cursor
		"\x1b[" + strconv.Itoa(bounds.Y+1) + ";" + strconv.Itoa(bounds.X+1) + "H" +
		payload +
		"\x1b[u" // restore cursor
	return m.write([]byte(out))
}

func sixelFramesContain(frames []*SixelFrame, bounds Rect) bool {
	for _, f := range frames {
		if f.Bounds == bounds {
			return true
		}
	}
	return false
}

func kittyFramesContain(frames []*KittyFrame, id uint32) bool {
	for _, f := range frames {
		if f.ID == id {
			return true
		}
	}
	return false
}
