package termrender

import (
	"bytes"
	"sync"
)

// OutputGenerator turns a frame's changed cells into a minimal ANSI byte
// stream: cursor moves chosen by byte cost, style codes emitted only on
// change, characters in between. It tracks the cursor position and the last
// emitted style across frames; both start unknown and can be reset with
// Invalidate when something else has touched the terminal.
type OutputGenerator struct {
	mu sync.Mutex

	width   int
	support ColorSupport

	trackedX  int
	trackedY  int
	lastStyle string

	buf bytes.Buffer // reused across frames
}

// GeneratorOption configures an OutputGenerator during construction.
type GeneratorOption func(*OutputGenerator)

// WithWidth sets the render width used for line-wrap accounting.
// Default is 80.
func WithWidth(width int) GeneratorOption {
	return func(g *OutputGenerator) {
		if width > 0 {
			g.width = width
		}
	}
}

// WithColorSupport sets the initial color support mode.
// Default is ColorSupportTrueColor.
func WithColorSupport(support ColorSupport) GeneratorOption {
	return func(g *OutputGenerator) {
		g.support = support
	}
}

// NewOutputGenerator creates a generator with the given options.
func NewOutputGenerator(opts ...GeneratorOption) *OutputGenerator {
	g := &OutputGenerator{
		width:    80,
		support:  ColorSupportTrueColor,
		trackedX: positionUnknown,
		trackedY: positionUnknown,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetColorSupport changes the color support mode. Takes effect on the next
// Generate call; the remembered style is dropped since its encoding is no
// longer comparable.
func (g *OutputGenerator) SetColorSupport(support ColorSupport) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.support != support {
		g.support = support
		g.lastStyle = ""
	}
}

// ColorSupport returns the active color support mode.
func (g *OutputGenerator) ColorSupport() ColorSupport {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.support
}

// SetWidth changes the render width used for wrap accounting.
// Invalid widths (<= 0) are ignored.
func (g *OutputGenerator) SetWidth(width int) {
	if width <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.width = width
}

// Width returns the render width.
func (g *OutputGenerator) Width() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.width
}

// Invalidate forgets the tracked cursor position and style. The next frame
// starts with an absolute cursor move and a full style code.
func (g *OutputGenerator) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trackedX = positionUnknown
	g.trackedY = positionUnknown
	g.lastStyle = ""
}

// Generate produces the ANSI output for one frame of cell differences. The
// input slice is sorted in place (row-major); an empty input produces an
// empty string with no state change.
func (g *OutputGenerator) Generate(diffs []CellDifference) string {
	if len(diffs) == 0 {
		return ""
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	sortDifferences(diffs)

	g.buf.Reset()
	for _, span := range groupSpans(diffs) {
		g.buf.WriteString(moveCursor(g.trackedX, g.trackedY, span.x, span.y))
		g.trackedX = span.x
		g.trackedY = span.y

		for i := range span.cells {
			cell := &span.cells[i]

			style := styleSequence(cell, g.support)
			if style != g.lastStyle {
				g.buf.WriteString(style)
				g.lastStyle = style
			}

			g.buf.WriteRune(cell.Char)
			g.trackedX += cellAdvance(cell.Char)
			if g.trackedX >= g.width {
				// Tracked position only; the terminal is assumed to wrap
				// the same way.
				g.trackedX = 0
				g.trackedY++
			}
		}
	}

	return g.buf.String()
}

// styleSequence reduces a cell's visual attributes to one SGR sequence:
// reset, foreground, background, then bold/dim/italic/underline/reverse in
// that fixed order. Malformed color strings contribute no code.
func styleSequence(cell *Cell, support ColorSupport) string {
	var b bytes.Buffer
	b.WriteString("\x1b[0")

	if code := colorCode(cell.Fg, support, true); code != "" {
		b.WriteByte(';')
		b.WriteString(code)
	}
	if code := colorCode(cell.Bg, support, false); code != "" {
		b.WriteByte(';')
		b.WriteString(code)
	}

	if cell.HasFlag(CellFlagBold) {
		b.WriteString(";1")
	}
	if cell.HasFlag(CellFlagDim) {
		b.WriteString(";2")
	}
	if cell.HasFlag(CellFlagItalic) {
		b.WriteString(";3")
	}
	if cell.HasFlag(CellFlagUnderline) {
		b.WriteString(";4")
	}
	if cell.HasFlag(CellFlagReverse) {
		b.WriteString(";7")
	}

	b.WriteByte('m')
	return b.String()
}
