package termrender

import "sort"

// CellFlags is a bitmask of cell rendering attributes.
type CellFlags uint8

const (
	CellFlagBold CellFlags = 1 << iota
	CellFlagDim
	CellFlagItalic
	CellFlagUnderline
	CellFlagReverse
)

// Cell is the visual state of a single terminal position: a character plus
// optional colors and attribute flags. Colors are given in string form
// ("red", "#ff0000", "#f00", "rgb(255,0,0)"); an empty string means the
// terminal default. Cells are owned by the caller's buffer and are never
// mutated by this package.
type Cell struct {
	Char  rune
	Fg    string
	Bg    string
	Flags CellFlags
}

// HasFlag returns true if the specified flag is set.
func (c *Cell) HasFlag(flag CellFlags) bool {
	return c.Flags&flag != 0
}

// SetFlag enables the specified flag without affecting others.
func (c *Cell) SetFlag(flag CellFlags) {
	c.Flags |= flag
}

// ClearFlag disables the specified flag without affecting others.
func (c *Cell) ClearFlag(flag CellFlags) {
	c.Flags &^= flag
}

// CellDifference is one changed position in a frame. A frame's worth of
// differences, in any order, is the sole input to the output generator.
type CellDifference struct {
	X, Y int
	Cell Cell
}

// sortDifferences orders differences row-major: ascending y, then ascending x.
// The span grouping below relies on this ordering.
func sortDifferences(diffs []CellDifference) {
	sort.SliceStable(diffs, func(i, j int) bool {
		if diffs[i].Y != diffs[j].Y {
			return diffs[i].Y < diffs[j].Y
		}
		return diffs[i].X < diffs[j].X
	})
}

// contiguousSpan is a maximal run of same-row differences with strictly
// consecutive columns. Spans exist only while a frame is being generated.
type contiguousSpan struct {
	x, y  int
	cells []Cell
}

// groupSpans splits sorted differences into contiguous spans. A new span
// starts whenever the row changes or the column is not immediately after the
// previous cell.
func groupSpans(diffs []CellDifference) []contiguousSpan {
	if len(diffs) == 0 {
		return nil
	}

	spans := make([]contiguousSpan, 0, len(diffs)/4+1)
	current := contiguousSpan{
		x:     diffs[0].X,
		y:     diffs[0].Y,
		cells: []Cell{diffs[0].Cell},
	}

	for _, d := range diffs[1:] {
		if d.Y == current.y && d.X == current.x+len(current.cells) {
			current.cells = append(current.cells, d.Cell)
			continue
		}
		spans = append(spans, current)
		current = contiguousSpan{x: d.X, y: d.Y, cells: []Cell{d.Cell}}
	}

	return append(spans, current)
}
