package termrender

import "strconv"

// positionUnknown is the tracked-cursor sentinel before the first frame and
// after Invalidate. Movement from an unknown position always uses an
// absolute code.
const positionUnknown = -1

// moveCursor returns the shortest escape sequence that moves the cursor from
// (fromX, fromY) to (toX, toY). Candidates, in preference order on equal
// byte length:
//
//   - nothing, when no movement is needed
//   - a bare single-step code when the delta is exactly one cell on one axis
//   - absolute positioning (CUP)
//   - relative vertical-then-horizontal codes, considered only when the
//     Manhattan distance is at most 8
//   - next/previous-line codes (CNL/CPL) when the target column is 0
//
// Absolute positioning is the guaranteed-correct fallback: it is always a
// candidate, so the emitted length never exceeds it.
func moveCursor(fromX, fromY, toX, toY int) string {
	if fromX == positionUnknown || fromY == positionUnknown {
		return cupSequence(toX, toY)
	}

	dx := toX - fromX
	dy := toY - fromY
	if dx == 0 && dy == 0 {
		return ""
	}

	// Exactly one cell on one axis: a bare directional code is 3 bytes,
	// strictly shorter than anything else below.
	if dy == 0 && dx == 1 {
		return "\x1b[C"
	}
	if dy == 0 && dx == -1 {
		return "\x1b[D"
	}
	if dx == 0 && dy == 1 {
		return "\x1b[B"
	}
	if dx == 0 && dy == -1 {
		return "\x1b[A"
	}

	best := cupSequence(toX, toY)

	if abs(dx)+abs(dy) <= 8 {
		if rel := relativeSequence(dx, dy); len(rel) < len(best) {
			best = rel
		}
	}

	if toX == 0 && dy != 0 {
		if line := lineSequence(dy); len(line) < len(best) {
			best = line
		}
	}

	return best
}

// cupSequence is the absolute "move to row;col" code (1-based).
func cupSequence(x, y int) string {
	return "\x1b[" + strconv.Itoa(y+1) + ";" + strconv.Itoa(x+1) + "H"
}

// relativeSequence combines a vertical then a horizontal relative move.
// A count of 1 is omitted (the terminal defaults missing counts to 1).
func relativeSequence(dx, dy int) string {
	var s string
	if dy > 0 {
		s += relCode(dy, 'B')
	} else if dy < 0 {
		s += relCode(-dy, 'A')
	}
	if dx > 0 {
		s += relCode(dx, 'C')
	} else if dx < 0 {
		s += relCode(-dx, 'D')
	}
	return s
}

func relCode(n int, final byte) string {
	if n == 1 {
		return "\x1b[" + string(final)
	}
	return "\x1b[" + strconv.Itoa(n) + string(final)
}

// lineSequence moves n lines down (CNL) or up (CPL), landing in column 0.
func lineSequence(dy int) string {
	if dy > 0 {
		return relCode(dy, 'E')
	}
	return relCode(-dy, 'F')
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
