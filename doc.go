// Package termrender generates terminal output: minimal ANSI escape
// sequences from cell diffs, and Sixel, Kitty, and iTerm2 graphics from
// pixel buffers, with color quantization and dithering in between. It is
// the encoding counterpart to a terminal emulator: it produces the byte
// stream an emulator consumes.
package termrender
