package termrender

import (
	"bytes"
	"strings"
	"testing"

	headlessterm "github.com/danielgatis/go-headless-term"
)

// decodeKittyChunks splits an APC stream into commands and reassembles the
// transmitted payload.
func decodeKittyChunks(t *testing.T, stream string) ([]*headlessterm.KittyCommand, []byte) {
	t.Helper()

	var cmds []*headlessterm.KittyCommand
	var payload []byte
	for _, part := range strings.Split(stream, "\x1b\\") {
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "\x1b_G") {
			t.Fatalf("chunk missing APC prefix: %q", part)
		}
		cmd, err := headlessterm.ParseKittyGraphics([]byte(part[2:]))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		cmds = append(cmds, cmd)
		payload = append(payload, cmd.Payload...)
	}
	return cmds, payload
}

func kittyTestPixels(width, height int) []byte {
	pixels := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		pixels[i*4+0] = uint8(i)
		pixels[i*4+1] = uint8(i >> 4)
		pixels[i*4+2] = uint8(i >> 8)
		pixels[i*4+3] = 255
	}
	return pixels
}

func TestKittyEncodeSingleChunk(t *testing.T) {
	enc := NewKittyEncoder()
	pixels := kittyTestPixels(4, 4)

	stream, err := enc.Encode(pixels, 4, 4, 7)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	cmds, payload := decodeKittyChunks(t, stream)
	if len(cmds) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(cmds))
	}

	cmd := cmds[0]
	if cmd.Action != headlessterm.KittyActionTransmitDisplay {
		t.Errorf("expected transmit-and-display, got %c", cmd.Action)
	}
	if cmd.Format != headlessterm.KittyFormatRGBA {
		t.Errorf("expected RGBA format, got %d", cmd.Format)
	}
	if cmd.ImageID != 7 {
		t.Errorf("expected image id 7, got %d", cmd.ImageID)
	}
	if cmd.Width != 4 || cmd.Height != 4 {
		t.Errorf("expected 4x4, got %dx%d", cmd.Width, cmd.Height)
	}
	if cmd.More {
		t.Errorf("expected final chunk")
	}
	if cmd.Quiet != 2 {
		t.Errorf("expected q=2, got %d", cmd.Quiet)
	}
	if !cmd.DoNotMoveCursor {
		t.Errorf("expected C=1")
	}
	if !bytes.Equal(payload, pixels) {
		t.Errorf("payload does not match pixels")
	}
}

func TestKittyEncodeChunking(t *testing.T) {
	enc := NewKittyEncoder()
	pixels := kittyTestPixels(64, 64) // 16 KiB raw, several chunks encoded

	stream, err := enc.Encode(pixels, 64, 64, 1)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	cmds, payload := decodeKittyChunks(t, stream)
	if len(cmds) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(cmds))
	}

	for i, cmd := range cmds {
		last := i == len(cmds)-1
		if cmd.More == last {
			t.Errorf("chunk %d: m flag wrong for position", i)
		}
	}
	// Control data appears on the first chunk only.
	if cmds[0].Width != 64 || cmds[0].ImageID != 1 {
		t.Errorf("expected control data on first chunk")
	}
	if !bytes.Equal(payload, pixels) {
		t.Errorf("reassembled payload does not match pixels")
	}
}

func TestKittyEncodeRGB(t *testing.T) {
	enc := NewKittyEncoder(WithKittyRGB())
	pixels := kittyTestPixels(4, 4)

	stream, err := enc.Encode(pixels, 4, 4, 9)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	cmds, payload := decodeKittyChunks(t, stream)
	if cmds[0].Format != headlessterm.KittyFormatRGB {
		t.Errorf("expected RGB format, got %d", cmds[0].Format)
	}
	if len(payload) != 4*4*3 {
		t.Fatalf("expected %d payload bytes, got %d", 4*4*3, len(payload))
	}
	for i := 0; i < 4*4; i++ {
		if payload[i*3] != pixels[i*4] ||
			payload[i*3+1] != pixels[i*4+1] ||
			payload[i*3+2] != pixels[i*4+2] {
			t.Fatalf("pixel %d: alpha strip corrupted channels", i)
		}
	}
}

func TestKittyEncodeCache(t *testing.T) {
	enc := NewKittyEncoder()
	pixels := kittyTestPixels(8, 8)

	first, err := enc.Encode(pixels, 8, 8, 3)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	second, err := enc.Encode(pixels, 8, 8, 3)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if first != second {
		t.Errorf("expected identical cached stream")
	}

	// A different id must not hit the same cache entry.
	other, err := enc.Encode(pixels, 8, 8, 4)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if other == first {
		t.Errorf("expected distinct stream for distinct id")
	}
}

func TestKittyEncodeCacheDisabled(t *testing.T) {
	enc := NewKittyEncoder(WithKittyCache(false))
	pixels := kittyTestPixels(8, 8)

	first, err := enc.Encode(pixels, 8, 8, 3)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	second, err := enc.Encode(pixels, 8, 8, 3)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	// Output is still deterministic, just not cached.
	if first != second {
		t.Errorf("expected deterministic output")
	}
}

func TestKittyEncodeInvalid(t *testing.T) {
	enc := NewKittyEncoder()
	if _, err := enc.Encode(nil, 4, 4, 1); err != ErrInvalidDimensions {
		t.Errorf("expected ErrInvalidDimensions, got %v", err)
	}
	if _, err := enc.Encode(make([]byte, 64), 0, 4, 1); err != ErrInvalidDimensions {
		t.Errorf("expected ErrInvalidDimensions, got %v", err)
	}
}

func TestKittyDelete(t *testing.T) {
	enc := NewKittyEncoder()

	if got := enc.Delete(42); got != "\x1b_Ga=d,d=i,i=42\x1b\\" {
		t.Errorf("unexpected delete escape %q", got)
	}

	cmd, err := headlessterm.ParseKittyGraphics([]byte("Ga=d,d=i,i=42"))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cmd.Action != headlessterm.KittyActionDelete {
		t.Errorf("expected delete action, got %c", cmd.Action)
	}
	if cmd.Delete != headlessterm.KittyDeleteByID || cmd.ImageID != 42 {
		t.Errorf("expected delete by id 42, got %c %d", cmd.Delete, cmd.ImageID)
	}
}

func TestKittyDeleteAll(t *testing.T) {
	enc := NewKittyEncoder()
	if got := enc.DeleteAll(); got != "\x1b_Ga=d,d=a\x1b\\" {
		t.Errorf("unexpected delete-all escape %q", got)
	}
}
