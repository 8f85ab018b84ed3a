package epd

import (
	"image/color"
	"testing"

	"kakejiku.dev/peripheral"
)

// These tests exercise only the pure framebuffer and windowing logic.
// Panel's GPIO and SPI fields stay nil throughout: every path touched
// here returns before reaching them, matching the teacher's lcd
// package, which carries no unit tests for the same reason (it is a
// real-hardware SPI/GPIO driver, not logic worth faking a bus for).

func TestWidthHeight(t *testing.T) {
	p := &Panel{}
	if p.Width() != width || p.Height() != height {
		t.Fatalf("got %dx%d, want %dx%d", p.Width(), p.Height(), width, height)
	}
}

func TestClearSetsAllWhite(t *testing.T) {
	p := &Panel{}
	p.buf[0] = 0
	p.buf[len(p.buf)-1] = 0
	if err := p.Clear(); err != nil {
		t.Fatal(err)
	}
	for i, b := range p.buf {
		if b != 0xff {
			t.Fatalf("buf[%d] = %#x, want 0xff", i, b)
		}
	}
}

func TestSetPixelBWTogglesBit(t *testing.T) {
	p := &Panel{}
	p.Clear()
	if err := p.SetPixelBW(3, 0, true); err != nil {
		t.Fatal(err)
	}
	want := byte(0xff &^ (0x80 >> 3))
	if p.buf[0] != want {
		t.Fatalf("buf[0] = %#x, want %#x", p.buf[0], want)
	}
	if err := p.SetPixelBW(3, 0, false); err != nil {
		t.Fatal(err)
	}
	if p.buf[0] != 0xff {
		t.Fatalf("buf[0] = %#x, want 0xff after clearing", p.buf[0])
	}
}

func TestSetPixelBWRejectsOutOfBounds(t *testing.T) {
	p := &Panel{}
	cases := []struct{ x, y int }{
		{-1, 0}, {0, -1}, {width, 0}, {0, height},
	}
	for _, c := range cases {
		if err := p.SetPixelBW(c.x, c.y, true); err == nil {
			t.Fatalf("SetPixelBW(%d,%d): expected error", c.x, c.y)
		}
	}
}

func TestFramebufferReflectsPixels(t *testing.T) {
	p := &Panel{}
	p.Clear()
	if err := p.SetPixelBW(3, 0, true); err != nil {
		t.Fatal(err)
	}
	fb := p.Framebuffer()
	if got := fb.At(3, 0); got != (color.Gray{Y: 0x00}) {
		t.Fatalf("At(3,0) = %v, want black", got)
	}
	if got := fb.At(4, 0); got != (color.Gray{Y: 0xff}) {
		t.Fatalf("At(4,0) = %v, want white", got)
	}
	b := fb.Bounds()
	if b.Dx() != width || b.Dy() != height {
		t.Fatalf("Bounds() = %v, want %dx%d", b, width, height)
	}
}

func TestDisplayBWPartialSkipsEmptyRect(t *testing.T) {
	p := &Panel{}
	if err := p.DisplayBWPartial(peripheral.Rect{}, false); err != nil {
		t.Fatalf("empty rect: %v", err)
	}
	// A rect fully outside the panel clamps to an empty range and
	// should also short-circuit before touching any GPIO pin.
	r := peripheral.Rect{MinX: 0, MinY: -10, MaxX: width, MaxY: -5}
	if err := p.DisplayBWPartial(r, false); err != nil {
		t.Fatalf("clamped-empty rect: %v", err)
	}
}
