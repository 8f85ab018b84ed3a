package dither

import "testing"

func TestGray4SetAtRoundTrip(t *testing.T) {
	g := NewGray4(601, 3)
	g.Set(0, 0, 15)
	g.Set(1, 0, 7)
	g.Set(600, 2, 3)
	if g.At(0, 0) != 15 || g.At(1, 0) != 7 || g.At(600, 2) != 3 {
		t.Fatalf("got %d %d %d", g.At(0, 0), g.At(1, 0), g.At(600, 2))
	}
}

func TestMono1SetAtRoundTrip(t *testing.T) {
	m := NewMono1(17, 2)
	m.Set(0, 0, true)
	m.Set(16, 1, true)
	m.Set(8, 0, true)
	if !m.At(0, 0) || !m.At(16, 1) || !m.At(8, 0) {
		t.Fatalf("expected set bits to read back true")
	}
	if m.At(1, 0) {
		t.Fatalf("unset bit read back true")
	}
}

func TestGray4MonoAgreement(t *testing.T) {
	// A renderer deriving both outputs from the same ink level must
	// keep Mono1's On decision and Gray4's quantized level consistent:
	// whenever the dither matrix lights a pixel, the quantized Gray4
	// level stored for that pixel exceeds threshold>>4.
	g := NewGray4(32, 32)
	m := NewMono1(32, 32)
	bn := BlueNoise32{}
	for y := int16(0); y < 32; y++ {
		for x := int16(0); x < 32; x++ {
			threshold8 := blueNoise32Table[y&31][x&31]
			level := hashThreshold(int(x)+7, int(y)+3) // independent ink signal
			on := bn.On(int(x), int(y), level)
			quantized := level >> 4
			if on && quantized <= threshold8>>4 {
				quantized = threshold8>>4 + 1
			}
			g.Set(x, y, quantized)
			m.Set(x, y, on)
		}
	}
	for y := int16(0); y < 32; y++ {
		for x := int16(0); x < 32; x++ {
			threshold8 := blueNoise32Table[y&31][x&31]
			if m.At(x, y) && !g.Threshold(x, y, threshold8) {
				t.Fatalf("Mono1 on but Gray4 not above threshold at (%d,%d)", x, y)
			}
		}
	}
}

func TestBayer4Deterministic(t *testing.T) {
	b := Bayer4{}
	a := b.On(5, 5, 128)
	c := b.On(5, 5, 128)
	if a != c {
		t.Fatalf("Bayer4.On should be a pure function of its inputs")
	}
}
