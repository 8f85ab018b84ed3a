package clock

import (
	"testing"

	"kakejiku.dev/render/dither"
)

func TestSceneDeterministic(t *testing.T) {
	s1 := NewScene(64, 64, 3*3600+15*60+30)
	s2 := NewScene(64, 64, 3*3600+15*60+30)

	d1 := dither.NewMono1(64, 64)
	d2 := dither.NewMono1(64, 64)
	s1.RenderRowsMono1(d1, 0, 64)
	s2.RenderRowsMono1(d2, 0, 64)

	for i := range d1.Pix {
		if d1.Pix[i] != d2.Pix[i] {
			t.Fatalf("byte %d differs: %d vs %d", i, d1.Pix[i], d2.Pix[i])
		}
	}
}

func TestSceneDifferentTimesDiverge(t *testing.T) {
	s1 := NewScene(64, 64, 0)
	s2 := NewScene(64, 64, 6*3600)
	d1 := dither.NewMono1(64, 64)
	d2 := dither.NewMono1(64, 64)
	s1.RenderRowsMono1(d1, 0, 64)
	s2.RenderRowsMono1(d2, 0, 64)

	same := true
	for i := range d1.Pix {
		if d1.Pix[i] != d2.Pix[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected different times of day to render different hand positions")
	}
}

func TestFaceRingAlwaysOn(t *testing.T) {
	s := NewScene(64, 64, 0)
	d := dither.NewMono1(64, 64)
	s.RenderRowsMono1(d, 0, 64)

	// A point on the outer ring, straight up from center, must be on
	// regardless of hand positions.
	x, y := int16(32), int16(32-int(s.radius.ToInt())+1)
	if !d.At(x, y) {
		t.Fatalf("expected the face ring to be inked at (%d,%d)", x, y)
	}
}
