package suminagashi

import (
	"flag"
	"path/filepath"
	"testing"

	"kakejiku.dev/internal/golden"
	"kakejiku.dev/render/dither"
)

var update = flag.Bool("update", false, "update golden files")

func TestSceneDeterministic(t *testing.T) {
	s1 := NewScene(12345, 64, 64, 128)
	s2 := NewScene(12345, 64, 64, 128)

	d1 := dither.NewMono1(64, 64)
	d2 := dither.NewMono1(64, 64)
	bn := dither.BlueNoise32{}

	s1.RenderRowsMono1(d1, 0, 64, RGSS1, bn)
	s2.RenderRowsMono1(d2, 0, 64, RGSS1, bn)

	for i := range d1.Pix {
		if d1.Pix[i] != d2.Pix[i] {
			t.Fatalf("byte %d differs: %d vs %d", i, d1.Pix[i], d2.Pix[i])
		}
	}
}

func TestSceneDifferentSeedsDiverge(t *testing.T) {
	s1 := NewScene(1, 64, 64, 128)
	s2 := NewScene(2, 64, 64, 128)
	d1 := dither.NewGray4(64, 64)
	d2 := dither.NewGray4(64, 64)
	s1.RenderRowsGray4(d1, 0, 64, RGSS1)
	s2.RenderRowsGray4(d2, 0, 64, RGSS1)

	same := true
	for i := range d1.Pix {
		if d1.Pix[i] != d2.Pix[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical output")
	}
}

// TestSceneGolden pins a fixed-seed marbling render against a
// checked-in fixture. Run with -update once to (re)generate
// testdata/scene_12345.golden after an intentional rendering change.
func TestSceneGolden(t *testing.T) {
	s := NewScene(12345, 64, 64, 128)
	d := dither.NewGray4(64, 64)
	s.RenderRowsGray4(d, 0, 64, RGSS1)

	path := filepath.Join("testdata", "scene_12345.golden")
	if err := golden.Compare(path, *update, d.Pix); err != nil {
		t.Fatal(err)
	}
}

func TestRenderRowsPartialMatchesFull(t *testing.T) {
	s := NewScene(99, 48, 48, 64)
	full := dither.NewGray4(48, 48)
	strips := dither.NewGray4(48, 48)

	s.RenderRowsGray4(full, 0, 48, RGSS1)
	s.RenderRowsGray4(strips, 0, 16, RGSS1)
	s.RenderRowsGray4(strips, 16, 32, RGSS1)
	s.RenderRowsGray4(strips, 32, 48, RGSS1)

	for i := range full.Pix {
		if full.Pix[i] != strips.Pix[i] {
			t.Fatalf("row-strip rendering diverged from a single full-height call at byte %d", i)
		}
	}
}
