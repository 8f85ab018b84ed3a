// Package golden compares a renderer's packed pixel output against a
// gzip-compressed fixture on disk, the same update-flag-driven idiom
// the teacher's bspline/engrave tests use, reworked from comparing
// vector b-spline knots to comparing packed Gray4/Mono1 pixel buffers
// for the marbling and landscape renderers' determinism tests.
package golden

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"kakejiku.dev/render/dither"
)

// Compare gzip-decompresses the fixture at path and compares it
// byte-for-byte against got. With update set, it writes got as the new
// fixture instead of comparing against the old one, the same
// golden-file bootstrap/refresh workflow as the teacher's -update flag.
func Compare(path string, update bool, got []byte) error {
	if update {
		buf := new(bytes.Buffer)
		w, err := gzip.NewWriterLevel(buf, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, err := w.Write(got); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return os.WriteFile(path, buf.Bytes(), 0o640)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	want, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%s: %d bytes differ from %d byte fixture", path, len(got), len(want))
	}
	return nil
}

// DumpGray4PNG writes a grayscale PNG preview of a packed Gray4
// buffer, for visually inspecting a golden mismatch the way dumpSVG
// once let the bspline tests inspect a spline mismatch.
func DumpGray4PNG(path string, g *dither.Gray4) error {
	img := image.NewGray(image.Rect(0, 0, int(g.W), int(g.H)))
	for y := int16(0); y < g.H; y++ {
		for x := int16(0); x < g.W; x++ {
			level := g.At(x, y)
			img.SetGray(int(x), int(y), color.Gray{Y: level * 17})
		}
	}
	return writePNG(path, img)
}

// DumpMono1PNG writes a black-and-white PNG preview of a packed Mono1
// buffer.
func DumpMono1PNG(path string, m *dither.Mono1) error {
	img := image.NewGray(image.Rect(0, 0, int(m.W), int(m.H)))
	for y := int16(0); y < m.H; y++ {
		for x := int16(0); x < m.W; x++ {
			v := uint8(255)
			if m.At(x, y) {
				v = 0
			}
			img.SetGray(int(x), int(y), color.Gray{Y: v})
		}
	}
	return writePNG(path, img)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
