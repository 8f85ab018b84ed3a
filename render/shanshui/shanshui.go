// Package shanshui implements the layered procedural landscape
// renderer of spec.md §4.E: three value-noise height layers, per-pixel
// slope/ridge/depth ink density, a noise-driven river channel,
// deterministically placed trees, and a choice of threshold or
// Atkinson error-diffusion output — all through the same row-slice API
// suminagashi exposes.
package shanshui

import (
	"kakejiku.dev/render/dither"
	fp "kakejiku.dev/render/fixedpoint"
)

// valueNoise1D is deterministic 1D value noise with linear
// interpolation between hashed lattice points, used for all three
// height layers and the river's center/width curves.
func valueNoise1D(seed uint32, x fp.Q16, cellShift int) fp.Q16 {
	cell := x.ToInt() >> cellShift
	frac := fp.FromRatio(x.ToInt()&((1<<cellShift)-1), 1<<cellShift)
	a := lattice(seed, cell)
	b := lattice(seed, cell+1)
	t := smoothstep(frac)
	return a.Add(b.Sub(a).Mul(t))
}

func lattice(seed uint32, cell int) fp.Q16 {
	h := uint32(cell)*2654435761 + seed
	h = (h ^ (h >> 15)) * 0x85EBCA6B
	h ^= h >> 13
	v := int(h&0xFFFF) - 32768
	return fp.FromRatio(v, 32768)
}

func smoothstep(t fp.Q16) fp.Q16 {
	three := fp.FromInt(3)
	two := fp.FromInt(2)
	return t.Mul(t).Mul(three.Sub(two.Mul(t)))
}

// Layer is one of the three height bands.
type Layer struct {
	seed      uint32
	cellShift int
	baseY     fp.Q16 // fraction of height, 0..1
	ampY      fp.Q16
}

// Scene holds the three height layers and river parameters for one
// seed/size.
type Scene struct {
	width, height int
	layers        [3]Layer
	riverSeed     uint32
	treeSeed      uint32
	atkinson      bool

	errRows [3][]int32 // Atkinson rolling error rows
}

const (
	atkinsonClamp = 72
	riverBandY0   = 2 // lower third starts at height*2/3
	treeChunkPx   = 52
	treeGateNum   = 56
	treeGateDen   = 256
)

// NewScene builds a scene for one seed. atkinson selects
// error-diffusion output; otherwise per-pixel threshold is used.
func NewScene(seed uint32, width, height int, atkinson bool) *Scene {
	s := &Scene{width: width, height: height, atkinson: atkinson}
	s.layers[0] = Layer{seed: seed ^ 0x1111, cellShift: 7, baseY: fp.FromRatio(35, 100), ampY: fp.FromRatio(6, 100)}
	s.layers[1] = Layer{seed: seed ^ 0x2222, cellShift: 6, baseY: fp.FromRatio(50, 100), ampY: fp.FromRatio(10, 100)}
	s.layers[2] = Layer{seed: seed ^ 0x3333, cellShift: 5, baseY: fp.FromRatio(68, 100), ampY: fp.FromRatio(16, 100)}
	s.riverSeed = seed ^ 0x5A5A
	s.treeSeed = seed ^ 0xA5A5
	if atkinson {
		for i := range s.errRows {
			s.errRows[i] = make([]int32, width+4)
		}
	}
	return s
}

func (l Layer) heightAt(x fp.Q16, w int) int {
	macro := valueNoise1D(l.seed, x, l.cellShift+2)
	detail := valueNoise1D(l.seed^0xD17, x, l.cellShift)
	n := macro.Mul(fp.FromRatio(7, 10)).Add(detail.Mul(fp.FromRatio(3, 10)))
	y := l.baseY.Add(n.Mul(l.ampY))
	return y.Mul(fp.FromInt(w)).ToInt()
}

// inkDensityAt returns the 0..255 ink density at (x,y) before any
// dithering, including slope/ridge/depth terms, haze, and the river
// overlay.
func (s *Scene) inkDensityAt(x, y int) uint8 {
	fx := fp.FromInt(x)
	h0 := s.layers[0].heightAt(fx, s.height)
	h1 := s.layers[1].heightAt(fx, s.height)
	h2 := s.layers[2].heightAt(fx, s.height)

	var layerIdx int
	switch {
	case y < h0:
		return 250 // sky
	case y < h1:
		layerIdx = 0
	case y < h2:
		layerIdx = 1
	default:
		layerIdx = 2
	}

	hL := s.layers[layerIdx].heightAt(fp.FromInt(x-1), s.height)
	hR := s.layers[layerIdx].heightAt(fp.FromInt(x+1), s.height)
	slope := abs(hR - hL)

	ridge := valueNoise1D(s.layers[layerIdx].seed^0x9E, fx, 3).Abs().ToIntScaled(255)

	depthQ := fp.FromRatio(layerIdx, 2)
	depth := depthQ.ToIntScaled(255)

	base := 90 + layerIdx*30
	density := base + slope*3 + depth*20/255 + ridge*15/255
	density += int(wash2D(x, y) % 10)

	haze := fp.One.Sub(depthQ)
	hazeTerm := haze.Mul(haze).ToIntScaled(60)
	density -= hazeTerm

	if river := s.riverInk(x, y); river >= 0 {
		density = river
	} else if tree := s.treeInkAt(x, y); tree >= 0 {
		density = tree
	}

	if density < 0 {
		density = 0
	}
	if density > 255 {
		density = 255
	}
	return uint8(density)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func wash2D(x, y int) uint32 {
	h := uint32(x)*374761393 + uint32(y)*668265263
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return h & 0xFF
}

// riverRowAt reports the river's center x and half-width at row y,
// valid only in the lower third of the frame. Half-width grows with
// both depth (fraction into the band) and y, since the river widens
// as it approaches the viewer.
func (s *Scene) riverRowAt(y int) (centerX, halfWidth int, inBand bool) {
	bandStart := s.height * riverBandY0 / 3
	if y < bandStart {
		return 0, 0, false
	}
	fy := fp.FromInt(y)
	macro := valueNoise1D(s.riverSeed, fy, 6)
	micro := valueNoise1D(s.riverSeed^0x77, fy, 3)
	center := fp.FromRatio(s.width, 2).
		Add(macro.Mul(fp.FromInt(s.width / 4))).
		Add(micro.Mul(fp.FromInt(s.width / 16)))
	depthFrac := fp.FromRatio(y-bandStart, max1(s.height-bandStart))
	half := 16 + depthFrac.Mul(fp.FromInt(60)).ToInt()
	return center.ToInt(), half, true
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// riverInk returns the river's ink density at (x,y), or -1 if (x,y)
// falls outside the river this row.
func (s *Scene) riverInk(x, y int) int {
	cx, half, inBand := s.riverRowAt(y)
	if !inBand {
		return -1
	}
	d := abs(x - cx)
	if d > half {
		return -1
	}
	bankWidth := half / 4
	if d > half-bankWidth {
		// dithered bank
		if wash2D(x, y)%2 == 0 {
			return 150
		}
		return 200
	}
	// near-white water with low noise
	return 245 - int(wash2D(x, y)%8)
}

func (s *Scene) inRiverBand(x, y int) bool {
	cx, half, inBand := s.riverRowAt(y)
	if !inBand {
		return false
	}
	return abs(x-cx) <= half
}

// treeInkAt returns ink density for a deterministically placed tree
// covering (x,y), or -1 if no tree occupies this pixel.
func (s *Scene) treeInkAt(x, y int) int {
	chunk := x / treeChunkPx
	gate := uint32(chunk)*2246822519 + s.treeSeed
	gate = (gate ^ (gate >> 15)) * 2654435761
	gate ^= gate >> 13
	if gate%treeGateDen >= treeGateNum {
		return -1
	}
	chunkCenterX := chunk*treeChunkPx + treeChunkPx/2
	if s.inRiverBand(chunkCenterX, y) {
		return -1
	}
	// a fixed small silhouette: trunk column + crown disc, anchored on
	// the middle layer's surface at the chunk center.
	fx := fp.FromInt(chunkCenterX)
	groundY := s.layers[1].heightAt(fx, s.height)
	trunkTop := groundY - 18
	if x == chunkCenterX && y >= trunkTop && y <= groundY {
		return 30
	}
	crownCy := trunkTop - 6
	dx := x - chunkCenterX
	dy := y - crownCy
	if dx*dx+dy*dy <= 64 {
		return 45
	}
	return -1
}

// renderThresholdRow renders one row with a plain per-pixel comparison
// against matrix, no error diffusion.
func (s *Scene) renderThresholdRow(dst *dither.Mono1, y int, matrix dither.Matrix) {
	for x := 0; x < s.width; x++ {
		level := s.inkDensityAt(x, y)
		dst.Set(int16(x), int16(y), matrix.On(x, y, 255-level))
	}
}

// renderAtkinsonRow renders one row with Atkinson error diffusion
// across three rolling error rows, clamped to ±72 per cell.
func (s *Scene) renderAtkinsonRow(dst *dither.Mono1, y int) {
	cur := s.errRows[0]
	next1 := s.errRows[1]
	next2 := s.errRows[2]
	for x := 0; x < s.width; x++ {
		level := int32(255 - s.inkDensityAt(x, y))
		level += cur[x]
		on := level >= 128
		var err int32
		if on {
			err = level - 255
		} else {
			err = level
		}
		dst.Set(int16(x), int16(y), on)

		share := err / 8
		addClamped(cur, x+1, share)
		addClamped(cur, x+2, share)
		addClamped(next1, x-1, share)
		addClamped(next1, x, share)
		addClamped(next1, x+1, share)
		addClamped(next2, x, share)
	}
	for i := range cur {
		cur[i] = 0
	}
	s.errRows[0] = next1
	s.errRows[1] = next2
	s.errRows[2] = cur
}

func addClamped(row []int32, x int, v int32) {
	if x < 0 || x >= len(row) {
		return
	}
	row[x] += v
	if row[x] > atkinsonClamp {
		row[x] = atkinsonClamp
	}
	if row[x] < -atkinsonClamp {
		row[x] = -atkinsonClamp
	}
}

// RenderRowsMono1 renders rows [y0,y1) using either threshold or
// Atkinson diffusion, per the scene's construction.
func (s *Scene) RenderRowsMono1(dst *dither.Mono1, y0, y1 int, matrix dither.Matrix) {
	for y := y0; y < y1; y++ {
		if s.atkinson {
			s.renderAtkinsonRow(dst, y)
		} else {
			s.renderThresholdRow(dst, y, matrix)
		}
	}
}

// RenderRowsGray4 renders rows [y0,y1) at 4-bit (16-level) precision (threshold
// mode only; Atkinson targets 1-bit output).
func (s *Scene) RenderRowsGray4(dst *dither.Gray4, y0, y1 int) {
	for y := y0; y < y1; y++ {
		for x := 0; x < s.width; x++ {
			level := s.inkDensityAt(x, y)
			dst.Set(int16(x), int16(y), (255-level)>>4)
		}
	}
}
