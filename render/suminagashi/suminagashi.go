// Package suminagashi implements the seed-driven ink-marbling renderer
// of spec.md §4.E: a Mulberry32 PRNG seeds a scene of up to 64
// operators (ink drops, swirls, optional flow combs); each pixel is
// shaded by sampling the operators in reverse and a 4-octave blue-noise
// fBm for the drop interior, then quantized through a row-strip API so
// the display task can interleave rendering with touch sampling.
package suminagashi

import (
	"kakejiku.dev/render/dither"
	fp "kakejiku.dev/render/fixedpoint"
)

// mulberry32 is a small, fast 32-bit PRNG with good avalanche
// properties, used the same way the teacher's engrave package seeds
// deterministic stipple patterns: one uint32 state word, no global
// state, reproducible across hosts.
type mulberry32 struct{ state uint32 }

func newMulberry32(seed uint32) *mulberry32 { return &mulberry32{state: seed} }

func (m *mulberry32) next() uint32 {
	m.state += 0x6D2B79F5
	z := m.state
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return z ^ (z >> 14)
}

func (m *mulberry32) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(m.next() % uint32(n))
}

type opKind int

const (
	opDropOn opKind = iota
	opDropOff
	opSwirl
	opComb
)

type operator struct {
	kind    opKind
	cx, cy  fp.Q16
	radius  fp.Q16
	// swirl
	strength fp.Q16
	// comb
	dirX, dirY fp.Q16
	bandWidth  fp.Q16
}

const maxOperators = 64

// Scene is a deterministic marbling scene built from one seed.
type Scene struct {
	width, height int
	ops           []operator
	entropy       fp.Q16
}

// NewScene builds the operator list for one seed. entropy8 (0..255)
// scales swirl strength by up to 2×, per spec.md's "entropy control";
// swirl radius does not depend on it.
func NewScene(seed uint32, width, height int, entropy8 uint8) *Scene {
	rng := newMulberry32(seed)
	s := &Scene{width: width, height: height, entropy: fp.FromRatio(int(entropy8), 255)}

	numDrops := 19
	numSwirls := 6 + rng.intn(6)
	numCombs := rng.intn(3)
	total := numDrops + numSwirls + numCombs
	if total > maxOperators {
		total = maxOperators
	}

	count := 0
	for i := 0; i < numDrops && count < maxOperators; i++ {
		kind := opDropOn
		if i%2 == 1 {
			kind = opDropOff
		}
		s.ops = append(s.ops, operator{
			kind:   kind,
			cx:     fp.FromInt(rng.intn(width)),
			cy:     fp.FromInt(rng.intn(height)),
			radius: fp.FromInt(10 + rng.intn(width/4+1)),
		})
		count++
	}
	for i := 0; i < numSwirls && count < maxOperators; i++ {
		variance := fp.FromInt(1).Add(s.entropy)
		s.ops = append(s.ops, operator{
			kind:     opSwirl,
			cx:       fp.FromInt(rng.intn(width)),
			cy:       fp.FromInt(rng.intn(height)),
			radius:   fp.FromInt(20 + rng.intn(width/3+1)),
			strength: fp.FromRatio(1+rng.intn(4), 2).Mul(variance),
		})
		count++
	}
	for i := 0; i < numCombs && count < maxOperators; i++ {
		angle := fp.FromRatio(rng.intn(628), 100)
		s.ops = append(s.ops, operator{
			kind:      opComb,
			dirX:      fp.Cos(angle),
			dirY:      fp.Sin(angle),
			bandWidth: fp.FromInt(20 + rng.intn(40)),
		})
		count++
	}
	return s
}

// sampleInk returns the ink level (0..255) at a pixel by applying
// operators in reverse insertion order, as spec.md's "applies operators
// in reverse" rule requires.
func (s *Scene) sampleInk(px, py fp.Q16) uint8 {
	x, y := px, py
	inside := false
	var nearestDrop *operator
	nearestDist := fp.FromInt(1 << 20)

	for i := len(s.ops) - 1; i >= 0; i-- {
		op := &s.ops[i]
		switch op.kind {
		case opSwirl:
			dx := x.Sub(op.cx)
			dy := y.Sub(op.cy)
			dist := fp.Sqrt(dx.Mul(dx).Add(dy.Mul(dy)))
			if dist.ToInt() == 0 || dist.Sub(op.radius) > 0 {
				continue
			}
			falloff := fp.One.Sub(dist.Div(op.radius))
			if falloff < 0 {
				falloff = 0
			}
			angle := op.strength.Mul(falloff)
			cosA, sinA := fp.Cos(angle), fp.Sin(angle)
			rx := dx.Mul(cosA).Sub(dy.Mul(sinA))
			ry := dx.Mul(sinA).Add(dy.Mul(cosA))
			x = op.cx.Add(rx)
			y = op.cy.Add(ry)
		case opComb:
			proj := x.Mul(op.dirX).Add(y.Mul(op.dirY))
			if proj.Abs() <= op.bandWidth {
				x = x.Add(op.dirX.Mul(fp.FromInt(2)))
				y = y.Add(op.dirY.Mul(fp.FromInt(2)))
			}
		case opDropOn, opDropOff:
			dx := x.Sub(op.cx)
			dy := y.Sub(op.cy)
			dist := fp.Sqrt(dx.Mul(dx).Add(dy.Mul(dy)))
			if dist <= op.radius {
				inside = op.kind == opDropOn
				if nearestDrop == nil || dist < nearestDist {
					nearestDrop = op
					nearestDist = dist
				}
			}
		}
	}

	if !inside || nearestDrop == nil {
		return paperLevel
	}

	shade := fbmShade(x, y, nearestDrop.cx, nearestDrop.cy, nearestDrop.radius, nearestDist)
	return shade
}

const paperLevel = 235
const inkLevel = 20

// fbmShade computes a 4-octave blue-noise fBm for the drop interior
// plus a rim term, tinted between paper and ink luminance.
func fbmShade(x, y, cx, cy, radius, dist fp.Q16) uint8 {
	var accum int32
	amp := int32(128)
	freq := fp.One
	ix, iy := x.ToInt(), y.ToInt()
	for oct := 0; oct < 4; oct++ {
		ox := int(freq.Mul(fp.FromInt(ix)).ToInt()) + oct*101
		oy := int(freq.Mul(fp.FromInt(iy)).ToInt()) + oct*57
		accum += int32(hashByte(ox, oy)) * amp / 255
		amp /= 2
		freq = freq.Mul(fp.FromRatio(2, 1))
	}
	rim := fp.One.Sub(dist.Div(radius))
	if rim < 0 {
		rim = 0
	}
	rimTerm := rim.Mul(fp.FromInt(40)).ToInt()

	level := inkLevel + int(accum)/4 + rimTerm
	if level > paperLevel {
		level = paperLevel
	}
	if level < 0 {
		level = 0
	}
	return uint8(level)
}

func hashByte(x, y int) uint8 {
	h := uint32(x)*374761393 + uint32(y)*668265263
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return uint8(h & 0xFF)
}

// RGSS is a Rotated Grid Super-Sampling factor.
type RGSS int

const (
	RGSS1 RGSS = 1
	RGSS4 RGSS = 4
	RGSS8 RGSS = 8
)

var rgss4Offsets = [4][2]fp.Q16{
	{fp.FromRatio(1, 8), fp.FromRatio(3, 8)},
	{fp.FromRatio(3, 8), fp.FromRatio(-1, 8)},
	{fp.FromRatio(-1, 8), fp.FromRatio(-3, 8)},
	{fp.FromRatio(-3, 8), fp.FromRatio(1, 8)},
}

var rgss8Offsets = [8][2]fp.Q16{
	{fp.FromRatio(1, 16), fp.FromRatio(5, 16)},
	{fp.FromRatio(3, 16), fp.FromRatio(-3, 16)},
	{fp.FromRatio(5, 16), fp.FromRatio(1, 16)},
	{fp.FromRatio(-1, 16), fp.FromRatio(-5, 16)},
	{fp.FromRatio(-3, 16), fp.FromRatio(3, 16)},
	{fp.FromRatio(-5, 16), fp.FromRatio(-1, 16)},
	{fp.FromRatio(7, 16), fp.FromRatio(-7, 16)},
	{fp.FromRatio(-7, 16), fp.FromRatio(7, 16)},
}

func (s *Scene) samplePixelAA(x, y int, rgss RGSS) uint8 {
	switch rgss {
	case RGSS4:
		var sum int
		for _, off := range rgss4Offsets {
			px := fp.FromInt(x).Add(off[0])
			py := fp.FromInt(y).Add(off[1])
			sum += int(s.sampleInk(px, py))
		}
		return uint8(sum / 4)
	case RGSS8:
		var sum int
		for _, off := range rgss8Offsets {
			px := fp.FromInt(x).Add(off[0])
			py := fp.FromInt(y).Add(off[1])
			sum += int(s.sampleInk(px, py))
		}
		return uint8(sum / 8)
	default:
		return s.sampleInk(fp.FromInt(x), fp.FromInt(y))
	}
}

// RenderRowsMono1 renders rows [y0,y1) into dst using matrix as the
// dither strategy, one row-strip call at a time so the display task
// can interleave this with touch sampling (spec.md §9 "cooperative
// yielding in renderers").
func (s *Scene) RenderRowsMono1(dst *dither.Mono1, y0, y1 int, rgss RGSS, matrix dither.Matrix) {
	for y := y0; y < y1; y++ {
		for x := 0; x < s.width; x++ {
			level := s.samplePixelAA(x, y, rgss)
			dst.Set(int16(x), int16(y), matrix.On(x, y, level))
		}
	}
}

// RenderRowsGray4 renders rows [y0,y1) at Gray4's 4-bit (16-level)
// precision.
func (s *Scene) RenderRowsGray4(dst *dither.Gray4, y0, y1 int, rgss RGSS) {
	for y := y0; y < y1; y++ {
		for x := 0; x < s.width; x++ {
			level := s.samplePixelAA(x, y, rgss)
			dst.Set(int16(x), int16(y), level>>4)
		}
	}
}
