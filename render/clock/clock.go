// Package clock implements the large analog clock display mode
// (spec.md §1/§3): a ring face with hour/minute/second hands drawn by
// point-to-segment distance tests in Q16.16, exposing the same
// row-strip API suminagashi and shanshui use so the display task can
// interleave rendering with touch sampling. Unlike those two, a scene
// here is driven by wall-clock time rather than a random seed, so it
// is cheap enough to rebuild on every render tick.
package clock

import (
	"kakejiku.dev/render/dither"
	fp "kakejiku.dev/render/fixedpoint"
)

// Scene is one rendered face, fixed to a given second-of-day.
type Scene struct {
	width, height int
	cx, cy        fp.Q16
	radius        fp.Q16

	hourAngle, minAngle, secAngle fp.Q16
}

const (
	faceRingPx  = 4
	hubRadiusPx = 5

	hourHandFrac = 52 // ×100 of radius
	minHandFrac  = 80
	secHandFrac  = 90

	hourHandThicknessPx = 6
	minHandThicknessPx  = 4
	secHandThicknessPx  = 2

	tickOuterFrac = 100
	tickInnerFrac = 90 // ×100 of radius, marks the twelve hour ticks
)

// NewScene builds a clock face for the given width/height and
// second-of-day (0..86399); secondsOfDay wraps outside that range so
// callers can pass a raw Unix-time-mod-day value directly.
func NewScene(width, height int, secondsOfDay int) *Scene {
	s := &Scene{width: width, height: height}
	s.cx, s.cy = fp.FromInt(width/2), fp.FromInt(height/2)
	margin := 20
	s.radius = fp.FromInt(min(width, height)/2 - margin)

	secondsOfDay %= 86400
	if secondsOfDay < 0 {
		secondsOfDay += 86400
	}
	hour := (secondsOfDay / 3600) % 12
	minute := (secondsOfDay / 60) % 60
	second := secondsOfDay % 60

	s.secAngle = angleFor(second, 60)
	s.minAngle = angleFor(minute, 60)
	s.hourAngle = angleFor(hour*60+minute, 12*60)
	return s
}

// angleFor maps a units-into-total position to a clock angle (0 at 12
// o'clock, increasing clockwise), in Q16.16 radians.
func angleFor(units, total int) fp.Q16 {
	return fp.FromRatio(units, total).Mul(fp.TwoPi).Sub(fp.HalfPi)
}

func (s *Scene) onAt(x, y int) bool {
	px, py := fp.FromInt(x), fp.FromInt(y)
	dx, dy := px.Sub(s.cx), py.Sub(s.cy)
	dist := fp.Sqrt(dx.Mul(dx).Add(dy.Mul(dy)))

	if dist <= s.radius && dist >= s.radius.Sub(fp.FromInt(faceRingPx)) {
		return true
	}
	if dist > s.radius {
		return false
	}
	if s.onHourTick(dx, dy, dist) {
		return true
	}
	if s.onHand(dx, dy, dist, s.hourAngle, s.radius.Mul(fp.FromRatio(hourHandFrac, 100)), hourHandThicknessPx) {
		return true
	}
	if s.onHand(dx, dy, dist, s.minAngle, s.radius.Mul(fp.FromRatio(minHandFrac, 100)), minHandThicknessPx) {
		return true
	}
	if s.onHand(dx, dy, dist, s.secAngle, s.radius.Mul(fp.FromRatio(secHandFrac, 100)), secHandThicknessPx) {
		return true
	}
	return dist <= fp.FromInt(hubRadiusPx)
}

// onHourTick reports whether (dx,dy) falls on one of the twelve radial
// tick marks ringing the face.
func (s *Scene) onHourTick(dx, dy, dist fp.Q16) bool {
	outer := s.radius.Mul(fp.FromRatio(tickOuterFrac, 100))
	inner := s.radius.Mul(fp.FromRatio(tickInnerFrac, 100))
	if dist > outer || dist < inner {
		return false
	}
	for i := 0; i < 12; i++ {
		tickAngle := angleFor(i*60, 12*60)
		dirX, dirY := fp.Cos(tickAngle), fp.Sin(tickAngle)
		proj := dx.Mul(dirX).Add(dy.Mul(dirY))
		if proj < inner {
			continue
		}
		perpX := dx.Sub(dirX.Mul(proj))
		perpY := dy.Sub(dirY.Mul(proj))
		perpDist := fp.Sqrt(perpX.Mul(perpX).Add(perpY.Mul(perpY)))
		if perpDist.ToInt() <= 2 {
			return true
		}
	}
	return false
}

// onHand reports whether (dx,dy) lies within thicknessPx of the
// segment from the face center to length along angle.
func (s *Scene) onHand(dx, dy, dist, angle, length fp.Q16, thicknessPx int) bool {
	if dist > length {
		return false
	}
	dirX, dirY := fp.Cos(angle), fp.Sin(angle)
	proj := dx.Mul(dirX).Add(dy.Mul(dirY))
	if proj < 0 {
		return false
	}
	perpX := dx.Sub(dirX.Mul(proj))
	perpY := dy.Sub(dirY.Mul(proj))
	perpDist := fp.Sqrt(perpX.Mul(perpX).Add(perpY.Mul(perpY)))
	return perpDist.ToInt() <= thicknessPx
}

// RenderRowsMono1 renders rows [y0,y1) into dst, the same row-strip
// shape suminagashi/shanshui expose so the display task can interleave
// this with touch sampling.
func (s *Scene) RenderRowsMono1(dst *dither.Mono1, y0, y1 int) {
	for y := y0; y < y1; y++ {
		for x := 0; x < s.width; x++ {
			dst.Set(int16(x), int16(y), s.onAt(x, y))
		}
	}
}
