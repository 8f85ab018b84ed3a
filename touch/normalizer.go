package touch

// Normalizer implements the two-stage touch filter of spec.md §4.B:
// presence reconciliation (so status-bit idle noise never latches a
// phantom touch indefinitely) followed by primary-slot selection and a
// three-stage filtering pipeline (outlier suppression, median,
// dead-zone dejitter).
//
// All state is held in place and reset in place; a Normalizer is never
// reconstructed mid-run (spec.md §3 lifecycle rule).
type Normalizer struct {
	hasLastDecodedPresent bool
	lastDecodedPresentMs  int64

	hasLastPrimary bool
	lastPrimary    Point

	hasLastFiltered bool
	lastFiltered    Point
	lastFilteredMs  int64

	history   [3]Point
	histCount int

	hasPendingReject bool
	pendingReject    Point
}

const (
	decodedRecentWindowMs = 56
	rawAssistWindowMs     = 96
	primaryStickyPx       = 16
	primaryHoldPx         = 30
	primarySwitchMinPx    = 8
	primarySwitchMaxPx    = 500
	primaryAxisDominance  = 180 // ×1 minor axis
	primaryDotMargin      = 128
	continuityJumpCapPx   = 320
	outlierBasePx         = 420
	outlierPerMsPx        = 8
	outlierConfirmPx      = 40
	medianBypassPx        = 20
	dejitterDeadZonePx    = 2
)

// Reset clears all filter state, as required whenever the touch
// pipeline is reinitialized after a controller error (spec.md §4.F
// failure handling).
func (n *Normalizer) Reset() {
	*n = Normalizer{}
}

func rawPresenceBit(s RawSample) bool {
	for _, b := range s.RawStatus {
		if b != 0 {
			return true
		}
	}
	return false
}

func decodedPresence(s RawSample) bool {
	return s.TouchCount > 0 && (s.HasPoint[0] || s.HasPoint[1])
}

// Normalize consumes one raw controller sample and produces a
// normalized frame.
func (n *Normalizer) Normalize(s RawSample) Frame {
	decoded := decodedPresence(s)
	if decoded {
		n.hasLastDecodedPresent = true
		n.lastDecodedPresentMs = s.TMs
	}

	sinceDecoded := int64(1 << 62)
	if n.hasLastDecodedPresent {
		sinceDecoded = s.TMs - n.lastDecodedPresentMs
	}
	rawBit := rawPresenceBit(s)

	presence := decoded ||
		(n.hasLastDecodedPresent && sinceDecoded <= decodedRecentWindowMs) ||
		(rawBit && n.hasLastDecodedPresent && sinceDecoded <= rawAssistWindowMs)

	if !presence {
		n.hasLastPrimary = false
		n.hasLastFiltered = false
		n.histCount = 0
		n.hasPendingReject = false
		return Frame{TMs: s.TMs, Count: 0}
	}

	count := 0
	if s.HasPoint[0] && s.HasPoint[1] && s.TouchCount >= 2 {
		count = 2
	} else {
		count = 1
	}

	primarySlot, secondarySlot, haveSlot := n.selectPrimary(s, decoded)
	var out Frame
	out.TMs = s.TMs
	out.Count = count

	if !haveSlot {
		// Raw-assist only: no coordinate this frame, preserve the last
		// primary position unchanged.
		if n.hasLastFiltered {
			out.HasPrimary = true
			out.Primary = n.lastFiltered
		}
		return out
	}

	candidate := s.Points[primarySlot]
	// Jump cap for the raw-assist continuity fallback: when decoded
	// presence is absent this frame but we still pick a slot (e.g. a
	// stale coordinate register), only accept it within the jump cap.
	if !decoded && n.hasLastPrimary {
		if dist2(candidate, n.lastPrimary) > continuityJumpCapPx*continuityJumpCapPx {
			if n.hasLastFiltered {
				out.HasPrimary = true
				out.Primary = n.lastFiltered
			}
			return out
		}
	}
	n.hasLastPrimary = true
	n.lastPrimary = candidate

	filtered := n.filter(candidate, s.TMs)
	out.HasPrimary = true
	out.Primary = filtered

	if count == 2 {
		out.HasSecondary = true
		out.Secondary = s.Points[secondarySlot]
	}
	return out
}

// selectPrimary picks which of the (up to 2) reported slots is the
// real contact. It returns haveSlot=false when there is no coordinate
// to select from this frame (raw-assist only).
func (n *Normalizer) selectPrimary(s RawSample, decoded bool) (primary, secondary int, haveSlot bool) {
	if !decoded {
		return 0, 0, false
	}
	switch {
	case s.HasPoint[0] && !s.HasPoint[1]:
		return 0, 1, true
	case s.HasPoint[1] && !s.HasPoint[0]:
		return 1, 0, true
	case !s.HasPoint[0] && !s.HasPoint[1]:
		return 0, 0, false
	}

	// Both slots populated but at most one real contact is live: decide
	// using consistency with prior motion.
	if !n.hasLastPrimary {
		return 0, 1, true
	}
	d0 := dist2(s.Points[0], n.lastPrimary)
	d1 := dist2(s.Points[1], n.lastPrimary)
	sticky := primaryStickyPx * primaryStickyPx
	hold := primaryHoldPx * primaryHoldPx

	slot0Sticky := d0 <= sticky
	slot1Sticky := d1 <= sticky
	switch {
	case slot0Sticky && !slot1Sticky:
		if n.directionalSwitch(s.Points[1]) {
			return 1, 0, true
		}
		return 0, 1, true
	case slot1Sticky && !slot0Sticky:
		if n.directionalSwitch(s.Points[0]) {
			return 0, 1, true
		}
		return 1, 0, true
	}
	// Neither (or both) sticky: hold within the wider radius, else
	// prefer the nearer slot.
	if d0 <= hold && d1 > hold {
		return 0, 1, true
	}
	if d1 <= hold && d0 > hold {
		return 1, 0, true
	}
	if d0 <= d1 {
		return 0, 1, true
	}
	return 1, 0, true
}

// directionalSwitch reports whether candidate's displacement from the
// last primary is consistent enough with a real directional switch:
// travel within [8,500]px and axis-dominant (either by a 180x
// minor-axis ratio, or within the dot-product margin of pure-axis
// motion).
func (n *Normalizer) directionalSwitch(candidate Point) bool {
	dx := candidate.X - n.lastPrimary.X
	dy := candidate.Y - n.lastPrimary.Y
	travel2 := dx*dx + dy*dy
	if travel2 < primarySwitchMinPx*primarySwitchMinPx || travel2 > primarySwitchMaxPx*primarySwitchMaxPx {
		return false
	}
	adx, ady := abs(dx), abs(dy)
	major, minor := adx, ady
	if ady > adx {
		major, minor = ady, adx
	}
	if minor == 0 {
		return true
	}
	if major >= primaryAxisDominance*minor {
		return true
	}
	// Dot-product margin test against the dominant axis unit vectors.
	return major-minor*primaryAxisDominance/100 >= -primaryDotMargin
}

// filter runs the three-stage pipeline: outlier suppression, 3-sample
// median (bypassed on a fast real move), and dead-zone dejitter.
func (n *Normalizer) filter(candidate Point, tMs int64) Point {
	if !n.hasLastFiltered {
		n.hasLastFiltered = true
		n.lastFiltered = candidate
		n.lastFilteredMs = tMs
		n.pushHistory(candidate)
		n.hasPendingReject = false
		return candidate
	}

	accepted := candidate
	if n.hasPendingReject && dist2(candidate, n.pendingReject) <= outlierConfirmPx*outlierConfirmPx {
		// A previously rejected jump is now confirmed by this frame.
		n.hasPendingReject = false
	} else {
		dt := tMs - n.lastFilteredMs
		if dt < 0 {
			dt = 0
		}
		maxStep := int64(outlierBasePx) + int64(outlierPerMsPx)*dt
		if int64(isqrt(dist2(candidate, n.lastFiltered))) > maxStep {
			n.pendingReject = candidate
			n.hasPendingReject = true
			return n.lastFiltered
		}
		n.hasPendingReject = false
	}

	n.pushHistory(accepted)
	medianed := accepted
	if dist2(accepted, n.lastFiltered) < medianBypassPx*medianBypassPx {
		medianed = n.median()
	}

	if dist2(medianed, n.lastFiltered) < dejitterDeadZonePx*dejitterDeadZonePx {
		return n.lastFiltered
	}
	n.lastFiltered = medianed
	n.lastFilteredMs = tMs
	return medianed
}

func (n *Normalizer) pushHistory(p Point) {
	if n.histCount < len(n.history) {
		n.history[n.histCount] = p
		n.histCount++
		return
	}
	copy(n.history[:], n.history[1:])
	n.history[len(n.history)-1] = p
}

func (n *Normalizer) median() Point {
	c := n.histCount
	if c == 0 {
		return n.lastFiltered
	}
	var xs, ys [3]int
	for i := 0; i < c; i++ {
		xs[i] = n.history[i].X
		ys[i] = n.history[i].Y
	}
	return Point{X: median3(xs[:c]), Y: median3(ys[:c])}
}

func median3(v []int) int {
	switch len(v) {
	case 1:
		return v[0]
	case 2:
		return (v[0] + v[1]) / 2
	default:
		a, b, c := v[0], v[1], v[2]
		if a > b {
			a, b = b, a
		}
		if b > c {
			b = c
		}
		if a > b {
			b = a
		}
		return b
	}
}

// isqrt is an integer Newton's-method square root, used instead of
// math.Sqrt to keep the normalizer allocation- and float-free on the
// device path (spec.md §9: "no floating point is required on the
// device path").
func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
