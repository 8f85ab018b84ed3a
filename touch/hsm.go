package touch

// HSM is the touch pipeline's hierarchical state machine: normalized
// frames in, gesture events out. It is a flat state machine over five
// states (Idle, DebounceDown, Pressed, Dragging, DebounceUp) rather
// than a nested hierarchy, since every state shares the same origin
// and travel bookkeeping (spec.md §4.C).
type HSM struct {
	state state

	originX, originMs int64
	originY           int64
	startX, startY    int

	lastX, lastY int
	lastMs       int64

	furthestX, furthestY int
	maxTravelPx           int
	pathPx                int64
	moveCount             int
	dropoutCount          int

	debounceSinceMs int64

	pendingSinceMs int64
	pendingX       int
	pendingY       int
	hasPending     bool

	recoverPending bool
	recoverSinceMs int64

	longPressFired bool

	guardUntilMs int64
	guardX       int
	guardY       int
	hasGuard     bool
}

type state int

const (
	stIdle state = iota
	stDebounceDown
	stPressed
	stDragging
	stDebounceUp
)

// Named thresholds, all in milliseconds or panel pixels.
const (
	debounceDownMs      = 12
	debounceDownAbortPx = 40
	debounceUpMs        = 16
	dragDebounceUpMs    = 84

	dragStartPx   = 10
	moveDeadzone  = 6
	longPressMs   = 700
	tapMaxMs      = 280
	tapMaxTravel  = 24

	swipeMinDistance    = 40
	swipeMinNetDistance = 24
	swipeMinPath        = 56
	swipeMaxDurationMs  = 1000
	swipeAxisDominance  = 110 // ×100, i.e. 1.10x

	postSwipeRearmMs = 140
	postSwipeRearmPx = 18

	originAnchorTravelPx  = 24
	originAnchorElapsedMs = 24

	noMoveRecoverWindowMs  = 220
	noMoveRecoverRadiusPx  = 48
	noMoveRecoverRatio     = 130 // ×100
	noMoveRecoverGrowthPx  = 22  // ×10 px/ms == 2.2px/ms
	noMoveRecoverMaxRadius = 560
)

// Reset returns the machine to Idle, discarding any in-flight gesture.
func (h *HSM) Reset() {
	*h = HSM{}
}

// Process consumes one normalized frame and returns the (up to 3)
// events it produces. Ordering is always: a prior-interaction
// LongPress/Up/Cancel precedes anything a new interaction starting in
// the same tick would emit.
func (h *HSM) Process(f Frame) []Event {
	var out []Event

	if f.Count >= 2 {
		if h.state != stIdle {
			out = append(out, h.emitCancel(f.TMs))
		}
		return out
	}

	if f.HasPrimary {
		h.present(f, &out)
	} else {
		h.absent(f.TMs, &out)
	}
	return out
}

func (h *HSM) present(f Frame, out *[]Event) {
	x, y, now := f.Primary.X, f.Primary.Y, f.TMs

	if h.hasGuard {
		if now > h.guardUntilMs {
			d2 := (x-h.guardX)*(x-h.guardX) + (y-h.guardY)*(y-h.guardY)
			if d2 > postSwipeRearmPx*postSwipeRearmPx {
				h.hasGuard = false
			}
		}
	}

	switch h.state {
	case stIdle:
		// A release observed with no Move yet leaves a one-shot window
		// open for a re-contact to continue that interaction instead of
		// starting a new one (spec's no-move release recovery).
		if h.recoverPending && h.qualifiesForRecovery(x, y, now) {
			h.resumeAfterRecovery(x, y, now, out)
			break
		}
		h.recoverPending = false
		h.beginInteraction(x, y, now)
		h.state = stDebounceDown
		h.debounceSinceMs = now

	case stDebounceDown:
		h.track(x, y, now)
		travel := h.travelFromOrigin()
		if travel >= debounceDownAbortPx {
			h.state = stDragging
			h.emitDown(out, now)
			h.emitMoveIfNeeded(out, now)
			break
		}
		if elapsed := now - h.debounceSinceMs; elapsed >= debounceDownMs {
			// Replace the noisy first-contact origin with the now-stabilized
			// point, unless the pre-debounce motion already looked like the
			// start of a fast swipe (too much travel, or confirmed too
			// quickly to have settled) — then keep the earlier origin so
			// the swipe isn't misclassified as a tap.
			if travel <= originAnchorTravelPx && elapsed > originAnchorElapsedMs {
				h.originX, h.originY = int64(x), int64(y)
				h.startX, h.startY = x, y
			}
			h.state = stPressed
			h.emitDown(out, now)
		}

	case stPressed:
		h.track(x, y, now)
		travel := h.travelFromOrigin()
		if travel >= dragStartPx {
			h.state = stDragging
			h.emitMoveIfNeeded(out, now)
			break
		}
		if !h.longPressFired && now-h.startMs() >= longPressMs {
			h.longPressFired = true
			*out = append(*out, h.event(LongPress, now))
		}

	case stDragging:
		h.track(x, y, now)
		h.emitMoveIfNeeded(out, now)

	case stDebounceUp:
		// Touch resumed during the drop-out window: no interaction was
		// ever lost, return to whichever state we were tracking.
		h.hasPending = false
		h.track(x, y, now)
		if h.travelFromOrigin() >= dragStartPx {
			h.state = stDragging
		} else {
			h.state = stPressed
		}
		h.dropoutCount++
	}
}

func (h *HSM) absent(now int64, out *[]Event) {
	switch h.state {
	case stIdle:
		return

	case stDebounceDown:
		// Never confirmed a Down; silently return to Idle.
		h.state = stIdle

	case stPressed, stDragging:
		h.state = stDebounceUp
		h.pendingSinceMs = now
		h.pendingX, h.pendingY = h.lastX, h.lastY
		h.hasPending = true

	case stDebounceUp:
		limit := int64(debounceUpMs)
		wasDragging := h.maxTravelPx >= dragStartPx
		if wasDragging {
			limit = dragDebounceUpMs
		}
		elapsed := now - h.pendingSinceMs
		if elapsed <= limit {
			return
		}
		h.finishInteraction(now, out)
		// Only a release that never saw a Move leaves the recovery
		// window open; a drag or swipe's Up is final.
		h.recoverPending = h.moveCount == 0
		h.recoverSinceMs = now
		h.state = stIdle
	}
}

// qualifiesForRecovery decides whether a re-contact from Idle should
// be folded into the interaction that just released, rather than
// starting a fresh one. The minimum qualifying distance grows with
// elapsed time (noMoveRecoverGrowthPx px/ms) up to
// noMoveRecoverMaxRadius, within the noMoveRecoverWindowMs time limit,
// and the re-contact must be axis-dominant the same way a swipe is.
func (h *HSM) qualifiesForRecovery(x, y int, now int64) bool {
	if !h.recoverPending {
		return false
	}
	elapsed := now - h.recoverSinceMs
	if elapsed > noMoveRecoverWindowMs {
		return false
	}
	minDist := int64(noMoveRecoverRadiusPx) + elapsed*int64(noMoveRecoverGrowthPx)/10
	if minDist > noMoveRecoverMaxRadius {
		minDist = noMoveRecoverMaxRadius
	}
	dx := x - int(h.originX)
	dy := y - int(h.originY)
	adx, ady := abs(dx), abs(dy)
	if adx == 0 && ady == 0 {
		return false
	}
	if adx >= ady {
		if adx*100 < ady*noMoveRecoverRatio {
			return false
		}
	} else if ady*100 < adx*noMoveRecoverRatio {
		return false
	}
	dist := int64(isqrt(dx*dx + dy*dy))
	return dist >= minDist
}

// resumeAfterRecovery continues the interaction that last released
// instead of starting a fresh one: origin, path and max-travel
// bookkeeping all carry over, so the combined gesture classifies as
// if the finger had never left the panel. The Down/Up pairing
// invariant still holds — this contact gets its own Down — only the
// travel/duration accounting is shared with the prior release.
func (h *HSM) resumeAfterRecovery(x, y int, now int64, out *[]Event) {
	h.recoverPending = false
	h.dropoutCount++
	h.track(x, y, now)
	h.emitDown(out, now)
	if h.travelFromOrigin() >= dragStartPx {
		h.state = stDragging
		h.emitMoveIfNeeded(out, now)
	} else {
		h.state = stPressed
	}
}

func (h *HSM) beginInteraction(x, y int, now int64) {
	h.originX, h.originY = int64(x), int64(y)
	h.originMs = now
	h.startX, h.startY = x, y
	h.lastX, h.lastY = x, y
	h.lastMs = now
	h.furthestX, h.furthestY = x, y
	h.maxTravelPx = 0
	h.pathPx = 0
	h.moveCount = 0
	h.dropoutCount = 0
	h.longPressFired = false
	h.hasPending = false
	h.recoverPending = false
}

func (h *HSM) startMs() int64 { return h.originMs }

func (h *HSM) track(x, y int, now int64) {
	step := isqrt((x-h.lastX)*(x-h.lastX) + (y-h.lastY)*(y-h.lastY))
	h.pathPx += int64(step)
	h.lastX, h.lastY = x, y
	h.lastMs = now

	travel := h.travelFromOriginXY(x, y)
	if travel > h.maxTravelPx {
		h.maxTravelPx = travel
		h.furthestX, h.furthestY = x, y
	}
}

func (h *HSM) travelFromOrigin() int {
	return h.travelFromOriginXY(h.lastX, h.lastY)
}

func (h *HSM) travelFromOriginXY(x, y int) int {
	dx := int64(x) - h.originX
	dy := int64(y) - h.originY
	return isqrt(int(dx*dx + dy*dy))
}

func (h *HSM) emitDown(out *[]Event, now int64) {
	*out = append(*out, h.event(Down, now))
}

func (h *HSM) emitMoveIfNeeded(out *[]Event, now int64) {
	dx := h.lastX - h.startX
	dy := h.lastY - h.startY
	if dx*dx+dy*dy < moveDeadzone*moveDeadzone && h.moveCount > 0 {
		return
	}
	h.moveCount++
	*out = append(*out, h.event(Move, now))
}

func (h *HSM) emitCancel(now int64) Event {
	h.Reset()
	e := Event{Kind: Cancel, TMs: now}
	return e
}

func (h *HSM) finishInteraction(now int64, out *[]Event) {
	durationMs := now - h.originMs
	netDx := h.lastX - h.startX
	netDy := h.lastY - h.startY
	netDist2 := netDx*netDx + netDy*netDy

	swipeKind, isSwipe := h.classifySwipe(durationMs)
	_ = netDist2

	if isSwipe && !h.guardBlocks(now) {
		*out = append(*out, h.event(Up, now))
		*out = append(*out, h.event(swipeKind, now))
		h.armPostSwipeGuard(now)
		return
	}

	*out = append(*out, h.event(Up, now))
	if durationMs <= tapMaxMs && h.maxTravelPx <= tapMaxTravel && !h.longPressFired {
		*out = append(*out, h.event(Tap, now))
	}
}

// classifySwipe evaluates the furthest point reached during the
// interaction against the distance/path/duration/axis-dominance gates.
func (h *HSM) classifySwipe(durationMs int64) (Kind, bool) {
	if durationMs > swipeMaxDurationMs {
		return 0, false
	}
	fdx := h.furthestX - h.startX
	fdy := h.furthestY - h.startY
	dist := isqrt(fdx*fdx + fdy*fdy)
	if dist < swipeMinDistance {
		return 0, false
	}
	ndx := h.lastX - h.startX
	ndy := h.lastY - h.startY
	netDist := isqrt(ndx*ndx + ndy*ndy)
	if netDist < swipeMinNetDistance {
		return 0, false
	}
	if h.pathPx < swipeMinPath {
		return 0, false
	}

	adx, ady := abs(fdx), abs(fdy)
	if adx == 0 && ady == 0 {
		return 0, false
	}
	var horizontal bool
	if adx >= ady {
		if adx*100 < ady*swipeAxisDominance {
			return 0, false
		}
		horizontal = true
	} else {
		if ady*100 < adx*swipeAxisDominance {
			return 0, false
		}
		horizontal = false
	}

	if horizontal {
		if fdx > 0 {
			return SwipeRight, true
		}
		return SwipeLeft, true
	}
	if fdy > 0 {
		return SwipeDown, true
	}
	return SwipeUp, true
}

func (h *HSM) guardBlocks(now int64) bool {
	if !h.hasGuard {
		return false
	}
	if now > h.guardUntilMs {
		return false
	}
	d2 := (h.lastX-h.guardX)*(h.lastX-h.guardX) + (h.lastY-h.guardY)*(h.lastY-h.guardY)
	return d2 <= postSwipeRearmPx*postSwipeRearmPx
}

func (h *HSM) armPostSwipeGuard(now int64) {
	h.hasGuard = true
	h.guardUntilMs = now + postSwipeRearmMs
	h.guardX, h.guardY = h.lastX, h.lastY
}

func (h *HSM) event(k Kind, now int64) Event {
	return Event{
		Kind:              k,
		TMs:               now,
		X:                 h.lastX,
		Y:                 h.lastY,
		StartX:            h.startX,
		StartY:            h.startY,
		DurationMs:        now - h.originMs,
		TouchCount:        1,
		MoveCount:         h.moveCount,
		MaxTravelPx:       h.maxTravelPx,
		ReleaseDebounceMs: now - h.pendingSinceMs,
		DropoutCount:      h.dropoutCount,
	}
}
