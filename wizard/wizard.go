// Package wizard implements the touch calibration wizard: a guided
// phase machine that walks the operator through tap targets and eight
// swipe cases, recording a verdict for each (spec.md §4.G). It emits
// no trace samples.
package wizard

import "kakejiku.dev/touch"

// Phase is one step of the wizard's linear phase machine.
type Phase int

const (
	Intro Phase = iota
	TapCenter
	TapTopLeft
	TapBottomRight
	SwipeRight
	Complete
	Closed
)

// SpeedTier is the declared speed of one guided swipe case.
type SpeedTier int

const (
	ExtraFast SpeedTier = iota
	Fast
	Medium
	Slow
)

// Verdict is the recorded outcome of one swipe case.
type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictPass
	VerdictMismatch
	VerdictReleaseNoSwipe
	VerdictManualMark
	VerdictSkip
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictMismatch:
		return "mismatch"
	case VerdictReleaseNoSwipe:
		return "release-no-swipe"
	case VerdictManualMark:
		return "manual-mark"
	case VerdictSkip:
		return "skip"
	default:
		return "pending"
	}
}

const (
	swipeCaseStartRadiusPx = 60
	swipeCaseEndRadiusPx   = 72
)

// SwipeCase is one of the eight guided swipe prescriptions: four
// rightward, four downward, each at a distinct speed tier.
type SwipeCase struct {
	Direction touch.Kind // SwipeRight or SwipeDown
	Speed     SpeedTier
	StartX, StartY int
	EndX, EndY     int
}

// defaultCases builds the eight prescribed cases against a
// width×height panel: four SwipeRight cases sweeping a horizontal
// band, four SwipeDown cases sweeping a vertical band, one per speed
// tier each.
func defaultCases(width, height int) [8]SwipeCase {
	speeds := [4]SpeedTier{ExtraFast, Fast, Medium, Slow}
	var cases [8]SwipeCase
	midY := height / 2
	for i, sp := range speeds {
		cases[i] = SwipeCase{
			Direction: touch.SwipeRight,
			Speed:     sp,
			StartX:    width / 6, StartY: midY,
			EndX: width - width/6, EndY: midY,
		}
	}
	midX := width / 2
	for i, sp := range speeds {
		cases[4+i] = SwipeCase{
			Direction: touch.SwipeDown,
			Speed:     sp,
			StartX:    midX, StartY: height / 6,
			EndX: midX, EndY: height - height/6,
		}
	}
	return cases
}

// CaseResult is the recorded outcome of one swipe case: the case and
// its verdict. The release provenance that produced it is not kept.
type CaseResult struct {
	Case    SwipeCase
	Verdict Verdict
}

// Wizard drives the calibration phase machine. It consumes touch
// events the display task routes to it while active, and exposes UI
// button actions (Continue/SkipCase/Exit/MarkSwiped) for the operator
// to resolve ambiguous releases.
type Wizard struct {
	phase Phase
	width, height int

	cases   [8]SwipeCase
	caseIdx int
	results []CaseResult

	pending     bool
	pendingProv touch.Provenance
}

// New constructs a wizard for the 600×600 panel, starting at Intro.
func New() *Wizard {
	return NewSized(600, 600)
}

// NewSized constructs a wizard for an explicit panel size (tests use
// smaller panels than the real 600×600 device).
func NewSized(width, height int) *Wizard {
	return &Wizard{
		phase:  Intro,
		width:  width,
		height: height,
		cases:  defaultCases(width, height),
	}
}

func (w *Wizard) Phase() Phase         { return w.phase }
func (w *Wizard) Results() []CaseResult { return w.results }

// CurrentCase returns the swipe case currently being prescribed, valid
// only during the SwipeRight phase.
func (w *Wizard) CurrentCase() (SwipeCase, bool) {
	if w.phase != SwipeRight || w.caseIdx >= len(w.cases) {
		return SwipeCase{}, false
	}
	return w.cases[w.caseIdx], true
}

// NotifyTouchLost is called by the display task when the touch
// controller errors out and the pipeline is reset; the wizard discards
// any pending release rather than matching it against a stale event.
func (w *Wizard) NotifyTouchLost() {
	w.pending = false
}

// HandleEvent feeds one touch event to the active phase.
func (w *Wizard) HandleEvent(e touch.Event) {
	switch w.phase {
	case Intro, Complete, Closed:
		return
	case TapCenter, TapTopLeft, TapBottomRight:
		if e.Kind == touch.Tap {
			w.advanceTapPhase()
		}
	case SwipeRight:
		w.handleSwipePhaseEvent(e)
	}
}

func (w *Wizard) advanceTapPhase() {
	switch w.phase {
	case TapCenter:
		w.phase = TapTopLeft
	case TapTopLeft:
		w.phase = TapBottomRight
	case TapBottomRight:
		w.phase = SwipeRight
	}
}

// handleSwipePhaseEvent implements §4.G's acceptance rule and the
// pending-release matcher: a release not followed by a same-tuple
// Swipe is committed as "release without swipe" once a later event
// proves it was not immediately followed by one.
func (w *Wizard) handleSwipePhaseEvent(e touch.Event) {
	switch {
	case e.Kind == touch.Up:
		w.pending = true
		w.pendingProv = touch.NewProvenance(e)
		return
	case e.Kind.IsSwipe():
		if w.pending && touch.NewProvenance(e) == w.pendingProv {
			w.pending = false
			w.recordSwipeVerdict(e)
			return
		}
		// A pending release followed by a swipe with a different tuple
		// was not itself a swipe.
		if w.pending {
			w.pending = false
			w.commitCase(VerdictReleaseNoSwipe)
		}
		// An unmatched swipe still resolves the current case on its
		// own merits (e.g. a second, distinct interaction).
		w.recordSwipeVerdict(e)
		return
	}
	// Any other event (Tap, Down, Move, LongPress, Cancel) following a
	// pending Up without a matching Swipe confirms the release wasn't a
	// swipe.
	if w.pending {
		w.pending = false
		w.commitCase(VerdictReleaseNoSwipe)
	}
}

func (w *Wizard) recordSwipeVerdict(e touch.Event) {
	c, ok := w.CurrentCase()
	if !ok {
		return
	}
	if e.Kind != c.Direction {
		w.commitCase(VerdictMismatch)
		return
	}
	startOK := withinRadius(e.StartX, e.StartY, c.StartX, c.StartY, swipeCaseStartRadiusPx)
	endOK := withinRadius(e.X, e.Y, c.EndX, c.EndY, swipeCaseEndRadiusPx)
	if startOK && endOK {
		w.commitCase(VerdictPass)
	} else {
		w.commitCase(VerdictMismatch)
	}
}

func withinRadius(x, y, cx, cy, radius int) bool {
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= radius*radius
}

func (w *Wizard) commitCase(v Verdict) {
	c, ok := w.CurrentCase()
	if !ok {
		return
	}
	w.results = append(w.results, CaseResult{Case: c, Verdict: v})
	w.caseIdx++
	if w.caseIdx >= len(w.cases) {
		w.phase = Complete
	}
}

// Continue advances past Intro/Complete, or — during SwipeRight — is a
// no-op (cases advance only via SkipCase, MarkSwiped, or a matched
// swipe).
func (w *Wizard) Continue() {
	switch w.phase {
	case Intro:
		w.phase = TapCenter
	case Complete:
		w.phase = Closed
	}
}

// SkipCase records the current swipe case as skipped and advances.
func (w *Wizard) SkipCase() {
	if w.phase != SwipeRight {
		return
	}
	w.pending = false
	w.commitCase(VerdictSkip)
}

// MarkSwiped is the "I JUST SWIPED" override: the operator asserts the
// pending release was in fact the prescribed swipe, regardless of
// classification. It never itself counts as a failure.
func (w *Wizard) MarkSwiped() {
	if w.phase != SwipeRight {
		return
	}
	w.pending = false
	w.commitCase(VerdictManualMark)
}

// Exit closes the wizard immediately from any phase.
func (w *Wizard) Exit() {
	w.phase = Closed
}
