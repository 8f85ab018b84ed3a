package wizard

import (
	"testing"

	"kakejiku.dev/touch"
)

func advanceToSwipeRight(w *Wizard) {
	w.Continue() // Intro -> TapCenter
	w.HandleEvent(touch.Event{Kind: touch.Tap})
	w.HandleEvent(touch.Event{Kind: touch.Tap})
	w.HandleEvent(touch.Event{Kind: touch.Tap})
}

func TestPhaseProgressionThroughTaps(t *testing.T) {
	w := NewSized(120, 120)
	if w.Phase() != Intro {
		t.Fatalf("new wizard should start at Intro")
	}
	advanceToSwipeRight(w)
	if w.Phase() != SwipeRight {
		t.Fatalf("got phase %v, want SwipeRight", w.Phase())
	}
}

func TestMatchingSwipePasses(t *testing.T) {
	w := NewSized(120, 120)
	advanceToSwipeRight(w)
	c, ok := w.CurrentCase()
	if !ok {
		t.Fatal("expected a current case")
	}

	up := touch.Event{Kind: touch.Up, TMs: 100, StartX: c.StartX, StartY: c.StartY, X: c.EndX, Y: c.EndY}
	w.HandleEvent(up)
	swipe := touch.Event{Kind: c.Direction, TMs: up.TMs, StartX: up.StartX, StartY: up.StartY, X: up.X, Y: up.Y}
	w.HandleEvent(swipe)

	results := w.Results()
	if len(results) != 1 || results[0].Verdict != VerdictPass {
		t.Fatalf("got %+v, want a single Pass verdict", results)
	}
}

func TestWrongDirectionIsMismatch(t *testing.T) {
	w := NewSized(120, 120)
	advanceToSwipeRight(w)
	c, _ := w.CurrentCase()

	up := touch.Event{Kind: touch.Up, TMs: 5, StartX: c.StartX, StartY: c.StartY, X: c.EndX, Y: c.EndY}
	w.HandleEvent(up)
	w.HandleEvent(touch.Event{Kind: touch.SwipeUp, TMs: 5, StartX: up.StartX, StartY: up.StartY, X: up.X, Y: up.Y})

	results := w.Results()
	if len(results) != 1 || results[0].Verdict != VerdictMismatch {
		t.Fatalf("got %+v, want a single Mismatch verdict", results)
	}
}

func TestReleaseWithoutFollowingSwipeCommitsReleaseNoSwipe(t *testing.T) {
	w := NewSized(120, 120)
	advanceToSwipeRight(w)

	w.HandleEvent(touch.Event{Kind: touch.Up, TMs: 1})
	w.HandleEvent(touch.Event{Kind: touch.Down, TMs: 50}) // a new, unrelated interaction begins

	results := w.Results()
	if len(results) != 1 || results[0].Verdict != VerdictReleaseNoSwipe {
		t.Fatalf("got %+v, want a single ReleaseNoSwipe verdict", results)
	}
}

func TestMarkSwipedOverridesAmbiguousRelease(t *testing.T) {
	w := NewSized(120, 120)
	advanceToSwipeRight(w)
	w.HandleEvent(touch.Event{Kind: touch.Up, TMs: 1})
	w.MarkSwiped()

	results := w.Results()
	if len(results) != 1 || results[0].Verdict != VerdictManualMark {
		t.Fatalf("got %+v, want a single ManualMark verdict", results)
	}
}

func TestSkipCaseAdvancesWithoutCountingFailure(t *testing.T) {
	w := NewSized(120, 120)
	advanceToSwipeRight(w)
	for i := 0; i < 8; i++ {
		w.SkipCase()
	}
	if w.Phase() != Complete {
		t.Fatalf("got phase %v, want Complete after skipping all 8 cases", w.Phase())
	}
	for _, r := range w.Results() {
		if r.Verdict != VerdictSkip {
			t.Fatalf("got verdict %v, want Skip", r.Verdict)
		}
	}
}

func TestExitClosesFromAnyPhase(t *testing.T) {
	w := NewSized(120, 120)
	advanceToSwipeRight(w)
	w.Exit()
	if w.Phase() != Closed {
		t.Fatalf("got phase %v, want Closed", w.Phase())
	}
}
