package imuengine

import "testing"

func TestDoubleTapFiresBacklight(t *testing.T) {
	var e Engine
	base := Sample{AX: 0, AY: 0, AZ: -1000}

	s1 := base
	s1.TMs = 0
	s1.TapSrc = 1
	_, a1 := e.Step(s1)
	if a1&ActionBacklightTrigger != 0 {
		t.Fatalf("first tap alone should not fire backlight yet")
	}

	s2 := base
	s2.TMs = 80
	s2.TapSrc = 1
	_, a2 := e.Step(s2)
	if a2&ActionBacklightTrigger == 0 {
		t.Fatalf("second tap within window should fire backlight")
	}
}

func TestMotionVetoRejectsTap(t *testing.T) {
	var e Engine
	s := Sample{TMs: 0, TapSrc: 1, GX: 5000, AX: 0, AY: 0, AZ: -1000}
	trace, action := e.Step(s)
	if action&ActionBacklightTrigger != 0 {
		t.Fatalf("a tap under heavy rotation should be vetoed")
	}
	if trace.RejectReason != RejectMotionVeto {
		t.Fatalf("expected RejectMotionVeto, got %v", trace.RejectReason)
	}
}

func TestCooldownSuppressesImmediateRetap(t *testing.T) {
	var e Engine
	e.Step(Sample{TMs: 0, TapSrc: 1})
	e.Step(Sample{TMs: 50, TapSrc: 1}) // double tap registers, enters cooldown
	_, action := e.Step(Sample{TMs: 60, TapSrc: 1})
	if action&ActionBacklightTrigger != 0 {
		t.Fatalf("tap during cooldown should not retrigger")
	}
}

func TestFaceDownToggleDebounced(t *testing.T) {
	var e Engine
	e.Step(Sample{TMs: 0, AZ: 1000})
	_, a := e.Step(Sample{TMs: 50, AZ: -1000})
	if a&ActionModeToggle != 0 {
		t.Fatalf("face-down should not fire before the debounce window elapses")
	}
	_, a2 := e.Step(Sample{TMs: 700, AZ: -1000})
	if a2&ActionModeToggle == 0 {
		t.Fatalf("face-down should fire once stable past the debounce window")
	}
}

func TestTraceEncodesToCBOR(t *testing.T) {
	var e Engine
	trace, _ := e.Step(Sample{TMs: 10, AZ: -1000})
	b, err := trace.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(b) == 0 {
		t.Fatalf("expected non-empty CBOR payload")
	}
}
