package touch

import "testing"

func sample(tms int64, count int, x0, y0 int, has0 bool, x1, y1 int, has1 bool) RawSample {
	return RawSample{
		TMs:        tms,
		TouchCount: count,
		Points:     [2]Point{{x0, y0}, {x1, y1}},
		HasPoint:   [2]bool{has0, has1},
	}
}

func TestNormalizerBasicDown(t *testing.T) {
	var n Normalizer
	f := n.Normalize(sample(0, 1, 100, 100, true, 0, 0, false))
	if !f.HasPrimary || f.Primary != (Point{100, 100}) {
		t.Fatalf("got %+v", f)
	}
	if f.Count != 1 {
		t.Fatalf("count = %d, want 1", f.Count)
	}
}

func TestNormalizerPhantomCornerDoesNotLatch(t *testing.T) {
	var n Normalizer
	// touch_count=0 but a raw status bit fires alongside a corner
	// coordinate register left over from reset.
	s0 := sample(0, 0, 0, 599, false, 0, 0, false)
	s0.RawStatus[0] = 0x01
	f0 := n.Normalize(s0)
	if f0.HasPrimary {
		t.Fatalf("phantom corner should not produce a primary: %+v", f0)
	}

	f1 := n.Normalize(sample(16, 1, 431, 353, true, 0, 0, false))
	if !f1.HasPrimary || f1.Primary != (Point{431, 353}) {
		t.Fatalf("got %+v, want (431,353)", f1)
	}
}

func TestNormalizerShortDropoutStaysPresentViaDecodedWindow(t *testing.T) {
	var n Normalizer
	n.Normalize(sample(0, 1, 200, 200, true, 0, 0, false))
	// controller reports count=0 for one tick, well within the 56ms window.
	f := n.Normalize(sample(20, 0, 0, 0, false, 0, 0, false))
	if f.Count != 1 {
		t.Fatalf("count should stay 1 while the decoded-recent window holds presence, got %d", f.Count)
	}
	// A decoded sample after the gap should resume at essentially the same point.
	f2 := n.Normalize(sample(40, 1, 202, 199, true, 0, 0, false))
	if !f2.HasPrimary {
		t.Fatalf("expected primary after short dropout")
	}
}

func TestNormalizerOutlierRejectedThenConfirmed(t *testing.T) {
	var n Normalizer
	n.Normalize(sample(0, 1, 100, 100, true, 0, 0, false))
	// A 900px jump should be rejected this frame.
	f1 := n.Normalize(sample(20, 1, 1000, 100, true, 0, 0, false))
	if f1.Primary != (Point{100, 100}) {
		t.Fatalf("expected outlier rejected, got %+v", f1)
	}
	// Confirmed by a subsequent frame within 40px of the rejected point.
	f2 := n.Normalize(sample(40, 1, 1010, 105, true, 0, 0, false))
	if f2.Primary == (Point{100, 100}) {
		t.Fatalf("expected confirmed jump accepted, still stuck at origin: %+v", f2)
	}
}

func TestNormalizerDejitterSuppressesSubPixelNoise(t *testing.T) {
	var n Normalizer
	n.Normalize(sample(0, 1, 300, 300, true, 0, 0, false))
	f := n.Normalize(sample(20, 1, 301, 300, true, 0, 0, false))
	if f.Primary != (Point{300, 300}) {
		t.Fatalf("1px jitter should be absorbed by the dead zone, got %+v", f)
	}
}

func TestNormalizerTwoSlotCountRequiresControllerAgreement(t *testing.T) {
	var n Normalizer
	f := n.Normalize(sample(0, 1, 10, 10, true, 20, 20, true))
	if f.Count != 1 {
		t.Fatalf("controller reports touch_count=1, Count should stay 1, got %d", f.Count)
	}
	f2 := n.Normalize(sample(16, 2, 10, 10, true, 20, 20, true))
	if f2.Count != 2 {
		t.Fatalf("controller reports touch_count=2 with both slots populated, want Count=2, got %d", f2.Count)
	}
}

func TestNormalizerReset(t *testing.T) {
	var n Normalizer
	n.Normalize(sample(0, 1, 10, 10, true, 0, 0, false))
	n.Reset()
	f := n.Normalize(sample(1000, 1, 500, 500, true, 0, 0, false))
	if f.Primary != (Point{500, 500}) {
		t.Fatalf("reset should discard prior filter state, got %+v", f)
	}
}
