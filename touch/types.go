// Package touch implements the touch pipeline's normalization and
// hierarchical state machine stages: raw controller samples in,
// gesture events out, surviving sparse and flickering controller
// reports without splitting one physical gesture into multiple
// interactions (spec.md §4.B, §4.C).
package touch

// Point is a panel coordinate.
type Point struct {
	X, Y int
}

func (p Point) Sub(o Point) Point { return Point{p.X - o.X, p.Y - o.Y} }
func (p Point) Add(o Point) Point { return Point{p.X + o.X, p.Y + o.Y} }

func dist2(a, b Point) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// RawSample is one controller read for a single slot, exactly as
// delivered by peripheral.Touch.ReadSample: touch_count 0..=2, up to
// two candidate points, and the raw status byte block. Controllers may
// report presence bits without coordinates and vice versa.
type RawSample struct {
	TMs        int64
	TouchCount int
	Points     [2]Point
	HasPoint   [2]bool
	RawStatus  [8]byte
}

// Frame is the normalizer's output: at most one primary point per
// frame, continuous across short controller drop-outs.
type Frame struct {
	TMs          int64
	Count        int
	Primary      Point
	HasPrimary   bool
	Secondary    Point
	HasSecondary bool
}

// Kind tags a touch event.
type Kind int

const (
	Down Kind = iota
	Move
	Up
	Tap
	LongPress
	SwipeLeft
	SwipeRight
	SwipeUp
	SwipeDown
	Cancel
)

func (k Kind) String() string {
	switch k {
	case Down:
		return "Down"
	case Move:
		return "Move"
	case Up:
		return "Up"
	case Tap:
		return "Tap"
	case LongPress:
		return "LongPress"
	case SwipeLeft:
		return "SwipeLeft"
	case SwipeRight:
		return "SwipeRight"
	case SwipeUp:
		return "SwipeUp"
	case SwipeDown:
		return "SwipeDown"
	case Cancel:
		return "Cancel"
	default:
		return "?"
	}
}

func (k Kind) IsSwipe() bool {
	return k == SwipeLeft || k == SwipeRight || k == SwipeUp || k == SwipeDown
}

// Event is the tagged record the HSM emits. Every non-Cancel
// interaction begins with exactly one Down and ends with exactly one
// Up; Tap and Swipe are emitted at or after that Up and share its
// timestamp; LongPress is emitted at most once per interaction, always
// before Up.
type Event struct {
	Kind              Kind
	TMs               int64
	X, Y              int
	StartX            int
	StartY            int
	DurationMs        int64
	TouchCount        int
	MoveCount         int
	MaxTravelPx       int
	ReleaseDebounceMs int64
	DropoutCount      int
}

// Provenance is the comparable subset of Event fields the calibration
// wizard uses to match a pending release against a subsequent Swipe
// (spec.md §4.G, §9 Open Question: "implementers should centralize the
// swipe provenance tuple"). Centralizing it here means an event-engine
// field addition only requires updating NewProvenance.
type Provenance struct {
	TMs               int64
	StartX, StartY    int
	DurationMs        int64
	MoveCount         int
	MaxTravelPx       int
	ReleaseDebounceMs int64
	DropoutCount      int
}

func NewProvenance(e Event) Provenance {
	return Provenance{
		TMs:               e.TMs,
		StartX:            e.StartX,
		StartY:            e.StartY,
		DurationMs:        e.DurationMs,
		MoveCount:         e.MoveCount,
		MaxTravelPx:       e.MaxTravelPx,
		ReleaseDebounceMs: e.ReleaseDebounceMs,
		DropoutCount:      e.DropoutCount,
	}
}
