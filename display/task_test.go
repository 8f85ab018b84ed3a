package display

import (
	"errors"
	"sync"
	"testing"
	"time"

	"kakejiku.dev/modestore"
	"kakejiku.dev/peripheral"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) ElapsedSince(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDisplay struct {
	frontlightOnCount  int
	frontlightOffCount int
	refreshCount       int
}

func (d *fakeDisplay) Width() int  { return 600 }
func (d *fakeDisplay) Height() int { return 600 }
func (d *fakeDisplay) Clear() error { return nil }
func (d *fakeDisplay) SetPixelBW(x, y int, on bool) error { return nil }
func (d *fakeDisplay) DisplayBW(full bool) error {
	d.refreshCount++
	return nil
}
func (d *fakeDisplay) DisplayBWPartial(r peripheral.Rect, full bool) error { return nil }
func (d *fakeDisplay) FrontlightOn() error {
	d.frontlightOnCount++
	return nil
}
func (d *fakeDisplay) FrontlightOff() error {
	d.frontlightOffCount++
	return nil
}
func (d *fakeDisplay) SetBrightness(level int) error    { return nil }
func (d *fakeDisplay) ReadPowerGood() (bool, error)      { return true, nil }

type scriptedSample struct {
	count  int
	x, y   int
}

type fakeTouch struct {
	script []scriptedSample
	idx    int
}

func (t *fakeTouch) Init() (peripheral.TouchInitResult, error) {
	return peripheral.TouchInitResult{Ready: true}, nil
}

func (t *fakeTouch) ReadSample(slot int) (peripheral.RawSample, error) {
	if t.idx >= len(t.script) {
		return peripheral.RawSample{}, nil
	}
	s := t.script[t.idx]
	t.idx++
	return peripheral.RawSample{
		TouchCount: s.count,
		Points:     [2]peripheral.Point{{X: s.x, Y: s.y}},
	}, nil
}

func (t *fakeTouch) Shutdown() error { return nil }

type fakeIMU struct{}

func (fakeIMU) InitDoubleTap() (bool, error)      { return false, errors.New("no imu in test") }
func (fakeIMU) ReadTapSrc() (byte, error)         { return 0, nil }
func (fakeIMU) Int1Level() (bool, error)          { return false, nil }
func (fakeIMU) Int2Level() (bool, error)          { return false, nil }
func (fakeIMU) ReadMotionRaw() (peripheral.MotionRaw, error) {
	return peripheral.MotionRaw{}, nil
}

func newTestTask(script []scriptedSample) (*Task, *fakeDisplay, *fakeClock) {
	disp := &fakeDisplay{}
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := modestore.Open(&modestore.MemBackend{})
	task := New(disp, &fakeTouch{script: script}, fakeIMU{}, clock, store)
	return task, disp, clock
}

func stepN(t *Task, clock *fakeClock, n int, period time.Duration) {
	for i := 0; i < n; i++ {
		t.Step(time.Now())
		clock.advance(period)
	}
}

func TestTapGestureTriggersBacklight(t *testing.T) {
	task, disp, clock := newTestTask([]scriptedSample{
		{count: 1, x: 100, y: 100},
		{count: 1, x: 100, y: 100},
		{count: 0},
		{count: 0},
	})
	stepN(task, clock, 6, touchSampleFastMs*time.Millisecond)

	if disp.frontlightOnCount == 0 {
		t.Fatalf("expected a tap to trigger the backlight, got %d FrontlightOn calls", disp.frontlightOnCount)
	}
}

func TestSwipeGestureTogglesAndPersistsDisplayMode(t *testing.T) {
	task, _, clock := newTestTask([]scriptedSample{
		{count: 1, x: 50, y: 300},
		{count: 1, x: 150, y: 300},
		{count: 1, x: 300, y: 300},
		{count: 0},
		{count: 0},
	})
	startMode := task.mode
	stepN(task, clock, 8, touchSampleFastMs*time.Millisecond)

	if task.mode == startMode {
		t.Fatalf("expected a swipe to advance the display mode past %v", startMode)
	}
	if got := task.store.DisplayMode(); got != task.mode {
		t.Fatalf("expected the new mode %v to be persisted, store has %v", task.mode, got)
	}
}

func TestEventSwitchRuntimeModeToggles(t *testing.T) {
	task, _, clock := newTestTask(nil)
	if task.runtimeMode != RuntimeNormal {
		t.Fatalf("new task should start in RuntimeNormal")
	}
	task.Events() <- EventSwitchRuntimeMode
	task.Step(time.Now())
	clock.advance(time.Millisecond)
	if task.runtimeMode != RuntimeUpload {
		t.Fatalf("expected RuntimeUpload after EventSwitchRuntimeMode")
	}
}
