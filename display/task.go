// Package display implements the display task: the cooperative
// single-threaded event loop that multiplexes render ticks, touch
// sampling, IMU polling and feedback-dot flushing against one e-paper
// driver and I²C bus (spec.md §4.F). The IMU engine's trace samples
// are discarded rather than published, and the loop does no SD power
// arbitration. One call to (*Task).Step is one loop iteration,
// grounded on cmd/controller/platform_sh2.go's AppendEvents/Wakeup
// pair and gui.App.Frame: there is no hidden scheduler goroutine, the
// caller's for loop owns the cadence.
package display

import (
	"log"
	"time"

	"kakejiku.dev/atomicbits"
	"kakejiku.dev/imuengine"
	"kakejiku.dev/modestore"
	"kakejiku.dev/peripheral"
	"kakejiku.dev/render/dither"
	"kakejiku.dev/touch"
	"kakejiku.dev/wizard"
)

// AppEvent is one event the display task processes per iteration.
type AppEvent int

const (
	EventRefresh AppEvent = iota
	EventBatteryTick
	EventTimeSync
	EventTouchIRQ
	EventForceRepaint
	EventForceMarbleRepaint
	EventStartTouchCalibrationWizard
	EventSwitchRuntimeMode
)

const (
	touchMaxCatchupSamples   = 4
	touchFeedbackMinRefreshMs = 45
	touchInitRetryMs         = 2000
	imuInitRetryMs           = 2000
	touchSampleFastMs        = 20
	touchSampleIdleMs        = 250
	touchIdleAfterMs         = 2000
	touchQuietForIMUMs       = 80
	backlightFadeMs          = 150
	backlightHoldMs          = 1500

	// renderStripRows bounds how much of the panel one Step call
	// renders, so a full repaint never blocks touch sampling for more
	// than one strip's worth of work (spec's render_next_strip
	// cooperative-yielding rule).
	renderStripRows = 40

	// suminagashiEntropy is the fixed "entropy" control (spec.md §4.E)
	// the device path renders with; there is no UI for tuning it.
	suminagashiEntropy = 160
)

// RuntimeMode is the device-wide Normal/Upload toggle.
type RuntimeMode int

const (
	RuntimeNormal RuntimeMode = iota
	RuntimeUpload
)

// Task owns all the display-task-exclusive hardware and state.
type Task struct {
	disp  peripheral.Display
	touch peripheral.Touch
	imu   peripheral.IMU
	clock peripheral.Clock
	flags *atomicbits.Set

	store *modestore.Store
	mode  modestore.DisplayMode

	runtimeMode RuntimeMode

	norm touch.Normalizer
	hsm  touch.HSM
	eng  imuengine.Engine

	wiz *wizard.Wizard

	events chan AppEvent

	touchReady       bool
	touchNextSampleAt int64
	touchLastNonZeroAt int64
	touchRetryAt      int64
	touchActive       bool

	imuReady   bool
	imuRetryAt int64

	lastFeedbackFlushMs int64
	dirtyFeedback       peripheral.Rect

	backlightState backlightPhase
	backlightSince int64

	fb         *dither.Mono1
	scene      stripRenderer
	renderY    int
	renderFull bool
	rendering  bool

	seed                   uint32
	haveSeed               bool
	firstVisualSeedPending bool
	forceReseed            bool
	seedNonce              uint32
	wallSynced             bool
	wallClockSeconds       int64
}

type backlightPhase int

const (
	backlightOff backlightPhase = iota
	backlightFadeIn
	backlightHold
	backlightFadeOut
)

// New constructs a Task. The event channel is bounded per spec.md §5's
// backpressure rule; callers send with a non-blocking try-send
// discipline of their own (e.g. an IRQ handler).
func New(disp peripheral.Display, touchDev peripheral.Touch, imuDev peripheral.IMU, clock peripheral.Clock, store *modestore.Store) *Task {
	t := &Task{
		disp:   disp,
		touch:  touchDev,
		imu:    imuDev,
		clock:  clock,
		flags:  atomicbits.New(),
		store:  store,
		events: make(chan AppEvent, 8),
	}
	if store != nil {
		t.mode = store.DisplayMode()
	}
	return t
}

// Events returns the channel callers (IRQ handlers, serial command
// parser) post AppEvents to.
func (t *Task) Events() chan<- AppEvent { return t.events }

// Step runs one loop iteration, processing at most one app event
// within the deadline and then driving touch/IMU/render work. It
// never blocks past deadline.
func (t *Task) Step(deadline time.Time) {
	budget := time.Until(deadline)
	if budget < 0 {
		budget = 0
	}

	select {
	case ev := <-t.events:
		t.handleEvent(ev)
	case <-time.After(budget):
	}

	now := t.clock.Now()
	nowMs := now.UnixMilli()

	t.pollIMUIfQuiet(nowMs)
	t.sampleTouchCatchup(nowMs)
	t.advanceRender(nowMs)
	t.flushFeedbackIfDue(nowMs)
	t.stepBacklight(nowMs)
}

func (t *Task) handleEvent(ev AppEvent) {
	switch ev {
	case EventRefresh:
		t.renderCurrentMode(false)
	case EventForceRepaint:
		t.renderCurrentMode(true)
	case EventForceMarbleRepaint:
		t.mode = modestore.ModeSuminagashi
		t.forceReseed = true
		t.renderCurrentMode(true)
	case EventBatteryTick:
		// Telemetry-only tick; no display action required here.
	case EventTimeSync:
		t.noteTimeSync(t.clock.Now().UnixMilli())
	case EventTouchIRQ:
		t.flags.Set(atomicbits.TouchIRQLow)
		t.touchNextSampleAt = 0
	case EventStartTouchCalibrationWizard:
		t.wiz = wizard.New()
	case EventSwitchRuntimeMode:
		if t.runtimeMode == RuntimeNormal {
			t.runtimeMode = RuntimeUpload
		} else {
			t.runtimeMode = RuntimeNormal
		}
	}
}

// pollIMUIfQuiet implements the mutex-free I²C-sharing discipline:
// the IMU is only polled when the touch bus is quiet (no contact and
// last non-zero touch older than touchQuietForIMUMs).
func (t *Task) pollIMUIfQuiet(nowMs int64) {
	if !t.imuReady {
		if nowMs < t.imuRetryAt {
			return
		}
		if _, err := t.imu.InitDoubleTap(); err != nil {
			t.imuRetryAt = nowMs + imuInitRetryMs
			return
		}
		t.imuReady = true
	}

	if nowMs-t.touchLastNonZeroAt < touchQuietForIMUMs {
		return
	}

	tapSrc, err := t.imu.ReadTapSrc()
	if err != nil {
		t.imuReady = false
		t.imuRetryAt = nowMs + imuInitRetryMs
		return
	}
	motion, err := t.imu.ReadMotionRaw()
	if err != nil {
		t.imuReady = false
		t.imuRetryAt = nowMs + imuInitRetryMs
		return
	}
	int1, _ := t.imu.Int1Level()
	int2, _ := t.imu.Int2Level()

	_, action := t.eng.Step(imuengine.Sample{
		TMs: nowMs, TapSrc: tapSrc, Int1: int1, Int2: int2,
		GX: motion.GX, GY: motion.GY, GZ: motion.GZ,
		AX: motion.AX, AY: motion.AY, AZ: motion.AZ,
	})
	if action&imuengine.ActionBacklightTrigger != 0 {
		t.triggerBacklight(nowMs)
	}
	if action&imuengine.ActionModeToggle != 0 {
		t.toggleMode(nowMs, true)
	}
}

// sampleTouchCatchup samples up to touchMaxCatchupSamples times if the
// scheduled sample deadline has passed, advancing the schedule by
// period rather than off time.Now so catch-up reads never collapse
// debounce durations.
func (t *Task) sampleTouchCatchup(nowMs int64) {
	if !t.touchReady {
		if nowMs < t.touchRetryAt {
			return
		}
		res, err := t.touch.Init()
		if err != nil || !res.Ready {
			t.touchRetryAt = nowMs + touchInitRetryMs
			return
		}
		t.touchReady = true
		t.touchNextSampleAt = nowMs
	}

	period := t.touchPeriodMs(nowMs)
	samples := 0
	for nowMs >= t.touchNextSampleAt && samples < touchMaxCatchupSamples {
		raw, err := t.touch.ReadSample(0)
		if err != nil {
			t.touchReady = false
			if shutdownErr := t.touch.Shutdown(); shutdownErr != nil {
				log.Printf("display: touch shutdown after read error: %v", shutdownErr)
			}
			t.touchRetryAt = nowMs + touchInitRetryMs
			t.norm.Reset()
			t.hsm.Reset()
			if t.wiz != nil {
				t.wiz.NotifyTouchLost()
			}
			return
		}
		frame := t.norm.Normalize(touch.RawSample{
			TMs:        t.touchNextSampleAt,
			TouchCount: raw.TouchCount,
			Points:     [2]touch.Point{{X: raw.Points[0].X, Y: raw.Points[0].Y}, {X: raw.Points[1].X, Y: raw.Points[1].Y}},
			HasPoint:   [2]bool{raw.TouchCount > 0, raw.TouchCount > 1},
			RawStatus:  raw.RawStatus,
		})

		t.touchActive = frame.Count > 0
		if t.touchActive {
			t.touchLastNonZeroAt = t.touchNextSampleAt
		}
		events := t.hsm.Process(frame)
		t.routeTouchEvents(events)
		t.touchNextSampleAt += period
		samples++
	}
}

func (t *Task) touchPeriodMs(nowMs int64) int64 {
	active := t.flags.Load(atomicbits.TouchIRQLow) || (nowMs-t.touchLastNonZeroAt) < touchIdleAfterMs
	if active {
		return touchSampleFastMs
	}
	return touchSampleIdleMs
}

func (t *Task) routeTouchEvents(events []touch.Event) {
	for _, e := range events {
		if t.wiz != nil {
			t.wiz.HandleEvent(e)
			continue
		}
		t.handleGesture(e)
	}
}

// handleGesture implements the gesture→action mapping: Tap cycles
// backlight, LongPress forces a repaint, Swipe toggles display mode.
func (t *Task) handleGesture(e touch.Event) {
	switch e.Kind {
	case touch.Tap:
		t.triggerBacklight(e.TMs)
	case touch.LongPress:
		t.renderCurrentMode(true)
	case touch.SwipeRight, touch.SwipeDown:
		t.toggleMode(e.TMs, true)
	case touch.SwipeLeft, touch.SwipeUp:
		t.toggleMode(e.TMs, false)
	}
	t.markFeedbackDirty(e.X, e.Y)
}

func (t *Task) toggleMode(nowMs int64, forward bool) {
	next := t.mode
	if forward {
		next = (t.mode + 1) % modestore.ModeCount
	} else {
		next = (t.mode - 1 + modestore.ModeCount) % modestore.ModeCount
	}
	t.mode = next
	if t.store != nil {
		if err := t.store.SetDisplayMode(next); err != nil {
			log.Printf("display: mode persist failed: %v", err)
		}
	}
	t.renderCurrentMode(true)
}

func (t *Task) markFeedbackDirty(x, y int) {
	r := peripheral.Rect{MinX: x - 8, MinY: y - 8, MaxX: x + 8, MaxY: y + 8}
	t.dirtyFeedback = t.dirtyFeedback.Union(r)
}

func (t *Task) flushFeedbackIfDue(nowMs int64) {
	if t.dirtyFeedback.Empty() {
		return
	}
	if t.touchActive {
		return
	}
	if nowMs-t.lastFeedbackFlushMs < touchFeedbackMinRefreshMs {
		return
	}
	if err := t.disp.DisplayBWPartial(t.dirtyFeedback, false); err != nil {
		log.Printf("display: feedback flush failed: %v", err)
	}
	t.dirtyFeedback = peripheral.Rect{}
	t.lastFeedbackFlushMs = nowMs
}

func (t *Task) triggerBacklight(nowMs int64) {
	t.backlightState = backlightFadeIn
	t.backlightSince = nowMs
	if err := t.disp.FrontlightOn(); err != nil {
		log.Printf("display: frontlight on failed: %v", err)
	}
}

func (t *Task) stepBacklight(nowMs int64) {
	switch t.backlightState {
	case backlightFadeIn:
		if nowMs-t.backlightSince >= backlightFadeMs {
			t.backlightState = backlightHold
			t.backlightSince = nowMs
		}
	case backlightHold:
		if nowMs-t.backlightSince >= backlightHoldMs {
			t.backlightState = backlightFadeOut
			t.backlightSince = nowMs
		}
	case backlightFadeOut:
		if nowMs-t.backlightSince >= backlightFadeMs {
			t.backlightState = backlightOff
			if err := t.disp.FrontlightOff(); err != nil {
				log.Printf("display: frontlight off failed: %v", err)
			}
		}
	}
}

// renderCurrentMode starts a new render of the active display mode.
// It does not push any pixels itself — it builds the scene and resets
// the strip cursor, and advanceRender drains it a bounded strip at a
// time from Step so rendering never blocks touch sampling for longer
// than one strip.
func (t *Task) renderCurrentMode(full bool) {
	w, h := t.disp.Width(), t.disp.Height()
	if t.fb == nil || int(t.fb.W) != w || int(t.fb.H) != h {
		t.fb = dither.NewMono1(int16(w), int16(h))
	}
	t.scene = t.buildScene(t.mode, t.clock.Now().UnixMilli())
	t.renderY = 0
	t.renderFull = full
	t.rendering = true
}

// advanceRender renders at most renderStripRows more rows of the
// in-flight scene into the framebuffer, pushing the completed
// framebuffer to the panel once every row has been produced.
func (t *Task) advanceRender(nowMs int64) {
	if !t.rendering {
		return
	}
	h := t.disp.Height()
	y1 := min(t.renderY+renderStripRows, h)
	t.scene.renderStrip(t.fb, t.renderY, y1)
	t.renderY = y1
	if t.renderY < h {
		return
	}
	t.rendering = false
	t.pushFramebuffer(t.renderFull)
}

// pushFramebuffer copies the rendered strip buffer onto the panel one
// pixel at a time through SetPixelBW, then commits it with DisplayBW —
// peripheral.Display exposes no bulk framebuffer write, only this
// per-pixel/refresh pair.
func (t *Task) pushFramebuffer(full bool) {
	w, h := t.disp.Width(), t.disp.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if err := t.disp.SetPixelBW(x, y, t.fb.At(int16(x), int16(y))); err != nil {
				log.Printf("display: set pixel failed: %v", err)
				return
			}
		}
	}
	if err := t.disp.DisplayBW(full); err != nil {
		log.Printf("display: refresh failed: %v", err)
	}
}
