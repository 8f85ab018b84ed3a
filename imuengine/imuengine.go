// Package imuengine implements the IMU event engine (spec.md §4.D):
// double-tap detection with a motion veto, cooldown gating,
// hardware-vs-software source tracking, and a separate face-down
// toggle helper. The motion veto is evaluated per sample (gyro L1 norm
// plus accelerometer jerk against the previous sample); it does not
// look back over a window of earlier samples. It consumes
// peripheral.MotionRaw samples and a hardware tap bit and produces
// trace samples plus an action bitset (BacklightTrigger and
// ModeToggle).
package imuengine

import (
	"github.com/fxamacker/cbor/v2"
)

// Action is a bitset of side effects the display task should apply in
// response to one engine Step.
type Action uint8

const (
	ActionBacklightTrigger Action = 1 << iota
	ActionModeToggle
)

// RejectReason records why a hardware tap bit was not accepted as a
// tap candidate, retained in the trace for offline analysis.
type RejectReason uint8

const (
	RejectNone RejectReason = iota
	RejectMotionVeto
	RejectCooldown
	RejectNoCandidate
	RejectScoreLow
)

// SourceMask distinguishes a hardware-reported tap from a
// software-replayed one (e.g. a diagnostic/test harness driving the
// engine directly).
type SourceMask uint8

const (
	SourceHardware SourceMask = 1 << iota
	SourceSoftware
)

// Trace is the engine's telemetry record for one Step call (spec.md
// §3 "Engine trace sample").
type Trace struct {
	TMs            int64   `cbor:"t_ms"`
	TapSrc         byte    `cbor:"tap_src"`
	Int1           bool    `cbor:"int1"`
	Int2           bool    `cbor:"int2"`
	GX, GY, GZ     int32   `cbor:"g"`
	AX, AY, AZ     int32   `cbor:"a"`
	StateID        int     `cbor:"state_id"`
	RejectReason   RejectReason `cbor:"reject_reason"`
	CandidateScore int     `cbor:"candidate_score"`
	WindowMs       int64   `cbor:"window_ms"`
	CooldownActive bool    `cbor:"cooldown_active"`
	JerkL1         int64   `cbor:"jerk_l1"`
	MotionVeto     bool    `cbor:"motion_veto"`
	GyroL1         int64   `cbor:"gyro_l1"`
}

// Encode marshals a trace sample to CBOR for the best-effort trace
// channel; encoding failures are not expected (fixed, flat struct) but
// are surfaced rather than panicking.
func (t Trace) Encode() ([]byte, error) {
	return cbor.Marshal(t)
}

// Sample is one IMU read handed to Step.
type Sample struct {
	TMs    int64
	TapSrc byte
	Int1   bool
	Int2   bool
	GX, GY, GZ int32
	AX, AY, AZ int32
}

const (
	candidateWindowMs  = 180
	cooldownMs         = 400
	motionVetoL1       = 1800
	candidateScoreMin  = 2
	faceDownDebounceMs = 600
	faceDownGThreshold = 900 // milli-g units, sign flips on flip
)

// tapState is the small internal state machine tracking an in-flight
// tap candidate.
type tapState int

const (
	tapIdle tapState = iota
	tapCandidate
	tapCooldown
)

// Engine is the double-tap event engine. It is reset in place and
// never reconstructed across the program's lifetime (spec.md §3).
type Engine struct {
	state           tapState
	candidateSinceMs int64
	candidateScore   int
	cooldownUntilMs  int64

	lastAX, lastAY, lastAZ int32
	hasLastAccel           bool
	lastSampleMs           int64

	faceDown          bool
	faceDownSinceMs   int64
	faceDownCandidate bool
}

// Reset clears all engine state.
func (e *Engine) Reset() { *e = Engine{} }

// Step consumes one sensor sample and returns the trace plus any
// actions to apply.
func (e *Engine) Step(s Sample) (Trace, Action) {
	jerkL1 := int64(0)
	if e.hasLastAccel {
		jerkL1 = abs64(int64(s.AX-e.lastAX)) + abs64(int64(s.AY-e.lastAY)) + abs64(int64(s.AZ-e.lastAZ))
	}
	e.lastAX, e.lastAY, e.lastAZ = s.AX, s.AY, s.AZ
	e.hasLastAccel = true

	gyroL1 := abs64(int64(s.GX)) + abs64(int64(s.GY)) + abs64(int64(s.GZ))
	motionL1 := gyroL1 + jerkL1
	motionVeto := motionL1 >= motionVetoL1

	reject := RejectNone
	var action Action

	if e.state == tapCooldown && s.TMs >= e.cooldownUntilMs {
		e.state = tapIdle
	}
	cooldownActive := e.state == tapCooldown

	hasHWBit := s.TapSrc != 0
	switch {
	case cooldownActive:
		if hasHWBit {
			reject = RejectCooldown
		}
	case hasHWBit:
		if motionVeto {
			reject = RejectMotionVeto
		} else {
			action |= e.registerTap(s.TMs, SourceHardware)
		}
	case e.state == tapCandidate:
		if s.TMs-e.candidateSinceMs > candidateWindowMs {
			e.state = tapIdle
			e.candidateScore = 0
			reject = RejectNoCandidate
		}
	}

	action |= e.stepFaceDown(s)
	e.lastSampleMs = s.TMs

	trace := Trace{
		TMs:            s.TMs,
		TapSrc:         s.TapSrc,
		Int1:           s.Int1,
		Int2:           s.Int2,
		GX:             s.GX,
		GY:             s.GY,
		GZ:             s.GZ,
		AX:             s.AX,
		AY:             s.AY,
		AZ:             s.AZ,
		StateID:        int(e.state),
		RejectReason:   reject,
		CandidateScore: e.candidateScore,
		WindowMs:       candidateWindowMs,
		CooldownActive: cooldownActive,
		JerkL1:         jerkL1,
		MotionVeto:     motionVeto,
		GyroL1:         gyroL1,
	}
	return trace, action
}

func (e *Engine) registerTap(nowMs int64, src SourceMask) Action {
	e.candidateScore++
	e.candidateSinceMs = nowMs
	if e.candidateScore < candidateScoreMin {
		e.state = tapCandidate
		return 0
	}
	e.state = tapCooldown
	e.cooldownUntilMs = nowMs + cooldownMs
	e.candidateScore = 0
	return ActionBacklightTrigger
}

// Replay registers a software-sourced tap, e.g. from a diagnostic
// harness. It bypasses the hardware motion veto read (there is no
// hardware sample to veto against) but still respects cooldown.
func (e *Engine) Replay(nowMs int64) Action {
	if e.state == tapCooldown && nowMs < e.cooldownUntilMs {
		return 0
	}
	e.state = tapIdle
	return e.registerTap(nowMs, SourceSoftware)
}

// stepFaceDown drives the separate face-down toggle helper: fires
// when the gravity vector (az) inverts sign for a debounce window.
func (e *Engine) stepFaceDown(s Sample) Action {
	down := s.AZ <= -faceDownGThreshold
	if down != e.faceDownCandidate {
		e.faceDownCandidate = down
		e.faceDownSinceMs = s.TMs
		return 0
	}
	if down == e.faceDown {
		return 0
	}
	if s.TMs-e.faceDownSinceMs < faceDownDebounceMs {
		return 0
	}
	e.faceDown = down
	return ActionModeToggle
}

// Recovered notifies the engine that the sensor was re-initialized
// after a fault, so traces stay continuous without a discontinuous
// jerk/gyro spike poisoning the next veto window.
func (e *Engine) Recovered(nowMs int64) {
	e.hasLastAccel = false
	e.state = tapIdle
	e.candidateScore = 0
}

// Fault notifies the engine the sensor read failed; any in-flight
// candidate is dropped.
func (e *Engine) Fault(nowMs int64) {
	e.state = tapIdle
	e.candidateScore = 0
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
