package peripheral

import "time"

// Display is the typed operation set the display task drives the
// e-paper panel through. Pixel formatting and waveform timing are the
// concrete driver's concern; this interface only exposes the operations
// the core needs to schedule refreshes.
type Display interface {
	Width() int
	Height() int
	Clear() error
	SetPixelBW(x, y int, on bool) error
	DisplayBW(full bool) error
	DisplayBWPartial(r Rect, full bool) error
	FrontlightOn() error
	FrontlightOff() error
	SetBrightness(level int) error // 0..=63
	ReadPowerGood() (bool, error)
}

// Rect is a minimal rectangle so peripheral does not depend on
// image.Rectangle's wider semantics.
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

func (r Rect) Empty() bool { return r.MinX >= r.MaxX || r.MinY >= r.MaxY }

func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		MinX: min(r.MinX, o.MinX),
		MinY: min(r.MinY, o.MinY),
		MaxX: max(r.MaxX, o.MaxX),
		MaxY: max(r.MaxY, o.MaxY),
	}
}

// TouchReady is the result of initializing the touch controller.
type TouchReady struct {
	XRes, YRes int
}

// TouchInitResult is a tagged outcome of Touch.Init, mirroring the
// firmware-level enum in spec.md §4.A: a controller can come up ready,
// report a failed hello handshake, report a zero resolution (a
// symptom of an unpowered panel), or fail outright.
type TouchInitResult struct {
	Ready         bool
	Res           TouchReady
	HelloMismatch bool
	ZeroRes       bool
	Err           error
}

// RawSample is one controller read for a single slot, before any
// normalization: controllers may report presence bits without
// coordinates and vice versa, and both channels are noisy.
type RawSample struct {
	TouchCount int // 0..=2
	Points     [2]Point
	RawStatus  [8]byte
}

type Point struct {
	X, Y int
}

// Touch is the capacitive touch controller capability.
type Touch interface {
	Init() (TouchInitResult, error)
	ReadSample(slot int) (RawSample, error)
	Shutdown() error
}

// MotionRaw is one IMU sample: angular rate (gx,gy,gz) and linear
// acceleration (ax,ay,az) in the sensor's native fixed-point units.
type MotionRaw struct {
	GX, GY, GZ int32
	AX, AY, AZ int32
}

// IMU is the inertial sensor capability: double-tap interrupt
// configuration and raw motion sampling. Register-level programming is
// the concrete driver's concern.
type IMU interface {
	InitDoubleTap() (bool, error)
	ReadTapSrc() (byte, error)
	Int1Level() (bool, error)
	Int2Level() (bool, error)
	ReadMotionRaw() (MotionRaw, error)
}

// SDProbeResult describes the result of probing an inserted card.
type SDProbeResult struct {
	Version       int
	HighCapacity  bool
	Filesystem    string
	CapacityBytes int64
}

// SDFatStat is the outcome of an SDFATSTAT path lookup.
type SDFatStat struct {
	Exists bool
	Size   int64
}

// SD is the SD card capability, including the upload primitives the
// HTTP upload path calls directly (§4.I).
// The SPI block protocol itself is out of scope.
type SD interface {
	PowerOn() error
	PowerOff() error
	Probe() (SDProbeResult, error)
	Begin(path string, expectedSize int64) error
	Chunk(data []byte) error
	Commit() error
	Abort() error
	Mkdir(path string) error
	Remove(path string) error
	FatStat(path string) (SDFatStat, error)
}

// Clock is the monotonic clock capability.
type Clock interface {
	Now() time.Time
	ElapsedSince(t time.Time) time.Duration
}

// RadioEvent is a hook notification from the radio stack: association
// loss, scan completion, or a resource-exhaustion condition.
type RadioEvent struct {
	Kind       RadioEventKind
	Reason     int
	Candidates []Candidate
}

type RadioEventKind int

const (
	RadioEventDisconnected RadioEventKind = iota
	RadioEventScanDone
	RadioEventNoMem
	RadioEventConnected
)

// Candidate is one scan result: a BSSID, its channel and signal
// strength.
type Candidate struct {
	BSSID   [6]byte
	Channel int
	RSSI    int8
}

// RadioConfig selects the station auth mode, and optionally pins a
// channel/BSSID hint.
type RadioConfig struct {
	SSID       string
	Passphrase string
	Auth       AuthMethod
	Channel    int // 0 = no hint
	BSSID      [6]byte
	HasBSSID   bool
}

type AuthMethod int

const (
	AuthWPAWPA2 AuthMethod = iota
	AuthWPA2
	AuthWPA2WPA3
	AuthWPA3
	AuthWPA
)

// ScanConfig parameterizes one scan call.
type ScanConfig struct {
	Passive  bool
	SSID     string // directed scan when non-empty
	Channel  int    // single-channel scan when non-zero
	Duration time.Duration
}

// Radio is the Wi-Fi STA capability. It is owned exclusively by the
// Wi-Fi recovery ladder task.
type Radio interface {
	Start() error
	Stop() error
	IsStarted() bool
	SetConfig(cfg RadioConfig) error
	Connect() error
	Disconnect() error
	ScanWithConfig(cfg ScanConfig) ([]Candidate, error)
	Events() <-chan RadioEvent
	DHCPLeased() (bool, error)
}
