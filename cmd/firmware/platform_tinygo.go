//go:build tinygo

package main

import (
	"errors"
	"fmt"
	"io"
	"machine"

	"kakejiku.dev/driver/ctp"
	"kakejiku.dev/driver/epd"
	"kakejiku.dev/driver/imu6"
	"kakejiku.dev/modestore"
	"kakejiku.dev/peripheral"
)

// Board wiring. Concrete pin numbers belong to the target board's
// pin map; these are the names this tree expects a board file to
// provide, the same role cmd/controller/platform_rpi.go's bcm283x
// GPIO vars play for that command's Raspberry Pi target.
var (
	pinDC         = machine.D2
	pinRST        = machine.D3
	pinBusy       = machine.D4
	pinFrontlight = machine.D5
	pinPwrGood    = machine.D6
	pinTouchIRQ   = machine.D7
	pinIMUInt1    = machine.D8
	pinIMUInt2    = machine.D9
)

// Platform collects every capability cmd/firmware's main loop needs.
// *machine.I2C and *machine.Pin satisfy driver/ctp's and
// driver/imu6's Bus/Pin interfaces structurally, so this build wires
// them in directly with no adapter, unlike platform_host.go's periph.io
// shim types.
type Platform struct {
	Display peripheral.Display
	Touch   peripheral.Touch
	IMU     peripheral.IMU
	SD      peripheral.SD
	Radio   peripheral.Radio
	Clock   peripheral.Clock
	Store   *modestore.Store
	Serial  io.ReadWriter
	RTC     rtcStub
	Reboot  func()
}

func (p *Platform) Close() {}

// startDebugHooks is a no-op on this build: there is no host
// filesystem or OS signal facility to dump a screenshot through.
func startDebugHooks(p *Platform) {}

func (p *Platform) PSRAMOK() bool { return machine.HasPSRAM() }

func Init() (*Platform, error) {
	for _, pin := range []machine.Pin{pinDC, pinRST, pinFrontlight} {
		pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	for _, pin := range []machine.Pin{pinBusy, pinPwrGood, pinTouchIRQ, pinIMUInt1, pinIMUInt2} {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	}

	if err := machine.I2C0.Configure(machine.I2CConfig{Frequency: machine.TWI_FREQ_400KHZ}); err != nil {
		return nil, fmt.Errorf("platform: configure i2c: %w", err)
	}
	touchDev := ctp.New(machine.I2C0)
	imuDev := imu6.New(machine.I2C0, pinIMUInt1, pinIMUInt2)

	panel, err := epd.OpenTinyGo(machine.SPI0, pinDC, pinRST, pinBusy, pinFrontlight, pinPwrGood)
	if err != nil {
		return nil, fmt.Errorf("platform: open panel: %w", err)
	}

	sd := newMemSD()
	store := modestore.Open(sd)

	uart := machine.Serial

	return &Platform{
		Display: panel,
		Touch:   touchDev,
		IMU:     imuDev,
		SD:      sd,
		Radio:   &dummyRadio{},
		Clock:   sysClock{},
		Store:   store,
		Serial:  uart,
		RTC:     rtcStub{},
		Reboot:  machine.CPUReset,
	}, nil
}

// memSD stands in for the microSD card on boards this tree has no SPI
// block driver for: the card's SPI protocol is out of scope (spec.md
// §1), and a microcontroller build has no host filesystem to stage an
// upload into the way dirSD does on Linux, so files and mode slots
// both live in a plain in-memory map instead. An upload survives a
// Commit but not a power cycle.
type memSD struct {
	modestore.MemBackend
	files map[string][]byte

	uploadPath string
	uploadBuf  []byte
}

func newMemSD() *memSD {
	return &memSD{files: map[string][]byte{}}
}

func (d *memSD) PowerOn() error  { return nil }
func (d *memSD) PowerOff() error { return nil }

func (d *memSD) Probe() (peripheral.SDProbeResult, error) {
	var total int64
	for _, b := range d.files {
		total += int64(len(b))
	}
	return peripheral.SDProbeResult{Version: 2, HighCapacity: true, Filesystem: "mem", CapacityBytes: total}, nil
}

func (d *memSD) Begin(path string, expectedSize int64) error {
	if d.uploadPath != "" {
		return errors.New("memsd: upload already in progress")
	}
	d.uploadPath = path
	d.uploadBuf = make([]byte, 0, expectedSize)
	return nil
}

func (d *memSD) Chunk(data []byte) error {
	if d.uploadPath == "" {
		return errors.New("memsd: no upload in progress")
	}
	d.uploadBuf = append(d.uploadBuf, data...)
	return nil
}

func (d *memSD) Commit() error {
	if d.uploadPath == "" {
		return errors.New("memsd: no upload in progress")
	}
	d.files[d.uploadPath] = d.uploadBuf
	d.uploadPath, d.uploadBuf = "", nil
	return nil
}

func (d *memSD) Abort() error {
	d.uploadPath, d.uploadBuf = "", nil
	return nil
}

func (d *memSD) Mkdir(path string) error { return nil }

func (d *memSD) Remove(path string) error {
	delete(d.files, path)
	return nil
}

func (d *memSD) FatStat(path string) (peripheral.SDFatStat, error) {
	b, ok := d.files[path]
	if !ok {
		return peripheral.SDFatStat{}, nil
	}
	return peripheral.SDFatStat{Exists: true, Size: int64(len(b))}, nil
}
