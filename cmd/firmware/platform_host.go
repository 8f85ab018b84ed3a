//go:build linux && !tinygo

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tarm/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"kakejiku.dev/driver/ctp"
	"kakejiku.dev/driver/epd"
	"kakejiku.dev/driver/imu6"
	"kakejiku.dev/modestore"
	"kakejiku.dev/peripheral"
)

// Pin names for a Linux single-board computer wired to the panel,
// touch controller and IMU, mirroring cmd/controller/platform_rpi.go's
// bcm283x GPIO constants but looked up by name through gpioreg so the
// same binary runs on any board periph.io's host drivers recognize.
const (
	gpioDC         = "GPIO25"
	gpioRST        = "GPIO27"
	gpioBusy       = "GPIO17"
	gpioFrontlight = "GPIO24"
	gpioPwrGood    = "GPIO22"
	gpioTouchIRQ   = "GPIO23"
	gpioIMUInt1    = "GPIO5"
	gpioIMUInt2    = "GPIO6"

	serialBaud = 115200
)

// Platform collects every capability cmd/firmware's main loop needs,
// the split-by-capability analogue of cmd/controller's single
// Platform interface.
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

	serialPort io.Closer
}

func (p *Platform) Close() {
	if p.serialPort != nil {
		p.serialPort.Close()
	}
}

func (p *Platform) PSRAMOK() bool { return true }

// Init brings up every peripheral. Host Linux has no microSD SPI stack
// in this pack (the block protocol is explicitly out of scope per
// spec.md §1), so SD and modestore's Backend are both served from a
// local directory standing in for the card's filesystem, in the same
// spirit as cmd/controller/platform_dummy.go stubbing capabilities a
// given build target cannot provide for real.
func Init() (*Platform, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("platform: host init: %w", err)
	}

	panel, err := epd.Open("", gpioDC, gpioRST, gpioBusy, gpioFrontlight, gpioPwrGood)
	if err != nil {
		return nil, fmt.Errorf("platform: open panel: %w", err)
	}

	touchBus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("platform: open i2c: %w", err)
	}
	touchDev := ctp.New(&i2cBus{conn: touchBus})

	imuInt1, err := lookupPin(gpioIMUInt1)
	if err != nil {
		return nil, err
	}
	imuInt2, err := lookupPin(gpioIMUInt2)
	if err != nil {
		return nil, err
	}
	imuDev := imu6.New(&i2cBus{conn: touchBus}, imuInt1, imuInt2)

	sdDir := "/mnt/sd"
	if v := os.Getenv("FIRMWARE_SD_DIR"); v != "" {
		sdDir = v
	}
	sd, err := newDirSD(sdDir)
	if err != nil {
		return nil, fmt.Errorf("platform: open sd stand-in: %w", err)
	}

	store := modestore.Open(sd)

	port, err := openSerial()
	if err != nil {
		return nil, fmt.Errorf("platform: open serial: %w", err)
	}

	return &Platform{
		Display:    panel,
		Touch:      touchDev,
		IMU:        imuDev,
		SD:         sd,
		Radio:      &dummyRadio{},
		Clock:      sysClock{},
		Store:      store,
		Serial:     port,
		RTC:        rtcStub{},
		Reboot:     func() { hostLog("firmware: reboot requested; no-op on host") },
		serialPort: port,
	}, nil
}

func hostLog(msg string) { os.Stderr.WriteString(msg + "\n") }

// DumpScreenshot writes the panel's current framebuffer as a PNG
// under dir, for the SIGUSR1 debug hook main.go wires up. It fails
// when the Display has no framebuffer readback.
func (p *Platform) DumpScreenshot(dir, name string) error {
	fb, ok := p.Display.(framebufferSource)
	if !ok {
		return fmt.Errorf("platform: display has no framebuffer readback")
	}
	return dumpScreenshot(dir, fb, name)
}

func lookupPin(name string) (gpioPin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return gpioPin{}, fmt.Errorf("platform: no such gpio pin %q", name)
	}
	return gpioPin{p}, nil
}

// gpioPin adapts periph.io's gpio.PinIn (Read() Level) to the small
// Pin interface driver/ctp and driver/imu6 consume (Get() bool), the
// same shape *machine.Pin satisfies natively on a TinyGo board.
type gpioPin struct{ pin gpio.PinIn }

func (p gpioPin) Get() bool { return p.pin.Read() == gpio.High }

// i2cBus adapts periph.io's addr-bound i2c.Dev-less conn.Conn to the
// Bus interface driver/ctp and driver/imu6 expect, which carries the
// device address per call the way *machine.I2C's Tx method does.
type i2cBus struct {
	conn interface {
		Tx(addr uint16, w, r []byte) error
	}
}

func (b *i2cBus) Tx(addr uint16, w, r []byte) error { return b.conn.Tx(addr, w, r) }

func openSerial() (*serial.Port, error) {
	dev := os.Getenv("FIRMWARE_SERIAL_DEV")
	if dev == "" {
		dev = "/dev/ttyS0"
	}
	cfg := &serial.Config{Name: dev, Baud: serialBaud, ReadTimeout: time.Second}
	return serial.OpenPort(cfg)
}

// dirSD stands in for the SD card on hosts with no microSD SPI stack,
// backed by a plain directory. Begin/Chunk/Commit/Abort stage an
// upload into a temp file before renaming it into place, so a crash or
// Abort mid-upload never leaves a partially written file at its final
// path. It also satisfies modestore.Backend by mapping the two fixed
// mode-record slots onto two small files in the same directory.
type dirSD struct {
	root string
	tmp  *os.File
	dest string
}

func newDirSD(root string) (*dirSD, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &dirSD{root: root}, nil
}

func (d *dirSD) path(p string) string { return filepath.Join(d.root, filepath.FromSlash(p)) }

func (d *dirSD) PowerOn() error  { return nil }
func (d *dirSD) PowerOff() error { return nil }

func (d *dirSD) Probe() (peripheral.SDProbeResult, error) {
	var total int64
	filepath.WalkDir(d.root, func(_ string, de os.DirEntry, err error) error {
		if err != nil || de.IsDir() {
			return nil
		}
		if info, err := de.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return peripheral.SDProbeResult{Version: 2, HighCapacity: true, Filesystem: "dir", CapacityBytes: total}, nil
}

func (d *dirSD) Begin(path string, expectedSize int64) error {
	if d.tmp != nil {
		return errors.New("dirsd: upload already in progress")
	}
	dest := d.path(path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return err
	}
	d.tmp, d.dest = f, dest
	return nil
}

func (d *dirSD) Chunk(data []byte) error {
	if d.tmp == nil {
		return errors.New("dirsd: no upload in progress")
	}
	_, err := d.tmp.Write(data)
	return err
}

func (d *dirSD) Commit() error {
	if d.tmp == nil {
		return errors.New("dirsd: no upload in progress")
	}
	name := d.tmp.Name()
	if err := d.tmp.Close(); err != nil {
		d.tmp, d.dest = nil, ""
		return err
	}
	dest := d.dest
	d.tmp, d.dest = nil, ""
	return os.Rename(name, dest)
}

func (d *dirSD) Abort() error {
	if d.tmp == nil {
		return nil
	}
	name := d.tmp.Name()
	d.tmp.Close()
	d.tmp, d.dest = nil, ""
	return os.Remove(name)
}

func (d *dirSD) Mkdir(path string) error { return os.MkdirAll(d.path(path), 0o755) }
func (d *dirSD) Remove(path string) error {
	err := os.Remove(d.path(path))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *dirSD) FatStat(path string) (peripheral.SDFatStat, error) {
	info, err := os.Stat(d.path(path))
	if os.IsNotExist(err) {
		return peripheral.SDFatStat{}, nil
	}
	if err != nil {
		return peripheral.SDFatStat{}, err
	}
	return peripheral.SDFatStat{Exists: true, Size: info.Size()}, nil
}

func (d *dirSD) slotPath(slot int) string { return d.path(fmt.Sprintf("mode%d.bin", slot)) }

func (d *dirSD) ReadSlot(slot int) ([]byte, error) {
	return os.ReadFile(d.slotPath(slot))
}

func (d *dirSD) WriteSlot(slot int, data []byte) error {
	return os.WriteFile(d.slotPath(slot), data, 0o644)
}
