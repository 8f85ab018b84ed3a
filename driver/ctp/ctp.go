// Package ctp implements a TinyGo I2C driver for the capacitive touch
// controller, satisfying peripheral.Touch. It extends the teacher's
// driver/ft6x36 register layout (TD_STATUS, per-touch X/Y pairs) to the
// dual-slot, 8-byte raw status shape peripheral.RawSample carries, and
// borrows driver/ap33772s's testable Bus interface — a bare Tx method
// set satisfied by *machine.I2C — instead of ft6x36's direct
// *machine.I2C field, so this driver can be exercised with a fake bus
// in host tests.
package ctp

import (
	"fmt"

	"kakejiku.dev/peripheral"
)

// Bus is the I2C transaction the controller needs; *machine.I2C
// satisfies it without this package importing "machine" directly.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

const (
	addr = 0x38

	regTdStatus = 0x02
	regTouch2XH = 0x09
	regGMode    = 0xa4
	regThGroup  = 0x80
	regThDiff   = 0x85
	regChipID   = 0xa3
	regResXH    = 0x98
	regResYH    = 0x9a

	expectChipID = 0x36

	thGroupDefault = 0x10
	thDiffDefault  = 0x14
)

// Device drives the controller over Bus.
type Device struct {
	bus Bus
}

func New(bus Bus) *Device {
	return &Device{bus: bus}
}

// readReg reads n registers starting at reg into a freshly allocated
// slice. Each call owns its buffer rather than reusing a shared one, so
// callers can hold results from two successive reads (as ReadSample
// does for the two non-contiguous touch-point register blocks) without
// one overwriting the other.
func (d *Device) readReg(reg byte, n int) ([]byte, error) {
	rd := make([]byte, n)
	if err := d.bus.Tx(addr, []byte{reg}, rd); err != nil {
		return nil, err
	}
	return rd, nil
}

func (d *Device) writeReg(reg, val byte) error {
	return d.bus.Tx(addr, []byte{reg, val}, nil)
}

// Init performs the hello handshake and resolution probe and
// configures touch thresholds. Bus-level failures are returned as err;
// a controller that answers but reports a chip ID mismatch or a zero
// resolution is reported through the result's flags, not err, since
// both are recoverable conditions the caller may retry past.
func (d *Device) Init() (peripheral.TouchInitResult, error) {
	id, err := d.readReg(regChipID, 1)
	if err != nil {
		return peripheral.TouchInitResult{}, fmt.Errorf("ctp: read chip id: %w", err)
	}
	if id[0] != expectChipID {
		return peripheral.TouchInitResult{HelloMismatch: true}, nil
	}

	resX, err := d.readReg(regResXH, 2)
	if err != nil {
		return peripheral.TouchInitResult{}, fmt.Errorf("ctp: read x resolution: %w", err)
	}
	xres := int(resX[0])<<8 | int(resX[1])
	resY, err := d.readReg(regResYH, 2)
	if err != nil {
		return peripheral.TouchInitResult{}, fmt.Errorf("ctp: read y resolution: %w", err)
	}
	yres := int(resY[0])<<8 | int(resY[1])
	if xres == 0 || yres == 0 {
		return peripheral.TouchInitResult{ZeroRes: true}, nil
	}

	if err := d.writeReg(regThGroup, thGroupDefault); err != nil {
		return peripheral.TouchInitResult{}, fmt.Errorf("ctp: set th_group: %w", err)
	}
	if err := d.writeReg(regThDiff, thDiffDefault); err != nil {
		return peripheral.TouchInitResult{}, fmt.Errorf("ctp: set th_diff: %w", err)
	}
	if err := d.writeReg(regGMode, 0); err != nil {
		return peripheral.TouchInitResult{}, fmt.Errorf("ctp: set g_mode: %w", err)
	}

	return peripheral.TouchInitResult{Ready: true, Res: peripheral.TouchReady{XRes: xres, YRes: yres}}, nil
}

// ReadSample reads the controller's touch-status block. Only slot 0 is
// valid: this controller reports up to two simultaneous touch points
// in a single read, not one point per slot. Touch1's registers
// (0x02-0x06) and Touch2's (0x09-0x0c) aren't contiguous, so this is
// two bus transactions; RawStatus packs both blocks' leading bytes
// into the fixed 8-byte diagnostic capture peripheral.RawSample
// carries, while Points carries the full-precision decode regardless
// of what fits in that capture.
func (d *Device) ReadSample(slot int) (peripheral.RawSample, error) {
	if slot != 0 {
		return peripheral.RawSample{}, fmt.Errorf("ctp: invalid slot %d", slot)
	}
	t1, err := d.readReg(regTdStatus, 5) // status, t1xh, t1xl, t1yh, t1yl
	if err != nil {
		return peripheral.RawSample{}, fmt.Errorf("ctp: read touch1: %w", err)
	}
	t2, err := d.readReg(regTouch2XH, 4) // t2xh, t2xl, t2yh, t2yl
	if err != nil {
		return peripheral.RawSample{}, fmt.Errorf("ctp: read touch2: %w", err)
	}

	count := int(t1[0] & 0x0f)
	if count > 2 {
		count = 2
	}

	pts := [2]peripheral.Point{
		{X: int(t1[1]&0x0f)<<8 | int(t1[2]), Y: int(t1[3]&0x0f)<<8 | int(t1[4])},
		{X: int(t2[0]&0x0f)<<8 | int(t2[1]), Y: int(t2[2]&0x0f)<<8 | int(t2[3])},
	}

	var raw [8]byte
	copy(raw[:5], t1)
	copy(raw[5:8], t2[:3])

	return peripheral.RawSample{TouchCount: count, Points: pts, RawStatus: raw}, nil
}

// Shutdown puts the controller into its lowest-power monitor mode.
func (d *Device) Shutdown() error {
	return d.writeReg(regGMode, 1)
}
