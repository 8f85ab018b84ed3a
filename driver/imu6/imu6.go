// Package imu6 implements a TinyGo I2C driver for a 6-axis IMU (accel +
// gyro) with hardware double-tap detection, satisfying peripheral.IMU.
// It follows the same Device{bus Bus}/readReg/writeReg shape as
// driver/ap33772s and driver/ctp: a bare Tx-method Bus interface rather
// than a concrete *machine.I2C field, and a companion Pin interface
// (Get() bool) for the two interrupt lines so the whole driver is
// host-testable without a "tinygo" build tag.
package imu6

import (
	"fmt"

	"kakejiku.dev/peripheral"
)

// Bus is the I2C transaction the IMU needs.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

// Pin reads one GPIO level; *machine.Pin satisfies this.
type Pin interface {
	Get() bool
}

const (
	addr = 0x6a

	regWhoAmI    = 0x0f
	expectWhoAmI = 0x6c

	regCtrl1XL = 0x10 // accel ODR/scale
	regCtrl2G  = 0x11 // gyro ODR/scale
	regCtrl8XC = 0x17

	regTapCfg0   = 0x56
	regTapCfg2   = 0x58
	regTapThs6D  = 0x59
	regIntDur2   = 0x5a
	regWakeUpThs = 0x5b
	regMd1Cfg    = 0x5e
	regAllIntSrc = 0x1a

	regOutXLG     = 0x22 // gyro X/Y/Z low/high, 6 bytes, burst
	regOutXLXL    = 0x28 // accel X/Y/Z low/high, 6 bytes, burst
	autoIncrement = 0x80

	ctrl1XLDefault = 0x60 // 416 Hz, +-2g
	ctrl2GDefault  = 0x60 // 416 Hz, 250 dps
	ctrl8Default   = 0x00

	tapCfg0Enable   = 0x8e // latched interrupt, tap X/Y/Z enable
	tapCfg2Double   = 0x80 // enable inactivity/tap interrupts
	tapThs6DDefault = 0x09
	intDur2Default  = 0x7f // DUR/QUIET/SHOCK double-tap timing
	wakeUpThsDouble = 0x80 // enable double-tap detection
	md1CfgRouteTap  = 0x08 // route tap interrupt to INT1
)

// Device drives the IMU over Bus and two interrupt pins.
type Device struct {
	bus        Bus
	int1, int2 Pin
}

func New(bus Bus, int1, int2 Pin) *Device {
	return &Device{bus: bus, int1: int1, int2: int2}
}

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

// InitDoubleTap brings up the accelerometer/gyro and configures
// hardware double-tap detection routed to INT1. It returns (false, nil)
// on a WHO_AM_I mismatch — a soft failure the caller may retry past —
// and a non-nil error only for bus failures.
func (d *Device) InitDoubleTap() (bool, error) {
	id, err := d.readReg(regWhoAmI, 1)
	if err != nil {
		return false, fmt.Errorf("imu6: read who_am_i: %w", err)
	}
	if id[0] != expectWhoAmI {
		return false, nil
	}

	writes := []struct{ reg, val byte }{
		{regCtrl1XL, ctrl1XLDefault},
		{regCtrl2G, ctrl2GDefault},
		{regCtrl8XC, ctrl8Default},
		{regTapCfg0, tapCfg0Enable},
		{regTapCfg2, tapCfg2Double},
		{regTapThs6D, tapThs6DDefault},
		{regIntDur2, intDur2Default},
		{regWakeUpThs, wakeUpThsDouble},
		{regMd1Cfg, md1CfgRouteTap},
	}
	for _, w := range writes {
		if err := d.writeReg(w.reg, w.val); err != nil {
			return false, fmt.Errorf("imu6: configure reg %#x: %w", w.reg, err)
		}
	}
	return true, nil
}

// ReadTapSrc reads and clears the tap interrupt source register.
func (d *Device) ReadTapSrc() (byte, error) {
	src, err := d.readReg(regAllIntSrc, 1)
	if err != nil {
		return 0, fmt.Errorf("imu6: read tap src: %w", err)
	}
	return src[0], nil
}

// Int1Level reports the current level of the INT1 line.
func (d *Device) Int1Level() (bool, error) { return d.int1.Get(), nil }

// Int2Level reports the current level of the INT2 line.
func (d *Device) Int2Level() (bool, error) { return d.int2.Get(), nil }

// ReadMotionRaw bursts both the gyro and accelerometer output
// registers and widens the 16-bit two's-complement samples to int32.
func (d *Device) ReadMotionRaw() (peripheral.MotionRaw, error) {
	g, err := d.readReg(regOutXLG|autoIncrement, 6)
	if err != nil {
		return peripheral.MotionRaw{}, fmt.Errorf("imu6: read gyro: %w", err)
	}
	a, err := d.readReg(regOutXLXL|autoIncrement, 6)
	if err != nil {
		return peripheral.MotionRaw{}, fmt.Errorf("imu6: read accel: %w", err)
	}
	return peripheral.MotionRaw{
		GX: int16le(g[0], g[1]), GY: int16le(g[2], g[3]), GZ: int16le(g[4], g[5]),
		AX: int16le(a[0], a[1]), AY: int16le(a[2], a[3]), AZ: int16le(a[4], a[5]),
	}, nil
}

func int16le(lo, hi byte) int32 {
	return int32(int16(uint16(lo) | uint16(hi)<<8))
}
