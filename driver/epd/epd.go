//go:build !tinygo

// Package epd drives the 600x600 monochrome e-paper panel over SPI,
// satisfying peripheral.Display. It follows lcd/lcd.go's shape almost
// exactly: periph.io/x/host for spireg.Open, a GPIO command/data pin
// and a windowed partial-blit path, reworked from that driver's RGB565
// 16bpp push to a 1-bit-per-pixel panel with a busy line and a
// software frontlight instead of a backlight. Waveform timing (the
// controller's internal refresh sequencing) is out of scope; this
// driver only issues the command/data bytes a real panel needs to
// start a refresh and waits on the busy line for it to finish.
//
// TinyGo builds use TinyPanel in epd_tinygo.go instead, driven through
// machine.SPI and machine.Pin rather than periph.io.
package epd

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"kakejiku.dev/peripheral"
)

const (
	width  = 600
	height = 600
	stride = (width + 7) / 8

	cmdPanelSetting      = 0x00
	cmdPowerSetting      = 0x01
	cmdPowerOff          = 0x02
	cmdPowerOn           = 0x04
	cmdBoosterSoftStart  = 0x06
	cmdDeepSleep         = 0x07
	cmdDataStartTx1      = 0x10
	cmdDisplayRefresh    = 0x12
	cmdVcomDataInterval  = 0x50
	cmdPartialIn         = 0x91
	cmdPartialOut        = 0x92
	cmdPartialWindow     = 0x90
	cmdResolutionSetting = 0x61
)

// Panel is an SPI-attached e-paper display. Open wires up the SPI port
// and GPIO pins; the zero value is not usable.
type Panel struct {
	conn spi.Conn

	dc      gpio.PinOut
	rst     gpio.PinOut
	busy    gpio.PinIn
	frontlt gpio.PinOut
	pwrGood gpio.PinIn

	buf        [stride * height]byte
	brightness int
	litUp      bool
}

// Open initializes periph.io's host drivers, opens the given SPI port
// alias ("" picks the first one present) and wires the given GPIO pin
// names for DC, RST, BUSY, frontlight enable and power-good sense, then
// resets and configures the panel.
func Open(spiPort, dcPin, rstPin, busyPin, frontlightPin, pwrGoodPin string) (*Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: host init: %w", err)
	}
	p, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("epd: open spi: %w", err)
	}
	conn, err := p.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("epd: connect spi: %w", err)
	}

	panel := &Panel{conn: conn}
	if panel.dc, err = lookupOut(dcPin); err != nil {
		return nil, err
	}
	if panel.rst, err = lookupOut(rstPin); err != nil {
		return nil, err
	}
	if panel.busy, err = lookupIn(busyPin); err != nil {
		return nil, err
	}
	if panel.frontlt, err = lookupOut(frontlightPin); err != nil {
		return nil, err
	}
	if panel.pwrGood, err = lookupIn(pwrGoodPin); err != nil {
		return nil, err
	}

	if err := panel.reset(); err != nil {
		return nil, err
	}
	if err := panel.setup(); err != nil {
		return nil, err
	}
	panel.Clear()
	return panel, nil
}

func lookupOut(name string) (gpio.PinOut, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("epd: no such gpio pin %q", name)
	}
	return pin, nil
}

func lookupIn(name string) (gpio.PinIn, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("epd: no such gpio pin %q", name)
	}
	return pin, nil
}

func (p *Panel) reset() error {
	p.rst.Out(gpio.Low)
	time.Sleep(20 * time.Millisecond)
	p.rst.Out(gpio.High)
	time.Sleep(20 * time.Millisecond)
	return p.waitIdle(2 * time.Second)
}

// sendCommand writes cmd with DC low, then any data bytes with DC
// high, mirroring lcd.go's sendCommand.
func (p *Panel) sendCommand(cmd byte, data ...byte) error {
	p.dc.Out(gpio.Low)
	if err := p.conn.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("epd: write command %#x: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}
	p.dc.Out(gpio.High)
	if err := p.conn.Tx(data, nil); err != nil {
		return fmt.Errorf("epd: write data for command %#x: %w", cmd, err)
	}
	return nil
}

func (p *Panel) setup() error {
	cmds := []struct {
		cmd  byte
		data []byte
	}{
		{cmdPowerSetting, []byte{0x03, 0x00, 0x2b, 0x2b}},
		{cmdBoosterSoftStart, []byte{0x17, 0x17, 0x17}},
		{cmdPowerOn, nil},
		{cmdPanelSetting, []byte{0x0f}},
		{cmdResolutionSetting, []byte{byte(width >> 8), byte(width), byte(height >> 8), byte(height)}},
		{cmdVcomDataInterval, []byte{0x77}},
	}
	for _, c := range cmds {
		if err := p.sendCommand(c.cmd, c.data...); err != nil {
			return err
		}
	}
	return p.waitIdle(5 * time.Second)
}

func (p *Panel) waitIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for p.busy.Read() == gpio.Low {
		if time.Now().After(deadline) {
			return fmt.Errorf("epd: panel busy timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (p *Panel) Width() int  { return width }
func (p *Panel) Height() int { return height }

// Clear sets the framebuffer to all-white.
func (p *Panel) Clear() error {
	for i := range p.buf {
		p.buf[i] = 0xff
	}
	return nil
}

// SetPixelBW sets one framebuffer pixel; on means black.
func (p *Panel) SetPixelBW(x, y int, on bool) error {
	if x < 0 || x >= width || y < 0 || y >= height {
		return fmt.Errorf("epd: pixel (%d,%d) out of bounds", x, y)
	}
	idx := y*stride + x/8
	mask := byte(0x80 >> uint(x%8))
	if on {
		p.buf[idx] &^= mask
	} else {
		p.buf[idx] |= mask
	}
	return nil
}

// DisplayBW pushes the whole framebuffer and triggers a refresh. This
// driver does not model waveform timing: full is accepted but ignored,
// and the panel receives the same refresh command either way.
func (p *Panel) DisplayBW(full bool) error {
	if err := p.sendCommand(cmdDataStartTx1, p.buf[:]...); err != nil {
		return err
	}
	if err := p.sendCommand(cmdDisplayRefresh); err != nil {
		return err
	}
	return p.waitIdle(15 * time.Second)
}

// DisplayBWPartial pushes only the rows spanned by r, using the
// panel's partial-window command pair.
func (p *Panel) DisplayBWPartial(r peripheral.Rect, full bool) error {
	if r.Empty() {
		return nil
	}
	minY, maxY := clamp(r.MinY, 0, height), clamp(r.MaxY, 0, height)
	if minY >= maxY {
		return nil
	}
	if err := p.sendCommand(cmdPartialIn); err != nil {
		return err
	}
	window := []byte{
		0x00, 0x00, byte(width >> 8), byte(width - 1),
		byte(minY >> 8), byte(minY), byte(maxY >> 8), byte(maxY - 1),
		0x01,
	}
	if err := p.sendCommand(cmdPartialWindow, window...); err != nil {
		return err
	}
	rows := p.buf[minY*stride : maxY*stride]
	if err := p.sendCommand(cmdDataStartTx1, rows...); err != nil {
		return err
	}
	if err := p.sendCommand(cmdDisplayRefresh); err != nil {
		return err
	}
	if err := p.waitIdle(15 * time.Second); err != nil {
		return err
	}
	return p.sendCommand(cmdPartialOut)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FrontlightOn drives the frontlight enable pin high.
func (p *Panel) FrontlightOn() error {
	p.litUp = true
	return p.frontlt.Out(gpio.High)
}

// FrontlightOff drives the frontlight enable pin low.
func (p *Panel) FrontlightOff() error {
	p.litUp = false
	return p.frontlt.Out(gpio.Low)
}

// SetBrightness records the requested level. This panel's frontlight
// is a single GPIO enable line, not a PWM-dimmable one, so any level
// above 0 turns it on at full brightness and 0 turns it off. The level
// itself is stored on the Panel but nothing reads it back.
func (p *Panel) SetBrightness(level int) error {
	if level < 0 || level > 63 {
		return fmt.Errorf("epd: brightness %d out of range", level)
	}
	p.brightness = level
	if level == 0 {
		return p.FrontlightOff()
	}
	return p.FrontlightOn()
}

// ReadPowerGood reports whether the panel's power rail is sensed good.
func (p *Panel) ReadPowerGood() (bool, error) {
	return p.pwrGood.Read() == gpio.High, nil
}

// Framebuffer exposes the panel's current framebuffer as an
// image.Image for debug dumps, mirroring lcd.LCD.Framebuffer's role
// for cmd/controller's screenshot command.
func (p *Panel) Framebuffer() image.Image { return (*framebufferImage)(p) }

type framebufferImage Panel

func (f *framebufferImage) ColorModel() color.Model { return color.GrayModel }
func (f *framebufferImage) Bounds() image.Rectangle { return image.Rect(0, 0, width, height) }

func (f *framebufferImage) At(x, y int) color.Color {
	if x < 0 || x >= width || y < 0 || y >= height {
		return color.Gray{Y: 0xff}
	}
	idx := y*stride + x/8
	mask := byte(0x80 >> uint(x%8))
	if f.buf[idx]&mask == 0 {
		return color.Gray{Y: 0x00}
	}
	return color.Gray{Y: 0xff}
}
