//go:build tinygo

package epd

import (
	"fmt"
	"machine"
	"time"

	"kakejiku.dev/peripheral"
)

// TinyPanel is the TinyGo counterpart to Panel: the same command set
// and framebuffer layout driven through machine.SPI and machine.Pin
// instead of periph.io, for builds that target a microcontroller
// rather than host Linux.
type TinyPanel struct {
	bus machine.SPI

	dc      machine.Pin
	rst     machine.Pin
	busy    machine.Pin
	frontlt machine.Pin
	pwrGood machine.Pin

	buf        [stride * height]byte
	brightness int
	litUp      bool
}

// OpenTinyGo configures the given SPI peripheral and pins and brings
// up the panel, mirroring Open's reset/setup/Clear sequence.
func OpenTinyGo(bus machine.SPI, dc, rst, busy, frontlt, pwrGood machine.Pin) (*TinyPanel, error) {
	if err := bus.Configure(machine.SPIConfig{Frequency: 4_000_000, Mode: 0}); err != nil {
		return nil, err
	}
	for _, p := range []machine.Pin{dc, rst, frontlt} {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	}
	for _, p := range []machine.Pin{busy, pwrGood} {
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	}

	p := &TinyPanel{bus: bus, dc: dc, rst: rst, busy: busy, frontlt: frontlt, pwrGood: pwrGood}
	p.reset()
	if err := p.setup(); err != nil {
		return nil, err
	}
	p.Clear()
	return p, nil
}

func (p *TinyPanel) reset() {
	p.rst.Low()
	time.Sleep(20 * time.Millisecond)
	p.rst.High()
	time.Sleep(20 * time.Millisecond)
	p.waitIdle(2 * time.Second)
}

func (p *TinyPanel) sendCommand(cmd byte, data ...byte) error {
	p.dc.Low()
	if err := p.bus.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	p.dc.High()
	return p.bus.Tx(data, nil)
}

func (p *TinyPanel) setup() error {
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

func (p *TinyPanel) waitIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !p.busy.Get() {
		if time.Now().After(deadline) {
			return fmt.Errorf("epd: panel busy timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (p *TinyPanel) Width() int  { return width }
func (p *TinyPanel) Height() int { return height }

func (p *TinyPanel) Clear() error {
	for i := range p.buf {
		p.buf[i] = 0xff
	}
	return nil
}

func (p *TinyPanel) SetPixelBW(x, y int, on bool) error {
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

func (p *TinyPanel) DisplayBW(full bool) error {
	if err := p.sendCommand(cmdDataStartTx1, p.buf[:]...); err != nil {
		return err
	}
	if err := p.sendCommand(cmdDisplayRefresh); err != nil {
		return err
	}
	return p.waitIdle(15 * time.Second)
}

func (p *TinyPanel) DisplayBWPartial(r peripheral.Rect, full bool) error {
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

func (p *TinyPanel) FrontlightOn() error {
	p.litUp = true
	p.frontlt.High()
	return nil
}

func (p *TinyPanel) FrontlightOff() error {
	p.litUp = false
	p.frontlt.Low()
	return nil
}

func (p *TinyPanel) SetBrightness(level int) error {
	if level < 0 || level > 63 {
		return fmt.Errorf("epd: brightness %d out of range", level)
	}
	p.brightness = level
	if level == 0 {
		return p.FrontlightOff()
	}
	return p.FrontlightOn()
}

func (p *TinyPanel) ReadPowerGood() (bool, error) {
	return p.pwrGood.Get(), nil
}
