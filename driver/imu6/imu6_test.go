package imu6

import (
	"errors"
	"testing"
)

type fakeBus struct {
	regs map[byte][]byte
	err  error
}

func (f *fakeBus) Tx(_ uint16, w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	reg := w[0] &^ autoIncrement
	if len(w) == 2 {
		f.regs[reg] = []byte{w[1]}
		return nil
	}
	data, ok := f.regs[reg]
	if !ok {
		return errors.New("imu6 test: unmodeled register")
	}
	copy(r, data)
	return nil
}

type fakePin struct{ level bool }

func (p fakePin) Get() bool { return p.level }

func newFakeBus() *fakeBus {
	return &fakeBus{regs: map[byte][]byte{
		regWhoAmI:    {expectWhoAmI},
		regOutXLG:    {0, 0, 0, 0, 0, 0},
		regOutXLXL:   {0, 0, 0, 0, 0, 0},
		regAllIntSrc: {0},
	}}
}

func TestInitDoubleTapSucceeds(t *testing.T) {
	d := New(newFakeBus(), fakePin{}, fakePin{})
	ok, err := d.InitDoubleTap()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected InitDoubleTap to succeed")
	}
}

func TestInitDoubleTapReportsWhoAmIMismatch(t *testing.T) {
	bus := newFakeBus()
	bus.regs[regWhoAmI] = []byte{0x00}
	d := New(bus, fakePin{}, fakePin{})
	ok, err := d.InitDoubleTap()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected WHO_AM_I mismatch to report false")
	}
}

func TestInitDoubleTapPropagatesBusError(t *testing.T) {
	bus := &fakeBus{regs: map[byte][]byte{}, err: errors.New("i2c nack")}
	d := New(bus, fakePin{}, fakePin{})
	if _, err := d.InitDoubleTap(); err == nil {
		t.Fatal("expected bus error")
	}
}

func TestReadTapSrc(t *testing.T) {
	bus := newFakeBus()
	bus.regs[regAllIntSrc] = []byte{0x40}
	d := New(bus, fakePin{}, fakePin{})
	got, err := d.ReadTapSrc()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x40 {
		t.Fatalf("got %#x, want 0x40", got)
	}
}

func TestIntLevelsReadPins(t *testing.T) {
	d := New(newFakeBus(), fakePin{level: true}, fakePin{level: false})
	l1, err := d.Int1Level()
	if err != nil || !l1 {
		t.Fatalf("Int1Level got %v, %v", l1, err)
	}
	l2, err := d.Int2Level()
	if err != nil || l2 {
		t.Fatalf("Int2Level got %v, %v", l2, err)
	}
}

func TestReadMotionRawDecodesTwosComplement(t *testing.T) {
	bus := newFakeBus()
	// -1 as int16 little-endian is 0xff, 0xff; 256 is 0x00, 0x01.
	bus.regs[regOutXLG] = []byte{0xff, 0xff, 0x00, 0x01, 0, 0}
	bus.regs[regOutXLXL] = []byte{0, 0, 0xff, 0xff, 0x00, 0x01}
	d := New(bus, fakePin{}, fakePin{})
	m, err := d.ReadMotionRaw()
	if err != nil {
		t.Fatal(err)
	}
	if m.GX != -1 || m.GY != 256 || m.GZ != 0 {
		t.Fatalf("got gyro %+v", m)
	}
	if m.AX != 0 || m.AY != -1 || m.AZ != 256 {
		t.Fatalf("got accel %+v", m)
	}
}
