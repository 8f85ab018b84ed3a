// Package modestore persists the display/runtime mode pair across power
// cycles (SPEC_FULL.md §3 expansion). Two fixed-size slots are written
// alternately: on load, both slots are read and the one with the
// higher sequence number and a valid CRC wins, so a power loss
// mid-write never corrupts both copies — the same provisional-until-
// confirmed discipline the teacher's otp package applies to OTP rows.
package modestore

import (
	"encoding/binary"
	"errors"
)

// DisplayMode selects which renderer owns the panel.
type DisplayMode byte

const (
	ModeShanshui DisplayMode = iota
	ModeSuminagashi
	ModeClock
	ModeCount
)

// RuntimeMode is the device-wide normal/upload toggle.
type RuntimeMode byte

const (
	RuntimeNormal RuntimeMode = iota
	RuntimeUpload
)

// record is the on-disk layout: 1+1+4+2 = 8 bytes per slot.
type record struct {
	Display  DisplayMode
	Runtime  RuntimeMode
	Sequence uint32
}

const recordLen = 8

func (r record) encode() [recordLen]byte {
	var buf [recordLen]byte
	buf[0] = byte(r.Display)
	buf[1] = byte(r.Runtime)
	binary.LittleEndian.PutUint32(buf[2:6], r.Sequence)
	crc := crc16(buf[:6])
	binary.LittleEndian.PutUint16(buf[6:8], crc)
	return buf
}

func decodeRecord(buf []byte) (record, bool) {
	if len(buf) < recordLen {
		return record{}, false
	}
	crc := crc16(buf[:6])
	got := binary.LittleEndian.Uint16(buf[6:8])
	if crc != got {
		return record{}, false
	}
	return record{
		Display:  DisplayMode(buf[0]),
		Runtime:  RuntimeMode(buf[1]),
		Sequence: binary.LittleEndian.Uint32(buf[2:6]),
	}, true
}

// crc16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF): a small,
// dependency-free checksum appropriate for an 8-byte record — no
// third-party CRC library in the example pack covers this width, and
// the stdlib has no crc16 package (only crc32/crc64).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Backend is the minimal fixed-size-slot storage modestore needs: two
// addressable recordLen-byte slots. cmd/firmware's host platform maps
// slot 0/1 onto two small files; a RAM-backed implementation (used by
// cmd/firmware's TinyGo platform and by tests) just keeps two byte
// arrays.
type Backend interface {
	ReadSlot(slot int) ([]byte, error)
	WriteSlot(slot int, data []byte) error
}

// MemBackend is an in-process Backend, used by the TinyGo build's
// in-memory SD stand-in and in tests.
type MemBackend struct {
	slots [2][recordLen]byte
	valid [2]bool
}

func (m *MemBackend) ReadSlot(slot int) ([]byte, error) {
	if !m.valid[slot] {
		return nil, errSlotEmpty
	}
	buf := m.slots[slot]
	return buf[:], nil
}

func (m *MemBackend) WriteSlot(slot int, data []byte) error {
	copy(m.slots[slot][:], data)
	m.valid[slot] = true
	return nil
}

var errSlotEmpty = errors.New("modestore: slot empty")

// Store is the in-memory mode cache backed by a Backend. Reads only
// happen once, at Open; writes go through immediately since mode
// changes are rare (one per gesture, not per frame).
type Store struct {
	backend  Backend
	cur      record
	nextSlot int
}

// Open loads the current mode, falling back to the zero value
// (Shanshui/Normal) if neither slot decodes.
func Open(backend Backend) *Store {
	s := &Store{backend: backend}
	var best record
	haveBest := false
	for slot := 0; slot < 2; slot++ {
		buf, err := backend.ReadSlot(slot)
		if err != nil {
			continue
		}
		r, ok := decodeRecord(buf)
		if !ok {
			continue
		}
		if !haveBest || r.Sequence > best.Sequence {
			best = r
			haveBest = true
			s.nextSlot = (slot + 1) % 2
		}
	}
	if haveBest {
		s.cur = best
	}
	return s
}

func (s *Store) DisplayMode() DisplayMode { return s.cur.Display }
func (s *Store) RuntimeMode() RuntimeMode { return s.cur.Runtime }

// SetDisplayMode persists a new display mode, alternating slots.
func (s *Store) SetDisplayMode(m DisplayMode) error {
	s.cur.Display = m
	return s.persist()
}

// SetRuntimeMode persists a new runtime mode, alternating slots.
func (s *Store) SetRuntimeMode(m RuntimeMode) error {
	s.cur.Runtime = m
	return s.persist()
}

func (s *Store) persist() error {
	s.cur.Sequence++
	buf := s.cur.encode()
	if err := s.backend.WriteSlot(s.nextSlot, buf[:]); err != nil {
		return err
	}
	s.nextSlot = (s.nextSlot + 1) % 2
	return nil
}
