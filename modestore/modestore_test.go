package modestore

import "testing"

func TestOpenEmptyDefaultsToZeroValue(t *testing.T) {
	s := Open(&MemBackend{})
	if s.DisplayMode() != ModeShanshui || s.RuntimeMode() != RuntimeNormal {
		t.Fatalf("got display=%d runtime=%d, want zero values", s.DisplayMode(), s.RuntimeMode())
	}
}

func TestSetDisplayModeRoundTripsThroughBackend(t *testing.T) {
	be := &MemBackend{}
	s := Open(be)
	if err := s.SetDisplayMode(ModeSuminagashi); err != nil {
		t.Fatal(err)
	}

	s2 := Open(be)
	if s2.DisplayMode() != ModeSuminagashi {
		t.Fatalf("got %d, want ModeSuminagashi", s2.DisplayMode())
	}
}

func TestNewerSequenceWinsOverStaleSlot(t *testing.T) {
	be := &MemBackend{}
	s := Open(be)
	s.SetDisplayMode(ModeSuminagashi)
	s.SetDisplayMode(ModeClock)
	s.SetRuntimeMode(RuntimeUpload)

	s2 := Open(be)
	if s2.DisplayMode() != ModeClock || s2.RuntimeMode() != RuntimeUpload {
		t.Fatalf("got display=%d runtime=%d, want ModeClock/RuntimeUpload", s2.DisplayMode(), s2.RuntimeMode())
	}
}

func TestCorruptSlotIsIgnored(t *testing.T) {
	be := &MemBackend{}
	s := Open(be)
	s.SetDisplayMode(ModeSuminagashi)

	// Corrupt the slot that was just written.
	corrupt := be.slots[(s.nextSlot+1)%2]
	corrupt[0] ^= 0xFF
	be.slots[(s.nextSlot+1)%2] = corrupt

	s2 := Open(be)
	if s2.DisplayMode() != ModeShanshui {
		t.Fatalf("corrupt only written slot should fall back to the zero-value default, got %d", s2.DisplayMode())
	}
}
