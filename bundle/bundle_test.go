package bundle

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildBundle assembles a minimal one-channel, two-strip SMBNDL1 blob
// with the given per-strip payloads already encoded (raw or RLE).
func buildBundle(t *testing.T, comp Compression, stripPayloads [][]byte, rawLens []uint32) []byte {
	t.Helper()
	const (
		width       = 4
		height      = 4
		stripHeight = 2
		stripCount  = 2
		chanCount   = 1
	)

	var buf bytes.Buffer
	buf.WriteString(Magic)
	writeU16 := func(v uint16) { binary.Write(&buf, binary.LittleEndian, v) }
	writeU16(1)              // version
	writeU16(headerFixedLen) // header_len
	writeU16(width)
	writeU16(height)
	writeU16(stripHeight)
	writeU16(stripCount)
	writeU16(chanCount)
	writeU16(0) // flags

	// Channel table: one channel.
	buf.WriteByte(byte(ChannelAlbedo))
	buf.WriteByte(8) // bpp
	buf.WriteByte(byte(comp))
	buf.WriteByte(0) // reserved

	headerAndChannelsLen := headerFixedLen + chanCount*channelDescLen
	stripIndexLen := stripCount * stripEntryLen
	payloadStart := headerAndChannelsLen + stripIndexLen

	offset := uint64(payloadStart)
	for i, p := range stripPayloads {
		binary.Write(&buf, binary.LittleEndian, offset)
		binary.Write(&buf, binary.LittleEndian, uint32(len(p)))
		binary.Write(&buf, binary.LittleEndian, rawLens[i])
		offset += uint64(len(p))
	}
	for _, p := range stripPayloads {
		buf.Write(p)
	}
	return buf.Bytes()
}

func TestOpenParsesHeaderAndChannelTable(t *testing.T) {
	data := buildBundle(t, CompNone, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}, []uint32{4, 4})
	b, err := Open(data)
	if err != nil {
		t.Fatal(err)
	}
	if b.Width != 4 || b.Height != 4 || b.StripHeight != 2 || b.StripCount != 2 {
		t.Fatalf("got dims %dx%d strip=%d count=%d", b.Width, b.Height, b.StripHeight, b.StripCount)
	}
	chans := b.Channels()
	if len(chans) != 1 || chans[0].ID != ChannelAlbedo || chans[0].Comp != CompNone {
		t.Fatalf("got channels %+v", chans)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	data := buildBundle(t, CompNone, [][]byte{{1, 2}, {3, 4}}, []uint32{2, 2})
	data[0] = 'X'
	if _, err := Open(data); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestOpenRejectsTruncatedData(t *testing.T) {
	data := buildBundle(t, CompNone, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}, []uint32{4, 4})
	if _, err := Open(data[:len(data)-2]); err == nil {
		t.Fatal("expected error for truncated strip payload")
	}
}

func TestStripRoundTripsUncompressed(t *testing.T) {
	data := buildBundle(t, CompNone, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}, []uint32{4, 4})
	b, err := Open(data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.Strip(0, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{5, 6, 7, 8}) {
		t.Fatalf("got %v, want {5,6,7,8}", got)
	}
}

func TestStripDecodesRLE(t *testing.T) {
	// (run=4,value=9) then (run=2,value=1) -> 9,9,9,9,1,1 (6 bytes raw).
	payload := []byte{4, 9, 2, 1}
	data := buildBundle(t, CompRLE, [][]byte{payload, payload}, []uint32{6, 6})
	b, err := Open(data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.Strip(0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{9, 9, 9, 9, 1, 1}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestChannelIndexLooksUpByID(t *testing.T) {
	data := buildBundle(t, CompNone, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}, []uint32{4, 4})
	b, err := Open(data)
	if err != nil {
		t.Fatal(err)
	}
	idx, ok := b.ChannelIndex(ChannelAlbedo)
	if !ok || idx != 0 {
		t.Fatalf("got idx=%d ok=%v", idx, ok)
	}
	if _, ok := b.ChannelIndex(ChannelDepth); ok {
		t.Fatal("expected ChannelDepth to be absent")
	}
}
