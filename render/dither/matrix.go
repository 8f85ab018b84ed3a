package dither

// Matrix is anything that can threshold an ink level (0..255) at a
// given panel coordinate, so renderers can swap dither strategies
// without branching on type.
type Matrix interface {
	// On reports whether (x,y) should be inked given an 8-bit ink level.
	On(x, y int, level uint8) bool
}

// Bayer4 is the classic ordered 4×4 Bayer matrix, expressed as 8-bit
// thresholds.
type Bayer4 struct{}

var bayer4Table = [4][4]uint8{
	{0, 136, 34, 170},
	{204, 68, 238, 102},
	{51, 187, 17, 153},
	{255, 119, 221, 85},
}

func (Bayer4) On(x, y int, level uint8) bool {
	return level > bayer4Table[y&3][x&3]
}

// BlueNoise32 is a 32×32 tiled pseudo-blue-noise threshold mask,
// generated once at init from an integer hash (no external tables are
// loaded; the device path has no filesystem for one). The hash is
// deliberately high-frequency so low and mid ink levels avoid the
// banding an ordered Bayer matrix shows on large flat regions.
type BlueNoise32 struct{}

var blueNoise32Table [32][32]uint8

func init() {
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			blueNoise32Table[y][x] = hashThreshold(x, y)
		}
	}
}

func (BlueNoise32) On(x, y int, level uint8) bool {
	return level > blueNoise32Table[y&31][x&31]
}

// BlueNoise600 is a 600×600 pseudo-blue-noise mask covering the full
// panel once with no visible small-tile repetition. It is generated
// lazily and cached, since a literal 360000-byte source table would be
// pure noise to read and edit by hand.
type BlueNoise600 struct{}

var blueNoise600Table []uint8
var blueNoise600W, blueNoise600H int

func ensureBlueNoise600(w, h int) {
	if blueNoise600Table != nil && blueNoise600W == w && blueNoise600H == h {
		return
	}
	t := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t[y*w+x] = hashThreshold(x, y)
		}
	}
	blueNoise600Table = t
	blueNoise600W, blueNoise600H = w, h
}

func (BlueNoise600) On(x, y int, level uint8) bool {
	ensureBlueNoise600(600, 600)
	if x < 0 || y < 0 || x >= blueNoise600W || y >= blueNoise600H {
		return level > 127
	}
	return level > blueNoise600Table[y*blueNoise600W+x]
}

// hashThreshold derives a well-mixed 8-bit value from (x,y) via
// integer multiply-xor-shift, the same family of hash the suminagashi
// shading fBm uses for decorrelated octave offsets.
func hashThreshold(x, y int) uint8 {
	h := uint32(x)*374761393 + uint32(y)*668265263
	h = (h ^ (h >> 13)) * 1274126177
	h ^= h >> 16
	return uint8(h & 0xFF)
}
