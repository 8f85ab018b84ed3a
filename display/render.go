package display

import (
	"kakejiku.dev/modestore"
	"kakejiku.dev/render/clock"
	"kakejiku.dev/render/dither"
	"kakejiku.dev/render/shanshui"
	"kakejiku.dev/render/suminagashi"
)

// renderMatrix is the dither strategy the device path renders with: a
// 600×600 tiled blue-noise mask, chosen over Bayer/32×32 for the
// lowest visible periodicity on a full-panel render (render/dither's
// own doc comment).
var renderMatrix dither.Matrix = dither.BlueNoise600{}

// stripRenderer is the common shape suminagashi.Scene, shanshui.Scene
// and clock.Scene are adapted to, so the display task can drive
// whichever mode is active through one row-strip call.
type stripRenderer interface {
	renderStrip(dst *dither.Mono1, y0, y1 int)
}

type suminagashiStrip struct{ scene *suminagashi.Scene }

func (r suminagashiStrip) renderStrip(dst *dither.Mono1, y0, y1 int) {
	r.scene.RenderRowsMono1(dst, y0, y1, suminagashi.RGSS4, renderMatrix)
}

type shanshuiStrip struct{ scene *shanshui.Scene }

func (r shanshuiStrip) renderStrip(dst *dither.Mono1, y0, y1 int) {
	r.scene.RenderRowsMono1(dst, y0, y1, renderMatrix)
}

type clockStrip struct{ scene *clock.Scene }

func (r clockStrip) renderStrip(dst *dither.Mono1, y0, y1 int) {
	r.scene.RenderRowsMono1(dst, y0, y1)
}

// buildScene constructs the scene for mode, deriving a fresh render
// seed from currentSeed for the two seed-driven renderers; the clock
// face instead reads wall-clock time directly and needs no seed.
func (t *Task) buildScene(mode modestore.DisplayMode, nowMs int64) stripRenderer {
	w, h := t.disp.Width(), t.disp.Height()
	switch mode {
	case modestore.ModeSuminagashi:
		return suminagashiStrip{suminagashi.NewScene(t.currentSeed(nowMs), w, h, suminagashiEntropy)}
	case modestore.ModeClock:
		secondsOfDay := int(t.clock.Now().Unix() % 86400)
		return clockStrip{clock.NewScene(w, h, secondsOfDay)}
	default:
		return shanshuiStrip{shanshui.NewScene(t.currentSeed(nowMs), w, h, true)}
	}
}
