//go:build linux && !tinygo

package main

import (
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/image/draw"
)

// screenshotDir is where SIGUSR1-triggered dumps land; overridable for
// a bench rig with a differently mounted SD card.
var screenshotDir = envOr("FIRMWARE_SCREENSHOT_DIR", "/mnt/sd/screenshots")

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// startDebugHooks arms a SIGUSR1 handler that dumps the current
// framebuffer to screenshotDir, the signal-driven analogue of
// cmd/controller/debug_rpi.go's serial "screenshot" command.
func startDebugHooks(p *Platform) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	go func() {
		n := 0
		for range sig {
			n++
			name := fmt.Sprintf("screenshot%d.png", n)
			if err := p.DumpScreenshot(screenshotDir, name); err != nil {
				log.Printf("debug: screenshot: %v", err)
			}
		}
	}()
}

// framebufferSource is satisfied by driver/epd's host Panel; kept
// narrow so this file doesn't need to import driver/epd directly.
type framebufferSource interface {
	Framebuffer() image.Image
}

// dumpScreenshot converts the panel's current framebuffer into a
// concrete *image.Gray with golang.org/x/image/draw and writes it as
// a PNG under dir, mirroring gui.dumpImage/cmd/controller/debug_rpi.go's
// screenshot path. draw.Draw does the format conversion; png.Encode
// does the rest, same split as the teacher's dumpImage.
func dumpScreenshot(dir string, dev framebufferSource, name string) error {
	src := dev.Framebuffer()
	dst := image.NewGray(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("debug: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("debug: create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, dst); err != nil {
		return fmt.Errorf("debug: encode %s: %w", path, err)
	}
	log.Printf("debug: wrote screenshot %s", path)
	return nil
}
