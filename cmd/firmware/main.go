// Command firmware is the device's entry point: it brings up the
// peripherals, wires them into the display task, the Wi-Fi recovery
// ladder and the upload/serial command surfaces, and runs the
// cooperative display loop forever. It follows cmd/controller/main.go's
// run()-returns-error shape, reworked from a camera/engraver UI loop
// to the display task's Step-per-iteration scheduler, and from that
// command's single Platform interface to one split across Display,
// Touch, IMU, SD, Radio and Clock capabilities.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"kakejiku.dev/display"
	"kakejiku.dev/modestore"
	"kakejiku.dev/netctl"
	"kakejiku.dev/serialcmd"
	"kakejiku.dev/upload"
)

// stepPeriod is the display task's loop cadence: how often Step is
// called even with no pending app event, bounding touch/IMU poll
// latency per spec.md §5.
const stepPeriod = 20 * time.Millisecond

// netCyclePeriod is how often the Wi-Fi recovery ladder's RunCycle is
// invoked; the ladder's own timers (scan budgets, connect timeouts,
// watchdog) are independent of this cadence, so this only needs to be
// fast enough that cycle-local book-keeping does not lag behind them.
const netCyclePeriod = 200 * time.Millisecond

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "firmware: %v\n", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	log.Println("firmware: starting")

	p, err := Init()
	if err != nil {
		return fmt.Errorf("firmware: init: %w", err)
	}
	defer p.Close()
	startDebugHooks(p)

	task := display.New(p.Display, p.Touch, p.IMU, p.Clock, p.Store)

	netCtl := netctl.NewController(p.Radio, p.Clock, netctl.DefaultPolicy())
	telemetry := new(netctl.TelemetryCell)

	uploadSrv := &upload.Server{SD: p.SD, Reboot: p.Reboot}
	state := &firmwareState{store: p.Store}
	handler := serialcmd.NewHandler(netCtl, telemetry, p.SD, state, p.RTC, p.PSRAMOK)

	go runNetLoop(netCtl, telemetry)
	go runUploadServer(uploadSrv)
	go func() {
		if err := handler.Serve(p.Serial, p.Serial); err != nil {
			log.Printf("firmware: serial command surface stopped: %v", err)
		}
	}()

	deadline := p.Clock.Now()
	for {
		deadline = deadline.Add(stepPeriod)
		task.Step(deadline)
	}
}

// runNetLoop drives the Wi-Fi recovery ladder's cooperative cycle and
// publishes each cycle's telemetry snapshot for the serial command
// surface to read. It is the only caller into netctl.Controller,
// matching the controller's documented single-owner-per-task
// discipline.
func runNetLoop(c *netctl.Controller, cell *netctl.TelemetryCell) {
	ticker := time.NewTicker(netCyclePeriod)
	defer ticker.Stop()
	for range ticker.C {
		cell.Store(c.RunCycle())
	}
}

func runUploadServer(s *upload.Server) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", upload.ListenPort))
	if err != nil {
		log.Printf("firmware: upload listener: %v", err)
		return
	}
	if err := s.Serve(ln); err != nil {
		log.Printf("firmware: upload server stopped: %v", err)
	}
}

// firmwareState adapts modestore.Store to serialcmd.StateProvider.
// Upload and asset delivery are both gated on the device being in
// upload mode (spec.md §4.I): normal mode keeps the radio and SD card
// free for the display task's own use.
type firmwareState struct {
	store *modestore.Store
}

func (s *firmwareState) Phase() string { return "running" }
func (s *firmwareState) Base() string  { return "/sd" }

func (s *firmwareState) UploadEnabled() bool {
	return s.store.RuntimeMode() == modestore.RuntimeUpload
}

func (s *firmwareState) AssetsEnabled() bool {
	return s.store.RuntimeMode() == modestore.RuntimeUpload
}
