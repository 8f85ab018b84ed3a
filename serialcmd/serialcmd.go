// Package serialcmd implements the line-oriented host command surface
// (spec.md §6): PING, STATE GET, TIMESET, NETCFG SET, the NET
// START/STATUS/RECOVER triad, PSRAM and SDFATSTAT. It is transport-
// agnostic — it reads and writes an io.Reader/io.Writer pair, the same
// split driver/mjolnir's Engrave uses for its command protocol, rather
// than owning a concrete UART or serial.Port. cmd/firmware supplies the
// concrete transport: github.com/tarm/serial on the Linux host build,
// machine.UART0 under TinyGo.
package serialcmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"kakejiku.dev/netctl"
	"kakejiku.dev/peripheral"
)

// StateProvider answers STATE GET. The display task owns these values;
// Handler only reads them.
type StateProvider interface {
	Phase() string
	Base() string
	UploadEnabled() bool
	AssetsEnabled() bool
}

// RTC sets the device's wall-clock time from TIMESET. It is separate
// from peripheral.Clock, which is monotonic-only and has no setter.
type RTC interface {
	SetTime(unixEpoch int64, tzMinutes int) error
}

// netConfig is the JSON payload of NETCFG SET.
type netConfig struct {
	SSID       string `json:"ssid"`
	Passphrase string `json:"passphrase"`
}

// Handler dispatches one line at a time against the Wi-Fi controller,
// the SD card and the display task's published state.
type Handler struct {
	Net       *netctl.Controller
	Telemetry *netctl.TelemetryCell
	SD        peripheral.SD
	State     StateProvider
	RTC       RTC
	PSRAM     func() bool

	sdMu       sync.Mutex
	sdBusy     bool
	nextWaitID uint32
}

// NewHandler constructs a Handler. PSRAM may be nil, in which case PSRAM
// always reports feature_enabled=false.
func NewHandler(net *netctl.Controller, telemetry *netctl.TelemetryCell, sd peripheral.SD, state StateProvider, rtc RTC, psram func() bool) *Handler {
	return &Handler{Net: net, Telemetry: telemetry, SD: sd, State: state, RTC: rtc, PSRAM: psram}
}

// Serve reads newline-terminated commands from r and writes CRLF-terminated
// responses to w until r is exhausted or returns an error.
func (h *Handler) Serve(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		h.dispatch(line, w)
	}
	return sc.Err()
}

func (h *Handler) dispatch(line string, w io.Writer) {
	switch {
	case line == "PING":
		writeLine(w, "PONG")
	case line == "STATE GET":
		h.handleStateGet(w)
	case strings.HasPrefix(line, "TIMESET "):
		h.handleTimeset(strings.TrimPrefix(line, "TIMESET "), w)
	case strings.HasPrefix(line, "NETCFG SET "):
		h.handleNetcfgSet(strings.TrimPrefix(line, "NETCFG SET "), w)
	case line == "NET START":
		h.Net.SetUploadEnabled(true)
		writeLine(w, "NET OK")
	case line == "NET STATUS":
		h.handleNetStatus(w)
	case line == "NET RECOVER":
		h.Net.Recover()
		writeLine(w, "NET OK")
	case line == "PSRAM":
		h.handlePSRAM(w)
	case strings.HasPrefix(line, "SDFATSTAT "):
		h.handleSDFatStat(strings.TrimPrefix(line, "SDFATSTAT "), w)
	default:
		writeLine(w, "ERR unknown command")
	}
}

func (h *Handler) handleStateGet(w io.Writer) {
	onoff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	writeLine(w, fmt.Sprintf("STATE phase=%s base=%s upload=%s assets=%s",
		h.State.Phase(), h.State.Base(), onoff(h.State.UploadEnabled()), onoff(h.State.AssetsEnabled())))
}

func (h *Handler) handleTimeset(args string, w io.Writer) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		writeLine(w, "TIMESET ERR malformed")
		return
	}
	epoch, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeLine(w, "TIMESET ERR malformed")
		return
	}
	tz, err := strconv.Atoi(parts[1])
	if err != nil {
		writeLine(w, "TIMESET ERR malformed")
		return
	}
	if h.RTC == nil {
		writeLine(w, "TIMESET ERR no-rtc")
		return
	}
	if err := h.RTC.SetTime(epoch, tz); err != nil {
		if errIsBusy(err) {
			writeLine(w, "TIMESET BUSY")
			return
		}
		writeLine(w, "TIMESET ERR "+err.Error())
		return
	}
	writeLine(w, "TIMESET OK")
}

func (h *Handler) handleNetcfgSet(jsonArg string, w io.Writer) {
	var cfg netConfig
	if err := json.Unmarshal([]byte(jsonArg), &cfg); err != nil {
		writeLine(w, "NET ERR reason=malformed-json")
		return
	}
	if cfg.SSID == "" {
		writeLine(w, "NET ERR reason=empty-ssid")
		return
	}
	h.Net.SetPendingConfig(netctl.ConfigUpdate{SSID: cfg.SSID, Passphrase: cfg.Passphrase})
	writeLine(w, "NET OK")
}

func (h *Handler) handleNetStatus(w io.Writer) {
	t := h.Telemetry.Load()
	writeLine(w, fmt.Sprintf(
		"NET_STATUS state=%s link=%t ipv4=%s listener=%t failure_class=%s failure_code=%d ladder_step=%s attempt=%d uptime_ms=%d",
		t.State, t.Link, t.IPv4, t.Listener, t.FailureClass, t.FailureCode, t.LadderStep, t.Attempt, t.UptimeMs))
}

func (h *Handler) handlePSRAM(w io.Writer) {
	enabled := false
	if h.PSRAM != nil {
		enabled = h.PSRAM()
	}
	writeLine(w, fmt.Sprintf("PSRAM feature_enabled=%t", enabled))
}

// handleSDFatStat acks immediately (OK/BUSY/ERR) then, on OK, calls
// FatStat on the SD capability in a background goroutine and writes an
// SDWAIT DONE completion line once it returns. Only one lookup runs at
// a time; a request while one is in flight gets BUSY.
func (h *Handler) handleSDFatStat(path string, w io.Writer) {
	path = strings.TrimSpace(path)
	if path == "" {
		writeLine(w, "SDFATSTAT ERR")
		return
	}

	h.sdMu.Lock()
	if h.sdBusy {
		h.sdMu.Unlock()
		writeLine(w, "SDFATSTAT BUSY")
		return
	}
	h.sdBusy = true
	h.sdMu.Unlock()

	id := atomic.AddUint32(&h.nextWaitID, 1)
	writeLine(w, "SDFATSTAT OK")

	go func() {
		defer func() {
			h.sdMu.Lock()
			h.sdBusy = false
			h.sdMu.Unlock()
		}()
		stat, err := h.SD.FatStat(path)
		status, code := "OK", 0
		if err != nil {
			status = "ERR"
			code = errCode(err)
		} else if !stat.Exists {
			status = "ERR"
			code = 1
		}
		writeLine(w, fmt.Sprintf("SDWAIT DONE id=%d status=%s code=%d", id, status, code))
	}()
}

func errIsBusy(err error) bool {
	var perr *peripheral.Error
	return errors.As(err, &perr) && perr.Kind == peripheral.KindBusy
}

func errCode(err error) int {
	var perr *peripheral.Error
	if errors.As(err, &perr) {
		return int(perr.Kind)
	}
	return -1
}

func writeLine(w io.Writer, s string) {
	io.WriteString(w, s+"\r\n")
}
