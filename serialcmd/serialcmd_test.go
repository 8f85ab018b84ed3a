package serialcmd

import (
	"strings"
	"testing"
	"time"

	"kakejiku.dev/netctl"
	"kakejiku.dev/peripheral"
)

type fakeState struct {
	phase, base    string
	upload, assets bool
}

func (f fakeState) Phase() string       { return f.phase }
func (f fakeState) Base() string        { return f.base }
func (f fakeState) UploadEnabled() bool { return f.upload }
func (f fakeState) AssetsEnabled() bool { return f.assets }

type fakeRTC struct {
	err        error
	lastEpoch  int64
	lastTzMins int
}

func (f *fakeRTC) SetTime(epoch int64, tz int) error {
	f.lastEpoch, f.lastTzMins = epoch, tz
	return f.err
}

type fakeSD struct {
	stat    peripheral.SDFatStat
	statErr error
}

func (f *fakeSD) PowerOn() error                               { return nil }
func (f *fakeSD) PowerOff() error                              { return nil }
func (f *fakeSD) Probe() (peripheral.SDProbeResult, error)     { return peripheral.SDProbeResult{}, nil }
func (f *fakeSD) Begin(path string, expectedSize int64) error { return nil }
func (f *fakeSD) Chunk(data []byte) error                      { return nil }
func (f *fakeSD) Commit() error                                { return nil }
func (f *fakeSD) Abort() error                                 { return nil }
func (f *fakeSD) Mkdir(path string) error                      { return nil }
func (f *fakeSD) Remove(path string) error                     { return nil }
func (f *fakeSD) FatStat(path string) (peripheral.SDFatStat, error) {
	return f.stat, f.statErr
}

func newTestHandler() (*Handler, *fakeSD, *fakeRTC) {
	clock := new(testClock)
	policy := netctl.DefaultPolicy()
	ctrl := netctl.NewController(&noopRadio{}, clock, policy)
	cell := &netctl.TelemetryCell{}
	sd := &fakeSD{}
	rtc := &fakeRTC{}
	state := fakeState{phase: "idle", base: "shanshui", upload: true, assets: false}
	h := NewHandler(ctrl, cell, sd, state, rtc, func() bool { return true })
	return h, sd, rtc
}

// testClock is a minimal peripheral.Clock; netctl only needs it to
// stamp uptime, which these tests don't assert on.
type testClock struct{}

func (testClock) Now() time.Time                          { return time.Unix(1000, 0) }
func (testClock) ElapsedSince(t time.Time) time.Duration { return 0 }

// noopRadio satisfies peripheral.Radio without ever being driven; these
// tests exercise serialcmd's line dispatch, not netctl's ladder.
type noopRadio struct{}

func (noopRadio) Start() error                                        { return nil }
func (noopRadio) Stop() error                                         { return nil }
func (noopRadio) IsStarted() bool                                     { return false }
func (noopRadio) SetConfig(peripheral.RadioConfig) error              { return nil }
func (noopRadio) Connect(peripheral.Candidate, peripheral.AuthMethod, string) error {
	return nil
}
func (noopRadio) Disconnect() error                            { return nil }
func (noopRadio) ScanWithConfig(peripheral.ScanConfig) ([]peripheral.Candidate, error) {
	return nil, nil
}
func (noopRadio) Events() <-chan peripheral.RadioEvent { return make(chan peripheral.RadioEvent) }
func (noopRadio) DHCPLeased() (string, bool)           { return "", false }

func runLine(t *testing.T, h *Handler, line string) string {
	t.Helper()
	var out strings.Builder
	h.dispatch(line, &out)
	return strings.TrimRight(out.String(), "\r\n")
}

func TestPing(t *testing.T) {
	h, _, _ := newTestHandler()
	if got := runLine(t, h, "PING"); got != "PONG" {
		t.Fatalf("got %q, want PONG", got)
	}
}

func TestStateGet(t *testing.T) {
	h, _, _ := newTestHandler()
	got := runLine(t, h, "STATE GET")
	want := "STATE phase=idle base=shanshui upload=on assets=off"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTimesetRoundTrips(t *testing.T) {
	h, _, rtc := newTestHandler()
	got := runLine(t, h, "TIMESET 1700000000 -420")
	if got != "TIMESET OK" {
		t.Fatalf("got %q, want TIMESET OK", got)
	}
	if rtc.lastEpoch != 1700000000 || rtc.lastTzMins != -420 {
		t.Fatalf("RTC got epoch=%d tz=%d", rtc.lastEpoch, rtc.lastTzMins)
	}
}

func TestTimesetMalformedIsErr(t *testing.T) {
	h, _, _ := newTestHandler()
	got := runLine(t, h, "TIMESET notanumber 0")
	if got != "TIMESET ERR malformed" {
		t.Fatalf("got %q", got)
	}
}

func TestTimesetBusyMapsFromPeripheralError(t *testing.T) {
	h, _, rtc := newTestHandler()
	rtc.err = peripheral.NewError("settime", peripheral.KindBusy, nil)
	got := runLine(t, h, "TIMESET 1700000000 0")
	if got != "TIMESET BUSY" {
		t.Fatalf("got %q, want TIMESET BUSY", got)
	}
}

func TestNetcfgSetAcceptsValidJSON(t *testing.T) {
	h, _, _ := newTestHandler()
	got := runLine(t, h, `NETCFG SET {"ssid":"home","passphrase":"hunter2"}`)
	if got != "NET OK" {
		t.Fatalf("got %q, want NET OK", got)
	}
}

func TestNetcfgSetRejectsEmptySSID(t *testing.T) {
	h, _, _ := newTestHandler()
	got := runLine(t, h, `NETCFG SET {"ssid":""}`)
	if got != "NET ERR reason=empty-ssid" {
		t.Fatalf("got %q", got)
	}
}

func TestNetcfgSetRejectsMalformedJSON(t *testing.T) {
	h, _, _ := newTestHandler()
	got := runLine(t, h, "NETCFG SET not-json")
	if got != "NET ERR reason=malformed-json" {
		t.Fatalf("got %q", got)
	}
}

func TestNetStatusReflectsPublishedTelemetry(t *testing.T) {
	h, _, _ := newTestHandler()
	h.Telemetry.Store(netctl.Telemetry{
		State: netctl.Ready, Link: true, IPv4: "192.168.1.42", Listener: true,
		FailureClass: netctl.FailureNone, LadderStep: netctl.RetrySame, Attempt: 1, UptimeMs: 500,
	})
	got := runLine(t, h, "NET STATUS")
	want := "NET_STATUS state=Ready link=true ipv4=192.168.1.42 listener=true failure_class=none failure_code=0 ladder_step=RetrySame attempt=1 uptime_ms=500"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNetRecoverIsIdempotent(t *testing.T) {
	h, _, _ := newTestHandler()
	for i := 0; i < 2; i++ {
		if got := runLine(t, h, "NET RECOVER"); got != "NET OK" {
			t.Fatalf("iter %d: got %q", i, got)
		}
	}
}

func TestPSRAM(t *testing.T) {
	h, _, _ := newTestHandler()
	got := runLine(t, h, "PSRAM")
	if got != "PSRAM feature_enabled=true" {
		t.Fatalf("got %q", got)
	}
}

func TestSDFatStatAcksThenCompletes(t *testing.T) {
	h, sd, _ := newTestHandler()
	sd.stat = peripheral.SDFatStat{Exists: true, Size: 42}

	var out strings.Builder
	h.dispatch("SDFATSTAT /a/b.bin", &out)
	ack := strings.TrimRight(out.String(), "\r\n")
	if ack != "SDFATSTAT OK" {
		t.Fatalf("got ack %q, want SDFATSTAT OK", ack)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		h.sdMu.Lock()
		busy := h.sdBusy
		h.sdMu.Unlock()
		if !busy {
			break
		}
		time.Sleep(time.Millisecond)
	}
	h.sdMu.Lock()
	busy := h.sdBusy
	h.sdMu.Unlock()
	if busy {
		t.Fatalf("SD op never completed")
	}
}

func TestUnknownCommand(t *testing.T) {
	h, _, _ := newTestHandler()
	got := runLine(t, h, "BOGUS")
	if got != "ERR unknown command" {
		t.Fatalf("got %q", got)
	}
}
