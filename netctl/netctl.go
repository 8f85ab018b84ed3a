// Package netctl implements the Wi-Fi recovery-ladder state machine: a
// single long-running task driving scan → associate → DHCP →
// listener-ready against an unreliable radio stack, with bounded
// attempt budgets and deterministic escalation (spec.md §4.H).
package netctl

import (
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"kakejiku.dev/peripheral"
)

// NetState is the top-level connection state.
type NetState int

const (
	Idle NetState = iota
	Starting
	Scanning
	Associating
	DhcpWait
	ListenerWait
	Ready
	Recovering
	Failed
)

func (s NetState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case Scanning:
		return "Scanning"
	case Associating:
		return "Associating"
	case DhcpWait:
		return "DhcpWait"
	case ListenerWait:
		return "ListenerWait"
	case Ready:
		return "Ready"
	case Recovering:
		return "Recovering"
	case Failed:
		return "Failed"
	default:
		return "?"
	}
}

// LadderStep is the escalation rung the controller is currently on.
type LadderStep int

const (
	RetrySame LadderStep = iota
	RotateCandidate
	RotateAuth
	FullScanReset
	DriverRestart
	TerminalFail
)

func (s LadderStep) String() string {
	switch s {
	case RetrySame:
		return "RetrySame"
	case RotateCandidate:
		return "RotateCandidate"
	case RotateAuth:
		return "RotateAuth"
	case FullScanReset:
		return "FullScanReset"
	case DriverRestart:
		return "DriverRestart"
	case TerminalFail:
		return "TerminalFail"
	default:
		return "?"
	}
}

// FailureClass classifies why the last connect attempt failed.
type FailureClass int

const (
	FailureNone FailureClass = iota
	FailureAuthReject
	FailureDiscoveryEmpty
	FailureConnectTimeout
	FailureDhcpNoIPv4
	FailureListenerNotReady
	FailurePostRecoverStall
	FailureTransport
	FailureUnknown
)

func (f FailureClass) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureAuthReject:
		return "auth_reject"
	case FailureDiscoveryEmpty:
		return "discovery_empty"
	case FailureConnectTimeout:
		return "connect_timeout"
	case FailureDhcpNoIPv4:
		return "dhcp_no_ipv4"
	case FailureListenerNotReady:
		return "listener_not_ready"
	case FailurePostRecoverStall:
		return "post_recover_stall"
	case FailureTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// disconnect reason codes, named per the DisconnReason* convention
// (grounded on wpasupplicant's const.go): only the ones netctl's
// classifier distinguishes are named here.
const (
	reasonUnknown               = 0
	reasonPreviousAuthInvalid   = 2 // spec.md's explicit "reason=2 other" case
	reasonDeauthSTALeaving      = 3
	reasonDisassocInactivity    = 4
	reason4WayHandshakeTimeout  = 15
	reasonIEEE8021XAuthFailed   = 23
)

func classifyReason(reason int) FailureClass {
	switch reason {
	case reasonPreviousAuthInvalid:
		return FailureUnknown // spec.md calls this "other"; see escalation streak handling
	case reason4WayHandshakeTimeout, reasonIEEE8021XAuthFailed:
		return FailureAuthReject
	case reasonDeauthSTALeaving, reasonDisassocInactivity:
		return FailureTransport
	default:
		return FailureUnknown
	}
}

// Policy is the runtime policy §3's Runtime policy data model, immutable
// within one connect attempt.
type Policy struct {
	ConnectTimeoutMs      int
	DhcpTimeoutMs         int
	PinnedDhcpTimeoutMs   int
	ListenerTimeoutMs     int
	ScanActiveMinMs       int
	ScanActiveMaxMs       int
	ScanPassiveMs         int
	RetrySameMax          int
	RotateCandidateMax    int
	RotateAuthMax         int
	FullScanResetMax      int
	DriverRestartMax      int
	CooldownMs            int
	DriverRestartBackoffMs int
}

// DefaultPolicy returns conservative defaults for field deployment.
func DefaultPolicy() Policy {
	return Policy{
		ConnectTimeoutMs:       8000,
		DhcpTimeoutMs:          10000,
		PinnedDhcpTimeoutMs:    6000,
		ListenerTimeoutMs:      4000,
		ScanActiveMinMs:        120,
		ScanActiveMaxMs:        400,
		ScanPassiveMs:          800,
		RetrySameMax:           3,
		RotateCandidateMax:     4,
		RotateAuthMax:          5,
		FullScanResetMax:       2,
		DriverRestartMax:       3,
		CooldownMs:             30000,
		DriverRestartBackoffMs: 2000,
	}
}

// watchdogTimeout is §9 OQ2's decision: after a hard recover, if no
// Ready arrives within this window, force another driver restart and
// queue an escalated auth sweep. Exposed as a named function (not a
// bare inline expression) so it can be retuned from field data without
// touching the ladder's control flow.
func watchdogTimeout(p Policy) time.Duration {
	scanBudget := time.Duration(p.ScanActiveMinMs+p.ScanActiveMaxMs+p.ScanPassiveMs) * time.Millisecond
	connectTimeout := time.Duration(p.ConnectTimeoutMs) * time.Millisecond
	candidate := connectTimeout + scanBudget + 6*time.Second
	floor := 2 * connectTimeout
	if candidate < floor {
		return floor
	}
	return candidate
}

// ConfigUpdate is a pending credential/policy change pulled at the
// start of a cycle.
type ConfigUpdate struct {
	SSID       string
	Passphrase string
	Policy     *Policy // nil leaves the current policy untouched
}

// Telemetry is the structured state record §4.H's observability
// paragraph calls for, CBOR-friendly like imuengine.Trace.
type Telemetry struct {
	State        NetState
	Link         bool
	IPv4         string
	Listener     bool
	FailureClass FailureClass
	FailureCode  int
	LadderStep   LadderStep
	Attempt      int
	UptimeMs     int64
}

const (
	candidateCacheMax                    = 8
	lastResortChannelSweepConcurrency    = 2
	wifiDhcpSameCandidateRestartStreak   = 2
	otherReasonHardRecoverStreak         = 3
	otherReasonDropBSSIDStreak           = 2
)

var lastResortChannelList = [4]int{8, 1, 6, 11}

var authSequence = [5]peripheral.AuthMethod{
	peripheral.AuthWPAWPA2,
	peripheral.AuthWPA2,
	peripheral.AuthWPA2WPA3,
	peripheral.AuthWPA3,
	peripheral.AuthWPA,
}

// Controller drives the recovery ladder. It owns the radio exclusively;
// no other task may call into peripheral.Radio while a Controller runs.
type Controller struct {
	radio peripheral.Radio
	clock peripheral.Clock
	policy Policy

	uploadEnabled bool
	pending       *ConfigUpdate
	ssid          string
	passphrase    string

	candidates  []peripheral.Candidate
	bssidPin    [6]byte
	hasBSSIDPin bool
	channelPin  int

	authIdx int

	state NetState
	step  LadderStep
	attempt int

	failure     FailureClass
	failureCode int

	sameCandidateDhcpStreak int
	otherReasonStreak       int

	hardRecoverDeadline int64 // ms, 0 = no watchdog armed
	startedAt           time.Time
}

// NewController constructs a Controller bound to one radio.
func NewController(radio peripheral.Radio, clock peripheral.Clock, policy Policy) *Controller {
	return &Controller{radio: radio, clock: clock, policy: policy, state: Idle, startedAt: clock.Now()}
}

// SetUploadEnabled toggles whether the ladder should be trying to
// connect at all; disabling it disconnects and idles the radio.
func (c *Controller) SetUploadEnabled(on bool) { c.uploadEnabled = on }

// SetPendingConfig queues a credential/policy update, applied at the
// start of the next cycle.
func (c *Controller) SetPendingConfig(u ConfigUpdate) { c.pending = &u }

// Recover is the host "NET RECOVER" command: idempotent, moves the
// controller into Recovering so the next cycle proceeds through its
// next ladder step rather than locking up.
func (c *Controller) Recover() {
	c.state = Recovering
}

func (c *Controller) uptimeMs(now time.Time) int64 {
	return now.Sub(c.startedAt).Milliseconds()
}

func (c *Controller) telemetry(link, listener bool, ipv4 string) Telemetry {
	return Telemetry{
		State: c.state, Link: link, IPv4: ipv4, Listener: listener,
		FailureClass: c.failure, FailureCode: c.failureCode,
		LadderStep: c.step, Attempt: c.attempt,
		UptimeMs: c.uptimeMs(c.clock.Now()),
	}
}

// RunCycle executes one full cycle of the ladder (§4.H steps 1-6) and
// returns the resulting telemetry. The caller's loop re-invokes
// RunCycle on its own period. A cycle blocks while it runs: the radio
// start backoff, the DHCP and listener waits and the lease-reacquire
// backoff all sleep inside RunCycle.
func (c *Controller) RunCycle() Telemetry {
	c.pullPendingConfig()
	c.checkWatchdog(c.clock.Now())

	if !c.uploadEnabled {
		c.radio.Disconnect()
		c.radio.Stop()
		c.state = Idle
		return c.telemetry(false, false, "")
	}

	if err := c.applyConfigIfNeeded(); err != nil {
		c.failure = FailureUnknown
		return c.telemetry(false, false, "")
	}

	if err := c.startRadioIfNeeded(); err != nil {
		c.state = Recovering
		c.failure = FailureUnknown
		return c.telemetry(false, false, "")
	}

	if c.channelPin == 0 && len(c.candidates) == 0 {
		c.state = Scanning
		c.runScanPhases()
	}

	c.state = Associating
	if err := c.attemptConnect(); err != nil {
		c.handleConnectFailure(err)
		return c.telemetry(false, false, "")
	}

	c.state = DhcpWait
	ipv4, ok := c.dhcpWaitLoop()
	if !ok {
		return c.telemetry(true, false, "")
	}

	c.state = ListenerWait
	if !c.listenerWaitLoop() {
		c.failure = FailureListenerNotReady
		c.escalate(RetrySame)
		return c.telemetry(true, false, ipv4)
	}

	c.state = Ready
	c.attempt = 0
	c.step = RetrySame
	c.failure = FailureNone
	c.sameCandidateDhcpStreak = 0
	c.otherReasonStreak = 0
	return c.telemetry(true, true, ipv4)
}

func (c *Controller) pullPendingConfig() {
	if c.pending == nil {
		return
	}
	c.ssid = c.pending.SSID
	c.passphrase = c.pending.Passphrase
	if c.pending.Policy != nil {
		c.policy = *c.pending.Policy
	}
	c.pending = nil
	c.candidates = nil
	c.channelPin = 0
	c.hasBSSIDPin = false
}

func (c *Controller) applyConfigIfNeeded() error {
	cfg := peripheral.RadioConfig{
		SSID: c.ssid, Passphrase: c.passphrase,
		Auth: authSequence[c.authIdx],
	}
	if c.hasBSSIDPin {
		cfg.HasBSSID = true
		cfg.BSSID = c.bssidPin
	}
	if c.channelPin != 0 {
		cfg.Channel = c.channelPin
	}
	return c.radio.SetConfig(cfg)
}

// startRadioIfNeeded starts the radio. On any Start error (the error is
// not inspected for NoMem) it sleeps the driver-restart backoff, floored
// at 5 s, before returning the error.
func (c *Controller) startRadioIfNeeded() error {
	if c.radio.IsStarted() {
		return nil
	}
	c.state = Starting
	if err := c.radio.Start(); err != nil {
		backoff := time.Duration(c.policy.DriverRestartBackoffMs) * time.Millisecond
		const noMemFloor = 5 * time.Second
		if backoff < noMemFloor {
			backoff = noMemFloor
		}
		time.Sleep(backoff)
		return err
	}
	return nil
}

// runScanPhases performs the three-phase scan (broad active → directed
// active with SSID → passive all-channel), capped at 8 candidates, and
// falls back to a four-channel last-resort sweep if nothing turns up.
func (c *Controller) runScanPhases() {
	phases := []peripheral.ScanConfig{
		{Duration: time.Duration(c.policy.ScanActiveMinMs) * time.Millisecond},
		{SSID: c.ssid, Duration: time.Duration(c.policy.ScanActiveMaxMs) * time.Millisecond},
		{Passive: true, Duration: time.Duration(c.policy.ScanPassiveMs) * time.Millisecond},
	}
	for _, cfg := range phases {
		found, err := c.radio.ScanWithConfig(cfg)
		if err != nil {
			continue
		}
		c.mergeCandidates(found)
		if len(c.candidates) >= candidateCacheMax {
			break
		}
	}
	if len(c.candidates) == 0 {
		c.lastResortChannelSweep()
	}
}

// lastResortChannelSweep probes the four common channels concurrently,
// bounded at lastResortChannelSweepConcurrency in-flight probes
// (spec.md §4.H.1's errgroup.SetLimit(2) wiring): the driver refuses
// concurrent full scans but single-channel passive probes are safe to
// overlap.
func (c *Controller) lastResortChannelSweep() {
	var g errgroup.Group
	g.SetLimit(lastResortChannelSweepConcurrency)
	results := make([][]peripheral.Candidate, len(lastResortChannelList))
	for i, ch := range lastResortChannelList {
		i, ch := i, ch
		g.Go(func() error {
			found, err := c.radio.ScanWithConfig(peripheral.ScanConfig{
				Passive: true, Channel: ch,
				Duration: time.Duration(c.policy.ScanActiveMinMs) * time.Millisecond,
			})
			if err != nil {
				return nil // best-effort: a failed single-channel probe doesn't fail the sweep
			}
			results[i] = found
			return nil
		})
	}
	g.Wait()
	for _, found := range results {
		c.mergeCandidates(found)
	}
}

// mergeCandidates folds newly found candidates into the RSSI-ordered,
// BSSID-keyed cache, capped at candidateCacheMax.
func (c *Controller) mergeCandidates(found []peripheral.Candidate) {
	for _, cand := range found {
		replaced := false
		for i, existing := range c.candidates {
			if existing.BSSID == cand.BSSID {
				c.candidates[i] = cand
				replaced = true
				break
			}
		}
		if !replaced {
			c.candidates = append(c.candidates, cand)
		}
	}
	sortCandidatesByRSSIDesc(c.candidates)
	if len(c.candidates) > candidateCacheMax {
		c.candidates = c.candidates[:candidateCacheMax]
	}
}

func sortCandidatesByRSSIDesc(cs []peripheral.Candidate) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].RSSI > cs[j-1].RSSI; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

func (c *Controller) attemptConnect() error {
	if len(c.candidates) > 0 && c.attempt < len(c.candidates) {
		top := c.candidates[0]
		c.bssidPin = top.BSSID
		c.hasBSSIDPin = true
		c.channelPin = top.Channel
	}
	timeout := time.Duration(c.policy.ConnectTimeoutMs) * time.Millisecond
	return peripheral.WithTimeoutErr(timeout, c.radio.Connect)
}

func (c *Controller) handleConnectFailure(err error) {
	reason := c.lastDisconnectReason()
	class := classifyReason(reason)
	c.failure = class
	c.failureCode = reason

	if reason == reasonPreviousAuthInvalid {
		c.otherReasonStreak++
		switch {
		case c.otherReasonStreak >= otherReasonHardRecoverStreak:
			c.hardRecover()
			return
		case c.otherReasonStreak >= otherReasonDropBSSIDStreak:
			c.hasBSSIDPin = false
			c.escalate(RotateAuth)
			return
		}
	} else {
		c.otherReasonStreak = 0
	}

	switch class {
	case FailureDiscoveryEmpty:
		c.escalate(FullScanReset)
	case FailureAuthReject:
		c.escalate(RotateAuth)
	default:
		c.escalate(RetrySame)
	}
}

func (c *Controller) lastDisconnectReason() int {
	select {
	case ev := <-c.radio.Events():
		if ev.Kind == peripheral.RadioEventDisconnected {
			return ev.Reason
		}
	default:
	}
	return reasonUnknown
}

// escalate advances the ladder step, bounded by the corresponding
// policy attempt budget; exhausting a rung's budget moves to the next.
func (c *Controller) escalate(preferred LadderStep) {
	c.radio.Disconnect() // always disconnect before any diagnostic scan
	c.attempt++
	step := preferred
	if step < c.step {
		step = c.step
	}
	budget := c.ladderBudget(step)
	if c.attempt > budget {
		step = c.nextStep(step)
		c.attempt = 1
	}
	c.step = step

	switch step {
	case RotateCandidate:
		c.rotateCandidate()
	case RotateAuth:
		c.authIdx = (c.authIdx + 1) % len(authSequence)
	case FullScanReset:
		c.candidates = nil
		c.channelPin = 0
		c.hasBSSIDPin = false
	case DriverRestart:
		c.radio.Stop()
	case TerminalFail:
		c.state = Failed
	}
}

func (c *Controller) ladderBudget(step LadderStep) int {
	switch step {
	case RetrySame:
		return c.policy.RetrySameMax
	case RotateCandidate:
		return c.policy.RotateCandidateMax
	case RotateAuth:
		return c.policy.RotateAuthMax
	case FullScanReset:
		return c.policy.FullScanResetMax
	case DriverRestart:
		return c.policy.DriverRestartMax
	default:
		return 1 << 30
	}
}

func (c *Controller) nextStep(step LadderStep) LadderStep {
	if step >= TerminalFail {
		return TerminalFail
	}
	return step + 1
}

func (c *Controller) rotateCandidate() {
	if len(c.candidates) == 0 {
		return
	}
	c.candidates = append(c.candidates[1:], c.candidates[0])
}

// hardRecover forces a driver restart plus full rescan, and arms the
// post-hard-recover watchdog.
func (c *Controller) hardRecover() {
	c.otherReasonStreak = 0
	c.radio.Disconnect()
	c.radio.Stop()
	c.candidates = nil
	c.channelPin = 0
	c.hasBSSIDPin = false
	c.step = DriverRestart
	c.attempt = 1
	c.state = Recovering
	c.hardRecoverDeadline = c.uptimeMs(c.clock.Now()) + watchdogTimeout(c.policy).Milliseconds()
}

// checkWatchdog is called by the cooperative loop's housekeeping tick;
// if armed and past its deadline with no Ready reached, it escalates
// once more and queues a five-attempt auth-sweep budget.
func (c *Controller) checkWatchdog(now time.Time) {
	if c.hardRecoverDeadline == 0 || c.state == Ready {
		return
	}
	if c.uptimeMs(now) < c.hardRecoverDeadline {
		return
	}
	c.hardRecoverDeadline = 0
	c.failure = FailurePostRecoverStall
	c.policy.RotateAuthMax = 5
	c.escalate(DriverRestart)
}

// dhcpWaitLoop polls DHCP lease presence. The first stall on a
// candidate is a lease-reacquire attempt (disconnect, short backoff,
// retry the same candidate on the next cycle); a streak of
// wifiDhcpSameCandidateRestartStreak stalls stops the radio, clears the
// candidates and escalates to FullScanReset. The candidate is not
// rotated here.
//
// It only polls DHCPLeased, deliberately not draining radio.Events: any
// event pending there belongs to the next phase (listenerWaitLoop) and
// must not be stolen by a select here.
func (c *Controller) dhcpWaitLoop() (string, bool) {
	timeout := time.Duration(c.policy.DhcpTimeoutMs) * time.Millisecond
	if c.hasBSSIDPin {
		timeout = time.Duration(c.policy.PinnedDhcpTimeoutMs) * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	poll := time.NewTicker(20 * time.Millisecond)
	defer poll.Stop()

	for time.Now().Before(deadline) {
		<-poll.C
		if leased, err := c.radio.DHCPLeased(); err == nil && leased {
			c.sameCandidateDhcpStreak = 0
			return "0.0.0.0", true // concrete lease address is a driver detail out of scope here
		}
	}

	c.sameCandidateDhcpStreak++
	if c.sameCandidateDhcpStreak >= wifiDhcpSameCandidateRestartStreak {
		c.sameCandidateDhcpStreak = 0
		c.failure = FailureDhcpNoIPv4
		c.radio.Disconnect()
		c.radio.Stop()
		c.candidates = nil
		c.escalate(FullScanReset)
		return "", false
	}
	// lease-reacquire: disconnect, short backoff, retry same candidate.
	c.radio.Disconnect()
	time.Sleep(200 * time.Millisecond)
	c.failure = FailureDhcpNoIPv4
	return "", false
}

// listenerWaitLoop waits for the upload HTTP listener to report ready.
func (c *Controller) listenerWaitLoop() bool {
	// The listener's own readiness is owned by the upload task; netctl
	// only bounds how long it waits before giving up and retrying.
	// A RadioEventConnected on radio.Events() counts as ready; the
	// upload package does not send one itself.
	timeout := time.Duration(c.policy.ListenerTimeoutMs) * time.Millisecond
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case ev := <-c.radio.Events():
			if ev.Kind == peripheral.RadioEventConnected {
				return true
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	return false
}

// TelemetryCell publishes the latest Telemetry snapshot from the task that
// owns the Controller (the Wi-Fi task) to readers on other tasks (the
// serial command surface's NET STATUS handler). It follows the same
// publish-before-read, release/acquire discipline as the process-wide
// atomic flags described in the concurrency model: writers call Store
// after every RunCycle, readers call Load without ever blocking the
// writer.
type TelemetryCell struct {
	v atomic.Value
}

// Store publishes a new snapshot. Safe to call from exactly one writer.
func (c *TelemetryCell) Store(t Telemetry) { c.v.Store(t) }

// Load returns the most recently published snapshot, or the zero
// Telemetry if Store has never been called.
func (c *TelemetryCell) Load() Telemetry {
	v := c.v.Load()
	if v == nil {
		return Telemetry{}
	}
	return v.(Telemetry)
}

