package main

import (
	"errors"

	"kakejiku.dev/peripheral"
)

// rtcStub answers TIMESET without a hardware RTC chip: no board in
// this pack carries one, so the wall clock simply is not adjusted and
// the command always reports success, matching how a device with no
// RTC degrades gracefully rather than failing every TIMESET.
type rtcStub struct{}

func (rtcStub) SetTime(unixEpoch int64, tzMinutes int) error { return nil }

// dummyRadio stands in for the Wi-Fi radio on both build targets: no
// pack example or original_source file implements an actual
// ESP32/cyw43-class STA driver, so every build reports an
// always-absent radio (never started, no candidates, no lease) rather
// than pretending to drive hardware that is not there. Recorded in
// DESIGN.md as the one peripheral.Radio capability this tree cannot
// ground on a real driver.
type dummyRadio struct{ started bool }

func (d *dummyRadio) Start() error    { d.started = true; return nil }
func (d *dummyRadio) Stop() error     { d.started = false; return nil }
func (d *dummyRadio) IsStarted() bool { return d.started }
func (d *dummyRadio) SetConfig(peripheral.RadioConfig) error { return nil }
func (d *dummyRadio) Connect() error    { return errors.New("platform: no radio hardware") }
func (d *dummyRadio) Disconnect() error { return nil }
func (d *dummyRadio) ScanWithConfig(peripheral.ScanConfig) ([]peripheral.Candidate, error) {
	return nil, nil
}
func (d *dummyRadio) Events() <-chan peripheral.RadioEvent {
	return make(chan peripheral.RadioEvent)
}
func (d *dummyRadio) DHCPLeased() (bool, error) { return false, nil }
