//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"hvboard/core"
)

// The RP2040 timer is a free-running 64-bit microsecond counter.
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C // raw low word, no latching
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// InitClock registers the MCU name. The counter needs no setup.
func InitClock() {
	core.RegisterConstant("MCU", "rp2040")
}

// UpdateSystemTime copies the hardware counter into the core clock.
// The counter already runs at core.TimerFreq.
func UpdateSystemTime() {
	core.SetTime(timerRAWL.Get())
}
