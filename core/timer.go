package core

import "sync/atomic"

// TimerFreq is the rate of the system clock. Both supported MCUs expose a
// free running 1MHz counter, so one tick is one microsecond.
const TimerFreq = 1000000

// systemTicks is written by the main loop and read from timer handlers.
var systemTicks uint32

// GetTime returns the clock as last published by SetTime.
func GetTime() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

// SetTime publishes the hardware counter. Tests drive the clock with it
// directly.
func SetTime(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// ProcessTimers runs every timer whose wake time has passed. Targets call it
// from the main loop after refreshing the clock with SetTime.
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
