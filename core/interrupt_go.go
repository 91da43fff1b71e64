//go:build !tinygo

package core

// State stands in for the saved interrupt mask on hosted builds, where the
// timer list is only touched from one goroutine.
type State uintptr

func disableInterrupts() State {
	return 0
}

func restoreInterrupts(State) {}
