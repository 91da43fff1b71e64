package core

import "tinygo.org/x/drivers"

// HAL bundles the hardware capabilities a board needs. Targets build one
// from their peripherals; tests build one from the sim package.
type HAL struct {
	// I2C reaches the PCA9505 expander cascade. Nil on shift-register-only
	// boards.
	I2C drivers.I2C

	// SPI clocks the HV shift registers and the boost converter pot.
	SPI drivers.SPI

	GPIO GPIODriver

	// Timer drives the blanking toggle.
	Timer TimerService

	// Delay busy-waits for the given number of microseconds.
	Delay func(us uint32)
}

func (h *HAL) delay(us uint32) {
	if h.Delay != nil {
		h.Delay(us)
	}
}

// TimerService is a periodic timer with a single attached handler, modelled
// on the classic AVR Timer1 interface.
type TimerService interface {
	// Initialize sets the period and starts the timer.
	Initialize(periodUs uint32)

	// SetPeriod changes the period without restarting the count.
	SetPeriod(periodUs uint32)

	Stop()

	// Restart begins a fresh period from now.
	Restart()

	AttachInterrupt(handler func())
	DetachInterrupt()
}
