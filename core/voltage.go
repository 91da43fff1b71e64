package core

import (
	"math"

	"tinygo.org/x/drivers"
)

// Boost converter feedback network. The MCP41050 sits in the lower leg of
// the divider, so the output voltage sets the pot resistance.
const (
	FeedbackR2   = 2e6
	FeedbackR1   = 10e3
	PotMax       = 50e3
	FeedbackVRef = 1.5

	// mcp41050WriteCmd writes the wiper of pot 0 and enables it.
	mcp41050WriteCmd = 0x1F
)

// PotResistance returns the wiper resistance that makes the boost
// converter output v volts.
func PotResistance(v float32) float64 {
	return FeedbackR2/(2*float64(v)/FeedbackVRef-1) - FeedbackR1
}

// PotCode converts v to an MCP41050 wiper code. ok is false when the
// required resistance is outside (0, PotMax).
func PotCode(v float32) (code uint8, ok bool) {
	r := PotResistance(v)
	if !(r > 0 && r < PotMax) {
		return 0, false
	}
	return 255 - uint8(math.Round(r/PotMax*255)), true
}

// VoltageController programs the boost converter's digital pot. Changing
// the pot disturbs the HV latches, so every accepted change is followed by
// reapply.
type VoltageController struct {
	spi     drivers.SPI
	gpio    GPIODriver
	cs      GPIOPin
	reapply func() error

	voltage float32
	code    uint8
	valid   bool
}

// NewVoltageController returns a controller for the pot selected by cs.
// reapply is called after every pot write to restore the channel outputs.
func NewVoltageController(spi drivers.SPI, gpio GPIODriver, cs GPIOPin, reapply func() error) *VoltageController {
	return &VoltageController{spi: spi, gpio: gpio, cs: cs, reapply: reapply}
}

// SetVoltage sets the HV amplitude. Voltages the divider cannot reach are
// rejected without touching the bus.
func (vc *VoltageController) SetVoltage(v float32) error {
	code, ok := PotCode(v)
	if !ok {
		return ErrOutOfRange
	}
	if err := vc.transfer(mcp41050WriteCmd, code); err != nil {
		return err
	}
	vc.voltage = v
	vc.code = code
	vc.valid = true

	if vc.reapply != nil {
		return vc.reapply()
	}
	return nil
}

// WriteRawCode sends a bare code byte to a boost converter that takes no
// command prefix, as on the HV507 board.
func (vc *VoltageController) WriteRawCode(code uint8) error {
	if err := vc.transfer(code); err != nil {
		return err
	}
	vc.code = code
	vc.valid = false
	return nil
}

func (vc *VoltageController) transfer(data ...byte) error {
	if err := vc.gpio.SetPin(vc.cs, false); err != nil {
		return err
	}
	var xferErr error
	for _, b := range data {
		if _, xferErr = vc.spi.Transfer(b); xferErr != nil {
			break
		}
	}
	if err := vc.gpio.SetPin(vc.cs, true); err != nil && xferErr == nil {
		xferErr = err
	}
	return xferErr
}

// Voltage returns the last accepted voltage.
func (vc *VoltageController) Voltage() float32 {
	return vc.voltage
}

// Code returns the wiper code last written.
func (vc *VoltageController) Code() uint8 {
	return vc.code
}

// Valid reports whether Voltage was set through SetVoltage.
func (vc *VoltageController) Valid() bool {
	return vc.valid
}
