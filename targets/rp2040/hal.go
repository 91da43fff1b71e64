//go:build rp2040

package main

import (
	"machine"
	"time"

	"hvboard/core"
)

// Bus pins. The expander cascade sits on I2C0; the HV513 shift register
// and the pot share SPI0.
const (
	i2cSDA  = machine.GPIO20
	i2cSCL  = machine.GPIO21
	spiSCK  = machine.GPIO18
	spiMOSI = machine.GPIO19
	spiMISO = machine.GPIO16

	i2cFrequency = 400 * machine.KHz
	spiFrequency = 1 * machine.MHz
)

// pinGPIO drives core pins as machine pins.
type pinGPIO struct{}

func (pinGPIO) ConfigureOutput(pin core.GPIOPin) error {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}

func (pinGPIO) SetPin(pin core.GPIOPin, value bool) error {
	machine.Pin(pin).Set(value)
	return nil
}

func (pinGPIO) GetPin(pin core.GPIOPin) (bool, error) {
	return machine.Pin(pin).Get(), nil
}

func delayUs(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// buildHAL configures the buses variant needs. The HV507 data stream is
// clocked by PIO, which also carries the boost pot writes on the same
// lines.
func buildHAL(variant core.Variant, timer core.TimerService) (core.HAL, error) {
	hal := core.HAL{
		GPIO:  pinGPIO{},
		Timer: timer,
		Delay: delayUs,
	}

	if variant == core.VariantHV507 {
		spi, err := newPIOShiftOut(spiSCK, spiMOSI)
		if err != nil {
			return hal, err
		}
		hal.SPI = spi
	} else {
		err := machine.SPI0.Configure(machine.SPIConfig{
			Frequency: spiFrequency,
			SCK:       spiSCK,
			SDO:       spiMOSI,
			SDI:       spiMISO,
			Mode:      0,
		})
		if err != nil {
			return hal, err
		}
		hal.SPI = machine.SPI0
	}

	if variant == core.VariantHV513Expander {
		err := machine.I2C0.Configure(machine.I2CConfig{
			Frequency: i2cFrequency,
			SDA:       i2cSDA,
			SCL:       i2cSCL,
		})
		if err != nil {
			return hal, err
		}
		hal.I2C = machine.I2C0
	}
	return hal, nil
}
