package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin level. For outputs this is the driven level.
	GetPin(pin GPIOPin) (bool, error)
}

// configureOutputs puts every pin in pins into output mode, stopping at the
// first failure.
func configureOutputs(gpio GPIODriver, pins ...GPIOPin) error {
	for _, pin := range pins {
		if err := gpio.ConfigureOutput(pin); err != nil {
			return err
		}
	}
	return nil
}
