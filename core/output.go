package core

// OutputController gates the boost converter and forces the channels all on
// or all off. Enabling does not bring back a pattern set before disabling.
type OutputController struct {
	gpio    GPIODriver
	shdn    GPIOPin
	hasShdn bool
	driver  ChannelDriver
	enabled bool
}

// NewOutputController returns a controller for driver. shdn is the boost
// converter shutdown line; pass hasShdn false on boards without one.
func NewOutputController(gpio GPIODriver, shdn GPIOPin, hasShdn bool, driver ChannelDriver) *OutputController {
	return &OutputController{gpio: gpio, shdn: shdn, hasShdn: hasShdn, driver: driver}
}

// SetOutputEnabled drives shutdown to the inverse of enabled, then every
// channel to enabled. A board with no channels yet only moves the shutdown
// line.
func (o *OutputController) SetOutputEnabled(enabled bool) error {
	if o.hasShdn {
		if err := o.gpio.SetPin(o.shdn, !enabled); err != nil {
			return err
		}
	}
	o.enabled = enabled
	return o.Reapply()
}

// Reapply writes the all-on or all-off mask for the current setting.
func (o *OutputController) Reapply() error {
	err := o.driver.SetChannels(FilledBitmap(o.driver.ChannelCount(), o.enabled))
	if err == ErrNotReady {
		return nil
	}
	return err
}

// Enabled returns the current setting.
func (o *OutputController) Enabled() bool {
	return o.enabled
}
