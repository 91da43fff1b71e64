package core

import "tinygo.org/x/drivers"

// ChannelDriver pushes a channel bitmap to the switching hardware.
type ChannelDriver interface {
	// SetChannels validates b against the channel count and drives it to
	// the hardware. A rejected bitmap leaves both memory and hardware alone.
	SetChannels(b ChannelBitmap) error

	// Channels returns the current channel state. On topologies with a read
	// path this talks to the bus and may fail.
	Channels() (ChannelBitmap, error)

	ChannelCount() uint16
}

// ShiftRegisterDriver streams the bitmap into a daisy chain of HV507 or
// HV513 shift registers. The latch line is held low while the bytes shift
// in and raised to commit them to the outputs.
type ShiftRegisterDriver struct {
	spi   drivers.SPI
	gpio  GPIODriver
	latch GPIOPin
	store *ChannelStore
}

// NewShiftRegisterDriver returns a driver for a chain of count channels.
// The SPI bus must be configured MSB first.
func NewShiftRegisterDriver(spi drivers.SPI, gpio GPIODriver, latch GPIOPin, store *ChannelStore) *ShiftRegisterDriver {
	return &ShiftRegisterDriver{spi: spi, gpio: gpio, latch: latch, store: store}
}

func (d *ShiftRegisterDriver) ChannelCount() uint16 {
	return d.store.Count()
}

func (d *ShiftRegisterDriver) SetChannels(b ChannelBitmap) error {
	if len(b) != d.store.Len() {
		return ErrBadLength
	}
	if err := d.gpio.SetPin(d.latch, false); err != nil {
		return err
	}
	d.store.store(b)
	for _, v := range b {
		if _, err := d.spi.Transfer(v); err != nil {
			// Leave the latch low so the partial pattern is never committed.
			return err
		}
	}
	return d.gpio.SetPin(d.latch, true)
}

// Channels returns the cached bitmap; shift registers cannot be read back.
func (d *ShiftRegisterDriver) Channels() (ChannelBitmap, error) {
	return d.store.Bitmap(), nil
}

// ExpanderDriver writes the bitmap to a cascade of PCA9505 expanders, five
// bytes per chip. The board inverts the expander outputs, so every byte goes
// out complemented.
type ExpanderDriver struct {
	bus    drivers.I2C
	base   uint8
	store  *ChannelStore
	delay  func(us uint32)
	verify bool
}

// ExpanderSettleUs is the pause between register writes at 400kHz.
const ExpanderSettleUs = 200

// NewExpanderDriver returns a driver for the cascade at base. The channel
// count comes from store and is set by discovery.
func NewExpanderDriver(bus drivers.I2C, base uint8, store *ChannelStore, delay func(us uint32)) *ExpanderDriver {
	return &ExpanderDriver{bus: bus, base: base, store: store, delay: delay}
}

// SetVerify turns on read-back of every port after a write.
func (d *ExpanderDriver) SetVerify(verify bool) {
	d.verify = verify
}

// SetBase moves the driver to a new cascade base address.
func (d *ExpanderDriver) SetBase(base uint8) {
	d.base = base
}

func (d *ExpanderDriver) ChannelCount() uint16 {
	return d.store.Count()
}

func (d *ExpanderDriver) chips() uint8 {
	return uint8(d.store.Count() / ChannelsPerChip)
}

func (d *ExpanderDriver) SetChannels(b ChannelBitmap) error {
	if d.store.Count() == 0 {
		return ErrNotReady
	}
	if len(b) != d.store.Len() {
		return ErrBadLength
	}
	d.store.store(b)

	// Writes are not acknowledged; a lost write only shows up with verify.
	var i int
	for chip := uint8(0); chip < d.chips(); chip++ {
		for port := byte(0); port < PCA9505Ports; port++ {
			_ = writeRegister(d.bus, d.base+chip, PCA9505OutputPort+port, ^b[i])
			i++
			if d.delay != nil {
				d.delay(ExpanderSettleUs)
			}
		}
	}

	if !d.verify {
		return nil
	}
	got, err := d.read()
	if err != nil {
		return err
	}
	if !got.Equal(b) {
		return ErrVerify
	}
	return nil
}

// Channels reads every output port back from the cascade. Any port that
// does not acknowledge fails the whole read.
func (d *ExpanderDriver) Channels() (ChannelBitmap, error) {
	if d.store.Count() == 0 {
		return nil, ErrNotReady
	}
	b, err := d.read()
	if err != nil {
		return nil, err
	}
	d.store.store(b)
	return b, nil
}

func (d *ExpanderDriver) read() (ChannelBitmap, error) {
	b := NewChannelBitmap(d.store.Count())
	var reg [1]byte
	var val [1]byte
	var i int
	for chip := uint8(0); chip < d.chips(); chip++ {
		for port := byte(0); port < PCA9505Ports; port++ {
			reg[0] = PCA9505OutputPort + port
			if err := d.bus.Tx(uint16(d.base+chip), reg[:], val[:]); err != nil {
				return nil, ErrNoAck
			}
			b[i] = ^val[0]
			i++
		}
	}
	return b, nil
}
