package core

// Variant selects the board topology.
type Variant uint8

const (
	// VariantHV507 is the 128 channel HV507 switching board.
	VariantHV507 Variant = iota
	// VariantHV513 is the 8 channel HV513 board.
	VariantHV513
	// VariantHV513Expander is an HV513 board driving a cascade of PCA9505
	// switching boards over I2C.
	VariantHV513Expander
)

var variantNames = [...]string{"hv507", "hv513", "hv513-expander"}

func (v Variant) String() string {
	if int(v) < len(variantNames) {
		return variantNames[v]
	}
	return "unknown"
}

// ParseVariant maps a name produced by String back to its Variant.
func ParseVariant(s string) (Variant, error) {
	for i, name := range variantNames {
		if name == s {
			return Variant(i), nil
		}
	}
	return 0, ErrUnsupported
}

// Pins is the control line assignment of a board.
type Pins struct {
	// Latch is LE on the HV507 and chip select on the HV513.
	Latch    GPIOPin
	Blank    GPIOPin
	Polarity GPIOPin
	PotCS    GPIOPin

	Dir    GPIOPin // HV507 data direction
	HasDir bool

	HiZ    GPIOPin // HV513 output high-impedance control
	HasHiZ bool

	Shutdown    GPIOPin // boost converter shutdown
	HasShutdown bool
}

// DefaultPins returns the pin map of the reference boards.
func DefaultPins(v Variant) Pins {
	if v == VariantHV507 {
		return Pins{
			Latch:    4,
			Blank:    8,
			Polarity: 9,
			PotCS:    3,
			Dir:      10,
			HasDir:   true,
		}
	}
	return Pins{
		Latch:       6,
		Blank:       4,
		Polarity:    5,
		PotCS:       3,
		HiZ:         7,
		HasHiZ:      true,
		Shutdown:    2,
		HasShutdown: true,
	}
}

const (
	hv507Channels = 128
	hv513Channels = 8

	hv507TimerUs = 1000
	hv513TimerUs = 50
)

// Board composes the controllers of one switching board.
type Board struct {
	variant Variant
	hal     HAL
	pins    Pins
	cfg     BoardConfig
	store   ConfigStore
	verify  bool

	channels *ChannelStore
	driver   ChannelDriver
	expander *ExpanderDriver

	Waveform *WaveformController
	Voltage  *VoltageController
	Output   *OutputController
}

// Option customises a Board.
type Option func(*Board)

// WithPins overrides the reference pin map.
func WithPins(p Pins) Option {
	return func(b *Board) { b.pins = p }
}

// WithConfigStore sets where the configuration is loaded from and saved to.
func WithConfigStore(s ConfigStore) Option {
	return func(b *Board) { b.store = s }
}

// WithVerify makes every expander write read back and compare.
func WithVerify(verify bool) Option {
	return func(b *Board) { b.verify = verify }
}

// NewBoard builds the controllers for variant on hal. Nothing touches the
// hardware until Begin.
func NewBoard(variant Variant, hal HAL, opts ...Option) (*Board, error) {
	b := &Board{
		variant: variant,
		hal:     hal,
		pins:    DefaultPins(variant),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.store == nil {
		b.store = &MemoryConfigStore{}
	}
	if hal.SPI == nil || hal.GPIO == nil || hal.Timer == nil {
		return nil, ErrUnsupported
	}
	if variant == VariantHV513Expander && hal.I2C == nil {
		return nil, ErrUnsupported
	}

	cfg, err := b.store.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		DebugPrintln("[board] config rejected, using defaults: " + err.Error())
		cfg = DefaultConfig()
	}
	b.cfg = cfg

	var reapply func() error
	switch variant {
	case VariantHV507:
		b.channels = NewChannelStore(hv507Channels)
		b.driver = NewShiftRegisterDriver(hal.SPI, hal.GPIO, b.pins.Latch, b.channels)
	case VariantHV513:
		b.channels = NewChannelStore(hv513Channels)
		b.driver = NewShiftRegisterDriver(hal.SPI, hal.GPIO, b.pins.Latch, b.channels)
	case VariantHV513Expander:
		b.channels = NewChannelStore(0)
		b.expander = NewExpanderDriver(hal.I2C, cfg.SwitchingBoardI2CAddress, b.channels, hal.delay)
		b.expander.SetVerify(b.verify)
		b.driver = b.expander
		reapply = b.reissueChannels
	default:
		return nil, ErrUnsupported
	}

	b.Output = NewOutputController(hal.GPIO, b.pins.Shutdown, b.pins.HasShutdown, b.driver)
	if reapply == nil {
		reapply = b.Output.Reapply
	}
	b.Voltage = NewVoltageController(hal.SPI, hal.GPIO, b.pins.PotCS, reapply)
	b.Waveform = NewWaveformController(hal.GPIO, b.pins.Blank, hal.Timer, &b.cfg)
	return b, nil
}

// reissueChannels writes the stored bitmap again.
func (b *Board) reissueChannels() error {
	err := b.driver.SetChannels(b.channels.Bitmap())
	if err == ErrNotReady {
		return nil
	}
	return err
}

// Begin puts the control lines in their idle state, starts the waveform
// timer, applies the default state and, on expander boards, discovers the
// cascade.
func (b *Board) Begin() error {
	p := b.pins
	g := b.hal.GPIO

	pins := []GPIOPin{p.Latch, p.Blank, p.Polarity, p.PotCS}
	if p.HasDir {
		pins = append(pins, p.Dir)
	}
	if p.HasHiZ {
		pins = append(pins, p.HiZ)
	}
	if p.HasShutdown {
		pins = append(pins, p.Shutdown)
	}
	if err := configureOutputs(g, pins...); err != nil {
		return err
	}

	levels := []struct {
		pin   GPIOPin
		level bool
		use   bool
	}{
		{p.Latch, true, true},
		{p.PotCS, true, true},
		{p.Dir, false, p.HasDir},
		{p.HiZ, true, p.HasHiZ},
		// The HV507 starts unblanked, the HV513 blanked until the
		// waveform starts.
		{p.Blank, b.variant == VariantHV507, true},
		{p.Polarity, true, true},
	}
	for _, l := range levels {
		if !l.use {
			continue
		}
		if err := g.SetPin(l.pin, l.level); err != nil {
			return err
		}
	}

	period := uint32(hv513TimerUs)
	if b.variant == VariantHV507 {
		period = hv507TimerUs
	}
	b.hal.Timer.Initialize(period)

	state := DefaultState()
	if b.variant == VariantHV507 {
		state.HasVoltage = false
	}
	if err := b.UpdateState(state); err != nil {
		DebugPrintln("[board] default state: " + err.Error())
	}

	if b.variant == VariantHV513Expander {
		b.Discover()
	}
	return nil
}

// Discover rescans the expander cascade and resizes the channel store. On
// shift-register boards it returns the fixed channel count.
func (b *Board) Discover() uint16 {
	if b.expander == nil {
		return b.channels.Count()
	}
	base := b.cfg.SwitchingBoardI2CAddress
	b.expander.SetBase(base)
	b.channels.Resize(DiscoverChannels(b.hal.I2C, base))
	return b.channels.Count()
}

// Variant returns the board topology.
func (b *Board) Variant() Variant {
	return b.variant
}

// ChannelCount returns the number of channels.
func (b *Board) ChannelCount() uint16 {
	return b.driver.ChannelCount()
}

// BitmapLen returns the byte length SetChannels expects.
func (b *Board) BitmapLen() int {
	return b.channels.Len()
}

// SetChannels drives b to the hardware.
func (b *Board) SetChannels(bits ChannelBitmap) error {
	return b.driver.SetChannels(bits)
}

// Channels returns the channel state, reading the hardware where it can.
func (b *Board) Channels() (ChannelBitmap, error) {
	return b.driver.Channels()
}

// SetVoltage sets the HV amplitude in volts.
func (b *Board) SetVoltage(v float32) error {
	if b.variant == VariantHV507 {
		return ErrUnsupported
	}
	return b.Voltage.SetVoltage(v)
}

// SetVoltageCode writes a raw boost converter code on the HV507.
func (b *Board) SetVoltageCode(code uint8) error {
	if b.variant != VariantHV507 {
		return ErrUnsupported
	}
	return b.Voltage.WriteRawCode(code)
}

// SetFrequency sets the waveform frequency in Hz.
func (b *Board) SetFrequency(f float32) error {
	return b.Waveform.SetFrequency(f)
}

// SetOutputEnabled gates the boost converter.
func (b *Board) SetOutputEnabled(enabled bool) error {
	return b.Output.SetOutputEnabled(enabled)
}

// UpdateState applies each present field through its handler. A field
// whose handler fails keeps its previous value; the first failure is
// returned after every field has been tried.
func (b *Board) UpdateState(s BoardState) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if s.HasVoltage {
		keep(b.SetVoltage(s.Voltage))
	}
	if s.HasFrequency {
		keep(b.SetFrequency(s.Frequency))
	}
	if s.HasOutputEnabled {
		keep(b.SetOutputEnabled(s.OutputEnabled))
	}
	return first
}

// State returns the current runtime state.
func (b *Board) State() BoardState {
	return BoardState{
		Voltage:          b.Voltage.Voltage(),
		Frequency:        b.Waveform.Frequency(),
		OutputEnabled:    b.Output.Enabled(),
		HasVoltage:       b.Voltage.Valid(),
		HasFrequency:     true,
		HasOutputEnabled: true,
	}
}

// Config returns a copy of the active configuration.
func (b *Board) Config() BoardConfig {
	return b.cfg
}

// UpdateConfig validates and activates cfg. It is not persisted until
// SaveConfig. A new expander base takes effect at the next Discover; until
// then channel writes keep going to the cascade that was counted.
func (b *Board) UpdateConfig(cfg BoardConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	b.cfg = cfg
	return nil
}

// SaveConfig persists the active configuration.
func (b *Board) SaveConfig() error {
	return b.store.Save(b.cfg)
}

// ResetConfig restores the factory configuration without saving it.
func (b *Board) ResetConfig() {
	b.UpdateConfig(DefaultConfig())
}

// SetI2CAddress changes the board's own bus address after validating it.
func (b *Board) SetI2CAddress(addr uint8) error {
	if err := b.cfg.ValidateI2CAddress(addr); err != nil {
		return err
	}
	b.cfg.I2CAddress = addr
	return nil
}

// Close stops the waveform timer.
func (b *Board) Close() {
	b.Waveform.Close()
}
