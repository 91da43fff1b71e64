package core

import "math"

// BoardConfig is the persistent board configuration.
type BoardConfig struct {
	SerialNumber string `yaml:"serial_number" koanf:"serial_number" json:"serial_number"`
	BaudRate     uint32 `yaml:"baud_rate" koanf:"baud_rate" json:"baud_rate"`

	// I2CAddress is the board's own address when it is driven over I2C.
	I2CAddress uint8 `yaml:"i2c_address" koanf:"i2c_address" json:"i2c_address"`

	// SwitchingBoardI2CAddress is the address of the first expander in the
	// cascade.
	SwitchingBoardI2CAddress uint8 `yaml:"switching_board_i2c_address" koanf:"switching_board_i2c_address" json:"switching_board_i2c_address"`

	MinWaveformFrequency float32 `yaml:"min_waveform_frequency" koanf:"min_waveform_frequency" json:"min_waveform_frequency"`
	MaxWaveformFrequency float32 `yaml:"max_waveform_frequency" koanf:"max_waveform_frequency" json:"max_waveform_frequency"`
	MaxWaveformVoltage   float32 `yaml:"max_waveform_voltage" koanf:"max_waveform_voltage" json:"max_waveform_voltage"`
}

// DefaultConfig returns the factory configuration.
func DefaultConfig() BoardConfig {
	return BoardConfig{
		BaudRate:                 115200,
		I2CAddress:               0x10,
		SwitchingBoardI2CAddress: 0x20,
		MinWaveformFrequency:     0,
		MaxWaveformFrequency:     10000,
		MaxWaveformVoltage:       150,
	}
}

// 7-bit addresses outside this range are reserved by the I2C spec.
const (
	minI2CAddress = 0x08
	maxI2CAddress = 0x77
)

// ValidateI2CAddress checks that addr is usable as the board's own address
// under cfg. It must be a non-reserved 7-bit address outside the expander
// cascade window.
func (c *BoardConfig) ValidateI2CAddress(addr uint8) error {
	if addr < minI2CAddress || addr > maxI2CAddress {
		return ErrBadAddress
	}
	base := c.SwitchingBoardI2CAddress
	if addr >= base && uint16(addr) < uint16(base)+MaxExpanderChips {
		return ErrBadAddress
	}
	return nil
}

// MaxWireLimit is the largest frequency or voltage limit that still fits
// the signed milli-unit wire encoding.
const MaxWireLimit = math.MaxInt32 / 1000

// Validate checks every field.
func (c *BoardConfig) Validate() error {
	if c.BaudRate == 0 {
		return ErrOutOfRange
	}
	base := c.SwitchingBoardI2CAddress
	if base < minI2CAddress || uint16(base)+MaxExpanderChips-1 > maxI2CAddress {
		return ErrBadAddress
	}
	if err := c.ValidateI2CAddress(c.I2CAddress); err != nil {
		return err
	}
	if !(c.MinWaveformFrequency >= 0) || !(c.MaxWaveformFrequency >= c.MinWaveformFrequency) {
		return ErrOutOfRange
	}
	if c.MaxWaveformFrequency > MaxWireLimit {
		return ErrOutOfRange
	}
	if !(c.MaxWaveformVoltage > 0) || c.MaxWaveformVoltage > MaxWireLimit {
		return ErrOutOfRange
	}
	return nil
}

// ConfigStore persists the board configuration.
type ConfigStore interface {
	Load() (BoardConfig, error)
	Save(cfg BoardConfig) error
}

// MemoryConfigStore keeps the configuration in RAM. Targets without
// persistent storage use it; the configuration then resets on power cycle.
type MemoryConfigStore struct {
	cfg   BoardConfig
	saved bool
}

func (m *MemoryConfigStore) Load() (BoardConfig, error) {
	if !m.saved {
		return DefaultConfig(), nil
	}
	return m.cfg, nil
}

func (m *MemoryConfigStore) Save(cfg BoardConfig) error {
	m.cfg = cfg
	m.saved = true
	return nil
}

// BoardState is the runtime state the host can change. Only fields with
// their Has flag set take part in an update.
type BoardState struct {
	Voltage       float32
	Frequency     float32
	OutputEnabled bool

	HasVoltage       bool
	HasFrequency     bool
	HasOutputEnabled bool
}

// DefaultState is applied once at startup.
func DefaultState() BoardState {
	return BoardState{
		Voltage:          100,
		Frequency:        1000,
		OutputEnabled:    false,
		HasVoltage:       true,
		HasFrequency:     true,
		HasOutputEnabled: true,
	}
}
