package core

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BoardConfig)
		want   error
	}{
		{"zero baud", func(c *BoardConfig) { c.BaudRate = 0 }, ErrOutOfRange},
		{"base reserved", func(c *BoardConfig) { c.SwitchingBoardI2CAddress = 0x04 }, ErrBadAddress},
		{"cascade past 0x77", func(c *BoardConfig) { c.SwitchingBoardI2CAddress = 0x71 }, ErrBadAddress},
		{"cascade ends at 0x77", func(c *BoardConfig) { c.SwitchingBoardI2CAddress = 0x70 }, nil},
		{"own address in cascade", func(c *BoardConfig) { c.I2CAddress = 0x27 }, ErrBadAddress},
		{"own address after cascade", func(c *BoardConfig) { c.I2CAddress = 0x28 }, nil},
		{"own address reserved", func(c *BoardConfig) { c.I2CAddress = 0x78 }, ErrBadAddress},
		{"negative min frequency", func(c *BoardConfig) { c.MinWaveformFrequency = -1 }, ErrOutOfRange},
		{"max below min", func(c *BoardConfig) { c.MinWaveformFrequency = 100; c.MaxWaveformFrequency = 50 }, ErrOutOfRange},
		{"NaN max", func(c *BoardConfig) { c.MaxWaveformFrequency = float32(math.NaN()) }, ErrOutOfRange},
		{"zero voltage limit", func(c *BoardConfig) { c.MaxWaveformVoltage = 0 }, ErrOutOfRange},
		{"max frequency past wire range", func(c *BoardConfig) { c.MaxWaveformFrequency = 3e6 }, ErrOutOfRange},
		{"max frequency at wire limit", func(c *BoardConfig) { c.MaxWaveformFrequency = MaxWireLimit }, nil},
		{"voltage limit past wire range", func(c *BoardConfig) { c.MaxWaveformVoltage = 3e6 }, ErrOutOfRange},
	}
	for _, tc := range tests {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err != tc.want {
			t.Errorf("%s: Validate = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestWireLimitEncodes(t *testing.T) {
	if m := ToMilli(MaxWireLimit); m <= 0 || FromMilli(m) != MaxWireLimit {
		t.Errorf("ToMilli(%d) = %d", MaxWireLimit, m)
	}
}

func TestMemoryConfigStore(t *testing.T) {
	var s MemoryConfigStore
	cfg, err := s.Load()
	if err != nil || cfg != DefaultConfig() {
		t.Fatalf("fresh Load = %+v, %v", cfg, err)
	}
	cfg.SerialNumber = "X"
	s.Save(cfg)
	if got, _ := s.Load(); got.SerialNumber != "X" {
		t.Errorf("Load after Save = %+v", got)
	}
}

func TestStatusCodes(t *testing.T) {
	for i, name := range StatusNames() {
		c := CodeFromStatus(uint32(i))
		if string(c) != name || StatusOf(c) != uint32(i) {
			t.Errorf("status %d: %q round trips as %d", i, c, StatusOf(c))
		}
	}
	if StatusOf(nil) != 0 {
		t.Error("nil is not ok")
	}
	wrapped := fmt.Errorf("chip 3: %w", ErrNoAck)
	if CodeOf(wrapped) != ErrNoAck {
		t.Errorf("CodeOf(wrapped) = %v", CodeOf(wrapped))
	}
	if CodeOf(errors.New("other")) != ErrFailed {
		t.Error("foreign error not mapped to ErrFailed")
	}
	if CodeFromStatus(99) != ErrFailed {
		t.Error("unknown status not mapped to ErrFailed")
	}
}
