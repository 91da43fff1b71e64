package core_test

import (
	"testing"

	"hvboard/core"
)

func TestOutputControllerExpander(t *testing.T) {
	rig := newRig(t, core.VariantHV513Expander, 2)
	rig.GPIO.ConfigureOutput(rig.Pins.Shutdown)
	store := core.NewChannelStore(core.DiscoverChannels(rig.I2C, base))
	d := core.NewExpanderDriver(rig.I2C, base, store, nil)
	o := core.NewOutputController(rig.GPIO, rig.Pins.Shutdown, true, d)

	d.SetChannels(pattern(80))

	if err := o.SetOutputEnabled(true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if got := rig.I2C.Channels(base, 2); !got.Equal(core.FilledBitmap(80, true)) {
		t.Errorf("enabled outputs = % X, want all on", got)
	}
	for _, addr := range []uint8{base, base + 1} {
		for p, v := range rig.I2C.Chip(addr).Outputs() {
			if v != 0x00 {
				t.Errorf("chip 0x%02X port %d = 0x%02X, want 0x00 when all on", addr, p, v)
			}
		}
	}
	if rig.GPIO.Level(rig.Pins.Shutdown) {
		t.Error("shutdown asserted while enabled")
	}

	if err := o.SetOutputEnabled(false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if got := rig.I2C.Channels(base, 2); !got.Equal(core.NewChannelBitmap(80)) {
		t.Errorf("disabled outputs = % X, want all off", got)
	}
	if !rig.GPIO.Level(rig.Pins.Shutdown) {
		t.Error("shutdown not asserted while disabled")
	}
	if o.Enabled() {
		t.Error("Enabled() true after disable")
	}
}

func TestOutputControllerWithoutChannels(t *testing.T) {
	rig := newRig(t, core.VariantHV513Expander, 0)
	rig.GPIO.ConfigureOutput(rig.Pins.Shutdown)
	d := core.NewExpanderDriver(rig.I2C, base, core.NewChannelStore(0), nil)
	o := core.NewOutputController(rig.GPIO, rig.Pins.Shutdown, true, d)

	if err := o.SetOutputEnabled(true); err != nil {
		t.Errorf("enable with no channels = %v", err)
	}
	if rig.GPIO.Level(rig.Pins.Shutdown) {
		t.Error("shutdown line not released")
	}
}

func TestOutputControllerShiftRegister(t *testing.T) {
	d, rig := newShiftDriver(t, 128)
	o := core.NewOutputController(rig.GPIO, 0, false, d)

	if err := o.SetOutputEnabled(true); err != nil {
		t.Fatal(err)
	}
	if got := rig.Chain.Outputs(); !got.Equal(core.FilledBitmap(128, true)) {
		t.Errorf("chain = % X, want all on", got)
	}
	o.SetOutputEnabled(false)
	if got := rig.Chain.Outputs(); !got.Equal(core.NewChannelBitmap(128)) {
		t.Errorf("chain = % X, want all off", got)
	}
}
