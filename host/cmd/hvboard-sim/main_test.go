package main

import (
	"errors"
	"testing"

	"hvboard/core"
	"hvboard/host/config"
	"hvboard/host/linuxbus"
	"hvboard/sim"
)

type fakeHardware struct {
	hal    core.HAL
	closed int
}

func (f *fakeHardware) HAL() core.HAL { return f.hal }

func (f *fakeHardware) Close() error {
	f.closed++
	return nil
}

func withLinux(t *testing.T, hw *fakeHardware, err error) *linuxbus.Config {
	t.Helper()
	var got linuxbus.Config
	prev := openLinux
	openLinux = func(cfg linuxbus.Config) (hardware, error) {
		got = cfg
		if err != nil {
			return nil, err
		}
		return hw, nil
	}
	t.Cleanup(func() { openLinux = prev })
	return &got
}

func TestLinuxBackendHandsBackBus(t *testing.T) {
	core.ResetTimers()
	t.Cleanup(core.ResetTimers)

	rig := sim.NewRig(core.VariantHV513, 0)
	hw := &fakeHardware{hal: rig.HAL()}
	opened := withLinux(t, hw, nil)

	c := config.Default().Sim
	c.Backend = "linux"
	b, bus, err := newBoard(c, core.VariantHV513, []core.Option{core.WithPins(rig.Pins)})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if !opened.NoI2C {
		t.Error("shift-register board opened the I2C bus")
	}
	if hw.closed != 0 {
		t.Fatal("bus closed while the board uses it")
	}
	bus.Close()
	if hw.closed != 1 {
		t.Errorf("bus closed %d times, want 1", hw.closed)
	}
}

func TestLinuxBackendClosesBusOnBoardError(t *testing.T) {
	hw := &fakeHardware{} // no SPI, GPIO or timer
	withLinux(t, hw, nil)

	c := config.Default().Sim
	c.Backend = "linux"
	if _, _, err := newBoard(c, core.VariantHV513, nil); err == nil {
		t.Fatal("board built without buses")
	}
	if hw.closed != 1 {
		t.Errorf("bus closed %d times after a failed build, want 1", hw.closed)
	}
}

func TestNewBoardBackends(t *testing.T) {
	core.ResetTimers()
	t.Cleanup(core.ResetTimers)

	c := config.Default().Sim
	b, bus, err := newBoard(c, core.VariantHV513Expander, nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Close()
	if err := bus.Close(); err != nil {
		t.Errorf("sim backend close: %v", err)
	}

	withLinux(t, nil, errors.New("no /dev/i2c-1"))
	c.Backend = "linux"
	if _, _, err := newBoard(c, core.VariantHV513Expander, nil); err == nil {
		t.Error("open failure not reported")
	}

	c.Backend = "fpga"
	if _, _, err := newBoard(c, core.VariantHV513, nil); err == nil {
		t.Error("unknown backend accepted")
	}
}
