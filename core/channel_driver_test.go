package core_test

import (
	"testing"

	"hvboard/core"
	"hvboard/sim"
)

func newShiftDriver(t *testing.T, count uint16) (*core.ShiftRegisterDriver, *sim.Rig) {
	t.Helper()
	v := core.VariantHV513
	if count > 8 {
		v = core.VariantHV507
	}
	rig := newRig(t, v, 0)
	rig.GPIO.ConfigureOutput(rig.Pins.Latch)
	rig.GPIO.ConfigureOutput(rig.Pins.PotCS)
	rig.GPIO.SetPin(rig.Pins.Latch, true)
	rig.GPIO.SetPin(rig.Pins.PotCS, true)
	d := core.NewShiftRegisterDriver(rig.SPI, rig.GPIO, rig.Pins.Latch, core.NewChannelStore(count))
	return d, rig
}

func TestShiftRegisterDriverLatchesBitmap(t *testing.T) {
	for _, count := range []uint16{8, 128} {
		d, rig := newShiftDriver(t, count)
		want := pattern(count)

		if err := d.SetChannels(want); err != nil {
			t.Fatalf("%d channels: SetChannels: %v", count, err)
		}
		if got := rig.Chain.Outputs(); !got.Equal(want) {
			t.Errorf("%d channels: latched % X, want % X", count, got, want)
		}
		if !rig.GPIO.Level(rig.Pins.Latch) {
			t.Errorf("%d channels: latch left low", count)
		}
		if got, _ := d.Channels(); !got.Equal(want) {
			t.Errorf("%d channels: Channels = % X", count, got)
		}
	}
}

func TestShiftRegisterDriverRejectsLength(t *testing.T) {
	d, rig := newShiftDriver(t, 8)
	for _, b := range []core.ChannelBitmap{nil, {1, 2}} {
		if err := d.SetChannels(b); err != core.ErrBadLength {
			t.Errorf("SetChannels(% X) = %v, want ErrBadLength", b, err)
		}
	}
	if n := len(rig.SPI.Log()); n != 0 {
		t.Errorf("rejected bitmap clocked %d bytes", n)
	}
	if got, _ := d.Channels(); !got.Equal(core.NewChannelBitmap(8)) {
		t.Errorf("rejected bitmap was stored: % X", got)
	}
}

func TestShiftRegisterDriverBusFaultDoesNotCommit(t *testing.T) {
	d, rig := newShiftDriver(t, 128)
	rig.SPI.FailAfter(4)

	if err := d.SetChannels(pattern(128)); err != sim.ErrInjected {
		t.Fatalf("SetChannels = %v, want injected fault", err)
	}
	if rig.Chain.Commits() != 0 {
		t.Error("partial pattern was latched")
	}
	if rig.GPIO.Level(rig.Pins.Latch) {
		t.Error("latch raised after a failed transfer")
	}
}

func TestShiftRegisterDriverLatchFaultKeepsMemory(t *testing.T) {
	rig := newRig(t, core.VariantHV513, 0)
	gpio := sim.NewGPIO() // latch never configured, so driving it fails
	d := core.NewShiftRegisterDriver(rig.SPI, gpio, rig.Pins.Latch, core.NewChannelStore(8))

	if err := d.SetChannels(core.ChannelBitmap{0xA5}); err != sim.ErrNotOutput {
		t.Fatalf("SetChannels = %v, want ErrNotOutput", err)
	}
	if got, _ := d.Channels(); !got.Equal(core.NewChannelBitmap(8)) {
		t.Errorf("memory copy = % X after the latch failed", got)
	}
	if n := len(rig.SPI.Log()); n != 0 {
		t.Errorf("%d bytes clocked without a latch", n)
	}
}

func newExpanderDriver(t *testing.T, chips int) (*core.ExpanderDriver, *sim.Rig) {
	t.Helper()
	rig := newRig(t, core.VariantHV513Expander, chips)
	store := core.NewChannelStore(core.DiscoverChannels(rig.I2C, base))
	return core.NewExpanderDriver(rig.I2C, base, store, rig.Delays.Delay), rig
}

func TestExpanderDriverRoundTrip(t *testing.T) {
	d, rig := newExpanderDriver(t, 2)
	if d.ChannelCount() != 80 {
		t.Fatalf("ChannelCount = %d, want 80", d.ChannelCount())
	}
	want := pattern(80)

	if err := d.SetChannels(want); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	if got := rig.I2C.Channels(base, 2); !got.Equal(want) {
		t.Errorf("expander outputs decode to % X, want % X", got, want)
	}
	if out := rig.I2C.Chip(base).Outputs(); out[0] != ^want[0] {
		t.Errorf("port 0 register = 0x%02X, want inverted 0x%02X", out[0], ^want[0])
	}

	got, err := d.Channels()
	if err != nil {
		t.Fatalf("Channels: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("Channels = % X, want % X", got, want)
	}

	if rig.Delays.Calls() != 10 || rig.Delays.Total() != 10*core.ExpanderSettleUs {
		t.Errorf("settle delays: %d calls, %dus", rig.Delays.Calls(), rig.Delays.Total())
	}
}

func TestExpanderDriverNotReadyBeforeDiscovery(t *testing.T) {
	rig := newRig(t, core.VariantHV513Expander, 2)
	d := core.NewExpanderDriver(rig.I2C, base, core.NewChannelStore(0), nil)

	if err := d.SetChannels(core.ChannelBitmap{}); err != core.ErrNotReady {
		t.Errorf("SetChannels = %v, want ErrNotReady", err)
	}
	if _, err := d.Channels(); err != core.ErrNotReady {
		t.Errorf("Channels = %v, want ErrNotReady", err)
	}
	if rig.I2C.Transactions() != 0 {
		t.Error("bus touched before discovery")
	}
}

func TestExpanderDriverRejectsLength(t *testing.T) {
	d, rig := newExpanderDriver(t, 1)
	before := rig.I2C.Transactions()
	if err := d.SetChannels(core.NewChannelBitmap(80)); err != core.ErrBadLength {
		t.Errorf("SetChannels = %v, want ErrBadLength", err)
	}
	if rig.I2C.Transactions() != before {
		t.Error("rejected bitmap reached the bus")
	}
}

func TestExpanderDriverVerify(t *testing.T) {
	d, rig := newExpanderDriver(t, 2)
	rig.I2C.Chip(base + 1).DropOutputWrites(true)

	if err := d.SetChannels(pattern(80)); err != nil {
		t.Fatalf("unverified write reported %v", err)
	}

	d.SetVerify(true)
	if err := d.SetChannels(pattern(80)); err != core.ErrVerify {
		t.Errorf("verified write = %v, want ErrVerify", err)
	}

	rig.I2C.Chip(base + 1).DropOutputWrites(false)
	if err := d.SetChannels(pattern(80)); err != nil {
		t.Errorf("verified write after recovery = %v", err)
	}
}

func TestExpanderDriverReadNoAck(t *testing.T) {
	d, rig := newExpanderDriver(t, 2)
	rig.I2C.Chip(base + 1).SetNAK(true)

	if _, err := d.Channels(); err != core.ErrNoAck {
		t.Errorf("Channels = %v, want ErrNoAck", err)
	}
}
