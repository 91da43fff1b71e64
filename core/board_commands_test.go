package core_test

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"testing"

	"hvboard/core"
	"hvboard/protocol"
	"hvboard/sim"
)

type sentMsg struct {
	id   uint16
	args []byte
}

// capture records everything the registry sends.
type capture struct {
	msgs []sentMsg
}

func (c *capture) SendCommand(id uint16, args func(protocol.OutputBuffer)) {
	out := protocol.NewScratchOutput()
	if args != nil {
		args(out)
	}
	c.msgs = append(c.msgs, sentMsg{id, append([]byte(nil), out.Result()...)})
}

type harness struct {
	t     *testing.T
	rig   *sim.Rig
	board *core.Board
	reg   *core.CommandRegistry
	dict  *core.Dictionary
	out   *capture
}

func newHarness(t *testing.T, v core.Variant, expanders int) *harness {
	t.Helper()
	rig := newRig(t, v, expanders)
	b := beginBoard(t, rig)
	reg := core.NewCommandRegistry()
	dict := core.NewDictionary(reg)
	core.InitCommands(reg, dict, b)
	out := &capture{}
	reg.SetResponder(out)
	return &harness{t: t, rig: rig, board: b, reg: reg, dict: dict, out: out}
}

// call dispatches the named command and returns what it sent.
func (h *harness) call(name string, args func(protocol.OutputBuffer)) []sentMsg {
	h.t.Helper()
	cmd, ok := h.reg.GetCommandByName(name)
	if !ok {
		h.t.Fatalf("command %q not registered", name)
	}
	out := protocol.NewScratchOutput()
	if args != nil {
		args(out)
	}
	data := out.Result()
	h.out.msgs = nil
	if err := h.reg.Dispatch(cmd.ID, &data); err != nil {
		h.t.Fatalf("%s: %v", name, err)
	}
	if len(data) != 0 {
		h.t.Errorf("%s left %d argument bytes", name, len(data))
	}
	return h.out.msgs
}

// one expects a single response named resp and returns its arguments.
func (h *harness) one(msgs []sentMsg, resp string) []byte {
	h.t.Helper()
	r, ok := h.reg.GetCommandByName(resp)
	if !ok {
		h.t.Fatalf("response %q not registered", resp)
	}
	if len(msgs) != 1 || msgs[0].id != r.ID {
		h.t.Fatalf("sent %v, want one %s", msgs, resp)
	}
	return msgs[0].args
}

// status decodes a result response for cmd.
func (h *harness) status(msgs []sentMsg, cmd string) core.Code {
	h.t.Helper()
	data := h.one(msgs, "result")
	id, _ := protocol.DecodeVLQUint(&data)
	st, _ := protocol.DecodeVLQUint(&data)
	c, _ := h.reg.GetCommandByName(cmd)
	if uint16(id) != c.ID {
		h.t.Errorf("result for command %d, want %s (%d)", id, cmd, c.ID)
	}
	return core.CodeFromStatus(st)
}

func uintArgs(vs ...uint32) func(protocol.OutputBuffer) {
	return func(o protocol.OutputBuffer) {
		for _, v := range vs {
			protocol.EncodeVLQUint(o, v)
		}
	}
}

func TestIdentifyIDs(t *testing.T) {
	h := newHarness(t, core.VariantHV513, 0)
	for name, want := range map[string]uint16{"identify_response": 0, "identify": 1} {
		c, ok := h.reg.GetCommandByName(name)
		if !ok || c.ID != want {
			t.Errorf("%s has ID %v, want %d", name, c, want)
		}
	}
}

func TestIdentifyReturnsDictionary(t *testing.T) {
	h := newHarness(t, core.VariantHV513, 0)
	h.dict.BuildDictionary()

	var blob []byte
	for offset := uint32(0); ; {
		data := h.one(h.call("identify", uintArgs(offset, 40)), "identify_response")
		got, _ := protocol.DecodeVLQUint(&data)
		chunk, _ := protocol.DecodeVLQBytes(&data)
		if got != offset {
			t.Fatalf("chunk offset %d, want %d", got, offset)
		}
		if len(chunk) == 0 {
			break
		}
		blob = append(blob, chunk...)
		offset += uint32(len(chunk))
	}

	r, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("dictionary is not zlib: %v", err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	var dict struct {
		Version  string            `json:"version"`
		Config   map[string]string `json:"config"`
		Commands map[string]int    `json:"commands"`
	}
	if err := json.Unmarshal(raw, &dict); err != nil {
		t.Fatalf("dictionary JSON: %v\n%s", err, raw)
	}
	if dict.Config["BOARD"] != "hv513" {
		t.Errorf("BOARD = %q", dict.Config["BOARD"])
	}
	if _, ok := dict.Commands["set_state_of_channels data=%*s"]; !ok {
		t.Errorf("set_state_of_channels missing from %v", dict.Commands)
	}
}

func TestGetState(t *testing.T) {
	h := newHarness(t, core.VariantHV513, 0)
	data := h.one(h.call("get_state", nil), "state_response")

	v, _ := protocol.DecodeVLQInt(&data)
	f, _ := protocol.DecodeVLQInt(&data)
	en, _ := protocol.DecodeVLQUint(&data)
	valid, _ := protocol.DecodeVLQUint(&data)
	if v != 100000 || f != 1000000 || en != 0 || valid != 1 {
		t.Errorf("state_response = %d mV, %d mHz, enabled %d, valid %d", v, f, en, valid)
	}
}

func TestUpdateStateCommand(t *testing.T) {
	h := newHarness(t, core.VariantHV513, 0)

	args := func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, core.StateHasFrequency|core.StateHasOutputEnabled)
		protocol.EncodeVLQInt(o, 0)
		protocol.EncodeVLQInt(o, core.ToMilli(250))
		protocol.EncodeVLQUint(o, 1)
	}
	if st := h.status(h.call("update_state", args), "update_state"); st != core.OK {
		t.Fatalf("update_state status %s", st)
	}
	if s := h.board.State(); s.Frequency != 250 || !s.OutputEnabled || s.Voltage != 100 {
		t.Errorf("state = %+v", s)
	}

	bad := func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, core.StateHasFrequency)
		protocol.EncodeVLQInt(o, 0)
		protocol.EncodeVLQInt(o, core.ToMilli(20000))
		protocol.EncodeVLQUint(o, 0)
	}
	if st := h.status(h.call("update_state", bad), "update_state"); st != core.ErrOutOfRange {
		t.Errorf("out of range frequency: status %s", st)
	}
}

func TestChannelCommands(t *testing.T) {
	h := newHarness(t, core.VariantHV513Expander, 2)

	data := h.one(h.call("channel_count", nil), "channel_count_response")
	if n, _ := protocol.DecodeVLQUint(&data); n != 80 {
		t.Errorf("channel_count = %d", n)
	}

	want := pattern(80)
	set := func(o protocol.OutputBuffer) { protocol.EncodeVLQBytes(o, want) }
	if st := h.status(h.call("set_state_of_channels", set), "set_state_of_channels"); st != core.OK {
		t.Fatalf("set status %s", st)
	}

	data = h.one(h.call("state_of_channels", nil), "state_of_channels_response")
	st, _ := protocol.DecodeVLQUint(&data)
	got, _ := protocol.DecodeVLQBytes(&data)
	if core.CodeFromStatus(st) != core.OK || !bytes.Equal(got, want) {
		t.Errorf("state_of_channels = %s % X", core.CodeFromStatus(st), got)
	}

	short := func(o protocol.OutputBuffer) { protocol.EncodeVLQBytes(o, []byte{1, 2}) }
	if st := h.status(h.call("set_state_of_channels", short), "set_state_of_channels"); st != core.ErrBadLength {
		t.Errorf("short bitmap: status %s", st)
	}

	h.rig.I2C.Remove(base + 1)
	data = h.one(h.call("discover_channels", nil), "channel_count_response")
	if n, _ := protocol.DecodeVLQUint(&data); n != 40 {
		t.Errorf("rediscovered %d channels, want 40", n)
	}
}

func TestStateOfChannelsReportsBusError(t *testing.T) {
	h := newHarness(t, core.VariantHV513Expander, 1)
	h.rig.I2C.Chip(base).SetNAK(true)

	data := h.one(h.call("state_of_channels", nil), "state_of_channels_response")
	st, _ := protocol.DecodeVLQUint(&data)
	if core.CodeFromStatus(st) != core.ErrNoAck {
		t.Errorf("status %s, want no_ack", core.CodeFromStatus(st))
	}
}

func TestConfigCommands(t *testing.T) {
	h := newHarness(t, core.VariantHV513, 0)

	data := h.one(h.call("get_config", nil), "config_response")
	cfg, err := core.DecodeConfig(&data)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != core.DefaultConfig() {
		t.Errorf("get_config = %+v", cfg)
	}

	cfg.SerialNumber = "A1"
	cfg.MaxWaveformVoltage = 120
	enc := func(o protocol.OutputBuffer) {
		protocol.EncodeVLQString(o, cfg.SerialNumber)
		protocol.EncodeVLQUint(o, cfg.BaudRate)
		protocol.EncodeVLQUint(o, uint32(cfg.I2CAddress))
		protocol.EncodeVLQUint(o, uint32(cfg.SwitchingBoardI2CAddress))
		protocol.EncodeVLQInt(o, core.ToMilli(cfg.MinWaveformFrequency))
		protocol.EncodeVLQInt(o, core.ToMilli(cfg.MaxWaveformFrequency))
		protocol.EncodeVLQInt(o, core.ToMilli(cfg.MaxWaveformVoltage))
	}
	if st := h.status(h.call("update_config", enc), "update_config"); st != core.OK {
		t.Fatalf("update_config status %s", st)
	}
	if h.board.Config() != cfg {
		t.Errorf("config = %+v, want %+v", h.board.Config(), cfg)
	}

	if st := h.status(h.call("set_i2c_address", uintArgs(0x24)), "set_i2c_address"); st != core.ErrBadAddress {
		t.Errorf("set_i2c_address(0x24) status %s", st)
	}
	if st := h.status(h.call("set_i2c_address", uintArgs(0x300)), "set_i2c_address"); st != core.ErrBadAddress {
		t.Errorf("set_i2c_address(0x300) status %s", st)
	}

	if st := h.status(h.call("reset_config", nil), "reset_config"); st != core.OK {
		t.Errorf("reset_config status %s", st)
	}
	if h.board.Config() != core.DefaultConfig() {
		t.Error("reset_config did not restore defaults")
	}
	if st := h.status(h.call("save_config", nil), "save_config"); st != core.OK {
		t.Errorf("save_config status %s", st)
	}
}

func TestSetVoltageCodeCommand(t *testing.T) {
	h := newHarness(t, core.VariantHV507, 0)
	if st := h.status(h.call("set_voltage_code", uintArgs(0x33)), "set_voltage_code"); st != core.OK {
		t.Fatalf("status %s", st)
	}
	if h.rig.Pot.Wiper() != 0x33 {
		t.Errorf("boost code = 0x%02X", h.rig.Pot.Wiper())
	}

	writes := h.rig.Pot.Writes()
	if st := h.status(h.call("set_voltage_code", uintArgs(0x133)), "set_voltage_code"); st != core.ErrOutOfRange {
		t.Errorf("set_voltage_code(0x133) status %s", st)
	}
	if h.rig.Pot.Writes() != writes || h.rig.Pot.Wiper() != 0x33 {
		t.Error("oversized code reached the boost converter")
	}
}

func TestGetClock(t *testing.T) {
	h := newHarness(t, core.VariantHV513, 0)
	core.SetTime(123456)
	data := h.one(h.call("get_clock", nil), "clock")
	if c, _ := protocol.DecodeVLQUint(&data); c != 123456 {
		t.Errorf("clock = %d", c)
	}
}

func TestResetIsDeferred(t *testing.T) {
	h := newHarness(t, core.VariantHV513, 0)
	var resets int
	core.SetResetHandler(func() { resets++ })
	t.Cleanup(func() { core.SetResetHandler(nil) })

	if msgs := h.call("reset", nil); len(msgs) != 0 {
		t.Errorf("reset answered with %v", msgs)
	}
	if resets != 0 {
		t.Fatal("reset ran inside the handler")
	}
	core.CheckPendingReset()
	if resets != 1 {
		t.Errorf("reset handler ran %d times", resets)
	}
}
