package core

import (
	"math"
	"sync/atomic"

	"hvboard/protocol"
)

// Bits of the update_state flags argument.
const (
	StateHasVoltage       = 1 << 0
	StateHasFrequency     = 1 << 1
	StateHasOutputEnabled = 1 << 2
)

// HardwareVersion is reported in the dictionary.
const HardwareVersion = "0.1"

// ToMilli converts a real value to the integer milli-units used on the wire.
func ToMilli(v float32) int32 {
	return int32(math.Round(float64(v) * 1000))
}

// FromMilli is the inverse of ToMilli.
func FromMilli(v int32) float32 {
	return float32(float64(v) / 1000)
}

func encodeBool(output protocol.OutputBuffer, v bool) {
	if v {
		protocol.EncodeVLQUint(output, 1)
	} else {
		protocol.EncodeVLQUint(output, 0)
	}
}

// resetPending is set when a reset command is received. The actual reset
// happens in the main loop once the ACK has gone out.
var resetPending uint32

var resetHandler func()

// SetResetHandler sets the platform-specific reset handler
func SetResetHandler(handler func()) {
	resetHandler = handler
}

// CheckPendingReset runs the reset handler once per reset request.
func CheckPendingReset() {
	if resetHandler != nil && atomic.CompareAndSwapUint32(&resetPending, 1, 0) {
		resetHandler()
	}
}

// InitCommands registers the full command set for b on reg and describes
// it in dict. The identify pair is registered first so it gets IDs 0 and 1.
func InitCommands(reg *CommandRegistry, dict *Dictionary, b *Board) {
	dict.registerIdentify(reg)

	h := &boardHandlers{reg: reg, board: b}

	reg.Register("result", "cmd=%hu status=%c", nil)
	reg.Register("clock", "clock=%u", nil)
	reg.Register("config_response", "serial=%*s baud=%u i2c=%c base=%c fmin=%i fmax=%i vmax=%i", nil)
	reg.Register("state_response", "voltage=%i frequency=%i output_enabled=%c voltage_valid=%c", nil)
	reg.Register("channel_count_response", "count=%hu", nil)
	reg.Register("state_of_channels_response", "status=%c data=%*s", nil)

	reg.Register("get_clock", "", h.getClock)
	reg.Register("reset", "", h.reset)
	reg.Register("get_config", "", h.getConfig)
	reg.Register("update_config", "serial=%*s baud=%u i2c=%c base=%c fmin=%i fmax=%i vmax=%i", h.updateConfig)
	reg.Register("save_config", "", h.saveConfig)
	reg.Register("reset_config", "", h.resetConfig)
	reg.Register("get_state", "", h.getState)
	reg.Register("update_state", "flags=%c voltage=%i frequency=%i output_enabled=%c", h.updateState)
	reg.Register("channel_count", "", h.channelCount)
	reg.Register("number_of_channels", "", h.channelCount)
	reg.Register("discover_channels", "", h.discover)
	reg.Register("state_of_channels", "", h.stateOfChannels)
	reg.Register("set_state_of_channels", "data=%*s", h.setStateOfChannels)
	reg.Register("set_i2c_address", "address=%c", h.setI2CAddress)
	reg.Register("set_voltage_code", "code=%c", h.setVoltageCode)

	dict.AddConstant("BOARD", b.Variant().String())
	dict.AddConstant("HARDWARE_VERSION", HardwareVersion)
	dict.AddConstant("CLOCK_FREQ", uint32(TimerFreq))
	dict.AddConstant("CHANNELS_PER_CHIP", uint32(ChannelsPerChip))
	dict.AddEnumeration("status", StatusNames())
}

type boardHandlers struct {
	reg   *CommandRegistry
	board *Board
}

// result answers the command named cmd with the status of err.
func (h *boardHandlers) result(cmd string, err error) error {
	c, ok := h.reg.GetCommandByName(cmd)
	if !ok {
		return errUnknownResponse
	}
	if err != nil {
		DebugPrintln("[cmd] " + cmd + ": " + err.Error())
	}
	return h.reg.Send("result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(c.ID))
		protocol.EncodeVLQUint(output, StatusOf(err))
	})
}

func (h *boardHandlers) getClock(_ *[]byte) error {
	now := GetTime()
	return h.reg.Send("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, now)
	})
}

func (h *boardHandlers) reset(_ *[]byte) error {
	atomic.StoreUint32(&resetPending, 1)
	return nil
}

func (h *boardHandlers) getConfig(_ *[]byte) error {
	cfg := h.board.Config()
	return h.reg.Send("config_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQString(output, cfg.SerialNumber)
		protocol.EncodeVLQUint(output, cfg.BaudRate)
		protocol.EncodeVLQUint(output, uint32(cfg.I2CAddress))
		protocol.EncodeVLQUint(output, uint32(cfg.SwitchingBoardI2CAddress))
		protocol.EncodeVLQInt(output, ToMilli(cfg.MinWaveformFrequency))
		protocol.EncodeVLQInt(output, ToMilli(cfg.MaxWaveformFrequency))
		protocol.EncodeVLQInt(output, ToMilli(cfg.MaxWaveformVoltage))
	})
}

// DecodeConfig reads the argument block shared by config_response and
// update_config.
func DecodeConfig(data *[]byte) (BoardConfig, error) {
	var cfg BoardConfig
	var err error
	if cfg.SerialNumber, err = protocol.DecodeVLQString(data); err != nil {
		return cfg, err
	}
	if cfg.BaudRate, err = protocol.DecodeVLQUint(data); err != nil {
		return cfg, err
	}
	var v uint32
	if v, err = protocol.DecodeVLQUint(data); err != nil {
		return cfg, err
	}
	cfg.I2CAddress = uint8(v)
	if v, err = protocol.DecodeVLQUint(data); err != nil {
		return cfg, err
	}
	cfg.SwitchingBoardI2CAddress = uint8(v)
	limits := []*float32{&cfg.MinWaveformFrequency, &cfg.MaxWaveformFrequency, &cfg.MaxWaveformVoltage}
	for _, dst := range limits {
		m, err := protocol.DecodeVLQInt(data)
		if err != nil {
			return cfg, err
		}
		*dst = FromMilli(m)
	}
	return cfg, nil
}

func (h *boardHandlers) updateConfig(data *[]byte) error {
	cfg, err := DecodeConfig(data)
	if err != nil {
		return err
	}
	return h.result("update_config", h.board.UpdateConfig(cfg))
}

func (h *boardHandlers) saveConfig(_ *[]byte) error {
	return h.result("save_config", h.board.SaveConfig())
}

func (h *boardHandlers) resetConfig(_ *[]byte) error {
	h.board.ResetConfig()
	return h.result("reset_config", nil)
}

func (h *boardHandlers) getState(_ *[]byte) error {
	s := h.board.State()
	return h.reg.Send("state_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQInt(output, ToMilli(s.Voltage))
		protocol.EncodeVLQInt(output, ToMilli(s.Frequency))
		encodeBool(output, s.OutputEnabled)
		encodeBool(output, s.HasVoltage)
	})
}

func (h *boardHandlers) updateState(data *[]byte) error {
	flags, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	voltage, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	frequency, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	enabled, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	s := BoardState{
		Voltage:          FromMilli(voltage),
		Frequency:        FromMilli(frequency),
		OutputEnabled:    enabled != 0,
		HasVoltage:       flags&StateHasVoltage != 0,
		HasFrequency:     flags&StateHasFrequency != 0,
		HasOutputEnabled: flags&StateHasOutputEnabled != 0,
	}
	return h.result("update_state", h.board.UpdateState(s))
}

func (h *boardHandlers) sendChannelCount() error {
	count := h.board.ChannelCount()
	return h.reg.Send("channel_count_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(count))
	})
}

func (h *boardHandlers) channelCount(_ *[]byte) error {
	return h.sendChannelCount()
}

func (h *boardHandlers) discover(_ *[]byte) error {
	h.board.Discover()
	return h.sendChannelCount()
}

func (h *boardHandlers) stateOfChannels(_ *[]byte) error {
	bits, err := h.board.Channels()
	return h.reg.Send("state_of_channels_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, StatusOf(err))
		protocol.EncodeVLQBytes(output, bits)
	})
}

func (h *boardHandlers) setStateOfChannels(data *[]byte) error {
	bits, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	return h.result("set_state_of_channels", h.board.SetChannels(ChannelBitmap(bits)))
}

func (h *boardHandlers) setI2CAddress(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if addr > 0xFF {
		return h.result("set_i2c_address", ErrBadAddress)
	}
	return h.result("set_i2c_address", h.board.SetI2CAddress(uint8(addr)))
}

func (h *boardHandlers) setVoltageCode(data *[]byte) error {
	code, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if code > 0xFF {
		return h.result("set_voltage_code", ErrOutOfRange)
	}
	return h.result("set_voltage_code", h.board.SetVoltageCode(uint8(code)))
}
