// Package board is the host client for a switching board. It downloads the
// board's data dictionary and exposes the command set as typed methods.
package board

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"hvboard/core"
	"hvboard/protocol"
)

// IDs of the identify pair, fixed before any dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1
)

// maxDictionary bounds the identify download.
const maxDictionary = 64 * 1024

// Client talks to one board. Methods are safe for concurrent use; calls
// are serialized on the link.
type Client struct {
	tr      *protocol.HostTransport
	limiter *rate.Limiter
	timeout time.Duration
	chunk   uint8
	logger  *log.Logger

	mu    sync.Mutex
	dict  *Dictionary
	cfg   core.BoardConfig
	count uint16
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets how long a call waits for its ACK and response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRate limits commands to r per second with the given burst.
func WithRate(r float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// WithLogger sets where the client logs. The default discards.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithChunkSize sets the identify chunk size.
func WithChunkSize(n uint8) Option {
	return func(c *Client) { c.chunk = n }
}

// Connect starts a transport on port, downloads the dictionary and caches
// the board configuration and channel count. Closing the client closes
// port.
func Connect(port io.ReadWriteCloser, opts ...Option) (*Client, error) {
	c := &Client{
		tr:      protocol.NewHostTransport(port),
		limiter: rate.NewLimiter(rate.Limit(500), 16),
		timeout: 2 * time.Second,
		chunk:   40,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}

	op := func() error {
		err := c.identify()
		var perr *dictError
		if errors.As(err, &perr) || errors.Is(err, protocol.ErrTransportClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Second,
		MaxElapsedTime:      5 * time.Second,
		Clock:               backoff.SystemClock,
	})
	if err != nil {
		c.tr.Close()
		return nil, fmt.Errorf("identify: %w", err)
	}

	if _, err := c.Config(); err != nil {
		c.tr.Close()
		return nil, err
	}
	if _, err := c.ChannelCount(); err != nil {
		c.tr.Close()
		return nil, err
	}
	return c, nil
}

// dictError marks a dictionary that arrived but could not be used.
type dictError struct{ err error }

func (e *dictError) Error() string { return e.err.Error() }
func (e *dictError) Unwrap() error { return e.err }

func (c *Client) identify() error {
	var raw bytes.Buffer
	for raw.Len() < maxDictionary {
		offset := uint32(raw.Len())
		msg, err := c.tr.Call(identifyID, func(o protocol.OutputBuffer) {
			protocol.EncodeVLQUint(o, offset)
			protocol.EncodeVLQUint(o, uint32(c.chunk))
		}, identifyResponseID, c.timeout)
		if err != nil {
			return err
		}

		args := msg.Args
		got, err := protocol.DecodeVLQUint(&args)
		if err != nil {
			return err
		}
		if got != offset {
			return fmt.Errorf("identify offset %d, asked for %d", got, offset)
		}
		data, err := protocol.DecodeVLQBytes(&args)
		if err != nil {
			return err
		}
		raw.Write(data)
		if len(data) < int(c.chunk) {
			break
		}
	}

	dict, err := ParseDictionary(raw.Bytes())
	if err != nil {
		return &dictError{err}
	}
	c.logger.Printf("dictionary %s: %d bytes, %d commands", dict.Version, raw.Len(), len(dict.Commands))

	c.mu.Lock()
	c.dict = dict
	c.mu.Unlock()
	return nil
}

// Close shuts down the transport and the port under it.
func (c *Client) Close() error {
	return c.tr.Close()
}

// Dictionary returns the dictionary downloaded at connect time.
func (c *Client) Dictionary() *Dictionary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dict
}

// Variant reports the board topology named in the dictionary.
func (c *Client) Variant() (core.Variant, error) {
	return core.ParseVariant(c.Dictionary().Config["BOARD"])
}

// call sends the named command and waits for the named response.
func (c *Client) call(cmd, resp string, args func(protocol.OutputBuffer)) ([]byte, error) {
	dict := c.Dictionary()
	cmdID, err := dict.CommandID(cmd)
	if err != nil {
		return nil, err
	}
	respID, err := dict.ResponseID(resp)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}

	msg, err := c.tr.Call(cmdID, args, respID, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return msg.Args, nil
}

// exec runs a command answered by a result message and turns a failing
// status into an error wrapping its core.Code.
func (c *Client) exec(cmd string, args func(protocol.OutputBuffer)) error {
	data, err := c.call(cmd, "result", args)
	if err != nil {
		return err
	}
	echo, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return err
	}
	status, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return err
	}
	if want, _ := c.Dictionary().CommandID(cmd); uint16(echo) != want {
		return fmt.Errorf("%s: result for command %d", cmd, echo)
	}
	if code := c.statusCode(status); code != core.OK {
		return fmt.Errorf("%s: %w", cmd, code)
	}
	return nil
}

func (c *Client) statusCode(status uint32) core.Code {
	if name, ok := c.Dictionary().EnumName("status", int(status)); ok {
		return core.Code(name)
	}
	return core.CodeFromStatus(status)
}

// Clock returns the board's timer value.
func (c *Client) Clock() (uint32, error) {
	data, err := c.call("get_clock", "clock", nil)
	if err != nil {
		return 0, err
	}
	return protocol.DecodeVLQUint(&data)
}

func (c *Client) decodeCount(data []byte) (int, error) {
	n, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.count = uint16(n)
	c.mu.Unlock()
	return int(n), nil
}

// ChannelCount returns the number of channels the board drives.
func (c *Client) ChannelCount() (int, error) {
	data, err := c.call("channel_count", "channel_count_response", nil)
	if err != nil {
		return 0, err
	}
	return c.decodeCount(data)
}

// Discover makes an expander board rescan its cascade and returns the new
// channel count.
func (c *Client) Discover() (int, error) {
	data, err := c.call("discover_channels", "channel_count_response", nil)
	if err != nil {
		return 0, err
	}
	return c.decodeCount(data)
}

// StateOfChannels returns one entry per channel.
func (c *Client) StateOfChannels() ([]bool, error) {
	data, err := c.call("state_of_channels", "state_of_channels_response", nil)
	if err != nil {
		return nil, err
	}
	status, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return nil, err
	}
	bits, err := protocol.DecodeVLQBytes(&data)
	if err != nil {
		return nil, err
	}
	if code := c.statusCode(status); code != core.OK {
		return nil, fmt.Errorf("state_of_channels: %w", code)
	}

	c.mu.Lock()
	count := int(c.count)
	c.mu.Unlock()
	return core.ChannelBitmap(bits).Bools(count), nil
}

// SetStateOfChannels sets every channel. states must cover the whole board.
func (c *Client) SetStateOfChannels(states []bool) error {
	c.mu.Lock()
	count := int(c.count)
	c.mu.Unlock()
	if len(states) != count {
		return fmt.Errorf("%d states for %d channels: %w", len(states), count, core.ErrBadLength)
	}
	bits := core.BitmapFromBools(states)
	return c.exec("set_state_of_channels", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(o, bits)
	})
}

func encodeConfig(o protocol.OutputBuffer, cfg core.BoardConfig) {
	protocol.EncodeVLQString(o, cfg.SerialNumber)
	protocol.EncodeVLQUint(o, cfg.BaudRate)
	protocol.EncodeVLQUint(o, uint32(cfg.I2CAddress))
	protocol.EncodeVLQUint(o, uint32(cfg.SwitchingBoardI2CAddress))
	protocol.EncodeVLQInt(o, core.ToMilli(cfg.MinWaveformFrequency))
	protocol.EncodeVLQInt(o, core.ToMilli(cfg.MaxWaveformFrequency))
	protocol.EncodeVLQInt(o, core.ToMilli(cfg.MaxWaveformVoltage))
}

// Config reads the board configuration and refreshes the cached copy.
func (c *Client) Config() (core.BoardConfig, error) {
	data, err := c.call("get_config", "config_response", nil)
	if err != nil {
		return core.BoardConfig{}, err
	}
	cfg, err := core.DecodeConfig(&data)
	if err != nil {
		return cfg, err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return cfg, nil
}

// UpdateConfig replaces the board configuration. It is not persisted until
// SaveConfig.
func (c *Client) UpdateConfig(cfg core.BoardConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("update_config: %w", err)
	}
	if err := c.exec("update_config", func(o protocol.OutputBuffer) { encodeConfig(o, cfg) }); err != nil {
		return err
	}
	_, err := c.Config()
	return err
}

// SaveConfig persists the current configuration on the board.
func (c *Client) SaveConfig() error {
	return c.exec("save_config", nil)
}

// ResetConfig restores the factory configuration.
func (c *Client) ResetConfig() error {
	if err := c.exec("reset_config", nil); err != nil {
		return err
	}
	_, err := c.Config()
	return err
}

// State reads voltage, frequency and output enable.
func (c *Client) State() (core.BoardState, error) {
	data, err := c.call("get_state", "state_response", nil)
	if err != nil {
		return core.BoardState{}, err
	}
	var s core.BoardState
	voltage, err := protocol.DecodeVLQInt(&data)
	if err != nil {
		return s, err
	}
	frequency, err := protocol.DecodeVLQInt(&data)
	if err != nil {
		return s, err
	}
	enabled, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return s, err
	}
	valid, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return s, err
	}
	s.Voltage = core.FromMilli(voltage)
	s.Frequency = core.FromMilli(frequency)
	s.OutputEnabled = enabled != 0
	s.HasVoltage = valid != 0
	s.HasFrequency = true
	s.HasOutputEnabled = true
	return s, nil
}

// UpdateState applies the fields of s whose Has flag is set.
func (c *Client) UpdateState(s core.BoardState) error {
	var flags uint32
	if s.HasVoltage {
		flags |= core.StateHasVoltage
	}
	if s.HasFrequency {
		flags |= core.StateHasFrequency
	}
	if s.HasOutputEnabled {
		flags |= core.StateHasOutputEnabled
	}
	var enabled uint32
	if s.OutputEnabled {
		enabled = 1
	}
	return c.exec("update_state", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, flags)
		protocol.EncodeVLQInt(o, core.ToMilli(s.Voltage))
		protocol.EncodeVLQInt(o, core.ToMilli(s.Frequency))
		protocol.EncodeVLQUint(o, enabled)
	})
}

// SetVoltage sets the waveform amplitude. Values above the board's
// max_waveform_voltage are refused here without reaching the board.
func (c *Client) SetVoltage(v float64) error {
	c.mu.Lock()
	limit := float64(c.cfg.MaxWaveformVoltage)
	c.mu.Unlock()
	if math.IsNaN(v) || v > limit {
		return fmt.Errorf("%.2f V above the %.2f V limit: %w", v, limit, core.ErrOutOfRange)
	}
	return c.UpdateState(core.BoardState{Voltage: float32(v), HasVoltage: true})
}

// SetFrequency sets the blanking frequency in Hz. Zero holds the outputs
// in DC.
func (c *Client) SetFrequency(f float64) error {
	return c.UpdateState(core.BoardState{Frequency: float32(f), HasFrequency: true})
}

// SetOutputEnabled gates every channel on or off.
func (c *Client) SetOutputEnabled(enabled bool) error {
	return c.UpdateState(core.BoardState{OutputEnabled: enabled, HasOutputEnabled: true})
}

// SetI2CAddress changes the board's own I2C address.
func (c *Client) SetI2CAddress(addr uint8) error {
	if err := c.exec("set_i2c_address", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(addr))
	}); err != nil {
		return err
	}
	_, err := c.Config()
	return err
}

// SetVoltageCode writes a raw boost converter code. Only HV507 boards
// accept it.
func (c *Client) SetVoltageCode(code uint8) error {
	return c.exec("set_voltage_code", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(code))
	})
}

// Reset asks the board to restart. There is no response.
func (c *Client) Reset() error {
	id, err := c.Dictionary().CommandID("reset")
	if err != nil {
		return err
	}
	return c.tr.SendCommandWithTimeout(id, nil, c.timeout)
}
