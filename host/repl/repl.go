// Package repl is the interactive command shell of hvboard-host.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"hvboard/core"
	"hvboard/host/httpapi"
)

// Board is what the shell drives. *board.Client implements it.
type Board interface {
	httpapi.Board
	SetI2CAddress(addr uint8) error
	SetVoltageCode(code uint8) error
	ResetConfig() error
	Clock() (uint32, error)
}

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("quit")

type command struct {
	usage string
	run   func(s *Shell, args []string) error
}

// Shell parses command lines and runs them against a board.
type Shell struct {
	board Board
	out   io.Writer

	// Dictionary, if set, is printed by the dict command.
	Dictionary func() string

	commands map[string]command
}

// New returns a shell printing to out.
func New(b Board, out io.Writer) *Shell {
	s := &Shell{board: b, out: out}
	s.commands = map[string]command{
		"help":      {"help", (*Shell).help},
		"dict":      {"dict", (*Shell).dict},
		"clock":     {"clock", (*Shell).clock},
		"count":     {"count", (*Shell).count},
		"discover":  {"discover", (*Shell).discover},
		"channels":  {"channels", (*Shell).channels},
		"on":        {"on <channel>...", (*Shell).on},
		"off":       {"off <channel>...", (*Shell).off},
		"all":       {"all on|off", (*Shell).all},
		"voltage":   {"voltage [volts]", (*Shell).voltage},
		"code":      {"code <0-255>", (*Shell).code},
		"frequency": {"frequency [hz]", (*Shell).frequency},
		"output":    {"output [on|off]", (*Shell).output},
		"config":    {"config [key value]...", (*Shell).config},
		"save":      {"save", func(s *Shell, _ []string) error { return s.board.SaveConfig() }},
		"defaults":  {"defaults", func(s *Shell, _ []string) error { return s.board.ResetConfig() }},
		"i2c":       {"i2c <address>", (*Shell).i2c},
		"quit":      {"quit", func(*Shell, []string) error { return ErrQuit }},
	}
	return s
}

// Run reads lines from in until EOF or quit. Command errors are printed
// and do not stop the loop.
func (s *Shell) Run(in io.Reader, prompt string) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, prompt)
		if !sc.Scan() {
			return sc.Err()
		}
		err := s.Exec(sc.Text())
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// Exec runs one command line.
func (s *Shell) Exec(line string) error {
	words, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}
	name := words[0]
	switch name {
	case "?":
		name = "help"
	case "exit", "q":
		name = "quit"
	}
	cmd, ok := s.commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", words[0])
	}
	return cmd.run(s, words[1:])
}

func (s *Shell) help(_ []string) error {
	names := []string{"help", "dict", "clock", "count", "discover", "channels", "on", "off", "all",
		"voltage", "code", "frequency", "output", "config", "save", "defaults", "i2c", "quit"}
	for _, n := range names {
		fmt.Fprintf(s.out, "  %s\n", s.commands[n].usage)
	}
	return nil
}

func (s *Shell) dict(_ []string) error {
	if s.Dictionary == nil {
		return errors.New("no dictionary")
	}
	fmt.Fprint(s.out, s.Dictionary())
	return nil
}

func (s *Shell) clock(_ []string) error {
	c, err := s.board.Clock()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d\n", c)
	return nil
}

func (s *Shell) count(_ []string) error {
	n, err := s.board.ChannelCount()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d channels\n", n)
	return nil
}

func (s *Shell) discover(_ []string) error {
	n, err := s.board.Discover()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d channels\n", n)
	return nil
}

// channels prints one character per channel, eight to a group.
func (s *Shell) channels(_ []string) error {
	states, err := s.board.StateOfChannels()
	if err != nil {
		return err
	}
	var b strings.Builder
	for i, on := range states {
		if i > 0 && i%8 == 0 {
			b.WriteByte(' ')
		}
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	fmt.Fprintln(s.out, b.String())
	return nil
}

func (s *Shell) switchChannels(args []string, on bool) error {
	if len(args) == 0 {
		return errors.New("no channels given")
	}
	states, err := s.board.StateOfChannels()
	if err != nil {
		return err
	}
	for _, a := range args {
		i, err := strconv.Atoi(a)
		if err != nil {
			return err
		}
		if i < 0 || i >= len(states) {
			return fmt.Errorf("channel %d: %w", i, core.ErrOutOfRange)
		}
		states[i] = on
	}
	return s.board.SetStateOfChannels(states)
}

func (s *Shell) on(args []string) error  { return s.switchChannels(args, true) }
func (s *Shell) off(args []string) error { return s.switchChannels(args, false) }

func (s *Shell) all(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: all on|off")
	}
	on, err := parseOnOff(args[0])
	if err != nil {
		return err
	}
	n, err := s.board.ChannelCount()
	if err != nil {
		return err
	}
	states := make([]bool, n)
	for i := range states {
		states[i] = on
	}
	return s.board.SetStateOfChannels(states)
}

func parseOnOff(w string) (bool, error) {
	switch strings.ToLower(w) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("%q is not on or off", w)
}

func (s *Shell) voltage(args []string) error {
	if len(args) == 0 {
		st, err := s.board.State()
		if err != nil {
			return err
		}
		if !st.HasVoltage {
			fmt.Fprintln(s.out, "voltage not set")
			return nil
		}
		fmt.Fprintf(s.out, "%.2f V\n", st.Voltage)
		return nil
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	return s.board.SetVoltage(v)
}

func (s *Shell) code(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: code <0-255>")
	}
	c, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return err
	}
	return s.board.SetVoltageCode(uint8(c))
}

func (s *Shell) frequency(args []string) error {
	if len(args) == 0 {
		st, err := s.board.State()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%g Hz\n", st.Frequency)
		return nil
	}
	f, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	return s.board.SetFrequency(f)
}

func (s *Shell) output(args []string) error {
	if len(args) == 0 {
		st, err := s.board.State()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "output enabled: %v\n", st.OutputEnabled)
		return nil
	}
	on, err := parseOnOff(args[0])
	if err != nil {
		return err
	}
	return s.board.SetOutputEnabled(on)
}

func (s *Shell) i2c(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: i2c <address>")
	}
	a, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return err
	}
	return s.board.SetI2CAddress(uint8(a))
}

// config prints the configuration, or sets fields given as key value
// pairs.
func (s *Shell) config(args []string) error {
	cfg, err := s.board.Config()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Fprintf(s.out, "serial_number               %q\n", cfg.SerialNumber)
		fmt.Fprintf(s.out, "baud_rate                   %d\n", cfg.BaudRate)
		fmt.Fprintf(s.out, "i2c_address                 0x%02X\n", cfg.I2CAddress)
		fmt.Fprintf(s.out, "switching_board_i2c_address 0x%02X\n", cfg.SwitchingBoardI2CAddress)
		fmt.Fprintf(s.out, "min_waveform_frequency      %g\n", cfg.MinWaveformFrequency)
		fmt.Fprintf(s.out, "max_waveform_frequency      %g\n", cfg.MaxWaveformFrequency)
		fmt.Fprintf(s.out, "max_waveform_voltage        %g\n", cfg.MaxWaveformVoltage)
		return nil
	}
	if len(args)%2 != 0 {
		return errors.New("usage: config [key value]...")
	}
	for i := 0; i < len(args); i += 2 {
		if err := setField(&cfg, args[i], args[i+1]); err != nil {
			return err
		}
	}
	return s.board.UpdateConfig(cfg)
}

func setField(cfg *core.BoardConfig, key, val string) error {
	parseU8 := func(dst *uint8) error {
		v, err := strconv.ParseUint(val, 0, 8)
		*dst = uint8(v)
		return err
	}
	parseF := func(dst *float32) error {
		v, err := strconv.ParseFloat(val, 32)
		*dst = float32(v)
		return err
	}
	switch key {
	case "serial_number":
		cfg.SerialNumber = val
		return nil
	case "baud_rate":
		v, err := strconv.ParseUint(val, 10, 32)
		cfg.BaudRate = uint32(v)
		return err
	case "i2c_address":
		return parseU8(&cfg.I2CAddress)
	case "switching_board_i2c_address":
		return parseU8(&cfg.SwitchingBoardI2CAddress)
	case "min_waveform_frequency":
		return parseF(&cfg.MinWaveformFrequency)
	case "max_waveform_frequency":
		return parseF(&cfg.MaxWaveformFrequency)
	case "max_waveform_voltage":
		return parseF(&cfg.MaxWaveformVoltage)
	}
	return fmt.Errorf("unknown config key %q", key)
}
