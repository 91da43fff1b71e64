// Package linuxbus runs the board core on a Linux single-board computer,
// using the kernel's I2C, spidev and GPIO drivers through periph.io.
package linuxbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"hvboard/core"
)

// Config names the buses to open. Empty names pick the first bus of each
// kind.
type Config struct {
	I2C   string
	SPI   string
	SPIHz int64

	// NoI2C skips the I2C bus for shift-register boards.
	NoI2C bool
}

// Bus holds the opened peripherals.
type Bus struct {
	i2c     i2c.BusCloser
	spiPort spi.PortCloser
	SPI     *SPI
	GPIO    *GPIO
	Timer   *core.SchedulerTimer
}

// Open initializes periph.io and opens the buses in cfg.
func Open(cfg Config) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}

	b := &Bus{GPIO: NewGPIO(), Timer: core.NewSchedulerTimer()}

	port, err := spireg.Open(cfg.SPI)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", cfg.SPI, err)
	}
	hz := cfg.SPIHz
	if hz == 0 {
		hz = 1000000
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}
	b.spiPort = port
	b.SPI = &SPI{conn: conn}

	if !cfg.NoI2C {
		bus, err := i2creg.Open(cfg.I2C)
		if err != nil {
			port.Close()
			return nil, fmt.Errorf("open i2c %q: %w", cfg.I2C, err)
		}
		b.i2c = bus
	}
	return b, nil
}

// HAL returns the capabilities for core.NewBoard.
func (b *Bus) HAL() core.HAL {
	h := core.HAL{
		SPI:   b.SPI,
		GPIO:  b.GPIO,
		Timer: b.Timer,
		Delay: Delay,
	}
	if b.i2c != nil {
		h.I2C = b.i2c
	}
	return h
}

// Close releases the buses.
func (b *Bus) Close() error {
	var errs []error
	if b.i2c != nil {
		errs = append(errs, b.i2c.Close())
	}
	if b.spiPort != nil {
		errs = append(errs, b.spiPort.Close())
	}
	return errors.Join(errs...)
}

// Delay sleeps for us microseconds.
func Delay(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// SPI adapts a periph spi.Conn to the byte-level bus the core expects.
type SPI struct {
	conn spi.Conn
}

// Tx writes w while reading into r. periph needs equal lengths, so a
// lone read clocks out zeros and a short read buffer is padded.
func (s *SPI) Tx(w, r []byte) error {
	if r == nil || len(r) == len(w) {
		return s.conn.Tx(w, r)
	}
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	wb := make([]byte, n)
	copy(wb, w)
	rb := make([]byte, n)
	if err := s.conn.Tx(wb, rb); err != nil {
		return err
	}
	copy(r, rb)
	return nil
}

// Transfer clocks one byte.
func (s *SPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.conn.Tx([]byte{b}, r[:])
	return r[0], err
}

// GPIO maps core pin numbers to the board's GPIO<n> lines.
type GPIO struct {
	mu     sync.Mutex
	pins   map[core.GPIOPin]gpio.PinIO
	lookup func(name string) gpio.PinIO
}

// NewGPIO resolves pins through the periph registry.
func NewGPIO() *GPIO {
	return &GPIO{pins: make(map[core.GPIOPin]gpio.PinIO), lookup: gpioreg.ByName}
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	name := fmt.Sprintf("GPIO%d", pin)
	p := g.lookup(name)
	if p == nil {
		return fmt.Errorf("gpio %s not found", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("gpio %s: %w", name, err)
	}
	g.mu.Lock()
	g.pins[pin] = p
	g.mu.Unlock()
	return nil
}

func (g *GPIO) pin(pin core.GPIOPin) (gpio.PinIO, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pins[pin]
	if !ok {
		return nil, fmt.Errorf("gpio %d not configured", pin)
	}
	return p, nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	p, err := g.pin(pin)
	if err != nil {
		return err
	}
	return p.Out(gpio.Level(value))
}

func (g *GPIO) GetPin(pin core.GPIOPin) (bool, error) {
	p, err := g.pin(pin)
	if err != nil {
		return false, err
	}
	return bool(p.Read()), nil
}
