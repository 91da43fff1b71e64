// Package sim provides in-memory models of the switching board's
// peripherals: GPIO lines, an SPI bus with HV shift registers and an
// MCP41050 pot, and a cascade of PCA9505 I2C expanders. Together they
// satisfy core.HAL, so the firmware core runs unchanged in tests and in
// the hvboard-sim daemon.
package sim

import (
	"errors"
	"sync"

	"hvboard/core"
)

// ErrNotOutput is returned when a pin is driven before it is configured.
var ErrNotOutput = errors.New("sim: pin not configured as output")

// GPIO is a bank of simulated pins. Watchers see every level change.
type GPIO struct {
	mu       sync.Mutex
	outputs  map[core.GPIOPin]bool
	levels   map[core.GPIOPin]bool
	edges    map[core.GPIOPin]int
	watchers map[core.GPIOPin][]func(level bool)
}

// NewGPIO returns a bank with every pin low and unconfigured.
func NewGPIO() *GPIO {
	return &GPIO{
		outputs:  make(map[core.GPIOPin]bool),
		levels:   make(map[core.GPIOPin]bool),
		edges:    make(map[core.GPIOPin]int),
		watchers: make(map[core.GPIOPin][]func(bool)),
	}
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.mu.Lock()
	g.outputs[pin] = true
	g.mu.Unlock()
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	if !g.outputs[pin] {
		g.mu.Unlock()
		return ErrNotOutput
	}
	changed := g.levels[pin] != value
	g.levels[pin] = value
	var watchers []func(bool)
	if changed {
		g.edges[pin]++
		watchers = g.watchers[pin]
	}
	g.mu.Unlock()

	for _, w := range watchers {
		w(value)
	}
	return nil
}

func (g *GPIO) GetPin(pin core.GPIOPin) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin], nil
}

// Level returns the driven level of pin.
func (g *GPIO) Level(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin]
}

// Configured reports whether pin was put in output mode.
func (g *GPIO) Configured(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outputs[pin]
}

// Edges returns how many times pin changed level.
func (g *GPIO) Edges(pin core.GPIOPin) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges[pin]
}

// Watch registers fn to run after every change of pin.
func (g *GPIO) Watch(pin core.GPIOPin, fn func(level bool)) {
	g.mu.Lock()
	g.watchers[pin] = append(g.watchers[pin], fn)
	g.mu.Unlock()
}
