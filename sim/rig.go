package sim

import (
	"sync"

	"hvboard/core"
)

// DelayRecorder stands in for a busy-wait and remembers what was asked.
type DelayRecorder struct {
	mu    sync.Mutex
	calls int
	total uint64
}

func (d *DelayRecorder) Delay(us uint32) {
	d.mu.Lock()
	d.calls++
	d.total += uint64(us)
	d.mu.Unlock()
}

// Calls returns the number of delays requested.
func (d *DelayRecorder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Total returns the summed delay in microseconds.
func (d *DelayRecorder) Total() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// Rig is a complete simulated board: control lines, the SPI bus with its
// shift chain and pot, and for expander boards the I2C cascade.
type Rig struct {
	Variant core.Variant
	Pins    core.Pins

	GPIO   *GPIO
	SPI    *SPIBus
	Chain  *ShiftChain
	Pot    *Pot
	I2C    *Cascade
	Timer  *core.SchedulerTimer
	Delays *DelayRecorder
}

// DefaultExpanderBase is where NewRig places the cascade.
const DefaultExpanderBase = 0x20

// NewRig wires up a board of variant v with the reference pin map. For
// the expander variant, expanders chips are placed from
// DefaultExpanderBase.
func NewRig(v core.Variant, expanders int) *Rig {
	pins := core.DefaultPins(v)
	gpio := NewGPIO()

	chainLen := uint16(8)
	if v == core.VariantHV507 {
		chainLen = 128
	}

	r := &Rig{
		Variant: v,
		Pins:    pins,
		GPIO:    gpio,
		SPI:     NewSPIBus(gpio),
		Chain:   NewShiftChain(chainLen),
		Pot:     NewPot(),
		I2C:     NewCascade(DefaultExpanderBase, expanders),
		Timer:   core.NewSchedulerTimer(),
		Delays:  &DelayRecorder{},
	}
	r.SPI.Attach(pins.Latch, r.Chain)
	r.SPI.Attach(pins.PotCS, r.Pot)
	return r
}

// HAL returns the capabilities a core.Board runs on.
func (r *Rig) HAL() core.HAL {
	return core.HAL{
		I2C:   r.I2C,
		SPI:   r.SPI,
		GPIO:  r.GPIO,
		Timer: r.Timer,
		Delay: r.Delays.Delay,
	}
}

// Board builds a core.Board on the rig. The rig's pin map always applies.
func (r *Rig) Board(opts ...core.Option) (*core.Board, error) {
	all := append([]core.Option{core.WithPins(r.Pins)}, opts...)
	return core.NewBoard(r.Variant, r.HAL(), all...)
}

// Advance moves the clock forward by us microseconds and runs whatever
// timers fell due.
func (r *Rig) Advance(us uint32) {
	core.SetTime(core.GetTime() + core.TimerFromUS(us))
	core.ProcessTimers()
}
