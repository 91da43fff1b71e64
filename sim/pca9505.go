package sim

import (
	"errors"
	"sort"
	"sync"

	"hvboard/core"
)

// ErrNoDevice is returned for a transaction nobody acknowledges.
var ErrNoDevice = errors.New("sim: no acknowledge")

const (
	pcaRegisters   = core.PCA9505Mask + core.PCA9505Ports
	pcaAutoInc     = 0x80
	pcaPointerMask = 0x3F
)

// Expander is one simulated PCA9505. Auto-increment is not modelled: every
// data byte of a transaction lands on the register the pointer names.
type Expander struct {
	mu   sync.Mutex
	regs [pcaRegisters]byte
	ptr  byte

	nak        bool
	stuckPort  int // IO config writes to this port are ignored; -1 none
	dropOutput bool
}

func newExpander() *Expander {
	e := &Expander{stuckPort: -1}
	for p := 0; p < core.PCA9505Ports; p++ {
		e.regs[core.PCA9505IOConfig+p] = 0xFF
	}
	return e
}

// SetNAK makes the chip ignore its address.
func (e *Expander) SetNAK(nak bool) {
	e.mu.Lock()
	e.nak = nak
	e.mu.Unlock()
}

// StickPort makes IO config writes to port have no effect. -1 clears it.
func (e *Expander) StickPort(port int) {
	e.mu.Lock()
	e.stuckPort = port
	e.mu.Unlock()
}

// DropOutputWrites makes output port writes acknowledge without effect.
func (e *Expander) DropOutputWrites(drop bool) {
	e.mu.Lock()
	e.dropOutput = drop
	e.mu.Unlock()
}

// Register returns the raw value of reg.
func (e *Expander) Register(reg byte) byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs[reg]
}

// Outputs returns the five output port registers.
func (e *Expander) Outputs() [core.PCA9505Ports]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out [core.PCA9505Ports]byte
	copy(out[:], e.regs[core.PCA9505OutputPort:])
	return out
}

func (e *Expander) tx(w, r []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.nak {
		return ErrNoDevice
	}
	if len(w) > 0 {
		e.ptr = w[0] &^ pcaAutoInc & pcaPointerMask
		if int(e.ptr) >= pcaRegisters {
			return ErrNoDevice
		}
		for _, v := range w[1:] {
			e.write(e.ptr, v)
		}
	}
	for i := range r {
		r[i] = e.read(e.ptr)
	}
	return nil
}

func (e *Expander) write(reg, v byte) {
	switch {
	case reg < core.PCA9505OutputPort:
		// input ports are read only
	case reg < core.PCA9505Polarity:
		if e.dropOutput {
			return
		}
	case reg >= core.PCA9505IOConfig && reg < core.PCA9505Mask:
		if int(reg-core.PCA9505IOConfig) == e.stuckPort {
			return
		}
	}
	e.regs[reg] = v
}

func (e *Expander) read(reg byte) byte {
	if reg < core.PCA9505OutputPort {
		// output bits follow the output register, inputs float high
		cfg := e.regs[core.PCA9505IOConfig+reg]
		return e.regs[core.PCA9505OutputPort+reg]&^cfg | cfg
	}
	return e.regs[reg]
}

// Cascade is an I2C bus populated with PCA9505s. It implements
// drivers.I2C.
type Cascade struct {
	mu    sync.Mutex
	chips map[uint16]*Expander
	txs   int
}

// NewCascade returns n expanders at consecutive addresses from base.
func NewCascade(base uint8, n int) *Cascade {
	c := &Cascade{chips: make(map[uint16]*Expander)}
	for i := 0; i < n; i++ {
		c.Add(base + uint8(i))
	}
	return c
}

// Add places a fresh expander at addr.
func (c *Cascade) Add(addr uint8) *Expander {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := newExpander()
	c.chips[uint16(addr)] = e
	return e
}

// Remove takes the expander at addr off the bus.
func (c *Cascade) Remove(addr uint8) {
	c.mu.Lock()
	delete(c.chips, uint16(addr))
	c.mu.Unlock()
}

// Chip returns the expander at addr, or nil.
func (c *Cascade) Chip(addr uint8) *Expander {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chips[uint16(addr)]
}

// Addresses lists the populated addresses in order.
func (c *Cascade) Addresses() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint8, 0, len(c.chips))
	for a := range c.chips {
		out = append(out, uint8(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Transactions counts Tx calls, acknowledged or not.
func (c *Cascade) Transactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txs
}

func (c *Cascade) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	c.txs++
	e := c.chips[addr]
	c.mu.Unlock()
	if e == nil {
		return ErrNoDevice
	}
	return e.tx(w, r)
}

// Channels decodes the output registers of chips expanders from base into
// a channel bitmap. The board inverts the outputs, so a low bit is an
// active channel.
func (c *Cascade) Channels(base uint8, chips int) core.ChannelBitmap {
	b := core.NewChannelBitmap(uint16(chips * core.ChannelsPerChip))
	for i := 0; i < chips; i++ {
		e := c.Chip(base + uint8(i))
		if e == nil {
			continue
		}
		out := e.Outputs()
		for p, v := range out {
			b[i*core.PCA9505Ports+p] = ^v
		}
	}
	return b
}
