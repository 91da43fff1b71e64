package sim

import (
	"sync"

	"hvboard/core"
)

// ShiftChain models a daisy chain of HV507 or HV513 shift registers. Bytes
// shift in while the latch is low and reach the outputs when it rises.
type ShiftChain struct {
	mu      sync.Mutex
	count   uint16
	pending []byte
	outputs core.ChannelBitmap
	commits int
}

// NewShiftChain returns a chain of count channels, all off.
func NewShiftChain(count uint16) *ShiftChain {
	return &ShiftChain{count: count, outputs: core.NewChannelBitmap(count)}
}

func (c *ShiftChain) Start() {
	c.mu.Lock()
	c.pending = c.pending[:0]
	c.mu.Unlock()
}

func (c *ShiftChain) Transfer(b byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, b)
	// what falls off the far end of the chain
	n := core.BitmapLen(c.count)
	if len(c.pending) > n {
		return c.pending[len(c.pending)-n-1]
	}
	return 0
}

// Commit latches the last chain-length bytes shifted in. A short burst
// latches nothing.
func (c *ShiftChain) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := core.BitmapLen(c.count)
	if len(c.pending) < n {
		return
	}
	copy(c.outputs, c.pending[len(c.pending)-n:])
	c.commits++
}

// Outputs returns the latched channel state.
func (c *ShiftChain) Outputs() core.ChannelBitmap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputs.Clone()
}

// Commits counts latch edges that updated the outputs.
func (c *ShiftChain) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}
