package sim

import "sync"

// Pot models an MCP41050 digital potentiometer. A framed write is a command
// byte with C1:C0 = 01 followed by the wiper code. A single byte frame is
// taken as a bare code, as the HV507 boost converter expects.
type Pot struct {
	mu      sync.Mutex
	frame   []byte
	wiper   uint8
	writes  int
	raw     bool
	invalid int
}

// NewPot returns a pot at mid-scale.
func NewPot() *Pot {
	return &Pot{wiper: 0x80}
}

func (p *Pot) Start() {
	p.mu.Lock()
	p.frame = p.frame[:0]
	p.mu.Unlock()
}

func (p *Pot) Transfer(b byte) byte {
	p.mu.Lock()
	p.frame = append(p.frame, b)
	p.mu.Unlock()
	return 0
}

func (p *Pot) Commit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case len(p.frame) == 2 && p.frame[0]&0x30 == 0x10:
		p.wiper = p.frame[1]
		p.raw = false
	case len(p.frame) == 1:
		p.wiper = p.frame[0]
		p.raw = true
	case len(p.frame) == 0:
		return
	default:
		p.invalid++
		return
	}
	p.writes++
}

// Wiper returns the last code written.
func (p *Pot) Wiper() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wiper
}

// Writes counts accepted frames.
func (p *Pot) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// Raw reports whether the last write was a bare code.
func (p *Pot) Raw() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raw
}

// Invalid counts frames that were neither form.
func (p *Pot) Invalid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invalid
}
