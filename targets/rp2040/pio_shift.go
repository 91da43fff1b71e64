//go:build rp2040

package main

import (
	"errors"
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// buildShiftProgram clocks one bit out per loop, MSB first. Autopull
// refills the OSR every 8 bits so each FIFO word carries one byte.
func buildShiftProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Out(rp2pio.OutDestPins, 1).Encode(),          // 0: out pins, 1 (data)
		asm.Set(rp2pio.SetDestPins, 1).Delay(1).Encode(), // 1: set pins, 1 [1] (clock high)
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 2: set pins, 0 (clock low)
		// .wrap
	}
}

const shiftPIOOrigin = 0

// One byte is 8 loops of 4 cycles at 125 MHz / clkDiv.
const (
	shiftClkDiv   = 16
	shiftByteTime = 10 * time.Microsecond
)

var errShiftSMBusy = errors.New("pio shift-out: state machine already claimed")

// pioShiftOut is a write-only mode 0 SPI master on PIO0.
type pioShiftOut struct {
	pio *rp2pio.PIO
	sm  rp2pio.StateMachine
}

func newPIOShiftOut(clk, data machine.Pin) (*pioShiftOut, error) {
	p := &pioShiftOut{pio: rp2pio.PIO0}
	p.sm = p.pio.StateMachine(0)
	if !p.sm.TryClaim() {
		return nil, errShiftSMBusy
	}

	program := buildShiftProgram()
	offset, err := p.pio.AddProgram(program, shiftPIOOrigin)
	if err != nil {
		return nil, err
	}

	clk.Configure(machine.PinConfig{Mode: p.pio.PinMode()})
	data.Configure(machine.PinConfig{Mode: p.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(clk, 1)
	cfg.SetOutPins(data, 1)
	cfg.SetOutShift(false, true, 8)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(shiftClkDiv, 0)

	p.sm.Init(offset, cfg)
	p.sm.SetPindirsConsecutive(clk, 1, true)
	p.sm.SetPindirsConsecutive(data, 1, true)
	p.sm.SetPinsConsecutive(clk, 1, false)
	p.sm.SetEnabled(true)
	return p, nil
}

func (p *pioShiftOut) put(b byte) {
	for p.sm.IsTxFIFOFull() {
	}
	p.sm.TxPut(uint32(b) << 24)
}

// drain returns once the last byte has left the pins, so the caller can
// raise the latch.
func (p *pioShiftOut) drain() {
	for !p.sm.IsTxFIFOEmpty() {
	}
	time.Sleep(shiftByteTime)
}

// Tx shifts w out. Nothing is read back; r is zeroed.
func (p *pioShiftOut) Tx(w, r []byte) error {
	for _, b := range w {
		p.put(b)
	}
	for i := range r {
		r[i] = 0
	}
	p.drain()
	return nil
}

// Transfer shifts one byte and reads back zero.
func (p *pioShiftOut) Transfer(b byte) (byte, error) {
	p.put(b)
	p.drain()
	return 0, nil
}
