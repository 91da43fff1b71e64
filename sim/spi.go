package sim

import (
	"errors"
	"sync"

	"hvboard/core"
)

// ErrInjected is the failure returned by an armed fault.
var ErrInjected = errors.New("sim: injected bus fault")

// SPIDevice is a peripheral on the simulated SPI bus. Start and Commit
// bracket a chip select assertion.
type SPIDevice interface {
	Start()
	Transfer(b byte) byte
	Commit()
}

// Transfer is one byte clocked on the bus.
type Transfer struct {
	CS   core.GPIOPin
	Data byte
}

// SPIBus routes bytes to the device whose active-low select line is
// asserted. Bytes clocked with no device selected are logged against
// NoSelect.
type SPIBus struct {
	mu        sync.Mutex
	gpio      *GPIO
	devices   map[core.GPIOPin]SPIDevice
	log       []Transfer
	failAfter int // 0 disarmed
}

// NoSelect marks a logged byte that reached no device.
const NoSelect core.GPIOPin = 0xFFFFFFFF

// NewSPIBus returns a bus whose selects are read from gpio.
func NewSPIBus(gpio *GPIO) *SPIBus {
	return &SPIBus{gpio: gpio, devices: make(map[core.GPIOPin]SPIDevice)}
}

// Attach puts dev on the bus behind select line cs.
func (s *SPIBus) Attach(cs core.GPIOPin, dev SPIDevice) {
	s.mu.Lock()
	s.devices[cs] = dev
	s.mu.Unlock()

	s.gpio.Watch(cs, func(level bool) {
		if level {
			dev.Commit()
		} else {
			dev.Start()
		}
	})
}

// FailAfter makes the (n+1)th transfer from now fail. n < 0 disarms.
func (s *SPIBus) FailAfter(n int) {
	s.mu.Lock()
	if n < 0 {
		s.failAfter = 0
	} else {
		s.failAfter = n + 1
	}
	s.mu.Unlock()
}

func (s *SPIBus) Transfer(b byte) (byte, error) {
	s.mu.Lock()
	if s.failAfter > 0 {
		s.failAfter--
		if s.failAfter == 0 {
			s.mu.Unlock()
			return 0, ErrInjected
		}
	}
	cs, dev := NoSelect, SPIDevice(nil)
	for pin, d := range s.devices {
		if !s.gpio.Level(pin) {
			cs, dev = pin, d
			break
		}
	}
	s.log = append(s.log, Transfer{CS: cs, Data: b})
	s.mu.Unlock()

	if dev == nil {
		return 0, nil
	}
	return dev.Transfer(b), nil
}

func (s *SPIBus) Tx(w, r []byte) error {
	for i, b := range w {
		got, err := s.Transfer(b)
		if err != nil {
			return err
		}
		if i < len(r) {
			r[i] = got
		}
	}
	return nil
}

// Log returns every byte clocked since the last ResetLog.
func (s *SPIBus) Log() []Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transfer(nil), s.log...)
}

// Sent returns the bytes that reached the device behind cs.
func (s *SPIBus) Sent(cs core.GPIOPin) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, t := range s.log {
		if t.CS == cs {
			out = append(out, t.Data)
		}
	}
	return out
}

// ResetLog clears the transfer log.
func (s *SPIBus) ResetLog() {
	s.mu.Lock()
	s.log = nil
	s.mu.Unlock()
}
