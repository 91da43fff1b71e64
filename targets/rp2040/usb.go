//go:build rp2040

package main

import "machine"

// InitUSB configures the USB CDC port the host talks to.
func InitUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of received bytes waiting.
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads one byte.
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes data and reports how much was taken.
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
