package core

import "tinygo.org/x/drivers"

// PCA9505 register map (auto-increment off).
const (
	PCA9505InputPort  = 0x00
	PCA9505OutputPort = 0x08
	PCA9505Polarity   = 0x10
	PCA9505IOConfig   = 0x18
	PCA9505Mask       = 0x20

	PCA9505Ports = 5

	// ChannelsPerChip is the number of channels one expander drives.
	ChannelsPerChip = PCA9505Ports * 8

	// MaxExpanderChips is the hardware ceiling on a cascade.
	MaxExpanderChips = 8

	// MaxExpanderChannels bounds the channel count of an expander board.
	MaxExpanderChannels = ChannelsPerChip * MaxExpanderChips
)

// writeRegister sets a PCA9505 register.
func writeRegister(bus drivers.I2C, addr uint8, reg, value byte) error {
	return bus.Tx(uint16(addr), []byte{reg, value}, nil)
}

// readRegister reads back the register the command pointer was last set to.
func readRegister(bus drivers.I2C, addr uint8) (byte, error) {
	var buf [1]byte
	if err := bus.Tx(uint16(addr), nil, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// DiscoverChannels scans for a contiguous cascade of PCA9505 expanders
// starting at base and returns the number of channels they provide.
//
// Each candidate address is first probed by writing 0xFF (all inputs) to the
// IO config register and expecting it back. A chip that echoes is claimed by
// switching its five ports to outputs one at a time, each verified, and
// parking each output register at 0xFF (inactive, inverted on the board).
// A probe that does not echo ends the scan. A port that fails to verify
// aborts the scan and leaves the count at the last fully claimed chip.
//
// The cascade is not reset on failure, so a half configured chip may need a
// power cycle before it can be discovered again.
func DiscoverChannels(bus drivers.I2C, base uint8) uint16 {
	var count uint16
	if bus == nil {
		return 0
	}
	for chip := uint8(0); chip < MaxExpanderChips; chip++ {
		addr := base + chip
		if writeRegister(bus, addr, PCA9505IOConfig, 0xFF) != nil {
			break
		}
		if v, err := readRegister(bus, addr); err != nil || v != 0xFF {
			break
		}

		for port := byte(0); port < PCA9505Ports; port++ {
			if writeRegister(bus, addr, PCA9505IOConfig+port, 0x00) != nil {
				return count
			}
			if v, err := readRegister(bus, addr); err != nil || v != 0x00 {
				DebugPrintln("[discover] port verify failed at 0x" + hex8(addr))
				return count
			}
			if writeRegister(bus, addr, PCA9505OutputPort+port, 0xFF) != nil {
				return count
			}
		}

		// Only a chip that directly follows the previous one counts.
		if count == ChannelsPerChip*uint16(chip) {
			count = ChannelsPerChip * uint16(chip+1)
		}
	}
	DebugPrintln("[discover] channels=" + itoa(int(count)))
	return count
}
