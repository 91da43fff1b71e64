// Package protocol implements the framed command protocol spoken between
// the host and the switching board: VLQ encoded arguments inside
// length-prefixed, sequence-numbered blocks with a CRC16 trailer and a 0x7E
// sync byte.
package protocol

// Version is the firmware version reported in the data dictionary.
const Version = "0.1.0"

// MessageMax is the size of the firmware's scratch output buffer. It holds
// several frames plus their ACK between flushes.
const MessageMax = 512
