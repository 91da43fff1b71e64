package protocol

// frameStatus is the outcome of scanning the front of a receive buffer.
type frameStatus uint8

const (
	frameOK       frameStatus = iota // a complete, valid block
	frameNeedMore                    // keep the bytes and wait for more
	frameBad                         // drop sync and hunt for the next 0x7E
)

// scanFrame checks whether data starts with a complete block. Leading sync
// bytes must already be stripped. When checkDest is set the sequence byte
// must carry MessageDest in its high nibble, as host-to-MCU blocks do.
func scanFrame(data []byte, checkDest bool) (int, frameStatus) {
	if len(data) < MessageLengthMin {
		return 0, frameNeedMore
	}
	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return 0, frameBad
	}
	if checkDest && data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return 0, frameBad
	}
	if len(data) < msgLen {
		return 0, frameNeedMore
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return 0, frameBad
	}
	frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
		uint16(data[msgLen-MessageTrailerCRC+1])
	if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
		return 0, frameBad
	}
	return msgLen, frameOK
}

// skipToSync returns data after the first sync byte, or nil if there is
// none.
func skipToSync(data []byte) []byte {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:]
		}
	}
	return nil
}

// nextSeq advances a sequence byte within the MessageDest range.
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// appendTrailer appends CRC and sync to a block whose length byte is
// already set.
func appendTrailer(block []byte) []byte {
	crc := CRC16(block)
	return append(block, uint8(crc>>8), uint8(crc), MessageValueSync)
}
