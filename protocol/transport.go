package protocol

import "sync/atomic"

// Block layout.
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

// CommandHandler dispatches one decoded command. data points at the
// command's arguments and must be advanced past them.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the board side of the link. It validates incoming blocks,
// hands their commands to a CommandHandler and answers every block with
// an ACK carrying the next expected sequence.
type Transport struct {
	synced  uint32 // atomic bool
	nextSeq uint32 // atomic, 0x10..0x1F

	output  OutputBuffer
	handler CommandHandler

	onReset func()
	onFlush func()
	onError func(error)
}

// NewTransport creates a synchronized transport expecting sequence 0x10.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		synced:  1,
		nextSeq: MessageDest,
		output:  output,
		handler: handler,
	}
}

// Receive consumes as many complete blocks as input holds. Partial blocks
// stay in input for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.isSynced() {
			data = skipToSync(data)
			if data != nil {
				t.setSynced(true)
				t.sendAck()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		msgLen, status := scanFrame(data, true)
		if status == frameNeedMore {
			break
		}
		if status == frameBad {
			t.setSynced(false)
			continue
		}

		seq := data[MessagePositionSeq]
		frame := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]

		expected := t.Sequence()
		if seq == MessageDest && expected != MessageDest {
			// host restarted its sequence
			atomic.StoreUint32(&t.nextSeq, MessageDest)
			expected = MessageDest
			if t.onReset != nil {
				t.onReset()
			}
		}
		if seq == expected {
			atomic.StoreUint32(&t.nextSeq, uint32(nextSeq(seq)))
			t.dispatch(frame)
		}
		// an ACK with an unchanged sequence doubles as a NAK
		t.sendAck()
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// dispatch runs every command in frame. A malformed command ID or a
// handler panic drops sync; a handler error abandons the rest of the
// frame.
func (t *Transport) dispatch(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.setSynced(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.setSynced(false)
			return
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			if t.onError != nil {
				t.onError(err)
			}
			return
		}
	}
}

func (t *Transport) sendAck() {
	t.output.Output(appendTrailer([]byte{MessageLengthMin, t.Sequence()}))
	if t.onFlush != nil {
		t.onFlush()
	}
}

// EncodeFrame writes one block whose payload is produced by frameData.
// Responses carry the same sequence as the ACK that follows them.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	start := t.output.CurPosition()
	t.output.Output([]byte{0, t.Sequence()})
	frameData(t.output)
	t.output.Update(start, uint8(len(t.output.DataSince(start))+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// SendCommand encodes cmdID followed by its arguments as one block.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Sequence returns the next sequence the transport expects from the host.
func (t *Transport) Sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.nextSeq))
}

// Reset returns to the power-on state, e.g. after a USB reconnect.
func (t *Transport) Reset() {
	t.setSynced(true)
	atomic.StoreUint32(&t.nextSeq, MessageDest)
	if t.onReset != nil {
		t.onReset()
	}
}

// SetResetCallback is called whenever the sequence restarts.
func (t *Transport) SetResetCallback(callback func()) {
	t.onReset = callback
}

// SetFlushCallback is called after every ACK so the platform can push it
// out before the main loop comes round again.
func (t *Transport) SetFlushCallback(callback func()) {
	t.onFlush = callback
}

// SetErrorCallback receives command handler errors.
func (t *Transport) SetErrorCallback(callback func(error)) {
	t.onError = callback
}

func (t *Transport) isSynced() bool {
	return atomic.LoadUint32(&t.synced) != 0
}

func (t *Transport) setSynced(v bool) {
	var n uint32
	if v {
		n = 1
	}
	atomic.StoreUint32(&t.synced, n)
}
