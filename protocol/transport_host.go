package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ResponseHandler observes every response block the host receives.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Errors returned by HostTransport.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrAckTimeout      = errors.New("ack timeout")
	ErrResponseTimeout = errors.New("response timeout")
	ErrNak             = errors.New("block not acknowledged")
)

// sendAttempts bounds retransmission after a NAK.
const sendAttempts = 3

// HostTransport is the host side of the link. Commands are sent one block
// at a time; each waits for the board's ACK before the next goes out.
type HostTransport struct {
	port io.ReadWriteCloser

	seq    uint32 // atomic, sequence of the next block we send
	synced uint32 // atomic bool

	input *FifoBuffer

	acks      chan *Message
	responses chan *Message
	handler   ResponseHandler

	callMu   sync.Mutex // one command in flight
	writeMu  sync.Mutex
	readMu   sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	readErr  atomic.Value
}

// Message is one received block.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // between header and trailer
	CRC      uint16

	// ID and Args are the decoded command ID and the remaining payload.
	// Both are zero for ACK blocks.
	ID   uint16
	Args []byte
}

// IsAck reports whether m carries no payload.
func (m *Message) IsAck() bool {
	return len(m.Payload) == 0
}

// NewHostTransport wraps port and starts the background reader.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		seq:       MessageDest,
		synced:    1,
		input:     NewFifoBuffer(1024),
		acks:      make(chan *Message, 4),
		responses: make(chan *Message, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one command and waits for its ACK.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout is SendCommand with a custom ACK timeout.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.callMu.Lock()
	defer t.callMu.Unlock()
	return t.send(cmdID, args, timeout)
}

// Call sends a command and returns the first response whose ID is
// respID. Responses left over from earlier commands are discarded first.
func (t *HostTransport) Call(cmdID uint16, args func(output OutputBuffer), respID uint16, timeout time.Duration) (*Message, error) {
	t.callMu.Lock()
	defer t.callMu.Unlock()

	t.drain(t.responses)
	if err := t.send(cmdID, args, timeout); err != nil {
		return nil, err
	}
	return t.ReceiveResponseID(respID, timeout)
}

func (t *HostTransport) send(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}

	for attempt := 0; attempt < sendAttempts; attempt++ {
		seq := t.Sequence()
		block, err := buildBlock(seq, payload.Result())
		if err != nil {
			return err
		}
		t.drain(t.acks)
		if err := t.write(block); err != nil {
			return fmt.Errorf("write block: %w", err)
		}

		ack, err := t.waitForAck(timeout)
		if err != nil {
			return err
		}
		if ack.Sequence == nextSeq(seq) {
			atomic.StoreUint32(&t.seq, uint32(ack.Sequence))
			return nil
		}
		// The board expects ack.Sequence; adopt it and retransmit.
		atomic.StoreUint32(&t.seq, uint32(ack.Sequence|MessageDest))
	}
	return ErrNak
}

// buildBlock frames payload with the given sequence.
func buildBlock(seq uint8, payload []byte) ([]byte, error) {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", msgLen, MessageLengthMax)
	}
	block := make([]byte, 0, msgLen)
	block = append(block, uint8(msgLen), seq)
	block = append(block, payload...)
	return appendTrailer(block), nil
}

func (t *HostTransport) write(block []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := t.port.Write(block)
	if err != nil {
		return err
	}
	if n != len(block) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(block))
	}
	return nil
}

func (t *HostTransport) waitForAck(timeout time.Duration) (*Message, error) {
	select {
	case ack := <-t.acks:
		return ack, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
	case <-t.done:
		return nil, t.closedErr()
	}
}

// ReceiveResponse returns the next response of any ID.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	select {
	case resp := <-t.responses:
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v", ErrResponseTimeout, timeout)
	case <-t.done:
		return nil, t.closedErr()
	}
}

// ReceiveResponseID returns the next response with the given ID, dropping
// any others that arrive first.
func (t *HostTransport) ReceiveResponseID(id uint16, timeout time.Duration) (*Message, error) {
	deadline := time.After(timeout)
	for {
		select {
		case resp := <-t.responses:
			if resp.ID == id {
				return resp, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("%w after %v waiting for id %d", ErrResponseTimeout, timeout, id)
		case <-t.done:
			return nil, t.closedErr()
		}
	}
}

// SetResponseHandler installs a callback that sees every response as it
// is parsed, before it is queued.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.readMu.Lock()
	t.handler = handler
	t.readMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.processMessages()
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				t.readErr.Store(err)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) processMessages() {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	data := t.input.Data()
	for len(data) > 0 {
		if atomic.LoadUint32(&t.synced) == 0 {
			data = skipToSync(data)
			if data != nil {
				atomic.StoreUint32(&t.synced, 1)
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		msgLen, status := scanFrame(data, false)
		if status == frameNeedMore {
			break
		}
		if status == frameBad {
			atomic.StoreUint32(&t.synced, 0)
			continue
		}

		msg := &Message{
			Length:   data[MessagePositionLen],
			Sequence: data[MessagePositionSeq],
			Payload:  append([]byte(nil), data[MessageHeaderSize:msgLen-MessageTrailerSize]...),
			CRC:      uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1]),
		}
		data = data[msgLen:]
		t.route(msg)
	}

	if consumed := t.input.Available() - len(data); consumed > 0 {
		t.input.Pop(consumed)
	}
}

func (t *HostTransport) route(msg *Message) {
	if msg.IsAck() {
		select {
		case t.acks <- msg:
		default:
		}
		return
	}

	args := msg.Payload
	id, err := DecodeVLQUint(&args)
	if err != nil {
		return
	}
	msg.ID = uint16(id)
	msg.Args = args

	if t.handler != nil {
		scratch := append([]byte(nil), args...)
		_ = t.handler(msg.ID, &scratch)
	}

	for {
		select {
		case t.responses <- msg:
			return
		default:
			// full: drop the oldest
			select {
			case <-t.responses:
			default:
			}
		}
	}
}

func (t *HostTransport) drain(ch chan *Message) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func (t *HostTransport) closedErr() error {
	if err, ok := t.readErr.Load().(error); ok {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return ErrTransportClosed
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stop)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.done
	})
	return err
}

// Reset restarts the sequence at 0x10 and drops anything buffered.
func (t *HostTransport) Reset() {
	atomic.StoreUint32(&t.synced, 1)
	atomic.StoreUint32(&t.seq, MessageDest)
	t.drain(t.acks)
	t.drain(t.responses)

	t.readMu.Lock()
	t.input.Reset()
	t.readMu.Unlock()
}

// Sequence returns the sequence the next block will carry.
func (t *HostTransport) Sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.seq))
}
