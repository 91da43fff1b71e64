package protocol

import "io"

// InputBuffer is the receive side a Transport parses from. Data may alias
// internal storage and is valid until the next Pop or write.
type InputBuffer interface {
	Data() []byte
	Available() int
	Pop(n int)
}

// OutputBuffer is the transmit side blocks are encoded into. Update and
// DataSince let the encoder patch the length byte and checksum a block
// after its payload is written.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// ScratchOutput collects outgoing blocks in a fixed array until they are
// flushed. Bytes past MessageMax are dropped.
type ScratchOutput struct {
	buf [MessageMax]byte
	n   int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.n += copy(s.buf[s.n:], data)
}

func (s *ScratchOutput) CurPosition() int {
	return s.n
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.n {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.n {
		return nil
	}
	return s.buf[pos:s.n]
}

// Result returns the pending bytes without clearing them.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.n]
}

func (s *ScratchOutput) Reset() {
	s.n = 0
}

// WriteTo flushes the pending bytes to w and clears the buffer, even when
// the write fails.
func (s *ScratchOutput) WriteTo(w io.Writer) (int64, error) {
	if s.n == 0 {
		return 0, nil
	}
	n, err := w.Write(s.buf[:s.n])
	s.n = 0
	return int64(n), err
}

// FifoBuffer holds received bytes until a complete block can be parsed.
// Unread bytes always sit contiguously in buf[head:tail]; Write slides
// them to the front when the tail runs out of room, so Data never copies.
type FifoBuffer struct {
	buf  []byte
	head int
	tail int
}

// NewFifoBuffer returns a buffer holding at most capacity unread bytes.
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count taken.
func (f *FifoBuffer) Write(data []byte) int {
	if len(data) > len(f.buf)-f.tail && f.head > 0 {
		f.tail = copy(f.buf, f.buf[f.head:f.tail])
		f.head = 0
	}
	n := copy(f.buf[f.tail:], data)
	f.tail += n
	return n
}

func (f *FifoBuffer) Available() int {
	return f.tail - f.head
}

func (f *FifoBuffer) Data() []byte {
	return f.buf[f.head:f.tail]
}

func (f *FifoBuffer) Pop(n int) {
	if n > f.Available() {
		n = f.Available()
	}
	f.head += n
	if f.head == f.tail {
		f.head, f.tail = 0, 0
	}
}

func (f *FifoBuffer) Reset() {
	f.head, f.tail = 0, 0
}
