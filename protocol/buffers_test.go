package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestScratchOutputPatchesBlock(t *testing.T) {
	out := NewScratchOutput()
	out.Output([]byte{0xAA})

	start := out.CurPosition()
	out.Output([]byte{0, 0x10, 0x03, 0x07})
	out.Update(start, 9)
	if got := out.DataSince(start); !bytes.Equal(got, []byte{9, 0x10, 0x03, 0x07}) {
		t.Errorf("DataSince = % X", got)
	}
	if got := out.Result(); !bytes.Equal(got, []byte{0xAA, 9, 0x10, 0x03, 0x07}) {
		t.Errorf("Result = % X", got)
	}

	// positions past the written data are ignored
	out.Update(40, 1)
	if out.DataSince(40) != nil || out.CurPosition() != 5 {
		t.Error("update past the end changed the buffer")
	}
}

func TestScratchOutputDropsOverflow(t *testing.T) {
	out := NewScratchOutput()
	out.Output(make([]byte, MessageMax+10))
	if out.CurPosition() != MessageMax {
		t.Errorf("position %d after overflow, want %d", out.CurPosition(), MessageMax)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("unplugged") }

func TestScratchOutputWriteTo(t *testing.T) {
	out := NewScratchOutput()
	var sink bytes.Buffer

	if n, err := out.WriteTo(&sink); n != 0 || err != nil {
		t.Fatalf("empty WriteTo = %d, %v", n, err)
	}
	out.Output([]byte{5, 0x10, 0xAA, 0xBB, MessageValueSync})
	if n, err := out.WriteTo(&sink); n != 5 || err != nil {
		t.Fatalf("WriteTo = %d, %v", n, err)
	}
	if out.CurPosition() != 0 || sink.Len() != 5 {
		t.Errorf("position %d, sink %d bytes", out.CurPosition(), sink.Len())
	}

	out.Output([]byte{1, 2})
	if _, err := out.WriteTo(failingWriter{}); err == nil {
		t.Error("write error not returned")
	}
	if out.CurPosition() != 0 {
		t.Error("failed flush left bytes queued")
	}
}

func TestFifoBufferCompacts(t *testing.T) {
	f := NewFifoBuffer(8)

	if n := f.Write([]byte{1, 2, 3, 4, 5, 6}); n != 6 {
		t.Fatalf("wrote %d", n)
	}
	f.Pop(4)
	if !bytes.Equal(f.Data(), []byte{5, 6}) {
		t.Fatalf("Data = % X", f.Data())
	}

	// needs the space freed by Pop
	if n := f.Write([]byte{7, 8, 9, 10, 11}); n != 5 {
		t.Fatalf("wrote %d after pop, want 5", n)
	}
	if !bytes.Equal(f.Data(), []byte{5, 6, 7, 8, 9, 10, 11}) {
		t.Errorf("Data after compaction = % X", f.Data())
	}

	if n := f.Write([]byte{12, 13, 14}); n != 1 {
		t.Errorf("wrote %d into one free byte", n)
	}
	if f.Available() != 8 {
		t.Errorf("Available = %d, want 8", f.Available())
	}
}

func TestFifoBufferPopAndReset(t *testing.T) {
	f := NewFifoBuffer(4)
	f.Write([]byte{1, 2, 3})

	f.Pop(10)
	if f.Available() != 0 || len(f.Data()) != 0 {
		t.Errorf("over-pop left %d bytes", f.Available())
	}
	if n := f.Write([]byte{1, 2, 3, 4}); n != 4 {
		t.Errorf("emptied buffer took %d bytes, want 4", n)
	}

	f.Reset()
	if f.Available() != 0 {
		t.Error("Reset kept data")
	}
}
