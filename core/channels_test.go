package core

import (
	"fmt"
	"testing"
)

func TestChannelBitmapBitOrder(t *testing.T) {
	b := NewChannelBitmap(16)
	b.Set(0, true)
	b.Set(9, true)
	if b[0] != 0x01 || b[1] != 0x02 {
		t.Errorf("bitmap = % X, want 01 02", b)
	}
	if !b.Get(9) || b.Get(8) || b.Get(100) || b.Get(-1) {
		t.Error("Get disagrees with Set")
	}
	b.Set(200, true)
	b.Set(0, false)
	if b[0] != 0 || len(b) != 2 {
		t.Errorf("bitmap = % X", b)
	}
}

func TestBitmapLen(t *testing.T) {
	for count, want := range map[uint16]int{0: 0, 1: 1, 8: 1, 9: 2, 40: 5, 128: 16, 320: 40} {
		if got := BitmapLen(count); got != want {
			t.Errorf("BitmapLen(%d) = %d, want %d", count, got, want)
		}
	}
}

func TestBitmapBoolsRoundTrip(t *testing.T) {
	states := []bool{true, false, false, true, true, false, false, false, true, true}
	b := BitmapFromBools(states)
	if fmt.Sprint(b.Bools(len(states))) != fmt.Sprint(states) {
		t.Errorf("Bools = %v, want %v", b.Bools(len(states)), states)
	}
}

func TestChannelStoreCopies(t *testing.T) {
	s := NewChannelStore(8)
	in := ChannelBitmap{0xA5}
	s.store(in)
	in[0] = 0

	out := s.Bitmap()
	if out[0] != 0xA5 {
		t.Fatalf("store aliased its input: % X", out)
	}
	out[0] = 0
	if s.Bitmap()[0] != 0xA5 {
		t.Error("Bitmap handed out the stored slice")
	}

	s.Resize(40)
	if s.Count() != 40 || s.Len() != 5 || !s.Bitmap().Equal(NewChannelBitmap(40)) {
		t.Errorf("after Resize: count %d, len %d, % X", s.Count(), s.Len(), s.Bitmap())
	}
}
