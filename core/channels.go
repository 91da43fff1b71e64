package core

// ChannelBitmap packs one bit per channel, eight channels per byte. Channel
// n lives in byte n/8 at bit position n%8, so channel 0 is the least
// significant bit of the first byte.
type ChannelBitmap []byte

// BitmapLen returns the number of bytes needed for count channels.
func BitmapLen(count uint16) int {
	return (int(count) + 7) / 8
}

// NewChannelBitmap returns an all-off bitmap sized for count channels.
func NewChannelBitmap(count uint16) ChannelBitmap {
	return make(ChannelBitmap, BitmapLen(count))
}

// FilledBitmap returns a bitmap with every channel set to on.
func FilledBitmap(count uint16, on bool) ChannelBitmap {
	b := NewChannelBitmap(count)
	if on {
		for i := range b {
			b[i] = 0xFF
		}
	}
	return b
}

// BitmapFromBools packs one bool per channel.
func BitmapFromBools(states []bool) ChannelBitmap {
	b := make(ChannelBitmap, (len(states)+7)/8)
	for i, on := range states {
		b.Set(i, on)
	}
	return b
}

// Get reports whether channel i is on. Out of range channels read as off.
func (b ChannelBitmap) Get(i int) bool {
	if i < 0 || i/8 >= len(b) {
		return false
	}
	return b[i/8]&(1<<uint(i%8)) != 0
}

// Set switches channel i. Out of range channels are ignored.
func (b ChannelBitmap) Set(i int, on bool) {
	if i < 0 || i/8 >= len(b) {
		return
	}
	if on {
		b[i/8] |= 1 << uint(i%8)
	} else {
		b[i/8] &^= 1 << uint(i%8)
	}
}

// Bools unpacks the first count channels.
func (b ChannelBitmap) Bools(count int) []bool {
	out := make([]bool, count)
	for i := range out {
		out[i] = b.Get(i)
	}
	return out
}

// Clone returns an independent copy.
func (b ChannelBitmap) Clone() ChannelBitmap {
	if b == nil {
		return nil
	}
	c := make(ChannelBitmap, len(b))
	copy(c, b)
	return c
}

// Equal reports whether both bitmaps hold the same bytes.
func (b ChannelBitmap) Equal(o ChannelBitmap) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

// ChannelStore owns the board's channel bitmap and the channel count. Every
// read hands out a copy so callers never alias the stored bytes.
type ChannelStore struct {
	count uint16
	bits  ChannelBitmap
}

// NewChannelStore returns a store sized for count channels, all off.
func NewChannelStore(count uint16) *ChannelStore {
	return &ChannelStore{count: count, bits: NewChannelBitmap(count)}
}

// Count returns the number of usable channels.
func (s *ChannelStore) Count() uint16 {
	return s.count
}

// Resize changes the channel count and clears every channel. Called after
// discovery.
func (s *ChannelStore) Resize(count uint16) {
	s.count = count
	s.bits = NewChannelBitmap(count)
}

// Len returns the expected bitmap length in bytes.
func (s *ChannelStore) Len() int {
	return len(s.bits)
}

// Bitmap returns a copy of the stored bitmap.
func (s *ChannelStore) Bitmap() ChannelBitmap {
	return s.bits.Clone()
}

// store copies b into the store. The caller has checked the length.
func (s *ChannelStore) store(b ChannelBitmap) {
	copy(s.bits, b)
}
