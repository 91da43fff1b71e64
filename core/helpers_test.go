package core_test

import (
	"testing"

	"hvboard/core"
	"hvboard/sim"
)

func newRig(t *testing.T, v core.Variant, expanders int) *sim.Rig {
	t.Helper()
	core.ResetTimers()
	t.Cleanup(core.ResetTimers)
	return sim.NewRig(v, expanders)
}

func newBoard(t *testing.T, rig *sim.Rig, opts ...core.Option) *core.Board {
	t.Helper()
	b, err := rig.Board(opts...)
	if err != nil {
		t.Fatalf("NewBoard: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func beginBoard(t *testing.T, rig *sim.Rig, opts ...core.Option) *core.Board {
	t.Helper()
	b := newBoard(t, rig, opts...)
	if err := b.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return b
}

// pattern returns a bitmap of count channels with every third channel on.
func pattern(count uint16) core.ChannelBitmap {
	b := core.NewChannelBitmap(count)
	for i := 0; i < int(count); i += 3 {
		b.Set(i, true)
	}
	return b
}
