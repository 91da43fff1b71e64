package sim

import (
	"context"
	"errors"
	"io"
	"time"

	"hvboard/core"
	"hvboard/protocol"
)

// Link serves the firmware side of the serial protocol for one board over
// a byte stream. All board access happens on the goroutine running Serve.
type Link struct {
	board     *core.Board
	reg       *core.CommandRegistry
	dict      *core.Dictionary
	transport *protocol.Transport
	in        *protocol.FifoBuffer
	out       *protocol.ScratchOutput

	// Tick runs once per loop pass before timers are processed. Use it to
	// move the core clock.
	Tick func()

	// Errors receives command handler failures. Nil drops them.
	Errors func(error)
}

// NewLink registers the board command set on a fresh registry and builds
// the compressed dictionary.
func NewLink(b *core.Board) *Link {
	l := &Link{
		board: b,
		reg:   core.NewCommandRegistry(),
		in:    protocol.NewFifoBuffer(1024),
		out:   protocol.NewScratchOutput(),
	}
	l.dict = core.NewDictionary(l.reg)
	core.InitCommands(l.reg, l.dict, b)
	l.dict.BuildDictionary()

	l.transport = protocol.NewTransport(l.out, l.reg.Dispatch)
	l.transport.SetResetCallback(func() {
		l.in.Reset()
		l.out.Reset()
	})
	l.transport.SetErrorCallback(func(err error) {
		if l.Errors != nil {
			l.Errors(err)
		}
	})
	l.reg.SetResponder(l.transport)
	return l
}

// Registry returns the command registry the link dispatches to.
func (l *Link) Registry() *core.CommandRegistry { return l.reg }

// Dictionary returns the dictionary served by identify.
func (l *Link) Dictionary() *core.Dictionary { return l.dict }

// pollInterval paces timer processing while the stream is idle.
const pollInterval = 200 * time.Microsecond

// Serve runs until ctx is done or conn fails. A clean EOF returns nil.
func (l *Link) Serve(ctx context.Context, conn io.ReadWriter) error {
	rx := make(chan []byte, 16)
	rxErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			buf := make([]byte, 256)
			n, err := conn.Read(buf)
			if n > 0 {
				select {
				case rx <- buf[:n]:
				case <-quit:
					return
				}
			}
			if err != nil {
				rxErr <- err
				return
			}
		}
	}()

	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-rxErr:
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		case data := <-rx:
			if l.in.Write(data) < len(data) {
				// overflow: resync from scratch
				l.in.Reset()
				continue
			}
			l.transport.Receive(l.in)
			if _, err := l.out.WriteTo(conn); err != nil {
				return err
			}
		case <-tick.C:
		}

		core.CheckPendingReset()
		if l.Tick != nil {
			l.Tick()
		}
		core.ProcessTimers()
	}
}

// WallClock returns a Tick function that drives the core clock from real
// time, starting at the current core time.
func WallClock() func() {
	start := time.Now()
	base := core.GetTime()
	return func() {
		us := uint32(time.Since(start) / time.Microsecond)
		core.SetTime(base + core.TimerFromUS(us))
	}
}
