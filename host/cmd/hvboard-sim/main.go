// Command hvboard-sim serves the board firmware core on a TCP port. With
// the sim backend the buses are simulated so hvboard-host can be used
// without hardware; the linux backend drives a board wired to an SBC.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"hvboard/core"
	"hvboard/host/config"
	"hvboard/host/linuxbus"
	"hvboard/sim"
)

var configFile = flag.String("config", config.FileName, "configuration file")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	c, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	variant, err := core.ParseVariant(c.Sim.Variant)
	if err != nil {
		return fmt.Errorf("variant %q: %w", c.Sim.Variant, err)
	}

	opts := []core.Option{core.WithVerify(c.Sim.Verify)}
	if c.Sim.Store != "" {
		opts = append(opts, core.WithConfigStore(&sim.FileConfigStore{Path: c.Sim.Store}))
	}
	b, bus, err := newBoard(c.Sim, variant, opts)
	if err != nil {
		return err
	}
	defer bus.Close()
	defer b.Close()
	if err := b.Begin(); err != nil {
		return err
	}
	if c.Verbose {
		core.SetDebugWriter(func(s string) { log.Println(s) })
		core.SetDebugEnabled(true)
	}
	core.SetResetHandler(func() {
		log.Println("reset requested, restarting board")
		if err := b.Begin(); err != nil {
			log.Println("restart:", err)
		}
	})

	link := sim.NewLink(b)
	link.Tick = sim.WallClock()
	link.Errors = func(err error) { log.Println("command:", err) }

	ln, err := net.Listen("tcp", c.Sim.Listen)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Printf("%s board with %d channels listening at %s", variant, b.ChannelCount(), ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.Println("host connected from", conn.RemoteAddr())
		if err := link.Serve(ctx, conn); err != nil && ctx.Err() == nil {
			log.Println("link:", err)
		}
		conn.Close()
		log.Println("host disconnected")
	}
}

// hardware is an opened set of board buses.
type hardware interface {
	HAL() core.HAL
	Close() error
}

var openLinux = func(cfg linuxbus.Config) (hardware, error) {
	return linuxbus.Open(cfg)
}

type noBus struct{}

func (noBus) Close() error { return nil }

// newBoard builds the board for the configured backend. The returned
// closer releases the backend's buses once the board is closed.
func newBoard(c config.Sim, variant core.Variant, opts []core.Option) (*core.Board, io.Closer, error) {
	switch c.Backend {
	case "", "sim":
		b, err := sim.NewRig(variant, c.Expanders).Board(opts...)
		return b, noBus{}, err
	case "linux":
		bus, err := openLinux(linuxbus.Config{
			I2C:   c.I2CBus,
			SPI:   c.SPIPort,
			SPIHz: c.SPIHz,
			NoI2C: variant != core.VariantHV513Expander,
		})
		if err != nil {
			return nil, nil, err
		}
		b, err := core.NewBoard(variant, bus.HAL(), opts...)
		if err != nil {
			bus.Close()
			return nil, nil, err
		}
		return b, bus, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", c.Backend)
}
