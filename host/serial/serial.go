// Package serial opens the byte stream a board client runs on: a local
// serial device, or a TCP socket for boards behind a network bridge and
// for the simulator.
package serial

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

// Port is an open link to a board.
type Port = io.ReadWriteCloser

// Config holds link settings.
type Config struct {
	// Device is a serial device path ("/dev/ttyACM0", "COM3") or a
	// "tcp://host:port" address.
	Device string

	// Baud is ignored by USB CDC devices.
	Baud int

	// ReadTimeout bounds a single device read so Close can interrupt a
	// blocked reader.
	ReadTimeout time.Duration

	// DialTimeout bounds the total time spent retrying a TCP connect.
	DialTimeout time.Duration
}

// DefaultConfig returns settings for device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
		DialTimeout: 3 * time.Second,
	}
}

const tcpScheme = "tcp://"

// Open connects to cfg.Device.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("serial: nil config")
	}
	if strings.HasPrefix(cfg.Device, tcpScheme) {
		return DialTCP(strings.TrimPrefix(cfg.Device, tcpScheme), cfg.DialTimeout)
	}
	return openDevice(cfg)
}

// DialTCP connects to addr, retrying with exponential backoff until
// timeout. A refused connection is retried too, since the simulator may
// still be starting.
func DialTCP(addr string, timeout time.Duration) (Port, error) {
	var conn net.Conn
	op := func() error {
		c, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Second,
		MaxElapsedTime:      timeout,
		Clock:               backoff.SystemClock,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return conn, nil
}

// devicePort hides read timeouts from the caller: a timed out read is
// retried until data arrives or the port is closed.
type devicePort struct {
	port   *serial.Port
	closed uint32
}

func openDevice(cfg *Config) (Port, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return &devicePort{port: p}, nil
}

func (p *devicePort) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		if atomic.LoadUint32(&p.closed) != 0 {
			return n, io.EOF
		}
		if n > 0 || (err != nil && err != io.EOF) {
			return n, err
		}
	}
}

func (p *devicePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *devicePort) Close() error {
	atomic.StoreUint32(&p.closed, 1)
	return p.port.Close()
}
