//go:build rp2040

package main

import (
	"machine"
	"time"

	"hvboard/core"
	"hvboard/protocol"
)

// variantName selects the board topology at link time:
//
//	tinygo build -target pico -ldflags "-X main.variantName=hv507"
var variantName = "hv513-expander"

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	msgerrors uint32

	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// clear any watchdog left running by a reset command
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	InitClock()

	variant, err := core.ParseVariant(variantName)
	if err != nil {
		halt()
	}
	timer := core.NewSchedulerTimer()
	hal, err := buildHAL(variant, timer)
	if err != nil {
		halt()
	}
	board, err := core.NewBoard(variant, hal, core.WithConfigStore(&core.MemoryConfigStore{}))
	if err != nil {
		halt()
	}
	UpdateSystemTime()
	if err := board.Begin(); err != nil {
		// keep serving so the host can see the fault through the command set
		msgerrors++
	}

	core.InitCommands(core.GetGlobalRegistry(), core.GetGlobalDictionary(), board)
	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	// the host expects the ACK ahead of the response
	transport.SetFlushCallback(writeUSB)
	core.SetGlobalTransport(transport)

	core.SetResetHandler(func() {
		machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		machine.Watchdog.Start()
		for {
			time.Sleep(time.Millisecond)
		}
	})

	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}
			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}

			// after the ACK for reset has gone out
			core.CheckPendingReset()

			core.ProcessTimers()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// halt parks the core when the board cannot be built. There is no
// transport yet to report through.
func halt() {
	for {
		time.Sleep(time.Second)
	}
}

func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(time.Millisecond)
				continue
			}

			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB flushes the output buffer. Repeated failures mark the host as
// gone so stale frames are dropped.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
