package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/theckman/yacspin"

	"hvboard/host/board"
	"hvboard/host/config"
	"hvboard/host/httpapi"
	"hvboard/host/repl"
	"hvboard/host/serial"
	"hvboard/protocol"
)

var (
	configFile = flag.String("config", config.FileName, "configuration file")
	device     = flag.String("device", "", "serial device or tcp://host:port, overrides the configuration")
)

func root() {
	str := `hvboard-host talks to a high-voltage switching board over its serial link

Usage:
	hvboard-host [-config file] [-device dev] <command>

Commands:
	shell    interactive command shell (default)
	run      serve the board over HTTP
	mkconf   write the effective configuration to the config file
	conf     print the effective configuration
	version
	help`
	fmt.Println(str)
}

func main() {
	flag.Usage = root
	flag.Parse()

	c, err := config.Load(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if *device != "" {
		c.Device = *device
	}

	cmd := "shell"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	switch cmd {
	case "shell":
		shell(c)
	case "run":
		run(c)
	case "mkconf":
		mkconf(c)
	case "conf":
		if err := config.Write(os.Stdout, c); err != nil {
			log.Fatal(err)
		}
	case "version":
		fmt.Printf("hvboard-host version %s\n", protocol.Version)
	case "help":
		root()
	default:
		root()
		os.Exit(2)
	}
}

func mkconf(c config.Config) {
	f, err := os.Create(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := config.Write(f, c); err != nil {
		log.Fatal(err)
	}
}

// connect opens the link and downloads the dictionary behind a spinner.
func connect(c config.Config) *board.Client {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[14],
		Suffix:          " connecting to " + c.Device,
		StopMessage:     "connected",
		StopFailMessage: "failed",
		Writer:          os.Stderr,
	})
	if err == nil {
		spinner.Start()
	}

	port, err := serial.Open(&serial.Config{
		Device:      c.Device,
		Baud:        c.Baud,
		ReadTimeout: 100 * time.Millisecond,
		DialTimeout: c.Timeout * 2,
	})
	var client *board.Client
	if err == nil {
		opts := []board.Option{board.WithTimeout(c.Timeout), board.WithRate(c.RateLimit, c.Burst)}
		if c.Verbose {
			opts = append(opts, board.WithLogger(log.New(os.Stderr, "board: ", log.LstdFlags)))
		}
		client, err = board.Connect(port, opts...)
	}

	if spinner != nil {
		if err != nil {
			spinner.StopFail()
		} else {
			spinner.Stop()
		}
	}
	if err != nil {
		log.Fatal(err)
	}
	return client
}

func shell(c config.Config) {
	client := connect(c)
	defer client.Close()

	n, _ := client.ChannelCount()
	v, _ := client.Variant()
	fmt.Printf("%s board, %d channels. Type help for commands.\n", v, n)

	s := repl.New(client, os.Stdout)
	s.Dictionary = client.Dictionary().Summary
	if err := s.Run(os.Stdin, "> "); err != nil {
		log.Fatal(err)
	}
}

func run(c config.Config) {
	client := connect(c)
	defer client.Close()

	h := middleware.Logger(httpapi.NewRouter(client))
	log.Println("now listening for requests at", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, h))
}
