package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NV4RE/loraping"
	"go.bug.st/serial"
)

type config struct {
	spiDev     *string
	nss        *string
	dio0       *string
	reset      *string
	configPath *string
	saveConfig *string
	console    *string
	baud       *int
	strict     *bool
	debug      *bool
}

func parseFlags() *config {
	cfg := &config{
		spiDev:     flag.String("spi", "/dev/spidev0.0", "SPI port the transceiver is on"),
		nss:        flag.String("nss", "", "GPIO used as chip select (empty: SPI controller drives CS)"),
		dio0:       flag.String("dio0", "GPIO25", "GPIO wired to DIO0"),
		reset:      flag.String("reset", "GPIO17", "GPIO wired to RESET"),
		configPath: flag.String("config", "", "JSON radio profile (default: 915.125 MHz SF7 BW125)"),
		saveConfig: flag.String("save-config", "", "Write the effective profile to this path and exit"),
		console:    flag.String("console", "", "Serial port to mirror the log onto (e.g. /dev/ttyUSB0)"),
		baud:       flag.Int("baud", 115200, "Baud rate for -console"),
		strict:     flag.Bool("strict", false, "Abort when the version register does not match"),
		debug:      flag.Bool("debug", false, "Log cycle state transitions"),
	}
	flag.Parse()
	return cfg
}

func loadRadioConfig(cfg *config) (loraping.Config, error) {
	rc := loraping.DefaultConfig()
	if *cfg.configPath != "" {
		var err error
		if rc, err = loraping.LoadConfig(*cfg.configPath); err != nil {
			return rc, err
		}
	}
	if *cfg.strict {
		rc.StrictVersion = true
	}
	return rc, nil
}

// openConsole mirrors log output onto a serial port, the way the board's
// UART console carries it.
func openConsole(path string, baud int) (io.Closer, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open console %s: %w", path, err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, port))
	return port, nil
}

func run(cfg *config) error {
	rc, err := loadRadioConfig(cfg)
	if err != nil {
		return err
	}
	if *cfg.saveConfig != "" {
		return loraping.SaveConfig(rc, *cfg.saveConfig)
	}

	if *cfg.console != "" {
		c, err := openConsole(*cfg.console, *cfg.baud)
		if err != nil {
			return err
		}
		defer c.Close()
	}

	log.Printf("Boot: loraping")
	log.Printf("LoRa test: SPI=%s NSS=%s RST=%s DIO0=%s", *cfg.spiDev, *cfg.nss, *cfg.reset, *cfg.dio0)

	radio, err := loraping.Open(*cfg.spiDev, *cfg.nss, *cfg.dio0, *cfg.reset, loraping.WithConfig(rc))
	if err != nil {
		return err
	}
	defer radio.Close()

	if err := radio.Init(); err != nil {
		return err
	}

	var opts []loraping.PingerOption
	if *cfg.debug {
		opts = append(opts, loraping.WithObserver(func(s loraping.State) {
			log.Printf("state: %s", s)
		}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return loraping.NewPinger(radio, opts...).Run(ctx)
}

func main() {
	if err := run(parseFlags()); err != nil {
		log.Fatal(err)
	}
}
