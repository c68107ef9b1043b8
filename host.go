package loraping

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Open initialises the host drivers and connects to a transceiver wired to
// spiDev. nss names a GPIO used as software chip select; leave it empty to
// let the SPI controller drive CS.
func Open(spiDev, nss, di0, rst string, opts ...Option) (*Lora, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	p, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", spiDev, err)
	}

	mode := spi.Mode0
	var cs gpio.PinOut
	if nss != "" {
		pin := gpioreg.ByName(nss)
		if pin == nil {
			p.Close()
			return nil, fmt.Errorf("failed to find NSS pin %s", nss)
		}
		if err := pin.Out(gpio.High); err != nil {
			p.Close()
			return nil, err
		}
		cs = pin
		mode |= spi.NoCS
	}

	c, err := p.Connect(8*physic.MegaHertz, mode, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	dio0 := gpioreg.ByName(di0)
	if dio0 == nil {
		p.Close()
		return nil, fmt.Errorf("failed to find DIO0 pin %s", di0)
	}
	if err := dio0.In(gpio.PullDown, gpio.NoEdge); err != nil {
		p.Close()
		return nil, err
	}

	reset := gpioreg.ByName(rst)
	if reset == nil {
		p.Close()
		return nil, fmt.Errorf("failed to find RESET pin %s", rst)
	}
	if err := reset.Out(gpio.High); err != nil {
		p.Close()
		return nil, err
	}

	l, err := New(c, cs, reset, dio0, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}
	l.port = p
	return l, nil
}
