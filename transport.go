package loraping

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

var ErrRegisterAccess = errors.New("register access not permitted")

// BusError is returned when an SPI transaction with the transceiver could
// not complete. The driver never retries these.
type BusError struct {
	Op  string
	Reg Register
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("sx127x %s %s: %v", e.Op, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// Bus frames register transactions on the SPI connection. Every transaction
// is bracketed by the select line, asserted low for its whole duration.
//
// nss may be nil when the SPI port drives chip select itself.
type Bus struct {
	conn spi.Conn
	nss  gpio.PinOut
}

func NewBus(conn spi.Conn, nss gpio.PinOut) *Bus {
	return &Bus{conn: conn, nss: nss}
}

// Write sets a single register.
func (b *Bus) Write(reg Register, value byte) error {
	if reg.Access()&AccessWrite == 0 {
		return fmt.Errorf("%w: write %s", ErrRegisterAccess, reg)
	}
	return b.tx("write", reg, []byte{byte(reg) | 0x80, value}, nil)
}

// Read returns the current content of a single register.
func (b *Bus) Read(reg Register) (byte, error) {
	if reg.Access()&AccessRead == 0 {
		return 0, fmt.Errorf("%w: read %s", ErrRegisterAccess, reg)
	}
	w := []byte{byte(reg) & 0x7f, 0x00}
	r := make([]byte, len(w))
	if err := b.tx("read", reg, w, r); err != nil {
		return 0, err
	}
	return r[1], nil
}

// WriteBuffer bursts data into the FIFO. The chip advances its FIFO pointer
// for every byte.
func (b *Bus) WriteBuffer(data []byte) error {
	if len(data) > FifoSize {
		return fmt.Errorf("%w: %d bytes exceed the %d byte fifo", ErrPayloadLength, len(data), FifoSize)
	}
	return b.tx("burst write", RegFifo, append([]byte{byte(RegFifo) | 0x80}, data...), nil)
}

func (b *Bus) tx(op string, reg Register, w, r []byte) (err error) {
	if b.nss != nil {
		if err := b.nss.Out(gpio.Low); err != nil {
			return &BusError{Op: op, Reg: reg, Err: err}
		}
		defer func() {
			if e := b.nss.Out(gpio.High); e != nil && err == nil {
				err = &BusError{Op: op, Reg: reg, Err: e}
			}
		}()
	}
	if err := b.conn.Tx(w, r); err != nil {
		return &BusError{Op: op, Reg: reg, Err: err}
	}
	return nil
}
