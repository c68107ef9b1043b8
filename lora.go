package loraping

import (
	"errors"
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

var (
	ErrVersionMismatch = errors.New("version not matched")
	ErrNotIdle         = errors.New("register requires sleep or standby mode")
)

// Logger is a printf-style sink for the driver's diagnostic lines.
type Logger func(format string, v ...interface{})

// Option configures a Lora at construction.
type Option func(*Lora) error

func WithConfig(cfg Config) Option {
	return func(l *Lora) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		l.cfg = cfg
		return nil
	}
}

func WithClock(clk Clock) Option {
	return func(l *Lora) error {
		l.clock = clk
		return nil
	}
}

// WithLogger replaces the default log.Printf sink. nil silences the driver.
func WithLogger(logger Logger) Option {
	return func(l *Lora) error {
		if logger == nil {
			logger = func(string, ...interface{}) {}
		}
		l.logf = logger
		return nil
	}
}

// Lora drives one SX127x transceiver. It owns the bus exclusively and is not
// safe for concurrent use.
type Lora struct {
	bus   *Bus
	port  spi.PortCloser
	reset gpio.PinOut
	dio0  gpio.PinIn
	clock Clock
	logf  Logger
	cfg   Config
	mode  Mode
}

// New wraps an already connected SPI conn and the transceiver's pins. nss
// may be nil when the SPI port drives chip select. No bus traffic happens
// until Init or Reset is called.
func New(conn spi.Conn, nss, reset gpio.PinOut, dio0 gpio.PinIn, opts ...Option) (*Lora, error) {
	if conn == nil {
		return nil, errors.New("spi conn is required")
	}
	if reset == nil {
		return nil, errors.New("reset pin is required")
	}
	if dio0 == nil {
		return nil, errors.New("dio0 pin is required")
	}

	l := &Lora{
		bus:   NewBus(conn, nss),
		reset: reset,
		dio0:  dio0,
		clock: SystemClock,
		logf:  log.Printf,
		cfg:   DefaultConfig(),
		mode:  ModeStandby,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Lora) Config() Config {
	return l.cfg
}

// Init resets the chip, checks its version and programs the radio.
func (l *Lora) Init() error {
	if err := l.Reset(); err != nil {
		return err
	}
	if err := l.CheckVersion(); err != nil {
		return err
	}
	return l.Configure()
}

// Reset pulses the active-low reset line, holding each level for ResetHold.
func (l *Lora) Reset() error {
	if err := l.reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("reset low: %w", err)
	}
	busyWait(l.clock, l.cfg.ResetHold)
	if err := l.reset.Out(gpio.High); err != nil {
		return fmt.Errorf("reset high: %w", err)
	}
	busyWait(l.clock, l.cfg.ResetHold)
	// Chip comes out of reset in standby.
	l.mode = ModeStandby
	return nil
}

func (l *Lora) Version() (byte, error) {
	return l.ReadRegister(RegVersion)
}

// CheckVersion compares the version register against the SX1276 silicon
// revision. A mismatch is only logged unless StrictVersion is set.
func (l *Lora) CheckVersion() error {
	v, err := l.Version()
	if err != nil {
		return err
	}
	l.logf("SX127x version reg = 0x%02x (expect 0x%02x)", v, ExpectedVersion)
	if v == ExpectedVersion {
		return nil
	}
	if l.cfg.StrictVersion {
		return fmt.Errorf("%w: found 0x%02x", ErrVersionMismatch, v)
	}
	l.logf("warning: unexpected SX127x version 0x%02x, continuing", v)
	return nil
}

// Configure programs the radio. It must run once after Reset and before
// the first transmit or receive.
func (l *Lora) Configure() error {
	if err := l.SetMode(ModeSleep); err != nil {
		return err
	}
	if err := l.SetMode(ModeStandby); err != nil {
		return err
	}

	frf := l.cfg.frf()
	writes := []struct {
		reg Register
		val byte
	}{
		{RegFrfMsb, byte(frf >> 16)},
		{RegFrfMid, byte(frf >> 8)},
		{RegFrfLsb, byte(frf >> 0)},
		{RegPaConfig, l.cfg.paConfig()},
		{RegModemConfig1, l.cfg.modemConfig1()},
		{RegModemConfig2, l.cfg.modemConfig2()},
		{RegModemConfig3, l.cfg.modemConfig3()},
		{RegPreambleMsb, byte(l.cfg.PreambleLength >> 8)},
		{RegPreambleLsb, byte(l.cfg.PreambleLength >> 0)},
		{RegDioMapping1, DioMappingTxRxDone},
		{RegFifoTxBaseAddr, FifoTxBase},
	}
	if l.cfg.SpreadingFactor == 6 {
		writes = append(writes,
			struct {
				reg Register
				val byte
			}{RegDetectOptimize, DetectOptimizeSF6},
			struct {
				reg Register
				val byte
			}{RegDetectThreshold, DetectThresholdSF6},
		)
	}
	for _, w := range writes {
		if err := l.WriteRegister(w.reg, w.val); err != nil {
			return err
		}
	}
	return l.ClearIrqFlags()
}

// SetMode writes the operating mode with the long range flag kept set. Any
// settle time is the caller's concern; completion is signalled on DIO0.
func (l *Lora) SetMode(m Mode) error {
	if err := l.bus.Write(RegOpMode, byte(ModeLongRange|m)); err != nil {
		return err
	}
	l.mode = m &^ ModeLongRange
	return nil
}

// Mode returns the mode last written by SetMode.
func (l *Lora) Mode() Mode {
	return l.mode
}

func (l *Lora) IrqFlags() (IrqFlags, error) {
	f, err := l.ReadRegister(RegIrqFlags)
	return IrqFlags(f), err
}

// ClearIrqFlags writes ones to every flag, which clears them all.
func (l *Lora) ClearIrqFlags() error {
	return l.WriteRegister(RegIrqFlags, IrqClearAll)
}

// DIO0 reports whether the interrupt line is high.
func (l *Lora) DIO0() bool {
	return l.dio0.Read() == gpio.High
}

// RSSIdBm converts a raw packet RSSI register value to dBm using the
// offset of the RF port in use.
func (l *Lora) RSSIdBm(raw byte) int {
	if l.cfg.Frequency < RfMidBandThreshold {
		return int(raw) - RssiOffsetLfPort
	}
	return int(raw) - RssiOffsetHfPort
}

func (l *Lora) ReadRegister(reg Register) (byte, error) {
	return l.bus.Read(reg)
}

// WriteRegister writes a register, refusing idle-only registers while the
// chip is transmitting or receiving. Use SetMode for RegOpMode.
func (l *Lora) WriteRegister(reg Register, value byte) error {
	if reg == RegOpMode {
		return l.SetMode(Mode(value))
	}
	if reg.IdleOnly() && !l.mode.idle() {
		return fmt.Errorf("%w: %s in %s", ErrNotIdle, reg, l.mode)
	}
	return l.bus.Write(reg, value)
}

// Close releases the SPI port if it was opened by Open.
func (l *Lora) Close() error {
	if l.port == nil {
		return nil
	}
	return l.port.Close()
}
