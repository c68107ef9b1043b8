package loraping

import (
	"context"
	"fmt"
)

// State is a phase of the ping cycle.
type State int

const (
	StateIdle State = iota
	StatePreparingTx
	StateTransmitting
	StateAwaitingTxDone
	StateSwitchingToRx
	StateAwaitingRx
	StateReporting
	StatePausing
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StatePreparingTx:    "preparing-tx",
	StateTransmitting:   "transmitting",
	StateAwaitingTxDone: "awaiting-tx-done",
	StateSwitchingToRx:  "switching-to-rx",
	StateAwaitingRx:     "awaiting-rx",
	StateReporting:      "reporting",
	StatePausing:        "pausing",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is the result of the listen phase of one cycle.
type Outcome int

const (
	// OutcomeTimeout means nothing arrived before RxTimeout.
	OutcomeTimeout Outcome = iota
	OutcomeReceived
	// OutcomeCRCError means a frame arrived but failed its CRC. It is not
	// read out of the FIFO.
	OutcomeCRCError
	// OutcomeStrayTxDone means DIO0 rose while listening but only TxDone
	// was flagged.
	OutcomeStrayTxDone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTimeout:
		return "timeout"
	case OutcomeReceived:
		return "received"
	case OutcomeCRCError:
		return "crc-error"
	case OutcomeStrayTxDone:
		return "stray-tx-done"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Report describes one completed cycle.
type Report struct {
	Seq        uint32
	Payload    []byte
	TxTimedOut bool
	// TxFlags and RxFlags are the IRQ flags read after each wait.
	TxFlags IrqFlags
	RxFlags IrqFlags
	Outcome Outcome
	// Packet is set only for OutcomeReceived.
	Packet *Packet
}

type PingerOption func(*Pinger)

// WithObserver registers a callback invoked on every state transition.
func WithObserver(fn func(State)) PingerOption {
	return func(p *Pinger) {
		p.observe = fn
	}
}

// Pinger runs the transmit-then-listen test cycle on a configured radio.
type Pinger struct {
	radio   *Lora
	counter uint32
	state   State
	observe func(State)
}

func NewPinger(radio *Lora, opts ...PingerOption) *Pinger {
	p := &Pinger{radio: radio}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FormatPayload builds the ping text. Only the last three decimal digits of
// n are shown.
func FormatPayload(prefix string, n uint32) []byte {
	return []byte(fmt.Sprintf("%s%03d", prefix, n%1000))
}

func (p *Pinger) State() State {
	return p.state
}

// Counter is the sequence number the next cycle will send.
func (p *Pinger) Counter() uint32 {
	return p.counter
}

// Run repeats the cycle until ctx is done. Bus errors end the loop; radio
// timeouts and bad frames do not.
func (p *Pinger) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := p.step(ctx); err != nil {
			return err
		}
	}
}

// Step runs one full cycle including the trailing pause.
func (p *Pinger) Step() (*Report, error) {
	return p.step(context.Background())
}

func (p *Pinger) step(ctx context.Context) (*Report, error) {
	r := p.radio
	cfg := r.cfg

	rep := &Report{
		Seq:     p.counter,
		Payload: FormatPayload(cfg.PayloadPrefix, p.counter),
	}
	p.counter++

	p.enter(StatePreparingTx)
	if err := r.SetMode(ModeStandby); err != nil {
		return nil, err
	}
	if err := r.ClearIrqFlags(); err != nil {
		return nil, err
	}
	if err := r.LoadPayload(rep.Payload); err != nil {
		return nil, err
	}
	r.logf("LoRa TX: %s", rep.Payload)

	p.enter(StateTransmitting)
	if err := r.SetMode(ModeTx); err != nil {
		return nil, err
	}

	p.enter(StateAwaitingTxDone)
	res := WaitFor(r.clock, cfg.TxTimeout, r.DIO0)
	rep.TxTimedOut = res == WaitTimedOut
	flags, err := r.IrqFlags()
	if err != nil {
		return nil, err
	}
	rep.TxFlags = flags
	if err := r.ClearIrqFlags(); err != nil {
		return nil, err
	}
	if rep.TxTimedOut {
		r.logf("TX timeout, IRQ=%s", flags)
	} else {
		r.logf("TX done, IRQ=%s", flags)
	}

	p.enter(StateSwitchingToRx)
	if err := r.SetMode(ModeRxContinuous); err != nil {
		return nil, err
	}

	p.enter(StateAwaitingRx)
	res = WaitFor(r.clock, cfg.RxTimeout, r.DIO0)

	p.enter(StateReporting)
	if rep.RxFlags, err = r.IrqFlags(); err != nil {
		return nil, err
	}
	if rep.Outcome, err = p.report(res, rep); err != nil {
		return nil, err
	}
	if err := r.ClearIrqFlags(); err != nil {
		return nil, err
	}

	p.enter(StatePausing)
	WaitFor(r.clock, cfg.Pause, func() bool { return ctx.Err() != nil })
	p.enter(StateIdle)
	return rep, nil
}

// report decides the listen outcome. The pin only says something happened;
// the flags register says what.
func (p *Pinger) report(res WaitResult, rep *Report) (Outcome, error) {
	r := p.radio
	flags := rep.RxFlags
	switch {
	case res == WaitTimedOut:
		r.logf("LoRa RX timeout/none irq=%s", flags)
		return OutcomeTimeout, nil
	case flags.RxDone() && flags.CRCError():
		r.logf("LoRa RX: crc error irq=%s", flags)
		return OutcomeCRCError, nil
	case flags.RxDone():
		pkt, err := r.FetchPayload()
		if err != nil {
			return OutcomeTimeout, err
		}
		rep.Packet = pkt
		r.logf("LoRa RX: len=%d first=0x%02x rssi_raw=%d irq=%s",
			pkt.Len(), pkt.First(), pkt.RSSI, flags)
		return OutcomeReceived, nil
	case flags.TxDone():
		r.logf("warning: DIO0 raised by TxDone while listening, irq=%s", flags)
		return OutcomeStrayTxDone, nil
	}
	r.logf("LoRa RX timeout/none irq=%s", flags)
	return OutcomeTimeout, nil
}

func (p *Pinger) enter(s State) {
	p.state = s
	if p.observe != nil {
		p.observe(s)
	}
}
