package loraping

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    uint32
		want string
	}{
		{0, "ping #000"},
		{7, "ping #007"},
		{42, "ping #042"},
		{999, "ping #999"},
		{1000, "ping #000"},
		{1042, "ping #042"},
		{math.MaxUint32, "ping #295"},
	}
	for _, tt := range tests {
		got := FormatPayload("ping #", tt.n)
		assert.Equal(t, tt.want, string(got), "n=%d", tt.n)
		assert.Len(t, got, 9)
	}
}

func hasLog(logs []string, prefix string) bool {
	for _, line := range logs {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func TestPinger_EndToEnd(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	require.NoError(t, rig.radio.Init())

	resets := rig.reset.changes
	require.Len(t, resets, 2)
	assert.GreaterOrEqual(t, resets[1].At.Sub(resets[0].At), 20*time.Millisecond)
	assert.Contains(t, rig.logs, "SX127x version reg = 0x12 (expect 0x12)")
	assert.Equal(t, deploymentSequence, rig.chip.writes)

	rig.chip.writes = nil
	rep, err := NewPinger(rig.radio).Step()
	require.NoError(t, err)

	require.Len(t, rig.chip.sent, 1)
	assert.Equal(t, []byte("ping #000"), rig.chip.sent[0])
	assert.Equal(t, uint32(0), rep.Seq)
	assert.False(t, rep.TxTimedOut)
	assert.True(t, rep.TxFlags.TxDone())
	assert.Contains(t, rig.logs, "LoRa TX: ping #000")
	assert.Contains(t, rig.logs, "TX done, IRQ=0x08")
	assert.False(t, hasLog(rig.logs, "TX timeout"))

	assert.Equal(t, []regWrite{
		{RegOpMode, 0x81},
		{RegIrqFlags, 0xff},
		{RegFifoAddrPtr, 0x00},
		{RegPayloadLength, 9},
		{RegOpMode, 0x83},
		{RegIrqFlags, 0xff},
		{RegOpMode, 0x85},
		{RegIrqFlags, 0xff},
	}, rig.chip.writes)
	assert.Zero(t, rig.chip.unselected)
}

func TestPinger_Outcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(*simChip)
		outcome   Outcome
		fetched   bool
		logPrefix string
	}{
		{
			name:      "NoResponse",
			setup:     func(*simChip) {},
			outcome:   OutcomeTimeout,
			logPrefix: "LoRa RX timeout/none",
		},
		{
			name: "Received",
			setup: func(s *simChip) {
				s.inbound = []simFrame{{data: []byte("pong #000"), rssi: 101, snr: 20}}
			},
			outcome:   OutcomeReceived,
			fetched:   true,
			logPrefix: "LoRa RX: len=9 first=0x70 rssi_raw=101 irq=0x40",
		},
		{
			name: "CRCError",
			setup: func(s *simChip) {
				s.inbound = []simFrame{{data: []byte("garbled"), crcErr: true}}
			},
			outcome:   OutcomeCRCError,
			logPrefix: "LoRa RX: crc error",
		},
		{
			name:      "StrayTxDone",
			setup:     func(s *simChip) { s.strayTxDone = true },
			outcome:   OutcomeStrayTxDone,
			logPrefix: "warning: DIO0 raised by TxDone",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rig := newTestRig(t)
			require.NoError(t, rig.radio.Init())
			tt.setup(rig.chip)

			rep, err := NewPinger(rig.radio).Step()
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, rep.Outcome)
			assert.True(t, hasLog(rig.logs, tt.logPrefix), "logs: %v", rig.logs)

			if tt.fetched {
				require.NotNil(t, rep.Packet)
				assert.Equal(t, []byte("pong #000"), rep.Packet.Data)
				assert.Equal(t, byte(101), rep.Packet.RSSI)
				assert.Equal(t, 9, rig.chip.fifoReads)
			} else {
				assert.Nil(t, rep.Packet)
				assert.Zero(t, rig.chip.fifoReads, "payload must not be fetched")
			}
			assert.Zero(t, rig.chip.regs[RegIrqFlags], "flags left set after cycle")
		})
	}
}

func TestPinger_RxTimeoutIgnoresFlagsWithoutPin(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	require.NoError(t, rig.radio.Init())
	p := NewPinger(rig.radio, WithObserver(func(s State) {
		// A flag appears but DIO0 never rises during the listen window.
		if s == StateAwaitingRx {
			rig.chip.regs[RegIrqFlags] = IrqRxDoneMask
			rig.chip.regs[RegRxNbBytes] = 4
		}
	}))

	rep, err := p.Step()
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, rep.Outcome)
	assert.True(t, rep.RxFlags.RxDone())
	assert.Zero(t, rig.chip.fifoReads)
}

func TestPinger_TxTimeout(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	require.NoError(t, rig.radio.Init())
	rig.chip.txStall = true

	var txWaitStart time.Time
	var txWaitEnd time.Time
	p := NewPinger(rig.radio, WithObserver(func(s State) {
		switch s {
		case StateAwaitingTxDone:
			txWaitStart = rig.clock.now
		case StateSwitchingToRx:
			txWaitEnd = rig.clock.now
		}
	}))

	rep, err := p.Step()
	require.NoError(t, err)
	assert.True(t, rep.TxTimedOut)
	assert.False(t, rep.TxFlags.TxDone())
	assert.True(t, hasLog(rig.logs, "TX timeout"))
	assert.GreaterOrEqual(t, txWaitEnd.Sub(txWaitStart), 1500*time.Millisecond)
	// The cycle still moves on to listening.
	assert.Equal(t, OutcomeTimeout, rep.Outcome)
	assert.Contains(t, rig.chip.writesTo(RegOpMode), byte(0x85))
}

func TestPinger_StateSequenceAndPause(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	require.NoError(t, rig.radio.Init())

	var states []State
	var pauseStart, pauseEnd time.Time
	p := NewPinger(rig.radio, WithObserver(func(s State) {
		states = append(states, s)
		switch s {
		case StatePausing:
			pauseStart = rig.clock.now
		case StateIdle:
			pauseEnd = rig.clock.now
		}
	}))

	_, err := p.Step()
	require.NoError(t, err)
	assert.Equal(t, []State{
		StatePreparingTx,
		StateTransmitting,
		StateAwaitingTxDone,
		StateSwitchingToRx,
		StateAwaitingRx,
		StateReporting,
		StatePausing,
		StateIdle,
	}, states)
	assert.Equal(t, StateIdle, p.State())
	assert.GreaterOrEqual(t, pauseEnd.Sub(pauseStart), time.Second)
}

func TestPinger_CounterWraps(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	require.NoError(t, rig.radio.Init())
	p := NewPinger(rig.radio)
	p.counter = math.MaxUint32

	rep, err := p.Step()
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), rep.Seq)
	assert.Equal(t, []byte("ping #295"), rig.chip.sent[0])
	assert.Equal(t, uint32(0), p.Counter())

	_, err = p.Step()
	require.NoError(t, err)
	assert.Equal(t, []byte("ping #000"), rig.chip.sent[1])
}

func TestPinger_Run(t *testing.T) {
	t.Parallel()

	t.Run("StopsOnCancel", func(t *testing.T) {
		t.Parallel()

		rig := newTestRig(t)
		require.NoError(t, rig.radio.Init())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cycles := 0
		p := NewPinger(rig.radio, WithObserver(func(s State) {
			if s == StatePausing {
				cycles++
				if cycles == 3 {
					cancel()
				}
			}
		}))

		require.NoError(t, p.Run(ctx))
		assert.Len(t, rig.chip.sent, 3)
		assert.Equal(t, "ping #002", string(rig.chip.sent[2]))
	})

	t.Run("AlreadyCancelled", func(t *testing.T) {
		t.Parallel()

		rig := newTestRig(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, NewPinger(rig.radio).Run(ctx))
		assert.Empty(t, rig.chip.writes)
	})

	t.Run("BusErrorIsFatal", func(t *testing.T) {
		t.Parallel()

		rig := newTestRig(t)
		require.NoError(t, rig.radio.Init())
		boom := errors.New("spi: transfer failed")
		rig.chip.err = boom

		err := NewPinger(rig.radio).Run(context.Background())
		require.ErrorIs(t, err, boom)
	})
}

func TestStateAndOutcomeStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "awaiting-rx", StateAwaitingRx.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "crc-error", OutcomeCRCError.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
	assert.Equal(t, "rx-continuous", ModeRxContinuous.String())
	assert.Equal(t, "FifoRxCurrentAddr", RegFifoRxCurrentAddr.String())
	assert.Equal(t, "Reg(0x7e)", Register(0x7e).String())
	assert.Equal(t, AccessRead, RegVersion.Access())
	assert.Equal(t, "rw", RegIrqFlags.Access().String())
}
