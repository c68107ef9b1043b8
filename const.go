package loraping

import "fmt"

type Mode byte
type Register byte
type PAConfig byte

const (
	RegFifo              Register = 0x00
	RegOpMode            Register = 0x01
	RegFrfMsb            Register = 0x06
	RegFrfMid            Register = 0x07
	RegFrfLsb            Register = 0x08
	RegPaConfig          Register = 0x09
	RegFifoAddrPtr       Register = 0x0d
	RegFifoTxBaseAddr    Register = 0x0e
	RegFifoRxBaseAddr    Register = 0x0f
	RegFifoRxCurrentAddr Register = 0x10
	RegIrqFlags          Register = 0x12
	RegRxNbBytes         Register = 0x13
	RegPktSnrValue       Register = 0x19
	RegPktRssiValue      Register = 0x1a
	RegModemConfig1      Register = 0x1d
	RegModemConfig2      Register = 0x1e
	RegPreambleMsb       Register = 0x20
	RegPreambleLsb       Register = 0x21
	RegPayloadLength     Register = 0x22
	RegModemConfig3      Register = 0x26
	RegDetectOptimize    Register = 0x31
	RegDetectThreshold   Register = 0x37
	RegDioMapping1       Register = 0x40
	RegVersion           Register = 0x42
)

const (
	ModeLongRange    Mode = 0x80
	ModeSleep        Mode = 0x00
	ModeStandby      Mode = 0x01
	ModeTx           Mode = 0x03
	ModeRxContinuous Mode = 0x05
)

const (
	PABoost PAConfig = 0x80
)

const (
	IrqTxDoneMask          byte = 0x08
	IrqPayloadCrcErrorMask byte = 0x20
	IrqRxDoneMask          byte = 0x40
	IrqClearAll            byte = 0xff
)

const (
	FifoSize         = 256
	MaxPayloadLength = 255
	ExpectedVersion  = 0x12

	FifoTxBase byte = 0x00
	// DioMapping1 value routing TxDone (in Tx) and RxDone (in Rx) to DIO0.
	DioMappingTxRxDone byte = 0x00

	// Detection settings SF6 needs; SF7-12 run on the reset values 0xc3/0x0a.
	DetectOptimizeSF6  byte = 0xc5
	DetectThresholdSF6 byte = 0x0c

	crystalFrequency   uint64 = 32000000
	RfMidBandThreshold uint64 = 525e6
	RssiOffsetHfPort          = 157
	RssiOffsetLfPort          = 164
)

// Access describes which directions of bus access a register accepts.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessReadWrite = AccessRead | AccessWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "r"
	case AccessWrite:
		return "w"
	case AccessReadWrite:
		return "rw"
	}
	return "none"
}

type registerInfo struct {
	name   string
	access Access
	// idleOnly registers may only be written in sleep or standby.
	idleOnly bool
}

var registers = map[Register]registerInfo{
	RegFifo:              {name: "Fifo", access: AccessReadWrite},
	RegOpMode:            {name: "OpMode", access: AccessReadWrite},
	RegFrfMsb:            {name: "FrfMsb", access: AccessReadWrite, idleOnly: true},
	RegFrfMid:            {name: "FrfMid", access: AccessReadWrite, idleOnly: true},
	RegFrfLsb:            {name: "FrfLsb", access: AccessReadWrite, idleOnly: true},
	RegPaConfig:          {name: "PaConfig", access: AccessReadWrite},
	RegFifoAddrPtr:       {name: "FifoAddrPtr", access: AccessReadWrite},
	RegFifoTxBaseAddr:    {name: "FifoTxBaseAddr", access: AccessReadWrite, idleOnly: true},
	RegFifoRxBaseAddr:    {name: "FifoRxBaseAddr", access: AccessReadWrite, idleOnly: true},
	RegFifoRxCurrentAddr: {name: "FifoRxCurrentAddr", access: AccessRead},
	RegIrqFlags:          {name: "IrqFlags", access: AccessReadWrite},
	RegRxNbBytes:         {name: "RxNbBytes", access: AccessRead},
	RegPktSnrValue:       {name: "PktSnrValue", access: AccessRead},
	RegPktRssiValue:      {name: "PktRssiValue", access: AccessRead},
	RegModemConfig1:      {name: "ModemConfig1", access: AccessReadWrite},
	RegModemConfig2:      {name: "ModemConfig2", access: AccessReadWrite},
	RegPreambleMsb:       {name: "PreambleMsb", access: AccessReadWrite},
	RegPreambleLsb:       {name: "PreambleLsb", access: AccessReadWrite},
	RegPayloadLength:     {name: "PayloadLength", access: AccessReadWrite},
	RegModemConfig3:      {name: "ModemConfig3", access: AccessReadWrite},
	RegDetectOptimize:    {name: "DetectOptimize", access: AccessReadWrite},
	RegDetectThreshold:   {name: "DetectThreshold", access: AccessReadWrite},
	RegDioMapping1:       {name: "DioMapping1", access: AccessReadWrite},
	RegVersion:           {name: "Version", access: AccessRead},
}

func (r Register) String() string {
	if info, ok := registers[r]; ok {
		return info.name
	}
	return fmt.Sprintf("Reg(0x%02x)", byte(r))
}

// Access returns the register's access mode, or 0 for registers the driver
// does not know about.
func (r Register) Access() Access {
	return registers[r].access
}

// IdleOnly reports whether the register may only be written while the chip
// is in sleep or standby.
func (r Register) IdleOnly() bool {
	return registers[r].idleOnly
}

func (m Mode) String() string {
	switch m &^ ModeLongRange {
	case ModeSleep:
		return "sleep"
	case ModeStandby:
		return "standby"
	case ModeTx:
		return "tx"
	case ModeRxContinuous:
		return "rx-continuous"
	}
	return fmt.Sprintf("Mode(0x%02x)", byte(m))
}

// idle reports whether register reprogramming is allowed in this mode.
func (m Mode) idle() bool {
	m &^= ModeLongRange
	return m == ModeSleep || m == ModeStandby
}

// IrqFlags is the content of RegIrqFlags. Flags are sticky until cleared.
type IrqFlags byte

func (f IrqFlags) TxDone() bool   { return byte(f)&IrqTxDoneMask != 0 }
func (f IrqFlags) RxDone() bool   { return byte(f)&IrqRxDoneMask != 0 }
func (f IrqFlags) CRCError() bool { return byte(f)&IrqPayloadCrcErrorMask != 0 }

func (f IrqFlags) String() string {
	return fmt.Sprintf("0x%02x", byte(f))
}
