package loraping

import (
	"errors"
	"fmt"
)

var ErrPayloadLength = errors.New("payload length out of range")

// Packet is a frame read back from the FIFO.
type Packet struct {
	Data []byte
	// Addr is where the chip placed the frame in its FIFO.
	Addr byte
	// RSSI is the raw RegPktRssiValue reading, see Lora.RSSIdBm.
	RSSI byte
	// SNR is RegPktSnrValue in quarter dB.
	SNR int8
}

func (p *Packet) Len() int {
	return len(p.Data)
}

// First returns the first payload byte, or 0 for an empty packet.
func (p *Packet) First() byte {
	if len(p.Data) == 0 {
		return 0
	}
	return p.Data[0]
}

func (p *Packet) SNRdB() float64 {
	return float64(p.SNR) / 4
}

// LoadPayload stages an outbound frame at the transmit base address and
// sets the payload length to match.
func (l *Lora) LoadPayload(payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxPayloadLength {
		return fmt.Errorf("%w: %d bytes, want 1-%d", ErrPayloadLength, len(payload), MaxPayloadLength)
	}
	if l.mode != ModeStandby {
		if err := l.SetMode(ModeStandby); err != nil {
			return err
		}
	}
	if err := l.WriteRegister(RegFifoAddrPtr, FifoTxBase); err != nil {
		return err
	}
	if err := l.bus.WriteBuffer(payload); err != nil {
		return err
	}
	return l.WriteRegister(RegPayloadLength, byte(len(payload)))
}

// FetchPayload reads the last received frame from the FIFO, one byte per
// read, along with its signal metadata.
func (l *Lora) FetchPayload() (*Packet, error) {
	n, err := l.ReadRegister(RegRxNbBytes)
	if err != nil {
		return nil, err
	}
	addr, err := l.ReadRegister(RegFifoRxCurrentAddr)
	if err != nil {
		return nil, err
	}
	if err := l.WriteRegister(RegFifoAddrPtr, addr); err != nil {
		return nil, err
	}

	data := make([]byte, n)
	for i := range data {
		if data[i], err = l.ReadRegister(RegFifo); err != nil {
			return nil, err
		}
	}

	rssi, err := l.ReadRegister(RegPktRssiValue)
	if err != nil {
		return nil, err
	}
	snr, err := l.ReadRegister(RegPktSnrValue)
	if err != nil {
		return nil, err
	}

	return &Packet{
		Data: data,
		Addr: addr,
		RSSI: rssi,
		SNR:  int8(snr),
	}, nil
}
