package loraping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConfigError reports a Config field that the transceiver cannot be
// programmed with.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Config holds the radio parameters and the timing of the ping cycle.
type Config struct {
	// Frequency is the carrier centre frequency in Hz.
	Frequency       uint64 `json:"frequency"`
	SpreadingFactor uint8  `json:"spreading_factor"`
	// Bandwidth in Hz, rounded up to the next supported bin.
	Bandwidth uint64 `json:"bandwidth"`
	// CodingRate is the denominator of 4/x, 5 through 8.
	CodingRate     uint8  `json:"coding_rate"`
	ImplicitHeader bool   `json:"implicit_header"`
	CRC            bool   `json:"crc"`
	AGC            bool   `json:"agc"`
	PreambleLength uint16 `json:"preamble_length"`
	// TxPower in dBm on the PA_BOOST output, 2 through 17.
	TxPower uint8 `json:"tx_power"`

	// Durations are stored in profiles as whole milliseconds under the
	// *_ms keys, see MarshalJSON.
	ResetHold time.Duration `json:"-"`
	TxTimeout time.Duration `json:"-"`
	RxTimeout time.Duration `json:"-"`
	Pause     time.Duration `json:"-"`

	PayloadPrefix string `json:"payload_prefix"`
	// StrictVersion makes a version register mismatch fatal.
	StrictVersion bool `json:"strict_version"`
}

func DefaultConfig() Config {
	return Config{
		Frequency:       915125000,
		SpreadingFactor: 7,
		Bandwidth:       125e3,
		CodingRate:      5,
		CRC:             true,
		AGC:             true,
		PreambleLength:  8,
		TxPower:         17,
		ResetHold:       20 * time.Millisecond,
		TxTimeout:       1500 * time.Millisecond,
		RxTimeout:       1200 * time.Millisecond,
		Pause:           1000 * time.Millisecond,
		PayloadPrefix:   "ping #",
	}
}

var bandwidthBins = []uint64{7.8e3, 10.4e3, 15.6e3, 20.8e3, 31.25e3, 41.7e3, 62.5e3, 125e3, 250e3, 500e3}

func (c *Config) Validate() error {
	switch {
	case c.Frequency < 137e6 || c.Frequency > 1020e6:
		return &ConfigError{"frequency", fmt.Sprintf("%d Hz outside 137-1020 MHz", c.Frequency)}
	case c.SpreadingFactor < 6 || c.SpreadingFactor > 12:
		return &ConfigError{"spreading_factor", fmt.Sprintf("%d outside 6-12", c.SpreadingFactor)}
	case c.SpreadingFactor == 6 && !c.ImplicitHeader:
		return &ConfigError{"spreading_factor", "SF6 requires implicit header mode"}
	case c.Bandwidth == 0 || c.Bandwidth > bandwidthBins[len(bandwidthBins)-1]:
		return &ConfigError{"bandwidth", fmt.Sprintf("%d Hz not supported", c.Bandwidth)}
	case c.CodingRate < 5 || c.CodingRate > 8:
		return &ConfigError{"coding_rate", fmt.Sprintf("4/%d outside 4/5-4/8", c.CodingRate)}
	case c.PreambleLength < 6:
		return &ConfigError{"preamble_length", "must be at least 6 symbols"}
	case c.TxPower < 2 || c.TxPower > 17:
		return &ConfigError{"tx_power", fmt.Sprintf("%d dBm outside 2-17", c.TxPower)}
	case c.ResetHold <= 0:
		return &ConfigError{"reset_hold_ms", "must be positive"}
	case c.TxTimeout <= 0:
		return &ConfigError{"tx_timeout_ms", "must be positive"}
	case c.RxTimeout <= 0:
		return &ConfigError{"rx_timeout_ms", "must be positive"}
	case c.Pause < 0:
		return &ConfigError{"pause_ms", "must not be negative"}
	case len(c.PayloadPrefix)+3 > MaxPayloadLength:
		return &ConfigError{"payload_prefix", "payload would not fit the fifo"}
	}
	return nil
}

func (c *Config) frf() uint32 {
	return uint32((c.Frequency << 19) / crystalFrequency)
}

func (c *Config) bandwidthIndex() byte {
	for i, bw := range bandwidthBins {
		if c.Bandwidth <= bw {
			return byte(i)
		}
	}
	return byte(len(bandwidthBins) - 1)
}

func (c *Config) paConfig() byte {
	// Pout = 17 - (15 - OutputPower) on PA_BOOST with MaxPower left at 0.
	return byte(PABoost) | (c.TxPower-2)&0x0f
}

func (c *Config) modemConfig1() byte {
	mc := c.bandwidthIndex()<<4 | (c.CodingRate-4)<<1
	if c.ImplicitHeader {
		mc |= 0x01
	}
	return mc
}

func (c *Config) modemConfig2() byte {
	mc := c.SpreadingFactor << 4
	if c.CRC {
		mc |= 0x04
	}
	return mc
}

func (c *Config) modemConfig3() byte {
	var mc byte
	if c.lowDataRateOptimize() {
		mc |= 0x08
	}
	if c.AGC {
		mc |= 0x04
	}
	return mc
}

// SymbolTime is the duration of one chirp symbol.
func (c *Config) SymbolTime() time.Duration {
	bw := bandwidthBins[c.bandwidthIndex()]
	return time.Duration(uint64(1)<<c.SpreadingFactor) * time.Second / time.Duration(bw)
}

// The datasheet mandates low data rate optimisation above 16 ms symbols.
func (c *Config) lowDataRateOptimize() bool {
	return c.SymbolTime() > 16*time.Millisecond
}

type configAlias Config

type configJSON struct {
	*configAlias
	ResetHoldMs int64 `json:"reset_hold_ms"`
	TxTimeoutMs int64 `json:"tx_timeout_ms"`
	RxTimeoutMs int64 `json:"rx_timeout_ms"`
	PauseMs     int64 `json:"pause_ms"`
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		configAlias: (*configAlias)(&c),
		ResetHoldMs: c.ResetHold.Milliseconds(),
		TxTimeoutMs: c.TxTimeout.Milliseconds(),
		RxTimeoutMs: c.RxTimeout.Milliseconds(),
		PauseMs:     c.Pause.Milliseconds(),
	})
}

// UnmarshalJSON only overwrites the fields present in data.
func (c *Config) UnmarshalJSON(data []byte) error {
	aux := configJSON{
		configAlias: (*configAlias)(c),
		ResetHoldMs: c.ResetHold.Milliseconds(),
		TxTimeoutMs: c.TxTimeout.Milliseconds(),
		RxTimeoutMs: c.RxTimeout.Milliseconds(),
		PauseMs:     c.Pause.Milliseconds(),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.ResetHold = time.Duration(aux.ResetHoldMs) * time.Millisecond
	c.TxTimeout = time.Duration(aux.TxTimeoutMs) * time.Millisecond
	c.RxTimeout = time.Duration(aux.RxTimeoutMs) * time.Millisecond
	c.Pause = time.Duration(aux.PauseMs) * time.Millisecond
	return nil
}

// LoadConfig reads a JSON deployment profile. Fields missing from the file
// keep their DefaultConfig value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
