package serial

import (
	"fmt"
	"strings"
	"time"

	gobug "go.bug.st/serial"
)

// Defaults applied by Config.Normalize.
const (
	DefaultBaudRate        = 115200
	DefaultDataBits        = 8
	DefaultStopBits        = 1
	DefaultParity          = "N"
	DefaultWriteTimeout    = 2 * time.Second
	DefaultSettleDelay     = 2 * time.Second
	DefaultQueueSize       = 64
	DefaultMaxResponseSize = 64 * 1024

	// DefaultDelimiter is the frame terminator used by DefaultConfig.
	DefaultDelimiter byte = 0xFF

	// NoSettleDelay disables the post-open settle pause.
	NoSettleDelay time.Duration = -1
)

// Config holds everything fixed at Manager construction.
type Config struct {
	// Device is the port identifier, e.g. /dev/ttyUSB0 or COM3.
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	// Parity is one of N, E, O (or NONE, EVEN, ODD).
	Parity string `mapstructure:"parity"`

	// Delimiter terminates every response frame. The zero value is NUL.
	Delimiter byte `mapstructure:"-"`

	// WriteTimeout bounds a single command write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ResponseTimeout bounds the read of a whole response frame. Zero means
	// wait for the delimiter forever.
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	// SettleDelay is the pause after opening the device before stale input
	// is discarded. Zero selects DefaultSettleDelay; NoSettleDelay skips it.
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	QueueSize       int `mapstructure:"queue_size"`
	MaxResponseSize int `mapstructure:"max_response_size"`

	// Backend selects the transport: BackendAuto, BackendNative or BackendBugst.
	Backend string `mapstructure:"backend"`
}

// DefaultConfig returns a Config for device with every other field at its default.
func DefaultConfig(device string) Config {
	cfg := Config{Device: device, Delimiter: DefaultDelimiter}
	cfg, _ = cfg.Normalize()
	return cfg
}

// Normalize validates the configuration and applies defaults for unset values.
func (c Config) Normalize() (Config, error) {
	cfg := c

	if strings.TrimSpace(cfg.Device) == "" {
		return cfg, fmt.Errorf("missing device")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}

	if cfg.DataBits == 0 {
		cfg.DataBits = DefaultDataBits
	}
	if cfg.DataBits < 5 || cfg.DataBits > 8 {
		return cfg, fmt.Errorf("invalid data bits %d: must be between 5 and 8", cfg.DataBits)
	}

	if cfg.StopBits == 0 {
		cfg.StopBits = DefaultStopBits
	}
	if cfg.StopBits != 1 && cfg.StopBits != 2 {
		return cfg, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", cfg.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(cfg.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return cfg, fmt.Errorf("unsupported parity %q: expected N, E, or O", cfg.Parity)
	}
	cfg.Parity = parity

	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.WriteTimeout < 0 {
		return cfg, fmt.Errorf("invalid write timeout %s", cfg.WriteTimeout)
	}
	if cfg.ResponseTimeout < 0 {
		return cfg, fmt.Errorf("invalid response timeout %s", cfg.ResponseTimeout)
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}

	switch cfg.Backend {
	case BackendAuto, BackendNative, BackendBugst:
	default:
		return cfg, fmt.Errorf("unknown backend %q: expected %q or %q", cfg.Backend, BackendNative, BackendBugst)
	}

	return cfg, nil
}

// SerialMode converts the line settings into the go.bug.st/serial mode used
// by the portable backend.
func (c Config) SerialMode() (*gobug.Mode, error) {
	cfg, err := c.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &gobug.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch cfg.StopBits {
	case 2:
		mode.StopBits = gobug.TwoStopBits
	default:
		mode.StopBits = gobug.OneStopBit
	}

	switch cfg.Parity {
	case "E":
		mode.Parity = gobug.EvenParity
	case "O":
		mode.Parity = gobug.OddParity
	default:
		mode.Parity = gobug.NoParity
	}

	return mode, nil
}
