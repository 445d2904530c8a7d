package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobug "go.bug.st/serial"
)

func TestConfig_NormalizeDefaults(t *testing.T) {
	cfg, err := Config{Device: "/dev/ttyUSB0"}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaudRate, cfg.BaudRate)
	assert.Equal(t, DefaultDataBits, cfg.DataBits)
	assert.Equal(t, DefaultStopBits, cfg.StopBits)
	assert.Equal(t, "N", cfg.Parity)
	assert.Equal(t, DefaultWriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, time.Duration(0), cfg.ResponseTimeout)
	assert.Equal(t, DefaultSettleDelay, cfg.SettleDelay)
	assert.Equal(t, DefaultQueueSize, cfg.QueueSize)
	assert.Equal(t, DefaultMaxResponseSize, cfg.MaxResponseSize)
	assert.Equal(t, byte(0), cfg.Delimiter)
}

func TestConfig_NormalizeKeepsExplicitValues(t *testing.T) {
	in := Config{
		Device:          "COM3",
		BaudRate:        9600,
		DataBits:        7,
		StopBits:        2,
		Parity:          "even",
		Delimiter:       '\r',
		WriteTimeout:    time.Second,
		ResponseTimeout: 3 * time.Second,
		SettleDelay:     NoSettleDelay,
		QueueSize:       4,
		MaxResponseSize: 128,
		Backend:         BackendBugst,
	}
	cfg, err := in.Normalize()
	require.NoError(t, err)

	want := in
	want.Parity = "E"
	assert.Equal(t, want, cfg)
}

func TestConfig_NormalizeRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing device", Config{Device: "  "}},
		{"data bits", Config{Device: "d", DataBits: 9}},
		{"stop bits", Config{Device: "d", StopBits: 3}},
		{"parity", Config{Device: "d", Parity: "mark"}},
		{"write timeout", Config{Device: "d", WriteTimeout: -time.Second}},
		{"response timeout", Config{Device: "d", ResponseTimeout: -time.Second}},
		{"backend", Config{Device: "d", Backend: "usb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Normalize()
			require.Error(t, err)
		})
	}
}

func TestConfig_SerialMode(t *testing.T) {
	mode, err := Config{Device: "d", BaudRate: 19200, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &gobug.Mode{
		BaudRate: 19200,
		DataBits: 8,
		Parity:   gobug.OddParity,
		StopBits: gobug.TwoStopBits,
	}, mode)

	mode, err = Config{Device: "d"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, gobug.NoParity, mode.Parity)
	assert.Equal(t, gobug.OneStopBit, mode.StopBits)

	_, err = Config{Device: "d", Parity: "X"}.SerialMode()
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyACM0")
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, DefaultDelimiter, cfg.Delimiter)
	assert.Equal(t, DefaultBaudRate, cfg.BaudRate)
}
