// Package config resolves serialctl settings with Viper.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	serial "github.com/luhtfiimanal/go-serial-manager"
)

type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns the configuration keys, their defaults and meanings.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "device", Default: "", Comment: "Serial device path, e.g. /dev/ttyUSB0 or COM3"},
		{Key: "baud", Default: serial.DefaultBaudRate, Comment: "Baud rate"},
		{Key: "data_bits", Default: serial.DefaultDataBits, Comment: "Data bits (5-8)"},
		{Key: "stop_bits", Default: serial.DefaultStopBits, Comment: "Stop bits (1 or 2)"},
		{Key: "parity", Default: serial.DefaultParity, Comment: "Parity: N, E or O"},
		{Key: "delimiter", Default: "0xff", Comment: "Response terminator: a character, an escape like \\r, 0xNN, cr/lf/nul, or a byte value 0-255"},
		{Key: "write_timeout", Default: serial.DefaultWriteTimeout.String(), Comment: "Timeout for writing one command"},
		{Key: "response_timeout", Default: "0s", Comment: "Deadline for a whole response; 0s waits forever"},
		{Key: "settle_delay", Default: serial.DefaultSettleDelay.String(), Comment: "Pause after opening before stale input is discarded; 0s skips it"},
		{Key: "queue_size", Default: serial.DefaultQueueSize, Comment: "Commands that may wait for the device"},
		{Key: "max_response_size", Default: serial.DefaultMaxResponseSize, Comment: "Largest accepted response in bytes"},
		{Key: "backend", Default: serial.BackendAuto, Comment: "Transport: native (Linux termios) or bugst (go.bug.st/serial); empty picks"},
	}
}

func applyDefaults(v *viper.Viper) {
	for _, o := range GetConfigOptions() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load resolves configuration with precedence: defaults < file < env.
// Flags bound to v by the caller override all three.
func Load(ctx context.Context, v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("serialctl")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "serialctl"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "serialctl"))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	// Environment variables: SERIALCTL_*
	v.SetEnvPrefix("serialctl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// Decode builds the manager configuration from resolved settings.
func Decode(v *viper.Viper) (serial.Config, error) {
	var cfg serial.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	delim, err := delimiterValue(v.Get("delimiter"))
	if err != nil {
		return cfg, err
	}
	cfg.Delimiter = delim
	// the default is non-zero, so an explicit 0 asks to skip the pause
	if v.IsSet("settle_delay") && cfg.SettleDelay == 0 {
		cfg.SettleDelay = serial.NoSettleDelay
	}
	return cfg.Normalize()
}

// delimiterValue accepts the delimiter as YAML/TOML/JSON typed it: numbers
// (including YAML's 0x0d) are byte values, strings go through ParseDelimiter.
func delimiterValue(raw any) (byte, error) {
	var n int64
	switch x := raw.(type) {
	case nil:
		return serial.DefaultDelimiter, nil
	case string:
		return ParseDelimiter(x)
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		n = int64(x)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		if x > 255 {
			return 0, fmt.Errorf("invalid delimiter %d: must be between 0 and 255", x)
		}
		n = int64(x)
	case float64:
		if x != float64(int64(x)) {
			return 0, fmt.Errorf("invalid delimiter %v: not a whole byte value", x)
		}
		n = int64(x)
	default:
		return 0, fmt.Errorf("invalid delimiter %v: unsupported type %T", raw, raw)
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("invalid delimiter %d: must be between 0 and 255", n)
	}
	return byte(n), nil
}

// ParseDelimiter accepts a single character ("!"), a Go escape ("\r",
// "\x00"), a hex byte ("0x0d") or one of the names cr, lf, nul.
func ParseDelimiter(s string) (byte, error) {
	switch strings.ToLower(s) {
	case "cr":
		return '\r', nil
	case "lf", "nl":
		return '\n', nil
	case "nul":
		return 0, nil
	}
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		n, err := strconv.ParseUint(s[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid delimiter %q: %w", s, err)
		}
		return byte(n), nil
	}
	b, err := DecodeEscapes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid delimiter %q: %w", s, err)
	}
	if len(b) != 1 {
		return 0, fmt.Errorf("invalid delimiter %q: must be exactly one byte", s)
	}
	return b[0], nil
}

// DecodeEscapes interprets Go string escapes such as \r, \n and \xNN in s.
func DecodeEscapes(s string) ([]byte, error) {
	if !strings.Contains(s, `\`) {
		return []byte(s), nil
	}
	out, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
