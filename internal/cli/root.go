// Package cli implements the serialctl commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	serial "github.com/luhtfiimanal/go-serial-manager"
	"github.com/luhtfiimanal/go-serial-manager/internal/config"
)

type ctxKey string

const viperKey ctxKey = "viper"

// Execute builds the root command and runs it.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the root command. Settings resolve as
// defaults < config file < SERIALCTL_* env < flags.
func NewRootCmd() *cobra.Command {
	var cfgPath string
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "serialctl",
		Short:         "Send commands to a serial device and print its replies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				v.SetConfigFile(cfgPath)
			}
			if err := config.Load(cmd.Context(), v); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), viperKey, v))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (yaml|toml|json)")
	pf.StringP("device", "d", "", "serial device path")
	pf.Int("baud", serial.DefaultBaudRate, "baud rate")
	pf.String("parity", serial.DefaultParity, "parity: N, E or O")
	pf.String("delimiter", "0xff", `response terminator: a character, an escape like \r, 0xNN, or cr/lf/nul`)
	pf.Duration("write-timeout", serial.DefaultWriteTimeout, "timeout for writing one command")
	pf.Duration("response-timeout", 0, "deadline for each response; 0 waits forever")
	pf.Duration("settle-delay", serial.DefaultSettleDelay, "pause after opening before stale input is discarded; 0 skips it")
	pf.String("backend", serial.BackendAuto, "transport: native or bugst")

	for key, flag := range map[string]string{
		"device":           "device",
		"baud":             "baud",
		"parity":           "parity",
		"delimiter":        "delimiter",
		"write_timeout":    "write-timeout",
		"response_timeout": "response-timeout",
		"settle_delay":     "settle-delay",
		"backend":          "backend",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newReplCmd())
	cmd.AddCommand(newPortsCmd())
	cmd.AddCommand(newConfigCmd())

	cmd.Run = func(cmd *cobra.Command, args []string) { _ = cmd.Help() }

	return cmd
}

func getViper(cmd *cobra.Command) (*viper.Viper, error) {
	v, ok := cmd.Context().Value(viperKey).(*viper.Viper)
	if !ok {
		return nil, fmt.Errorf("internal error: config not loaded")
	}
	return v, nil
}

// openManager resolves the configuration and opens the device.
func openManager(cmd *cobra.Command) (*serial.Manager, error) {
	v, err := getViper(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return nil, err
	}
	return serial.New(cmd.Context(), cfg)
}
