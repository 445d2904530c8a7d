package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	serial "github.com/luhtfiimanal/go-serial-manager"
	"github.com/luhtfiimanal/go-serial-manager/internal/config"
)

type sendOptions struct {
	hexInput bool
	suffix   string
	format   string
}

func (o *sendOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.hexInput, "hex", false, "commands are hex encoded (e.g. 504f5752)")
	cmd.Flags().StringVar(&o.suffix, "suffix", "", `bytes appended to every command, e.g. \r`)
	cmd.Flags().StringVarP(&o.format, "output", "o", "quoted", "response format: quoted, hex or raw")
}

// encode turns one command argument into the bytes to send.
func (o *sendOptions) encode(arg string) ([]byte, error) {
	var cmd []byte
	var err error
	if o.hexInput {
		cmd, err = hex.DecodeString(strings.ReplaceAll(arg, " ", ""))
	} else {
		cmd, err = config.DecodeEscapes(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", arg, err)
	}
	suffix, err := config.DecodeEscapes(o.suffix)
	if err != nil {
		return nil, fmt.Errorf("suffix %q: %w", o.suffix, err)
	}
	return append(cmd, suffix...), nil
}

func (o *sendOptions) print(w io.Writer, resp []byte) error {
	var err error
	switch o.format {
	case "hex":
		_, err = fmt.Fprintln(w, hex.EncodeToString(resp))
	case "raw":
		_, err = w.Write(resp)
	default:
		_, err = fmt.Fprintf(w, "%q\n", resp)
	}
	return err
}

func (o *sendOptions) validate() error {
	switch o.format {
	case "quoted", "hex", "raw":
		return nil
	default:
		return fmt.Errorf("unknown output format %q", o.format)
	}
}

func newSendCmd() *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send COMMAND...",
		Short: "Send each argument as one command and print the replies in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			cmds := make([][]byte, 0, len(args))
			for _, arg := range args {
				c, err := opts.encode(arg)
				if err != nil {
					return err
				}
				cmds = append(cmds, c)
			}

			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			return sendAll(cmd, m, cmds, &opts)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func sendAll(cmd *cobra.Command, m *serial.Manager, cmds [][]byte, opts *sendOptions) error {
	var firstErr error
	for _, c := range cmds {
		resp, err := m.Do(cmd.Context(), c)
		if errors.Is(err, serial.ErrStopped) {
			return err
		}
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := opts.print(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	}
	return firstErr
}
