package cli

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	serial "github.com/luhtfiimanal/go-serial-manager"
)

func newReplCmd() *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Read commands from stdin, one per line, and print each reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			m, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				line := sc.Text()
				if line == "" {
					continue
				}
				c, err := opts.encode(line)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					continue
				}
				resp, err := m.Do(cmd.Context(), c)
				if errors.Is(err, serial.ErrStopped) {
					return err
				}
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
				if len(resp) > 0 {
					if err := opts.print(cmd.OutOrStdout(), resp); err != nil {
						return err
					}
				}
			}
			return sc.Err()
		},
	}
	opts.addFlags(cmd)
	return cmd
}
