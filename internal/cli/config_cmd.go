package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/luhtfiimanal/go-serial-manager/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(newConfigGenerateCmd())
	return cmd
}

func newConfigGenerateCmd() *cobra.Command {
	var out string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a commented serialctl.yaml with every default",
		RunE: func(cmd *cobra.Command, args []string) error {
			content := config.RenderDefaultYAML()
			if out == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), content)
				return err
			}
			if out == "" {
				xdg := os.Getenv("XDG_CONFIG_HOME")
				if xdg == "" {
					home, _ := os.UserHomeDir()
					xdg = filepath.Join(home, ".config")
				}
				out = filepath.Join(xdg, "serialctl", "serialctl.yaml")
			}
			return writeConfigFile(cmd, out, content, overwrite)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path for serialctl.yaml, or - for stdout")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite an existing config (creates a backup)")
	return cmd
}

func writeConfigFile(cmd *cobra.Command, out, content string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
		return err
	}

	exists := fileExists(out)
	if exists && !overwrite {
		return fmt.Errorf("config already exists at %s; use --overwrite to replace it", out)
	}

	var backupPath string
	if exists {
		var err error
		backupPath, err = backupConfig(out)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(out, []byte(content), 0o600); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
	if backupPath != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Backup: %s\n", backupPath)
	}
	return nil
}

func backupConfig(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	backup := path + ".bak"
	if fileExists(backup) {
		backup = fmt.Sprintf("%s.bak-%s", path, time.Now().Format("20060102-150405"))
	}
	if err := os.WriteFile(backup, data, 0o600); err != nil {
		return "", err
	}
	return backup, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
