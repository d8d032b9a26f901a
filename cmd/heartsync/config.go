package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/heartsync/internal/config"
)

func newCheckConfigCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config and print the effective settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Resolve(path))
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Path != "" {
				fmt.Fprintf(out, "# %s\n", cfg.Path)
			} else {
				fmt.Fprintln(out, "# built-in defaults")
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "path to the YAML config file")
	return cmd
}
