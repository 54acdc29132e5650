// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package main

import (
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

func configCmd(a *app) *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the effective configuration after merging defaults, config file, and environment variables.`,
		Example: `  # Show effective configuration
  sqlexpr config show

  # Show configuration with source file path
  sqlexpr config show --source`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if showSource {
				if path := a.cfg.Path(); path != "" {
					fmt.Fprintf(w, "Config file: %s\n\n", path)
				} else {
					fmt.Fprint(w, "Config file: (none, using defaults)\n\n")
				}
			}
			out, err := yaml.Marshal(a.cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(w, string(out))
			return nil
		},
	}
	show.Flags().BoolVar(&showSource, "source", false, "show config file source")
	cmd.AddCommand(show)
	return cmd
}
