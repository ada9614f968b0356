// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bassosimone/odoh"
)

func newConfigsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Show the configs published by the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			timeout, _ := cfg.TimeoutDuration()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client, release := newClient(cfg, opts)
			defer release()

			set, err := odoh.Discover(ctx, client, cfg.Server.Target)
			if err != nil {
				return err
			}
			return printConfigs(cmd.OutOrStdout(), cfg.Server.Target, set)
		},
	}
	return cmd
}

// printConfigs lists the configs and marks the one a session would select
// with "*" and the unsupported ones with "-".
func printConfigs(w io.Writer, target string, set odoh.ConfigSet) error {
	selected := -1
	var b strings.Builder
	fmt.Fprintf(&b, "Target: %s\n", target)
	fmt.Fprintf(&b, "%d config(s):\n", len(set))
	for idx, config := range set {
		mark := "-"
		if config.Contents.IsSupported() {
			mark = " "
			if selected < 0 {
				selected = idx
				mark = "*"
			}
		}
		fmt.Fprintf(&b, "%s [%d] version=0x%04x %s pk=%d bytes\n",
			mark, idx, config.Version, config.Contents.Suite, len(config.Contents.PublicKey))
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	_, err := odoh.SelectConfig(set)
	return err
}
