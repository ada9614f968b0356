// SPDX-License-Identifier: GPL-3.0-or-later

// Command odoh resolves a name using Oblivious DNS-over-HTTPS.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/bassosimone/odoh/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli.ExecuteContext(ctx)
}
