// SPDX-License-Identifier: GPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bassosimone/odoh"
)

func runResolve(cmd *cobra.Command, opts *options, domain, qtype string) error {
	ctx := cmd.Context()
	log := zerolog.Ctx(ctx)

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	timeout, _ := cfg.TimeoutDuration()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var metrics *odoh.Metrics
	if opts.metricsFile != "" {
		reg := prometheus.NewRegistry()
		metrics = odoh.NewMetrics(reg)
		defer func() {
			if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
				log.Err(err).Str("path", opts.metricsFile).Msg("failed to write metrics")
			}
		}()
	}

	client, release := newClient(cfg, opts)
	defer release()

	sess, err := odoh.NewSession(ctx, &odoh.SessionConfig{
		Client:  client,
		Target:  cfg.Server.Target,
		Proxy:   cfg.Server.Proxy,
		Padding: cfg.PaddingOrDefault(),
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	reply, err := sess.Resolve(ctx, domain, qtype)
	if err != nil {
		return err
	}

	return printAnswers(cmd.OutOrStdout(), domain, qtype, reply)
}

// printAnswers writes the answer section of the reply.
func printAnswers(w io.Writer, domain, qtype string, reply *dns.Msg) error {
	if len(reply.Answer) == 0 {
		_, err := fmt.Fprintf(w, "No result found for domain %s!\n", domain)
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Domain: %s\n", domain)
	fmt.Fprintf(&b, "%s records:\n", qtype)
	for _, rr := range reply.Answer {
		fmt.Fprintf(&b, "\t%s\t%s\n", rr.Header().Name, recordData(rr))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// recordData returns the presentation format of the record data.
func recordData(rr dns.RR) string {
	return strings.TrimPrefix(rr.String(), rr.Header().String())
}
