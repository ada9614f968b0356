// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging builds the process logger.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Base builds a zerolog.Logger writing to w.
// format: json|console; level: debug|info|warn|error
func Base(w io.Writer, app, level, format string) zerolog.Logger {
	lvl := parseLevel(level)
	return zerolog.New(writerForFormat(w, format)).Level(lvl).With().Timestamp().Str("app", app).Logger()
}

func parseLevel(s string) zerolog.Level {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s))); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.WarnLevel
}

func writerForFormat(w io.Writer, format string) io.Writer {
	if strings.ToLower(format) == "console" {
		return zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	return w
}
