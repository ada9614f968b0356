// SPDX-License-Identifier: GPL-3.0-or-later

package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel(" error "))
	assert.Equal(t, zerolog.WarnLevel, parseLevel(""))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("loud"))
}

func TestBase(t *testing.T) {
	var out bytes.Buffer
	logger := Base(&out, "odoh", "info", "json")
	logger.Debug().Msg("hidden")
	logger.Info().Str("target", "odoh.example.com").Msg("visible")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), `"app":"odoh"`)
	assert.Contains(t, out.String(), `"target":"odoh.example.com"`)
	assert.Contains(t, out.String(), `"message":"visible"`)
}

func TestBaseConsole(t *testing.T) {
	var out bytes.Buffer
	logger := Base(&out, "odoh", "warn", "console")
	logger.Warn().Msg("careful")

	assert.Contains(t, out.String(), "WRN")
	assert.Contains(t, out.String(), "careful")
	assert.NotContains(t, out.String(), "{")
}
