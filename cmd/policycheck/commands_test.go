package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"policycheck"}, args...))
	return out.String(), err
}

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestShow_DefaultTable(t *testing.T) {
	out, err := runApp(t, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "STREAMS")
	assert.Contains(t, out, "medium+low")
	assert.Contains(t, out, "1200")
	assert.Contains(t, out, "| 10 ")
}

func TestMatch_DefaultTable(t *testing.T) {
	out, err := runApp(t, "match", "--participants", "4", "--bitrate", "300")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule 2: 4 / 350 = medium+low (150,600,0)")
	assert.Contains(t, out, "active streams: medium+low")
	assert.NotContains(t, out, "fallback")
}

func TestMatch_Fallback(t *testing.T) {
	path := writeRules(t, `
- max_participants: 2
  max_bitrate_kbps: 300
  low_kbps: 0
  medium_kbps: 0
  high_kbps: 1200
`)
	out, err := runApp(t, "--rules", path, "match", "-p", "20", "-b", "5000")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule -1: 99 / 99 = low (100,0,0)")
	assert.Contains(t, out, "fallback applied")
}

func TestValidate(t *testing.T) {
	out, err := runApp(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 11 rules")

	path := writeRules(t, `
- {max_participants: 6, max_bitrate_kbps: 350, low_kbps: 150, medium_kbps: 600, high_kbps: 0}
- {max_participants: 4, max_bitrate_kbps: 350, low_kbps: 0, medium_kbps: 600, high_kbps: 0}
`)
	out, err = runApp(t, "--rules", path, "validate")
	require.Error(t, err)
	exitErr, ok := err.(cli.ExitCoder)
	require.True(t, ok)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, out, "row 1:")
}

func TestRulesFromConfigFile(t *testing.T) {
	path := writeRules(t, `
server:
  address: ":9090"
policy:
  rules:
    - {max_participants: max, max_bitrate_kbps: max, low_kbps: 300, medium_kbps: 0, high_kbps: 0}
`)
	out, err := runApp(t, "--rules", path, "match", "-p", "50", "-b", "50")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule 0: max / max = low (300,0,0)")
}

func TestMissingRulesFile(t *testing.T) {
	_, err := runApp(t, "--rules", filepath.Join(t.TempDir(), "absent.yaml"), "show")
	assert.Error(t, err)
}
