package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "flux version ")
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join("..", "..", "examples", "triage"))
	require.NoError(t, err)
	assert.Contains(t, out, "Triage: 3 nodes, 2 edges\n")
	assert.Contains(t, out, "1 file(s) valid")
}

func TestRunCommand(t *testing.T) {
	out, err := execute(t, "run", filepath.Join("..", "..", "examples", "triage"))
	require.NoError(t, err)
	assert.Contains(t, out, "fever review: 11 steps, 0 failed")
}
