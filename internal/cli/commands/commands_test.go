package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("1.2.3", "2026-01-01", "abc1234")
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "gridboard 1.2.3")
	assert.Contains(t, out.String(), "build date: 2026-01-01")
	assert.Contains(t, out.String(), "git commit: abc1234")
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.csv")
	csv := "region,sales\nNorth,125\nSouth,90\nEast,210\nWest,55\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	cmd := NewInspectCommand()
	cmd.SetArgs([]string{path})
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "region")
	assert.Contains(t, out.String(), "dimension")
	assert.Contains(t, out.String(), "measure")
	assert.Contains(t, out.String(), "4 rows, 2 fields")
}

func TestInspectCommandMissingFile(t *testing.T) {
	cmd := NewInspectCommand()
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "absent.csv")})
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	assert.Error(t, cmd.Execute())
}

func TestWidgetsCommand(t *testing.T) {
	cmd := NewWidgetsCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())

	for _, typ := range []string{"bar-chart", "line-chart", "pie-chart", "table", "kpi"} {
		assert.Contains(t, out.String(), typ)
	}
}

func TestWidgetsCommandWithManifestDir(t *testing.T) {
	dir := t.TempDir()
	manifest := `type: gauge
name: Gauge
version: "2.0.0"
requirements:
  minDimensions: 0
  maxDimensions: 0
  minMeasures: 1
  maxMeasures: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gauge.yaml"), []byte(manifest), 0o644))

	cmd := NewWidgetsCommand()
	cmd.SetArgs([]string{"--widgets-dir", dir})
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "gauge")
}
