package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliSeed = `
fact "api" "calls" "db" {}
fact "web" "calls" "api" {}
`

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return rootCmd.Execute()
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.hcl")
	require.NoError(t, os.WriteFile(seedPath, []byte(cliSeed), 0o644))
	cfgPath := filepath.Join(dir, "netviz.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("graph_dir: "+filepath.Join(dir, "graphs")+"\n"), 0o644))

	tests := []struct {
		format   string
		contains []string
	}{
		{"mermaid", []string{"graph TD", `api -- "calls" --> db`, `web -- "calls" --> api`}},
		{"svg", []string{"<svg", `data-hash="api"`, "marker-end"}},
		{"json", []string{`"generation"`, `"hash": "web"`}},
		{"saved", []string{`"triplets"`, `"predicate": "calls"`}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out := filepath.Join(dir, "out."+tt.format)
			require.NoError(t, runCLI(t, "export", "--config", cfgPath, "--seed", seedPath, "--format", tt.format, "--out", out, "--name", ""))

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, string(data), want)
			}
		})
	}
}

func TestExportCommand_NamedSave(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.hcl")
	require.NoError(t, os.WriteFile(seedPath, []byte(cliSeed), 0o644))
	cfgPath := filepath.Join(dir, "netviz.yaml")
	graphs := filepath.Join(dir, "graphs")
	require.NoError(t, os.WriteFile(cfgPath, []byte("graph_dir: "+graphs+"\n"), 0o644))

	require.NoError(t, runCLI(t, "export", "--config", cfgPath, "--seed", seedPath,
		"--format", "saved", "--name", "services", "--out", filepath.Join(dir, "saved.json")))

	entries, err := os.ReadDir(graphs)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "services")
}

func TestExportCommand_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	err := runCLI(t, "export", "--config", filepath.Join(dir, "missing.yaml"), "--format", "png",
		"--out", filepath.Join(dir, "x"), "--seed", "", "--name", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
