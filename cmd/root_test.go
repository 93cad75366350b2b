package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/failure"
)

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "stackctl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)

	for _, name := range []string{"config", "env-file", "debug", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing persistent flag %s", name)
	}
}

func TestSubcommands(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
	}{
		{name: "start", flags: []string{"no-tunnel", "metrics-addr"}},
		{name: "stop", flags: []string{"remove-images", "yes"}},
		{name: "check", flags: []string{"no-tunnel"}},
		{name: "status", flags: []string{"no-tunnel"}},
		{name: "version"},
	}

	found := map[string]*cobra.Command{}
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = c
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := found[tt.name]
			require.True(t, ok, "subcommand %s not registered", tt.name)
			for _, f := range tt.flags {
				assert.NotNil(t, c.Flags().Lookup(f), "missing flag --%s", f)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.0.0")
	var buf bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)
	assert.Equal(t, "stackctl version 1.0.0\n", buf.String())
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{Use: "test", Version: "1.0.0"}
	testCmd.SetVersionTemplate(`{{printf "stackctl version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	require.NoError(t, testCmd.Execute())
	assert.Equal(t, "stackctl version 1.0.0\n", buf.String())
}

func TestStartMissingEnvFileExitCode(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	envPath := filepath.Join(dir, "absent.env")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logDir: "+filepath.Join(dir, "logs")+"\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"start", "--config", cfgPath, "--env-file", envPath, "--no-tunnel"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		envFile = ""
		configPath = ""
	})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), envPath)
	assert.Equal(t, failure.ExitConfig, failure.ExitCode(err))
}
