package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"market", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "market-stats", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestMarketCommand_Flags(t *testing.T) {
	defaults := map[string]string{
		"lat":         "0",
		"lon":         "0",
		"radius":      "10",
		"year":        "2023",
		"geography":   "zip",
		"format":      "json",
		"cache-stats": "false",
	}
	for name, def := range defaults {
		flag := marketCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "market command should have --%s flag", name)
		assert.Equal(t, def, flag.DefValue, name)
	}

	for _, name := range []string{"lat", "lon"} {
		ann := marketCmd.Flags().Lookup(name).Annotations
		assert.Contains(t, ann, cobra.BashCompOneRequiredFlag, name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRootPreRun_WrapsConfigError(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("census: [unclosed"), 0644))

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
	assert.Contains(t, err.Error(), "config: read file")
}

func TestRootPreRun_WrapsLoggerError(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MARKET_LOG_LEVEL", "chatty")

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
	assert.Contains(t, err.Error(), "config: parse log level")
}
