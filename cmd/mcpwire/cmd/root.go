// Package cmd provides the CLI commands for mcpwire.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpwire/mcpwire/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcpwire",
	Short: "mcpwire - Model Context Protocol runtime",
	Long: `mcpwire is an MCP runtime library with a demo server.

The library implements the JSON-RPC message model, stdio and HTTP/SSE
transports, the peer engine with handshake and cancellation, and the
tool/resource/prompt registries. The demo server exposes a small tool set
over either transport.

Quick start:
  1. Optionally create a config file: mcpwire.yaml
  2. Run: mcpwire serve

Configuration:
  Config is loaded from mcpwire.yaml in the current directory,
  $HOME/.mcpwire/, or /etc/mcpwire/.

  Environment variables can override config values with the MCPWIRE_ prefix.
  Example: MCPWIRE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Run the demo MCP server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpwire.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
