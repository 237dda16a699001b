// Package cli implements the ddi-assistant command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. Each call returns a fresh tree so
// flag state never leaks between invocations.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ddi-assistant",
		Short: "Query and manage an InfoBlox DDI appliance",
		Long: `ddi-assistant - InfoBlox WAPI tooling for operators and MCP clients

The MCP server discovers the appliance's object schemas, generates one tool
per object type and operation, and dispatches validated tool calls to WAPI.
The same catalog is available from the command line.

Quick Start:
  ddi-assistant serve                      Start the MCP server on stdio
  ddi-assistant query network 10.0.0.0/24  Network report
  ddi-assistant tools                      List generated tools
  ddi-assistant call <tool> --dry-run      Preview a tool call`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to a YAML settings file")
	pf.String("log-level", "", "log level (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	pf.String("cache-dir", "", "schema and tool cache directory")
	pf.BoolP("verbose", "v", false, "shorthand for --log-level DEBUG")

	root.AddCommand(
		newServeCmd(),
		newQueryCmd(),
		newDiscoverCmd(),
		newToolsCmd(),
		newCallCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
