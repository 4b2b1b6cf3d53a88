package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/qbridge/cmd/qbridge/commands"
	"github.com/teranos/qbridge/logger"
)

var rootCmd = &cobra.Command{
	Use:   "qbridge",
	Short: "qbridge - QuickBooks Web Connector bridge",
	Long: `qbridge - queue QuickBooks Desktop work over HTTP and hand it to the Web Connector.

Applications enqueue jobs (customers, items, invoices) through the REST API.
QuickBooks Web Connector polls the SOAP endpoint, pulls one qbXML request at
a time and reports each result back.

Available commands:
  server  - Start the SOAP endpoint and REST API
  am      - Show and change configuration
  qwc     - Write the Web Connector descriptor (.qwc)
  version - Show build information

Examples:
  qbridge server -v              # Start with info logging
  qbridge am show                # Show effective configuration
  qbridge qwc --out app.qwc      # Write the QWC file for Web Connector`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.QWCCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
