package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/qbridge/am"
	"github.com/teranos/qbridge/errors"
	"github.com/teranos/qbridge/logger"
	"github.com/teranos/qbridge/server"
)

// ServerCmd starts the Web Connector endpoint and the REST API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the Web Connector SOAP endpoint and REST API",
	Long: `Start qbridge. QuickBooks Web Connector talks SOAP to /wsdl; applications
enqueue jobs through /api/* and follow them on /ws.

The active config file is watched: credentials, company file, qbXML version
and allowed origins change without a restart.`,
	RunE: runServer,
}

var (
	serverPort    int
	serverDBPath  string
	serverNoWatch bool
)

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides server.port)")
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "SQLite job database (overrides database.path)")
	ServerCmd.Flags().BoolVar(&serverNoWatch, "no-watch", false, "Do not reload the config file on change")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Info logging by default for the server
	verbosity, _ := cmd.Flags().GetCount("verbose")
	jsonLogs, _ := cmd.Flags().GetBool("json-logs")
	if verbosity == 0 {
		verbosity = logger.VerbosityInfo
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if serverDBPath != "" {
		cfg.Database.Path = serverDBPath
	}

	srv, err := server.New(cfg, logger.ComponentLogger("server"))
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	if !logger.JSONOutput {
		printStartupBanner(cfg, verbosity)
	}

	if path := am.ActiveConfigPath(); path != "" && !serverNoWatch {
		if err := srv.WatchConfig(path); err != nil {
			logger.Warnw("Config hot reload disabled", "path", path, logger.FieldError, err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		srv.Stop()
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown failed")
			}
			pterm.Success.Println("Server stopped")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Forced exit")
			os.Exit(1)
		}
	}
	return nil
}
