package commands

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/qbridge/am"
	"github.com/teranos/qbridge/errors"
	"github.com/teranos/qbridge/qbwc"
)

// QWCCmd writes the Web Connector application descriptor
var QWCCmd = &cobra.Command{
	Use:   "qwc",
	Short: "Write the Web Connector descriptor (.qwc)",
	Long: `Write the QWC file that registers qbridge with QuickBooks Web Connector.
Open it from Web Connector with "Add an application". The file uses
qbwc.server_url, qbwc.username and qbwc.run_every_minutes.`,
	RunE: runQWC,
}

var qwcOut string

func init() {
	QWCCmd.Flags().StringVarP(&qwcOut, "out", "o", "", "Write to this file instead of stdout (e.g. "+qbwc.QWCFileName+")")
}

func runQWC(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	doc, err := qwcDocument(cfg)
	if err != nil {
		return err
	}

	if qwcOut == "" {
		cmd.OutOrStdout().Write(doc)
		return nil
	}
	if err := os.WriteFile(qwcOut, doc, am.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", qwcOut)
	}
	pterm.Success.Printfln("Wrote %s", qwcOut)
	return nil
}

func qwcDocument(cfg *am.Config) ([]byte, error) {
	return qbwc.NewQWC(qbwc.QWCOptions{
		AppName:         cfg.QBWC.AppName,
		AppDescription:  cfg.QBWC.AppDescription,
		AppSupport:      cfg.QBWC.AppSupport,
		ServerURL:       cfg.QBWC.ServerURL,
		Username:        cfg.QBWC.Username,
		RunEveryMinutes: cfg.QBWC.RunEveryMinutes,
	}).Encode()
}
