package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/qbridge/am"
	"github.com/teranos/qbridge/logger"
	"github.com/teranos/qbridge/version"
)

// printStartupBanner prints where the Web Connector and applications should point
func printStartupBanner(cfg *am.Config, verbosity int) {
	info := version.Get()

	pterm.DefaultHeader.WithFullWidth(false).Println("qbridge")

	database := cfg.Database.Path
	if database == "" {
		database = pterm.Yellow("in-memory (jobs are lost on restart)")
	}
	base := strings.TrimRight(cfg.QBWC.ServerURL, "/")
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", cfg.GetServerPort())
	}

	pterm.DefaultBox.WithTitle("Info").Println(strings.Join([]string{
		fmt.Sprintf("Version:   %s (commit %s)", info.Version, info.Short()),
		fmt.Sprintf("Verbosity: %s", logger.LevelName(verbosity)),
		fmt.Sprintf("Listen:    :%d", cfg.GetServerPort()),
		fmt.Sprintf("Database:  %s", database),
		fmt.Sprintf("Username:  %s", cfg.QBWC.Username),
		fmt.Sprintf("WSDL:      %s/wsdl?wsdl", base),
		fmt.Sprintf("QWC file:  %s/generate-qwc", base),
	}, "\n"))

	pterm.Info.Println("Press Ctrl+C to stop")
}
