package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/qbridge/am"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage qbridge configuration",
	Long: `am - Manage qbridge configuration

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/qbridge/config.toml)
3. User config (~/.qbridge/am.toml)
4. Project config (./am.toml, searched up from the working directory)
5. Environment variables (QBRIDGE_* prefix, e.g. QBRIDGE_QBWC_PASSWORD)

Examples:
  qbridge am show                        # Show current configuration
  qbridge am show --format json          # Show configuration as JSON
  qbridge am set qbwc.company_file 'C:\Books\main.qbw'
  qbridge am validate                    # Validate current configuration
  qbridge am where                       # List configuration files`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration from all sources. The Web Connector password is masked.",
	RunE:  runAmShow,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the user config file",
	Long: `Set a configuration value using dot notation (e.g. qbwc.username, server.port).
The previous file is kept as a rotating backup. A running server watching
the file picks the change up without a restart where it can.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var (
	configFormat string
	configFile   string
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amSetCmd.Flags().StringVar(&configFile, "file", "", "Config file to modify (default ~/.qbridge/am.toml)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := formatConfig(cfg.Redacted(), configFormat)
	if err != nil {
		return err
	}
	cmd.OutOrStdout().Write(data)
	return nil
}

// formatConfig renders cfg as toml, json or yaml
func formatConfig(cfg am.Config, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		return append(data, '\n'), nil

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		return append([]byte("# qbridge configuration\n"), data...), nil

	case "toml":
		var buf bytes.Buffer
		buf.WriteString("# qbridge configuration\n")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = am.UserConfigPath()
	}

	key, value := args[0], parseValue(args[1])
	if err := am.SetValue(path, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	// The result must still load and validate
	cfg, err := am.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("config written but no longer loads: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		pterm.Warning.Printfln("%s written, but the configuration is now invalid: %v", path, err)
		return nil
	}

	pterm.Success.Printfln("%s = %v (%s)", key, args[1], path)
	return nil
}

// parseValue turns CLI text into the TOML type it most likely means
func parseValue(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  [DEFAULT]  Built-in defaults")
	for _, path := range am.ConfigPaths() {
		status := pterm.Gray("missing")
		if _, err := os.Stat(path); err == nil {
			status = pterm.LightGreen("found")
		}
		fmt.Fprintf(out, "  [FILE]     %s (%s)\n", path, status)
	}
	fmt.Fprintln(out, "  [ENV]      QBRIDGE_* environment variables")

	if active := am.ActiveConfigPath(); active != "" {
		fmt.Fprintf(out, "\nActive file (watched by the server): %s\n", active)
	}
	return nil
}
