// Package am loads qbridge configuration from TOML files and QBRIDGE_*
// environment variables, and watches the active file for changes.
package am

import "fmt"

// Config represents the qbridge configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server" toml:"server" yaml:"server" json:"server"`
	QBWC     QBWCConfig     `mapstructure:"qbwc" toml:"qbwc" yaml:"qbwc" json:"qbwc"`
	Database DatabaseConfig `mapstructure:"database" toml:"database" yaml:"database" json:"database"`
	Log      LogConfig      `mapstructure:"log" toml:"log" yaml:"log" json:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port                 int       `mapstructure:"port" toml:"port" yaml:"port" json:"port"`
	AllowedOrigins       []string  `mapstructure:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
	EnqueueRatePerMinute int       `mapstructure:"enqueue_rate_per_minute" toml:"enqueue_rate_per_minute" yaml:"enqueue_rate_per_minute" json:"enqueue_rate_per_minute"` // 0 = unlimited
	TLS                  TLSConfig `mapstructure:"tls" toml:"tls" yaml:"tls" json:"tls"`
}

// TLSConfig enables HTTPS. The Web Connector refuses plain HTTP for any
// host other than localhost.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" toml:"enabled" yaml:"enabled" json:"enabled"`
	CertFile string `mapstructure:"cert_file" toml:"cert_file" yaml:"cert_file" json:"cert_file"`
	KeyFile  string `mapstructure:"key_file" toml:"key_file" yaml:"key_file" json:"key_file"`
}

// QBWCConfig configures the Web Connector endpoint and the QWC descriptor
type QBWCConfig struct {
	Username           string `mapstructure:"username" toml:"username" yaml:"username" json:"username"`
	Password           string `mapstructure:"password" toml:"password" yaml:"password" json:"password"`
	CompanyFile        string `mapstructure:"company_file" toml:"company_file" yaml:"company_file" json:"company_file"` // "" = whichever file is open
	ServerVersion      string `mapstructure:"server_version" toml:"server_version" yaml:"server_version" json:"server_version"`
	QBXMLVersion       string `mapstructure:"qbxml_version" toml:"qbxml_version" yaml:"qbxml_version" json:"qbxml_version"`
	MinClientVersion   string `mapstructure:"min_client_version" toml:"min_client_version" yaml:"min_client_version" json:"min_client_version"`
	AppName            string `mapstructure:"app_name" toml:"app_name" yaml:"app_name" json:"app_name"`
	AppDescription     string `mapstructure:"app_description" toml:"app_description" yaml:"app_description" json:"app_description"`
	AppSupport         string `mapstructure:"app_support" toml:"app_support" yaml:"app_support" json:"app_support"`
	ServerURL          string `mapstructure:"server_url" toml:"server_url" yaml:"server_url" json:"server_url"`
	RunEveryMinutes    int    `mapstructure:"run_every_minutes" toml:"run_every_minutes" yaml:"run_every_minutes" json:"run_every_minutes"`
	RequeryOnDuplicate bool   `mapstructure:"requery_on_duplicate" toml:"requery_on_duplicate" yaml:"requery_on_duplicate" json:"requery_on_duplicate"`
}

// DatabaseConfig configures job persistence
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path" json:"path"` // "" = in-memory queue
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json" yaml:"json" json:"json"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// Redacted returns a copy safe for display.
func (c Config) Redacted() Config {
	if c.QBWC.Password != "" {
		c.QBWC.Password = "********"
	}
	c.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return c
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: {Port: %d}, QBWC: {Username: %s, CompanyFile: %q}, Database: %q}",
		c.Server.Port, c.QBWC.Username, c.QBWC.CompanyFile, c.Database.Path)
}
