package am

import (
	"github.com/spf13/viper"

	"github.com/teranos/qbridge/version"
)

// Server port constants
const (
	DefaultServerPort = 8080
)

// DefaultAllowedOrigins are the CORS origins accepted when none are configured
var DefaultAllowedOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", DefaultAllowedOrigins)
	v.SetDefault("server.enqueue_rate_per_minute", 120)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")

	// Web Connector
	v.SetDefault("qbwc.username", "qbwc_user")
	v.SetDefault("qbwc.password", "password")
	v.SetDefault("qbwc.company_file", "")
	v.SetDefault("qbwc.server_version", version.Get().ServerVersion())
	v.SetDefault("qbwc.qbxml_version", "13.0")
	v.SetDefault("qbwc.min_client_version", "")
	v.SetDefault("qbwc.app_name", "QB Data Sync")
	v.SetDefault("qbwc.app_description", "Sync data between your application and QuickBooks Desktop")
	v.SetDefault("qbwc.app_support", "http://localhost:8080/support")
	v.SetDefault("qbwc.server_url", "http://localhost:8080")
	v.SetDefault("qbwc.run_every_minutes", 30)
	v.SetDefault("qbwc.requery_on_duplicate", true)

	// Database: empty keeps the queue in memory
	v.SetDefault("database.path", "")

	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("qbwc.password", "QBRIDGE_QBWC_PASSWORD")
	v.BindEnv("qbwc.username", "QBRIDGE_QBWC_USERNAME")
	v.BindEnv("database.path", "QBRIDGE_DATABASE_PATH")
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return DefaultAllowedOrigins
	}
	return c.Server.AllowedOrigins
}

// GetServerPort returns the configured port, or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}
