package am

import (
	"net/url"

	"github.com/teranos/qbridge/errors"
	"github.com/teranos/qbridge/qbxml"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.EnqueueRatePerMinute < 0 {
		return errors.Newf("server.enqueue_rate_per_minute must be >= 0, got %d", c.Server.EnqueueRatePerMinute)
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return errors.New("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}

	if c.QBWC.Username == "" {
		return errors.New("qbwc.username cannot be empty")
	}
	if !qbxml.ValidVersion(c.QBWC.QBXMLVersion) {
		return errors.WithHint(
			errors.Newf("qbwc.qbxml_version must look like 13.0, got %q", c.QBWC.QBXMLVersion),
			"use the highest qbXML version your QuickBooks edition supports",
		)
	}
	if c.QBWC.RunEveryMinutes < 0 {
		return errors.Newf("qbwc.run_every_minutes must be >= 0, got %d", c.QBWC.RunEveryMinutes)
	}
	if c.QBWC.ServerURL != "" {
		u, err := url.Parse(c.QBWC.ServerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.Newf("qbwc.server_url must be an absolute URL, got %q", c.QBWC.ServerURL)
		}
	}

	return nil
}
