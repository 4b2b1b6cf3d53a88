package commands

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/qbridge/am"
)

func defaultConfig(t *testing.T) *am.Config {
	t.Helper()
	v := viper.New()
	am.SetDefaults(v)
	cfg, err := am.LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestFormatConfigRedactsPassword(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.QBWC.Password = "hunter2"

	for _, format := range []string{"toml", "json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			out, err := formatConfig(cfg.Redacted(), format)
			require.NoError(t, err)
			assert.NotContains(t, string(out), "hunter2")
			assert.Contains(t, string(out), "********")
			assert.Contains(t, string(out), "qbwc_user")
		})
	}
}

func TestFormatConfigRoundTrips(t *testing.T) {
	cfg := defaultConfig(t)

	out, err := formatConfig(*cfg, "toml")
	require.NoError(t, err)
	var fromTOML am.Config
	_, err = toml.Decode(string(out), &fromTOML)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.Port, fromTOML.Server.Port)
	assert.Equal(t, cfg.QBWC.QBXMLVersion, fromTOML.QBWC.QBXMLVersion)

	out, err = formatConfig(*cfg, "json")
	require.NoError(t, err)
	var fromJSON am.Config
	require.NoError(t, json.Unmarshal(out, &fromJSON))
	assert.Equal(t, cfg.QBWC.AppName, fromJSON.QBWC.AppName)

	out, err = formatConfig(*cfg, "yaml")
	require.NoError(t, err)
	var fromYAML am.Config
	require.NoError(t, yaml.Unmarshal(out, &fromYAML))
	assert.Equal(t, cfg.QBWC.RunEveryMinutes, fromYAML.QBWC.RunEveryMinutes)
}

func TestFormatConfigUnknownFormat(t *testing.T) {
	_, err := formatConfig(*defaultConfig(t), "ini")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, int64(9090), parseValue("9090"))
	assert.Equal(t, `C:\Books\main.qbw`, parseValue(`C:\Books\main.qbw`))
	assert.Equal(t, "13.0", parseValue("13.0"))
}

func TestQWCDocument(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.QBWC.ServerURL = "https://qb.example.com"

	doc, err := qwcDocument(cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(doc), "<?xml"))
	assert.Contains(t, string(doc), "<AppURL>https://qb.example.com/wsdl</AppURL>")
	assert.NotContains(t, string(doc), cfg.QBWC.Password)
}
