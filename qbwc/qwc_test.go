package qbwc

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQWCEncode(t *testing.T) {
	q := NewQWC(QWCOptions{
		AppName:         "QB Data Sync",
		AppDescription:  "Sync orders & invoices",
		AppSupport:      "https://qb.example.com/support",
		ServerURL:       "https://qb.example.com/",
		Username:        "qbwc_user",
		RunEveryMinutes: 30,
	})

	out, err := q.Encode()
	require.NoError(t, err)
	doc := string(out)

	assert.True(t, strings.HasPrefix(doc, "<?xml version=\"1.0\"?>\n<QBWCXML>"))
	assert.Contains(t, doc, "<AppName>QB Data Sync</AppName>")
	assert.Contains(t, doc, "<AppID></AppID>")
	assert.Contains(t, doc, "<AppURL>https://qb.example.com/wsdl</AppURL>")
	assert.Contains(t, doc, "<AppDescription>Sync orders &amp; invoices</AppDescription>")
	assert.Contains(t, doc, "<UserName>qbwc_user</UserName>")
	assert.Contains(t, doc, "<QBType>QBFS</QBType>")
	assert.Contains(t, doc, "<RunEveryNMinutes>30</RunEveryNMinutes>")
	assert.Contains(t, doc, "<IsReadOnly>false</IsReadOnly>")

	var decoded QWC
	require.NoError(t, xml.Unmarshal(out, &decoded))
	assert.Regexp(t, `^\{[0-9a-f-]{36}\}$`, decoded.OwnerID)
	assert.Regexp(t, `^\{[0-9a-f-]{36}\}$`, decoded.FileID)
	assert.NotEqual(t, decoded.OwnerID, decoded.FileID)
}

func TestQWCWithoutScheduler(t *testing.T) {
	out, err := NewQWC(QWCOptions{ServerURL: "http://localhost:8080"}).Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Scheduler")
	assert.Contains(t, string(out), "<AppURL>http://localhost:8080/wsdl</AppURL>")
}

func TestQWCFreshIdentifiers(t *testing.T) {
	a := NewQWC(QWCOptions{})
	b := NewQWC(QWCOptions{})
	assert.NotEqual(t, a.OwnerID, b.OwnerID)
}
