package qbwc

import (
	"encoding/xml"
	"strings"

	"github.com/google/uuid"

	"github.com/teranos/qbridge/errors"
)

// QWCFileName is the download name of the connector descriptor
const QWCFileName = "quickbooks-connector.qwc"

// QWC is the descriptor a QuickBooks user imports into the Web Connector
// to register this service.
type QWC struct {
	XMLName        xml.Name   `xml:"QBWCXML"`
	AppName        string     `xml:"AppName"`
	AppID          string     `xml:"AppID"`
	AppURL         string     `xml:"AppURL"`
	AppDescription string     `xml:"AppDescription"`
	AppSupport     string     `xml:"AppSupport"`
	UserName       string     `xml:"UserName"`
	OwnerID        string     `xml:"OwnerID"`
	FileID         string     `xml:"FileID"`
	QBType         string     `xml:"QBType"`
	Scheduler      *Scheduler `xml:"Scheduler,omitempty"`
	IsReadOnly     bool       `xml:"IsReadOnly"`
}

// Scheduler asks the connector to run unattended every N minutes
type Scheduler struct {
	RunEveryNMinutes int `xml:"RunEveryNMinutes"`
}

// QWCOptions are the deployment settings that end up in the descriptor
type QWCOptions struct {
	AppName         string
	AppDescription  string
	AppSupport      string
	ServerURL       string
	Username        string
	RunEveryMinutes int
}

// NewQWC builds a descriptor pointing at the SOAP endpoint under
// ServerURL. OwnerID and FileID are fresh GUIDs on every call.
func NewQWC(opts QWCOptions) QWC {
	q := QWC{
		AppName:        opts.AppName,
		AppURL:         strings.TrimRight(opts.ServerURL, "/") + "/wsdl",
		AppDescription: opts.AppDescription,
		AppSupport:     opts.AppSupport,
		UserName:       opts.Username,
		OwnerID:        "{" + uuid.NewString() + "}",
		FileID:         "{" + uuid.NewString() + "}",
		QBType:         "QBFS",
	}
	if opts.RunEveryMinutes > 0 {
		q.Scheduler = &Scheduler{RunEveryNMinutes: opts.RunEveryMinutes}
	}
	return q
}

// Encode renders the descriptor as the connector expects it
func (q QWC) Encode() ([]byte, error) {
	body, err := xml.MarshalIndent(q, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode QWC")
	}
	return append([]byte("<?xml version=\"1.0\"?>\n"), body...), nil
}
