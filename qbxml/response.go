package qbxml

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/teranos/qbridge/errors"
)

// SeverityError is the statusSeverity QuickBooks uses for a failed request.
const SeverityError = "Error"

// Status is the outcome QuickBooks reports on one *Rs element.
type Status struct {
	Element   string
	RequestID string
	Code      string
	Severity  string
	Message   string
}

// Response is what qbridge reads from a QuickBooks response document.
type Response struct {
	Statuses []Status
	// First identifiers found anywhere in the document
	ListID    string
	TxnID     string
	RefNumber string
}

// FirstError returns the first status with error severity, or nil.
func (r *Response) FirstError() *Status {
	for i := range r.Statuses {
		if strings.EqualFold(r.Statuses[i].Severity, SeverityError) {
			return &r.Statuses[i]
		}
	}
	return nil
}

// ParseResponse scans a qbXML response. It fails only when the document is
// not well-formed XML.
func ParseResponse(body string) (*Response, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("empty qbXML response")
	}

	d := xml.NewDecoder(strings.NewReader(body))
	// QuickBooks declares windows-1252 on some installs; the bytes we care
	// about are ASCII either way
	d.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }

	resp := &Response{}
	var capture *string
	var text strings.Builder

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "malformed qbXML response")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if status, ok := statusOf(t); ok {
				resp.Statuses = append(resp.Statuses, status)
			}
			capture = resp.target(t.Name.Local)
			text.Reset()
		case xml.CharData:
			if capture != nil {
				text.Write(t)
			}
		case xml.EndElement:
			if capture != nil {
				*capture = strings.TrimSpace(text.String())
				capture = nil
			}
		}
	}

	return resp, nil
}

// target returns the identifier slot for element name if it is still empty.
func (r *Response) target(name string) *string {
	var slot *string
	switch name {
	case "ListID":
		slot = &r.ListID
	case "TxnID":
		slot = &r.TxnID
	case "RefNumber":
		slot = &r.RefNumber
	default:
		return nil
	}
	if *slot != "" {
		return nil
	}
	return slot
}

func statusOf(el xml.StartElement) (Status, bool) {
	s := Status{Element: el.Name.Local}
	found := false
	for _, attr := range el.Attr {
		switch attr.Name.Local {
		case "requestID":
			s.RequestID = attr.Value
		case "statusCode":
			s.Code = attr.Value
			found = true
		case "statusSeverity":
			s.Severity = attr.Value
			found = true
		case "statusMessage":
			s.Message = attr.Value
		}
	}
	return s, found
}
