package qbxml

import (
	"encoding/json"
	"encoding/xml"
)

// CustomerQueryPayload is the JSON payload of a CustomerQuery job.
type CustomerQueryPayload struct {
	MaxReturned int         `json:"maxReturned"`
	Name        string      `json:"name"`
	NameFilter  *NameFilter `json:"nameFilter"`
}

type customerQueryRq struct {
	XMLName           xml.Name      `xml:"CustomerQueryRq"`
	RequestID         string        `xml:"requestID,attr"`
	FullName          string        `xml:"FullName,omitempty"`
	MaxReturned       *int          `xml:"MaxReturned,omitempty"`
	NameFilter        *nameFilterRq `xml:"NameFilter,omitempty"`
	IncludeRetElement []string      `xml:"IncludeRetElement"`
}

var customerRetElements = []string{"ListID", "Name", "FullName", "CompanyName", "Email", "Phone"}

// CustomerQuery looks customers up by exact full name, or lists up to
// maxReturned (default 100) optionally narrowed by a name filter.
func CustomerQuery(payload json.RawMessage, opts Options) (string, error) {
	var p CustomerQueryPayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}

	rq := customerQueryRq{RequestID: "cust-query-1", IncludeRetElement: customerRetElements}

	// An exact FullName lookup must not carry MaxReturned
	if p.Name != "" {
		rq.FullName = p.Name
	} else {
		max := p.MaxReturned
		if max <= 0 {
			max = 100
		}
		rq.MaxReturned = &max
	}

	filter, err := p.NameFilter.build(false)
	if err != nil {
		return "", err
	}
	rq.NameFilter = filter

	return wrap(rq, opts)
}

// CustomerAddPayload is the JSON payload of a CustomerAdd job.
type CustomerAddPayload struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    Text   `json:"phone"`
}

type customerAddRq struct {
	XMLName   xml.Name    `xml:"CustomerAddRq"`
	RequestID string      `xml:"requestID,attr"`
	Add       customerAdd `xml:"CustomerAdd"`
}

type customerAdd struct {
	Name  string `xml:"Name"`
	Phone string `xml:"Phone,omitempty"`
	Email string `xml:"Email,omitempty"`
}

// CustomerAdd creates a customer. fullName is required.
func CustomerAdd(payload json.RawMessage, opts Options) (string, error) {
	var p CustomerAddPayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}
	if p.FullName == "" {
		return "", invalid("Customer fullName is required")
	}

	return wrap(customerAddRq{
		RequestID: "cust-1",
		Add: customerAdd{
			Name:  p.FullName,
			Phone: string(p.Phone),
			Email: p.Email,
		},
	}, opts)
}
