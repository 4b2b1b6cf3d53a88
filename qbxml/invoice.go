package qbxml

import (
	"encoding/json"
	"encoding/xml"
)

// InvoiceQueryPayload is the JSON payload of an InvoiceQuery job.
type InvoiceQueryPayload struct {
	MaxReturned  int    `json:"maxReturned"`
	CustomerName string `json:"customerName"`
	TxnDateStart string `json:"txnDateStart"`
	TxnDateEnd   string `json:"txnDateEnd"`
}

type invoiceQueryRq struct {
	XMLName            xml.Name            `xml:"InvoiceQueryRq"`
	RequestID          string              `xml:"requestID,attr"`
	MaxReturned        int                 `xml:"MaxReturned"`
	TxnDateRangeFilter *txnDateRangeFilter `xml:"TxnDateRangeFilter,omitempty"`
	EntityFilter       *entityFilter       `xml:"EntityFilter,omitempty"`
	IncludeRetElement  []string            `xml:"IncludeRetElement"`
}

type txnDateRangeFilter struct {
	FromTxnDate string `xml:"FromTxnDate,omitempty"`
	ToTxnDate   string `xml:"ToTxnDate,omitempty"`
}

type entityFilter struct {
	FullName string `xml:"FullName"`
}

var invoiceRetElements = []string{
	"TxnID", "TimeCreated", "TimeModified", "DocNumber", "TxnDate",
	"CustomerRef", "RefNumber", "BillAddress", "ShipAddress", "ClassRef",
	"TermsRef", "DueDate", "Memo", "IsPending", "IsFinanceCharge",
	"PONumber", "Subtotal", "TaxPercent", "Tax", "Total",
	"InvoiceLineRet", "DepositToAccountRef",
}

// InvoiceQuery lists up to maxReturned (default 20) invoices, optionally
// limited to one customer and a transaction date range (YYYY-MM-DD).
func InvoiceQuery(payload json.RawMessage, opts Options) (string, error) {
	var p InvoiceQueryPayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}

	rq := invoiceQueryRq{
		RequestID:         "invoice-query-1",
		MaxReturned:       p.MaxReturned,
		IncludeRetElement: invoiceRetElements,
	}
	if rq.MaxReturned <= 0 {
		rq.MaxReturned = 20
	}
	if p.TxnDateStart != "" || p.TxnDateEnd != "" {
		rq.TxnDateRangeFilter = &txnDateRangeFilter{FromTxnDate: p.TxnDateStart, ToTxnDate: p.TxnDateEnd}
	}
	if p.CustomerName != "" {
		rq.EntityFilter = &entityFilter{FullName: p.CustomerName}
	}

	return wrap(rq, opts)
}

// Address is the JSON form of a bill-to or ship-to address.
type Address struct {
	Address1   string `json:"address1"`
	Address2   string `json:"address2"`
	Address3   string `json:"address3"`
	Address4   string `json:"address4"`
	Address5   string `json:"address5"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode Text   `json:"postalCode"`
	Country    string `json:"country"`
	Note       string `json:"note"`
}

type address struct {
	Addr1      string `xml:"Addr1,omitempty"`
	Addr2      string `xml:"Addr2,omitempty"`
	Addr3      string `xml:"Addr3,omitempty"`
	Addr4      string `xml:"Addr4,omitempty"`
	Addr5      string `xml:"Addr5,omitempty"`
	City       string `xml:"City,omitempty"`
	State      string `xml:"State,omitempty"`
	PostalCode string `xml:"PostalCode,omitempty"`
	Country    string `xml:"Country,omitempty"`
	Note       string `xml:"Note,omitempty"`
}

func (a *Address) build() *address {
	if a == nil {
		return nil
	}
	return &address{
		Addr1:      a.Address1,
		Addr2:      a.Address2,
		Addr3:      a.Address3,
		Addr4:      a.Address4,
		Addr5:      a.Address5,
		City:       a.City,
		State:      a.State,
		PostalCode: string(a.PostalCode),
		Country:    a.Country,
		Note:       a.Note,
	}
}

// LineItem is one invoice line. Amount wins over Rate when both are set.
type LineItem struct {
	Item        *RefInput `json:"item"`
	Description string    `json:"description"`
	Quantity    *float64  `json:"quantity"`
	Rate        *float64  `json:"rate"`
	Amount      *float64  `json:"amount"`
}

// InvoiceAddPayload is the JSON payload of an InvoiceAdd job.
type InvoiceAddPayload struct {
	Customer  *RefInput  `json:"customer"`
	TxnDate   string     `json:"txnDate"`
	RefNumber Text       `json:"refNumber"`
	Memo      string     `json:"memo"`
	LineItems []LineItem `json:"lineItems"`
	BillTo    *Address   `json:"billTo"`
	ShipTo    *Address   `json:"shipTo"`
}

type invoiceAddRq struct {
	XMLName   xml.Name   `xml:"InvoiceAddRq"`
	RequestID string     `xml:"requestID,attr"`
	Add       invoiceAdd `xml:"InvoiceAdd"`
}

type invoiceAdd struct {
	CustomerRef *ref          `xml:"CustomerRef"`
	TxnDate     string        `xml:"TxnDate,omitempty"`
	RefNumber   string        `xml:"RefNumber,omitempty"`
	BillAddress *address      `xml:"BillAddress,omitempty"`
	ShipAddress *address      `xml:"ShipAddress,omitempty"`
	Memo        string        `xml:"Memo,omitempty"`
	Lines       []invoiceLine `xml:"InvoiceLineAdd"`
}

type invoiceLine struct {
	ItemRef  *ref   `xml:"ItemRef"`
	Desc     string `xml:"Desc,omitempty"`
	Quantity string `xml:"Quantity"`
	Rate     string `xml:"Rate,omitempty"`
	Amount   string `xml:"Amount,omitempty"`
}

// ValidateInvoiceAdd checks an InvoiceAdd payload without building it.
func ValidateInvoiceAdd(p *InvoiceAddPayload) error {
	if p.Customer.empty() {
		return invalid("Customer reference (listId or fullName) is required")
	}
	if len(p.LineItems) == 0 {
		return invalid("At least one line item is required")
	}
	for i, line := range p.LineItems {
		n := i + 1
		if line.Item.empty() {
			return invalid("Line item %d: item reference (listId or fullName) is required", n)
		}
		if line.Quantity == nil {
			return invalid("Line item %d: quantity is required", n)
		}
		if line.Amount == nil && line.Rate == nil {
			return invalid("Line item %d: rate or amount is required", n)
		}
	}
	return nil
}

// InvoiceAdd creates an invoice for a customer referenced by ListID or
// full name, with at least one line.
func InvoiceAdd(payload json.RawMessage, opts Options) (string, error) {
	var p InvoiceAddPayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}
	if err := ValidateInvoiceAdd(&p); err != nil {
		return "", err
	}

	add := invoiceAdd{
		CustomerRef: p.Customer.toRef(),
		TxnDate:     p.TxnDate,
		RefNumber:   string(p.RefNumber),
		BillAddress: p.BillTo.build(),
		ShipAddress: p.ShipTo.build(),
		Memo:        p.Memo,
	}

	for _, line := range p.LineItems {
		l := invoiceLine{
			ItemRef:  line.Item.toRef(),
			Desc:     line.Description,
			Quantity: quantity(*line.Quantity),
		}
		if line.Amount != nil {
			l.Amount = money(*line.Amount)
		} else {
			l.Rate = money(*line.Rate)
		}
		add.Lines = append(add.Lines, l)
	}

	return wrap(invoiceAddRq{RequestID: "invoice-1", Add: add}, opts)
}
