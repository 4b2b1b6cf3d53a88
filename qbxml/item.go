package qbxml

import (
	"encoding/json"
	"encoding/xml"
)

// ItemQueryPayload is the JSON payload of an ItemQuery job.
type ItemQueryPayload struct {
	MaxReturned int         `json:"maxReturned"`
	Name        string      `json:"name"`
	NameFilter  *NameFilter `json:"nameFilter"`
}

type itemQueryRq struct {
	XMLName           xml.Name      `xml:"ItemQueryRq"`
	RequestID         string        `xml:"requestID,attr"`
	ListID            string        `xml:"ListID,omitempty"`
	FullName          string        `xml:"FullName,omitempty"`
	MaxReturned       *int          `xml:"MaxReturned,omitempty"`
	ActiveStatus      string        `xml:"ActiveStatus,omitempty"`
	NameFilter        *nameFilterRq `xml:"NameFilter,omitempty"`
	IncludeRetElement []string      `xml:"IncludeRetElement,omitempty"`
}

var itemRetElements = []string{"ListID", "Name", "FullName", "Type", "IsActive", "SalesPrice", "SalesDesc"}

// ItemQuery looks items up by exact full name or lists them, inactive
// items included. Names are normalized before they reach QuickBooks.
func ItemQuery(payload json.RawMessage, opts Options) (string, error) {
	var p ItemQueryPayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}

	rq := itemQueryRq{
		RequestID:         "item-query-1",
		ActiveStatus:      "All",
		IncludeRetElement: itemRetElements,
	}

	if name := normalizeLookupText(p.Name); name != "" {
		rq.FullName = name
	} else {
		max := p.MaxReturned
		if max <= 0 {
			max = 100
		}
		rq.MaxReturned = &max
	}

	filter, err := p.NameFilter.build(true)
	if err != nil {
		return "", err
	}
	rq.NameFilter = filter

	return wrap(rq, opts)
}

// ItemGroupProductsQueryPayload is the JSON payload of an ItemGroupProductsQuery job.
type ItemGroupProductsQueryPayload struct {
	ItemID Text `json:"itemId"`
}

// ItemGroupProductsQuery fetches one item by ListID with every return
// element, so group items come back with their ItemGroupLineRet children.
func ItemGroupProductsQuery(payload json.RawMessage, opts Options) (string, error) {
	var p ItemGroupProductsQueryPayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}
	if p.ItemID == "" {
		return "", invalid("itemId is required")
	}

	return wrap(itemQueryRq{
		RequestID: "item-group-products-query-1",
		ListID:    string(p.ItemID),
	}, opts)
}

// Item types accepted by ItemAdd.
const (
	ItemTypeService      = "Service"
	ItemTypeNonInventory = "NonInventory"
	ItemTypeInventory    = "Inventory"
)

// ValidItemType reports whether t is an item type ItemAdd can create.
func ValidItemType(t string) bool {
	return t == ItemTypeService || t == ItemTypeNonInventory || t == ItemTypeInventory
}

// ItemAddPayload is the JSON payload of an ItemAdd job.
type ItemAddPayload struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Account     string   `json:"account"`
}

type itemAddRq struct {
	XMLName   xml.Name
	RequestID string `xml:"requestID,attr"`
	Add       itemAdd
}

type itemAdd struct {
	XMLName          xml.Name
	Name             string           `xml:"Name"`
	SalesOrPurchase  *salesOrPurchase `xml:"SalesOrPurchase,omitempty"`
	SalesDesc        string           `xml:"SalesDesc,omitempty"`
	SalesPrice       string           `xml:"SalesPrice,omitempty"`
	IncomeAccountRef *ref             `xml:"IncomeAccountRef,omitempty"`
}

type salesOrPurchase struct {
	Desc       string `xml:"Desc,omitempty"`
	Price      string `xml:"Price,omitempty"`
	AccountRef *ref   `xml:"AccountRef,omitempty"`
}

// ItemAdd creates a Service (default), NonInventory or Inventory item.
// Inventory items carry sales fields directly; the other two nest them
// under SalesOrPurchase.
func ItemAdd(payload json.RawMessage, opts Options) (string, error) {
	var p ItemAddPayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}
	if p.Name == "" {
		return "", invalid("Item name is required")
	}
	if p.Type == "" {
		p.Type = ItemTypeService
	}
	if !ValidItemType(p.Type) {
		return "", invalid("Invalid type: %s. Use: Service, NonInventory, or Inventory", p.Type)
	}

	add := itemAdd{
		XMLName: xml.Name{Local: "Item" + p.Type + "Add"},
		Name:    p.Name,
	}

	if p.Type == ItemTypeInventory {
		add.SalesDesc = p.Description
		if p.Price != nil {
			add.SalesPrice = money(*p.Price)
		}
		if p.Account != "" {
			add.IncomeAccountRef = &ref{FullName: p.Account}
		}
	} else if p.Description != "" || p.Price != nil || p.Account != "" {
		sop := &salesOrPurchase{Desc: p.Description}
		if p.Price != nil {
			sop.Price = money(*p.Price)
		}
		if p.Account != "" {
			sop.AccountRef = &ref{FullName: p.Account}
		}
		add.SalesOrPurchase = sop
	}

	return wrap(itemAddRq{
		XMLName:   xml.Name{Local: "Item" + p.Type + "AddRq"},
		RequestID: "item-1",
		Add:       add,
	}, opts)
}
