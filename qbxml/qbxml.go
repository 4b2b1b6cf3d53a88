// Package qbxml builds QuickBooks qbXML request documents from job payloads
// and reads the status and identifiers out of QuickBooks responses.
//
// Builders are pure: the same payload and Options always produce the same
// document. Element order inside each request follows the qbXML schema,
// which QuickBooks enforces.
package qbxml

import (
	"encoding/json"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"

	"github.com/teranos/qbridge/errors"
)

// DefaultVersion is the qbXML version written into the request prolog.
const DefaultVersion = "13.0"

var versionPattern = regexp.MustCompile(`^\d+\.\d+$`)

// Options control document-level settings shared by every builder.
type Options struct {
	// Version is the qbXML version for the <?qbxml?> instruction. Empty means DefaultVersion.
	Version string
}

func (o Options) version() string {
	if o.Version == "" {
		return DefaultVersion
	}
	return o.Version
}

// ValidVersion reports whether v looks like a qbXML version ("13.0").
func ValidVersion(v string) bool {
	return versionPattern.MatchString(v)
}

// Builder turns a job payload into a complete qbXML request document.
type Builder func(payload json.RawMessage, opts Options) (string, error)

type qbxmlDoc struct {
	XMLName xml.Name `xml:"QBXML"`
	Msgs    msgsRq   `xml:"QBXMLMsgsRq"`
}

type msgsRq struct {
	OnError string `xml:"onError,attr"`
	Request any
}

// wrap places one request inside QBXML/QBXMLMsgsRq and prepends the prolog.
func wrap(request any, opts Options) (string, error) {
	doc := qbxmlDoc{Msgs: msgsRq{OnError: "stopOnError", Request: request}}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to encode qbXML")
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	sb.WriteString(`<?qbxml version="` + opts.version() + `"?>` + "\n")
	sb.Write(body)
	return sb.String(), nil
}

// invalid builds a payload validation error. The message is surfaced to
// callers verbatim, so it carries no prefix.
func invalid(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), errors.ErrInvalidRequest)
}

func decodePayload(payload json.RawMessage, into any) error {
	if len(strings.TrimSpace(string(payload))) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, into); err != nil {
		err = errors.Mark(errors.Wrap(err, "invalid payload"), errors.ErrInvalidRequest)
		return errors.WithHint(err, "payload must be a JSON object matching the job type")
	}
	return nil
}

// normalizeLookupText makes user-typed names comparable with QuickBooks
// list names: NBSP becomes a space, zero-width characters go, whitespace
// runs collapse and the ends are trimmed.
func normalizeLookupText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// money formats an amount the way QuickBooks expects: two decimals.
func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// quantity keeps the caller's precision.
func quantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Text accepts a JSON string or number and keeps it as text, so ids and
// reference numbers survive either encoding.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Newf("expected string or number, got %s", string(b))
	}
	*t = Text(n.String())
	return nil
}

// ref is a qbXML list reference (CustomerRef, ItemRef, AccountRef ...).
// ListID wins when both are set.
type ref struct {
	ListID   string `xml:"ListID,omitempty"`
	FullName string `xml:"FullName,omitempty"`
}

// RefInput is the JSON form of a list reference.
type RefInput struct {
	ListID   Text `json:"listId"`
	FullName Text `json:"fullName"`
}

func (r *RefInput) empty() bool {
	return r == nil || (r.ListID == "" && r.FullName == "")
}

func (r *RefInput) toRef() *ref {
	if r.ListID != "" {
		return &ref{ListID: string(r.ListID)}
	}
	return &ref{FullName: string(r.FullName)}
}

// NameFilter narrows a list query by name.
type NameFilter struct {
	MatchCriterion string `json:"matchCriterion"`
	Name           string `json:"name"`
}

type nameFilterRq struct {
	MatchCriterion string `xml:"MatchCriterion"`
	Name           string `xml:"Name"`
}

var matchCriteria = map[string]bool{"StartsWith": true, "Contains": true, "EndsWith": true}

func (f *NameFilter) build(normalize bool) (*nameFilterRq, error) {
	if f == nil {
		return nil, nil
	}
	name := f.Name
	if normalize {
		name = normalizeLookupText(name)
	}
	if name == "" {
		return nil, nil
	}
	criterion := f.MatchCriterion
	if criterion == "" {
		criterion = "StartsWith"
	}
	if !matchCriteria[criterion] {
		return nil, invalid("Invalid matchCriterion: %s. Use: StartsWith, Contains, or EndsWith", criterion)
	}
	return &nameFilterRq{MatchCriterion: criterion, Name: name}, nil
}
