// Package jobs is the system of record for QuickBooks work items: an ordered
// queue of jobs that move pending → processing → done|error.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/qbridge/errors"
)

// Status represents the current state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusDone, StatusError:
		return true
	default:
		return false
	}
}

// Type names the QuickBooks operation a job performs.
// The set is closed per deployment; see KnownTypes.
type Type string

const (
	TypeCustomerAdd            Type = "CustomerAdd"
	TypeCustomerQuery          Type = "CustomerQuery"
	TypeItemAdd                Type = "ItemAdd"
	TypeItemQuery              Type = "ItemQuery"
	TypeItemGroupProductsQuery Type = "ItemGroupProductsQuery"
	TypeInvoiceAdd             Type = "InvoiceAdd"
	TypeInvoiceQuery           Type = "InvoiceQuery"
)

// KnownTypes lists every job type this build can turn into QBXML.
var KnownTypes = []Type{
	TypeCustomerAdd,
	TypeCustomerQuery,
	TypeItemAdd,
	TypeItemQuery,
	TypeItemGroupProductsQuery,
	TypeInvoiceAdd,
	TypeInvoiceQuery,
}

// Known reports whether t is one of KnownTypes.
func (t Type) Known() bool {
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Metadata is opaque correlation data for orchestration outside the queue
// (e.g. invoiceId, purpose, itemName). The queue never interprets it.
type Metadata map[string]any

// String returns the string value stored under key, or "".
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Result is stored on a job once QuickBooks reports success.
type Result struct {
	Raw       string `json:"raw"`
	ListID    string `json:"listId,omitempty"`
	TxnID     string `json:"txnId,omitempty"`
	RefNumber string `json:"refNumber,omitempty"`
}

// Job is one requested QuickBooks operation.
type Job struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      Status          `json:"status"`
	Result      *Result         `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Metadata    Metadata        `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// NewJob creates a pending job with a time-ordered id.
func NewJob(jobType Type, payload json.RawMessage, metadata Metadata, now time.Time) (*Job, error) {
	if jobType == "" {
		return nil, errors.NewInvalidRequestError("job type cannot be empty")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate job id")
	}

	return &Job{
		ID:        id.String(),
		Type:      jobType,
		Payload:   payload,
		Status:    StatusPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Start marks the job as processing
func (j *Job) Start(now time.Time) {
	j.Status = StatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as done with its result
func (j *Job) Complete(result Result, now time.Time) {
	j.Status = StatusDone
	j.Result = &result
	j.Error = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as errored with a message
func (j *Job) Fail(message string, now time.Time) {
	j.Status = StatusError
	j.Error = message
	j.Result = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.Metadata != nil {
		c.Metadata = make(Metadata, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// validatePayload accepts an empty payload or a JSON object.
func validatePayload(payload json.RawMessage) (json.RawMessage, error) {
	trimmed := trimSpace(payload)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(trimmed) {
		return nil, errors.NewInvalidRequestError("payload is not valid JSON")
	}
	if trimmed[0] != '{' {
		return nil, errors.NewInvalidRequestError("payload must be a JSON object")
	}
	return append(json.RawMessage(nil), trimmed...), nil
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
