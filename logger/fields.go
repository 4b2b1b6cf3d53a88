package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across qbridge.
// Use these constants instead of raw strings.
const (
	// Jobs
	FieldJobID     = "job_id"
	FieldJobType   = "job_type"
	FieldJobStatus = "job_status"
	FieldPending   = "pending"

	// QBWC session
	FieldTicket      = "ticket"
	FieldCompanyFile = "company_file"
	FieldQBXMLVer    = "qbxml_version"
	FieldHResult     = "hresult"
	FieldProgress    = "progress"

	// Components
	FieldComponent = "component"

	// HTTP
	FieldMethod = "method"
	FieldPath   = "path"
	FieldRemote = "remote"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Sizes
	FieldCount = "count"
	FieldSize  = "size"

	// Network
	FieldAddress = "address"
	FieldPort    = "port"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	svc := qbwc.NewService(queue, creds, logger.ComponentLogger("qbwc"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ShortTicket trims a session ticket for log lines; tickets are long and
// only the prefix is useful when correlating a round.
func ShortTicket(ticket string) string {
	if len(ticket) > 24 {
		return ticket[:24] + "…"
	}
	return ticket
}
