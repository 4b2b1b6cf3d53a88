package qbwc

import (
	"regexp"
	"strings"

	"github.com/teranos/qbridge/jobs"
	"github.com/teranos/qbridge/qbxml"
)

// Source says where a failure was reported.
type Source string

const (
	// SourceHResult is a COM-level failure reported by the Web Connector
	SourceHResult Source = "hresult"
	// SourceOperation is a statusSeverity="Error" inside the qbXML response
	SourceOperation Source = "operation"
	// SourceDispatch is a failure raised by qbridge before QuickBooks saw the job
	SourceDispatch Source = "dispatch"
)

// DuplicateNameCode is the QuickBooks status for "name already in use".
const DuplicateNameCode = "3100"

// Outcome is the classifier's verdict on one QuickBooks response.
type Outcome struct {
	Success bool
	Result  jobs.Result
	Message string
	Code    string
	Source  Source
}

var (
	severityErrorPattern = regexp.MustCompile(`statusSeverity="Error"`)
	statusCodePattern    = regexp.MustCompile(`statusCode="(\d+)"`)
	statusMessagePattern = regexp.MustCompile(`statusMessage="([^"]+)"`)
	listIDPattern        = regexp.MustCompile(`<ListID>([^<]+)</ListID>`)
	txnIDPattern         = regexp.MustCompile(`<TxnID>([^<]+)</TxnID>`)
	refNumberPattern     = regexp.MustCompile(`<RefNumber>([^<]+)</RefNumber>`)
)

// Classify decides whether a receiveResponseXML call settles the in-flight
// job as done or error. A non-empty hresult wins over the body; otherwise
// the first error-severity status in the body fails the job.
func Classify(response, hresult, message string) Outcome {
	if code := strings.TrimSpace(hresult); code != "" {
		if message == "" {
			message = "Unknown error"
		}
		return Outcome{
			Message: "QB Error " + code + ": " + message,
			Code:    code,
			Source:  SourceHResult,
		}
	}

	parsed, err := qbxml.ParseResponse(response)
	if err != nil {
		return classifyLoose(response)
	}

	if status := parsed.FirstError(); status != nil {
		return operationError(status.Code, status.Message)
	}

	return Outcome{
		Success: true,
		Result: jobs.Result{
			Raw:       response,
			ListID:    parsed.ListID,
			TxnID:     parsed.TxnID,
			RefNumber: parsed.RefNumber,
		},
	}
}

// classifyLoose handles bodies that are not well-formed XML by matching
// the status attributes textually.
func classifyLoose(response string) Outcome {
	if severityErrorPattern.MatchString(response) {
		return operationError(firstGroup(statusCodePattern, response), firstGroup(statusMessagePattern, response))
	}

	return Outcome{
		Success: true,
		Result: jobs.Result{
			Raw:       response,
			ListID:    firstGroup(listIDPattern, response),
			TxnID:     firstGroup(txnIDPattern, response),
			RefNumber: firstGroup(refNumberPattern, response),
		},
	}
}

func operationError(code, message string) Outcome {
	if code == "" {
		code = "unknown"
	}
	if message == "" {
		message = "Unknown error"
	}
	return Outcome{
		Message: "QB Operation Error " + code + ": " + message,
		Code:    code,
		Source:  SourceOperation,
	}
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}
