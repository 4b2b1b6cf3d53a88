package soap

import (
	"github.com/teranos/qbridge/errors"
)

// Handler is the Web Connector service contract.
type Handler interface {
	Authenticate(username, password string) [2]string
	ClientVersion(version string) string
	ServerVersion() string
	SendRequestXML(ticket, hcpResponse, companyFile, country string, major, minor int) string
	ReceiveResponseXML(ticket, response, hresult, message string) int
	GetLastError(ticket string) string
	CloseConnection(ticket string) string
	ConnectionError(ticket, hresult, message string) string
}

// Methods lists the SOAP operations in WSDL order.
var Methods = []string{
	"authenticate",
	"clientVersion",
	"serverVersion",
	"sendRequestXML",
	"receiveResponseXML",
	"getLastError",
	"closeConnection",
	"connectionError",
}

// Dispatch invokes the handler method named by call and returns the
// encoded response envelope.
func Dispatch(h Handler, call *Call) ([]byte, error) {
	p := call.Params

	var result any
	switch call.Method {
	case "authenticate":
		res := h.Authenticate(p.String("strUserName"), p.String("strPassword"))
		result = res[:]
	case "clientVersion":
		result = h.ClientVersion(p.String("strVersion"))
	case "serverVersion":
		result = h.ServerVersion()
	case "sendRequestXML":
		result = h.SendRequestXML(
			p.String("ticket"),
			p.String("strHCPResponse"),
			p.String("strCompanyFileName"),
			p.String("qbXMLCountry"),
			p.Int("qbXMLMajorVers"),
			p.Int("qbXMLMinorVers"),
		)
	case "receiveResponseXML":
		result = h.ReceiveResponseXML(
			p.String("ticket"),
			p.String("response"),
			p.String("hresult"),
			p.String("message"),
		)
	case "getLastError":
		result = h.GetLastError(p.String("ticket"))
	case "closeConnection":
		result = h.CloseConnection(p.String("ticket"))
	case "connectionError":
		result = h.ConnectionError(p.String("ticket"), p.String("hresult"), p.String("message"))
	default:
		return nil, errors.Mark(errors.Newf("Unknown method: %s", call.Method), ErrUnknownMethod)
	}

	return EncodeResult(call.Method, result)
}
