// Package soap is the SOAP 1.1 codec for the QuickBooks Web Connector
// service: it decodes request envelopes into method calls, dispatches them
// to a Handler and encodes the document/literal responses and faults.
package soap

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/teranos/qbridge/errors"
)

const (
	// Namespace is the Web Connector service namespace
	Namespace = "http://developer.intuit.com/"

	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	xsiNS      = "http://www.w3.org/2001/XMLSchema-instance"
	xsdNS      = "http://www.w3.org/2001/XMLSchema"
)

var (
	// ErrMalformedEnvelope means the request body is not a SOAP envelope
	ErrMalformedEnvelope = errors.New("malformed SOAP envelope")
	// ErrUnknownMethod means the body names a method the service lacks
	ErrUnknownMethod = errors.New("unknown SOAP method")
)

// Call is one decoded SOAP request.
type Call struct {
	Method string
	Params Params
}

// Params holds the simple-typed parameters of a call by element name.
type Params map[string]string

// String returns the parameter or "".
func (p Params) String(name string) string {
	return p[name]
}

// Int returns the parameter as an int, or 0 when absent or not a number.
func (p Params) Int(name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(p[name]))
	if err != nil {
		return 0
	}
	return n
}

type envelope struct {
	XMLName xml.Name
	Body    *struct {
		Content []byte `xml:",innerxml"`
	} `xml:"Body"`
}

func newDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	return d
}

// Decode reads a SOAP envelope (any prefix, soap: or SOAP-ENV:) and
// returns the method call in its body.
func Decode(r io.Reader) (*Call, error) {
	var env envelope
	if err := newDecoder(r).Decode(&env); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid XML"), ErrMalformedEnvelope)
	}
	if env.XMLName.Local != "Envelope" || env.Body == nil {
		return nil, errors.Mark(errors.New("invalid SOAP envelope"), ErrMalformedEnvelope)
	}

	call, err := decodeBody(env.Body.Content)
	if err != nil {
		return nil, errors.Mark(err, ErrMalformedEnvelope)
	}
	return call, nil
}

// decodeBody reads the first element of the body as the method and its
// direct children as parameters.
func decodeBody(content []byte) (*Call, error) {
	d := newDecoder(bytes.NewReader(content))

	var call *Call
	var param string
	var text strings.Builder
	depth := 0

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "invalid SOAP body")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1 && call == nil:
				call = &Call{Method: t.Name.Local, Params: Params{}}
			case depth == 2 && call != nil:
				param = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 && param != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 && param != "" {
				call.Params[param] = text.String()
				param = ""
			}
			depth--
			if depth == 0 && call != nil {
				return call, nil
			}
		}
	}

	if call == nil {
		return nil, errors.New("empty SOAP body")
	}
	return call, nil
}

type responseEnvelope struct {
	XMLName xml.Name     `xml:"soap:Envelope"`
	Soap    string       `xml:"xmlns:soap,attr"`
	Xsi     string       `xml:"xmlns:xsi,attr,omitempty"`
	Xsd     string       `xml:"xmlns:xsd,attr,omitempty"`
	Body    responseBody `xml:"soap:Body"`
}

type responseBody struct {
	Content any
}

type methodResponse struct {
	XMLName xml.Name
	Result  any
}

type stringResult struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type arrayResult struct {
	XMLName xml.Name
	Strings []string `xml:"http://developer.intuit.com/ string"`
}

type fault struct {
	XMLName xml.Name `xml:"soap:Fault"`
	Code    string   `xml:"faultcode"`
	String  string   `xml:"faultstring"`
}

func encode(env responseEnvelope) ([]byte, error) {
	body, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode SOAP response")
	}
	return append([]byte(xml.Header), body...), nil
}

// EncodeResult writes the <method>Response envelope. result is a string,
// an int, or a []string (encoded as ArrayOfString).
func EncodeResult(method string, result any) ([]byte, error) {
	// Results are qualified (elementFormDefault="qualified" in the WSDL);
	// the Web Connector reads an unqualified result as null.
	resultName := xml.Name{Space: Namespace, Local: method + "Result"}

	var inner any
	switch v := result.(type) {
	case []string:
		inner = arrayResult{XMLName: resultName, Strings: v}
	case string:
		inner = stringResult{XMLName: resultName, Value: v}
	case int:
		inner = stringResult{XMLName: resultName, Value: strconv.Itoa(v)}
	default:
		return nil, errors.AssertionFailedf("unsupported SOAP result type %T", result)
	}

	return encode(responseEnvelope{
		Soap: envelopeNS,
		Xsi:  xsiNS,
		Xsd:  xsdNS,
		Body: responseBody{Content: methodResponse{
			XMLName: xml.Name{Space: Namespace, Local: method + "Response"},
			Result:  inner,
		}},
	})
}

// EncodeFault writes a soap:Server fault carrying message.
func EncodeFault(message string) []byte {
	out, err := encode(responseEnvelope{
		Soap: envelopeNS,
		Body: responseBody{Content: fault{Code: "soap:Server", String: message}},
	})
	if err != nil {
		// Only reachable if encoding/xml cannot encode plain strings
		return []byte(xml.Header)
	}
	return out
}
