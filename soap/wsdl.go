package soap

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/teranos/qbridge/errors"
)

type part struct {
	Name string
	Type string
}

type operation struct {
	Name   string
	Params []part
	Result string
}

// operations describes every Web Connector callback in document/literal form.
var operations = []operation{
	{Name: "authenticate", Params: []part{{"strUserName", "s:string"}, {"strPassword", "s:string"}}, Result: "tns:ArrayOfString"},
	{Name: "clientVersion", Params: []part{{"strVersion", "s:string"}}, Result: "s:string"},
	{Name: "serverVersion", Result: "s:string"},
	{Name: "sendRequestXML", Params: []part{
		{"ticket", "s:string"},
		{"strHCPResponse", "s:string"},
		{"strCompanyFileName", "s:string"},
		{"qbXMLCountry", "s:string"},
		{"qbXMLMajorVers", "s:int"},
		{"qbXMLMinorVers", "s:int"},
	}, Result: "s:string"},
	{Name: "receiveResponseXML", Params: []part{
		{"ticket", "s:string"},
		{"response", "s:string"},
		{"hresult", "s:string"},
		{"message", "s:string"},
	}, Result: "s:int"},
	{Name: "getLastError", Params: []part{{"ticket", "s:string"}}, Result: "s:string"},
	{Name: "closeConnection", Params: []part{{"ticket", "s:string"}}, Result: "s:string"},
	{Name: "connectionError", Params: []part{{"ticket", "s:string"}, {"hresult", "s:string"}, {"message", "s:string"}}, Result: "s:string"},
}

var wsdlTemplate = template.Must(template.New("wsdl").Funcs(template.FuncMap{
	"xml": xmlEscape,
}).Parse(`<?xml version="1.0" encoding="utf-8"?>
<definitions xmlns="http://schemas.xmlsoap.org/wsdl/"
             xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/"
             xmlns:s="http://www.w3.org/2001/XMLSchema"
             xmlns:tns="{{.Namespace}}"
             targetNamespace="{{.Namespace}}">
  <types>
    <s:schema elementFormDefault="qualified" targetNamespace="{{.Namespace}}">
{{- range .Operations}}
      <s:element name="{{.Name}}">
        <s:complexType>
{{- if .Params}}
          <s:sequence>
{{- range .Params}}
            <s:element minOccurs="0" maxOccurs="1" name="{{.Name}}" type="{{.Type}}"/>
{{- end}}
          </s:sequence>
{{- end}}
        </s:complexType>
      </s:element>
      <s:element name="{{.Name}}Response">
        <s:complexType>
          <s:sequence>
            <s:element minOccurs="0" maxOccurs="1" name="{{.Name}}Result" type="{{.Result}}"/>
          </s:sequence>
        </s:complexType>
      </s:element>
{{- end}}
      <s:complexType name="ArrayOfString">
        <s:sequence>
          <s:element minOccurs="0" maxOccurs="unbounded" name="string" nillable="true" type="s:string"/>
        </s:sequence>
      </s:complexType>
    </s:schema>
  </types>
{{- range .Operations}}
  <message name="{{.Name}}SoapIn">
    <part name="parameters" element="tns:{{.Name}}"/>
  </message>
  <message name="{{.Name}}SoapOut">
    <part name="parameters" element="tns:{{.Name}}Response"/>
  </message>
{{- end}}
  <portType name="QBWebConnectorSvcSoap">
{{- range .Operations}}
    <operation name="{{.Name}}">
      <input message="tns:{{.Name}}SoapIn"/>
      <output message="tns:{{.Name}}SoapOut"/>
    </operation>
{{- end}}
  </portType>
  <binding name="QBWebConnectorSvcSoap" type="tns:QBWebConnectorSvcSoap">
    <soap:binding transport="http://schemas.xmlsoap.org/soap/http" style="document"/>
{{- range .Operations}}
    <operation name="{{.Name}}">
      <soap:operation soapAction="{{$.Namespace}}{{.Name}}" style="document"/>
      <input><soap:body use="literal"/></input>
      <output><soap:body use="literal"/></output>
    </operation>
{{- end}}
  </binding>
  <service name="QBWebConnectorSvc">
    <port name="QBWebConnectorSvcSoap" binding="tns:QBWebConnectorSvcSoap">
      <soap:address location="{{xml .Location}}"/>
    </port>
  </service>
</definitions>
`))

// WSDL renders the service description with its endpoint at location.
func WSDL(location string) ([]byte, error) {
	var buf bytes.Buffer
	err := wsdlTemplate.Execute(&buf, struct {
		Namespace  string
		Location   string
		Operations []operation
	}{Namespace, location, operations})
	if err != nil {
		return nil, errors.Wrap(err, "failed to render WSDL")
	}
	return buf.Bytes(), nil
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return escaper.Replace(s)
}
