package server

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/teranos/qbridge/logger"
	"github.com/teranos/qbridge/soap"
)

const soapReadyMessage = "SOAP endpoint ready. Add ?wsdl to see WSDL."

// HandleWSDL serves the WSDL on GET ?wsdl and SOAP calls on POST
func (s *Server) HandleWSDL(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.HandleSOAP(w, r)
	case http.MethodGet, http.MethodHead:
		if !r.URL.Query().Has("wsdl") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(soapReadyMessage))
			return
		}

		doc, err := soap.WSDL(s.endpointURL(r))
		if err != nil {
			s.logger.Errorw("Failed to render WSDL", logger.FieldError, err)
			http.Error(w, "failed to render WSDL", http.StatusInternalServerError)
			return
		}
		writeXML(w, http.StatusOK, doc)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleSOAP decodes one Web Connector call and answers it. Malformed
// envelopes and unknown methods get a SOAP fault with HTTP 500; every
// protocol-level problem is answered inside a normal response.
func (s *Server) HandleSOAP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeXML(w, http.StatusMethodNotAllowed, soap.EncodeFault("Method not allowed"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxSOAPBodyBytes))
	if err != nil {
		s.logger.Warnw("Failed to read SOAP request", logger.FieldError, err, logger.FieldRemote, r.RemoteAddr)
		writeXML(w, http.StatusInternalServerError, soap.EncodeFault("Invalid request body"))
		return
	}

	call, err := soap.Decode(bytes.NewReader(body))
	if err != nil {
		s.logger.Warnw("Rejected SOAP request",
			logger.FieldError, err,
			logger.FieldSize, len(body),
			"preview", logger.Preview(string(body), 200),
		)
		writeXML(w, http.StatusInternalServerError, soap.EncodeFault(err.Error()))
		return
	}

	s.logger.Debugw("SOAP call", logger.FieldMethod, call.Method, logger.FieldSize, len(body))

	resp, err := soap.Dispatch(s.service, call)
	if err != nil {
		s.logger.Warnw("SOAP dispatch failed", logger.FieldMethod, call.Method, logger.FieldError, err)
		writeXML(w, http.StatusInternalServerError, soap.EncodeFault(err.Error()))
		return
	}

	writeXML(w, http.StatusOK, resp)
}

// endpointURL is the SOAP address advertised in the WSDL: the configured
// server URL, or the URL this request reached us on.
func (s *Server) endpointURL(r *http.Request) string {
	base := strings.TrimRight(s.config().QBWC.ServerURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/wsdl"
}
