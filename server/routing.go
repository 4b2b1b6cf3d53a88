package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/teranos/qbridge/logger"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	mux := http.NewServeMux()

	// Web Connector
	mux.HandleFunc("/wsdl", s.logRequests(s.HandleWSDL)) // GET ?wsdl for the WSDL, POST for SOAP calls
	mux.HandleFunc("/qbwc", s.logRequests(s.HandleSOAP)) // POST alias for connectors configured with /qbwc
	mux.HandleFunc("/generate-qwc", s.corsMiddleware(s.HandleGenerateQWC))

	// Queue
	mux.HandleFunc("GET /api/queue", s.corsMiddleware(s.HandleQueue))
	mux.HandleFunc("GET /api/queue/{id}", s.corsMiddleware(s.HandleQueueJob))
	mux.HandleFunc("POST /api/queue/{id}/abandon", s.corsMiddleware(s.HandleAbandonJob))
	mux.HandleFunc("POST /api/jobs", s.corsMiddleware(s.HandleEnqueueJob))

	// Typed enqueue endpoints
	mux.HandleFunc("POST /api/customers", s.corsMiddleware(s.HandleCustomerAdd))
	mux.HandleFunc("POST /api/customers/query", s.corsMiddleware(s.HandleCustomerQuery))
	mux.HandleFunc("POST /api/items", s.corsMiddleware(s.HandleItemAdd))
	mux.HandleFunc("POST /api/items/query", s.corsMiddleware(s.HandleItemQuery))
	mux.HandleFunc("POST /api/items/group-products", s.corsMiddleware(s.HandleItemGroupProducts))
	mux.HandleFunc("POST /api/invoices", s.corsMiddleware(s.HandleInvoiceAdd))
	mux.HandleFunc("POST /api/invoices/query", s.corsMiddleware(s.HandleInvoiceQuery))

	// Preflight for every /api route
	mux.HandleFunc("OPTIONS /api/", s.corsMiddleware(func(http.ResponseWriter, *http.Request) {}))

	mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))
	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("/", s.HandleStatus)

	s.mux = mux
}

// corsMiddleware adds CORS headers to HTTP responses using configured allowed origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// checkOrigin validates a browser origin against server.allowed_origins.
// Prefix matching allows any port on an allowed host.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	cfg := s.config()
	for _, allowed := range cfg.GetServerAllowedOrigins() {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// logRequests logs Web Connector traffic at debug level
func (s *Server) logRequests(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.logger.Debugw("Web Connector request",
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldRemote, r.RemoteAddr,
			"duration", time.Since(start),
		)
	}
}
