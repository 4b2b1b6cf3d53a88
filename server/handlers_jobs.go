package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/teranos/qbridge/errors"
	"github.com/teranos/qbridge/jobs"
	"github.com/teranos/qbridge/logger"
	"github.com/teranos/qbridge/qbwc"
	"github.com/teranos/qbridge/qbxml"
)

// enqueueBody is a JSON object whose "metadata" member travels with the
// job and whose other members form the payload.
type enqueueBody struct {
	fields   map[string]json.RawMessage
	metadata jobs.Metadata
}

func readEnqueueBody(w http.ResponseWriter, r *http.Request) (*enqueueBody, error) {
	fields := map[string]json.RawMessage{}
	if err := readJSON(w, r, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}

	body := &enqueueBody{fields: fields}
	if raw, ok := fields["metadata"]; ok {
		delete(fields, "metadata")
		if string(raw) != "null" {
			if err := json.Unmarshal(raw, &body.metadata); err != nil {
				return nil, errors.NewInvalidRequestError("metadata must be a JSON object")
			}
		}
	}
	return body, nil
}

// setDefault fills key when the caller left it out or sent null/0
func (b *enqueueBody) setDefault(key string, value interface{}) {
	if raw, ok := b.fields[key]; ok && string(raw) != "null" && string(raw) != "0" {
		return
	}
	encoded, _ := json.Marshal(value)
	b.fields[key] = encoded
}

// decode reads the payload into a typed struct for endpoint checks
func (b *enqueueBody) decode(into interface{}) error {
	raw, err := json.Marshal(b.fields)
	if err != nil {
		return errors.Wrap(err, "failed to re-encode payload")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return errors.NewInvalidRequestError("invalid payload: %v", err)
	}
	return nil
}

func (b *enqueueBody) payload() (json.RawMessage, error) {
	raw, err := json.Marshal(b.fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode payload")
	}
	return raw, nil
}

// enqueue throttles, proves the payload builds into qbXML, then queues it
func (s *Server) enqueue(w http.ResponseWriter, jobType jobs.Type, body *enqueueBody, message string) {
	if !s.limiter.Allow() {
		handleError(w, s.logger, errors.Wrap(errors.ErrRateLimited, "too many enqueue requests, slow down"), "rate limited")
		return
	}

	payload, err := body.payload()
	if err != nil {
		handleError(w, s.logger, err, "failed to encode payload")
		return
	}

	build, ok := qbwc.Builders[jobType]
	if !ok {
		handleError(w, s.logger, errors.NewInvalidRequestError("unknown job type %q", jobType), "unknown job type")
		return
	}
	if _, err := build(payload, qbxml.Options{Version: s.config().QBWC.QBXMLVersion}); err != nil {
		handleError(w, s.logger, err, "failed to build request")
		return
	}

	job, err := s.queue.Enqueue(jobType, payload, body.metadata)
	if err != nil {
		handleError(w, s.logger, err, "failed to enqueue job")
		return
	}

	s.logger.Infow("Job enqueued via API",
		logger.FieldJobID, job.ID,
		logger.FieldJobType, job.Type,
	)
	writeJSON(w, http.StatusOK, EnqueueResponse{Success: true, JobID: job.ID, Message: message})
}

// HandleQueue lists jobs in insertion order; ?status= and ?limit= filter
func (s *Server) HandleQueue(w http.ResponseWriter, r *http.Request) {
	var filter jobs.Filter

	if status := r.URL.Query().Get("status"); status != "" {
		if !jobs.IsValidStatus(status) {
			writeError(w, http.StatusBadRequest, "status must be one of pending, processing, done, error")
			return
		}
		filter.Status = jobs.Status(status)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	list, err := s.queue.List(filter)
	if err != nil {
		handleError(w, s.logger, err, "failed to list jobs")
		return
	}
	counts, err := s.queue.Counts()
	if err != nil {
		handleError(w, s.logger, err, "failed to count jobs")
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}

	writeJSON(w, http.StatusOK, QueueResponse{Success: true, Count: len(list), Counts: counts, Queue: list})
}

// HandleQueueJob returns one job
func (s *Server) HandleQueueJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Get(r.PathValue("id"))
	if err != nil {
		handleError(w, s.logger, err, "failed to get job")
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Success: true, Job: job})
}

// HandleAbandonJob fails a job stuck in processing so the queue can move on
func (s *Server) HandleAbandonJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := readJSON(w, r, &req); err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}

	job, err := s.queue.Abandon(r.PathValue("id"), req.Reason)
	if err != nil {
		handleError(w, s.logger, err, "failed to abandon job")
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Success: true, Job: job})
}

// HandleEnqueueJob queues any known job type: {type, payload, metadata}
func (s *Server) HandleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     jobs.Type       `json:"type"`
		Payload  json.RawMessage `json:"payload"`
		Metadata jobs.Metadata   `json:"metadata"`
	}
	if err := readJSON(w, r, &req); err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if !req.Type.Known() {
		handleError(w, s.logger, errors.NewInvalidRequestError("unknown job type %q", req.Type), "unknown job type")
		return
	}

	body := &enqueueBody{fields: map[string]json.RawMessage{}, metadata: req.Metadata}
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		if err := json.Unmarshal(req.Payload, &body.fields); err != nil {
			writeError(w, http.StatusBadRequest, "payload must be a JSON object")
			return
		}
	}

	s.enqueue(w, req.Type, body, string(req.Type)+" job queued")
}

// HandleCustomerAdd queues CustomerAdd: {fullName, email, phone}
func (s *Server) HandleCustomerAdd(w http.ResponseWriter, r *http.Request) {
	body, err := readEnqueueBody(w, r)
	if err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}

	var p qbxml.CustomerAddPayload
	if err := body.decode(&p); err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}
	if p.FullName == "" {
		writeError(w, http.StatusBadRequest, "fullName is required")
		return
	}

	s.enqueue(w, jobs.TypeCustomerAdd, body, "Customer add job queued")
}

// HandleCustomerQuery queues CustomerQuery: {maxReturned, name, nameFilter}
func (s *Server) HandleCustomerQuery(w http.ResponseWriter, r *http.Request) {
	body, err := readEnqueueBody(w, r)
	if err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}
	body.setDefault("maxReturned", 100)

	s.enqueue(w, jobs.TypeCustomerQuery, body, "Customer fetch job queued")
}

// HandleItemAdd queues ItemAdd: {type, name, description, price, account}
func (s *Server) HandleItemAdd(w http.ResponseWriter, r *http.Request) {
	body, err := readEnqueueBody(w, r)
	if err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}

	var p qbxml.ItemAddPayload
	if err := body.decode(&p); err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}
	switch {
	case p.Name == "":
		writeError(w, http.StatusBadRequest, "name is required")
		return
	case p.Type == "":
		writeError(w, http.StatusBadRequest, "type is required (Service, NonInventory, or Inventory)")
		return
	case !qbxml.ValidItemType(p.Type):
		writeError(w, http.StatusBadRequest, "Invalid type. Must be one of: Service, NonInventory, Inventory")
		return
	}

	if body.metadata == nil {
		body.metadata = jobs.Metadata{}
	}
	if body.metadata.String("itemName") == "" {
		body.metadata["itemName"] = p.Name
	}

	s.enqueue(w, jobs.TypeItemAdd, body, "Item add job queued for: "+p.Name)
}

// HandleItemQuery queues ItemQuery: {maxReturned, name, nameFilter}
func (s *Server) HandleItemQuery(w http.ResponseWriter, r *http.Request) {
	body, err := readEnqueueBody(w, r)
	if err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}
	body.setDefault("maxReturned", 100)

	s.enqueue(w, jobs.TypeItemQuery, body, "Item query job queued")
}

// HandleItemGroupProducts queues ItemGroupProductsQuery: {itemId}
func (s *Server) HandleItemGroupProducts(w http.ResponseWriter, r *http.Request) {
	body, err := readEnqueueBody(w, r)
	if err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}

	s.enqueue(w, jobs.TypeItemGroupProductsQuery, body, "Item group products job queued")
}

// HandleInvoiceAdd queues InvoiceAdd: {customer, txnDate, refNumber, memo, lineItems, billTo, shipTo}
func (s *Server) HandleInvoiceAdd(w http.ResponseWriter, r *http.Request) {
	body, err := readEnqueueBody(w, r)
	if err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}

	s.enqueue(w, jobs.TypeInvoiceAdd, body, "Invoice add job queued")
}

// HandleInvoiceQuery queues InvoiceQuery: {maxReturned, customerName, txnDateStart, txnDateEnd}
func (s *Server) HandleInvoiceQuery(w http.ResponseWriter, r *http.Request) {
	body, err := readEnqueueBody(w, r)
	if err != nil {
		handleError(w, s.logger, err, "invalid request")
		return
	}

	s.enqueue(w, jobs.TypeInvoiceQuery, body, "Invoice query job queued")
}
