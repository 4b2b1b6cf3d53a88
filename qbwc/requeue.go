package qbwc

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/teranos/qbridge/jobs"
	"github.com/teranos/qbridge/logger"
)

// Purposes written into metadata of follow-up lookups.
const (
	PurposeValidateCustomer = "validate-customer"
	PurposeValidateItem     = "validate-item"
)

// AlreadyExistsRequeuer reacts to QuickBooks refusing a CustomerAdd or
// ItemAdd because the name is taken: it enqueues a one-row lookup for the
// same name so the caller can pick up the existing ListID.
type AlreadyExistsRequeuer struct {
	queue *jobs.Queue
	log   *zap.SugaredLogger
}

// NewAlreadyExistsRequeuer creates the observer
func NewAlreadyExistsRequeuer(queue *jobs.Queue, log *zap.SugaredLogger) *AlreadyExistsRequeuer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &AlreadyExistsRequeuer{queue: queue, log: log}
}

// JobSucceeded implements Observer.
func (r *AlreadyExistsRequeuer) JobSucceeded(*jobs.Job, jobs.Result) {}

// JobFailed implements Observer.
func (r *AlreadyExistsRequeuer) JobFailed(job *jobs.Job, outcome Outcome) {
	if outcome.Source != SourceOperation || outcome.Code != DuplicateNameCode {
		return
	}

	var lookup jobs.Type
	var purpose, name string

	switch job.Type {
	case jobs.TypeCustomerAdd:
		var p struct {
			FullName string `json:"fullName"`
		}
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			r.log.Warnw("Duplicate reported but the customer payload is unreadable",
				logger.FieldJobID, job.ID,
				logger.FieldError, err,
			)
			return
		}
		lookup, purpose, name = jobs.TypeCustomerQuery, PurposeValidateCustomer, p.FullName
	case jobs.TypeItemAdd:
		var p struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			// metadata itemName can still identify the item
			r.log.Warnw("Duplicate reported but the item payload is unreadable",
				logger.FieldJobID, job.ID,
				logger.FieldError, err,
			)
		}
		name = p.Name
		if name == "" {
			name = job.Metadata.String("itemName")
		}
		lookup, purpose = jobs.TypeItemQuery, PurposeValidateItem
	default:
		return
	}

	if name == "" {
		r.log.Warnw("Duplicate reported but no name to look up", logger.FieldJobID, job.ID)
		return
	}

	metadata := jobs.Metadata{}
	for k, v := range job.Metadata {
		metadata[k] = v
	}
	metadata["purpose"] = purpose
	metadata["requeuedFrom"] = job.ID
	if lookup == jobs.TypeItemQuery {
		metadata["itemName"] = name
	}

	payload, err := json.Marshal(map[string]any{"name": name, "maxReturned": 1})
	if err != nil {
		r.log.Errorw("Failed to encode lookup payload", logger.FieldJobID, job.ID, logger.FieldError, err)
		return
	}

	next, err := r.queue.Enqueue(lookup, payload, metadata)
	if err != nil {
		r.log.Errorw("Failed to enqueue lookup after duplicate",
			logger.FieldJobID, job.ID,
			logger.FieldError, err,
		)
		return
	}

	r.log.Infow("Name already exists in QuickBooks; queued lookup",
		logger.FieldJobID, job.ID,
		"lookup_job_id", next.ID,
		logger.FieldJobType, lookup,
		"name", name,
	)
}
