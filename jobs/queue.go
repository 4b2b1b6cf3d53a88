package jobs

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/qbridge/errors"
	"github.com/teranos/qbridge/logger"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// ErrJobInFlight is returned by NextPending while another job is processing.
var ErrJobInFlight = errors.New("a job is already processing")

// Queue is the ordered job queue. All state transitions happen under one
// mutex so claim-and-flip is atomic and at most one job is processing.
type Queue struct {
	store       Store
	log         *zap.SugaredLogger
	mu          sync.RWMutex
	subscribers []chan *Job // Channels to notify of job updates
	now         func() time.Time
}

// NewQueue creates a queue over store. A nil log discards output.
func NewQueue(store Store, log *zap.SugaredLogger) *Queue {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Queue{
		store:       store,
		log:         log,
		subscribers: make([]chan *Job, 0),
		now:         time.Now,
	}
}

// Enqueue appends a pending job. The payload must be empty or a JSON object.
func (q *Queue) Enqueue(jobType Type, payload json.RawMessage, metadata Metadata) (*Job, error) {
	normalized, err := validatePayload(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "enqueue %s", jobType)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := NewJob(jobType, normalized, metadata, q.now())
	if err != nil {
		return nil, err
	}

	if err := q.store.Create(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Type: %s", job.Type))
		return nil, err
	}

	q.log.Infow("Job enqueued",
		logger.FieldJobID, job.ID,
		logger.FieldJobType, job.Type,
	)
	q.notifySubscribers(job)

	return job.Clone(), nil
}

// NextPending claims the oldest pending job and marks it processing.
// Returns nil, nil when nothing is pending and ErrJobInFlight when a claimed
// job has not been settled yet.
func (q *Queue) NextPending() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts, err := q.store.Counts()
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	if counts[StatusProcessing] > 0 {
		return nil, ErrJobInFlight
	}

	job, err := q.store.OldestPending()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending job")
	}
	if job == nil {
		return nil, nil
	}

	job.Start(q.now())

	if err := q.store.Update(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as processing")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Type: %s", job.Type))
		return nil, err
	}

	q.log.Debugw("Job claimed",
		logger.FieldJobID, job.ID,
		logger.FieldJobType, job.Type,
	)
	q.notifySubscribers(job)

	return job.Clone(), nil
}

// MarkDone settles a processing job as done. Unknown ids and jobs that are
// not processing are ignored.
func (q *Queue) MarkDone(id string, result Result) error {
	return q.settle(id, func(job *Job, now time.Time) {
		job.Complete(result, now)
	})
}

// MarkError settles a processing job as failed. Unknown ids and jobs that
// are not processing are ignored.
func (q *Queue) MarkError(id string, message string) error {
	return q.settle(id, func(job *Job, now time.Time) {
		job.Fail(message, now)
	})
}

func (q *Queue) settle(id string, apply func(*Job, time.Time)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.Get(id)
	if errors.IsNotFoundError(err) {
		q.log.Debugw("Ignoring settle for unknown job", logger.FieldJobID, id)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load job %s", id)
	}

	if job.Status != StatusProcessing {
		q.log.Debugw("Ignoring settle for job that is not processing",
			logger.FieldJobID, id,
			logger.FieldJobStatus, job.Status,
		)
		return nil
	}

	apply(job, q.now())

	if err := q.store.Update(job); err != nil {
		err = errors.Wrap(err, "failed to settle job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Status: %s", job.Status))
		return err
	}

	q.log.Infow("Job settled",
		logger.FieldJobID, job.ID,
		logger.FieldJobType, job.Type,
		logger.FieldJobStatus, job.Status,
	)
	q.notifySubscribers(job)

	return nil
}

// Abandon fails a job stuck in processing, typically after a dropped
// connector round. This is the operator escape hatch for single-flight.
func (q *Queue) Abandon(id string, reason string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.Get(id)
	if err != nil {
		return nil, err
	}

	if job.Status != StatusProcessing {
		err := errors.NewConflictError("job %s is not processing (status: %s)", id, job.Status)
		return nil, errors.WithDetail(err, fmt.Sprintf("Type: %s", job.Type))
	}

	if reason == "" {
		reason = "abandoned by operator"
	}
	job.Fail(reason, q.now())

	if err := q.store.Update(job); err != nil {
		return nil, errors.Wrapf(err, "failed to abandon job %s", id)
	}

	q.log.Warnw("Job abandoned",
		logger.FieldJobID, job.ID,
		logger.FieldJobType, job.Type,
		"reason", reason,
	)
	q.notifySubscribers(job)

	return job.Clone(), nil
}

// HasPending reports whether any job is waiting to be claimed.
func (q *Queue) HasPending() (bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, err := q.store.OldestPending()
	if err != nil {
		return false, errors.Wrap(err, "failed to check pending jobs")
	}
	return job != nil, nil
}

// InFlight returns the job currently processing, or nil. A job that stays
// here after its round closed blocks every later dispatch until abandoned.
func (q *Queue) InFlight() (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	processing, err := q.store.List(Filter{Status: StatusProcessing, Limit: 1})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processing jobs")
	}
	if len(processing) == 0 {
		return nil, nil
	}
	return processing[0], nil
}

// Get retrieves a job by ID
func (q *Queue) Get(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.Get(id)
}

// List returns jobs in insertion order
func (q *Queue) List(filter Filter) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.List(filter)
}

// Counts returns the number of jobs per status
func (q *Queue) Counts() (map[Status]int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.Counts()
}

// Subscribe returns a channel that receives a copy of every job change
func (q *Queue) Subscribe() <-chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscription channel.
// Does not close the channel - caller owns cleanup.
func (q *Queue) Unsubscribe(ch <-chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// Close drops every subscriber, closing their channels.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, ch := range q.subscribers {
		close(ch)
	}
	q.subscribers = nil
}

// notifySubscribers sends job updates to all subscribers (non-blocking).
// Must be called while holding q.mu.
func (q *Queue) notifySubscribers(job *Job) {
	for _, ch := range q.subscribers {
		select {
		case ch <- job.Clone():
		default:
			// Channel full, skip notification
		}
	}
}

// RecoverStale logs jobs left processing by a previous run. They are not
// touched; an operator decides with Abandon.
func (q *Queue) RecoverStale() ([]*Job, error) {
	stale, err := q.List(Filter{Status: StatusProcessing})
	if err != nil {
		return nil, err
	}
	for _, job := range stale {
		q.log.Warnw("Job left processing by a previous run",
			logger.FieldJobID, job.ID,
			logger.FieldJobType, job.Type,
			"started_at", job.StartedAt,
		)
	}
	return stale, nil
}
