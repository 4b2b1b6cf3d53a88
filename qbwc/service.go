// Package qbwc implements the QuickBooks Web Connector protocol engine:
// the single-ticket session, the dispatcher behind the eight SOAP methods,
// and the classifier that settles jobs from QuickBooks responses.
package qbwc

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/teranos/qbridge/errors"
	"github.com/teranos/qbridge/jobs"
	"github.com/teranos/qbridge/logger"
	"github.com/teranos/qbridge/qbxml"
	"github.com/teranos/qbridge/version"
)

// Authentication sentinels returned in place of a ticket.
const (
	InvalidUser = "nvu"
	NoWork      = "none"
)

// Progress values returned by ReceiveResponseXML.
const (
	ProgressMore = 10
	ProgressDone = 100
)

const (
	// CloseOK is the closeConnection reply
	CloseOK = "OK"
	// ConnectionErrorDone tells the connector to stop trying this company file
	ConnectionErrorDone = "done"
)

// Config is the part of the Web Connector setup the dispatcher reads on
// every call. It can be swapped at runtime with Service.UpdateConfig.
type Config struct {
	Username         string
	Password         string
	CompanyFile      string
	ServerVersion    string
	QBXMLVersion     string
	MinClientVersion string
}

// Observer is told about every job the dispatcher settles. Calls happen
// after the queue has been updated, outside any queue lock.
type Observer interface {
	JobSucceeded(job *jobs.Job, result jobs.Result)
	JobFailed(job *jobs.Job, outcome Outcome)
}

// Builders maps each known job type to its qbXML builder.
var Builders = map[jobs.Type]qbxml.Builder{
	jobs.TypeCustomerAdd:            qbxml.CustomerAdd,
	jobs.TypeCustomerQuery:          qbxml.CustomerQuery,
	jobs.TypeItemAdd:                qbxml.ItemAdd,
	jobs.TypeItemQuery:              qbxml.ItemQuery,
	jobs.TypeItemGroupProductsQuery: qbxml.ItemGroupProductsQuery,
	jobs.TypeInvoiceAdd:             qbxml.InvoiceAdd,
	jobs.TypeInvoiceQuery:           qbxml.InvoiceQuery,
}

// Service is the Web Connector dispatcher. Every exported method is safe to
// call concurrently and never panics.
type Service struct {
	queue    *jobs.Queue
	session  *Session
	builders map[jobs.Type]qbxml.Builder
	log      *zap.SugaredLogger

	mu        sync.RWMutex
	cfg       Config
	observers []Observer
}

// NewService wires the dispatcher to its queue and session.
func NewService(queue *jobs.Queue, session *Session, cfg Config, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = version.FallbackServerVersion
	}
	return &Service{
		queue:    queue,
		session:  session,
		builders: Builders,
		log:      log,
		cfg:      cfg,
	}
}

// AddObserver registers o for settlement notifications.
func (s *Service) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observers = append(s.observers, o)
}

// UpdateConfig swaps credentials and settings for subsequent calls.
func (s *Service) UpdateConfig(cfg Config) {
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = version.FallbackServerVersion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.log.Infow("Web Connector settings updated",
		"username", cfg.Username,
		logger.FieldCompanyFile, cfg.CompanyFile,
		logger.FieldQBXMLVer, cfg.QBXMLVersion,
	)
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cfg
}

// Session exposes the session for status reporting.
func (s *Service) Session() *Session {
	return s.session
}

// Authenticate checks credentials and opens a round when work is pending.
// The first element is a ticket, InvalidUser or NoWork; the second is the
// company file to open ("" means whichever file is open).
func (s *Service) Authenticate(username, password string) (result [2]string) {
	result = [2]string{NoWork, ""}
	defer s.recoverCall("authenticate", func(err error) {
		s.session.SetLastError(err.Error())
	})

	cfg := s.config()

	// Evaluate both comparisons so timing does not reveal which one failed
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
	if !userOK || !passOK {
		s.log.Warnw("Authentication rejected", "username", username)
		return [2]string{InvalidUser, ""}
	}

	pending, err := s.queue.HasPending()
	if err != nil {
		s.log.Errorw("Failed to check for pending jobs", logger.FieldError, err)
		return [2]string{NoWork, ""}
	}
	if !pending {
		s.log.Infow("Authenticated with no pending work")
		return [2]string{NoWork, ""}
	}

	ticket := s.session.Open()
	s.log.Infow("Round opened",
		logger.FieldTicket, logger.ShortTicket(ticket),
		logger.FieldCompanyFile, cfg.CompanyFile,
	)
	return [2]string{ticket, cfg.CompanyFile}
}

// SendRequestXML claims the next pending job and returns its qbXML request.
// It returns "" when the ticket is wrong, nothing is pending, or the job
// could not be turned into a request; the last two mark the job error.
func (s *Service) SendRequestXML(ticket, hcpResponse, companyFile, country string, major, minor int) (doc string) {
	defer s.recoverCall("sendRequestXML", func(err error) {
		doc = ""
		s.failInFlight("Builder error: "+err.Error(), SourceDispatch)
	})

	s.session.SetLastError("")

	if !s.session.Valid(ticket) {
		s.log.Warnw("sendRequestXML with unknown ticket", logger.FieldTicket, logger.ShortTicket(ticket))
		return ""
	}

	s.log.Debugw("sendRequestXML",
		logger.FieldTicket, logger.ShortTicket(ticket),
		logger.FieldCompanyFile, companyFile,
		"country", country,
		logger.FieldQBXMLVer, fmt.Sprintf("%d.%d", major, minor),
	)

	job, err := s.queue.NextPending()
	if errors.Is(err, jobs.ErrJobInFlight) {
		s.warnStalled()
		return ""
	}
	if err != nil {
		s.session.SetLastError("Queue error: " + err.Error())
		s.log.Errorw("Failed to claim next job", logger.FieldError, err)
		return ""
	}
	if job == nil {
		s.log.Infow("No pending jobs")
		return ""
	}

	s.session.Track(job.ID)

	builder, ok := s.builders[job.Type]
	if !ok {
		s.failInFlight("Unknown job type: "+string(job.Type), SourceDispatch)
		return ""
	}

	cfg := s.config()
	doc, err = builder(job.Payload, qbxml.Options{Version: cfg.QBXMLVersion})
	if err != nil {
		s.failInFlight("Builder error: "+err.Error(), SourceDispatch)
		return ""
	}

	s.log.Infow("Job sent to QuickBooks",
		logger.FieldJobID, job.ID,
		logger.FieldJobType, job.Type,
		logger.FieldSize, len(doc),
	)
	s.log.Debugw("qbXML request", "preview", logger.Preview(doc, 200))

	return doc
}

// ReceiveResponseXML settles the in-flight job from QuickBooks' reply and
// reports progress: ProgressMore while jobs remain pending, ProgressDone
// otherwise. A wrong ticket settles nothing.
func (s *Service) ReceiveResponseXML(ticket, response, hresult, message string) (progress int) {
	defer s.recoverCall("receiveResponseXML", func(err error) {
		s.failInFlight("receiveResponseXML error: "+err.Error(), SourceDispatch)
		progress = s.progress()
	})

	if !s.session.Valid(ticket) {
		s.log.Warnw("receiveResponseXML with unknown ticket; nothing settled",
			logger.FieldTicket, logger.ShortTicket(ticket),
		)
		return s.progress()
	}

	outcome := Classify(response, hresult, message)

	jobID := s.session.TakeInFlight()
	if jobID == "" {
		s.log.Warnw("receiveResponseXML with no job in flight",
			logger.FieldHResult, hresult,
		)
		if !outcome.Success {
			s.session.SetLastError(outcome.Message)
		}
		return s.progress()
	}

	s.settle(jobID, outcome)

	progress = s.progress()
	s.log.Infow("Response processed",
		logger.FieldJobID, jobID,
		logger.FieldProgress, progress,
	)
	return progress
}

// GetLastError returns the message recorded by the last failing call.
func (s *Service) GetLastError(ticket string) string {
	msg := s.session.LastError()
	s.log.Debugw("getLastError", logger.FieldTicket, logger.ShortTicket(ticket), "message", msg)
	return msg
}

// ConnectionError records the connector's failure to reach QuickBooks and
// fails the in-flight job, if any.
func (s *Service) ConnectionError(ticket, hresult, message string) string {
	defer s.recoverCall("connectionError", nil)

	msg := strings.TrimSpace(fmt.Sprintf("Connection error: %s %s", hresult, message))
	s.log.Errorw("Web Connector could not reach QuickBooks",
		logger.FieldTicket, logger.ShortTicket(ticket),
		logger.FieldHResult, hresult,
		"message", message,
	)

	if s.session.Valid(ticket) && s.session.InFlight() != "" {
		s.failInFlight(msg, SourceHResult)
	}
	s.session.SetLastError(msg)
	return ConnectionErrorDone
}

// CloseConnection ends the round. Any ticket closes the session.
func (s *Service) CloseConnection(ticket string) string {
	if id := s.session.InFlight(); id != "" {
		s.log.Warnw("Round closed with a job still in flight",
			logger.FieldJobID, id,
		)
	}
	s.session.Close()
	s.log.Infow("Round closed", logger.FieldTicket, logger.ShortTicket(ticket))
	return CloseOK
}

// ClientVersion accepts every connector unless a minimum version is
// configured. An older connector gets an "E:" refusal; a version that
// cannot be read gets a "W:" warning and is allowed through.
func (s *Service) ClientVersion(version string) string {
	minimum := s.config().MinClientVersion
	s.log.Infow("Web Connector version", "version", version)
	if minimum == "" {
		return ""
	}

	floor, err := semver.NewVersion(coerceVersion(minimum))
	if err != nil {
		s.log.Warnw("Ignoring unparseable minimum client version", "min_client_version", minimum)
		return ""
	}

	got, err := semver.NewVersion(coerceVersion(version))
	if err != nil {
		return fmt.Sprintf("W:Unable to read Web Connector version %q; version %s or later is recommended.", version, minimum)
	}

	if got.LessThan(floor) {
		return fmt.Sprintf("E:This service requires QuickBooks Web Connector %s or later. You are running %s.", minimum, version)
	}
	return ""
}

// ServerVersion reports the configured server version.
func (s *Service) ServerVersion() string {
	return s.config().ServerVersion
}

// coerceVersion trims a Web Connector version ("2.3.0.215") to the three
// components semver understands.
func coerceVersion(v string) string {
	parts := strings.Split(strings.TrimSpace(v), ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ".")
}

// warnStalled records why nothing was dispatched. The processing job
// usually belongs to an earlier round that closed without a response.
func (s *Service) warnStalled() {
	msg := "Another job is still awaiting a QuickBooks response"
	s.session.SetLastError(msg)

	stuck, err := s.queue.InFlight()
	if err != nil || stuck == nil {
		s.log.Warnw(msg, logger.FieldError, err)
		return
	}

	fields := []interface{}{
		logger.FieldJobID, stuck.ID,
		logger.FieldJobType, stuck.Type,
		"hint", "POST /api/queue/" + stuck.ID + "/abandon to release it",
	}
	if stuck.StartedAt != nil {
		fields = append(fields, "stalled_for", time.Since(*stuck.StartedAt).Round(time.Second).String())
	}
	s.log.Warnw("Dispatch stalled: "+msg, fields...)
}

// failInFlight settles the in-flight job, if any, as error with msg.
func (s *Service) failInFlight(msg string, source Source) {
	s.session.SetLastError(msg)

	jobID := s.session.TakeInFlight()
	if jobID == "" {
		s.log.Errorw(msg)
		return
	}
	s.settle(jobID, Outcome{Message: msg, Source: source})
}

func (s *Service) settle(jobID string, outcome Outcome) {
	var err error
	if outcome.Success {
		err = s.queue.MarkDone(jobID, outcome.Result)
	} else {
		s.session.SetLastError(outcome.Message)
		err = s.queue.MarkError(jobID, outcome.Message)
	}
	if err != nil {
		s.log.Errorw("Failed to settle job",
			logger.FieldJobID, jobID,
			logger.FieldError, err,
		)
		return
	}

	if outcome.Success {
		s.log.Infow("Job done",
			logger.FieldJobID, jobID,
			"list_id", outcome.Result.ListID,
			"txn_id", outcome.Result.TxnID,
		)
	} else {
		s.log.Warnw("Job failed",
			logger.FieldJobID, jobID,
			logger.FieldErrorCode, outcome.Code,
			logger.FieldError, outcome.Message,
		)
	}

	s.notify(jobID, outcome)
}

func (s *Service) notify(jobID string, outcome Outcome) {
	s.mu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()
	if len(observers) == 0 {
		return
	}

	job, err := s.queue.Get(jobID)
	if err != nil {
		s.log.Errorw("Failed to load settled job for observers", logger.FieldJobID, jobID, logger.FieldError, err)
		return
	}
	// The settle was ignored (job abandoned meanwhile); nothing to report
	if (outcome.Success && job.Status != jobs.StatusDone) || (!outcome.Success && job.Status != jobs.StatusError) {
		return
	}

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Errorw("Observer panicked", logger.FieldJobID, jobID, "panic", r)
				}
			}()
			if outcome.Success {
				o.JobSucceeded(job, outcome.Result)
			} else {
				o.JobFailed(job, outcome)
			}
		}()
	}
}

func (s *Service) progress() int {
	pending, err := s.queue.HasPending()
	if err != nil {
		s.log.Errorw("Failed to check for pending jobs", logger.FieldError, err)
		return ProgressDone
	}
	if pending {
		return ProgressMore
	}
	return ProgressDone
}

// recoverCall turns a panic in a SOAP method into a logged error. onPanic
// runs first so the method can still return its safe value.
func (s *Service) recoverCall(method string, onPanic func(error)) {
	r := recover()
	if r == nil {
		return
	}
	err := errors.Newf("panic: %v", r)
	s.log.Errorw("Recovered panic in Web Connector call",
		logger.FieldMethod, method,
		logger.FieldError, err,
	)
	if onPanic != nil {
		onPanic(err)
	}
}
