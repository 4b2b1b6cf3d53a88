package qbwc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the single Web Connector session. It holds the current ticket,
// the id of the job sent in this round, and the last error reported to the
// connector. The zero ticket means idle.
type Session struct {
	mu        sync.Mutex
	ticket    string
	openedAt  time.Time
	inFlight  string
	lastError string
	now       func() time.Time
}

// NewSession creates an idle session
func NewSession() *Session {
	return &Session{now: time.Now}
}

// Open mints a fresh ticket, replacing any previous one.
func (s *Session) Open() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.ticket = fmt.Sprintf("ticket_%d_%s", now.UnixMilli(), uuid.NewString())
	s.openedAt = now
	s.inFlight = ""
	return s.ticket
}

// Valid reports whether ticket is the current ticket.
func (s *Session) Valid(ticket string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ticket != "" && ticket == s.ticket
}

// Active reports whether a ticket is outstanding.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ticket != ""
}

// OpenedAt returns when the current ticket was minted; zero when idle.
func (s *Session) OpenedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticket == "" {
		return time.Time{}
	}
	return s.openedAt
}

// Close invalidates the ticket and forgets the in-flight job.
// The last error survives so a later getLastError can still read it.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticket = ""
	s.inFlight = ""
}

// Track records the job sent in this round.
func (s *Session) Track(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = jobID
}

// InFlight returns the job sent in this round, or "".
func (s *Session) InFlight() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inFlight
}

// ClearInFlight forgets the in-flight job.
func (s *Session) ClearInFlight() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = ""
}

// TakeInFlight returns the in-flight job id and clears it in one step.
func (s *Session) TakeInFlight() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.inFlight
	s.inFlight = ""
	return id
}

func (s *Session) SetLastError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = msg
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastError
}
