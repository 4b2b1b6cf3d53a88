package qbwc

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionLifecycle(t *testing.T) {
	s := NewSession()
	assert.False(t, s.Active())
	assert.False(t, s.Valid(""), "empty ticket never matches an idle session")
	assert.True(t, s.OpenedAt().IsZero())

	ticket := s.Open()
	assert.True(t, strings.HasPrefix(ticket, "ticket_"))
	assert.True(t, s.Active())
	assert.True(t, s.Valid(ticket))
	assert.False(t, s.Valid(ticket+"x"))
	assert.False(t, s.OpenedAt().IsZero())

	s.Track("job-1")
	assert.Equal(t, "job-1", s.InFlight())

	s.Close()
	assert.False(t, s.Active())
	assert.False(t, s.Valid(ticket))
	assert.Empty(t, s.InFlight())
}

func TestSessionReopenReplacesTicket(t *testing.T) {
	s := NewSession()
	first := s.Open()
	s.Track("job-1")

	second := s.Open()
	assert.NotEqual(t, first, second)
	assert.False(t, s.Valid(first))
	assert.True(t, s.Valid(second))
	assert.Empty(t, s.InFlight())
}

func TestSessionTicketsAreUniqueWithinOneMillisecond(t *testing.T) {
	s := NewSession()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ticket := s.Open()
		assert.False(t, seen[ticket])
		seen[ticket] = true
	}
}

func TestSessionTakeInFlight(t *testing.T) {
	s := NewSession()
	s.Track("job-1")
	assert.Equal(t, "job-1", s.TakeInFlight())
	assert.Empty(t, s.TakeInFlight())
}

func TestSessionLastErrorSurvivesClose(t *testing.T) {
	s := NewSession()
	s.Open()
	s.SetLastError("QB Error 0x1: boom")
	s.Close()
	assert.Equal(t, "QB Error 0x1: boom", s.LastError())
}
