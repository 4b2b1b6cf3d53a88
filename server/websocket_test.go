package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/qbridge/jobs"
)

type wsEnvelope struct {
	Type   string              `json:"type"`
	Job    *jobs.Job           `json:"job"`
	Counts map[jobs.Status]int `json:"counts"`
}

func dialWS(t *testing.T, s *Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
}

func readWS(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg wsEnvelope
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketStreamsJobUpdates(t *testing.T) {
	s := newTestServer(t, nil)
	_, err := s.Queue().Enqueue(jobs.TypeCustomerQuery, nil, nil)
	require.NoError(t, err)

	conn, _, err := dialWS(t, s, nil)
	require.NoError(t, err)
	defer conn.Close()

	snapshot := readWS(t, conn)
	assert.Equal(t, "queue_snapshot", snapshot.Type)
	assert.Equal(t, 1, snapshot.Counts[jobs.StatusPending])

	job, err := s.Queue().Enqueue(jobs.TypeItemQuery, nil, nil)
	require.NoError(t, err)

	update := readWS(t, conn)
	assert.Equal(t, "job_update", update.Type)
	require.NotNil(t, update.Job)
	assert.Equal(t, job.ID, update.Job.ID)
	assert.Equal(t, jobs.StatusPending, update.Job.Status)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, nil)

	_, resp, err := dialWS(t, s, http.Header{"Origin": []string{"https://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocketClosedOnStop(t *testing.T) {
	s := newTestServer(t, nil)

	conn, _, err := dialWS(t, s, nil)
	require.NoError(t, err)
	defer conn.Close()
	readWS(t, conn)

	require.NoError(t, s.Stop())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
