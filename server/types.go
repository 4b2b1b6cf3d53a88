package server

import (
	"time"

	"github.com/teranos/qbridge/jobs"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100
	// MaxClientMessageQueueSize is the size of per-client message queues
	MaxClientMessageQueueSize = 256
	// ShutdownTimeout is how long to wait for graceful shutdown
	ShutdownTimeout = 15 * time.Second
	// MaxSOAPBodyBytes bounds a single Web Connector request; query
	// responses with many records can be several megabytes.
	MaxSOAPBodyBytes = 32 << 20
	// MaxJSONBodyBytes bounds REST request bodies
	MaxJSONBodyBytes = 1 << 20
)

// ServerState represents the server lifecycle state
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

// JobUpdateMessage is pushed to websocket clients whenever a job changes
type JobUpdateMessage struct {
	Type string    `json:"type"` // "job_update"
	Job  *jobs.Job `json:"job"`
}

// QueueSnapshotMessage is the first message on every websocket connection
type QueueSnapshotMessage struct {
	Type    string              `json:"type"` // "queue_snapshot"
	Counts  map[jobs.Status]int `json:"counts"`
	Version string              `json:"version"`
}

// EnqueueResponse is returned by every enqueue endpoint
type EnqueueResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// QueueResponse is returned by GET /api/queue
type QueueResponse struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Counts  map[jobs.Status]int `json:"counts"`
	Queue   []*jobs.Job         `json:"queue"`
}

// JobResponse is returned by the single-job endpoints
type JobResponse struct {
	Success bool      `json:"success"`
	Job     *jobs.Job `json:"job"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Pending       int    `json:"pending"`
	Processing    int    `json:"processing"`
	SessionActive bool   `json:"session_active"`

	// InFlight is the job awaiting a QuickBooks response. With no open
	// round it is stuck, and Status reports "stalled".
	InFlight *InFlightJob `json:"in_flight,omitempty"`
}

// InFlightJob identifies the processing job in a health report
type InFlightJob struct {
	ID        string     `json:"id"`
	Type      jobs.Type  `json:"type"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}
