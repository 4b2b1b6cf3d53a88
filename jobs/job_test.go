package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job, err := NewJob(TypeItemAdd, json.RawMessage(`{}`), nil, now)
	require.NoError(t, err)

	id, err := uuid.Parse(job.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, now, job.CreatedAt)
	assert.Nil(t, job.StartedAt)
}

func TestJobLifecycle(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job, err := NewJob(TypeItemAdd, nil, nil, start)
	require.NoError(t, err)

	job.Start(start.Add(time.Second))
	assert.Equal(t, StatusProcessing, job.Status)
	require.NotNil(t, job.StartedAt)

	job.Fail("boom", start.Add(2*time.Second))
	assert.Equal(t, StatusError, job.Status)
	assert.Equal(t, "boom", job.Error)
	assert.True(t, job.Status.Terminal())
	assert.Equal(t, start.Add(2*time.Second), *job.CompletedAt)
}

func TestTypeKnown(t *testing.T) {
	for _, jt := range KnownTypes {
		assert.True(t, jt.Known(), jt)
	}
	assert.False(t, Type("VendorAdd").Known())
	assert.False(t, Type("").Known())
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus("pending"))
	assert.True(t, IsValidStatus("error"))
	assert.False(t, IsValidStatus("running"))
}

func TestJobJSONShape(t *testing.T) {
	job := &Job{
		ID:     "j1",
		Type:   TypeCustomerAdd,
		Status: StatusDone,
		Result: &Result{Raw: "<x/>", ListID: "80000001-1"},
	}
	b, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "done", decoded["status"])
	result := decoded["result"].(map[string]any)
	assert.Equal(t, "80000001-1", result["listId"])
	assert.NotContains(t, result, "txnId")
	assert.NotContains(t, decoded, "error")
}
