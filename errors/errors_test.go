package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	original := New("disk full")
	wrapped := Wrapf(original, "failed to persist job %s", "0192")

	assert.Contains(t, wrapped.Error(), "failed to persist job 0192")
	assert.Contains(t, wrapped.Error(), "disk full")
	assert.True(t, Is(wrapped, original))
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func TestHintsAndDetailsSurviveWrapping(t *testing.T) {
	err := NewInvalidRequestError("fullName is required")
	err = WithHint(err, "send {\"fullName\": \"...\"}")
	err = WithDetail(err, "endpoint: /api/customers")
	err = Wrap(err, "enqueue CustomerAdd")

	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, GetAllHints(err), "send {\"fullName\": \"...\"}")
	assert.Contains(t, GetAllDetails(err), "endpoint: /api/customers")
}

func TestSentinelHelpers(t *testing.T) {
	notFound := NewNotFoundError("job %s", "abc")
	assert.True(t, IsNotFoundError(notFound))
	assert.False(t, IsInvalidRequestError(notFound))
	assert.Contains(t, notFound.Error(), "job abc")

	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("not found")), "only the sentinel counts, not the text")
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")
	require.NotNil(t, err)
	assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")
}

func ExampleWrap() {
	baseErr := New("connection refused")
	err := Wrap(baseErr, "failed to open job store")
	fmt.Println(err)
	// Output: failed to open job store: connection refused
}
