package jobs

import (
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/qbridge/errors"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db), mock
}

var jobColumns = []string{
	"id", "type", "payload", "status", "result", "error", "metadata",
	"created_at", "updated_at", "started_at", "completed_at",
}

func TestSQLStoreOldestPendingQuery(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM qbwc_jobs WHERE status = ? ORDER BY seq ASC LIMIT 1`)).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("j1", "CustomerQuery", `{"maxReturned":100}`, "pending", nil, nil, `{"purpose":"sync"}`, now, now, nil, nil))

	job, err := store.OldestPending()
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, TypeCustomerQuery, job.Type)
	assert.Equal(t, "sync", job.Metadata.String("purpose"))
	assert.Nil(t, job.Result)
	assert.Nil(t, job.StartedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreOldestPendingNone(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM qbwc_jobs WHERE status = ?`)).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows(jobColumns))

	job, err := store.OldestPending()
	require.NoError(t, err)
	assert.Nil(t, job)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE qbwc_jobs`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(&Job{ID: "ghost", Status: StatusDone})
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM qbwc_jobs WHERE id = ?`)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get("ghost")
	assert.True(t, errors.IsNotFoundError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreQueryErrorIsWrapped(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT status, COUNT(*) FROM qbwc_jobs GROUP BY status`)).
		WillReturnError(errors.New("disk I/O error"))

	_, err := store.Counts()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count jobs")
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestSQLStoreResultRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM qbwc_jobs WHERE id = ?`)).
		WithArgs("j2").
		WillReturnRows(sqlmock.NewRows(jobColumns).
			AddRow("j2", "InvoiceAdd", `{}`, "done", `{"raw":"<ok/>","txnId":"1A-2"}`, nil, nil, now, now, now, now))

	job, err := store.Get("j2")
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Equal(t, "1A-2", job.Result.TxnID)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, now.Equal(*job.CompletedAt))
}
