package jobs

import (
	"database/sql"
	"encoding/json"

	"github.com/teranos/qbridge/errors"
)

const jobSelectColumns = `id, type, payload, status, result, error, metadata,
	created_at, updated_at, started_at, completed_at`

// SQLStore persists jobs in the qbwc_jobs table (see db/sqlite/migrations).
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over a migrated database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(job *Job) error {
	result, metadata, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO qbwc_jobs (
			id, type, payload, status, result, error, metadata,
			created_at, updated_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		job.ID,
		string(job.Type),
		string(job.Payload),
		string(job.Status),
		result,
		nullString(job.Error),
		metadata,
		job.CreatedAt,
		job.UpdatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

func (s *SQLStore) Get(id string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM qbwc_jobs WHERE id = ?`

	job, err := scanJob(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

func (s *SQLStore) Update(job *Job) error {
	result, metadata, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE qbwc_jobs
		SET status = ?,
		    result = ?,
		    error = ?,
		    metadata = ?,
		    updated_at = ?,
		    started_at = ?,
		    completed_at = ?
		WHERE id = ?
	`

	res, err := s.db.Exec(query,
		string(job.Status),
		result,
		nullString(job.Error),
		metadata,
		job.UpdatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.NewNotFoundError("job not found: %s", job.ID)
	}
	return nil
}

func (s *SQLStore) OldestPending() (*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM qbwc_jobs WHERE status = ? ORDER BY seq ASC LIMIT 1`

	job, err := scanJob(s.db.QueryRow(query, string(StatusPending)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get oldest pending job")
	}
	return job, nil
}

func (s *SQLStore) List(filter Filter) ([]*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM qbwc_jobs`
	var args []interface{}

	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY seq ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}
	return out, nil
}

func (s *SQLStore) Counts() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM qbwc_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[Status]int, 4)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}
	return counts, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job                    Job
		jobType, status        string
		payload                string
		result, errMsg, meta   sql.NullString
		startedAt, completedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&jobType,
		&payload,
		&status,
		&result,
		&errMsg,
		&meta,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Type = Type(jobType)
	job.Status = Status(status)
	job.Payload = json.RawMessage(payload)
	job.Error = errMsg.String

	if result.Valid && result.String != "" {
		var r Result
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal result for job %s", job.ID)
		}
		job.Result = &r
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &job.Metadata); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal metadata for job %s", job.ID)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}

func marshalJobFields(job *Job) (result, metadata sql.NullString, err error) {
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return result, metadata, errors.Wrap(err, "failed to marshal result")
		}
		result = sql.NullString{String: string(b), Valid: true}
	}
	if len(job.Metadata) > 0 {
		b, err := json.Marshal(job.Metadata)
		if err != nil {
			return result, metadata, errors.Wrap(err, "failed to marshal metadata")
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}
	return result, metadata, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
