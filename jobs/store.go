package jobs

// Filter narrows List results. Zero value lists everything.
type Filter struct {
	Status Status
	Limit  int
}

// Store persists jobs. Implementations need not be safe for concurrent use;
// the Queue serializes every call.
type Store interface {
	// Create inserts a new job at the tail of the insertion order.
	Create(job *Job) error
	// Get returns the job or an error wrapping errors.ErrNotFound.
	Get(id string) (*Job, error)
	// Update overwrites a job's mutable fields.
	Update(job *Job) error
	// OldestPending returns the earliest-inserted pending job, or nil.
	OldestPending() (*Job, error)
	// List returns jobs in insertion order.
	List(filter Filter) ([]*Job, error)
	// Counts returns the number of jobs per status.
	Counts() (map[Status]int, error)
}
