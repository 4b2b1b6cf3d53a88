package jobs

import (
	"github.com/teranos/qbridge/errors"
)

// MemoryStore keeps jobs in process memory. Contents are lost on restart.
type MemoryStore struct {
	order []string
	byID  map[string]*Job
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Job)}
}

func (s *MemoryStore) Create(job *Job) error {
	if _, exists := s.byID[job.ID]; exists {
		return errors.Newf("job already exists: %s", job.ID)
	}
	s.byID[job.ID] = job.Clone()
	s.order = append(s.order, job.ID)
	return nil
}

func (s *MemoryStore) Get(id string) (*Job, error) {
	job, ok := s.byID[id]
	if !ok {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(job *Job) error {
	if _, ok := s.byID[job.ID]; !ok {
		return errors.NewNotFoundError("job not found: %s", job.ID)
	}
	s.byID[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) OldestPending() (*Job, error) {
	for _, id := range s.order {
		if job := s.byID[id]; job.Status == StatusPending {
			return job.Clone(), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) List(filter Filter) ([]*Job, error) {
	var out []*Job
	for _, id := range s.order {
		job := s.byID[id]
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, job.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Counts() (map[Status]int, error) {
	counts := make(map[Status]int, 4)
	for _, job := range s.byID {
		counts[job.Status]++
	}
	return counts, nil
}
