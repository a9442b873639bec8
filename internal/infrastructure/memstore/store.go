package memstore

import (
	"context"
	"sync"

	"ytfetch/internal/domain/download"
)

// Store keeps jobs in process memory. Callers always receive copies.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*download.Job
}

// New creates an empty in-memory job store.
func New() *Store {
	return &Store{jobs: make(map[string]*download.Job)}
}

func (s *Store) Create(_ context.Context, job download.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return download.ErrJobExists
	}
	stored := job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *Store) Get(_ context.Context, id string) (download.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return download.Job{}, download.ErrJobNotFound
	}
	return *job, nil
}

// Update runs mutate against a copy and stores it only when mutate succeeds.
func (s *Store) Update(_ context.Context, id string, mutate func(*download.Job) error) (download.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return download.Job{}, download.ErrJobNotFound
	}
	if job.State.IsTerminal() {
		return *job, download.ErrJobFinalized
	}

	next := *job
	if err := mutate(&next); err != nil {
		return *job, err
	}
	s.jobs[id] = &next
	return next, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return download.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *Store) List(_ context.Context) ([]download.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]download.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out, nil
}
