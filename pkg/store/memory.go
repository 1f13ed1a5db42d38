package store

import (
	"sync"

	"github.com/NicolasHaas/caserelay/pkg/model"
)

// MemoryStore is the in-process PendingStore. Queues are unbounded and live
// until drained or the process exits.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string][]model.Message
	total  int
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		queues: make(map[string][]model.Message),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// Enqueue appends msg to the identity's queue.
func (s *MemoryStore) Enqueue(identity string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[identity] = append(s.queues[identity], msg)
	s.total++
	return nil
}

// DrainAndClear removes and returns the identity's queue.
func (s *MemoryStore) DrainAndClear(identity string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.queues[identity]
	if !ok {
		return nil, nil
	}
	delete(s.queues, identity)
	s.total -= len(msgs)
	return msgs, nil
}

// Len returns the queue length for identity.
func (s *MemoryStore) Len(identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[identity]), nil
}

// Total returns the number of queued messages.
func (s *MemoryStore) Total() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, nil
}
