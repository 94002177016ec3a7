package services

import (
	"context"
	"sync"
	"time"

	"github.com/cabepi/lab-pbm-senasa/monitoring"
	"github.com/cabepi/lab-pbm-senasa/v1/models"
)

// WorkflowStore keeps workflow snapshots between steps and serializes the
// steps of one transaction.
type WorkflowStore interface {
	// Get returns ErrWorkflowNotFound when there is no live snapshot
	Get(ctx context.Context, transactionID string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	// Acquire returns ErrWorkflowBusy when another step holds the transaction
	Acquire(ctx context.Context, transactionID string) (release func(), err error)
}

const (
	memoryBackend = "memory"
	// sweepInterval bounds how often Save scans for expired snapshots
	sweepInterval = time.Minute
)

type memoryEntry struct {
	workflow  models.Workflow
	expiresAt time.Time
}

// MemoryWorkflowStore is the single-process WorkflowStore
type MemoryWorkflowStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
	locks   map[string]struct{}
	swept   time.Time
}

// NewMemoryWorkflowStore creates a store whose snapshots expire after ttl (0 means never)
func NewMemoryWorkflowStore(ttl time.Duration) *MemoryWorkflowStore {
	return &MemoryWorkflowStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]struct{}),
	}
}

// Get returns a copy of the snapshot
func (s *MemoryWorkflowStore) Get(ctx context.Context, transactionID string) (*models.Workflow, error) {
	s.mu.Lock()
	entry, ok := s.entries[transactionID]
	if ok && s.ttl > 0 && s.now().After(entry.expiresAt) {
		delete(s.entries, transactionID)
		ok = false
	}
	s.mu.Unlock()

	monitoring.RecordStoreLookup(ctx, memoryBackend, ok)
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	wf := entry.workflow
	return &wf, nil
}

// Save stores a copy of the snapshot and refreshes its expiry. Expired
// snapshots of other transactions are dropped on the way.
func (s *MemoryWorkflowStore) Save(ctx context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	s.entries[workflow.TransactionID] = memoryEntry{
		workflow:  *workflow,
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

func (s *MemoryWorkflowStore) sweepLocked(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.swept) < sweepInterval {
		return
	}
	s.swept = now
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}

// Acquire takes the per-transaction lock without waiting
func (s *MemoryWorkflowStore) Acquire(ctx context.Context, transactionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.locks[transactionID]; held {
		return nil, ErrWorkflowBusy
	}
	s.locks[transactionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.locks, transactionID)
			s.mu.Unlock()
		})
	}, nil
}
