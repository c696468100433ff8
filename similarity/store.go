package similarity

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists exemplars per agent.
type Store interface {
	// Save inserts or replaces an exemplar.
	Save(ctx context.Context, ex Exemplar) error
	// List returns the agent's processed exemplars, newest first. A limit of
	// zero or less returns all of them.
	List(ctx context.Context, agentID string, limit int) ([]Exemplar, error)
}

// MemoryStore is an in-process Store.
// All operations are thread-safe using RWMutex protection
type MemoryStore struct {
	mu        sync.RWMutex
	exemplars map[string]Exemplar
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{exemplars: make(map[string]Exemplar)}
}

// Save implements Store. Missing ids and timestamps are filled in.
func (s *MemoryStore) Save(_ context.Context, ex Exemplar) error {
	if ex.AgentID == "" {
		return fmt.Errorf("exemplar agent id cannot be empty")
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exemplars[ex.ID] = ex
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, agentID string, limit int) ([]Exemplar, error) {
	s.mu.RLock()
	out := make([]Exemplar, 0, len(s.exemplars))
	for _, ex := range s.exemplars {
		if ex.AgentID == agentID && ex.Processed {
			out = append(out, ex)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Exemplar) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
