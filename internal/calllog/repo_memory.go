package calllog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo keeps call records in memory. It backs deployments without a
// configured database and the tests.
type MemoryRepo struct {
	mu       sync.Mutex
	calls    map[string]CallRecord
	order    []string
	attempts map[string][]TransferAttempt
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		calls:    make(map[string]CallRecord),
		attempts: make(map[string][]TransferAttempt),
	}
}

func (r *MemoryRepo) CreateCall(ctx context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[rec.ID]; exists {
		return fmt.Errorf("calllog: duplicate call id %q", rec.ID)
	}
	r.calls[rec.ID] = rec
	r.order = append(r.order, rec.ID)
	return nil
}

func (r *MemoryRepo) FinishCall(ctx context.Context, callID string, endedAt time.Time, outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.calls[callID]
	if !ok {
		return fmt.Errorf("calllog: unknown call id %q", callID)
	}
	rec.EndedAt = &endedAt
	rec.Outcome = outcome
	r.calls[callID] = rec
	return nil
}

func (r *MemoryRepo) AppendAttempt(ctx context.Context, a TransferAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[a.CallID]; !ok {
		return fmt.Errorf("calllog: unknown call id %q", a.CallID)
	}
	r.attempts[a.CallID] = append(r.attempts[a.CallID], a)
	return nil
}

func (r *MemoryRepo) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0, len(r.calls))
	for _, id := range r.order {
		out = append(out, r.calls[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) AttemptsForCall(ctx context.Context, callID string) ([]TransferAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TransferAttempt, len(r.attempts[callID]))
	copy(out, r.attempts[callID])
	return out, nil
}
