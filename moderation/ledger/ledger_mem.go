package ledger

import (
	"context"
	"sync"
)

// MemLedger is an in-process Ledger for testing and single-node deployments
// that can tolerate losing counts on restart.
type MemLedger struct {
	lk     sync.Mutex
	counts map[string]int
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		counts: make(map[string]int),
	}
}

func (s *MemLedger) GetCount(ctx context.Context, groupID, userID int64) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.counts[recordKey(groupID, userID)], nil
}

func (s *MemLedger) IncrementAndGet(ctx context.Context, groupID, userID int64) (int, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	k := recordKey(groupID, userID)
	v := s.counts[k] + 1
	s.counts[k] = v
	return v, nil
}

func (s *MemLedger) Reset(ctx context.Context, groupID, userID int64) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	delete(s.counts, recordKey(groupID, userID))
	return nil
}
