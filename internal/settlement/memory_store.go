package settlement

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

// MemoryOrderStore is the in-memory OrderStore used in tests.
type MemoryOrderStore struct {
	mu        sync.RWMutex
	orders    []models.Order
	delayed   map[string]fixedpoint.Amount
	records   []models.RebalanceRecord
	byAccount map[string]int64
}

// NewMemoryOrderStore returns an empty in-memory order store.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		delayed:   make(map[string]fixedpoint.Amount),
		byAccount: make(map[string]int64),
	}
}

func (s *MemoryOrderStore) AppendOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Seq = int64(len(s.orders))
	o.AccountSeq = s.byAccount[o.Account]
	s.byAccount[o.Account]++
	s.orders = append(s.orders, *o)
	return nil
}

func (s *MemoryOrderStore) OverwriteOrder(_ context.Context, seq int64, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < 0 || seq >= int64(len(s.orders)) {
		return apperrors.ErrInvalidOrderIndex
	}
	existing := s.orders[seq]
	o.ID = existing.ID
	o.Seq = existing.Seq
	o.AccountSeq = existing.AccountSeq
	s.orders[seq] = *o
	return nil
}

func (s *MemoryOrderStore) OrderBySeq(_ context.Context, seq int64) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq < 0 || seq >= int64(len(s.orders)) {
		return nil, apperrors.ErrNoData
	}
	o := s.orders[seq]
	return &o, nil
}

func (s *MemoryOrderStore) MaxSeq(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.orders)) - 1, nil
}

func (s *MemoryOrderStore) OrdersByAccount(_ context.Context, account string, limit, offset int) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.Account == account {
			out = append(out, o)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryOrderStore) LastCreationAt(_ context.Context, account string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.orders) - 1; i >= 0; i-- {
		if s.orders[i].Account == account && s.orders[i].Type == models.OrderCreate {
			return s.orders[i].CreatedAt, nil
		}
	}
	return time.Time{}, apperrors.ErrNoData
}

func (s *MemoryOrderStore) DelayedRedemption(_ context.Context, account string) (fixedpoint.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delayed[account], nil
}

func (s *MemoryOrderStore) SetDelayedRedemption(_ context.Context, account string, amount fixedpoint.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount.IsZero() {
		delete(s.delayed, account)
		return nil
	}
	s.delayed[account] = amount
	return nil
}

func (s *MemoryOrderStore) TotalDelayedRedemption(_ context.Context) (fixedpoint.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := fixedpoint.Zero()
	for _, amt := range s.delayed {
		var err error
		if total, err = fixedpoint.Add(total, amt); err != nil {
			return fixedpoint.Zero(), err
		}
	}
	return total, nil
}

func (s *MemoryOrderStore) AppendRebalanceRecord(_ context.Context, r *models.RebalanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uint(len(s.records) + 1)
	s.records = append(s.records, *r)
	return nil
}

func (s *MemoryOrderStore) RebalanceRecords(_ context.Context, limit int) ([]models.RebalanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	var out []models.RebalanceRecord
	for i := n - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}
