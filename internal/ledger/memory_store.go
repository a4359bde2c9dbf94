package ledger

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/velora-fi/poolengine/common/errors"
	"github.com/velora-fi/poolengine/pkg/fixedpoint"
	"github.com/velora-fi/poolengine/pkg/models"
)

// MemoryStore is the in-memory Store used in tests and single-process
// simulation runs.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots []models.Snapshot
	brackets  []models.FeeBracket
	finalRate fixedpoint.Amount
	nextID    uint
}

// NewMemoryStore returns an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) AppendSnapshot(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.ID = s.nextID
	s.nextID++
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	s.snapshots = append(s.snapshots, *snap)
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.snapshots) == 0 {
		return nil, apperrors.ErrNoData
	}
	snap := s.snapshots[len(s.snapshots)-1]
	return &snap, nil
}

func (s *MemoryStore) SnapshotsForDay(_ context.Context, dayKey int) ([]models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Snapshot
	for _, snap := range s.snapshots {
		if snap.DayKey == dayKey {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *MemoryStore) Brackets(_ context.Context) ([]models.FeeBracket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeeBracket, len(s.brackets))
	copy(out, s.brackets)
	return out, nil
}

func (s *MemoryStore) SaveBracket(_ context.Context, b *models.FeeBracket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.UpdatedAt = time.Now()
	for i := range s.brackets {
		if s.brackets[i].Position == b.Position {
			s.brackets[i] = *b
			return nil
		}
	}
	s.brackets = append(s.brackets, *b)
	return nil
}

func (s *MemoryStore) DeleteBracket(_ context.Context, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.brackets {
		if s.brackets[i].Position == position {
			s.brackets = append(s.brackets[:i], s.brackets[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) FinalRate(_ context.Context) (fixedpoint.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalRate, nil
}

func (s *MemoryStore) SetFinalRate(_ context.Context, rate fixedpoint.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalRate = rate
	return nil
}
