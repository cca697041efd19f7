package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
)

// MemoryRecommendationStore keeps records in a map. Tests use it in place
// of the gorm store.
type MemoryRecommendationStore struct {
	mu   sync.RWMutex
	rows map[string]models.RecommendationRecord
}

var _ domrepo.RecommendationStore = (*MemoryRecommendationStore)(nil)

// NewMemoryRecommendationStore returns an empty store.
func NewMemoryRecommendationStore() *MemoryRecommendationStore {
	return &MemoryRecommendationStore{rows: make(map[string]models.RecommendationRecord)}
}

func (s *MemoryRecommendationStore) Upsert(_ context.Context, rec *models.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := rec.Record()
	if cur, ok := s.rows[rec.ID]; ok {
		if cur.Version != rec.Version {
			return fmt.Errorf("%w: %s at %d, have %d", models.ErrStaleVersion, rec.ID, cur.Version, rec.Version)
		}
		if cur.AnchorClose != row.AnchorClose {
			return fmt.Errorf("%w: anchor close of %s cannot change", models.ErrInvariantViolation, rec.ID)
		}
	} else if rec.Version != 0 {
		return fmt.Errorf("%w: %s not stored", models.ErrNotFound, rec.ID)
	}
	if row.Status == models.StatusActive {
		for id, other := range s.rows {
			if id != rec.ID && other.Status == models.StatusActive && other.Symbol == row.Symbol && other.Strategy == row.Strategy {
				return fmt.Errorf("%w: %s/%s already ACTIVE as %s", models.ErrInvariantViolation, row.Symbol, row.Strategy, id)
			}
		}
	}
	row.Version++
	s.rows[rec.ID] = row
	rec.Version = row.Version
	return nil
}

func (s *MemoryRecommendationStore) Transition(_ context.Context, rec *models.Recommendation, from models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[rec.ID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, rec.ID)
	}
	if cur.Version != rec.Version || cur.Status != from {
		return fmt.Errorf("%w: %s at %d/%s, have %d/%s", models.ErrStaleVersion, rec.ID, cur.Version, cur.Status, rec.Version, from)
	}
	if !models.CanTransition(from, rec.Status()) {
		return fmt.Errorf("%w: %s -> %s on %s", models.ErrInvalidTransition, from, rec.Status(), rec.ID)
	}
	row := rec.Record()
	row.Version++
	s.rows[rec.ID] = row
	rec.Version = row.Version
	return nil
}

func (s *MemoryRecommendationStore) ReplaceActive(_ context.Context, prior *models.Recommendation, from models.Status, next *models.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[prior.ID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNotFound, prior.ID)
	}
	if cur.Version != prior.Version || cur.Status != from {
		return fmt.Errorf("%w: %s at %d/%s, have %d/%s", models.ErrStaleVersion, prior.ID, cur.Version, cur.Status, prior.Version, from)
	}
	if !models.CanTransition(from, prior.Status()) {
		return fmt.Errorf("%w: %s -> %s on %s", models.ErrInvalidTransition, from, prior.Status(), prior.ID)
	}
	if _, ok := s.rows[next.ID]; ok || next.Version != 0 {
		return fmt.Errorf("%w: %s already stored", models.ErrInvariantViolation, next.ID)
	}
	row := next.Record()
	if row.Status == models.StatusActive {
		for id, other := range s.rows {
			if id != prior.ID && other.Status == models.StatusActive && other.Symbol == row.Symbol && other.Strategy == row.Strategy {
				return fmt.Errorf("%w: %s/%s already ACTIVE as %s", models.ErrInvariantViolation, row.Symbol, row.Strategy, id)
			}
		}
	}

	old := prior.Record()
	old.Version++
	row.Version = 1
	s.rows[prior.ID] = old
	s.rows[next.ID] = row
	prior.Version = old.Version
	next.Version = row.Version
	return nil
}

func (s *MemoryRecommendationStore) LoadActive(_ context.Context, symbol string, strategy models.Horizon) ([]*models.Recommendation, error) {
	return s.filter(func(r models.RecommendationRecord) bool {
		return r.Status == models.StatusActive && r.Symbol == symbol && r.Strategy == strategy
	}, 0)
}

func (s *MemoryRecommendationStore) ListOpen(context.Context) ([]*models.Recommendation, error) {
	return s.filter(func(r models.RecommendationRecord) bool { return r.Status.Open() }, 0)
}

func (s *MemoryRecommendationStore) List(_ context.Context, f domrepo.RecommendationFilter) ([]*models.Recommendation, error) {
	return s.filter(func(r models.RecommendationRecord) bool {
		return (f.Status == "" || r.Status == f.Status) &&
			(f.Symbol == "" || r.Symbol == f.Symbol) &&
			(f.Strategy == "" || r.Strategy == f.Strategy)
	}, f.Limit)
}

func (s *MemoryRecommendationStore) Get(_ context.Context, id string) (*models.Recommendation, error) {
	s.mu.RLock()
	row, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recommendation %s", models.ErrNotFound, id)
	}
	return models.RestoreRecommendation(row)
}

func (s *MemoryRecommendationStore) filter(keep func(models.RecommendationRecord) bool, limit int) ([]*models.Recommendation, error) {
	s.mu.RLock()
	rows := make([]models.RecommendationRecord, 0, len(s.rows))
	for _, r := range s.rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	s.mu.RUnlock()

	// newest first, matching the SQL store
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]*models.Recommendation, 0, len(rows))
	for _, r := range rows {
		rec, err := models.RestoreRecommendation(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
