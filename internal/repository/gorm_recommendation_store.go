package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
)

// RecommendationModel is the recommendations table. The partial unique
// index keeps one ACTIVE row per symbol and strategy.
type RecommendationModel struct {
	ID               string                      `gorm:"primaryKey;size:64"`
	Symbol           string                      `gorm:"size:32;not null;index:idx_rec_symbol;uniqueIndex:idx_rec_one_active,where:status = 'ACTIVE'"`
	Name             string                      `gorm:"size:128"`
	AnchorDate       time.Time                   `gorm:"not null"`
	AnchorClose      float64                     `gorm:"not null"`
	Strategy         string                      `gorm:"size:16;not null;uniqueIndex:idx_rec_one_active,where:status = 'ACTIVE'"`
	Score            float64                     `gorm:"not null"`
	ScoreLabel       string                      `gorm:"size:16"`
	Status           string                      `gorm:"size:16;not null;index:idx_rec_status"`
	BrokenAt         *time.Time
	BrokenReturnPct  *float64
	ArchivedAt       *time.Time
	ArchiveReturnPct *float64
	ArchivePrice     *float64
	ArchiveReason    string `gorm:"size:32"`
	ArchivePhase     string `gorm:"size:16"`
	ReplacedBy       string `gorm:"size:64"`
	StatusChangedAt  time.Time
	LastPrice        float64
	LastReturnPct    float64
	LastEvaluatedAt  *time.Time
	Detail           models.RecommendationDetail `gorm:"serializer:json"`
	Version          int64                       `gorm:"not null;default:0"`
	CreatedAt        time.Time                   `gorm:"index:idx_rec_created"`
	UpdatedAt        time.Time
}

func (RecommendationModel) TableName() string {
	return "recommendations"
}

func toRecommendationModel(r models.RecommendationRecord) RecommendationModel {
	return RecommendationModel{
		ID:               r.ID,
		Symbol:           r.Symbol,
		Name:             r.Name,
		AnchorDate:       r.AnchorDate,
		AnchorClose:      r.AnchorClose,
		Strategy:         string(r.Strategy),
		Score:            r.Score,
		ScoreLabel:       r.ScoreLabel,
		Status:           string(r.Status),
		BrokenAt:         r.BrokenAt,
		BrokenReturnPct:  r.BrokenReturnPct,
		ArchivedAt:       r.ArchivedAt,
		ArchiveReturnPct: r.ArchiveReturnPct,
		ArchivePrice:     r.ArchivePrice,
		ArchiveReason:    string(r.ArchiveReason),
		ArchivePhase:     string(r.ArchivePhase),
		ReplacedBy:       r.ReplacedBy,
		StatusChangedAt:  r.StatusChangedAt,
		LastPrice:        r.LastPrice,
		LastReturnPct:    r.LastReturnPct,
		LastEvaluatedAt:  r.LastEvaluatedAt,
		Detail:           r.Detail,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
	}
}

func (m RecommendationModel) record() models.RecommendationRecord {
	return models.RecommendationRecord{
		ID:               m.ID,
		Symbol:           m.Symbol,
		Name:             m.Name,
		AnchorDate:       m.AnchorDate.UTC(),
		AnchorClose:      m.AnchorClose,
		Strategy:         models.Horizon(m.Strategy),
		Score:            m.Score,
		ScoreLabel:       m.ScoreLabel,
		Status:           models.Status(m.Status),
		BrokenAt:         utcPtr(m.BrokenAt),
		BrokenReturnPct:  m.BrokenReturnPct,
		ArchivedAt:       utcPtr(m.ArchivedAt),
		ArchiveReturnPct: m.ArchiveReturnPct,
		ArchivePrice:     m.ArchivePrice,
		ArchiveReason:    models.ArchiveReason(m.ArchiveReason),
		ArchivePhase:     models.ArchivePhase(m.ArchivePhase),
		ReplacedBy:       m.ReplacedBy,
		StatusChangedAt:  m.StatusChangedAt.UTC(),
		LastPrice:        m.LastPrice,
		LastReturnPct:    m.LastReturnPct,
		LastEvaluatedAt:  utcPtr(m.LastEvaluatedAt),
		Detail:           m.Detail,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// GormRecommendationStore persists recommendations with gorm. Every write
// runs in a transaction that re-reads the row and checks its version.
type GormRecommendationStore struct {
	db *gorm.DB
}

var _ domrepo.RecommendationStore = (*GormRecommendationStore)(nil)

// NewGormRecommendationStore uses db as is; call Migrate once at startup.
func NewGormRecommendationStore(db *gorm.DB) *GormRecommendationStore {
	return &GormRecommendationStore{db: db}
}

// Migrate creates or updates the recommendations table.
func (s *GormRecommendationStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&RecommendationModel{})
}

func (s *GormRecommendationStore) Upsert(ctx context.Context, rec *models.Recommendation) error {
	row := toRecommendationModel(rec.Record())
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, found, err := s.lockRow(tx, rec.ID)
		if err != nil {
			return err
		}
		if !found {
			if rec.Version != 0 {
				return fmt.Errorf("%w: %s not stored", models.ErrNotFound, rec.ID)
			}
			row.Version = 1
			return tx.Create(&row).Error
		}
		if cur.Version != rec.Version {
			return fmt.Errorf("%w: %s at %d, have %d", models.ErrStaleVersion, rec.ID, cur.Version, rec.Version)
		}
		if cur.AnchorClose != row.AnchorClose {
			return fmt.Errorf("%w: anchor close of %s cannot change", models.ErrInvariantViolation, rec.ID)
		}
		return s.update(tx, row)
	})
	if err != nil {
		return s.translate(err, row)
	}
	rec.Version++
	return nil
}

func (s *GormRecommendationStore) Transition(ctx context.Context, rec *models.Recommendation, from models.Status) error {
	row := toRecommendationModel(rec.Record())
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, found, err := s.lockRow(tx, rec.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", models.ErrNotFound, rec.ID)
		}
		if cur.Version != rec.Version || models.Status(cur.Status) != from {
			return fmt.Errorf("%w: %s at %d/%s, have %d/%s", models.ErrStaleVersion, rec.ID, cur.Version, cur.Status, rec.Version, from)
		}
		if !models.CanTransition(from, rec.Status()) {
			return fmt.Errorf("%w: %s -> %s on %s", models.ErrInvalidTransition, from, rec.Status(), rec.ID)
		}
		return s.update(tx, row)
	})
	if err != nil {
		return s.translate(err, row)
	}
	rec.Version++
	return nil
}

func (s *GormRecommendationStore) ReplaceActive(ctx context.Context, prior *models.Recommendation, from models.Status, next *models.Recommendation) error {
	old := toRecommendationModel(prior.Record())
	row := toRecommendationModel(next.Record())
	if next.Version != 0 {
		return fmt.Errorf("%w: %s already stored", models.ErrInvariantViolation, next.ID)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, found, err := s.lockRow(tx, prior.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", models.ErrNotFound, prior.ID)
		}
		if cur.Version != prior.Version || models.Status(cur.Status) != from {
			return fmt.Errorf("%w: %s at %d/%s, have %d/%s", models.ErrStaleVersion, prior.ID, cur.Version, cur.Status, prior.Version, from)
		}
		if !models.CanTransition(from, prior.Status()) {
			return fmt.Errorf("%w: %s -> %s on %s", models.ErrInvalidTransition, from, prior.Status(), prior.ID)
		}
		// the prior row leaves ACTIVE first so the unique index admits next
		if err := s.update(tx, old); err != nil {
			return err
		}
		row.Version = 1
		return tx.Create(&row).Error
	})
	if err != nil {
		return s.translate(err, row)
	}
	prior.Version++
	next.Version = 1
	return nil
}

func (s *GormRecommendationStore) lockRow(tx *gorm.DB, id string) (RecommendationModel, bool, error) {
	var cur RecommendationModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&cur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cur, false, nil
	}
	if err != nil {
		return cur, false, fmt.Errorf("load recommendation %s: %w", id, err)
	}
	return cur, true, nil
}

// update writes every column guarded by the expected version.
func (s *GormRecommendationStore) update(tx *gorm.DB, row RecommendationModel) error {
	expected := row.Version
	row.Version = expected + 1
	res := tx.Model(&RecommendationModel{}).
		Where("id = ? AND version = ?", row.ID, expected).
		Select("*").Omit("id", "created_at").
		Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s changed concurrently", models.ErrStaleVersion, row.ID)
	}
	return nil
}

func (s *GormRecommendationStore) translate(err error, row RecommendationModel) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s/%s already has an ACTIVE recommendation", models.ErrInvariantViolation, row.Symbol, row.Strategy)
	}
	return err
}

func (s *GormRecommendationStore) LoadActive(ctx context.Context, symbol string, strategy models.Horizon) ([]*models.Recommendation, error) {
	return s.find(s.db.WithContext(ctx).
		Where("symbol = ? AND strategy = ? AND status = ?", symbol, string(strategy), string(models.StatusActive)), 0)
}

func (s *GormRecommendationStore) ListOpen(ctx context.Context) ([]*models.Recommendation, error) {
	return s.find(s.db.WithContext(ctx).
		Where("status IN ?", []string{string(models.StatusActive), string(models.StatusBroken)}), 0)
}

func (s *GormRecommendationStore) List(ctx context.Context, f domrepo.RecommendationFilter) ([]*models.Recommendation, error) {
	q := s.db.WithContext(ctx)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Symbol != "" {
		q = q.Where("symbol = ?", f.Symbol)
	}
	if f.Strategy != "" {
		q = q.Where("strategy = ?", string(f.Strategy))
	}
	return s.find(q, f.Limit)
}

func (s *GormRecommendationStore) Get(ctx context.Context, id string) (*models.Recommendation, error) {
	var m RecommendationModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: recommendation %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get recommendation %s: %w", id, err)
	}
	return models.RestoreRecommendation(m.record())
}

func (s *GormRecommendationStore) find(q *gorm.DB, limit int) ([]*models.Recommendation, error) {
	q = q.Order("created_at DESC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []RecommendationModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	out := make([]*models.Recommendation, 0, len(rows))
	for _, m := range rows {
		rec, err := models.RestoreRecommendation(m.record())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
