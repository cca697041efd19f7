package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"FinScan/internal/domain/models"
	domrepo "FinScan/internal/domain/repository"
)

var storeFactories = map[string]func(t *testing.T) domrepo.RecommendationStore{
	"memory": func(*testing.T) domrepo.RecommendationStore {
		return NewMemoryRecommendationStore()
	},
	"gorm_sqlite": func(t *testing.T) domrepo.RecommendationStore {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Discard,
		})
		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })

		s := NewGormRecommendationStore(db)
		require.NoError(t, s.Migrate(context.Background()))
		return s
	},
}

// eachStore runs fn against every store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, s domrepo.RecommendationStore)) {
	for name, factory := range storeFactories {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fn(t, factory(t))
		})
	}
}

var storeDay = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func newRec(t *testing.T, id, symbol string, strategy models.Horizon, createdAt time.Time) *models.Recommendation {
	t.Helper()
	rec, err := models.NewRecommendation(models.NewRecommendationParams{
		ID:          id,
		Symbol:      symbol,
		Name:        symbol + " Corp",
		Strategy:    strategy,
		AnchorDate:  createdAt,
		AnchorClose: 50,
		Score:       7.5,
		Detail: models.RecommendationDetail{Swing: &models.SwingDetail{
			HorizonDetail: models.HorizonDetail{MAAligned: true, TrendUp: true},
			GapPct:        1.2,
		}},
		Now: createdAt,
	})
	require.NoError(t, err)
	return rec
}

func TestRecommendationStore_RoundTrip(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
		ctx := context.Background()
		rec := newRec(t, "r1", "AAA", models.HorizonSwing, storeDay)
		require.NoError(t, s.Upsert(ctx, rec))
		assert.EqualValues(t, 1, rec.Version)

		rec.Track(55, storeDay.Add(24*time.Hour))
		require.NoError(t, s.Upsert(ctx, rec))
		assert.EqualValues(t, 2, rec.Version)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, rec.Record(), got.Record())
		assert.InDelta(t, 10.0, got.LastReturnPct, 1e-9)
		assert.Equal(t, 50.0, got.AnchorClose())

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestRecommendationStore_StaleVersion(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
		ctx := context.Background()
		rec := newRec(t, "r1", "AAA", models.HorizonSwing, storeDay)
		require.NoError(t, s.Upsert(ctx, rec))

		stale, err := s.Get(ctx, "r1")
		require.NoError(t, err)

		rec.Track(51, storeDay)
		require.NoError(t, s.Upsert(ctx, rec))

		stale.Track(49, storeDay)
		err = s.Upsert(ctx, stale)
		assert.ErrorIs(t, err, models.ErrStaleVersion)
		assert.EqualValues(t, 1, stale.Version)

		ghost := newRec(t, "ghost", "BBB", models.HorizonSwing, storeDay)
		ghost.Version = 3
		assert.ErrorIs(t, s.Upsert(ctx, ghost), models.ErrNotFound)
	})
}

func TestRecommendationStore_OneActivePerSymbolAndStrategy(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
		ctx := context.Background()
		require.NoError(t, s.Upsert(ctx, newRec(t, "r1", "AAA", models.HorizonSwing, storeDay)))

		err := s.Upsert(ctx, newRec(t, "r2", "AAA", models.HorizonSwing, storeDay))
		assert.ErrorIs(t, err, models.ErrInvariantViolation)

		require.NoError(t, s.Upsert(ctx, newRec(t, "r3", "AAA", models.HorizonPosition, storeDay)))
		require.NoError(t, s.Upsert(ctx, newRec(t, "r4", "BBB", models.HorizonSwing, storeDay)))

		active, err := s.LoadActive(ctx, "AAA", models.HorizonSwing)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "r1", active[0].ID)
	})
}

func TestRecommendationStore_Transition(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
		ctx := context.Background()
		rec := newRec(t, "r1", "AAA", models.HorizonSwing, storeDay)
		require.NoError(t, s.Upsert(ctx, rec))

		brokenAt := storeDay.Add(48 * time.Hour)
		require.NoError(t, rec.MarkBroken(brokenAt, 45))
		require.NoError(t, s.Transition(ctx, rec, models.StatusActive))
		assert.EqualValues(t, 2, rec.Version)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusBroken, got.Status())
		snap, ok := got.Broken()
		require.True(t, ok)
		assert.Equal(t, brokenAt, snap.At)
		assert.InDelta(t, -10.0, snap.ReturnPct, 1e-9)

		// the caller claims the wrong prior status
		require.NoError(t, got.Retire(models.ReasonTTLExpired, brokenAt, 48, 2))
		err = s.Transition(ctx, got, models.StatusActive)
		assert.ErrorIs(t, err, models.ErrStaleVersion)

		require.NoError(t, s.Transition(ctx, got, models.StatusBroken))
		final, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusArchived, final.Status())
		arch, ok := final.Archived()
		require.True(t, ok)
		assert.Equal(t, models.ReasonTTLExpired, arch.Reason)
		assert.Equal(t, models.PhaseLoss, arch.Phase)

		unknown := newRec(t, "nope", "ZZZ", models.HorizonSwing, storeDay)
		require.NoError(t, unknown.MarkBroken(storeDay, 40))
		assert.ErrorIs(t, s.Transition(ctx, unknown, models.StatusActive), models.ErrNotFound)
	})
}

func TestRecommendationStore_ReplaceFreesSlot(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
		ctx := context.Background()
		prior := newRec(t, "old", "AAA", models.HorizonSwing, storeDay)
		require.NoError(t, s.Upsert(ctx, prior))

		next := newRec(t, "new", "AAA", models.HorizonSwing, storeDay.Add(24*time.Hour))
		require.NoError(t, prior.Replace(next.ID, storeDay.Add(24*time.Hour), 52, 2))
		require.NoError(t, s.Transition(ctx, prior, models.StatusActive))
		require.NoError(t, s.Upsert(ctx, next))

		got, err := s.Get(ctx, "old")
		require.NoError(t, err)
		assert.Equal(t, models.StatusReplaced, got.Status())
		assert.Equal(t, "new", got.ReplacedBy())

		open, err := s.ListOpen(ctx)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "new", open[0].ID)
	})
}

func TestRecommendationStore_ReplaceActive(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
		ctx := context.Background()
		prior := newRec(t, "old", "AAA", models.HorizonSwing, storeDay)
		require.NoError(t, s.Upsert(ctx, prior))

		next := newRec(t, "new", "AAA", models.HorizonSwing, storeDay.Add(24*time.Hour))
		require.NoError(t, prior.Replace(next.ID, storeDay.Add(24*time.Hour), 52, 2))
		require.NoError(t, s.ReplaceActive(ctx, prior, models.StatusActive, next))
		assert.Equal(t, int64(2), prior.Version)
		assert.Equal(t, int64(1), next.Version)

		got, err := s.Get(ctx, "old")
		require.NoError(t, err)
		assert.Equal(t, models.StatusReplaced, got.Status())
		assert.Equal(t, "new", got.ReplacedBy())

		active, err := s.LoadActive(ctx, "AAA", models.HorizonSwing)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "new", active[0].ID)
	})
}

func TestRecommendationStore_ReplaceActiveWritesNothingOnFailure(t *testing.T) {
	t.Parallel()

	t.Run("insert fails", func(t *testing.T) {
		t.Parallel()
		eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
			ctx := context.Background()
			prior := newRec(t, "old", "AAA", models.HorizonSwing, storeDay)
			require.NoError(t, s.Upsert(ctx, prior))
			require.NoError(t, s.Upsert(ctx, newRec(t, "taken", "BBB", models.HorizonSwing, storeDay)))

			next := newRec(t, "taken", "AAA", models.HorizonSwing, storeDay.Add(24*time.Hour))
			require.NoError(t, prior.Replace(next.ID, storeDay.Add(24*time.Hour), 52, 2))
			err := s.ReplaceActive(ctx, prior, models.StatusActive, next)
			assert.ErrorIs(t, err, models.ErrInvariantViolation)
			assert.Equal(t, int64(1), prior.Version)
			assert.Zero(t, next.Version)

			got, err := s.Get(ctx, "old")
			require.NoError(t, err)
			assert.Equal(t, models.StatusActive, got.Status())
			assert.Empty(t, got.ReplacedBy())
			assert.Equal(t, int64(1), got.Version)

			taken, err := s.Get(ctx, "taken")
			require.NoError(t, err)
			assert.Equal(t, "BBB", taken.Symbol)
		})
	})

	t.Run("stale prior", func(t *testing.T) {
		t.Parallel()
		eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
			ctx := context.Background()
			prior := newRec(t, "old", "AAA", models.HorizonSwing, storeDay)
			require.NoError(t, s.Upsert(ctx, prior))
			stale, err := s.Get(ctx, "old")
			require.NoError(t, err)
			require.NoError(t, prior.Reinforce(8, prior.Detail))
			require.NoError(t, s.Upsert(ctx, prior))

			next := newRec(t, "new", "AAA", models.HorizonSwing, storeDay.Add(24*time.Hour))
			require.NoError(t, stale.Replace(next.ID, storeDay.Add(24*time.Hour), 52, 2))
			err = s.ReplaceActive(ctx, stale, models.StatusActive, next)
			assert.ErrorIs(t, err, models.ErrStaleVersion)

			_, err = s.Get(ctx, "new")
			assert.ErrorIs(t, err, models.ErrNotFound)
			active, err := s.LoadActive(ctx, "AAA", models.HorizonSwing)
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, "old", active[0].ID)
		})
	})
}

func TestRecommendationStore_ListOpenSkipsTerminal(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
		ctx := context.Background()
		active := newRec(t, "a", "AAA", models.HorizonSwing, storeDay)
		broken := newRec(t, "b", "BBB", models.HorizonSwing, storeDay)
		archived := newRec(t, "c", "CCC", models.HorizonSwing, storeDay)
		for _, r := range []*models.Recommendation{active, broken, archived} {
			require.NoError(t, s.Upsert(ctx, r))
		}
		require.NoError(t, broken.MarkBroken(storeDay, 44))
		require.NoError(t, s.Transition(ctx, broken, models.StatusActive))
		require.NoError(t, archived.Retire(models.ReasonStopLossMomentum, storeDay, 40, 2))
		require.NoError(t, s.Transition(ctx, archived, models.StatusActive))

		open, err := s.ListOpen(ctx)
		require.NoError(t, err)
		ids := make([]string, 0, len(open))
		for _, r := range open {
			ids = append(ids, r.ID)
		}
		assert.ElementsMatch(t, []string{"a", "b"}, ids)
	})
}

func TestRecommendationStore_ListFilters(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			sym := fmt.Sprintf("S%d", i)
			require.NoError(t, s.Upsert(ctx, newRec(t, "r"+sym, sym, models.HorizonSwing, storeDay.AddDate(0, 0, i))))
		}
		require.NoError(t, s.Upsert(ctx, newRec(t, "rP", "S0", models.HorizonPosition, storeDay)))

		all, err := s.List(ctx, domrepo.RecommendationFilter{})
		require.NoError(t, err)
		require.Len(t, all, 6)
		assert.Equal(t, "rS4", all[0].ID, "newest first")

		limited, err := s.List(ctx, domrepo.RecommendationFilter{Strategy: models.HorizonSwing, Limit: 2})
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, []string{"rS4", "rS3"}, []string{limited[0].ID, limited[1].ID})

		bySymbol, err := s.List(ctx, domrepo.RecommendationFilter{Symbol: "S0"})
		require.NoError(t, err)
		assert.Equal(t, []string{"rP", "rS0"}, []string{bySymbol[0].ID, bySymbol[1].ID})

		none, err := s.List(ctx, domrepo.RecommendationFilter{Status: models.StatusArchived})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestRecommendationStore_AnchorCloseIsImmutable(t *testing.T) {
	t.Parallel()
	eachStore(t, func(t *testing.T, s domrepo.RecommendationStore) {
		ctx := context.Background()
		rec := newRec(t, "r1", "AAA", models.HorizonSwing, storeDay)
		require.NoError(t, s.Upsert(ctx, rec))

		row := rec.Record()
		row.AnchorClose = 60
		tampered, err := models.RestoreRecommendation(row)
		require.NoError(t, err)
		assert.ErrorIs(t, s.Upsert(ctx, tampered), models.ErrInvariantViolation)

		got, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 50.0, got.AnchorClose())
	})
}
