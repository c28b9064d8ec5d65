package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/accordhq/accord/negotiation"
	"github.com/accordhq/accord/negotiation/store"
	"github.com/accordhq/accord/types"
)

func newSQLiteStore(t *testing.T) negotiation.ConflictStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	s, err := store.NewGormStore(db, store.DefaultGormConfig(), nil)
	require.NoError(t, err)
	return s
}

func newRedisTestStore(t *testing.T) negotiation.ConflictStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewRedisStoreFromClient(client, store.DefaultRedisConfig(), nil)
}

// conflictStores returns one freshly constructed store per backend.
func conflictStores(t *testing.T) map[string]negotiation.ConflictStore {
	t.Helper()
	return map[string]negotiation.ConflictStore{
		"memory": store.NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
		"redis":  newRedisTestStore(t),
	}
}

func mustConflict(t *testing.T, description string) *negotiation.Conflict {
	t.Helper()
	c, err := negotiation.NewConflict(negotiation.ConflictScheduleClash, negotiation.SeverityMedium,
		description,
		[]string{"alpha", "beta"},
		map[string]string{"alpha": "keep 9am", "beta": "keep 10am"})
	require.NoError(t, err)
	return c
}

func TestStoreCreateAndGet(t *testing.T) {
	for name, st := range conflictStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := mustConflict(t, "create and get")
			require.NoError(t, st.Create(ctx, c))

			got, err := st.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, c.ID, got.ID)
			assert.Equal(t, negotiation.StatusDetected, got.Status)
			assert.Equal(t, c.AgentsInvolved, got.AgentsInvolved)
			assert.Equal(t, c.ConflictingPositions, got.ConflictingPositions)
		})
	}
}

func TestStoreCreateDuplicateFails(t *testing.T) {
	for name, st := range conflictStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := mustConflict(t, "duplicate")
			require.NoError(t, st.Create(ctx, c))

			err := st.Create(ctx, c)
			require.Error(t, err)
			assert.Equal(t, types.ErrPersistence, types.GetErrorCode(err))
		})
	}
}

func TestStoreGetUnknownConflict(t *testing.T) {
	for name, st := range conflictStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get(context.Background(), "missing")
			require.Error(t, err)
			assert.Equal(t, types.ErrConflictNotFound, types.GetErrorCode(err))
		})
	}
}

func TestStoreMutateCommitsOnSuccess(t *testing.T) {
	for name, st := range conflictStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := mustConflict(t, "mutate commit")
			require.NoError(t, st.Create(ctx, c))

			updated, err := st.Mutate(ctx, c.ID, func(c *negotiation.Conflict) error {
				return c.Transition(negotiation.StatusNegotiating, negotiation.ActorOrchestrator, "attempt_1", nil)
			})
			require.NoError(t, err)
			assert.Equal(t, negotiation.StatusNegotiating, updated.Status)

			got, err := st.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, negotiation.StatusNegotiating, got.Status)
			assert.NotEmpty(t, got.ResolutionLog)
		})
	}
}

func TestStoreMutateRollsBackOnError(t *testing.T) {
	for name, st := range conflictStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := mustConflict(t, "mutate rollback")
			require.NoError(t, st.Create(ctx, c))

			boom := errors.New("fn rejected the mutation")
			_, err := st.Mutate(ctx, c.ID, func(c *negotiation.Conflict) error {
				c.Status = negotiation.StatusFailed
				c.AppendLog("test", "should_not_persist", "", nil)
				return boom
			})
			require.ErrorIs(t, err, boom)

			got, err := st.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, negotiation.StatusDetected, got.Status, "a failed mutation must persist nothing")
			assert.Empty(t, got.ResolutionLog)
		})
	}
}

func TestStoreMutateUnknownConflict(t *testing.T) {
	for name, st := range conflictStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Mutate(context.Background(), "missing", func(*negotiation.Conflict) error {
				t.Fatal("fn must not run for an unknown conflict")
				return nil
			})
			require.Error(t, err)
			assert.Equal(t, types.ErrConflictNotFound, types.GetErrorCode(err))
		})
	}
}

func TestStoreListFiltersAndOrders(t *testing.T) {
	for name, st := range conflictStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := mustConflict(t, "first detected")
			first.DetectedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
			second := mustConflict(t, "second detected")
			second.DetectedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			third := mustConflict(t, "third detected")
			third.DetectedAt = time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

			// Insert out of order; List must sort by detection time.
			for _, c := range []*negotiation.Conflict{second, third, first} {
				require.NoError(t, st.Create(ctx, c))
			}
			_, err := st.Mutate(ctx, second.ID, func(c *negotiation.Conflict) error {
				return c.Transition(negotiation.StatusNegotiating, negotiation.ActorOrchestrator, "attempt_1", nil)
			})
			require.NoError(t, err)

			all, err := st.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, first.ID, all[0].ID)
			assert.Equal(t, second.ID, all[1].ID)
			assert.Equal(t, third.ID, all[2].ID)

			negotiating, err := st.List(ctx, negotiation.StatusNegotiating)
			require.NoError(t, err)
			require.Len(t, negotiating, 1)
			assert.Equal(t, second.ID, negotiating[0].ID)

			empty, err := st.List(ctx, negotiation.StatusFailed)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestMemoryStoreHandsOutCopies(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c := mustConflict(t, "isolation")
	require.NoError(t, st.Create(ctx, c))

	// Mutating what Get returned must not leak into the stored conflict.
	got, err := st.Get(ctx, c.ID)
	require.NoError(t, err)
	got.Status = negotiation.StatusFailed
	got.ConflictingPositions["alpha"] = "tampered"
	got.AppendLog("test", "tampered", "", nil)

	fresh, err := st.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusDetected, fresh.Status)
	assert.Equal(t, "keep 9am", fresh.ConflictingPositions["alpha"])
	assert.Empty(t, fresh.ResolutionLog)
}
