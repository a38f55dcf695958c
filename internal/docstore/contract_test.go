package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("Get missing document", func(t *testing.T) {
		store := newStore(t)

		doc, err := store.Get(context.Background(), "things", "missing")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, doc)
	})

	t.Run("Set then Get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		err := store.Set(ctx, "things", "a", map[string]any{"name": "first", "count": 2})
		require.NoError(t, err)

		doc, err := store.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.Equal(t, "a", doc.ID)
		assert.Equal(t, "first", doc.Data["name"])
		assert.Equal(t, json.Number("2"), doc.Data["count"])
		assert.False(t, doc.CreateTime.IsZero())
	})

	t.Run("Set merge and Update", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "things", "a", map[string]any{"name": "first"}))
		require.NoError(t, store.Set(ctx, "things", "a", map[string]any{"tags": ArrayUnion("x")}, Merge()))
		require.NoError(t, store.Update(ctx, "things", "a", []Update{
			{Path: "tags", Value: ArrayUnion("x", "y")},
			{Path: "name", Value: Delete},
		}))

		doc, err := store.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"tags": []any{"x", "y"}}, doc.Data)
	})

	t.Run("Update missing document", func(t *testing.T) {
		store := newStore(t)

		err := store.Update(context.Background(), "things", "nope", []Update{{Path: "a", Value: 1}})

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "things", "a", map[string]any{"n": 1}))
		require.NoError(t, store.Delete(ctx, "things", "a"))
		require.NoError(t, store.Delete(ctx, "things", "a"))

		_, err := store.Get(ctx, "things", "a")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("List is ordered and scoped to collection", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, store.Set(ctx, "things", id, map[string]any{"id": id}))
		}
		require.NoError(t, store.Set(ctx, "other", "z", map[string]any{}))

		docs, err := store.List(ctx, "things")
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, "a", docs[0].ID)
		assert.Equal(t, "b", docs[1].ID)
		assert.Equal(t, "c", docs[2].ID)
	})

	t.Run("Transaction reads must precede writes", func(t *testing.T) {
		store := newStore(t)

		err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
			if err := tx.Set("things", "a", map[string]any{"n": 1}); err != nil {
				return err
			}
			_, err := tx.Get("things", "a")
			return err
		})

		assert.ErrorIs(t, err, ErrReadAfterWrite)
		_, err = store.Get(context.Background(), "things", "a")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Body error aborts without partial writes", func(t *testing.T) {
		store := newStore(t)
		boom := errors.New("boom")
		calls := 0

		err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
			calls++
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("Failing write rolls back the whole commit", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Set("things", "a", map[string]any{"n": 1}); err != nil {
				return err
			}
			return tx.Update("things", "missing", []Update{{Path: "n", Value: 2}})
		})

		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.Get(ctx, "things", "a")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Concurrent increments are serialised", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "counters", "c", map[string]any{"n": 0}))

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
					doc, err := tx.Get("counters", "c")
					if err != nil {
						return err
					}
					n, err := doc.Data["n"].(json.Number).Int64()
					if err != nil {
						return err
					}
					return tx.Set("counters", "c", map[string]any{"n": n + 1})
				}, MaxAttempts(50))
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		doc, err := store.Get(ctx, "counters", "c")
		require.NoError(t, err)
		assert.Equal(t, json.Number(fmt.Sprint(workers)), doc.Data["n"])
	})

	t.Run("Watch emits initial and subsequent snapshots", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "things", "a", map[string]any{"n": 1}))

		var mu sync.Mutex
		var snapshots [][]Document
		stop, err := store.Watch(ctx, "things", func(docs []Document) {
			mu.Lock()
			defer mu.Unlock()
			snapshots = append(snapshots, docs)
		})
		require.NoError(t, err)
		defer stop()

		latest := func() []Document {
			mu.Lock()
			defer mu.Unlock()
			if len(snapshots) == 0 {
				return nil
			}
			return snapshots[len(snapshots)-1]
		}

		assert.Eventually(t, func() bool { return len(latest()) == 1 }, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, store.Set(ctx, "things", "b", map[string]any{"n": 2}))
		assert.Eventually(t, func() bool { return len(latest()) == 2 }, 5*time.Second, 10*time.Millisecond)

		require.NoError(t, store.Delete(ctx, "things", "a"))
		assert.Eventually(t, func() bool {
			docs := latest()
			return len(docs) == 1 && docs[0].ID == "b"
		}, 5*time.Second, 10*time.Millisecond)
	})
}
