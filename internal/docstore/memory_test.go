package docstore

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T) Store {
	t.Helper()
	store := NewMemoryStore(zerolog.Nop(), WithBaseBackoff(0))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, newTestMemoryStore)
}

func TestMemoryStore_RetriesOnConflict(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "things", "a", map[string]any{"v": "initial"}))

	attempts := 0
	err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		if _, err := tx.Get("things", "a"); err != nil {
			return err
		}
		if attempts == 1 {
			// A concurrent writer commits between our read and our commit.
			require.NoError(t, store.Set(ctx, "things", "a", map[string]any{"v": "concurrent"}))
		}
		return tx.Set("things", "a", map[string]any{"v": "ours"})
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	doc, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, "ours", doc.Data["v"])
}

func TestMemoryStore_ConflictOnAbsentRead(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()

	attempts := 0
	err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		_, err := tx.Get("things", "new")
		if attempts == 1 {
			assert.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, store.Set(ctx, "things", "new", map[string]any{"by": "other"}))
			return tx.Set("things", "new", map[string]any{"by": "us"})
		}
		require.NoError(t, err)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	doc, err := store.Get(ctx, "things", "new")
	require.NoError(t, err)
	assert.Equal(t, "other", doc.Data["by"])
}

func TestMemoryStore_RetryBudgetExhausted(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "things", "a", map[string]any{"n": 0}))

	attempts := 0
	err := store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		if _, err := tx.Get("things", "a"); err != nil {
			return err
		}
		require.NoError(t, store.Set(ctx, "things", "a", map[string]any{"n": attempts}))
		return tx.Set("things", "a", map[string]any{"n": -1})
	}, MaxAttempts(3))

	assert.ErrorIs(t, err, ErrTooManyRetries)
	assert.Equal(t, 3, attempts)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := newTestMemoryStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "things", "a", map[string]any{"list": []string{"x"}}))

	doc, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	doc.Data["list"].([]any)[0] = "mutated"

	again, err := store.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, again.Data["list"])
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore(zerolog.Nop())
	require.NoError(t, store.Close())

	_, err := store.Get(context.Background(), "things", "a")
	assert.ErrorIs(t, err, ErrClosed)

	err = store.Set(context.Background(), "things", "a", map[string]any{})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = store.Watch(context.Background(), "things", func([]Document) {})
	assert.ErrorIs(t, err, ErrClosed)
}
