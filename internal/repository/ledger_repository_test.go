package repository

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"sgl-admin/internal/docstore"
	"sgl-admin/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T) (docstore.Store, LedgerRepository) {
	t.Helper()
	store := docstore.NewMemoryStore(zerolog.Nop(), docstore.WithBaseBackoff(0))
	t.Cleanup(func() { _ = store.Close() })
	return store, NewLedgerRepository(store, nil, zerolog.Nop())
}

func TestLedgerRepository_CreateAndGetPromo(t *testing.T) {
	ctx := context.Background()
	_, repo := setupLedger(t)
	created := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	err := repo.RunInTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		return tx.CreatePromo(&model.PromoCode{
			Code:      "Summer",
			CardID:    "CARD1",
			MaxUsers:  3,
			UsedBy:    []string{},
			CreatedAt: created,
		})
	})
	require.NoError(t, err)

	promo, err := repo.GetPromo(ctx, "Summer")
	require.NoError(t, err)
	require.NotNil(t, promo)

	assert.Equal(t, "Summer", promo.Code)
	assert.Equal(t, "CARD1", promo.CardID)
	assert.Equal(t, 3, promo.MaxUsers)
	assert.Empty(t, promo.UsedBy)
	assert.True(t, created.Equal(promo.CreatedAt))
}

func TestLedgerRepository_GetPromo_NotPromo(t *testing.T) {
	ctx := context.Background()
	store, repo := setupLedger(t)

	require.NoError(t, store.Set(ctx, CodesCollection, "CARD1", map[string]any{
		"type":  "redeem",
		"codes": []string{"AAAA"},
	}))

	promo, err := repo.GetPromo(ctx, "CARD1")
	require.NoError(t, err)
	assert.Nil(t, promo)

	promo, err = repo.GetPromo(ctx, "Missing")
	require.NoError(t, err)
	assert.Nil(t, promo)
}

func TestLedgerRepository_ListPromos_FiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store, repo := setupLedger(t)

	docs := map[string]map[string]any{
		"Zeta":        {"type": "promo", "maxUsers": 1, "usedBy": []string{}},
		"Alpha":       {"max_usage": 2, "used_by": []string{"u1"}},
		"CARD1":       {"codes": []string{"AAAA"}},
		SequenceDocID: {"lastIndex": 4},
		"Promo0004":   {"codes": []string{"Promo0004"}},
	}
	for id, data := range docs {
		require.NoError(t, store.Set(ctx, CodesCollection, id, data))
	}

	promos, err := repo.ListPromos(ctx)
	require.NoError(t, err)

	codes := make([]string, len(promos))
	for i, p := range promos {
		codes[i] = p.Code
	}
	assert.Equal(t, []string{"Alpha", "Promo0004", "Zeta"}, codes)
	assert.Equal(t, 2, promos[0].MaxUsers)
	assert.Equal(t, []string{"u1"}, promos[0].UsedBy)
}

func TestLedgerRepository_RecordRedemption_MigratesLegacyFields(t *testing.T) {
	ctx := context.Background()
	store, repo := setupLedger(t)

	require.NoError(t, store.Set(ctx, CodesCollection, "Legacy", map[string]any{
		"card_id":   "CARD9",
		"max_usage": 3,
		"used_by":   []string{"u1"},
	}))

	err := repo.RunInTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		promo, err := tx.GetPromo("Legacy")
		if err != nil {
			return err
		}
		require.NotNil(t, promo)
		return tx.RecordRedemption(promo, "u2")
	})
	require.NoError(t, err)

	doc, err := store.Get(ctx, CodesCollection, "Legacy")
	require.NoError(t, err)

	assert.Equal(t, "promo", doc.Data["type"])
	assert.Equal(t, json.Number("3"), doc.Data["maxUsers"])
	assert.Equal(t, []any{"u1", "u2"}, doc.Data["usedBy"])
	assert.NotContains(t, doc.Data, "max_usage")
	assert.NotContains(t, doc.Data, "used_by")

	promo, err := repo.GetPromo(ctx, "Legacy")
	require.NoError(t, err)
	assert.Equal(t, "CARD9", promo.CardID)
	assert.Equal(t, 1, promo.RemainingUses())
}

func TestLedgerRepository_Buckets(t *testing.T) {
	ctx := context.Background()
	_, repo := setupLedger(t)

	err := repo.RunInTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		bucket, err := tx.GetBucket("CARD1")
		if err != nil {
			return err
		}
		assert.Nil(t, bucket)
		return tx.CreateBucket(&model.RedeemCode{CardID: "CARD1", Codes: []string{"A", "B"}, CreatedAt: time.Now()})
	})
	require.NoError(t, err)

	err = repo.RunInTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		bucket, err := tx.GetBucket("CARD1")
		if err != nil {
			return err
		}
		require.NotNil(t, bucket)
		return tx.MergeBucketCodes("CARD1", []string{"B", "C"})
	})
	require.NoError(t, err)

	bucket, err := repo.GetBucket(ctx, "CARD1")
	require.NoError(t, err)
	require.NotNil(t, bucket)
	assert.Equal(t, "CARD1", bucket.CardID)
	assert.Equal(t, []string{"A", "B", "C"}, bucket.Codes)
}

func TestLedgerRepository_GetBucket_RejectsPromoDocument(t *testing.T) {
	ctx := context.Background()
	store, repo := setupLedger(t)

	require.NoError(t, store.Set(ctx, CodesCollection, "Summer", map[string]any{"type": "promo", "maxUsers": 1}))

	err := repo.RunInTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		_, err := tx.GetBucket("Summer")
		return err
	})
	assert.ErrorIs(t, err, ErrNotBucket)

	bucket, err := repo.GetBucket(ctx, "Summer")
	require.NoError(t, err)
	assert.Nil(t, bucket)
}

func TestLedgerRepository_CardPromoCodes(t *testing.T) {
	ctx := context.Background()
	store, repo := setupLedger(t)

	err := repo.RunInTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		exists, err := tx.CardExists("CARD1")
		if err != nil {
			return err
		}
		assert.False(t, exists)
		if err := tx.AddCardPromoCode("CARD1", "Promo0001"); err != nil {
			return err
		}
		return tx.AddCardPromoCode("CARD1", "Promo0002")
	})
	require.NoError(t, err)

	err = repo.RunInTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		exists, err := tx.CardExists("CARD1")
		if err != nil {
			return err
		}
		assert.True(t, exists)
		return tx.RemoveCardPromoCode("CARD1", "Promo0001")
	})
	require.NoError(t, err)

	card, err := store.Get(ctx, CardsCollection, "CARD1")
	require.NoError(t, err)
	assert.Equal(t, []any{"Promo0002"}, card.Data["promoCodes"])
}

func TestLedgerRepository_DeletePromo(t *testing.T) {
	ctx := context.Background()
	store, repo := setupLedger(t)

	require.NoError(t, store.Set(ctx, CodesCollection, "Summer", map[string]any{"type": "promo", "maxUsers": 1}))

	err := repo.RunInTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		return tx.DeletePromo("Summer")
	})
	require.NoError(t, err)

	_, err = store.Get(ctx, CodesCollection, "Summer")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestLedgerRepository_WatchPromos(t *testing.T) {
	ctx := context.Background()
	store, repo := setupLedger(t)

	var mu sync.Mutex
	var latest []model.PromoCode
	calls := 0

	stop, err := repo.WatchPromos(ctx, func(promos []model.PromoCode) {
		mu.Lock()
		defer mu.Unlock()
		latest = promos
		calls++
	})
	require.NoError(t, err)
	defer stop()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1 && len(latest) == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, store.Set(ctx, CodesCollection, "CARD1", map[string]any{"codes": []string{"AAAA"}}))
	require.NoError(t, store.Set(ctx, CodesCollection, "Summer", map[string]any{"type": "promo", "maxUsers": 2}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 1 && latest[0].Code == "Summer"
	}, time.Second, 10*time.Millisecond)
}
