package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonet1337/stockledger/pkg/inventory"
)

func newStock(itemID, locationID string, quantity int64) *inventory.Stock {
	return &inventory.Stock{
		ID:         inventory.NewStockID(),
		ItemID:     itemID,
		LocationID: locationID,
		Quantity:   quantity,
		Version:    1,
	}
}

// TestMemoryStorage_CreateAndFind は在庫記録の作成と取得のテスト
func TestMemoryStorage_CreateAndFind(t *testing.T) {
	store := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	err := store.WithinTx(ctx, func(tx inventory.Tx) error {
		if _, err := tx.FindStock(ctx, "ITEM-1", "LOC-A"); !errors.Is(err, inventory.ErrStockNotFound) {
			return err
		}
		return tx.CreateStock(ctx, newStock("ITEM-1", "LOC-A", 5))
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateStock(ctx, newStock("ITEM-1", "LOC-A", 1))
	})
	assert.ErrorIs(t, err, inventory.ErrStockAlreadyExists)

	stocks, err := store.ListStockByItem(ctx, "ITEM-1")
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, int64(5), stocks[0].Quantity)
}

// TestMemoryStorage_Rollback はエラー時に書き込みが取り消されることのテスト
func TestMemoryStorage_Rollback(t *testing.T) {
	store := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	stock := newStock("ITEM-1", "LOC-A", 5)
	require.NoError(t, store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateStock(ctx, stock)
	}))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx inventory.Tx) error {
		updated := *stock
		updated.Quantity = 50
		updated.Version = 2
		if err := tx.SaveStock(ctx, &updated); err != nil {
			return err
		}
		if err := tx.CreateStock(ctx, newStock("ITEM-1", "LOC-B", 7)); err != nil {
			return err
		}
		if err := tx.AppendMovement(ctx, &inventory.Movement{ID: "M-1", StockID: stock.ID, Delta: 45}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stocks, err := store.ListStockByItem(ctx, "ITEM-1")
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, int64(5), stocks[0].Quantity)
	assert.Equal(t, int64(1), stocks[0].Version)
	assert.Empty(t, store.Movements(stock.ID))
}

// TestMemoryStorage_VersionMismatch は楽観的ロックのテスト
func TestMemoryStorage_VersionMismatch(t *testing.T) {
	store := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	stock := newStock("ITEM-1", "LOC-A", 5)
	require.NoError(t, store.WithinTx(ctx, func(tx inventory.Tx) error {
		return tx.CreateStock(ctx, stock)
	}))

	err := store.WithinTx(ctx, func(tx inventory.Tx) error {
		stale := *stock
		stale.Version = 5
		return tx.SaveStock(ctx, &stale)
	})
	assert.ErrorIs(t, err, inventory.ErrVersionMismatch)
}

// TestMemoryStorage_Copies は返却値の変更が保存内容に影響しないことのテスト
func TestMemoryStorage_Copies(t *testing.T) {
	store := NewMemoryStorage(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.AddItem(inventory.Item{ID: "ITEM-1", Metric: &inventory.Metric{Symbol: "kg"}}))
	require.NoError(t, store.AddLocation(inventory.Location{ID: "LOC-A", Name: "倉庫A"}))
	assert.Error(t, store.AddItem(inventory.Item{ID: "ITEM-1"}))
	assert.Error(t, store.AddLocation(inventory.Location{ID: "LOC-A"}))

	item, err := store.GetItem(ctx, "ITEM-1")
	require.NoError(t, err)
	item.Metric.Symbol = "g"

	location, err := store.GetLocation(ctx, "LOC-A")
	require.NoError(t, err)
	location.Name = "変更"

	item, err = store.GetItem(ctx, "ITEM-1")
	require.NoError(t, err)
	assert.Equal(t, "kg", item.Metric.Symbol)

	location, err = store.GetLocation(ctx, "LOC-A")
	require.NoError(t, err)
	assert.Equal(t, "倉庫A", location.Name)

	_, err = store.GetItem(ctx, "ITEM-X")
	assert.ErrorIs(t, err, inventory.ErrItemNotFound)
	_, err = store.GetLocation(ctx, "LOC-X")
	assert.ErrorIs(t, err, inventory.ErrLocationNotFound)
}

// TestMemoryStorage_CanceledContext はキャンセル済みコンテキストのテスト
func TestMemoryStorage_CanceledContext(t *testing.T) {
	store := NewMemoryStorage(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(tx inventory.Tx) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
