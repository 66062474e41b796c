package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonet1337/stockledger/pkg/inventory"
)

// testDSNEnv names the PostgreSQL DSN used by the integration tests
const testDSNEnv = "STOCKLEDGER_TEST_DSN"

// newTestPostgres はスキーマを適用したPostgreSQLストレージを作成（DSN未指定ならスキップ）
func newTestPostgres(t *testing.T) (*PostgreSQLStorage, *sql.DB) {
	t.Helper()

	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s が未設定のためPostgreSQL統合テストをスキップします", testDSNEnv)
	}

	store, err := NewPostgreSQLStorage(dsn, DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "001_create_stock_ledger.sql"))
	require.NoError(t, err)
	_, err = store.db.Exec(string(schema))
	require.NoError(t, err)

	return store, store.db
}

// seed はテストごとに一意な商品とロケーションを登録
func seed(t *testing.T, db *sql.DB) (itemID, locA, locB string) {
	t.Helper()

	suffix := uuid.New().String()[:8]
	itemID = "ITEM-" + suffix
	locA = "LOC-A-" + suffix
	locB = "LOC-B-" + suffix

	_, err := db.Exec(`INSERT INTO metrics (id, name, symbol) VALUES ($1, 'キログラム', 'kg') ON CONFLICT DO NOTHING`, "kg")
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO items (id, name, metric_id) VALUES ($1, 'テスト商品', 'kg')`, itemID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO locations (id, name, aisle) VALUES ($1, '倉庫A', '1'), ($2, '倉庫B', '')`, locA, locB)
	require.NoError(t, err)
	return itemID, locA, locB
}

// TestPostgreSQLStorage_Ledger はPostgreSQL上での台帳操作のテスト
func TestPostgreSQLStorage_Ledger(t *testing.T) {
	store, db := newTestPostgres(t)
	itemID, locA, locB := seed(t, db)
	ledger := inventory.NewLedger(store, nil, zap.NewNop(), nil)
	ctx := context.Background()

	stock, err := ledger.CreateStockOnLocation(ctx, "alice", itemID, inventory.LocationID(locA),
		10, "初期入庫", decimal.RequireFromString("99.5"), inventory.Placement{})
	require.NoError(t, err)
	assert.Equal(t, "1", stock.Aisle)

	_, err = ledger.CreateStockOnLocation(ctx, "alice", itemID, inventory.LocationID(locA),
		1, "", decimal.Zero, inventory.Placement{})
	assert.ErrorIs(t, err, inventory.ErrStockAlreadyExists)

	_, err = ledger.Take(ctx, "alice", stock, 11, "")
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)

	destination, err := ledger.MoveStock(ctx, "bob", itemID, inventory.LocationID(locA), inventory.LocationID(locB))
	require.NoError(t, err)
	assert.Equal(t, int64(10), destination.Quantity)

	item, err := store.GetItem(ctx, itemID)
	require.NoError(t, err)
	require.NotNil(t, item.Metric)
	assert.Equal(t, "kg", item.Metric.Symbol)

	total, err := inventory.NewFacade(store, zap.NewNop()).TotalStock(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)

	var count int
	var transfers int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*), COUNT(DISTINCT transfer_id) FROM stock_movements WHERE item_id = $1`, itemID,
	).Scan(&count, &transfers))
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, transfers)
}

// TestPostgreSQLStorage_ConcurrentCreate は同時作成で在庫記録が1件になることのテスト
func TestPostgreSQLStorage_ConcurrentCreate(t *testing.T) {
	store, db := newTestPostgres(t)
	itemID, locA, _ := seed(t, db)
	ledger := inventory.NewLedger(store, nil, zap.NewNop(), nil)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CreateStockOnLocation(ctx, "alice", itemID, inventory.LocationID(locA),
				1, "", decimal.Zero, inventory.Placement{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, inventory.ErrStockAlreadyExists):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

// TestPostgreSQLStorage_ConcurrentTake は同時出庫で数量が負にならないことのテスト
func TestPostgreSQLStorage_ConcurrentTake(t *testing.T) {
	store, db := newTestPostgres(t)
	itemID, locA, _ := seed(t, db)
	ledger := inventory.NewLedger(store, nil, zap.NewNop(), nil)
	ctx := context.Background()

	stock, err := ledger.CreateStockOnLocation(ctx, "alice", itemID, inventory.LocationID(locA),
		5, "", decimal.Zero, inventory.Placement{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ledger.Take(ctx, "alice", stock, 1, "")
		}()
	}
	wg.Wait()

	stocks, err := store.ListStockByItem(ctx, itemID)
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, int64(0), stocks[0].Quantity)
}
