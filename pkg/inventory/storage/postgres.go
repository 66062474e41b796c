package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nemonet1337/stockledger/pkg/inventory"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgreSQLStorage implements the Store interface using PostgreSQL
// PostgreSQLを使用したStoreインターフェースの実装
type PostgreSQLStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ inventory.Store = (*PostgreSQLStorage)(nil)

// PoolConfig holds connection pool settings
// 接続プール設定
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are given
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
// 新しいPostgreSQLストレージインスタンスを作成
func NewPostgreSQLStorage(dsn string, pool PoolConfig, logger *zap.Logger) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("データベースpingに失敗しました: %w", err)
	}

	// 接続プール設定
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	return NewPostgreSQLStorageFromDB(db, logger), nil
}

// NewPostgreSQLStorageFromDB wraps an open database handle
func NewPostgreSQLStorageFromDB(db *sql.DB, logger *zap.Logger) *PostgreSQLStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgreSQLStorage{
		db:     db,
		logger: logger,
	}
}

// WithinTx runs fn in a read-committed transaction and commits when fn succeeds
// read committedトランザクション内で関数を実行
func (s *PostgreSQLStorage) WithinTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Error("ロールバックに失敗しました", zap.Error(err))
		}
	}()

	if err := fn(&postgresTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションコミットに失敗しました: %w", err)
	}
	return nil
}

// GetLocation retrieves a location by ID
// IDでロケーションを取得
func (s *PostgreSQLStorage) GetLocation(ctx context.Context, locationID string) (*inventory.Location, error) {
	return getLocation(ctx, s.db, locationID)
}

// GetItem retrieves an item by ID together with its metric
// IDで商品を取得
func (s *PostgreSQLStorage) GetItem(ctx context.Context, itemID string) (*inventory.Item, error) {
	return getItem(ctx, s.db, itemID)
}

// ListStockByItem retrieves all stock records of an item
// 商品のすべての在庫記録を取得
func (s *PostgreSQLStorage) ListStockByItem(ctx context.Context, itemID string) ([]inventory.Stock, error) {
	query := `
		SELECT ` + stockColumns + `
		FROM stocks
		WHERE item_id = $1
		ORDER BY location_id`

	rows, err := s.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("商品在庫取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var stocks []inventory.Stock
	for rows.Next() {
		var stock inventory.Stock
		if err := scanStock(rows, &stock); err != nil {
			return nil, fmt.Errorf("在庫スキャンに失敗しました: %w", err)
		}
		stocks = append(stocks, stock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("在庫スキャンに失敗しました: %w", err)
	}

	return stocks, nil
}

// Ping checks database connectivity
// データベース接続をチェック
func (s *PostgreSQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
// データベース接続を閉じる
func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}

// postgresTx binds the ledger's Tx port to one *sql.Tx
type postgresTx struct {
	q querier
}

func (t *postgresTx) GetLocation(ctx context.Context, locationID string) (*inventory.Location, error) {
	return getLocation(ctx, t.q, locationID)
}

func (t *postgresTx) GetItem(ctx context.Context, itemID string) (*inventory.Item, error) {
	return getItem(ctx, t.q, itemID)
}

func (t *postgresTx) FindStock(ctx context.Context, itemID, locationID string) (*inventory.Stock, error) {
	return findStock(ctx, t.q, itemID, locationID, false)
}

func (t *postgresTx) FindStockForUpdate(ctx context.Context, itemID, locationID string) (*inventory.Stock, error) {
	return findStock(ctx, t.q, itemID, locationID, true)
}

// LockStockKey takes a transaction-scoped advisory lock on (item, location).
// It covers the key even while no row exists yet.
// (商品, ロケーション) キーに対するトランザクション単位のアドバイザリロック
func (t *postgresTx) LockStockKey(ctx context.Context, itemID, locationID string) error {
	if _, err := t.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, itemID, locationID); err != nil {
		return fmt.Errorf("アドバイザリロック取得に失敗しました: %w", err)
	}
	return nil
}

// CreateStock creates a new stock record
// 新しい在庫記録を作成
func (t *postgresTx) CreateStock(ctx context.Context, stock *inventory.Stock) error {
	query := `
		INSERT INTO stocks (id, item_id, location_id, quantity, aisle, "row", bin, version, created_at, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := t.q.ExecContext(ctx, query,
		stock.ID,
		stock.ItemID,
		stock.LocationID,
		stock.Quantity,
		stock.Aisle,
		stock.Row,
		stock.Bin,
		stock.Version,
		stock.CreatedAt,
		stock.UpdatedAt,
		stock.UpdatedBy,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return inventory.ErrStockAlreadyExists
		}
		return fmt.Errorf("在庫記録作成に失敗しました: %w", err)
	}

	return nil
}

// SaveStock persists a mutated quantity, guarded by the previous version
// 変更後の数量を保存（前バージョンで楽観的ロック）
func (t *postgresTx) SaveStock(ctx context.Context, stock *inventory.Stock) error {
	query := `
		UPDATE stocks
		SET quantity = $2, version = $3, updated_at = $4, updated_by = $5
		WHERE id = $1 AND version = $6`

	result, err := t.q.ExecContext(ctx, query,
		stock.ID,
		stock.Quantity,
		stock.Version,
		stock.UpdatedAt,
		stock.UpdatedBy,
		stock.Version-1,
	)
	if err != nil {
		return fmt.Errorf("在庫記録更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}

	if rowsAffected == 0 {
		return inventory.ErrVersionMismatch
	}

	return nil
}

// AppendMovement inserts an immutable movement record
// 移動記録を追加
func (t *postgresTx) AppendMovement(ctx context.Context, movement *inventory.Movement) error {
	query := `
		INSERT INTO stock_movements (id, stock_id, item_id, location_id, delta, quantity, reason, cost, transfer_id, counterpart_id, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := t.q.ExecContext(ctx, query,
		movement.ID,
		movement.StockID,
		movement.ItemID,
		movement.LocationID,
		movement.Delta,
		movement.Quantity,
		movement.Reason,
		movement.Cost,
		movement.TransferID,
		movement.CounterpartID,
		movement.CreatedAt,
		movement.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("移動記録作成に失敗しました: %w", err)
	}

	return nil
}

const stockColumns = `id, item_id, location_id, quantity, aisle, "row", bin, version, created_at, updated_at, updated_by`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStock(row rowScanner, stock *inventory.Stock) error {
	return row.Scan(
		&stock.ID,
		&stock.ItemID,
		&stock.LocationID,
		&stock.Quantity,
		&stock.Aisle,
		&stock.Row,
		&stock.Bin,
		&stock.Version,
		&stock.CreatedAt,
		&stock.UpdatedAt,
		&stock.UpdatedBy,
	)
}

func findStock(ctx context.Context, q querier, itemID, locationID string, forUpdate bool) (*inventory.Stock, error) {
	query := `
		SELECT ` + stockColumns + `
		FROM stocks
		WHERE item_id = $1 AND location_id = $2`
	if forUpdate {
		query += `
		FOR UPDATE`
	}

	stock := &inventory.Stock{}
	if err := scanStock(q.QueryRowContext(ctx, query, itemID, locationID), stock); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrStockNotFound
		}
		return nil, fmt.Errorf("在庫取得に失敗しました: %w", err)
	}

	return stock, nil
}

func getLocation(ctx context.Context, q querier, locationID string) (*inventory.Location, error) {
	query := `
		SELECT id, name, aisle, "row", bin, created_at
		FROM locations
		WHERE id = $1`

	location := &inventory.Location{}
	err := q.QueryRowContext(ctx, query, locationID).Scan(
		&location.ID,
		&location.Name,
		&location.Aisle,
		&location.Row,
		&location.Bin,
		&location.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrLocationNotFound
		}
		return nil, fmt.Errorf("ロケーション取得に失敗しました: %w", err)
	}

	return location, nil
}

func getItem(ctx context.Context, q querier, itemID string) (*inventory.Item, error) {
	query := `
		SELECT i.id, i.name, i.sku, i.created_at, i.updated_at, m.id, m.name, m.symbol
		FROM items i
		LEFT JOIN metrics m ON m.id = i.metric_id
		WHERE i.id = $1`

	var (
		item                            inventory.Item
		metricID, metricName, metricSym sql.NullString
	)
	err := q.QueryRowContext(ctx, query, itemID).Scan(
		&item.ID,
		&item.Name,
		&item.SKU,
		&item.CreatedAt,
		&item.UpdatedAt,
		&metricID,
		&metricName,
		&metricSym,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrItemNotFound
		}
		return nil, fmt.Errorf("商品取得に失敗しました: %w", err)
	}

	if metricID.Valid {
		item.Metric = &inventory.Metric{
			ID:     metricID.String,
			Name:   metricName.String,
			Symbol: metricSym.String,
		}
	}

	return &item, nil
}
