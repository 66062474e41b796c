package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockLedger defines the core stock ledger operations
// 在庫台帳のコア操作を定義
type StockLedger interface {
	// 在庫記録の作成 - Stock record creation
	CreateStockOnLocation(ctx context.Context, actor Actor, itemID string, location LocationRef, quantity int64, reason string, cost decimal.Decimal, placement Placement) (*Stock, error)

	// 単一在庫の増減 - Single stock adjustments
	Put(ctx context.Context, actor Actor, stock *Stock, quantity int64, reason string, cost decimal.Decimal) (*Stock, error)
	Take(ctx context.Context, actor Actor, stock *Stock, quantity int64, reason string) (*Stock, error)

	// ロケーション指定の増減 - Location adjustments
	PutToLocation(ctx context.Context, actor Actor, itemID string, location LocationRef, quantity int64, reason string, cost decimal.Decimal) (*Stock, error)
	TakeFromLocation(ctx context.Context, actor Actor, itemID string, location LocationRef, quantity int64, reason string) (*Stock, error)

	// 複数ロケーションの一括処理 - Batch operations
	PutToManyLocations(ctx context.Context, actor Actor, itemID string, quantity int64, locations []LocationRef, reason string, cost decimal.Decimal) ([]*Stock, error)
	TakeFromManyLocations(ctx context.Context, actor Actor, itemID string, quantity int64, locations []LocationRef, reason string) ([]*Stock, error)

	// ロケーション間移動 - Transfer
	MoveStock(ctx context.Context, actor Actor, itemID string, from, to LocationRef) (*Stock, error)
}

// ItemInventory is the read-only item-level aggregation surface
// 商品単位の読み取り専用集計インターフェース
type ItemInventory interface {
	TotalStock(ctx context.Context, itemID string) (int64, error)
	IsInStock(ctx context.Context, itemID string) (bool, error)
	HasMetric(ctx context.Context, itemID string) (bool, error)
	MetricSymbol(ctx context.Context, itemID string) (string, error)
}

// LocationDirectory resolves location identifiers to stored locations
// ロケーションIDから保存済みロケーションを引く
type LocationDirectory interface {
	GetLocation(ctx context.Context, locationID string) (*Location, error)
}

// Store defines the persistence layer the ledger calls through
// 台帳が利用する永続化層のインターフェースを定義
type Store interface {
	LocationDirectory

	// WithinTx runs fn in one transaction with at least read-committed isolation.
	// fn returning an error rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetItem(ctx context.Context, itemID string) (*Item, error)
	ListStockByItem(ctx context.Context, itemID string) ([]Stock, error)

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the transaction-scoped view of the store
// トランザクション内のストレージ操作
type Tx interface {
	LocationDirectory

	GetItem(ctx context.Context, itemID string) (*Item, error)

	// FindStock returns ErrStockNotFound when no record exists
	FindStock(ctx context.Context, itemID, locationID string) (*Stock, error)
	// FindStockForUpdate also holds an exclusive row lock until the transaction ends
	FindStockForUpdate(ctx context.Context, itemID, locationID string) (*Stock, error)
	// LockStockKey serializes create-if-absent on (itemID, locationID) until the transaction ends
	LockStockKey(ctx context.Context, itemID, locationID string) error

	CreateStock(ctx context.Context, stock *Stock) error
	SaveStock(ctx context.Context, stock *Stock) error

	AppendMovement(ctx context.Context, movement *Movement) error
}

// EventPublisher defines interface for publishing stock events
// 在庫イベント発行のインターフェースを定義
type EventPublisher interface {
	PublishStockChanged(ctx context.Context, event StockChangedEvent) error
	PublishStockMoved(ctx context.Context, event StockMovedEvent) error
	PublishLowStock(ctx context.Context, event LowStockEvent) error
}

// StockChangedEvent represents a stock level change
// 在庫レベル変更イベントを表現
type StockChangedEvent struct {
	StockID     string    `json:"stock_id"`
	ItemID      string    `json:"item_id"`
	LocationID  string    `json:"location_id"`
	OldQuantity int64     `json:"old_quantity"`
	NewQuantity int64     `json:"new_quantity"`
	MovementID  string    `json:"movement_id"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
}

// StockMovedEvent represents a transfer between locations
// ロケーション間移動イベントを表現
type StockMovedEvent struct {
	TransferID     string    `json:"transfer_id"`
	ItemID         string    `json:"item_id"`
	FromLocationID string    `json:"from_location_id"`
	ToLocationID   string    `json:"to_location_id"`
	Quantity       int64     `json:"quantity"`
	Timestamp      time.Time `json:"timestamp"`
	Actor          string    `json:"actor"`
}

// LowStockEvent represents a stock falling to or below the configured threshold
// 低在庫イベントを表現
type LowStockEvent struct {
	ItemID     string    `json:"item_id"`
	LocationID string    `json:"location_id"`
	CurrentQty int64     `json:"current_qty"`
	Threshold  int64     `json:"threshold"`
	Timestamp  time.Time `json:"timestamp"`
}
