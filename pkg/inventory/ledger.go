package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger implements the StockLedger interface
// StockLedgerインターフェースの実装
type Ledger struct {
	store     Store             // ストレージ層
	resolver  *LocationResolver // ロケーション解決
	recorder  *MovementRecorder // 移動記録
	publisher EventPublisher    // イベント発行者
	metrics   *Metrics          // メトリクス
	logger    *zap.Logger       // ログ
	config    *Config           // 設定
	now       func() time.Time
}

var _ StockLedger = (*Ledger)(nil)

// Config holds configuration for the stock ledger
// 在庫台帳の設定を保持
type Config struct {
	AllowZeroPut      bool  `yaml:"allow_zero_put"`      // 数量0の入庫を許可
	LowStockThreshold int64 `yaml:"low_stock_threshold"` // 低在庫閾値（0以下で無効）
}

// DefaultConfig returns the ledger defaults
// デフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		AllowZeroPut:      false,
		LowStockThreshold: 10,
	}
}

// Option customizes a Ledger
type Option func(*Ledger)

// WithMetrics attaches Prometheus collectors to the ledger
func WithMetrics(metrics *Metrics) Option {
	return func(l *Ledger) {
		l.metrics = metrics
	}
}

// WithClock overrides the time source used for stock and movement timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
		l.recorder.now = now
	}
}

// NewLedger creates a new stock ledger
// 新しい在庫台帳を作成
func NewLedger(store Store, publisher EventPublisher, logger *zap.Logger, config *Config, opts ...Option) *Ledger {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Ledger{
		store:     store,
		resolver:  NewLocationResolver(store, logger),
		recorder:  NewMovementRecorder(logger),
		publisher: publisher,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// pendingEvents collects events inside a transaction; they are published only after commit
type pendingEvents struct {
	changed []StockChangedEvent
	moved   []StockMovedEvent
	low     []LowStockEvent
	in, out int
}

// CreateStockOnLocation creates the stock record for an item at a location and puts the initial quantity
// 商品の在庫記録をロケーションに作成し、初期数量を入庫
func (l *Ledger) CreateStockOnLocation(ctx context.Context, actor Actor, itemID string, location LocationRef, quantity int64, reason string, cost decimal.Decimal, placement Placement) (stock *Stock, err error) {
	start := time.Now()
	defer func() { l.metrics.observe("create", start, err) }()

	if err := l.validateRequest(actor, itemID, quantity, true, reason, cost); err != nil {
		return nil, err
	}

	loc, err := l.resolver.Resolve(ctx, location)
	if err != nil {
		return nil, err
	}

	var events pendingEvents
	err = l.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.GetItem(ctx, itemID); err != nil {
			if errors.Is(err, ErrItemNotFound) {
				return NewLedgerError(ErrItemNotFound, itemID, "", "商品が存在しません")
			}
			return asStorageError("get_item", "商品取得に失敗しました", err)
		}

		created, err := l.createStock(ctx, tx, actor, itemID, loc, placement)
		if err != nil {
			return err
		}
		if quantity == 0 {
			stock = created
			return nil
		}

		stock, err = l.applyPut(ctx, tx, actor, created, quantity, reason, cost, nil, &events)
		return err
	})
	if err != nil {
		return nil, l.failed("create", itemID, loc.ID, quantity, err)
	}

	l.publish(ctx, &events)

	l.logger.Info("在庫記録作成完了",
		zap.String("item_id", itemID),
		zap.String("location_id", loc.ID),
		zap.Int64("quantity", stock.Quantity),
		zap.String("reason", reason),
		zap.Stringer("actor", actor),
	)

	return stock, nil
}

// Put increases the quantity of a stock record
// 在庫数量を増加
func (l *Ledger) Put(ctx context.Context, actor Actor, stock *Stock, quantity int64, reason string, cost decimal.Decimal) (result *Stock, err error) {
	start := time.Now()
	defer func() { l.metrics.observe("put", start, err) }()

	if stock == nil {
		return nil, NewLedgerError(ErrStockNotFound, "", "", "在庫が指定されていません")
	}
	if err := l.validateRequest(actor, stock.ItemID, quantity, l.config.AllowZeroPut, reason, cost); err != nil {
		return nil, err
	}

	var events pendingEvents
	err = l.store.WithinTx(ctx, func(tx Tx) error {
		locked, err := l.lockStock(ctx, tx, stock.ItemID, stock.LocationID)
		if err != nil {
			return err
		}
		result, err = l.applyPut(ctx, tx, actor, locked, quantity, reason, cost, nil, &events)
		return err
	})
	if err != nil {
		return nil, l.failed("put", stock.ItemID, stock.LocationID, quantity, err)
	}

	l.publish(ctx, &events)
	l.logCompleted("在庫入庫完了", result, quantity, reason, actor)

	return result, nil
}

// Take decreases the quantity of a stock record; it never drives quantity negative
// 在庫数量を減少（負にはならない）
func (l *Ledger) Take(ctx context.Context, actor Actor, stock *Stock, quantity int64, reason string) (result *Stock, err error) {
	start := time.Now()
	defer func() { l.metrics.observe("take", start, err) }()

	if stock == nil {
		return nil, NewLedgerError(ErrStockNotFound, "", "", "在庫が指定されていません")
	}
	if err := l.validateRequest(actor, stock.ItemID, quantity, false, reason, decimal.Zero); err != nil {
		return nil, err
	}

	var events pendingEvents
	err = l.store.WithinTx(ctx, func(tx Tx) error {
		locked, err := l.lockStock(ctx, tx, stock.ItemID, stock.LocationID)
		if err != nil {
			return err
		}
		result, err = l.applyTake(ctx, tx, actor, locked, quantity, reason, nil, &events)
		return err
	})
	if err != nil {
		return nil, l.failed("take", stock.ItemID, stock.LocationID, quantity, err)
	}

	l.publish(ctx, &events)
	l.logCompleted("在庫出庫完了", result, quantity, reason, actor)

	return result, nil
}

// PutToLocation puts quantity into the existing stock record of an item at a location
// 指定ロケーションの既存在庫に入庫
func (l *Ledger) PutToLocation(ctx context.Context, actor Actor, itemID string, location LocationRef, quantity int64, reason string, cost decimal.Decimal) (*Stock, error) {
	stocks, err := l.PutToManyLocations(ctx, actor, itemID, quantity, []LocationRef{location}, reason, cost)
	if err != nil {
		return nil, err
	}
	return stocks[0], nil
}

// TakeFromLocation takes quantity from the existing stock record of an item at a location
// 指定ロケーションの既存在庫から出庫
func (l *Ledger) TakeFromLocation(ctx context.Context, actor Actor, itemID string, location LocationRef, quantity int64, reason string) (*Stock, error) {
	stocks, err := l.TakeFromManyLocations(ctx, actor, itemID, quantity, []LocationRef{location}, reason)
	if err != nil {
		return nil, err
	}
	return stocks[0], nil
}

// AddToLocation is PutToLocation
func (l *Ledger) AddToLocation(ctx context.Context, actor Actor, itemID string, location LocationRef, quantity int64, reason string, cost decimal.Decimal) (*Stock, error) {
	return l.PutToLocation(ctx, actor, itemID, location, quantity, reason, cost)
}

// RemoveFromLocation is TakeFromLocation
func (l *Ledger) RemoveFromLocation(ctx context.Context, actor Actor, itemID string, location LocationRef, quantity int64, reason string) (*Stock, error) {
	return l.TakeFromLocation(ctx, actor, itemID, location, quantity, reason)
}

// PutToManyLocations puts the same quantity into each listed location in order.
// Every location must already hold a stock record; any failure rolls back the whole batch.
// 複数ロケーションに同数量を一括入庫（全件成功または全件取消）
func (l *Ledger) PutToManyLocations(ctx context.Context, actor Actor, itemID string, quantity int64, locations []LocationRef, reason string, cost decimal.Decimal) (stocks []*Stock, err error) {
	start := time.Now()
	defer func() { l.metrics.observe("put_many", start, err) }()

	if err := l.validateRequest(actor, itemID, quantity, l.config.AllowZeroPut, reason, cost); err != nil {
		return nil, err
	}

	resolved, err := l.resolver.ResolveAll(ctx, locations)
	if err != nil {
		return nil, err
	}

	var events pendingEvents
	err = l.store.WithinTx(ctx, func(tx Tx) error {
		stocks = make([]*Stock, 0, len(resolved))
		for _, loc := range resolved {
			locked, err := l.lockStock(ctx, tx, itemID, loc.ID)
			if err != nil {
				return err
			}
			updated, err := l.applyPut(ctx, tx, actor, locked, quantity, reason, cost, nil, &events)
			if err != nil {
				return err
			}
			stocks = append(stocks, updated)
		}
		return nil
	})
	if err != nil {
		return nil, l.failed("put_many", itemID, locationIDs(resolved), quantity, err)
	}

	l.publish(ctx, &events)

	l.logger.Info("複数ロケーション入庫完了",
		zap.String("item_id", itemID),
		zap.Strings("location_ids", locationIDList(resolved)),
		zap.Int64("quantity", quantity),
		zap.String("reason", reason),
		zap.Stringer("actor", actor),
	)

	return stocks, nil
}

// TakeFromManyLocations takes the same quantity from each listed location in order.
// The quantity is requested from every location, not divided between them.
// Any failure rolls back the whole batch.
// 複数ロケーションから同数量を一括出庫（全件成功または全件取消）
func (l *Ledger) TakeFromManyLocations(ctx context.Context, actor Actor, itemID string, quantity int64, locations []LocationRef, reason string) (stocks []*Stock, err error) {
	start := time.Now()
	defer func() { l.metrics.observe("take_many", start, err) }()

	if err := l.validateRequest(actor, itemID, quantity, false, reason, decimal.Zero); err != nil {
		return nil, err
	}

	resolved, err := l.resolver.ResolveAll(ctx, locations)
	if err != nil {
		return nil, err
	}

	var events pendingEvents
	err = l.store.WithinTx(ctx, func(tx Tx) error {
		stocks = make([]*Stock, 0, len(resolved))
		for _, loc := range resolved {
			locked, err := l.lockStock(ctx, tx, itemID, loc.ID)
			if err != nil {
				return err
			}
			updated, err := l.applyTake(ctx, tx, actor, locked, quantity, reason, nil, &events)
			if err != nil {
				return err
			}
			stocks = append(stocks, updated)
		}
		return nil
	})
	if err != nil {
		return nil, l.failed("take_many", itemID, locationIDs(resolved), quantity, err)
	}

	l.publish(ctx, &events)

	l.logger.Info("複数ロケーション出庫完了",
		zap.String("item_id", itemID),
		zap.Strings("location_ids", locationIDList(resolved)),
		zap.Int64("quantity", quantity),
		zap.String("reason", reason),
		zap.Stringer("actor", actor),
	)

	return stocks, nil
}

// MoveStock transfers the entire quantity of the source stock to the destination,
// creating the destination record when absent. Returns the destination stock.
// 移動元の全数量を移動先へ移動（移動先がなければ作成）
func (l *Ledger) MoveStock(ctx context.Context, actor Actor, itemID string, from, to LocationRef) (destination *Stock, err error) {
	start := time.Now()
	defer func() { l.metrics.observe("move", start, err) }()

	if err := ValidateItemID(itemID); err != nil {
		return nil, err
	}
	if err := ValidateActor(actor); err != nil {
		return nil, err
	}

	src, err := l.resolver.Resolve(ctx, from)
	if err != nil {
		return nil, err
	}
	dst, err := l.resolver.Resolve(ctx, to)
	if err != nil {
		return nil, err
	}
	if src.ID == dst.ID {
		return nil, NewLedgerError(ErrSameLocation, itemID, src.ID, fmt.Sprintf("%s -> %s", src.ID, dst.ID))
	}

	var (
		events   pendingEvents
		quantity int64
	)
	err = l.store.WithinTx(ctx, func(tx Tx) error {
		// 同時移動でのデッドロックを避けるため、キーは常に同じ順序で取得する
		keys := []string{src.ID, dst.ID}
		sort.Strings(keys)
		for _, key := range keys {
			if err := tx.LockStockKey(ctx, itemID, key); err != nil {
				return asStorageError("lock_stock_key", "在庫キーのロックに失敗しました", err)
			}
		}

		source, err := l.lockStock(ctx, tx, itemID, src.ID)
		if err != nil {
			return err
		}
		quantity = source.Quantity
		if quantity == 0 {
			return NewLedgerError(ErrInsufficientStock, itemID, src.ID, "移動する在庫がありません")
		}

		target, err := tx.FindStockForUpdate(ctx, itemID, dst.ID)
		if errors.Is(err, ErrStockNotFound) {
			target, err = l.insertStock(ctx, tx, actor, itemID, dst, Placement{})
		}
		if err != nil {
			return asStorageError("find_stock", "移動先在庫の取得に失敗しました", err)
		}

		transferID := NewTransferID()
		outID, inID := NewMovementID(), NewMovementID()

		if _, err := l.applyTake(ctx, tx, actor, source, quantity, "moved to location "+locationLabel(dst),
			&LinkedMovement{TransferID: transferID, MovementID: outID, CounterpartID: inID}, &events); err != nil {
			return err
		}
		destination, err = l.applyPut(ctx, tx, actor, target, quantity, "moved from location "+locationLabel(src), decimal.Zero,
			&LinkedMovement{TransferID: transferID, MovementID: inID, CounterpartID: outID}, &events)
		if err != nil {
			return err
		}

		events.moved = append(events.moved, StockMovedEvent{
			TransferID:     transferID,
			ItemID:         itemID,
			FromLocationID: src.ID,
			ToLocationID:   dst.ID,
			Quantity:       quantity,
			Timestamp:      l.now(),
			Actor:          actor.String(),
		})
		return nil
	})
	if err != nil {
		return nil, l.failed("move", itemID, src.ID+" -> "+dst.ID, 0, err)
	}

	l.publish(ctx, &events)

	l.logger.Info("在庫移動完了",
		zap.String("item_id", itemID),
		zap.String("from_location", src.ID),
		zap.String("to_location", dst.ID),
		zap.Int64("quantity", quantity),
		zap.Stringer("actor", actor),
	)

	return destination, nil
}

// ヘルパーメソッド

// validateRequest validates the common arguments of a quantity change
func (l *Ledger) validateRequest(actor Actor, itemID string, quantity int64, allowZero bool, reason string, cost decimal.Decimal) error {
	if err := ValidateItemID(itemID); err != nil {
		return err
	}
	if err := ValidateQuantity(quantity, allowZero); err != nil {
		return err
	}
	if err := ValidateReason(reason); err != nil {
		return err
	}
	if err := ValidateCost(cost); err != nil {
		return err
	}
	return ValidateActor(actor)
}

// lockStock loads the stock row under an exclusive lock
// 在庫行を排他ロック付きで取得
func (l *Ledger) lockStock(ctx context.Context, tx Tx, itemID, locationID string) (*Stock, error) {
	stock, err := tx.FindStockForUpdate(ctx, itemID, locationID)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) {
			return nil, NewLedgerError(ErrStockNotFound, itemID, locationID, "在庫記録が存在しません")
		}
		return nil, asStorageError("find_stock", "在庫取得に失敗しました", err)
	}
	return stock, nil
}

// createStock checks for an existing record and inserts an empty one inside the same locked section
// 存在確認と作成を同じ排他区間で実行
func (l *Ledger) createStock(ctx context.Context, tx Tx, actor Actor, itemID string, loc *Location, placement Placement) (*Stock, error) {
	if err := tx.LockStockKey(ctx, itemID, loc.ID); err != nil {
		return nil, asStorageError("lock_stock_key", "在庫キーのロックに失敗しました", err)
	}

	_, err := tx.FindStock(ctx, itemID, loc.ID)
	switch {
	case err == nil:
		return nil, NewLedgerError(ErrStockAlreadyExists, itemID, loc.ID,
			fmt.Sprintf("ロケーション %s には既に在庫記録があります", locationLabel(loc)))
	case !errors.Is(err, ErrStockNotFound):
		return nil, asStorageError("find_stock", "在庫取得に失敗しました", err)
	}

	return l.insertStock(ctx, tx, actor, itemID, loc, placement)
}

// insertStock inserts a stock record with quantity zero
func (l *Ledger) insertStock(ctx context.Context, tx Tx, actor Actor, itemID string, loc *Location, placement Placement) (*Stock, error) {
	if placement.IsZero() {
		placement = Placement{Aisle: loc.Aisle, Row: loc.Row, Bin: loc.Bin}
	}

	now := l.now()
	stock := &Stock{
		ID:         NewStockID(),
		ItemID:     itemID,
		LocationID: loc.ID,
		Quantity:   0,
		Aisle:      placement.Aisle,
		Row:        placement.Row,
		Bin:        placement.Bin,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		UpdatedBy:  actor.String(),
	}

	if err := tx.CreateStock(ctx, stock); err != nil {
		if errors.Is(err, ErrStockAlreadyExists) {
			return nil, NewLedgerError(ErrStockAlreadyExists, itemID, loc.ID,
				fmt.Sprintf("ロケーション %s には既に在庫記録があります", locationLabel(loc)))
		}
		return nil, asStorageError("create_stock", "在庫作成に失敗しました", err)
	}
	return stock, nil
}

// applyPut adds quantity to a locked stock, saves it and records the movement
func (l *Ledger) applyPut(ctx context.Context, tx Tx, actor Actor, stock *Stock, quantity int64, reason string, cost decimal.Decimal, link *LinkedMovement, events *pendingEvents) (*Stock, error) {
	oldQuantity := stock.Quantity
	l.touch(stock, actor)
	stock.Quantity += quantity

	if err := tx.SaveStock(ctx, stock); err != nil {
		return nil, asStorageError("save_stock", "在庫更新に失敗しました", err)
	}

	movement, err := l.recorder.Record(ctx, tx, actor, stock, quantity, reason, cost, link)
	if err != nil {
		return nil, err
	}

	events.in++
	events.changed = append(events.changed, l.changedEvent(stock, oldQuantity, movement, actor))
	return stock, nil
}

// applyTake removes quantity from a locked stock, saves it and records the movement
func (l *Ledger) applyTake(ctx context.Context, tx Tx, actor Actor, stock *Stock, quantity int64, reason string, link *LinkedMovement, events *pendingEvents) (*Stock, error) {
	if stock.Quantity < quantity {
		return nil, &InsufficientStockError{
			ItemID:     stock.ItemID,
			LocationID: stock.LocationID,
			Available:  stock.Quantity,
			Requested:  quantity,
		}
	}

	oldQuantity := stock.Quantity
	l.touch(stock, actor)
	stock.Quantity -= quantity

	if err := tx.SaveStock(ctx, stock); err != nil {
		return nil, asStorageError("save_stock", "在庫更新に失敗しました", err)
	}

	movement, err := l.recorder.Record(ctx, tx, actor, stock, -quantity, reason, decimal.Zero, link)
	if err != nil {
		return nil, err
	}

	events.out++
	events.changed = append(events.changed, l.changedEvent(stock, oldQuantity, movement, actor))

	// 低在庫チェック
	if l.config.LowStockThreshold > 0 && stock.Quantity <= l.config.LowStockThreshold {
		events.low = append(events.low, LowStockEvent{
			ItemID:     stock.ItemID,
			LocationID: stock.LocationID,
			CurrentQty: stock.Quantity,
			Threshold:  l.config.LowStockThreshold,
			Timestamp:  l.now(),
		})
	}
	return stock, nil
}

func (l *Ledger) touch(stock *Stock, actor Actor) {
	stock.Version++
	stock.UpdatedAt = l.now()
	stock.UpdatedBy = actor.String()
}

func (l *Ledger) changedEvent(stock *Stock, oldQuantity int64, movement *Movement, actor Actor) StockChangedEvent {
	return StockChangedEvent{
		StockID:     stock.ID,
		ItemID:      stock.ItemID,
		LocationID:  stock.LocationID,
		OldQuantity: oldQuantity,
		NewQuantity: stock.Quantity,
		MovementID:  movement.ID,
		Reason:      movement.Reason,
		Timestamp:   movement.CreatedAt,
		Actor:       actor.String(),
	}
}

// publish emits events collected during a committed transaction.
// Publish failures are logged and never undo the committed change.
// コミット済みの変更のイベントを発行
func (l *Ledger) publish(ctx context.Context, events *pendingEvents) {
	l.metrics.movements(events.in, events.out)

	for _, event := range events.low {
		l.logger.Warn("在庫が低下しています",
			zap.String("item_id", event.ItemID),
			zap.String("location_id", event.LocationID),
			zap.Int64("current_qty", event.CurrentQty),
			zap.Int64("threshold", event.Threshold),
		)
	}

	if l.publisher == nil {
		return
	}
	for _, event := range events.changed {
		if err := l.publisher.PublishStockChanged(ctx, event); err != nil {
			l.logger.Error("イベント発行に失敗しました", zap.Error(err))
		}
	}
	for _, event := range events.moved {
		if err := l.publisher.PublishStockMoved(ctx, event); err != nil {
			l.logger.Error("移動イベント発行に失敗しました", zap.Error(err))
		}
	}
	for _, event := range events.low {
		if err := l.publisher.PublishLowStock(ctx, event); err != nil {
			l.logger.Error("低在庫イベント発行に失敗しました", zap.Error(err))
		}
	}
}

// failed logs a rolled back operation and normalizes its error
func (l *Ledger) failed(operation, itemID, locationID string, quantity int64, err error) error {
	err = asStorageError(operation, "在庫操作に失敗しました", err)
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("item_id", itemID),
		zap.String("location_id", locationID),
		zap.Int64("quantity", quantity),
		zap.Error(err),
	}
	if errors.Is(err, ErrPersistenceFailure) {
		l.logger.Error("在庫操作をロールバックしました", fields...)
	} else {
		l.logger.Warn("在庫操作を拒否しました", fields...)
	}
	return err
}

func (l *Ledger) logCompleted(msg string, stock *Stock, quantity int64, reason string, actor Actor) {
	l.logger.Info(msg,
		zap.String("item_id", stock.ItemID),
		zap.String("location_id", stock.LocationID),
		zap.Int64("quantity", quantity),
		zap.Int64("resulting_quantity", stock.Quantity),
		zap.String("reason", reason),
		zap.Stringer("actor", actor),
	)
}

func locationLabel(loc *Location) string {
	if loc.Name != "" {
		return loc.Name
	}
	return loc.ID
}

func locationIDList(locations []*Location) []string {
	ids := make([]string, 0, len(locations))
	for _, loc := range locations {
		ids = append(ids, loc.ID)
	}
	return ids
}

func locationIDs(locations []*Location) string {
	ids := locationIDList(locations)
	if len(ids) == 1 {
		return ids[0]
	}
	return fmt.Sprint(ids)
}
