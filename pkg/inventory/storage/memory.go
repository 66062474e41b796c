package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/nemonet1337/stockledger/pkg/inventory"
)

type stockKey struct {
	itemID     string
	locationID string
}

// MemoryStorage is an in-process Store. Transactions are serialized by a
// single mutex and rolled back by replaying an undo journal.
// プロセス内ストレージ（テスト・サンプル用）
type MemoryStorage struct {
	mu        sync.Mutex
	items     map[string]*inventory.Item
	locations map[string]*inventory.Location
	stocks    map[stockKey]*inventory.Stock
	movements []inventory.Movement
	onAppend  func(*inventory.Movement) error
	logger    *zap.Logger
}

var _ inventory.Store = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage
// 新しいメモリストレージを作成
func NewMemoryStorage(logger *zap.Logger) *MemoryStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStorage{
		items:     make(map[string]*inventory.Item),
		locations: make(map[string]*inventory.Location),
		stocks:    make(map[stockKey]*inventory.Stock),
		logger:    logger,
	}
}

// AddItem stores an item
// 商品を登録
func (s *MemoryStorage) AddItem(item inventory.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("商品は既に存在します: %s", item.ID)
	}
	s.items[item.ID] = copyItem(&item)
	return nil
}

// AddLocation stores a location
// ロケーションを登録
func (s *MemoryStorage) AddLocation(location inventory.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[location.ID]; ok {
		return fmt.Errorf("ロケーションは既に存在します: %s", location.ID)
	}
	loc := location
	s.locations[location.ID] = &loc
	return nil
}

// OnAppend installs a hook run before each movement append; a non-nil error fails the append
func (s *MemoryStorage) OnAppend(hook func(*inventory.Movement) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAppend = hook
}

// Movements returns the committed movements of a stock record in append order
// 在庫記録の移動履歴を取得
func (s *MemoryStorage) Movements(stockID string) []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []inventory.Movement
	for _, m := range s.movements {
		if m.StockID == stockID {
			result = append(result, m)
		}
	}
	return result
}

// WithinTx runs fn holding the store mutex; any error undoes fn's writes
// トランザクション内で関数を実行
func (s *MemoryStorage) WithinTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		s.logger.Debug("トランザクションをロールバックしました", zap.Int("undo_steps", len(tx.undo)), zap.Error(err))
		return err
	}
	return nil
}

// GetLocation retrieves a location by ID
func (s *MemoryStorage) GetLocation(ctx context.Context, locationID string) (*inventory.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocation(locationID)
}

// GetItem retrieves an item by ID
func (s *MemoryStorage) GetItem(ctx context.Context, itemID string) (*inventory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getItem(itemID)
}

// ListStockByItem returns all stock records of an item ordered by location
// 商品の全在庫記録を取得
func (s *MemoryStorage) ListStockByItem(ctx context.Context, itemID string) ([]inventory.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stocks []inventory.Stock
	for key, stock := range s.stocks {
		if key.itemID == itemID {
			stocks = append(stocks, *stock)
		}
	}
	sort.Slice(stocks, func(i, j int) bool {
		return stocks[i].LocationID < stocks[j].LocationID
	})
	return stocks, nil
}

// Ping always succeeds
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) getLocation(locationID string) (*inventory.Location, error) {
	loc, ok := s.locations[locationID]
	if !ok {
		return nil, inventory.ErrLocationNotFound
	}
	copied := *loc
	return &copied, nil
}

func (s *MemoryStorage) getItem(itemID string) (*inventory.Item, error) {
	item, ok := s.items[itemID]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	return copyItem(item), nil
}

// memoryTx runs with the store mutex held
type memoryTx struct {
	store *MemoryStorage
	undo  []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) GetLocation(ctx context.Context, locationID string) (*inventory.Location, error) {
	return t.store.getLocation(locationID)
}

func (t *memoryTx) GetItem(ctx context.Context, itemID string) (*inventory.Item, error) {
	return t.store.getItem(itemID)
}

func (t *memoryTx) FindStock(ctx context.Context, itemID, locationID string) (*inventory.Stock, error) {
	stock, ok := t.store.stocks[stockKey{itemID, locationID}]
	if !ok {
		return nil, inventory.ErrStockNotFound
	}
	copied := *stock
	return &copied, nil
}

// FindStockForUpdate needs no extra locking; the transaction already holds the store mutex
func (t *memoryTx) FindStockForUpdate(ctx context.Context, itemID, locationID string) (*inventory.Stock, error) {
	return t.FindStock(ctx, itemID, locationID)
}

func (t *memoryTx) LockStockKey(ctx context.Context, itemID, locationID string) error {
	return ctx.Err()
}

func (t *memoryTx) CreateStock(ctx context.Context, stock *inventory.Stock) error {
	key := stockKey{stock.ItemID, stock.LocationID}
	if _, ok := t.store.stocks[key]; ok {
		return inventory.ErrStockAlreadyExists
	}

	copied := *stock
	t.store.stocks[key] = &copied
	t.undo = append(t.undo, func() { delete(t.store.stocks, key) })
	return nil
}

func (t *memoryTx) SaveStock(ctx context.Context, stock *inventory.Stock) error {
	key := stockKey{stock.ItemID, stock.LocationID}
	current, ok := t.store.stocks[key]
	if !ok {
		return inventory.ErrStockNotFound
	}
	if current.Version != stock.Version-1 {
		return inventory.ErrVersionMismatch
	}

	previous := *current
	copied := *stock
	t.store.stocks[key] = &copied
	t.undo = append(t.undo, func() { t.store.stocks[key] = &previous })
	return nil
}

func (t *memoryTx) AppendMovement(ctx context.Context, movement *inventory.Movement) error {
	if t.store.onAppend != nil {
		if err := t.store.onAppend(movement); err != nil {
			return err
		}
	}

	n := len(t.store.movements)
	t.store.movements = append(t.store.movements, *movement)
	t.undo = append(t.undo, func() { t.store.movements = t.store.movements[:n] })
	return nil
}

func copyItem(item *inventory.Item) *inventory.Item {
	copied := *item
	if item.Metric != nil {
		metric := *item.Metric
		copied.Metric = &metric
	}
	return &copied
}
