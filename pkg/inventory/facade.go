package inventory

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Facade aggregates the stock records of a single item. It only reads.
// 商品単位で在庫記録を集計する（読み取りのみ）
type Facade struct {
	store  Store
	logger *zap.Logger
}

var _ ItemInventory = (*Facade)(nil)

// NewFacade creates a new item inventory facade
// 新しい商品在庫ファサードを作成
func NewFacade(store Store, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		store:  store,
		logger: logger,
	}
}

// TotalStock returns the sum of quantities over all stock records of the item
// 商品の全ロケーション合計在庫を取得
func (f *Facade) TotalStock(ctx context.Context, itemID string) (int64, error) {
	if _, err := f.item(ctx, itemID); err != nil {
		return 0, err
	}

	stocks, err := f.store.ListStockByItem(ctx, itemID)
	if err != nil {
		f.logger.Error("合計在庫数取得に失敗しました", zap.String("item_id", itemID), zap.Error(err))
		return 0, asStorageError("list_stock_by_item", "在庫一覧取得に失敗しました", err)
	}

	var total int64
	for _, stock := range stocks {
		total += stock.Quantity
	}
	return total, nil
}

// IsInStock reports whether the item's total stock is positive
// 在庫があるかを判定
func (f *Facade) IsInStock(ctx context.Context, itemID string) (bool, error) {
	total, err := f.TotalStock(ctx, itemID)
	if err != nil {
		return false, err
	}
	return total > 0, nil
}

// HasMetric reports whether the item has a unit of measure
func (f *Facade) HasMetric(ctx context.Context, itemID string) (bool, error) {
	item, err := f.item(ctx, itemID)
	if err != nil {
		return false, err
	}
	return item.Metric != nil, nil
}

// MetricSymbol returns the symbol of the item's unit of measure, or ErrNoMetricAssigned
// 計量単位の記号を取得
func (f *Facade) MetricSymbol(ctx context.Context, itemID string) (string, error) {
	item, err := f.item(ctx, itemID)
	if err != nil {
		return "", err
	}
	if item.Metric == nil {
		return "", NewLedgerError(ErrNoMetricAssigned, itemID, "", "商品に計量単位がありません")
	}
	return item.Metric.Symbol, nil
}

func (f *Facade) item(ctx context.Context, itemID string) (*Item, error) {
	if err := ValidateItemID(itemID); err != nil {
		return nil, err
	}
	item, err := f.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, NewLedgerError(ErrItemNotFound, itemID, "", "商品が存在しません")
		}
		return nil, asStorageError("get_item", "商品取得に失敗しました", err)
	}
	return item, nil
}
