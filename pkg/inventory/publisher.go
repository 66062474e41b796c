package inventory

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher is an EventPublisher that writes every event to the log
// イベントをログに出力するEventPublisher
type LogPublisher struct {
	logger *zap.Logger
}

var _ EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a new log publisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) PublishStockChanged(ctx context.Context, event StockChangedEvent) error {
	p.logger.Info("在庫変更イベント",
		zap.String("stock_id", event.StockID),
		zap.String("item_id", event.ItemID),
		zap.String("location_id", event.LocationID),
		zap.Int64("old_quantity", event.OldQuantity),
		zap.Int64("new_quantity", event.NewQuantity),
		zap.String("movement_id", event.MovementID),
		zap.String("actor", event.Actor),
	)
	return nil
}

func (p *LogPublisher) PublishStockMoved(ctx context.Context, event StockMovedEvent) error {
	p.logger.Info("在庫移動イベント",
		zap.String("transfer_id", event.TransferID),
		zap.String("item_id", event.ItemID),
		zap.String("from_location_id", event.FromLocationID),
		zap.String("to_location_id", event.ToLocationID),
		zap.Int64("quantity", event.Quantity),
		zap.String("actor", event.Actor),
	)
	return nil
}

func (p *LogPublisher) PublishLowStock(ctx context.Context, event LowStockEvent) error {
	p.logger.Warn("低在庫イベント",
		zap.String("item_id", event.ItemID),
		zap.String("location_id", event.LocationID),
		zap.Int64("current_qty", event.CurrentQty),
		zap.Int64("threshold", event.Threshold),
	)
	return nil
}
