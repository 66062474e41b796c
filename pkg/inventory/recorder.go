package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MovementRecorder appends the audit movement for every quantity change
// 数量変更ごとに監査用の移動記録を追加
type MovementRecorder struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewMovementRecorder creates a new movement recorder
// 新しい移動記録レコーダーを作成
func NewMovementRecorder(logger *zap.Logger) *MovementRecorder {
	return &MovementRecorder{
		logger: logger,
		now:    time.Now,
	}
}

// Record appends a movement for stock after the delta has been applied to it.
// The resulting quantity is read from stock. A failed append is returned as a
// persistence failure so the enclosing transaction rolls the change back.
// 変更適用後の在庫に対する移動記録を作成
func (r *MovementRecorder) Record(ctx context.Context, tx Tx, actor Actor, stock *Stock, delta int64, reason string, cost decimal.Decimal, link *LinkedMovement) (*Movement, error) {
	movement := &Movement{
		ID:         NewMovementID(),
		StockID:    stock.ID,
		ItemID:     stock.ItemID,
		LocationID: stock.LocationID,
		Delta:      delta,
		Quantity:   stock.Quantity,
		Reason:     reason,
		Cost:       cost,
		CreatedAt:  r.now(),
		CreatedBy:  actor.String(),
	}

	if link != nil {
		transferID := link.TransferID
		counterpartID := link.CounterpartID
		movement.ID = link.MovementID
		movement.TransferID = &transferID
		movement.CounterpartID = &counterpartID
	}

	if err := tx.AppendMovement(ctx, movement); err != nil {
		r.logger.Error("移動記録の追加に失敗しました",
			zap.String("stock_id", stock.ID),
			zap.Int64("delta", delta),
			zap.Error(err),
		)
		return nil, NewStorageError("append_movement", "移動記録の追加に失敗しました", err)
	}

	r.logger.Debug("移動記録追加完了",
		zap.String("movement_id", movement.ID),
		zap.String("stock_id", stock.ID),
		zap.Int64("delta", delta),
		zap.Int64("quantity", movement.Quantity),
	)

	return movement, nil
}
