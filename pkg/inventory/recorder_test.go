package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockTx はテスト用のTxモック
type MockTx struct {
	mock.Mock
}

func (m *MockTx) GetLocation(ctx context.Context, locationID string) (*Location, error) {
	args := m.Called(ctx, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Location), args.Error(1)
}

func (m *MockTx) GetItem(ctx context.Context, itemID string) (*Item, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Item), args.Error(1)
}

func (m *MockTx) FindStock(ctx context.Context, itemID, locationID string) (*Stock, error) {
	args := m.Called(ctx, itemID, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Stock), args.Error(1)
}

func (m *MockTx) FindStockForUpdate(ctx context.Context, itemID, locationID string) (*Stock, error) {
	args := m.Called(ctx, itemID, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Stock), args.Error(1)
}

func (m *MockTx) LockStockKey(ctx context.Context, itemID, locationID string) error {
	return m.Called(ctx, itemID, locationID).Error(0)
}

func (m *MockTx) CreateStock(ctx context.Context, stock *Stock) error {
	return m.Called(ctx, stock).Error(0)
}

func (m *MockTx) SaveStock(ctx context.Context, stock *Stock) error {
	return m.Called(ctx, stock).Error(0)
}

func (m *MockTx) AppendMovement(ctx context.Context, movement *Movement) error {
	return m.Called(ctx, movement).Error(0)
}

// TestMovementRecorder_Record は移動記録作成のテスト
func TestMovementRecorder_Record(t *testing.T) {
	tx := new(MockTx)
	recorder := NewMovementRecorder(zap.NewNop())
	fixed := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	recorder.now = func() time.Time { return fixed }
	ctx := context.Background()

	stock := &Stock{ID: "STOCK-1", ItemID: "ITEM-1", LocationID: "LOC-A", Quantity: 15}
	tx.On("AppendMovement", ctx, mock.AnythingOfType("*inventory.Movement")).Return(nil)

	movement, err := recorder.Record(ctx, tx, "alice", stock, 5, "入荷", decimal.NewFromInt(300), nil)

	require.NoError(t, err)
	assert.NotEmpty(t, movement.ID)
	assert.Equal(t, "STOCK-1", movement.StockID)
	assert.Equal(t, int64(5), movement.Delta)
	assert.Equal(t, int64(15), movement.Quantity)
	assert.Equal(t, fixed, movement.CreatedAt)
	assert.Equal(t, "alice", movement.CreatedBy)
	assert.Nil(t, movement.TransferID)
	assert.Nil(t, movement.CounterpartID)
	tx.AssertExpectations(t)
}

// TestMovementRecorder_Linked は移動の紐付けのテスト
func TestMovementRecorder_Linked(t *testing.T) {
	tx := new(MockTx)
	recorder := NewMovementRecorder(zap.NewNop())
	ctx := context.Background()

	tx.On("AppendMovement", ctx, mock.MatchedBy(func(m *Movement) bool {
		return m.ID == "MOVE-OUT" && *m.TransferID == "TRANSFER-1" && *m.CounterpartID == "MOVE-IN"
	})).Return(nil)

	stock := &Stock{ID: "STOCK-1", ItemID: "ITEM-1", LocationID: "LOC-A"}
	link := &LinkedMovement{TransferID: "TRANSFER-1", MovementID: "MOVE-OUT", CounterpartID: "MOVE-IN"}

	movement, err := recorder.Record(ctx, tx, "", stock, -3, "", decimal.Zero, link)

	require.NoError(t, err)
	assert.Equal(t, "MOVE-OUT", movement.ID)
	assert.Equal(t, "system", movement.CreatedBy)
	tx.AssertExpectations(t)
}

// TestMovementRecorder_AppendFailure は追加失敗が永続化エラーになることのテスト
func TestMovementRecorder_AppendFailure(t *testing.T) {
	tx := new(MockTx)
	recorder := NewMovementRecorder(zap.NewNop())
	ctx := context.Background()

	cause := errors.New("disk full")
	tx.On("AppendMovement", ctx, mock.Anything).Return(cause)

	_, err := recorder.Record(ctx, tx, "alice", &Stock{ID: "STOCK-1"}, 1, "", decimal.Zero, nil)

	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.ErrorIs(t, err, cause)
}
