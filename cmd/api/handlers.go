package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nemonet1337/stockledger/pkg/inventory"
)

// ActorHeader carries the identity of the caller performing a mutation
const ActorHeader = "X-Actor-ID"

// pinger is satisfied by the storage layer
type pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handlers for the stock ledger API
// 在庫台帳API用のHTTPハンドラーを保持
type Handlers struct {
	ledger inventory.StockLedger
	items  inventory.ItemInventory
	store  pinger
	logger *zap.Logger
}

// NewHandlers creates new HTTP handlers
// 新しいHTTPハンドラーを作成
func NewHandlers(ledger inventory.StockLedger, items inventory.ItemInventory, store pinger, logger *zap.Logger) *Handlers {
	return &Handlers{
		ledger: ledger,
		items:  items,
		store:  store,
		logger: logger,
	}
}

// APIResponse represents standard API response format
// 標準的なAPIレスポンス形式を表現
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateStockRequest represents request to create a stock record
// 在庫記録作成リクエストを表現
type CreateStockRequest struct {
	ItemID     string          `json:"item_id"`
	LocationID string          `json:"location_id"`
	Quantity   int64           `json:"quantity"`
	Reason     string          `json:"reason"`
	Cost       decimal.Decimal `json:"cost"`
	Aisle      string          `json:"aisle"`
	Row        string          `json:"row"`
	Bin        string          `json:"bin"`
}

// StockChangeRequest represents request to put into or take from one location
// 単一ロケーションへの入出庫リクエストを表現
type StockChangeRequest struct {
	ItemID     string          `json:"item_id"`
	LocationID string          `json:"location_id"`
	Quantity   int64           `json:"quantity"`
	Reason     string          `json:"reason"`
	Cost       decimal.Decimal `json:"cost"`
}

// ManyLocationsRequest represents request to put into or take from several locations
// 複数ロケーションへの一括入出庫リクエストを表現
type ManyLocationsRequest struct {
	ItemID      string          `json:"item_id"`
	LocationIDs []string        `json:"location_ids"`
	Quantity    int64           `json:"quantity"`
	Reason      string          `json:"reason"`
	Cost        decimal.Decimal `json:"cost"`
}

// MoveStockRequest represents request to move stock between locations
// 在庫移動リクエストを表現
type MoveStockRequest struct {
	ItemID         string `json:"item_id"`
	FromLocationID string `json:"from_location_id"`
	ToLocationID   string `json:"to_location_id"`
}

// HealthCheck handles health check requests
// ヘルスチェックリクエストを処理
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("ヘルスチェックに失敗しました", zap.Error(err))
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.send(w, code, APIResponse{
		Success: code == http.StatusOK,
		Data: map[string]interface{}{
			"status":    status,
			"timestamp": time.Now(),
			"service":   "stockledger",
		},
	})
}

// CreateStock handles stock record creation
// 在庫記録作成リクエストを処理
func (h *Handlers) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req CreateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	placement := inventory.Placement{Aisle: req.Aisle, Row: req.Row, Bin: req.Bin}
	stock, err := h.ledger.CreateStockOnLocation(r.Context(), actorFrom(r), req.ItemID,
		inventory.LocationID(req.LocationID), req.Quantity, req.Reason, req.Cost, placement)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.send(w, http.StatusCreated, APIResponse{Success: true, Data: stock})
}

// PutStock handles put requests
// 入庫リクエストを処理
func (h *Handlers) PutStock(w http.ResponseWriter, r *http.Request) {
	var req StockChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	stock, err := h.ledger.PutToLocation(r.Context(), actorFrom(r), req.ItemID,
		inventory.LocationID(req.LocationID), req.Quantity, req.Reason, req.Cost)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendSuccess(w, stock)
}

// TakeStock handles take requests
// 出庫リクエストを処理
func (h *Handlers) TakeStock(w http.ResponseWriter, r *http.Request) {
	var req StockChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	stock, err := h.ledger.TakeFromLocation(r.Context(), actorFrom(r), req.ItemID,
		inventory.LocationID(req.LocationID), req.Quantity, req.Reason)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendSuccess(w, stock)
}

// PutToManyLocations handles batch put requests
// 一括入庫リクエストを処理
func (h *Handlers) PutToManyLocations(w http.ResponseWriter, r *http.Request) {
	var req ManyLocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	stocks, err := h.ledger.PutToManyLocations(r.Context(), actorFrom(r), req.ItemID, req.Quantity,
		locationRefs(req.LocationIDs), req.Reason, req.Cost)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendSuccess(w, stocks)
}

// TakeFromManyLocations handles batch take requests
// 一括出庫リクエストを処理
func (h *Handlers) TakeFromManyLocations(w http.ResponseWriter, r *http.Request) {
	var req ManyLocationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	stocks, err := h.ledger.TakeFromManyLocations(r.Context(), actorFrom(r), req.ItemID, req.Quantity,
		locationRefs(req.LocationIDs), req.Reason)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendSuccess(w, stocks)
}

// MoveStock handles move requests
// 在庫移動リクエストを処理
func (h *Handlers) MoveStock(w http.ResponseWriter, r *http.Request) {
	var req MoveStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "無効なリクエスト形式です")
		return
	}

	stock, err := h.ledger.MoveStock(r.Context(), actorFrom(r), req.ItemID,
		inventory.LocationID(req.FromLocationID), inventory.LocationID(req.ToLocationID))
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendSuccess(w, stock)
}

// GetTotalStock handles total stock requests
// 合計在庫取得リクエストを処理
func (h *Handlers) GetTotalStock(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]

	total, err := h.items.TotalStock(r.Context(), itemID)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendSuccess(w, map[string]interface{}{
		"item_id":     itemID,
		"total_stock": total,
		"in_stock":    total > 0,
	})
}

// GetMetric handles unit of measure requests
// 計量単位取得リクエストを処理
func (h *Handlers) GetMetric(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["itemId"]

	symbol, err := h.items.MetricSymbol(r.Context(), itemID)
	if err != nil {
		h.sendLedgerError(w, err)
		return
	}

	h.sendSuccess(w, map[string]interface{}{
		"item_id": itemID,
		"symbol":  symbol,
	})
}

// ヘルパーメソッド

// actorFrom reads the caller identity from the request
func actorFrom(r *http.Request) inventory.Actor {
	return inventory.Actor(r.Header.Get(ActorHeader))
}

func locationRefs(ids []string) []inventory.LocationRef {
	refs := make([]inventory.LocationRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, inventory.LocationID(id))
	}
	return refs
}

// statusFor maps a ledger error kind to an HTTP status
// エラー種別をHTTPステータスに変換
func statusFor(err error) int {
	var validationErr *inventory.ValidationError
	switch {
	case errors.Is(err, inventory.ErrInvalidQuantity), errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrLocationNotFound),
		errors.Is(err, inventory.ErrStockNotFound),
		errors.Is(err, inventory.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrStockAlreadyExists), errors.Is(err, inventory.ErrVersionMismatch):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrSameLocation),
		errors.Is(err, inventory.ErrNoMetricAssigned):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// sendLedgerError sends a ledger error with the status of its kind
func (h *Handlers) sendLedgerError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("リクエスト処理に失敗しました", zap.Error(err))
		h.sendError(w, code, "内部エラーが発生しました")
		return
	}
	h.sendError(w, code, err.Error())
}

// sendSuccess sends a successful API response
// 成功APIレスポンスを送信
func (h *Handlers) sendSuccess(w http.ResponseWriter, data interface{}) {
	h.send(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error API response
// エラーAPIレスポンスを送信
func (h *Handlers) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.send(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

func (h *Handlers) send(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("レスポンス送信に失敗しました", zap.Error(err))
	}
}
