package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nemonet1337/stockledger/internal/config"
	"github.com/nemonet1337/stockledger/pkg/inventory"
	"github.com/nemonet1337/stockledger/pkg/inventory/storage"
)

// newTestRouter はメモリストレージを使ったテスト用ルーターを作成
func newTestRouter(t *testing.T) (*mux.Router, *storage.MemoryStorage) {
	t.Helper()

	store := storage.NewMemoryStorage(zap.NewNop())
	require.NoError(t, store.AddItem(inventory.Item{
		ID:     "ITEM-1",
		Name:   "テスト商品",
		Metric: &inventory.Metric{ID: "pcs", Name: "個", Symbol: "pcs"},
	}))
	require.NoError(t, store.AddItem(inventory.Item{ID: "ITEM-2", Name: "単位なし商品"}))
	require.NoError(t, store.AddLocation(inventory.Location{ID: "LOC-A", Name: "倉庫A"}))
	require.NoError(t, store.AddLocation(inventory.Location{ID: "LOC-B", Name: "倉庫B"}))

	registry := prometheus.NewRegistry()
	ledger := inventory.NewLedger(store, nil, zap.NewNop(), inventory.DefaultConfig(),
		inventory.WithMetrics(inventory.NewMetrics(registry)))
	handlers := NewHandlers(ledger, inventory.NewFacade(store, zap.NewNop()), store, zap.NewNop())

	return setupRouter(handlers, config.Default().API, registry), store
}

// doRequest はリクエストを送信してレスポンスを返す
func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ActorHeader, "tester")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var response APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	}
	return rec, response
}

// TestHandlers_CreateAndQuery は在庫作成と照会のテスト
func TestHandlers_CreateAndQuery(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/stocks", map[string]interface{}{
		"item_id":     "ITEM-1",
		"location_id": "LOC-A",
		"quantity":    20,
		"reason":      "初期入庫",
		"cost":        "150.25",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(20), data["quantity"])
	assert.Equal(t, "tester", data["updated_by"])

	rec, resp = doRequest(t, router, http.MethodGet, "/api/v1/items/ITEM-1/total", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, float64(20), data["total_stock"])
	assert.Equal(t, true, data["in_stock"])

	rec, resp = doRequest(t, router, http.MethodGet, "/api/v1/items/ITEM-1/metric", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pcs", resp.Data.(map[string]interface{})["symbol"])
}

// TestHandlers_PutTakeMove は入出庫と移動のテスト
func TestHandlers_PutTakeMove(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/stocks", map[string]interface{}{
		"item_id": "ITEM-1", "location_id": "LOC-A", "quantity": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/stocks/put", map[string]interface{}{
		"item_id": "ITEM-1", "location_id": "LOC-A", "quantity": 5, "reason": "入荷",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(15), resp.Data.(map[string]interface{})["quantity"])

	rec, resp = doRequest(t, router, http.MethodPost, "/api/v1/stocks/take", map[string]interface{}{
		"item_id": "ITEM-1", "location_id": "LOC-A", "quantity": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(12), resp.Data.(map[string]interface{})["quantity"])

	rec, resp = doRequest(t, router, http.MethodPost, "/api/v1/stocks/move", map[string]interface{}{
		"item_id": "ITEM-1", "from_location_id": "LOC-A", "to_location_id": "LOC-B",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "LOC-B", data["location_id"])
	assert.Equal(t, float64(12), data["quantity"])
}

// TestHandlers_ManyLocations は一括入出庫のテスト
func TestHandlers_ManyLocations(t *testing.T) {
	router, store := newTestRouter(t)

	for _, loc := range []string{"LOC-A", "LOC-B"} {
		rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/stocks", map[string]interface{}{
			"item_id": "ITEM-1", "location_id": loc, "quantity": 4,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, resp := doRequest(t, router, http.MethodPost, "/api/v1/stocks/put-many", map[string]interface{}{
		"item_id": "ITEM-1", "location_ids": []string{"LOC-A", "LOC-B"}, "quantity": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 2)

	// 各ロケーションに6しかないため全体が取り消される
	rec, _ = doRequest(t, router, http.MethodPost, "/api/v1/stocks/take-many", map[string]interface{}{
		"item_id": "ITEM-1", "location_ids": []string{"LOC-A", "LOC-B"}, "quantity": 7,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	stocks, err := store.ListStockByItem(context.Background(), "ITEM-1")
	require.NoError(t, err)
	for _, stock := range stocks {
		assert.Equal(t, int64(6), stock.Quantity)
	}
}

// TestHandlers_ErrorStatus はエラー種別ごとのHTTPステータスのテスト
func TestHandlers_ErrorStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/stocks", map[string]interface{}{
		"item_id": "ITEM-1", "location_id": "LOC-A", "quantity": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"重複作成", http.MethodPost, "/api/v1/stocks",
			map[string]interface{}{"item_id": "ITEM-1", "location_id": "LOC-A", "quantity": 1}, http.StatusConflict},
		{"未登録ロケーション", http.MethodPost, "/api/v1/stocks/put",
			map[string]interface{}{"item_id": "ITEM-1", "location_id": "LOC-X", "quantity": 1}, http.StatusNotFound},
		{"在庫記録なし", http.MethodPost, "/api/v1/stocks/take",
			map[string]interface{}{"item_id": "ITEM-1", "location_id": "LOC-B", "quantity": 1}, http.StatusNotFound},
		{"数量0", http.MethodPost, "/api/v1/stocks/put",
			map[string]interface{}{"item_id": "ITEM-1", "location_id": "LOC-A", "quantity": 0}, http.StatusBadRequest},
		{"在庫不足", http.MethodPost, "/api/v1/stocks/take",
			map[string]interface{}{"item_id": "ITEM-1", "location_id": "LOC-A", "quantity": 2}, http.StatusUnprocessableEntity},
		{"同一ロケーション", http.MethodPost, "/api/v1/stocks/move",
			map[string]interface{}{"item_id": "ITEM-1", "from_location_id": "LOC-A", "to_location_id": "LOC-A"}, http.StatusUnprocessableEntity},
		{"計量単位なし", http.MethodGet, "/api/v1/items/ITEM-2/metric", nil, http.StatusUnprocessableEntity},
		{"未登録商品", http.MethodGet, "/api/v1/items/ITEM-X/total", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doRequest(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

// TestHandlers_InvalidBody は不正なリクエスト形式のテスト
func TestHandlers_InvalidBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/stocks/put", strings.NewReader("{invalid"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHandlers_HealthAndMetrics はヘルスチェックとメトリクスのテスト
func TestHandlers_HealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, resp := doRequest(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	doRequest(t, router, http.MethodPost, "/api/v1/stocks", map[string]interface{}{
		"item_id": "ITEM-1", "location_id": "LOC-A", "quantity": 1,
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	router.ServeHTTP(metricsRec, req)

	assert.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), `stockledger_operations_total{operation="create",result="success"} 1`)
}

// TestStatusFor はエラーからHTTPステータスへの変換のテスト
func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(inventory.ValidateItemID("")))
	assert.Equal(t, http.StatusConflict, statusFor(inventory.ErrVersionMismatch))
	assert.Equal(t, http.StatusInternalServerError, statusFor(inventory.NewStorageError("op", "msg", nil)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("unexpected")))
}
