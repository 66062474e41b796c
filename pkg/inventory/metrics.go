package inventory

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the ledger
// 台帳のPrometheusメトリクス
type Metrics struct {
	// 操作総数（operation, result）
	OperationsTotal *prometheus.CounterVec
	// 操作の所要時間（秒）
	OperationDuration *prometheus.HistogramVec
	// 移動記録数（direction = in/out）
	MovementsTotal *prometheus.CounterVec
}

// NewMetrics creates the ledger collectors and registers them with reg.
// A nil reg leaves them unregistered.
// メトリクスを作成し登録
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stockledger",
				Name:      "operations_total",
				Help:      "在庫台帳操作の総数",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stockledger",
				Name:      "operation_duration_seconds",
				Help:      "在庫台帳操作の所要時間（秒）",
				// 1ms〜5s
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		MovementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stockledger",
				Name:      "movements_total",
				Help:      "記録された移動の総数",
			},
			[]string{"direction"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.OperationsTotal, m.OperationDuration, m.MovementsTotal)
	}
	return m
}

// observe records the outcome of one ledger operation
func (m *Metrics) observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) movements(in, out int) {
	if m == nil {
		return
	}
	if in > 0 {
		m.MovementsTotal.WithLabelValues("in").Add(float64(in))
	}
	if out > 0 {
		m.MovementsTotal.WithLabelValues("out").Add(float64(out))
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrLocationNotFound):
		return "location_not_found"
	case errors.Is(err, ErrStockNotFound):
		return "stock_not_found"
	case errors.Is(err, ErrStockAlreadyExists):
		return "stock_already_exists"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	}
	return "error"
}
