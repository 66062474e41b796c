// Package inventory provides the stock ledger: per-location stock records
// and the auditable movements that change them.
package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Metric is a unit of measure assigned to an item
// 商品に割り当てられる計量単位
type Metric struct {
	ID     string `json:"id" db:"id"`         // 単位ID
	Name   string `json:"name" db:"name"`     // 単位名
	Symbol string `json:"symbol" db:"symbol"` // 記号（kg, pcs など）
}

// Item represents a catalog entry whose stock is tracked
// 在庫を追跡するカタログ上の商品を表現
type Item struct {
	ID        string    `json:"id" db:"id"`                 // 商品ID
	Name      string    `json:"name" db:"name"`             // 商品名
	SKU       string    `json:"sku" db:"sku"`               // SKU
	Metric    *Metric   `json:"metric,omitempty" db:"-"`    // 計量単位（任意）
	CreatedAt time.Time `json:"created_at" db:"created_at"` // 作成日時
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // 更新日時
}

// Location represents a physical place where stock can reside
// 在庫が物理的に存在する場所を表現
type Location struct {
	ID        string    `json:"id" db:"id"`                 // ロケーションID
	Name      string    `json:"name" db:"name"`             // ロケーション名
	Aisle     string    `json:"aisle,omitempty" db:"aisle"` // 通路
	Row       string    `json:"row,omitempty" db:"row"`     // 列
	Bin       string    `json:"bin,omitempty" db:"bin"`     // 棚
	CreatedAt time.Time `json:"created_at" db:"created_at"` // 作成日時
}

// Stock is the quantity of one item held at one location.
// At most one Stock exists per (ItemID, LocationID).
// 1つのロケーションにおける1商品の在庫数量
type Stock struct {
	ID         string    `json:"id" db:"id"`                   // 在庫ID
	ItemID     string    `json:"item_id" db:"item_id"`         // 商品ID
	LocationID string    `json:"location_id" db:"location_id"` // ロケーションID
	Quantity   int64     `json:"quantity" db:"quantity"`       // 在庫数量（負にならない）
	Aisle      string    `json:"aisle,omitempty" db:"aisle"`   // 作成時の通路
	Row        string    `json:"row,omitempty" db:"row"`       // 作成時の列
	Bin        string    `json:"bin,omitempty" db:"bin"`       // 作成時の棚
	Version    int64     `json:"version" db:"version"`         // 楽観的ロック用バージョン
	CreatedAt  time.Time `json:"created_at" db:"created_at"`   // 作成日時
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`   // 最終更新日時
	UpdatedBy  string    `json:"updated_by" db:"updated_by"`   // 更新者
}

// Movement is an immutable audit entry for one quantity change
// 在庫数量変更の不変な監査記録
type Movement struct {
	ID            string          `json:"id" db:"id"`                                     // 移動ID
	StockID       string          `json:"stock_id" db:"stock_id"`                         // 在庫ID
	ItemID        string          `json:"item_id" db:"item_id"`                           // 商品ID
	LocationID    string          `json:"location_id" db:"location_id"`                   // ロケーションID
	Delta         int64           `json:"delta" db:"delta"`                               // 増減数量（符号付き）
	Quantity      int64           `json:"quantity" db:"quantity"`                         // 変更後数量
	Reason        string          `json:"reason" db:"reason"`                             // 理由
	Cost          decimal.Decimal `json:"cost" db:"cost"`                                 // 原価
	TransferID    *string         `json:"transfer_id,omitempty" db:"transfer_id"`         // ロケーション間移動ID
	CounterpartID *string         `json:"counterpart_id,omitempty" db:"counterpart_id"`   // 相手側の移動ID
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`                     // 作成日時
	CreatedBy     string          `json:"created_by" db:"created_by"`                     // 作成者
}

// Placement is the optional aisle/row/bin snapshot stored on a new Stock
// 在庫作成時に保存する通路・列・棚
type Placement struct {
	Aisle string `json:"aisle,omitempty"`
	Row   string `json:"row,omitempty"`
	Bin   string `json:"bin,omitempty"`
}

// IsZero reports whether no placement field is set.
func (p Placement) IsZero() bool {
	return p.Aisle == "" && p.Row == "" && p.Bin == ""
}

// Actor identifies who performs a ledger operation.
// It is passed explicitly to every mutation.
// 操作の実行者。すべての更新操作に明示的に渡す
type Actor string

// SystemActor is used when no caller identity is available
const SystemActor Actor = "system"

func (a Actor) String() string {
	if a == "" {
		return string(SystemActor)
	}
	return string(a)
}

// LocationRef is either a LocationID or an already resolved *Location
// ロケーションIDまたは解決済みのロケーション
type LocationRef interface {
	locationRef()
}

// LocationID refers to a stored Location by identifier
type LocationID string

func (LocationID) locationRef() {}

func (*Location) locationRef() {}

// LinkedMovement ties a movement to its counterpart on the other side of a transfer
// 移動の相手側の記録との紐付け
type LinkedMovement struct {
	TransferID    string
	MovementID    string
	CounterpartID string
}

// NewStockID generates a new stock record ID
// 新しい在庫IDを生成
func NewStockID() string {
	return uuid.New().String()
}

// NewMovementID generates a new movement ID
// 新しい移動記録IDを生成
func NewMovementID() string {
	return uuid.New().String()
}

// NewTransferID generates an ID shared by both movements of a transfer
func NewTransferID() string {
	return uuid.New().String()
}
