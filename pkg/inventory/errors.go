package inventory

import (
	"errors"
	"fmt"
)

// Ledger error kinds
// 在庫台帳のエラー種別

var (
	// ErrLocationNotFound is returned when a location reference does not resolve
	// ロケーションが存在しない場合のエラー
	ErrLocationNotFound = errors.New("ロケーションが見つかりません")

	// ErrStockNotFound is returned when no stock record exists for an item and location
	// 在庫記録が存在しない場合のエラー
	ErrStockNotFound = errors.New("在庫記録が見つかりません")

	// ErrStockAlreadyExists is returned when creating a stock record that already exists
	// 在庫記録が既に存在する場合のエラー
	ErrStockAlreadyExists = errors.New("在庫記録は既に存在します")

	// ErrInsufficientStock is returned when a take would drive quantity negative
	// 在庫不足の場合のエラー
	ErrInsufficientStock = errors.New("在庫が不足しています")

	// ErrInvalidQuantity is returned for zero or negative quantities where a positive one is required
	// 数量が不正な場合のエラー
	ErrInvalidQuantity = errors.New("数量は正の値である必要があります")

	// ErrNoMetricAssigned is returned when projecting the metric of an item without one
	// 計量単位が割り当てられていない場合のエラー
	ErrNoMetricAssigned = errors.New("計量単位が割り当てられていません")

	// ErrPersistenceFailure is returned when the store could not durably commit
	// 永続化に失敗した場合のエラー
	ErrPersistenceFailure = errors.New("永続化に失敗しました")

	// ErrItemNotFound is returned when an item doesn't exist
	// 商品が存在しない場合のエラー
	ErrItemNotFound = errors.New("商品が見つかりません")

	// ErrSameLocation is returned when a move names the same source and destination
	// 移動元と移動先が同じ場合のエラー
	ErrSameLocation = errors.New("移動元と移動先が同じです")

	// ErrVersionMismatch is returned when optimistic locking fails
	// 楽観的ロック失敗時のエラー
	ErrVersionMismatch = errors.New("バージョンが一致しません。他の操作によって更新されています")
)

// LedgerError carries an error kind together with the offending identifiers
// エラー種別と対象の識別子を保持するエラー
type LedgerError struct {
	Kind       error  `json:"-"`           // エラー種別
	ItemID     string `json:"item_id"`     // 商品ID
	LocationID string `json:"location_id"` // ロケーションID
	Message    string `json:"message"`     // 詳細メッセージ
}

func (e *LedgerError) Error() string {
	switch {
	case e.ItemID != "" && e.LocationID != "":
		return fmt.Sprintf("%v [商品: %s, ロケーション: %s]: %s", e.Kind, e.ItemID, e.LocationID, e.Message)
	case e.LocationID != "":
		return fmt.Sprintf("%v [ロケーション: %s]: %s", e.Kind, e.LocationID, e.Message)
	case e.ItemID != "":
		return fmt.Sprintf("%v [商品: %s]: %s", e.Kind, e.ItemID, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Kind
}

// InsufficientStockError reports the available and requested quantities of a rejected take
// 在庫不足時の利用可能数量と要求数量
type InsufficientStockError struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	Available  int64  `json:"available"`
	Requested  int64  `json:"requested"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%v [商品: %s, ロケーション: %s]: 利用可能 %d, 要求 %d",
		ErrInsufficientStock, e.ItemID, e.LocationID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
	Kind    error  `json:"-"`       // 対応するエラー種別（任意）
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// StorageError represents a storage layer error.
// It matches ErrPersistenceFailure and unwraps to its cause.
// ストレージ層のエラーを表現
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func (e *StorageError) Is(target error) bool {
	return target == ErrPersistenceFailure
}

// NewLedgerError creates a new ledger error of the given kind
// 新しい台帳エラーを作成
func NewLedgerError(kind error, itemID, locationID, message string) *LedgerError {
	return &LedgerError{
		Kind:       kind,
		ItemID:     itemID,
		LocationID: locationID,
		Message:    message,
	}
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// asStorageError keeps ledger error kinds intact and wraps anything else as a persistence failure
func asStorageError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		ErrLocationNotFound, ErrStockNotFound, ErrStockAlreadyExists, ErrInsufficientStock,
		ErrInvalidQuantity, ErrItemNotFound, ErrSameLocation, ErrVersionMismatch, ErrPersistenceFailure,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return NewStorageError(operation, message, err)
}
