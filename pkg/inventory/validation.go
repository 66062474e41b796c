package inventory

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// 英数字、ハイフン、アンダースコアのみ許可
	identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	maxCost = decimal.New(9999999999, 0)
)

const (
	maxQuantity     = 999999999999
	maxReasonLength = 500
)

// ValidateItemID 商品IDの形式をバリデーション
func ValidateItemID(itemID string) error {
	if itemID == "" {
		return NewValidationError("item_id", "商品IDが空です", itemID)
	}
	if len(itemID) > 255 {
		return NewValidationError("item_id", "商品IDが長すぎます", itemID)
	}
	if !identifierPattern.MatchString(itemID) {
		return NewValidationError("item_id", "商品IDに無効な文字が含まれています", itemID)
	}
	return nil
}

// ValidateLocationID ロケーションIDの形式をバリデーション
func ValidateLocationID(locationID string) error {
	if locationID == "" {
		return NewValidationError("location_id", "ロケーションIDが空です", locationID)
	}
	if len(locationID) > 255 {
		return NewValidationError("location_id", "ロケーションIDが長すぎます", locationID)
	}
	if !identifierPattern.MatchString(locationID) {
		return NewValidationError("location_id", "ロケーションIDに無効な文字が含まれています", locationID)
	}
	return nil
}

// ValidateQuantity requires a strictly positive quantity, or a non-negative one when allowZero is set.
// 数量をバリデーション
func ValidateQuantity(quantity int64, allowZero bool) error {
	if quantity < 0 || (quantity == 0 && !allowZero) {
		return &ValidationError{
			Field:   "quantity",
			Message: "数量は正の値である必要があります",
			Value:   fmt.Sprintf("%d", quantity),
			Kind:    ErrInvalidQuantity,
		}
	}
	if quantity > maxQuantity {
		return &ValidationError{
			Field:   "quantity",
			Message: "数量が有効範囲を超えています",
			Value:   fmt.Sprintf("%d", quantity),
			Kind:    ErrInvalidQuantity,
		}
	}
	return nil
}

// ValidateReason 理由の形式をバリデーション
func ValidateReason(reason string) error {
	if len(strings.TrimSpace(reason)) > maxReasonLength {
		return NewValidationError("reason", "理由が長すぎます", reason)
	}
	return nil
}

// ValidateCost 原価をバリデーション
func ValidateCost(cost decimal.Decimal) error {
	if cost.IsNegative() {
		return NewValidationError("cost", "原価は0以上である必要があります", cost.String())
	}
	if cost.GreaterThan(maxCost) {
		return NewValidationError("cost", "原価が有効範囲を超えています", cost.String())
	}
	return nil
}

// ValidateActor 実行者をバリデーション
func ValidateActor(actor Actor) error {
	if len(actor) > 255 {
		return NewValidationError("actor", "実行者IDが長すぎます", string(actor))
	}
	return nil
}
