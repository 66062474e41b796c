package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// LocationResolver normalizes a LocationRef into a concrete Location
// LocationRefを具体的なロケーションに解決
type LocationResolver struct {
	directory LocationDirectory
	logger    *zap.Logger
}

// NewLocationResolver creates a new location resolver
// 新しいロケーションリゾルバーを作成
func NewLocationResolver(directory LocationDirectory, logger *zap.Logger) *LocationResolver {
	return &LocationResolver{
		directory: directory,
		logger:    logger,
	}
}

// Resolve returns an already resolved location unchanged and looks identifiers up.
// It never mutates the location.
// 解決済みならそのまま返し、IDの場合は検索する
func (r *LocationResolver) Resolve(ctx context.Context, ref LocationRef) (*Location, error) {
	switch v := ref.(type) {
	case *Location:
		if v == nil {
			return nil, NewLedgerError(ErrLocationNotFound, "", "", "ロケーションが指定されていません")
		}
		return v, nil
	case LocationID:
		if err := ValidateLocationID(string(v)); err != nil {
			return nil, NewLedgerError(ErrLocationNotFound, "", string(v), err.Error())
		}
		location, err := r.directory.GetLocation(ctx, string(v))
		if err != nil {
			if errors.Is(err, ErrLocationNotFound) {
				return nil, NewLedgerError(ErrLocationNotFound, "", string(v), "ロケーションを解決できません")
			}
			r.logger.Error("ロケーション取得に失敗しました", zap.String("location_id", string(v)), zap.Error(err))
			return nil, asStorageError("get_location", "ロケーション取得に失敗しました", err)
		}
		return location, nil
	default:
		return nil, NewLedgerError(ErrLocationNotFound, "", "", fmt.Sprintf("未対応のロケーション参照です: %T", ref))
	}
}

// ResolveAll resolves refs in order
// 指定順にすべて解決
func (r *LocationResolver) ResolveAll(ctx context.Context, refs []LocationRef) ([]*Location, error) {
	locations := make([]*Location, 0, len(refs))
	for _, ref := range refs {
		location, err := r.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	return locations, nil
}
