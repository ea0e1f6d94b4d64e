package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/eduszlak/zipline/types"
)

// GetAssetByTicker retrieves a types.Asset by its ticker.
func (db *Database) GetAssetByTicker(ctx context.Context, ticker string) (*types.Asset, error) {
	asset, err := db.assets.GetAssetByTicker(ctx, ticker)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticker %s %w", ticker, ErrAssetNotFound)
		}
		return nil, err
	}
	return &types.Asset{
		SID:        types.SID(asset.ID),
		Ticker:     asset.Ticker,
		Name:       asset.Name,
		Type:       types.AssetType(asset.Type),
		CreatedAt:  asset.CreatedAt,
		ModifiedAt: asset.ModifiedAt,
	}, nil
}
