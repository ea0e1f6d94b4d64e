package types

import (
	"time"
)

// SID identifies one tracked instrument. Values are opaque to the engine;
// the repository maps tickers to SIDs, programmatic callers pick their own.
type SID int

type AssetType string

const (
	AssetTypeStock  AssetType = "STOCK"
	AssetTypeCrypto AssetType = "CRYPTO"
	AssetTypeEtf    AssetType = "ETF"
)

type Asset struct {
	SID        SID       `json:"id"`
	Ticker     string    `json:"ticker"`
	Name       string    `json:"name"`
	Type       AssetType `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}
