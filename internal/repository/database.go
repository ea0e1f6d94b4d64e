package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Global error declarations.
var (
	ErrIntervalNotSupported = errors.New("timeframe not supported")
	ErrAssetNotFound        = errors.New("not found in datasource")
	ErrNoPrices             = errors.New("no prices found in datasource")
)

type assetsRepository interface {
	GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error)
}
type pricesRepository interface {
	GetCloseSeries(ctx context.Context, arg closeSeriesParams) ([]closeRow, error)
}

// Database struct that holds the database connection and queries.
type Database struct {
	assets assetsRepository
	prices pricesRepository
	conn   *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(dbURL string) (Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return Database{}, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return Database{}, err
	}
	// Ensure the connection is established.
	if err := conn.Ping(context.Background()); err != nil {
		return Database{}, err
	}

	q := &queries{pool: conn}
	return Database{
		assets: q,
		prices: q,
		conn:   conn}, nil
}

// Close releases the underlying connection pool.
func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}

type assetRow struct {
	ID         int32
	Ticker     string
	Name       string
	Type       string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

type closeSeriesParams struct {
	TimeBucket string
	AssetID    int32
	StartTime  time.Time
	EndTime    time.Time
}

type closeRow struct {
	Bucket time.Time
	Close  decimal.Decimal
}

type queries struct {
	pool *pgxpool.Pool
}

const getAssetByTicker = `
SELECT id, ticker, name, type, created_at, modified_at
FROM assets
WHERE ticker = $1`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	var row assetRow
	err := q.pool.QueryRow(ctx, getAssetByTicker, ticker).
		Scan(&row.ID, &row.Ticker, &row.Name, &row.Type, &row.CreatedAt, &row.ModifiedAt)
	return row, err
}

const getCloseSeries = `
SELECT time_bucket($1::interval, timestamp) AS bucket,
       last(close, timestamp) AS close
FROM candles
WHERE asset_id = $2
  AND timestamp >= $3
  AND timestamp < $4
GROUP BY bucket
ORDER BY bucket`

func (q *queries) GetCloseSeries(ctx context.Context, arg closeSeriesParams) ([]closeRow, error) {
	rows, err := q.pool.Query(ctx, getCloseSeries, arg.TimeBucket, arg.AssetID, arg.StartTime, arg.EndTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []closeRow
	for rows.Next() {
		var row closeRow
		if err := rows.Scan(&row.Bucket, &row.Close); err != nil {
			return nil, err
		}
		series = append(series, row)
	}
	return series, rows.Err()
}
