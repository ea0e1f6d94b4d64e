package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/eduszlak/zipline/types"
)

var ErrRunNotFound = errors.New("run not found in journal")

// RunRecord is the journal entry for one completed run. Monetary columns are
// stored as REAL, so FinalValue and TotalReturn round-trip through float64.
type RunRecord struct {
	RunID       string
	Strategy    string
	SIDs        []types.SID
	Start       time.Time
	End         time.Time
	Periods     int
	FinalValue  decimal.Decimal
	TotalReturn decimal.Decimal
	CreatedAt   time.Time
}

type SQLiteJournal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path and applies the schema.
func Open(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

// RecordRun inserts the record and returns its run id, assigning a fresh ULID
// when the record carries none. A zero CreatedAt defaults to now.
func (j *SQLiteJournal) RecordRun(ctx context.Context, rec RunRecord) (string, error) {
	if rec.RunID == "" {
		rec.RunID = newRunID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, strategy, sids, start_time, end_time, periods, final_value, total_return, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Strategy, joinSIDs(rec.SIDs), rec.Start, rec.End,
		rec.Periods, rec.FinalValue.InexactFloat64(), rec.TotalReturn.InexactFloat64(), rec.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return rec.RunID, nil
}

// GetRun retrieves one run by id.
func (j *SQLiteJournal) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT run_id, strategy, sids, start_time, end_time, periods, final_value, total_return, created_at
		FROM runs WHERE run_id = ?`, runID)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return rec, err
}

// ListRuns returns the most recent runs, newest first.
func (j *SQLiteJournal) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, strategy, sids, start_time, end_time, periods, final_value, total_return, created_at
		FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec         RunRecord
		sids        string
		finalValue  float64
		totalReturn float64
	)
	err := row.Scan(&rec.RunID, &rec.Strategy, &sids, &rec.Start, &rec.End,
		&rec.Periods, &finalValue, &totalReturn, &rec.CreatedAt)
	if err != nil {
		return RunRecord{}, err
	}
	rec.SIDs, err = splitSIDs(sids)
	if err != nil {
		return RunRecord{}, err
	}
	rec.FinalValue = decimal.NewFromFloat(finalValue)
	rec.TotalReturn = decimal.NewFromFloat(totalReturn)
	return rec, nil
}

func joinSIDs(sids []types.SID) string {
	parts := make([]string, 0, len(sids))
	for _, sid := range sids {
		parts = append(parts, strconv.Itoa(int(sid)))
	}
	return strings.Join(parts, ",")
}

func splitSIDs(s string) ([]types.SID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	sids := make([]types.SID, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parse sids %q: %w", s, err)
		}
		sids = append(sids, types.SID(n))
	}
	return sids, nil
}
