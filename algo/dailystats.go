package algo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eduszlak/zipline/types"
)

var ErrUnorderedSnapshots = errors.New("daily snapshot index is decreasing")

// DailyStats is the tabular report of one run: a row of metrics per daily
// snapshot, indexed by period close in UTC. Columns are the union of every
// row's field names in first-seen order.
type DailyStats struct {
	index   []time.Time
	rows    []types.Fields
	columns []string
}

// NewDailyStats reduces a run's snapshot stream to daily statistics. Every
// snapshot lands in exactly one bucket: daily snapshots become rows in
// emission order, summary snapshots are consumed and set aside. A daily
// index that moves backwards is a contract violation. No daily snapshots
// means an empty report, not an error.
func NewDailyStats(perfs []types.PerfSnapshot) (*DailyStats, error) {
	stats := &DailyStats{}
	seen := make(map[string]bool)

	var lastClose time.Time
	for i, perf := range perfs {
		switch snap := perf.(type) {
		case types.DailySnapshot:
			periodClose := snap.PeriodClose.UTC()
			if len(stats.index) > 0 && periodClose.Before(lastClose) {
				return nil, fmt.Errorf("snapshot %d at %s is before %s: %w",
					i, periodClose.Format(time.RFC3339), lastClose.Format(time.RFC3339), ErrUnorderedSnapshots)
			}
			lastClose = periodClose

			stats.index = append(stats.index, periodClose)
			stats.rows = append(stats.rows, snap.Fields)
			for _, name := range snap.Fields.Names() {
				if !seen[name] {
					seen[name] = true
					stats.columns = append(stats.columns, name)
				}
			}

		case types.SummarySnapshot:
			// Whole-run metrics are not part of the daily table.

		default:
			return nil, fmt.Errorf("snapshot %d: unexpected type %T", i, perf)
		}
	}
	return stats, nil
}

func (s *DailyStats) Len() int {
	return len(s.index)
}

// Index is the UTC period close of each row posting, in row order.
func (s *DailyStats) Index() []time.Time {
	return s.index
}

func (s *DailyStats) Columns() []string {
	return s.columns
}

// Row returns the i-th row's fields. i must be in [0, Len()).
func (s *DailyStats) Row(i int) types.Fields {
	return s.rows[i]
}

func (s *DailyStats) Value(i int, column string) (decimal.Decimal, bool) {
	if i < 0 || i >= len(s.rows) {
		return decimal.Zero, false
	}
	return s.rows[i].Get(column)
}

// WriteCSV writes the report with a period_close column followed by every
// metric column. Cells a row never set are left empty.
func (s *DailyStats) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := append([]string{"period_close"}, s.columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range s.rows {
		record := make([]string, 0, len(header))
		record = append(record, s.index[i].Format(time.RFC3339))
		for _, column := range s.columns {
			if value, ok := row.Get(column); ok {
				record = append(record, value.String())
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
