package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eduszlak/zipline/algo"
	"github.com/eduszlak/zipline/internal/config"
	"github.com/eduszlak/zipline/internal/logging"
	"github.com/eduszlak/zipline/internal/repository"
	"github.com/eduszlak/zipline/journal"
	"github.com/eduszlak/zipline/strategies/smacross"
	"github.com/eduszlak/zipline/types"
)

const reportHead = 5

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalln(err)
	}
	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalln(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := repository.NewDatabase(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect price store: %w", err)
	}
	defer db.Close()

	start, end, err := cfg.Run.Span()
	if err != nil {
		return err
	}

	sids := make([]types.SID, 0, len(cfg.Run.Tickers))
	for _, ticker := range cfg.Run.Tickers {
		asset, err := db.GetAssetByTicker(ctx, ticker)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", ticker, err)
		}
		logger.Info("resolved ticker",
			zap.String("ticker", asset.Ticker),
			zap.Int("sid", int(asset.SID)))
		sids = append(sids, asset.SID)
	}

	frame, err := db.LoadFrame(ctx, sids, types.Interval(cfg.Run.Interval), start, end)
	if err != nil {
		return fmt.Errorf("load frame: %w", err)
	}
	logger.Info("loaded frame",
		zap.Int("periods", frame.Len()),
		zap.Int("instruments", len(sids)))

	initialCash := decimal.NewFromFloat(cfg.Run.InitialCash)
	strat := smacross.New(sids[0], cfg.Run.FastWindow, cfg.Run.SlowWindow,
		decimal.NewFromInt(int64(cfg.Run.OrderSize)))

	a, err := algo.New(strat, sids, nil)
	if err != nil {
		return err
	}
	a.SetLogger(logger)
	a.SetProgress(cfg.Run.Progress)
	a.SetInitialCash(initialCash)

	stats, err := a.RunFrame(frame)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	printReport(stats, initialCash)

	if cfg.Report.CSVPath != "" {
		if err := writeCSV(stats, cfg.Report.CSVPath); err != nil {
			return err
		}
		logger.Info("report written", zap.String("path", cfg.Report.CSVPath))
	}

	if cfg.Journal.Path != "" {
		id, err := recordRun(ctx, cfg.Journal.Path, stats, sids, start, end, initialCash)
		if err != nil {
			return fmt.Errorf("journal run: %w", err)
		}
		logger.Info("run journaled", zap.String("run_id", id))
	}
	return nil
}

func printReport(stats *algo.DailyStats, initialCash decimal.Decimal) {
	fmt.Printf("%-20s %16s %16s %12s\n", "period_close", "portfolio_value", "cash", "returns")

	shown := stats.Len()
	if shown > reportHead {
		shown = reportHead
	}
	for i := 0; i < shown; i++ {
		fmt.Printf("%-20s %16s %16s %12s\n",
			stats.Index()[i].Format("2006-01-02 15:04"),
			cell(stats, i, "portfolio_value", 2),
			cell(stats, i, "cash", 2),
			cell(stats, i, "returns", 6))
	}
	if rest := stats.Len() - shown; rest > 0 {
		fmt.Printf("... %d more periods\n", rest)
	}

	final := finalValue(stats, initialCash)
	fmt.Printf("\nfinal value:  %s\n", final.StringFixed(2))
	fmt.Printf("total return: %s%%\n",
		totalReturn(final, initialCash).Mul(decimal.NewFromInt(100)).StringFixed(2))
}

func cell(stats *algo.DailyStats, i int, column string, places int32) string {
	v, ok := stats.Value(i, column)
	if !ok {
		return ""
	}
	return v.StringFixed(places)
}

func finalValue(stats *algo.DailyStats, initialCash decimal.Decimal) decimal.Decimal {
	if stats.Len() == 0 {
		return initialCash
	}
	if v, ok := stats.Value(stats.Len()-1, "portfolio_value"); ok {
		return v
	}
	return initialCash
}

func totalReturn(final, initial decimal.Decimal) decimal.Decimal {
	if !initial.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	return final.Div(initial).Sub(decimal.NewFromInt(1))
}

func writeCSV(stats *algo.DailyStats, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := stats.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

func recordRun(ctx context.Context, path string, stats *algo.DailyStats, sids []types.SID, start, end time.Time, initialCash decimal.Decimal) (string, error) {
	j, err := journal.Open(path)
	if err != nil {
		return "", err
	}
	defer j.Close()

	final := finalValue(stats, initialCash)
	return j.RecordRun(ctx, journal.RunRecord{
		Strategy:    "smacross",
		SIDs:        sids,
		Start:       start,
		End:         end,
		Periods:     stats.Len(),
		FinalValue:  final,
		TotalReturn: totalReturn(final, initialCash),
	})
}
