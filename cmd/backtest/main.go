// Command backtest replays historical candles through the detection and
// decision stack and prints the run summary. Data comes from CSV files or
// ClickHouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"smcengine/services/candles"
	"smcengine/services/config"
	"smcengine/services/embargo"
	"smcengine/services/export"
	"smcengine/services/replay"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config path (defaults when empty)")
		dataSpec   = flag.String("data", "", "CSV sources, SYMBOL=path comma-separated")
		useCH      = flag.Bool("clickhouse", false, "load candles from ClickHouse instead of CSV")
		symbols    = flag.String("symbols", "", "symbols to load from ClickHouse, comma-separated")
		fromMs     = flag.Int64("from", 0, "range start, unix ms (ClickHouse mode)")
		toMs       = flag.Int64("to", 0, "range end exclusive, unix ms (ClickHouse mode)")
		calendar   = flag.String("calendar", "", "news calendar CSV for the embargo filter")
		arrowDir   = flag.String("arrow-dir", "", "write trades/equity Arrow IPC files into this directory")
		checkpoint = flag.String("checkpoint", "", "write a JSON checkpoint here after the run")
		storeCH    = flag.Bool("store-trades", false, "archive completed trades to ClickHouse")
		tradeTable = flag.String("trade-table", "trades", "ClickHouse table for archived trades")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			logger.Fatal("config", zap.Error(err))
		}
	}

	data, err := loadData(cfg, *dataSpec, *useCH, *symbols, *fromMs, *toMs)
	if err != nil {
		logger.Fatal("load data", zap.Error(err))
	}

	var cal *embargo.Calendar
	if *calendar != "" {
		events, err := embargo.LoadCSV(*calendar)
		if err != nil {
			logger.Fatal("calendar", zap.Error(err))
		}
		cal = embargo.NewCalendar(cfg.Embargo, events, logger)
	}

	start := time.Now()
	eng := replay.NewEngine(cfg, cal, logger)
	summary, err := eng.Run(data)
	if err != nil {
		logger.Fatal("run", zap.Error(err))
	}
	logger.Info("run finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("trades", len(summary.Trades)))

	printSummary(summary)

	if *arrowDir != "" {
		w := export.NewArrowWriter(logger)
		if err := w.WriteTrades(filepath.Join(*arrowDir, "trades.arrow"), summary.Trades); err != nil {
			logger.Fatal("arrow export", zap.Error(err))
		}
		if err := w.WriteEquityCurve(filepath.Join(*arrowDir, "equity.arrow"), summary.EquityCurve); err != nil {
			logger.Fatal("arrow export", zap.Error(err))
		}
	}
	if *storeCH {
		sink, err := export.NewTradeSink(cfg.ClickHouse, *tradeTable, logger)
		if err != nil {
			logger.Fatal("trade sink", zap.Error(err))
		}
		defer sink.Close()
		if err := sink.Store(context.Background(), summary.RunID, summary.Trades); err != nil {
			logger.Fatal("trade sink", zap.Error(err))
		}
	}
	if *checkpoint != "" {
		if err := replay.WriteCheckpoint(*checkpoint, eng.Checkpoint()); err != nil {
			logger.Fatal("checkpoint", zap.Error(err))
		}
	}
}

func loadData(cfg config.Config, dataSpec string, useCH bool, symbols string, fromMs, toMs int64) (map[string]*candles.Series, error) {
	if useCH {
		if symbols == "" || toMs <= fromMs {
			return nil, fmt.Errorf("clickhouse mode needs -symbols and a valid -from/-to range")
		}
		loader, err := candles.NewClickHouseLoader(cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		defer loader.Close()

		out := make(map[string]*candles.Series)
		for _, sym := range strings.Split(symbols, ",") {
			sym = strings.TrimSpace(sym)
			s, err := loader.Load(context.Background(), sym, cfg.Replay.ExecutionTF, fromMs, toMs)
			if err != nil {
				return nil, err
			}
			out[sym] = s
		}
		return out, nil
	}

	if dataSpec == "" {
		return nil, fmt.Errorf("either -data or -clickhouse is required")
	}
	out := make(map[string]*candles.Series)
	for _, pair := range strings.Split(dataSpec, ",") {
		sym, path, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("bad -data entry %q, want SYMBOL=path", pair)
		}
		s, err := candles.LoadCSV(path, sym, cfg.Replay.ExecutionTF)
		if err != nil {
			return nil, err
		}
		out[sym] = s
	}
	return out, nil
}

func printSummary(s *replay.RunSummary) {
	fmt.Printf("run %s\n", s.RunID)
	fmt.Printf("  balance   %s -> %s\n", s.InitialBalance, s.FinalBalance)
	fmt.Printf("  trades    %d\n", len(s.Trades))
	fmt.Printf("  win rate  %.1f%%\n", s.WinRate*100)
	fmt.Printf("  pf        %.2f\n", s.ProfitFactor)
	fmt.Printf("  max dd    %.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("  risk adj  %.2f\n", s.RiskAdjusted)
	for sym, kinds := range s.Dropped {
		for kind, n := range kinds {
			fmt.Printf("  dropped   %s %s: %d\n", sym, kind, n)
		}
	}
}
