package export

import (
	"context"
	"fmt"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"smcengine/services/candles"
	"smcengine/services/replay"
)

// TradeSink archives completed trades in ClickHouse. Table layout:
// (run_id, trade_id, instrument, direction, entry, exit, size, pnl,
// open_time_ms, close_time_ms, exit_reason, confidence).
type TradeSink struct {
	cfg   candles.ClickHouseConfig
	table string
	conn  driver.Conn
	log   *zap.Logger
}

// NewTradeSink opens and pings the connection. table names the target table
// inside the configured database.
func NewTradeSink(cfg candles.ClickHouseConfig, table string, log *zap.Logger) (*TradeSink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("trade sink open: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("trade sink ping: %w", err)
	}
	return &TradeSink{cfg: cfg, table: table, conn: conn, log: log}, nil
}

// Store batch-inserts one run's trades.
func (s *TradeSink) Store(ctx context.Context, runID uuid.UUID, trades []replay.CompletedTrade) error {
	if len(trades) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.%s (run_id, trade_id, instrument, direction, entry, exit, size, pnl, open_time_ms, close_time_ms, exit_reason, confidence)",
		s.cfg.Database, s.table))
	if err != nil {
		return fmt.Errorf("trade sink prepare: %w", err)
	}
	for _, t := range trades {
		if err := batch.Append(
			runID.String(),
			t.ID.String(),
			t.Instrument,
			t.Direction.String(),
			t.Entry,
			t.Exit,
			t.Size.InexactFloat64(),
			t.Pnl.InexactFloat64(),
			t.OpenTime,
			t.CloseTime,
			string(t.ExitReason),
			t.Confidence,
		); err != nil {
			return fmt.Errorf("trade sink append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("trade sink send: %w", err)
	}
	s.log.Info("trades archived",
		zap.String("run_id", runID.String()),
		zap.Int("count", len(trades)))
	return nil
}

// Close releases the connection.
func (s *TradeSink) Close() error { return s.conn.Close() }
