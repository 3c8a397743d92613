package candles

import (
	"context"
	"fmt"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig locates the candle table.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// ClickHouseLoader reads normalized candle series from ClickHouse. The table
// layout matches the ingest schema: (symbol, interval, ts_ms, open, high,
// low, close, volume).
type ClickHouseLoader struct {
	cfg  ClickHouseConfig
	conn driver.Conn
}

// NewClickHouseLoader opens and pings the connection.
func NewClickHouseLoader(cfg ClickHouseConfig) (*ClickHouseLoader, error) {
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
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &ClickHouseLoader{cfg: cfg, conn: conn}, nil
}

// Load fetches the [fromMs, toMs) window for one instrument and timeframe,
// ordered by timestamp. Ordering violations in the stored data surface as
// OutOfOrderDataError.
func (l *ClickHouseLoader) Load(ctx context.Context, instrument string, tf Timeframe, fromMs, toMs int64) (*Series, error) {
	query := fmt.Sprintf(`
		SELECT ts_ms, open, high, low, close, volume
		FROM %s.%s
		WHERE symbol = ? AND interval = ? AND ts_ms >= ? AND ts_ms < ?
		ORDER BY ts_ms`, l.cfg.Database, l.cfg.Table)

	rows, err := l.conn.Query(ctx, query, instrument, string(tf), fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query %s %s: %w", instrument, tf, err)
	}
	defer rows.Close()

	s := &Series{Instrument: instrument, TF: tf}
	for rows.Next() {
		var (
			ts                           int64
			open, high, low, close_, vol float64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close_, &vol); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		if err := s.Append(Candle{Timestamp: ts, Open: open, High: high, Low: low, Close: close_, Volume: vol}); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse rows: %w", err)
	}
	return s, nil
}

// Close releases the connection.
func (l *ClickHouseLoader) Close() error { return l.conn.Close() }
