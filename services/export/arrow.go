// Package export writes finished runs out: Arrow IPC files for columnar
// consumers and a ClickHouse sink for the trade archive.
package export

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"smcengine/services/replay"
)

var tradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "trade_id", Type: arrow.BinaryTypes.String},
	{Name: "instrument", Type: arrow.BinaryTypes.String},
	{Name: "direction", Type: arrow.BinaryTypes.String},
	{Name: "entry", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit", Type: arrow.PrimitiveTypes.Float64},
	{Name: "size", Type: arrow.PrimitiveTypes.Float64},
	{Name: "pnl", Type: arrow.PrimitiveTypes.Float64},
	{Name: "open_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "close_time_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_reason", Type: arrow.BinaryTypes.String},
	{Name: "confidence", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var equitySchema = arrow.NewSchema([]arrow.Field{
	{Name: "ts_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "balance", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// ArrowWriter turns a run summary into Arrow IPC files.
type ArrowWriter struct {
	pool memory.Allocator
	log  *zap.Logger
}

// NewArrowWriter builds a writer over the Go allocator.
func NewArrowWriter(log *zap.Logger) *ArrowWriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &ArrowWriter{pool: memory.NewGoAllocator(), log: log}
}

// WriteTrades serializes the completed-trade table to an IPC file at path.
func (w *ArrowWriter) WriteTrades(path string, trades []replay.CompletedTrade) error {
	b := array.NewRecordBuilder(w.pool, tradeSchema)
	defer b.Release()

	for _, t := range trades {
		b.Field(0).(*array.StringBuilder).Append(t.ID.String())
		b.Field(1).(*array.StringBuilder).Append(t.Instrument)
		b.Field(2).(*array.StringBuilder).Append(t.Direction.String())
		b.Field(3).(*array.Float64Builder).Append(t.Entry)
		b.Field(4).(*array.Float64Builder).Append(t.Exit)
		b.Field(5).(*array.Float64Builder).Append(t.Size.InexactFloat64())
		b.Field(6).(*array.Float64Builder).Append(t.Pnl.InexactFloat64())
		b.Field(7).(*array.Int64Builder).Append(t.OpenTime)
		b.Field(8).(*array.Int64Builder).Append(t.CloseTime)
		b.Field(9).(*array.StringBuilder).Append(string(t.ExitReason))
		b.Field(10).(*array.Float64Builder).Append(t.Confidence)
	}
	return w.writeFile(path, tradeSchema, b)
}

// WriteEquityCurve serializes the equity curve to an IPC file at path.
func (w *ArrowWriter) WriteEquityCurve(path string, curve []replay.EquityPoint) error {
	b := array.NewRecordBuilder(w.pool, equitySchema)
	defer b.Release()

	for _, p := range curve {
		b.Field(0).(*array.Int64Builder).Append(p.Ts)
		b.Field(1).(*array.Float64Builder).Append(p.Balance.InexactFloat64())
	}
	return w.writeFile(path, equitySchema, b)
}

func (w *ArrowWriter) writeFile(path string, schema *arrow.Schema, b *array.RecordBuilder) error {
	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("arrow export: create %s: %w", path, err)
	}
	defer f.Close()

	fw, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(w.pool))
	if err != nil {
		return fmt.Errorf("arrow export: writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("arrow export: write record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("arrow export: close: %w", err)
	}
	w.log.Info("arrow export written", zap.String("path", path), zap.Int64("rows", rec.NumRows()))
	return nil
}
