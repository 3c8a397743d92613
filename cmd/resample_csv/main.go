// Command resample_csv aggregates a candle CSV into a coarser timeframe.
// Handy for producing M15 execution data from raw M1/M5 broker exports.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"smcengine/services/candles"
)

func main() {
	var (
		in     = flag.String("in", "", "input CSV (timestamp_ms,open,high,low,close,volume)")
		out    = flag.String("out", "", "output CSV path")
		src    = flag.String("src", "M5", "source timeframe")
		dst    = flag.String("dst", "M15", "target timeframe")
		symbol = flag.String("symbol", "UNKNOWN", "instrument name, for error reporting only")
	)
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "-in and -out are required")
		os.Exit(2)
	}
	srcTF := candles.Timeframe(strings.ToUpper(*src))
	dstTF := candles.Timeframe(strings.ToUpper(*dst))
	if !srcTF.Valid() || !dstTF.Valid() {
		fmt.Fprintf(os.Stderr, "unknown timeframe: src=%s dst=%s\n", *src, *dst)
		os.Exit(2)
	}

	series, err := candles.LoadCSV(*in, *symbol, srcTF)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	coarse, err := series.Resample(dstTF)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := writeCSV(*out, coarse); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("%d %s bars -> %d %s bars\n", series.Len(), srcTF, coarse.Len(), dstTF)
}

func writeCSV(path string, s *candles.Series) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "timestamp_ms,open,high,low,close,volume")
	for _, c := range s.Candles() {
		fmt.Fprintf(w, "%d,%.8f,%.8f,%.8f,%.8f,%.8f\n",
			c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
