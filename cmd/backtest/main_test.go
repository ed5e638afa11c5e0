package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, prices []float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,price,volume\n")
	for i, p := range prices {
		fmt.Fprintf(&b, "%d,%g,1\n", 1700000000000+int64(i)*1000, p)
	}
	path := filepath.Join(t.TempDir(), "ticks.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRun_CSV(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "trades.csv")
	o := options{
		csvPath:     writeCSV(t, []float64{10, 9, 8, 7, 6, 5, 6, 7, 8, 9, 10, 9, 8, 7}),
		symbol:      "btcusdt",
		fast:        2,
		slow:        4,
		qty:         0.5,
		maxPosition: 1,
		exportCSV:   out,
	}

	var buf bytes.Buffer
	require.NoError(t, run(context.Background(), o, &buf))

	report := buf.String()
	assert.Contains(t, report, "BACKTEST COMPLETE")
	assert.Contains(t, report, "BTCUSDT")
	assert.Contains(t, report, "TRADE REPORT")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Timestamp,DateTime,Symbol,Side,Price,Quantity,PnL"))
}

func TestRun_NoTicks(t *testing.T) {
	o := options{
		csvPath: writeCSV(t, []float64{1, 2, 3}),
		symbol:  "BTCUSDT",
		fast:    2,
		slow:    4,
		qty:     1,
		fromMs:  1800000000000,
	}
	err := run(context.Background(), o, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no ticks")
}

func TestRun_BadIndicatorSpec(t *testing.T) {
	o := options{
		csvPath:    writeCSV(t, []float64{1, 2, 3}),
		symbol:     "BTCUSDT",
		fast:       2,
		slow:       4,
		qty:        1,
		indicators: "SMA:0",
	}
	require.Error(t, run(context.Background(), o, &bytes.Buffer{}))
}
