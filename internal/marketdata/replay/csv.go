package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"fastquant/internal/model"
)

// LoadCSV parses ticks from CSV. A header row is required and must name
// "price" plus one of "timestamp"/"ts"/"time"; "symbol" and "volume" are
// optional. Missing symbols fall back to defaultSymbol. Timestamps may be
// epoch milliseconds, epoch seconds or RFC 3339.
func LoadCSV(r io.Reader, defaultSymbol string) ([]model.Tick, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	tsCol := -1
	for _, name := range []string{"timestamp", "ts", "time"} {
		if i, ok := cols[name]; ok {
			tsCol = i
			break
		}
	}
	priceCol, ok := cols["price"]
	if tsCol < 0 || !ok {
		return nil, errors.New("csv header must contain timestamp and price columns")
	}
	symCol, hasSym := cols["symbol"]
	volCol, hasVol := cols["volume"]
	if !hasSym && defaultSymbol == "" {
		return nil, errors.New("csv has no symbol column and no default symbol")
	}

	var ticks []model.Tick
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(rec) <= priceCol || len(rec) <= tsCol {
			return nil, fmt.Errorf("csv line %d: short record", line)
		}

		ts, err := parseTimestamp(rec[tsCol])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[priceCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: price: %w", line, err)
		}
		t := model.Tick{Symbol: defaultSymbol, Price: price, Timestamp: ts}
		if hasSym && symCol < len(rec) && rec[symCol] != "" {
			t.Symbol = strings.ToUpper(strings.TrimSpace(rec[symCol]))
		}
		if hasVol && volCol < len(rec) && rec[volCol] != "" {
			if t.Volume, err = strconv.ParseFloat(strings.TrimSpace(rec[volCol]), 64); err != nil {
				return nil, fmt.Errorf("csv line %d: volume: %w", line, err)
			}
		}
		ticks = append(ticks, t)
	}
	return ticks, nil
}

// LoadCSVFile opens path and calls LoadCSV.
func LoadCSVFile(path, defaultSymbol string) ([]model.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCSV(f, defaultSymbol)
}

// parseTimestamp accepts epoch ms, epoch seconds (< 1e11) or RFC 3339.
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 1e11 {
			return n * 1000, nil
		}
		return n, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("timestamp %q: want epoch or RFC 3339", s)
}
