package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"fastquant/internal/model"
)

// Reader provides read access to recorded ticks for backtests and replay.
// It implements model.TickReader.
type Reader struct {
	db *sql.DB
}

// NewReader opens dbPath for reading. The schema is created when missing so
// an empty database reads as zero ticks.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadTicks returns ticks for symbol with ts >= fromMs in recording order.
func (r *Reader) ReadTicks(ctx context.Context, symbol string, fromMs int64) ([]model.Tick, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, ts, price, volume
		FROM ticks
		WHERE symbol = ? AND ts >= ?
		ORDER BY ts ASC, seq ASC
	`, symbol, fromMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		if err := rows.Scan(&t.Symbol, &t.Timestamp, &t.Price, &t.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan ticks: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// Symbols lists the distinct recorded symbols.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM ticks ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of ticks stored for symbol.
func (r *Reader) Count(ctx context.Context, symbol string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks WHERE symbol = ?`, symbol).Scan(&n)
	return n, err
}

// Ping checks the connection.
func (r *Reader) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
