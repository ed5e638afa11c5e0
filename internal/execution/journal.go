package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fastquant/internal/model"
)

// Journal persists fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dbPath, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id        TEXT NOT NULL,
		client_order_id TEXT NOT NULL,
		strategy        TEXT NOT NULL,
		side            TEXT NOT NULL,
		symbol          TEXT NOT NULL,
		qty             REAL NOT NULL,
		price           REAL NOT NULL,
		ref_price       REAL NOT NULL,
		slippage        REAL DEFAULT 0,
		status          TEXT NOT NULL,
		simulated       INTEGER NOT NULL,
		reason          TEXT,
		trace_id        TEXT,
		filled_at       DATETIME NOT NULL,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_strategy ON fills(strategy);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}

	slog.Info("trade journal opened", "path", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(ctx context.Context, fill model.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	simulated := 0
	if fill.Simulated {
		simulated = 1
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO fills (order_id, client_order_id, strategy, side, symbol, qty, price, ref_price,
		                    slippage, status, simulated, reason, trace_id, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.Order.ClientOrderID,
		fill.Order.Strategy,
		string(fill.Order.Side),
		fill.Order.Symbol,
		fill.Quantity,
		fill.Price,
		fill.Order.Price,
		fill.Slippage,
		fill.Status,
		simulated,
		fill.Order.Reason,
		fill.Order.TraceID,
		fill.FilledAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal: insert fill %s: %w", fill.OrderID, err)
	}
	return nil
}

// FillRecord represents a row from the fills table.
type FillRecord struct {
	ID        int64   `json:"id"`
	OrderID   string  `json:"order_id"`
	Strategy  string  `json:"strategy"`
	Side      string  `json:"side"`
	Symbol    string  `json:"symbol"`
	Qty       float64 `json:"qty"`
	Price     float64 `json:"price"`
	Slippage  float64 `json:"slippage"`
	Simulated bool    `json:"simulated"`
	Reason    string  `json:"reason"`
	FilledAt  string  `json:"filled_at"`
}

// RecentFills returns the last N fills, newest first.
func (j *Journal) RecentFills(ctx context.Context, limit int) ([]FillRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, order_id, strategy, side, symbol, qty, price, slippage, simulated, reason, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		var reason sql.NullString
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Strategy, &f.Side, &f.Symbol,
			&f.Qty, &f.Price, &f.Slippage, &f.Simulated, &reason, &f.FilledAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		f.Reason = reason.String
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
