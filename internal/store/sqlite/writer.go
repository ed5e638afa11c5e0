package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"fastquant/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite tick writer.
type WriterConfig struct {
	DBPath     string // e.g. "data/ticks.db"
	BatchSize  int
	FlushDelay time.Duration

	// OnCommit reports each committed batch (metrics).
	OnCommit func(n int, took time.Duration)
}

// Writer is a single-goroutine tick recorder with transaction batching.
// It implements model.TickRecorder.
type Writer struct {
	db  *sql.DB
	cfg WriterConfig
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", path, err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return db, nil
}

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = defaultFlushDelay
	}
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log.Printf("[sqlite] opened tick store at %s", cfg.DBPath)
	return &Writer{db: db, cfg: cfg}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ticks (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			seq     INTEGER NOT NULL DEFAULT 0,
			price   REAL    NOT NULL,
			volume  REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, ts, seq)
		);
	`)
	return err
}

// Run reads ticks from in and inserts them in batched transactions.
// Flushes every BatchSize ticks or every FlushDelay, whichever comes first.
// Blocks until ctx is cancelled or in is closed; pending ticks are flushed.
func (w *Writer) Run(ctx context.Context, in <-chan model.Tick) {
	batch := make([]model.Tick, 0, w.cfg.BatchSize)
	timer := time.NewTimer(w.cfg.FlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.InsertTicks(batch); err != nil {
			log.Printf("[sqlite] batch insert error (%d ticks): %v", len(batch), err)
		} else if w.cfg.OnCommit != nil {
			w.cfg.OnCommit(len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case t, ok := <-in:
			if !ok {
				flush()
				return
			}
			if !t.Usable() {
				continue
			}
			batch = append(batch, t)
			if len(batch) >= w.cfg.BatchSize {
				flush()
				timer.Reset(w.cfg.FlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(w.cfg.FlushDelay)
		}
	}
}

// InsertTicks stores ticks in a single transaction. Several trades can share
// a millisecond, so seq numbers them within (symbol, ts).
func (w *Writer) InsertTicks(ticks []model.Tick) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO ticks (symbol, ts, seq, price, volume)
		VALUES (?, ?, (SELECT COUNT(*) FROM ticks WHERE symbol = ? AND ts = ?), ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.Exec(t.Symbol, t.Timestamp, t.Symbol, t.Timestamp, t.Price, t.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LastTimestamp returns the newest stored tick time for symbol, or 0.
func (w *Writer) LastTimestamp(symbol string) (int64, error) {
	var ts sql.NullInt64
	if err := w.db.QueryRow(`SELECT MAX(ts) FROM ticks WHERE symbol = ?`, symbol).Scan(&ts); err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
