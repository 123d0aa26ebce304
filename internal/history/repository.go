// Package history keeps the rolling on-device record of statistics
// windows in SQLite. Writes are batched through an in-memory buffer
// and flushed on size or interval; every flush prunes rows past the
// retention horizon so the database stays a fixed-size rolling window.
package history

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/errors"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/stats"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []stats.Window
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

// NewStore opens the window store. With history disabled it returns
// the no-op store, so the processing loop records unconditionally.
func NewStore(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		log.Debug().Msg("History disabled, using no-op store")
		return NewNoop(), nil
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// Open database with specific pragmas for better performance and safety
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// Validate if schema is current, with backup if needed
	if err := ValidateAndUpdateSchema(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("retention", cfg.Retention).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("History store initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]stats.Window, 0, cfg.BatchSize),
		flushTicker:   time.NewTicker(cfg.FlushInterval),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}
	go repo.flusher()

	return repo, nil
}

func (r *repository) Append(window stats.Window) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, window)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// Recent returns up to limit windows, oldest first. A non-positive
// limit means the full retention horizon.
func (r *repository) Recent(limit int) ([]stats.Window, error) {
	errFactory := errors.New()

	if limit <= 0 {
		limit = r.cfg.Retention
	}

	r.mu.Lock()
	if err := r.flush(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	rows, err := r.db.Query(selectRecentSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var windows []stats.Window
	for rows.Next() {
		var w stats.Window
		var flags int64
		var avgRaw, minRaw, maxRaw string
		if err := rows.Scan(
			&w.Timestamp, &w.SampleCount, &flags,
			&avgRaw, &minRaw, &maxRaw,
			&w.PackVAvg, &w.PackVMin, &w.PackVMax,
			&w.PackIAvg, &w.PackIMin, &w.PackIMax,
		); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		w.Flags = bms.Flags(flags)

		if err := decodeCells(avgRaw, &w.CellVAvg); err != nil {
			return nil, err
		}
		if err := decodeCells(minRaw, &w.CellVMin); err != nil {
			return nil, err
		}
		if err := decodeCells(maxRaw, &w.CellVMax); err != nil {
			return nil, err
		}

		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	// The query walks newest-first; callers get oldest-first.
	for i, j := 0, len(windows)-1; i < j; i, j = i+1, j-1 {
		windows[i], windows[j] = windows[j], windows[i]
	}

	return windows, nil
}

func (r *repository) Close() error {
	// Signal the flusher goroutine to stop
	close(r.shutdownChan)

	// Stop the ticker
	r.flushTicker.Stop()

	// Wait for the flusher to finish its final flush
	<-r.flushDoneChan

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("History store closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			r.flush()
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			r.flush()
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffer and prunes past the retention horizon in one
// transaction. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertWindowSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for i := range r.buffer {
		values, err := windowValues(&r.buffer[i])
		if err == nil {
			_, err = stmt.Exec(values...)
		}
		if err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if _, err := tx.Exec(pruneWindowsSQL, r.cfg.Retention); err != nil {
		r.logger.Error().Err(err).Msg("Failed to prune expired windows")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed windows to database")
	r.buffer = r.buffer[:0]

	return nil
}

func windowValues(w *stats.Window) ([]interface{}, error) {
	avgRaw, err := encodeCells(w.CellVAvg)
	if err != nil {
		return nil, err
	}
	minRaw, err := encodeCells(w.CellVMin)
	if err != nil {
		return nil, err
	}
	maxRaw, err := encodeCells(w.CellVMax)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		int64(w.Timestamp), int64(w.SampleCount), int64(w.Flags),
		avgRaw, minRaw, maxRaw,
		w.PackVAvg, w.PackVMin, w.PackVMax,
		w.PackIAvg, w.PackIMin, w.PackIMax,
	}, nil
}

func encodeCells(cells [bms.NumCells]float64) (string, error) {
	raw, err := json.Marshal(cells)
	if err != nil {
		return "", errors.New().Wrap(ErrStorageAccess, err)
	}

	return string(raw), nil
}

func decodeCells(raw string, cells *[bms.NumCells]float64) error {
	if err := json.Unmarshal([]byte(raw), cells); err != nil {
		return errors.New().Wrap(ErrStorageAccess, err)
	}

	return nil
}
