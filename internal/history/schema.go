package history

import (
	"database/sql"

	"codeberg.org/mutker/packmon/internal/errors"
	"codeberg.org/mutker/packmon/internal/logger"
)

const (
	SchemaVersion = 1

	// Window timestamps are tick counters that restart with the
	// device, so insertion order rather than timestamp is the primary
	// key. The cell arrays are stored as JSON text.
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS stats_windows (
	       id           INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp    INTEGER NOT NULL CHECK (typeof(timestamp) = 'integer'),
	       sample_count INTEGER NOT NULL CHECK (sample_count > 0),
	       cell_errors  INTEGER NOT NULL CHECK (typeof(cell_errors) = 'integer'),
	       cell_v_avg   TEXT NOT NULL,
	       cell_v_min   TEXT NOT NULL,
	       cell_v_max   TEXT NOT NULL,
	       pack_v_avg   REAL NOT NULL,
	       pack_v_min   REAL NOT NULL,
	       pack_v_max   REAL NOT NULL,
	       pack_i_avg   REAL NOT NULL,
	       pack_i_min   REAL NOT NULL,
	       pack_i_max   REAL NOT NULL
	   );`

	insertWindowSQL = `
    INSERT INTO stats_windows (
        timestamp, sample_count, cell_errors,
        cell_v_avg, cell_v_min, cell_v_max,
        pack_v_avg, pack_v_min, pack_v_max,
        pack_i_avg, pack_i_min, pack_i_max
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRecentSQL = `
    SELECT timestamp, sample_count, cell_errors,
           cell_v_avg, cell_v_min, cell_v_max,
           pack_v_avg, pack_v_min, pack_v_max,
           pack_i_avg, pack_i_min, pack_i_max
    FROM stats_windows
    ORDER BY id DESC
    LIMIT ?`

	pruneWindowsSQL = `
    DELETE FROM stats_windows
    WHERE id NOT IN (SELECT id FROM stats_windows ORDER BY id DESC LIMIT ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
